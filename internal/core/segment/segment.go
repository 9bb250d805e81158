// Package segment compiles visitor filter expressions into SQL fragments
// and stable hashes used in archive keys and lock names
//
// Expression grammar: condition groups separated by ';' are ANDed,
// conditions separated by ',' inside a group are ORed. A condition is
// <dimension><op><value> with ops ==, !=, =@ (contains), !@ (not
// contains), =^ (starts with), =$ (ends with), >, <, >=, <=
package segment

import (
	"crypto/md5" // #nosec G401 non cryptographic, key derivation for archive names
	"encoding/hex"
	"fmt"
	"strings"

	perr "statskeep/internal/platform/errors"
)

// MaxLength bounds accepted expressions; anything longer is rejected
// before parsing so oversized definitions cannot reach storage columns
const MaxLength = 8192

// Op is a comparison operator inside a condition
type Op string

// Operator tokens, longest first so parsing is unambiguous
const (
	OpEq          Op = "=="
	OpNeq         Op = "!="
	OpContains    Op = "=@"
	OpNotContains Op = "!@"
	OpStartsWith  Op = "=^"
	OpEndsWith    Op = "=$"
	OpGte         Op = ">="
	OpLte         Op = "<="
	OpGt          Op = ">"
	OpLt          Op = "<"
)

// opsByLength is scan order when splitting a condition
var opsByLength = []Op{OpEq, OpNeq, OpContains, OpNotContains, OpStartsWith, OpEndsWith, OpGte, OpLte, OpGt, OpLt}

// Condition is one dimension comparison
type Condition struct {
	Dim   Dimension
	Op    Op
	Value string
}

// Segment is a parsed, validated filter expression
// The zero value is the empty segment (no filtering)
type Segment struct {
	definition string
	groups     [][]Condition // outer AND, inner OR
}

// Options controls parsing
type Options struct {
	// AllowRestricted permits dimensions flagged Restricted
	AllowRestricted bool
}

// Parse validates expr against the registry and returns the compiled segment
// An empty expression yields the empty segment
func Parse(expr string, reg Registry, opt Options) (*Segment, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return &Segment{}, nil
	}
	if len(expr) > MaxLength {
		return nil, perr.InvalidArgf("segment expression exceeds %d bytes", MaxLength)
	}

	canon := canonicalize(expr)
	var groups [][]Condition
	for _, andPart := range strings.Split(canon, ";") {
		var group []Condition
		for _, orPart := range strings.Split(andPart, ",") {
			c, err := parseCondition(orPart, reg, opt)
			if err != nil {
				return nil, err
			}
			group = append(group, c)
		}
		groups = append(groups, group)
	}
	return &Segment{definition: canon, groups: groups}, nil
}

func parseCondition(s string, reg Registry, opt Options) (Condition, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Condition{}, perr.InvalidArgf("empty segment condition")
	}
	for _, op := range opsByLength {
		i := strings.Index(s, string(op))
		if i <= 0 {
			continue
		}
		name := strings.TrimSpace(s[:i])
		val := s[i+len(op):]
		dim, ok := reg.Lookup(name)
		if !ok {
			return Condition{}, perr.InvalidArgf("unknown segment dimension %q", name)
		}
		if dim.Restricted && !opt.AllowRestricted {
			return Condition{}, perr.Forbiddenf("segment dimension %q requires elevated access", name)
		}
		if val == "" {
			return Condition{}, perr.InvalidArgf("segment condition %q has no value", s)
		}
		return Condition{Dim: dim, Op: op, Value: val}, nil
	}
	return Condition{}, perr.InvalidArgf("segment condition %q has no operator", s)
}

// IsEmpty reports whether the segment filters nothing
func (s *Segment) IsEmpty() bool { return s == nil || len(s.groups) == 0 }

// Definition returns the canonical expression string
func (s *Segment) Definition() string {
	if s == nil {
		return ""
	}
	return s.definition
}

// Hash returns the md5 hex of the canonical definition, or "" for the
// empty segment. The hash is embedded in done flag names, so it must be
// stable across processes and releases
func (s *Segment) Hash() string {
	if s.IsEmpty() {
		return ""
	}
	sum := md5.Sum([]byte(s.definition)) // #nosec G401
	return hex.EncodeToString(sum[:])
}

// Where compiles the segment into a parameterized SQL fragment over the
// raw visit log. Placeholders are numbered from argStart. The empty
// segment compiles to ("", nil)
func (s *Segment) Where(argStart int) (string, []any) {
	if s.IsEmpty() {
		return "", nil
	}
	var (
		sb   strings.Builder
		args []any
		n    = argStart
	)
	for gi, group := range s.groups {
		if gi > 0 {
			sb.WriteString(" AND ")
		}
		if len(group) > 1 {
			sb.WriteString("(")
		}
		for ci, c := range group {
			if ci > 0 {
				sb.WriteString(" OR ")
			}
			frag, val := c.compile(n)
			sb.WriteString(frag)
			args = append(args, val)
			n++
		}
		if len(group) > 1 {
			sb.WriteString(")")
		}
	}
	return sb.String(), args
}

// compile renders one condition using placeholder $n
func (c Condition) compile(n int) (frag string, arg any) {
	col := c.Dim.Column
	ph := fmt.Sprintf("$%d", n)
	switch c.Op {
	case OpEq:
		return col + " = " + ph, c.Value
	case OpNeq:
		return col + " <> " + ph, c.Value
	case OpContains:
		return col + " LIKE " + ph, "%" + escapeLike(c.Value) + "%"
	case OpNotContains:
		return col + " NOT LIKE " + ph, "%" + escapeLike(c.Value) + "%"
	case OpStartsWith:
		return col + " LIKE " + ph, escapeLike(c.Value) + "%"
	case OpEndsWith:
		return col + " LIKE " + ph, "%" + escapeLike(c.Value)
	case OpGt:
		return col + " > " + ph, c.Value
	case OpLt:
		return col + " < " + ph, c.Value
	case OpGte:
		return col + " >= " + ph, c.Value
	case OpLte:
		return col + " <= " + ph, c.Value
	default:
		return col + " = " + ph, c.Value
	}
}

// escapeLike neutralizes LIKE metacharacters in user values
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "%", `\%`)
	s = strings.ReplaceAll(s, "_", `\_`)
	return s
}
