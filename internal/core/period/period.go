// Package period models calendar periods used as archive keys
//
// A Period is an immutable value: a kind plus inclusive start and end
// dates. For non range kinds the end is derived from the start, so two
// periods built from any date inside the same week or month compare equal
package period

import (
	"fmt"
	"time"

	perr "statskeep/internal/platform/errors"
)

// Kind discriminates the period granularities
type Kind int

// Kind codes are storage values (the period column); never renumber
const (
	KindDay   Kind = 1
	KindWeek  Kind = 2
	KindMonth Kind = 3
	KindYear  Kind = 4
	KindRange Kind = 5
)

// String returns the lowercase kind label
func (k Kind) String() string {
	switch k {
	case KindDay:
		return "day"
	case KindWeek:
		return "week"
	case KindMonth:
		return "month"
	case KindYear:
		return "year"
	case KindRange:
		return "range"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind maps a label to a Kind
func ParseKind(s string) (Kind, error) {
	switch s {
	case "day":
		return KindDay, nil
	case "week":
		return KindWeek, nil
	case "month":
		return KindMonth, nil
	case "year":
		return KindYear, nil
	case "range":
		return KindRange, nil
	default:
		return 0, perr.InvalidArgf("unknown period kind %q", s)
	}
}

// DateLayout is the wire and storage date format
const DateLayout = "2006-01-02"

// Period is an immutable calendar period
type Period struct {
	kind  Kind
	start time.Time // midnight UTC
	end   time.Time // midnight UTC, inclusive
}

// day truncates t to midnight UTC
func day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// New derives a period of kind k containing the reference date
// Range is not constructible this way; use NewRange
func New(k Kind, ref time.Time) (Period, error) {
	d := day(ref)
	switch k {
	case KindDay:
		return Period{kind: k, start: d, end: d}, nil
	case KindWeek:
		// ISO week, Monday through Sunday
		off := (int(d.Weekday()) + 6) % 7
		start := d.AddDate(0, 0, -off)
		return Period{kind: k, start: start, end: start.AddDate(0, 0, 6)}, nil
	case KindMonth:
		start := time.Date(d.Year(), d.Month(), 1, 0, 0, 0, 0, time.UTC)
		return Period{kind: k, start: start, end: start.AddDate(0, 1, -1)}, nil
	case KindYear:
		start := time.Date(d.Year(), 1, 1, 0, 0, 0, 0, time.UTC)
		return Period{kind: k, start: start, end: time.Date(d.Year(), 12, 31, 0, 0, 0, 0, time.UTC)}, nil
	case KindRange:
		return Period{}, perr.InvalidArgf("range periods require explicit bounds")
	default:
		return Period{}, perr.InvalidArgf("unknown period kind %d", int(k))
	}
}

// NewRange builds a custom range period with inclusive bounds
func NewRange(start, end time.Time) (Period, error) {
	s, e := day(start), day(end)
	if e.Before(s) {
		return Period{}, perr.InvalidArgf("range end %s before start %s", e.Format(DateLayout), s.Format(DateLayout))
	}
	return Period{kind: KindRange, start: s, end: e}, nil
}

// Kind returns the period kind
func (p Period) Kind() Kind { return p.kind }

// ID returns the stable storage code for the kind
func (p Period) ID() int { return int(p.kind) }

// Start returns the inclusive start date at midnight UTC
func (p Period) Start() time.Time { return p.start }

// End returns the inclusive end date at midnight UTC
func (p Period) End() time.Time { return p.end }

// IsZero reports whether p is the zero period
func (p Period) IsZero() bool { return p.kind == 0 }

// RangeString renders the canonical "start,end" key used for storage
// columns and result indexing
func (p Period) RangeString() string {
	return p.start.Format(DateLayout) + "," + p.end.Format(DateLayout)
}

// Pretty renders a human label for result keys
func (p Period) Pretty() string {
	switch p.kind {
	case KindDay:
		return p.start.Format(DateLayout)
	case KindWeek:
		return fmt.Sprintf("From %s to %s", p.start.Format(DateLayout), p.end.Format(DateLayout))
	case KindMonth:
		return p.start.Format("2006-01")
	case KindYear:
		return p.start.Format("2006")
	case KindRange:
		return fmt.Sprintf("From %s to %s", p.start.Format(DateLayout), p.end.Format(DateLayout))
	default:
		return p.RangeString()
	}
}

// Contains reports whether t falls inside the period (date precision)
func (p Period) Contains(t time.Time) bool {
	d := day(t)
	return !d.Before(p.start) && !d.After(p.end)
}

// Days expands the period into its member day periods in order
func (p Period) Days() []Period {
	var out []Period
	for d := p.start; !d.After(p.end); d = d.AddDate(0, 0, 1) {
		out = append(out, Period{kind: KindDay, start: d, end: d})
	}
	return out
}

// Equal reports value equality
func (p Period) Equal(o Period) bool {
	return p.kind == o.kind && p.start.Equal(o.start) && p.end.Equal(o.end)
}
