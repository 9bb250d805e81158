package period

import (
	"strconv"
	"strings"
	"time"

	perr "statskeep/internal/platform/errors"
)

// ResolveDate parses a single date expression: a literal date, "today",
// or "yesterday". now supplies the clock so callers stay testable
func ResolveDate(expr string, now time.Time) (time.Time, error) {
	switch expr {
	case "today":
		return day(now), nil
	case "yesterday":
		return day(now).AddDate(0, 0, -1), nil
	}
	t, err := time.Parse(DateLayout, expr)
	if err != nil {
		return time.Time{}, perr.InvalidArgf("bad date %q: want YYYY-MM-DD, today or yesterday", expr)
	}
	return t, nil
}

// Parse builds one or more periods of the given kind from a date
// expression. Supported forms:
//
//	"2024-05-12"              one period containing that date
//	"today" / "yesterday"     one period relative to now
//	"2024-05-01,2024-05-20"   kind range: one custom range
//	                          other kinds: every period touched by the span
//	"last7"                   the 7 most recent periods ending today
//	"previous3"               the 3 periods ending yesterday's period
func Parse(k Kind, dateExpr string, now time.Time) ([]Period, error) {
	dateExpr = strings.TrimSpace(dateExpr)
	if dateExpr == "" {
		return nil, perr.InvalidArgf("empty date expression")
	}

	if n, ok := suffixCount(dateExpr, "last"); ok {
		return lastN(k, n, day(now))
	}
	if n, ok := suffixCount(dateExpr, "previous"); ok {
		ref, err := previousRef(k, day(now))
		if err != nil {
			return nil, err
		}
		return lastN(k, n, ref)
	}

	if i := strings.IndexByte(dateExpr, ','); i >= 0 {
		start, err := ResolveDate(dateExpr[:i], now)
		if err != nil {
			return nil, err
		}
		end, err := ResolveDate(dateExpr[i+1:], now)
		if err != nil {
			return nil, err
		}
		if k == KindRange {
			p, err := NewRange(start, end)
			if err != nil {
				return nil, err
			}
			return []Period{p}, nil
		}
		return span(k, start, end)
	}

	ref, err := ResolveDate(dateExpr, now)
	if err != nil {
		return nil, err
	}
	if k == KindRange {
		return nil, perr.InvalidArgf("range period requires a start,end date")
	}
	p, err := New(k, ref)
	if err != nil {
		return nil, err
	}
	return []Period{p}, nil
}

// suffixCount matches expressions like last7 or previous3
func suffixCount(expr, prefix string) (int, bool) {
	if !strings.HasPrefix(expr, prefix) {
		return 0, false
	}
	n, err := strconv.Atoi(expr[len(prefix):])
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

// previousRef steps the reference date back one whole period of kind k
func previousRef(k Kind, ref time.Time) (time.Time, error) {
	switch k {
	case KindDay:
		return ref.AddDate(0, 0, -1), nil
	case KindWeek:
		return ref.AddDate(0, 0, -7), nil
	case KindMonth:
		return ref.AddDate(0, -1, 0), nil
	case KindYear:
		return ref.AddDate(-1, 0, 0), nil
	default:
		return time.Time{}, perr.InvalidArgf("previousN not supported for %s periods", k)
	}
}

// lastN builds the n periods of kind k ending with the one containing ref,
// oldest first
func lastN(k Kind, n int, ref time.Time) ([]Period, error) {
	if k == KindRange {
		return nil, perr.InvalidArgf("lastN not supported for range periods")
	}
	last, err := New(k, ref)
	if err != nil {
		return nil, err
	}
	out := make([]Period, n)
	cur := last
	for i := n - 1; i >= 0; i-- {
		out[i] = cur
		prev, err := previousRef(k, cur.Start())
		if err != nil {
			return nil, err
		}
		cur, err = New(k, prev)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// span enumerates every period of kind k touched by [start,end]
func span(k Kind, start, end time.Time) ([]Period, error) {
	s, e := day(start), day(end)
	if e.Before(s) {
		return nil, perr.InvalidArgf("span end before start")
	}
	var out []Period
	cur, err := New(k, s)
	if err != nil {
		return nil, err
	}
	for {
		out = append(out, cur)
		next := cur.End().AddDate(0, 0, 1)
		if next.After(e) {
			return out, nil
		}
		cur, err = New(k, next)
		if err != nil {
			return nil, err
		}
	}
}
