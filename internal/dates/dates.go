// Package dates turns the date and date-time text stored by the market tables
// into comparable instants, and ranks or range-filters rows by them.
//
// Values that match none of the accepted layouts are never an error: Rank
// keeps them and orders them below every parseable instant, FilterRange drops
// them.
package dates

import (
	"cmp"
	"slices"
	"strings"
	"time"
)

// Layouts are tried in this order and the first successful parse wins.
var layouts = []string{
	time.DateOnly,
	"2006-01-02 15:04",
	time.DateTime,
	"2006-01-02T15:04:05",
	"02/01/2006",
	"02/01/2006 15:04:05",
}

// Direction selects the ordering used by Rank.
type Direction int

const (
	Descending Direction = iota
	Ascending
)

// ParseDirection maps "asc"/"desc" (any case) to a Direction. Anything else
// reports false.
func ParseDirection(s string) (Direction, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "asc":
		return Ascending, true
	case "desc":
		return Descending, true
	}
	return Descending, false
}

func (d Direction) String() string {
	if d == Ascending {
		return "asc"
	}
	return "desc"
}

// Record is a row keyed by column name.
type Record map[string]any

// Parse converts text into an instant. The boolean is false when text is
// empty or matches no accepted layout exactly. time.Parse tolerates a
// fractional seconds suffix the layouts do not list, so a parse only counts
// when formatting the result gives back the same text.
func Parse(text string) (time.Time, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return time.Time{}, false
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, text); err == nil && t.Format(layout) == text {
			return t, true
		}
	}
	return time.Time{}, false
}

// ParseValue is Parse for loosely typed column values. nil and non-text
// values are unparseable; time.Time passes through.
func ParseValue(v any) (time.Time, bool) {
	switch val := v.(type) {
	case string:
		return Parse(val)
	case []byte:
		return Parse(string(val))
	case *string:
		if val == nil {
			return time.Time{}, false
		}
		return Parse(*val)
	case time.Time:
		return val, !val.IsZero()
	default:
		return time.Time{}, false
	}
}

// key is the sort key of one row. Unparseable keys compare below everything.
type key struct {
	t  time.Time
	ok bool
}

func compareKeys(a, b key) int {
	switch {
	case !a.ok && !b.ok:
		return 0
	case !a.ok:
		return -1
	case !b.ok:
		return 1
	}
	return a.t.Compare(b.t)
}

// RankBy returns a new slice with items stably sorted by the instant found in
// key(item). Every input item appears exactly once in the output.
func RankBy[T any](items []T, keyFn func(T) string, dir Direction) []T {
	return rank(items, func(item T) key {
		t, ok := Parse(keyFn(item))
		return key{t: t, ok: ok}
	}, dir)
}

// Rank is RankBy over records using the named field.
func Rank(records []Record, field string, dir Direction) []Record {
	return rank(records, func(r Record) key {
		t, ok := ParseValue(r[field])
		return key{t: t, ok: ok}
	}, dir)
}

func rank[T any](items []T, keyFn func(T) key, dir Direction) []T {
	type entry struct {
		item T
		k    key
	}
	entries := make([]entry, len(items))
	for i, item := range items {
		entries[i] = entry{item: item, k: keyFn(item)}
	}

	slices.SortStableFunc(entries, func(a, b entry) int {
		c := compareKeys(a.k, b.k)
		if dir == Descending {
			return -c
		}
		return c
	})

	out := make([]T, len(entries))
	for i, e := range entries {
		out[i] = e.item
	}
	return out
}

// ParseBound parses an optional range bound. Empty text is an absent bound
// (ok, present=false); text that does not parse reports ok=false.
func ParseBound(text string) (t time.Time, present, ok bool) {
	if strings.TrimSpace(text) == "" {
		return time.Time{}, false, true
	}
	t, ok = Parse(text)
	return t, ok, ok
}

// Range is an inclusive pair of optional bounds.
type Range struct {
	From, To       time.Time
	HasFrom, HasTo bool
}

// NewRange builds a Range from bound text. Bounds that are empty or do not
// parse are treated as absent.
func NewRange(from, to string) Range {
	var r Range
	r.From, r.HasFrom, _ = ParseBound(from)
	r.To, r.HasTo, _ = ParseBound(to)
	return r
}

// Contains reports whether t lies within the bounds.
func (r Range) Contains(t time.Time) bool {
	if r.HasFrom && t.Before(r.From) {
		return false
	}
	if r.HasTo && t.After(r.To) {
		return false
	}
	return true
}

// FilterRangeBy keeps items whose key parses and falls inside r. Input order
// is preserved. Unparseable keys are always excluded.
func FilterRangeBy[T any](items []T, keyFn func(T) string, r Range) []T {
	out := make([]T, 0, len(items))
	for _, item := range items {
		t, ok := Parse(keyFn(item))
		if ok && r.Contains(t) {
			out = append(out, item)
		}
	}
	return out
}

// FilterRange keeps the records whose field parses and lies within [from, to].
func FilterRange(records []Record, field, from, to string) []Record {
	r := NewRange(from, to)
	out := make([]Record, 0, len(records))
	for _, rec := range records {
		t, ok := ParseValue(rec[field])
		if ok && r.Contains(t) {
			out = append(out, rec)
		}
	}
	return out
}

var periods = map[string]int{
	"week":    7,
	"month":   30,
	"3months": 90,
	"6months": 180,
	"year":    365,
	"3years":  1095,
}

// PeriodToDays maps a period name (case-insensitive) to a day count.
func PeriodToDays(name string) (int, bool) {
	days, ok := periods[strings.ToLower(name)]
	return days, ok
}

// PeriodNames lists the accepted period names, shortest first.
func PeriodNames() []string {
	names := make([]string, 0, len(periods))
	for n := range periods {
		names = append(names, n)
	}
	slices.SortFunc(names, func(a, b string) int { return cmp.Compare(periods[a], periods[b]) })
	return names
}

// Latest returns the value with the greatest instant. Unparseable values are
// only returned when nothing parses.
func Latest(values []string) (string, bool) {
	if len(values) == 0 {
		return "", false
	}
	ranked := RankBy(values, func(s string) string { return s }, Descending)
	return ranked[0], true
}

// Format renders an instant as a date, or as a date-time when it carries a
// time of day.
func Format(t time.Time) string {
	if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 {
		return t.Format(time.DateOnly)
	}
	return t.Format(time.DateTime)
}
