// Package interval implements half-open [start, end) time interval algebra.
// All operations treat touching intervals (a.End == b.Start) as adjacent, not
// overlapping, matching the half-open convention used across the engine.
package interval

import (
	"sort"
	"time"
)

// Span is a half-open UTC time range [Start, End).
type Span struct {
	Start time.Time
	End   time.Time
}

func (s Span) Valid() bool {
	return s.Start.Before(s.End)
}

func (s Span) Duration() time.Duration {
	return s.End.Sub(s.Start)
}

// Overlaps reports whether the two half-open spans share any instant.
func (s Span) Overlaps(o Span) bool {
	return s.Start.Before(o.End) && o.Start.Before(s.End)
}

// Contains reports whether o lies entirely within s.
func (s Span) Contains(o Span) bool {
	return !o.Start.Before(s.Start) && !o.End.After(s.End)
}

func (s Span) Equal(o Span) bool {
	return s.Start.Equal(o.Start) && s.End.Equal(o.End)
}

// Expand grows the span by the given margins on each side.
func (s Span) Expand(before, after time.Duration) Span {
	return Span{Start: s.Start.Add(-before), End: s.End.Add(after)}
}

// Normalize drops invalid spans and sorts the rest by start time.
func Normalize(spans []Span) []Span {
	out := make([]Span, 0, len(spans))
	for _, s := range spans {
		if s.Valid() {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Start.Equal(out[j].Start) {
			return out[i].End.Before(out[j].End)
		}
		return out[i].Start.Before(out[j].Start)
	})
	return out
}

// Merge coalesces overlapping and touching spans into a sorted,
// non-overlapping sequence.
func Merge(spans []Span) []Span {
	sorted := Normalize(spans)
	if len(sorted) == 0 {
		return nil
	}
	merged := []Span{sorted[0]}
	for _, s := range sorted[1:] {
		last := &merged[len(merged)-1]
		if !s.Start.After(last.End) {
			if s.End.After(last.End) {
				last.End = s.End
			}
			continue
		}
		merged = append(merged, s)
	}
	return merged
}

// Subtract removes every range in remove from base, preserving order.
// Both inputs may be unsorted; the result is sorted and non-overlapping.
func Subtract(base, remove []Span) []Span {
	removed := Merge(remove)
	var out []Span
	for _, b := range Merge(base) {
		cur := b
		for _, r := range removed {
			if !cur.Overlaps(r) {
				continue
			}
			if r.Start.After(cur.Start) {
				out = append(out, Span{Start: cur.Start, End: r.Start})
			}
			if r.End.Before(cur.End) {
				cur = Span{Start: r.End, End: cur.End}
			} else {
				cur = Span{}
				break
			}
		}
		if cur.Valid() {
			out = append(out, cur)
		}
	}
	return out
}

// Intersect returns the ranges present in both a and b.
func Intersect(a, b []Span) []Span {
	as := Merge(a)
	bs := Merge(b)
	var out []Span
	i, j := 0, 0
	for i < len(as) && j < len(bs) {
		start := as[i].Start
		if bs[j].Start.After(start) {
			start = bs[j].Start
		}
		end := as[i].End
		if bs[j].End.Before(end) {
			end = bs[j].End
		}
		if start.Before(end) {
			out = append(out, Span{Start: start, End: end})
		}
		if as[i].End.Before(bs[j].End) {
			i++
		} else {
			j++
		}
	}
	return out
}

// IntersectAll folds Intersect over every set left to right. An empty input
// yields nil; a single set is returned merged.
func IntersectAll(sets ...[]Span) []Span {
	if len(sets) == 0 {
		return nil
	}
	acc := Merge(sets[0])
	for _, s := range sets[1:] {
		acc = Intersect(acc, s)
		if len(acc) == 0 {
			return nil
		}
	}
	return acc
}

// Clamp trims spans to the window, discarding anything fully outside it.
func Clamp(spans []Span, window Span) []Span {
	var out []Span
	for _, s := range spans {
		if !s.Overlaps(window) {
			continue
		}
		c := s
		if c.Start.Before(window.Start) {
			c.Start = window.Start
		}
		if c.End.After(window.End) {
			c.End = window.End
		}
		if c.Valid() {
			out = append(out, c)
		}
	}
	return out
}
