package booking

import (
	"github.com/hireloop/scheduling/internal/availability"
	"github.com/hireloop/scheduling/internal/interval"
)

// fitsFree reports whether span sits entirely inside one free interval.
func fitsFree(free []interval.Span, span interval.Span) bool {
	for _, f := range free {
		if f.Contains(span) {
			return true
		}
	}
	return false
}

// advisoryConflicts lists busy ranges overlapping span. Ranges exactly equal
// to ignore are skipped, so a booking being moved does not conflict with its
// own old interval.
func advisoryConflicts(personID string, busy []availability.BusySpan, span, ignore interval.Span) []Conflict {
	var sources []string
	for _, b := range busy {
		if !b.Span.Overlaps(span) {
			continue
		}
		if b.Span.Equal(ignore) {
			continue
		}
		sources = appendDistinct(sources, b.Sources...)
	}
	if len(sources) == 0 {
		return nil
	}
	return []Conflict{{PersonID: personID, Sources: sources}}
}

func appendDistinct(dst []string, src ...string) []string {
	for _, s := range src {
		found := false
		for _, existing := range dst {
			if existing == s {
				found = true
				break
			}
		}
		if !found {
			dst = append(dst, s)
		}
	}
	return dst
}
