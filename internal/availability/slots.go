package availability

import (
	"time"

	"github.com/hireloop/scheduling/internal/interval"
)

// GenerateSlots intersects every participant's free-interval set and slices
// the result into consecutive fixed-length candidate windows, ascending by
// start. Trailing remainders shorter than slotLen are discarded.
//
// isBookedDuplicate, when non-nil, suppresses candidates that duplicate an
// already-booked slot for the same exact interval and participant set. It is
// only consulted for rules that allow overlapping bookings.
func GenerateSlots(freeSets [][]interval.Span, slotLen time.Duration, isBookedDuplicate func(interval.Span) bool) []interval.Span {
	if slotLen <= 0 || len(freeSets) == 0 {
		return nil
	}

	common := interval.IntersectAll(freeSets...)

	var out []interval.Span
	for _, span := range common {
		for t := span.Start; !t.Add(slotLen).After(span.End); t = t.Add(slotLen) {
			candidate := interval.Span{Start: t, End: t.Add(slotLen)}
			if isBookedDuplicate != nil && isBookedDuplicate(candidate) {
				continue
			}
			out = append(out, candidate)
		}
	}
	return out
}
