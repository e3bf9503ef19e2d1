package availability

import (
	"time"

	"github.com/hireloop/scheduling/internal/interval"
	"github.com/hireloop/scheduling/internal/model"
)

// BusySpan is one merged unavailable range with the sources that produced it.
type BusySpan struct {
	Span    interval.Span
	Sources []string
}

// FreeIntervals carves a person's free time out of their working hours.
//
// Busy ranges are expanded by the rule's buffers before subtraction, so a slot
// can neither start inside the pre-buffer nor end inside the post-buffer of a
// busy block. Anything earlier than now + minimum notice is also removed.
//
// When the rule allows overlapping bookings, internal busy time is kept free;
// the slot generator is then responsible for suppressing exact duplicates of
// already-booked slots.
func FreeIntervals(working []interval.Span, busy []BusySpan, now time.Time, rule model.SchedulingRule) []interval.Span {
	before := time.Duration(rule.BufferBeforeMins) * time.Minute
	after := time.Duration(rule.BufferAfterMins) * time.Minute

	expanded := make([]interval.Span, 0, len(busy))
	for _, b := range busy {
		if rule.AllowOverlapping && internalOnly(b) {
			continue
		}
		expanded = append(expanded, b.Span.Expand(before, after))
	}

	free := interval.Subtract(working, expanded)

	horizon := now.Add(time.Duration(rule.MinNoticeMins) * time.Minute)
	out := free[:0]
	for _, f := range free {
		if !f.End.After(horizon) {
			continue
		}
		if f.Start.Before(horizon) {
			f.Start = horizon
		}
		out = append(out, f)
	}
	return out
}

func internalOnly(b BusySpan) bool {
	for _, s := range b.Sources {
		if s != model.BusySourceInternal {
			return false
		}
	}
	return len(b.Sources) > 0
}
