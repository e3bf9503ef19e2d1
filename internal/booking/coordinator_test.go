package booking

import (
	"testing"
	"time"

	"github.com/hireloop/scheduling/internal/availability"
	"github.com/hireloop/scheduling/internal/interval"
)

func TestRescheduleSpan_PreservesDurationByDefault(t *testing.T) {
	old := interval.Span{Start: at(9, 0), End: at(10, 0)}
	newStart := at(14, 0)

	span, err := rescheduleSpan(old, newStart, time.Time{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !span.Start.Equal(newStart) || !span.End.Equal(at(15, 0)) {
		t.Fatalf("expected 14:00-15:00, got %s-%s", span.Start, span.End)
	}
}

func TestRescheduleSpan_ExplicitEndChangesDuration(t *testing.T) {
	old := interval.Span{Start: at(9, 0), End: at(10, 0)}

	span, err := rescheduleSpan(old, at(14, 0), at(14, 30))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if span.Duration() != 30*time.Minute {
		t.Fatalf("explicit end should shorten the booking to 30m, got %s", span.Duration())
	}
}

func TestRescheduleSpan_EndBeforeStartRejected(t *testing.T) {
	old := interval.Span{Start: at(9, 0), End: at(10, 0)}

	if _, err := rescheduleSpan(old, at(14, 0), at(13, 0)); !availability.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestRescheduleSpan_BelowFloorRejected(t *testing.T) {
	old := interval.Span{Start: at(9, 0), End: at(10, 0)}

	if _, err := rescheduleSpan(old, at(14, 0), at(14, 10)); !availability.IsValidation(err) {
		t.Fatalf("expected validation error for a 10m booking, got %v", err)
	}
}
