package availability

import (
	"testing"
	"time"

	"github.com/hireloop/scheduling/internal/interval"
)

func TestGenerateSlots_SlicesFixedLength(t *testing.T) {
	free := [][]interval.Span{{{Start: utc(9, 0), End: utc(12, 0)}}}

	slots := GenerateSlots(free, 30*time.Minute, nil)
	if len(slots) != 6 {
		t.Fatalf("expected 6 slots in 3h, got %d", len(slots))
	}
	if !slots[0].Start.Equal(utc(9, 0)) || !slots[5].End.Equal(utc(12, 0)) {
		t.Fatalf("unexpected slot bounds: first=%v last=%v", slots[0], slots[5])
	}
}

func TestGenerateSlots_DiscardsShortRemainder(t *testing.T) {
	free := [][]interval.Span{{{Start: utc(9, 0), End: utc(9, 50)}}}

	slots := GenerateSlots(free, 30*time.Minute, nil)
	if len(slots) != 1 {
		t.Fatalf("expected 1 slot with 20m remainder dropped, got %d", len(slots))
	}
}

func TestGenerateSlots_IntersectsAllParticipants(t *testing.T) {
	free := [][]interval.Span{
		{{Start: utc(9, 0), End: utc(12, 0)}},
		{{Start: utc(10, 0), End: utc(13, 0)}},
		{{Start: utc(9, 30), End: utc(11, 0)}},
	}

	slots := GenerateSlots(free, 30*time.Minute, nil)
	// Common window is 10:00-11:00.
	if len(slots) != 2 {
		t.Fatalf("expected 2 slots in the common hour, got %d", len(slots))
	}
	if !slots[0].Start.Equal(utc(10, 0)) || !slots[1].End.Equal(utc(11, 0)) {
		t.Fatalf("unexpected intersection slots: %v", slots)
	}
}

func TestGenerateSlots_OneParticipantFullyBusyMeansEmpty(t *testing.T) {
	free := [][]interval.Span{
		{{Start: utc(9, 0), End: utc(12, 0)}},
		nil,
	}
	if slots := GenerateSlots(free, 30*time.Minute, nil); len(slots) != 0 {
		t.Fatalf("expected no slots, got %v", slots)
	}
}

func TestGenerateSlots_SuppressesBookedDuplicates(t *testing.T) {
	free := [][]interval.Span{{{Start: utc(9, 0), End: utc(10, 30)}}}
	taken := interval.Span{Start: utc(9, 30), End: utc(10, 0)}

	slots := GenerateSlots(free, 30*time.Minute, func(c interval.Span) bool {
		return c.Equal(taken)
	})
	if len(slots) != 2 {
		t.Fatalf("expected duplicate suppressed, got %d slots", len(slots))
	}
	for _, s := range slots {
		if s.Equal(taken) {
			t.Fatalf("booked duplicate %v leaked into candidates", s)
		}
	}
}

func TestGenerateSlots_ZeroLength(t *testing.T) {
	free := [][]interval.Span{{{Start: utc(9, 0), End: utc(12, 0)}}}
	if slots := GenerateSlots(free, 0, nil); slots != nil {
		t.Fatalf("expected nil for zero slot length, got %v", slots)
	}
}
