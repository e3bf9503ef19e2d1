package availability

import (
	"testing"
	"time"

	"github.com/hireloop/scheduling/internal/interval"
	"github.com/hireloop/scheduling/internal/model"
)

func utc(h, m int) time.Time {
	return time.Date(2026, 3, 2, h, m, 0, 0, time.UTC)
}

func busySpan(start, end time.Time, sources ...string) BusySpan {
	return BusySpan{Span: interval.Span{Start: start, End: end}, Sources: sources}
}

func TestFreeIntervals_SubtractsBusy(t *testing.T) {
	working := []interval.Span{{Start: utc(9, 0), End: utc(17, 0)}}
	busy := []BusySpan{busySpan(utc(10, 0), utc(10, 30), "google")}
	now := utc(0, 0)

	free := FreeIntervals(working, busy, now, model.SchedulingRule{})
	if len(free) != 2 {
		t.Fatalf("expected 2 free ranges, got %d", len(free))
	}
	if !free[0].End.Equal(utc(10, 0)) || !free[1].Start.Equal(utc(10, 30)) {
		t.Fatalf("unexpected free ranges: %v", free)
	}
}

func TestFreeIntervals_BuffersExpandBusy(t *testing.T) {
	working := []interval.Span{{Start: utc(9, 0), End: utc(17, 0)}}
	busy := []BusySpan{busySpan(utc(10, 0), utc(11, 0), "google")}
	rule := model.SchedulingRule{BufferBeforeMins: 15, BufferAfterMins: 15}

	free := FreeIntervals(working, busy, utc(0, 0), rule)
	if len(free) != 2 {
		t.Fatalf("expected 2 free ranges, got %d", len(free))
	}
	if !free[0].End.Equal(utc(9, 45)) {
		t.Fatalf("pre-buffer should end free time at 09:45, got %s", free[0].End)
	}
	if !free[1].Start.Equal(utc(11, 15)) {
		t.Fatalf("post-buffer should resume free time at 11:15, got %s", free[1].Start)
	}
}

func TestFreeIntervals_MinNoticeClipsStart(t *testing.T) {
	working := []interval.Span{{Start: utc(9, 0), End: utc(17, 0)}}
	rule := model.SchedulingRule{MinNoticeMins: 120}
	now := utc(8, 30)

	free := FreeIntervals(working, nil, now, rule)
	if len(free) != 1 {
		t.Fatalf("expected 1 free range, got %d", len(free))
	}
	if !free[0].Start.Equal(utc(10, 30)) {
		t.Fatalf("free time should start at now+notice 10:30, got %s", free[0].Start)
	}
}

func TestFreeIntervals_MinNoticeSwallowsWholeDay(t *testing.T) {
	working := []interval.Span{{Start: utc(9, 0), End: utc(10, 0)}}
	rule := model.SchedulingRule{MinNoticeMins: 600}

	free := FreeIntervals(working, nil, utc(8, 0), rule)
	if len(free) != 0 {
		t.Fatalf("expected no free time, got %v", free)
	}
}

func TestFreeIntervals_AllowOverlappingKeepsInternalBusyFree(t *testing.T) {
	working := []interval.Span{{Start: utc(9, 0), End: utc(12, 0)}}
	busy := []BusySpan{
		busySpan(utc(9, 0), utc(10, 0), model.BusySourceInternal),
		busySpan(utc(10, 0), utc(10, 30), "google"),
	}
	rule := model.SchedulingRule{AllowOverlapping: true}

	free := FreeIntervals(working, busy, utc(0, 0), rule)
	if len(free) != 2 {
		t.Fatalf("expected 2 free ranges, got %d", len(free))
	}
	// Internal booking 09:00-10:00 stays free; only the external block is cut.
	if !free[0].Start.Equal(utc(9, 0)) || !free[0].End.Equal(utc(10, 0)) {
		t.Fatalf("internal busy should stay free, got %v", free[0])
	}
}

func TestFreeIntervals_AllowOverlappingStillHonorsMixedBusy(t *testing.T) {
	working := []interval.Span{{Start: utc(9, 0), End: utc(12, 0)}}
	// A merged range that includes an external source is still blocking.
	busy := []BusySpan{busySpan(utc(9, 0), utc(10, 0), model.BusySourceInternal, "google")}
	rule := model.SchedulingRule{AllowOverlapping: true}

	free := FreeIntervals(working, busy, utc(0, 0), rule)
	if len(free) != 1 || !free[0].Start.Equal(utc(10, 0)) {
		t.Fatalf("mixed-source busy must still block, got %v", free)
	}
}
