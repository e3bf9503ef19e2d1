package availability

import (
	"testing"
	"time"

	"github.com/hireloop/scheduling/internal/interval"
	"github.com/hireloop/scheduling/internal/model"
)

func weekdayPattern(tz string, entries ...model.WorkingHoursEntry) model.WorkingHoursPattern {
	return model.WorkingHoursPattern{
		ID:       "p1",
		TenantID: "t1",
		OwnerID:  "alice",
		Timezone: tz,
		Entries:  entries,
	}
}

func monToFri(start, end string) []model.WorkingHoursEntry {
	var entries []model.WorkingHoursEntry
	for wd := 1; wd <= 5; wd++ {
		entries = append(entries, model.WorkingHoursEntry{Weekday: wd, StartLocal: start, EndLocal: end})
	}
	return entries
}

func TestProjectWorkingHours_UTCWeek(t *testing.T) {
	p := weekdayPattern("UTC", monToFri("09:00", "17:00")...)
	// Mon 2026-03-02 through Sun 2026-03-08.
	window := interval.Span{
		Start: time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC),
	}

	spans, err := ProjectWorkingHours([]model.WorkingHoursPattern{p}, window)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(spans) != 5 {
		t.Fatalf("expected 5 working days, got %d", len(spans))
	}
	first := spans[0]
	if !first.Start.Equal(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected Monday 09:00 UTC, got %s", first.Start)
	}
	if first.Duration() != 8*time.Hour {
		t.Fatalf("expected 8h day, got %s", first.Duration())
	}
}

func TestProjectWorkingHours_DSTTransition(t *testing.T) {
	// US DST starts 2026-03-08: New York is UTC-5 before, UTC-4 after.
	p := weekdayPattern("America/New_York",
		model.WorkingHoursEntry{Weekday: 5, StartLocal: "09:00", EndLocal: "17:00"}, // Fri Mar 6
		model.WorkingHoursEntry{Weekday: 1, StartLocal: "09:00", EndLocal: "17:00"}, // Mon Mar 9
	)
	window := interval.Span{
		Start: time.Date(2026, 3, 6, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
	}

	spans, err := ProjectWorkingHours([]model.WorkingHoursPattern{p}, window)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(spans) != 2 {
		t.Fatalf("expected 2 occurrences, got %d", len(spans))
	}
	if !spans[0].Start.Equal(time.Date(2026, 3, 6, 14, 0, 0, 0, time.UTC)) {
		t.Fatalf("pre-DST Friday should start 14:00 UTC, got %s", spans[0].Start)
	}
	if !spans[1].Start.Equal(time.Date(2026, 3, 9, 13, 0, 0, 0, time.UTC)) {
		t.Fatalf("post-DST Monday should start 13:00 UTC, got %s", spans[1].Start)
	}
}

func TestProjectWorkingHours_LocalDayStartsBeforeWindow(t *testing.T) {
	// Tokyo Monday 09:00 is Sunday 24:00 UTC; a window starting Monday 00:00
	// UTC must still include Monday Tokyo hours.
	p := weekdayPattern("Asia/Tokyo",
		model.WorkingHoursEntry{Weekday: 1, StartLocal: "09:00", EndLocal: "18:00"},
	)
	window := interval.Span{
		Start: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), // Sunday UTC
		End:   time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC),
	}

	spans, err := ProjectWorkingHours([]model.WorkingHoursPattern{p}, window)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(spans) != 1 {
		t.Fatalf("expected 1 occurrence, got %d", len(spans))
	}
	// Tokyo Monday 09:00 = Monday 00:00 UTC.
	if !spans[0].Start.Equal(time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected Monday 00:00 UTC start, got %s", spans[0].Start)
	}
}

func TestProjectWorkingHours_EffectiveBounds(t *testing.T) {
	from := time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC) // Wednesday
	p := weekdayPattern("UTC", monToFri("09:00", "17:00")...)
	p.EffectiveFrom = &from

	window := interval.Span{
		Start: time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 3, 7, 0, 0, 0, 0, time.UTC),
	}
	spans, err := ProjectWorkingHours([]model.WorkingHoursPattern{p}, window)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Mon and Tue are before effectiveFrom; Wed, Thu, Fri remain.
	if len(spans) != 3 {
		t.Fatalf("expected 3 occurrences, got %d", len(spans))
	}
}

func TestProjectWorkingHours_LaterEffectiveRangeWins(t *testing.T) {
	older := weekdayPattern("UTC", monToFri("09:00", "17:00")...)
	newerFrom := time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)
	newer := weekdayPattern("UTC", monToFri("10:00", "12:00")...)
	newer.ID = "p2"
	newer.EffectiveFrom = &newerFrom

	window := interval.Span{
		Start: time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 3, 6, 0, 0, 0, 0, time.UTC),
	}
	spans, err := ProjectWorkingHours([]model.WorkingHoursPattern{older, newer}, window)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Mon+Tue from the older pattern (8h), Wed+Thu from the newer (2h).
	if len(spans) != 4 {
		t.Fatalf("expected 4 occurrences, got %d", len(spans))
	}
	if spans[2].Duration() != 2*time.Hour {
		t.Fatalf("Wednesday should use the newer 2h pattern, got %s", spans[2].Duration())
	}
}

func TestProjectWorkingHours_NoPatternMeansNoHours(t *testing.T) {
	window := interval.Span{
		Start: time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC),
	}
	spans, err := ProjectWorkingHours(nil, window)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(spans) != 0 {
		t.Fatalf("expected no spans, got %v", spans)
	}
}

func TestProjectWorkingHours_InvalidZone(t *testing.T) {
	p := weekdayPattern("Mars/Olympus", monToFri("09:00", "17:00")...)
	window := interval.Span{
		Start: time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC),
	}
	if _, err := ProjectWorkingHours([]model.WorkingHoursPattern{p}, window); !IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestProjectWorkingHours_StartAfterEnd(t *testing.T) {
	p := weekdayPattern("UTC", model.WorkingHoursEntry{Weekday: 1, StartLocal: "17:00", EndLocal: "09:00"})
	window := interval.Span{
		Start: time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC),
	}
	if _, err := ProjectWorkingHours([]model.WorkingHoursPattern{p}, window); !IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
