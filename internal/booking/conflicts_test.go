package booking

import (
	"testing"
	"time"

	"github.com/hireloop/scheduling/internal/availability"
	"github.com/hireloop/scheduling/internal/interval"
)

func at(h, m int) time.Time {
	return time.Date(2026, 3, 2, h, m, 0, 0, time.UTC)
}

func span(sh, sm, eh, em int) interval.Span {
	return interval.Span{Start: at(sh, sm), End: at(eh, em)}
}

func TestFitsFree(t *testing.T) {
	free := []interval.Span{span(9, 0, 12, 0), span(14, 0, 16, 0)}

	if !fitsFree(free, span(10, 0, 11, 0)) {
		t.Fatal("contained span should fit")
	}
	if fitsFree(free, span(11, 30, 14, 30)) {
		t.Fatal("span straddling two free ranges must not fit")
	}
	if fitsFree(free, span(16, 0, 17, 0)) {
		t.Fatal("span outside free time must not fit")
	}
	if fitsFree(nil, span(10, 0, 11, 0)) {
		t.Fatal("no free time fits nothing")
	}
}

func TestAdvisoryConflicts_OverlapReported(t *testing.T) {
	busy := []availability.BusySpan{
		{Span: span(10, 0, 11, 0), Sources: []string{"google"}},
		{Span: span(13, 0, 14, 0), Sources: []string{"internal"}},
	}

	got := advisoryConflicts("bob", busy, span(10, 30, 11, 30), interval.Span{})
	if len(got) != 1 {
		t.Fatalf("expected one conflict, got %d", len(got))
	}
	if got[0].PersonID != "bob" || len(got[0].Sources) != 1 || got[0].Sources[0] != "google" {
		t.Fatalf("unexpected conflict: %+v", got[0])
	}
}

func TestAdvisoryConflicts_IgnoresOwnOldInterval(t *testing.T) {
	old := span(10, 0, 10, 30)
	busy := []availability.BusySpan{{Span: old, Sources: []string{"internal"}}}

	// Moving a booking 15 minutes later overlaps its own old interval only.
	if got := advisoryConflicts("bob", busy, span(10, 15, 10, 45), old); len(got) != 0 {
		t.Fatalf("own old interval should be ignored, got %+v", got)
	}
}

func TestAdvisoryConflicts_MergesSourcesAcrossSpans(t *testing.T) {
	busy := []availability.BusySpan{
		{Span: span(10, 0, 10, 30), Sources: []string{"google"}},
		{Span: span(10, 45, 11, 0), Sources: []string{"internal", "google"}},
	}

	got := advisoryConflicts("bob", busy, span(10, 0, 11, 0), interval.Span{})
	if len(got) != 1 || len(got[0].Sources) != 2 {
		t.Fatalf("expected deduped sources from both spans, got %+v", got)
	}
}

func TestConflictErrorMessage(t *testing.T) {
	err := &ConflictError{Msg: "interval is not bookable for every participant", Conflicts: []Conflict{{PersonID: "alice"}, {PersonID: "bob"}}}
	want := "interval is not bookable for every participant: alice, bob"
	if err.Error() != want {
		t.Fatalf("got %q, want %q", err.Error(), want)
	}
	if !IsConflict(err) {
		t.Fatal("IsConflict should match")
	}
	if IsConflict(&NotFoundError{Resource: "slot", ID: "x"}) {
		t.Fatal("IsConflict must not match NotFoundError")
	}
}
