package interval

import (
	"testing"
	"time"
)

var day = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

func at(h, m int) time.Time {
	return day.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute)
}

func span(h1, m1, h2, m2 int) Span {
	return Span{Start: at(h1, m1), End: at(h2, m2)}
}

func assertSpans(t *testing.T, got, want []Span) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("expected %d spans, got %d: %v", len(want), len(got), got)
	}
	for i := range want {
		if !got[i].Equal(want[i]) {
			t.Fatalf("span %d: expected %v-%v, got %v-%v",
				i, want[i].Start, want[i].End, got[i].Start, got[i].End)
		}
	}
}

func TestMerge_CoalescesOverlappingAndTouching(t *testing.T) {
	got := Merge([]Span{
		span(13, 0, 14, 0),
		span(9, 0, 10, 0),
		span(10, 0, 11, 0), // touches the 9-10 span
		span(9, 30, 10, 30),
	})
	assertSpans(t, got, []Span{span(9, 0, 11, 0), span(13, 0, 14, 0)})
}

func TestMerge_DropsInvalid(t *testing.T) {
	got := Merge([]Span{span(10, 0, 10, 0), span(11, 0, 10, 0), span(9, 0, 9, 30)})
	assertSpans(t, got, []Span{span(9, 0, 9, 30)})
}

func TestSubtract_SplitsBase(t *testing.T) {
	got := Subtract(
		[]Span{span(9, 0, 17, 0)},
		[]Span{span(10, 0, 10, 30), span(12, 0, 13, 0)},
	)
	assertSpans(t, got, []Span{
		span(9, 0, 10, 0),
		span(10, 30, 12, 0),
		span(13, 0, 17, 0),
	})
}

func TestSubtract_RemoveCoversBase(t *testing.T) {
	got := Subtract([]Span{span(10, 0, 11, 0)}, []Span{span(9, 0, 12, 0)})
	if len(got) != 0 {
		t.Fatalf("expected no spans, got %v", got)
	}
}

func TestSubtract_RemoveTouchingIsNoop(t *testing.T) {
	got := Subtract([]Span{span(9, 0, 10, 0)}, []Span{span(10, 0, 11, 0)})
	assertSpans(t, got, []Span{span(9, 0, 10, 0)})
}

func TestIntersect_Pairwise(t *testing.T) {
	got := Intersect(
		[]Span{span(9, 0, 12, 0), span(14, 0, 16, 0)},
		[]Span{span(11, 0, 15, 0)},
	)
	assertSpans(t, got, []Span{span(11, 0, 12, 0), span(14, 0, 15, 0)})
}

func TestIntersectAll_ThreeParticipants(t *testing.T) {
	got := IntersectAll(
		[]Span{span(9, 0, 17, 0)},
		[]Span{span(10, 0, 12, 0), span(13, 0, 18, 0)},
		[]Span{span(11, 0, 14, 0)},
	)
	assertSpans(t, got, []Span{span(11, 0, 12, 0), span(13, 0, 14, 0)})
}

func TestIntersectAll_EmptySetShortCircuits(t *testing.T) {
	got := IntersectAll([]Span{span(9, 0, 17, 0)}, nil)
	if len(got) != 0 {
		t.Fatalf("expected no spans, got %v", got)
	}
}

func TestClamp(t *testing.T) {
	got := Clamp(
		[]Span{span(8, 0, 10, 0), span(16, 30, 18, 0), span(19, 0, 20, 0)},
		span(9, 0, 17, 0),
	)
	assertSpans(t, got, []Span{span(9, 0, 10, 0), span(16, 30, 17, 0)})
}

func TestExpand(t *testing.T) {
	got := span(10, 0, 11, 0).Expand(15*time.Minute, 30*time.Minute)
	want := span(9, 45, 11, 30)
	if !got.Equal(want) {
		t.Fatalf("expected %v-%v, got %v-%v", want.Start, want.End, got.Start, got.End)
	}
}

func TestOverlaps_HalfOpen(t *testing.T) {
	if span(9, 0, 10, 0).Overlaps(span(10, 0, 11, 0)) {
		t.Fatal("touching spans must not overlap")
	}
	if !span(9, 0, 10, 1).Overlaps(span(10, 0, 11, 0)) {
		t.Fatal("expected overlap")
	}
}
