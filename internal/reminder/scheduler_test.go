package reminder

import (
	"testing"
	"time"

	"github.com/hireloop/scheduling/internal/model"
)

func testSlot(start time.Time) model.Slot {
	return model.Slot{
		ID:       "slot-1",
		TenantID: "t1",
		StartAt:  start,
		EndAt:    start.Add(30 * time.Minute),
		Timezone: "UTC",
		Status:   model.SlotBooked,
		Participants: []model.Participant{
			{Type: model.ParticipantUser, ID: "alice", Email: "alice@example.com"},
		},
	}
}

func TestJobsFor_DefaultOffsets(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := NewScheduler(NewRepository(), nil).WithClock(func() time.Time { return now })

	start := now.Add(48 * time.Hour)
	jobs := s.JobsFor(testSlot(start))
	if len(jobs) != 2 {
		t.Fatalf("expected 24h and 30m jobs, got %d", len(jobs))
	}
	if jobs[0].OffsetLabel != "24h" || !jobs[0].RemindAt.Equal(start.Add(-24*time.Hour)) {
		t.Fatalf("unexpected first job: %+v", jobs[0])
	}
	if jobs[1].OffsetLabel != "30m" || !jobs[1].RemindAt.Equal(start.Add(-30*time.Minute)) {
		t.Fatalf("unexpected second job: %+v", jobs[1])
	}
}

func TestJobsFor_SkipsPastOffsets(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := NewScheduler(NewRepository(), nil).WithClock(func() time.Time { return now })

	// Booking 2h out: the 24h reminder is already in the past.
	jobs := s.JobsFor(testSlot(now.Add(2 * time.Hour)))
	if len(jobs) != 1 {
		t.Fatalf("expected only the 30m job, got %d", len(jobs))
	}
	if jobs[0].OffsetLabel != "30m" {
		t.Fatalf("expected 30m job, got %s", jobs[0].OffsetLabel)
	}
}

func TestJobsFor_LastMinuteBookingHasNoReminders(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := NewScheduler(NewRepository(), nil).WithClock(func() time.Time { return now })

	if jobs := s.JobsFor(testSlot(now.Add(10 * time.Minute))); len(jobs) != 0 {
		t.Fatalf("expected no jobs, got %d", len(jobs))
	}
}

func TestJobsFor_PayloadCarriesBookingDetails(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := NewScheduler(NewRepository(), []Offset{{Label: "1h", Before: time.Hour}}).
		WithClock(func() time.Time { return now })

	jobs := s.JobsFor(testSlot(now.Add(3 * time.Hour)))
	if len(jobs) != 1 {
		t.Fatalf("expected 1 job, got %d", len(jobs))
	}
	payload := jobs[0].Payload
	if payload["booking_id"] != "slot-1" || payload["tenant_id"] != "t1" {
		t.Fatalf("unexpected payload: %v", payload)
	}
	participants, ok := payload["participants"].([]map[string]string)
	if !ok || len(participants) != 1 || participants[0]["email"] != "alice@example.com" {
		t.Fatalf("unexpected participants payload: %v", payload["participants"])
	}
}
