package reminder

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/hireloop/scheduling/internal/model"
)

// Offset is one reminder lead time before the booking starts.
type Offset struct {
	Label  string
	Before time.Duration
}

// DefaultOffsets matches the standard notification plan: a day-before nudge
// and a final 30-minute heads-up.
var DefaultOffsets = []Offset{
	{Label: "24h", Before: 24 * time.Hour},
	{Label: "30m", Before: 30 * time.Minute},
}

// Scheduler derives reminder jobs from bookings. It runs inside the booking
// transaction so reminders exist exactly when the booking does.
type Scheduler struct {
	repo    *Repository
	offsets []Offset
	now     func() time.Time
}

func NewScheduler(repo *Repository, offsets []Offset) *Scheduler {
	if len(offsets) == 0 {
		offsets = DefaultOffsets
	}
	return &Scheduler{repo: repo, offsets: offsets, now: time.Now}
}

// WithClock overrides the time source. Tests only.
func (s *Scheduler) WithClock(now func() time.Time) *Scheduler {
	s.now = now
	return s
}

// JobsFor derives the jobs a booking needs. Offsets whose remind time is
// already in the past are skipped rather than fired late.
func (s *Scheduler) JobsFor(slot model.Slot) []Job {
	now := s.now().UTC()
	participants := make([]map[string]string, 0, len(slot.Participants))
	for _, p := range slot.Participants {
		participants = append(participants, map[string]string{
			"type":  string(p.Type),
			"id":    p.ID,
			"email": p.Email,
			"phone": p.Phone,
		})
	}

	var jobs []Job
	for _, off := range s.offsets {
		remindAt := slot.StartAt.UTC().Add(-off.Before)
		if !remindAt.After(now) {
			continue
		}
		jobs = append(jobs, Job{
			BookingID:   slot.ID,
			OffsetLabel: off.Label,
			RemindAt:    remindAt,
			Payload: map[string]any{
				"booking_id":   slot.ID,
				"tenant_id":    slot.TenantID,
				"interview_id": slot.InterviewID,
				"offset":       off.Label,
				"start_at":     slot.StartAt.UTC().Format(time.RFC3339),
				"end_at":       slot.EndAt.UTC().Format(time.RFC3339),
				"timezone":     slot.Timezone,
				"participants": participants,
			},
		})
	}
	return jobs
}

// Schedule replaces the booking's pending reminder set inside tx.
func (s *Scheduler) Schedule(ctx context.Context, tx pgx.Tx, slot model.Slot) error {
	for _, job := range s.JobsFor(slot) {
		if err := s.repo.Upsert(ctx, tx, job); err != nil {
			return err
		}
	}
	return nil
}

// Cancel drops pending reminders for a booking, e.g. after cancellation.
func (s *Scheduler) Cancel(ctx context.Context, tx pgx.Tx, bookingID string) error {
	return s.repo.DeletePending(ctx, tx, bookingID)
}
