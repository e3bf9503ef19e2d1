// Package booking turns candidate slots into confirmed bookings. All state
// transitions run in one transaction with the database constraints as the
// final arbiter of conflicts, so two racing requests can never both win an
// interval.
package booking

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/hireloop/scheduling/internal/availability"
	"github.com/hireloop/scheduling/internal/interval"
	"github.com/hireloop/scheduling/internal/model"
	"github.com/hireloop/scheduling/internal/outbox"
	"github.com/hireloop/scheduling/internal/reminder"
	"github.com/hireloop/scheduling/internal/storage"
	"github.com/hireloop/scheduling/libs/db"
)

type Coordinator struct {
	pool      *db.Pool
	slots     *storage.SlotRepository
	avail     *availability.Service
	agg       *availability.Aggregator
	reminders *reminder.Scheduler
	outbox    *outbox.Repository
	logger    *slog.Logger
	now       func() time.Time
}

func NewCoordinator(pool *db.Pool, slots *storage.SlotRepository, avail *availability.Service, agg *availability.Aggregator, reminders *reminder.Scheduler, outboxRepo *outbox.Repository, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		pool:      pool,
		slots:     slots,
		avail:     avail,
		agg:       agg,
		reminders: reminders,
		outbox:    outboxRepo,
		logger:    logger,
		now:       time.Now,
	}
}

// WithClock overrides the time source. Tests only.
func (c *Coordinator) WithClock(now func() time.Time) *Coordinator {
	c.now = now
	return c
}

type BookRequest struct {
	TenantID string
	// SlotID books a previously generated slot; when empty, [Start, End) is
	// booked as a direct interval.
	SlotID       string
	Start        time.Time
	End          time.Time
	Participants []model.Participant
	InterviewID  string
	RuleID       string
	Timezone     string
	Metadata     map[string]string
}

// Book confirms a booking, either claiming a generated AVAILABLE slot or
// creating a BOOKED slot for a direct interval. Re-booking the same slot for
// the same interview is an idempotent no-op.
func (c *Coordinator) Book(ctx context.Context, req BookRequest) (model.Slot, error) {
	if req.TenantID == "" {
		return model.Slot{}, &availability.ValidationError{Field: "tenant_id", Msg: "required"}
	}
	if req.SlotID != "" {
		return c.bookSlot(ctx, req)
	}
	return c.bookInterval(ctx, req)
}

func (c *Coordinator) bookSlot(ctx context.Context, req BookRequest) (model.Slot, error) {
	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return model.Slot{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	slot, err := c.slots.GetForUpdate(ctx, tx, req.TenantID, req.SlotID)
	if storage.IsNotFound(err) {
		return model.Slot{}, &NotFoundError{Resource: "slot", ID: req.SlotID}
	}
	if err != nil {
		return model.Slot{}, err
	}

	switch slot.Status {
	case model.SlotAvailable:
		// proceed
	case model.SlotBooked:
		if slot.InterviewID == req.InterviewID && req.InterviewID != "" {
			return slot, nil
		}
		return model.Slot{}, &ConflictError{Msg: "slot already booked"}
	default:
		return model.Slot{}, &ConflictError{Msg: fmt.Sprintf("slot is %s and cannot be booked", slot.Status)}
	}

	ok, err := c.slots.MarkBooked(ctx, tx, req.TenantID, req.SlotID, req.InterviewID, req.Metadata)
	if storage.IsConflict(err) {
		return model.Slot{}, &ConflictError{Msg: "a participant is already booked in this interval", Conflicts: participantConflicts(slot.Participants)}
	}
	if err != nil {
		return model.Slot{}, err
	}
	if !ok {
		return model.Slot{}, &ConflictError{Msg: "slot already booked"}
	}

	slot.Status = model.SlotBooked
	slot.InterviewID = req.InterviewID
	slot.Metadata = req.Metadata

	c.scheduleReminders(ctx, tx, slot)
	if err := c.emit(ctx, tx, outbox.TopicSlotBooked, slot, nil); err != nil {
		return model.Slot{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		if storage.IsConflict(err) {
			return model.Slot{}, &ConflictError{Msg: "a participant is already booked in this interval", Conflicts: participantConflicts(slot.Participants)}
		}
		return model.Slot{}, err
	}

	c.logger.Info("slot booked", "tenant_id", slot.TenantID, "booking_id", slot.ID, "interview_id", slot.InterviewID)
	return slot, nil
}

func (c *Coordinator) bookInterval(ctx context.Context, req BookRequest) (model.Slot, error) {
	span := interval.Span{Start: req.Start.UTC(), End: req.End.UTC()}
	if !span.Valid() {
		return model.Slot{}, &availability.ValidationError{Field: "interval", Msg: "start must be before end"}
	}
	if len(req.Participants) == 0 {
		return model.Slot{}, &availability.ValidationError{Field: "participants", Msg: "at least one participant is required"}
	}
	if span.Duration() < availability.MinSlotMins*time.Minute {
		return model.Slot{}, &availability.ValidationError{Field: "interval", Msg: fmt.Sprintf("must be at least %d minutes", availability.MinSlotMins)}
	}

	rule, err := c.avail.Rule(ctx, req.TenantID, req.RuleID)
	if err != nil {
		return model.Slot{}, err
	}
	if notice := c.now().UTC().Add(time.Duration(rule.MinNoticeMins) * time.Minute); span.Start.Before(notice) {
		return model.Slot{}, &availability.ValidationError{Field: "interval", Msg: "violates the minimum notice period"}
	}

	// A direct interval is validated against live availability; an interval a
	// participant cannot attend is a hard conflict.
	var conflicts []Conflict
	for _, p := range req.Participants {
		free, err := c.avail.FreeFor(ctx, req.TenantID, p.ID, span, rule)
		if err != nil {
			return model.Slot{}, err
		}
		if fitsFree(free, span) {
			continue
		}
		conflicts = append(conflicts, c.conflictDetail(ctx, p.ID, span))
	}
	if len(conflicts) > 0 {
		return model.Slot{}, &ConflictError{Msg: "interval is not bookable for every participant", Conflicts: conflicts}
	}

	tz := req.Timezone
	if tz == "" {
		tz = "UTC"
	}
	slot := model.Slot{
		TenantID:     req.TenantID,
		InterviewID:  req.InterviewID,
		Participants: req.Participants,
		StartAt:      span.Start,
		EndAt:        span.End,
		Timezone:     tz,
		Status:       model.SlotBooked,
		Metadata:     req.Metadata,
	}

	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return model.Slot{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	slot.ID, err = c.slots.Create(ctx, tx, &slot, rule.AllowOverlapping)
	if storage.IsConflict(err) {
		return model.Slot{}, &ConflictError{Msg: "a participant was booked concurrently", Conflicts: participantConflicts(req.Participants)}
	}
	if err != nil {
		return model.Slot{}, err
	}

	c.scheduleReminders(ctx, tx, slot)
	if err := c.emit(ctx, tx, outbox.TopicSlotBooked, slot, nil); err != nil {
		return model.Slot{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		if storage.IsConflict(err) {
			return model.Slot{}, &ConflictError{Msg: "a participant was booked concurrently", Conflicts: participantConflicts(req.Participants)}
		}
		return model.Slot{}, err
	}

	c.logger.Info("interval booked", "tenant_id", slot.TenantID, "booking_id", slot.ID, "interview_id", slot.InterviewID)
	return slot, nil
}

type RescheduleRequest struct {
	TenantID  string
	BookingID string
	NewStart  time.Time
	NewEnd    time.Time // optional; zero keeps the booking's duration
	RuleID    string
}

// rescheduleSpan derives the moved interval. Duration is preserved unless an
// explicit new end requests a different one.
func rescheduleSpan(old interval.Span, newStart, newEnd time.Time) (interval.Span, error) {
	span := interval.Span{Start: newStart.UTC(), End: newStart.UTC().Add(old.Duration())}
	if !newEnd.IsZero() {
		span.End = newEnd.UTC()
	}
	if !span.Valid() {
		return interval.Span{}, &availability.ValidationError{Field: "new_end_at", Msg: "must be after new_start_at"}
	}
	if span.Duration() < availability.MinSlotMins*time.Minute {
		return interval.Span{}, &availability.ValidationError{Field: "new_end_at", Msg: fmt.Sprintf("must be at least %d minutes after new_start_at", availability.MinSlotMins)}
	}
	return span, nil
}

// Reschedule moves a booking to a new start, keeping its id stable and its
// duration unchanged unless an explicit new end is given.
// Overlaps with other participants' calendars are advisory; the per-person
// exclusion constraint still blocks genuine double-booking of a person.
func (c *Coordinator) Reschedule(ctx context.Context, req RescheduleRequest) (model.Slot, []Conflict, error) {
	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return model.Slot{}, nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	slot, err := c.slots.GetForUpdate(ctx, tx, req.TenantID, req.BookingID)
	if storage.IsNotFound(err) {
		return model.Slot{}, nil, &NotFoundError{Resource: "booking", ID: req.BookingID}
	}
	if err != nil {
		return model.Slot{}, nil, err
	}
	if slot.Status != model.SlotBooked {
		return model.Slot{}, nil, &ConflictError{Msg: fmt.Sprintf("booking is %s and cannot be rescheduled", slot.Status)}
	}

	oldSpan := interval.Span{Start: slot.StartAt, End: slot.EndAt}
	newSpan, err := rescheduleSpan(oldSpan, req.NewStart, req.NewEnd)
	if err != nil {
		return model.Slot{}, nil, err
	}

	rule, err := c.avail.Rule(ctx, req.TenantID, req.RuleID)
	if err != nil {
		return model.Slot{}, nil, err
	}
	if notice := c.now().UTC().Add(time.Duration(rule.MinNoticeMins) * time.Minute); newSpan.Start.Before(notice) {
		return model.Slot{}, nil, &availability.ValidationError{Field: "new_start", Msg: "violates the minimum notice period"}
	}

	var advisory []Conflict
	for _, p := range slot.Participants {
		busy, err := c.agg.BusyFor(ctx, p.ID, newSpan.Start, newSpan.End)
		if err != nil {
			return model.Slot{}, nil, err
		}
		advisory = append(advisory, advisoryConflicts(p.ID, busy.Spans, newSpan, oldSpan)...)
	}

	err = c.slots.UpdateInterval(ctx, tx, req.TenantID, req.BookingID, newSpan.Start, newSpan.End)
	if storage.IsConflict(err) {
		return model.Slot{}, nil, &ConflictError{Msg: "a participant is already booked in the new interval", Conflicts: participantConflicts(slot.Participants)}
	}
	if err != nil {
		return model.Slot{}, nil, err
	}

	moved := slot
	moved.StartAt = newSpan.Start
	moved.EndAt = newSpan.End

	// The job key is (booking id, offset), so scheduling the moved booking
	// replaces the old reminders; deleting first clears offsets that no
	// longer apply at the new start time.
	if err := c.reminders.Cancel(ctx, tx, moved.ID); err != nil {
		return model.Slot{}, nil, err
	}
	c.scheduleReminders(ctx, tx, moved)

	if err := c.emit(ctx, tx, outbox.TopicBookingRescheduled, moved, map[string]any{
		"old_start_at": oldSpan.Start.Format(time.RFC3339),
		"old_end_at":   oldSpan.End.Format(time.RFC3339),
	}); err != nil {
		return model.Slot{}, nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		if storage.IsConflict(err) {
			return model.Slot{}, nil, &ConflictError{Msg: "a participant is already booked in the new interval", Conflicts: participantConflicts(slot.Participants)}
		}
		return model.Slot{}, nil, err
	}

	c.logger.Info("booking rescheduled",
		"tenant_id", moved.TenantID,
		"booking_id", moved.ID,
		"new_start", moved.StartAt,
		"advisory_conflicts", len(advisory))
	return moved, advisory, nil
}

// Cancel releases a booking or an available slot. Cancelling an already
// cancelled booking returns it unchanged without emitting anything.
func (c *Coordinator) Cancel(ctx context.Context, tenantID, bookingID, reason string) (model.Slot, error) {
	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return model.Slot{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	slot, err := c.slots.GetForUpdate(ctx, tx, tenantID, bookingID)
	if storage.IsNotFound(err) {
		return model.Slot{}, &NotFoundError{Resource: "booking", ID: bookingID}
	}
	if err != nil {
		return model.Slot{}, err
	}
	if slot.Status == model.SlotCancelled {
		return slot, nil
	}

	if err := c.slots.Cancel(ctx, tx, tenantID, bookingID, reason); err != nil {
		return model.Slot{}, err
	}
	if err := c.reminders.Cancel(ctx, tx, bookingID); err != nil {
		return model.Slot{}, err
	}

	slot.Status = model.SlotCancelled
	slot.CancelReason = reason
	if err := c.emit(ctx, tx, outbox.TopicBookingCancelled, slot, map[string]any{"reason": reason}); err != nil {
		return model.Slot{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Slot{}, err
	}

	c.logger.Info("booking cancelled", "tenant_id", tenantID, "booking_id", bookingID, "reason", reason)
	return slot, nil
}

// CreateSlots persists computed candidate slots as AVAILABLE rows so they can
// be claimed by id later.
func (c *Coordinator) CreateSlots(ctx context.Context, slots []model.Slot, allowOverlap bool) ([]model.Slot, error) {
	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	out := make([]model.Slot, 0, len(slots))
	for _, slot := range slots {
		slot.Status = model.SlotAvailable
		slot.ID, err = c.slots.Create(ctx, tx, &slot, allowOverlap)
		if err != nil {
			return nil, err
		}
		out = append(out, slot)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return out, nil
}

// scheduleReminders runs in a savepoint: a reminder failure is logged and the
// booking commits without reminders.
func (c *Coordinator) scheduleReminders(ctx context.Context, tx pgx.Tx, slot model.Slot) {
	sp, err := tx.Begin(ctx)
	if err != nil {
		c.logger.Warn("reminder scheduling skipped", "booking_id", slot.ID, "err", err)
		return
	}
	if err := c.reminders.Schedule(ctx, sp, slot); err != nil {
		_ = sp.Rollback(ctx)
		c.logger.Warn("reminder scheduling failed; booking continues", "booking_id", slot.ID, "err", err)
		return
	}
	if err := sp.Commit(ctx); err != nil {
		c.logger.Warn("reminder scheduling failed; booking continues", "booking_id", slot.ID, "err", err)
	}
}

func (c *Coordinator) emit(ctx context.Context, tx pgx.Tx, topic string, slot model.Slot, extra map[string]any) error {
	payload := map[string]any{
		"booking_id":   slot.ID,
		"tenant_id":    slot.TenantID,
		"interview_id": slot.InterviewID,
		"start_at":     slot.StartAt.UTC().Format(time.RFC3339),
		"end_at":       slot.EndAt.UTC().Format(time.RFC3339),
		"timezone":     slot.Timezone,
		"participants": slot.Participants,
	}
	for k, v := range extra {
		payload[k] = v
	}
	evt, err := outbox.NewEvent(topic, slot.ID, payload)
	if err != nil {
		return err
	}
	return c.outbox.Insert(ctx, tx, evt)
}

// conflictDetail attaches busy sources to a failed free-time check. A person
// with no overlapping busy time was simply outside working hours.
func (c *Coordinator) conflictDetail(ctx context.Context, personID string, span interval.Span) Conflict {
	busy, err := c.agg.BusyFor(ctx, personID, span.Start, span.End)
	if err != nil {
		return Conflict{PersonID: personID}
	}
	conflicts := advisoryConflicts(personID, busy.Spans, span, interval.Span{})
	if len(conflicts) == 1 {
		return conflicts[0]
	}
	return Conflict{PersonID: personID, Sources: []string{"working_hours"}}
}

func participantConflicts(participants []model.Participant) []Conflict {
	out := make([]Conflict, 0, len(participants))
	for _, p := range participants {
		out = append(out, Conflict{PersonID: p.ID})
	}
	return out
}
