// Package reminder schedules and dispatches booking reminders. Jobs are keyed
// by (booking id, offset label) so a reschedule replaces the pending set
// instead of stacking duplicates.
package reminder

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"

	otelx "github.com/hireloop/scheduling/libs/otel"
)

type Job struct {
	ID          int64
	BookingID   string
	OffsetLabel string
	RemindAt    time.Time
	Payload     map[string]any
	Traceparent string
	Tracestate  string
	Attempts    int
	MaxAttempts int
	NextRunAt   time.Time
}

type Repository struct{}

func NewRepository() *Repository {
	return &Repository{}
}

// Upsert inserts a pending job, or resets an existing one for the same
// (booking, offset) pair to the new remind time.
func (r *Repository) Upsert(ctx context.Context, tx pgx.Tx, job Job) error {
	payload, err := json.Marshal(job.Payload)
	if err != nil {
		return err
	}
	traceparent, tracestate := otelx.TraceContextStrings(ctx)
	_, err = tx.Exec(ctx, `
		INSERT INTO reminder_jobs (booking_id, offset_label, remind_at, payload, next_run_at, traceparent, tracestate)
		VALUES ($1, $2, $3, $4, $3, $5, $6)
		ON CONFLICT (booking_id, offset_label) DO UPDATE
		SET remind_at = EXCLUDED.remind_at,
			payload = EXCLUDED.payload,
			next_run_at = EXCLUDED.next_run_at,
			status = 'pending',
			attempts = 0,
			last_error = '',
			traceparent = EXCLUDED.traceparent,
			tracestate = EXCLUDED.tracestate,
			updated_at = now()
	`, job.BookingID, job.OffsetLabel, job.RemindAt, payload, traceparent, tracestate)
	return err
}

// DeletePending drops every not-yet-dispatched job for a booking.
func (r *Repository) DeletePending(ctx context.Context, tx pgx.Tx, bookingID string) error {
	_, err := tx.Exec(ctx, `
		DELETE FROM reminder_jobs
		WHERE booking_id = $1 AND status = 'pending'
	`, bookingID)
	return err
}

func (r *Repository) FetchDue(ctx context.Context, tx pgx.Tx, limit int) ([]Job, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, booking_id, offset_label, remind_at, payload, traceparent, tracestate, attempts, max_attempts, next_run_at
		FROM reminder_jobs
		WHERE status = 'pending' AND next_run_at <= now()
		ORDER BY next_run_at
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		var j Job
		var raw []byte
		if err := rows.Scan(&j.ID, &j.BookingID, &j.OffsetLabel, &j.RemindAt, &raw, &j.Traceparent, &j.Tracestate, &j.Attempts, &j.MaxAttempts, &j.NextRunAt); err != nil {
			return nil, err
		}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &j.Payload); err != nil {
				return nil, err
			}
		} else {
			j.Payload = map[string]any{}
		}
		jobs = append(jobs, j)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return jobs, nil
}

func (r *Repository) MarkProcessed(ctx context.Context, tx pgx.Tx, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := tx.Exec(ctx, `
		UPDATE reminder_jobs
		SET status = 'processed', updated_at = now()
		WHERE id = ANY($1)
	`, ids)
	return err
}

func (r *Repository) MarkFailed(ctx context.Context, tx pgx.Tx, id int64, attempts int, maxAttempts int, nextRunAt time.Time, lastError string) error {
	status := "pending"
	if attempts >= maxAttempts {
		status = "failed"
	}
	_, err := tx.Exec(ctx, `
		UPDATE reminder_jobs
		SET attempts = $2,
		    status = $3,
		    next_run_at = $4,
		    last_error = $5,
		    updated_at = now()
		WHERE id = $1
	`, id, attempts, status, nextRunAt, lastError)
	return err
}
