package reminder

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/hireloop/scheduling/internal/model"
	"github.com/hireloop/scheduling/internal/outbox"
	"github.com/hireloop/scheduling/libs/db"
	otelx "github.com/hireloop/scheduling/libs/otel"
)

// SlotStatusSource reads a booking's current status so the worker can skip
// reminders for bookings that were cancelled or moved after enqueue.
type SlotStatusSource interface {
	SlotStatus(ctx context.Context, slotID string) (model.SlotStatus, error)
}

type Worker struct {
	pool      *db.Pool
	repo      *Repository
	slots     SlotStatusSource
	outbox    *outbox.Repository
	logger    *slog.Logger
	interval  time.Duration
	batchSize int
	backoff   time.Duration
}

type WorkerConfig struct {
	Interval  time.Duration
	BatchSize int
	Backoff   time.Duration
}

func NewWorker(pool *db.Pool, repo *Repository, slots SlotStatusSource, outboxRepo *outbox.Repository, logger *slog.Logger, cfg WorkerConfig) *Worker {
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 1 * time.Minute
	}
	return &Worker{
		pool:      pool,
		repo:      repo,
		slots:     slots,
		outbox:    outboxRepo,
		logger:    logger,
		interval:  cfg.Interval,
		batchSize: cfg.BatchSize,
		backoff:   cfg.Backoff,
	}
}

func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.processBatch(ctx); err != nil {
				w.logger.Error("reminder batch failed", "err", err)
			}
		}
	}
}

func (w *Worker) processBatch(ctx context.Context) error {
	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	jobs, err := w.repo.FetchDue(ctx, tx, w.batchSize)
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		return tx.Commit(ctx)
	}

	var done []int64
	var failed []Job
	for _, job := range jobs {
		jobCtx := otelx.ContextWithTraceContext(ctx, job.Traceparent, job.Tracestate)

		// Re-read the booking at fire time; a cancel or reschedule since
		// enqueue makes this job a no-op.
		status, err := w.slots.SlotStatus(jobCtx, job.BookingID)
		if err != nil {
			failed = append(failed, job)
			continue
		}
		if status != model.SlotBooked {
			w.logger.Debug("reminder skipped; booking no longer active",
				"booking_id", job.BookingID, "offset", job.OffsetLabel, "status", status)
			done = append(done, job.ID)
			continue
		}

		evt, err := outbox.NewEvent(outbox.TopicReminderDue, job.BookingID, job.Payload)
		if err != nil {
			failed = append(failed, job)
			continue
		}
		if err := w.outbox.Insert(jobCtx, tx, evt); err != nil {
			failed = append(failed, job)
			continue
		}
		done = append(done, job.ID)
	}

	if err := w.repo.MarkProcessed(ctx, tx, done); err != nil {
		return err
	}

	for _, job := range failed {
		jobCtx := otelx.ContextWithTraceContext(ctx, job.Traceparent, job.Tracestate)
		attempts := job.Attempts + 1
		nextRunAt := time.Now().UTC().Add(w.backoff)
		if err := w.repo.MarkFailed(ctx, tx, job.ID, attempts, job.MaxAttempts, nextRunAt, "reminder dispatch failed"); err != nil {
			return err
		}
		if attempts >= job.MaxAttempts {
			if err := w.enqueueDLQ(jobCtx, tx, job, "max attempts reached"); err != nil {
				return err
			}
		}
	}

	return tx.Commit(ctx)
}

func (w *Worker) enqueueDLQ(ctx context.Context, tx pgx.Tx, job Job, reason string) error {
	payload := map[string]any{
		"booking_id":   job.BookingID,
		"offset":       job.OffsetLabel,
		"remind_at":    job.RemindAt.UTC().Format(time.RFC3339),
		"error_reason": reason,
		"failed_at":    time.Now().UTC().Format(time.RFC3339),
	}
	evt, err := outbox.NewEvent("scheduling.reminder.dlq.v1", job.BookingID, payload)
	if err != nil {
		return err
	}
	return w.outbox.Insert(ctx, tx, evt)
}
