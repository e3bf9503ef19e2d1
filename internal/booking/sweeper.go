package booking

import (
	"context"
	"log/slog"
	"time"

	"github.com/hireloop/scheduling/internal/storage"
)

// Sweeper periodically expires AVAILABLE slots whose window has passed, so
// stale candidates never show up as bookable.
type Sweeper struct {
	slots    *storage.SlotRepository
	logger   *slog.Logger
	interval time.Duration
}

func NewSweeper(slots *storage.SlotRepository, logger *slog.Logger, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{slots: slots, logger: logger, interval: interval}
}

func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			swept, err := s.slots.ExpireAvailableBefore(ctx, time.Now().UTC())
			if err != nil {
				s.logger.Error("slot expiry sweep failed", "err", err)
				continue
			}
			if swept > 0 {
				s.logger.Info("expired stale slots", "count", swept)
			}
		}
	}
}
