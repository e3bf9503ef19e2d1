package availability

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hireloop/scheduling/internal/calendar"
	"github.com/hireloop/scheduling/internal/interval"
	"github.com/hireloop/scheduling/internal/model"
)

// InternalBusySource yields the engine's own booked intervals for a person.
// These are authoritative and a failure here fails the whole request.
type InternalBusySource interface {
	BookedIntervals(ctx context.Context, personID string, from, to time.Time) ([]model.BusyInterval, error)
}

// AccountSource lists a person's linked external calendar accounts.
type AccountSource interface {
	AccountsForPerson(ctx context.Context, personID string) ([]model.CalendarAccount, error)
}

// BusySet is one person's merged busy time. Degraded lists provider accounts
// whose busy data could not be fetched and was treated as empty.
type BusySet struct {
	Spans    []BusySpan
	Degraded []string
}

// Aggregator merges internal bookings with every linked provider's busy
// intervals into one normalized set per person.
type Aggregator struct {
	internal  InternalBusySource
	accounts  AccountSource
	providers *calendar.Registry
	timeout   time.Duration
	logger    *slog.Logger
}

func NewAggregator(internal InternalBusySource, accounts AccountSource, providers *calendar.Registry, timeout time.Duration, logger *slog.Logger) *Aggregator {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Aggregator{
		internal:  internal,
		accounts:  accounts,
		providers: providers,
		timeout:   timeout,
		logger:    logger,
	}
}

// BusyFor fetches and merges all busy time for one person in [from, to).
// External provider calls fan out concurrently, each under its own timeout;
// a slow or broken account degrades to an empty contribution and never fails
// the request.
func (a *Aggregator) BusyFor(ctx context.Context, personID string, from, to time.Time) (BusySet, error) {
	internal, err := a.internal.BookedIntervals(ctx, personID, from, to)
	if err != nil {
		return BusySet{}, err
	}

	accounts, err := a.accounts.AccountsForPerson(ctx, personID)
	if err != nil {
		// Linked-account lookup failing means external data is unknown, the
		// same degradation as every account timing out.
		a.logger.Warn("calendar account lookup failed; using internal busy only",
			"person_id", personID, "err", err)
		accounts = nil
	}

	raw := make([]model.BusyInterval, 0, len(internal))
	raw = append(raw, internal...)

	var degraded []string
	if len(accounts) > 0 {
		results := make([][]model.BusyInterval, len(accounts))
		failed := make([]bool, len(accounts))

		g, gctx := errgroup.WithContext(ctx)
		for i, acct := range accounts {
			g.Go(func() error {
				busy, err := a.fetchAccountBusy(gctx, acct, from, to)
				if err != nil {
					a.logger.Warn("calendar provider degraded; treating account as free",
						"person_id", personID,
						"provider", acct.Provider,
						"account_id", acct.ID,
						"err", err)
					failed[i] = true
					return nil
				}
				results[i] = busy
				return nil
			})
		}
		// Goroutines swallow provider errors, so Wait only propagates context
		// cancellation of the parent request.
		if err := g.Wait(); err != nil {
			return BusySet{}, err
		}
		for i, acct := range accounts {
			if failed[i] {
				degraded = append(degraded, acct.Provider+":"+acct.ID)
				continue
			}
			raw = append(raw, results[i]...)
		}
	}

	return BusySet{Spans: mergeBusy(raw), Degraded: degraded}, nil
}

func (a *Aggregator) fetchAccountBusy(ctx context.Context, acct model.CalendarAccount, from, to time.Time) ([]model.BusyInterval, error) {
	if acct.Revoked {
		return nil, calendar.ErrTokenExpired
	}
	provider, err := a.providers.For(acct.Provider)
	if err != nil {
		return nil, err
	}
	fetchCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	return provider.BusySlots(fetchCtx, acct, from, to)
}

// mergeBusy sorts raw intervals and sweep-merges overlapping or touching ones,
// accumulating the distinct sources of each merged range for diagnostics.
func mergeBusy(raw []model.BusyInterval) []BusySpan {
	valid := raw[:0]
	for _, b := range raw {
		if b.Start.Before(b.End) {
			valid = append(valid, b)
		}
	}
	if len(valid) == 0 {
		return nil
	}
	sort.Slice(valid, func(i, j int) bool { return valid[i].Start.Before(valid[j].Start) })

	merged := []BusySpan{{
		Span:    interval.Span{Start: valid[0].Start, End: valid[0].End},
		Sources: []string{valid[0].Source},
	}}
	for _, b := range valid[1:] {
		last := &merged[len(merged)-1]
		if !b.Start.After(last.Span.End) {
			if b.End.After(last.Span.End) {
				last.Span.End = b.End
			}
			last.Sources = appendSource(last.Sources, b.Source)
			continue
		}
		merged = append(merged, BusySpan{
			Span:    interval.Span{Start: b.Start, End: b.End},
			Sources: []string{b.Source},
		})
	}
	return merged
}

func appendSource(sources []string, s string) []string {
	for _, existing := range sources {
		if existing == s {
			return sources
		}
	}
	return append(sources, s)
}
