package availability

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hireloop/scheduling/internal/interval"
	"github.com/hireloop/scheduling/internal/model"
)

// MinSlotMins is the floor for any slot duration, matching the scheduling
// rule invariant defaultSlotMins >= 15.
const MinSlotMins = 15

// PatternSource yields working-hours patterns for a person, falling back to
// the tenant default when the person has none.
type PatternSource interface {
	PatternsFor(ctx context.Context, tenantID, personID string) ([]model.WorkingHoursPattern, error)
}

// RuleSource resolves scheduling rules for a tenant.
type RuleSource interface {
	RuleByID(ctx context.Context, tenantID, ruleID string) (model.SchedulingRule, error)
	DefaultRule(ctx context.Context, tenantID string) (model.SchedulingRule, bool, error)
}

// BookedLookup finds BOOKED slots matching an exact participant set, used to
// suppress duplicate candidates under overlap-allowing rules.
type BookedLookup interface {
	BookedIdenticalSpans(ctx context.Context, tenantID string, participants []model.Participant, from, to time.Time) ([]interval.Span, error)
}

type Request struct {
	TenantID     string
	Participants []model.Participant
	From         time.Time
	To           time.Time
	DurationMins int
	RuleID       string // empty selects the tenant default
	Timezone     string // display timezone for returned slots
}

type Result struct {
	Slots []model.Slot
	// Degraded lists provider accounts whose busy data was unavailable and
	// treated as empty. The computation still succeeded.
	Degraded []string
	Rule     model.SchedulingRule
}

// Service computes bookable candidate slots for a set of participants. The
// whole pipeline is read-only and idempotent for unchanged inputs.
type Service struct {
	patterns PatternSource
	rules    RuleSource
	agg      *Aggregator
	booked   BookedLookup
	logger   *slog.Logger
	now      func() time.Time
}

func NewService(patterns PatternSource, rules RuleSource, agg *Aggregator, booked BookedLookup, logger *slog.Logger) *Service {
	return &Service{
		patterns: patterns,
		rules:    rules,
		agg:      agg,
		booked:   booked,
		logger:   logger,
		now:      time.Now,
	}
}

// WithClock overrides the time source. Tests only.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Compute runs the full pipeline: project working hours, aggregate busy time
// per participant concurrently, apply the scheduling rule, intersect all
// participants, and slice into candidate slots.
func (s *Service) Compute(ctx context.Context, req Request) (Result, error) {
	if err := validateRequest(req); err != nil {
		return Result{}, err
	}

	rule, err := s.resolveRule(ctx, req)
	if err != nil {
		return Result{}, err
	}

	duration := req.DurationMins
	if duration == 0 {
		duration = rule.DefaultSlotMins
	}
	if duration < MinSlotMins {
		return Result{}, &ValidationError{Field: "duration_mins", Msg: fmt.Sprintf("must be at least %d minutes", MinSlotMins)}
	}

	window := interval.Span{Start: req.From.UTC(), End: req.To.UTC()}
	now := s.now().UTC()

	// One logical task per participant; each fans out its own provider calls.
	freeSets := make([][]interval.Span, len(req.Participants))
	degradedSets := make([][]string, len(req.Participants))

	g, gctx := errgroup.WithContext(ctx)
	for i, p := range req.Participants {
		g.Go(func() error {
			free, degraded, err := s.freeFor(gctx, req.TenantID, p.ID, window, now, rule)
			if err != nil {
				return err
			}
			freeSets[i] = free
			degradedSets[i] = degraded
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	var degraded []string
	for _, d := range degradedSets {
		degraded = append(degraded, d...)
	}

	var isDup func(interval.Span) bool
	if rule.AllowOverlapping && s.booked != nil {
		booked, err := s.booked.BookedIdenticalSpans(ctx, req.TenantID, req.Participants, window.Start, window.End)
		if err != nil {
			return Result{}, err
		}
		taken := make(map[string]struct{}, len(booked))
		for _, b := range booked {
			taken[spanKey(b)] = struct{}{}
		}
		isDup = func(c interval.Span) bool {
			_, ok := taken[spanKey(c)]
			return ok
		}
	}

	spans := GenerateSlots(freeSets, time.Duration(duration)*time.Minute, isDup)

	tz := req.Timezone
	if tz == "" {
		tz = "UTC"
	}
	slots := make([]model.Slot, 0, len(spans))
	for _, sp := range spans {
		slots = append(slots, model.Slot{
			TenantID:     req.TenantID,
			Participants: req.Participants,
			StartAt:      sp.Start,
			EndAt:        sp.End,
			Timezone:     tz,
			Status:       model.SlotAvailable,
		})
	}
	return Result{Slots: slots, Degraded: degraded, Rule: rule}, nil
}

// FreeFor exposes one participant's free intervals; the booking coordinator
// uses it to validate direct interval bookings.
func (s *Service) FreeFor(ctx context.Context, tenantID, personID string, window interval.Span, rule model.SchedulingRule) ([]interval.Span, error) {
	free, _, err := s.freeFor(ctx, tenantID, personID, window, s.now().UTC(), rule)
	return free, err
}

// Rule resolves the governing rule for a request without running the
// pipeline.
func (s *Service) Rule(ctx context.Context, tenantID, ruleID string) (model.SchedulingRule, error) {
	return s.resolveRule(ctx, Request{TenantID: tenantID, RuleID: ruleID})
}

func (s *Service) freeFor(ctx context.Context, tenantID, personID string, window interval.Span, now time.Time, rule model.SchedulingRule) ([]interval.Span, []string, error) {
	patterns, err := s.patterns.PatternsFor(ctx, tenantID, personID)
	if err != nil {
		return nil, nil, err
	}
	working, err := ProjectWorkingHours(patterns, window)
	if err != nil {
		return nil, nil, err
	}
	if len(working) == 0 {
		return nil, nil, nil
	}

	// Busy is fetched wider than the window by the rule's buffers, so a block
	// ending just before the window still projects its post-buffer into it
	// (and one starting just after it projects its pre-buffer back).
	busyFrom := window.Start.Add(-time.Duration(rule.BufferAfterMins) * time.Minute)
	busyTo := window.End.Add(time.Duration(rule.BufferBeforeMins) * time.Minute)
	busy, err := s.agg.BusyFor(ctx, personID, busyFrom, busyTo)
	if err != nil {
		return nil, nil, err
	}
	return FreeIntervals(working, busy.Spans, now, rule), busy.Degraded, nil
}

func (s *Service) resolveRule(ctx context.Context, req Request) (model.SchedulingRule, error) {
	if req.RuleID != "" {
		rule, err := s.rules.RuleByID(ctx, req.TenantID, req.RuleID)
		if err != nil {
			return model.SchedulingRule{}, err
		}
		return rule, nil
	}
	rule, ok, err := s.rules.DefaultRule(ctx, req.TenantID)
	if err != nil {
		return model.SchedulingRule{}, err
	}
	if !ok {
		return model.SchedulingRule{}, ErrRuleMissing
	}
	return rule, nil
}

func validateRequest(req Request) error {
	if req.TenantID == "" {
		return &ValidationError{Field: "tenant_id", Msg: "required"}
	}
	if len(req.Participants) == 0 {
		return &ValidationError{Field: "participants", Msg: "at least one participant is required"}
	}
	for _, p := range req.Participants {
		if p.ID == "" {
			return &ValidationError{Field: "participants", Msg: "participant id is required"}
		}
		if p.Type != model.ParticipantUser && p.Type != model.ParticipantCandidate {
			return &ValidationError{Field: "participants", Msg: fmt.Sprintf("unknown participant type %q", p.Type)}
		}
	}
	if !req.From.Before(req.To) {
		return &ValidationError{Field: "range", Msg: "from must be before to"}
	}
	if req.DurationMins < 0 {
		return &ValidationError{Field: "duration_mins", Msg: "must not be negative"}
	}
	if req.Timezone != "" {
		if _, err := time.LoadLocation(req.Timezone); err != nil {
			return &ValidationError{Field: "timezone", Msg: fmt.Sprintf("invalid IANA zone %q", req.Timezone)}
		}
	}
	return nil
}

func spanKey(s interval.Span) string {
	return fmt.Sprintf("%d|%d", s.Start.Unix(), s.End.Unix())
}
