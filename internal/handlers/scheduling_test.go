package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/hireloop/scheduling/internal/availability"
	"github.com/hireloop/scheduling/internal/calendar"
	"github.com/hireloop/scheduling/internal/interval"
	"github.com/hireloop/scheduling/internal/model"
)

type stubPatterns struct{}

func (stubPatterns) PatternsFor(ctx context.Context, tenantID, personID string) ([]model.WorkingHoursPattern, error) {
	return []model.WorkingHoursPattern{{
		ID:       "p1",
		TenantID: tenantID,
		OwnerID:  personID,
		Timezone: "UTC",
		Entries:  []model.WorkingHoursEntry{{Weekday: 1, StartLocal: "09:00", EndLocal: "12:00"}},
	}}, nil
}

type stubRules struct {
	hasDefault bool
}

func (s stubRules) RuleByID(ctx context.Context, tenantID, ruleID string) (model.SchedulingRule, error) {
	return model.SchedulingRule{}, availability.ErrRuleMissing
}

func (s stubRules) DefaultRule(ctx context.Context, tenantID string) (model.SchedulingRule, bool, error) {
	return model.SchedulingRule{ID: "r1", DefaultSlotMins: 60}, s.hasDefault, nil
}

type stubBusy struct{}

func (stubBusy) BookedIntervals(ctx context.Context, personID string, from, to time.Time) ([]model.BusyInterval, error) {
	return nil, nil
}

type stubAccounts struct{}

func (stubAccounts) AccountsForPerson(ctx context.Context, personID string) ([]model.CalendarAccount, error) {
	return nil, nil
}

type stubBooked struct{}

func (stubBooked) BookedIdenticalSpans(ctx context.Context, tenantID string, participants []model.Participant, from, to time.Time) ([]interval.Span, error) {
	return nil, nil
}

func newTestHandler(rules stubRules) *SchedulingHandler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	agg := availability.NewAggregator(stubBusy{}, stubAccounts{}, calendar.NewRegistry(), time.Second, logger)
	svc := availability.NewService(stubPatterns{}, rules, agg, stubBooked{}, logger).
		WithClock(func() time.Time { return time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC) })
	return NewSchedulingHandler(svc, nil, nil, nil, nil, logger)
}

const availabilityBody = `{
	"tenant_id": "t1",
	"participants": [{"type": "user", "id": "alice"}],
	"from": "2026-03-02T00:00:00Z",
	"to": "2026-03-03T00:00:00Z"
}`

func TestAvailability_OK(t *testing.T) {
	h := newTestHandler(stubRules{hasDefault: true})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/availability", strings.NewReader(availabilityBody))
	rec := httptest.NewRecorder()
	h.Availability(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp availabilityResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid response json: %v", err)
	}
	// Monday 09:00-12:00 at the default 60m gives 3 slots.
	if len(resp.Slots) != 3 {
		t.Fatalf("expected 3 slots, got %d", len(resp.Slots))
	}
	if resp.RuleID != "r1" {
		t.Fatalf("expected rule r1, got %q", resp.RuleID)
	}
	if resp.Slots[0].StartAt != "2026-03-02T09:00:00Z" {
		t.Fatalf("unexpected first slot start: %s", resp.Slots[0].StartAt)
	}
}

func TestAvailability_ValidationMapsTo400(t *testing.T) {
	h := newTestHandler(stubRules{hasDefault: true})

	body := strings.Replace(availabilityBody, `"participants": [{"type": "user", "id": "alice"}],`, `"participants": [],`, 1)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/availability", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Availability(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestAvailability_MissingRuleMapsTo422(t *testing.T) {
	h := newTestHandler(stubRules{hasDefault: false})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/availability", strings.NewReader(availabilityBody))
	rec := httptest.NewRecorder()
	h.Availability(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
}

func TestAvailability_BadTimestamp(t *testing.T) {
	h := newTestHandler(stubRules{hasDefault: true})

	body := strings.Replace(availabilityBody, "2026-03-02T00:00:00Z", "yesterday", 1)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/availability", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Availability(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestReschedule_InvalidNewEndRejected(t *testing.T) {
	h := newTestHandler(stubRules{hasDefault: true})

	body := `{"tenant_id": "t1", "booking_id": "b1", "new_start_at": "2026-03-02T09:00:00Z", "new_end_at": "later"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/bookings/reschedule", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Reschedule(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestWriteError_HidesDriverNotFoundMessage(t *testing.T) {
	h := newTestHandler(stubRules{hasDefault: true})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/bookings", nil)
	rec := httptest.NewRecorder()
	h.writeError(rec, req, pgx.ErrNoRows)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "no rows") {
		t.Fatalf("driver error leaked into the body: %q", rec.Body.String())
	}
}

func TestAvailability_MethodNotAllowed(t *testing.T) {
	h := newTestHandler(stubRules{hasDefault: true})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/availability", nil)
	rec := httptest.NewRecorder()
	h.Availability(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}
