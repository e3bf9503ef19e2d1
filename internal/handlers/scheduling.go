package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hireloop/scheduling/internal/availability"
	"github.com/hireloop/scheduling/internal/booking"
	"github.com/hireloop/scheduling/internal/model"
	"github.com/hireloop/scheduling/internal/storage"
	"github.com/hireloop/scheduling/libs/db"
)

type SchedulingHandler struct {
	avail       *availability.Service
	coordinator *booking.Coordinator
	slots       *storage.SlotRepository
	idem        *storage.IdempotencyRepository
	pool        *db.Pool
	logger      *slog.Logger
}

func NewSchedulingHandler(avail *availability.Service, coordinator *booking.Coordinator, slots *storage.SlotRepository, idem *storage.IdempotencyRepository, pool *db.Pool, logger *slog.Logger) *SchedulingHandler {
	return &SchedulingHandler{
		avail:       avail,
		coordinator: coordinator,
		slots:       slots,
		idem:        idem,
		pool:        pool,
		logger:      logger,
	}
}

type participantDTO struct {
	Type  string `json:"type"`
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

type availabilityRequest struct {
	TenantID     string           `json:"tenant_id"`
	Participants []participantDTO `json:"participants"`
	From         string           `json:"from"`
	To           string           `json:"to"`
	DurationMins int              `json:"duration_mins"`
	RuleID       string           `json:"rule_id"`
	Timezone     string           `json:"timezone"`
}

type slotDTO struct {
	ID           string           `json:"id,omitempty"`
	InterviewID  string           `json:"interview_id,omitempty"`
	StartAt      string           `json:"start_at"`
	EndAt        string           `json:"end_at"`
	Timezone     string           `json:"timezone"`
	Status       string           `json:"status"`
	CancelReason string           `json:"cancel_reason,omitempty"`
	Participants []participantDTO `json:"participants,omitempty"`
}

type availabilityResponse struct {
	Slots    []slotDTO `json:"slots"`
	Degraded []string  `json:"degraded_accounts,omitempty"`
	RuleID   string    `json:"rule_id"`
}

// Availability computes candidate slots without persisting anything.
func (h *SchedulingHandler) Availability(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	req, ok := h.decodeAvailability(w, r)
	if !ok {
		return
	}

	result, err := h.avail.Compute(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, availabilityResponse{
		Slots:    toSlotDTOs(result.Slots),
		Degraded: result.Degraded,
		RuleID:   result.Rule.ID,
	})
}

// Slots computes candidates and persists them as AVAILABLE rows that can be
// booked by id.
func (h *SchedulingHandler) Slots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	req, ok := h.decodeAvailability(w, r)
	if !ok {
		return
	}

	result, err := h.avail.Compute(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	created, err := h.coordinator.CreateSlots(r.Context(), result.Slots, result.Rule.AllowOverlapping)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, availabilityResponse{
		Slots:    toSlotDTOs(created),
		Degraded: result.Degraded,
		RuleID:   result.Rule.ID,
	})
}

// Bookings dispatches the collection endpoint: POST books, GET lists.
func (h *SchedulingHandler) Bookings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.Book(w, r)
	case http.MethodGet:
		h.List(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

type bookRequest struct {
	TenantID     string            `json:"tenant_id"`
	SlotID       string            `json:"slot_id"`
	Start        string            `json:"start_at"`
	End          string            `json:"end_at"`
	Participants []participantDTO  `json:"participants"`
	InterviewID  string            `json:"interview_id"`
	RuleID       string            `json:"rule_id"`
	Timezone     string            `json:"timezone"`
	Metadata     map[string]string `json:"metadata"`
}

type bookResponse struct {
	Booking   slotDTO            `json:"booking"`
	Conflicts []booking.Conflict `json:"advisory_conflicts,omitempty"`
}

// Book confirms a booking for an existing slot id or a direct interval.
// Requests may carry an Idempotency-Key header; replays return the original
// response.
func (h *SchedulingHandler) Book(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req bookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.TenantID = strings.TrimSpace(req.TenantID)
	if req.TenantID == "" {
		http.Error(w, "tenant_id required", http.StatusBadRequest)
		return
	}

	coordReq := booking.BookRequest{
		TenantID:     req.TenantID,
		SlotID:       strings.TrimSpace(req.SlotID),
		Participants: toParticipants(req.Participants),
		InterviewID:  req.InterviewID,
		RuleID:       req.RuleID,
		Timezone:     req.Timezone,
		Metadata:     req.Metadata,
	}
	if coordReq.SlotID == "" {
		start, err := time.Parse(time.RFC3339, req.Start)
		if err != nil {
			http.Error(w, "invalid start_at", http.StatusBadRequest)
			return
		}
		end, err := time.Parse(time.RFC3339, req.End)
		if err != nil {
			http.Error(w, "invalid end_at", http.StatusBadRequest)
			return
		}
		coordReq.Start = start
		coordReq.End = end
	}

	key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if key == "" {
		slot, err := h.coordinator.Book(r.Context(), coordReq)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, bookResponse{Booking: toSlotDTO(slot)})
		return
	}
	h.bookIdempotent(w, r, key, coordReq)
}

// bookIdempotent holds the idempotency key row locked while the booking runs,
// so a concurrent replay blocks and then sees the stored response.
func (h *SchedulingHandler) bookIdempotent(w http.ResponseWriter, r *http.Request, key string, coordReq booking.BookRequest) {
	ctx := r.Context()
	tx, err := h.pool.Begin(ctx)
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rec, existed, err := h.idem.Lock(ctx, tx, coordReq.TenantID, key)
	if err != nil {
		http.Error(w, "failed to lock idempotency key", http.StatusInternalServerError)
		return
	}
	if existed && rec.StatusCode != 0 {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(rec.StatusCode)
		_, _ = w.Write(rec.ResponsePayload)
		return
	}

	slot, err := h.coordinator.Book(ctx, coordReq)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := bookResponse{Booking: toSlotDTO(slot)}
	payload, err := json.Marshal(resp)
	if err != nil {
		http.Error(w, "failed to build response", http.StatusInternalServerError)
		return
	}
	if err := h.idem.Finalize(ctx, tx, coordReq.TenantID, key, slot.ID, http.StatusCreated, payload); err != nil {
		http.Error(w, "failed to finalize idempotency key", http.StatusInternalServerError)
		return
	}
	if err := tx.Commit(ctx); err != nil {
		http.Error(w, "failed to commit", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_, _ = w.Write(payload)
}

type rescheduleRequest struct {
	TenantID  string `json:"tenant_id"`
	BookingID string `json:"booking_id"`
	NewStart  string `json:"new_start_at"`
	NewEnd    string `json:"new_end_at"` // optional; omitted keeps the duration
	RuleID    string `json:"rule_id"`
}

func (h *SchedulingHandler) Reschedule(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req rescheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.TenantID) == "" || strings.TrimSpace(req.BookingID) == "" {
		http.Error(w, "tenant_id and booking_id required", http.StatusBadRequest)
		return
	}
	newStart, err := time.Parse(time.RFC3339, req.NewStart)
	if err != nil {
		http.Error(w, "invalid new_start_at", http.StatusBadRequest)
		return
	}
	var newEnd time.Time
	if strings.TrimSpace(req.NewEnd) != "" {
		newEnd, err = time.Parse(time.RFC3339, req.NewEnd)
		if err != nil {
			http.Error(w, "invalid new_end_at", http.StatusBadRequest)
			return
		}
	}

	moved, advisory, err := h.coordinator.Reschedule(r.Context(), booking.RescheduleRequest{
		TenantID:  req.TenantID,
		BookingID: req.BookingID,
		NewStart:  newStart,
		NewEnd:    newEnd,
		RuleID:    req.RuleID,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bookResponse{Booking: toSlotDTO(moved), Conflicts: advisory})
}

type cancelRequest struct {
	TenantID  string `json:"tenant_id"`
	BookingID string `json:"booking_id"`
	Reason    string `json:"reason"`
}

func (h *SchedulingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req cancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.TenantID) == "" || strings.TrimSpace(req.BookingID) == "" {
		http.Error(w, "tenant_id and booking_id required", http.StatusBadRequest)
		return
	}

	slot, err := h.coordinator.Cancel(r.Context(), req.TenantID, req.BookingID, req.Reason)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bookResponse{Booking: toSlotDTO(slot)})
}

func (h *SchedulingHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	tenantID := strings.TrimSpace(r.URL.Query().Get("tenant_id"))
	if tenantID == "" {
		http.Error(w, "tenant_id required", http.StatusBadRequest)
		return
	}
	status := model.SlotStatus(strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("status"))))
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, _ = strconv.Atoi(raw)
	}

	slots, err := h.slots.ListByTenant(r.Context(), tenantID, status, limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"bookings": toSlotDTOs(slots)})
}

func (h *SchedulingHandler) decodeAvailability(w http.ResponseWriter, r *http.Request) (availability.Request, bool) {
	var req availabilityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return availability.Request{}, false
	}
	from, err := time.Parse(time.RFC3339, req.From)
	if err != nil {
		http.Error(w, "invalid from", http.StatusBadRequest)
		return availability.Request{}, false
	}
	to, err := time.Parse(time.RFC3339, req.To)
	if err != nil {
		http.Error(w, "invalid to", http.StatusBadRequest)
		return availability.Request{}, false
	}
	return availability.Request{
		TenantID:     strings.TrimSpace(req.TenantID),
		Participants: toParticipants(req.Participants),
		From:         from,
		To:           to,
		DurationMins: req.DurationMins,
		RuleID:       req.RuleID,
		Timezone:     req.Timezone,
	}, true
}

func (h *SchedulingHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case availability.IsValidation(err):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, availability.ErrRuleMissing):
		http.Error(w, "no scheduling rule configured for tenant", http.StatusUnprocessableEntity)
	case booking.IsNotFound(err):
		http.Error(w, err.Error(), http.StatusNotFound)
	case storage.IsNotFound(err):
		// Keep the driver's "no rows" wording out of the response body.
		http.Error(w, "resource not found", http.StatusNotFound)
	case booking.IsConflict(err):
		var ce *booking.ConflictError
		errors.As(err, &ce)
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":     ce.Msg,
			"conflicts": ce.Conflicts,
		})
	default:
		h.logger.Error("request failed", "path", r.URL.Path, "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func toParticipants(dtos []participantDTO) []model.Participant {
	out := make([]model.Participant, 0, len(dtos))
	for _, d := range dtos {
		out = append(out, model.Participant{
			Type:  model.ParticipantType(d.Type),
			ID:    strings.TrimSpace(d.ID),
			Email: d.Email,
			Phone: d.Phone,
		})
	}
	return out
}

func toSlotDTO(slot model.Slot) slotDTO {
	participants := make([]participantDTO, 0, len(slot.Participants))
	for _, p := range slot.Participants {
		participants = append(participants, participantDTO{
			Type:  string(p.Type),
			ID:    p.ID,
			Email: p.Email,
			Phone: p.Phone,
		})
	}
	return slotDTO{
		ID:           slot.ID,
		InterviewID:  slot.InterviewID,
		StartAt:      slot.StartAt.UTC().Format(time.RFC3339),
		EndAt:        slot.EndAt.UTC().Format(time.RFC3339),
		Timezone:     slot.Timezone,
		Status:       string(slot.Status),
		CancelReason: slot.CancelReason,
		Participants: participants,
	}
}

func toSlotDTOs(slots []model.Slot) []slotDTO {
	out := make([]slotDTO, 0, len(slots))
	for _, s := range slots {
		out = append(out, toSlotDTO(s))
	}
	return out
}
