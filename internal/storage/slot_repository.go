package storage

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/hireloop/scheduling/internal/interval"
	"github.com/hireloop/scheduling/internal/model"
	"github.com/hireloop/scheduling/libs/db"
)

type SlotRepository struct {
	pool *db.Pool
}

func NewSlotRepository(pool *db.Pool) *SlotRepository {
	return &SlotRepository{pool: pool}
}

func (r *SlotRepository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

// ParticipantsKey is the canonical identity of a participant set: sorted
// person ids joined with commas. The booked-identity unique index is built on
// it.
func ParticipantsKey(participants []model.Participant) string {
	ids := make([]string, 0, len(participants))
	for _, p := range participants {
		ids = append(ids, p.ID)
	}
	sort.Strings(ids)
	return strings.Join(ids, ",")
}

// Create inserts a slot and its participant rows. The slot's Status decides
// whether the participant rows count as booked, so inserting a BOOKED slot
// trips the exclusion constraint on any per-person overlap.
func (r *SlotRepository) Create(ctx context.Context, tx pgx.Tx, slot *model.Slot, allowOverlap bool) (string, error) {
	metadata, err := json.Marshal(orEmptyMap(slot.Metadata))
	if err != nil {
		return "", err
	}

	id := uuid.NewString()
	_, err = tx.Exec(ctx, `
		INSERT INTO slots (id, tenant_id, interview_id, start_at, end_at, timezone, status, allow_overlap, participants_key, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, id, slot.TenantID, slot.InterviewID, slot.StartAt, slot.EndAt, slot.Timezone, slot.Status,
		allowOverlap, ParticipantsKey(slot.Participants), metadata)
	if err != nil {
		return "", err
	}

	booked := slot.Status == model.SlotBooked
	for _, p := range slot.Participants {
		_, err := tx.Exec(ctx, `
			INSERT INTO slot_participants (slot_id, person_type, person_id, email, phone, span, booked, allow_overlap)
			VALUES ($1, $2, $3, $4, $5, tstzrange($6, $7, '[)'), $8, $9)
		`, id, p.Type, p.ID, p.Email, p.Phone, slot.StartAt, slot.EndAt, booked, allowOverlap)
		if err != nil {
			return "", err
		}
	}
	return id, nil
}

func (r *SlotRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, tenantID, slotID string) (model.Slot, error) {
	slot, err := scanSlot(tx.QueryRow(ctx, `
		SELECT id, tenant_id, interview_id, start_at, end_at, timezone, status, cancel_reason, metadata, created_at
		FROM slots
		WHERE id = $1 AND tenant_id = $2
		FOR UPDATE
	`, slotID, tenantID))
	if err != nil {
		return model.Slot{}, err
	}
	slot.Participants, err = r.participantsOf(ctx, tx, slot.ID)
	return slot, err
}

func (r *SlotRepository) Get(ctx context.Context, tenantID, slotID string) (model.Slot, error) {
	slot, err := scanSlot(r.pool.QueryRow(ctx, `
		SELECT id, tenant_id, interview_id, start_at, end_at, timezone, status, cancel_reason, metadata, created_at
		FROM slots
		WHERE id = $1 AND tenant_id = $2
	`, slotID, tenantID))
	if err != nil {
		return model.Slot{}, err
	}
	slot.Participants, err = r.participantsOf(ctx, r.pool, slot.ID)
	return slot, err
}

// MarkBooked flips an AVAILABLE slot to BOOKED. Returns false when the row
// exists but is no longer AVAILABLE; the caller decides whether that is a
// conflict or an idempotent replay. Flipping the participant rows to booked is
// what fires the exclusion constraint on a per-person overlap.
func (r *SlotRepository) MarkBooked(ctx context.Context, tx pgx.Tx, tenantID, slotID, interviewID string, metadata map[string]string) (bool, error) {
	raw, err := json.Marshal(orEmptyMap(metadata))
	if err != nil {
		return false, err
	}
	tag, err := tx.Exec(ctx, `
		UPDATE slots
		SET status = 'BOOKED',
			interview_id = $3,
			metadata = $4
		WHERE id = $1 AND tenant_id = $2 AND status = 'AVAILABLE'
	`, slotID, tenantID, interviewID, raw)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}
	_, err = tx.Exec(ctx, `
		UPDATE slot_participants SET booked = true WHERE slot_id = $1
	`, slotID)
	if err != nil {
		return false, err
	}
	return true, nil
}

// UpdateInterval moves a slot in place, keeping its id stable across a
// reschedule. Participant spans move with it.
func (r *SlotRepository) UpdateInterval(ctx context.Context, tx pgx.Tx, tenantID, slotID string, start, end time.Time) error {
	tag, err := tx.Exec(ctx, `
		UPDATE slots
		SET start_at = $3, end_at = $4
		WHERE id = $1 AND tenant_id = $2
	`, slotID, tenantID, start, end)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	_, err = tx.Exec(ctx, `
		UPDATE slot_participants
		SET span = tstzrange($2, $3, '[)')
		WHERE slot_id = $1
	`, slotID, start, end)
	return err
}

// Cancel is idempotent: cancelling a CANCELLED slot keeps the original reason.
func (r *SlotRepository) Cancel(ctx context.Context, tx pgx.Tx, tenantID, slotID, reason string) error {
	tag, err := tx.Exec(ctx, `
		UPDATE slots
		SET status = 'CANCELLED',
			cancel_reason = $3
		WHERE id = $1 AND tenant_id = $2 AND status <> 'CANCELLED'
	`, slotID, tenantID, reason)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return nil
	}
	_, err = tx.Exec(ctx, `
		UPDATE slot_participants SET booked = false WHERE slot_id = $1
	`, slotID)
	return err
}

// SlotStatus reads just the status column, used by the reminder worker's
// fire-time check.
func (r *SlotRepository) SlotStatus(ctx context.Context, slotID string) (model.SlotStatus, error) {
	var status model.SlotStatus
	err := r.pool.QueryRow(ctx, `SELECT status FROM slots WHERE id = $1`, slotID).Scan(&status)
	return status, err
}

// ExpireAvailableBefore marks stale AVAILABLE slots whose window already
// passed as EXPIRED. Returns the number of rows swept.
func (r *SlotRepository) ExpireAvailableBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE slots
		SET status = 'EXPIRED'
		WHERE status = 'AVAILABLE' AND end_at <= $1
	`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// BookedIntervals yields a person's booked time overlapping [from, to),
// tagged as internal busy. Feeds the availability aggregator.
func (r *SlotRepository) BookedIntervals(ctx context.Context, personID string, from, to time.Time) ([]model.BusyInterval, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT s.start_at, s.end_at
		FROM slots s
		JOIN slot_participants sp ON sp.slot_id = s.id
		WHERE sp.person_id = $1
			AND s.status = 'BOOKED'
			AND s.start_at < $3
			AND s.end_at > $2
		ORDER BY s.start_at
	`, personID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var busy []model.BusyInterval
	for rows.Next() {
		b := model.BusyInterval{Source: model.BusySourceInternal, Reason: "booked slot"}
		if err := rows.Scan(&b.Start, &b.End); err != nil {
			return nil, err
		}
		busy = append(busy, b)
	}
	return busy, rows.Err()
}

// BookedIdenticalSpans lists BOOKED intervals in [from, to) whose participant
// set matches exactly. The slot generator uses it to suppress duplicate
// candidates under overlap-allowing rules.
func (r *SlotRepository) BookedIdenticalSpans(ctx context.Context, tenantID string, participants []model.Participant, from, to time.Time) ([]interval.Span, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT start_at, end_at
		FROM slots
		WHERE tenant_id = $1
			AND participants_key = $2
			AND status = 'BOOKED'
			AND start_at < $4
			AND end_at > $3
		ORDER BY start_at
	`, tenantID, ParticipantsKey(participants), from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var spans []interval.Span
	for rows.Next() {
		var s interval.Span
		if err := rows.Scan(&s.Start, &s.End); err != nil {
			return nil, err
		}
		spans = append(spans, s)
	}
	return spans, rows.Err()
}

func (r *SlotRepository) ListByTenant(ctx context.Context, tenantID string, status model.SlotStatus, limit int) ([]model.Slot, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, tenant_id, interview_id, start_at, end_at, timezone, status, cancel_reason, metadata, created_at
		FROM slots
		WHERE tenant_id = $1
			AND ($2 = '' OR status = $2)
		ORDER BY start_at DESC
		LIMIT $3
	`, tenantID, string(status), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var slots []model.Slot
	for rows.Next() {
		slot, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		slots = append(slots, slot)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	for i := range slots {
		slots[i].Participants, err = r.participantsOf(ctx, r.pool, slots[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return slots, nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (r *SlotRepository) participantsOf(ctx context.Context, q querier, slotID string) ([]model.Participant, error) {
	rows, err := q.Query(ctx, `
		SELECT person_type, person_id, email, phone
		FROM slot_participants
		WHERE slot_id = $1
		ORDER BY person_id
	`, slotID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var participants []model.Participant
	for rows.Next() {
		var p model.Participant
		if err := rows.Scan(&p.Type, &p.ID, &p.Email, &p.Phone); err != nil {
			return nil, err
		}
		participants = append(participants, p)
	}
	return participants, rows.Err()
}

func scanSlot(row pgx.Row) (model.Slot, error) {
	var slot model.Slot
	var metadata []byte
	err := row.Scan(
		&slot.ID,
		&slot.TenantID,
		&slot.InterviewID,
		&slot.StartAt,
		&slot.EndAt,
		&slot.Timezone,
		&slot.Status,
		&slot.CancelReason,
		&metadata,
		&slot.CreatedAt,
	)
	if err != nil {
		return model.Slot{}, err
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &slot.Metadata); err != nil {
			return model.Slot{}, err
		}
	}
	return slot, nil
}

func orEmptyMap(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
