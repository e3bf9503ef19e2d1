package storage

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"

	"github.com/hireloop/scheduling/internal/model"
	"github.com/hireloop/scheduling/libs/db"
)

// ConfigRepository holds the read-mostly scheduling configuration: working
// hours, rules, and linked calendar accounts. Writes arrive as projections of
// tenant-service events.
type ConfigRepository struct {
	pool *db.Pool
}

func NewConfigRepository(pool *db.Pool) *ConfigRepository {
	return &ConfigRepository{pool: pool}
}

// PatternsFor returns the person's working-hours patterns, falling back to
// the tenant default (owner_id = '') when the person has none of their own.
func (r *ConfigRepository) PatternsFor(ctx context.Context, tenantID, personID string) ([]model.WorkingHoursPattern, error) {
	patterns, err := r.patternsByOwner(ctx, tenantID, personID)
	if err != nil {
		return nil, err
	}
	if len(patterns) > 0 {
		return patterns, nil
	}
	return r.patternsByOwner(ctx, tenantID, "")
}

func (r *ConfigRepository) patternsByOwner(ctx context.Context, tenantID, ownerID string) ([]model.WorkingHoursPattern, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, tenant_id, owner_id, timezone, effective_from, effective_to, entries
		FROM working_hours_patterns
		WHERE tenant_id = $1 AND owner_id = $2
		ORDER BY effective_from NULLS FIRST
	`, tenantID, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var patterns []model.WorkingHoursPattern
	for rows.Next() {
		var p model.WorkingHoursPattern
		var entries []byte
		if err := rows.Scan(&p.ID, &p.TenantID, &p.OwnerID, &p.Timezone, &p.EffectiveFrom, &p.EffectiveTo, &entries); err != nil {
			return nil, err
		}
		if len(entries) > 0 {
			if err := json.Unmarshal(entries, &p.Entries); err != nil {
				return nil, err
			}
		}
		patterns = append(patterns, p)
	}
	return patterns, rows.Err()
}

func (r *ConfigRepository) UpsertPattern(ctx context.Context, p model.WorkingHoursPattern) error {
	entries, err := json.Marshal(p.Entries)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO working_hours_patterns (id, tenant_id, owner_id, timezone, effective_from, effective_to, entries)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE
		SET timezone = EXCLUDED.timezone,
			effective_from = EXCLUDED.effective_from,
			effective_to = EXCLUDED.effective_to,
			entries = EXCLUDED.entries,
			updated_at = now()
	`, p.ID, p.TenantID, p.OwnerID, p.Timezone, p.EffectiveFrom, p.EffectiveTo, entries)
	return err
}

func (r *ConfigRepository) RuleByID(ctx context.Context, tenantID, ruleID string) (model.SchedulingRule, error) {
	return scanRule(r.pool.QueryRow(ctx, `
		SELECT id, tenant_id, min_notice_mins, buffer_before_mins, buffer_after_mins, default_slot_mins, allow_overlapping, is_default
		FROM scheduling_rules
		WHERE id = $1 AND tenant_id = $2
	`, ruleID, tenantID))
}

func (r *ConfigRepository) DefaultRule(ctx context.Context, tenantID string) (model.SchedulingRule, bool, error) {
	rule, err := scanRule(r.pool.QueryRow(ctx, `
		SELECT id, tenant_id, min_notice_mins, buffer_before_mins, buffer_after_mins, default_slot_mins, allow_overlapping, is_default
		FROM scheduling_rules
		WHERE tenant_id = $1 AND is_default
	`, tenantID))
	if IsNotFound(err) {
		return model.SchedulingRule{}, false, nil
	}
	if err != nil {
		return model.SchedulingRule{}, false, err
	}
	return rule, true, nil
}

func (r *ConfigRepository) UpsertRule(ctx context.Context, rule model.SchedulingRule) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO scheduling_rules (id, tenant_id, min_notice_mins, buffer_before_mins, buffer_after_mins, default_slot_mins, allow_overlapping, is_default)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE
		SET min_notice_mins = EXCLUDED.min_notice_mins,
			buffer_before_mins = EXCLUDED.buffer_before_mins,
			buffer_after_mins = EXCLUDED.buffer_after_mins,
			default_slot_mins = EXCLUDED.default_slot_mins,
			allow_overlapping = EXCLUDED.allow_overlapping,
			is_default = EXCLUDED.is_default,
			updated_at = now()
	`, rule.ID, rule.TenantID, rule.MinNoticeMins, rule.BufferBeforeMins, rule.BufferAfterMins, rule.DefaultSlotMins, rule.AllowOverlapping, rule.IsDefault)
	return err
}

func (r *ConfigRepository) AccountsForPerson(ctx context.Context, personID string) ([]model.CalendarAccount, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, person_id, provider, calendar_id, COALESCE(token, ''::bytea), revoked
		FROM calendar_accounts
		WHERE person_id = $1 AND NOT revoked
		ORDER BY id
	`, personID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []model.CalendarAccount
	for rows.Next() {
		var a model.CalendarAccount
		if err := rows.Scan(&a.ID, &a.PersonID, &a.Provider, &a.CalendarID, &a.Token, &a.Revoked); err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func (r *ConfigRepository) UpsertAccount(ctx context.Context, a model.CalendarAccount) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO calendar_accounts (id, person_id, provider, calendar_id, token, revoked)
		VALUES ($1, $2, $3, $4, $5, false)
		ON CONFLICT (id) DO UPDATE
		SET person_id = EXCLUDED.person_id,
			provider = EXCLUDED.provider,
			calendar_id = EXCLUDED.calendar_id,
			token = EXCLUDED.token,
			revoked = false,
			updated_at = now()
	`, a.ID, a.PersonID, a.Provider, a.CalendarID, a.Token)
	return err
}

func (r *ConfigRepository) RevokeAccount(ctx context.Context, accountID string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE calendar_accounts
		SET revoked = true, updated_at = now()
		WHERE id = $1
	`, accountID)
	return err
}

func scanRule(row pgx.Row) (model.SchedulingRule, error) {
	var rule model.SchedulingRule
	err := row.Scan(
		&rule.ID,
		&rule.TenantID,
		&rule.MinNoticeMins,
		&rule.BufferBeforeMins,
		&rule.BufferAfterMins,
		&rule.DefaultSlotMins,
		&rule.AllowOverlapping,
		&rule.IsDefault,
	)
	return rule, err
}
