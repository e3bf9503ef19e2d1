package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/hireloop/scheduling/internal/model"
	"github.com/hireloop/scheduling/internal/storage"
)

// Topics carrying tenant configuration changes this engine projects locally.
const (
	TopicWorkingHoursUpdated    = "tenants.working_hours.updated.v1"
	TopicSchedulingRuleUpdated  = "tenants.scheduling_rule.updated.v1"
	TopicCalendarAccountLinked  = "tenants.calendar_account.linked.v1"
	TopicCalendarAccountRevoked = "tenants.calendar_account.revoked.v1"
)

// ProjectionTopics is what the projection consumer subscribes to.
var ProjectionTopics = []string{
	TopicWorkingHoursUpdated,
	TopicSchedulingRuleUpdated,
	TopicCalendarAccountLinked,
	TopicCalendarAccountRevoked,
}

type workingHoursEvent struct {
	PatternID     string                    `json:"pattern_id"`
	TenantID      string                    `json:"tenant_id"`
	OwnerID       string                    `json:"owner_id"`
	Timezone      string                    `json:"timezone"`
	EffectiveFrom *time.Time                `json:"effective_from"`
	EffectiveTo   *time.Time                `json:"effective_to"`
	Entries       []model.WorkingHoursEntry `json:"entries"`
}

type schedulingRuleEvent struct {
	RuleID           string `json:"rule_id"`
	TenantID         string `json:"tenant_id"`
	MinNoticeMins    int    `json:"min_notice_mins"`
	BufferBeforeMins int    `json:"buffer_before_mins"`
	BufferAfterMins  int    `json:"buffer_after_mins"`
	DefaultSlotMins  int    `json:"default_slot_mins"`
	AllowOverlapping bool   `json:"allow_overlapping"`
	IsDefault        bool   `json:"is_default"`
}

type calendarAccountEvent struct {
	AccountID  string `json:"account_id"`
	PersonID   string `json:"person_id"`
	Provider   string `json:"provider"`
	CalendarID string `json:"calendar_id"`
	Token      []byte `json:"token"`
}

// NewProjectionHandler routes tenant events into the config repository.
func NewProjectionHandler(config *storage.ConfigRepository, logger *slog.Logger) Handler {
	return func(ctx context.Context, msg kafka.Message) error {
		switch msg.Topic {
		case TopicWorkingHoursUpdated:
			var evt workingHoursEvent
			if err := json.Unmarshal(msg.Value, &evt); err != nil {
				return fmt.Errorf("decode working hours event: %w", err)
			}
			err := config.UpsertPattern(ctx, model.WorkingHoursPattern{
				ID:            evt.PatternID,
				TenantID:      evt.TenantID,
				OwnerID:       evt.OwnerID,
				Timezone:      evt.Timezone,
				EffectiveFrom: evt.EffectiveFrom,
				EffectiveTo:   evt.EffectiveTo,
				Entries:       evt.Entries,
			})
			if err != nil {
				return err
			}
			logger.Info("working hours projected", "tenant_id", evt.TenantID, "owner_id", evt.OwnerID)
			return nil

		case TopicSchedulingRuleUpdated:
			var evt schedulingRuleEvent
			if err := json.Unmarshal(msg.Value, &evt); err != nil {
				return fmt.Errorf("decode scheduling rule event: %w", err)
			}
			err := config.UpsertRule(ctx, model.SchedulingRule{
				ID:               evt.RuleID,
				TenantID:         evt.TenantID,
				MinNoticeMins:    evt.MinNoticeMins,
				BufferBeforeMins: evt.BufferBeforeMins,
				BufferAfterMins:  evt.BufferAfterMins,
				DefaultSlotMins:  evt.DefaultSlotMins,
				AllowOverlapping: evt.AllowOverlapping,
				IsDefault:        evt.IsDefault,
			})
			if err != nil {
				return err
			}
			logger.Info("scheduling rule projected", "tenant_id", evt.TenantID, "rule_id", evt.RuleID)
			return nil

		case TopicCalendarAccountLinked:
			var evt calendarAccountEvent
			if err := json.Unmarshal(msg.Value, &evt); err != nil {
				return fmt.Errorf("decode calendar account event: %w", err)
			}
			err := config.UpsertAccount(ctx, model.CalendarAccount{
				ID:         evt.AccountID,
				PersonID:   evt.PersonID,
				Provider:   evt.Provider,
				CalendarID: evt.CalendarID,
				Token:      evt.Token,
			})
			if err != nil {
				return err
			}
			logger.Info("calendar account linked", "account_id", evt.AccountID, "provider", evt.Provider)
			return nil

		case TopicCalendarAccountRevoked:
			var evt calendarAccountEvent
			if err := json.Unmarshal(msg.Value, &evt); err != nil {
				return fmt.Errorf("decode calendar account event: %w", err)
			}
			if err := config.RevokeAccount(ctx, evt.AccountID); err != nil {
				return err
			}
			logger.Info("calendar account revoked", "account_id", evt.AccountID)
			return nil

		default:
			logger.Warn("unexpected topic", "topic", msg.Topic)
			return nil
		}
	}
}
