package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/veritrail/sla-monitor/internal/model"
)

// RuleStore provides escalation rules. Rules are operator-maintained; the
// monitor only ever writes one row itself, the lazily created default rule
// backing manual escalations.
type RuleStore interface {
	// ListActiveByTrigger returns active rules with the given trigger type,
	// in creation order
	ListActiveByTrigger(ctx context.Context, trigger model.TriggerType) ([]*model.EscalationRule, error)

	// Create inserts a new rule
	Create(ctx context.Context, rule *model.EscalationRule) error
}

// SQLiteRuleStore implements RuleStore using SQLite
type SQLiteRuleStore struct {
	logger *zap.Logger
	db     *sql.DB
}

// NewSQLiteRuleStore creates a new SQLite-based rule store
func NewSQLiteRuleStore(db *sql.DB, logger *zap.Logger) *SQLiteRuleStore {
	return &SQLiteRuleStore{
		logger: logger.Named("rule-store"),
		db:     db,
	}
}

// ListActiveByTrigger implements RuleStore.ListActiveByTrigger
func (s *SQLiteRuleStore) ListActiveByTrigger(ctx context.Context, trigger model.TriggerType) ([]*model.EscalationRule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, trigger_type, trigger_config, escalation_path,
			delay_minutes, is_active, created_at, updated_at
		FROM escalation_rules
		WHERE is_active = 1 AND trigger_type = ?
		ORDER BY created_at ASC`, trigger)
	if err != nil {
		return nil, fmt.Errorf("failed to list escalation rules: %w", err)
	}
	defer rows.Close()

	var rules []*model.EscalationRule
	for rows.Next() {
		rule := &model.EscalationRule{}
		var triggerConfig sql.NullString
		var pathStr string

		err := rows.Scan(
			&rule.ID,
			&rule.Name,
			&rule.TriggerType,
			&triggerConfig,
			&pathStr,
			&rule.DelayMinutes,
			&rule.IsActive,
			&rule.CreatedAt,
			&rule.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan escalation rule: %w", err)
		}

		if triggerConfig.Valid && triggerConfig.String != "" {
			rule.TriggerConfig = json.RawMessage(triggerConfig.String)
		}
		if err := json.Unmarshal([]byte(pathStr), &rule.Path); err != nil {
			return nil, fmt.Errorf("failed to decode escalation path: %w", err)
		}

		rules = append(rules, rule)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}

	return rules, nil
}

// Create implements RuleStore.Create
func (s *SQLiteRuleStore) Create(ctx context.Context, rule *model.EscalationRule) error {
	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = time.Now()
	}
	rule.UpdatedAt = rule.CreatedAt

	pathBytes, err := json.Marshal(rule.Path)
	if err != nil {
		return fmt.Errorf("failed to encode escalation path: %w", err)
	}

	var triggerConfigStr string
	if len(rule.TriggerConfig) > 0 {
		triggerConfigStr = string(rule.TriggerConfig)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO escalation_rules (
			id, name, trigger_type, trigger_config, escalation_path,
			delay_minutes, is_active, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rule.ID,
		rule.Name,
		rule.TriggerType,
		sql.NullString{String: triggerConfigStr, Valid: triggerConfigStr != ""},
		string(pathBytes),
		rule.DelayMinutes,
		rule.IsActive,
		rule.CreatedAt,
		rule.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create escalation rule: %w", err)
	}

	s.logger.Info("Escalation rule created",
		zap.String("id", rule.ID),
		zap.String("name", rule.Name),
		zap.String("trigger_type", string(rule.TriggerType)))

	return nil
}
