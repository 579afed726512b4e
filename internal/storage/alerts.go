package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/veritrail/sla-monitor/internal/model"
)

// AlertStore persists SLA alerts. Writes are idempotent per
// (order, alert type): a second upsert for the same pair refreshes the
// existing row instead of inserting a duplicate.
type AlertStore interface {
	// Upsert creates the alert or, when a row for (OrderID, AlertType)
	// exists, refreshes its message, hours remaining and severity
	Upsert(ctx context.Context, alert *model.SLAAlert) error

	// Get retrieves the alert for (orderID, alertType), or nil
	Get(ctx context.Context, orderID string, alertType model.AlertType) (*model.SLAAlert, error)

	// ListUnacknowledgedBreaches returns all breached alerts not yet
	// acknowledged by an operator
	ListUnacknowledgedBreaches(ctx context.Context) ([]*model.SLAAlert, error)

	// LatestForOrder returns the most recently created alert for an order,
	// or nil when the order has none
	LatestForOrder(ctx context.Context, orderID string) (*model.SLAAlert, error)

	// CountForOrder returns the number of alert rows for (orderID, alertType)
	CountForOrder(ctx context.Context, orderID string, alertType model.AlertType) (int, error)
}

// SQLiteAlertStore implements AlertStore using SQLite
type SQLiteAlertStore struct {
	logger *zap.Logger
	db     *sql.DB
}

// NewSQLiteAlertStore creates a new SQLite-based alert store
func NewSQLiteAlertStore(db *sql.DB, logger *zap.Logger) *SQLiteAlertStore {
	return &SQLiteAlertStore{
		logger: logger.Named("alert-store"),
		db:     db,
	}
}

// Upsert implements AlertStore.Upsert
func (s *SQLiteAlertStore) Upsert(ctx context.Context, alert *model.SLAAlert) error {
	if alert.ID == "" {
		alert.ID = uuid.New().String()
	}
	now := time.Now()
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = now
	}
	alert.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sla_alerts (
			id, order_id, alert_type, severity, message,
			hours_remaining, due_date, acknowledged, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(order_id, alert_type) DO UPDATE SET
			severity = excluded.severity,
			message = excluded.message,
			hours_remaining = excluded.hours_remaining,
			due_date = excluded.due_date,
			updated_at = excluded.updated_at`,
		alert.ID,
		alert.OrderID,
		alert.AlertType,
		alert.Severity,
		alert.Message,
		alert.HoursRemaining,
		alert.DueDate,
		alert.Acknowledged,
		alert.CreatedAt,
		alert.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert SLA alert: %w", err)
	}
	return nil
}

const alertColumns = `id, order_id, alert_type, severity, message,
	hours_remaining, due_date, acknowledged, created_at, updated_at`

// Get implements AlertStore.Get
func (s *SQLiteAlertStore) Get(ctx context.Context, orderID string, alertType model.AlertType) (*model.SLAAlert, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+alertColumns+`
		FROM sla_alerts
		WHERE order_id = ? AND alert_type = ?`, orderID, alertType)

	alert, err := scanAlert(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return alert, nil
}

// ListUnacknowledgedBreaches implements AlertStore.ListUnacknowledgedBreaches
func (s *SQLiteAlertStore) ListUnacknowledgedBreaches(ctx context.Context) ([]*model.SLAAlert, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+alertColumns+`
		FROM sla_alerts
		WHERE alert_type = ? AND acknowledged = 0
		ORDER BY created_at ASC`, model.AlertTypeBreached)
	if err != nil {
		return nil, fmt.Errorf("failed to list unacknowledged breaches: %w", err)
	}
	defer rows.Close()

	var alerts []*model.SLAAlert
	for rows.Next() {
		alert, err := scanAlert(rows.Scan)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, alert)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}

	return alerts, nil
}

// LatestForOrder implements AlertStore.LatestForOrder
func (s *SQLiteAlertStore) LatestForOrder(ctx context.Context, orderID string) (*model.SLAAlert, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+alertColumns+`
		FROM sla_alerts
		WHERE order_id = ?
		ORDER BY created_at DESC
		LIMIT 1`, orderID)

	alert, err := scanAlert(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return alert, nil
}

// CountForOrder implements AlertStore.CountForOrder
func (s *SQLiteAlertStore) CountForOrder(ctx context.Context, orderID string, alertType model.AlertType) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM sla_alerts
		WHERE order_id = ? AND alert_type = ?`, orderID, alertType).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count SLA alerts: %w", err)
	}
	return count, nil
}

func scanAlert(scan func(...interface{}) error) (*model.SLAAlert, error) {
	alert := &model.SLAAlert{}
	err := scan(
		&alert.ID,
		&alert.OrderID,
		&alert.AlertType,
		&alert.Severity,
		&alert.Message,
		&alert.HoursRemaining,
		&alert.DueDate,
		&alert.Acknowledged,
		&alert.CreatedAt,
		&alert.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan SLA alert: %w", err)
	}
	return alert, nil
}
