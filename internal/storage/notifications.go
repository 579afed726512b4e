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

// NotificationStore persists in-app admin notifications and answers the
// recent-escalation dedup question over the same rows. The dedup guarantee
// is eventual: a notification may land between the check and a write, which
// the 60-minute heuristic window tolerates.
type NotificationStore interface {
	// Create inserts a notification. orderID may be empty for notices not
	// tied to an order.
	Create(ctx context.Context, n *model.AdminNotification, orderID string) error

	// HasRecentEscalation reports whether an escalation-typed notification
	// referencing orderID was created within the window
	HasRecentEscalation(ctx context.Context, orderID string, window time.Duration) (bool, error)

	// ListEscalationsForOrder returns escalation notifications for an order,
	// most recent first
	ListEscalationsForOrder(ctx context.Context, orderID string, limit int) ([]*model.AdminNotification, error)
}

// AdminDirectory is the read port over the operations staff directory.
type AdminDirectory interface {
	// ListActiveByRoles returns up to limit active admins whose role is in
	// the allow-list
	ListActiveByRoles(ctx context.Context, roles []string, limit int) ([]*model.AdminUser, error)
}

// SQLiteNotificationStore implements NotificationStore and AdminDirectory
// using SQLite
type SQLiteNotificationStore struct {
	logger *zap.Logger
	db     *sql.DB
}

// NewSQLiteNotificationStore creates a new SQLite-based notification store
func NewSQLiteNotificationStore(db *sql.DB, logger *zap.Logger) *SQLiteNotificationStore {
	return &SQLiteNotificationStore{
		logger: logger.Named("notification-store"),
		db:     db,
	}
}

// Create implements NotificationStore.Create
func (s *SQLiteNotificationStore) Create(ctx context.Context, n *model.AdminNotification, orderID string) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}

	var metadataStr string
	if len(n.Metadata) > 0 {
		metadataStr = string(n.Metadata)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO admin_notifications (
			id, recipient_id, type, title, message, priority,
			action_ref, metadata, order_id, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID,
		n.RecipientID,
		n.Type,
		n.Title,
		n.Message,
		n.Priority,
		sql.NullString{String: n.ActionRef, Valid: n.ActionRef != ""},
		sql.NullString{String: metadataStr, Valid: metadataStr != ""},
		sql.NullString{String: orderID, Valid: orderID != ""},
		n.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create admin notification: %w", err)
	}
	return nil
}

// HasRecentEscalation implements NotificationStore.HasRecentEscalation
func (s *SQLiteNotificationStore) HasRecentEscalation(ctx context.Context, orderID string, window time.Duration) (bool, error) {
	cutoff := time.Now().Add(-window)

	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM admin_notifications
		WHERE order_id = ? AND type = ? AND created_at > ?`,
		orderID, model.NotificationTypeEscalation, cutoff).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check recent escalations: %w", err)
	}
	return count > 0, nil
}

// ListEscalationsForOrder implements NotificationStore.ListEscalationsForOrder
func (s *SQLiteNotificationStore) ListEscalationsForOrder(ctx context.Context, orderID string, limit int) ([]*model.AdminNotification, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, recipient_id, type, title, message, priority,
			action_ref, metadata, created_at
		FROM admin_notifications
		WHERE order_id = ? AND type = ?
		ORDER BY created_at DESC
		LIMIT ?`,
		orderID, model.NotificationTypeEscalation, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list escalations: %w", err)
	}
	defer rows.Close()

	var notifications []*model.AdminNotification
	for rows.Next() {
		n := &model.AdminNotification{}
		var actionRef, metadata sql.NullString

		err := rows.Scan(
			&n.ID,
			&n.RecipientID,
			&n.Type,
			&n.Title,
			&n.Message,
			&n.Priority,
			&actionRef,
			&metadata,
			&n.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan admin notification: %w", err)
		}

		if actionRef.Valid {
			n.ActionRef = actionRef.String
		}
		if metadata.Valid && metadata.String != "" {
			n.Metadata = []byte(metadata.String)
		}

		notifications = append(notifications, n)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}

	return notifications, nil
}

// ListActiveByRoles implements AdminDirectory.ListActiveByRoles
func (s *SQLiteNotificationStore) ListActiveByRoles(ctx context.Context, roles []string, limit int) ([]*model.AdminUser, error) {
	if len(roles) == 0 {
		return nil, nil
	}

	query := "SELECT id, email, role, is_active FROM admin_users WHERE is_active = 1 AND role IN ("
	args := make([]interface{}, 0, len(roles)+1)
	for i, role := range roles {
		if i > 0 {
			query += ", "
		}
		query += "?"
		args = append(args, role)
	}
	query += ") ORDER BY id ASC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list admins: %w", err)
	}
	defer rows.Close()

	var admins []*model.AdminUser
	for rows.Next() {
		admin := &model.AdminUser{}
		if err := rows.Scan(&admin.ID, &admin.Email, &admin.Role, &admin.IsActive); err != nil {
			return nil, fmt.Errorf("failed to scan admin user: %w", err)
		}
		admins = append(admins, admin)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}

	return admins, nil
}
