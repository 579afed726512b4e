package storage

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// Open opens the SQLite database at path and ensures the schema exists.
// All stores in this package share the returned handle.
func Open(logger *zap.Logger, path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := initialize(db); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("Database opened", zap.String("path", path))
	return db, nil
}

// initialize creates the necessary tables if they don't exist
func initialize(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS orders (
			id TEXT PRIMARY KEY,
			client_id TEXT NOT NULL,
			package_id TEXT NOT NULL,
			service_type TEXT NOT NULL,
			status TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			expected_completion_at DATETIME
		);
		CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status);

		CREATE TABLE IF NOT EXISTS sla_configs (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			client_id TEXT,
			package_id TEXT,
			service_type TEXT,
			target_tat_days INTEGER NOT NULL,
			warning_threshold_hrs REAL NOT NULL,
			critical_threshold_hrs REAL NOT NULL,
			is_active INTEGER NOT NULL DEFAULT 1,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_sla_configs_active ON sla_configs(is_active);

		CREATE TABLE IF NOT EXISTS sla_alerts (
			id TEXT PRIMARY KEY,
			order_id TEXT NOT NULL,
			alert_type TEXT NOT NULL,
			severity TEXT NOT NULL,
			message TEXT NOT NULL,
			hours_remaining REAL NOT NULL,
			due_date DATETIME NOT NULL,
			acknowledged INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			UNIQUE(order_id, alert_type)
		);
		CREATE INDEX IF NOT EXISTS idx_sla_alerts_order_id ON sla_alerts(order_id);
		CREATE INDEX IF NOT EXISTS idx_sla_alerts_type ON sla_alerts(alert_type);

		CREATE TABLE IF NOT EXISTS escalation_rules (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			trigger_type TEXT NOT NULL,
			trigger_config TEXT,
			escalation_path TEXT NOT NULL,
			delay_minutes INTEGER NOT NULL DEFAULT 0,
			is_active INTEGER NOT NULL DEFAULT 1,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		);

		CREATE TABLE IF NOT EXISTS admin_notifications (
			id TEXT PRIMARY KEY,
			recipient_id TEXT NOT NULL,
			type TEXT NOT NULL,
			title TEXT NOT NULL,
			message TEXT NOT NULL,
			priority TEXT NOT NULL,
			action_ref TEXT,
			metadata TEXT,
			order_id TEXT,
			created_at DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_admin_notifications_order ON admin_notifications(order_id, type, created_at);
		CREATE INDEX IF NOT EXISTS idx_admin_notifications_recipient ON admin_notifications(recipient_id);

		CREATE TABLE IF NOT EXISTS admin_users (
			id TEXT PRIMARY KEY,
			email TEXT NOT NULL,
			role TEXT NOT NULL,
			is_active INTEGER NOT NULL DEFAULT 1
		);
		CREATE INDEX IF NOT EXISTS idx_admin_users_role ON admin_users(role);
	`)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	return nil
}
