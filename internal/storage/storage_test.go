package storage

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/veritrail/sla-monitor/internal/model"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := Open(zap.NewNop(), filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func insertOrder(t *testing.T, db *sql.DB, id string, status model.OrderStatus, createdAt time.Time) {
	t.Helper()
	_, err := db.Exec(`
		INSERT INTO orders (id, client_id, package_id, service_type, status, created_at)
		VALUES (?, 'client-a', 'pkg-standard', 'criminal', ?, ?)`,
		id, status, createdAt)
	require.NoError(t, err)
}

func insertAdmin(t *testing.T, db *sql.DB, id, role string, active bool) {
	t.Helper()
	_, err := db.Exec(`
		INSERT INTO admin_users (id, email, role, is_active)
		VALUES (?, ?, ?, ?)`,
		id, id+"@veritrail.example", role, active)
	require.NoError(t, err)
}

func TestOrderSource(t *testing.T) {
	db := openTestDB(t)
	source := NewSQLiteOrderSource(db, zap.NewNop())
	ctx := context.Background()

	now := time.Now()
	insertOrder(t, db, "order-open", model.OrderStatusInProgress, now.Add(-5*time.Hour))
	insertOrder(t, db, "order-pending", model.OrderStatusPending, now.Add(-3*time.Hour))
	insertOrder(t, db, "order-done", model.OrderStatusCompleted, now.Add(-50*time.Hour))
	insertOrder(t, db, "order-cancelled", model.OrderStatusCancelled, now.Add(-50*time.Hour))
	insertOrder(t, db, "order-failed", model.OrderStatusFailed, now.Add(-50*time.Hour))

	t.Run("ListOpenOrders excludes terminal statuses", func(t *testing.T) {
		orders, err := source.ListOpenOrders(ctx)
		require.NoError(t, err)
		require.Len(t, orders, 2)
		assert.Equal(t, "order-open", orders[0].ID)
		assert.Equal(t, "order-pending", orders[1].ID)
	})

	t.Run("GetOrder returns projection", func(t *testing.T) {
		order, err := source.GetOrder(ctx, "order-open")
		require.NoError(t, err)
		require.NotNil(t, order)
		assert.Equal(t, "client-a", order.ClientID)
		assert.Equal(t, model.OrderStatusInProgress, order.Status)
	})

	t.Run("GetOrder returns nil for missing order", func(t *testing.T) {
		order, err := source.GetOrder(ctx, "no-such-order")
		require.NoError(t, err)
		assert.Nil(t, order)
	})
}

func TestAlertStore_UpsertIdempotent(t *testing.T) {
	db := openTestDB(t)
	store := NewSQLiteAlertStore(db, zap.NewNop())
	ctx := context.Background()

	alert := &model.SLAAlert{
		OrderID:        "order-1",
		AlertType:      model.AlertTypeBreached,
		Severity:       model.AlertSeverityCritical,
		Message:        "first message",
		HoursRemaining: -1.0,
		DueDate:        time.Now().Add(-time.Hour),
	}
	require.NoError(t, store.Upsert(ctx, alert))

	// Re-evaluating the same breach state refreshes the row in place
	refreshed := &model.SLAAlert{
		OrderID:        "order-1",
		AlertType:      model.AlertTypeBreached,
		Severity:       model.AlertSeverityCritical,
		Message:        "second message",
		HoursRemaining: -2.5,
		DueDate:        alert.DueDate,
	}
	require.NoError(t, store.Upsert(ctx, refreshed))

	count, err := store.CountForOrder(ctx, "order-1", model.AlertTypeBreached)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	stored, err := store.Get(ctx, "order-1", model.AlertTypeBreached)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, alert.ID, stored.ID)
	assert.Equal(t, "second message", stored.Message)
	assert.InDelta(t, -2.5, stored.HoursRemaining, 0.01)

	// A different alert type for the same order is its own row
	warning := &model.SLAAlert{
		OrderID:        "order-1",
		AlertType:      model.AlertTypeWarning,
		Severity:       model.AlertSeverityMedium,
		Message:        "warning",
		HoursRemaining: 10,
		DueDate:        time.Now().Add(10 * time.Hour),
	}
	require.NoError(t, store.Upsert(ctx, warning))

	count, err = store.CountForOrder(ctx, "order-1", model.AlertTypeWarning)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestAlertStore_Queries(t *testing.T) {
	db := openTestDB(t)
	store := NewSQLiteAlertStore(db, zap.NewNop())
	ctx := context.Background()

	older := &model.SLAAlert{
		OrderID:        "order-1",
		AlertType:      model.AlertTypeWarning,
		Severity:       model.AlertSeverityMedium,
		Message:        "warning",
		HoursRemaining: 10,
		DueDate:        time.Now().Add(10 * time.Hour),
		CreatedAt:      time.Now().Add(-2 * time.Hour),
	}
	require.NoError(t, store.Upsert(ctx, older))

	breach := &model.SLAAlert{
		OrderID:        "order-1",
		AlertType:      model.AlertTypeBreached,
		Severity:       model.AlertSeverityCritical,
		Message:        "breach",
		HoursRemaining: -1,
		DueDate:        time.Now().Add(-time.Hour),
		CreatedAt:      time.Now().Add(-30 * time.Minute),
	}
	require.NoError(t, store.Upsert(ctx, breach))

	acked := &model.SLAAlert{
		OrderID:        "order-2",
		AlertType:      model.AlertTypeBreached,
		Severity:       model.AlertSeverityCritical,
		Message:        "acknowledged breach",
		HoursRemaining: -5,
		DueDate:        time.Now().Add(-5 * time.Hour),
		Acknowledged:   true,
	}
	require.NoError(t, store.Upsert(ctx, acked))

	t.Run("ListUnacknowledgedBreaches", func(t *testing.T) {
		breaches, err := store.ListUnacknowledgedBreaches(ctx)
		require.NoError(t, err)
		require.Len(t, breaches, 1)
		assert.Equal(t, "order-1", breaches[0].OrderID)
	})

	t.Run("LatestForOrder returns newest alert", func(t *testing.T) {
		latest, err := store.LatestForOrder(ctx, "order-1")
		require.NoError(t, err)
		require.NotNil(t, latest)
		assert.Equal(t, model.AlertTypeBreached, latest.AlertType)
	})

	t.Run("LatestForOrder returns nil when none", func(t *testing.T) {
		latest, err := store.LatestForOrder(ctx, "order-9")
		require.NoError(t, err)
		assert.Nil(t, latest)
	})
}

func TestRuleStore(t *testing.T) {
	db := openTestDB(t)
	store := NewSQLiteRuleStore(db, zap.NewNop())
	ctx := context.Background()

	first := &model.EscalationRule{
		Name:        "Breach escalation",
		TriggerType: model.TriggerTypeSLABreach,
		Path: model.EscalationPath{
			Emails: []string{"ops@veritrail.example"},
		},
		DelayMinutes: 30,
		IsActive:     true,
		CreatedAt:    time.Now().Add(-time.Hour),
	}
	require.NoError(t, store.Create(ctx, first))

	second := &model.EscalationRule{
		Name:        "Second breach escalation",
		TriggerType: model.TriggerTypeSLABreach,
		IsActive:    true,
	}
	require.NoError(t, store.Create(ctx, second))

	inactive := &model.EscalationRule{
		Name:        "Disabled",
		TriggerType: model.TriggerTypeSLABreach,
		IsActive:    false,
	}
	require.NoError(t, store.Create(ctx, inactive))

	manual := &model.EscalationRule{
		Name:        "Manual escalation",
		TriggerType: model.TriggerTypeManual,
		IsActive:    true,
	}
	require.NoError(t, store.Create(ctx, manual))

	t.Run("ListActiveByTrigger filters and orders by creation", func(t *testing.T) {
		rules, err := store.ListActiveByTrigger(ctx, model.TriggerTypeSLABreach)
		require.NoError(t, err)
		require.Len(t, rules, 2)
		assert.Equal(t, first.ID, rules[0].ID)
		assert.Equal(t, []string{"ops@veritrail.example"}, rules[0].Path.Emails)
		assert.Equal(t, 30, rules[0].DelayMinutes)
		assert.Equal(t, second.ID, rules[1].ID)
	})

	t.Run("Manual trigger rules are separate", func(t *testing.T) {
		rules, err := store.ListActiveByTrigger(ctx, model.TriggerTypeManual)
		require.NoError(t, err)
		require.Len(t, rules, 1)
		assert.Equal(t, manual.ID, rules[0].ID)
	})
}

func TestNotificationStore(t *testing.T) {
	db := openTestDB(t)
	store := NewSQLiteNotificationStore(db, zap.NewNop())
	ctx := context.Background()

	escalation := func(orderID string, age time.Duration) *model.AdminNotification {
		return &model.AdminNotification{
			RecipientID: "admin-1",
			Type:        model.NotificationTypeEscalation,
			Title:       "Order escalated",
			Message:     "escalated",
			Priority:    model.NotificationPriorityHigh,
			ActionRef:   "/orders/" + orderID,
			CreatedAt:   time.Now().Add(-age),
		}
	}

	t.Run("HasRecentEscalation inside window", func(t *testing.T) {
		require.NoError(t, store.Create(ctx, escalation("order-1", 5*time.Minute), "order-1"))

		recent, err := store.HasRecentEscalation(ctx, "order-1", 60*time.Minute)
		require.NoError(t, err)
		assert.True(t, recent)
	})

	t.Run("HasRecentEscalation outside window", func(t *testing.T) {
		require.NoError(t, store.Create(ctx, escalation("order-2", 90*time.Minute), "order-2"))

		recent, err := store.HasRecentEscalation(ctx, "order-2", 60*time.Minute)
		require.NoError(t, err)
		assert.False(t, recent)
	})

	t.Run("ListEscalationsForOrder newest first", func(t *testing.T) {
		require.NoError(t, store.Create(ctx, escalation("order-3", 2*time.Hour), "order-3"))
		require.NoError(t, store.Create(ctx, escalation("order-3", 10*time.Minute), "order-3"))

		history, err := store.ListEscalationsForOrder(ctx, "order-3", 10)
		require.NoError(t, err)
		require.Len(t, history, 2)
		assert.True(t, history[0].CreatedAt.After(history[1].CreatedAt))
	})
}

func TestAdminDirectory(t *testing.T) {
	db := openTestDB(t)
	store := NewSQLiteNotificationStore(db, zap.NewNop())
	ctx := context.Background()

	for i := 0; i < 7; i++ {
		insertAdmin(t, db, fmt.Sprintf("admin-%d", i), "admin", true)
	}
	insertAdmin(t, db, "ops-1", "operations_manager", true)
	insertAdmin(t, db, "inactive-1", "admin", false)
	insertAdmin(t, db, "support-1", "support", true)

	t.Run("Limits and filters by role", func(t *testing.T) {
		admins, err := store.ListActiveByRoles(ctx, []string{"admin", "operations_manager"}, 5)
		require.NoError(t, err)
		assert.Len(t, admins, 5)
		for _, admin := range admins {
			assert.True(t, admin.IsActive)
			assert.Contains(t, []string{"admin", "operations_manager"}, admin.Role)
		}
	})

	t.Run("Empty role list returns nothing", func(t *testing.T) {
		admins, err := store.ListActiveByRoles(ctx, nil, 5)
		require.NoError(t, err)
		assert.Empty(t, admins)
	})
}
