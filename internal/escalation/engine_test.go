package escalation

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

	"github.com/veritrail/sla-monitor/internal/fanout"
	"github.com/veritrail/sla-monitor/internal/model"
	"github.com/veritrail/sla-monitor/internal/storage"
)

type fakeSender struct {
	sent [][]string
}

func (f *fakeSender) Send(ctx context.Context, to []string, subject, htmlBody string) error {
	f.sent = append(f.sent, to)
	return nil
}

type engineFixture struct {
	engine        *Engine
	sender        *fakeSender
	rules         *storage.SQLiteRuleStore
	alerts        *storage.SQLiteAlertStore
	notifications *storage.SQLiteNotificationStore
	db            *sql.DB
}

func setupEngine(t *testing.T) *engineFixture {
	t.Helper()
	logger := zap.NewNop()

	db, err := storage.Open(logger, filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	rules := storage.NewSQLiteRuleStore(db, logger)
	alerts := storage.NewSQLiteAlertStore(db, logger)
	notifications := storage.NewSQLiteNotificationStore(db, logger)

	sender := &fakeSender{}
	fn := fanout.New(sender, notifications, notifications, 5*time.Second, logger)

	// Two ops admins so deliveries leave dedup markers behind
	for i := 0; i < 2; i++ {
		_, err := db.Exec(`
			INSERT INTO admin_users (id, email, role, is_active)
			VALUES (?, ?, 'admin', 1)`,
			fmt.Sprintf("admin-%d", i), fmt.Sprintf("admin-%d@veritrail.example", i))
		require.NoError(t, err)
	}

	return &engineFixture{
		engine:        NewEngine(rules, alerts, notifications, fn, nil, 5*time.Second, logger),
		sender:        sender,
		rules:         rules,
		alerts:        alerts,
		notifications: notifications,
		db:            db,
	}
}

func (f *engineFixture) seedBreach(t *testing.T, orderID string, age time.Duration) {
	t.Helper()
	require.NoError(t, f.alerts.Upsert(context.Background(), &model.SLAAlert{
		OrderID:        orderID,
		AlertType:      model.AlertTypeBreached,
		Severity:       model.AlertSeverityCritical,
		Message:        "breach",
		HoursRemaining: -2,
		DueDate:        time.Now().Add(-2 * time.Hour),
		CreatedAt:      time.Now().Add(-age),
	}))
}

func (f *engineFixture) seedRule(t *testing.T, delayMinutes int, emails ...string) *model.EscalationRule {
	t.Helper()
	rule := &model.EscalationRule{
		Name:         "Breach escalation",
		TriggerType:  model.TriggerTypeSLABreach,
		Path:         model.EscalationPath{Emails: emails},
		DelayMinutes: delayMinutes,
		IsActive:     true,
	}
	require.NoError(t, f.rules.Create(context.Background(), rule))
	return rule
}

func TestEngine_DelayGate(t *testing.T) {
	ctx := context.Background()

	t.Run("Breach younger than delay is not escalated", func(t *testing.T) {
		f := setupEngine(t)
		f.seedRule(t, 30, "ops@veritrail.example")
		f.seedBreach(t, "order-1", 10*time.Minute)

		escalated, err := f.engine.Run(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, escalated)
		assert.Empty(t, f.sender.sent)
	})

	t.Run("Breach older than delay escalates", func(t *testing.T) {
		f := setupEngine(t)
		f.seedRule(t, 30, "ops@veritrail.example")
		f.seedBreach(t, "order-1", 31*time.Minute)

		escalated, err := f.engine.Run(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, escalated)
		require.Len(t, f.sender.sent, 1)
	})
}

func TestEngine_DedupGate(t *testing.T) {
	ctx := context.Background()

	t.Run("Back-to-back runs escalate once", func(t *testing.T) {
		f := setupEngine(t)
		f.seedRule(t, 0, "ops@veritrail.example")
		f.seedBreach(t, "order-1", time.Hour)

		escalated, err := f.engine.Run(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, escalated)

		escalated, err = f.engine.Run(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, escalated)
		assert.Len(t, f.sender.sent, 1)
	})

	t.Run("Escalation outside the window fires again", func(t *testing.T) {
		f := setupEngine(t)
		f.seedRule(t, 0, "ops@veritrail.example")
		f.seedBreach(t, "order-1", 3*time.Hour)

		// Prior escalation 90 minutes ago, outside the 60-minute window
		require.NoError(t, f.notifications.Create(ctx, &model.AdminNotification{
			RecipientID: "admin-0",
			Type:        model.NotificationTypeEscalation,
			Title:       "Order escalated",
			Message:     "earlier escalation",
			Priority:    model.NotificationPriorityHigh,
			CreatedAt:   time.Now().Add(-90 * time.Minute),
		}, "order-1"))

		escalated, err := f.engine.Run(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, escalated)
	})

	t.Run("Escalation inside the window is suppressed", func(t *testing.T) {
		f := setupEngine(t)
		f.seedRule(t, 0, "ops@veritrail.example")
		f.seedBreach(t, "order-1", 3*time.Hour)

		require.NoError(t, f.notifications.Create(ctx, &model.AdminNotification{
			RecipientID: "admin-0",
			Type:        model.NotificationTypeEscalation,
			Title:       "Order escalated",
			Message:     "recent escalation",
			Priority:    model.NotificationPriorityHigh,
			CreatedAt:   time.Now().Add(-5 * time.Minute),
		}, "order-1"))

		escalated, err := f.engine.Run(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, escalated)
	})
}

// stalledSender models an unreachable relay: the send blocks until its
// context expires.
type stalledSender struct{}

func (stalledSender) Send(ctx context.Context, to []string, subject, htmlBody string) error {
	<-ctx.Done()
	return ctx.Err()
}

// An unreachable relay must cost each record at most the per-call bound;
// every breach still gets its in-app notifications and the pass finishes
// well inside the sweep deadline.
func TestEngine_StalledTransportFailsOnlyTheSend(t *testing.T) {
	f := setupEngine(t)
	logger := zap.NewNop()

	opTimeout := 50 * time.Millisecond
	fn := fanout.New(stalledSender{}, f.notifications, f.notifications, opTimeout, logger)
	engine := NewEngine(f.rules, f.alerts, f.notifications, fn, nil, opTimeout, logger)

	f.seedRule(t, 0, "ops@veritrail.example")
	f.seedBreach(t, "order-1", time.Hour)
	f.seedBreach(t, "order-2", time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	started := time.Now()
	escalated, err := engine.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, escalated)
	assert.Less(t, time.Since(started), time.Second)

	for _, orderID := range []string{"order-1", "order-2"} {
		history, err := f.notifications.ListEscalationsForOrder(ctx, orderID, 10)
		require.NoError(t, err)
		assert.Len(t, history, 2, orderID)
	}
}

func TestEngine_AcknowledgedBreachesIgnored(t *testing.T) {
	f := setupEngine(t)
	f.seedRule(t, 0, "ops@veritrail.example")

	require.NoError(t, f.alerts.Upsert(context.Background(), &model.SLAAlert{
		OrderID:        "order-1",
		AlertType:      model.AlertTypeBreached,
		Severity:       model.AlertSeverityCritical,
		Message:        "breach",
		HoursRemaining: -2,
		DueDate:        time.Now().Add(-2 * time.Hour),
		Acknowledged:   true,
	}))

	escalated, err := f.engine.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, escalated)
}

func TestEngine_ManuallyEscalate(t *testing.T) {
	ctx := context.Background()

	t.Run("Succeeds with no rules and no alert", func(t *testing.T) {
		f := setupEngine(t)

		record, err := f.engine.ManuallyEscalate(ctx, "order-1", "client called twice",
			[]string{"ops@veritrail.example", "manager@veritrail.example"})
		require.NoError(t, err)
		assert.Equal(t, 1, record.Level)
		assert.Equal(t, "client called twice", record.Reason)

		// Default manual rule was lazily created
		rules, err := f.rules.ListActiveByTrigger(ctx, model.TriggerTypeManual)
		require.NoError(t, err)
		require.Len(t, rules, 1)
		assert.Equal(t, record.RuleID, rules[0].ID)

		// One email to both recipients, notifications created
		require.Len(t, f.sender.sent, 1)
		assert.Len(t, f.sender.sent[0], 2)

		history, err := f.engine.GetHistory(ctx, "order-1")
		require.NoError(t, err)
		assert.NotEmpty(t, history)
	})

	t.Run("Reuses the default rule and skips both gates", func(t *testing.T) {
		f := setupEngine(t)

		first, err := f.engine.ManuallyEscalate(ctx, "order-1", "first", nil)
		require.NoError(t, err)

		// Immediately again: no dedup gate for manual escalations
		second, err := f.engine.ManuallyEscalate(ctx, "order-1", "second", nil)
		require.NoError(t, err)
		assert.Equal(t, first.RuleID, second.RuleID)

		rules, err := f.rules.ListActiveByTrigger(ctx, model.TriggerTypeManual)
		require.NoError(t, err)
		assert.Len(t, rules, 1)
	})
}
