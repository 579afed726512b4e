package escalation

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/veritrail/sla-monitor/internal/events"
	"github.com/veritrail/sla-monitor/internal/fanout"
	"github.com/veritrail/sla-monitor/internal/model"
	"github.com/veritrail/sla-monitor/internal/storage"
)

// dedupWindow suppresses repeat escalations for the same order. The check
// runs over the notification log, so the guarantee is eventual rather than
// strict; the scheduler's run lock keeps same-sweep overlap out.
const dedupWindow = 60 * time.Minute

const defaultManualRuleName = "Manual escalation"

// historyLimit caps GetHistory results per order.
const historyLimit = 50

const defaultOpTimeout = 10 * time.Second

// Engine matches unacknowledged breaches against active escalation rules
// and hands passing pairs to the notification fanout. Escalation level is
// fixed at 1; there is no progression on repeated breaches. Each storage
// call carries its own opTimeout bound so a stuck read fails one pair, not
// the whole pass.
type Engine struct {
	logger        *zap.Logger
	rules         storage.RuleStore
	alerts        storage.AlertStore
	notifications storage.NotificationStore
	fanout        *fanout.Fanout
	publisher     *events.Publisher
	opTimeout     time.Duration
}

// NewEngine creates a new escalation engine
func NewEngine(
	rules storage.RuleStore,
	alerts storage.AlertStore,
	notifications storage.NotificationStore,
	fn *fanout.Fanout,
	publisher *events.Publisher,
	opTimeout time.Duration,
	logger *zap.Logger,
) *Engine {
	if opTimeout <= 0 {
		opTimeout = defaultOpTimeout
	}
	return &Engine{
		logger:        logger.Named("escalation-engine"),
		rules:         rules,
		alerts:        alerts,
		notifications: notifications,
		fanout:        fn,
		publisher:     publisher,
		opTimeout:     opTimeout,
	}
}

// Run executes one escalation pass over all unacknowledged breaches and
// returns the number of escalations delivered. A failure to load the rule
// or breach list aborts the pass; per-pair failures are logged and skipped.
func (e *Engine) Run(ctx context.Context) (int, error) {
	listCtx, cancel := context.WithTimeout(ctx, e.opTimeout)
	rules, err := e.rules.ListActiveByTrigger(listCtx, model.TriggerTypeSLABreach)
	cancel()
	if err != nil {
		return 0, fmt.Errorf("failed to load escalation rules: %w", err)
	}

	listCtx, cancel = context.WithTimeout(ctx, e.opTimeout)
	breaches, err := e.alerts.ListUnacknowledgedBreaches(listCtx)
	cancel()
	if err != nil {
		return 0, fmt.Errorf("failed to load unacknowledged breaches: %w", err)
	}

	escalated := 0
	for _, rule := range rules {
		for _, breach := range breaches {
			ok, err := e.escalate(ctx, rule, breach)
			if err != nil {
				e.logger.Error("Escalation failed",
					zap.String("order_id", breach.OrderID),
					zap.String("rule_id", rule.ID),
					zap.Error(err))
				continue
			}
			if ok {
				escalated++
			}
		}
	}

	e.publishSummary(events.Event{
		Type: events.EventEscalationCompleted,
		Summary: map[string]int{
			"rules":     len(rules),
			"breaches":  len(breaches),
			"escalated": escalated,
		},
	})

	e.logger.Info("Escalation pass completed",
		zap.Int("rules", len(rules)),
		zap.Int("breaches", len(breaches)),
		zap.Int("escalated", escalated))

	return escalated, nil
}

// escalate applies the delay and dedup gates to one (rule, breach) pair and
// delivers when both pass.
func (e *Engine) escalate(ctx context.Context, rule *model.EscalationRule, breach *model.SLAAlert) (bool, error) {
	now := time.Now()

	// Delay gate: the breach must have aged past the rule's delay before
	// it is eligible.
	if rule.DelayMinutes > 0 {
		readCtx, cancel := context.WithTimeout(ctx, e.opTimeout)
		latest, err := e.alerts.LatestForOrder(readCtx, breach.OrderID)
		cancel()
		if err != nil {
			return false, fmt.Errorf("failed to load latest alert: %w", err)
		}
		if latest != nil && now.Sub(latest.CreatedAt) < time.Duration(rule.DelayMinutes)*time.Minute {
			e.logger.Debug("Escalation delayed",
				zap.String("order_id", breach.OrderID),
				zap.String("rule_id", rule.ID),
				zap.Int("delay_minutes", rule.DelayMinutes))
			return false, nil
		}
	}

	// Dedup gate: skip orders escalated within the window.
	readCtx, cancel := context.WithTimeout(ctx, e.opTimeout)
	recent, err := e.notifications.HasRecentEscalation(readCtx, breach.OrderID, dedupWindow)
	cancel()
	if err != nil {
		return false, fmt.Errorf("failed to check recent escalations: %w", err)
	}
	if recent {
		e.logger.Debug("Escalation deduplicated",
			zap.String("order_id", breach.OrderID),
			zap.String("rule_id", rule.ID))
		return false, nil
	}

	record := &model.EscalationRecord{
		OrderID:     breach.OrderID,
		RuleID:      rule.ID,
		RuleName:    rule.Name,
		Level:       1,
		Recipients:  rule.Path.Emails,
		EscalatedAt: now,
	}

	e.fanout.Deliver(ctx, record)
	return true, nil
}

// ManuallyEscalate escalates a single order on operator demand. It bypasses
// rule matching and both gates, lazily creating a default rule with the
// manual trigger type on first use.
func (e *Engine) ManuallyEscalate(ctx context.Context, orderID, reason string, recipients []string) (*model.EscalationRecord, error) {
	rule, err := e.ensureManualRule(ctx)
	if err != nil {
		return nil, err
	}

	record := &model.EscalationRecord{
		OrderID:     orderID,
		RuleID:      rule.ID,
		RuleName:    rule.Name,
		Level:       1,
		Reason:      reason,
		Recipients:  recipients,
		EscalatedAt: time.Now(),
	}

	e.fanout.Deliver(ctx, record)

	e.publishSummary(events.Event{
		Type:    events.EventEscalationCompleted,
		OrderID: orderID,
		Summary: map[string]int{"escalated": 1},
	})

	e.logger.Info("Manual escalation delivered",
		zap.String("order_id", orderID),
		zap.String("reason", reason),
		zap.Int("recipients", len(recipients)))

	return record, nil
}

// GetHistory returns past escalations of an order, most recent first, as
// recorded in the notification log.
func (e *Engine) GetHistory(ctx context.Context, orderID string) ([]*model.AdminNotification, error) {
	readCtx, cancel := context.WithTimeout(ctx, e.opTimeout)
	defer cancel()
	return e.notifications.ListEscalationsForOrder(readCtx, orderID, historyLimit)
}

// ensureManualRule returns the default manual-trigger rule, creating it on
// first use.
func (e *Engine) ensureManualRule(ctx context.Context) (*model.EscalationRule, error) {
	readCtx, cancel := context.WithTimeout(ctx, e.opTimeout)
	rules, err := e.rules.ListActiveByTrigger(readCtx, model.TriggerTypeManual)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("failed to look up manual rule: %w", err)
	}
	if len(rules) > 0 {
		return rules[0], nil
	}

	rule := &model.EscalationRule{
		Name:        defaultManualRuleName,
		TriggerType: model.TriggerTypeManual,
		IsActive:    true,
	}
	writeCtx, cancel := context.WithTimeout(ctx, e.opTimeout)
	err = e.rules.Create(writeCtx, rule)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("failed to create manual rule: %w", err)
	}
	return rule, nil
}

func (e *Engine) publishSummary(event events.Event) {
	if e.publisher == nil {
		return
	}
	if err := e.publisher.Publish(events.SubjectEscalationCompleted, event); err != nil {
		e.logger.Warn("Failed to publish escalation event", zap.Error(err))
	}
}
