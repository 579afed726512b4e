package fanout

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/veritrail/sla-monitor/internal/model"
	"github.com/veritrail/sla-monitor/internal/storage"
)

// OpsRoles is the role allow-list for in-app escalation notifications.
var OpsRoles = []string{"admin", "operations_manager", "compliance_officer"}

// maxNotifiedAdmins caps the in-app audience per escalation.
const maxNotifiedAdmins = 5

const defaultOpTimeout = 10 * time.Second

// Result reports what a delivery actually did.
type Result struct {
	EmailSent            bool
	NotificationsCreated int
}

// Fanout delivers an escalation record to its audiences: one multi-recipient
// email to the rule's configured addresses and one in-app notification per
// matching ops-role admin. The two audiences are derived independently and
// each leg is best-effort; an email transport failure never blocks the
// notification writes. Every transport and storage call carries its own
// opTimeout bound, so a hung SMTP dial fails only the email leg of one
// record instead of eating the caller's deadline.
type Fanout struct {
	logger        *zap.Logger
	email         EmailSender
	notifications storage.NotificationStore
	admins        storage.AdminDirectory
	opTimeout     time.Duration
}

// New creates a new notification fanout
func New(email EmailSender, notifications storage.NotificationStore, admins storage.AdminDirectory, opTimeout time.Duration, logger *zap.Logger) *Fanout {
	if opTimeout <= 0 {
		opTimeout = defaultOpTimeout
	}
	return &Fanout{
		logger:        logger.Named("fanout"),
		email:         email,
		notifications: notifications,
		admins:        admins,
		opTimeout:     opTimeout,
	}
}

// Deliver runs both delivery legs for the record.
func (f *Fanout) Deliver(ctx context.Context, record *model.EscalationRecord) Result {
	var result Result

	if len(record.Recipients) > 0 {
		subject := fmt.Sprintf("[ESCALATION] Order %s requires attention", record.OrderID)
		sendCtx, cancel := context.WithTimeout(ctx, f.opTimeout)
		err := f.email.Send(sendCtx, record.Recipients, subject, escalationBody(record))
		cancel()
		if err != nil {
			f.logger.Error("Failed to send escalation email",
				zap.String("order_id", record.OrderID),
				zap.String("rule_id", record.RuleID),
				zap.Error(err))
		} else {
			result.EmailSent = true
		}
	}

	result.NotificationsCreated = f.notifyAdmins(ctx, record)

	f.logger.Info("Escalation delivered",
		zap.String("order_id", record.OrderID),
		zap.String("rule_name", record.RuleName),
		zap.Bool("email_sent", result.EmailSent),
		zap.Int("notifications", result.NotificationsCreated))

	return result
}

// notifyAdmins creates one in-app notification per matching admin, up to
// the cap. Per-record write failures are logged and skipped.
func (f *Fanout) notifyAdmins(ctx context.Context, record *model.EscalationRecord) int {
	listCtx, cancel := context.WithTimeout(ctx, f.opTimeout)
	admins, err := f.admins.ListActiveByRoles(listCtx, OpsRoles, maxNotifiedAdmins)
	cancel()
	if err != nil {
		f.logger.Error("Failed to list admins for notification",
			zap.String("order_id", record.OrderID),
			zap.Error(err))
		return 0
	}

	metadata, err := json.Marshal(map[string]interface{}{
		"order_id":  record.OrderID,
		"rule_id":   record.RuleID,
		"rule_name": record.RuleName,
		"level":     record.Level,
	})
	if err != nil {
		f.logger.Error("Failed to marshal notification metadata", zap.Error(err))
		metadata = nil
	}

	created := 0
	for _, admin := range admins {
		notification := &model.AdminNotification{
			RecipientID: admin.ID,
			Type:        model.NotificationTypeEscalation,
			Title:       fmt.Sprintf("Order %s escalated", record.OrderID),
			Message: fmt.Sprintf("Order %s was escalated under rule %q at %s",
				record.OrderID, record.RuleName, record.EscalatedAt.Format("2006-01-02 15:04 MST")),
			Priority:  model.NotificationPriorityHigh,
			ActionRef: fmt.Sprintf("/orders/%s", record.OrderID),
			Metadata:  metadata,
		}

		writeCtx, cancel := context.WithTimeout(ctx, f.opTimeout)
		err := f.notifications.Create(writeCtx, notification, record.OrderID)
		cancel()
		if err != nil {
			f.logger.Error("Failed to create admin notification",
				zap.String("order_id", record.OrderID),
				zap.String("recipient_id", admin.ID),
				zap.Error(err))
			continue
		}
		created++
	}

	return created
}

func escalationBody(record *model.EscalationRecord) string {
	reason := record.Reason
	if reason == "" {
		reason = "SLA breach"
	}
	return fmt.Sprintf(`<html><body>
<h2>Order Escalation</h2>
<p>An order has been escalated and requires urgent attention.</p>
<table cellpadding="4">
<tr><td><b>Order ID</b></td><td>%s</td></tr>
<tr><td><b>Rule</b></td><td>%s</td></tr>
<tr><td><b>Reason</b></td><td>%s</td></tr>
<tr><td><b>Escalated at</b></td><td>%s</td></tr>
<tr><td><b>Level</b></td><td>%d</td></tr>
</table>
</body></html>`,
		record.OrderID,
		record.RuleName,
		reason,
		record.EscalatedAt.Format("2006-01-02 15:04:05 MST"),
		record.Level)
}
