package sla

import (
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/veritrail/sla-monitor/internal/model"
)

// Evaluator classifies an order's elapsed time against a resolved SLA
// configuration.
type Evaluator struct {
	logger *zap.Logger
}

// NewEvaluator creates a new SLA evaluator
func NewEvaluator(logger *zap.Logger) *Evaluator {
	return &Evaluator{logger: logger.Named("sla-evaluator")}
}

// Evaluate classifies the order against the config as of now. It returns
// nil when the order is on track; no alert is written and any prior alert
// row is left untouched (acknowledgement is an operator action, the
// evaluator never clears or downgrades).
//
// Classification is breach-first, most severe state wins:
//
//	hoursRemaining <= 0                   -> breached (severity critical)
//	hoursRemaining <= critical threshold  -> critical (severity high)
//	hoursRemaining <= warning threshold   -> warning  (severity medium)
func (e *Evaluator) Evaluate(order *model.OrderSLAInfo, config *model.SLAConfig, now time.Time) *model.SLAAlert {
	if config == nil || config.TargetTATDays <= 0 {
		// Exempt, never a hard failure.
		return nil
	}

	dueDate := order.CreatedAt.AddDate(0, 0, config.TargetTATDays)
	hoursElapsed := now.Sub(order.CreatedAt).Hours()
	totalAllowedHours := float64(config.TargetTATDays) * 24
	hoursRemaining := totalAllowedHours - hoursElapsed

	var alertType model.AlertType
	var severity model.AlertSeverity
	var message string

	switch {
	case hoursRemaining <= 0:
		alertType = model.AlertTypeBreached
		severity = model.AlertSeverityCritical
		message = fmt.Sprintf("Order %s has breached its SLA: %.1f hours over the %d-day turnaround target",
			order.ID, math.Abs(hoursRemaining), config.TargetTATDays)
	case hoursRemaining <= config.CriticalThresholdHrs:
		alertType = model.AlertTypeCritical
		severity = model.AlertSeverityHigh
		message = fmt.Sprintf("Order %s is critically close to its SLA deadline: %.1f hours remaining",
			order.ID, hoursRemaining)
	case hoursRemaining <= config.WarningThresholdHrs:
		alertType = model.AlertTypeWarning
		severity = model.AlertSeverityMedium
		message = fmt.Sprintf("Order %s is approaching its SLA deadline: %.1f hours remaining",
			order.ID, hoursRemaining)
	default:
		return nil
	}

	e.logger.Debug("Order classified",
		zap.String("order_id", order.ID),
		zap.String("alert_type", string(alertType)),
		zap.Float64("hours_remaining", hoursRemaining))

	return &model.SLAAlert{
		OrderID:        order.ID,
		AlertType:      alertType,
		Severity:       severity,
		Message:        message,
		HoursRemaining: hoursRemaining,
		DueDate:        dueDate,
	}
}

// Status builds the on-demand view for a single order from an
// already-computed classification; alert is the result of Evaluate with
// the same arguments (nil when the order is on track or exempt), so
// classification runs once per check.
func (e *Evaluator) Status(order *model.OrderSLAInfo, config *model.SLAConfig, alert *model.SLAAlert, now time.Time) *model.SLAStatus {
	status := &model.SLAStatus{
		OrderID:      order.ID,
		HoursElapsed: now.Sub(order.CreatedAt).Hours(),
	}
	if config == nil || config.TargetTATDays <= 0 {
		return status
	}

	dueDate := order.CreatedAt.AddDate(0, 0, config.TargetTATDays)
	status.Tracked = true
	status.ConfigID = config.ID
	status.ConfigName = config.Name
	status.HoursRemaining = float64(config.TargetTATDays)*24 - status.HoursElapsed
	status.DueDate = &dueDate

	if alert != nil {
		status.AlertType = alert.AlertType
	}
	return status
}
