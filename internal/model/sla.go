package model

import "time"

// AlertSeverity represents the severity level of an SLA alert
type AlertSeverity string

const (
	AlertSeverityMedium   AlertSeverity = "medium"
	AlertSeverityHigh     AlertSeverity = "high"
	AlertSeverityCritical AlertSeverity = "critical"
)

// AlertType represents the breach state an alert describes
type AlertType string

const (
	AlertTypeWarning  AlertType = "warning"
	AlertTypeCritical AlertType = "critical"
	AlertTypeBreached AlertType = "breached"
)

// SLAConfig is an operator-maintained turnaround-time policy. Nil scope
// fields act as wildcards; the resolver picks the most specific match.
type SLAConfig struct {
	ID                   string    `json:"id"`
	Name                 string    `json:"name"`
	ClientID             *string   `json:"client_id,omitempty"`
	PackageID            *string   `json:"package_id,omitempty"`
	ServiceType          *string   `json:"service_type,omitempty"`
	TargetTATDays        int       `json:"target_tat_days"`
	WarningThresholdHrs  float64   `json:"warning_threshold_hrs"`
	CriticalThresholdHrs float64   `json:"critical_threshold_hrs"`
	IsActive             bool      `json:"is_active"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// SLAAlert is the persistent record of an order's breach state. At most one
// non-deleted row exists per (OrderID, AlertType); re-evaluation refreshes
// the message and hours remaining instead of inserting a duplicate.
type SLAAlert struct {
	ID             string        `json:"id"`
	OrderID        string        `json:"order_id"`
	AlertType      AlertType     `json:"alert_type"`
	Severity       AlertSeverity `json:"severity"`
	Message        string        `json:"message"`
	HoursRemaining float64       `json:"hours_remaining"`
	DueDate        time.Time     `json:"due_date"`
	Acknowledged   bool          `json:"acknowledged"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// SLAStatus is the on-demand evaluation result for a single order.
type SLAStatus struct {
	OrderID        string     `json:"order_id"`
	ConfigID       string     `json:"config_id,omitempty"`
	ConfigName     string     `json:"config_name,omitempty"`
	Tracked        bool       `json:"tracked"`
	AlertType      AlertType  `json:"alert_type,omitempty"`
	HoursElapsed   float64    `json:"hours_elapsed"`
	HoursRemaining float64    `json:"hours_remaining"`
	DueDate        *time.Time `json:"due_date,omitempty"`
}
