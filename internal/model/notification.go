package model

import (
	"encoding/json"
	"time"
)

// NotificationType classifies an in-app admin notification
type NotificationType string

const (
	NotificationTypeEscalation NotificationType = "escalation"
	NotificationTypeSLAAlert   NotificationType = "sla_alert"
)

// NotificationPriority is the display priority of a notification
type NotificationPriority string

const (
	NotificationPriorityNormal NotificationPriority = "normal"
	NotificationPriorityHigh   NotificationPriority = "high"
)

// AdminNotification is a delivered in-app notice. Escalation-typed rows
// referencing an order also serve as the recent-escalation dedup marker.
type AdminNotification struct {
	ID          string               `json:"id"`
	RecipientID string               `json:"recipient_id"`
	Type        NotificationType     `json:"type"`
	Title       string               `json:"title"`
	Message     string               `json:"message"`
	Priority    NotificationPriority `json:"priority"`
	ActionRef   string               `json:"action_ref,omitempty"`
	Metadata    json.RawMessage      `json:"metadata,omitempty"`
	CreatedAt   time.Time            `json:"created_at"`
}

// AdminUser is an entry in the operations staff directory.
type AdminUser struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Role     string `json:"role"`
	IsActive bool   `json:"is_active"`
}
