package model

import "time"

// OrderStatus represents the processing status of an order
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusInProgress OrderStatus = "in_progress"
	OrderStatusOnHold     OrderStatus = "on_hold"
	OrderStatusCompleted  OrderStatus = "completed"
	OrderStatusCancelled  OrderStatus = "cancelled"
	OrderStatusFailed     OrderStatus = "failed"
)

// TerminalOrderStatuses are excluded from SLA tracking.
var TerminalOrderStatuses = []OrderStatus{
	OrderStatusCompleted,
	OrderStatusCancelled,
	OrderStatusFailed,
}

// OrderSLAInfo is a read-only projection of an order, fetched fresh each
// evaluation cycle.
type OrderSLAInfo struct {
	ID                   string      `json:"id"`
	ClientID             string      `json:"client_id"`
	PackageID            string      `json:"package_id"`
	ServiceType          string      `json:"service_type"`
	Status               OrderStatus `json:"status"`
	CreatedAt            time.Time   `json:"created_at"`
	ExpectedCompletionAt *time.Time  `json:"expected_completion_at,omitempty"`
}
