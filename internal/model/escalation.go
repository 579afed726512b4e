package model

import (
	"encoding/json"
	"time"
)

// TriggerType defines what causes an escalation rule to fire
type TriggerType string

const (
	TriggerTypeSLABreach TriggerType = "sla_breach"
	TriggerTypeManual    TriggerType = "manual"
)

// EscalationPath names who an escalation reaches.
type EscalationPath struct {
	Emails  []string `json:"emails,omitempty"`
	UserIDs []string `json:"user_ids,omitempty"`
}

// EscalationRule is an operator-defined escalation policy, evaluated in
// creation order against unacknowledged breaches.
type EscalationRule struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	TriggerType   TriggerType     `json:"trigger_type"`
	TriggerConfig json.RawMessage `json:"trigger_config,omitempty"`
	Path          EscalationPath  `json:"escalation_path"`
	DelayMinutes  int             `json:"delay_minutes"`
	IsActive      bool            `json:"is_active"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// EscalationRecord describes one escalation handed to the notification
// fanout. It is not persisted as its own entity; the notifications and bus
// events it produces are its durable trace. Level stays at 1: there is no
// progression on repeated breaches of the same order.
type EscalationRecord struct {
	OrderID     string    `json:"order_id"`
	RuleID      string    `json:"rule_id"`
	RuleName    string    `json:"rule_name"`
	Level       int       `json:"level"`
	Reason      string    `json:"reason,omitempty"`
	Recipients  []string  `json:"recipients"`
	EscalatedAt time.Time `json:"escalated_at"`
}
