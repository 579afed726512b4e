package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const (
	streamName = "SLA_EVENTS"

	// SubjectSweepCompleted carries the summary of one full SLA sweep
	SubjectSweepCompleted = "sla.sweep.completed"
	// SubjectEscalationCompleted carries the summary of one escalation run
	SubjectEscalationCompleted = "sla.escalation.completed"
	// SubjectMetrics carries periodic sweep/host metrics snapshots
	SubjectMetrics = "sla.metrics"

	streamMaxAge = 24 * time.Hour
)

// Event types published on the bus
const (
	EventSweepCompleted      = "sla_breach_check_completed"
	EventEscalationCompleted = "escalation_completed"
)

// Event is the envelope for everything published on the SLA channel.
// Downstream services (candidate portal, client dashboards) consume these;
// delivery is fire-and-forget with no acknowledgement tracked here.
type Event struct {
	Type      string         `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Summary   map[string]int `json:"summary,omitempty"`
	OrderID   string         `json:"order_id,omitempty"`
}

// Publisher publishes SLA lifecycle events to JetStream.
type Publisher struct {
	js     nats.JetStreamContext
	logger *zap.Logger
}

// NewPublisher creates a publisher and ensures the event stream exists.
func NewPublisher(js nats.JetStreamContext, logger *zap.Logger) (*Publisher, error) {
	p := &Publisher{
		js:     js,
		logger: logger.Named("event-publisher"),
	}

	_, err := js.AddStream(&nats.StreamConfig{
		Name:     streamName,
		Subjects: []string{"sla.>"},
		Storage:  nats.FileStorage,
		MaxAge:   streamMaxAge,
		MaxMsgs:  -1,
	})
	if err != nil {
		if err == nats.ErrStreamNameAlreadyInUse {
			p.logger.Info("Using existing event stream", zap.String("stream", streamName))
			return p, nil
		}
		return nil, fmt.Errorf("failed to create event stream: %w", err)
	}

	p.logger.Info("Event stream created", zap.String("stream", streamName))
	return p, nil
}

// Publish marshals the event and publishes it on the subject. Failures are
// logged and returned but callers treat them as best-effort.
func (p *Publisher) Publish(subject string, event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if _, err := p.js.Publish(subject, data); err != nil {
		p.logger.Error("Failed to publish event",
			zap.String("subject", subject),
			zap.String("type", event.Type),
			zap.Error(err))
		return fmt.Errorf("failed to publish event: %w", err)
	}

	p.logger.Debug("Event published",
		zap.String("subject", subject),
		zap.String("type", event.Type))
	return nil
}
