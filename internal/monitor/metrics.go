package monitor

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"

	"github.com/veritrail/sla-monitor/internal/events"
)

// MetricsSnapshot is the payload published on the metrics subject.
type MetricsSnapshot struct {
	SLASweeps        int           `json:"sla_sweeps"`
	LastSweep        SweepStats    `json:"last_sweep"`
	EscalationSweeps int           `json:"escalation_sweeps"`
	TotalEscalated   int           `json:"total_escalated"`
	CPUPercent       float64       `json:"cpu_percent"`
	MemoryUsedBytes  uint64        `json:"memory_used_bytes"`
	Uptime           time.Duration `json:"uptime"`
	CollectedAt      time.Time     `json:"collected_at"`
}

// MetricsReporter accumulates sweep outcomes and periodically publishes a
// snapshot, including a host CPU/memory reading, for external dashboards.
type MetricsReporter struct {
	logger   *zap.Logger
	js       nats.JetStreamContext
	interval time.Duration
	started  time.Time

	mu       sync.RWMutex
	snapshot MetricsSnapshot

	stop chan struct{}
}

// NewMetricsReporter creates a new metrics reporter
func NewMetricsReporter(js nats.JetStreamContext, interval time.Duration, logger *zap.Logger) *MetricsReporter {
	return &MetricsReporter{
		logger:   logger.Named("metrics-reporter"),
		js:       js,
		interval: interval,
		started:  time.Now(),
		stop:     make(chan struct{}),
	}
}

// Start starts the reporting loop
func (r *MetricsReporter) Start(ctx context.Context) {
	r.logger.Info("Starting metrics reporter", zap.Duration("interval", r.interval))
	go r.reportLoop(ctx)
}

// Stop stops the reporting loop
func (r *MetricsReporter) Stop() {
	r.logger.Info("Stopping metrics reporter")
	close(r.stop)
}

// RecordSLASweep records the outcome of one SLA sweep
func (r *MetricsReporter) RecordSLASweep(stats SweepStats) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshot.SLASweeps++
	r.snapshot.LastSweep = stats
}

// RecordEscalationSweep records the outcome of one escalation sweep
func (r *MetricsReporter) RecordEscalationSweep(escalated int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshot.EscalationSweeps++
	r.snapshot.TotalEscalated += escalated
}

func (r *MetricsReporter) reportLoop(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stop:
			return
		case <-ticker.C:
			r.publish()
		}
	}
}

func (r *MetricsReporter) publish() {
	r.mu.RLock()
	snapshot := r.snapshot
	r.mu.RUnlock()

	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		snapshot.CPUPercent = percents[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		snapshot.MemoryUsedBytes = vm.Used
	}
	snapshot.Uptime = time.Since(r.started)
	snapshot.CollectedAt = time.Now()

	data, err := json.Marshal(snapshot)
	if err != nil {
		r.logger.Error("Failed to marshal metrics snapshot", zap.Error(err))
		return
	}

	if _, err := r.js.Publish(events.SubjectMetrics, data); err != nil {
		r.logger.Warn("Failed to publish metrics snapshot", zap.Error(err))
		return
	}

	r.logger.Debug("Metrics snapshot published",
		zap.Int("sla_sweeps", snapshot.SLASweeps),
		zap.Int("escalation_sweeps", snapshot.EscalationSweeps))
}
