package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/veritrail/sla-monitor/internal/escalation"
	"github.com/veritrail/sla-monitor/internal/events"
	"github.com/veritrail/sla-monitor/internal/model"
	"github.com/veritrail/sla-monitor/internal/sla"
	"github.com/veritrail/sla-monitor/internal/storage"
)

// SweeperConfig holds the sweep scheduling settings.
type SweeperConfig struct {
	// SLAInterval is the period of the full SLA sweep
	SLAInterval time.Duration
	// EscalationInterval is the period of the escalation sweep; keep it
	// offset from SLAInterval so escalation sees durable alert writes
	EscalationInterval time.Duration
	// OpTimeout bounds each per-order storage or transport call
	OpTimeout time.Duration
}

// SweepStats summarizes one SLA sweep.
type SweepStats struct {
	Evaluated int
	Exempt    int
	Warnings  int
	Criticals int
	Breaches  int
	Errors    int
	Duration  time.Duration
}

// Sweeper runs the periodic SLA and escalation sweeps and exposes the
// on-demand per-order paths. Overlapping runs of the same sweep are
// prevented by a per-sweep run lock; the two different sweeps may overlap
// each other since their write paths are disjoint.
type Sweeper struct {
	logger    *zap.Logger
	orders    storage.OrderSource
	configs   storage.ConfigSource
	alerts    storage.AlertStore
	resolver  *sla.Resolver
	evaluator *sla.Evaluator
	engine    *escalation.Engine
	publisher *events.Publisher
	config    SweeperConfig

	cron    *cron.Cron
	metrics *MetricsReporter
	slaMu   sync.Mutex
	escMu   sync.Mutex
}

// cronLogger adapts zap.Logger to cron.Logger
type cronLogger struct {
	logger *zap.Logger
}

func (l *cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Info(msg)
}

func (l *cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, zap.Error(err))
}

// NewSweeper creates a new sweeper
func NewSweeper(
	orders storage.OrderSource,
	configs storage.ConfigSource,
	alerts storage.AlertStore,
	engine *escalation.Engine,
	publisher *events.Publisher,
	config SweeperConfig,
	logger *zap.Logger,
) *Sweeper {
	if config.OpTimeout <= 0 {
		config.OpTimeout = 10 * time.Second
	}

	cl := &cronLogger{logger: logger.Named("cron")}
	return &Sweeper{
		logger:    logger.Named("sweeper"),
		orders:    orders,
		configs:   configs,
		alerts:    alerts,
		resolver:  sla.NewResolver(logger),
		evaluator: sla.NewEvaluator(logger),
		engine:    engine,
		publisher: publisher,
		config:    config,
		cron:      cron.New(cron.WithChain(cron.Recover(cl))),
	}
}

// SetMetrics attaches a metrics reporter. Must be called before Start.
func (s *Sweeper) SetMetrics(r *MetricsReporter) {
	s.metrics = r
}

// Start registers both sweep entries and starts the cron runner.
func (s *Sweeper) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(fmt.Sprintf("@every %s", s.config.SLAInterval), func() {
		sweepCtx, cancel := context.WithTimeout(ctx, s.config.SLAInterval)
		defer cancel()
		if _, err := s.RunSLASweep(sweepCtx); err != nil && err != ErrSweepInProgress {
			s.logger.Error("SLA sweep failed", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule SLA sweep: %w", err)
	}

	_, err = s.cron.AddFunc(fmt.Sprintf("@every %s", s.config.EscalationInterval), func() {
		sweepCtx, cancel := context.WithTimeout(ctx, s.config.EscalationInterval)
		defer cancel()
		if _, err := s.RunEscalationSweep(sweepCtx); err != nil && err != ErrSweepInProgress {
			s.logger.Error("Escalation sweep failed", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule escalation sweep: %w", err)
	}

	s.cron.Start()
	s.logger.Info("Sweeper started",
		zap.Duration("sla_interval", s.config.SLAInterval),
		zap.Duration("escalation_interval", s.config.EscalationInterval))
	return nil
}

// Stop stops the cron runner and waits for in-flight sweeps to finish.
func (s *Sweeper) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("Sweeper stopped")
}

// RunSLASweep evaluates every open order once. Orders are processed
// sequentially; a per-order write failure is logged and skipped, only a
// failure to load the config or order list aborts the sweep.
func (s *Sweeper) RunSLASweep(ctx context.Context) (SweepStats, error) {
	if !s.slaMu.TryLock() {
		s.logger.Warn("SLA sweep skipped, previous run still active")
		return SweepStats{}, ErrSweepInProgress
	}
	defer s.slaMu.Unlock()

	started := time.Now()
	var stats SweepStats

	configs, err := s.configs.ListActiveConfigs(ctx)
	if err != nil {
		return stats, fmt.Errorf("failed to load SLA configs: %w", err)
	}

	orders, err := s.orders.ListOpenOrders(ctx)
	if err != nil {
		return stats, fmt.Errorf("failed to load open orders: %w", err)
	}

	now := time.Now()
	for _, order := range orders {
		config := s.resolver.Resolve(order, configs)
		if config == nil {
			stats.Exempt++
			continue
		}
		stats.Evaluated++

		alert := s.evaluator.Evaluate(order, config, now)
		if alert == nil {
			continue
		}

		opCtx, cancel := context.WithTimeout(ctx, s.config.OpTimeout)
		err := s.alerts.Upsert(opCtx, alert)
		cancel()
		if err != nil {
			stats.Errors++
			s.logger.Error("Failed to write SLA alert",
				zap.String("order_id", order.ID),
				zap.String("alert_type", string(alert.AlertType)),
				zap.Error(err))
			continue
		}

		switch alert.AlertType {
		case model.AlertTypeWarning:
			stats.Warnings++
		case model.AlertTypeCritical:
			stats.Criticals++
		case model.AlertTypeBreached:
			stats.Breaches++
		}
	}

	stats.Duration = time.Since(started)

	if s.publisher != nil {
		err := s.publisher.Publish(events.SubjectSweepCompleted, events.Event{
			Type: events.EventSweepCompleted,
			Summary: map[string]int{
				"orders":    len(orders),
				"evaluated": stats.Evaluated,
				"exempt":    stats.Exempt,
				"warnings":  stats.Warnings,
				"criticals": stats.Criticals,
				"breaches":  stats.Breaches,
				"errors":    stats.Errors,
			},
		})
		if err != nil {
			s.logger.Warn("Failed to publish sweep event", zap.Error(err))
		}
	}

	if s.metrics != nil {
		s.metrics.RecordSLASweep(stats)
	}

	s.logger.Info("SLA sweep completed",
		zap.Int("orders", len(orders)),
		zap.Int("evaluated", stats.Evaluated),
		zap.Int("exempt", stats.Exempt),
		zap.Int("warnings", stats.Warnings),
		zap.Int("criticals", stats.Criticals),
		zap.Int("breaches", stats.Breaches),
		zap.Int("errors", stats.Errors),
		zap.Duration("duration", stats.Duration))

	return stats, nil
}

// RunEscalationSweep runs one escalation pass and returns the number of
// escalations delivered.
func (s *Sweeper) RunEscalationSweep(ctx context.Context) (int, error) {
	if !s.escMu.TryLock() {
		s.logger.Warn("Escalation sweep skipped, previous run still active")
		return 0, ErrSweepInProgress
	}
	defer s.escMu.Unlock()

	escalated, err := s.engine.Run(ctx)
	if err != nil {
		return 0, err
	}
	if s.metrics != nil {
		s.metrics.RecordEscalationSweep(escalated)
	}
	return escalated, nil
}

// CheckOrderSLAStatus evaluates a single order on demand, writing through
// the same alert upsert path as the batch sweep.
func (s *Sweeper) CheckOrderSLAStatus(ctx context.Context, orderID string) (*model.SLAStatus, error) {
	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to load order: %w", err)
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}

	configs, err := s.configs.ListActiveConfigs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load SLA configs: %w", err)
	}

	now := time.Now()
	config := s.resolver.Resolve(order, configs)
	alert := s.evaluator.Evaluate(order, config, now)
	status := s.evaluator.Status(order, config, alert, now)

	for _, terminal := range model.TerminalOrderStatuses {
		if order.Status == terminal {
			status.Tracked = false
			return status, nil
		}
	}

	if alert != nil {
		opCtx, cancel := context.WithTimeout(ctx, s.config.OpTimeout)
		err := s.alerts.Upsert(opCtx, alert)
		cancel()
		if err != nil {
			s.logger.Error("Failed to write SLA alert",
				zap.String("order_id", order.ID),
				zap.Error(err))
		}
	}

	return status, nil
}

// ManuallyEscalateOrder escalates one order on operator demand, bypassing
// rule matching and the delay and dedup gates.
func (s *Sweeper) ManuallyEscalateOrder(ctx context.Context, orderID, reason string, recipients []string) (*model.EscalationRecord, error) {
	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to load order: %w", err)
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}

	return s.engine.ManuallyEscalate(ctx, orderID, reason, recipients)
}

// GetEscalationHistory returns past escalations of an order, most recent
// first.
func (s *Sweeper) GetEscalationHistory(ctx context.Context, orderID string) ([]*model.AdminNotification, error) {
	return s.engine.GetHistory(ctx, orderID)
}
