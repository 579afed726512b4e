package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/veritrail/sla-monitor/internal/escalation"
	"github.com/veritrail/sla-monitor/internal/events"
	"github.com/veritrail/sla-monitor/internal/fanout"
	"github.com/veritrail/sla-monitor/internal/monitor"
	"github.com/veritrail/sla-monitor/internal/storage"
)

func main() {
	// Initialize logger
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	// Load configuration
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config")
	viper.SetDefault("sweep.sla_interval", "5m")
	viper.SetDefault("sweep.escalation_interval", "7m")
	viper.SetDefault("sweep.op_timeout", "10s")
	viper.SetDefault("metrics.interval", "1m")
	viper.SetDefault("db.path", "sla_monitor.db")
	if err := viper.ReadInConfig(); err != nil {
		logger.Fatal("Failed to read config file", zap.Error(err))
	}

	// Connect to NATS with more options
	opts := []nats.Option{
		nats.Name(viper.GetString("app.name")),
		nats.MaxReconnects(viper.GetInt("nats.max_reconnects")),
		nats.ReconnectWait(viper.GetDuration("nats.reconnect_wait")),
		nats.Timeout(viper.GetDuration("nats.connect_timeout")),
		nats.PingInterval(20 * time.Second),
		nats.MaxPingsOutstanding(5),
		nats.DrainTimeout(30 * time.Second),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			logger.Error("NATS connection error", zap.Error(err))
		}),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected",
				zap.String("url", nc.ConnectedUrl()))
		}),
	}

	// Connect with retry
	var nc *nats.Conn
	maxRetries := 5
	for i := 0; i < maxRetries; i++ {
		nc, err = nats.Connect(viper.GetString("nats.urls.0"), opts...)
		if err == nil {
			break
		}
		logger.Warn("Failed to connect to NATS, retrying...",
			zap.Int("attempt", i+1),
			zap.Error(err))
		time.Sleep(time.Second * time.Duration(i+1))
	}
	if err != nil {
		logger.Fatal("Failed to connect to NATS after retries", zap.Error(err))
	}
	defer nc.Close()

	logger.Info("Connected to NATS successfully",
		zap.String("url", nc.ConnectedUrl()))

	// Create JetStream context
	js, err := nc.JetStream()
	if err != nil {
		logger.Fatal("Failed to create JetStream context", zap.Error(err))
	}

	// Open database and build the stores
	db, err := storage.Open(logger, viper.GetString("db.path"))
	if err != nil {
		logger.Fatal("Failed to open database", zap.Error(err))
	}
	defer db.Close()

	orders := storage.NewSQLiteOrderSource(db, logger)
	configs := storage.NewSQLiteConfigSource(db, logger)
	alerts := storage.NewSQLiteAlertStore(db, logger)
	rules := storage.NewSQLiteRuleStore(db, logger)
	notifications := storage.NewSQLiteNotificationStore(db, logger)

	// Event publisher
	publisher, err := events.NewPublisher(js, logger)
	if err != nil {
		logger.Fatal("Failed to create event publisher", zap.Error(err))
	}

	// Email transport, injected into the fanout at construction time
	emailSender := fanout.NewGomailSender(fanout.SMTPConfig{
		Host:     viper.GetString("smtp.host"),
		Port:     viper.GetInt("smtp.port"),
		Username: viper.GetString("smtp.username"),
		Password: viper.GetString("smtp.password"),
		From:     viper.GetString("smtp.from"),
	}, logger)

	// One bound for every per-record storage and transport call, shared by
	// the sweeper, the engine, and the fanout.
	opTimeout := viper.GetDuration("sweep.op_timeout")

	fn := fanout.New(emailSender, notifications, notifications, opTimeout, logger)
	engine := escalation.NewEngine(rules, alerts, notifications, fn, publisher, opTimeout, logger)

	sweeper := monitor.NewSweeper(orders, configs, alerts, engine, publisher, monitor.SweeperConfig{
		SLAInterval:        viper.GetDuration("sweep.sla_interval"),
		EscalationInterval: viper.GetDuration("sweep.escalation_interval"),
		OpTimeout:          opTimeout,
	}, logger)

	metrics := monitor.NewMetricsReporter(js, viper.GetDuration("metrics.interval"), logger)
	sweeper.SetMetrics(metrics)

	// Setup signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
		cancel()
	}()

	metrics.Start(ctx)
	if err := sweeper.Start(ctx); err != nil {
		logger.Fatal("Failed to start sweeper", zap.Error(err))
	}

	// Wait for shutdown signal
	<-ctx.Done()

	// Graceful shutdown: let in-flight sweeps finish within the grace period
	done := make(chan struct{})
	go func() {
		sweeper.Stop()
		metrics.Stop()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("Monitor shut down gracefully")
	case <-time.After(15 * time.Second):
		logger.Warn("Shutdown grace period exceeded, exiting")
	}
}
