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

	"github.com/mivius/automaton/internal/api"
	"github.com/mivius/automaton/internal/engine"
	"github.com/mivius/automaton/internal/executor"
	"github.com/mivius/automaton/internal/model"
	"github.com/mivius/automaton/internal/monitor"
	"github.com/mivius/automaton/internal/ratelimit"
	"github.com/mivius/automaton/internal/scheduler"
	"github.com/mivius/automaton/internal/service"
	"github.com/mivius/automaton/internal/storage"
)

func main() {
	// Initialize logger
	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	// Load configuration
	loadConfig(logger)

	// Connect to NATS with more options
	opts := []nats.Option{
		nats.Name(viper.GetString("app.name")),
		nats.MaxReconnects(viper.GetInt("nats.max_reconnects")),
		nats.ReconnectWait(viper.GetDuration("nats.reconnect_wait")),
		nats.Timeout(viper.GetDuration("nats.connect_timeout")),
		nats.PingInterval(20 * time.Second),
		nats.MaxPingsOutstanding(5),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			logger.Error("NATS connection error",
				zap.String("subject", sub.Subject),
				zap.Error(err))
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

	// Create JetStream context and the streams every component relies on
	js, err := nc.JetStream()
	if err != nil {
		logger.Fatal("Failed to create JetStream context", zap.Error(err))
	}
	if err := scheduler.EnsureStreams(js, logger); err != nil {
		logger.Fatal("Failed to ensure streams", zap.Error(err))
	}

	// Open storage
	db, err := storage.Open(logger, viper.GetString("storage.path"))
	if err != nil {
		logger.Fatal("Failed to open storage", zap.Error(err))
	}
	defer db.Close()

	automations, err := storage.NewSQLiteAutomationStore(logger, db)
	if err != nil {
		logger.Fatal("Failed to create automation store", zap.Error(err))
	}
	logs, err := storage.NewSQLiteExecutionLog(logger, db)
	if err != nil {
		logger.Fatal("Failed to create execution log store", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Rate limiter for manual executions
	limiter := ratelimit.NewLimiter(ratelimit.Config{
		MaxRequests:   viper.GetInt("ratelimit.max_requests"),
		Window:        viper.GetDuration("ratelimit.window"),
		SweepInterval: viper.GetDuration("ratelimit.sweep_interval"),
	}, logger)
	limiter.Start(ctx)

	// Command executor
	commandExecutor, err := buildExecutor(logger)
	if err != nil {
		logger.Fatal("Failed to create command executor", zap.Error(err))
	}

	// Engine
	events := service.NewEventService(js, logger)
	stats := engine.NewStats(logger)
	recorder := engine.NewExecutionRecorder(logs, logger)
	invoker := engine.NewInvoker(automations, recorder, commandExecutor, events, stats, logger)

	dispatcher := engine.NewDispatcher(js, invoker, events, stats,
		viper.GetInt("dispatcher.workers"), logger)
	if err := dispatcher.Start(ctx); err != nil {
		logger.Fatal("Failed to start dispatcher", zap.Error(err))
	}

	// Scheduler
	sched := scheduler.NewScheduler(js, automations, events,
		viper.GetString("scheduler.tick"), logger)
	if err := sched.Start(ctx); err != nil {
		logger.Fatal("Failed to start scheduler", zap.Error(err))
	}

	// Monitoring
	alerts := monitor.NewAlertManager(events, logger)
	alerts.AddChannel(monitor.NewLogChannel(logger))
	if webhookURL := viper.GetString("alerts.webhook_url"); webhookURL != "" {
		alerts.AddChannel(monitor.NewWebhookChannel(webhookURL, logger))
	}
	seedAlertRules(alerts)
	if err := alerts.Start(ctx); err != nil {
		logger.Fatal("Failed to start alert manager", zap.Error(err))
	}

	collector := monitor.NewMetricsCollector(events,
		viper.GetDuration("metrics.interval"), logger)
	if err := collector.Start(ctx); err != nil {
		logger.Fatal("Failed to start metrics collector", zap.Error(err))
	}

	// HTTP API
	handlers := api.NewHandlers(automations, logs, invoker, limiter, logger)
	server := api.NewServer(handlers, viper.GetString("http.addr"), logger)
	go func() {
		if err := server.Start(); err != nil {
			logger.Error("HTTP server stopped", zap.Error(err))
			cancel()
		}
	}()

	// Setup signal handling for graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
	case <-ctx.Done():
	}
	cancel()

	// Graceful shutdown, producers first
	sched.Stop()
	dispatcher.Stop()
	collector.Stop()
	if err := server.Shutdown(); err != nil {
		logger.Error("Failed to shut down HTTP server", zap.Error(err))
	}
	limiter.Stop()

	logger.Info("Server shutting down gracefully")
}

// loadConfig reads config/config.yaml when present and fills in defaults
// for everything else. The Anthropic API key comes from the environment.
func loadConfig(logger *zap.Logger) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config")

	viper.SetDefault("app.name", "automaton")
	viper.SetDefault("nats.urls", []string{"nats://127.0.0.1:4222"})
	viper.SetDefault("nats.max_reconnects", 10)
	viper.SetDefault("nats.reconnect_wait", 2*time.Second)
	viper.SetDefault("nats.connect_timeout", 5*time.Second)
	viper.SetDefault("http.addr", ":8080")
	viper.SetDefault("storage.path", "automaton.db")
	viper.SetDefault("executor.kind", "anthropic")
	viper.SetDefault("executor.model", "")
	viper.SetDefault("executor.max_tokens", 0)
	viper.SetDefault("executor.timeout", 0)
	viper.SetDefault("executor.max_retries", 0)
	viper.SetDefault("executor.remote_url", "")
	viper.SetDefault("ratelimit.max_requests", 10)
	viper.SetDefault("ratelimit.window", time.Minute)
	viper.SetDefault("ratelimit.sweep_interval", time.Minute)
	viper.SetDefault("scheduler.tick", scheduler.DefaultTickSpec)
	viper.SetDefault("dispatcher.workers", engine.DefaultWorkers)
	viper.SetDefault("alerts.webhook_url", "")
	viper.SetDefault("alerts.consecutive_failures", 3)
	viper.SetDefault("alerts.slow_execution_ms", 120000)
	viper.SetDefault("metrics.interval", monitor.DefaultCollectInterval)

	viper.BindEnv("executor.api_key", "ANTHROPIC_API_KEY")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			logger.Info("No config file found, using defaults")
		} else {
			logger.Fatal("Failed to read config file", zap.Error(err))
		}
	}
}

// buildExecutor creates the configured command executor
func buildExecutor(logger *zap.Logger) (executor.CommandExecutor, error) {
	switch kind := viper.GetString("executor.kind"); kind {
	case "remote":
		return executor.NewRemoteExecutor(executor.RemoteConfig{
			URL:     viper.GetString("executor.remote_url"),
			Timeout: viper.GetDuration("executor.timeout"),
		}, logger)
	default:
		return executor.NewAnthropicExecutor(executor.AnthropicConfig{
			APIKey:     viper.GetString("executor.api_key"),
			Model:      viper.GetString("executor.model"),
			MaxTokens:  viper.GetInt("executor.max_tokens"),
			Timeout:    viper.GetDuration("executor.timeout"),
			MaxRetries: viper.GetInt("executor.max_retries"),
		}, logger)
	}
}

// seedAlertRules installs the default alerting rules from configuration
func seedAlertRules(alerts *monitor.AlertManager) {
	alerts.AddRule(&model.AlertRule{
		Name:     "execution failure",
		Type:     model.AlertTypeExecutionFailure,
		Severity: model.AlertSeverityError,
	})
	alerts.AddRule(&model.AlertRule{
		Name:      "repeated failures",
		Type:      model.AlertTypeRepeatedFailure,
		Threshold: viper.GetFloat64("alerts.consecutive_failures"),
		Severity:  model.AlertSeverityCritical,
	})
	alerts.AddRule(&model.AlertRule{
		Name:      "slow execution",
		Type:      model.AlertTypeSlowExecution,
		Threshold: viper.GetFloat64("alerts.slow_execution_ms"),
		Severity:  model.AlertSeverityWarning,
	})
}
