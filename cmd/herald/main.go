// Herald server — HTTP ingress for conversation initiation plus the
// queue-driven channel processors that generate and send the first outbound
// message.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/heraldhq/herald/pkg/alerting"
	"github.com/heraldhq/herald/pkg/api"
	"github.com/heraldhq/herald/pkg/config"
	"github.com/heraldhq/herald/pkg/database"
	"github.com/heraldhq/herald/pkg/llm"
	"github.com/heraldhq/herald/pkg/processor"
	"github.com/heraldhq/herald/pkg/provider"
	"github.com/heraldhq/herald/pkg/queue"
	"github.com/heraldhq/herald/pkg/secrets"
	"github.com/heraldhq/herald/pkg/services"
	"github.com/heraldhq/herald/pkg/state"
	"github.com/heraldhq/herald/pkg/tenant"
	"github.com/heraldhq/herald/pkg/version"
)

func main() {
	envFile := flag.String("env-file", ".env", "Path to .env file")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment",
			"path", *envFile, "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	initLogging(cfg.LogLevel)
	slog.Info("Starting herald",
		"version", version.Full(),
		"http_port", cfg.HTTPPort,
		"channels", len(cfg.Queue.Names))

	ctx := context.Background()

	dbCfg, err := database.LoadConfigFromEnv()
	if err != nil {
		slog.Error("Failed to load database config", "error", err)
		os.Exit(1)
	}
	dbClient, err := database.NewClient(ctx, dbCfg)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbClient.Close()
	slog.Info("Connected to PostgreSQL database")

	// Stores and clients shared by both sides of the engine.
	tenantStore := tenant.NewPGStore(dbClient.Pool())
	stateStore := state.NewPGStore(dbClient.Pool())
	secretStore := secrets.NewFileStore(cfg.SecretsDir)
	workQueue := queue.NewPGQueue(dbClient.Pool(), cfg.Queue.VisibilityTimeout, cfg.Queue.MaxReceiveCount)
	notifier := alerting.NewNotifier(alerting.NotifierConfig{
		Token:   cfg.Alerting.SlackToken,
		Channel: cfg.Alerting.SlackChannel,
	})
	if notifier == nil {
		slog.Info("Slack alerting disabled (no token or channel configured)")
	}

	// Channel-processor side.
	proc := processor.New(stateStore, secretStore, llm.NewFactory(cfg.LLM),
		provider.DefaultRegistry(), notifier, version.Full())
	pool := queue.NewWorkerPool(workQueue, cfg.Queue, proc)
	if err := pool.Start(ctx); err != nil {
		slog.Error("Failed to start worker pool", "error", err)
		os.Exit(1)
	}

	// Ingress side.
	initiation := services.NewInitiationService(tenantStore, workQueue, cfg.Queue, version.Full())
	server := api.NewServer(initiation, stateStore, dbClient, pool)

	errCh := make(chan error, 1)
	go func() { errCh <- server.Run(cfg.HTTPPort) }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("Received shutdown signal", "signal", sig)
	case err := <-errCh:
		if err != nil {
			slog.Error("HTTP server failed", "error", err)
		}
	}

	// Drain workers before closing the HTTP surface so in-flight pipelines
	// settle their messages.
	pool.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Queue.GracefulShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP shutdown failed", "error", err)
	}

	slog.Info("Shutdown complete")
}

// initLogging installs the process-wide JSON handler with the CRITICAL level
// rendered by name.
func initLogging(level slog.Level) {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: alerting.ReplaceLevelName,
	})
	slog.SetDefault(slog.New(handler))
}
