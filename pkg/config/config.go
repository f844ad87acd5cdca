// Package config loads typed configuration from the environment. Parsing
// happens once at startup; the resulting structs are passed by value and
// never mutated afterwards.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/heraldhq/herald/pkg/models"
)

// Config is the full process configuration.
type Config struct {
	HTTPPort   string
	LogLevel   slog.Level
	SecretsDir string
	Queue      QueueConfig
	LLM        LLMConfig
	Alerting   AlertingConfig
}

// QueueConfig controls the work queue and worker pool.
type QueueConfig struct {
	// Names maps each channel to its logical queue name. A channel without a
	// queue name cannot accept requests (CONFIGURATION_ERROR at ingress).
	Names map[models.Channel]string

	// WorkerCount is the number of worker goroutines per channel.
	WorkerCount int

	// PollInterval is the base interval for checking for visible messages;
	// actual interval is PollInterval ± PollIntervalJitter.
	PollInterval       time.Duration
	PollIntervalJitter time.Duration

	// VisibilityTimeout is the lease granted to a receiver on claim.
	VisibilityTimeout time.Duration

	// LeaseExtension is the new visibility duration applied by each heartbeat
	// tick. Must be strictly greater than HeartbeatInterval.
	LeaseExtension time.Duration

	// HeartbeatInterval is how often an in-flight message's lease is extended.
	HeartbeatInterval time.Duration

	// MaxReceiveCount is the delivery-attempt threshold beyond which a
	// message is dead-lettered.
	MaxReceiveCount int

	// HandlerTimeout is the wall-clock budget for processing one message.
	// Must be less than VisibilityTimeout.
	HandlerTimeout time.Duration

	// GracefulShutdownTimeout bounds the wait for in-flight messages to
	// drain during shutdown.
	GracefulShutdownTimeout time.Duration
}

// LLMConfig controls assistant-run polling.
type LLMConfig struct {
	// PollInterval is the pause between run-status polls.
	PollInterval time.Duration

	// PollBudget is the total wall-clock budget for one run to reach a
	// terminal state. Exceeding it fails the pipeline step.
	PollBudget time.Duration

	// BaseURL overrides the OpenAI API base URL (empty = default).
	// Used by tests and self-hosted gateways.
	BaseURL string
}

// AlertingConfig controls critical-event fan-out. Empty token or channel
// disables Slack delivery (the CRITICAL log record is always emitted).
type AlertingConfig struct {
	SlackToken   string
	SlackChannel string
}

// Load reads configuration from the environment and validates the
// cross-field constraints the queue contract depends on.
func Load() (*Config, error) {
	cfg := &Config{
		HTTPPort:   getEnv("HTTP_PORT", "8080"),
		LogLevel:   parseLogLevel(getEnv("LOG_LEVEL", "info")),
		SecretsDir: getEnv("SECRETS_DIR", "/etc/herald/secrets"),
		Queue: QueueConfig{
			Names: map[models.Channel]string{
				models.ChannelWhatsApp: os.Getenv("QUEUE_WHATSAPP"),
				models.ChannelSMS:      os.Getenv("QUEUE_SMS"),
				models.ChannelEmail:    os.Getenv("QUEUE_EMAIL"),
			},
			WorkerCount:             getEnvInt("QUEUE_WORKER_COUNT", 3),
			PollInterval:            getEnvDuration("QUEUE_POLL_INTERVAL", time.Second),
			PollIntervalJitter:      getEnvDuration("QUEUE_POLL_JITTER", 500*time.Millisecond),
			VisibilityTimeout:       getEnvDuration("QUEUE_VISIBILITY_TIMEOUT", 5*time.Minute),
			LeaseExtension:          getEnvDuration("QUEUE_LEASE_EXTENSION", 5*time.Minute),
			HeartbeatInterval:       getEnvDuration("QUEUE_HEARTBEAT_INTERVAL", 30*time.Second),
			MaxReceiveCount:         getEnvInt("QUEUE_MAX_RECEIVE_COUNT", 3),
			HandlerTimeout:          getEnvDuration("QUEUE_HANDLER_TIMEOUT", 4*time.Minute),
			GracefulShutdownTimeout: getEnvDuration("QUEUE_SHUTDOWN_TIMEOUT", 5*time.Minute),
		},
		LLM: LLMConfig{
			PollInterval: getEnvDuration("LLM_POLL_INTERVAL", 2*time.Second),
			PollBudget:   getEnvDuration("LLM_POLL_BUDGET", 2*time.Minute),
			BaseURL:      os.Getenv("LLM_BASE_URL"),
		},
		Alerting: AlertingConfig{
			SlackToken:   os.Getenv("SLACK_BOT_TOKEN"),
			SlackChannel: os.Getenv("SLACK_CHANNEL_ID"),
		},
	}

	// Drop channels with no queue configured; the ingress treats them as
	// CONFIGURATION_ERROR rather than silently routing nowhere.
	for ch, name := range cfg.Queue.Names {
		if name == "" {
			delete(cfg.Queue.Names, ch)
		}
	}

	if err := cfg.Queue.Validate(); err != nil {
		return nil, err
	}
	if cfg.LLM.PollInterval <= 0 || cfg.LLM.PollBudget <= cfg.LLM.PollInterval {
		return nil, fmt.Errorf("LLM poll budget (%v) must exceed poll interval (%v)",
			cfg.LLM.PollBudget, cfg.LLM.PollInterval)
	}
	return cfg, nil
}

// Validate enforces the lease-arithmetic constraints of the queue contract.
func (q *QueueConfig) Validate() error {
	if q.WorkerCount < 1 {
		return fmt.Errorf("queue worker count must be >= 1, got %d", q.WorkerCount)
	}
	if q.HeartbeatInterval >= q.LeaseExtension {
		return fmt.Errorf("heartbeat interval (%v) must be strictly less than lease extension (%v)",
			q.HeartbeatInterval, q.LeaseExtension)
	}
	if q.HandlerTimeout >= q.VisibilityTimeout {
		return fmt.Errorf("handler timeout (%v) must be less than visibility timeout (%v)",
			q.HandlerTimeout, q.VisibilityTimeout)
	}
	if q.MaxReceiveCount < 1 {
		return fmt.Errorf("max receive count must be >= 1, got %d", q.MaxReceiveCount)
	}
	return nil
}

// QueueFor resolves the queue name for a channel.
func (q *QueueConfig) QueueFor(c models.Channel) (string, bool) {
	name, ok := q.Names[c]
	return name, ok
}

func parseLogLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
		slog.Warn("Invalid integer in environment, using default", "key", key, "value", val)
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
		slog.Warn("Invalid duration in environment, using default", "key", key, "value", val)
	}
	return defaultVal
}
