// Package config provides environment configuration for the support platform.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	ServerPort         string        `env:"PORT" envDefault:"8080"`
	ServerReadTimeout  time.Duration `env:"SERVER_READ_TIMEOUT" envDefault:"30s"`
	ServerWriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" envDefault:"0s"`
	ShutdownTimeout    time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`
	Environment        string        `env:"ENV" envDefault:"production"`

	// Storage
	StoreDriver string `env:"STORE_DRIVER" envDefault:"sqlite"`
	SQLitePath  string `env:"SQLITE_PATH" envDefault:"./data/support.db"`

	// NATS settings; an empty URL disables the event bus.
	NATSURL      string `env:"NATS_URL" envDefault:"nats://localhost:4222"`
	NATSCAFile   string `env:"NATS_CA_FILE"`
	NATSCertFile string `env:"NATS_CERT_FILE"`
	NATSKeyFile  string `env:"NATS_KEY_FILE"`
	NATSToken    string `env:"NATS_TOKEN"`

	// JWT settings
	JWTSecret string `env:"JWT_SECRET" envDefault:"development-secret-change-in-production"`

	// Assistant settings
	AnthropicAPIKey  string        `env:"ANTHROPIC_API_KEY"`
	OpenAIAPIKey     string        `env:"OPENAI_API_KEY"`
	DefaultLLM       string        `env:"DEFAULT_LLM" envDefault:"anthropic"`
	AssistantModel   string        `env:"ASSISTANT_MODEL"`
	AssistantTimeout time.Duration `env:"ASSISTANT_TIMEOUT" envDefault:"20s"`

	// Handoff
	EscalationPhrases   []string      `env:"ESCALATION_PHRASES" envSeparator:"|"`
	HandoffTimeout      time.Duration `env:"HANDOFF_TIMEOUT" envDefault:"30m"`
	HandoffSweepEvery   time.Duration `env:"HANDOFF_SWEEP_INTERVAL" envDefault:"1m"`
	StreamPollInterval  time.Duration `env:"STREAM_POLL_INTERVAL" envDefault:"3s"`
	NotificationJanitor time.Duration `env:"NOTIFICATION_JANITOR_INTERVAL" envDefault:"1h"`

	// Notifications
	MailRelayURL   string        `env:"MAIL_RELAY_URL"`
	MailRelayToken string        `env:"MAIL_RELAY_TOKEN"`
	EmailTimeout   time.Duration `env:"EMAIL_TIMEOUT" envDefault:"10s"`

	// Directory of recipients
	DirectoryURL   string   `env:"DIRECTORY_URL"`
	DirectoryToken string   `env:"DIRECTORY_TOKEN"`
	CoordinatorIDs []string `env:"COORDINATOR_IDS" envSeparator:","`
	StudentIDs     []string `env:"STUDENT_IDS" envSeparator:","`

	// Outbound HTTP
	HTTPClientTimeout time.Duration `env:"HTTP_CLIENT_TIMEOUT" envDefault:"10s"`
	BroadcastWorkers  int           `env:"BROADCAST_WORKERS" envDefault:"8"`

	// CORS; empty allows any http(s) origin.
	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`

	// Rate limiting
	RateLimitRequests int           `env:"RATE_LIMIT_REQUESTS" envDefault:"120"`
	RateLimitWindow   time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"1m"`

	// Logging
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Tracing
	TracingEndpoint string `env:"TRACING_ENDPOINT" envDefault:"localhost:4318"`
	TracingEnabled  bool   `env:"TRACING_ENABLED" envDefault:"false"`
}

// Load reads an optional .env file and then the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse env config: %w", err)
	}

	cfg.StoreDriver = strings.ToLower(strings.TrimSpace(cfg.StoreDriver))
	cfg.CoordinatorIDs = compact(cfg.CoordinatorIDs)
	cfg.StudentIDs = compact(cfg.StudentIDs)
	cfg.EscalationPhrases = compact(cfg.EscalationPhrases)
	cfg.AllowedOrigins = compact(cfg.AllowedOrigins)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case "sqlite", "memory":
	default:
		return fmt.Errorf("unsupported STORE_DRIVER %q", c.StoreDriver)
	}
	if c.HandoffTimeout <= 0 {
		return errors.New("HANDOFF_TIMEOUT must be positive")
	}
	if c.HandoffSweepEvery <= 0 || c.StreamPollInterval <= 0 || c.NotificationJanitor <= 0 {
		return errors.New("background intervals must be positive")
	}
	if c.BroadcastWorkers < 1 {
		return errors.New("BROADCAST_WORKERS must be at least 1")
	}
	return nil
}

// IsDevelopment reports whether the process runs in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func compact(values []string) []string {
	out := values[:0]
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
