package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/Netflix/go-env"
	"github.com/kursadbilgin/concur-gateway/internal/channel"
	"github.com/kursadbilgin/concur-gateway/internal/domain"
)

// Rate limit counter backends.
const (
	RateLimitBackendRedis  = "redis"
	RateLimitBackendMemory = "memory"
)

type Config struct {
	DatabaseDSN string `env:"DATABASE_DSN,required=true"`
	RabbitMQURL string `env:"RABBITMQ_URL,required=true"`
	RedisURL    string `env:"REDIS_URL,required=true"`

	APIPort     int    `env:"API_PORT,default=8080"`
	MetricsPort int    `env:"METRICS_PORT,default=9090"`
	LogLevel    string `env:"LOG_LEVEL,default=info"`

	RateLimitBackend       string `env:"RATE_LIMIT_BACKEND,default=redis"`
	RateLimitPrefix        string `env:"RATE_LIMIT_PREFIX,default=ingest"`
	RateLimitPerWindow     int    `env:"RATE_LIMIT_PER_WINDOW,default=60"`
	RateLimitWindowSeconds int    `env:"RATE_LIMIT_WINDOW_SECONDS,default=3600"`
	MaxReportBytes         int    `env:"MAX_REPORT_BYTES,default=10485760"`

	ChannelTimeoutMS    int     `env:"CHANNEL_TIMEOUT_MS,default=5000"`
	FanoutTimeoutMS     int     `env:"FANOUT_TIMEOUT_MS,default=15000"`
	ChannelRatePerSec   float64 `env:"CHANNEL_RATE_PER_SEC,default=1"`
	MaxDeliveryAttempts int     `env:"MAX_DELIVERY_ATTEMPTS,default=5"`
	WorkerConcurrency   int     `env:"WORKER_CONCURRENCY,default=4"`
	TopWarningsLimit    int     `env:"TOP_WARNINGS_LIMIT,default=5"`
	DashboardBaseURL    string  `env:"DASHBOARD_BASE_URL"`

	TeamsWebhookURL      string `env:"TEAMS_WEBHOOK_URL"`
	SlackWebhookURL      string `env:"SLACK_WEBHOOK_URL"`
	GenericWebhookURL    string `env:"GENERIC_WEBHOOK_URL"`
	GenericWebhookSecret string `env:"GENERIC_WEBHOOK_SECRET"`

	AdminAPIKey string `env:"ADMIN_API_KEY"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	c.RateLimitBackend = strings.ToLower(strings.TrimSpace(c.RateLimitBackend))
	switch c.RateLimitBackend {
	case RateLimitBackendRedis, RateLimitBackendMemory:
	default:
		return fmt.Errorf("RATE_LIMIT_BACKEND must be %q or %q, got %q",
			RateLimitBackendRedis, RateLimitBackendMemory, c.RateLimitBackend)
	}

	positives := []struct {
		name  string
		value int
	}{
		{"API_PORT", c.APIPort},
		{"METRICS_PORT", c.MetricsPort},
		{"RATE_LIMIT_PER_WINDOW", c.RateLimitPerWindow},
		{"RATE_LIMIT_WINDOW_SECONDS", c.RateLimitWindowSeconds},
		{"MAX_REPORT_BYTES", c.MaxReportBytes},
		{"CHANNEL_TIMEOUT_MS", c.ChannelTimeoutMS},
		{"FANOUT_TIMEOUT_MS", c.FanoutTimeoutMS},
		{"MAX_DELIVERY_ATTEMPTS", c.MaxDeliveryAttempts},
		{"WORKER_CONCURRENCY", c.WorkerConcurrency},
		{"TOP_WARNINGS_LIMIT", c.TopWarningsLimit},
	}
	for _, p := range positives {
		if p.value <= 0 {
			return fmt.Errorf("%s must be positive, got %d", p.name, p.value)
		}
	}

	if c.ChannelRatePerSec < 0 {
		return fmt.Errorf("CHANNEL_RATE_PER_SEC must not be negative")
	}
	if strings.TrimSpace(c.RateLimitPrefix) == "" {
		return fmt.Errorf("RATE_LIMIT_PREFIX must not be empty")
	}
	if c.GenericWebhookSecret != "" && strings.TrimSpace(c.GenericWebhookURL) == "" {
		return fmt.Errorf("GENERIC_WEBHOOK_SECRET requires GENERIC_WEBHOOK_URL")
	}

	webhooks := []struct {
		name  string
		value string
	}{
		{"TEAMS_WEBHOOK_URL", c.TeamsWebhookURL},
		{"SLACK_WEBHOOK_URL", c.SlackWebhookURL},
		{"GENERIC_WEBHOOK_URL", c.GenericWebhookURL},
	}
	for _, w := range webhooks {
		if err := validateWebhookURL(w.value); err != nil {
			return fmt.Errorf("%s %w", w.name, err)
		}
	}
	return nil
}

// validateWebhookURL accepts an empty value or an absolute http(s) URL.
func validateWebhookURL(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	parsed, err := url.ParseRequestURI(raw)
	if err != nil {
		return fmt.Errorf("is not a valid URL")
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("must use http or https")
	}
	if parsed.Host == "" {
		return fmt.Errorf("must include a host")
	}
	return nil
}

func (c *Config) RateLimitWindow() time.Duration {
	return time.Duration(c.RateLimitWindowSeconds) * time.Second
}

func (c *Config) ChannelTimeout() time.Duration {
	return time.Duration(c.ChannelTimeoutMS) * time.Millisecond
}

func (c *Config) FanoutTimeout() time.Duration {
	return time.Duration(c.FanoutTimeoutMS) * time.Millisecond
}

// Channels returns the process-wide channel endpoints keyed by kind. Kinds
// without a URL are absent and therefore disabled.
func (c *Config) Channels() map[domain.ChannelKind]channel.Endpoint {
	channels := make(map[domain.ChannelKind]channel.Endpoint, 3)
	if endpoint := strings.TrimSpace(c.TeamsWebhookURL); endpoint != "" {
		channels[domain.ChannelKindTeams] = channel.Endpoint{URL: endpoint}
	}
	if endpoint := strings.TrimSpace(c.SlackWebhookURL); endpoint != "" {
		channels[domain.ChannelKindSlack] = channel.Endpoint{URL: endpoint}
	}
	if endpoint := strings.TrimSpace(c.GenericWebhookURL); endpoint != "" {
		channels[domain.ChannelKindWebhook] = channel.Endpoint{URL: endpoint, Secret: c.GenericWebhookSecret}
	}
	return channels
}
