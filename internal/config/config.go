package config

import (
	"fmt"
	"time"

	"github.com/Netflix/go-env"
)

type Config struct {
	DatabaseDSN     string `env:"DATABASE_DSN,required=true"`
	RabbitMQURL     string `env:"RABBITMQ_URL,required=true"`
	RedisURL        string `env:"REDIS_URL,required=true"`
	WebhookURL      string `env:"WEBHOOK_URL"`
	DefinitionsFile string `env:"DEFINITIONS_FILE"`

	EventsQueue      string `env:"EVENTS_QUEUE,default=notifications.events"`
	RetryQueue       string `env:"RETRY_QUEUE,default=notifications.retry"`
	RetryMaxAttempts int    `env:"RETRY_MAX_ATTEMPTS,default=5"`
	RetryBaseDelayMS int    `env:"RETRY_BASE_DELAY_MS,default=1000"`

	ProviderRateLimitPerSec int `env:"PROVIDER_RATE_LIMIT_PER_SEC,default=100"`
	TenantConcurrency       int `env:"TENANT_CONCURRENCY,default=4"`
	WorkerPrefetch          int `env:"WORKER_PREFETCH,default=16"`
	WorkerConcurrency       int `env:"WORKER_CONCURRENCY,default=2"`
	WorkerMaxRedeliveries   int `env:"WORKER_MAX_REDELIVERIES,default=10"`
	TenantCacheTTLSec       int `env:"TENANT_CACHE_TTL_SEC,default=60"`
	TemplateCacheTTLSec     int `env:"TEMPLATE_CACHE_TTL_SEC,default=300"`

	DefaultCulture string `env:"DEFAULT_CULTURE,default=en"`
	APIPort        int    `env:"API_PORT,default=8080"`
	MetricsPort    int    `env:"WORKER_METRICS_PORT,default=9090"`
	LogLevel       string `env:"LOG_LEVEL,default=info"`

	ShutdownTimeoutSec int `env:"SHUTDOWN_TIMEOUT_SEC,default=10"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.RetryMaxAttempts < 1 {
		return nil, fmt.Errorf("failed to load config: RETRY_MAX_ATTEMPTS must be >= 1")
	}
	if cfg.TenantConcurrency < 1 {
		return nil, fmt.Errorf("failed to load config: TENANT_CONCURRENCY must be >= 1")
	}
	if cfg.WorkerMaxRedeliveries < 1 {
		return nil, fmt.Errorf("failed to load config: WORKER_MAX_REDELIVERIES must be >= 1")
	}
	return &cfg, nil
}

func (c *Config) RetryBaseDelay() time.Duration {
	return time.Duration(c.RetryBaseDelayMS) * time.Millisecond
}

func (c *Config) TenantCacheTTL() time.Duration {
	return time.Duration(c.TenantCacheTTLSec) * time.Second
}

func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutSec) * time.Second
}

func (c *Config) TemplateCacheTTL() time.Duration {
	return time.Duration(c.TemplateCacheTTLSec) * time.Second
}
