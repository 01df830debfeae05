package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/Netflix/go-env"
)

type Config struct {
	DatabaseDSN         string `env:"DATABASE_DSN,required=true"`
	DBMaxOpenConns      int    `env:"DB_MAX_OPEN_CONNS,default=25"`
	WorkerName          string `env:"WORKER_NAME,required=true"`
	BatchSize           int    `env:"BATCH_SIZE,default=500"`
	PollMinDelayMs      int    `env:"POLL_MIN_DELAY_MS,default=1000"`
	PollMaxDelayMs      int    `env:"POLL_MAX_DELAY_MS,default=7000"`
	DeliveryTimeoutMs   int    `env:"DELIVERY_TIMEOUT_MS,default=10000"`
	PushGatewayURL      string `env:"PUSH_GATEWAY_URL,required=true"`
	SMTPHost            string `env:"SMTP_HOST,required=true"`
	SMTPPort            int    `env:"SMTP_PORT,default=587"`
	SMTPUsername        string `env:"SMTP_USERNAME"`
	SMTPPassword        string `env:"SMTP_PASSWORD"`
	SMTPFrom            string `env:"SMTP_FROM"`
	NotificationSubject string `env:"NOTIFICATION_SUBJECT,default=Notification Subject"`
	NotificationBody    string `env:"NOTIFICATION_BODY,default=Notification Body"`
	RedisURL            string `env:"REDIS_URL"`
	RateLimitPerSec     int    `env:"RATE_LIMIT_PER_SEC,default=100"`
	RabbitMQURL         string `env:"RABBITMQ_URL"`
	AutoMigrate         bool   `env:"AUTO_MIGRATE,default=false"`
	OpsPort             int    `env:"OPS_PORT,default=8081"`
	LogLevel            string `env:"LOG_LEVEL,default=info"`
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
	if strings.TrimSpace(c.WorkerName) == "" {
		return fmt.Errorf("WORKER_NAME must not be blank")
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("BATCH_SIZE must be positive, got %d", c.BatchSize)
	}
	if c.PollMinDelayMs < 1 {
		return fmt.Errorf("POLL_MIN_DELAY_MS must be at least 1, got %d", c.PollMinDelayMs)
	}
	if c.PollMaxDelayMs < c.PollMinDelayMs {
		return fmt.Errorf("poll delay range [%d, %d]ms is invalid", c.PollMinDelayMs, c.PollMaxDelayMs)
	}
	if c.DeliveryTimeoutMs <= 0 {
		return fmt.Errorf("DELIVERY_TIMEOUT_MS must be positive, got %d", c.DeliveryTimeoutMs)
	}
	return nil
}

func (c *Config) PollMinDelay() time.Duration {
	return time.Duration(c.PollMinDelayMs) * time.Millisecond
}

func (c *Config) PollMaxDelay() time.Duration {
	return time.Duration(c.PollMaxDelayMs) * time.Millisecond
}

func (c *Config) DeliveryTimeout() time.Duration {
	return time.Duration(c.DeliveryTimeoutMs) * time.Millisecond
}

// EmailSender returns the From address, falling back to the SMTP login.
func (c *Config) EmailSender() string {
	if from := strings.TrimSpace(c.SMTPFrom); from != "" {
		return from
	}
	return strings.TrimSpace(c.SMTPUsername)
}
