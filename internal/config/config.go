package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port        string `envconfig:"PORT" default:"8080"`
	DatabaseURL string `envconfig:"DB_DSN" required:"true"`
	AppEnv      string `envconfig:"APP_ENV" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	Timezone    string `envconfig:"QUEUE_TIMEZONE" default:"Asia/Taipei"`

	StoreTimeoutSeconds int `envconfig:"STORE_TIMEOUT_SECONDS" default:"5"`
	LockTimeoutMillis   int `envconfig:"LOCK_TIMEOUT_MS" default:"2000"`

	NoShowThreshold             int `envconfig:"NO_SHOW_BLACKLIST_THRESHOLD" default:"3"`
	VerificationTTLMinutes      int `envconfig:"VERIFICATION_TTL_MINUTES" default:"10"`
	VerificationCooldownSeconds int `envconfig:"VERIFICATION_COOLDOWN_SECONDS" default:"60"`
	VerificationRetentionHours  int `envconfig:"VERIFICATION_RETENTION_HOURS" default:"24"`

	JWTSecret              string `envconfig:"JWT_SECRET" required:"true"`
	TokenTTLMinutes        int    `envconfig:"TOKEN_TTL_MINUTES" default:"60"`
	BootstrapAdminUsername string `envconfig:"BOOTSTRAP_ADMIN_USERNAME"`
	BootstrapAdminPassword string `envconfig:"BOOTSTRAP_ADMIN_PASSWORD"`

	RedisAddr     string `envconfig:"REDIS_ADDR"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	NotifyProvider     string   `envconfig:"NOTIFY_PROVIDER" default:"log"`
	NotifyWebhookURL   string   `envconfig:"NOTIFY_WEBHOOK_URL"`
	NotifyWebhookToken string   `envconfig:"NOTIFY_WEBHOOK_TOKEN"`
	KafkaBrokers       []string `envconfig:"KAFKA_BROKERS"`
	KafkaTopic         string   `envconfig:"KAFKA_TOPIC" default:"queue.notifications"`
	NotifyWorkers      int      `envconfig:"NOTIFY_WORKERS" default:"4"`
	NotifyQueueSize    int      `envconfig:"NOTIFY_QUEUE_SIZE" default:"256"`

	RolloverCheckSeconds int `envconfig:"ROLLOVER_CHECK_SECONDS" default:"60"`

	RateLimitPerMinute      int `envconfig:"RATE_LIMIT_PER_MIN" default:"120"`
	RateLimitBurst          int `envconfig:"RATE_LIMIT_BURST" default:"30"`
	PhoneRateLimitPerMinute int `envconfig:"PHONE_RATE_LIMIT_PER_MIN" default:"10"`
	PhoneRateLimitBurst     int `envconfig:"PHONE_RATE_LIMIT_BURST" default:"5"`

	OTLPEndpoint string `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT"`

	Location *time.Location `ignored:"true"`
}

// LoadDotenv loads key=value pairs from path into the environment. A missing
// file is not fatal; callers log the error and carry on.
func LoadDotenv(path string) error {
	if path == "" {
		return nil
	}
	return godotenv.Load(path)
}

func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.normalize(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) normalize() error {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return fmt.Errorf("QUEUE_TIMEZONE: %w", err)
	}
	c.Location = loc
	if c.NoShowThreshold <= 0 {
		return fmt.Errorf("NO_SHOW_BLACKLIST_THRESHOLD must be positive, got %d", c.NoShowThreshold)
	}
	if c.VerificationTTLMinutes <= 0 {
		return fmt.Errorf("VERIFICATION_TTL_MINUTES must be positive, got %d", c.VerificationTTLMinutes)
	}
	c.NotifyProvider = strings.ToLower(strings.TrimSpace(c.NotifyProvider))
	c.AppEnv = strings.ToLower(strings.TrimSpace(c.AppEnv))
	return nil
}

func (c Config) IsProduction() bool {
	return c.AppEnv == "production"
}

func (c Config) StoreTimeout() time.Duration {
	return seconds(c.StoreTimeoutSeconds)
}

func (c Config) LockTimeout() time.Duration {
	if c.LockTimeoutMillis <= 0 {
		return 0
	}
	return time.Duration(c.LockTimeoutMillis) * time.Millisecond
}

func (c Config) VerificationTTL() time.Duration {
	return time.Duration(c.VerificationTTLMinutes) * time.Minute
}

func (c Config) VerificationCooldown() time.Duration {
	return seconds(c.VerificationCooldownSeconds)
}

func (c Config) VerificationRetention() time.Duration {
	if c.VerificationRetentionHours <= 0 {
		return 0
	}
	return time.Duration(c.VerificationRetentionHours) * time.Hour
}

func (c Config) TokenTTL() time.Duration {
	if c.TokenTTLMinutes <= 0 {
		return time.Hour
	}
	return time.Duration(c.TokenTTLMinutes) * time.Minute
}

func (c Config) RolloverInterval() time.Duration {
	return seconds(c.RolloverCheckSeconds)
}

func seconds(value int) time.Duration {
	if value <= 0 {
		return 0
	}
	return time.Duration(value) * time.Second
}
