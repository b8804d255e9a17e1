package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Queue     QueueConfig     `mapstructure:"queue"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Outbox    OutboxConfig    `mapstructure:"outbox"`
	Retention RetentionConfig `mapstructure:"retention"`
	Log       LogConfig       `mapstructure:"log"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Worker    WorkerConfig    `mapstructure:"worker"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	HSTSMaxAge      int           `mapstructure:"hsts_max_age"`
}

type DatabaseConfig struct {
	// Driver is "postgres" or "memory".
	Driver       string `mapstructure:"driver"`
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Name         string `mapstructure:"name"`
	SSLMode      string `mapstructure:"sslmode"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	// AutoMigrate applies pending schema migrations when the API starts.
	AutoMigrate bool `mapstructure:"auto_migrate"`
}

type RedisConfig struct {
	URL          string        `mapstructure:"url"`
	MaxRetries   int           `mapstructure:"max_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
}

type QueueConfig struct {
	Timezone string `mapstructure:"timezone"`
	// LockTTL bounds the per-location auto-advance lock.
	LockTTL time.Duration `mapstructure:"lock_ttl"`
	// AutoClaim runs the resource claim right after an auto-call.
	AutoClaim bool `mapstructure:"auto_claim"`
	// ScheduleCacheTTL is how long dentist schedules are cached for ranking.
	ScheduleCacheTTL    time.Duration `mapstructure:"schedule_cache_ttl"`
	NotificationChannel string        `mapstructure:"notification_channel"`
}

type JWTConfig struct {
	Secret   string `mapstructure:"secret"`
	Issuer   string `mapstructure:"issuer"`
	Disabled bool   `mapstructure:"disabled"`
}

type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

type OutboxConfig struct {
	BatchSize     int           `mapstructure:"batch_size"`
	PollInterval  time.Duration `mapstructure:"poll_interval"`
	RetryAttempts int           `mapstructure:"retry_attempts"`
	RetryDelay    time.Duration `mapstructure:"retry_delay"`
}

type RetentionConfig struct {
	AuditDays       int           `mapstructure:"audit_days"`
	OutboxDays      int           `mapstructure:"outbox_days"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

type MetricsConfig struct {
	Namespace string `mapstructure:"namespace"`
}

type WorkerConfig struct {
	// HealthPort serves /health/live, /health/ready and /metrics.
	HealthPort int `mapstructure:"health_port"`
}

// Location resolves the clinic timezone, falling back to UTC.
func (q QueueConfig) Location() *time.Location {
	if q.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(q.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.request_timeout", "15s")
	v.SetDefault("server.shutdown_timeout", "5s")
	v.SetDefault("server.max_body_bytes", 1<<20)
	v.SetDefault("server.allowed_origins", []string{})
	v.SetDefault("server.hsts_max_age", 0)

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.name", "clinic_queue")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.auto_migrate", false)

	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.retry_backoff", "100ms")
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.min_idle_conns", 1)

	v.SetDefault("queue.timezone", "UTC")
	v.SetDefault("queue.lock_ttl", "5s")
	v.SetDefault("queue.auto_claim", false)
	v.SetDefault("queue.schedule_cache_ttl", "1m")
	v.SetDefault("queue.notification_channel", "notifications")

	v.SetDefault("jwt.issuer", "clinic-queue")

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests_per_second", 50)
	v.SetDefault("rate_limit.burst", 100)

	v.SetDefault("outbox.batch_size", 100)
	v.SetDefault("outbox.poll_interval", "2s")
	v.SetDefault("outbox.retry_attempts", 3)
	v.SetDefault("outbox.retry_delay", "5s")

	v.SetDefault("retention.audit_days", 365)
	v.SetDefault("retention.outbox_days", 7)
	v.SetDefault("retention.cleanup_interval", "1h")

	v.SetDefault("log.level", "info")
	v.SetDefault("metrics.namespace", "clinic_queue")
	v.SetDefault("worker.health_port", 8081)
}

// LoadConfig reads .env (if present), then config.yml, then CLINICQ_*
// environment overrides.
func LoadConfig(paths ...string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yml")
	if len(paths) == 0 {
		paths = []string{".", "./config", "/app/config"}
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	v.SetEnvPrefix("CLINICQ")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "memory":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.Outbox.BatchSize <= 0 || c.Outbox.PollInterval <= 0 {
		return fmt.Errorf("outbox batch_size and poll_interval must be positive")
	}
	if c.Outbox.RetryAttempts <= 0 || c.Outbox.RetryDelay <= 0 {
		return fmt.Errorf("outbox retry_attempts and retry_delay must be positive")
	}
	if !c.JWT.Disabled && c.JWT.Secret == "" {
		return fmt.Errorf("jwt.secret is required unless jwt.disabled is set")
	}
	if _, err := time.LoadLocation(c.Queue.Timezone); err != nil {
		return fmt.Errorf("invalid queue.timezone: %w", err)
	}
	return nil
}
