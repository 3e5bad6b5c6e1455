package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App         AppConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	Log         LogConfig
	Lock        LockConfig
	Idempotency IdempotencyConfig
	Outbox      OutboxConfig
	PubSub      PubSubConfig
	Recalc      RecalcConfig
	HTTP        HTTPConfig
	Telemetry   TelemetryConfig
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
	SlowThreshold   time.Duration
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// Addr returns host:port
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// LockConfig selects and tunes the resource locker
type LockConfig struct {
	Driver    string // redis, memory, noop
	TTL       time.Duration
	MaxWait   time.Duration
	RetryStep time.Duration
}

// IdempotencyConfig tunes the command executor
type IdempotencyConfig struct {
	InProgressTimeout time.Duration
	RetryInProgress   bool
	MaxWaitAttempts   int
	ProcessedEventTTL time.Duration
}

// OutboxConfig tunes the relay and the background sweeper
type OutboxConfig struct {
	SweeperEnabled   bool
	BatchSize        int
	PollInterval     time.Duration
	MaxAttempts      int
	BaseBackoff      time.Duration
	MaxBackoff       time.Duration
	ClaimLease       time.Duration
	DispatchTimeout  time.Duration
	CleanupEnabled   bool
	CleanupInterval  time.Duration
	CleanupRetention time.Duration
}

// PubSubConfig holds Google Cloud Pub/Sub settings. An empty ProjectID
// selects the in-memory bus.
type PubSubConfig struct {
	ProjectID       string
	Topic           string
	Subscription    string
	CredentialsFile string
	Ordering        bool
	Endpoint        string // emulator address, optional
}

// Enabled reports whether Pub/Sub is configured
func (p PubSubConfig) Enabled() bool {
	return p.ProjectID != ""
}

// RecalcConfig selects how backdated moves trigger forward recalculation
type RecalcConfig struct {
	Mode string // sync, async, both
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	RequestTimeout  time.Duration
	MaxHeaderBytes  int
	MaxBodySize     int64
	TrustedProxies  []string
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled           bool    // Whether to enable OpenTelemetry
	CollectorEndpoint string  // OTEL Collector endpoint (e.g., "localhost:4317")
	SamplingRatio     float64 // Sampling ratio (0.0-1.0, 1.0 = 100%)
	ServiceName       string  // Service name for traces
	Insecure          bool    // Use insecure (non-TLS) connection (development only)
	MetricsInterval   time.Duration
	// Database tracing options
	DBTraceEnabled bool // Enable database query tracing (otelgorm)
	DBLogFullSQL   bool // Log full SQL statements (dev only)
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with LEDGER_ prefix (e.g., LEDGER_DATABASE_PASSWORD)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("LEDGER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Database: DatabaseConfig{
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
			SlowThreshold:   v.GetDuration("database.slow_threshold"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		Lock: LockConfig{
			Driver:    v.GetString("lock.driver"),
			TTL:       v.GetDuration("lock.ttl"),
			MaxWait:   v.GetDuration("lock.max_wait"),
			RetryStep: v.GetDuration("lock.retry_step"),
		},
		Idempotency: IdempotencyConfig{
			InProgressTimeout: v.GetDuration("idempotency.in_progress_timeout"),
			RetryInProgress:   v.GetBool("idempotency.retry_in_progress"),
			MaxWaitAttempts:   v.GetInt("idempotency.max_wait_attempts"),
			ProcessedEventTTL: v.GetDuration("idempotency.processed_event_ttl"),
		},
		Outbox: OutboxConfig{
			SweeperEnabled:   v.GetBool("outbox.sweeper_enabled"),
			BatchSize:        v.GetInt("outbox.batch_size"),
			PollInterval:     v.GetDuration("outbox.poll_interval"),
			MaxAttempts:      v.GetInt("outbox.max_attempts"),
			BaseBackoff:      v.GetDuration("outbox.base_backoff"),
			MaxBackoff:       v.GetDuration("outbox.max_backoff"),
			ClaimLease:       v.GetDuration("outbox.claim_lease"),
			DispatchTimeout:  v.GetDuration("outbox.dispatch_timeout"),
			CleanupEnabled:   v.GetBool("outbox.cleanup_enabled"),
			CleanupInterval:  v.GetDuration("outbox.cleanup_interval"),
			CleanupRetention: v.GetDuration("outbox.cleanup_retention"),
		},
		PubSub: PubSubConfig{
			ProjectID:       v.GetString("pubsub.project_id"),
			Topic:           v.GetString("pubsub.topic"),
			Subscription:    v.GetString("pubsub.subscription"),
			CredentialsFile: v.GetString("pubsub.credentials_file"),
			Ordering:        v.GetBool("pubsub.ordering"),
			Endpoint:        v.GetString("pubsub.endpoint"),
		},
		Recalc: RecalcConfig{
			Mode: v.GetString("recalc.mode"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:     v.GetDuration("http.read_timeout"),
			WriteTimeout:    v.GetDuration("http.write_timeout"),
			IdleTimeout:     v.GetDuration("http.idle_timeout"),
			ShutdownTimeout: v.GetDuration("http.shutdown_timeout"),
			RequestTimeout:  v.GetDuration("http.request_timeout"),
			MaxHeaderBytes:  v.GetInt("http.max_header_bytes"),
			MaxBodySize:     v.GetInt64("http.max_body_size"),
			TrustedProxies:  v.GetStringSlice("http.trusted_proxies"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
			MetricsInterval:   v.GetDuration("telemetry.metrics_interval"),
			DBTraceEnabled:    v.GetBool("telemetry.db_trace_enabled"),
			DBLogFullSQL:      v.GetBool("telemetry.db_log_full_sql"),
		},
	}

	// Booleans that default to true cannot be detected as unset after GetBool
	if !v.IsSet("outbox.sweeper_enabled") {
		cfg.Outbox.SweeperEnabled = true
	}
	if !v.IsSet("pubsub.ordering") {
		cfg.PubSub.Ordering = true
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "ledgercore"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "ledger"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 60
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 30
	}
	if cfg.Database.SlowThreshold == 0 {
		cfg.Database.SlowThreshold = 200 * time.Millisecond
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.Lock.Driver == "" {
		cfg.Lock.Driver = "redis"
	}
	if cfg.Lock.TTL == 0 {
		cfg.Lock.TTL = 30 * time.Second
	}
	if cfg.Lock.MaxWait == 0 {
		cfg.Lock.MaxWait = 2 * time.Second
	}
	if cfg.Lock.RetryStep == 0 {
		cfg.Lock.RetryStep = 50 * time.Millisecond
	}
	if cfg.Idempotency.InProgressTimeout == 0 {
		cfg.Idempotency.InProgressTimeout = 5 * time.Minute
	}
	if cfg.Idempotency.MaxWaitAttempts == 0 {
		cfg.Idempotency.MaxWaitAttempts = 5
	}
	if cfg.Idempotency.ProcessedEventTTL == 0 {
		cfg.Idempotency.ProcessedEventTTL = 7 * 24 * time.Hour
	}
	if cfg.Outbox.BatchSize == 0 {
		cfg.Outbox.BatchSize = 100
	}
	if cfg.Outbox.PollInterval == 0 {
		cfg.Outbox.PollInterval = 2 * time.Second
	}
	if cfg.Outbox.MaxAttempts == 0 {
		cfg.Outbox.MaxAttempts = 8
	}
	if cfg.Outbox.BaseBackoff == 0 {
		cfg.Outbox.BaseBackoff = time.Second
	}
	if cfg.Outbox.MaxBackoff == 0 {
		cfg.Outbox.MaxBackoff = 10 * time.Minute
	}
	if cfg.Outbox.ClaimLease == 0 {
		cfg.Outbox.ClaimLease = time.Minute
	}
	if cfg.Outbox.DispatchTimeout == 0 {
		cfg.Outbox.DispatchTimeout = 10 * time.Second
	}
	if cfg.Outbox.CleanupInterval == 0 {
		cfg.Outbox.CleanupInterval = time.Hour
	}
	if cfg.Outbox.CleanupRetention == 0 {
		cfg.Outbox.CleanupRetention = 168 * time.Hour
	}
	if cfg.PubSub.Topic == "" {
		cfg.PubSub.Topic = "ledger-events"
	}
	if cfg.PubSub.Subscription == "" {
		cfg.PubSub.Subscription = "ledger-worker"
	}
	if cfg.Recalc.Mode == "" {
		cfg.Recalc.Mode = "sync"
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 30 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.ShutdownTimeout == 0 {
		cfg.HTTP.ShutdownTimeout = 15 * time.Second
	}
	if cfg.HTTP.RequestTimeout == 0 {
		cfg.HTTP.RequestTimeout = 25 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20 // 1MB
	}
	if cfg.HTTP.MaxBodySize == 0 {
		cfg.HTTP.MaxBodySize = 2 << 20 // 2MB
	}
	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317"
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "ledgercore"
	}
	if cfg.Telemetry.MetricsInterval == 0 {
		cfg.Telemetry.MetricsInterval = 30 * time.Second
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns cannot be negative")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}

	switch c.Lock.Driver {
	case "redis", "memory", "noop":
	default:
		return fmt.Errorf("lock.driver must be one of redis, memory, noop, got %q", c.Lock.Driver)
	}
	switch c.Recalc.Mode {
	case "sync", "async", "both":
	default:
		return fmt.Errorf("recalc.mode must be one of sync, async, both, got %q", c.Recalc.Mode)
	}
	if c.Outbox.BaseBackoff > c.Outbox.MaxBackoff {
		return fmt.Errorf("outbox.base_backoff (%s) cannot exceed outbox.max_backoff (%s)",
			c.Outbox.BaseBackoff, c.Outbox.MaxBackoff)
	}
	if c.Outbox.MaxAttempts < 1 {
		return fmt.Errorf("outbox.max_attempts must be at least 1")
	}
	if c.Recalc.Mode != "sync" && !c.PubSub.Enabled() && c.App.Env == "production" {
		return fmt.Errorf("recalc.mode=%s needs pubsub.project_id in production", c.Recalc.Mode)
	}

	if c.App.Env == "production" {
		if c.Database.Password == "" {
			return fmt.Errorf("database.password is required in production")
		}
		if c.Database.SSLMode == "disable" {
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		}
		if c.Lock.Driver == "noop" {
			return fmt.Errorf("lock.driver=noop is not allowed in production")
		}
		if c.Telemetry.DBLogFullSQL {
			return fmt.Errorf("telemetry.db_log_full_sql must be false in production")
		}
	}

	if c.Telemetry.SamplingRatio < 0.0 || c.Telemetry.SamplingRatio > 1.0 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
	}

	return nil
}

// DSN returns the database connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}
