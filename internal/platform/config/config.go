package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	strutil "audittrail/pkg/platform/strings"
)

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string        `yaml:"addr"`
	Env             string        `yaml:"env"`
	LogLevel        string        `yaml:"log_level"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	AdminToken      string        `yaml:"admin_token"`
	// AdminRPS limits trail reads per client IP; zero disables the limit.
	AdminRPS   float64 `yaml:"admin_rps"`
	AdminBurst int     `yaml:"admin_burst"`
}

// PostgresConfig holds the outbox database settings. An empty DSN disables Postgres.
type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

// RedisConfig holds Redis connection and stream settings. An empty URL disables Redis.
type RedisConfig struct {
	URL          string        `yaml:"url"`
	PoolSize     int           `yaml:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	Stream       string        `yaml:"stream"`
	MaxLen       int64         `yaml:"max_len"`
}

// KafkaConfig holds broker settings shared by the relay and the consumer.
// No brokers disables both.
type KafkaConfig struct {
	Brokers           []string `yaml:"brokers"`
	Topic             string   `yaml:"topic"`
	GroupID           string   `yaml:"group_id"`
	Partitions        int32    `yaml:"partitions"`
	ReplicationFactor int16    `yaml:"replication_factor"`
}

// PublisherConfig controls how finished trails reach the sinks.
type PublisherConfig struct {
	Mode             string        `yaml:"mode"` // "sync" or "async"
	BufferSize       int           `yaml:"buffer_size"`
	BreakerThreshold int           `yaml:"breaker_threshold"`
	BreakerCooldown  time.Duration `yaml:"breaker_cooldown"`
	Echo             bool          `yaml:"echo"`
}

// FileConfig enables the JSONL sink when Path is set.
type FileConfig struct {
	Path       string `yaml:"path"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// RelayConfig controls the outbox relay poll loop.
type RelayConfig struct {
	Interval  time.Duration `yaml:"interval"`
	BatchSize int           `yaml:"batch_size"`
}

// Config is the full process configuration.
type Config struct {
	Server    Server          `yaml:"server"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Redis     RedisConfig     `yaml:"redis"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Publisher PublisherConfig `yaml:"publisher"`
	File      FileConfig      `yaml:"file"`
	Relay     RelayConfig     `yaml:"relay"`
}

// IsDev reports whether the process runs in development mode.
func (c Config) IsDev() bool {
	return c.Server.Env == "dev"
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Server: Server{
			Addr:            ":8080",
			Env:             "prod",
			LogLevel:        "info",
			ShutdownTimeout: 10 * time.Second,
			AdminRPS:        5,
			AdminBurst:      20,
		},
		Redis: RedisConfig{
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
			Stream:       "audit:trails",
			MaxLen:       10_000,
		},
		Kafka: KafkaConfig{
			Topic:             "audit.trails",
			GroupID:           "audittrail-materializer",
			Partitions:        3,
			ReplicationFactor: 1,
		},
		Publisher: PublisherConfig{
			Mode:             "sync",
			BufferSize:       1024,
			BreakerThreshold: 5,
			BreakerCooldown:  30 * time.Second,
		},
		File: FileConfig{
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 30,
		},
		Relay: RelayConfig{
			Interval:  time.Second,
			BatchSize: 100,
		},
	}
}

// FromEnv builds the config from defaults, then the YAML file named by AUDITTRAIL_CONFIG
// (if any), then environment variables, so main stays lean.
func FromEnv() (Config, error) {
	cfg := Default()

	if path := os.Getenv("AUDITTRAIL_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	setString(&cfg.Server.Addr, "AUDITTRAIL_ADDR")
	setString(&cfg.Server.Env, "AUDITTRAIL_ENV")
	setString(&cfg.Server.LogLevel, "LOG_LEVEL")
	setString(&cfg.Server.AdminToken, "AUDITTRAIL_ADMIN_TOKEN")
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setString(&cfg.Redis.URL, "REDIS_URL")
	setString(&cfg.Redis.Stream, "REDIS_STREAM")
	setString(&cfg.Kafka.Topic, "KAFKA_TOPIC")
	setString(&cfg.Kafka.GroupID, "KAFKA_GROUP_ID")
	setString(&cfg.Publisher.Mode, "AUDIT_PUBLISH_MODE")
	setString(&cfg.File.Path, "AUDIT_FILE_PATH")

	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strutil.SplitList(v, ",")
	}
	if v := os.Getenv("AUDIT_ECHO"); v != "" {
		cfg.Publisher.Echo = v == "true"
	}
	if v := os.Getenv("AUDITTRAIL_ADMIN_RPS"); v != "" {
		rps, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("parse AUDITTRAIL_ADMIN_RPS: %w", err)
		}
		cfg.Server.AdminRPS = rps
	}
	if err := setInt(&cfg.Publisher.BufferSize, "AUDIT_BUFFER_SIZE"); err != nil {
		return err
	}
	if err := setInt(&cfg.Relay.BatchSize, "RELAY_BATCH_SIZE"); err != nil {
		return err
	}
	return setDuration(&cfg.Relay.Interval, "RELAY_INTERVAL")
}

// Validate rejects settings the server cannot start with.
func (c Config) Validate() error {
	switch c.Publisher.Mode {
	case "sync", "async":
	default:
		return fmt.Errorf("invalid publisher mode %q: want sync or async", c.Publisher.Mode)
	}
	if c.Publisher.Mode == "async" && c.Publisher.BufferSize <= 0 {
		return fmt.Errorf("async publisher needs a positive buffer size, got %d", c.Publisher.BufferSize)
	}
	if len(c.Kafka.Brokers) > 0 && c.Postgres.DSN == "" {
		return fmt.Errorf("kafka relay requires DATABASE_URL for the outbox")
	}
	if c.Server.AdminRPS < 0 {
		return fmt.Errorf("admin rps must not be negative, got %v", c.Server.AdminRPS)
	}
	if c.Relay.Interval <= 0 {
		return fmt.Errorf("relay interval must be positive, got %s", c.Relay.Interval)
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("parse %s: %w", key, err)
	}
	*dst = n
	return nil
}

func setDuration(dst *time.Duration, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("parse %s: %w", key, err)
	}
	*dst = d
	return nil
}
