package common

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all worker configuration. It is loaded once at startup and
// passed into constructors; nothing reads the environment after Load returns.
type Config struct {
	Logging  LoggingConfig  `yaml:"logging"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	S3       S3Config       `yaml:"s3"`
	OCR      OCRConfig      `yaml:"ocr"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Worker   WorkerConfig   `yaml:"worker"`
	Retry    RetryMatrix    `yaml:"retry"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Health   HealthConfig   `yaml:"health"`
	Tagging  TaggingConfig  `yaml:"tagging"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// KafkaConfig holds the job submission topic settings.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
	GroupID string   `yaml:"groupId"`
}

// S3Config holds blob store coordinates. Bucket is where artifacts land; raw
// input objects may live in a different bucket named per submission.
type S3Config struct {
	Region string `yaml:"region"`
	Bucket string `yaml:"bucket"`
}

// OCRConfig bounds what we hand to the OCR engine.
type OCRConfig struct {
	Engine         string `yaml:"engine"`
	MaxObjectBytes int64  `yaml:"maxObjectBytes"`
	MaxPages       int    `yaml:"maxPages"`
}

// DatabaseConfig holds record store connection parameters.
type DatabaseConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxConns        int32         `yaml:"maxConns"`
	MinConns        int32         `yaml:"minConns"`
	MaxConnLifetime time.Duration `yaml:"maxConnLifetime"`
	MaxConnIdleTime time.Duration `yaml:"maxConnIdleTime"`
	DialTimeout     time.Duration `yaml:"dialTimeout"`
}

// RedisConfig holds the optional terminal-status cache settings.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

// WorkerConfig controls the polling pool that drives job execution.
type WorkerConfig struct {
	PoolSize      int           `yaml:"poolSize"`
	PollInterval  time.Duration `yaml:"pollInterval"`
	LeaseDuration time.Duration `yaml:"leaseDuration"`
	JobTimeout    time.Duration `yaml:"jobTimeout"`
}

// RetryConfig is one stage's bounded exponential backoff policy.
type RetryConfig struct {
	MaxAttempts    int           `yaml:"maxAttempts"`
	InitialBackoff time.Duration `yaml:"initialBackoff"`
	MaxBackoff     time.Duration `yaml:"maxBackoff"`
	Multiplier     float64       `yaml:"multiplier"`
}

// RetryMatrix holds the per-stage retry policies.
type RetryMatrix struct {
	Verify  RetryConfig `yaml:"verify"`
	OCR     RetryConfig `yaml:"ocr"`
	Persist RetryConfig `yaml:"persist"`
}

// MetricsConfig controls the Prometheus scrape endpoint.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// HealthConfig controls the gRPC health endpoint.
type HealthConfig struct {
	GRPCAddr string `yaml:"grpcAddr"`
}

// TaggingConfig controls the optional tagging stage appended after
// persistence. Disabled by default; the stage writes additively and never
// mutates earlier schema versions.
type TaggingConfig struct {
	Enabled       bool `yaml:"enabled"`
	SchemaVersion int  `yaml:"schemaVersion"`
}

// Load reads a YAML config file (if path is non-empty) over built-in
// defaults, then applies PW_* environment overrides.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Kafka: KafkaConfig{
			Brokers: []string{"localhost:9092"},
			Topic:   "recipe-process",
			GroupID: "photo-worker",
		},
		S3: S3Config{Region: "us-east-1", Bucket: "photo-worker-bucket"},
		OCR: OCRConfig{
			Engine:         "textract",
			MaxObjectBytes: 10 << 20, // Textract sync API ceiling
			MaxPages:       1,
		},
		Database: DatabaseConfig{
			MaxConns:        20,
			MinConns:        5,
			MaxConnLifetime: 30 * time.Minute,
			MaxConnIdleTime: 5 * time.Minute,
			DialTimeout:     3 * time.Second,
		},
		Redis: RedisConfig{Addr: "localhost:6379", TTL: 24 * time.Hour},
		Worker: WorkerConfig{
			PoolSize:      10,
			PollInterval:  500 * time.Millisecond,
			LeaseDuration: 10 * time.Minute,
			JobTimeout:    5 * time.Minute,
		},
		Retry: RetryMatrix{
			Verify:  RetryConfig{MaxAttempts: 5, InitialBackoff: 1 * time.Second, MaxBackoff: 30 * time.Second, Multiplier: 2.0},
			OCR:     RetryConfig{MaxAttempts: 3, InitialBackoff: 2 * time.Second, MaxBackoff: 60 * time.Second, Multiplier: 2.0},
			Persist: RetryConfig{MaxAttempts: 3, InitialBackoff: 1 * time.Second, MaxBackoff: 10 * time.Second, Multiplier: 2.0},
		},
		Metrics: MetricsConfig{Addr: ":9090"},
		Health:  HealthConfig{GRPCAddr: ":8080"},
		Tagging: TaggingConfig{SchemaVersion: 1},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PW_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("PW_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("PW_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("PW_KAFKA_TOPIC"); v != "" {
		cfg.Kafka.Topic = v
	}
	if v := os.Getenv("PW_KAFKA_GROUP_ID"); v != "" {
		cfg.Kafka.GroupID = v
	}
	if v := os.Getenv("PW_S3_REGION"); v != "" {
		cfg.S3.Region = v
	}
	if v := os.Getenv("PW_S3_BUCKET"); v != "" {
		cfg.S3.Bucket = v
	}
	if v := os.Getenv("PW_DB_URL"); v != "" {
		cfg.Database.DSN = v
	}
	cfg.Database.MaxConns = getEnvAsInt32("PW_DB_MAX_CONNS", cfg.Database.MaxConns)
	cfg.Database.MinConns = getEnvAsInt32("PW_DB_MIN_CONNS", cfg.Database.MinConns)
	if v := os.Getenv("PW_REDIS_ADDR"); v != "" {
		cfg.Redis.Enabled = true
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("PW_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	cfg.Worker.PoolSize = getEnvAsInt("PW_POOL_SIZE", cfg.Worker.PoolSize)
	cfg.Worker.PollInterval = getEnvAsDuration("PW_POLL_INTERVAL", cfg.Worker.PollInterval)
	cfg.Worker.LeaseDuration = getEnvAsDuration("PW_LEASE_DURATION", cfg.Worker.LeaseDuration)
	if v := os.Getenv("PW_METRICS_ADDR"); v != "" {
		cfg.Metrics.Addr = v
	}
	if v := os.Getenv("PW_GRPC_ADDR"); v != "" {
		cfg.Health.GRPCAddr = v
	}
	if v := os.Getenv("PW_TAGGING_ENABLED"); v != "" {
		cfg.Tagging.Enabled = v == "true" || v == "1"
	}
}

// Validate checks the fields without which the worker cannot run.
func (c *Config) Validate() error {
	if c.Database.DSN == "" {
		return errors.New("database.dsn (PW_DB_URL) is required")
	}
	if c.S3.Bucket == "" {
		return errors.New("s3.bucket is required")
	}
	if len(c.Kafka.Brokers) == 0 {
		return errors.New("kafka.brokers is required")
	}
	if c.OCR.MaxObjectBytes <= 0 {
		return fmt.Errorf("ocr.maxObjectBytes must be positive, got %d", c.OCR.MaxObjectBytes)
	}
	return nil
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
