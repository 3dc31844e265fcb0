package common

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Kafka.Topic != "recipe-process" {
		t.Errorf("default topic = %q", cfg.Kafka.Topic)
	}
	if cfg.OCR.MaxObjectBytes != 10<<20 {
		t.Errorf("default maxObjectBytes = %d", cfg.OCR.MaxObjectBytes)
	}
	if cfg.Retry.Verify.MaxAttempts != 5 || cfg.Retry.Verify.InitialBackoff != time.Second {
		t.Errorf("verify retry defaults = %+v", cfg.Retry.Verify)
	}
	if cfg.Retry.OCR.MaxAttempts != 3 || cfg.Retry.OCR.MaxBackoff != 60*time.Second {
		t.Errorf("ocr retry defaults = %+v", cfg.Retry.OCR)
	}
	if cfg.Worker.PoolSize != 10 {
		t.Errorf("default pool size = %d", cfg.Worker.PoolSize)
	}
}

func TestLoadYAMLOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
logging:
  level: debug
  format: json
s3:
  bucket: recipe-artifacts
worker:
  poolSize: 3
retry:
  ocr:
    maxAttempts: 7
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("logging = %+v", cfg.Logging)
	}
	if cfg.S3.Bucket != "recipe-artifacts" {
		t.Errorf("bucket = %q", cfg.S3.Bucket)
	}
	if cfg.Worker.PoolSize != 3 {
		t.Errorf("pool size = %d", cfg.Worker.PoolSize)
	}
	if cfg.Retry.OCR.MaxAttempts != 7 {
		t.Errorf("ocr maxAttempts = %d", cfg.Retry.OCR.MaxAttempts)
	}
	// Untouched sections keep their defaults.
	if cfg.Kafka.Topic != "recipe-process" {
		t.Errorf("topic = %q", cfg.Kafka.Topic)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PW_DB_URL", "postgres://worker@db/photos")
	t.Setenv("PW_KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("PW_REDIS_ADDR", "cache:6379")
	t.Setenv("PW_POOL_SIZE", "4")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Database.DSN != "postgres://worker@db/photos" {
		t.Errorf("dsn = %q", cfg.Database.DSN)
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "k2:9092" {
		t.Errorf("brokers = %v", cfg.Kafka.Brokers)
	}
	if !cfg.Redis.Enabled || cfg.Redis.Addr != "cache:6379" {
		t.Errorf("redis = %+v", cfg.Redis)
	}
	if cfg.Worker.PoolSize != 4 {
		t.Errorf("pool size = %d", cfg.Worker.PoolSize)
	}
}

func TestValidate(t *testing.T) {
	t.Setenv("PW_DB_URL", "")
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if err := cfg.Validate(); err == nil {
		t.Error("empty DSN must fail validation")
	}
	cfg.Database.DSN = "postgres://worker@db/photos"
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
	cfg.OCR.MaxObjectBytes = 0
	if err := cfg.Validate(); err == nil {
		t.Error("zero maxObjectBytes must fail validation")
	}
}
