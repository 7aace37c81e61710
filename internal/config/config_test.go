package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"oto-insights-go/internal/services"
)

func validConfig() *Config {
	cfg := Default()
	cfg.Storage.SigningKey = "secret"
	cfg.Transcription.Backend = "mock"
	cfg.LLM.UseMock = true
	return cfg
}

func TestDefaultsNeedSecrets(t *testing.T) {
	err := Default().Validate()
	if err == nil {
		t.Fatal("expected defaults without secrets to fail validation")
	}
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	for _, want := range []string{"signing_key", "fireworks_api_key", "llm.gateway_url"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected %q in %v", want, err)
		}
	}
}

func TestValidConfig(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	env := map[string]string{
		"PORT":                        "9090",
		"MAXIMUM_CONVERSATIONS_LIMIT": "25",
		"PIPELINE_TIMEOUT":            "90s",
		"WORKER_POOL_SIZE":            "3",
		"USE_MOCK_TRANSCRIBE":         "true",
		"USE_MOCK_LLM":                "true",
		"KAFKA_ENABLED":               "true",
		"KAFKA_BROKERS":               "k1:9092, k2:9092,",
		"SIGNING_KEY":                 "s3cret",
		"WORKER_POOL_SIZE_TYPO":       "99",
	}
	cfg := Default()
	cfg.applyEnv(func(k string) string { return env[k] })

	if cfg.Server.Port != "9090" {
		t.Errorf("port = %q", cfg.Server.Port)
	}
	if cfg.Pipeline.MaxConversations != 25 {
		t.Errorf("max conversations = %d", cfg.Pipeline.MaxConversations)
	}
	if cfg.Pipeline.Timeout.Duration != 90*time.Second {
		t.Errorf("timeout = %v", cfg.Pipeline.Timeout)
	}
	if cfg.Pipeline.WorkerPoolSize != 3 {
		t.Errorf("worker pool size = %d", cfg.Pipeline.WorkerPoolSize)
	}
	if cfg.Transcription.Backend != "mock" {
		t.Errorf("backend = %q", cfg.Transcription.Backend)
	}
	if !cfg.LLM.UseMock {
		t.Error("expected mock llm")
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "k2:9092" {
		t.Errorf("brokers = %v", cfg.Kafka.Brokers)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "oto.toml")
	content := `
environment = "production"

[pipeline]
max_conversations = 10
timeout = "5m"
worker_pool_size = 2

[storage]
database_path = "/var/lib/oto/oto.db"
object_dir = "/var/lib/oto/objects"
signing_key = "from-file"

[kafka]
enabled = true
brokers = ["broker:9092"]
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg := Default()
	if err := cfg.loadFile(path); err != nil {
		t.Fatalf("loadFile: %v", err)
	}
	if cfg.Environment != "production" {
		t.Errorf("environment = %q", cfg.Environment)
	}
	if cfg.Pipeline.Timeout.Duration != 5*time.Minute {
		t.Errorf("timeout = %v", cfg.Pipeline.Timeout)
	}
	if cfg.Storage.SigningKey != "from-file" {
		t.Errorf("signing key = %q", cfg.Storage.SigningKey)
	}
	if !cfg.Kafka.Enabled || len(cfg.Kafka.Brokers) != 1 {
		t.Errorf("kafka = %+v", cfg.Kafka)
	}
	// Unset sections keep their defaults.
	if cfg.Server.Port != defaultPort {
		t.Errorf("port = %q", cfg.Server.Port)
	}
}

func TestLoadFileRejectsBadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	if err := os.WriteFile(path, []byte("[pipeline]\ntimeout = \"soon\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if err := Default().loadFile(path); err == nil {
		t.Fatal("expected parse error")
	}
}
