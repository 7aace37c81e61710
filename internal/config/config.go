// Package config loads service configuration from an optional TOML file, a .env
// file and the process environment, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"

	"oto-insights-go/internal/services"
)

type Server struct {
	Port          string `toml:"port"`
	PublicBaseURL string `toml:"public_base_url"`
}

type Pipeline struct {
	MaxConversations int      `toml:"max_conversations"`
	Timeout          Duration `toml:"timeout"`
	WorkerPoolSize   int      `toml:"worker_pool_size"`
	LockDir          string   `toml:"lock_dir"`
}

type Storage struct {
	DatabasePath string   `toml:"database_path"`
	ObjectDir    string   `toml:"object_dir"`
	SigningKey   string   `toml:"signing_key"`
	SignedURLTTL Duration `toml:"signed_url_ttl"`
}

type Transcription struct {
	Backend               string `toml:"backend"` // fireworks, google, mock
	FireworksURL          string `toml:"fireworks_url"`
	FireworksAPIKey       string `toml:"fireworks_api_key"`
	GoogleCredentialsPath string `toml:"google_credentials_path"`
	GoogleLanguageCode    string `toml:"google_language_code"`
}

type LLM struct {
	GatewayURL     string `toml:"gateway_url"`
	APIKey         string `toml:"api_key"`
	Model          string `toml:"model"`
	EmbeddingURL   string `toml:"embedding_url"`
	EmbeddingModel string `toml:"embedding_model"`
	UseMock        bool   `toml:"use_mock"`
}

type Voice struct {
	TTSURL       string `toml:"tts_url"`
	TTSAPIKey    string `toml:"tts_api_key"`
	TTSModel     string `toml:"tts_model"`
	TTSVoice     string `toml:"tts_voice"`
	EnhanceURL   string `toml:"enhance_url"`
	EnhanceKey   string `toml:"enhance_api_key"`
	FFmpegPath   string `toml:"ffmpeg_path"`
	UseMockVoice bool   `toml:"use_mock"`
}

type Kafka struct {
	Enabled   bool     `toml:"enabled"`
	Brokers   []string `toml:"brokers"`
	Topic     string   `toml:"topic"`
	Principal string   `toml:"principal"`
}

type Config struct {
	Environment   string        `toml:"environment"`
	LogLevel      string        `toml:"log_level"`
	Server        Server        `toml:"server"`
	Pipeline      Pipeline      `toml:"pipeline"`
	Storage       Storage       `toml:"storage"`
	Transcription Transcription `toml:"transcription"`
	LLM           LLM           `toml:"llm"`
	Voice         Voice         `toml:"voice"`
	Kafka         Kafka         `toml:"kafka"`
}

// Load reads .env (when present), the TOML file named by OTO_CONFIG (when set)
// and then applies environment overrides.
func Load() (*Config, error) {
	return LoadPath(os.Getenv("OTO_CONFIG"))
}

// LoadPath is Load with an explicit TOML path; an empty path skips the file.
func LoadPath(path string) (*Config, error) {
	_ = godotenv.Load() // loads .env

	cfg := Default()
	if path = strings.TrimSpace(path); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv(os.Getenv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v, err := strconv.Atoi(strings.TrimSpace(getenv(key))); err == nil {
			*dst = v
		}
	}
	dur := func(key string, dst *Duration) {
		if v, err := time.ParseDuration(strings.TrimSpace(getenv(key))); err == nil {
			dst.Duration = v
		}
	}
	flag := func(key string, dst *bool) {
		if v, err := strconv.ParseBool(strings.TrimSpace(getenv(key))); err == nil {
			*dst = v
		}
	}

	str("ENVIRONMENT", &c.Environment)
	str("LOG_LEVEL", &c.LogLevel)

	str("PORT", &c.Server.Port)
	str("PUBLIC_BASE_URL", &c.Server.PublicBaseURL)

	num("MAXIMUM_CONVERSATIONS_LIMIT", &c.Pipeline.MaxConversations)
	dur("PIPELINE_TIMEOUT", &c.Pipeline.Timeout)
	num("WORKER_POOL_SIZE", &c.Pipeline.WorkerPoolSize)
	str("LOCK_DIR", &c.Pipeline.LockDir)

	str("DATABASE_PATH", &c.Storage.DatabasePath)
	str("OBJECT_DIR", &c.Storage.ObjectDir)
	str("SIGNING_KEY", &c.Storage.SigningKey)
	dur("SIGNED_URL_TTL", &c.Storage.SignedURLTTL)

	str("TRANSCRIPTION_BACKEND", &c.Transcription.Backend)
	str("FIREWORKS_URL", &c.Transcription.FireworksURL)
	str("FIREWORKS_API_KEY", &c.Transcription.FireworksAPIKey)
	str("GOOGLE_APPLICATION_CREDENTIALS", &c.Transcription.GoogleCredentialsPath)
	str("GOOGLE_LANGUAGE_CODE", &c.Transcription.GoogleLanguageCode)
	if v, err := strconv.ParseBool(getenv("USE_MOCK_TRANSCRIBE")); err == nil && v {
		c.Transcription.Backend = "mock"
	}

	str("LLM_GATEWAY_URL", &c.LLM.GatewayURL)
	str("LLM_API_KEY", &c.LLM.APIKey)
	str("LLM_MODEL", &c.LLM.Model)
	str("LLM_EMBEDDING_URL", &c.LLM.EmbeddingURL)
	str("LLM_EMBEDDING_MODEL", &c.LLM.EmbeddingModel)
	flag("USE_MOCK_LLM", &c.LLM.UseMock)

	str("TTS_URL", &c.Voice.TTSURL)
	str("TTS_API_KEY", &c.Voice.TTSAPIKey)
	str("TTS_MODEL", &c.Voice.TTSModel)
	str("TTS_VOICE", &c.Voice.TTSVoice)
	str("ENHANCE_URL", &c.Voice.EnhanceURL)
	str("ENHANCE_API_KEY", &c.Voice.EnhanceKey)
	str("FFMPEG_PATH", &c.Voice.FFmpegPath)
	flag("USE_MOCK_VOICE", &c.Voice.UseMockVoice)

	flag("KAFKA_ENABLED", &c.Kafka.Enabled)
	if v := strings.TrimSpace(getenv("KAFKA_BROKERS")); v != "" {
		c.Kafka.Brokers = splitList(v)
	}
	str("KAFKA_TOPIC", &c.Kafka.Topic)
	str("KAFKA_PRINCIPAL", &c.Kafka.Principal)
}

// Validate checks the values the pipeline cannot run without.
func (c *Config) Validate() error {
	var problems []string
	if c.Pipeline.MaxConversations <= 0 {
		problems = append(problems, "pipeline.max_conversations must be positive")
	}
	if c.Pipeline.Timeout.Duration <= 0 {
		problems = append(problems, "pipeline.timeout must be positive")
	}
	if c.Pipeline.WorkerPoolSize <= 0 {
		problems = append(problems, "pipeline.worker_pool_size must be positive")
	}
	if strings.TrimSpace(c.Storage.DatabasePath) == "" {
		problems = append(problems, "storage.database_path is required")
	}
	if strings.TrimSpace(c.Storage.ObjectDir) == "" {
		problems = append(problems, "storage.object_dir is required")
	}
	if strings.TrimSpace(c.Storage.SigningKey) == "" {
		problems = append(problems, "storage.signing_key is required")
	}
	switch c.Transcription.Backend {
	case "fireworks":
		if c.Transcription.FireworksAPIKey == "" {
			problems = append(problems, "transcription.fireworks_api_key is required for the fireworks backend")
		}
	case "google", "mock":
	default:
		problems = append(problems, fmt.Sprintf("unknown transcription backend %q", c.Transcription.Backend))
	}
	if !c.LLM.UseMock && (c.LLM.GatewayURL == "" || c.LLM.APIKey == "") {
		problems = append(problems, "llm.gateway_url and llm.api_key are required unless llm.use_mock is set")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		problems = append(problems, "kafka.brokers is required when kafka is enabled")
	}
	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", services.ErrConfiguration, errors.New(strings.Join(problems, "; ")))
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Duration decodes TOML strings such as "20m" with time.ParseDuration.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", string(text), err)
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}
