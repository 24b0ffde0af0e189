// Package config loads runtime settings from the environment and an optional
// .env file, applies defaults and validates the result.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"
	"time"

	"github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// RateLimitConfig defines the parameters for per-connection message rate limiting.
type RateLimitConfig struct {
	Burst          int
	RefillInterval time.Duration
}

// ServerConfig holds the transport settings.
type ServerConfig struct {
	Port           string `validate:"required"`
	AllowedOrigins []string
	MaxMessageSize int64 `validate:"gt=0"`
	RateLimit      RateLimitConfig
}

// RelayConfig holds the routing engine settings.
type RelayConfig struct {
	SendBuffer       int           `validate:"gt=0"`
	SendTimeout      time.Duration `validate:"gt=0"`
	FailureThreshold int           `validate:"gt=0"`
	TimestampFormat  string        `validate:"required"`
	HistoryReplay    int           `validate:"gte=0"`
	ArchiveQueue     int           `validate:"gt=0"`
}

// StoreConfig selects the message store.
type StoreConfig struct {
	Backend   string `validate:"oneof=sqlite badger none"`
	Path      string `validate:"required_unless=Backend none"`
	Dimension int    `validate:"gt=0"`
}

// BotConfig controls how bot mentions are answered.
type BotConfig struct {
	Mode         string `validate:"oneof=recency retrieval"`
	HistoryLimit int    `validate:"gt=0"`
	TopK         int    `validate:"gt=0"`
	Timeout      time.Duration
}

// OpenAIConfig holds the completion provider credentials.
type OpenAIConfig struct {
	APIKey         string
	BaseURL        string `validate:"omitempty,url"`
	Model          string `validate:"required"`
	EmbeddingModel string `validate:"required"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `validate:"oneof=trace debug info warn error fatal panic disabled"`
	File   string
	Pretty bool
}

// Config is the full process configuration.
type Config struct {
	Server ServerConfig
	Relay  RelayConfig
	Store  StoreConfig
	Bot    BotConfig
	OpenAI OpenAIConfig
	Log    LogConfig
}

// environment mirrors the variables read from the process environment. Every
// field is a string so a bad value falls back to its default instead of
// failing the parse.
type environment struct {
	Port             string `env:"SERVER_PORT"`
	AllowedOrigins   string `env:"ALLOWED_ORIGINS"`
	MaxMessageSize   string `env:"MAX_MESSAGE_SIZE"`
	RateLimitBurst   string `env:"RATE_LIMIT_BURST"`
	RateLimitRefill  string `env:"RATE_LIMIT_REFILL_INTERVAL"`
	SendBuffer       string `env:"SEND_BUFFER_SIZE"`
	SendTimeout      string `env:"SEND_TIMEOUT"`
	FailureThreshold string `env:"SEND_FAILURE_THRESHOLD"`
	TimestampFormat  string `env:"TIMESTAMP_FORMAT"`
	HistoryReplay    string `env:"HISTORY_REPLAY_LIMIT"`
	StoreBackend     string `env:"STORE_BACKEND"`
	StorePath        string `env:"STORE_PATH"`
	Dimension        string `env:"EMBEDDING_DIMENSION"`
	ArchiveQueue     string `env:"ARCHIVE_QUEUE_SIZE"`
	BotMode          string `env:"BOT_MODE"`
	BotHistoryLimit  string `env:"BOT_HISTORY_LIMIT"`
	BotTopK          string `env:"BOT_TOP_K"`
	BotTimeout       string `env:"BOT_TIMEOUT"`
	OpenAIKey        string `env:"OPENAI_API_KEY"`
	OpenAIBaseURL    string `env:"OPENAI_BASE_URL"`
	OpenAIModel      string `env:"OPENAI_MODEL"`
	EmbeddingModel   string `env:"OPENAI_EMBEDDING_MODEL"`
	LogLevel         string `env:"LOG_LEVEL"`
	LogFile          string `env:"LOG_FILE"`
	LogPretty        string `env:"LOG_PRETTY"`
}

var validate = validator.New()

// Default returns a Config populated with default values for all settings.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:           ":8080",
			AllowedOrigins: []string{"http://localhost:8080"},
			MaxMessageSize: 2048,
			RateLimit: RateLimitConfig{
				Burst:          5,
				RefillInterval: time.Second,
			},
		},
		Relay: RelayConfig{
			SendBuffer:       256,
			SendTimeout:      50 * time.Millisecond,
			FailureThreshold: 3,
			TimestampFormat:  "3:04:05 PM",
			HistoryReplay:    20,
			ArchiveQueue:     1024,
		},
		Store: StoreConfig{
			Backend:   "sqlite",
			Path:      "relay.db",
			Dimension: 1536,
		},
		Bot: BotConfig{
			Mode:         "recency",
			HistoryLimit: 20,
			TopK:         5,
			Timeout:      30 * time.Second,
		},
		OpenAI: OpenAIConfig{
			Model:          "gpt-3.5-turbo",
			EmbeddingModel: "text-embedding-ada-002",
		},
		Log: LogConfig{
			Level:  "info",
			Pretty: true,
		},
	}
}

// Load reads .env (if present) and the environment, then validates the result.
func Load(dotenvFiles ...string) (Config, error) {
	if err := godotenv.Load(dotenvFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to load .env: %w", err)
	}
	return FromEnv()
}

// FromEnv builds a Config from the process environment. Unset or unparsable
// numeric values keep their defaults.
func FromEnv() (Config, error) {
	var e environment
	if _, err := env.UnmarshalFromEnviron(&e); err != nil {
		return Config{}, fmt.Errorf("failed to read environment: %w", err)
	}

	cfg := Default()
	apply(&cfg, e)

	if err := validate.Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func apply(cfg *Config, e environment) {
	if e.Port != "" {
		cfg.Server.Port = e.Port
	}
	if e.AllowedOrigins != "" {
		cfg.Server.AllowedOrigins = parseOrigins(e.AllowedOrigins)
	}
	cfg.Server.MaxMessageSize = parseInt64Value(e.MaxMessageSize, cfg.Server.MaxMessageSize)
	cfg.Server.RateLimit.Burst = parseIntValue(e.RateLimitBurst, cfg.Server.RateLimit.Burst)
	cfg.Server.RateLimit.RefillInterval = parseSeconds(e.RateLimitRefill, cfg.Server.RateLimit.RefillInterval)

	cfg.Relay.SendBuffer = parseIntValue(e.SendBuffer, cfg.Relay.SendBuffer)
	cfg.Relay.SendTimeout = parseDuration(e.SendTimeout, cfg.Relay.SendTimeout)
	cfg.Relay.FailureThreshold = parseIntValue(e.FailureThreshold, cfg.Relay.FailureThreshold)
	if e.TimestampFormat != "" {
		cfg.Relay.TimestampFormat = e.TimestampFormat
	}
	cfg.Relay.HistoryReplay = parseNonNegative(e.HistoryReplay, cfg.Relay.HistoryReplay)
	cfg.Relay.ArchiveQueue = parseIntValue(e.ArchiveQueue, cfg.Relay.ArchiveQueue)

	if e.StoreBackend != "" {
		cfg.Store.Backend = strings.ToLower(strings.TrimSpace(e.StoreBackend))
	}
	if e.StorePath != "" {
		cfg.Store.Path = e.StorePath
	}
	cfg.Store.Dimension = parseIntValue(e.Dimension, cfg.Store.Dimension)

	if e.BotMode != "" {
		cfg.Bot.Mode = strings.ToLower(strings.TrimSpace(e.BotMode))
	}
	cfg.Bot.HistoryLimit = parseIntValue(e.BotHistoryLimit, cfg.Bot.HistoryLimit)
	cfg.Bot.TopK = parseIntValue(e.BotTopK, cfg.Bot.TopK)
	cfg.Bot.Timeout = parseDuration(e.BotTimeout, cfg.Bot.Timeout)

	cfg.OpenAI.APIKey = e.OpenAIKey
	cfg.OpenAI.BaseURL = e.OpenAIBaseURL
	if e.OpenAIModel != "" {
		cfg.OpenAI.Model = e.OpenAIModel
	}
	if e.EmbeddingModel != "" {
		cfg.OpenAI.EmbeddingModel = e.EmbeddingModel
	}

	if e.LogLevel != "" {
		cfg.Log.Level = strings.ToLower(strings.TrimSpace(e.LogLevel))
	}
	cfg.Log.File = e.LogFile
	if pretty, err := strconv.ParseBool(e.LogPretty); err == nil {
		cfg.Log.Pretty = pretty
	}
}

func parseOrigins(origins string) []string {
	parts := strings.Split(origins, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func parseInt64Value(value string, defaultValue int64) int64 {
	if size, err := strconv.ParseInt(value, 10, 64); err == nil && size > 0 {
		return size
	}
	return defaultValue
}

func parseIntValue(value string, defaultValue int) int {
	if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
		return parsed
	}
	return defaultValue
}

func parseNonNegative(value string, defaultValue int) int {
	if parsed, err := strconv.Atoi(value); err == nil && parsed >= 0 {
		return parsed
	}
	return defaultValue
}

func parseSeconds(value string, defaultValue time.Duration) time.Duration {
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return defaultValue
}

func parseDuration(value string, defaultValue time.Duration) time.Duration {
	if d, err := time.ParseDuration(value); err == nil && d > 0 {
		return d
	}
	return defaultValue
}
