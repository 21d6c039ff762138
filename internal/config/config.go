package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Provider names
const (
	ProviderMock       = "mock"
	ProviderGemini     = "gemini"
	ProviderElevenLabs = "elevenlabs"
)

type Config struct {
	Server    ServerConfig    `koanf:"server"`
	LLM       LLMConfig       `koanf:"llm"`
	TTS       TTSConfig       `koanf:"tts"`
	Pipeline  PipelineConfig  `koanf:"pipeline"`
	Auth      AuthConfig      `koanf:"auth"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
	Log       LogConfig       `koanf:"log"`
}

type ServerConfig struct {
	Port int `koanf:"port"`
}

// LLMConfig selects and tunes the completion backend. Zero values leave the
// adapter defaults in place.
type LLMConfig struct {
	Provider        string  `koanf:"provider"`
	APIKey          string  `koanf:"api_key"`
	Model           string  `koanf:"model"`
	Temperature     float32 `koanf:"temperature"`
	MaxOutputTokens int     `koanf:"max_output_tokens"`
	SystemPrompt    string  `koanf:"system_prompt"`
	BaseURL         string  `koanf:"base_url"`
}

// TTSConfig selects and tunes the speech backend.
type TTSConfig struct {
	Provider string `koanf:"provider"`
	APIKey   string `koanf:"api_key"`
	BaseURL  string `koanf:"base_url"`
	Voice    string `koanf:"voice"`
	Model    string `koanf:"model"`
	Format   string `koanf:"format"`
}

type PipelineConfig struct {
	ChunkLimit  int           `koanf:"chunk_limit"`
	MaxAttempts int           `koanf:"max_attempts"`
	BaseDelay   time.Duration `koanf:"base_delay"`
	Timeout     time.Duration `koanf:"timeout"`
}

// AuthConfig controls websocket session tokens. An empty secret disables auth.
type AuthConfig struct {
	Secret string        `koanf:"secret"`
	TTL    time.Duration `koanf:"ttl"`
}

func (a AuthConfig) Enabled() bool {
	return a.Secret != ""
}

type TelemetryConfig struct {
	Stdout bool `koanf:"stdout"`
}

type LogConfig struct {
	Level       string `koanf:"level"`
	Development bool   `koanf:"development"`
}

// Unprefixed variables kept for compatibility with existing deployments.
var aliases = map[string]string{
	"GEMINI_API_KEY":      "llm.api_key",
	"ELEVEN_LABS_API_KEY": "tts.api_key",
	"PORT":                "server.port",
}

var defaults = map[string]interface{}{
	"server.port":           8080,
	"pipeline.chunk_limit":  4096,
	"pipeline.max_attempts": 1,
	"pipeline.base_delay":   time.Second,
	"pipeline.timeout":      time.Duration(0),
	"auth.ttl":              24 * time.Hour,
	"log.level":             "info",
}

// Load reads the optional .env files (".env" when none are given) and then
// the process environment.
func Load(envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load env file: %w", err)
	}
	return FromEnv()
}

// FromEnv builds the configuration from environment variables only.
// RELAY_SECTION_KEY maps to section.key, e.g. RELAY_PIPELINE_CHUNK_LIMIT.
func FromEnv() (*Config, error) {
	k := koanf.New(".")

	// Empty variables count as unset.
	if err := k.Load(env.ProviderWithValue("", ".", func(key, value string) (string, interface{}) {
		if value == "" {
			return "", nil
		}
		return aliases[key], value
	}), nil); err != nil {
		return nil, err
	}

	if err := k.Load(env.ProviderWithValue("RELAY_", ".", func(key, value string) (string, interface{}) {
		if value == "" {
			return "", nil
		}
		return strings.Replace(strings.ToLower(strings.TrimPrefix(key, "RELAY_")), "_", ".", 1), value
	}), nil); err != nil {
		return nil, err
	}

	for key, value := range defaults {
		if !k.Exists(key) {
			k.Set(key, value)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = ProviderMock
		if cfg.LLM.APIKey != "" {
			cfg.LLM.Provider = ProviderGemini
		}
	}
	if cfg.TTS.Provider == "" {
		cfg.TTS.Provider = ProviderMock
		if cfg.TTS.APIKey != "" {
			cfg.TTS.Provider = ProviderElevenLabs
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port out of range: %d", c.Server.Port)
	}

	switch c.LLM.Provider {
	case ProviderMock:
	case ProviderGemini:
		if c.LLM.APIKey == "" {
			return errors.New("GEMINI_API_KEY is required for the gemini provider")
		}
	default:
		return fmt.Errorf("unknown llm provider %q", c.LLM.Provider)
	}

	switch c.TTS.Provider {
	case ProviderMock:
	case ProviderElevenLabs:
		if c.TTS.APIKey == "" {
			return errors.New("ELEVEN_LABS_API_KEY is required for the elevenlabs provider")
		}
	default:
		return fmt.Errorf("unknown tts provider %q", c.TTS.Provider)
	}

	if c.Pipeline.ChunkLimit < 1 {
		return fmt.Errorf("pipeline chunk limit must be at least 1, got %d", c.Pipeline.ChunkLimit)
	}
	if c.Pipeline.MaxAttempts < 1 {
		return fmt.Errorf("pipeline max attempts must be at least 1, got %d", c.Pipeline.MaxAttempts)
	}
	if c.Pipeline.BaseDelay < 0 {
		return fmt.Errorf("pipeline base delay must not be negative, got %s", c.Pipeline.BaseDelay)
	}
	if c.Pipeline.Timeout < 0 {
		return fmt.Errorf("pipeline timeout must not be negative, got %s", c.Pipeline.Timeout)
	}
	if c.Auth.Enabled() && c.Auth.TTL <= 0 {
		return fmt.Errorf("auth ttl must be positive, got %s", c.Auth.TTL)
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.Log.Level)
	}
	return nil
}
