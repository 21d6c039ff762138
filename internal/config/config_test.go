package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv blanks every variable the loader reads so the host environment
// cannot leak into a test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"GEMINI_API_KEY", "ELEVEN_LABS_API_KEY", "PORT",
		"RELAY_LLM_PROVIDER", "RELAY_LLM_API_KEY", "RELAY_LLM_MODEL", "RELAY_LLM_TEMPERATURE",
		"RELAY_LLM_MAX_OUTPUT_TOKENS", "RELAY_LLM_SYSTEM_PROMPT", "RELAY_LLM_BASE_URL",
		"RELAY_TTS_PROVIDER", "RELAY_TTS_API_KEY", "RELAY_TTS_BASE_URL", "RELAY_TTS_VOICE",
		"RELAY_TTS_MODEL", "RELAY_TTS_FORMAT",
		"RELAY_PIPELINE_CHUNK_LIMIT", "RELAY_PIPELINE_MAX_ATTEMPTS", "RELAY_PIPELINE_BASE_DELAY",
		"RELAY_PIPELINE_TIMEOUT", "RELAY_AUTH_SECRET", "RELAY_AUTH_TTL",
		"RELAY_TELEMETRY_STDOUT", "RELAY_LOG_LEVEL", "RELAY_LOG_DEVELOPMENT",
		"RELAY_SERVER_PORT",
	} {
		t.Setenv(key, "")
	}
}

func TestFromEnv_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, ProviderMock, cfg.LLM.Provider)
	assert.Equal(t, ProviderMock, cfg.TTS.Provider)
	assert.Equal(t, 4096, cfg.Pipeline.ChunkLimit)
	assert.Equal(t, 1, cfg.Pipeline.MaxAttempts)
	assert.Equal(t, time.Second, cfg.Pipeline.BaseDelay)
	assert.Equal(t, time.Duration(0), cfg.Pipeline.Timeout)
	assert.Equal(t, 24*time.Hour, cfg.Auth.TTL)
	assert.False(t, cfg.Auth.Enabled())
	assert.False(t, cfg.Telemetry.Stdout)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestFromEnv_CredentialsSelectProviders(t *testing.T) {
	clearEnv(t)
	t.Setenv("GEMINI_API_KEY", "gemini-key")
	t.Setenv("ELEVEN_LABS_API_KEY", "eleven-key")
	t.Setenv("PORT", "9090")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, ProviderGemini, cfg.LLM.Provider)
	assert.Equal(t, "gemini-key", cfg.LLM.APIKey)
	assert.Equal(t, ProviderElevenLabs, cfg.TTS.Provider)
	assert.Equal(t, "eleven-key", cfg.TTS.APIKey)
}

func TestFromEnv_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("GEMINI_API_KEY", "gemini-key")
	t.Setenv("RELAY_LLM_PROVIDER", "mock")
	t.Setenv("RELAY_LLM_MODEL", "gemini-2.5-pro")
	t.Setenv("RELAY_LLM_TEMPERATURE", "0.4")
	t.Setenv("RELAY_LLM_MAX_OUTPUT_TOKENS", "512")
	t.Setenv("RELAY_LLM_SYSTEM_PROMPT", "Be brief.")
	t.Setenv("RELAY_LLM_BASE_URL", "http://gemini-proxy:8080")
	t.Setenv("RELAY_TTS_VOICE", "voice-1")
	t.Setenv("RELAY_TTS_FORMAT", "pcm_16000")
	t.Setenv("RELAY_PIPELINE_CHUNK_LIMIT", "200")
	t.Setenv("RELAY_PIPELINE_MAX_ATTEMPTS", "3")
	t.Setenv("RELAY_PIPELINE_BASE_DELAY", "250ms")
	t.Setenv("RELAY_PIPELINE_TIMEOUT", "2m")
	t.Setenv("RELAY_AUTH_SECRET", "s3cret")
	t.Setenv("RELAY_AUTH_TTL", "1h")
	t.Setenv("RELAY_TELEMETRY_STDOUT", "true")
	t.Setenv("RELAY_LOG_LEVEL", "debug")
	t.Setenv("RELAY_LOG_DEVELOPMENT", "true")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, ProviderMock, cfg.LLM.Provider)
	assert.Equal(t, "gemini-2.5-pro", cfg.LLM.Model)
	assert.InDelta(t, 0.4, cfg.LLM.Temperature, 0.0001)
	assert.Equal(t, 512, cfg.LLM.MaxOutputTokens)
	assert.Equal(t, "Be brief.", cfg.LLM.SystemPrompt)
	assert.Equal(t, "http://gemini-proxy:8080", cfg.LLM.BaseURL)
	assert.Equal(t, "voice-1", cfg.TTS.Voice)
	assert.Equal(t, "pcm_16000", cfg.TTS.Format)
	assert.Equal(t, 200, cfg.Pipeline.ChunkLimit)
	assert.Equal(t, 3, cfg.Pipeline.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.Pipeline.BaseDelay)
	assert.Equal(t, 2*time.Minute, cfg.Pipeline.Timeout)
	assert.True(t, cfg.Auth.Enabled())
	assert.Equal(t, time.Hour, cfg.Auth.TTL)
	assert.True(t, cfg.Telemetry.Stdout)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Log.Development)
}

func TestFromEnv_Invalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{name: "zero chunk limit", key: "RELAY_PIPELINE_CHUNK_LIMIT", val: "0"},
		{name: "zero attempts", key: "RELAY_PIPELINE_MAX_ATTEMPTS", val: "0"},
		{name: "negative delay", key: "RELAY_PIPELINE_BASE_DELAY", val: "-1s"},
		{name: "negative timeout", key: "RELAY_PIPELINE_TIMEOUT", val: "-5s"},
		{name: "unknown llm provider", key: "RELAY_LLM_PROVIDER", val: "openai"},
		{name: "gemini without key", key: "RELAY_LLM_PROVIDER", val: "gemini"},
		{name: "elevenlabs without key", key: "RELAY_TTS_PROVIDER", val: "elevenlabs"},
		{name: "unknown log level", key: "RELAY_LOG_LEVEL", val: "verbose"},
		{name: "port out of range", key: "PORT", val: "70000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.val)

			_, err := FromEnv()
			assert.Error(t, err)
		})
	}
}

func TestLoad_EnvFile(t *testing.T) {
	clearEnv(t)
	// godotenv never overrides variables that are already set, even to "".
	os.Unsetenv("RELAY_PIPELINE_CHUNK_LIMIT")

	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("RELAY_PIPELINE_CHUNK_LIMIT=321\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("RELAY_PIPELINE_CHUNK_LIMIT") })

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 321, cfg.Pipeline.ChunkLimit)
}

func TestLoad_MissingEnvFile(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, 4096, cfg.Pipeline.ChunkLimit)
}
