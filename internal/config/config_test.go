// File: internal/config/config_test.go
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearCredentials blanks every provider variable for the duration of the test.
func clearCredentials(t *testing.T) {
	t.Helper()
	for _, key := range []string{"GEMINI_API_KEY", "GOOGLE_API_KEY", "OPENAI_API_KEY", "ANTHROPIC_API_KEY", "OPENAI_BASE_URL"} {
		t.Setenv(key, "")
	}
}

// -- Constructor and Defaults Tests --

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, "info", cfg.Logger().Level)
	assert.Equal(t, "macbridge", cfg.Logger().ServiceName)
	assert.Empty(t, cfg.Logger().LogFile, "file logging is opt-in")
	assert.Equal(t, 4<<20, cfg.Bridge().MaxLineBytes)
	assert.Equal(t, 256, cfg.Bridge().MaxTreeDepth)
	assert.Equal(t, time.Duration(0), cfg.Bridge().RequestTimeout)
	assert.Equal(t, 15, cfg.Agent().MaxSteps)
	assert.Equal(t, "gemini-2.5-flash", cfg.LLM().GeminiModel)
	assert.Equal(t, 120*time.Second, cfg.LLM().APITimeout)
	assert.Equal(t, ProviderNone, cfg.LLM().Provider())
	assert.NoError(t, cfg.Validate())
}

// -- Credential Priority Tests --

func TestLLMConfig_Provider(t *testing.T) {
	tests := []struct {
		name     string
		cfg      LLMConfig
		expected LLMProvider
	}{
		{"none", LLMConfig{}, ProviderNone},
		{"gemini only", LLMConfig{GeminiAPIKey: "g"}, ProviderGemini},
		{"openai only", LLMConfig{OpenAIAPIKey: "o"}, ProviderOpenAI},
		{"anthropic only", LLMConfig{AnthropicAPIKey: "a"}, ProviderAnthropic},
		{"gemini wins over all", LLMConfig{GeminiAPIKey: "g", OpenAIAPIKey: "o", AnthropicAPIKey: "a"}, ProviderGemini},
		{"openai wins over anthropic", LLMConfig{OpenAIAPIKey: "o", AnthropicAPIKey: "a"}, ProviderOpenAI},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.cfg.Provider())
		})
	}
}

func TestNewConfigFromViper_BindsCredentials(t *testing.T) {
	clearCredentials(t)
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("ANTHROPIC_API_KEY", "ant-test")

	v := viper.New()
	SetDefaults(v)
	ConfigureEnv(v)

	cfg, err := NewConfigFromViper(v)
	require.NoError(t, err)
	assert.Equal(t, "sk-test", cfg.LLM().OpenAIAPIKey)
	assert.Equal(t, "ant-test", cfg.LLM().AnthropicAPIKey)
	assert.Equal(t, ProviderOpenAI, cfg.LLM().Provider())
}

func TestNewConfigFromViper_GoogleKeyAlias(t *testing.T) {
	clearCredentials(t)
	t.Setenv("GOOGLE_API_KEY", "google-test")

	v := viper.New()
	SetDefaults(v)

	cfg, err := NewConfigFromViper(v)
	require.NoError(t, err)
	assert.Equal(t, ProviderGemini, cfg.LLM().Provider())
}

func TestNewConfigFromViper_PrefixedOverrides(t *testing.T) {
	clearCredentials(t)
	t.Setenv("MACBRIDGE_AGENT_MAX_STEPS", "3")
	t.Setenv("MACBRIDGE_BRIDGE_REQUEST_TIMEOUT", "45s")

	v := viper.New()
	SetDefaults(v)
	ConfigureEnv(v)

	cfg, err := NewConfigFromViper(v)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Agent().MaxSteps)
	assert.Equal(t, 45*time.Second, cfg.Bridge().RequestTimeout)
}

// -- Validation Logic Tests --

func TestConfigValidation(t *testing.T) {
	t.Run("Bridge Validation", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.BridgeCfg.MaxLineBytes = 0
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "bridge.max_line_bytes must be a positive integer")

		cfg = NewDefaultConfig()
		cfg.BridgeCfg.MaxTreeDepth = -1
		err = cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "bridge.max_tree_depth")

		cfg = NewDefaultConfig()
		cfg.BridgeCfg.RequestTimeout = -time.Second
		assert.Error(t, cfg.Validate())
	})

	t.Run("Agent Validation", func(t *testing.T) {
		valid := AgentConfig{MaxSteps: 5, StepsPerSecond: 1, PromptTreeMaxBytes: 1024}
		assert.NoError(t, valid.Validate())

		noSteps := valid
		noSteps.MaxSteps = 0
		err := noSteps.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "max_steps must be greater than 0")

		noRate := valid
		noRate.StepsPerSecond = 0
		assert.Error(t, noRate.Validate())
	})

	t.Run("Backend Validation", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.BackendCfg.OsascriptPath = ""
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "backend.osascript_path is required")
	})
}

// -- Environment File Tests --

func TestLoadDotEnv(t *testing.T) {
	t.Run("missing file is ignored", func(t *testing.T) {
		assert.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), "absent.env")))
	})

	t.Run("empty path is ignored", func(t *testing.T) {
		assert.NoError(t, LoadDotEnv(""))
	})

	t.Run("loads values without overriding", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "test.env")
		require.NoError(t, os.WriteFile(path, []byte("MACBRIDGE_DOTENV_NEW=fresh\nMACBRIDGE_DOTENV_SET=fromfile\n"), 0o600))
		t.Setenv("MACBRIDGE_DOTENV_SET", "fromenv")
		t.Setenv("MACBRIDGE_DOTENV_NEW", "")
		require.NoError(t, os.Unsetenv("MACBRIDGE_DOTENV_NEW"))

		require.NoError(t, LoadDotEnv(path))
		assert.Equal(t, "fresh", os.Getenv("MACBRIDGE_DOTENV_NEW"))
		assert.Equal(t, "fromenv", os.Getenv("MACBRIDGE_DOTENV_SET"))
	})
}

func TestBackendConfig_OsascriptAvailable(t *testing.T) {
	dir := t.TempDir()
	exe := filepath.Join(dir, "osascript")
	require.NoError(t, os.WriteFile(exe, []byte("#!/bin/sh\n"), 0o755))
	plain := filepath.Join(dir, "plain")
	require.NoError(t, os.WriteFile(plain, []byte("x"), 0o644))

	assert.True(t, BackendConfig{OsascriptPath: exe}.OsascriptAvailable())
	assert.False(t, BackendConfig{OsascriptPath: plain}.OsascriptAvailable())
	assert.False(t, BackendConfig{OsascriptPath: dir}.OsascriptAvailable())
	assert.False(t, BackendConfig{OsascriptPath: filepath.Join(dir, "nope")}.OsascriptAvailable())
}
