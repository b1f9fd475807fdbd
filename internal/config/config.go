// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// EnvPrefix namespaces every configuration key that can be set from the environment.
const EnvPrefix = "MACBRIDGE"

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	LLM() LLMConfig
	Bridge() BridgeConfig
	Agent() AgentConfig
	Backend() BackendConfig
}

// Config holds the entire application configuration. It is built once at
// process start and only read afterwards.
type Config struct {
	LoggerCfg  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	LLMCfg     LLMConfig     `mapstructure:"llm" yaml:"llm"`
	BridgeCfg  BridgeConfig  `mapstructure:"bridge" yaml:"bridge"`
	AgentCfg   AgentConfig   `mapstructure:"agent" yaml:"agent"`
	BackendCfg BackendConfig `mapstructure:"backend" yaml:"backend"`
}

var _ Interface = (*Config)(nil)

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig   { return c.LoggerCfg }
func (c *Config) LLM() LLMConfig         { return c.LLMCfg }
func (c *Config) Bridge() BridgeConfig   { return c.BridgeCfg }
func (c *Config) Agent() AgentConfig     { return c.AgentCfg }
func (c *Config) Backend() BackendConfig { return c.BackendCfg }

// LoggerConfig configures the diagnostic channel. Console output always goes to
// stderr; LogFile adds a rotated JSON copy.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// LLMProvider defines the supported LLM providers.
type LLMProvider string

const (
	ProviderNone      LLMProvider = ""
	ProviderGemini    LLMProvider = "gemini"
	ProviderOpenAI    LLMProvider = "openai"
	ProviderAnthropic LLMProvider = "anthropic"
)

// LLMConfig holds the credentials and model choices for every supported
// provider. Only one provider is active; see Provider.
type LLMConfig struct {
	GeminiAPIKey     string        `mapstructure:"gemini_api_key" yaml:"-"`
	OpenAIAPIKey     string        `mapstructure:"openai_api_key" yaml:"-"`
	AnthropicAPIKey  string        `mapstructure:"anthropic_api_key" yaml:"-"`
	GeminiModel      string        `mapstructure:"gemini_model" yaml:"gemini_model"`
	OpenAIModel      string        `mapstructure:"openai_model" yaml:"openai_model"`
	AnthropicModel   string        `mapstructure:"anthropic_model" yaml:"anthropic_model"`
	OpenAIBaseURL    string        `mapstructure:"openai_base_url" yaml:"openai_base_url"`
	AnthropicBaseURL string        `mapstructure:"anthropic_base_url" yaml:"anthropic_base_url"`
	APITimeout       time.Duration `mapstructure:"api_timeout" yaml:"api_timeout"`
	Temperature      float64       `mapstructure:"temperature" yaml:"temperature"`
	MaxTokens        int           `mapstructure:"max_tokens" yaml:"max_tokens"`
}

// Provider reports the active provider. Credentials are checked in a fixed
// order: Gemini, then OpenAI, then Anthropic. ProviderNone means no key is set.
func (l LLMConfig) Provider() LLMProvider {
	switch {
	case l.GeminiAPIKey != "":
		return ProviderGemini
	case l.OpenAIAPIKey != "":
		return ProviderOpenAI
	case l.AnthropicAPIKey != "":
		return ProviderAnthropic
	default:
		return ProviderNone
	}
}

// BridgeConfig tunes the dispatch loop.
type BridgeConfig struct {
	MaxLineBytes int `mapstructure:"max_line_bytes" yaml:"max_line_bytes"`
	MaxTreeDepth int `mapstructure:"max_tree_depth" yaml:"max_tree_depth"`
	// RequestTimeout bounds a single handler. Zero leaves requests unbounded.
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
}

// AgentConfig tunes the task-planning session.
type AgentConfig struct {
	MaxSteps           int     `mapstructure:"max_steps" yaml:"max_steps"`
	StepsPerSecond     float64 `mapstructure:"steps_per_second" yaml:"steps_per_second"`
	PromptTreeMaxBytes int     `mapstructure:"prompt_tree_max_bytes" yaml:"prompt_tree_max_bytes"`
}

// BackendConfig configures the macOS automation backend.
type BackendConfig struct {
	OsascriptPath    string `mapstructure:"osascript_path" yaml:"osascript_path"`
	RequireOsascript bool   `mapstructure:"require_osascript" yaml:"require_osascript"`
	EnvFile          string `mapstructure:"env_file" yaml:"env_file"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "macbridge")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 20)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")

	// -- LLM --
	v.SetDefault("llm.gemini_model", "gemini-2.5-flash")
	v.SetDefault("llm.openai_model", "gpt-4o")
	v.SetDefault("llm.anthropic_model", "claude-sonnet-4-5")
	v.SetDefault("llm.anthropic_base_url", "https://api.anthropic.com/v1/")
	v.SetDefault("llm.api_timeout", "120s")
	v.SetDefault("llm.temperature", 0.1)
	v.SetDefault("llm.max_tokens", 2048)

	// -- Bridge --
	v.SetDefault("bridge.max_line_bytes", 4<<20)
	v.SetDefault("bridge.max_tree_depth", 256)
	v.SetDefault("bridge.request_timeout", "0s")

	// -- Agent --
	v.SetDefault("agent.max_steps", 15)
	v.SetDefault("agent.steps_per_second", 2.0)
	v.SetDefault("agent.prompt_tree_max_bytes", 24<<10)

	// -- Backend --
	v.SetDefault("backend.osascript_path", "/usr/bin/osascript")
	v.SetDefault("backend.require_osascript", true)
	v.SetDefault("backend.env_file", ".env")
}

// ConfigureEnv wires viper to the MACBRIDGE_ environment namespace.
func ConfigureEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// LoadDotEnv loads KEY=VALUE pairs from path into the process environment
// without overriding variables that are already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	expanded, err := homedir.Expand(path)
	if err != nil {
		return fmt.Errorf("failed to expand env file path %q: %w", path, err)
	}
	if err := godotenv.Load(expanded); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load env file %q: %w", expanded, err)
	}
	return nil
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Provider credentials use their conventional names rather than the
	// MACBRIDGE_ prefix so the parent process can forward its environment as is.
	v.BindEnv("llm.gemini_api_key", "GEMINI_API_KEY", "GOOGLE_API_KEY")
	v.BindEnv("llm.openai_api_key", "OPENAI_API_KEY")
	v.BindEnv("llm.anthropic_api_key", "ANTHROPIC_API_KEY")
	v.BindEnv("llm.openai_base_url", "OPENAI_BASE_URL")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if cfg.LoggerCfg.LogFile != "" {
		expanded, err := homedir.Expand(cfg.LoggerCfg.LogFile)
		if err != nil {
			return nil, fmt.Errorf("failed to expand logger.log_file: %w", err)
		}
		cfg.LoggerCfg.LogFile = expanded
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.BridgeCfg.MaxLineBytes <= 0 {
		return fmt.Errorf("bridge.max_line_bytes must be a positive integer")
	}
	if c.BridgeCfg.MaxTreeDepth <= 0 {
		return fmt.Errorf("bridge.max_tree_depth must be a positive integer")
	}
	if c.BridgeCfg.RequestTimeout < 0 {
		return fmt.Errorf("bridge.request_timeout must not be negative")
	}
	if err := c.AgentCfg.Validate(); err != nil {
		return fmt.Errorf("agent configuration invalid: %w", err)
	}
	if c.BackendCfg.OsascriptPath == "" {
		return fmt.Errorf("backend.osascript_path is required")
	}
	return nil
}

// Validate checks the AgentConfig settings.
func (a *AgentConfig) Validate() error {
	if a.MaxSteps <= 0 {
		return fmt.Errorf("max_steps must be greater than 0")
	}
	if a.StepsPerSecond <= 0 {
		return fmt.Errorf("steps_per_second must be positive")
	}
	if a.PromptTreeMaxBytes <= 0 {
		return fmt.Errorf("prompt_tree_max_bytes must be positive")
	}
	return nil
}

// OsascriptAvailable reports whether the configured osascript binary exists
// and is executable.
func (b BackendConfig) OsascriptAvailable() bool {
	info, err := os.Stat(b.OsascriptPath)
	if err != nil || info.IsDir() {
		return false
	}
	return info.Mode()&0o111 != 0
}
