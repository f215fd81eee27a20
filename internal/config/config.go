// Package config handles assistant configuration.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config holds all assistant configuration.
type Config struct {
	LLM        LLMConfig       `yaml:"llm" mapstructure:"llm"`
	Store      StoreConfig     `yaml:"store" mapstructure:"store"`
	Guardrails GuardrailConfig `yaml:"guardrails" mapstructure:"guardrails"`
	Telegram   TelegramConfig  `yaml:"telegram" mapstructure:"telegram"`
	Roster     RosterConfig    `yaml:"roster" mapstructure:"roster"`
}

// LLMConfig configures the completion service client.
type LLMConfig struct {
	Endpoint       string  `yaml:"endpoint" mapstructure:"endpoint"`
	APIKey         string  `yaml:"api_key" mapstructure:"api_key"`
	Model          string  `yaml:"model" mapstructure:"model"`
	Temperature    float32 `yaml:"temperature" mapstructure:"temperature"`
	MaxTokens      int     `yaml:"max_tokens" mapstructure:"max_tokens"`
	TimeoutSeconds int     `yaml:"timeout_seconds" mapstructure:"timeout_seconds"`
}

// StoreConfig selects and configures the persisted store.
type StoreConfig struct {
	// Driver is "postgres" or "memory".
	Driver string `yaml:"driver" mapstructure:"driver"`
	DSN    string `yaml:"dsn" mapstructure:"dsn"`
}

// GuardrailConfig holds the process-wide guardrail ceilings. The kill
// switch and the blocked/gated lists are mutable at runtime through the
// guardrail engine only; everything here is just the startup state.
type GuardrailConfig struct {
	MaxTokensPerDay         int      `yaml:"max_tokens_per_day" mapstructure:"max_tokens_per_day"`
	MaxToolCallsPerRun      int      `yaml:"max_tool_calls_per_run" mapstructure:"max_tool_calls_per_run"`
	MaxLoopsPerRun          int      `yaml:"max_loops_per_run" mapstructure:"max_loops_per_run"`
	MaxRunsPerDay           int      `yaml:"max_runs_per_day" mapstructure:"max_runs_per_day"`
	MaxCostPerDay           float64  `yaml:"max_cost_per_day" mapstructure:"max_cost_per_day"`
	CircuitBreakerThreshold int      `yaml:"circuit_breaker_threshold" mapstructure:"circuit_breaker_threshold"`
	BlockedTools            []string `yaml:"blocked_tools" mapstructure:"blocked_tools"`
	GatedTools              []string `yaml:"gated_tools" mapstructure:"gated_tools"`
	AutoApproveGated        bool     `yaml:"auto_approve_gated" mapstructure:"auto_approve_gated"`
	KillSwitch              bool     `yaml:"kill_switch" mapstructure:"kill_switch"`
}

// TelegramConfig configures the report/alert channel. Empty token disables it.
type TelegramConfig struct {
	BotToken string `yaml:"bot_token" mapstructure:"bot_token"`
	ChatID   string `yaml:"chat_id" mapstructure:"chat_id"`
}

// RosterConfig points at the agent roster manifest.
type RosterConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			Endpoint:       "https://api.openai.com/v1",
			Model:          "gpt-4o-mini",
			Temperature:    0.2,
			MaxTokens:      1024,
			TimeoutSeconds: 60,
		},
		Store: StoreConfig{
			Driver: "memory",
		},
		Guardrails: GuardrailConfig{
			MaxTokensPerDay:         150_000,
			MaxToolCallsPerRun:      15,
			MaxLoopsPerRun:          8,
			MaxRunsPerDay:           12,
			MaxCostPerDay:           2.0,
			CircuitBreakerThreshold: 3,
		},
		Roster: RosterConfig{
			Path: "agents.yaml",
		},
	}
}

// Load reads configuration from the given file, applying defaults and
// ASSISTANT_* environment overrides (e.g. ASSISTANT_LLM_API_KEY).
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("assistant")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &cfg, nil
}

// LoadFromPaths tries each path in order and returns the first that exists.
// Defaults (plus env overrides) are returned when none do.
func LoadFromPaths(paths ...string) (*Config, error) {
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return Load(p)
		}
	}
	return Load("")
}

// Save writes the configuration to disk as YAML.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	def := DefaultConfig()

	v.SetDefault("llm.endpoint", def.LLM.Endpoint)
	v.SetDefault("llm.model", def.LLM.Model)
	v.SetDefault("llm.temperature", def.LLM.Temperature)
	v.SetDefault("llm.max_tokens", def.LLM.MaxTokens)
	v.SetDefault("llm.timeout_seconds", def.LLM.TimeoutSeconds)

	v.SetDefault("store.driver", def.Store.Driver)

	v.SetDefault("guardrails.max_tokens_per_day", def.Guardrails.MaxTokensPerDay)
	v.SetDefault("guardrails.max_tool_calls_per_run", def.Guardrails.MaxToolCallsPerRun)
	v.SetDefault("guardrails.max_loops_per_run", def.Guardrails.MaxLoopsPerRun)
	v.SetDefault("guardrails.max_runs_per_day", def.Guardrails.MaxRunsPerDay)
	v.SetDefault("guardrails.max_cost_per_day", def.Guardrails.MaxCostPerDay)
	v.SetDefault("guardrails.circuit_breaker_threshold", def.Guardrails.CircuitBreakerThreshold)

	v.SetDefault("roster.path", def.Roster.Path)
}
