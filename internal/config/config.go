// Package config defines the daemon configuration: schema, defaults,
// validation, the viper loader, and a file watcher for live reload.
package config

import (
	"encoding/json"
	"fmt"
)

// Config is the daemon configuration.
type Config struct {
	// AI provider settings
	AI AIConfig `json:"ai" mapstructure:"ai"`

	// Run orchestration settings
	Runner RunnerConfig `json:"runner" mapstructure:"runner"`

	// Run result cache
	Cache CacheConfig `json:"cache" mapstructure:"cache"`

	// Websocket gateway
	Gateway GatewayConfig `json:"gateway" mapstructure:"gateway"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Data directory
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// AIConfig holds provider configuration.
type AIConfig struct {
	Provider    string  `json:"provider" mapstructure:"provider"` // anthropic, openai
	APIKey      string  `json:"api_key" mapstructure:"api_key"`
	BaseURL     string  `json:"base_url" mapstructure:"base_url"`
	Model       string  `json:"model" mapstructure:"model"`
	Temperature float64 `json:"temperature" mapstructure:"temperature"`
	MaxTokens   int     `json:"max_tokens" mapstructure:"max_tokens"`
}

// RunnerConfig holds orchestration policies.
type RunnerConfig struct {
	SystemPrompt           string `json:"system_prompt" mapstructure:"system_prompt"`
	RecursionLimit         int    `json:"recursion_limit" mapstructure:"recursion_limit"`
	PlanMaxSteps           int    `json:"plan_max_steps" mapstructure:"plan_max_steps"`
	PlanRequireApproval    bool   `json:"plan_require_approval" mapstructure:"plan_require_approval"`
	PlanRevisionEnabled    bool   `json:"plan_revision_enabled" mapstructure:"plan_revision_enabled"`
	ApprovalTimeoutSeconds int    `json:"approval_timeout_seconds" mapstructure:"approval_timeout_seconds"` // 0 waits forever
}

// CacheConfig holds run cache settings.
type CacheConfig struct {
	Enabled  bool   `json:"enabled" mapstructure:"enabled"`
	Path     string `json:"path" mapstructure:"path"`
	TTLHours int    `json:"ttl_hours" mapstructure:"ttl_hours"`
}

// GatewayConfig holds gateway server settings.
type GatewayConfig struct {
	Port int    `json:"port" mapstructure:"port"`
	Host string `json:"host" mapstructure:"host"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
}

// DefaultConfig returns a config with default values.
func DefaultConfig() *Config {
	return &Config{
		AI: AIConfig{
			Provider:    "anthropic",
			Model:       "claude-sonnet-4",
			Temperature: 0.7,
			MaxTokens:   4096,
		},
		Runner: RunnerConfig{
			RecursionLimit:      25,
			PlanMaxSteps:        20,
			PlanRequireApproval: true,
			PlanRevisionEnabled: true,
		},
		Cache: CacheConfig{
			Enabled:  true,
			TTLHours: 24,
		},
		Gateway: GatewayConfig{
			Port: 8080,
			Host: "0.0.0.0",
		},
		Logging: LoggingConfig{
			Level:     "info",
			Redaction: true,
		},
	}
}

// String returns a JSON representation of the config.
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// Validate checks whether the configuration is usable.
func (c *Config) Validate() error {
	switch c.AI.Provider {
	case "anthropic", "openai":
	default:
		return fmt.Errorf("invalid provider %q (must be: anthropic, openai)", c.AI.Provider)
	}
	if c.AI.APIKey == "" {
		return fmt.Errorf("ai.api_key is required")
	}
	if c.AI.Model == "" {
		return fmt.Errorf("ai.model is required")
	}

	if c.Runner.RecursionLimit <= 0 {
		return fmt.Errorf("runner.recursion_limit must be positive")
	}
	if c.Runner.PlanMaxSteps <= 0 {
		return fmt.Errorf("runner.plan_max_steps must be positive")
	}
	if c.Runner.ApprovalTimeoutSeconds < 0 {
		return fmt.Errorf("runner.approval_timeout_seconds cannot be negative")
	}

	if c.Gateway.Port <= 0 || c.Gateway.Port > 65535 {
		return fmt.Errorf("invalid gateway port: %d", c.Gateway.Port)
	}

	if c.Cache.Enabled && c.Cache.TTLHours < 0 {
		return fmt.Errorf("cache.ttl_hours cannot be negative")
	}

	return nil
}
