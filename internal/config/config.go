// Package config loads and validates the ctxloomd configuration document:
// server bindings, provider credentials, routing defaults, probe behavior,
// workspace roots, failure-log retention, and combo-evaluator constraints.
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration document for ctxloomd.
type Config struct {
	Version   int             `yaml:"version" json:"version"`
	Server    ServerConfig    `yaml:"server" json:"server"`
	Providers ProvidersConfig `yaml:"providers" json:"providers"`
	Routing   RoutingConfig   `yaml:"routing" json:"routing"`
	Probe     ProbeConfig     `yaml:"probe" json:"probe"`
	Workspace WorkspaceConfig `yaml:"workspace" json:"workspace"`
	Failures  FailureConfig   `yaml:"failures" json:"failures"`
	Combo     ComboConfig     `yaml:"combo" json:"combo"`
}

// ServerConfig configures the HTTP/WebSocket listener.
type ServerConfig struct {
	Addr            string        `yaml:"addr" json:"addr"`
	RAGBaseURL      string        `yaml:"rag_base_url" json:"rag_base_url"`
	LocalBaseURL    string        `yaml:"local_base_url" json:"local_base_url"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

// ProvidersConfig carries per-vendor credentials and defaults. Values are
// read from the conventional environment variable for hosted providers
// when left empty here (see DESIGN.md for the precedence rule).
type ProvidersConfig struct {
	Anthropic AnthropicProviderConfig `yaml:"anthropic" json:"anthropic"`
	OpenAI    OpenAIProviderConfig    `yaml:"openai" json:"openai"`
	Azure     AzureProviderConfig     `yaml:"azure" json:"azure"`
	Bedrock   BedrockProviderConfig   `yaml:"bedrock" json:"bedrock"`
	Google    GoogleProviderConfig    `yaml:"google" json:"google"`
	Local     LocalProviderConfig     `yaml:"local" json:"local"`
}

// AnthropicProviderConfig configures the Anthropic backend.
type AnthropicProviderConfig struct {
	APIKey       string `yaml:"api_key" json:"api_key"`
	DefaultModel string `yaml:"default_model" json:"default_model"`
}

// OpenAIProviderConfig configures the hosted OpenAI-compatible backend.
type OpenAIProviderConfig struct {
	APIKey       string `yaml:"api_key" json:"api_key"`
	DefaultModel string `yaml:"default_model" json:"default_model"`
}

// AzureProviderConfig configures the hosted Azure-style deployment backend.
type AzureProviderConfig struct {
	APIKey     string `yaml:"api_key" json:"api_key"`
	Endpoint   string `yaml:"endpoint" json:"endpoint"`
	Deployment string `yaml:"deployment" json:"deployment"`
}

// BedrockProviderConfig configures the hosted AWS Bedrock backend.
type BedrockProviderConfig struct {
	Region       string `yaml:"region" json:"region"`
	DefaultModel string `yaml:"default_model" json:"default_model"`
}

// GoogleProviderConfig configures the hosted Gemini backend.
type GoogleProviderConfig struct {
	APIKey       string `yaml:"api_key" json:"api_key"`
	DefaultModel string `yaml:"default_model" json:"default_model"`
}

// LocalProviderConfig configures the local inference host. It is reached
// through the Ollama provider, which speaks Ollama's native /api/chat
// protocol, not the OpenAI chat-completions protocol.
type LocalProviderConfig struct {
	BaseURL       string   `yaml:"base_url" json:"base_url"`
	StopSequences []string `yaml:"stop_sequences" json:"stop_sequences"`
}

// RoutingConfig configures the intent router's default candidates.
type RoutingConfig struct {
	MainModelID      string        `yaml:"main_model_id" json:"main_model_id"`
	ExecutorModelID  string        `yaml:"executor_model_id" json:"executor_model_id"`
	EnableDualModel  bool          `yaml:"enable_dual_model" json:"enable_dual_model"`
	Timeout          time.Duration `yaml:"timeout" json:"timeout"`
	Provider         string        `yaml:"provider" json:"provider"`
	FailureCooldown  time.Duration `yaml:"failure_cooldown" json:"failure_cooldown"`
	BaselineModelID  string        `yaml:"baseline_model_id" json:"baseline_model_id"`
}

// ProbeConfig configures the probe harness.
type ProbeConfig struct {
	Timeout               time.Duration `yaml:"timeout" json:"timeout"`
	IncludeLatencySweep   bool          `yaml:"include_latency_sweep" json:"include_latency_sweep"`
	LatencyThreshold      time.Duration `yaml:"latency_threshold" json:"latency_threshold"`
	RepetitionNGram       int           `yaml:"repetition_ngram" json:"repetition_ngram"`
	RepetitionMaxRepeats  int           `yaml:"repetition_max_repeats" json:"repetition_max_repeats"`
}

// WorkspaceConfig points at the data root used to resolve workspace.json and
// per-hash state directories.
type WorkspaceConfig struct {
	DataRoot string `yaml:"data_root" json:"data_root"`
}

// FailureConfig configures the failure log's retention policy.
type FailureConfig struct {
	RetentionDays int `yaml:"retention_days" json:"retention_days"`
}

// ComboConfig configures the combo evaluator's resource constraints.
type ComboConfig struct {
	VRAMLimitMB        int `yaml:"vram_limit_mb" json:"vram_limit_mb"`
	MaxConcurrentProbes int `yaml:"max_concurrent_probes" json:"max_concurrent_probes"`
}

// Load reads, resolves includes for, and validates a configuration document
// at path, applying defaults for any zero-valued fields.
func Load(path string) (*Config, error) {
	raw, err := LoadRaw(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	cfg, err := decodeRawConfig(raw)
	if err != nil {
		return nil, err
	}
	if err := ValidateVersion(cfg.Version); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8787"
	}
	if c.Server.RAGBaseURL == "" {
		c.Server.RAGBaseURL = "http://localhost:3002"
	}
	if c.Providers.Local.BaseURL == "" {
		c.Providers.Local.BaseURL = "http://localhost:1234"
	}
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Routing.Timeout <= 0 {
		c.Routing.Timeout = 60 * time.Second
	}
	if c.Routing.FailureCooldown <= 0 {
		c.Routing.FailureCooldown = 30 * time.Second
	}
	if c.Probe.Timeout <= 0 {
		c.Probe.Timeout = 30 * time.Second
	}
	if c.Probe.LatencyThreshold <= 0 {
		c.Probe.LatencyThreshold = 8 * time.Second
	}
	if c.Probe.RepetitionNGram <= 0 {
		c.Probe.RepetitionNGram = 3
	}
	if c.Probe.RepetitionMaxRepeats <= 0 {
		c.Probe.RepetitionMaxRepeats = 5
	}
	if c.Workspace.DataRoot == "" {
		c.Workspace.DataRoot = "./data"
	}
	if c.Failures.RetentionDays <= 0 {
		c.Failures.RetentionDays = 30
	}
	if c.Combo.MaxConcurrentProbes <= 0 {
		c.Combo.MaxConcurrentProbes = 1
	}
}
