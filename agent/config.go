package agent

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// ExecutorType selects an agent backend.
type ExecutorType string

const (
	ExecutorClaudeCode ExecutorType = "claude-code"
	ExecutorLlamaAgent ExecutorType = "llama-agent"
)

// ClaudeConfig configures the subprocess CLI agent.
type ClaudeConfig struct {
	BinaryPath string   `json:"binary_path,omitempty" yaml:"binary_path,omitempty"`
	Args       []string `json:"args,omitempty" yaml:"args,omitempty"`
}

// LlamaConfig configures the in-process local-model agent.
type LlamaConfig struct {
	ModelRepo     string `json:"model_repo,omitempty" yaml:"model_repo,omitempty"`
	ModelFile     string `json:"model_file,omitempty" yaml:"model_file,omitempty"`
	ServerURL     string `json:"server_url,omitempty" yaml:"server_url,omitempty"`
	MCPPort       int    `json:"mcp_port,omitempty" yaml:"mcp_port,omitempty"`
	ContextLength int    `json:"context_length,omitempty" yaml:"context_length,omitempty"`
}

// Config selects the executor variant and its settings.
type Config struct {
	Type   ExecutorType `json:"type" yaml:"type"`
	Claude ClaudeConfig `json:"claude,omitempty" yaml:"claude,omitempty"`
	Llama  LlamaConfig  `json:"llama,omitempty" yaml:"llama,omitempty"`
}

// DefaultConfig returns the built-in default agent configuration.
func DefaultConfig() Config {
	return Config{Type: ExecutorClaudeCode}
}

// ParseConfig converts a YAML- or JSON-shaped value (typically a
// map[string]any from a workflow variable or a project config file) into a
// Config.
func ParseConfig(value any) (Config, error) {
	switch v := value.(type) {
	case Config:
		return v, nil
	case string:
		// A bare string selects an executor type with default settings
		cfg := Config{Type: ExecutorType(v)}
		return cfg, validateConfig(cfg)
	default:
		data, err := yaml.Marshal(value)
		if err != nil {
			return Config{}, fmt.Errorf("invalid agent config: %w", err)
		}
		var cfg Config
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("invalid agent config: %w", err)
		}
		return cfg, validateConfig(cfg)
	}
}

func validateConfig(cfg Config) error {
	switch cfg.Type {
	case "", ExecutorClaudeCode, ExecutorLlamaAgent:
		return nil
	}
	return fmt.Errorf("unknown agent executor type %q", cfg.Type)
}

// ForConfig returns the Executor for the given configuration. New backends
// register here by implementing the Executor interface.
func ForConfig(cfg Config) (Executor, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	switch cfg.Type {
	case "", ExecutorClaudeCode:
		return NewClaudeExecutor(cfg.Claude), nil
	case ExecutorLlamaAgent:
		return NewLlamaExecutor(cfg.Llama), nil
	}
	return nil, fmt.Errorf("unknown agent executor type %q", cfg.Type)
}
