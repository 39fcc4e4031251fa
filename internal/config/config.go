// Package config loads and saves Kai's project configuration: a YAML file
// at .kai/config.yaml, defaulted then overridden by environment variables,
// following the same Load/Save/env-override shape used throughout the
// corpus's own config package.
package config

import (
	"fmt"
	"os"

	"kai/internal/kerrors"

	"gopkg.in/yaml.v3"
)

// ModelConfig holds model selection and retry tuning.
type ModelConfig struct {
	PrimaryName              string `yaml:"primary_name"`
	SecondaryName            string `yaml:"secondary_name"`
	MaxOutputTokens          int    `yaml:"max_output_tokens"`
	MaxPromptTokens          int    `yaml:"max_prompt_tokens"`
	GenerationMaxRetries     int    `yaml:"generation_max_retries"`
	GenerationRetryBaseDelay int    `yaml:"generation_retry_base_delay_ms"`
}

// ProjectConfig holds project-local paths and feedback-loop toggles.
type ProjectConfig struct {
	ChatsDir           string `yaml:"chats_dir"`
	TypeScriptAutofix  bool   `yaml:"typescript_autofix"`
	AutofixIterations  int    `yaml:"autofix_iterations"`
	CoverageIterations int    `yaml:"coverage_iterations"`
}

// AnalysisConfig holds the analysis-cache file location.
type AnalysisConfig struct {
	CacheFilePath string `yaml:"cache_file_path"`
}

// ContextConfig holds the persisted context-builder mode.
type ContextConfig struct {
	Mode string `yaml:"mode"` // "" (auto), "full", "analysis_cache", "dynamic"
}

// LoggingConfig gates the categorized file logger.
type LoggingConfig struct {
	DebugMode  bool     `yaml:"debug_mode"`
	Categories []string `yaml:"categories"`
	JSONFormat bool     `yaml:"json_format"`
}

// Config is Kai's top-level configuration, composed of per-concern
// sub-structs matching spec.md's Config key table.
type Config struct {
	Model    ModelConfig    `yaml:"model"`
	Project  ProjectConfig  `yaml:"project"`
	Analysis AnalysisConfig `yaml:"analysis"`
	Context  ContextConfig  `yaml:"context"`
	Logging  LoggingConfig  `yaml:"logging"`

	// APIKey is never persisted to YAML; it is sourced exclusively from
	// PRIMARY_MODEL_API_KEY at load time.
	APIKey string `yaml:"-"`
}

// DefaultConfig returns Kai's baseline configuration before any file or
// environment overrides are applied.
func DefaultConfig() *Config {
	return &Config{
		Model: ModelConfig{
			PrimaryName:              "gemini-2.5-pro",
			SecondaryName:            "gemini-2.5-flash",
			MaxOutputTokens:          8192,
			MaxPromptTokens:          128000,
			GenerationMaxRetries:     3,
			GenerationRetryBaseDelay: 1000,
		},
		Project: ProjectConfig{
			ChatsDir:           ".kai/logs",
			TypeScriptAutofix:  true,
			AutofixIterations:  2,
			CoverageIterations: 3,
		},
		Analysis: AnalysisConfig{
			CacheFilePath: ".kai/project_analysis.json",
		},
		Context: ContextConfig{
			Mode: "",
		},
		Logging: LoggingConfig{
			DebugMode: false,
		},
	}
}

// Load reads path, starting from DefaultConfig, then unmarshalling YAML
// over it if the file exists, then applying environment overrides. A
// missing file is not an error: defaults plus env overrides are returned.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, &kerrors.IoError{Path: path, Err: err}
		}
	} else {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, &kerrors.ParseError{Source: path, Err: err}
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg to path as YAML. The parent directory of path must
// already exist.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return &kerrors.ParseError{Source: path, Err: err}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return &kerrors.IoError{Path: path, Err: err}
	}
	return nil
}

// applyEnvOverrides reads PRIMARY_MODEL_API_KEY (required) and optional
// overrides for model names, matching the external-interface contract in
// spec.md §6.
func (c *Config) applyEnvOverrides() error {
	apiKey := os.Getenv("PRIMARY_MODEL_API_KEY")
	if apiKey == "" {
		return &kerrors.ConfigError{Msg: "PRIMARY_MODEL_API_KEY is not set"}
	}
	c.APIKey = apiKey

	if v := os.Getenv("KAI_PRIMARY_MODEL"); v != "" {
		c.Model.PrimaryName = v
	}
	if v := os.Getenv("KAI_SECONDARY_MODEL"); v != "" {
		c.Model.SecondaryName = v
	}
	if v := os.Getenv("KAI_CONTEXT_MODE"); v != "" {
		c.Context.Mode = v
	}
	return nil
}

// Editor returns the EDITOR environment variable, used only by the
// out-of-scope external editor launcher collaborator; the core engine
// never consults it.
func Editor() string {
	return os.Getenv("EDITOR")
}

// Validate reports a ConfigError for an unrecognized context mode.
func (c *Config) Validate() error {
	switch c.Context.Mode {
	case "", "full", "analysis_cache", "dynamic":
		return nil
	default:
		return &kerrors.ConfigError{Msg: fmt.Sprintf("unrecognized context mode %q", c.Context.Mode)}
	}
}
