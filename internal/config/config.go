// Package config provides configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// DefaultFile is looked up in the working directory.
const DefaultFile = "conclave.toml"

// Config represents the conclave configuration.
type Config struct {
	LLM           LLMConfig             `toml:"llm"`      // Default model
	Profiles      map[string]Profile    `toml:"profiles"` // Named models agents may select
	Workspace     WorkspaceConfig       `toml:"workspace"`
	Storage       StorageConfig         `toml:"storage"`
	Tools         ToolsConfig           `toml:"tools"`
	Budget        BudgetConfig          `toml:"budget"`
	Collaboration CollaborationConfig   `toml:"collaboration"`
	Events        EventsConfig          `toml:"events"`
	Telemetry     TelemetryConfig       `toml:"telemetry"`
	Pricing       map[string]ModelPrice `toml:"pricing"` // Keyed by model id
}

// LLMConfig contains LLM provider settings.
type LLMConfig struct {
	Provider     string `toml:"provider"`
	Model        string `toml:"model"`
	APIKeyEnv    string `toml:"api_key_env"`
	MaxTokens    int    `toml:"max_tokens"`
	BaseURL      string `toml:"base_url"`      // Custom API endpoint (OpenRouter, LiteLLM, Ollama)
	Thinking     string `toml:"thinking"`      // auto|off|low|medium|high
	MaxRetries   int    `toml:"max_retries"`   // default 5
	RetryBackoff string `toml:"retry_backoff"` // max backoff, default "60s"
}

// Profile maps a name to a specific model.
type Profile struct {
	Provider  string `toml:"provider"`
	Model     string `toml:"model"`
	APIKeyEnv string `toml:"api_key_env"`
	MaxTokens int    `toml:"max_tokens"`
	BaseURL   string `toml:"base_url"`
	Thinking  string `toml:"thinking"`
}

// WorkspaceConfig sets the default sandbox root for tools.
type WorkspaceConfig struct {
	Path string `toml:"path"` // empty = tools disabled unless an execution names one
}

// StorageConfig contains persistent storage settings.
type StorageConfig struct {
	Path          string `toml:"path"`           // Base directory for all persistent data
	Database      string `toml:"database"`       // SQLite file, relative to path
	Transcripts   string `toml:"transcripts"`    // JSONL transcripts, relative to path
	CheckpointDir string `toml:"checkpoint_dir"` // empty = no round checkpoints
}

// ToolsConfig holds tool limits.
type ToolsConfig struct {
	Enabled          bool  `toml:"enabled"`
	MaxReadBytes     int64 `toml:"max_read_bytes"`
	MaxSearchMatches int   `toml:"max_search_matches"`
	MaxSearchFiles   int   `toml:"max_search_files"`
	TimeoutMs        int64 `toml:"timeout_ms"`
}

// BudgetConfig holds the default per-execution budgets.
type BudgetConfig struct {
	MaxTokens    int     `toml:"max_tokens"`
	MaxCost      float64 `toml:"max_cost"`
	ExtendTokens int     `toml:"extend_tokens"` // added by extend_budget
	ExtendCost   float64 `toml:"extend_cost"`
}

// CollaborationConfig tunes the modes.
type CollaborationConfig struct {
	DebateRounds  int  `toml:"debate_rounds"`
	ResponsePhase bool `toml:"response_phase"` // roundtable second pass
	ContextLimit  int  `toml:"context_limit"`  // recent opinions shown in roundtable
}

// EventsConfig enables the NATS event bus.
type EventsConfig struct {
	NATSURL string `toml:"nats_url"`
	Subject string `toml:"subject_prefix"`
}

// TelemetryConfig contains telemetry settings.
type TelemetryConfig struct {
	Enabled  bool   `toml:"enabled"`
	Endpoint string `toml:"endpoint"` // OTLP endpoint (e.g., localhost:4317)
	Protocol string `toml:"protocol"` // grpc, http or noop
}

// ModelPrice is USD per million tokens.
type ModelPrice struct {
	InputPer1M  float64 `toml:"input"`
	OutputPer1M float64 `toml:"output"`
}

// New creates a new config with defaults.
func New() *Config {
	return &Config{
		LLM: LLMConfig{
			MaxTokens: 2048,
		},
		Storage: StorageConfig{
			Path:        "~/.local/share/conclave",
			Database:    "conclave.db",
			Transcripts: "transcripts",
		},
		Tools: ToolsConfig{
			Enabled:          true,
			MaxReadBytes:     50000,
			MaxSearchMatches: 200,
			MaxSearchFiles:   2000,
			TimeoutMs:        10000,
		},
		Budget: BudgetConfig{
			MaxTokens:    200000,
			MaxCost:      10.0,
			ExtendTokens: 50000,
			ExtendCost:   5.0,
		},
		Collaboration: CollaborationConfig{
			DebateRounds:  3,
			ResponsePhase: true,
			ContextLimit:  6,
		},
		Telemetry: TelemetryConfig{
			Protocol: "noop",
		},
	}
}

// Default returns a default configuration.
func Default() *Config {
	return New()
}

// LoadFile loads configuration from a TOML file.
func LoadFile(path string) (*Config, error) {
	cfg := New()
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("unknown config keys: %s", strings.Join(keys, ", "))
	}
	return cfg, cfg.Validate()
}

// LoadDefault loads conclave.toml from the current directory, or the
// defaults when there is none.
func LoadDefault() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get current directory: %w", err)
	}
	return LoadOptional(filepath.Join(cwd, DefaultFile))
}

// LoadOptional is LoadFile that tolerates a missing file.
func LoadOptional(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return New(), nil
	}
	return LoadFile(path)
}

// Validate rejects values no component can work with.
func (c *Config) Validate() error {
	if c.LLM.RetryBackoff != "" {
		if _, err := time.ParseDuration(c.LLM.RetryBackoff); err != nil {
			return fmt.Errorf("llm.retry_backoff: %w", err)
		}
	}
	if c.Budget.MaxTokens < 0 || c.Budget.MaxCost < 0 {
		return errors.New("budget values must not be negative")
	}
	if c.Collaboration.DebateRounds < 0 {
		return errors.New("collaboration.debate_rounds must not be negative")
	}
	switch c.Telemetry.Protocol {
	case "", "noop", "grpc", "http":
	default:
		return fmt.Errorf("telemetry.protocol %q: want grpc, http or noop", c.Telemetry.Protocol)
	}
	return nil
}

// ExpandPath resolves a leading ~ to the home directory.
func ExpandPath(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}

// DataDir is the expanded storage base directory.
func (c *Config) DataDir() string {
	return ExpandPath(c.Storage.Path)
}

// DatabasePath resolves the SQLite file.
func (c *Config) DatabasePath() string {
	return c.under(c.Storage.Database)
}

// TranscriptDir resolves the transcript directory.
func (c *Config) TranscriptDir() string {
	return c.under(c.Storage.Transcripts)
}

// CheckpointDir resolves the checkpoint directory; empty when disabled.
func (c *Config) CheckpointDir() string {
	if c.Storage.CheckpointDir == "" {
		return ""
	}
	return c.under(c.Storage.CheckpointDir)
}

func (c *Config) under(p string) string {
	p = ExpandPath(p)
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.DataDir(), p)
}

// RetryBackoff parses llm.retry_backoff, 0 when unset.
func (c *Config) RetryBackoff() time.Duration {
	d, _ := time.ParseDuration(c.LLM.RetryBackoff)
	return d
}

// DefaultAPIKeyEnv returns the default environment variable name for a provider.
func DefaultAPIKeyEnv(provider string) string {
	switch provider {
	case "anthropic":
		return "ANTHROPIC_API_KEY"
	case "openai":
		return "OPENAI_API_KEY"
	case "google":
		return "GOOGLE_API_KEY"
	case "mistral":
		return "MISTRAL_API_KEY"
	case "groq":
		return "GROQ_API_KEY"
	default:
		return ""
	}
}

// GetProfile returns the LLM config for a profile. Unset profile fields are
// inherited from [llm]; an unknown name returns [llm] and false.
func (c *Config) GetProfile(name string) (LLMConfig, bool) {
	if name == "" {
		return c.LLM, true
	}
	profile, ok := c.Profiles[name]
	if !ok {
		return c.LLM, false
	}
	result := c.LLM
	result.Model = profile.Model
	if profile.Provider != "" {
		result.Provider = profile.Provider
	}
	if profile.APIKeyEnv != "" {
		result.APIKeyEnv = profile.APIKeyEnv
	}
	if profile.MaxTokens != 0 {
		result.MaxTokens = profile.MaxTokens
	}
	if profile.BaseURL != "" {
		result.BaseURL = profile.BaseURL
	} else if profile.Provider != "" && profile.Provider != c.LLM.Provider {
		result.BaseURL = ""
	}
	if profile.Thinking != "" {
		result.Thinking = profile.Thinking
	}
	return result, true
}

// Price returns the configured price of a model.
func (c *Config) Price(model string) (ModelPrice, bool) {
	p, ok := c.Pricing[model]
	return p, ok
}
