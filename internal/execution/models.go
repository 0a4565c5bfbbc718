package execution

import (
	"context"
	"errors"
	"fmt"
	"os"

	agentllm "github.com/vinayprograms/agentkit/llm"

	"github.com/vinayprograms/conclave/internal/config"
	"github.com/vinayprograms/conclave/internal/llm"
	"github.com/vinayprograms/conclave/internal/store"
)

// ConfigurationError reports a problem detected before any agent runs:
// no model, unknown team, no active agents, unknown mode.
type ConfigurationError struct {
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("configuration error: %s: %v", e.Reason, e.Err)
	}
	return "configuration error: " + e.Reason
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// IsConfigurationError reports whether err is or wraps a ConfigurationError.
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

// Models gives each agent its capability and prices its usage.
type Models interface {
	Capability(ctx context.Context, a store.Agent, sel *store.LLMSelection) (llm.Capability, error)
	Price(ctx context.Context, model string) (config.ModelPrice, bool)
}

// Resolver picks a model for an agent in this order: the agent's model id
// as a stored model config, then as a configured profile, then as a literal
// model name; without one, the execution's selection, then [llm].
type Resolver struct {
	Config *config.Config
	Store  store.Store
	// Keys looks up a stored API key for a provider. Optional.
	Keys func(provider string) string
	// Build turns a resolved config into a capability. Defaults to llm.New.
	Build func(cfg llm.Config) (llm.Capability, error)
}

// Resolve returns the provider settings for agent a.
func (r *Resolver) Resolve(ctx context.Context, a store.Agent, sel *store.LLMSelection) (llm.Config, error) {
	base, err := r.selection(sel)
	if err != nil {
		return llm.Config{}, err
	}

	cfg := base
	if a.ModelID != "" {
		cfg, err = r.agentModel(ctx, a.ModelID, base)
		if err != nil {
			return llm.Config{}, err
		}
	}
	if a.MaxTokens > 0 {
		cfg.MaxTokens = a.MaxTokens
	}
	if cfg.Model == "" {
		return llm.Config{}, &ConfigurationError{Reason: "no LLM configured"}
	}
	cfg.APIKey = r.apiKey(cfg)
	return cfg, nil
}

// Capability resolves and builds agent a's capability.
func (r *Resolver) Capability(ctx context.Context, a store.Agent, sel *store.LLMSelection) (llm.Capability, error) {
	cfg, err := r.Resolve(ctx, a, sel)
	if err != nil {
		return nil, err
	}
	if r.Build != nil {
		return r.Build(cfg)
	}
	return llm.New(cfg)
}

// Price prefers the prices on a stored model config for model, then
// [pricing].
func (r *Resolver) Price(ctx context.Context, model string) (config.ModelPrice, bool) {
	if model == "" {
		return config.ModelPrice{}, false
	}
	if r.Store != nil {
		if mcs, err := r.Store.ListModelConfigs(ctx); err == nil {
			for _, mc := range mcs {
				if mc.Model == model && (mc.InputPricePerMTok > 0 || mc.OutputPricePerMTok > 0) {
					return config.ModelPrice{InputPer1M: mc.InputPricePerMTok, OutputPer1M: mc.OutputPricePerMTok}, true
				}
			}
		}
	}
	if r.Config == nil {
		return config.ModelPrice{}, false
	}
	return r.Config.Price(model)
}

func (r *Resolver) selection(sel *store.LLMSelection) (llm.Config, error) {
	def := config.LLMConfig{}
	if r.Config != nil {
		def = r.Config.LLM
	}
	if sel == nil {
		return fromLLMConfig(def), nil
	}
	if sel.Profile != "" {
		p, ok := r.profile(sel.Profile)
		if !ok {
			return llm.Config{}, &ConfigurationError{Reason: fmt.Sprintf("unknown profile %q", sel.Profile)}
		}
		return fromLLMConfig(p), nil
	}
	if sel.Model != "" {
		cfg := fromLLMConfig(def)
		cfg.Provider = sel.Provider
		cfg.Model = sel.Model
		cfg.BaseURL = sel.BaseURL
		return cfg, nil
	}
	return fromLLMConfig(def), nil
}

func (r *Resolver) agentModel(ctx context.Context, modelID string, base llm.Config) (llm.Config, error) {
	if r.Store != nil {
		mc, err := r.Store.GetModelConfig(ctx, modelID)
		if err == nil {
			cfg := base
			cfg.Provider = mc.Provider
			cfg.Model = mc.Model
			cfg.BaseURL = mc.BaseURL
			cfg.APIKey = ""
			if mc.MaxTokens > 0 {
				cfg.MaxTokens = mc.MaxTokens
			}
			return cfg, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return llm.Config{}, err
		}
	}
	if p, ok := r.profile(modelID); ok {
		return fromLLMConfig(p), nil
	}
	// A literal model name; the provider is inferred from it.
	cfg := base
	cfg.Provider = ""
	cfg.Model = modelID
	cfg.BaseURL = ""
	return cfg, nil
}

func (r *Resolver) profile(name string) (config.LLMConfig, bool) {
	if r.Config == nil {
		return config.LLMConfig{}, false
	}
	return r.Config.GetProfile(name)
}

func (r *Resolver) apiKey(cfg llm.Config) string {
	if cfg.APIKey != "" {
		return cfg.APIKey
	}
	provider := cfg.Provider
	if provider == "" {
		provider = agentllm.InferProviderFromModel(cfg.Model)
	}
	if r.Keys != nil {
		if key := r.Keys(provider); key != "" {
			return key
		}
	}
	return os.Getenv(config.DefaultAPIKeyEnv(provider))
}

func fromLLMConfig(c config.LLMConfig) llm.Config {
	cfg := llm.Config{
		Provider:     c.Provider,
		Model:        c.Model,
		BaseURL:      c.BaseURL,
		MaxTokens:    c.MaxTokens,
		Thinking:     c.Thinking,
		MaxRetries:   c.MaxRetries,
		RetryBackoff: c.RetryBackoff,
	}
	if c.APIKeyEnv != "" {
		cfg.APIKey = os.Getenv(c.APIKeyEnv)
	}
	return cfg
}

// cost prices one opinion's usage.
func cost(p config.ModelPrice, input, output int) float64 {
	return float64(input)*p.InputPer1M/1e6 + float64(output)*p.OutputPer1M/1e6
}
