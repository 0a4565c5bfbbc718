package llm

import (
	"context"
	"fmt"
	"time"

	agentllm "github.com/vinayprograms/agentkit/llm"

	"github.com/vinayprograms/conclave/internal/tools"
)

// Adapter exposes an agentkit provider as a Capability.
//
// agentkit fixes sampling parameters when the provider is constructed, so the
// per-call temperature is not forwarded and maxTokens is applied through
// ProviderConfig. Build one provider per agent to honor per-agent limits.
type Adapter struct {
	provider agentllm.Provider
	name     string
	model    string
}

// NewAdapter wraps provider. model is reported on responses that do not name
// one; the provider name is inferred from it.
func NewAdapter(provider agentllm.Provider, model string) *Adapter {
	return &Adapter{provider: provider, name: agentllm.InferProviderFromModel(model), model: model}
}

// Config selects and parameterizes an agentkit provider.
type Config struct {
	Provider     string
	Model        string
	APIKey       string
	BaseURL      string
	MaxTokens    int
	Thinking     string
	MaxRetries   int
	RetryBackoff string
}

// New builds an agentkit provider from cfg and adapts it. An empty
// Provider is inferred from the model name.
func New(cfg Config) (*Adapter, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("LLM model not configured")
	}
	provider := cfg.Provider
	if provider == "" {
		provider = agentllm.InferProviderFromModel(cfg.Model)
	}
	p, err := agentllm.NewProvider(agentllm.ProviderConfig{
		Provider:    provider,
		Model:       cfg.Model,
		APIKey:      cfg.APIKey,
		MaxTokens:   cfg.MaxTokens,
		BaseURL:     cfg.BaseURL,
		Thinking:    agentllm.ThinkingConfig{Level: agentllm.ThinkingLevel(cfg.Thinking)},
		RetryConfig: retryConfig(cfg.MaxRetries, cfg.RetryBackoff),
	})
	if err != nil {
		return nil, fmt.Errorf("creating LLM provider: %w", err)
	}
	a := NewAdapter(p, cfg.Model)
	a.name = provider
	return a, nil
}

func retryConfig(maxRetries int, backoff string) agentllm.RetryConfig {
	rc := agentllm.RetryConfig{MaxRetries: maxRetries}
	if backoff != "" {
		if d, err := time.ParseDuration(backoff); err == nil {
			rc.MaxBackoff = d
		}
	}
	return rc
}

// Name is the configured provider name, not a property of the provider value.
func (a *Adapter) Name() string  { return a.name }
func (a *Adapter) Model() string { return a.model }

func (a *Adapter) Chat(ctx context.Context, messages []Message, temperature float64, maxTokens int) (*Response, error) {
	return a.chat(ctx, messages, nil)
}

func (a *Adapter) ChatWithTools(ctx context.Context, messages []Message, defs []tools.Definition, temperature float64, maxTokens int) (*Response, error) {
	toolDefs := make([]agentllm.ToolDef, 0, len(defs))
	for _, d := range defs {
		toolDefs = append(toolDefs, agentllm.ToolDef{
			Name:        d.Name,
			Description: d.Description,
			Parameters:  d.Parameters,
		})
	}
	return a.chat(ctx, messages, toolDefs)
}

func (a *Adapter) chat(ctx context.Context, messages []Message, defs []agentllm.ToolDef) (*Response, error) {
	req := agentllm.ChatRequest{Messages: toProviderMessages(messages)}
	if len(defs) > 0 {
		req.Tools = defs
	}
	resp, err := a.provider.Chat(ctx, req)
	if err != nil {
		return nil, &ProviderError{Provider: a.name, Err: err}
	}

	out := &Response{
		Content:      resp.Content,
		Model:        resp.Model,
		FinishReason: resp.StopReason,
		Usage: Usage{
			InputTokens:  resp.InputTokens,
			OutputTokens: resp.OutputTokens,
		},
	}
	if out.Model == "" {
		out.Model = a.model
	}
	for _, tc := range resp.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, tools.Call{ID: tc.ID, Name: tc.Name, Args: tc.Args})
	}
	if out.Usage.InputTokens == 0 && out.Usage.OutputTokens == 0 {
		out.Usage = EstimateUsage(messages, out.Content)
	}
	return out, nil
}

func toProviderMessages(messages []Message) []agentllm.Message {
	out := make([]agentllm.Message, 0, len(messages))
	for _, m := range messages {
		pm := agentllm.Message{
			Role:       string(m.Role),
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			pm.ToolCalls = append(pm.ToolCalls, agentllm.ToolCallResponse{ID: tc.ID, Name: tc.Name, Args: tc.Args})
		}
		out = append(out, pm)
	}
	return out
}

// EstimateUsage approximates token counts at four characters per token for
// providers that report no usage.
func EstimateUsage(messages []Message, reply string) Usage {
	chars := 0
	for _, m := range messages {
		chars += len([]rune(m.Content))
	}
	return Usage{
		InputTokens:  estimateTokens(chars),
		OutputTokens: estimateTokens(len([]rune(reply))),
		Estimated:    true,
	}
}

func estimateTokens(chars int) int {
	if chars == 0 {
		return 0
	}
	return (chars + 3) / 4
}
