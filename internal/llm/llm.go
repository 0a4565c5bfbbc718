// Package llm defines the chat capability agents consume and adapts the
// agentkit provider clients to it.
package llm

import (
	"context"

	"github.com/vinayprograms/conclave/internal/tools"
)

// Role tags a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one entry of a conversation. Assistant messages may carry tool
// calls; tool messages carry the id of the call they answer.
type Message struct {
	Role       Role         `json:"role"`
	Content    string       `json:"content"`
	ToolCalls  []tools.Call `json:"tool_calls,omitempty"`
	ToolCallID string       `json:"tool_call_id,omitempty"`
}

// Usage is the token accounting for one provider call.
type Usage struct {
	InputTokens  int  `json:"input_tokens"`
	OutputTokens int  `json:"output_tokens"`
	Estimated    bool `json:"estimated"`
}

// Total returns input plus output tokens.
func (u Usage) Total() int {
	return u.InputTokens + u.OutputTokens
}

// Response is a provider reply.
type Response struct {
	Content      string       `json:"content"`
	Usage        Usage        `json:"usage"`
	Model        string       `json:"model"`
	FinishReason string       `json:"finish_reason,omitempty"`
	ToolCalls    []tools.Call `json:"tool_calls,omitempty"`
}

// Capability is the provider contract an agent owns exclusively.
type Capability interface {
	Chat(ctx context.Context, messages []Message, temperature float64, maxTokens int) (*Response, error)
	ChatWithTools(ctx context.Context, messages []Message, defs []tools.Definition, temperature float64, maxTokens int) (*Response, error)
	Name() string
	Model() string
}

// ProviderError wraps a failed provider call.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return "llm provider " + e.Provider + ": " + e.Err.Error()
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}
