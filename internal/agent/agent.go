// Package agent implements one collaborating persona: its opinion history and
// the bounded tool-use conversation loop it runs each turn.
package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/vinayprograms/agentkit/logging"
	"github.com/vinayprograms/agentkit/telemetry"
	"go.opentelemetry.io/otel/attribute"

	"github.com/vinayprograms/conclave/internal/collab"
	"github.com/vinayprograms/conclave/internal/llm"
	"github.com/vinayprograms/conclave/internal/tools"
)

// Defaults applied by New.
const (
	DefaultTemperature       = 0.7
	DefaultMaxTokens         = 2048
	DefaultMaxToolIterations = 10
	MaxToolIterationsCeiling = 50
	historyWindow            = 3
)

// PhaseInitial marks an opening turn; any other phase gets the responding
// instruction.
const PhaseInitial = "initial"

// Config describes one persona.
type Config struct {
	ID                string
	Name              string
	SystemPrompt      string
	Temperature       float64
	MaxTokens         int
	MaxToolIterations int
}

// Turn is everything an agent sees when asked for an opinion.
type Turn struct {
	Topic        string
	Summary      string
	Peers        []collab.PeerOpinion
	Phase        string
	RespondingTo string
}

// Toolbox runs tool calls for an agent.
type Toolbox interface {
	Definitions() []tools.Definition
	Execute(ctx context.Context, call tools.Call) tools.Result
}

// Output is the result of one turn.
type Output struct {
	Content         string
	WantsToContinue bool
	RespondingTo    string
	Usage           llm.Usage
	Model           string
	Traces          []tools.Trace
}

// ContinuationClassifier decides from a reply whether the agent wants the
// discussion to go on.
type ContinuationClassifier func(content string) bool

// Instance is rebuilt each round. It owns its capability exclusively, so
// an Instance must not be used from two goroutines at once.
type Instance struct {
	cfg        Config
	llm        llm.Capability
	history    []string
	classifier ContinuationClassifier
	logger     *logging.Logger
}

// Option customizes an Instance.
type Option func(*Instance)

// WithClassifier replaces the lexical continuation heuristic.
func WithClassifier(c ContinuationClassifier) Option {
	return func(a *Instance) {
		if c != nil {
			a.classifier = c
		}
	}
}

// WithHistory seeds the agent's own previous views.
func WithHistory(history []string) Option {
	return func(a *Instance) {
		a.history = append([]string(nil), history...)
	}
}

// New creates an instance. Zero temperature and token limits fall back to the
// defaults; tool iterations are clamped to [1, 50].
func New(cfg Config, capability llm.Capability, opts ...Option) *Instance {
	if cfg.Temperature == 0 {
		cfg.Temperature = DefaultTemperature
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.MaxToolIterations == 0 {
		cfg.MaxToolIterations = DefaultMaxToolIterations
	}
	if cfg.MaxToolIterations < 1 {
		cfg.MaxToolIterations = 1
	}
	if cfg.MaxToolIterations > MaxToolIterationsCeiling {
		cfg.MaxToolIterations = MaxToolIterationsCeiling
	}
	a := &Instance{
		cfg:        cfg,
		llm:        capability,
		classifier: WantsToContinue,
		logger:     logging.New().WithComponent("agent"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Instance) ID() string     { return a.cfg.ID }
func (a *Instance) Name() string   { return a.cfg.Name }
func (a *Instance) Config() Config { return a.cfg }

// History returns the agent's own previous replies, oldest first.
func (a *Instance) History() []string {
	return append([]string(nil), a.history...)
}

// GenerateOpinion runs a turn without tools.
func (a *Instance) GenerateOpinion(ctx context.Context, turn Turn) (*Output, error) {
	return a.GenerateOpinionWithTools(ctx, turn, nil)
}

// GenerateOpinionWithTools runs a turn, letting the model call tools from tb
// up to the configured iteration budget. Tool calls within one reply run
// sequentially in request order. A provider error aborts the turn and
// nothing is added to the agent's history.
func (a *Instance) GenerateOpinionWithTools(ctx context.Context, turn Turn, tb Toolbox) (*Output, error) {
	ctx, span := telemetry.GetTracer().StartSpan(ctx, "agent.turn")
	defer span.End()
	span.SetAttributes(
		attribute.String("agent.id", a.cfg.ID),
		attribute.String("agent.name", a.cfg.Name),
		attribute.String("agent.phase", turn.Phase),
	)

	var defs []tools.Definition
	if tb != nil {
		defs = tb.Definitions()
	}
	toolsEnabled := len(defs) > 0

	messages := a.buildMessages(turn, toolsEnabled)
	out := &Output{RespondingTo: turn.RespondingTo}

	var finalText, lastText string
	for i := 0; i < a.cfg.MaxToolIterations; i++ {
		var (
			resp *llm.Response
			err  error
		)
		if toolsEnabled {
			resp, err = a.llm.ChatWithTools(ctx, messages, defs, a.cfg.Temperature, a.cfg.MaxTokens)
		} else {
			resp, err = a.llm.Chat(ctx, messages, a.cfg.Temperature, a.cfg.MaxTokens)
		}
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("agent %s: %w", a.cfg.Name, err)
		}

		out.Usage.InputTokens = collab.SaturatingAdd(out.Usage.InputTokens, resp.Usage.InputTokens)
		out.Usage.OutputTokens = collab.SaturatingAdd(out.Usage.OutputTokens, resp.Usage.OutputTokens)
		out.Usage.Estimated = out.Usage.Estimated || resp.Usage.Estimated
		if resp.Model != "" {
			out.Model = resp.Model
		}
		lastText = resp.Content

		if len(resp.ToolCalls) == 0 || !toolsEnabled {
			finalText = resp.Content
			break
		}

		messages = append(messages, llm.Message{
			Role:      llm.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})
		for _, call := range resp.ToolCalls {
			result := tb.Execute(ctx, call)
			out.Traces = append(out.Traces, tools.Trace{Call: call, Result: result})
			messages = append(messages, llm.Message{
				Role:       llm.RoleTool,
				Content:    result.Message(),
				ToolCallID: call.ID,
			})
		}
	}

	if strings.TrimSpace(finalText) == "" {
		// Iteration budget exhausted (or an empty final reply).
		finalText = lastText
	}
	out.Content = strings.TrimSpace(finalText)
	out.WantsToContinue = a.classifier(out.Content)
	a.history = append(a.history, out.Content)

	span.SetAttributes(
		attribute.Int("agent.input_tokens", out.Usage.InputTokens),
		attribute.Int("agent.output_tokens", out.Usage.OutputTokens),
		attribute.Int("agent.tool_calls", len(out.Traces)),
	)
	if telemetry.GetTracer().Debug() {
		span.SetAttributes(attribute.String("agent.output", truncate(out.Content, 2000)))
	}
	a.logger.Debug("turn complete", map[string]interface{}{
		"agent":      a.cfg.Name,
		"phase":      turn.Phase,
		"tool_calls": len(out.Traces),
		"tokens":     out.Usage.Total(),
	})
	return out, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return collab.Clip(s, n) + "..."
}
