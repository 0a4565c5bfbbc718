package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	agentllm "github.com/vinayprograms/agentkit/llm"

	"github.com/vinayprograms/conclave/internal/collab"
	"github.com/vinayprograms/conclave/internal/llm"
	"github.com/vinayprograms/conclave/internal/tools"
)

// stubToolbox records calls and answers every one successfully.
type stubToolbox struct {
	calls []tools.Call
}

func (s *stubToolbox) Definitions() []tools.Definition {
	return []tools.Definition{{Name: "list_files", Parameters: map[string]interface{}{"type": "object"}}}
}

func (s *stubToolbox) Execute(ctx context.Context, call tools.Call) tools.Result {
	s.calls = append(s.calls, call)
	return tools.Result{ToolCallID: call.ID, Name: call.Name, OK: true, Output: []string{"a.txt"}}
}

func newAgent(mock *agentllm.MockProvider, iterations int) *Instance {
	return New(Config{
		ID:                "agent-1",
		Name:              "Analyst",
		SystemPrompt:      "You are an analyst.",
		MaxToolIterations: iterations,
	}, llm.NewAdapter(mock, "mock-model"))
}

func TestGenerateOpinion_PlainReply(t *testing.T) {
	mock := agentllm.NewMockProvider()
	mock.ChatFunc = func(ctx context.Context, req agentllm.ChatRequest) (*agentllm.ChatResponse, error) {
		return &agentllm.ChatResponse{Content: "  Costs will rise.  ", InputTokens: 40, OutputTokens: 8}, nil
	}
	a := newAgent(mock, 0)

	out, err := a.GenerateOpinion(context.Background(), Turn{Topic: "Pricing", Phase: PhaseInitial})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if out.Content != "Costs will rise." {
		t.Errorf("content = %q", out.Content)
	}
	if !out.WantsToContinue {
		t.Error("expected wants_to_continue")
	}
	if out.Usage.InputTokens != 40 || out.Usage.OutputTokens != 8 {
		t.Errorf("usage = %+v", out.Usage)
	}

	req := mock.LastRequest()
	if len(req.Messages) != 3 {
		t.Fatalf("expected persona, context, instruction; got %d messages", len(req.Messages))
	}
	if req.Messages[0].Role != "system" || req.Messages[0].Content != "You are an analyst." {
		t.Errorf("persona message = %+v", req.Messages[0])
	}
	if !strings.Contains(req.Messages[1].Content, "## Current topic\nPricing") {
		t.Errorf("context = %q", req.Messages[1].Content)
	}
	if !strings.Contains(req.Messages[2].Content, "Give your professional view") {
		t.Errorf("initial instruction missing: %q", req.Messages[2].Content)
	}
	if len(req.Tools) != 0 {
		t.Error("no tools should be sent without a toolbox")
	}
}

func TestGenerateOpinion_ContextSections(t *testing.T) {
	mock := agentllm.NewMockProvider()
	n := 0
	mock.ChatFunc = func(ctx context.Context, req agentllm.ChatRequest) (*agentllm.ChatResponse, error) {
		n++
		return &agentllm.ChatResponse{Content: fmt.Sprintf("view %d", n)}, nil
	}
	a := newAgent(mock, 0)
	ctx := context.Background()
	for i := 0; i < 4; i++ {
		if _, err := a.GenerateOpinion(ctx, Turn{Topic: "T", Phase: PhaseInitial}); err != nil {
			t.Fatal(err)
		}
	}

	_, err := a.GenerateOpinion(ctx, Turn{
		Topic:   "T",
		Summary: "so far so good",
		Peers:   []collab.PeerOpinion{{AgentName: "Critic", Content: "I disagree"}},
		Phase:   "response",
	})
	if err != nil {
		t.Fatal(err)
	}
	req := mock.LastRequest()
	ctxMsg := req.Messages[1].Content
	for _, want := range []string{"## Discussion summary\nso far so good", "- **Critic**: I disagree", "## Your previous views\n- view 2\n- view 3\n- view 4"} {
		if !strings.Contains(ctxMsg, want) {
			t.Errorf("context missing %q:\n%s", want, ctxMsg)
		}
	}
	if strings.Contains(ctxMsg, "- view 1") {
		t.Error("only the last 3 previous views should be replayed")
	}
	if !strings.Contains(req.Messages[2].Content, "Respond to the other experts") {
		t.Errorf("responding instruction missing: %q", req.Messages[2].Content)
	}
	if len(a.History()) != 5 {
		t.Errorf("history length = %d", len(a.History()))
	}
}

func TestGenerateOpinion_ToolLoop(t *testing.T) {
	mock := agentllm.NewMockProvider()
	calls := 0
	mock.ChatFunc = func(ctx context.Context, req agentllm.ChatRequest) (*agentllm.ChatResponse, error) {
		calls++
		if calls == 1 {
			return &agentllm.ChatResponse{
				InputTokens:  10,
				OutputTokens: 2,
				ToolCalls: []agentllm.ToolCallResponse{
					{ID: "c1", Name: "list_files", Args: map[string]interface{}{}},
					{ID: "c2", Name: "list_files", Args: map[string]interface{}{"path": "docs"}},
				},
			}, nil
		}
		return &agentllm.ChatResponse{Content: "The workspace has a.txt.", InputTokens: 30, OutputTokens: 6}, nil
	}
	tb := &stubToolbox{}
	a := newAgent(mock, 5)

	out, err := a.GenerateOpinionWithTools(context.Background(), Turn{Topic: "T", Phase: PhaseInitial}, tb)
	if err != nil {
		t.Fatal(err)
	}
	if calls != 2 {
		t.Errorf("expected 2 provider calls, got %d", calls)
	}
	if len(tb.calls) != 2 || tb.calls[0].ID != "c1" || tb.calls[1].ID != "c2" {
		t.Errorf("tool calls out of order: %+v", tb.calls)
	}
	if len(out.Traces) != 2 || out.Traces[1].Result.ToolCallID != "c2" {
		t.Errorf("traces = %+v", out.Traces)
	}
	if out.Usage.InputTokens != 40 || out.Usage.OutputTokens != 8 {
		t.Errorf("usage not accumulated: %+v", out.Usage)
	}

	req := mock.LastRequest()
	if req.Messages[1].Role != "system" || !strings.Contains(req.Messages[1].Content, "call tools") {
		t.Errorf("tool note should be the second message: %+v", req.Messages[1])
	}
	// persona, note, context, instruction, assistant(calls), tool, tool
	if len(req.Messages) != 7 {
		t.Fatalf("expected 7 messages, got %d", len(req.Messages))
	}
	if req.Messages[4].Role != "assistant" || len(req.Messages[4].ToolCalls) != 2 {
		t.Errorf("assistant message = %+v", req.Messages[4])
	}
	if req.Messages[5].Role != "tool" || req.Messages[5].ToolCallID != "c1" || !strings.Contains(req.Messages[5].Content, `"ok":true`) {
		t.Errorf("tool message = %+v", req.Messages[5])
	}
	if len(req.Tools) != 1 {
		t.Errorf("tool defs = %d", len(req.Tools))
	}
}

// An always-tool-calling provider gets exactly max_tool_iterations calls and
// the last reply text becomes the opinion.
func TestGenerateOpinion_IterationBudget(t *testing.T) {
	mock := agentllm.NewMockProvider()
	calls := 0
	mock.ChatFunc = func(ctx context.Context, req agentllm.ChatRequest) (*agentllm.ChatResponse, error) {
		calls++
		return &agentllm.ChatResponse{
			Content: fmt.Sprintf("still looking %d", calls),
			ToolCalls: []agentllm.ToolCallResponse{
				{ID: fmt.Sprintf("c%d", calls), Name: "list_files", Args: map[string]interface{}{}},
			},
		}, nil
	}
	a := newAgent(mock, 3)

	out, err := a.GenerateOpinionWithTools(context.Background(), Turn{Topic: "T", Phase: PhaseInitial}, &stubToolbox{})
	if err != nil {
		t.Fatal(err)
	}
	if calls != 3 {
		t.Errorf("expected exactly 3 provider calls, got %d", calls)
	}
	if out.Content != "still looking 3" {
		t.Errorf("content = %q", out.Content)
	}
	if len(out.Traces) != 3 {
		t.Errorf("traces = %d", len(out.Traces))
	}
}

func TestGenerateOpinion_ToolCallsIgnoredWithoutToolbox(t *testing.T) {
	mock := agentllm.NewMockProvider()
	calls := 0
	mock.ChatFunc = func(ctx context.Context, req agentllm.ChatRequest) (*agentllm.ChatResponse, error) {
		calls++
		return &agentllm.ChatResponse{
			Content:   "answer",
			ToolCalls: []agentllm.ToolCallResponse{{ID: "c1", Name: "list_files"}},
		}, nil
	}
	a := newAgent(mock, 5)

	out, err := a.GenerateOpinion(context.Background(), Turn{Topic: "T", Phase: PhaseInitial})
	if err != nil {
		t.Fatal(err)
	}
	if calls != 1 || out.Content != "answer" {
		t.Errorf("calls=%d content=%q", calls, out.Content)
	}
}

func TestGenerateOpinion_ProviderErrorLeavesNoHistory(t *testing.T) {
	mock := agentllm.NewMockProvider()
	mock.ChatFunc = func(ctx context.Context, req agentllm.ChatRequest) (*agentllm.ChatResponse, error) {
		return nil, errors.New("upstream 500")
	}
	a := newAgent(mock, 0)

	if _, err := a.GenerateOpinion(context.Background(), Turn{Topic: "T", Phase: PhaseInitial}); err == nil {
		t.Fatal("expected error")
	}
	if len(a.History()) != 0 {
		t.Error("failed turn must not be recorded")
	}
}

func TestNew_ClampsIterations(t *testing.T) {
	mock := agentllm.NewMockProvider()
	capability := llm.NewAdapter(mock, "m")
	if got := New(Config{MaxToolIterations: 500}, capability).Config().MaxToolIterations; got != 50 {
		t.Errorf("upper clamp = %d", got)
	}
	if got := New(Config{MaxToolIterations: -3}, capability).Config().MaxToolIterations; got != 1 {
		t.Errorf("lower clamp = %d", got)
	}
	cfg := New(Config{}, capability).Config()
	if cfg.MaxToolIterations != 10 || cfg.MaxTokens != 2048 || cfg.Temperature != 0.7 {
		t.Errorf("defaults = %+v", cfg)
	}
}

func TestWantsToContinue(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"Here is a new angle on the cost model.", true},
		{"I agree with the Critic, nothing to add.", false},
		{"NOTHING FURTHER from me.", false},
		{"我同意上述观点", false},
		{"就这些。", false},
	}
	for _, tt := range tests {
		if got := WantsToContinue(tt.text); got != tt.want {
			t.Errorf("WantsToContinue(%q) = %v", tt.text, got)
		}
	}
}

func TestWithClassifier(t *testing.T) {
	mock := agentllm.NewMockProvider()
	mock.ChatFunc = func(ctx context.Context, req agentllm.ChatRequest) (*agentllm.ChatResponse, error) {
		return &agentllm.ChatResponse{Content: "I agree"}, nil
	}
	a := New(Config{Name: "x"}, llm.NewAdapter(mock, "m"), WithClassifier(func(string) bool { return true }))
	out, err := a.GenerateOpinion(context.Background(), Turn{Topic: "T", Phase: PhaseInitial})
	if err != nil {
		t.Fatal(err)
	}
	if !out.WantsToContinue {
		t.Error("custom classifier not used")
	}
}
