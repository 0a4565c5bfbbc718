package execution

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/vinayprograms/conclave/internal/config"
	"github.com/vinayprograms/conclave/internal/eventbus"
	"github.com/vinayprograms/conclave/internal/orchestration"
	"github.com/vinayprograms/conclave/internal/session"
	"github.com/vinayprograms/conclave/internal/store"
)

func newResolver(t *testing.T) (*Resolver, *store.SQLite) {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "c.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })

	cfg := config.New()
	cfg.LLM = config.LLMConfig{Provider: "anthropic", Model: "claude-sonnet-4-5", MaxTokens: 2048}
	cfg.Profiles = map[string]config.Profile{"cheap": {Provider: "openai", Model: "gpt-4o-mini"}}
	cfg.Pricing = map[string]config.ModelPrice{"gpt-4o-mini": {InputPer1M: 0.15, OutputPer1M: 0.6}}

	err = s.PutModelConfig(context.Background(), &store.ModelConfig{
		ID: "local", Provider: "ollama", Model: "llama3", BaseURL: "http://localhost:11434", InputPricePerMTok: 0.01,
	})
	if err != nil {
		t.Fatal(err)
	}
	return &Resolver{Config: cfg, Store: s, Keys: func(p string) string { return "key-" + p }}, s
}

func TestResolver_Order(t *testing.T) {
	r, _ := newResolver(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		agent    store.Agent
		sel      *store.LLMSelection
		provider string
		model    string
	}{
		{"default", store.Agent{}, nil, "anthropic", "claude-sonnet-4-5"},
		{"stored model config", store.Agent{ModelID: "local"}, nil, "ollama", "llama3"},
		{"profile", store.Agent{ModelID: "cheap"}, nil, "openai", "gpt-4o-mini"},
		{"literal", store.Agent{ModelID: "gpt-4o"}, nil, "", "gpt-4o"},
		{"execution profile", store.Agent{}, &store.LLMSelection{Profile: "cheap"}, "openai", "gpt-4o-mini"},
		{"execution model", store.Agent{}, &store.LLMSelection{Provider: "groq", Model: "llama-3.1"}, "groq", "llama-3.1"},
		{"agent beats execution", store.Agent{ModelID: "local"}, &store.LLMSelection{Profile: "cheap"}, "ollama", "llama3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := r.Resolve(ctx, tt.agent, tt.sel)
			if err != nil {
				t.Fatal(err)
			}
			if cfg.Provider != tt.provider || cfg.Model != tt.model {
				t.Errorf("got %s/%s, want %s/%s", cfg.Provider, cfg.Model, tt.provider, tt.model)
			}
			if cfg.APIKey == "" {
				t.Error("api key not resolved")
			}
		})
	}
}

func TestResolver_AgentMaxTokens(t *testing.T) {
	r, _ := newResolver(t)
	cfg, err := r.Resolve(context.Background(), store.Agent{MaxTokens: 512}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.MaxTokens != 512 {
		t.Errorf("max tokens = %d", cfg.MaxTokens)
	}
}

func TestResolver_Errors(t *testing.T) {
	r, _ := newResolver(t)
	ctx := context.Background()
	if _, err := r.Resolve(ctx, store.Agent{}, &store.LLMSelection{Profile: "missing"}); !IsConfigurationError(err) {
		t.Errorf("unknown profile: %v", err)
	}
	r.Config.LLM.Model = ""
	if _, err := r.Resolve(ctx, store.Agent{}, nil); !IsConfigurationError(err) {
		t.Errorf("no model: %v", err)
	}
}

func TestResolver_Price(t *testing.T) {
	r, _ := newResolver(t)
	ctx := context.Background()
	if p, ok := r.Price(ctx, "llama3"); !ok || p.InputPer1M != 0.01 {
		t.Errorf("stored price = %+v %v", p, ok)
	}
	if p, ok := r.Price(ctx, "gpt-4o-mini"); !ok || p.OutputPer1M != 0.6 {
		t.Errorf("configured price = %+v %v", p, ok)
	}
	if _, ok := r.Price(ctx, "unpriced"); ok {
		t.Error("unknown model should have no price")
	}
	if got := cost(config.ModelPrice{InputPer1M: 3, OutputPer1M: 15}, 1000000, 100000); got != 4.5 {
		t.Errorf("cost = %v", got)
	}
}

func TestSink_ContinuesSequences(t *testing.T) {
	_, s := newResolver(t)
	ctx := context.Background()
	exec := &store.Execution{TeamID: "t", Status: store.StatusRunning}
	if err := s.PutExecution(ctx, exec); err != nil {
		t.Fatal(err)
	}
	transcripts, err := session.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	var seen []eventbus.Envelope
	newSink := func(tr *session.Session) *Sink {
		sink, err := NewSink(ctx, SinkConfig{
			ExecutionID: exec.ID,
			Store:       s,
			Transcript:  tr,
			Transcripts: transcripts,
			Listener:    func(env eventbus.Envelope) { seen = append(seen, env) },
		})
		if err != nil {
			t.Fatal(err)
		}
		return sink
	}

	sink := newSink(nil)
	if err := sink.UserMessage("topic", 1, ""); err != nil {
		t.Fatal(err)
	}
	data := map[string]interface{}{
		"agent_name": "Ada", "content": "view", "round": 1, "phase": "initial",
		"wants_to_continue": true, "input_tokens": 3, "output_tokens": 4,
		"metadata": map[string]interface{}{"model": "m", "tokens_estimated": true},
	}
	if err := sink.Emit(orchestration.EventOpinion, data, "a1"); err != nil {
		t.Fatal(err)
	}
	if data["message_sequence"] != 2 || data["message_id"] == "" {
		t.Errorf("opinion data = %+v", data)
	}

	// A second sink over the saved transcript picks up where the first stopped.
	tr, err := transcripts.Load(exec.ID)
	if err != nil {
		t.Fatal(err)
	}
	again := newSink(tr)
	if err := again.Emit(orchestration.EventStatus, map[string]interface{}{"message": "hi"}, ""); err != nil {
		t.Fatal(err)
	}
	if len(seen) != 3 || seen[2].Sequence != 3 {
		t.Fatalf("sequences = %+v", seen)
	}

	msgs, _ := s.ListMessages(ctx, exec.ID)
	if len(msgs) != 2 {
		t.Fatalf("messages = %d", len(msgs))
	}
	op := msgs[1]
	if op.SenderID != "a1" || op.SenderName != "Ada" || !op.TokensEstimated || op.InputTokens != 3 || !op.WantsToContinue {
		t.Errorf("opinion message = %+v", op)
	}

	evts := tr.EventsOfType(session.EventOpinion)
	if len(evts) != 1 || evts[0].Meta == nil || evts[0].Meta.Model != "m" || evts[0].Meta.MessageSeq != 2 {
		t.Errorf("transcript opinion = %+v", evts)
	}
}
