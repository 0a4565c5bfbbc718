package execution

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	agentllm "github.com/vinayprograms/agentkit/llm"

	"github.com/vinayprograms/conclave/internal/checkpoint"
	"github.com/vinayprograms/conclave/internal/config"
	"github.com/vinayprograms/conclave/internal/eventbus"
	"github.com/vinayprograms/conclave/internal/llm"
	"github.com/vinayprograms/conclave/internal/orchestration"
	"github.com/vinayprograms/conclave/internal/session"
	"github.com/vinayprograms/conclave/internal/store"
)

type fixture struct {
	driver      *Driver
	store       *store.SQLite
	cfg         *config.Config
	team        *store.Team
	agents      []store.Agent
	transcripts *session.FileStore
	checkpoints *checkpoint.Store

	mu     sync.Mutex
	events []eventbus.Envelope
	calls  int
	models []string
}

// newFixture stores a team of the named agents and a driver whose
// providers answer "reply <n>" with 20 input and 5 output tokens.
func newFixture(t *testing.T, mode string, names ...string) *fixture {
	t.Helper()
	dir := t.TempDir()
	ctx := context.Background()

	s, err := store.Open(filepath.Join(dir, "conclave.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })

	f := &fixture{store: s, cfg: config.New()}
	f.cfg.LLM.Model = "mock-model"
	f.cfg.Tools.Enabled = false

	team := &store.Team{Name: "panel", CollaborationMode: mode}
	for i, name := range names {
		a := store.Agent{Name: name, SystemPrompt: "You are " + name}
		if err := s.PutAgent(ctx, &a); err != nil {
			t.Fatal(err)
		}
		f.agents = append(f.agents, a)
		team.Members = append(team.Members, store.TeamMember{AgentID: a.ID, Position: i, IsActive: true})
	}
	if err := s.PutTeam(ctx, team); err != nil {
		t.Fatal(err)
	}
	f.team = team

	if f.transcripts, err = session.NewFileStore(filepath.Join(dir, "transcripts")); err != nil {
		t.Fatal(err)
	}
	if f.checkpoints, err = checkpoint.NewStore(filepath.Join(dir, "checkpoints")); err != nil {
		t.Fatal(err)
	}

	resolver := &Resolver{Config: f.cfg, Store: s, Build: f.build}
	f.driver, err = NewDriver(Options{
		Config:      f.cfg,
		Store:       s,
		Models:      resolver,
		Transcripts: f.transcripts,
		Checkpoints: f.checkpoints,
		Listener: func(env eventbus.Envelope) {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.events = append(f.events, env)
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	return f
}

func (f *fixture) build(cfg llm.Config) (llm.Capability, error) {
	f.mu.Lock()
	f.models = append(f.models, cfg.Model)
	f.mu.Unlock()

	mock := agentllm.NewMockProvider()
	mock.ChatFunc = func(ctx context.Context, req agentllm.ChatRequest) (*agentllm.ChatResponse, error) {
		f.mu.Lock()
		f.calls++
		n := f.calls
		f.mu.Unlock()
		return &agentllm.ChatResponse{Content: fmt.Sprintf("reply %d", n), InputTokens: 20, OutputTokens: 5, Model: cfg.Model}, nil
	}
	return llm.NewAdapter(mock, cfg.Model), nil
}

func (f *fixture) ofType(eventType string) []eventbus.Envelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []eventbus.Envelope
	for _, e := range f.events {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

func (f *fixture) create(t *testing.T, input string) *store.Execution {
	t.Helper()
	exec, err := f.driver.Create(context.Background(), CreateRequest{TeamID: f.team.ID, Input: input, TokensBudget: 1000000})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return exec
}

func (f *fixture) get(t *testing.T, id string) *store.Execution {
	t.Helper()
	exec, err := f.store.GetExecution(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	return exec
}

func TestStart_Roundtable(t *testing.T) {
	f := newFixture(t, "roundtable", "Architect", "Reviewer")
	ctx := context.Background()
	exec := f.create(t, "Should we split the monolith?")

	if err := f.driver.Start(ctx, exec.ID); err != nil {
		t.Fatalf("start: %v", err)
	}

	got := f.get(t, exec.ID)
	if got.Status != store.StatusCompleted || got.CurrentRound != 1 {
		t.Errorf("status=%s round=%d", got.Status, got.CurrentRound)
	}
	if got.TokensUsed != 100 {
		t.Errorf("tokens used = %d, want 100", got.TokensUsed)
	}
	if got.StartedAt == nil || got.CompletedAt == nil || got.FinalOutput == "" {
		t.Errorf("execution = %+v", got)
	}

	msgs, err := f.store.ListMessages(ctx, exec.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 5 {
		t.Fatalf("messages = %d, want user + 4 opinions", len(msgs))
	}
	if msgs[0].SenderType != SenderUser || msgs[0].SenderName != "you" || msgs[0].Content != "Should we split the monolith?" {
		t.Errorf("first message = %+v", msgs[0])
	}
	for i, m := range msgs {
		if m.Sequence != i+1 {
			t.Errorf("message %d has sequence %d", i, m.Sequence)
		}
		if i > 0 && (m.SenderType != SenderAgent || m.SenderID == "") {
			t.Errorf("message %d = %+v", i, m)
		}
	}

	f.mu.Lock()
	events := append([]eventbus.Envelope(nil), f.events...)
	f.mu.Unlock()
	for i := 1; i < len(events); i++ {
		if events[i].Sequence <= events[i-1].Sequence {
			t.Fatalf("sequence not increasing at %d: %d after %d", i, events[i].Sequence, events[i-1].Sequence)
		}
	}
	if events[0].EventType != orchestration.EventStatus || events[0].Data["status"] != store.StatusRunning {
		t.Errorf("first event = %+v", events[0])
	}
	last := events[len(events)-1]
	if last.EventType != orchestration.EventStatus || last.Data["status"] != store.StatusCompleted {
		t.Errorf("last event = %+v", last)
	}
	if users := f.ofType(orchestration.EventUser); len(users) != 1 || users[0].Data["message_sequence"] != 1 {
		t.Errorf("user events = %+v", users)
	}
	for _, op := range f.ofType(orchestration.EventOpinion) {
		if op.Data["message_id"] == "" || op.ExecutionID != exec.ID {
			t.Errorf("opinion envelope = %+v", op)
		}
	}

	tr, err := f.transcripts.Load(exec.ID)
	if err != nil {
		t.Fatalf("transcript: %v", err)
	}
	if tr.Status != session.StatusCompleted || len(tr.Events) != len(events) || tr.TeamName != "panel" {
		t.Errorf("transcript status=%s events=%d team=%q", tr.Status, len(tr.Events), tr.TeamName)
	}

	cp, err := f.checkpoints.Latest(exec.ID)
	if err != nil {
		t.Fatalf("checkpoint: %v", err)
	}
	if cp.Round != 1 || len(cp.Outcomes) == 0 || cp.TokensUsed != 100 {
		t.Errorf("checkpoint = %+v", cp)
	}
}

func TestStart_OnlyFromPending(t *testing.T) {
	f := newFixture(t, "roundtable", "Solo")
	exec := f.create(t, "topic")
	ctx := context.Background()
	if err := f.driver.Start(ctx, exec.ID); err != nil {
		t.Fatal(err)
	}
	before := len(f.ofType(orchestration.EventOpinion))
	if err := f.driver.Start(ctx, exec.ID); err != nil {
		t.Fatal(err)
	}
	if after := len(f.ofType(orchestration.EventOpinion)); after != before {
		t.Errorf("restart ran another round: %d → %d opinions", before, after)
	}
}

func TestStart_EmptyInputAwaitsTopic(t *testing.T) {
	f := newFixture(t, "roundtable", "Solo")
	ctx := context.Background()
	exec := f.create(t, "   ")

	if err := f.driver.Start(ctx, exec.ID); err != nil {
		t.Fatal(err)
	}
	if got := f.get(t, exec.ID); got.Status != store.StatusPaused {
		t.Fatalf("status = %s, want paused", got.Status)
	}
	statuses := f.ofType(orchestration.EventStatus)
	if len(statuses) != 1 || statuses[0].Data["phase"] != PhaseAwaitingInput {
		t.Fatalf("status events = %+v", statuses)
	}
	if f.calls != 0 {
		t.Error("no provider call expected before a topic is given")
	}

	if err := f.driver.Followup(ctx, exec.ID, "the real topic", ""); err != nil {
		t.Fatalf("followup: %v", err)
	}
	got := f.get(t, exec.ID)
	if got.Status != store.StatusCompleted || got.CurrentRound != 1 {
		t.Errorf("status=%s round=%d", got.Status, got.CurrentRound)
	}
}

func TestFollowup_TargetAgentContinuesSequences(t *testing.T) {
	f := newFixture(t, "roundtable", "Architect", "Reviewer")
	ctx := context.Background()
	exec := f.create(t, "first topic")
	if err := f.driver.Start(ctx, exec.ID); err != nil {
		t.Fatal(err)
	}
	f.mu.Lock()
	lastSeq := f.events[len(f.events)-1].Sequence
	f.events = nil
	f.mu.Unlock()

	target := f.agents[1].ID
	if err := f.driver.Followup(ctx, exec.ID, "what about the database?", target); err != nil {
		t.Fatalf("followup: %v", err)
	}

	got := f.get(t, exec.ID)
	if got.CurrentRound != 2 {
		t.Errorf("round = %d, want 2", got.CurrentRound)
	}
	f.mu.Lock()
	first := f.events[0].Sequence
	f.mu.Unlock()
	if first <= lastSeq {
		t.Errorf("sequence restarted: %d after %d", first, lastSeq)
	}
	for _, op := range f.ofType(orchestration.EventOpinion) {
		if op.AgentID != target {
			t.Errorf("opinion from %s, only %s was addressed", op.AgentID, target)
		}
	}

	msgs, _ := f.store.ListMessages(ctx, exec.ID)
	user := msgs[5]
	if user.SenderType != SenderUser || user.TargetAgentID != target || user.Round != 2 || user.Sequence != 6 {
		t.Errorf("follow-up user message = %+v", user)
	}

	tr, err := f.transcripts.Load(exec.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(tr.EventsOfType(session.EventUser)) != 2 {
		t.Errorf("transcript should hold both rounds")
	}
}

func TestFollowup_SequenceSurvivesTranscriptLoss(t *testing.T) {
	tests := []struct {
		name   string
		damage func(t *testing.T, path string)
	}{
		{"deleted", func(t *testing.T, path string) {
			if err := os.Remove(path); err != nil {
				t.Fatal(err)
			}
		}},
		{"torn last line", func(t *testing.T, path string) {
			f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0644)
			if err != nil {
				t.Fatal(err)
			}
			defer f.Close()
			f.WriteString(`{"_type":"event","seq":99,"type":"opi`)
		}},
		{"garbage", func(t *testing.T, path string) {
			if err := os.WriteFile(path, []byte("not json\n{}\n"), 0644); err != nil {
				t.Fatal(err)
			}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, "roundtable", "Architect", "Reviewer")
			ctx := context.Background()
			exec := f.create(t, "first topic")
			if err := f.driver.Start(ctx, exec.ID); err != nil {
				t.Fatal(err)
			}
			tt.damage(t, f.transcripts.Path(exec.ID))

			if err := f.driver.Followup(ctx, exec.ID, "again", ""); err != nil {
				t.Fatalf("followup: %v", err)
			}
			f.mu.Lock()
			defer f.mu.Unlock()
			for i := 1; i < len(f.events); i++ {
				if f.events[i].Sequence <= f.events[i-1].Sequence {
					t.Fatalf("sequence %d follows %d at event %d", f.events[i].Sequence, f.events[i-1].Sequence, i)
				}
			}
			last, err := f.store.EventSequence(ctx, exec.ID)
			if err != nil {
				t.Fatal(err)
			}
			if want := f.events[len(f.events)-1].Sequence; last != want {
				t.Errorf("stored sequence = %d, want %d", last, want)
			}
		})
	}
}

func TestFollowup_InvalidState(t *testing.T) {
	f := newFixture(t, "roundtable", "Solo")
	exec := f.create(t, "topic")

	err := f.driver.Followup(context.Background(), exec.ID, "more", "")
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("err = %v, want ErrInvalidState", err)
	}
	if errs := f.ofType(orchestration.EventError); len(errs) != 1 {
		t.Errorf("error events = %d", len(errs))
	}
	if got := f.get(t, exec.ID); got.Status != store.StatusPending {
		t.Errorf("status changed to %s", got.Status)
	}
}

func TestStart_NoModelFailsExecution(t *testing.T) {
	f := newFixture(t, "roundtable", "Solo")
	f.cfg.LLM.Model = ""
	exec := f.create(t, "topic")

	err := f.driver.Start(context.Background(), exec.ID)
	if !IsConfigurationError(err) {
		t.Fatalf("err = %v, want configuration error", err)
	}
	got := f.get(t, exec.ID)
	if got.Status != store.StatusFailed || got.ErrorMessage == "" {
		t.Errorf("execution = %s %q", got.Status, got.ErrorMessage)
	}
	errs := f.ofType(orchestration.EventError)
	if len(errs) != 1 || errs[0].Data["message"] != err.Error() {
		t.Errorf("error events = %+v", errs)
	}
	if f.calls != 0 {
		t.Error("no agent should run")
	}
}

func TestStart_NoActiveAgents(t *testing.T) {
	f := newFixture(t, "roundtable", "Sleeper")
	ctx := context.Background()
	f.team.Members[0].IsActive = false
	if err := f.store.PutTeam(ctx, f.team); err != nil {
		t.Fatal(err)
	}
	exec := f.create(t, "topic")
	if err := f.driver.Start(ctx, exec.ID); !IsConfigurationError(err) {
		t.Fatalf("err = %v", err)
	}
}

func TestStart_UnknownMode(t *testing.T) {
	f := newFixture(t, "brawl", "Solo")
	exec := f.create(t, "topic")
	err := f.driver.Start(context.Background(), exec.ID)
	if !IsConfigurationError(err) || !errors.Is(err, orchestration.ErrUnknownMode) {
		t.Fatalf("err = %v", err)
	}
}

func TestStart_PipelineFollowsPositions(t *testing.T) {
	f := newFixture(t, "pipeline", "Drafter", "Editor")
	ctx := context.Background()
	// Swap positions: the editor now goes first.
	f.team.Members[0].Position, f.team.Members[1].Position = 1, 0
	if err := f.store.PutTeam(ctx, f.team); err != nil {
		t.Fatal(err)
	}
	exec := f.create(t, "write release notes")
	if err := f.driver.Start(ctx, exec.ID); err != nil {
		t.Fatal(err)
	}
	ops := f.ofType(orchestration.EventOpinion)
	if len(ops) != 2 || ops[0].Data["agent_name"] != "Editor" || ops[0].Data["phase"] != "stage_1" {
		t.Errorf("opinions = %+v", ops)
	}
}

func TestBudgetExceededIsReported(t *testing.T) {
	f := newFixture(t, "roundtable", "Spender")
	f.cfg.Pricing = map[string]config.ModelPrice{"mock-model": {InputPer1M: 1e6}}
	ctx := context.Background()
	exec, err := f.driver.Create(ctx, CreateRequest{TeamID: f.team.ID, Input: "topic", TokensBudget: 1000000, CostBudget: 1})
	if err != nil {
		t.Fatal(err)
	}
	if err := f.driver.Start(ctx, exec.ID); err != nil {
		t.Fatalf("budgets are advisory, start failed: %v", err)
	}

	var exceeded int
	for _, e := range f.ofType(orchestration.EventStatus) {
		if e.Data["phase"] == PhaseBudgetExceeded {
			exceeded++
			if e.Data["resource"] != "cost" {
				t.Errorf("alert = %+v", e.Data)
			}
		}
	}
	if exceeded != 1 {
		t.Errorf("budget_exceeded events = %d, want 1", exceeded)
	}
	got := f.get(t, exec.ID)
	if got.Cost < 20 || got.Status != store.StatusCompleted {
		t.Errorf("cost=%v status=%s", got.Cost, got.Status)
	}
}

func TestControl(t *testing.T) {
	f := newFixture(t, "roundtable", "Solo")
	ctx := context.Background()
	exec := f.create(t, "topic")

	if _, err := f.driver.Control(ctx, exec.ID, ActionPause, ControlParams{}); !errors.Is(err, ErrInvalidControl) {
		t.Errorf("pause on pending: %v", err)
	}

	exec.Status = store.StatusRunning
	if err := f.store.PutExecution(ctx, exec); err != nil {
		t.Fatal(err)
	}
	steps := []struct {
		action string
		want   string
		ok     bool
	}{
		{ActionResume, "", false},
		{ActionPause, store.StatusPaused, true},
		{ActionPause, "", false},
		{ActionResume, store.StatusRunning, true},
		{ActionStop, store.StatusCompleted, true},
		{ActionStop, "", false},
		{"rewind", "", false},
	}
	for _, step := range steps {
		got, err := f.driver.Control(ctx, exec.ID, step.action, ControlParams{})
		if step.ok {
			if err != nil || got.Status != step.want {
				t.Fatalf("%s: status=%v err=%v", step.action, got, err)
			}
			continue
		}
		if !errors.Is(err, ErrInvalidControl) {
			t.Errorf("%s should be rejected, got %v", step.action, err)
		}
	}
	if f.get(t, exec.ID).CompletedAt == nil {
		t.Error("stop should set completed_at")
	}

	got, err := f.driver.Control(ctx, exec.ID, ActionExtendBudget, ControlParams{})
	if err != nil {
		t.Fatal(err)
	}
	if got.TokensBudget != 1050000 || got.CostBudget != f.cfg.Budget.MaxCost+5 {
		t.Errorf("budgets = %d / %v", got.TokensBudget, got.CostBudget)
	}
	tokens, cost := 10, 0.5
	got, _ = f.driver.Control(ctx, exec.ID, ActionExtendBudget, ControlParams{Tokens: &tokens, Cost: &cost})
	if got.TokensBudget != 1050010 {
		t.Errorf("tokens budget = %d", got.TokensBudget)
	}
}

func TestList(t *testing.T) {
	f := newFixture(t, "roundtable", "Solo")
	ctx := context.Background()
	var ids []string
	for i := 0; i < 5; i++ {
		ids = append(ids, f.create(t, fmt.Sprintf("topic %d", i)).ID)
	}
	paused := f.get(t, ids[0])
	paused.Status = store.StatusPaused
	f.store.PutExecution(ctx, paused)

	page, err := f.driver.List(ctx, ListOptions{PageSize: 2, Page: 1})
	if err != nil {
		t.Fatal(err)
	}
	if page.Total != 5 || page.TotalPages != 3 || len(page.Items) != 2 {
		t.Errorf("page = %+v", page)
	}
	if page.Items[0].ID != ids[4] {
		t.Errorf("newest first: got %s", page.Items[0].ID)
	}

	page, _ = f.driver.List(ctx, ListOptions{Page: 9, PageSize: 500})
	if page.PageSize != 100 || len(page.Items) != 0 {
		t.Errorf("clamped page = %+v", page)
	}
	page, _ = f.driver.List(ctx, ListOptions{PageSize: -3})
	if page.PageSize != 1 {
		t.Errorf("page size = %d", page.PageSize)
	}
	page, _ = f.driver.List(ctx, ListOptions{Status: store.StatusPaused})
	if page.Total != 1 || page.Items[0].ID != ids[0] {
		t.Errorf("status filter = %+v", page)
	}
	page, _ = f.driver.List(ctx, ListOptions{TeamID: "other"})
	if page.Total != 0 || page.TotalPages != 0 {
		t.Errorf("team filter = %+v", page)
	}
}

func TestShow_LastFiftyMessages(t *testing.T) {
	f := newFixture(t, "roundtable", "Solo")
	ctx := context.Background()
	exec := f.create(t, "topic")
	for i := 1; i <= 60; i++ {
		if err := f.store.PutMessage(ctx, &store.Message{ExecutionID: exec.ID, Sequence: i, Content: "m"}); err != nil {
			t.Fatal(err)
		}
	}
	detail, err := f.driver.Show(ctx, exec.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(detail.Messages) != 50 || detail.Messages[0].Sequence != 11 || detail.Messages[49].Sequence != 60 {
		t.Errorf("messages %d, first %d", len(detail.Messages), detail.Messages[0].Sequence)
	}
	if _, err := f.driver.Show(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("err = %v", err)
	}
}

func TestDelete(t *testing.T) {
	f := newFixture(t, "roundtable", "Solo")
	ctx := context.Background()
	exec := f.create(t, "topic")
	if err := f.driver.Start(ctx, exec.ID); err != nil {
		t.Fatal(err)
	}
	if err := f.driver.Delete(ctx, exec.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := f.store.GetExecution(ctx, exec.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("execution still present: %v", err)
	}
	if msgs, _ := f.store.ListMessages(ctx, exec.ID); len(msgs) != 0 {
		t.Errorf("messages left: %d", len(msgs))
	}
	if _, err := os.Stat(f.transcripts.Path(exec.ID)); !os.IsNotExist(err) {
		t.Error("transcript left behind")
	}
	if _, err := f.checkpoints.Latest(exec.ID); err == nil {
		t.Error("checkpoints left behind")
	}
}

func TestCreate_UnknownTeam(t *testing.T) {
	f := newFixture(t, "roundtable", "Solo")
	_, err := f.driver.Create(context.Background(), CreateRequest{TeamID: "nope", Input: "x"})
	if !IsConfigurationError(err) {
		t.Errorf("err = %v", err)
	}
}

func TestCreate_Defaults(t *testing.T) {
	f := newFixture(t, "roundtable", "Solo")
	exec, err := f.driver.Create(context.Background(), CreateRequest{TeamID: f.team.ID, Input: "  a\n  short   topic "})
	if err != nil {
		t.Fatal(err)
	}
	if exec.Title != "a short topic" || exec.Status != store.StatusPending {
		t.Errorf("execution = %+v", exec)
	}
	if exec.TokensBudget != f.cfg.Budget.MaxTokens || exec.CostBudget != f.cfg.Budget.MaxCost {
		t.Errorf("budgets = %d / %v", exec.TokensBudget, exec.CostBudget)
	}
}

func TestStart_ToolsUseWorkspace(t *testing.T) {
	f := newFixture(t, "roundtable", "Reader")
	f.cfg.Tools.Enabled = true
	ws := t.TempDir()
	if err := os.WriteFile(filepath.Join(ws, "notes.txt"), []byte("hello"), 0644); err != nil {
		t.Fatal(err)
	}

	calls := 0
	f.driver.models = &Resolver{Config: f.cfg, Store: f.store, Build: func(cfg llm.Config) (llm.Capability, error) {
		mock := agentllm.NewMockProvider()
		mock.ChatFunc = func(ctx context.Context, req agentllm.ChatRequest) (*agentllm.ChatResponse, error) {
			calls++
			if calls == 1 {
				return &agentllm.ChatResponse{ToolCalls: []agentllm.ToolCallResponse{
					{ID: "c1", Name: "read_file", Args: map[string]interface{}{"path": "notes.txt"}},
				}}, nil
			}
			return &agentllm.ChatResponse{Content: "the notes say hello", InputTokens: 1, OutputTokens: 1}, nil
		}
		return llm.NewAdapter(mock, cfg.Model), nil
	}}
	f.cfg.Collaboration.ResponsePhase = false

	ctx := context.Background()
	exec, err := f.driver.Create(ctx, CreateRequest{TeamID: f.team.ID, Input: "summarize notes", Workspace: ws})
	if err != nil {
		t.Fatal(err)
	}
	if err := f.driver.Start(ctx, exec.ID); err != nil {
		t.Fatal(err)
	}
	results := f.ofType(orchestration.EventToolResult)
	if len(results) != 1 || results[0].Data["ok"] != true {
		t.Fatalf("tool results = %+v", results)
	}
}
