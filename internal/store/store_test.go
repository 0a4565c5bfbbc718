package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func openTemp(t *testing.T) *SQLite {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "data", "conclave.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAgents_CRUD(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()

	empty, err := s.IsEmpty(ctx)
	if err != nil || !empty {
		t.Fatalf("fresh store empty=%v err=%v", empty, err)
	}

	a := &Agent{Name: "Economist", SystemPrompt: "You study markets.", Temperature: 0.4, MaxTokens: 1024}
	if err := s.PutAgent(ctx, a); err != nil {
		t.Fatal(err)
	}
	if a.ID == "" || a.CreatedAt.IsZero() {
		t.Fatalf("id/timestamps not assigned: %+v", a)
	}
	created := a.CreatedAt

	got, err := s.GetAgent(ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "Economist" || got.Temperature != 0.4 {
		t.Errorf("got %+v", got)
	}

	got.Name = "Macro Economist"
	if err := s.PutAgent(ctx, got); err != nil {
		t.Fatal(err)
	}
	if !got.CreatedAt.Equal(created) {
		t.Error("update must keep created_at")
	}
	list, err := s.ListAgents(ctx)
	if err != nil || len(list) != 1 || list[0].Name != "Macro Economist" {
		t.Fatalf("list = %+v, %v", list, err)
	}

	if err := s.DeleteAgent(ctx, a.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetAgent(ctx, a.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestTeams_MemberIDs(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()

	team := &Team{Name: "Panel", CollaborationMode: "debate", Members: []TeamMember{
		{AgentID: "a", Position: 1, IsActive: true},
		{AgentID: "b", Position: 0, IsActive: false},
	}}
	if err := s.PutTeam(ctx, team); err != nil {
		t.Fatal(err)
	}
	got, err := s.GetTeam(ctx, team.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Members) != 2 || got.Members[0].ID == "" || got.Members[1].IsActive {
		t.Errorf("members = %+v", got.Members)
	}
}

func TestModelConfigs(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	m := &ModelConfig{ID: "fast", Provider: "openai", Model: "gpt-4o-mini", InputPricePerMTok: 0.15}
	if err := s.PutModelConfig(ctx, m); err != nil {
		t.Fatal(err)
	}
	got, err := s.GetModelConfig(ctx, "fast")
	if err != nil || got.Model != "gpt-4o-mini" {
		t.Fatalf("got %+v, %v", got, err)
	}
	all, err := s.ListModelConfigs(ctx)
	if err != nil || len(all) != 1 {
		t.Errorf("list = %d, %v", len(all), err)
	}
}

func TestMessages_SequenceAndDelete(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()

	exec := &Execution{TeamID: "t", Status: StatusPending, SharedState: []byte(`{"round":2}`)}
	if err := s.PutExecution(ctx, exec); err != nil {
		t.Fatal(err)
	}

	next, err := s.NextSequence(ctx, exec.ID)
	if err != nil || next != 1 {
		t.Fatalf("first sequence = %d, %v", next, err)
	}

	for _, seq := range []int{2, 1, 3} {
		if err := s.PutMessage(ctx, &Message{ExecutionID: exec.ID, Sequence: seq, Content: "m"}); err != nil {
			t.Fatal(err)
		}
	}
	next, err = s.NextSequence(ctx, exec.ID)
	if err != nil || next != 4 {
		t.Errorf("next sequence = %d, %v", next, err)
	}

	msgs, err := s.ListMessages(ctx, exec.ID)
	if err != nil {
		t.Fatal(err)
	}
	for i, m := range msgs {
		if m.Sequence != i+1 {
			t.Errorf("message %d has sequence %d", i, m.Sequence)
		}
	}

	got, err := s.GetExecution(ctx, exec.ID)
	if err != nil {
		t.Fatal(err)
	}
	if string(got.SharedState) != `{"round":2}` {
		t.Errorf("shared state = %s", got.SharedState)
	}

	if err := s.DeleteExecution(ctx, exec.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetExecution(ctx, exec.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("execution should be gone: %v", err)
	}
	if msgs, _ := s.ListMessages(ctx, exec.ID); len(msgs) != 0 {
		t.Errorf("messages should be gone, got %d", len(msgs))
	}
}

func TestPutMessage_RequiresExecution(t *testing.T) {
	s := openTemp(t)
	if err := s.PutMessage(context.Background(), &Message{Content: "orphan"}); err == nil {
		t.Error("expected error for message without execution id")
	}
}

func TestEventSequence(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	exec := &Execution{TeamID: "t", Status: StatusPending}
	if err := s.PutExecution(ctx, exec); err != nil {
		t.Fatal(err)
	}

	if seq, err := s.EventSequence(ctx, exec.ID); err != nil || seq != 0 {
		t.Fatalf("fresh sequence = %d, %v", seq, err)
	}
	for _, seq := range []uint64{3, 7, 5} {
		if err := s.SetEventSequence(ctx, exec.ID, seq); err != nil {
			t.Fatal(err)
		}
	}
	if seq, _ := s.EventSequence(ctx, exec.ID); seq != 7 {
		t.Errorf("sequence = %d, want 7 (never lowered)", seq)
	}

	// Saving the execution record leaves the sequence alone.
	exec.Status = StatusRunning
	if err := s.PutExecution(ctx, exec); err != nil {
		t.Fatal(err)
	}
	if seq, _ := s.EventSequence(ctx, exec.ID); seq != 7 {
		t.Errorf("sequence after put = %d", seq)
	}

	if err := s.DeleteExecution(ctx, exec.ID); err != nil {
		t.Fatal(err)
	}
	if seq, _ := s.EventSequence(ctx, exec.ID); seq != 0 {
		t.Errorf("sequence after delete = %d", seq)
	}
}
