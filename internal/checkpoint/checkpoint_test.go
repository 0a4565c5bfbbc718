package checkpoint

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestNewStore(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "ckpt"))
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	if store == nil {
		t.Fatal("store is nil")
	}
}

func TestSaveAndGet(t *testing.T) {
	dir := t.TempDir()
	store, _ := NewStore(dir)

	cp := &Checkpoint{
		ExecutionID: "exec-1",
		Round:       2,
		Mode:        "roundtable",
		Status:      "completed",
		TokensUsed:  120,
		Outcomes: []AgentOutcome{
			{AgentID: "a", AgentName: "Economist", Phase: "initial", OK: true},
			{AgentID: "b", AgentName: "Engineer", Phase: "initial", Error: "provider down"},
		},
		State: []byte(`{"round":2}`),
	}
	if err := store.Save(cp); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "exec-1", "round-2.json")); err != nil {
		t.Errorf("checkpoint file not written: %v", err)
	}

	got, err := store.Get("exec-1", 2)
	if err != nil {
		t.Fatal(err)
	}
	if got.TokensUsed != 120 || len(got.Outcomes) != 2 || got.Outcomes[1].OK {
		t.Errorf("got %+v", got)
	}
	if string(got.State) != `{"round":2}` {
		t.Errorf("state = %s", got.State)
	}
	if got.Timestamp.IsZero() {
		t.Error("timestamp should be set")
	}
}

func TestGetMissing(t *testing.T) {
	store, _ := NewStore(t.TempDir())
	if _, err := store.Get("nope", 1); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := store.Latest("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound from Latest, got %v", err)
	}
}

func TestRoundsAndLatest(t *testing.T) {
	store, _ := NewStore(t.TempDir())
	for _, round := range []int{10, 2, 1} {
		if err := store.Save(&Checkpoint{ExecutionID: "e", Round: round, State: []byte(`{}`)}); err != nil {
			t.Fatal(err)
		}
	}
	rounds, err := store.Rounds("e")
	if err != nil {
		t.Fatal(err)
	}
	if len(rounds) != 3 || rounds[0] != 1 || rounds[2] != 10 {
		t.Errorf("rounds = %v", rounds)
	}
	latest, err := store.Latest("e")
	if err != nil || latest.Round != 10 {
		t.Errorf("latest = %+v, %v", latest, err)
	}

	if err := store.Delete("e"); err != nil {
		t.Fatal(err)
	}
	if rounds, _ := store.Rounds("e"); len(rounds) != 0 {
		t.Errorf("rounds after delete = %v", rounds)
	}
}

func TestSaveRequiresExecution(t *testing.T) {
	store, _ := NewStore(t.TempDir())
	if err := store.Save(&Checkpoint{Round: 1}); err == nil {
		t.Error("expected error")
	}
}
