// Package checkpoint writes the collaboration state reached at the end of
// each round so an execution's progress can be inspected or restored.
package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ErrNotFound is returned when no checkpoint exists for a round.
var ErrNotFound = errors.New("checkpoint not found")

// AgentOutcome records whether one agent spoke in the round.
type AgentOutcome struct {
	AgentID   string `json:"agent_id"`
	AgentName string `json:"agent_name"`
	Phase     string `json:"phase"`
	OK        bool   `json:"ok"`
	Error     string `json:"error,omitempty"`
}

// Checkpoint is the state after one round.
type Checkpoint struct {
	ExecutionID string          `json:"execution_id"`
	Round       int             `json:"round"`
	Mode        string          `json:"mode"`
	Status      string          `json:"status"`
	TokensUsed  int             `json:"tokens_used"`
	Cost        float64         `json:"cost"`
	Outcomes    []AgentOutcome  `json:"outcomes,omitempty"`
	State       json.RawMessage `json:"state"`
	Timestamp   time.Time       `json:"timestamp"`
}

// Store keeps checkpoints under <dir>/<execution>/round-<n>.json.
type Store struct {
	dir string
	mu  sync.RWMutex
}

// NewStore creates a checkpoint store rooted at dir.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoint directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) path(executionID string, round int) string {
	return filepath.Join(s.dir, executionID, fmt.Sprintf("round-%d.json", round))
}

// Save writes cp, replacing an earlier checkpoint of the same round.
func (s *Store) Save(cp *Checkpoint) error {
	if cp.ExecutionID == "" {
		return errors.New("checkpoint has no execution id")
	}
	if cp.Timestamp.IsZero() {
		cp.Timestamp = time.Now()
	}
	// Compact, so the embedded state reads back byte for byte.
	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.MkdirAll(filepath.Join(s.dir, cp.ExecutionID), 0755); err != nil {
		return fmt.Errorf("failed to create checkpoint directory: %w", err)
	}
	return os.WriteFile(s.path(cp.ExecutionID, cp.Round), data, 0644)
}

// Get loads the checkpoint of one round.
func (s *Store) Get(executionID string, round int) (*Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.path(executionID, round))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%s round %d: %w", executionID, round, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint: %w", err)
	}
	return &cp, nil
}

// Rounds lists the checkpointed rounds of an execution in ascending order.
func (s *Store) Rounds(executionID string) ([]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(filepath.Join(s.dir, executionID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var rounds []int
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, "round-") || filepath.Ext(name) != ".json" {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, "round-"), ".json"))
		if err != nil {
			continue
		}
		rounds = append(rounds, n)
	}
	sort.Ints(rounds)
	return rounds, nil
}

// Latest returns the highest-round checkpoint.
func (s *Store) Latest(executionID string) (*Checkpoint, error) {
	rounds, err := s.Rounds(executionID)
	if err != nil {
		return nil, err
	}
	if len(rounds) == 0 {
		return nil, fmt.Errorf("%s: %w", executionID, ErrNotFound)
	}
	return s.Get(executionID, rounds[len(rounds)-1])
}

// Delete removes every checkpoint of an execution.
func (s *Store) Delete(executionID string) error {
	if executionID == "" {
		return errors.New("empty execution id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return os.RemoveAll(filepath.Join(s.dir, executionID))
}
