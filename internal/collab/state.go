// Package collab holds the shared, serializable record of one collaboration:
// topic, round, phase, the append-only opinion log and budget accounting.
package collab

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"
)

// Phase is the engine-level phase of a collaboration.
type Phase string

const (
	PhaseInitializing Phase = "initializing"
	PhaseParallel     Phase = "parallel"
	PhaseResponding   Phase = "responding"
	PhaseSequential   Phase = "sequential"
	PhaseSummarizing  Phase = "summarizing"
	PhaseCompleted    Phase = "completed"
	PhasePaused       Phase = "paused"
	PhaseFailed       Phase = "failed"
)

// Default budgets for a new collaboration.
const (
	DefaultTokensBudget = 200000
	DefaultCostBudget   = 10.0
)

// Opinion is one agent contribution. It is never modified once added.
type Opinion struct {
	AgentID         string `json:"agent_id"`
	AgentName       string `json:"agent_name"`
	Content         string `json:"content"`
	Round           int    `json:"round"`
	Phase           string `json:"phase"`
	WantsToContinue bool   `json:"wants_to_continue"`
	RespondingTo    string `json:"responding_to,omitempty"`
	InputTokens     int    `json:"input_tokens"`
	OutputTokens    int    `json:"output_tokens"`
	Estimated       bool   `json:"estimated,omitempty"`
}

// UnmarshalJSON defaults wants_to_continue to true when absent.
func (o *Opinion) UnmarshalJSON(data []byte) error {
	type plain Opinion
	p := plain{WantsToContinue: true}
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*o = Opinion(p)
	return nil
}

// PeerOpinion is the view of an opinion handed to other agents as context.
type PeerOpinion struct {
	AgentID   string `json:"agent_id"`
	AgentName string `json:"agent_name"`
	Content   string `json:"content"`
}

// State is owned by whichever goroutine drives the current round.
type State struct {
	Topic              string          `json:"topic"`
	Round              int             `json:"round"`
	Phase              Phase           `json:"phase"`
	AgentIDs           []string        `json:"agent_ids"`
	ActiveAgentIDs     []string        `json:"active_agent_ids"`
	Opinions           []Opinion       `json:"opinions"`
	Summary            string          `json:"summary"`
	AgentWantsContinue map[string]bool `json:"agent_wants_continue"`
	TokensUsed         int             `json:"tokens_used"`
	TokensBudget       int             `json:"tokens_budget"`
	Cost               float64         `json:"cost"`
	CostBudget         float64         `json:"cost_budget"`
	// BudgetAlerts records which budget alerts were already raised so each
	// fires once per execution.
	BudgetAlerts map[string]bool `json:"budget_alerts,omitempty"`
}

// New returns an empty state with default budgets.
func New() *State {
	return &State{
		Phase:              PhaseInitializing,
		AgentIDs:           []string{},
		ActiveAgentIDs:     []string{},
		Opinions:           []Opinion{},
		AgentWantsContinue: map[string]bool{},
		TokensBudget:       DefaultTokensBudget,
		CostBudget:         DefaultCostBudget,
	}
}

// Decode rehydrates a state. Empty input yields New(); absent fields keep
// their defaults.
func Decode(data []byte) (*State, error) {
	s := New()
	if len(strings.TrimSpace(string(data))) == 0 || string(data) == "null" {
		return s, nil
	}
	if err := json.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("failed to decode collaboration state: %w", err)
	}
	if s.AgentWantsContinue == nil {
		s.AgentWantsContinue = map[string]bool{}
	}
	if s.Opinions == nil {
		s.Opinions = []Opinion{}
	}
	if s.Phase == "" {
		s.Phase = PhaseInitializing
	}
	return s, nil
}

// Encode serializes the state.
func (s *State) Encode() ([]byte, error) {
	return json.Marshal(s)
}

// StartNewRound advances the round counter. Rounds never decrease.
func (s *State) StartNewRound() {
	s.Round++
}

// AddOpinion stamps op with the current round, appends it and accounts its
// tokens. The stored opinion is returned.
func (s *State) AddOpinion(op Opinion) Opinion {
	op.Round = s.Round
	s.TokensUsed = SaturatingAdd(s.TokensUsed, SaturatingAdd(op.InputTokens, op.OutputTokens))
	if s.AgentWantsContinue == nil {
		s.AgentWantsContinue = map[string]bool{}
	}
	s.AgentWantsContinue[op.AgentID] = op.WantsToContinue
	s.Opinions = append(s.Opinions, op)
	return op
}

// AddCost accumulates spend.
func (s *State) AddCost(cost float64) {
	if cost > 0 {
		s.Cost += cost
	}
}

// RecentOpinions returns up to limit of the latest opinions, oldest first.
func (s *State) RecentOpinions(limit int) []PeerOpinion {
	start := len(s.Opinions) - limit
	if start < 0 {
		start = 0
	}
	out := make([]PeerOpinion, 0, len(s.Opinions)-start)
	for _, op := range s.Opinions[start:] {
		out = append(out, op.Peer())
	}
	return out
}

// Peer returns the context view of an opinion.
func (o Opinion) Peer() PeerOpinion {
	return PeerOpinion{AgentID: o.AgentID, AgentName: o.AgentName, Content: o.Content}
}

// AnyoneWantsToContinue reports whether at least one agent's latest opinion
// asked for more discussion.
func (s *State) AnyoneWantsToContinue() bool {
	for _, v := range s.AgentWantsContinue {
		if v {
			return true
		}
	}
	return false
}

// SaturatingAdd adds b to a, stopping at math.MaxInt.
func SaturatingAdd(a, b int) int {
	if b > 0 && a > math.MaxInt-b {
		return math.MaxInt
	}
	return a + b
}

// Clip returns the longest prefix of s that fits in n bytes without
// splitting a rune.
func Clip(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
