// Package orchestration drives one round of a collaboration. Each mode decides
// which agents speak, in which order and with what context, records their
// opinions in the collaboration state and reports progress through an Emitter.
package orchestration

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/vinayprograms/agentkit/logging"

	"github.com/vinayprograms/conclave/internal/agent"
	"github.com/vinayprograms/conclave/internal/collab"
)

// Kind names a collaboration mode.
type Kind string

const (
	KindPipeline   Kind = "pipeline"
	KindDebate     Kind = "debate"
	KindRoundtable Kind = "roundtable"
)

// ErrUnknownMode is returned by ParseKind for names outside the closed set.
var ErrUnknownMode = errors.New("unknown collaboration mode")

// ParseKind maps a configured mode name to a Kind. An empty name selects the
// roundtable.
func ParseKind(name string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(name))) {
	case "", KindRoundtable:
		return KindRoundtable, nil
	case KindPipeline:
		return KindPipeline, nil
	case KindDebate:
		return KindDebate, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMode, name)
}

// AgentResult reports how one agent fared in a round phase.
type AgentResult struct {
	AgentID   string
	AgentName string
	Phase     string
	Err       error
}

// OK reports whether the agent produced an opinion.
func (r AgentResult) OK() bool { return r.Err == nil }

// Outcome is what a mode hands back to its driver.
type Outcome struct {
	// Agents is the participation order the mode settled on.
	Agents  []*agent.Instance
	Results []AgentResult
}

// Failed returns the results that carry an error.
func (o *Outcome) Failed() []AgentResult {
	var failed []AgentResult
	for _, r := range o.Results {
		if r.Err != nil {
			failed = append(failed, r)
		}
	}
	return failed
}

// Mode runs one round. Implementations mutate state and emit events only
// from the calling goroutine.
type Mode interface {
	Kind() Kind
	Run(ctx context.Context, agents []*agent.Instance, state *collab.State, emit Emitter) (*Outcome, error)
	sealed()
}

// Settings carries the knobs the modes read.
type Settings struct {
	// Tools is offered to pipeline and roundtable agents. Nil disables tools.
	Tools agent.Toolbox
	// Rounds is the number of debate rebuttal rounds.
	Rounds int
	// ResponsePhase enables the roundtable's second fan-out.
	ResponsePhase bool
	// ContextLimit is how many recent opinions roundtable agents see.
	ContextLimit int
}

// New builds the mode for kind.
func New(kind Kind, s Settings) (Mode, error) {
	switch kind {
	case KindPipeline:
		return &Pipeline{Tools: s.Tools}, nil
	case KindDebate:
		return &Debate{Rounds: s.Rounds}, nil
	case KindRoundtable, "":
		return &Roundtable{Tools: s.Tools, ResponsePhase: s.ResponsePhase, ContextLimit: s.ContextLimit}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownMode, kind)
}

var logger = logging.New().WithComponent("orchestration")

func runTurn(ctx context.Context, a *agent.Instance, turn agent.Turn, tb agent.Toolbox) (*agent.Output, error) {
	if tb == nil {
		return a.GenerateOpinion(ctx, turn)
	}
	return a.GenerateOpinionWithTools(ctx, turn, tb)
}
