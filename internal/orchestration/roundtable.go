package orchestration

import (
	"context"
	"fmt"

	"github.com/vinayprograms/agentkit/telemetry"
	"go.opentelemetry.io/otel/attribute"

	"github.com/vinayprograms/conclave/internal/agent"
	"github.com/vinayprograms/conclave/internal/collab"
)

// DefaultContextLimit is how many recent opinions a roundtable agent sees in
// the initial phase.
const DefaultContextLimit = 6

// Roundtable lets every agent speak at once, then optionally respond to what
// the others said.
type Roundtable struct {
	Tools         agent.Toolbox
	ResponsePhase bool
	ContextLimit  int
}

func (*Roundtable) Kind() Kind { return KindRoundtable }
func (*Roundtable) sealed()    {}

type turnResult struct {
	agent *agent.Instance
	out   *agent.Output
	err   error
}

func (r *Roundtable) Run(ctx context.Context, agents []*agent.Instance, state *collab.State, emit Emitter) (*Outcome, error) {
	ctx, span := telemetry.GetTracer().StartSpan(ctx, "round.roundtable")
	defer span.End()
	span.SetAttributes(
		attribute.Int("round", state.Round),
		attribute.Int("agents", len(agents)),
		attribute.Bool("roundtable.response_phase", r.ResponsePhase),
	)

	limit := r.ContextLimit
	if limit <= 0 {
		limit = DefaultContextLimit
	}
	outcome := &Outcome{Agents: agents}

	state.Phase = collab.PhaseParallel
	if err := status(emit, "", fmt.Sprintf("Round %d: parallel", state.Round), map[string]interface{}{
		"round": state.Round,
		"phase": "parallel",
	}); err != nil {
		return outcome, err
	}
	roundOne, err := r.fanOut(ctx, agents, state, emit, outcome, state.RecentOpinions(limit), agent.PhaseInitial)
	if err != nil {
		return outcome, err
	}

	// Agents respond even when nobody got through the first phase.
	if r.ResponsePhase {
		state.Phase = collab.PhaseResponding
		if err := status(emit, "", fmt.Sprintf("Round %d: responding", state.Round), map[string]interface{}{
			"round": state.Round,
			"phase": "response",
		}); err != nil {
			return outcome, err
		}
		if _, err := r.fanOut(ctx, agents, state, emit, outcome, roundOne, "response"); err != nil {
			return outcome, err
		}
	}

	state.Phase = collab.PhaseCompleted
	return outcome, nil
}

// fanOut runs every agent concurrently against the same context and joins
// them in completion order. Only this goroutine touches state and emit.
func (r *Roundtable) fanOut(ctx context.Context, agents []*agent.Instance, state *collab.State, emit Emitter,
	outcome *Outcome, peers []collab.PeerOpinion, phase string) ([]collab.PeerOpinion, error) {

	results := make(chan turnResult, len(agents))
	turn := agent.Turn{Topic: state.Topic, Summary: state.Summary, Peers: peers, Phase: phase}
	for _, a := range agents {
		go func(a *agent.Instance) {
			out, err := runTurn(ctx, a, turn, r.Tools)
			results <- turnResult{agent: a, out: out, err: err}
		}(a)
	}

	var collected []collab.PeerOpinion
	for range agents {
		res := <-results
		a := res.agent
		if res.err != nil {
			outcome.Results = append(outcome.Results, AgentResult{AgentID: a.ID(), AgentName: a.Name(), Phase: phase, Err: res.err})
			logger.Warn("agent reply failed", map[string]interface{}{"agent": a.Name(), "phase": phase, "error": res.err.Error()})
			if err := status(emit, a.ID(), fmt.Sprintf("%s reply failed: %v", a.Name(), res.err), map[string]interface{}{
				"phase": StatusAgentError,
				"round": state.Round,
			}); err != nil {
				return collected, err
			}
			continue
		}

		if err := emitTraces(emit, a, state.Round, res.out.Traces); err != nil {
			return collected, err
		}
		op, err := record(emit, state, a, res.out, phase, res.out.WantsToContinue, nil)
		if err != nil {
			return collected, err
		}
		collected = append(collected, op.Peer())
		outcome.Results = append(outcome.Results, AgentResult{AgentID: a.ID(), AgentName: a.Name(), Phase: phase})
	}
	return collected, nil
}
