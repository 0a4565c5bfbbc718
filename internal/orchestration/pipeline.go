package orchestration

import (
	"context"
	"fmt"

	"github.com/vinayprograms/agentkit/telemetry"
	"go.opentelemetry.io/otel/attribute"

	"github.com/vinayprograms/conclave/internal/agent"
	"github.com/vinayprograms/conclave/internal/collab"
)

// Pipeline relays the work through the agents one after another. Each stage
// refines the previous stage's output.
type Pipeline struct {
	Tools agent.Toolbox
}

func (*Pipeline) Kind() Kind { return KindPipeline }
func (*Pipeline) sealed()    {}

func (p *Pipeline) Run(ctx context.Context, agents []*agent.Instance, state *collab.State, emit Emitter) (*Outcome, error) {
	ctx, span := telemetry.GetTracer().StartSpan(ctx, "round.pipeline")
	defer span.End()
	span.SetAttributes(attribute.Int("round", state.Round), attribute.Int("agents", len(agents)))

	outcome := &Outcome{Agents: agents}
	state.Phase = collab.PhaseSequential
	if err := status(emit, "", "Pipeline started", map[string]interface{}{
		"stages": len(agents),
		"phase":  "pipeline",
	}); err != nil {
		return outcome, err
	}

	input := state.Topic
	for i, a := range agents {
		stage := i + 1
		if err := status(emit, a.ID(), fmt.Sprintf("Processing Stage %d: %s", stage, a.Name()), map[string]interface{}{
			"stage": stage,
			"phase": "pipeline",
		}); err != nil {
			return outcome, err
		}

		phase := fmt.Sprintf("stage_%d", stage)
		out, err := runTurn(ctx, a, agent.Turn{Topic: input, Phase: agent.PhaseInitial}, p.Tools)
		if err != nil {
			outcome.Results = append(outcome.Results, AgentResult{AgentID: a.ID(), AgentName: a.Name(), Phase: phase, Err: err})
			span.RecordError(err)
			logger.Warn("pipeline stage failed", map[string]interface{}{"stage": stage, "agent": a.Name(), "error": err.Error()})
			return outcome, fmt.Errorf("stage %d (%s): %w", stage, a.Name(), err)
		}
		if err := emitTraces(emit, a, state.Round, out.Traces); err != nil {
			return outcome, err
		}
		if _, err := record(emit, state, a, out, phase, true, map[string]interface{}{"stage": stage}); err != nil {
			return outcome, err
		}
		outcome.Results = append(outcome.Results, AgentResult{AgentID: a.ID(), AgentName: a.Name(), Phase: phase})

		input = handOff(state.Topic, stage, out.Content)
	}

	state.Phase = collab.PhaseCompleted
	return outcome, nil
}

func handOff(topic string, stage int, output string) string {
	return fmt.Sprintf("Original task: %s\n\nOutput of previous stage (stage %d):\n%s\n\nRefine it from your expertise.",
		topic, stage, output)
}
