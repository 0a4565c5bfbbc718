package orchestration

import (
	"context"
	"fmt"
	"strings"

	"github.com/vinayprograms/agentkit/telemetry"
	"go.opentelemetry.io/otel/attribute"

	"github.com/vinayprograms/conclave/internal/agent"
	"github.com/vinayprograms/conclave/internal/collab"
)

// Debate splits the agents into an affirmative side, a negative side and a
// judge. Turns run one agent at a time and without tools.
type Debate struct {
	Rounds int
}

func (*Debate) Kind() Kind { return KindDebate }
func (*Debate) sealed()    {}

// Roles splits agents into sides. The last agent judges; the first half
// (rounded down) of the rest argues for the motion.
func Roles(agents []*agent.Instance) (pro, con []*agent.Instance, judge *agent.Instance) {
	if len(agents) == 0 {
		return nil, nil, nil
	}
	judge = agents[len(agents)-1]
	rest := agents[:len(agents)-1]
	mid := len(rest) / 2
	return rest[:mid], rest[mid:], judge
}

func (d *Debate) Run(ctx context.Context, agents []*agent.Instance, state *collab.State, emit Emitter) (*Outcome, error) {
	outcome := &Outcome{}
	pro, con, judge := Roles(agents)
	if judge == nil {
		return outcome, nil
	}

	ctx, span := telemetry.GetTracer().StartSpan(ctx, "round.debate")
	defer span.End()
	span.SetAttributes(
		attribute.Int("debate.pro", len(pro)),
		attribute.Int("debate.con", len(con)),
		attribute.Int("debate.rounds", d.Rounds),
	)

	outcome.Agents = append(append(append([]*agent.Instance{}, pro...), con...), judge)
	if err := status(emit, "", "Debate started", map[string]interface{}{
		"pro_team": names(pro),
		"con_team": names(con),
		"judge":    judge.Name(),
	}); err != nil {
		return outcome, err
	}

	if state.Round < 1 {
		state.Round = 1
	}
	state.Phase = collab.PhaseSequential

	speak := func(a *agent.Instance, turn agent.Turn, phase string, wants bool) (*agent.Output, error) {
		out, err := a.GenerateOpinion(ctx, turn)
		if err != nil {
			outcome.Results = append(outcome.Results, AgentResult{AgentID: a.ID(), AgentName: a.Name(), Phase: phase, Err: err})
			span.RecordError(err)
			return nil, fmt.Errorf("%s (%s): %w", phase, a.Name(), err)
		}
		if _, err := record(emit, state, a, out, phase, wants, nil); err != nil {
			return nil, err
		}
		outcome.Results = append(outcome.Results, AgentResult{AgentID: a.ID(), AgentName: a.Name(), Phase: phase})
		return out, nil
	}

	var openings []collab.PeerOpinion
	proPrompt := fmt.Sprintf("Motion: %s\n\nYou are the affirmative side; give an opening statement.", state.Topic)
	for _, a := range pro {
		out, err := speak(a, agent.Turn{Topic: proPrompt, Phase: agent.PhaseInitial}, "pro_opening", true)
		if err != nil {
			return outcome, err
		}
		openings = append(openings, collab.PeerOpinion{AgentID: a.ID(), AgentName: a.Name(), Content: out.Content})
	}

	conPrompt := fmt.Sprintf("Motion: %s\n\nYou are the negative side; respond to the affirmative and give an opening statement.", state.Topic)
	for _, a := range con {
		if _, err := speak(a, agent.Turn{Topic: conPrompt, Peers: openings, Phase: "response"}, "con_opening", true); err != nil {
			return outcome, err
		}
	}

	for k := 1; k <= d.Rounds; k++ {
		state.StartNewRound()
		if err := status(emit, "", fmt.Sprintf("Rebuttal round %d", k), map[string]interface{}{
			"round": state.Round,
			"phase": "rebuttal",
		}); err != nil {
			return outcome, err
		}
		last := state.RecentOpinions(len(pro) + len(con))
		for _, a := range pro {
			if _, err := speak(a, agent.Turn{Topic: state.Topic, Peers: last, Phase: "response"}, "pro_rebuttal", true); err != nil {
				return outcome, err
			}
		}
		for _, a := range con {
			if _, err := speak(a, agent.Turn{Topic: state.Topic, Peers: last, Phase: "response"}, "con_rebuttal", true); err != nil {
				return outcome, err
			}
		}
	}

	state.Phase = collab.PhaseSummarizing
	verdict, err := speak(judge, agent.Turn{Topic: verdictPrompt(state), Phase: agent.PhaseInitial}, "judge_verdict", false)
	if err != nil {
		return outcome, err
	}
	state.Summary = verdict.Content
	state.Phase = collab.PhaseCompleted
	return outcome, nil
}

func verdictPrompt(state *collab.State) string {
	var affirmative, negative []string
	for _, op := range state.Opinions {
		line := fmt.Sprintf("- %s: %s", op.AgentName, op.Content)
		switch {
		case strings.HasPrefix(op.Phase, "pro_"):
			affirmative = append(affirmative, line)
		case strings.HasPrefix(op.Phase, "con_"):
			negative = append(negative, line)
		}
	}
	return fmt.Sprintf(`As the judge, evaluate this debate:

Motion: %s

Affirmative views:
%s

Negative views:
%s

Give your verdict:
1. A summary of both sides
2. The strengths and weaknesses of each side
3. Your final judgement`, state.Topic, strings.Join(affirmative, "\n"), strings.Join(negative, "\n"))
}

func names(agents []*agent.Instance) []string {
	out := make([]string, 0, len(agents))
	for _, a := range agents {
		out = append(out, a.Name())
	}
	return out
}
