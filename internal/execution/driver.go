// Package execution runs teams over topics: it persists executions, builds
// the agents of each round, dispatches to the collaboration mode and
// sequences everything the round emits.
package execution

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/vinayprograms/agentkit/logging"
	"github.com/vinayprograms/agentkit/telemetry"
	"go.opentelemetry.io/otel/attribute"

	"github.com/vinayprograms/conclave/internal/agent"
	"github.com/vinayprograms/conclave/internal/checkpoint"
	"github.com/vinayprograms/conclave/internal/collab"
	"github.com/vinayprograms/conclave/internal/config"
	"github.com/vinayprograms/conclave/internal/eventbus"
	"github.com/vinayprograms/conclave/internal/orchestration"
	"github.com/vinayprograms/conclave/internal/sandbox"
	"github.com/vinayprograms/conclave/internal/session"
	"github.com/vinayprograms/conclave/internal/store"
	"github.com/vinayprograms/conclave/internal/tools"
)

// Control actions.
const (
	ActionPause        = "pause"
	ActionResume       = "resume"
	ActionStop         = "stop"
	ActionExtendBudget = "extend_budget"
)

// Status phases the driver adds to status events.
const (
	PhaseAwaitingInput  = "awaiting_user_input"
	PhaseBudgetWarning  = "budget_warning"
	PhaseBudgetExceeded = "budget_exceeded"
)

const (
	recentMessages  = 50
	defaultPageSize = 20
	maxPageSize     = 100
	titleLimit      = 80
)

// ErrInvalidControl is returned for an action that does not apply to the
// execution's current status.
var ErrInvalidControl = errors.New("invalid action or execution state")

// ErrInvalidState is returned for a follow-up on an execution that is
// neither paused nor completed.
var ErrInvalidState = errors.New("invalid execution state for follow-up")

// Options wires a Driver. Store, Models and Transcripts are required.
type Options struct {
	Config      *config.Config
	Store       store.Store
	Models      Models
	Transcripts *session.FileStore
	Checkpoints *checkpoint.Store
	Bus         eventbus.Publisher
	Listener    Listener
	Classifier  agent.ContinuationClassifier
}

// Driver owns the lifecycle of executions.
type Driver struct {
	cfg         *config.Config
	store       store.Store
	models      Models
	transcripts *session.FileStore
	checkpoints *checkpoint.Store
	bus         eventbus.Publisher
	listener    Listener
	classifier  agent.ContinuationClassifier
	logger      *logging.Logger
}

// NewDriver validates opts and creates a driver.
func NewDriver(opts Options) (*Driver, error) {
	if opts.Store == nil || opts.Models == nil || opts.Transcripts == nil {
		return nil, errors.New("execution driver requires a store, models and a transcript store")
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = config.New()
	}
	bus := opts.Bus
	if bus == nil {
		bus = eventbus.Nop{}
	}
	return &Driver{
		cfg:         cfg,
		store:       opts.Store,
		models:      opts.Models,
		transcripts: opts.Transcripts,
		checkpoints: opts.Checkpoints,
		bus:         bus,
		listener:    opts.Listener,
		classifier:  opts.Classifier,
		logger:      logging.New().WithComponent("execution"),
	}, nil
}

// CreateRequest describes a new execution. Zero budgets take the
// configured defaults.
type CreateRequest struct {
	TeamID       string
	Input        string
	Title        string
	TokensBudget int
	CostBudget   float64
	LLM          *store.LLMSelection
	Workspace    string
}

// Create stores a pending execution.
func (d *Driver) Create(ctx context.Context, req CreateRequest) (*store.Execution, error) {
	if _, err := d.store.GetTeam(ctx, req.TeamID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, &ConfigurationError{Reason: fmt.Sprintf("team %s not found", req.TeamID)}
		}
		return nil, err
	}
	if req.Workspace != "" {
		if _, err := sandbox.New(req.Workspace); err != nil {
			return nil, fmt.Errorf("invalid workspace: %w", err)
		}
	}

	exec := &store.Execution{
		ID:            uuid.New().String(),
		TeamID:        req.TeamID,
		Title:         req.Title,
		InitialInput:  req.Input,
		LLM:           req.LLM,
		Status:        store.StatusPending,
		TokensBudget:  req.TokensBudget,
		CostBudget:    req.CostBudget,
		WorkspacePath: req.Workspace,
	}
	if exec.Title == "" {
		exec.Title = titleFrom(req.Input)
	}
	if exec.TokensBudget <= 0 {
		exec.TokensBudget = d.cfg.Budget.MaxTokens
	}
	if exec.CostBudget <= 0 {
		exec.CostBudget = d.cfg.Budget.MaxCost
	}
	if err := d.store.PutExecution(ctx, exec); err != nil {
		return nil, err
	}
	d.logger.Info("execution created", map[string]interface{}{
		"execution_id": exec.ID,
		"team_id":      exec.TeamID,
	})
	return exec, nil
}

// Start runs the first round of a pending execution. Executions past
// pending are left alone. An empty input parks the execution in paused until
// a follow-up supplies the topic.
func (d *Driver) Start(ctx context.Context, id string) error {
	exec, err := d.getExecution(ctx, id)
	if err != nil {
		return err
	}
	if exec.Status != store.StatusPending {
		return nil
	}
	sink, err := d.sink(ctx, exec)
	if err != nil {
		return err
	}

	input := strings.TrimSpace(exec.InitialInput)
	if input == "" {
		exec.Status = store.StatusPaused
		if err := d.store.PutExecution(ctx, exec); err != nil {
			return err
		}
		return sink.Emit(orchestration.EventStatus, map[string]interface{}{
			"message": "Waiting for a topic; send a follow-up to begin",
			"phase":   PhaseAwaitingInput,
		}, "")
	}

	now := time.Now()
	exec.Status = store.StatusRunning
	exec.StartedAt = &now
	if err := d.store.PutExecution(ctx, exec); err != nil {
		return err
	}
	if err := sink.Emit(orchestration.EventStatus, map[string]interface{}{"status": store.StatusRunning}, ""); err != nil {
		return err
	}
	return d.guard(ctx, exec, sink, d.runRound(ctx, exec, sink, input, ""))
}

// Followup runs another round on a paused or completed execution, optionally
// addressed to one agent.
func (d *Driver) Followup(ctx context.Context, id, input, targetAgentID string) error {
	exec, err := d.getExecution(ctx, id)
	if err != nil {
		return err
	}
	sink, err := d.sink(ctx, exec)
	if err != nil {
		return err
	}
	if exec.Status != store.StatusPaused && exec.Status != store.StatusCompleted {
		sink.Emit(orchestration.EventError, map[string]interface{}{"message": ErrInvalidState.Error()}, "")
		return fmt.Errorf("%w: %s", ErrInvalidState, exec.Status)
	}

	exec.Status = store.StatusRunning
	if exec.StartedAt == nil {
		now := time.Now()
		exec.StartedAt = &now
	}
	if err := d.store.PutExecution(ctx, exec); err != nil {
		return err
	}
	if err := sink.Emit(orchestration.EventStatus, map[string]interface{}{"status": store.StatusRunning}, ""); err != nil {
		return err
	}
	return d.guard(ctx, exec, sink, d.runRound(ctx, exec, sink, strings.TrimSpace(input), targetAgentID))
}

// guard marks the execution failed when the round returned an error.
func (d *Driver) guard(ctx context.Context, exec *store.Execution, sink *Sink, runErr error) error {
	if runErr == nil {
		return nil
	}
	d.logger.Error("execution failed", map[string]interface{}{
		"execution_id": exec.ID,
		"error":        runErr.Error(),
	})
	if latest, err := d.store.GetExecution(ctx, exec.ID); err == nil {
		exec = latest
	}
	exec.Status = store.StatusFailed
	exec.ErrorMessage = runErr.Error()
	if err := d.store.PutExecution(ctx, exec); err != nil {
		d.logger.Warn("failed to record failure", map[string]interface{}{"error": err.Error()})
	}
	sink.Emit(orchestration.EventError, map[string]interface{}{"message": runErr.Error()}, "")

	tr := sink.Transcript()
	tr.Status = session.StatusFailed
	tr.Error = runErr.Error()
	d.saveTranscript(tr)
	return runErr
}

func (d *Driver) runRound(ctx context.Context, exec *store.Execution, sink *Sink, input, targetAgentID string) error {
	ctx, span := telemetry.GetTracer().StartSpan(ctx, "execution.round")
	defer span.End()
	span.SetAttributes(attribute.String("execution.id", exec.ID))

	team, err := d.store.GetTeam(ctx, exec.TeamID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return &ConfigurationError{Reason: fmt.Sprintf("team %s not found", exec.TeamID)}
		}
		return err
	}
	kind, err := orchestration.ParseKind(team.CollaborationMode)
	if err != nil {
		return &ConfigurationError{Reason: "team " + team.Name, Err: err}
	}

	state, err := collab.Decode(exec.SharedState)
	if err != nil {
		return err
	}
	// The execution record is authoritative for budgets; extend_budget
	// only touches the record.
	state.TokensBudget = exec.TokensBudget
	state.CostBudget = exec.CostBudget
	state.StartNewRound()
	state.Topic = input

	agents, err := d.buildAgents(ctx, team, exec, state, targetAgentID)
	if err != nil {
		return err
	}

	toolbox, closeTools, err := d.toolbox(exec)
	if err != nil {
		return err
	}
	defer closeTools()

	rounds := team.MaxRounds
	if rounds <= 0 {
		rounds = d.cfg.Collaboration.DebateRounds
	}
	responsePhase := d.cfg.Collaboration.ResponsePhase
	if team.ResponsePhase != nil {
		responsePhase = *team.ResponsePhase
	}
	mode, err := orchestration.New(kind, orchestration.Settings{
		Tools:         toolbox,
		Rounds:        rounds,
		ResponsePhase: responsePhase,
		ContextLimit:  d.cfg.Collaboration.ContextLimit,
	})
	if err != nil {
		return &ConfigurationError{Reason: "team " + team.Name, Err: err}
	}

	tr := sink.Transcript()
	tr.TeamID = team.ID
	tr.TeamName = team.Name
	tr.Mode = string(mode.Kind())
	if tr.Topic == "" {
		tr.Topic = input
	}
	tr.Status = session.StatusRunning

	if err := sink.UserMessage(input, state.Round, targetAgentID); err != nil {
		return err
	}

	span.SetAttributes(
		attribute.String("execution.mode", string(mode.Kind())),
		attribute.Int("execution.round", state.Round),
		attribute.Int("execution.agents", len(agents)),
	)
	d.logger.Info("round started", map[string]interface{}{
		"execution_id": exec.ID,
		"round":        state.Round,
		"mode":         string(mode.Kind()),
		"agents":       len(agents),
	})

	outcome, err := mode.Run(ctx, agents, state, d.accounting(ctx, sink, state))
	if err != nil {
		return err
	}
	return d.finishRound(ctx, exec, sink, state, mode.Kind(), outcome)
}

// buildAgents instantiates the team's active members in position order. An
// unknown agent id is skipped; a target restricts the round to that agent.
func (d *Driver) buildAgents(ctx context.Context, team *store.Team, exec *store.Execution, state *collab.State, targetAgentID string) ([]*agent.Instance, error) {
	members := append([]store.TeamMember(nil), team.Members...)
	sort.SliceStable(members, func(i, j int) bool { return members[i].Position < members[j].Position })

	state.AgentIDs = state.AgentIDs[:0]
	state.ActiveAgentIDs = state.ActiveAgentIDs[:0]
	var agents []*agent.Instance
	for _, m := range members {
		state.AgentIDs = append(state.AgentIDs, m.AgentID)
		if !m.IsActive {
			continue
		}
		if targetAgentID != "" && m.AgentID != targetAgentID {
			continue
		}
		rec, err := d.store.GetAgent(ctx, m.AgentID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				d.logger.Warn("team member has no agent", map[string]interface{}{
					"team_id":  team.ID,
					"agent_id": m.AgentID,
				})
				continue
			}
			return nil, err
		}
		capability, err := d.models.Capability(ctx, *rec, exec.LLM)
		if err != nil {
			return nil, err
		}

		opts := []agent.Option{agent.WithHistory(ownViews(state, rec.ID))}
		if d.classifier != nil {
			opts = append(opts, agent.WithClassifier(d.classifier))
		}
		agents = append(agents, agent.New(agent.Config{
			ID:                rec.ID,
			Name:              rec.Name,
			SystemPrompt:      rec.SystemPrompt,
			Temperature:       rec.Temperature,
			MaxTokens:         rec.MaxTokens,
			MaxToolIterations: rec.MaxToolIterations,
		}, capability, opts...))
		state.ActiveAgentIDs = append(state.ActiveAgentIDs, rec.ID)
	}
	if len(agents) == 0 {
		return nil, &ConfigurationError{Reason: "no agents in team " + team.Name}
	}
	return agents, nil
}

func ownViews(state *collab.State, agentID string) []string {
	var views []string
	for _, op := range state.Opinions {
		if op.AgentID == agentID {
			views = append(views, op.Content)
		}
	}
	return views
}

// toolbox opens the execution's workspace, or returns nil when tools are
// off or no workspace is set.
func (d *Driver) toolbox(exec *store.Execution) (agent.Toolbox, func(), error) {
	noop := func() {}
	root := exec.WorkspacePath
	if root == "" {
		root = config.ExpandPath(d.cfg.Workspace.Path)
	}
	if !d.cfg.Tools.Enabled || root == "" {
		return nil, noop, nil
	}
	guard, err := sandbox.New(root)
	if err != nil {
		return nil, noop, &ConfigurationError{Reason: "workspace " + root, Err: err}
	}
	ex, err := tools.NewExecutor(guard, tools.Limits{
		MaxReadBytes:     d.cfg.Tools.MaxReadBytes,
		MaxSearchMatches: d.cfg.Tools.MaxSearchMatches,
		MaxSearchFiles:   d.cfg.Tools.MaxSearchFiles,
		TimeoutMs:        d.cfg.Tools.TimeoutMs,
	})
	if err != nil {
		return nil, noop, err
	}
	return ex, ex.Close, nil
}

// accounting forwards events to the sink, pricing each opinion and raising
// budget alerts. It runs on the goroutine that owns state.
func (d *Driver) accounting(ctx context.Context, sink *Sink, state *collab.State) orchestration.Emitter {
	return orchestration.EmitterFunc(func(eventType string, data map[string]interface{}, agentID string) error {
		if err := sink.Emit(eventType, data, agentID); err != nil {
			return err
		}
		if eventType != orchestration.EventOpinion {
			return nil
		}
		var model string
		if meta, ok := data["metadata"].(map[string]interface{}); ok {
			model = stringField(meta, "model")
		}
		if price, ok := d.models.Price(ctx, model); ok {
			state.AddCost(cost(price, intField(data, "input_tokens"), intField(data, "output_tokens")))
		}
		for _, alert := range state.CheckBudget() {
			phase := PhaseBudgetWarning
			if alert.Exceeded {
				phase = PhaseBudgetExceeded
			}
			d.logger.Warn(alert.Message(), map[string]interface{}{"execution_id": sink.executionID})
			if err := sink.Emit(orchestration.EventStatus, map[string]interface{}{
				"message":   alert.Message(),
				"phase":     phase,
				"resource":  alert.Resource,
				"threshold": alert.Threshold,
				"used":      alert.Used,
				"budget":    alert.Budget,
			}, ""); err != nil {
				return err
			}
		}
		return nil
	})
}

func (d *Driver) finishRound(ctx context.Context, exec *store.Execution, sink *Sink, state *collab.State, kind orchestration.Kind, outcome *orchestration.Outcome) error {
	shared, err := state.Encode()
	if err != nil {
		return err
	}
	// A control action may have landed while the round ran.
	if latest, err := d.store.GetExecution(ctx, exec.ID); err == nil {
		exec = latest
	}
	now := time.Now()
	exec.Status = store.StatusCompleted
	exec.CompletedAt = &now
	exec.CurrentRound = state.Round
	exec.TokensUsed = state.TokensUsed
	exec.Cost = state.Cost
	exec.SharedState = shared
	exec.ErrorMessage = ""
	exec.FinalOutput = finalOutput(state)
	if err := d.store.PutExecution(ctx, exec); err != nil {
		return err
	}

	if d.checkpoints != nil {
		cp := &checkpoint.Checkpoint{
			ExecutionID: exec.ID,
			Round:       state.Round,
			Mode:        string(kind),
			Status:      exec.Status,
			TokensUsed:  state.TokensUsed,
			Cost:        state.Cost,
			State:       shared,
		}
		if outcome != nil {
			for _, r := range outcome.Results {
				ao := checkpoint.AgentOutcome{AgentID: r.AgentID, AgentName: r.AgentName, Phase: r.Phase, OK: r.OK()}
				if r.Err != nil {
					ao.Error = r.Err.Error()
				}
				cp.Outcomes = append(cp.Outcomes, ao)
			}
		}
		if err := d.checkpoints.Save(cp); err != nil {
			d.logger.Warn("checkpoint not saved", map[string]interface{}{
				"execution_id": exec.ID,
				"round":        state.Round,
				"error":        err.Error(),
			})
		}
	}

	if err := sink.Emit(orchestration.EventStatus, map[string]interface{}{"status": store.StatusCompleted}, ""); err != nil {
		return err
	}
	tr := sink.Transcript()
	tr.Status = session.StatusCompleted
	tr.Summary = exec.FinalOutput
	tr.Error = ""
	d.saveTranscript(tr)

	d.logger.Info("round completed", map[string]interface{}{
		"execution_id": exec.ID,
		"round":        state.Round,
		"opinions":     len(state.Opinions),
		"tokens_used":  state.TokensUsed,
	})
	return nil
}

func finalOutput(state *collab.State) string {
	if strings.TrimSpace(state.Summary) != "" {
		return state.Summary
	}
	if n := len(state.Opinions); n > 0 {
		return state.Opinions[n-1].Content
	}
	return ""
}

// sink loads the execution's transcript and continues its event sequence.
func (d *Driver) sink(ctx context.Context, exec *store.Execution) (*Sink, error) {
	tr, err := d.transcripts.Load(exec.ID)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			// The store carries the sequence; a damaged transcript is set
			// aside and a new one started.
			aside, moveErr := d.transcripts.SetAside(exec.ID)
			d.logger.Warn("transcript unreadable, starting a new one", map[string]interface{}{
				"execution_id": exec.ID,
				"error":        err.Error(),
				"moved_to":     aside,
				"move_error":   fmt.Sprint(moveErr),
			})
		}
		tr = session.New(exec.ID, exec.TeamID, "", exec.InitialInput)
	}
	return NewSink(ctx, SinkConfig{
		ExecutionID: exec.ID,
		Store:       d.store,
		Transcript:  tr,
		Transcripts: d.transcripts,
		Bus:         d.bus,
		Listener:    d.listener,
	})
}

func (d *Driver) saveTranscript(tr *session.Session) {
	if err := d.transcripts.Save(tr); err != nil {
		d.logger.Warn("transcript not saved", map[string]interface{}{
			"execution_id": tr.ID,
			"error":        err.Error(),
		})
	}
}

func (d *Driver) getExecution(ctx context.Context, id string) (*store.Execution, error) {
	exec, err := d.store.GetExecution(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("execution %s: %w", id, store.ErrNotFound)
		}
		return nil, err
	}
	return exec, nil
}

func titleFrom(input string) string {
	title := strings.Join(strings.Fields(input), " ")
	if r := []rune(title); len(r) > titleLimit {
		return string(r[:titleLimit]) + "…"
	}
	return title
}
