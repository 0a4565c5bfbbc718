package orchestration

import (
	"encoding/json"
	"fmt"

	"github.com/vinayprograms/conclave/internal/agent"
	"github.com/vinayprograms/conclave/internal/collab"
	"github.com/vinayprograms/conclave/internal/tools"
)

// Event types.
const (
	EventStatus     = "status"
	EventOpinion    = "opinion"
	EventToolCall   = "tool_call"
	EventToolResult = "tool_result"
	EventUser       = "user"
	EventError      = "error"
)

// Status phases carried in status event data.
const (
	StatusAgentError = "agent_error"
)

// previewLimit bounds the human-readable content of tool events.
const previewLimit = 200

// Emitter receives events in the order a mode produces them. agentID may be
// empty for events not attributable to one agent.
type Emitter interface {
	Emit(eventType string, data map[string]interface{}, agentID string) error
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(eventType string, data map[string]interface{}, agentID string) error

func (f EmitterFunc) Emit(eventType string, data map[string]interface{}, agentID string) error {
	return f(eventType, data, agentID)
}

// emitTraces reports each tool call and its result, in execution order.
func emitTraces(emit Emitter, a *agent.Instance, round int, traces []tools.Trace) error {
	for _, tr := range traces {
		args := tr.Call.Args
		if args == nil {
			args = map[string]interface{}{}
		}
		if err := emit.Emit(EventToolCall, map[string]interface{}{
			"phase":        EventToolCall,
			"round":        round,
			"agent_name":   a.Name(),
			"tool_name":    tr.Call.Name,
			"tool_call_id": tr.Call.ID,
			"arguments":    args,
			"content":      fmt.Sprintf("CALL %s %s", tr.Call.Name, preview(args)),
		}, a.ID()); err != nil {
			return err
		}

		verdict := "OK"
		body := preview(tr.Result.Output)
		if !tr.Result.OK {
			verdict = "ERROR"
			body = preview(tr.Result.Error)
		}
		if err := emit.Emit(EventToolResult, map[string]interface{}{
			"phase":        EventToolResult,
			"round":        round,
			"agent_name":   a.Name(),
			"tool_name":    tr.Result.Name,
			"tool_call_id": tr.Result.ToolCallID,
			"ok":           tr.Result.OK,
			"output":       tr.Result.Output,
			"error":        tr.Result.Error,
			"duration_ms":  tr.Result.DurationMs,
			"content":      fmt.Sprintf("%s %s %s", verdict, tr.Result.Name, body),
		}, a.ID()); err != nil {
			return err
		}
	}
	return nil
}

// preview renders v as JSON cut to previewLimit bytes.
func preview(v interface{}) string {
	var s string
	if str, ok := v.(string); ok {
		s = str
	} else {
		data, err := json.Marshal(v)
		if err != nil {
			s = fmt.Sprint(v)
		} else {
			s = string(data)
		}
	}
	if len(s) <= previewLimit {
		return s
	}
	return collab.Clip(s, previewLimit) + "…"
}

// record appends the agent's output to state as an opinion and emits it.
// extra is merged into the opinion event data.
func record(emit Emitter, state *collab.State, a *agent.Instance, out *agent.Output, phase string, wants bool, extra map[string]interface{}) (collab.Opinion, error) {
	op := state.AddOpinion(collab.Opinion{
		AgentID:         a.ID(),
		AgentName:       a.Name(),
		Content:         out.Content,
		Phase:           phase,
		WantsToContinue: wants,
		RespondingTo:    out.RespondingTo,
		InputTokens:     out.Usage.InputTokens,
		OutputTokens:    out.Usage.OutputTokens,
		Estimated:       out.Usage.Estimated,
	})
	data := map[string]interface{}{
		"agent_name":        op.AgentName,
		"content":           op.Content,
		"wants_to_continue": op.WantsToContinue,
		"round":             op.Round,
		"phase":             op.Phase,
		"input_tokens":      op.InputTokens,
		"output_tokens":     op.OutputTokens,
		"metadata": map[string]interface{}{
			"input_tokens":     op.InputTokens,
			"output_tokens":    op.OutputTokens,
			"tokens_estimated": op.Estimated,
			"model":            out.Model,
		},
	}
	for k, v := range extra {
		data[k] = v
	}
	return op, emit.Emit(EventOpinion, data, a.ID())
}

func status(emit Emitter, agentID string, message string, fields map[string]interface{}) error {
	data := map[string]interface{}{"message": message}
	for k, v := range fields {
		data[k] = v
	}
	return emit.Emit(EventStatus, data, agentID)
}
