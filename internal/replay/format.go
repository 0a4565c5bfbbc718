package replay

import (
	"fmt"

	"github.com/vinayprograms/conclave/internal/session"
)

const gutter = "      │          │   "

// formatEvent writes one timeline row, preceded by a marker when the
// round changes.
func (r *Replayer) formatEvent(event *session.Event, lastRound *int) {
	if event.Round > 0 && event.Round != *lastRound {
		fmt.Fprintln(r.output)
		fmt.Fprintf(r.output, "%s\n", roundStyle.Render(fmt.Sprintf("ROUND %d", event.Round)))
		fmt.Fprintln(r.output)
		*lastRound = event.Round
	}

	ts := timeStyle.Render(event.Timestamp.Format("15:04:05"))
	seqNum := seqStyle.Render(fmt.Sprintf("%d", event.SeqID))

	switch event.Type {
	case session.EventStatus:
		r.fmtStatus(seqNum, ts, event)
	case session.EventUser:
		r.fmtUser(seqNum, ts, event)
	case session.EventOpinion:
		r.fmtOpinion(seqNum, ts, event)
	case session.EventToolCall:
		r.fmtToolCall(seqNum, ts, event)
	case session.EventToolResult:
		r.fmtToolResult(seqNum, ts, event)
	case session.EventError:
		fmt.Fprintf(r.output, "%s │ %s │ %s %s\n", seqNum, ts,
			errorStyle.Render("ERROR"), valueStyle.Render(event.Error))
	default:
		fmt.Fprintf(r.output, "%s │ %s │ %s\n", seqNum, ts, dimStyle.Render(event.Type))
	}
}

func (r *Replayer) fmtStatus(seqNum, ts string, event *session.Event) {
	style := noticeStyle
	switch event.Phase {
	case "budget_warning":
		style = warnStyle
	case "budget_exceeded", "agent_error":
		style = errorStyle
	}
	label := "STATUS"
	if event.Phase != "" {
		label = "STATUS " + event.Phase
	}
	who := ""
	if event.Agent != "" {
		who = agentStyle.Render(event.Agent) + " "
	}
	fmt.Fprintf(r.output, "%s │ %s │ %s %s%s\n", seqNum, ts,
		style.Render(label), who, dimStyle.Render(truncateHint(firstLine(event.Content), 80)))
}

func (r *Replayer) fmtUser(seqNum, ts string, event *session.Event) {
	target := ""
	if event.AgentID != "" {
		target = dimStyle.Render(" → " + event.AgentID)
	}
	fmt.Fprintf(r.output, "%s │ %s │ %s%s\n", seqNum, ts, userStyle.Render("USER"), target)
	r.printContent(event.Content)
}

func (r *Replayer) fmtOpinion(seqNum, ts string, event *session.Event) {
	name := event.Agent
	if name == "" {
		name = event.AgentID
	}
	extra := ""
	if event.Meta != nil {
		tokens := fmt.Sprintf("%d→%d", event.Meta.TokensIn, event.Meta.TokensOut)
		if event.Meta.Estimated {
			tokens += "~"
		}
		extra = dimStyle.Render(" (" + tokens + ")")
	}
	fmt.Fprintf(r.output, "%s │ %s │ %s %s%s\n", seqNum, ts,
		agentStyle.Render(name), dimStyle.Render("["+event.Phase+"]"), extra)
	r.printOpinion(event.Content)
	if r.verbosity >= 1 {
		r.printMeta(event.Meta)
	}
}

func (r *Replayer) fmtToolCall(seqNum, ts string, event *session.Event) {
	hint := getArgsHint(event.Tool, event.Args)
	if hint != "" {
		hint = " " + dimStyle.Render(hint)
	}
	fmt.Fprintf(r.output, "%s │ %s │ %s %s%s %s\n", seqNum, ts,
		toolStyle.Render("TOOL →"), toolStyle.Render(event.Tool), hint, agentDimStyle.Render(getAgentPrefix(event)))
	if r.verbosity >= 1 {
		r.printArgs(event.Args)
	}
}

func (r *Replayer) fmtToolResult(seqNum, ts string, event *session.Event) {
	verdict := successStyle.Render("ok")
	if event.Success != nil && !*event.Success {
		verdict = errorStyle.Render("failed")
	}
	dur := ""
	if event.DurationMs > 0 {
		dur = dimStyle.Render(" " + formatDuration(event.DurationMs))
	}
	fmt.Fprintf(r.output, "%s │ %s │ %s %s %s%s\n", seqNum, ts,
		toolStyle.Render("TOOL ←"), toolStyle.Render(event.Tool), verdict, dur)
	if event.Error != "" {
		r.printError(event.Error)
	}
	if r.verbosity >= 2 {
		r.printContent(event.Content)
	}
}
