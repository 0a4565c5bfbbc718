package agent

import (
	"fmt"
	"strings"

	"github.com/vinayprograms/conclave/internal/llm"
)

const toolUsageNote = "You can call tools to read, search or modify files in the working directory when needed. " +
	"Only call a tool when it is genuinely necessary, and cite what the tools returned in your final answer."

const initialInstruction = `Give your professional view on the topic above.

Requirements:
1. Analyze it from your own area of expertise
2. Make concrete, insightful points
3. If other experts have spoken, you may refer to them but think independently

Output your view directly, without a preamble.`

const respondInstruction = `Respond to the other experts' views.

You may:
1. Add to your own position
2. Challenge or disagree with a specific expert's view
3. Agree with a view and explain why
4. If you have nothing new to add, say so briefly

Output your response directly, without a preamble.`

// buildMessages assembles [persona, tool note?, context, instruction].
func (a *Instance) buildMessages(turn Turn, toolsEnabled bool) []llm.Message {
	messages := []llm.Message{{Role: llm.RoleSystem, Content: a.cfg.SystemPrompt}}
	if toolsEnabled {
		messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: toolUsageNote})
	}
	instruction := respondInstruction
	if turn.Phase == PhaseInitial {
		instruction = initialInstruction
	}
	return append(messages,
		llm.Message{Role: llm.RoleUser, Content: a.contextBlock(turn)},
		llm.Message{Role: llm.RoleUser, Content: instruction},
	)
}

func (a *Instance) contextBlock(turn Turn) string {
	parts := []string{"## Current topic\n" + turn.Topic}
	if strings.TrimSpace(turn.Summary) != "" {
		parts = append(parts, "## Discussion summary\n"+turn.Summary)
	}
	if len(turn.Peers) > 0 {
		lines := make([]string, 0, len(turn.Peers))
		for _, p := range turn.Peers {
			name := p.AgentName
			if name == "" {
				name = "unknown"
			}
			lines = append(lines, fmt.Sprintf("- **%s**: %s", name, p.Content))
		}
		parts = append(parts, "## Other participants' views\n"+strings.Join(lines, "\n"))
	}
	if len(a.history) > 0 {
		start := len(a.history) - historyWindow
		if start < 0 {
			start = 0
		}
		mine := make([]string, 0, historyWindow)
		for _, s := range a.history[start:] {
			mine = append(mine, "- "+s)
		}
		parts = append(parts, "## Your previous views\n"+strings.Join(mine, "\n"))
	}
	return strings.Join(parts, "\n\n")
}
