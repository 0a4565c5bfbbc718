package replay

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/vinayprograms/conclave/internal/collab"
	"github.com/vinayprograms/conclave/internal/session"
)

// printContent prints content with timeline indentation.
func (r *Replayer) printContent(content string) {
	for _, line := range strings.Split(content, "\n") {
		fmt.Fprintf(r.output, "%s%s\n", gutter, line)
	}
}

// printOpinion prints an agent's contribution, cut to a few lines unless
// verbose.
func (r *Replayer) printOpinion(content string) {
	lines := strings.Split(strings.TrimRight(content, "\n"), "\n")
	maxLines := 10
	switch {
	case r.verbosity >= 2:
		maxLines = len(lines)
	case r.verbosity == 1:
		maxLines = 50
	}

	for i, line := range lines {
		if i >= maxLines {
			fmt.Fprintf(r.output, "%s%s\n", gutter,
				agentDimStyle.Render(fmt.Sprintf("... (%d more lines)", len(lines)-maxLines)))
			break
		}
		fmt.Fprintf(r.output, "%s%s\n", gutter, line)
	}
}

// printArgs prints tool arguments in key order.
func (r *Replayer) printArgs(args map[string]interface{}) {
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(r.output, "%s%s %s\n", gutter, labelStyle.Render(k+":"), truncateContent(fmt.Sprint(args[k]), 200))
	}
}

func (r *Replayer) printError(err string) {
	fmt.Fprintf(r.output, "%s%s\n", gutter, errorStyle.Render(err))
}

// printMeta prints the model and continuation flag of an opinion.
func (r *Replayer) printMeta(meta *session.EventMeta) {
	if meta == nil {
		return
	}
	line := labelStyle.Render("model:") + " " + valueStyle.Render(meta.Model)
	if meta.WantsToContinue != nil {
		line += "  " + labelStyle.Render("continue:") + " " + valueStyle.Render(fmt.Sprint(*meta.WantsToContinue))
	}
	if meta.MessageSeq > 0 {
		line += "  " + labelStyle.Render("message:") + " " + valueStyle.Render(fmt.Sprint(meta.MessageSeq))
	}
	fmt.Fprintf(r.output, "%s%s\n", gutter, line)
}

func (r *Replayer) statusStyle(status string) lipgloss.Style {
	switch status {
	case session.StatusCompleted:
		return successStyle
	case session.StatusFailed:
		return errorStyle
	default:
		return warnStyle
	}
}

// getAgentPrefix names the agent that issued a tool call.
func getAgentPrefix(event *session.Event) string {
	if event.Agent != "" {
		return "(" + event.Agent + ")"
	}
	return ""
}

// getArgsHint picks the most telling argument of a tool call.
func getArgsHint(tool string, args map[string]interface{}) string {
	if args == nil {
		return ""
	}
	var keys []string
	switch tool {
	case "search_content", "search_files":
		keys = []string{"pattern", "path"}
	case "find_definition", "find_references":
		keys = []string{"name", "path"}
	default:
		keys = []string{"path"}
	}
	var parts []string
	for _, k := range keys {
		if v, ok := args[k].(string); ok && v != "" {
			parts = append(parts, v)
		}
	}
	return truncateHint(strings.Join(parts, " in "), 60)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func truncateHint(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return collab.Clip(s, n-3) + "..."
}

func truncateContent(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return collab.Clip(s, n) + fmt.Sprintf("... (%d bytes)", len(s))
}
