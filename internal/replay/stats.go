package replay

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/vinayprograms/conclave/internal/session"
)

// AgentStats aggregates one agent's activity.
type AgentStats struct {
	Name         string
	Opinions     int
	TokensIn     int
	TokensOut    int
	Estimated    bool
	ToolCalls    int
	ToolFailures int
}

// TokenCount is the usage of one model.
type TokenCount struct {
	In  int
	Out int
}

// Stats holds aggregate statistics for a transcript.
type Stats struct {
	TotalDurationMs int64
	Rounds          int
	UserMessages    int

	Agents map[string]*AgentStats
	Models map[string]*TokenCount

	ToolCalls    int
	ToolFailures int
	ToolTotalMs  int64
	ToolAvgMs    int64

	BudgetAlerts int
	Errors       int
}

// ComputeStats calculates aggregate statistics from transcript events.
func ComputeStats(sess *session.Session) *Stats {
	stats := &Stats{
		Agents: make(map[string]*AgentStats),
		Models: make(map[string]*TokenCount),
	}

	var first, last time.Time
	agent := func(e *session.Event) *AgentStats {
		key := e.AgentID
		if key == "" {
			key = e.Agent
		}
		a, ok := stats.Agents[key]
		if !ok {
			a = &AgentStats{Name: e.Agent}
			stats.Agents[key] = a
		}
		return a
	}

	for i := range sess.Events {
		e := &sess.Events[i]
		if first.IsZero() || e.Timestamp.Before(first) {
			first = e.Timestamp
		}
		if last.IsZero() || e.Timestamp.After(last) {
			last = e.Timestamp
		}
		if e.Round > stats.Rounds {
			stats.Rounds = e.Round
		}

		switch e.Type {
		case session.EventUser:
			stats.UserMessages++
		case session.EventOpinion:
			a := agent(e)
			a.Opinions++
			if e.Meta != nil {
				a.TokensIn += e.Meta.TokensIn
				a.TokensOut += e.Meta.TokensOut
				a.Estimated = a.Estimated || e.Meta.Estimated
				m, ok := stats.Models[e.Meta.Model]
				if !ok {
					m = &TokenCount{}
					stats.Models[e.Meta.Model] = m
				}
				m.In += e.Meta.TokensIn
				m.Out += e.Meta.TokensOut
			}
		case session.EventToolResult:
			a := agent(e)
			a.ToolCalls++
			stats.ToolCalls++
			stats.ToolTotalMs += e.DurationMs
			if e.Success != nil && !*e.Success {
				a.ToolFailures++
				stats.ToolFailures++
			}
		case session.EventStatus:
			if e.Phase == "budget_warning" || e.Phase == "budget_exceeded" {
				stats.BudgetAlerts++
			}
		case session.EventError:
			stats.Errors++
		}
	}

	if !first.IsZero() {
		stats.TotalDurationMs = last.Sub(first).Milliseconds()
	}
	if stats.ToolCalls > 0 {
		stats.ToolAvgMs = stats.ToolTotalMs / int64(stats.ToolCalls)
	}
	return stats
}

// TotalTokens sums input and output tokens over all agents.
func (s *Stats) TotalTokens() (in, out int) {
	for _, a := range s.Agents {
		in += a.TokensIn
		out += a.TokensOut
	}
	return in, out
}

// Cost estimates the USD cost of the usage. Models without a price use the
// "" entry; if there is none they are not counted.
func (s *Stats) Cost(pricing map[string]Pricing) float64 {
	var total float64
	for model, tc := range s.Models {
		p, ok := pricing[model]
		if !ok {
			p, ok = pricing[""]
		}
		if !ok {
			continue
		}
		total += float64(tc.In)/1e6*p.InputPer1M + float64(tc.Out)/1e6*p.OutputPer1M
	}
	return total
}

// PrintStats outputs the statistics to the writer.
func PrintStats(w io.Writer, stats *Stats) {
	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15"))

	fmt.Fprintln(w)
	fmt.Fprintln(w, headerStyle.Render("═══════════════════════════════════════════════════════════════════"))
	fmt.Fprintln(w, headerStyle.Render("                       EXECUTION STATISTICS                        "))
	fmt.Fprintln(w, headerStyle.Render("═══════════════════════════════════════════════════════════════════"))
	fmt.Fprintln(w)

	fmt.Fprintf(w, "%s %s\n", labelStyle.Render("Total Duration:"), valueStyle.Render(formatDuration(stats.TotalDurationMs)))
	fmt.Fprintf(w, "%s %s\n", labelStyle.Render("Rounds:"), valueStyle.Render(fmt.Sprint(stats.Rounds)))
	fmt.Fprintf(w, "%s %s\n", labelStyle.Render("User messages:"), valueStyle.Render(fmt.Sprint(stats.UserMessages)))
	if stats.BudgetAlerts > 0 {
		fmt.Fprintf(w, "%s %s\n", labelStyle.Render("Budget alerts:"), warnStyle.Render(fmt.Sprint(stats.BudgetAlerts)))
	}
	if stats.Errors > 0 {
		fmt.Fprintf(w, "%s %s\n", labelStyle.Render("Errors:"), errorStyle.Render(fmt.Sprint(stats.Errors)))
	}
	fmt.Fprintln(w)

	if len(stats.Agents) > 0 {
		fmt.Fprintln(w, headerStyle.Render("Agents:"))
		keys := make([]string, 0, len(stats.Agents))
		for k := range stats.Agents {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool { return stats.Agents[keys[i]].Name < stats.Agents[keys[j]].Name })
		for _, k := range keys {
			a := stats.Agents[k]
			tokens := fmt.Sprintf("%d→%d", a.TokensIn, a.TokensOut)
			if a.Estimated {
				tokens += " (estimated)"
			}
			fmt.Fprintf(w, "  %s %s %s %s\n",
				agentStyle.Render(a.Name+":"),
				valueStyle.Render(fmt.Sprintf("%d opinions", a.Opinions)),
				labelStyle.Render("tokens"), valueStyle.Render(tokens))
			if a.ToolCalls > 0 {
				fmt.Fprintf(w, "    %s %s\n", labelStyle.Render("tools:"),
					valueStyle.Render(fmt.Sprintf("%d calls, %d failed", a.ToolCalls, a.ToolFailures)))
			}
		}
		fmt.Fprintln(w)
	}

	if stats.ToolCalls > 0 {
		fmt.Fprintln(w, headerStyle.Render("Tool Calls:"))
		fmt.Fprintf(w, "  %s %s\n", labelStyle.Render("Calls:"), valueStyle.Render(fmt.Sprint(stats.ToolCalls)))
		fmt.Fprintf(w, "  %s %s\n", labelStyle.Render("Failed:"), valueStyle.Render(fmt.Sprint(stats.ToolFailures)))
		fmt.Fprintf(w, "  %s %s\n", labelStyle.Render("Average:"), valueStyle.Render(formatDuration(stats.ToolAvgMs)))
		fmt.Fprintln(w)
	}
}

// PrintTokenUsage prints token totals and, when pricing is known, the
// estimated cost.
func PrintTokenUsage(w io.Writer, stats *Stats, pricing map[string]Pricing) {
	in, out := stats.TotalTokens()
	if in == 0 && out == 0 {
		return
	}
	fmt.Fprintf(w, "%s %s\n", labelStyle.Render("Tokens:"),
		valueStyle.Render(fmt.Sprintf("%d in, %d out", in, out)))
	if len(pricing) > 0 {
		fmt.Fprintf(w, "%s %s\n", labelStyle.Render("Est. cost:"),
			valueStyle.Render(fmt.Sprintf("$%.4f", stats.Cost(pricing))))
	}
}

// formatDuration formats milliseconds as a human-readable duration.
func formatDuration(ms int64) string {
	if ms < 1000 {
		return fmt.Sprintf("%dms", ms)
	}
	if ms < 60000 {
		return fmt.Sprintf("%.2fs", float64(ms)/1000)
	}
	mins := ms / 60000
	secs := (ms % 60000) / 1000
	return fmt.Sprintf("%dm%ds", mins, secs)
}
