package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/vinayprograms/conclave/internal/eventbus"
	"github.com/vinayprograms/conclave/internal/execution"
	"github.com/vinayprograms/conclave/internal/store"
)

var (
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	agentStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("13"))
	userStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15"))
	toolStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	infoStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	headStyle  = lipgloss.NewStyle().Bold(true)
)

// printer writes execution events as they happen.
type printer struct {
	out  io.Writer
	json bool
	mu   sync.Mutex
}

func (p *printer) listen(env eventbus.Envelope) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.json {
		data, err := json.Marshal(env)
		if err == nil {
			fmt.Fprintln(p.out, string(data))
		}
		return
	}
	if line := eventLine(env); line != "" {
		fmt.Fprintln(p.out, line)
	}
}

// eventLine renders one event for the terminal.
func eventLine(env eventbus.Envelope) string {
	d := env.Data
	str := func(k string) string {
		s, _ := d[k].(string)
		return s
	}

	switch env.EventType {
	case "status":
		style := infoStyle
		switch str("phase") {
		case "budget_warning":
			style = warnStyle
		case "budget_exceeded", "agent_error":
			style = errStyle
		}
		msg := str("message")
		if msg == "" {
			msg = str("status")
		}
		if phase := str("phase"); phase != "" {
			msg += " " + dimStyle.Render("["+phase+"]")
		}
		return style.Render("· ") + msg
	case "user":
		return "\n" + userStyle.Render("you ▸ ") + str("content")
	case "opinion":
		header := agentStyle.Render(str("agent_name")) + " " + dimStyle.Render(fmt.Sprintf("[%s, round %v]", str("phase"), d["round"]))
		return "\n" + header + "\n" + strings.TrimRight(str("content"), "\n")
	case "tool_call":
		return toolStyle.Render("  → ") + dimStyle.Render(str("agent_name")+" ") + str("content")
	case "tool_result":
		if ok, _ := d["ok"].(bool); !ok {
			return errStyle.Render("  ← ") + str("content")
		}
		return toolStyle.Render("  ← ") + str("content")
	case "error":
		return errStyle.Render("✗ " + str("message"))
	}
	return ""
}

func printJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func printExecutions(w io.Writer, page *execution.Page) {
	if len(page.Items) == 0 {
		fmt.Fprintln(w, "No executions.")
		return
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(dimStyle).
		Headers("ID", "TEAM", "STATUS", "ROUND", "TOKENS", "COST", "CREATED", "TITLE")
	for _, e := range page.Items {
		t.Row(e.ID, e.TeamID, e.Status,
			fmt.Sprint(e.CurrentRound),
			fmt.Sprintf("%d/%d", e.TokensUsed, e.TokensBudget),
			fmt.Sprintf("$%.4f", e.Cost),
			e.CreatedAt.Format("2006-01-02 15:04"),
			e.Title)
	}
	fmt.Fprintln(w, t)
	fmt.Fprintln(w, dimStyle.Render(fmt.Sprintf("page %d of %d (%d total)", page.Page, page.TotalPages, page.Total)))
}

func printTeams(w io.Writer, teams []store.Team) {
	if len(teams) == 0 {
		fmt.Fprintln(w, "No teams.")
		return
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(dimStyle).
		Headers("ID", "NAME", "MODE", "AGENTS", "MAX ROUNDS")
	for _, tm := range teams {
		t.Row(tm.ID, tm.Name, tm.CollaborationMode, fmt.Sprint(len(tm.Members)), fmt.Sprint(tm.MaxRounds))
	}
	fmt.Fprintln(w, t)
}

func printDetail(w io.Writer, d *execution.Detail) {
	e := d.Execution
	row := func(label, value string) {
		if value != "" {
			fmt.Fprintf(w, "%s %s\n", dimStyle.Render(fmt.Sprintf("%-10s", label+":")), value)
		}
	}
	fmt.Fprintln(w, headStyle.Render("EXECUTION "+e.ID))
	row("Title", e.Title)
	row("Team", e.TeamID)
	row("Status", e.Status)
	row("Round", fmt.Sprint(e.CurrentRound))
	row("Tokens", fmt.Sprintf("%d / %d", e.TokensUsed, e.TokensBudget))
	row("Cost", fmt.Sprintf("$%.4f / $%.2f", e.Cost, e.CostBudget))
	row("Workspace", e.WorkspacePath)
	row("Created", e.CreatedAt.Format(time.RFC3339))
	row("Error", e.ErrorMessage)

	if len(d.Messages) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, headStyle.Render("MESSAGES"))
	}
	for _, m := range d.Messages {
		name := agentStyle.Render(m.SenderName)
		if m.SenderType == execution.SenderUser {
			name = userStyle.Render(m.SenderName)
		}
		fmt.Fprintf(w, "\n%s %s %s\n%s\n", dimStyle.Render(fmt.Sprintf("#%d", m.Sequence)), name,
			dimStyle.Render(fmt.Sprintf("[%s, round %d]", m.Phase, m.Round)), strings.TrimRight(m.Content, "\n"))
	}
	if e.FinalOutput != "" {
		fmt.Fprintln(w)
		fmt.Fprintln(w, headStyle.Render("FINAL OUTPUT"))
		fmt.Fprintln(w, e.FinalOutput)
	}
}
