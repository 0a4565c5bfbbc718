package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/vinayprograms/conclave/internal/config"
	"github.com/vinayprograms/conclave/internal/execution"
	"github.com/vinayprograms/conclave/internal/setup"
	"github.com/vinayprograms/conclave/internal/store"
	"github.com/vinayprograms/conclave/internal/team"
)

// signalContext cancels on interrupt. Provider calls already in flight are
// not cancelled; the round stops at the next check.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

// Run implements RunCmd.
func (c *RunCmd) Run(cli *CLI) error {
	p := &printer{out: os.Stdout, json: c.JSON}
	rt, err := newRuntime(cli, p.listen)
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, cancel := signalContext()
	defer cancel()

	req := execution.CreateRequest{
		TeamID:       c.Team,
		Input:        strings.Join(c.Input, " "),
		Title:        c.Title,
		TokensBudget: c.Tokens,
		CostBudget:   c.Cost,
		Workspace:    c.Workspace,
	}
	if c.Profile != "" || c.Model != "" {
		req.LLM = &store.LLMSelection{Profile: c.Profile, Provider: c.Provider, Model: c.Model}
	}
	exec, err := rt.driver.Create(ctx, req)
	if err != nil {
		return err
	}
	if !c.JSON {
		fmt.Println(dimStyle.Render("execution " + exec.ID))
	}
	if err := rt.driver.Start(ctx, exec.ID); err != nil {
		return err
	}
	if c.JSON {
		return nil
	}
	return printOutcome(ctx, rt, exec.ID)
}

// Run implements FollowupCmd.
func (c *FollowupCmd) Run(cli *CLI) error {
	p := &printer{out: os.Stdout, json: c.JSON}
	rt, err := newRuntime(cli, p.listen)
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, cancel := signalContext()
	defer cancel()

	if err := rt.driver.Followup(ctx, c.ID, strings.Join(c.Input, " "), c.Agent); err != nil {
		return err
	}
	if c.JSON {
		return nil
	}
	return printOutcome(ctx, rt, c.ID)
}

// printOutcome reports how the round ended.
func printOutcome(ctx context.Context, rt *runtime, id string) error {
	d, err := rt.driver.Show(ctx, id)
	if err != nil {
		return err
	}
	e := d.Execution
	fmt.Println()
	switch e.Status {
	case store.StatusFailed:
		fmt.Println(errStyle.Render("failed: " + e.ErrorMessage))
	case store.StatusPaused:
		fmt.Println(warnStyle.Render("paused") + dimStyle.Render(fmt.Sprintf(" (conclave followup %s <message>)", e.ID)))
	default:
		fmt.Println(headStyle.Render("FINAL OUTPUT"))
		fmt.Println(e.FinalOutput)
	}
	fmt.Println(dimStyle.Render(fmt.Sprintf("round %d · %d tokens · $%.4f", e.CurrentRound, e.TokensUsed, e.Cost)))
	return nil
}

// Run implements ListCmd.
func (c *ListCmd) Run(cli *CLI) error {
	rt, err := newRuntime(cli, nil)
	if err != nil {
		return err
	}
	defer rt.Close()

	page, err := rt.driver.List(context.Background(), execution.ListOptions{
		TeamID:   c.Team,
		Status:   c.Status,
		Page:     c.Page,
		PageSize: c.PageSize,
	})
	if err != nil {
		return err
	}
	if c.JSON {
		return printJSON(os.Stdout, page)
	}
	printExecutions(os.Stdout, page)
	return nil
}

// Run implements ShowCmd.
func (c *ShowCmd) Run(cli *CLI) error {
	rt, err := newRuntime(cli, nil)
	if err != nil {
		return err
	}
	defer rt.Close()

	d, err := rt.driver.Show(context.Background(), c.ID)
	if err != nil {
		return err
	}
	if c.JSON {
		return printJSON(os.Stdout, d)
	}
	printDetail(os.Stdout, d)
	return nil
}

// Run implements ControlCmd.
func (c *ControlCmd) Run(cli *CLI) error {
	rt, err := newRuntime(cli, nil)
	if err != nil {
		return err
	}
	defer rt.Close()

	var params execution.ControlParams
	if c.Tokens >= 0 {
		params.Tokens = &c.Tokens
	}
	if c.Cost >= 0 {
		params.Cost = &c.Cost
	}
	exec, err := rt.driver.Control(context.Background(), c.ID, c.Action, params)
	if err != nil {
		return err
	}
	fmt.Printf("%s %s (tokens %d/%d, cost $%.4f/$%.2f)\n", exec.ID, exec.Status,
		exec.TokensUsed, exec.TokensBudget, exec.Cost, exec.CostBudget)
	return nil
}

// Run implements WorkspaceCmd.
func (c *WorkspaceCmd) Run(cli *CLI) error {
	rt, err := newRuntime(cli, nil)
	if err != nil {
		return err
	}
	defer rt.Close()

	exec, err := rt.driver.SetWorkspace(context.Background(), c.ID, c.Path)
	if err != nil {
		return err
	}
	if exec.WorkspacePath == "" {
		fmt.Printf("%s: workspace cleared\n", exec.ID)
	} else {
		fmt.Printf("%s: workspace %s\n", exec.ID, exec.WorkspacePath)
	}
	return nil
}

// Run implements DeleteCmd.
func (c *DeleteCmd) Run(cli *CLI) error {
	rt, err := newRuntime(cli, nil)
	if err != nil {
		return err
	}
	defer rt.Close()

	if err := rt.driver.Delete(context.Background(), c.ID); err != nil {
		return err
	}
	fmt.Printf("deleted %s\n", c.ID)
	return nil
}

// Run implements TeamImportCmd.
func (c *TeamImportCmd) Run(cli *CLI) error {
	m, err := team.Load(c.File)
	if err != nil {
		return err
	}
	rt, err := newRuntime(cli, nil)
	if err != nil {
		return err
	}
	defer rt.Close()

	t, err := team.Import(context.Background(), rt.store, m)
	if err != nil {
		return err
	}
	fmt.Printf("imported team %s (%s, %d agents)\n", t.ID, t.CollaborationMode, len(t.Members))
	return nil
}

// Run implements TeamListCmd.
func (c *TeamListCmd) Run(cli *CLI) error {
	rt, err := newRuntime(cli, nil)
	if err != nil {
		return err
	}
	defer rt.Close()

	teams, err := rt.store.ListTeams(context.Background())
	if err != nil {
		return err
	}
	if c.JSON {
		return printJSON(os.Stdout, teams)
	}
	printTeams(os.Stdout, teams)
	return nil
}

// Run implements SetupCmd. The wizard writes to --config when given.
func (c *SetupCmd) Run(cli *CLI) error {
	path := cli.Config
	if path == "" {
		path = config.DefaultFile
	}
	return setup.Run(path)
}
