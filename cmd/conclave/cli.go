// Package main defines the CLI structure using kong.
package main

import "github.com/alecthomas/kong"

// CLI defines the command-line interface.
type CLI struct {
	Config string `short:"c" help:"Config file path (default: ./conclave.toml if present)" type:"path"`

	Run       RunCmd       `cmd:"" help:"Create an execution for a team and run its first round"`
	Followup  FollowupCmd  `cmd:"" help:"Run another round of a paused or completed execution"`
	List      ListCmd      `cmd:"" help:"List executions, newest first"`
	Show      ShowCmd      `cmd:"" help:"Show an execution and its recent messages"`
	Control   ControlCmd   `cmd:"" help:"Pause, resume, stop or extend the budget of an execution"`
	Workspace WorkspaceCmd `cmd:"" help:"Set the directory an execution's tools are confined to"`
	Delete    DeleteCmd    `cmd:"" help:"Delete an execution, its messages, transcript and checkpoints"`
	Team      TeamCmd      `cmd:"" help:"Manage teams"`
	Replay    ReplayCmd    `cmd:"" help:"Replay execution transcripts"`
	Setup     SetupCmd     `cmd:"" help:"Interactive setup wizard"`
	Version   VersionCmd   `cmd:"" help:"Show version information"`
}

// RunCmd creates and starts an execution.
type RunCmd struct {
	Team      string   `arg:"" help:"Team id"`
	Input     []string `arg:"" optional:"" sep:"none" help:"Topic for the first round (empty parks the execution awaiting input)"`
	Title     string   `help:"Execution title (default: derived from the input)"`
	Tokens    int      `help:"Token budget (default: [budget].max_tokens)"`
	Cost      float64  `help:"Cost budget in USD (default: [budget].max_cost)"`
	Profile   string   `short:"p" help:"Model profile for agents without their own model"`
	Provider  string   `help:"Provider for agents without their own model"`
	Model     string   `short:"m" help:"Model for agents without their own model"`
	Workspace string   `short:"w" help:"Workspace directory for file tools" type:"path"`
	JSON      bool     `help:"Print events as JSON lines"`
}

// FollowupCmd continues an execution with new input.
type FollowupCmd struct {
	ID    string   `arg:"" help:"Execution id"`
	Input []string `arg:"" sep:"none" help:"Follow-up message"`
	Agent string   `short:"a" help:"Address a single agent by id"`
	JSON  bool     `help:"Print events as JSON lines"`
}

// ListCmd lists executions.
type ListCmd struct {
	Team     string `help:"Only executions of this team"`
	Status   string `help:"Only executions with this status (pending, running, paused, completed, failed)"`
	Page     int    `default:"1" help:"Page number"`
	PageSize int    `default:"20" help:"Executions per page (1-100)"`
	JSON     bool   `help:"Print as JSON"`
}

// ShowCmd shows one execution.
type ShowCmd struct {
	ID   string `arg:"" help:"Execution id"`
	JSON bool   `help:"Print as JSON"`
}

// ControlCmd applies a lifecycle action.
type ControlCmd struct {
	ID     string   `arg:"" help:"Execution id"`
	Action string   `arg:"" enum:"pause,resume,stop,extend_budget" help:"pause, resume, stop or extend_budget"`
	Tokens int     `default:"-1" help:"Tokens to add with extend_budget (default: [budget].extend_tokens)"`
	Cost   float64 `default:"-1" help:"Cost to add with extend_budget (default: [budget].extend_cost)"`
}

// WorkspaceCmd sets or clears an execution's workspace.
type WorkspaceCmd struct {
	ID   string `arg:"" help:"Execution id"`
	Path string `arg:"" optional:"" help:"Workspace directory (omit to clear)" type:"path"`
}

// DeleteCmd deletes an execution.
type DeleteCmd struct {
	ID string `arg:"" help:"Execution id"`
}

// TeamCmd groups team subcommands.
type TeamCmd struct {
	Import TeamImportCmd `cmd:"" help:"Import a team manifest (YAML)"`
	List   TeamListCmd   `cmd:"" help:"List teams"`
}

// TeamImportCmd imports a manifest.
type TeamImportCmd struct {
	File string `arg:"" help:"Manifest file" type:"existingfile"`
}

// TeamListCmd lists teams.
type TeamListCmd struct {
	JSON bool `help:"Print as JSON"`
}

// ReplayCmd replays transcripts.
type ReplayCmd struct {
	Sessions []string `arg:"" sep:"none" help:"Transcript files, directories, glob patterns or execution ids"`
	Verbose  int      `short:"v" type:"counter" help:"Verbosity level (-v, -vv)"`
	NoPager  bool     `help:"Disable pager for output"`
	Follow   bool     `short:"f" help:"Watch a single transcript for new events"`
	Cost     []string `sep:"none" help:"Model pricing: model:input,output (per 1M tokens). Repeatable." placeholder:"MODEL:IN,OUT"`
}

// SetupCmd runs the setup wizard.
type SetupCmd struct{}

// VersionCmd shows version information.
type VersionCmd struct{}

// kongVars returns variables for kong (version info).
func kongVars() kong.Vars {
	return kong.Vars{
		"version": version,
	}
}
