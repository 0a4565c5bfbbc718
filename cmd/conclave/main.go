// Package main is the entry point for the conclave CLI.
package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
	"github.com/vinayprograms/agentkit/credentials"
)

// Build-time variables (set via ldflags)
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

// globalCreds holds loaded credentials (file > env fallback happens in apiKey)
var globalCreds *credentials.Credentials

func init() {
	if creds, _, err := credentials.Load(); err == nil && creds != nil {
		globalCreds = creds
	}
	_ = godotenv.Load()
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("conclave"),
		kong.Description("Teams of LLM agents collaborating on a topic in roundtable, pipeline or debate mode."),
		kong.UsageOnError(),
		kong.Vars(kongVars()),
	)
	if err := ctx.Run(&cli); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// apiKey returns the credential for a provider, empty when unknown so the
// resolver can fall back to the environment.
func apiKey(provider string) string {
	if globalCreds == nil {
		return ""
	}
	return globalCreds.GetAPIKey(provider)
}

// Run implements VersionCmd.
func (c *VersionCmd) Run() error {
	fmt.Printf("conclave version %s (commit: %s, built: %s)\n", version, commit, buildTime)
	return nil
}
