// Package main is the entry point for conclave-replay, a standalone viewer
// for execution transcripts.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/vinayprograms/conclave/internal/replay"
)

// Build-time variables
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

// options are the parsed command line.
type options struct {
	verbosity int
	noPager   bool
	follow    bool
	costSpecs []string
	paths     []string
	help      bool
	version   bool
}

func main() {
	opts, err := parseArgs(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	switch {
	case opts.help:
		printUsage()
		return
	case opts.version:
		fmt.Printf("conclave-replay version %s (commit: %s, built: %s)\n", version, commit, buildTime)
		return
	case len(opts.paths) == 0:
		printUsage()
		os.Exit(1)
	}

	if err := run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func parseArgs(args []string) (*options, error) {
	o := &options{}
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "-vv":
			o.verbosity = 2
		case arg == "-v" || arg == "--verbose":
			if o.verbosity < 1 {
				o.verbosity = 1
			}
		case arg == "--no-pager":
			o.noPager = true
		case arg == "-f" || arg == "--follow":
			o.follow = true
		case arg == "--cost":
			if i+1 >= len(args) {
				return nil, fmt.Errorf("--cost requires a value (model:input,output)")
			}
			i++
			o.costSpecs = append(o.costSpecs, args[i])
		case strings.HasPrefix(arg, "--cost="):
			o.costSpecs = append(o.costSpecs, strings.TrimPrefix(arg, "--cost="))
		case arg == "-h" || arg == "--help":
			o.help = true
		case arg == "--version":
			o.version = true
		case !strings.HasPrefix(arg, "-"):
			o.paths = append(o.paths, arg)
		default:
			return nil, fmt.Errorf("unknown flag: %s", arg)
		}
	}
	return o, nil
}

func run(o *options) error {
	var ropts []replay.ReplayerOption
	for _, spec := range o.costSpecs {
		model, in, out, err := parseCostSpec(spec)
		if err != nil {
			return fmt.Errorf("invalid --cost %q: %w", spec, err)
		}
		ropts = append(ropts, replay.WithModelPricing(model, in, out))
	}

	if o.follow {
		if len(o.paths) != 1 {
			return fmt.Errorf("--follow only works with a single transcript")
		}
		info, err := os.Stat(o.paths[0])
		if err != nil {
			return err
		}
		if info.IsDir() {
			return fmt.Errorf("--follow requires a file, not a directory")
		}
		return replay.New(os.Stdout, o.verbosity, ropts...).ReplayFileLive(o.paths[0])
	}

	files, err := expandPaths(o.paths)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no transcripts found")
	}

	r := replay.NewMulti(os.Stdout, o.verbosity, ropts...)
	if !o.noPager && isTerminal(os.Stdout) {
		return r.ReplayFilesInteractive(files)
	}
	return r.ReplayFiles(files)
}

// parseCostSpec parses "model:input,output" format.
func parseCostSpec(spec string) (string, float64, float64, error) {
	model, prices, ok := strings.Cut(spec, ":")
	if !ok || model == "" {
		return "", 0, 0, fmt.Errorf("expected model:input,output format")
	}
	in, out, ok := strings.Cut(prices, ",")
	if !ok {
		return "", 0, 0, fmt.Errorf("expected input,output prices")
	}
	inPrice, err := strconv.ParseFloat(strings.TrimSpace(in), 64)
	if err != nil {
		return "", 0, 0, fmt.Errorf("invalid input price: %w", err)
	}
	outPrice, err := strconv.ParseFloat(strings.TrimSpace(out), 64)
	if err != nil {
		return "", 0, 0, fmt.Errorf("invalid output price: %w", err)
	}
	return model, inPrice, outPrice, nil
}

func printUsage() {
	fmt.Println(`conclave-replay - Viewer for conclave execution transcripts

Usage:
  conclave-replay [options] <transcript.jsonl>...
  conclave-replay [options] <directory>
  conclave-replay -f <transcript.jsonl>   # Live mode

Options:
  -f, --follow         Watch a transcript and reload as events arrive
  -v, --verbose        Show arguments, longer opinions and model details
  -vv                  Very verbose: full opinions and tool output
  --cost MODEL:IN,OUT  Model pricing (per 1M tokens). Repeatable.
  --no-pager           Disable interactive pager (for piping)
  --version            Show version
  -h, --help           Show this help

Navigation (interactive mode):
  ↑/↓, j/k          Scroll line by line
  PgUp/PgDn         Scroll by page
  g/G               Jump to top/bottom
  /, n/N            Search, next/previous match
  f                 Follow (jump to bottom, useful in live mode)
  q, Esc            Quit`)
}

// expandPaths takes files and directories and returns all transcripts.
func expandPaths(paths []string) ([]string, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("cannot access %s: %w", p, err)
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		entries, err := os.ReadDir(p)
		if err != nil {
			return nil, fmt.Errorf("cannot read directory %s: %w", p, err)
		}
		for _, entry := range entries {
			if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".jsonl") {
				files = append(files, filepath.Join(p, entry.Name()))
			}
		}
	}
	return files, nil
}

// isTerminal checks if the given file is a terminal.
func isTerminal(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}
