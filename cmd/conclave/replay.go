package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/vinayprograms/conclave/internal/config"
	"github.com/vinayprograms/conclave/internal/replay"
)

// Run implements ReplayCmd.
func (c *ReplayCmd) Run(cli *CLI) error {
	cfg, err := loadConfig(cli.Config)
	if err != nil {
		return err
	}

	opts := pricingOptions(cfg)
	for _, spec := range c.Cost {
		model, inPrice, outPrice, err := parseCostSpec(spec)
		if err != nil {
			return fmt.Errorf("invalid --cost spec %q: %w", spec, err)
		}
		opts = append(opts, replay.WithModelPricing(model, inPrice, outPrice))
	}

	files, err := expandPaths(c.Sessions, cfg.TranscriptDir())
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no transcripts found")
	}

	if c.Follow {
		if len(files) != 1 {
			return fmt.Errorf("--follow only works with a single transcript")
		}
		return replay.New(os.Stdout, c.Verbose, opts...).ReplayFileLive(files[0])
	}

	m := replay.NewMulti(os.Stdout, c.Verbose, opts...)
	if !c.NoPager && isTerminal(os.Stdout) {
		return m.ReplayFilesInteractive(files)
	}
	return m.ReplayFiles(files)
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.LoadOptional(config.DefaultFile)
}

// pricingOptions turns [pricing.<model>] into replay prices.
func pricingOptions(cfg *config.Config) []replay.ReplayerOption {
	var opts []replay.ReplayerOption
	for model, p := range cfg.Pricing {
		opts = append(opts, replay.WithModelPricing(model, p.InputPer1M, p.OutputPer1M))
	}
	return opts
}

// parseCostSpec parses "model:input,output" format.
func parseCostSpec(spec string) (string, float64, float64, error) {
	model, prices, ok := strings.Cut(spec, ":")
	if !ok {
		return "", 0, 0, fmt.Errorf("expected model:input,output format")
	}
	if model == "" {
		return "", 0, 0, fmt.Errorf("model name cannot be empty")
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

// expandPaths resolves each argument to transcript files. An argument may
// be a file, a directory (all *.jsonl inside), a glob pattern, or an
// execution id found in transcriptDir.
func expandPaths(args []string, transcriptDir string) ([]string, error) {
	var files []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		switch {
		case err == nil && info.IsDir():
			matches, err := doublestar.FilepathGlob(filepath.Join(arg, "*.jsonl"))
			if err != nil {
				return nil, err
			}
			files = append(files, matches...)
		case err == nil:
			files = append(files, arg)
		case strings.ContainsAny(arg, "*?[{"):
			matches, err := doublestar.FilepathGlob(arg)
			if err != nil {
				return nil, fmt.Errorf("invalid pattern %s: %w", arg, err)
			}
			files = append(files, matches...)
		default:
			path := filepath.Join(transcriptDir, arg+".jsonl")
			if _, err := os.Stat(path); err != nil {
				return nil, fmt.Errorf("cannot access %s: not a file or known execution", arg)
			}
			files = append(files, path)
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
