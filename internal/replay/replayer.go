package replay

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/vinayprograms/conclave/internal/session"
)

// Pricing is the USD price per million tokens of one model.
type Pricing struct {
	InputPer1M  float64
	OutputPer1M float64
}

// Replayer formats transcript events for review.
type Replayer struct {
	output         io.Writer
	verbosity      int // 0=normal, 1=verbose (-v), 2=very verbose (-vv)
	maxContentSize int // 0 = unlimited
	pricing        map[string]Pricing
}

// ReplayerOption configures a Replayer.
type ReplayerOption func(*Replayer)

// WithMaxContentSize limits the size of loaded content fields.
func WithMaxContentSize(size int) ReplayerOption {
	return func(r *Replayer) {
		r.maxContentSize = size
	}
}

// WithModelPricing adds the price of a model for cost estimates. An empty model
// name sets the price used for models without their own.
func WithModelPricing(model string, inputPer1M, outputPer1M float64) ReplayerOption {
	return func(r *Replayer) {
		if r.pricing == nil {
			r.pricing = make(map[string]Pricing)
		}
		r.pricing[model] = Pricing{InputPer1M: inputPer1M, OutputPer1M: outputPer1M}
	}
}

// New creates a new Replayer.
func New(output io.Writer, verbosity int, opts ...ReplayerOption) *Replayer {
	r := &Replayer{
		output:         output,
		verbosity:      verbosity,
		maxContentSize: 50 * 1024,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ReplayFile loads and replays a transcript.
func (r *Replayer) ReplayFile(path string) error {
	sess, err := r.loadSession(path)
	if err != nil {
		return err
	}
	return r.Replay(sess)
}

// ReplayFileInteractive loads a transcript into the interactive pager.
func (r *Replayer) ReplayFileInteractive(path string) error {
	sess, err := r.loadSession(path)
	if err != nil {
		return err
	}
	return r.ReplayInteractive(sess)
}

// ReplayInteractive shows the timeline in the interactive pager.
func (r *Replayer) ReplayInteractive(sess *session.Session) error {
	content, err := r.Render(sess)
	if err != nil {
		return err
	}
	p := NewPager(fmt.Sprintf("Execution: %s", sess.ID))
	return p.Run(content)
}

// ReplayFileLive follows a transcript that is still being written.
func (r *Replayer) ReplayFileLive(path string) error {
	renderFunc := func() (string, error) {
		sess, err := r.loadSession(path)
		if err != nil {
			return "", err
		}
		return r.Render(sess)
	}

	sess, err := r.loadSession(path)
	if err != nil {
		return err
	}
	p := NewPager(fmt.Sprintf("Execution: %s (LIVE)", sess.ID))
	return p.RunLive(path, renderFunc)
}

// Render returns the formatted timeline as a string.
func (r *Replayer) Render(sess *session.Session) (string, error) {
	var buf strings.Builder
	saved := r.output
	r.output = &buf
	err := r.Replay(sess)
	r.output = saved
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Replay writes the header, timeline and summary of a transcript.
func (r *Replayer) Replay(sess *session.Session) error {
	r.printHeader(sess)
	r.printTimeline(sess)
	r.printSummary(sess)
	return nil
}

func (r *Replayer) printHeader(sess *session.Session) {
	team := sess.TeamName
	if team == "" {
		team = sess.TeamID
	}
	fmt.Fprintln(r.output)
	fmt.Fprintf(r.output, "%s %s\n", titleStyle.Render("EXECUTION"), valueStyle.Render(sess.ID))
	fmt.Fprintln(r.output, divider)
	fmt.Fprintf(r.output, "%s %s\n", labelStyle.Render("Team:    "), valueStyle.Render(team))
	if sess.Mode != "" {
		fmt.Fprintf(r.output, "%s %s\n", labelStyle.Render("Mode:    "), valueStyle.Render(sess.Mode))
	}
	fmt.Fprintf(r.output, "%s %s\n", labelStyle.Render("Status:  "), r.statusStyle(sess.Status).Render(sess.Status))
	if !sess.CreatedAt.IsZero() {
		fmt.Fprintf(r.output, "%s %s\n", labelStyle.Render("Created: "), valueStyle.Render(sess.CreatedAt.Format(time.RFC3339)))
	}
	if sess.Topic != "" {
		fmt.Fprintf(r.output, "%s %s\n", labelStyle.Render("Topic:   "), valueStyle.Render(truncateHint(firstLine(sess.Topic), 100)))
	}
	fmt.Fprintln(r.output)
}

func (r *Replayer) printTimeline(sess *session.Session) {
	fmt.Fprintf(r.output, "%s %s\n", titleStyle.Render("TIMELINE"), dimStyle.Render(fmt.Sprintf("(%d events)", len(sess.Events))))
	fmt.Fprintln(r.output, divider)

	lastRound := 0
	for i := range sess.Events {
		r.formatEvent(&sess.Events[i], &lastRound)
	}
}

func (r *Replayer) printSummary(sess *session.Session) {
	fmt.Fprintln(r.output)
	fmt.Fprintln(r.output, divider)

	switch sess.Status {
	case session.StatusCompleted:
		fmt.Fprintln(r.output, successStyle.Render("COMPLETED"))
	case session.StatusFailed:
		fmt.Fprintf(r.output, "%s %s\n", errorStyle.Render("FAILED:"), valueStyle.Render(sess.Error))
	case session.StatusPaused:
		fmt.Fprintln(r.output, warnStyle.Render("PAUSED"))
	default:
		fmt.Fprintln(r.output, warnStyle.Render("RUNNING"))
	}
	if sess.Summary != "" && r.verbosity >= 1 {
		fmt.Fprintln(r.output)
		fmt.Fprintln(r.output, titleStyle.Render("FINAL OUTPUT"))
		fmt.Fprintln(r.output, sess.Summary)
	}

	stats := ComputeStats(sess)
	PrintStats(r.output, stats)
	PrintTokenUsage(r.output, stats, r.pricing)
}
