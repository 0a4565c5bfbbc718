package replay

import (
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/vinayprograms/conclave/internal/session"
)

// MultiReplayer renders several transcripts one after another, oldest
// first.
type MultiReplayer struct {
	output    io.Writer
	verbosity int
	opts      []ReplayerOption
}

// NewMulti creates a MultiReplayer. opts apply to every transcript.
func NewMulti(output io.Writer, verbosity int, opts ...ReplayerOption) *MultiReplayer {
	return &MultiReplayer{output: output, verbosity: verbosity, opts: opts}
}

type sessionInfo struct {
	Session *session.Session
	Source  string
	Label   string
}

// ReplayFiles writes all transcripts to the output.
func (m *MultiReplayer) ReplayFiles(paths []string) error {
	sessions, err := m.loadSessions(paths)
	if err != nil {
		return err
	}
	return m.replayAll(m.output, sessions)
}

// ReplayFilesInteractive shows all transcripts in one pager.
func (m *MultiReplayer) ReplayFilesInteractive(paths []string) error {
	sessions, err := m.loadSessions(paths)
	if err != nil {
		return err
	}
	var buf strings.Builder
	if err := m.replayAll(&buf, sessions); err != nil {
		return err
	}

	title := fmt.Sprintf("%d executions", len(sessions))
	if len(sessions) == 1 {
		title = sessions[0].Label
	}
	return NewPager(title).Run(buf.String())
}

func (m *MultiReplayer) loadSessions(paths []string) ([]sessionInfo, error) {
	r := New(m.output, m.verbosity, m.opts...)
	var sessions []sessionInfo
	for _, path := range paths {
		sess, err := r.loadSession(path)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		sessions = append(sessions, sessionInfo{Session: sess, Source: path, Label: inferLabel(sess, path)})
	}
	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].Session.CreatedAt.Before(sessions[j].Session.CreatedAt)
	})
	return sessions, nil
}

// inferLabel prefers the team name, then the file name.
func inferLabel(sess *session.Session, path string) string {
	if sess.TeamName != "" {
		return sess.TeamName
	}
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func (m *MultiReplayer) replayAll(w io.Writer, sessions []sessionInfo) error {
	r := New(w, m.verbosity, m.opts...)
	for i, info := range sessions {
		if len(sessions) > 1 {
			printSessionHeader(w, info, i+1, len(sessions))
		}
		if err := r.Replay(info.Session); err != nil {
			return fmt.Errorf("failed to replay %s: %w", info.Source, err)
		}
		if i < len(sessions)-1 {
			fmt.Fprintln(w)
		}
	}
	return nil
}

var (
	sessionHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("0")).
				Background(lipgloss.Color("6"))

	sessionDividerStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("6"))
)

func printSessionHeader(w io.Writer, info sessionInfo, num, total int) {
	shortID := info.Session.ID
	if len(shortID) > 12 {
		shortID = shortID[:12]
	}
	header := fmt.Sprintf(" [%d/%d] %s │ %s │ %s ", num, total,
		info.Label, shortID, info.Session.CreatedAt.Format("2006-01-02 15:04:05"))

	fmt.Fprintln(w)
	fmt.Fprintln(w, sessionDividerStyle.Render(strings.Repeat("━", 70)))
	fmt.Fprintln(w, sessionHeaderStyle.Render(header))
	fmt.Fprintln(w, sessionDividerStyle.Render(strings.Repeat("━", 70)))
}
