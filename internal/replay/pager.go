package replay

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/fsnotify/fsnotify"
	"github.com/muesli/reflow/wordwrap"
)

var (
	pagerTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	pagerInfoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8"))

	liveStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("10"))
)

// Pager is an interactive terminal pager for rendered timelines.
type Pager struct {
	title string
}

// NewPager creates a pager with the given header title.
func NewPager(title string) *Pager {
	return &Pager{title: title}
}

// Run shows content until the user quits.
func (p *Pager) Run(content string) error {
	prog := tea.NewProgram(
		&pagerModel{title: p.title, content: content},
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
	)
	_, err := prog.Run()
	return err
}

// RunLive re-renders whenever path changes, keeping the scroll position.
func (p *Pager) RunLive(path string, render func() (string, error)) error {
	content, err := render()
	if err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(path); err != nil {
		return fmt.Errorf("failed to watch file: %w", err)
	}

	prog := tea.NewProgram(
		&pagerModel{
			title:   p.title,
			content: content,
			live:    true,
			render:  render,
			watcher: watcher,
		},
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
	)
	_, err = prog.Run()
	return err
}

// fileChangedMsg is sent when the watched transcript changes.
type fileChangedMsg struct{}

type pagerModel struct {
	viewport viewport.Model
	title    string
	content  string
	wrapped  string
	ready    bool

	live    bool
	render  func() (string, error)
	watcher *fsnotify.Watcher

	searching    bool
	searchInput  textinput.Model
	searchQuery  string
	searchLines  []int // indexes into wrapped lines
	searchIndex  int
	searchFailed bool
}

func (m *pagerModel) Init() tea.Cmd {
	if m.live && m.watcher != nil {
		return m.watchFile()
	}
	return nil
}

func (m *pagerModel) watchFile() tea.Cmd {
	return func() tea.Msg {
		for {
			select {
			case event, ok := <-m.watcher.Events:
				if !ok {
					return nil
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
					// let the writer finish the line
					time.Sleep(100 * time.Millisecond)
					return fileChangedMsg{}
				}
			case _, ok := <-m.watcher.Errors:
				if !ok {
					return nil
				}
			}
		}
	}
}

func (m *pagerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if m.searching {
		return m.updateSearch(msg)
	}

	var cmds []tea.Cmd
	switch msg := msg.(type) {
	case fileChangedMsg:
		m.reload()
		cmds = append(cmds, m.watchFile())

	case tea.KeyMsg:
		if cmd, done := m.handleKey(msg.String()); done {
			return m, cmd
		}

	case tea.WindowSizeMsg:
		height := msg.Height - 2 // header and footer
		if !m.ready {
			m.viewport = viewport.New(msg.Width, height)
			m.viewport.YPosition = 1
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = height
		}
		m.setContent()
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m *pagerModel) updateSearch(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.String() {
		case "enter":
			m.searchQuery = m.searchInput.Value()
			m.searching = false
			m.executeSearch()
			m.jumpToMatch(0)
			return m, nil
		case "esc", "ctrl+c":
			m.searching = false
			m.clearSearch()
			return m, nil
		}
	}
	var cmd tea.Cmd
	m.searchInput, cmd = m.searchInput.Update(msg)
	return m, cmd
}

// handleKey reports done when the key produced a command that should be
// returned without passing the key on to the viewport.
func (m *pagerModel) handleKey(key string) (tea.Cmd, bool) {
	switch key {
	case "", "ctrl", "alt", "shift", "super":
		return nil, true
	case "q", "ctrl+c":
		return tea.Quit, true
	case "esc":
		if m.searchQuery == "" {
			return tea.Quit, true
		}
		m.clearSearch()
	case "g":
		m.viewport.GotoTop()
	case "G":
		m.viewport.GotoBottom()
	case "f", "F":
		if m.live {
			m.viewport.GotoBottom()
		}
	case "/":
		m.searching = true
		m.searchInput = textinput.New()
		m.searchInput.Placeholder = "Search..."
		m.searchInput.CharLimit = 100
		m.searchInput.Width = 40
		m.searchInput.SetValue(m.searchQuery)
		m.searchInput.Focus()
		return textinput.Blink, true
	case "n":
		if len(m.searchLines) > 0 {
			m.jumpToMatch((m.searchIndex + 1) % len(m.searchLines))
		}
	case "N":
		if len(m.searchLines) > 0 {
			m.jumpToMatch((m.searchIndex - 1 + len(m.searchLines)) % len(m.searchLines))
		}
	}
	return nil, false
}

// reload re-renders after a file change. The offset is kept so reading is
// not interrupted by new events.
func (m *pagerModel) reload() {
	if m.render == nil {
		return
	}
	content, err := m.render()
	if err != nil {
		return
	}
	offset := m.viewport.YOffset
	m.content = content
	m.setContent()
	m.viewport.SetYOffset(offset)
}

func (m *pagerModel) setContent() {
	m.wrapped = wrapContent(m.content, m.viewport.Width)
	m.viewport.SetContent(m.wrapped)
	if m.searchQuery != "" {
		m.executeSearch()
	}
}

func (m *pagerModel) clearSearch() {
	m.searchQuery = ""
	m.searchLines = nil
	m.searchFailed = false
}

// executeSearch finds the wrapped lines containing the query, ignoring case.
func (m *pagerModel) executeSearch() {
	m.searchLines = nil
	m.searchIndex = 0
	m.searchFailed = false
	if m.searchQuery == "" {
		return
	}
	query := strings.ToLower(m.searchQuery)
	for i, line := range strings.Split(m.wrapped, "\n") {
		if strings.Contains(strings.ToLower(line), query) {
			m.searchLines = append(m.searchLines, i)
		}
	}
	m.searchFailed = len(m.searchLines) == 0
}

// jumpToMatch centers the given match on screen.
func (m *pagerModel) jumpToMatch(index int) {
	if index < 0 || index >= len(m.searchLines) {
		return
	}
	m.searchIndex = index
	target := m.searchLines[index] - m.viewport.Height/2
	maxOffset := m.viewport.TotalLineCount() - m.viewport.Height
	if target > maxOffset {
		target = maxOffset
	}
	if target < 0 {
		target = 0
	}
	m.viewport.SetYOffset(target)
}

func (m *pagerModel) View() string {
	if !m.ready {
		return "\n  Loading..."
	}
	title := pagerTitleStyle.Render(m.title)
	rule := strings.Repeat("─", max(0, m.viewport.Width-lipgloss.Width(title)))
	header := lipgloss.JoinHorizontal(lipgloss.Center, title, pagerInfoStyle.Render(rule))
	return header + "\n" + m.viewport.View() + "\n" + m.footer()
}

func (m *pagerModel) footer() string {
	if m.searching {
		return warnStyle.Render("/") + m.searchInput.View()
	}

	percent := 100
	if total := m.viewport.TotalLineCount(); total > m.viewport.Height {
		percent = min(100, m.viewport.YOffset*100/max(1, total-m.viewport.Height))
	}
	info := fmt.Sprintf(" %d%% ", percent)

	var help string
	switch {
	case m.searchFailed:
		help = fmt.Sprintf(" %s │ /: search ", errorStyle.Render("Pattern not found"))
	case len(m.searchLines) > 0:
		help = fmt.Sprintf(" %s │ n/N: next/prev │ /: search │ esc: clear ",
			warnStyle.Render(fmt.Sprintf("[%d/%d]", m.searchIndex+1, len(m.searchLines))))
	case m.live:
		help = fmt.Sprintf(" %s │ q: quit │ /: search │ f: follow │ g/G: top/bottom ", liveStyle.Render("● LIVE"))
	default:
		help = " q: quit │ /: search │ n/N: next/prev │ g/G: top/bottom "
	}
	fill := strings.Repeat("─", max(0, m.viewport.Width-lipgloss.Width(help)-lipgloss.Width(info)))
	return pagerInfoStyle.Render(help) + pagerInfoStyle.Render(fill) + pagerInfoStyle.Render(info)
}

// wrapContent wraps lines to width. Timeline rows ("seq │ time │ text")
// keep their continuation lines aligned under the text column.
func wrapContent(content string, width int) string {
	if width <= 0 {
		return content
	}

	var out []string
	for _, line := range strings.Split(content, "\n") {
		if lipgloss.Width(line) <= width {
			out = append(out, line)
			continue
		}

		pipe := strings.LastIndex(line, "│")
		if pipe > 0 && pipe < len(line)-len("│") {
			start := pipe + len("│")
			for start < len(line) && line[start] == ' ' {
				start++
			}
			indent := lipgloss.Width(line[:start])
			avail := max(20, width-indent)
			parts := strings.Split(wordwrap.String(line[start:], avail), "\n")
			out = append(out, line[:start]+parts[0])
			for _, p := range parts[1:] {
				out = append(out, strings.Repeat(" ", indent)+p)
			}
			continue
		}

		out = append(out, strings.Split(wordwrap.String(line, width), "\n")...)
	}
	return strings.Join(out, "\n")
}
