// Package setup provides the interactive setup wizard that writes
// conclave.toml and stores provider credentials.
package setup

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/vinayprograms/agentkit/credentials"

	"github.com/vinayprograms/conclave/internal/config"
)

// Provider options
const (
	ProviderAnthropic  = "anthropic"
	ProviderOpenAI     = "openai"
	ProviderGoogle     = "google"
	ProviderGroq       = "groq"
	ProviderMistral    = "mistral"
	ProviderXAI        = "xai"
	ProviderOpenRouter = "openrouter"
	ProviderOllama     = "ollama-local"
	ProviderCustom     = "custom"
)

// Answers collects what the wizard asked.
type Answers struct {
	Provider string
	Model    string
	APIKey   string
	BaseURL  string
	DataDir  string
}

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("99")).
			MarginBottom(1)

	subtitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			MarginBottom(1)

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("170")).
			Bold(true)

	normalStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("82"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))
)

// Step represents a setup wizard step
type Step int

const (
	StepWelcome Step = iota
	StepProvider
	StepModel
	StepCustomModel
	StepAPIKey
	StepBaseURL
	StepDataDir
	StepConfirm
	StepComplete
)

type providerOption struct {
	id   string
	name string
	desc string
}

var providers = []providerOption{
	{ProviderAnthropic, "Anthropic", "Claude models (recommended)"},
	{ProviderOpenAI, "OpenAI", "GPT-4o, o3 models"},
	{ProviderGoogle, "Google", "Gemini models"},
	{ProviderGroq, "Groq", "Fast inference (Llama)"},
	{ProviderMistral, "Mistral", "Mistral models"},
	{ProviderXAI, "xAI", "Grok models"},
	{ProviderOpenRouter, "OpenRouter", "Multi-provider router"},
	{ProviderOllama, "Ollama", "Local models (free, requires install)"},
	{ProviderCustom, "Custom", "Custom OpenAI-compatible endpoint"},
}

var models = map[string][]string{
	ProviderAnthropic: {"claude-sonnet-4-5", "claude-opus-4-1", "claude-haiku-4-5"},
	ProviderOpenAI:    {"gpt-4o", "gpt-4o-mini", "o3-mini"},
	ProviderGoogle:    {"gemini-2.0-flash", "gemini-1.5-pro"},
	ProviderGroq:      {"llama-3.3-70b-versatile", "llama-3.1-8b-instant"},
	ProviderMistral:   {"mistral-large-latest", "mistral-small-latest"},
	ProviderXAI:       {"grok-2", "grok-2-mini"},
	ProviderOllama:    {"llama3.2", "mistral", "phi3"},
}

var inputTitles = map[Step]string{
	StepCustomModel: "Model name",
	StepAPIKey:      "API key",
	StepBaseURL:     "Base URL",
	StepDataDir:     "Data directory",
}

// defaultBaseURLs are offered for providers that need an endpoint.
var defaultBaseURLs = map[string]string{
	ProviderOllama: "http://localhost:11434",
	ProviderCustom: "http://localhost:4000/v1",
}

// Model is the bubbletea model for the setup wizard
type Model struct {
	step      Step
	answers   Answers
	path      string
	cursor    int
	textInput textinput.Model
	err       error
	written   []string

	// write is replaced in tests
	write func(path string, a Answers) ([]string, error)
}

// New creates a wizard that writes to path.
func New(path string) Model {
	return Model{
		step:    StepWelcome,
		path:    path,
		answers: Answers{DataDir: config.New().Storage.Path},
		write:   Write,
	}
}

// Answers returns what has been collected so far.
func (m Model) Answers() Answers { return m.answers }

// Err returns the error that ended the wizard, if any.
func (m Model) Err() error { return m.err }

func (m Model) Init() tea.Cmd { return nil }

type filesWrittenMsg struct{ files []string }
type errMsg struct{ error }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case filesWrittenMsg:
		m.written = msg.files
		m.step = StepComplete
		return m, nil
	case errMsg:
		m.err = msg.error
		m.step = StepComplete
		return m, nil
	case tea.KeyMsg:
		if m.isTextInputStep() {
			switch msg.String() {
			case "ctrl+c":
				return m, tea.Quit
			case "enter":
				return m.handleEnter()
			}
			var cmd tea.Cmd
			m.textInput, cmd = m.textInput.Update(msg)
			return m, cmd
		}
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "enter":
			return m.handleEnter()
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}
		case "down", "j":
			if m.cursor < m.maxCursor() {
				m.cursor++
			}
		}
	}
	return m, nil
}

func (m Model) isTextInputStep() bool {
	switch m.step {
	case StepCustomModel, StepAPIKey, StepBaseURL, StepDataDir:
		return true
	}
	return false
}

func (m Model) maxCursor() int {
	switch m.step {
	case StepProvider:
		return len(providers) - 1
	case StepModel:
		return len(models[m.answers.Provider]) // last entry is "other"
	case StepConfirm:
		return 1
	}
	return 0
}

func (m Model) handleEnter() (tea.Model, tea.Cmd) {
	switch m.step {
	case StepWelcome:
		m.step = StepProvider
		m.cursor = 0
	case StepProvider:
		m.answers.Provider = providers[m.cursor].id
		m.answers.BaseURL = defaultBaseURLs[m.answers.Provider]
		m.cursor = 0
		if len(models[m.answers.Provider]) == 0 {
			return m.input(StepCustomModel, "model name", "", false)
		}
		m.step = StepModel
	case StepModel:
		opts := models[m.answers.Provider]
		if m.cursor >= len(opts) {
			return m.input(StepCustomModel, "model name", "", false)
		}
		m.answers.Model = opts[m.cursor]
		return m.afterModel()
	case StepCustomModel:
		v := strings.TrimSpace(m.textInput.Value())
		if v == "" {
			return m, nil
		}
		m.answers.Model = v
		return m.afterModel()
	case StepAPIKey:
		m.answers.APIKey = strings.TrimSpace(m.textInput.Value())
		return m.afterKey()
	case StepBaseURL:
		m.answers.BaseURL = strings.TrimSpace(m.textInput.Value())
		return m.input(StepDataDir, "data directory", m.answers.DataDir, false)
	case StepDataDir:
		if v := strings.TrimSpace(m.textInput.Value()); v != "" {
			m.answers.DataDir = v
		}
		m.step = StepConfirm
		m.cursor = 0
	case StepConfirm:
		if m.cursor == 1 {
			return m, tea.Quit
		}
		return m, m.writeFiles()
	case StepComplete:
		return m, tea.Quit
	}
	return m, nil
}

func (m Model) afterModel() (tea.Model, tea.Cmd) {
	if m.answers.Provider == ProviderOllama {
		return m.afterKey()
	}
	return m.input(StepAPIKey, "API key (leave empty to use the environment)", "", true)
}

func (m Model) afterKey() (tea.Model, tea.Cmd) {
	if _, ok := defaultBaseURLs[m.answers.Provider]; ok {
		return m.input(StepBaseURL, "base URL", m.answers.BaseURL, false)
	}
	return m.input(StepDataDir, "data directory", m.answers.DataDir, false)
}

func (m Model) input(step Step, placeholder, value string, secret bool) (tea.Model, tea.Cmd) {
	ti := textinput.New()
	ti.Placeholder = placeholder
	ti.CharLimit = 512
	ti.Width = 60
	ti.SetValue(value)
	if secret {
		ti.EchoMode = textinput.EchoPassword
	}
	ti.Focus()
	m.textInput = ti
	m.step = step
	return m, textinput.Blink
}

func (m Model) writeFiles() tea.Cmd {
	path, answers, write := m.path, m.answers, m.write
	return func() tea.Msg {
		files, err := write(path, answers)
		if err != nil {
			return errMsg{err}
		}
		return filesWrittenMsg{files}
	}
}

// View renders the current step
func (m Model) View() string {
	var s strings.Builder
	switch m.step {
	case StepWelcome:
		s.WriteString(titleStyle.Render("conclave setup") + "\n")
		s.WriteString(subtitleStyle.Render("Configure the default LLM and where executions are stored.") + "\n\n")
		s.WriteString(dimStyle.Render("Enter to continue, q to quit"))
	case StepProvider:
		s.WriteString(titleStyle.Render("LLM Provider") + "\n")
		for i, p := range providers {
			s.WriteString(m.option(i, p.name) + " " + dimStyle.Render(p.desc) + "\n")
		}
		s.WriteString("\n" + dimStyle.Render("↑/↓ to move, Enter to select"))
	case StepModel:
		s.WriteString(titleStyle.Render("Model") + "\n")
		opts := models[m.answers.Provider]
		for i, id := range opts {
			s.WriteString(m.option(i, id) + "\n")
		}
		s.WriteString(m.option(len(opts), "Other...") + "\n")
	case StepCustomModel, StepAPIKey, StepBaseURL, StepDataDir:
		s.WriteString(titleStyle.Render(inputTitles[m.step]) + "\n")
		s.WriteString(m.textInput.View() + "\n\n")
		if m.step == StepAPIKey {
			s.WriteString(dimStyle.Render("Stored in "+credentials.DefaultPath()) + "\n")
		}
		s.WriteString(dimStyle.Render("Enter to confirm"))
	case StepConfirm:
		s.WriteString(titleStyle.Render("Confirm") + "\n")
		fmt.Fprintf(&s, "Provider:  %s\nModel:     %s\n", m.answers.Provider, m.answers.Model)
		if m.answers.BaseURL != "" {
			fmt.Fprintf(&s, "Base URL:  %s\n", m.answers.BaseURL)
		}
		fmt.Fprintf(&s, "Data dir:  %s\nConfig:    %s\n\n", m.answers.DataDir, m.path)
		s.WriteString(m.option(0, "Write files") + "\n")
		s.WriteString(m.option(1, "Cancel") + "\n")
	case StepComplete:
		if m.err != nil {
			s.WriteString(errorStyle.Render("Setup failed: "+m.err.Error()) + "\n")
		} else {
			s.WriteString(successStyle.Render("Setup complete") + "\n\n")
			for _, f := range m.written {
				s.WriteString("  " + f + "\n")
			}
		}
		s.WriteString("\n" + dimStyle.Render("Enter to exit"))
	}
	return s.String() + "\n"
}

func (m Model) option(i int, label string) string {
	if i == m.cursor {
		return "> " + selectedStyle.Render(label)
	}
	return "  " + normalStyle.Render(label)
}

// Render returns the config file for the answers, starting from the
// existing file at path so unrelated settings survive.
func Render(path string, a Answers) (string, error) {
	cfg, err := config.LoadOptional(path)
	if err != nil {
		return "", err
	}
	cfg.LLM.Provider = a.Provider
	cfg.LLM.Model = a.Model
	cfg.LLM.BaseURL = a.BaseURL
	if cfg.LLM.APIKeyEnv == "" {
		cfg.LLM.APIKeyEnv = config.DefaultAPIKeyEnv(a.Provider)
	}
	if a.DataDir != "" {
		cfg.Storage.Path = a.DataDir
	}

	var buf bytes.Buffer
	buf.WriteString("# conclave configuration (written by conclave setup)\n\n")
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return "", fmt.Errorf("encoding config: %w", err)
	}
	return buf.String(), nil
}

// Write saves the config file and, when an API key was given, the
// credentials file. It returns the files written.
func Write(path string, a Answers) ([]string, error) {
	body, err := Render(path, a)
	if err != nil {
		return nil, err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		return nil, fmt.Errorf("writing %s: %w", path, err)
	}
	files := []string{path}

	if a.APIKey != "" {
		creds, _, _ := credentials.Load()
		if creds == nil {
			creds = &credentials.Credentials{}
		}
		creds.SetAPIKey(a.Provider, a.APIKey)
		if err := creds.Save(); err != nil {
			return files, fmt.Errorf("saving credentials: %w", err)
		}
		files = append(files, credentials.DefaultPath())
	}
	return files, nil
}

// Run starts the setup wizard
func Run(path string) error {
	p := tea.NewProgram(New(path))
	final, err := p.Run()
	if err != nil {
		return err
	}
	if m, ok := final.(Model); ok {
		return m.Err()
	}
	return nil
}
