package setup

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/vinayprograms/conclave/internal/config"
)

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func press(t *testing.T, m Model, keys ...string) Model {
	t.Helper()
	for _, k := range keys {
		next, _ := m.Update(key(k))
		var ok bool
		m, ok = next.(Model)
		if !ok {
			t.Fatalf("Update returned %T", next)
		}
	}
	return m
}

func TestRender_MergesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conclave.toml")
	existing := "[budget]\nmax_tokens = 1234\n"
	if err := os.WriteFile(path, []byte(existing), 0644); err != nil {
		t.Fatal(err)
	}

	body, err := Render(path, Answers{Provider: ProviderOpenAI, Model: "gpt-4o", DataDir: "/tmp/data"})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.HasPrefix(body, "# conclave configuration") {
		t.Errorf("missing header: %q", body[:40])
	}

	out := filepath.Join(t.TempDir(), "out.toml")
	if err := os.WriteFile(out, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.LoadFile(out)
	if err != nil {
		t.Fatalf("rendered config does not load: %v", err)
	}
	if cfg.LLM.Provider != ProviderOpenAI || cfg.LLM.Model != "gpt-4o" {
		t.Errorf("llm = %+v", cfg.LLM)
	}
	if cfg.LLM.APIKeyEnv != "OPENAI_API_KEY" {
		t.Errorf("api_key_env = %q", cfg.LLM.APIKeyEnv)
	}
	if cfg.Budget.MaxTokens != 1234 {
		t.Errorf("existing budget lost: %d", cfg.Budget.MaxTokens)
	}
	if cfg.Storage.Path != "/tmp/data" {
		t.Errorf("storage path = %q", cfg.Storage.Path)
	}
}

func TestWrite_WithoutKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "conclave.toml")
	files, err := Write(path, Answers{Provider: ProviderOllama, Model: "llama3.2", BaseURL: "http://localhost:11434"})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if len(files) != 1 || files[0] != path {
		t.Errorf("files = %v", files)
	}
	cfg, err := config.LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.LLM.BaseURL != "http://localhost:11434" {
		t.Errorf("base url = %q", cfg.LLM.BaseURL)
	}
}

func TestWizard_AnthropicFlow(t *testing.T) {
	var got Answers
	m := New("conclave.toml")
	m.write = func(path string, a Answers) ([]string, error) {
		got = a
		return []string{path}, nil
	}

	// welcome, first provider, first model
	m = press(t, m, "enter", "enter", "enter")
	if m.step != StepAPIKey {
		t.Fatalf("step = %d, want API key", m.step)
	}
	if m.Answers().Model != "claude-sonnet-4-5" {
		t.Errorf("model = %q", m.Answers().Model)
	}
	m = press(t, m, "s", "k", "enter")
	if m.step != StepDataDir {
		t.Fatalf("step = %d, want data dir", m.step)
	}
	m = press(t, m, "enter")
	if m.step != StepConfirm {
		t.Fatalf("step = %d, want confirm", m.step)
	}

	next, cmd := m.Update(key("enter"))
	if cmd == nil {
		t.Fatal("confirm should write files")
	}
	next, _ = next.Update(cmd())
	m = next.(Model)
	if m.step != StepComplete || m.Err() != nil {
		t.Fatalf("step = %d err = %v", m.step, m.Err())
	}
	if got.APIKey != "sk" || got.Provider != ProviderAnthropic {
		t.Errorf("written answers = %+v", got)
	}
	if !strings.Contains(m.View(), "conclave.toml") {
		t.Error("complete view should list written files")
	}
}

func TestWizard_OllamaSkipsKey(t *testing.T) {
	m := New("conclave.toml")
	m = press(t, m, "enter")

	idx := -1
	for i, p := range providers {
		if p.id == ProviderOllama {
			idx = i
		}
	}
	for i := 0; i < idx; i++ {
		m = press(t, m, "down")
	}
	m = press(t, m, "enter", "enter")
	if m.step != StepBaseURL {
		t.Fatalf("step = %d, want base URL", m.step)
	}
	if m.textInput.Value() != "http://localhost:11434" {
		t.Errorf("base url default = %q", m.textInput.Value())
	}
}

func TestWizard_OtherModel(t *testing.T) {
	m := New("conclave.toml")
	m = press(t, m, "enter", "enter")
	for range models[ProviderAnthropic] {
		m = press(t, m, "down")
	}
	m = press(t, m, "enter")
	if m.step != StepCustomModel {
		t.Fatalf("step = %d, want custom model", m.step)
	}
	// empty input is ignored
	m = press(t, m, "enter")
	if m.step != StepCustomModel {
		t.Errorf("empty model accepted")
	}
	m = press(t, m, "x", "enter")
	if m.Answers().Model != "x" || m.step != StepAPIKey {
		t.Errorf("model = %q step = %d", m.Answers().Model, m.step)
	}
}
