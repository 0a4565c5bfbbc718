package store

import (
	"encoding/json"
	"time"
)

// Execution statuses.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusPaused    = "paused"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Agent is a stored persona.
type Agent struct {
	ID                string    `json:"id" yaml:"id"`
	Name              string    `json:"name" yaml:"name"`
	Description       string    `json:"description,omitempty" yaml:"description"`
	Tags              []string  `json:"tags,omitempty" yaml:"tags"`
	Domain            string    `json:"domain,omitempty" yaml:"domain"`
	SystemPrompt      string    `json:"system_prompt" yaml:"system_prompt"`
	ModelID           string    `json:"model_id,omitempty" yaml:"model"`
	Temperature       float64   `json:"temperature" yaml:"temperature"`
	MaxTokens         int       `json:"max_tokens" yaml:"max_tokens"`
	MaxToolIterations int       `json:"max_tool_iterations,omitempty" yaml:"max_tool_iterations"`
	CreatedAt         time.Time `json:"created_at" yaml:"-"`
	UpdatedAt         time.Time `json:"updated_at" yaml:"-"`
}

// TeamMember places an agent in a team.
type TeamMember struct {
	ID       string `json:"id" yaml:"-"`
	AgentID  string `json:"agent_id" yaml:"agent"`
	Position int    `json:"position" yaml:"position"`
	IsActive bool   `json:"is_active" yaml:"active"`
}

// Team groups agents under one collaboration mode.
type Team struct {
	ID                string       `json:"id" yaml:"id"`
	Name              string       `json:"name" yaml:"name"`
	Description       string       `json:"description,omitempty" yaml:"description"`
	CollaborationMode string       `json:"collaboration_mode" yaml:"mode"`
	MaxRounds         int          `json:"max_rounds,omitempty" yaml:"max_rounds"`
	ResponsePhase     *bool        `json:"response_phase,omitempty" yaml:"response_phase"`
	Members           []TeamMember `json:"members" yaml:"-"`
	CreatedAt         time.Time    `json:"created_at" yaml:"-"`
	UpdatedAt         time.Time    `json:"updated_at" yaml:"-"`
}

// ModelConfig is a stored model endpoint an agent's model_id may name.
type ModelConfig struct {
	ID                 string    `json:"id" yaml:"id"`
	Provider           string    `json:"provider" yaml:"provider"`
	Model              string    `json:"model" yaml:"model"`
	BaseURL            string    `json:"base_url,omitempty" yaml:"base_url"`
	MaxTokens          int       `json:"max_tokens,omitempty" yaml:"max_tokens"`
	InputPricePerMTok  float64   `json:"input_price_per_mtok,omitempty" yaml:"input_price_per_mtok"`
	OutputPricePerMTok float64   `json:"output_price_per_mtok,omitempty" yaml:"output_price_per_mtok"`
	CreatedAt          time.Time `json:"created_at" yaml:"-"`
	UpdatedAt          time.Time `json:"updated_at" yaml:"-"`
}

// LLMSelection is the default model an execution runs with. Profile names a
// configured profile; otherwise Provider/Model are used as given.
type LLMSelection struct {
	Profile  string `json:"profile,omitempty"`
	Provider string `json:"provider,omitempty"`
	Model    string `json:"model,omitempty"`
	BaseURL  string `json:"base_url,omitempty"`
}

// Execution is one persisted run of a team over a topic.
type Execution struct {
	ID            string          `json:"id"`
	TeamID        string          `json:"team_id"`
	Title         string          `json:"title,omitempty"`
	InitialInput  string          `json:"initial_input"`
	LLM           *LLMSelection   `json:"llm,omitempty"`
	Status        string          `json:"status"`
	CurrentRound  int             `json:"current_round"`
	SharedState   json.RawMessage `json:"shared_state,omitempty"`
	FinalOutput   string          `json:"final_output,omitempty"`
	TokensUsed    int             `json:"tokens_used"`
	TokensBudget  int             `json:"tokens_budget"`
	Cost          float64         `json:"cost"`
	CostBudget    float64         `json:"cost_budget"`
	StartedAt     *time.Time      `json:"started_at,omitempty"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty"`
	ErrorMessage  string          `json:"error_message,omitempty"`
	WorkspacePath string          `json:"workspace_path,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Message is one persisted transcript entry of an execution.
type Message struct {
	ID              string                 `json:"id"`
	ExecutionID     string                 `json:"execution_id"`
	Sequence        int                    `json:"sequence"`
	Round           int                    `json:"round"`
	Phase           string                 `json:"phase"`
	SenderType      string                 `json:"sender_type"`
	SenderID        string                 `json:"sender_id,omitempty"`
	SenderName      string                 `json:"sender_name,omitempty"`
	Content         string                 `json:"content"`
	ContentType     string                 `json:"content_type"`
	RespondingTo    string                 `json:"responding_to,omitempty"`
	TargetAgentID   string                 `json:"target_agent_id,omitempty"`
	WantsToContinue bool                   `json:"wants_to_continue"`
	InputTokens     int                    `json:"input_tokens"`
	OutputTokens    int                    `json:"output_tokens"`
	TokensEstimated bool                   `json:"tokens_estimated,omitempty"`
	Metadata        map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt       time.Time              `json:"created_at"`
	UpdatedAt       time.Time              `json:"updated_at"`
}
