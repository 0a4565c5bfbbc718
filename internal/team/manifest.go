// Package team loads team manifests (YAML) and imports them into the store.
package team

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/vinayprograms/conclave/internal/orchestration"
	"github.com/vinayprograms/conclave/internal/store"
)

// Manifest describes a team, its agents and optional model configs.
type Manifest struct {
	ID            string              `yaml:"id"`
	Name          string              `yaml:"name"`
	Description   string              `yaml:"description"`
	Mode          string              `yaml:"mode"`
	MaxRounds     int                 `yaml:"max_rounds"`
	ResponsePhase *bool               `yaml:"response_phase"`
	Agents        []AgentManifest     `yaml:"agents"`
	Models        []store.ModelConfig `yaml:"models"`
}

// AgentManifest is one member of a team.
type AgentManifest struct {
	store.Agent `yaml:",inline"`
	Active      *bool `yaml:"active"`
}

// Load reads and validates a manifest file.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// Parse decodes and validates a manifest.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("invalid manifest: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks required fields and the mode name.
func (m *Manifest) Validate() error {
	var errs []error
	if strings.TrimSpace(m.Name) == "" {
		errs = append(errs, errors.New("missing required field: name"))
	}
	if _, err := orchestration.ParseKind(m.Mode); err != nil {
		errs = append(errs, err)
	}
	if m.MaxRounds < 0 {
		errs = append(errs, errors.New("max_rounds must not be negative"))
	}
	if len(m.Agents) == 0 {
		errs = append(errs, errors.New("a team needs at least one agent"))
	}
	seen := map[string]bool{}
	for i, a := range m.Agents {
		if strings.TrimSpace(a.Name) == "" {
			errs = append(errs, fmt.Errorf("agent %d: missing name", i+1))
			continue
		}
		if seen[a.Name] {
			errs = append(errs, fmt.Errorf("agent %q listed twice", a.Name))
		}
		seen[a.Name] = true
		if strings.TrimSpace(a.SystemPrompt) == "" {
			errs = append(errs, fmt.Errorf("agent %q: missing system_prompt", a.Name))
		}
	}
	for i, mc := range m.Models {
		if mc.ID == "" || mc.Model == "" {
			errs = append(errs, fmt.Errorf("model %d: id and model are required", i+1))
		}
	}
	return errors.Join(errs...)
}

// Import upserts the manifest's models, agents and team. Agents are matched
// to existing records by id, then by name, so re-importing updates in place.
func Import(ctx context.Context, s store.Store, m *Manifest) (*store.Team, error) {
	for i := range m.Models {
		mc := m.Models[i]
		if existing, err := s.GetModelConfig(ctx, mc.ID); err == nil {
			mc.CreatedAt = existing.CreatedAt
		}
		if err := s.PutModelConfig(ctx, &mc); err != nil {
			return nil, err
		}
	}

	existing, err := s.ListAgents(ctx)
	if err != nil {
		return nil, err
	}
	byName := map[string]store.Agent{}
	for _, a := range existing {
		byName[a.Name] = a
	}

	team := &store.Team{
		ID:                m.ID,
		Name:              m.Name,
		Description:       m.Description,
		CollaborationMode: strings.ToLower(strings.TrimSpace(m.Mode)),
		MaxRounds:         m.MaxRounds,
		ResponsePhase:     m.ResponsePhase,
	}
	if team.ID == "" {
		if teams, err := s.ListTeams(ctx); err == nil {
			for _, t := range teams {
				if t.Name == m.Name {
					team.ID = t.ID
					team.CreatedAt = t.CreatedAt
				}
			}
		}
	}

	for pos, am := range m.Agents {
		a := am.Agent
		if a.ID == "" {
			if prev, ok := byName[a.Name]; ok {
				a.ID = prev.ID
				a.CreatedAt = prev.CreatedAt
			}
		}
		if err := s.PutAgent(ctx, &a); err != nil {
			return nil, err
		}
		active := true
		if am.Active != nil {
			active = *am.Active
		}
		team.Members = append(team.Members, store.TeamMember{AgentID: a.ID, Position: pos, IsActive: active})
	}

	if err := s.PutTeam(ctx, team); err != nil {
		return nil, err
	}
	return team, nil
}
