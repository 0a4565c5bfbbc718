package execution

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/vinayprograms/conclave/internal/collab"
	"github.com/vinayprograms/conclave/internal/sandbox"
	"github.com/vinayprograms/conclave/internal/store"
)

// ControlParams tunes extend_budget. Nil fields take the configured
// increments.
type ControlParams struct {
	Tokens *int
	Cost   *float64
}

// Control applies a lifecycle action:
//
//	pause          running → paused
//	resume         paused → running
//	stop           running|paused → completed
//	extend_budget  any status, raises both budgets
func (d *Driver) Control(ctx context.Context, id, action string, params ControlParams) (*store.Execution, error) {
	exec, err := d.getExecution(ctx, id)
	if err != nil {
		return nil, err
	}

	switch {
	case action == ActionPause && exec.Status == store.StatusRunning:
		exec.Status = store.StatusPaused
	case action == ActionResume && exec.Status == store.StatusPaused:
		exec.Status = store.StatusRunning
	case action == ActionStop && (exec.Status == store.StatusRunning || exec.Status == store.StatusPaused):
		now := time.Now()
		exec.Status = store.StatusCompleted
		exec.CompletedAt = &now
	case action == ActionExtendBudget:
		tokens := d.cfg.Budget.ExtendTokens
		if params.Tokens != nil {
			tokens = *params.Tokens
		}
		amount := d.cfg.Budget.ExtendCost
		if params.Cost != nil {
			amount = *params.Cost
		}
		if tokens < 0 || amount < 0 {
			return nil, errors.New("budget extension must not be negative")
		}
		exec.TokensBudget = collab.SaturatingAdd(exec.TokensBudget, tokens)
		exec.CostBudget += amount
	default:
		return nil, fmt.Errorf("%w: %s on %s execution", ErrInvalidControl, action, exec.Status)
	}

	if err := d.store.PutExecution(ctx, exec); err != nil {
		return nil, err
	}
	d.logger.Info("execution control", map[string]interface{}{
		"execution_id": exec.ID,
		"action":       action,
		"status":       exec.Status,
	})
	return exec, nil
}

// ListOptions filters and pages List.
type ListOptions struct {
	TeamID   string
	Status   string
	Page     int
	PageSize int
}

// Page is one page of executions, newest first.
type Page struct {
	Items      []store.Execution `json:"items"`
	Total      int               `json:"total"`
	Page       int               `json:"page"`
	PageSize   int               `json:"page_size"`
	TotalPages int               `json:"total_pages"`
}

// List returns executions matching opts. Page starts at 1; the page size is
// clamped to [1, 100] and defaults to 20.
func (d *Driver) List(ctx context.Context, opts ListOptions) (*Page, error) {
	all, err := d.store.ListExecutions(ctx)
	if err != nil {
		return nil, err
	}

	page := opts.Page
	if page < 1 {
		page = 1
	}
	size := opts.PageSize
	if size == 0 {
		size = defaultPageSize
	}
	if size < 1 {
		size = 1
	}
	if size > maxPageSize {
		size = maxPageSize
	}

	var matched []store.Execution
	for _, e := range all {
		if opts.TeamID != "" && e.TeamID != opts.TeamID {
			continue
		}
		if opts.Status != "" && e.Status != opts.Status {
			continue
		}
		matched = append(matched, e)
	}
	sort.SliceStable(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })

	total := len(matched)
	out := &Page{Items: []store.Execution{}, Total: total, Page: page, PageSize: size}
	if total > 0 {
		out.TotalPages = (total + size - 1) / size
	}
	start := (page - 1) * size
	if start < total {
		end := start + size
		if end > total {
			end = total
		}
		out.Items = matched[start:end]
	}
	return out, nil
}

// Detail is an execution with its most recent messages.
type Detail struct {
	Execution *store.Execution `json:"execution"`
	Messages  []store.Message  `json:"messages"`
}

// Show returns the execution and its last 50 messages in sequence order.
func (d *Driver) Show(ctx context.Context, id string) (*Detail, error) {
	exec, err := d.getExecution(ctx, id)
	if err != nil {
		return nil, err
	}
	msgs, err := d.store.ListMessages(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(msgs) > recentMessages {
		msgs = msgs[len(msgs)-recentMessages:]
	}
	return &Detail{Execution: exec, Messages: msgs}, nil
}

// Delete removes the execution, its messages, transcript and checkpoints.
func (d *Driver) Delete(ctx context.Context, id string) error {
	if _, err := d.getExecution(ctx, id); err != nil {
		return err
	}
	if err := d.store.DeleteExecution(ctx, id); err != nil {
		return err
	}
	if err := d.transcripts.Delete(id); err != nil {
		d.logger.Warn("transcript not deleted", map[string]interface{}{"execution_id": id, "error": err.Error()})
	}
	if d.checkpoints != nil {
		if err := d.checkpoints.Delete(id); err != nil {
			d.logger.Warn("checkpoints not deleted", map[string]interface{}{"execution_id": id, "error": err.Error()})
		}
	}
	return nil
}

// SetWorkspace changes the directory tools are confined to. An empty path
// clears it.
func (d *Driver) SetWorkspace(ctx context.Context, id, path string) (*store.Execution, error) {
	exec, err := d.getExecution(ctx, id)
	if err != nil {
		return nil, err
	}
	if path != "" {
		if _, err := sandbox.New(path); err != nil {
			return nil, fmt.Errorf("invalid workspace: %w", err)
		}
	}
	exec.WorkspacePath = path
	if err := d.store.PutExecution(ctx, exec); err != nil {
		return nil, err
	}
	return exec, nil
}
