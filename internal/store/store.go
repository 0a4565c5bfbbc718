// Package store persists agents, teams, model configs, executions and their
// messages in a single SQLite file.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/vinayprograms/agentkit/logging"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// Store is what the execution driver needs from persistence.
type Store interface {
	GetAgent(ctx context.Context, id string) (*Agent, error)
	PutAgent(ctx context.Context, a *Agent) error
	ListAgents(ctx context.Context) ([]Agent, error)
	DeleteAgent(ctx context.Context, id string) error

	GetTeam(ctx context.Context, id string) (*Team, error)
	PutTeam(ctx context.Context, t *Team) error
	ListTeams(ctx context.Context) ([]Team, error)
	DeleteTeam(ctx context.Context, id string) error

	GetModelConfig(ctx context.Context, id string) (*ModelConfig, error)
	PutModelConfig(ctx context.Context, m *ModelConfig) error
	ListModelConfigs(ctx context.Context) ([]ModelConfig, error)

	GetExecution(ctx context.Context, id string) (*Execution, error)
	PutExecution(ctx context.Context, e *Execution) error
	ListExecutions(ctx context.Context) ([]Execution, error)
	DeleteExecution(ctx context.Context, id string) error

	PutMessage(ctx context.Context, m *Message) error
	ListMessages(ctx context.Context, executionID string) ([]Message, error)
	NextSequence(ctx context.Context, executionID string) (int, error)

	EventSequence(ctx context.Context, executionID string) (uint64, error)
	SetEventSequence(ctx context.Context, executionID string, seq uint64) error

	Close() error
}

const (
	tableAgents       = "agents"
	tableTeams        = "teams"
	tableModelConfigs = "model_configs"
	tableExecutions   = "executions"
)

const schema = `
CREATE TABLE IF NOT EXISTS agents (
	id TEXT PRIMARY KEY,
	data_json TEXT NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS teams (
	id TEXT PRIMARY KEY,
	data_json TEXT NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS model_configs (
	id TEXT PRIMARY KEY,
	data_json TEXT NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS executions (
	id TEXT PRIMARY KEY,
	data_json TEXT NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS execution_messages (
	id TEXT PRIMARY KEY,
	execution_id TEXT NOT NULL,
	sequence INTEGER NOT NULL,
	data_json TEXT NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_execution_messages_exec_seq
	ON execution_messages(execution_id, sequence);
CREATE TABLE IF NOT EXISTS execution_events (
	execution_id TEXT PRIMARY KEY,
	last_sequence INTEGER NOT NULL
);
`

// SQLite implements Store.
type SQLite struct {
	db     *sql.DB
	path   string
	logger *logging.Logger
}

// Open opens (creating if needed) the database at path.
func Open(path string) (*SQLite, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	dsn := "file:" + path + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	s := &SQLite{db: db, path: path, logger: logging.New().WithComponent("store")}
	s.logger.Debug("store opened", map[string]interface{}{"path": path})
	return s, nil
}

// Path returns the database file.
func (s *SQLite) Path() string { return s.path }

func (s *SQLite) Close() error { return s.db.Close() }

// IsEmpty reports whether no record of any kind exists yet.
func (s *SQLite) IsEmpty(ctx context.Context) (bool, error) {
	for _, table := range []string{tableAgents, tableTeams, tableModelConfigs, tableExecutions, "execution_messages"} {
		var one int
		err := s.db.QueryRowContext(ctx, "SELECT 1 FROM "+table+" LIMIT 1").Scan(&one)
		if err == nil {
			return false, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return false, fmt.Errorf("failed to inspect %s: %w", table, err)
		}
	}
	return true, nil
}

func getRecord[T any](ctx context.Context, db *sql.DB, table, id string) (*T, error) {
	var data string
	err := db.QueryRowContext(ctx, "SELECT data_json FROM "+table+" WHERE id = ?", id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s %s: %w", table, id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load %s %s: %w", table, id, err)
	}
	var rec T
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return nil, fmt.Errorf("failed to decode %s %s: %w", table, id, err)
	}
	return &rec, nil
}

func listRecords[T any](ctx context.Context, db *sql.DB, table string) ([]T, error) {
	rows, err := db.QueryContext(ctx, "SELECT data_json FROM "+table+" ORDER BY created_at")
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", table, err)
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", table, err)
		}
		var rec T
		if err := json.Unmarshal([]byte(data), &rec); err != nil {
			return nil, fmt.Errorf("failed to decode %s row: %w", table, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func upsertRecord(ctx context.Context, db *sql.DB, table, id string, rec interface{}, created, updated time.Time) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode %s %s: %w", table, id, err)
	}
	_, err = db.ExecContext(ctx, `INSERT INTO `+table+` (id, data_json, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET data_json = excluded.data_json, updated_at = excluded.updated_at`,
		id, string(payload), created.UTC().Format(time.RFC3339Nano), updated.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to save %s %s: %w", table, id, err)
	}
	return nil
}

func deleteRecord(ctx context.Context, db *sql.DB, table, id string) error {
	if _, err := db.ExecContext(ctx, "DELETE FROM "+table+" WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete %s %s: %w", table, id, err)
	}
	return nil
}

// stamp fills id and timestamps for a record about to be saved.
func stamp(id *string, created, updated *time.Time) {
	now := time.Now().UTC()
	if *id == "" {
		*id = uuid.New().String()
	}
	if created.IsZero() {
		*created = now
	}
	*updated = now
}

func (s *SQLite) GetAgent(ctx context.Context, id string) (*Agent, error) {
	return getRecord[Agent](ctx, s.db, tableAgents, id)
}

func (s *SQLite) PutAgent(ctx context.Context, a *Agent) error {
	stamp(&a.ID, &a.CreatedAt, &a.UpdatedAt)
	return upsertRecord(ctx, s.db, tableAgents, a.ID, a, a.CreatedAt, a.UpdatedAt)
}

func (s *SQLite) ListAgents(ctx context.Context) ([]Agent, error) {
	return listRecords[Agent](ctx, s.db, tableAgents)
}

func (s *SQLite) DeleteAgent(ctx context.Context, id string) error {
	return deleteRecord(ctx, s.db, tableAgents, id)
}

func (s *SQLite) GetTeam(ctx context.Context, id string) (*Team, error) {
	return getRecord[Team](ctx, s.db, tableTeams, id)
}

// PutTeam assigns ids to new members as well.
func (s *SQLite) PutTeam(ctx context.Context, t *Team) error {
	stamp(&t.ID, &t.CreatedAt, &t.UpdatedAt)
	for i := range t.Members {
		if t.Members[i].ID == "" {
			t.Members[i].ID = uuid.New().String()
		}
	}
	return upsertRecord(ctx, s.db, tableTeams, t.ID, t, t.CreatedAt, t.UpdatedAt)
}

func (s *SQLite) ListTeams(ctx context.Context) ([]Team, error) {
	return listRecords[Team](ctx, s.db, tableTeams)
}

func (s *SQLite) DeleteTeam(ctx context.Context, id string) error {
	return deleteRecord(ctx, s.db, tableTeams, id)
}

func (s *SQLite) GetModelConfig(ctx context.Context, id string) (*ModelConfig, error) {
	return getRecord[ModelConfig](ctx, s.db, tableModelConfigs, id)
}

func (s *SQLite) PutModelConfig(ctx context.Context, m *ModelConfig) error {
	stamp(&m.ID, &m.CreatedAt, &m.UpdatedAt)
	return upsertRecord(ctx, s.db, tableModelConfigs, m.ID, m, m.CreatedAt, m.UpdatedAt)
}

func (s *SQLite) ListModelConfigs(ctx context.Context) ([]ModelConfig, error) {
	return listRecords[ModelConfig](ctx, s.db, tableModelConfigs)
}

func (s *SQLite) GetExecution(ctx context.Context, id string) (*Execution, error) {
	return getRecord[Execution](ctx, s.db, tableExecutions, id)
}

func (s *SQLite) PutExecution(ctx context.Context, e *Execution) error {
	stamp(&e.ID, &e.CreatedAt, &e.UpdatedAt)
	return upsertRecord(ctx, s.db, tableExecutions, e.ID, e, e.CreatedAt, e.UpdatedAt)
}

func (s *SQLite) ListExecutions(ctx context.Context) ([]Execution, error) {
	return listRecords[Execution](ctx, s.db, tableExecutions)
}

// DeleteExecution removes the execution, its messages and its event sequence.
func (s *SQLite) DeleteExecution(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM executions WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete execution %s: %w", id, err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM execution_messages WHERE execution_id = ?", id); err != nil {
		return fmt.Errorf("failed to delete messages of %s: %w", id, err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM execution_events WHERE execution_id = ?", id); err != nil {
		return fmt.Errorf("failed to delete event sequence of %s: %w", id, err)
	}
	return tx.Commit()
}

// PutMessage inserts or replaces a message keyed by its id.
func (s *SQLite) PutMessage(ctx context.Context, m *Message) error {
	if m.ExecutionID == "" {
		return errors.New("message has no execution id")
	}
	stamp(&m.ID, &m.CreatedAt, &m.UpdatedAt)
	payload, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO execution_messages (id, execution_id, sequence, data_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET data_json = excluded.data_json, updated_at = excluded.updated_at, sequence = excluded.sequence`,
		m.ID, m.ExecutionID, m.Sequence, string(payload),
		m.CreatedAt.Format(time.RFC3339Nano), m.UpdatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to save message: %w", err)
	}
	return nil
}

// ListMessages returns an execution's messages by sequence.
func (s *SQLite) ListMessages(ctx context.Context, executionID string) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT data_json FROM execution_messages WHERE execution_id = ? ORDER BY sequence", executionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		var m Message
		if err := json.Unmarshal([]byte(data), &m); err != nil {
			return nil, fmt.Errorf("failed to decode message: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out, nil
}

// NextSequence returns one past the highest stored message sequence, or 1.
func (s *SQLite) NextSequence(ctx context.Context, executionID string) (int, error) {
	var next sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		"SELECT MAX(sequence) + 1 FROM execution_messages WHERE execution_id = ?", executionID).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("failed to read message sequence: %w", err)
	}
	if !next.Valid {
		return 1, nil
	}
	return int(next.Int64), nil
}

// EventSequence returns the last event sequence recorded for an execution,
// 0 when none was.
func (s *SQLite) EventSequence(ctx context.Context, executionID string) (uint64, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx,
		"SELECT last_sequence FROM execution_events WHERE execution_id = ?", executionID).Scan(&seq)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read event sequence: %w", err)
	}
	return uint64(seq), nil
}

// SetEventSequence records seq as the last event sequence. A lower value
// than the stored one is ignored.
func (s *SQLite) SetEventSequence(ctx context.Context, executionID string, seq uint64) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO execution_events (execution_id, last_sequence) VALUES (?, ?)
		ON CONFLICT(execution_id) DO UPDATE SET last_sequence = MAX(last_sequence, excluded.last_sequence)`,
		executionID, int64(seq))
	if err != nil {
		return fmt.Errorf("failed to save event sequence: %w", err)
	}
	return nil
}
