// Package session keeps the event log of an execution and persists it as a
// JSONL transcript.
package session

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Status values mirror the execution record.
const (
	StatusRunning   = "running"
	StatusPaused    = "paused"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Event types recorded in a transcript. They match the events an execution
// emits.
const (
	EventStatus     = "status"
	EventOpinion    = "opinion"
	EventToolCall   = "tool_call"
	EventToolResult = "tool_result"
	EventUser       = "user"
	EventError      = "error"
)

// Session is the transcript of one execution.
type Session struct {
	ID        string    `json:"id"`
	TeamID    string    `json:"team_id"`
	TeamName  string    `json:"team_name,omitempty"`
	Mode      string    `json:"mode"`
	Topic     string    `json:"topic"`
	Status    string    `json:"status"`
	Summary   string    `json:"summary,omitempty"`
	Error     string    `json:"error,omitempty"`
	Events    []Event   `json:"events"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	seqCounter uint64
	mu         sync.Mutex
}

// Event is one entry in the transcript.
type Event struct {
	SeqID     uint64    `json:"seq"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`

	AgentID string `json:"agent_id,omitempty"`
	Agent   string `json:"agent,omitempty"`
	Round   int    `json:"round,omitempty"`
	Phase   string `json:"phase,omitempty"`

	Content    string                 `json:"content,omitempty"`
	Tool       string                 `json:"tool,omitempty"`
	ToolCallID string                 `json:"tool_call_id,omitempty"`
	Args       map[string]interface{} `json:"args,omitempty"`

	Success    *bool  `json:"success,omitempty"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"duration_ms,omitempty"`

	Meta *EventMeta `json:"meta,omitempty"`
}

// EventMeta carries accounting details of an opinion.
type EventMeta struct {
	Model           string `json:"model,omitempty"`
	TokensIn        int    `json:"tokens_in,omitempty"`
	TokensOut       int    `json:"tokens_out,omitempty"`
	Estimated       bool   `json:"estimated,omitempty"`
	WantsToContinue *bool  `json:"wants_to_continue,omitempty"`
	MessageSeq      int    `json:"message_seq,omitempty"`
}

// New starts an empty transcript for an execution.
func New(id, teamID, mode, topic string) *Session {
	now := time.Now()
	return &Session{
		ID:        id,
		TeamID:    teamID,
		Mode:      mode,
		Topic:     topic,
		Status:    StatusRunning,
		Events:    []Event{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// CurrentSeqID returns the last assigned sequence number, 0 if none.
func (s *Session) CurrentSeqID() uint64 {
	return atomic.LoadUint64(&s.seqCounter)
}

// SetSeqID moves the counter forward, never back.
func (s *Session) SetSeqID(seq uint64) {
	for {
		cur := atomic.LoadUint64(&s.seqCounter)
		if seq <= cur || atomic.CompareAndSwapUint64(&s.seqCounter, cur, seq) {
			return
		}
	}
}

// AddEvent sequences and appends an event. A nonzero SeqID on event is kept
// when it is ahead of the counter, so callers that sequence events
// themselves stay authoritative.
func (s *Session) AddEvent(event Event) Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	if event.SeqID > s.CurrentSeqID() {
		s.SetSeqID(event.SeqID)
	} else {
		event.SeqID = atomic.AddUint64(&s.seqCounter, 1)
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	s.Events = append(s.Events, event)
	s.UpdatedAt = time.Now()
	return event
}

// EventsOfType returns the events with the given type, in order.
func (s *Session) EventsOfType(eventType string) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Event
	for _, e := range s.Events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

// JSONL record types.
const (
	RecordTypeHeader = "header"
	RecordTypeEvent  = "event"
	RecordTypeFooter = "footer"
)

// JSONLRecord is one transcript line.
type JSONLRecord struct {
	RecordType string `json:"_type"`

	// header
	ID        string    `json:"id,omitempty"`
	TeamID    string    `json:"team_id,omitempty"`
	TeamName  string    `json:"team_name,omitempty"`
	Mode      string    `json:"mode,omitempty"`
	Topic     string    `json:"topic,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`

	*Event `json:",omitempty"`

	// footer (final_error keeps Event.Error visible)
	Status     string    `json:"status,omitempty"`
	Summary    string    `json:"summary,omitempty"`
	FinalError string    `json:"final_error,omitempty"`
	UpdatedAt  time.Time `json:"updated_at,omitempty"`
}

// FileStore keeps one <id>.jsonl file per execution.
type FileStore struct {
	dir string
	mu  sync.Mutex
}

// NewFileStore creates the directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create transcript directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Dir returns the transcript directory.
func (s *FileStore) Dir() string { return s.dir }

// Path returns the transcript file of an execution.
func (s *FileStore) Path(id string) string {
	return filepath.Join(s.dir, id+".jsonl")
}

// Save rewrites the whole transcript: header, events, footer.
func (s *FileStore) Save(sess *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess.mu.Lock()
	defer sess.mu.Unlock()

	tmp := s.Path(sess.ID) + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create transcript: %w", err)
	}
	w := bufio.NewWriter(f)

	records := make([]JSONLRecord, 0, len(sess.Events)+2)
	records = append(records, header(sess))
	for i := range sess.Events {
		evt := sess.Events[i]
		records = append(records, JSONLRecord{RecordType: RecordTypeEvent, Event: &evt})
	}
	records = append(records, footer(sess))
	for _, rec := range records {
		if err := writeLine(w, rec); err != nil {
			f.Close()
			return err
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("failed to write transcript: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close transcript: %w", err)
	}
	return os.Rename(tmp, s.Path(sess.ID))
}

// AppendEvent adds one event line to an existing transcript so followers
// see it immediately. The header is written first if the file is empty, and
// a torn last line is cut off before appending.
func (s *FileStore) AppendEvent(sess *Session, evt Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.Path(sess.ID), os.O_CREATE|os.O_RDWR|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open transcript: %w", err)
	}
	defer f.Close()

	size, err := trimTornTail(f)
	if err != nil {
		return err
	}
	if size == 0 {
		sess.mu.Lock()
		h := header(sess)
		sess.mu.Unlock()
		if err := writeLine(f, h); err != nil {
			return err
		}
	}
	return writeLine(f, JSONLRecord{RecordType: RecordTypeEvent, Event: &evt})
}

// trimTornTail truncates f after its last newline, removing a line an
// earlier append left unfinished. It returns the resulting size.
func trimTornTail(f *os.File) (int64, error) {
	info, err := f.Stat()
	if err != nil {
		return 0, err
	}
	end := info.Size()
	buf := make([]byte, 4096)
	for off := end; off > 0; {
		n := int64(len(buf))
		if off < n {
			n = off
		}
		off -= n
		if _, err := f.ReadAt(buf[:n], off); err != nil && err != io.EOF {
			return 0, fmt.Errorf("failed to read transcript: %w", err)
		}
		if i := bytes.LastIndexByte(buf[:n], '\n'); i >= 0 {
			keep := off + int64(i) + 1
			if keep == end {
				return end, nil
			}
			return keep, f.Truncate(keep)
		}
	}
	return 0, f.Truncate(0)
}

// SetAside renames an unreadable transcript so a new one can take its
// place, returning the new path.
func (s *FileStore) SetAside(id string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	aside := fmt.Sprintf("%s.%d.damaged", s.Path(id), time.Now().UnixNano())
	if err := os.Rename(s.Path(id), aside); err != nil {
		return "", err
	}
	return aside, nil
}

// Load reads a transcript by execution id.
func (s *FileStore) Load(id string) (*Session, error) {
	return LoadFile(s.Path(id))
}

// List returns the ids of stored transcripts, newest file first.
func (s *FileStore) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read transcript directory: %w", err)
	}
	type item struct {
		id  string
		mod time.Time
	}
	var items []item
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".jsonl") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		items = append(items, item{strings.TrimSuffix(e.Name(), ".jsonl"), info.ModTime()})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].mod.After(items[j].mod) })
	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.id
	}
	return ids, nil
}

// Delete removes a transcript. A missing file is not an error.
func (s *FileStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.Path(id)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// LoadFile parses a JSONL transcript. Later footers override earlier ones;
// events are kept in sequence order.
func LoadFile(path string) (*Session, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads a transcript from r. An unterminated last line that does not
// decode is a write cut short and is dropped.
func Parse(r io.Reader) (*Session, error) {
	sess := &Session{Events: []Event{}}
	reader := bufio.NewReader(r)
	for {
		line, err := reader.ReadBytes('\n')
		if len(bytes.TrimSpace(line)) > 0 {
			if perr := parseLine(bytes.TrimSpace(line), sess); perr != nil {
				if err == io.EOF {
					break
				}
				return nil, perr
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error reading JSONL: %w", err)
		}
	}

	sort.SliceStable(sess.Events, func(i, j int) bool { return sess.Events[i].SeqID < sess.Events[j].SeqID })
	if n := len(sess.Events); n > 0 {
		sess.seqCounter = sess.Events[n-1].SeqID
	}
	return sess, nil
}

func parseLine(line []byte, sess *Session) error {
	var record JSONLRecord
	if err := json.Unmarshal(line, &record); err != nil {
		return fmt.Errorf("failed to parse JSONL line: %w", err)
	}
	switch record.RecordType {
	case RecordTypeHeader:
		sess.ID = record.ID
		sess.TeamID = record.TeamID
		sess.TeamName = record.TeamName
		sess.Mode = record.Mode
		sess.Topic = record.Topic
		sess.CreatedAt = record.CreatedAt
	case RecordTypeEvent:
		if record.Event != nil {
			sess.Events = append(sess.Events, *record.Event)
		}
	case RecordTypeFooter:
		sess.Status = record.Status
		sess.Summary = record.Summary
		sess.Error = record.FinalError
		sess.UpdatedAt = record.UpdatedAt
	}
	return nil
}

func header(sess *Session) JSONLRecord {
	return JSONLRecord{
		RecordType: RecordTypeHeader,
		ID:         sess.ID,
		TeamID:     sess.TeamID,
		TeamName:   sess.TeamName,
		Mode:       sess.Mode,
		Topic:      sess.Topic,
		CreatedAt:  sess.CreatedAt,
	}
}

func footer(sess *Session) JSONLRecord {
	return JSONLRecord{
		RecordType: RecordTypeFooter,
		Status:     sess.Status,
		Summary:    sess.Summary,
		FinalError: sess.Error,
		UpdatedAt:  sess.UpdatedAt,
	}
}

func writeLine(w io.Writer, record JSONLRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}
	data = append(data, '\n')
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}
	return nil
}
