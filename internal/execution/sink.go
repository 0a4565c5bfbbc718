package execution

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vinayprograms/agentkit/logging"

	"github.com/vinayprograms/conclave/internal/eventbus"
	"github.com/vinayprograms/conclave/internal/orchestration"
	"github.com/vinayprograms/conclave/internal/session"
	"github.com/vinayprograms/conclave/internal/store"
)

// Sender types of persisted messages.
const (
	SenderUser  = "user"
	SenderAgent = "agent"
)

// userName is the sender name of user messages.
const userName = "you"

// Listener observes every event after it is sequenced.
type Listener func(env eventbus.Envelope)

// Sink sequences the events of one execution. It owns the event counter,
// persists opinions and user input as messages, mirrors every event into
// the transcript and forwards it to the bus and listener.
type Sink struct {
	ctx         context.Context
	executionID string
	store       store.Store
	transcript  *session.Session
	transcripts *session.FileStore
	bus         eventbus.Publisher
	listener    Listener
	logger      *logging.Logger

	mu     sync.Mutex
	seq    uint64
	msgSeq int
}

// SinkConfig wires a Sink. Transcripts, Bus and Listener are optional.
type SinkConfig struct {
	ExecutionID string
	Store       store.Store
	Transcript  *session.Session
	Transcripts *session.FileStore
	Bus         eventbus.Publisher
	Listener    Listener
}

// NewSink continues the event and message sequences where the transcript
// and the store left them. Writes outlive cancellation of ctx so the events
// that close an interrupted round are still recorded.
func NewSink(ctx context.Context, cfg SinkConfig) (*Sink, error) {
	next, err := cfg.Store.NextSequence(ctx, cfg.ExecutionID)
	if err != nil {
		return nil, err
	}
	last, err := cfg.Store.EventSequence(ctx, cfg.ExecutionID)
	if err != nil {
		return nil, err
	}
	bus := cfg.Bus
	if bus == nil {
		bus = eventbus.Nop{}
	}
	transcript := cfg.Transcript
	if transcript == nil {
		transcript = session.New(cfg.ExecutionID, "", "", "")
	}
	// The transcript may be missing or behind the store; never reuse a number.
	if seq := transcript.CurrentSeqID(); seq > last {
		last = seq
	}
	return &Sink{
		ctx:         context.WithoutCancel(ctx),
		executionID: cfg.ExecutionID,
		store:       cfg.Store,
		transcript:  transcript,
		transcripts: cfg.Transcripts,
		bus:         bus,
		listener:    cfg.Listener,
		logger:      logging.New().WithComponent("execution"),
		seq:         last,
		msgSeq:      next,
	}, nil
}

// Transcript returns the session the sink writes into.
func (s *Sink) Transcript() *session.Session { return s.transcript }

// Sequence returns the last event sequence number.
func (s *Sink) Sequence() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}

// Emit implements orchestration.Emitter. Opinion events are stored as
// messages first; their data gains message_id and message_sequence.
func (s *Sink) Emit(eventType string, data map[string]interface{}, agentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if data == nil {
		data = map[string]interface{}{}
	}
	if eventType == orchestration.EventOpinion {
		msg := opinionMessage(data, agentID)
		if err := s.persist(msg); err != nil {
			return err
		}
		data["message_id"] = msg.ID
		data["message_sequence"] = msg.Sequence
	}
	return s.emit(eventType, data, agentID)
}

// UserMessage stores the round's input and emits it as a user event.
func (s *Sink) UserMessage(content string, round int, targetAgentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg := &store.Message{
		Round:         round,
		Phase:         SenderUser,
		SenderType:    SenderUser,
		SenderName:    userName,
		Content:       content,
		TargetAgentID: targetAgentID,
	}
	if err := s.persist(msg); err != nil {
		return err
	}
	data := map[string]interface{}{
		"content":          content,
		"phase":            SenderUser,
		"round":            round,
		"message_id":       msg.ID,
		"message_sequence": msg.Sequence,
	}
	if targetAgentID != "" {
		data["target_agent_id"] = targetAgentID
	}
	return s.emit(orchestration.EventUser, data, "")
}

func (s *Sink) persist(msg *store.Message) error {
	msg.ExecutionID = s.executionID
	msg.Sequence = s.msgSeq
	if msg.ContentType == "" {
		msg.ContentType = "text"
	}
	if err := s.store.PutMessage(s.ctx, msg); err != nil {
		return fmt.Errorf("failed to persist message %d: %w", msg.Sequence, err)
	}
	s.msgSeq++
	return nil
}

// emit must be called with mu held. The sequence number is recorded in the
// store before the event goes anywhere else; transcript and bus delivery
// failures are logged, never returned.
func (s *Sink) emit(eventType string, data map[string]interface{}, agentID string) error {
	if err := s.store.SetEventSequence(s.ctx, s.executionID, s.seq+1); err != nil {
		return err
	}
	s.seq++
	env := eventbus.Envelope{
		ExecutionID: s.executionID,
		EventType:   eventType,
		Data:        data,
		AgentID:     agentID,
		Sequence:    s.seq,
		Timestamp:   time.Now(),
	}

	evt := s.transcript.AddEvent(toSessionEvent(env))
	if s.transcripts != nil {
		if err := s.transcripts.AppendEvent(s.transcript, evt); err != nil {
			s.logger.Warn("transcript append failed", map[string]interface{}{
				"execution_id": s.executionID,
				"error":        err.Error(),
			})
		}
	}
	if err := s.bus.Publish(env); err != nil {
		s.logger.Warn("event not published", map[string]interface{}{
			"execution_id": s.executionID,
			"sequence":     env.Sequence,
			"error":        err.Error(),
		})
	}
	if s.listener != nil {
		s.listener(env)
	}
	return nil
}

func opinionMessage(data map[string]interface{}, agentID string) *store.Message {
	msg := &store.Message{
		Round:           intField(data, "round"),
		Phase:           stringField(data, "phase"),
		SenderType:      SenderAgent,
		SenderID:        agentID,
		SenderName:      stringField(data, "agent_name"),
		Content:         stringField(data, "content"),
		RespondingTo:    stringField(data, "responding_to"),
		WantsToContinue: boolField(data, "wants_to_continue"),
		InputTokens:     intField(data, "input_tokens"),
		OutputTokens:    intField(data, "output_tokens"),
	}
	if agentID == "" {
		msg.SenderType = "system"
	}
	if meta, ok := data["metadata"].(map[string]interface{}); ok {
		msg.Metadata = meta
		msg.TokensEstimated = boolField(meta, "tokens_estimated")
	}
	return msg
}

func toSessionEvent(env eventbus.Envelope) session.Event {
	d := env.Data
	evt := session.Event{
		SeqID:      env.Sequence,
		Type:       env.EventType,
		Timestamp:  env.Timestamp,
		AgentID:    env.AgentID,
		Agent:      stringField(d, "agent_name"),
		Round:      intField(d, "round"),
		Phase:      stringField(d, "phase"),
		Content:    stringField(d, "content"),
		Tool:       stringField(d, "tool_name"),
		ToolCallID: stringField(d, "tool_call_id"),
		Error:      stringField(d, "error"),
		DurationMs: int64(intField(d, "duration_ms")),
	}
	if evt.Content == "" {
		evt.Content = stringField(d, "message")
	}
	if evt.Content == "" {
		evt.Content = stringField(d, "status")
	}
	if evt.Type == orchestration.EventError && evt.Error == "" {
		evt.Error = stringField(d, "message")
	}
	if args, ok := d["arguments"].(map[string]interface{}); ok {
		evt.Args = args
	}
	if ok, present := d["ok"].(bool); present {
		evt.Success = &ok
	}
	if env.EventType == orchestration.EventOpinion {
		wants := boolField(d, "wants_to_continue")
		meta := &session.EventMeta{
			TokensIn:        intField(d, "input_tokens"),
			TokensOut:       intField(d, "output_tokens"),
			WantsToContinue: &wants,
			MessageSeq:      intField(d, "message_sequence"),
		}
		if m, ok := d["metadata"].(map[string]interface{}); ok {
			meta.Model = stringField(m, "model")
			meta.Estimated = boolField(m, "tokens_estimated")
		}
		evt.Meta = meta
	}
	if env.EventType == orchestration.EventUser {
		evt.Agent = userName
		evt.AgentID = stringField(d, "target_agent_id")
	}
	return evt
}

func stringField(d map[string]interface{}, key string) string {
	if v, ok := d[key].(string); ok {
		return v
	}
	return ""
}

func boolField(d map[string]interface{}, key string) bool {
	v, _ := d[key].(bool)
	return v
}

func intField(d map[string]interface{}, key string) int {
	switch v := d[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case uint64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}
