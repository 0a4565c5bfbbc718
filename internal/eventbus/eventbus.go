// Package eventbus forwards execution events to external subscribers.
package eventbus

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/vinayprograms/agentkit/logging"
)

// DefaultPrefix is the subject prefix used when none is configured.
const DefaultPrefix = "conclave.executions"

// Envelope is the wire form of one event.
type Envelope struct {
	ExecutionID string                 `json:"execution_id"`
	EventType   string                 `json:"event_type"`
	Data        map[string]interface{} `json:"data"`
	AgentID     string                 `json:"agent_id,omitempty"`
	Sequence    uint64                 `json:"sequence"`
	Timestamp   time.Time              `json:"timestamp"`
}

// Publisher delivers envelopes. Implementations must be safe for
// concurrent use.
type Publisher interface {
	Publish(env Envelope) error
	Close() error
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(Envelope) error { return nil }
func (Nop) Close() error           { return nil }

// conn is the part of *nats.Conn the publisher uses.
type conn interface {
	Publish(subject string, data []byte) error
	Drain() error
}

// NATS publishes each envelope as JSON on <prefix>.<execution id>.
type NATS struct {
	conn   conn
	prefix string
	logger *logging.Logger
}

// Config controls the NATS connection.
type Config struct {
	URL    string
	Prefix string
	Name   string
}

// Connect dials the server in cfg.
func Connect(cfg Config) (*NATS, error) {
	name := cfg.Name
	if name == "" {
		name = "conclave"
	}
	nc, err := nats.Connect(cfg.URL,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", cfg.URL, err)
	}
	return newNATS(nc, cfg.Prefix), nil
}

func newNATS(c conn, prefix string) *NATS {
	prefix = strings.Trim(prefix, ".")
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &NATS{conn: c, prefix: prefix, logger: logging.New().WithComponent("eventbus")}
}

// Subject returns the subject events of an execution go to.
func (n *NATS) Subject(executionID string) string {
	return n.prefix + "." + executionID
}

func (n *NATS) Publish(env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	if err := n.conn.Publish(n.Subject(env.ExecutionID), data); err != nil {
		n.logger.Warn("publish failed", map[string]interface{}{
			"execution_id": env.ExecutionID,
			"sequence":     env.Sequence,
			"error":        err.Error(),
		})
		return fmt.Errorf("failed to publish event %d: %w", env.Sequence, err)
	}
	return nil
}

// Close flushes pending messages and closes the connection.
func (n *NATS) Close() error {
	return n.conn.Drain()
}
