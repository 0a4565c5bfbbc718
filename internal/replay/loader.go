package replay

import (
	"fmt"

	"github.com/vinayprograms/conclave/internal/collab"
	"github.com/vinayprograms/conclave/internal/session"
)

// loadSession reads a transcript and truncates oversized content so very
// long executions stay renderable.
func (r *Replayer) loadSession(path string) (*session.Session, error) {
	sess, err := session.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load transcript: %w", err)
	}
	if r.maxContentSize > 0 {
		for i := range sess.Events {
			if n := len(sess.Events[i].Content); n > r.maxContentSize {
				sess.Events[i].Content = collab.Clip(sess.Events[i].Content, r.maxContentSize) +
					fmt.Sprintf("\n... [truncated, %d bytes total]", n)
			}
		}
	}
	return sess, nil
}
