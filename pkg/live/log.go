package live

import (
	"strings"
	"sync"
	"time"

	"github.com/jarvislabs/jarvis-live/pkg/live/protocol"
)

// Turn is one completed, immutable unit of conversation content.
type Turn struct {
	ID        string
	Role      string
	Text      string
	Parts     []protocol.Part
	Timestamp time.Time
}

// ConversationLog is the append-only ordered record of completed turns.
// Only the session state machine writes it; everyone else reads snapshots.
type ConversationLog struct {
	mu    sync.Mutex
	turns []Turn
}

func NewConversationLog() *ConversationLog {
	return &ConversationLog{
		turns: make([]Turn, 0, 16),
	}
}

func (l *ConversationLog) append(t Turn) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.turns = append(l.turns, t)
}

// Turns returns a read-only snapshot in append order.
func (l *ConversationLog) Turns() []Turn {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Turn, len(l.turns))
	copy(out, l.turns)
	return out
}

// Len returns the number of completed turns.
func (l *ConversationLog) Len() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.turns)
}

// Last returns the most recently appended turn.
func (l *ConversationLog) Last() (Turn, bool) {
	if l == nil {
		return Turn{}, false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.turns) == 0 {
		return Turn{}, false
	}
	return l.turns[len(l.turns)-1], true
}

// turnBuffer accumulates the in-progress assistant turn. Parts are
// append-only until the turn completes; an interruption discards the buffer.
type turnBuffer struct {
	parts []protocol.Part
	text  strings.Builder
	open  bool
}

func (b *turnBuffer) appendPart(part protocol.Part) {
	b.open = true
	b.parts = append(b.parts, part)
	if part.Text != "" {
		b.text.WriteString(part.Text)
	}
}

func (b *turnBuffer) snapshotText() string {
	return b.text.String()
}

func (b *turnBuffer) reset() {
	b.parts = nil
	b.text.Reset()
	b.open = false
}
