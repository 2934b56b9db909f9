package live

import (
	"testing"
	"time"

	"github.com/jarvislabs/jarvis-live/pkg/live/protocol"
)

func TestConversationLogAppendOrderAndSnapshot(t *testing.T) {
	log := NewConversationLog()
	log.append(Turn{ID: "t1", Role: protocol.RoleUser, Text: "hi", Timestamp: time.Now()})
	log.append(Turn{ID: "t2", Role: protocol.RoleAssistant, Text: "hello", Timestamp: time.Now()})

	turns := log.Turns()
	if len(turns) != 2 || turns[0].ID != "t1" || turns[1].ID != "t2" {
		t.Fatalf("turns = %+v", turns)
	}

	// Snapshots are copies: mutating one never touches the log.
	turns[0].Text = "mutated"
	if fresh := log.Turns(); fresh[0].Text != "hi" {
		t.Fatalf("snapshot mutation leaked into log: %q", fresh[0].Text)
	}

	last, ok := log.Last()
	if !ok || last.ID != "t2" {
		t.Fatalf("Last = %+v, ok=%v", last, ok)
	}
}

func TestConversationLogEmpty(t *testing.T) {
	log := NewConversationLog()
	if log.Len() != 0 {
		t.Fatalf("Len = %d", log.Len())
	}
	if _, ok := log.Last(); ok {
		t.Fatal("Last on empty log reported a turn")
	}
}

func TestTurnBufferAccumulation(t *testing.T) {
	var buf turnBuffer
	buf.appendPart(protocol.Part{Text: "one "})
	buf.appendPart(protocol.Part{Text: "two"})
	buf.appendPart(protocol.Part{InlineData: &protocol.InlineData{MimeType: "audio/pcm", Data: "AAAA"}})

	if !buf.open {
		t.Fatal("buffer not marked open after parts")
	}
	if got := buf.snapshotText(); got != "one two" {
		t.Fatalf("snapshot text = %q", got)
	}
	if len(buf.parts) != 3 {
		t.Fatalf("parts = %d, want 3", len(buf.parts))
	}

	buf.reset()
	if buf.open || len(buf.parts) != 0 || buf.snapshotText() != "" {
		t.Fatal("reset left state behind")
	}
}
