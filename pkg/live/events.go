package live

import "github.com/jarvislabs/jarvis-live/pkg/live/protocol"

// Event is the interface for all session events delivered via
// Session.Events(). Subscribers must not block the reader; emission is
// non-blocking and the channel is buffered.
type Event interface {
	// EventType returns the event type string for serialization.
	EventType() string
}

// StateChangedEvent is emitted on every state machine transition.
type StateChangedEvent struct {
	From State `json:"from"`
	To   State `json:"to"`
}

func (e StateChangedEvent) EventType() string { return "state.changed" }

// TurnAppendedEvent is emitted when a completed turn reaches the log.
type TurnAppendedEvent struct {
	Turn Turn `json:"turn"`
}

func (e TurnAppendedEvent) EventType() string { return "turn.appended" }

// TurnInterruptedEvent is emitted when the server aborts the in-progress
// assistant turn. PartialText is what had accumulated before the abort;
// it is discarded, not logged.
type TurnInterruptedEvent struct {
	PartialText string `json:"partial_text,omitempty"`
}

func (e TurnInterruptedEvent) EventType() string { return "turn.interrupted" }

// GenerationCompleteEvent is emitted when the model finishes generating,
// which may precede turn completion when audio is still streaming.
type GenerationCompleteEvent struct{}

func (e GenerationCompleteEvent) EventType() string { return "generation.complete" }

// ToolCallEvent surfaces one pending tool invocation to the dispatch
// collaborator. The matching response goes back via SendToolResponse.
type ToolCallEvent struct {
	Call protocol.FunctionCall `json:"call"`
}

func (e ToolCallEvent) EventType() string { return "tool.call" }

// AudioChunkEvent carries one decoded assistant audio fragment, in arrival
// order. Also delivered to the playback sink.
type AudioChunkEvent struct {
	MimeType string `json:"mime_type"`
	Data     []byte `json:"-"`
}

func (e AudioChunkEvent) EventType() string { return "audio.chunk" }

// UsageEvent reports updated token accounting.
type UsageEvent struct {
	Usage Usage `json:"usage"`
}

func (e UsageEvent) EventType() string { return "usage.updated" }

// ResumptionUpdatedEvent reports a replaced resumption handle.
type ResumptionUpdatedEvent struct {
	Resumable bool `json:"resumable"`
}

func (e ResumptionUpdatedEvent) EventType() string { return "resumption.updated" }

// ReconnectingEvent is emitted per reconnection attempt.
type ReconnectingEvent struct {
	Attempt int `json:"attempt"`
}

func (e ReconnectingEvent) EventType() string { return "session.reconnecting" }

// WarningEvent reports a recoverable anomaly, such as a tool response with
// no matching pending call or a dropped audio chunk.
type WarningEvent struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e WarningEvent) EventType() string { return "warning" }

// ErrorEvent reports the terminal session error together with the last
// state, so callers can render a user-facing message.
type ErrorEvent struct {
	Err       error `json:"-"`
	LastState State `json:"last_state"`
}

func (e ErrorEvent) EventType() string { return "error" }

// ClosedEvent is the final event before the event channel closes.
type ClosedEvent struct {
	Reason string `json:"reason,omitempty"`
}

func (e ClosedEvent) EventType() string { return "session.closed" }

// Usage tracks cumulative token accounting for a session.
type Usage struct {
	PromptTokens   int `json:"prompt_tokens"`
	ResponseTokens int `json:"response_tokens"`
	TotalTokens    int `json:"total_tokens"`
}
