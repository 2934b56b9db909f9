package live

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"github.com/jarvislabs/jarvis-live/pkg/core"
	"github.com/jarvislabs/jarvis-live/pkg/live/protocol"
)

// State is the connection lifecycle state of a session.
type State int

const (
	// StateDisconnected is the initial state and the clean terminal state
	// after an explicit close. A disconnected session may be reopened.
	StateDisconnected State = iota
	// StateConnecting covers credential issuance, dialing, and the setup
	// handshake.
	StateConnecting
	// StateConnected means setupComplete was received; only now may media
	// and content messages be sent.
	StateConnected
	// StateReconnecting means the link dropped and a resumable handle is
	// being replayed, bounded by the retry cap.
	StateReconnecting
	// StateError is terminal. The session error is surfaced to the caller.
	StateError
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateReconnecting:
		return "RECONNECTING"
	case StateError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Config holds all configuration for a session.
type Config struct {
	// Model is the upstream model or agent identifier. Required.
	Model string

	// SystemInstruction is the optional system prompt sent in setup.
	SystemInstruction string

	// Temperature must be in [0,2] when set.
	Temperature *float64
	// TopK must be a positive integer when set.
	TopK *int
	// TopP must be in [0,1] when set.
	TopP *float64

	// ResponseModalities requested from the model. Defaults to AUDIO.
	ResponseModalities []string

	// MaxChunkBytes caps the raw payload per outbound media chunk.
	MaxChunkBytes int
	// PlaybackBufferChunks bounds inbound jitter buffering.
	PlaybackBufferChunks int
	// AudioQueueChunks bounds the outbound audio queue.
	AudioQueueChunks int

	// MaxReconnectAttempts caps resumption retries. Default 4.
	MaxReconnectAttempts uint64
	// ReconnectBackoffBase is the first retry delay. Default 500ms.
	ReconnectBackoffBase time.Duration
	// ReconnectBackoffCap bounds the exponential growth. Default 5s.
	ReconnectBackoffCap time.Duration

	// CredentialRefreshMargin triggers reissue when the stored credential
	// is this close to expiry. Default 30s.
	CredentialRefreshMargin time.Duration

	// HandshakeTimeout bounds the wait for setupComplete. Default 15s.
	HandshakeTimeout time.Duration

	// EventBuffer sizes the event channel. Default 256.
	EventBuffer int
}

func (c *Config) withDefaults() {
	if len(c.ResponseModalities) == 0 {
		c.ResponseModalities = []string{protocol.ModalityAudio}
	}
	if c.MaxReconnectAttempts == 0 {
		c.MaxReconnectAttempts = 4
	}
	if c.ReconnectBackoffBase <= 0 {
		c.ReconnectBackoffBase = 500 * time.Millisecond
	}
	if c.ReconnectBackoffCap <= 0 {
		c.ReconnectBackoffCap = 5 * time.Second
	}
	if c.CredentialRefreshMargin <= 0 {
		c.CredentialRefreshMargin = DefaultRefreshMargin
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 15 * time.Second
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = 256
	}
}

// Option customizes a session at construction time.
type Option func(*Session)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) { s.logger = logger }
}

// WithPlaybackSink sets the audio playback collaborator.
func WithPlaybackSink(sink PlaybackSink) Option {
	return func(s *Session) { s.sink = sink }
}

// WithDialer overrides the transport dialer.
func WithDialer(dialer Dialer) Option {
	return func(s *Session) { s.dialer = dialer }
}

// WithTracker registers the session with a process-wide tracker for the
// lifetime of its Open/Close cycle.
func WithTracker(tracker *Tracker) Option {
	return func(s *Session) { s.tracker = tracker }
}

// Session owns the connection lifecycle, setup handshake, turn-taking,
// interruption, tool-call dispatch, and resumption for one realtime
// conversation. It is not reentrant: one Open per session at a time.
type Session struct {
	id       string
	cfg      Config
	provider TokenProvider
	dialer   Dialer
	logger   *slog.Logger
	sink     PlaybackSink
	tracker  *Tracker

	framer   Framer
	playback *playbackBuffer
	outbound *sendQueue
	log      *ConversationLog

	mu           sync.Mutex
	state        State
	channel      Channel
	cred         Credential
	handle       string
	resumable    bool
	setupCount   int
	current      turnBuffer
	speaking     bool
	pending      map[string]protocol.FunctionCall
	usage        Usage
	err          error
	started      bool
	untrack      func()
	createdAt    time.Time
	lastActivity time.Time

	cancel context.CancelFunc

	emitMu       sync.Mutex
	events       chan Event
	eventsClosed bool

	doneOnce sync.Once
	done     chan struct{}

	pumpWake chan struct{}
}

// NewSession builds a session. The token provider is required; the dialer
// defaults to a websocket dialer.
func NewSession(cfg Config, provider TokenProvider, opts ...Option) (*Session, error) {
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, core.NewInvalidRequestErrorWithParam("session model must not be empty", "model")
	}
	if provider == nil {
		return nil, core.NewInvalidRequestError("token provider must not be nil")
	}
	cfg.withDefaults()

	s := &Session{
		id:       "sess_" + uuid.NewString(),
		cfg:      cfg,
		provider: provider,
		dialer:   WebsocketDialer{HandshakeTimeout: cfg.HandshakeTimeout},
		logger:   slog.Default(),
		sink:     NopSink{},
		framer:   Framer{MaxChunkBytes: cfg.MaxChunkBytes},
		outbound: newSendQueue(cfg.AudioQueueChunks),
		log:      NewConversationLog(),
		pending:  make(map[string]protocol.FunctionCall),
		events:   make(chan Event, cfg.EventBuffer),
		done:     make(chan struct{}),
		pumpWake: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.playback = newPlaybackBuffer(s.sink, cfg.PlaybackBufferChunks)

	// Validate sampling bounds up front rather than at the first Open.
	setup := s.buildSetup("")
	if err := protocol.ValidateSetup(setup); err != nil {
		return nil, core.NewInvalidRequestError(err.Error())
	}
	return s, nil
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Log returns the conversation log (read-only snapshots).
func (s *Session) Log() *ConversationLog { return s.log }

// Usage returns cumulative token accounting.
func (s *Session) Usage() Usage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.usage
}

// IsSpeaking reports whether assistant output is currently streaming.
func (s *Session) IsSpeaking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.speaking
}

// PendingToolCalls returns the tool calls awaiting a response.
func (s *Session) PendingToolCalls() []protocol.FunctionCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]protocol.FunctionCall, 0, len(s.pending))
	for _, call := range s.pending {
		out = append(out, call)
	}
	return out
}

// Events yields typed session events. The channel closes exactly once when
// the session reaches a terminal state.
func (s *Session) Events() <-chan Event {
	if s == nil {
		return nil
	}
	return s.events
}

// Err returns the terminal session error, if any. Blocks until the session
// has fully stopped.
func (s *Session) Err() error {
	if s == nil {
		return nil
	}
	<-s.done
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Open connects the session: issues a credential, opens the transport,
// performs the setup handshake, and starts the read and send loops. It is
// rejected while the session is anywhere but disconnected, so two parallel
// transport channels can never exist.
func (s *Session) Open(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	if s.state != StateDisconnected {
		state := s.state
		s.mu.Unlock()
		cancel()
		return core.NewInvalidRequestError(fmt.Sprintf("open rejected in state %s", state))
	}
	if s.started {
		s.mu.Unlock()
		cancel()
		return core.NewInvalidRequestError("session cannot be reopened after close")
	}
	// cancel is published in the same critical section as the transition to
	// connecting, so an overlapping Close can always abort this attempt.
	s.setStateLocked(StateConnecting)
	s.createdAt = time.Now()
	s.cancel = cancel
	s.untrack = s.tracker.Track(s)
	s.mu.Unlock()

	ch, err := s.connect(runCtx, "")
	if err != nil {
		cancel()
		if errors.Is(err, context.Canceled) || runCtx.Err() != nil {
			// Caller-supplied cancellation or an overlapping Close: clean
			// teardown, not an error state.
			s.mu.Lock()
			s.setStateLocked(StateDisconnected)
			s.mu.Unlock()
			s.shutdown("open cancelled")
			return err
		}
		s.fail(err)
		s.shutdown("open failed")
		return err
	}

	s.mu.Lock()
	if runCtx.Err() != nil || s.state != StateConnecting {
		// Close ran while the dial was in flight. The session stays down
		// and the fresh channel must not leak.
		s.setStateLocked(StateDisconnected)
		s.mu.Unlock()
		cancel()
		_ = ch.Close()
		s.shutdown("closed while connecting")
		return core.NewInvalidRequestError("session closed while connecting")
	}
	s.channel = ch
	s.started = true
	s.setStateLocked(StateConnected)
	s.mu.Unlock()

	go s.runLoop(runCtx, ch)
	go s.sendPump(runCtx)
	return nil
}

// Close tears the session down cleanly from any state. Idempotent.
func (s *Session) Close() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	s.setStateLocked(StateDisconnected)
	ch := s.channel
	s.channel = nil
	cancel := s.cancel
	started := s.started
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if ch != nil {
		_ = ch.Close()
	}
	if !started {
		s.shutdown("closed")
	}
	<-s.done
	return nil
}

// SendText sends a user text turn. Only valid while connected; sending
// before setup completion is a protocol violation and is rejected.
func (s *Session) SendText(text string, turnComplete bool) error {
	ch, err := s.connectedChannel()
	if err != nil {
		return err
	}
	if err := ch.Send(protocol.NewClientContent(text, turnComplete)); err != nil {
		return err
	}
	s.touch()
	if turnComplete {
		turn := Turn{
			ID:        "turn_" + uuid.NewString(),
			Role:      protocol.RoleUser,
			Text:      text,
			Parts:     []protocol.Part{{Text: text}},
			Timestamp: time.Now(),
		}
		s.log.append(turn)
		s.emit(TurnAppendedEvent{Turn: turn})
	}
	return nil
}

// SendAudio frames one capture buffer and enqueues it for transmission.
// Audio is never dropped silently: a full queue surfaces a warning event
// and an error to the caller.
func (s *Session) SendAudio(pcm []byte) error {
	if _, err := s.connectedChannel(); err != nil {
		return err
	}
	for _, chunk := range s.framer.Frame(MimePCM16k, pcm) {
		if err := s.outbound.enqueueAudio(chunk); err != nil {
			s.emit(WarningEvent{Code: "audio_dropped", Message: "outbound audio queue is full; chunk rejected"})
			return err
		}
	}
	s.wakePump()
	return nil
}

// SendVideoFrame enqueues one screen/camera frame. A frame still waiting in
// the queue is replaced by the newer one: stale video is worthless.
func (s *Session) SendVideoFrame(jpeg []byte) error {
	if _, err := s.connectedChannel(); err != nil {
		return err
	}
	if len(jpeg) == 0 {
		return core.NewInvalidRequestError("video frame must not be empty")
	}
	frame := s.framer.FrameWhole(MimeJPEG, jpeg)
	if replaced := s.outbound.enqueueVideo(frame); replaced {
		s.logger.Debug("stale video frame replaced", "session_id", s.id)
	}
	s.wakePump()
	return nil
}

// SendToolResponse answers a pending tool call by id. A response with no
// matching pending call is a recoverable warning, not a failure.
func (s *Session) SendToolResponse(id string, response map[string]any) error {
	ch, err := s.connectedChannel()
	if err != nil {
		return err
	}
	id = strings.TrimSpace(id)

	s.mu.Lock()
	_, matched := s.pending[id]
	if matched {
		delete(s.pending, id)
	}
	s.mu.Unlock()

	if !matched {
		s.logger.Warn("tool response without matching pending call", "session_id", s.id, "tool_call_id", id)
		s.emit(WarningEvent{Code: "tool_response_unmatched", Message: fmt.Sprintf("no pending tool call with id %q", id)})
		return nil
	}
	if err := ch.Send(protocol.NewToolResponse(id, response)); err != nil {
		return err
	}
	s.touch()
	return nil
}

func (s *Session) connectedChannel() (Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateConnected {
		return nil, core.NewInvalidRequestError(fmt.Sprintf("send rejected in state %s: session is not connected", s.state))
	}
	if s.channel == nil {
		return nil, core.NewTransportMisuseError("session has no transport channel")
	}
	return s.channel, nil
}

func (s *Session) buildSetup(handle string) protocol.Setup {
	return protocol.NewSetup(s.cfg.Model, protocol.GenerationConfig{
		Temperature:        s.cfg.Temperature,
		TopK:               s.cfg.TopK,
		TopP:               s.cfg.TopP,
		ResponseModalities: s.cfg.ResponseModalities,
	}, s.cfg.SystemInstruction, handle)
}

// connect issues a credential if needed, dials, and performs the setup
// handshake. The setup message is always the first outbound frame on the
// new channel.
func (s *Session) connect(ctx context.Context, handle string) (Channel, error) {
	cred, err := s.freshCredential(ctx, false)
	if err != nil {
		return nil, err
	}

	ch, err := s.dialer.Dial(ctx, cred)
	if err != nil {
		var coreErr *core.Error
		if errors.As(err, &coreErr) && coreErr.Type == core.ErrUpstream &&
			(coreErr.UpstreamStatus == 401 || coreErr.UpstreamStatus == 403) {
			// Rejected credential: reissue immediately instead of retrying
			// the same token blindly.
			cred, err = s.freshCredential(ctx, true)
			if err != nil {
				return nil, err
			}
			ch, err = s.dialer.Dial(ctx, cred)
		}
		if err != nil {
			return nil, err
		}
	}

	setup := s.buildSetup(handle)
	if err := protocol.ValidateSetup(setup); err != nil {
		_ = ch.Close()
		return nil, core.NewInvalidRequestError(err.Error())
	}
	if err := ch.Send(setup); err != nil {
		_ = ch.Close()
		return nil, err
	}
	s.mu.Lock()
	s.setupCount++
	s.mu.Unlock()

	if err := s.awaitSetupComplete(ctx, ch); err != nil {
		_ = ch.Close()
		return nil, err
	}
	s.touch()
	return ch, nil
}

func (s *Session) awaitSetupComplete(ctx context.Context, ch Channel) error {
	timer := time.NewTimer(s.cfg.HandshakeTimeout)
	defer timer.Stop()

	select {
	case inbound, ok := <-ch.Receive():
		if !ok {
			return core.NewDisconnectedError("channel closed before setupComplete")
		}
		if inbound.Err != nil {
			return inbound.Err
		}
		msg, err := protocol.DecodeServerMessage(inbound.Data)
		if err != nil {
			return core.NewAPIError(fmt.Sprintf("decode handshake frame: %v", err))
		}
		if _, ok := msg.(protocol.SetupComplete); !ok {
			return core.NewAPIError(fmt.Sprintf("unexpected first frame %T before setupComplete", msg))
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return core.NewDisconnectedError("setup handshake timed out")
	}
}

func (s *Session) freshCredential(ctx context.Context, force bool) (Credential, error) {
	s.mu.Lock()
	cred := s.cred
	s.mu.Unlock()

	if !force && strings.TrimSpace(cred.Token)+strings.TrimSpace(cred.URL) != "" && !cred.ExpiresWithin(s.cfg.CredentialRefreshMargin) {
		return cred, nil
	}

	issued, err := s.provider.IssueCredential(ctx, s.cfg.Model)
	if err != nil {
		return Credential{}, err
	}
	s.mu.Lock()
	s.cred = issued
	s.mu.Unlock()
	return issued, nil
}

func (s *Session) runLoop(ctx context.Context, ch Channel) {
	defer s.shutdown("session stopped")

	for {
		// A server close without an error frame is still a disconnect, so
		// any return from consume means the link is gone.
		s.consume(ch)

		s.mu.Lock()
		state := s.state
		s.mu.Unlock()
		if ctx.Err() != nil || state == StateDisconnected {
			return
		}

		next, err := s.reconnect(ctx)
		if err != nil {
			if ctx.Err() != nil {
				s.mu.Lock()
				s.setStateLocked(StateDisconnected)
				s.mu.Unlock()
				return
			}
			s.fail(err)
			return
		}
		ch = next
	}
}

// consume drains one channel until it closes.
func (s *Session) consume(ch Channel) {
	for inbound := range ch.Receive() {
		if inbound.Err != nil {
			return
		}
		s.handleFrame(inbound.Data)
	}
}

func (s *Session) reconnect(ctx context.Context) (Channel, error) {
	s.mu.Lock()
	handle := s.handle
	resumable := s.resumable
	s.channel = nil
	s.mu.Unlock()

	if !resumable || strings.TrimSpace(handle) == "" {
		return nil, core.NewDisconnectedError("link dropped with no resumable handle")
	}

	s.mu.Lock()
	s.setStateLocked(StateReconnecting)
	s.mu.Unlock()

	attempt := 0
	var ch Channel
	backoff := retry.WithMaxRetries(s.cfg.MaxReconnectAttempts,
		retry.WithCappedDuration(s.cfg.ReconnectBackoffCap, retry.NewExponential(s.cfg.ReconnectBackoffBase)))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		s.emit(ReconnectingEvent{Attempt: attempt})
		s.logger.Info("reconnecting session", "session_id", s.id, "attempt", attempt)

		next, err := s.connect(ctx, handle)
		if err != nil {
			if ctx.Err() != nil {
				return err
			}
			return retry.RetryableError(err)
		}
		ch = next
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, core.NewDisconnectedError(fmt.Sprintf("reconnect attempts exhausted after %d tries: %v", attempt, err))
	}

	s.mu.Lock()
	s.channel = ch
	s.setStateLocked(StateConnected)
	s.mu.Unlock()
	s.wakePump()
	return ch, nil
}

func (s *Session) handleFrame(data []byte) {
	s.touch()
	msg, err := protocol.DecodeServerMessage(data)
	if err != nil {
		s.logger.Warn("undecodable inbound frame", "session_id", s.id, "error", err)
		s.emit(WarningEvent{Code: "undecodable_frame", Message: err.Error()})
		return
	}

	switch m := msg.(type) {
	case protocol.SetupComplete:
		// Handshake acks are consumed during connect; a stray one is noise.
		s.emit(WarningEvent{Code: "unexpected_setup_complete", Message: "setupComplete received mid-session"})
	case protocol.ServerContent:
		s.handleServerContent(m)
	case protocol.ToolCall:
		s.handleToolCall(m)
	case protocol.SessionResumptionUpdate:
		s.mu.Lock()
		if strings.TrimSpace(m.NewHandle) != "" {
			s.handle = m.NewHandle
		}
		s.resumable = m.Resumable
		s.mu.Unlock()
		s.emit(ResumptionUpdatedEvent{Resumable: m.Resumable})
	case protocol.UsageMetadata:
		s.mu.Lock()
		s.usage = Usage{
			PromptTokens:   m.PromptTokenCount,
			ResponseTokens: m.ResponseTokenCount,
			TotalTokens:    m.TotalTokenCount,
		}
		usage := s.usage
		s.mu.Unlock()
		s.emit(UsageEvent{Usage: usage})
	}
}

func (s *Session) handleServerContent(m protocol.ServerContent) {
	// Interruption wins over everything else in the same frame: the
	// in-progress turn is discarded and buffered audio must not play.
	if m.Interrupted {
		s.mu.Lock()
		partial := s.current.snapshotText()
		s.current.reset()
		s.speaking = false
		s.mu.Unlock()
		s.playback.discard()
		s.emit(TurnInterruptedEvent{PartialText: partial})
		return
	}

	if m.ModelTurn != nil {
		for _, part := range m.ModelTurn.Parts {
			s.mu.Lock()
			s.current.appendPart(part)
			s.speaking = true
			s.mu.Unlock()

			if part.InlineData != nil {
				audio, err := s.framer.DecodeInline(*part.InlineData)
				if err != nil {
					s.emit(WarningEvent{Code: "bad_media_part", Message: err.Error()})
					continue
				}
				s.playback.deliver(part.InlineData.MimeType, audio)
				s.emit(AudioChunkEvent{MimeType: part.InlineData.MimeType, Data: audio})
			}
		}
	}

	if m.GenerationComplete {
		s.emit(GenerationCompleteEvent{})
	}

	if m.TurnComplete {
		s.mu.Lock()
		open := s.current.open
		turn := Turn{
			ID:        "turn_" + uuid.NewString(),
			Role:      protocol.RoleAssistant,
			Text:      s.current.snapshotText(),
			Parts:     append([]protocol.Part(nil), s.current.parts...),
			Timestamp: time.Now(),
		}
		s.current.reset()
		s.speaking = false
		s.mu.Unlock()

		s.playback.drainAll()
		if open {
			s.log.append(turn)
			s.emit(TurnAppendedEvent{Turn: turn})
		}
	}
}

func (s *Session) handleToolCall(m protocol.ToolCall) {
	for _, call := range m.FunctionCalls {
		s.mu.Lock()
		s.pending[call.ID] = call
		s.mu.Unlock()
		s.emit(ToolCallEvent{Call: call})
	}
}

func (s *Session) sendPump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.pumpWake:
		}

		for {
			s.mu.Lock()
			ch := s.channel
			connected := s.state == StateConnected
			s.mu.Unlock()
			if !connected || ch == nil {
				// Chunks stay queued; reconnection wakes the pump again.
				break
			}

			chunk, ok := s.outbound.next()
			if !ok {
				break
			}
			msg := protocol.NewRealtimeInput([]protocol.MediaChunk{chunk})
			if err := ch.Send(msg); err != nil {
				if IsAudioMime(chunk.MimeType) {
					s.outbound.requeueAudioFront(chunk)
				}
				break
			}
		}
	}
}

func (s *Session) wakePump() {
	select {
	case s.pumpWake <- struct{}{}:
	default:
	}
}

func (s *Session) setStateLocked(next State) {
	if s.state == next {
		return
	}
	prev := s.state
	s.state = next
	s.emit(StateChangedEvent{From: prev, To: next})
}

func (s *Session) fail(err error) {
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	last := s.state
	s.setStateLocked(StateError)
	s.mu.Unlock()

	s.logger.Error("session failed", "session_id", s.id, "last_state", last.String(), "error", err)
	s.emit(ErrorEvent{Err: err, LastState: last})
}

// shutdown emits the closing event and releases the event channel exactly
// once. Safe to call from Open failures and the run loop alike.
func (s *Session) shutdown(reason string) {
	// Queued outbound media is worthless once the session stops.
	s.outbound.reset()

	s.emitMu.Lock()
	if !s.eventsClosed {
		select {
		case s.events <- ClosedEvent{Reason: reason}:
		default:
		}
		s.eventsClosed = true
		close(s.events)
	}
	s.emitMu.Unlock()

	s.mu.Lock()
	untrack := s.untrack
	s.untrack = nil
	s.mu.Unlock()
	if untrack != nil {
		untrack()
	}

	s.doneOnce.Do(func() { close(s.done) })
}

func (s *Session) emit(ev Event) {
	if ev == nil {
		return
	}
	s.emitMu.Lock()
	defer s.emitMu.Unlock()
	if s.eventsClosed {
		return
	}
	select {
	case s.events <- ev:
	default:
		// Never block the read loop on a slow subscriber.
	}
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}
