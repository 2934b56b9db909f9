package live

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jarvislabs/jarvis-live/pkg/core"
)

const defaultDialTimeout = 15 * time.Second

// Inbound is one frame delivered by a Channel. Err is non-nil exactly once,
// as the final element before the stream closes.
type Inbound struct {
	Data []byte
	Err  error
}

// Channel is a persistent, ordered, bidirectional message stream to the
// upstream conversational service. Send preserves enqueue order; Receive
// yields inbound frames until the channel closes. The session state machine,
// not the channel, decides whether to reconnect after a drop.
type Channel interface {
	Send(v any) error
	Receive() <-chan Inbound
	Close() error
}

// Dialer opens a Channel for a credential. Swapped for a fake in tests.
type Dialer interface {
	Dial(ctx context.Context, cred Credential) (Channel, error)
}

// WebsocketDialer dials the upstream over a websocket.
type WebsocketDialer struct {
	// HandshakeTimeout bounds the dial when the context has no deadline.
	HandshakeTimeout time.Duration
}

func (d WebsocketDialer) Dial(ctx context.Context, cred Credential) (Channel, error) {
	wsURL, err := cred.TransportURL()
	if err != nil {
		return nil, err
	}

	timeout := d.HandshakeTimeout
	if timeout <= 0 {
		timeout = defaultDialTimeout
	}
	dialCtx := ctx
	var cancel context.CancelFunc
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		dialCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	dialer := websocket.DefaultDialer
	if dialer == nil {
		dialer = &websocket.Dialer{}
	}

	conn, resp, err := dialer.DialContext(dialCtx, wsURL, http.Header{})
	if err != nil {
		if resp != nil {
			if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
				// Expired or revoked credential; the caller must reissue
				// rather than retry the dial blindly.
				return nil, core.NewUpstreamError("websocket dial rejected", resp.StatusCode)
			}
			return nil, &core.TransportError{Op: "GET", URL: wsURL, Err: err}
		}
		return nil, &core.TransportError{Op: "GET", URL: wsURL, Err: err}
	}

	ch := &websocketChannel{
		conn:    conn,
		inbound: make(chan Inbound, 64),
	}
	go ch.readLoop()
	return ch, nil
}

type websocketChannel struct {
	conn *websocket.Conn

	inbound chan Inbound

	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    atomic.Bool
}

func (c *websocketChannel) Send(v any) error {
	if c == nil {
		return core.NewTransportMisuseError("send on nil channel")
	}
	if c.closed.Load() {
		return core.NewTransportMisuseError("send after close")
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.WriteJSON(v); err != nil {
		return core.NewDisconnectedError(err.Error())
	}
	return nil
}

func (c *websocketChannel) Receive() <-chan Inbound {
	if c == nil {
		return nil
	}
	return c.inbound
}

func (c *websocketChannel) Close() error {
	if c == nil {
		return nil
	}
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(2*time.Second))
		c.writeMu.Unlock()
		_ = c.conn.Close()
	})
	return nil
}

func (c *websocketChannel) readLoop() {
	defer close(c.inbound)
	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if c.closed.Load() || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return
			}
			c.inbound <- Inbound{Err: core.NewDisconnectedError(err.Error())}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		c.inbound <- Inbound{Data: append([]byte(nil), data...)}
	}
}
