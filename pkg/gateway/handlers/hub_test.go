package handlers

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jarvislabs/jarvis-live/pkg/gateway/config"
	"github.com/jarvislabs/jarvis-live/pkg/gateway/metrics"
)

func newTestHub(t *testing.T, maxClients int) (*Hub, *httptest.Server) {
	t.Helper()
	cfg := config.Config{
		HubMaxClients:      maxClients,
		HubWriteTimeout:    2 * time.Second,
		HubMaxMessageBytes: 64 << 10,
		CORSAllowedOrigins: map[string]struct{}{},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hub := NewHub(cfg, logger, metrics.New("test_hub_"+strings.ReplaceAll(t.Name(), "/", "_")))
	srv := httptest.NewServer(hub)
	t.Cleanup(srv.Close)
	return hub, srv
}

func dialHub(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial hub: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestHubBroadcastsToAllClients(t *testing.T) {
	hub, srv := newTestHub(t, 8)

	a := dialHub(t, srv)
	b := dialHub(t, srv)

	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := hub.ClientCount(); got != 2 {
		t.Fatalf("clients = %d, want 2", got)
	}

	if err := a.WriteMessage(websocket.TextMessage, []byte(`{"event":"wake"}`)); err != nil {
		t.Fatalf("write: %v", err)
	}

	_ = b.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := b.ReadMessage()
	if err != nil {
		t.Fatalf("read on second client: %v", err)
	}
	if string(data) != `{"event":"wake"}` {
		t.Fatalf("broadcast payload = %s", data)
	}

	// The sender hears its own message too.
	_ = a.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err = a.ReadMessage()
	if err != nil {
		t.Fatalf("read on sender: %v", err)
	}
	if string(data) != `{"event":"wake"}` {
		t.Fatalf("sender payload = %s", data)
	}
}

func TestHubCapacityLimit(t *testing.T) {
	_, srv := newTestHub(t, 1)

	dialHub(t, srv)
	time.Sleep(20 * time.Millisecond)

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("second connect: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", resp.StatusCode)
	}
}

func TestHubClientCountDropsOnDisconnect(t *testing.T) {
	hub, srv := newTestHub(t, 8)
	conn := dialHub(t, srv)

	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() < 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	_ = conn.Close()

	deadline = time.Now().Add(2 * time.Second)
	for hub.ClientCount() > 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := hub.ClientCount(); got != 0 {
		t.Fatalf("clients after disconnect = %d", got)
	}
}
