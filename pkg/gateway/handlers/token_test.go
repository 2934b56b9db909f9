package handlers

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jarvislabs/jarvis-live/pkg/gateway/config"
	"github.com/jarvislabs/jarvis-live/pkg/gateway/metrics"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func baseConfig() config.Config {
	return config.Config{
		MaxBodyBytes:     64 << 10,
		TokenTTL:         30 * time.Minute,
		NewSessionWindow: time.Minute,
		GeminiLiveWSURL:  "wss://generativelanguage.googleapis.com/ws/live",
	}
}

func TestElevenLabsTokenRequiresAgentID(t *testing.T) {
	cfg := baseConfig()
	cfg.ElevenLabsAPIKey = "xi-key"
	h := ElevenLabsTokenHandler{Config: cfg, Logger: testLogger(), Metrics: metrics.New("test_el_agent")}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/token/elevenlabs", strings.NewReader(`{}`)))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	var body tokenError
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	want := "Agent ID is required. Provide agent_id in the request body or configure ELEVENLABS_AGENT_ID."
	if body.Error != want {
		t.Fatalf("error = %q, want %q", body.Error, want)
	}
}

func TestElevenLabsTokenIssuesSignedURL(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/convai/conversation/get_signed_url" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("agent_id"); got != "agent_7" {
			t.Errorf("agent_id = %q", got)
		}
		if got := r.Header.Get("xi-api-key"); got != "xi-key" {
			t.Errorf("xi-api-key = %q", got)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{
			"signed_url": "wss://api.elevenlabs.io/v1/convai/conversation?token=signed",
		})
	}))
	defer upstream.Close()

	cfg := baseConfig()
	cfg.ElevenLabsAPIKey = "xi-key"
	cfg.ElevenLabsBaseURL = upstream.URL
	h := ElevenLabsTokenHandler{Config: cfg, Logger: testLogger(), Metrics: metrics.New("test_el_ok")}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/token/elevenlabs", strings.NewReader(`{"agent_id":"agent_7"}`)))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp elevenLabsTokenResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if resp.SignedURL == "" || !strings.Contains(resp.SignedURL, "token=signed") {
		t.Fatalf("signed_url = %q", resp.SignedURL)
	}
	if resp.AgentID != "agent_7" {
		t.Fatalf("agent_id = %q", resp.AgentID)
	}
}

func TestElevenLabsTokenUsesConfiguredDefaultAgent(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("agent_id"); got != "agent_default" {
			t.Errorf("agent_id = %q", got)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"signed_url": "wss://x/ws?token=t"})
	}))
	defer upstream.Close()

	cfg := baseConfig()
	cfg.ElevenLabsAPIKey = "xi-key"
	cfg.ElevenLabsAgentID = "agent_default"
	cfg.ElevenLabsBaseURL = upstream.URL
	h := ElevenLabsTokenHandler{Config: cfg, Logger: testLogger(), Metrics: metrics.New("test_el_default")}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/token/elevenlabs", strings.NewReader(`{}`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
}

func TestElevenLabsTokenMissingAPIKey(t *testing.T) {
	cfg := baseConfig()
	h := ElevenLabsTokenHandler{Config: cfg, Logger: testLogger(), Metrics: metrics.New("test_el_nokey")}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/token/elevenlabs", strings.NewReader(`{"agent_id":"a"}`)))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestElevenLabsTokenUpstreamNotFound(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"agent not found"}`, http.StatusNotFound)
	}))
	defer upstream.Close()

	cfg := baseConfig()
	cfg.ElevenLabsAPIKey = "xi-key"
	cfg.ElevenLabsBaseURL = upstream.URL
	h := ElevenLabsTokenHandler{Config: cfg, Logger: testLogger(), Metrics: metrics.New("test_el_404")}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/token/elevenlabs", strings.NewReader(`{"agent_id":"ghost"}`)))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestElevenLabsTokenRejectsGet(t *testing.T) {
	h := ElevenLabsTokenHandler{Config: baseConfig(), Logger: testLogger(), Metrics: metrics.New("test_el_get")}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/token/elevenlabs", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestGeminiTokenMintsEphemeral(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1alpha/auth_tokens" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("x-goog-api-key"); got != "gk-1" {
			t.Errorf("x-goog-api-key = %q", got)
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode mint request: %v", err)
		}
		if body["uses"] != float64(1) {
			t.Errorf("uses = %v", body["uses"])
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"name": "auth_tokens/abc123"})
	}))
	defer upstream.Close()

	cfg := baseConfig()
	cfg.GeminiAPIKey = "gk-1"
	cfg.GeminiBaseURL = upstream.URL
	h := GeminiTokenHandler{Config: cfg, Logger: testLogger(), Metrics: metrics.New("test_gem_ok")}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/token/gemini", strings.NewReader(`{"model":"models/gemini-2.0-flash-live"}`)))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp geminiTokenResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if resp.Token != "auth_tokens/abc123" || resp.Mode != "ephemeral" {
		t.Fatalf("response = %+v", resp)
	}
	if resp.APIKey != "" {
		t.Fatal("raw api key leaked in ephemeral response")
	}
	if resp.WSURL != cfg.GeminiLiveWSURL {
		t.Fatalf("ws_url = %q", resp.WSURL)
	}
	if _, err := time.Parse(time.RFC3339, resp.ExpireTime); err != nil {
		t.Fatalf("expire_time = %q: %v", resp.ExpireTime, err)
	}
}

func TestGeminiTokenDirectFallbackGated(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"auth tokens unsupported"}`, http.StatusNotFound)
	}))
	defer upstream.Close()

	// Without opt-in the failure propagates.
	cfg := baseConfig()
	cfg.GeminiAPIKey = "gk-1"
	cfg.GeminiBaseURL = upstream.URL
	h := GeminiTokenHandler{Config: cfg, Logger: testLogger(), Metrics: metrics.New("test_gem_denied")}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/token/gemini", strings.NewReader(`{}`)))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status without opt-in = %d", rec.Code)
	}

	// With opt-in the raw key is handed out in direct mode.
	cfg.AllowDirectKey = true
	h = GeminiTokenHandler{Config: cfg, Logger: testLogger(), Metrics: metrics.New("test_gem_direct")}
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/token/gemini", strings.NewReader(`{}`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("status with opt-in = %d", rec.Code)
	}
	var resp geminiTokenResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if resp.Mode != "direct" || resp.APIKey != "gk-1" || resp.Token != "" {
		t.Fatalf("response = %+v", resp)
	}
}

func TestGeminiTokenMissingKey(t *testing.T) {
	h := GeminiTokenHandler{Config: baseConfig(), Logger: testLogger(), Metrics: metrics.New("test_gem_nokey")}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/token/gemini", strings.NewReader(`{}`)))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
	var body tokenError
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	if body.Error != "GEMINI_API_KEY is not configured." {
		t.Fatalf("error = %q", body.Error)
	}
}

func TestTokenHandlersRejectMalformedJSON(t *testing.T) {
	cfg := baseConfig()
	cfg.GeminiAPIKey = "gk-1"
	cfg.ElevenLabsAPIKey = "xi-1"

	gh := GeminiTokenHandler{Config: cfg, Logger: testLogger(), Metrics: metrics.New("test_gem_badjson")}
	rec := httptest.NewRecorder()
	gh.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/token/gemini", strings.NewReader(`{broken`)))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("gemini status = %d", rec.Code)
	}

	eh := ElevenLabsTokenHandler{Config: cfg, Logger: testLogger(), Metrics: metrics.New("test_el_badjson")}
	rec = httptest.NewRecorder()
	eh.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/token/elevenlabs", strings.NewReader(`{broken`)))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("elevenlabs status = %d", rec.Code)
	}
}

func TestTokenErrorsAreCounted(t *testing.T) {
	m := metrics.New("test_el_errcount")
	cfg := baseConfig()
	cfg.ElevenLabsAPIKey = "xi-key"
	h := ElevenLabsTokenHandler{Config: cfg, Logger: testLogger(), Metrics: m}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/token/elevenlabs", strings.NewReader(`{}`)))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}

	scrape := httptest.NewRecorder()
	m.Handler().ServeHTTP(scrape, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	want := `test_el_errcount_errors_total{endpoint="elevenlabs",error_type="invalid_request_error"} 1`
	if !strings.Contains(scrape.Body.String(), want) {
		t.Fatalf("metrics scrape missing %q", want)
	}
}
