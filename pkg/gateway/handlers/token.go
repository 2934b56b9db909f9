package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jarvislabs/jarvis-live/pkg/core"
	"github.com/jarvislabs/jarvis-live/pkg/gateway/config"
	"github.com/jarvislabs/jarvis-live/pkg/gateway/metrics"
	"github.com/jarvislabs/jarvis-live/pkg/gateway/mw"
)

const elevenLabsAgentIDRequired = "Agent ID is required. Provide agent_id in the request body or configure ELEVENLABS_AGENT_ID."

// ElevenLabsTokenHandler mints signed conversation URLs for browser clients.
// The xi-api-key never leaves the gateway.
type ElevenLabsTokenHandler struct {
	Config     config.Config
	HTTPClient *http.Client
	Logger     *slog.Logger
	Metrics    *metrics.Metrics
}

type elevenLabsTokenRequest struct {
	AgentID string `json:"agent_id"`
}

type elevenLabsTokenResponse struct {
	SignedURL string `json:"signed_url"`
	AgentID   string `json:"agent_id"`
}

func (h ElevenLabsTokenHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	reqID, _ := mw.RequestIDFrom(r.Context())

	if r.Method != http.MethodPost {
		writeTokenError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req elevenLabsTokenRequest
	if err := decodeBody(r, h.Config.MaxBodyBytes, &req); err != nil {
		h.recordError(string(core.ErrInvalidRequest), start)
		writeTokenError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	agentID := strings.TrimSpace(req.AgentID)
	if agentID == "" {
		agentID = h.Config.ElevenLabsAgentID
	}
	if agentID == "" {
		h.recordError(string(core.ErrInvalidRequest), start)
		writeTokenError(w, http.StatusBadRequest, elevenLabsAgentIDRequired)
		return
	}

	if h.Config.ElevenLabsAPIKey == "" {
		h.recordError(string(core.ErrConfiguration), start)
		writeTokenError(w, http.StatusInternalServerError, "ELEVENLABS_API_KEY is not configured.")
		return
	}

	signedURL, err := h.fetchSignedURL(r.Context(), agentID)
	if err != nil {
		h.recordError(errorTypeLabel(err), start)
		if h.Logger != nil {
			h.Logger.Error("signed url fetch failed", "request_id", reqID, "agent_id", agentID, "error", err)
		}
		status, message := upstreamFailure(err)
		writeTokenError(w, status, message)
		return
	}

	h.record("ok", start)
	writeJSON(w, http.StatusOK, elevenLabsTokenResponse{SignedURL: signedURL, AgentID: agentID})
}

func (h ElevenLabsTokenHandler) fetchSignedURL(ctx context.Context, agentID string) (string, error) {
	endpoint := strings.TrimRight(h.Config.ElevenLabsBaseURL, "/") +
		"/v1/convai/conversation/get_signed_url?agent_id=" + url.QueryEscape(agentID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", core.NewAPIError(fmt.Sprintf("build signed url request: %v", err))
	}
	req.Header.Set("xi-api-key", h.Config.ElevenLabsAPIKey)

	resp, err := h.client().Do(req)
	if err != nil {
		return "", &core.TransportError{Op: http.MethodGet, URL: endpoint, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", &core.TransportError{Op: http.MethodGet, URL: endpoint, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", core.NewUpstreamError(fmt.Sprintf("elevenlabs signed url request failed: %s", strings.TrimSpace(string(body))), resp.StatusCode)
	}

	var decoded struct {
		SignedURL string `json:"signed_url"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return "", core.NewAPIError("invalid signed url response from elevenlabs")
	}
	if strings.TrimSpace(decoded.SignedURL) == "" {
		return "", core.NewUpstreamError("elevenlabs returned no signed url", resp.StatusCode)
	}
	return decoded.SignedURL, nil
}

func (h ElevenLabsTokenHandler) client() *http.Client {
	if h.HTTPClient != nil {
		return h.HTTPClient
	}
	return http.DefaultClient
}

func (h ElevenLabsTokenHandler) record(status string, start time.Time) {
	h.Metrics.RecordTokenRequest("elevenlabs", status, time.Since(start))
}

func (h ElevenLabsTokenHandler) recordError(errType string, start time.Time) {
	h.record("error", start)
	h.Metrics.RecordError("elevenlabs", errType)
}

// GeminiTokenHandler mints short-lived ephemeral tokens for the Gemini Live
// API. When minting is unavailable and direct mode is explicitly allowed, it
// falls back to handing out the raw key.
type GeminiTokenHandler struct {
	Config     config.Config
	HTTPClient *http.Client
	Logger     *slog.Logger
	Metrics    *metrics.Metrics
}

type geminiTokenRequest struct {
	Model string `json:"model"`
}

type geminiTokenResponse struct {
	Token                string `json:"token,omitempty"`
	APIKey               string `json:"api_key,omitempty"`
	ExpireTime           string `json:"expire_time,omitempty"`
	NewSessionExpireTime string `json:"new_session_expire_time,omitempty"`
	Model                string `json:"model,omitempty"`
	WSURL                string `json:"ws_url"`
	Mode                 string `json:"mode"`
}

func (h GeminiTokenHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	reqID, _ := mw.RequestIDFrom(r.Context())

	if r.Method != http.MethodPost {
		writeTokenError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req geminiTokenRequest
	if err := decodeBody(r, h.Config.MaxBodyBytes, &req); err != nil {
		h.recordError(string(core.ErrInvalidRequest), start)
		writeTokenError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if h.Config.GeminiAPIKey == "" {
		h.recordError(string(core.ErrConfiguration), start)
		writeTokenError(w, http.StatusInternalServerError, "GEMINI_API_KEY is not configured.")
		return
	}

	minted, err := h.mintEphemeral(r.Context())
	if err != nil {
		if h.Logger != nil {
			h.Logger.Warn("ephemeral token mint failed", "request_id", reqID, "error", err)
		}
		if h.Config.AllowDirectKey {
			// Development fallback, gated behind explicit opt-in.
			h.record("direct", start)
			writeJSON(w, http.StatusOK, geminiTokenResponse{
				APIKey: h.Config.GeminiAPIKey,
				Model:  strings.TrimSpace(req.Model),
				WSURL:  h.Config.GeminiLiveWSURL,
				Mode:   "direct",
			})
			return
		}
		h.recordError(errorTypeLabel(err), start)
		status, message := upstreamFailure(err)
		writeTokenError(w, status, message)
		return
	}

	h.record("ok", start)
	minted.Model = strings.TrimSpace(req.Model)
	minted.WSURL = h.Config.GeminiLiveWSURL
	minted.Mode = "ephemeral"
	writeJSON(w, http.StatusOK, minted)
}

func (h GeminiTokenHandler) mintEphemeral(ctx context.Context) (geminiTokenResponse, error) {
	endpoint := strings.TrimRight(h.Config.GeminiBaseURL, "/") + "/v1alpha/auth_tokens"

	now := time.Now().UTC()
	payload, err := json.Marshal(map[string]any{
		"uses":                 1,
		"expireTime":           now.Add(h.Config.TokenTTL).Format(time.RFC3339),
		"newSessionExpireTime": now.Add(h.Config.NewSessionWindow).Format(time.RFC3339),
	})
	if err != nil {
		return geminiTokenResponse{}, core.NewAPIError(fmt.Sprintf("encode auth token request: %v", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return geminiTokenResponse{}, core.NewAPIError(fmt.Sprintf("build auth token request: %v", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", h.Config.GeminiAPIKey)

	resp, err := h.client().Do(req)
	if err != nil {
		return geminiTokenResponse{}, &core.TransportError{Op: http.MethodPost, URL: endpoint, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return geminiTokenResponse{}, &core.TransportError{Op: http.MethodPost, URL: endpoint, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return geminiTokenResponse{}, core.NewUpstreamError(fmt.Sprintf("gemini auth token request failed: %s", strings.TrimSpace(string(body))), resp.StatusCode)
	}

	var decoded struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil || strings.TrimSpace(decoded.Name) == "" {
		return geminiTokenResponse{}, core.NewAPIError("invalid auth token response from gemini")
	}

	return geminiTokenResponse{
		Token:                decoded.Name,
		ExpireTime:           now.Add(h.Config.TokenTTL).Format(time.RFC3339),
		NewSessionExpireTime: now.Add(h.Config.NewSessionWindow).Format(time.RFC3339),
	}, nil
}

func (h GeminiTokenHandler) client() *http.Client {
	if h.HTTPClient != nil {
		return h.HTTPClient
	}
	return http.DefaultClient
}

func (h GeminiTokenHandler) record(status string, start time.Time) {
	h.Metrics.RecordTokenRequest("gemini", status, time.Since(start))
}

func (h GeminiTokenHandler) recordError(errType string, start time.Time) {
	h.record("error", start)
	h.Metrics.RecordError("gemini", errType)
}

func decodeBody(r *http.Request, maxBytes int64, v any) error {
	if maxBytes <= 0 {
		maxBytes = 64 << 10
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBytes))
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	return json.Unmarshal(body, v)
}

// upstreamFailure maps a provider failure to a token endpoint status and a
// message safe to hand to clients.
func upstreamFailure(err error) (int, string) {
	var coreErr *core.Error
	if errors.As(err, &coreErr) && coreErr != nil {
		switch {
		case coreErr.Type == core.ErrUpstream && coreErr.UpstreamStatus == http.StatusNotFound:
			return http.StatusNotFound, coreErr.Message
		case coreErr.Type == core.ErrUpstream && coreErr.UpstreamStatus == http.StatusTooManyRequests:
			return http.StatusTooManyRequests, coreErr.Message
		case coreErr.Type == core.ErrUpstream:
			return http.StatusBadGateway, coreErr.Message
		}
	}
	return http.StatusBadGateway, "credential issuance failed"
}
