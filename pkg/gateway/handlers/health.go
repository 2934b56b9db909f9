package handlers

import (
	"net/http"

	"github.com/jarvislabs/jarvis-live/pkg/gateway/config"
)

type HealthHandler struct{}

func (h HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

type ReadyHandler struct {
	Config config.Config
}

func (h ReadyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	type readyResp struct {
		OK                   bool     `json:"ok"`
		GeminiConfigured     bool     `json:"gemini_configured"`
		ElevenLabsConfigured bool     `json:"elevenlabs_configured"`
		DirectKeyAllowed     bool     `json:"direct_key_allowed"`
		Issues               []string `json:"issues,omitempty"`
	}

	issues := make([]string, 0, 4)

	geminiOK := h.Config.GeminiAPIKey != ""
	elevenOK := h.Config.ElevenLabsAPIKey != ""
	if !geminiOK && !elevenOK {
		issues = append(issues, "no provider keys configured")
	}
	if h.Config.TokenTTL <= 0 {
		issues = append(issues, "token ttl must be > 0")
	}
	if h.Config.NewSessionWindow <= 0 || h.Config.NewSessionWindow > h.Config.TokenTTL {
		issues = append(issues, "new session window must be > 0 and <= token ttl")
	}
	if h.Config.HubMaxClients <= 0 {
		issues = append(issues, "hub max clients must be > 0")
	}
	if h.Config.ReadHeaderTimeout <= 0 || h.Config.ReadTimeout <= 0 {
		issues = append(issues, "timeouts must be > 0")
	}
	if h.Config.UpstreamConnectTimeout <= 0 || h.Config.UpstreamResponseHeaderTimeout <= 0 {
		issues = append(issues, "upstream timeouts must be > 0")
	}

	ok := len(issues) == 0
	status := http.StatusOK
	if !ok {
		status = http.StatusInternalServerError
	}

	writeJSON(w, status, readyResp{
		OK:                   ok,
		GeminiConfigured:     geminiOK,
		ElevenLabsConfigured: elevenOK,
		DirectKeyAllowed:     h.Config.AllowDirectKey,
		Issues:               issues,
	})
}
