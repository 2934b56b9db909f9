package config

import (
	"strings"
	"testing"
	"time"
)

var gatewayEnvKeys = []string{
	"JARVIS_ADDR",
	"GEMINI_API_KEY",
	"ELEVENLABS_API_KEY",
	"ELEVENLABS_AGENT_ID",
	"JARVIS_ALLOW_DIRECT_KEY",
	"JARVIS_GEMINI_BASE_URL",
	"JARVIS_ELEVENLABS_BASE_URL",
	"JARVIS_GEMINI_LIVE_WS_URL",
	"JARVIS_TOKEN_TTL",
	"JARVIS_TOKEN_NEW_SESSION_WINDOW",
	"JARVIS_CORS_ORIGINS",
	"JARVIS_MAX_BODY_BYTES",
	"JARVIS_HUB_MAX_CLIENTS",
	"JARVIS_HUB_WRITE_TIMEOUT",
	"JARVIS_HUB_MAX_MESSAGE_BYTES",
	"JARVIS_READ_HEADER_TIMEOUT",
	"JARVIS_READ_TIMEOUT",
	"JARVIS_SHUTDOWN_GRACE_PERIOD",
	"JARVIS_CONNECT_TIMEOUT",
	"JARVIS_RESPONSE_HEADER_TIMEOUT",
}

func clearGatewayEnv(t *testing.T) {
	t.Helper()
	for _, key := range gatewayEnvKeys {
		t.Setenv(key, "")
	}
}

func TestLoadFromEnv_Defaults(t *testing.T) {
	clearGatewayEnv(t)

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv: %v", err)
	}

	if cfg.Addr != ":8080" {
		t.Errorf("Addr = %q", cfg.Addr)
	}
	if cfg.AllowDirectKey {
		t.Error("AllowDirectKey defaults to true")
	}
	if cfg.TokenTTL != 30*time.Minute {
		t.Errorf("TokenTTL = %v", cfg.TokenTTL)
	}
	if cfg.NewSessionWindow != time.Minute {
		t.Errorf("NewSessionWindow = %v", cfg.NewSessionWindow)
	}
	if cfg.GeminiBaseURL != "https://generativelanguage.googleapis.com" {
		t.Errorf("GeminiBaseURL = %q", cfg.GeminiBaseURL)
	}
	if cfg.ElevenLabsBaseURL != "https://api.elevenlabs.io" {
		t.Errorf("ElevenLabsBaseURL = %q", cfg.ElevenLabsBaseURL)
	}
	if !strings.HasPrefix(cfg.GeminiLiveWSURL, "wss://") {
		t.Errorf("GeminiLiveWSURL = %q", cfg.GeminiLiveWSURL)
	}
	if len(cfg.CORSAllowedOrigins) != 0 {
		t.Errorf("CORSAllowedOrigins = %v, want empty (any origin)", cfg.CORSAllowedOrigins)
	}
	if cfg.HubMaxClients != 64 {
		t.Errorf("HubMaxClients = %d", cfg.HubMaxClients)
	}
	if cfg.MaxBodyBytes != 64<<10 {
		t.Errorf("MaxBodyBytes = %d", cfg.MaxBodyBytes)
	}
	if cfg.ShutdownGracePeriod != 15*time.Second {
		t.Errorf("ShutdownGracePeriod = %v", cfg.ShutdownGracePeriod)
	}
}

func TestLoadFromEnv_Overrides(t *testing.T) {
	clearGatewayEnv(t)
	t.Setenv("JARVIS_ADDR", "127.0.0.1:9999")
	t.Setenv("GEMINI_API_KEY", "gk-123")
	t.Setenv("ELEVENLABS_API_KEY", "xi-456")
	t.Setenv("ELEVENLABS_AGENT_ID", "agent_default")
	t.Setenv("JARVIS_ALLOW_DIRECT_KEY", "true")
	t.Setenv("JARVIS_TOKEN_TTL", "10m")
	t.Setenv("JARVIS_TOKEN_NEW_SESSION_WINDOW", "90s")
	t.Setenv("JARVIS_CORS_ORIGINS", "https://app.example.com, https://jarvis.example.com")
	t.Setenv("JARVIS_HUB_MAX_CLIENTS", "8")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv: %v", err)
	}

	if cfg.Addr != "127.0.0.1:9999" {
		t.Errorf("Addr = %q", cfg.Addr)
	}
	if cfg.GeminiAPIKey != "gk-123" || cfg.ElevenLabsAPIKey != "xi-456" {
		t.Errorf("keys not loaded: %q %q", cfg.GeminiAPIKey, cfg.ElevenLabsAPIKey)
	}
	if cfg.ElevenLabsAgentID != "agent_default" {
		t.Errorf("ElevenLabsAgentID = %q", cfg.ElevenLabsAgentID)
	}
	if !cfg.AllowDirectKey {
		t.Error("AllowDirectKey override ignored")
	}
	if cfg.TokenTTL != 10*time.Minute || cfg.NewSessionWindow != 90*time.Second {
		t.Errorf("TTLs = %v / %v", cfg.TokenTTL, cfg.NewSessionWindow)
	}
	if len(cfg.CORSAllowedOrigins) != 2 {
		t.Errorf("CORSAllowedOrigins = %v", cfg.CORSAllowedOrigins)
	}
	if _, ok := cfg.CORSAllowedOrigins["https://app.example.com"]; !ok {
		t.Error("origin allowlist entry missing")
	}
	if cfg.HubMaxClients != 8 {
		t.Errorf("HubMaxClients = %d", cfg.HubMaxClients)
	}
}

func TestLoadFromEnv_Bounds(t *testing.T) {
	cases := []struct {
		name  string
		key   string
		value string
	}{
		{"zero ttl", "JARVIS_TOKEN_TTL", "0s"},
		{"negative grace", "JARVIS_SHUTDOWN_GRACE_PERIOD", "-1s"},
		{"zero hub clients", "JARVIS_HUB_MAX_CLIENTS", "0"},
		{"zero body limit", "JARVIS_MAX_BODY_BYTES", "0"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			clearGatewayEnv(t)
			t.Setenv(tc.key, tc.value)
			if _, err := LoadFromEnv(); err == nil {
				t.Fatalf("%s=%s accepted", tc.key, tc.value)
			}
		})
	}
}

func TestLoadFromEnv_SessionWindowBoundedByTTL(t *testing.T) {
	clearGatewayEnv(t)
	t.Setenv("JARVIS_TOKEN_TTL", "1m")
	t.Setenv("JARVIS_TOKEN_NEW_SESSION_WINDOW", "5m")
	if _, err := LoadFromEnv(); err == nil {
		t.Fatal("session window larger than token TTL accepted")
	}
}

func TestLoadFromEnv_InvalidDurationFallsBackToDefault(t *testing.T) {
	clearGatewayEnv(t)
	t.Setenv("JARVIS_TOKEN_TTL", "not-a-duration")
	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv: %v", err)
	}
	if cfg.TokenTTL != 30*time.Minute {
		t.Errorf("TokenTTL = %v, want default", cfg.TokenTTL)
	}
}
