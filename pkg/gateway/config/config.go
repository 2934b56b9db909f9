package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the credential gateway's runtime configuration. Loaded once
// from the environment at startup; read-only afterwards.
type Config struct {
	Addr string

	// Provider secrets. Held only by the gateway, never returned to clients.
	GeminiAPIKey     string
	ElevenLabsAPIKey string

	// ElevenLabsAgentID is the default agent when a token request carries
	// no agent_id of its own.
	ElevenLabsAgentID string

	// AllowDirectKey permits falling back to the raw Gemini API key when
	// ephemeral minting is unavailable. Development convenience only.
	AllowDirectKey bool

	// Upstream endpoints, overridable for tests.
	GeminiBaseURL     string
	ElevenLabsBaseURL string

	// GeminiLiveWSURL is the websocket endpoint handed to clients alongside
	// a minted Gemini credential.
	GeminiLiveWSURL string

	// TokenTTL is the requested lifetime of minted ephemeral tokens.
	TokenTTL time.Duration
	// NewSessionWindow is how long a minted token may start new sessions.
	NewSessionWindow time.Duration

	// CORSAllowedOrigins restricts browser callers. Empty means any origin,
	// matching the development posture of the reference deployment.
	CORSAllowedOrigins map[string]struct{}

	MaxBodyBytes int64

	// Broadcast hub limits (/ws).
	HubMaxClients      int
	HubWriteTimeout    time.Duration
	HubMaxMessageBytes int64

	// Operational defaults.
	ReadHeaderTimeout   time.Duration
	ReadTimeout         time.Duration
	ShutdownGracePeriod time.Duration

	// Upstream HTTP client defaults.
	UpstreamConnectTimeout        time.Duration
	UpstreamResponseHeaderTimeout time.Duration
}

// LoadFromEnv builds the configuration from JARVIS_* environment variables,
// applying defaults and validating bounds.
func LoadFromEnv() (Config, error) {
	cfg := Config{
		Addr:                          envOr("JARVIS_ADDR", ":8080"),
		GeminiAPIKey:                  strings.TrimSpace(os.Getenv("GEMINI_API_KEY")),
		ElevenLabsAPIKey:              strings.TrimSpace(os.Getenv("ELEVENLABS_API_KEY")),
		ElevenLabsAgentID:             strings.TrimSpace(os.Getenv("ELEVENLABS_AGENT_ID")),
		AllowDirectKey:                envBoolOr("JARVIS_ALLOW_DIRECT_KEY", false),
		GeminiBaseURL:                 envOr("JARVIS_GEMINI_BASE_URL", "https://generativelanguage.googleapis.com"),
		ElevenLabsBaseURL:             envOr("JARVIS_ELEVENLABS_BASE_URL", "https://api.elevenlabs.io"),
		GeminiLiveWSURL:               envOr("JARVIS_GEMINI_LIVE_WS_URL", "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1alpha.GenerativeService.BidiGenerateContent"),
		TokenTTL:                      envDurationOr("JARVIS_TOKEN_TTL", 30*time.Minute),
		NewSessionWindow:              envDurationOr("JARVIS_TOKEN_NEW_SESSION_WINDOW", 1*time.Minute),
		CORSAllowedOrigins:            make(map[string]struct{}),
		MaxBodyBytes:                  envInt64Or("JARVIS_MAX_BODY_BYTES", 64<<10), // 64 KiB
		HubMaxClients:                 envIntOr("JARVIS_HUB_MAX_CLIENTS", 64),
		HubWriteTimeout:               envDurationOr("JARVIS_HUB_WRITE_TIMEOUT", 5*time.Second),
		HubMaxMessageBytes:            envInt64Or("JARVIS_HUB_MAX_MESSAGE_BYTES", 64<<10),
		ReadHeaderTimeout:             envDurationOr("JARVIS_READ_HEADER_TIMEOUT", 10*time.Second),
		ReadTimeout:                   envDurationOr("JARVIS_READ_TIMEOUT", 30*time.Second),
		ShutdownGracePeriod:           envDurationOr("JARVIS_SHUTDOWN_GRACE_PERIOD", 15*time.Second),
		UpstreamConnectTimeout:        envDurationOr("JARVIS_CONNECT_TIMEOUT", 5*time.Second),
		UpstreamResponseHeaderTimeout: envDurationOr("JARVIS_RESPONSE_HEADER_TIMEOUT", 15*time.Second),
	}

	for _, origin := range splitCSV(os.Getenv("JARVIS_CORS_ORIGINS")) {
		cfg.CORSAllowedOrigins[origin] = struct{}{}
	}

	if cfg.TokenTTL <= 0 {
		return Config{}, fmt.Errorf("JARVIS_TOKEN_TTL must be > 0")
	}
	if cfg.NewSessionWindow <= 0 {
		return Config{}, fmt.Errorf("JARVIS_TOKEN_NEW_SESSION_WINDOW must be > 0")
	}
	if cfg.NewSessionWindow > cfg.TokenTTL {
		return Config{}, fmt.Errorf("JARVIS_TOKEN_NEW_SESSION_WINDOW must be <= JARVIS_TOKEN_TTL")
	}
	if cfg.MaxBodyBytes <= 0 {
		return Config{}, fmt.Errorf("JARVIS_MAX_BODY_BYTES must be > 0")
	}
	if cfg.HubMaxClients <= 0 {
		return Config{}, fmt.Errorf("JARVIS_HUB_MAX_CLIENTS must be > 0")
	}
	if cfg.HubWriteTimeout <= 0 {
		return Config{}, fmt.Errorf("JARVIS_HUB_WRITE_TIMEOUT must be > 0")
	}
	if cfg.HubMaxMessageBytes <= 0 {
		return Config{}, fmt.Errorf("JARVIS_HUB_MAX_MESSAGE_BYTES must be > 0")
	}
	if cfg.ReadHeaderTimeout <= 0 {
		return Config{}, fmt.Errorf("JARVIS_READ_HEADER_TIMEOUT must be > 0")
	}
	if cfg.ReadTimeout <= 0 {
		return Config{}, fmt.Errorf("JARVIS_READ_TIMEOUT must be > 0")
	}
	if cfg.ShutdownGracePeriod <= 0 {
		return Config{}, fmt.Errorf("JARVIS_SHUTDOWN_GRACE_PERIOD must be > 0")
	}
	if cfg.UpstreamConnectTimeout <= 0 {
		return Config{}, fmt.Errorf("JARVIS_CONNECT_TIMEOUT must be > 0")
	}
	if cfg.UpstreamResponseHeaderTimeout <= 0 {
		return Config{}, fmt.Errorf("JARVIS_RESPONSE_HEADER_TIMEOUT must be > 0")
	}
	if strings.TrimSpace(cfg.GeminiBaseURL) == "" {
		return Config{}, fmt.Errorf("JARVIS_GEMINI_BASE_URL must not be empty")
	}
	if strings.TrimSpace(cfg.ElevenLabsBaseURL) == "" {
		return Config{}, fmt.Errorf("JARVIS_ELEVENLABS_BASE_URL must not be empty")
	}
	if strings.TrimSpace(cfg.GeminiLiveWSURL) == "" {
		return Config{}, fmt.Errorf("JARVIS_GEMINI_LIVE_WS_URL must not be empty")
	}

	return cfg, nil
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envInt64Or(key string, def int64) int64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func envIntOr(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func envBoolOr(key string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	switch strings.ToLower(raw) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off":
		return false
	default:
		return def
	}
}

func envDurationOr(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}

func splitCSV(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
