package live

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/jarvislabs/jarvis-live/pkg/core"
)

// CredentialMode distinguishes short-lived minted tokens from raw API keys.
type CredentialMode string

const (
	CredentialModeEphemeral CredentialMode = "ephemeral"
	CredentialModeDirect    CredentialMode = "direct"
)

// DefaultRefreshMargin is how close to expiry a credential may get before the
// session requests a fresh one.
const DefaultRefreshMargin = 30 * time.Second

// Credential is a short-lived token or signed URL scoped to one upstream
// model or agent. Read-only once issued.
type Credential struct {
	Token      string
	Mode       CredentialMode
	ExpireTime time.Time
	URL        string
	Model      string
}

// ExpiresWithin reports whether the credential expires inside the margin.
// Credentials without an expiry never report true.
func (c Credential) ExpiresWithin(margin time.Duration) bool {
	if c.ExpireTime.IsZero() {
		return false
	}
	return time.Until(c.ExpireTime) <= margin
}

// TransportURL composes the websocket endpoint with the credential attached.
// Signed URLs already embed their grant and pass through untouched.
func (c Credential) TransportURL() (string, error) {
	raw := strings.TrimSpace(c.URL)
	if raw == "" {
		return "", core.NewConfigurationError("credential carries no transport URL")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", core.NewConfigurationError(fmt.Sprintf("invalid transport URL: %v", err))
	}
	switch strings.ToLower(strings.TrimSpace(u.Scheme)) {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", core.NewConfigurationError("transport URL must use http(s) or ws(s)")
	}

	token := strings.TrimSpace(c.Token)
	if token != "" {
		q := u.Query()
		switch c.Mode {
		case CredentialModeDirect:
			if q.Get("key") == "" {
				q.Set("key", token)
			}
		default:
			if q.Get("access_token") == "" {
				q.Set("access_token", token)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// TokenProvider issues a credential scoped to one upstream model or agent.
type TokenProvider interface {
	IssueCredential(ctx context.Context, modelOrAgent string) (Credential, error)
}

// GatewayTokenProvider fetches credentials from the jarvis credential
// gateway's token endpoint.
type GatewayTokenProvider struct {
	// BaseURL is the gateway root, for example http://localhost:8080.
	BaseURL string
	// Path defaults to /v1/token/gemini.
	Path string
	// HTTPClient defaults to http.DefaultClient.
	HTTPClient *http.Client
	// MaxRetries bounds re-attempts on retryable upstream failures.
	MaxRetries uint64
}

type tokenResponse struct {
	Token                string `json:"token"`
	APIKey               string `json:"api_key"`
	SignedURL            string `json:"signed_url"`
	ExpireTime           string `json:"expire_time"`
	NewSessionExpireTime string `json:"new_session_expire_time"`
	Model                string `json:"model"`
	WSURL                string `json:"ws_url"`
	Mode                 string `json:"mode"`
	Error                string `json:"error"`
}

// IssueCredential requests a fresh credential. Non-2xx responses surface as
// upstream errors carrying the status; retryable statuses are re-attempted
// with exponential backoff before giving up.
func (p *GatewayTokenProvider) IssueCredential(ctx context.Context, modelOrAgent string) (Credential, error) {
	if p == nil || strings.TrimSpace(p.BaseURL) == "" {
		return Credential{}, core.NewConfigurationError("token provider base URL is not configured")
	}
	path := strings.TrimSpace(p.Path)
	if path == "" {
		path = "/v1/token/gemini"
	}
	endpoint := strings.TrimRight(strings.TrimSpace(p.BaseURL), "/") + path

	client := p.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	maxRetries := p.MaxRetries
	if maxRetries == 0 {
		maxRetries = 3
	}

	payload, err := json.Marshal(map[string]string{"model": strings.TrimSpace(modelOrAgent)})
	if err != nil {
		return Credential{}, core.NewAPIError(fmt.Sprintf("encode token request: %v", err))
	}

	var cred Credential
	backoff := retry.WithMaxRetries(maxRetries, retry.NewExponential(250*time.Millisecond))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
		if err != nil {
			return core.NewAPIError(fmt.Sprintf("build token request: %v", err))
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			return retry.RetryableError(&core.TransportError{Op: http.MethodPost, URL: endpoint, Err: err})
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return retry.RetryableError(&core.TransportError{Op: http.MethodPost, URL: endpoint, Err: err})
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			message := upstreamErrorMessage(body)
			upErr := core.NewUpstreamError(message, resp.StatusCode)
			if upErr.IsRetryable() {
				return retry.RetryableError(upErr)
			}
			return upErr
		}

		var decoded tokenResponse
		if err := json.Unmarshal(body, &decoded); err != nil {
			return core.NewAPIError(fmt.Sprintf("decode token response: %v", err))
		}
		parsed, err := credentialFromResponse(decoded)
		if err != nil {
			return err
		}
		cred = parsed
		return nil
	})
	if err != nil {
		return Credential{}, err
	}
	return cred, nil
}

func credentialFromResponse(resp tokenResponse) (Credential, error) {
	mode := CredentialMode(strings.TrimSpace(resp.Mode))
	if mode == "" {
		mode = CredentialModeEphemeral
	}

	token := strings.TrimSpace(resp.Token)
	transportURL := strings.TrimSpace(resp.WSURL)
	if signed := strings.TrimSpace(resp.SignedURL); signed != "" {
		// A signed URL is both the grant and the endpoint.
		transportURL = signed
	}
	if token == "" {
		token = strings.TrimSpace(resp.APIKey)
	}
	if token == "" && strings.TrimSpace(resp.SignedURL) == "" {
		return Credential{}, core.NewUpstreamError("token response carries no credential", 0)
	}

	var expire time.Time
	if raw := strings.TrimSpace(resp.ExpireTime); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return Credential{}, core.NewAPIError(fmt.Sprintf("invalid expire_time in token response: %v", err))
		}
		expire = parsed
	}

	return Credential{
		Token:      token,
		Mode:       mode,
		ExpireTime: expire,
		URL:        transportURL,
		Model:      strings.TrimSpace(resp.Model),
	}, nil
}

func upstreamErrorMessage(body []byte) string {
	var decoded struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &decoded); err == nil && strings.TrimSpace(decoded.Error) != "" {
		return strings.TrimSpace(decoded.Error)
	}
	return "token endpoint returned an error"
}
