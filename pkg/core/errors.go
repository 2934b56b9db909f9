package core

import (
	"fmt"
	"net/url"
)

// Error is the canonical error carried across the session engine and the
// credential gateway.
type Error struct {
	Type      ErrorType `json:"type"`
	Message   string    `json:"message"`
	Param     string    `json:"param,omitempty"`
	Code      string    `json:"code,omitempty"`
	RequestID string    `json:"request_id,omitempty"`

	// UpstreamStatus carries the HTTP status returned by a third-party
	// provider when Type is ErrUpstream.
	UpstreamStatus int `json:"upstream_status,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (code: %s)", e.Type, e.Message, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// ErrorType categorizes errors.
type ErrorType string

const (
	// ErrConfiguration means a required key, agent id, or endpoint is not
	// configured. Fatal; never retried.
	ErrConfiguration ErrorType = "configuration_error"
	// ErrUpstream means a third-party provider answered with a non-2xx
	// status. Retried only for token issuance, with a capped attempt count.
	ErrUpstream ErrorType = "upstream_error"
	// ErrTransport means the transport channel was misused (for example a
	// send after close). Programming error; never retried.
	ErrTransport ErrorType = "transport_error"
	// ErrDisconnected means the link dropped unexpectedly. Drives the
	// reconnection transition; surfaced only once retries are exhausted.
	ErrDisconnected ErrorType = "disconnected_error"
	// ErrInvalidRequest means the caller passed an invalid argument or
	// called an operation in the wrong state.
	ErrInvalidRequest ErrorType = "invalid_request_error"
	// ErrAPI is a generic internal failure.
	ErrAPI ErrorType = "api_error"
)

// NewConfigurationError creates a configuration error.
func NewConfigurationError(message string) *Error {
	return &Error{
		Type:    ErrConfiguration,
		Message: message,
	}
}

// NewUpstreamError creates an upstream error carrying the provider status.
func NewUpstreamError(message string, status int) *Error {
	return &Error{
		Type:           ErrUpstream,
		Message:        message,
		UpstreamStatus: status,
	}
}

// NewTransportMisuseError creates a transport misuse error.
func NewTransportMisuseError(message string) *Error {
	return &Error{
		Type:    ErrTransport,
		Message: message,
	}
}

// NewDisconnectedError creates a disconnected error.
func NewDisconnectedError(message string) *Error {
	return &Error{
		Type:    ErrDisconnected,
		Message: message,
	}
}

// NewInvalidRequestError creates an invalid request error.
func NewInvalidRequestError(message string) *Error {
	return &Error{
		Type:    ErrInvalidRequest,
		Message: message,
	}
}

// NewInvalidRequestErrorWithParam creates an invalid request error with a parameter.
func NewInvalidRequestErrorWithParam(message, param string) *Error {
	return &Error{
		Type:    ErrInvalidRequest,
		Message: message,
		Param:   param,
	}
}

// NewAPIError creates a generic API error.
func NewAPIError(message string) *Error {
	return &Error{
		Type:    ErrAPI,
		Message: message,
	}
}

// IsRetryable reports whether the error may be retried. Only upstream
// failures qualify; configuration and misuse errors never do.
func (e *Error) IsRetryable() bool {
	if e == nil {
		return false
	}
	switch e.Type {
	case ErrUpstream:
		return e.UpstreamStatus == 0 || e.UpstreamStatus == 429 || e.UpstreamStatus >= 500
	case ErrDisconnected:
		return true
	default:
		return false
	}
}

// TransportError represents socket-level failures (DNS, timeouts, connection
// reset, TLS handshake) while dialing or talking to an upstream endpoint.
//
// Use errors.As(err, &TransportError{}) to distinguish transport failures
// from canonical *core.Error values.
type TransportError struct {
	Op  string
	URL string
	Err error
}

func (e *TransportError) Error() string {
	switch {
	case e == nil:
		return ""
	case e.Op != "" && e.URL != "":
		return fmt.Sprintf("transport error during %s %s: %v", e.Op, redactURLQuery(e.URL), e.Err)
	case e.Op != "":
		return fmt.Sprintf("transport error during %s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("transport error: %v", e.Err)
	}
}

func (e *TransportError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// redactURLQuery strips query parameters and userinfo so credentials embedded
// in signed URLs never reach logs.
func redactURLQuery(raw string) string {
	if raw == "" {
		return raw
	}
	parsed, err := url.Parse(raw)
	if err != nil || parsed == nil {
		return raw
	}
	parsed.User = nil
	parsed.RawQuery = ""
	return parsed.String()
}
