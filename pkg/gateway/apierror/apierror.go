package apierror

import (
	"context"
	"errors"
	"net/http"

	"github.com/jarvislabs/jarvis-live/pkg/core"
)

type Envelope struct {
	Error *core.Error `json:"error"`
}

// FromError maps any error to the canonical envelope and an HTTP status.
func FromError(err error, requestID string) (*core.Error, int) {
	if err == nil {
		return nil, http.StatusOK
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &core.Error{
			Type:      core.ErrAPI,
			Message:   "request timeout",
			RequestID: requestID,
		}, http.StatusGatewayTimeout
	}
	if errors.Is(err, context.Canceled) {
		return &core.Error{
			Type:      core.ErrAPI,
			Message:   "request cancelled",
			Code:      "cancelled",
			RequestID: requestID,
		}, http.StatusRequestTimeout
	}

	var coreErr *core.Error
	if errors.As(err, &coreErr) && coreErr != nil {
		out := *coreErr
		out.RequestID = requestID
		return &out, statusFor(coreErr)
	}

	// Socket-level upstream failures.
	var transportErr *core.TransportError
	if errors.As(err, &transportErr) && transportErr != nil {
		return &core.Error{
			Type:      core.ErrUpstream,
			Message:   transportErr.Error(),
			RequestID: requestID,
		}, http.StatusBadGateway
	}

	// Unknown errors: internal, details never leak.
	return &core.Error{
		Type:      core.ErrAPI,
		Message:   "internal error",
		RequestID: requestID,
	}, http.StatusInternalServerError
}

func statusFor(e *core.Error) int {
	switch e.Type {
	case core.ErrInvalidRequest:
		return http.StatusBadRequest
	case core.ErrConfiguration:
		return http.StatusInternalServerError
	case core.ErrUpstream:
		// Client errors from the provider reflect back as-is; everything
		// else is the gateway failing to reach a healthy upstream.
		switch {
		case e.UpstreamStatus == http.StatusUnauthorized || e.UpstreamStatus == http.StatusForbidden:
			return http.StatusBadGateway
		case e.UpstreamStatus == http.StatusTooManyRequests:
			return http.StatusTooManyRequests
		case e.UpstreamStatus >= 400 && e.UpstreamStatus < 500:
			return e.UpstreamStatus
		default:
			return http.StatusBadGateway
		}
	case core.ErrDisconnected, core.ErrTransport:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
