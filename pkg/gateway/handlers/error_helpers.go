package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/jarvislabs/jarvis-live/pkg/core"
)

// tokenError is the flat error body of the token endpoints. SDK clients
// parse this exact shape.
type tokenError struct {
	Error string `json:"error"`
}

func writeTokenError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(tokenError{Error: message})
}

// errorTypeLabel maps an error to its taxonomy type for metrics labels.
func errorTypeLabel(err error) string {
	var coreErr *core.Error
	if errors.As(err, &coreErr) && coreErr != nil {
		return string(coreErr.Type)
	}
	var transportErr *core.TransportError
	if errors.As(err, &transportErr) {
		return string(core.ErrTransport)
	}
	return string(core.ErrAPI)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
