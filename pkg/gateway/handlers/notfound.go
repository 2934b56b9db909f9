package handlers

import (
	"fmt"
	"net/http"

	"github.com/jarvislabs/jarvis-live/pkg/core"
	"github.com/jarvislabs/jarvis-live/pkg/gateway/apierror"
	"github.com/jarvislabs/jarvis-live/pkg/gateway/mw"
)

// NotFoundHandler answers unknown routes with the canonical error envelope.
type NotFoundHandler struct{}

func (h NotFoundHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID, _ := mw.RequestIDFrom(r.Context())
	writeJSON(w, http.StatusNotFound, apierror.Envelope{Error: &core.Error{
		Type:      core.ErrInvalidRequest,
		Message:   fmt.Sprintf("unknown route: %s %s", r.Method, r.URL.Path),
		RequestID: reqID,
	}})
}
