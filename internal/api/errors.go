package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/vega-nmos-core/internal/nmos"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`

	// UpstreamStatus and UpstreamBody echo a registry or device answer.
	UpstreamStatus int `json:"upstream_status,omitempty"`
	UpstreamBody   any `json:"upstream_body,omitempty"`
}

// Common error codes.
const (
	ErrCodeBadRequest      = "bad_request"
	ErrCodeNotFound        = "not_found"
	ErrCodeInvalidResource = "invalid_resource"
	ErrCodeUpstream        = "upstream_error"
	ErrCodeProtocol        = "protocol_error"
	ErrCodeGatewayTimeout  = "gateway_timeout"
	ErrCodeInternal        = "internal_error"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeCoreError maps an error from the engine or orchestrator onto an
// HTTP response.
func writeCoreError(w http.ResponseWriter, err error) {
	var up *nmos.UpstreamError

	switch {
	case errors.Is(err, nmos.ErrInvalidArgument):
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
	case errors.Is(err, nmos.ErrNotFound):
		writeError(w, http.StatusNotFound, ErrCodeNotFound, err.Error())
	case errors.Is(err, nmos.ErrInvalidResource):
		writeError(w, http.StatusUnprocessableEntity, ErrCodeInvalidResource, err.Error())
	case errors.As(err, &up):
		writeJSON(w, http.StatusBadGateway, Error{
			Status:         http.StatusBadGateway,
			Code:           ErrCodeUpstream,
			Message:        err.Error(),
			UpstreamStatus: up.Status,
			UpstreamBody:   upstreamBody(up.Body),
		})
	case errors.Is(err, nmos.ErrProtocol):
		writeError(w, http.StatusBadGateway, ErrCodeProtocol, err.Error())
	case errors.Is(err, nmos.ErrNetwork):
		writeError(w, http.StatusGatewayTimeout, ErrCodeGatewayTimeout, err.Error())
	default:
		writeInternalError(w, err.Error())
	}
}

// upstreamBody returns body as raw JSON when it parses, else as a string.
func upstreamBody(body []byte) any {
	if len(body) == 0 {
		return nil
	}
	if json.Valid(body) {
		return json.RawMessage(body)
	}
	return string(body)
}
