package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/vega-nmos-core/internal/connection"
)

// ConnectRequest is the body of POST /connections/connect.
type ConnectRequest struct {
	SenderID   string `json:"senderId"`
	ReceiverID string `json:"receiverId"`
}

// DisconnectRequest is the body of POST /connections/disconnect.
type DisconnectRequest struct {
	ReceiverID string `json:"receiverId"`
}

// OperationResponse carries the receiver's answer to a staged PATCH.
type OperationResponse struct {
	Message          string         `json:"message"`
	ReceiverResponse map[string]any `json:"receiverResponse"`
}

// handleConnect routes a sender to a receiver.
func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	var req ConnectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	body, err := s.orchestrator.Connect(r.Context(), req.SenderID, req.ReceiverID)
	if err != nil {
		writeCoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, OperationResponse{
		Message:          "Connected",
		ReceiverResponse: body,
	})
}

// handleDisconnect clears a receiver's sender.
func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	var req DisconnectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	body, err := s.orchestrator.Disconnect(r.Context(), req.ReceiverID)
	if err != nil {
		writeCoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, OperationResponse{
		Message:          "Disconnected",
		ReceiverResponse: body,
	})
}

// handleListConnections returns the cached record per receiver.
func (s *Server) handleListConnections(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]map[string]connection.Record{
		"connections": s.orchestrator.ActiveConnections(),
	})
}

// handleQueryState reads a receiver's active parameters from the device.
func (s *Server) handleQueryState(w http.ResponseWriter, r *http.Request) {
	rec, err := s.orchestrator.QueryState(r.Context(), chi.URLParam(r, "receiverID"))
	if err != nil {
		writeCoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleHistory lists persisted connection attempts for a receiver.
// An optional "limit" query parameter bounds the result.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeBadRequest(w, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	receiverID := chi.URLParam(r, "receiverID")
	entries, err := s.orchestrator.History(r.Context(), receiverID, limit)
	if err != nil {
		writeCoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"receiverId": receiverID,
		"history":    entries,
		"count":      len(entries),
	})
}
