package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/edward/tracksync/internal/identity"
	"github.com/edward/tracksync/internal/schema"
	statesync "github.com/edward/tracksync/internal/sync"
)

// Wire error codes. Validation failures name their cause; persistence
// failures collapse into a single generic code.
const (
	errBadClientID      = "bad_client_id"
	errBadState         = "bad_state"
	errWriteFailed      = "write_failed"
	errReadFailed       = "read_failed"
	errMethodNotAllowed = "method_not_allowed"
)

type fetchResponse struct {
	OK          bool             `json:"ok"`
	UpdatedAtMs int64            `json:"updatedAtMs"`
	State       *schema.Document `json:"state"`
}

type replaceResponse struct {
	OK          bool  `json:"ok"`
	UpdatedAtMs int64 `json:"updatedAtMs"`
}

type conflictResponse struct {
	OK          bool             `json:"ok"`
	Conflict    bool             `json:"conflict"`
	UpdatedAtMs int64            `json:"updatedAtMs"`
	State       *schema.Document `json:"state"`
}

type errorResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

type replaceRequest struct {
	ClientID    string          `json:"clientId"`
	UpdatedAtMs int64           `json:"updatedAtMs"`
	State       json.RawMessage `json:"state"`
}

// handleState dispatches the two sync operations.
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleFetch(w, r)
	case http.MethodPost:
		s.handleReplace(w, r)
	default:
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: errMethodNotAllowed})
	}
}

func (s *Server) handleFetch(w http.ResponseWriter, r *http.Request) {
	reqID := uuid.NewString()
	clientID := identity.Normalize(r.URL.Query().Get("clientId"))

	res, err := s.engine.Fetch(r.Context(), clientID)
	if err != nil {
		if errors.Is(err, identity.ErrInvalid) {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: errBadClientID})
			return
		}
		s.logger.Printf("[%s] fetch %s failed: %v", reqID, clientID, err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: errReadFailed})
		return
	}

	// StatusNoState is a valid result for a brand-new client, not a 404.
	writeJSON(w, http.StatusOK, fetchResponse{
		OK:          true,
		UpdatedAtMs: res.UpdatedAtMs,
		State:       res.State,
	})
}

func (s *Server) handleReplace(w http.ResponseWriter, r *http.Request) {
	reqID := uuid.NewString()

	var req replaceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: errBadState})
		return
	}
	req.ClientID = identity.Normalize(req.ClientID)
	if err := identity.Validate(req.ClientID); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: errBadClientID})
		return
	}

	// The state section must be a JSON object; anything else is a
	// malformed payload, rejected before any storage access.
	var state map[string]any
	if len(req.State) == 0 || json.Unmarshal(req.State, &state) != nil || state == nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: errBadState})
		return
	}

	res, err := s.engine.Replace(r.Context(), req.ClientID, state, req.UpdatedAtMs)
	if err != nil {
		if errors.Is(err, identity.ErrInvalid) {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: errBadClientID})
			return
		}
		s.logger.Printf("[%s] replace %s failed: %v", reqID, req.ClientID, err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: errWriteFailed})
		return
	}

	if res.Status == statesync.StatusConflict {
		writeJSON(w, http.StatusConflict, conflictResponse{
			Conflict:    true,
			UpdatedAtMs: res.UpdatedAtMs,
			State:       res.State,
		})
		return
	}

	s.events.Broadcast(StateUpdate{
		Type:        "state_update",
		ClientID:    req.ClientID,
		UpdatedAtMs: res.UpdatedAtMs,
	})

	writeJSON(w, http.StatusOK, replaceResponse{OK: true, UpdatedAtMs: res.UpdatedAtMs})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"subscribers": s.events.SubscriberCount(),
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
