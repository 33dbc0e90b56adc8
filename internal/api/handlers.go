package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/sqdops/seedtrack/internal/domain"
	"github.com/sqdops/seedtrack/internal/seeding"
	"github.com/sqdops/seedtrack/internal/storage"
)

// writeJSON writes a JSON response
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeDomainError maps the engine's error taxonomy to HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrInvalidState):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, domain.ErrDependency):
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// parseID parses an ID from the URL path
func parseID(req *http.Request, param string) (int64, error) {
	idStr := req.PathValue(param)
	return strconv.ParseInt(idStr, 10, 64)
}

// handleGetServers returns all registered game servers
func (r *Router) handleGetServers(w http.ResponseWriter, req *http.Request) {
	servers, err := r.store.GetServers(req.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, servers)
}

// handleGetServer returns a single game server
func (r *Router) handleGetServer(w http.ResponseWriter, req *http.Request) {
	id, err := parseID(req, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid server id")
		return
	}

	server, err := r.store.GetServerByID(req.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, server)
}

// CreateSessionRequest is the request body for opening a seeding session
type CreateSessionRequest struct {
	TargetServerID  int64                `json:"target_server_id"`
	PlayerThreshold int                  `json:"player_threshold"`
	TestMode        bool                 `json:"test_mode"`
	SourceServerIDs []int64              `json:"source_server_ids,omitempty"`
	Rewards         domain.RewardsConfig `json:"rewards"`
}

// handleCreateSession opens a new seeding session
func (r *Router) handleCreateSession(w http.ResponseWriter, req *http.Request) {
	claims := r.getAuthClaims(req)

	var body CreateSessionRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sess, err := r.engine.CreateSession(req.Context(), seeding.CreateSessionParams{
		TargetServerID:  body.TargetServerID,
		PlayerThreshold: body.PlayerThreshold,
		TestMode:        body.TestMode,
		SourceServerIDs: body.SourceServerIDs,
		Rewards:         body.Rewards,
		CreatedBy:       claims.Username,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

// handleListSessions returns sessions with an optional status filter
func (r *Router) handleListSessions(w http.ResponseWriter, req *http.Request) {
	status := req.URL.Query().Get("status")
	if status != "" && !validateSessionStatus(status) {
		writeError(w, http.StatusBadRequest, "invalid status: must be active, completed, or cancelled")
		return
	}
	limit := parseLimit(req, 50, 200)

	sessions, err := r.engine.ListSessions(req.Context(), status, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"sessions": sessions,
		"limit":    limit,
	})
}

// handleGetSession returns a single session with derived counters
func (r *Router) handleGetSession(w http.ResponseWriter, req *http.Request) {
	id, err := parseID(req, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return
	}

	sess, err := r.engine.GetSession(req.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// handleListParticipants returns a session's participants with filters
func (r *Router) handleListParticipants(w http.ResponseWriter, req *http.Request) {
	id, err := parseID(req, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return
	}

	var filter storage.ParticipantFilter
	if s := req.URL.Query().Get("status"); s != "" {
		if !domain.ValidParticipantStatus(domain.ParticipantStatus(s)) {
			writeError(w, http.StatusBadRequest, "invalid participant status")
			return
		}
		filter.Status = domain.ParticipantStatus(s)
	}
	if t := req.URL.Query().Get("type"); t != "" {
		if !domain.ValidParticipantType(domain.ParticipantType(t)) {
			writeError(w, http.StatusBadRequest, "invalid participant type")
			return
		}
		filter.Type = domain.ParticipantType(t)
	}

	participants, err := r.engine.ListParticipants(req.Context(), id, filter)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"participants": participants,
		"total":        len(participants),
	})
}

// handleClosePreview returns what closing the session now would grant
func (r *Router) handleClosePreview(w http.ResponseWriter, req *http.Request) {
	id, err := parseID(req, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return
	}

	preview, err := r.engine.PreviewClose(req.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, preview)
}

// handleCloseSession completes a session manually
func (r *Router) handleCloseSession(w http.ResponseWriter, req *http.Request) {
	id, err := parseID(req, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return
	}
	claims := r.getAuthClaims(req)

	sess, err := r.engine.CloseSession(req.Context(), id, claims.Username)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// ReasonRequest is the request body for destructive operations
type ReasonRequest struct {
	Reason string `json:"reason"`
}

// handleCancelSession cancels a session without granting anything
func (r *Router) handleCancelSession(w http.ResponseWriter, req *http.Request) {
	id, err := parseID(req, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return
	}
	claims := r.getAuthClaims(req)

	var body ReasonRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sess, err := r.engine.CancelSession(req.Context(), id, claims.Username, body.Reason)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// handleRevokeParticipant retracts every reward one participant received
func (r *Router) handleRevokeParticipant(w http.ResponseWriter, req *http.Request) {
	sessionID, err := parseID(req, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return
	}
	participantID, err := parseID(req, "pid")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid participant id")
		return
	}
	claims := r.getAuthClaims(req)

	var body ReasonRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	p, err := r.engine.RevokeParticipant(req.Context(), sessionID, participantID, claims.Username, body.Reason)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// handleReverseSession retracts every reward granted under a session
func (r *Router) handleReverseSession(w http.ResponseWriter, req *http.Request) {
	id, err := parseID(req, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return
	}
	claims := r.getAuthClaims(req)

	var body ReasonRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	reversed, err := r.engine.ReverseSessionRewards(req.Context(), id, claims.Username, body.Reason)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"session_id":            id,
		"participants_reversed": reversed,
	})
}

// handleListAudit returns the audit trail, optionally scoped to a session
func (r *Router) handleListAudit(w http.ResponseWriter, req *http.Request) {
	var sessionID *int64
	if s := req.URL.Query().Get("session_id"); s != "" {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid session_id")
			return
		}
		sessionID = &id
	}
	limit := parseLimit(req, 50, 200)

	entries, err := r.store.ListAudit(req.Context(), sessionID, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// handleHealth returns a simple health check response
func (r *Router) handleHealth(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}
