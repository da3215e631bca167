package api

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/pannenhilfe24/callcore/internal/auth"
	"github.com/pannenhilfe24/callcore/internal/queue"
	"github.com/pannenhilfe24/callcore/internal/types"
)

// AgentHandler manages support agent availability and the queue view
type AgentHandler struct {
	tracker *queue.AgentTracker
	queue   *queue.Manager
	logger  zerolog.Logger
}

// NewAgentHandler creates a new AgentHandler
func NewAgentHandler(tracker *queue.AgentTracker, q *queue.Manager, logger zerolog.Logger) *AgentHandler {
	return &AgentHandler{tracker: tracker, queue: q, logger: logger}
}

// SetStatus handles POST /api/admin/agents/status. Agents post their
// own availability; flipping to available kicks the assignment loop.
func (h *AgentHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.GetUserFromContext(r.Context())

	var req struct {
		Available bool `json:"available"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
		return
	}

	if req.Available {
		h.tracker.SetAvailable(claims.PartyID, claims.Name)
		h.queue.Kick()
	} else {
		h.tracker.SetUnavailable(claims.PartyID)
	}

	h.logger.Debug().
		Str("agent_id", claims.PartyID).
		Bool("available", req.Available).
		Msg("agent status updated")

	writeJSON(w, http.StatusOK, map[string]bool{"available": req.Available})
}

// ListAgents handles GET /api/admin/agents
func (h *AgentHandler) ListAgents(w http.ResponseWriter, r *http.Request) {
	agents := h.tracker.GetAll()
	if agents == nil {
		agents = []types.AgentInfo{}
	}
	writeJSON(w, http.StatusOK, agents)
}

// QueueSnapshot handles GET /api/admin/queue
func (h *AgentHandler) QueueSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.queue.Snapshot())
}
