package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/pannenhilfe24/callcore/internal/auth"
	"github.com/pannenhilfe24/callcore/internal/ledger"
	"github.com/pannenhilfe24/callcore/internal/monitor"
	"github.com/pannenhilfe24/callcore/internal/policy"
	"github.com/pannenhilfe24/callcore/internal/queue"
	"github.com/pannenhilfe24/callcore/internal/storage"
	"github.com/pannenhilfe24/callcore/internal/types"
)

// CallHandler exposes the call lifecycle over HTTP
type CallHandler struct {
	ledger  *ledger.Ledger
	queue   *queue.Manager
	policy  *policy.Engine
	monitor *monitor.Monitor
	store   storage.Store
	logger  zerolog.Logger
}

// NewCallHandler creates a new CallHandler
func NewCallHandler(l *ledger.Ledger, q *queue.Manager, p *policy.Engine, m *monitor.Monitor, store storage.Store, logger zerolog.Logger) *CallHandler {
	return &CallHandler{
		ledger:  l,
		queue:   q,
		policy:  p,
		monitor: m,
		store:   store,
		logger:  logger,
	}
}

// CreateCall handles POST /api/calls
func (h *CallHandler) CreateCall(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.GetUserFromContext(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	var req struct {
		ReceiverID   string          `json:"receiverId"`
		ReceiverType types.PartyType `json:"receiverType"`
		Recorded     bool            `json:"recorded"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
		return
	}
	if !req.ReceiverType.Valid() {
		http.Error(w, `{"error":"invalid receiver type"}`, http.StatusBadRequest)
		return
	}

	caller := claims.Party()
	receiver := types.Party{ID: req.ReceiverID, Type: req.ReceiverType}

	route, err := h.policy.Authorize(r.Context(), caller, receiver)
	switch {
	case errors.Is(err, policy.ErrRouteNotAllowed):
		http.Error(w, `{"error":"call route not allowed"}`, http.StatusForbidden)
		return
	case errors.Is(err, policy.ErrInsufficientBalance):
		http.Error(w, `{"error":"insufficient balance"}`, http.StatusPaymentRequired)
		return
	case err != nil:
		h.logger.Error().Err(err).Msg("call authorization failed")
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}

	if route.Queued {
		// Support-bound: the concrete agent is assigned by the queue.
		receiver = types.Party{Type: types.PartyAdmin}
	} else if receiver.ID == "" {
		http.Error(w, `{"error":"receiverId required"}`, http.StatusBadRequest)
		return
	}

	call, err := h.ledger.CreateCall(caller, receiver, req.Recorded)
	if err != nil {
		writeLedgerError(w, err)
		return
	}

	if route.Queued {
		h.queue.Enqueue(call)
	}

	writeJSON(w, http.StatusCreated, call)
}

// GetCall handles GET /api/calls/{callID}
func (h *CallHandler) GetCall(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.GetUserFromContext(r.Context())
	call, err := h.ledger.GetCall(chi.URLParam(r, "callID"))
	if err != nil {
		writeLedgerError(w, err)
		return
	}

	party := claims.Party()
	if call.Caller.ID != party.ID && call.Receiver.ID != party.ID && !claims.IsAdmin() {
		http.Error(w, `{"error":"forbidden"}`, http.StatusForbidden)
		return
	}

	writeJSON(w, http.StatusOK, call)
}

// Answer handles POST /api/calls/{callID}/answer
func (h *CallHandler) Answer(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.GetUserFromContext(r.Context())
	callID := chi.URLParam(r, "callID")

	call, err := h.ledger.GetCall(callID)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	if call.Receiver.ID != claims.PartyID {
		http.Error(w, `{"error":"only the receiver can answer"}`, http.StatusForbidden)
		return
	}

	call, err = h.ledger.Transition(callID, types.CallStatusConnected, "")
	if err != nil {
		writeLedgerError(w, err)
		return
	}

	if err := h.policy.OnConnected(r.Context(), &call); err != nil {
		// The call is already live; charging failures are logged and
		// settled out of band, never by dropping the call.
		h.logger.Error().Err(err).Str("call_id", callID).Msg("connect charge failed")
	}

	writeJSON(w, http.StatusOK, call)
}

// Reject handles POST /api/calls/{callID}/reject
func (h *CallHandler) Reject(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.GetUserFromContext(r.Context())
	callID := chi.URLParam(r, "callID")

	call, err := h.ledger.GetCall(callID)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	if call.Receiver.ID != claims.PartyID {
		http.Error(w, `{"error":"only the receiver can reject"}`, http.StatusForbidden)
		return
	}

	call, err = h.ledger.Transition(callID, types.CallStatusRejected, "")
	if err != nil {
		writeLedgerError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, call)
}

// Hangup handles POST /api/calls/{callID}/hangup. Both parties may
// hang up; a caller hanging up while still ringing counts as a
// cancellation. Hanging up an already ended call succeeds as a no-op.
func (h *CallHandler) Hangup(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.GetUserFromContext(r.Context())
	callID := chi.URLParam(r, "callID")

	call, err := h.ledger.GetCall(callID)
	if err != nil {
		writeLedgerError(w, err)
		return
	}

	party := claims.Party()
	if call.Caller.ID != party.ID && call.Receiver.ID != party.ID {
		http.Error(w, `{"error":"forbidden"}`, http.StatusForbidden)
		return
	}

	reason := types.EndReasonHangup
	if call.Status == types.CallStatusRinging && call.Caller.ID == party.ID {
		reason = types.EndReasonCallerCancelled
		// Take the call out of the support queue if it was waiting.
		h.queue.Cancel(callID)
	}

	call, err = h.ledger.Transition(callID, types.CallStatusEnded, reason)
	if err != nil {
		writeLedgerError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, call)
}

// ActiveCalls handles GET /api/admin/calls/active
func (h *CallHandler) ActiveCalls(w http.ResponseWriter, r *http.Request) {
	calls := h.monitor.ActiveCalls()
	if calls == nil {
		calls = []types.Call{}
	}
	writeJSON(w, http.StatusOK, calls)
}

// ForceEnd handles POST /api/admin/calls/{callID}/force-end
func (h *CallHandler) ForceEnd(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.GetUserFromContext(r.Context())

	call, err := h.monitor.ForceEnd(chi.URLParam(r, "callID"), claims.PartyID)
	if err != nil {
		writeLedgerError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, call)
}

// History handles GET /api/admin/calls/history
func (h *CallHandler) History(w http.ResponseWriter, r *http.Request) {
	filter := storage.CallRecordFilter{
		StartDate: r.URL.Query().Get("startDate"),
		EndDate:   r.URL.Query().Get("endDate"),
		Status:    r.URL.Query().Get("status"),
		Search:    r.URL.Query().Get("search"),
	}
	if limit := r.URL.Query().Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 0 {
			http.Error(w, `{"error":"invalid limit"}`, http.StatusBadRequest)
			return
		}
		filter.Limit = n
	}

	records, err := h.store.ListCallRecords(filter)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list call records")
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []types.CallRecord{}
	}

	writeJSON(w, http.StatusOK, records)
}

// writeLedgerError maps ledger errors to HTTP responses
func writeLedgerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		http.Error(w, `{"error":"call not found"}`, http.StatusNotFound)
	case errors.Is(err, ledger.ErrInvalidParty):
		http.Error(w, `{"error":"invalid party"}`, http.StatusBadRequest)
	case errors.Is(err, ledger.ErrSelfCall):
		http.Error(w, `{"error":"cannot call yourself"}`, http.StatusBadRequest)
	case errors.Is(err, ledger.ErrCallerBusy):
		http.Error(w, `{"error":"caller already in a call"}`, http.StatusConflict)
	case errors.Is(err, ledger.ErrReceiverBusy):
		http.Error(w, `{"error":"receiver already in a call"}`, http.StatusConflict)
	case errors.Is(err, ledger.ErrInvalidTransition):
		http.Error(w, `{"error":"invalid call state"}`, http.StatusConflict)
	default:
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
	}
}

// writeJSON writes a JSON response with the given status
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
