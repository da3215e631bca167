package signaling

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/pannenhilfe24/callcore/internal/auth"
	"github.com/pannenhilfe24/callcore/internal/config"
	"github.com/pannenhilfe24/callcore/internal/ledger"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Origin is enforced by the CORS layer in front of the router
		return true
	},
}

// Handler upgrades signaling WebSocket requests for call participants
type Handler struct {
	relay  *Relay
	ledger *ledger.Ledger
	cfg    *config.Config
	logger zerolog.Logger
}

// NewHandler creates a new signaling Handler
func NewHandler(relay *Relay, l *ledger.Ledger, cfg *config.Config, logger zerolog.Logger) *Handler {
	return &Handler{
		relay:  relay,
		ledger: l,
		cfg:    cfg,
		logger: logger,
	}
}

// ServeHTTP handles GET /calls/{callID}/signal. Only the two parties
// of a live call may attach.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.GetUserFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	callID := chi.URLParam(r, "callID")
	call, err := h.ledger.GetCall(callID)
	if err != nil {
		http.Error(w, "Call not found", http.StatusNotFound)
		return
	}

	party := claims.Party()
	if call.Caller.ID != party.ID && call.Receiver.ID != party.ID {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}
	if call.Status.Terminal() {
		http.Error(w, "Call already ended", http.StatusConflict)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Str("call_id", callID).Msg("failed to upgrade signaling connection")
		return
	}

	client := NewClient(callID, party.ID, conn, h.relay, h.cfg, h.logger)
	client.Start()
}
