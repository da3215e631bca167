package api

import (
	"encoding/binary"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/pannenhilfe24/callcore/internal/auth"
	"github.com/pannenhilfe24/callcore/internal/ledger"
	"github.com/pannenhilfe24/callcore/internal/recorder"
)

// maxMediaFrameBytes caps one posted frame at two seconds of PCM16
// audio at 8kHz
const maxMediaFrameBytes = 32000

// MediaHandler receives media frames from call participants and taps
// them into the recorder. Calls without an active capture accept and
// discard frames, so clients post unconditionally.
type MediaHandler struct {
	recorder *recorder.Service
	ledger   *ledger.Ledger
	logger   zerolog.Logger
}

// NewMediaHandler creates a new MediaHandler
func NewMediaHandler(rec *recorder.Service, l *ledger.Ledger, logger zerolog.Logger) *MediaHandler {
	return &MediaHandler{recorder: rec, ledger: l, logger: logger}
}

// Ingest handles POST /api/calls/{callID}/media with a body of raw
// little-endian PCM16 samples
func (h *MediaHandler) Ingest(w http.ResponseWriter, r *http.Request) {
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

	raw, err := io.ReadAll(io.LimitReader(r.Body, maxMediaFrameBytes+1))
	if err != nil {
		http.Error(w, `{"error":"failed to read body"}`, http.StatusBadRequest)
		return
	}
	if len(raw) > maxMediaFrameBytes {
		http.Error(w, `{"error":"frame too large"}`, http.StatusRequestEntityTooLarge)
		return
	}
	if len(raw)%2 != 0 {
		http.Error(w, `{"error":"odd sample payload"}`, http.StatusBadRequest)
		return
	}

	samples := make([]int16, len(raw)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(raw[2*i:]))
	}

	captured := h.recorder.Ingest(callID, samples)
	writeJSON(w, http.StatusOK, map[string]bool{"captured": captured})
}
