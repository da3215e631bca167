package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/pannenhilfe24/callcore/internal/auth"
	"github.com/pannenhilfe24/callcore/internal/playback"
)

// RecordingHandler exposes the admin playback surface
type RecordingHandler struct {
	gateway *playback.Gateway
	logger  zerolog.Logger
}

// NewRecordingHandler creates a new RecordingHandler
func NewRecordingHandler(gateway *playback.Gateway, logger zerolog.Logger) *RecordingHandler {
	return &RecordingHandler{gateway: gateway, logger: logger}
}

// GetRecording handles GET /api/admin/recordings/{recordingID}
func (h *RecordingHandler) GetRecording(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.GetUserFromContext(r.Context())

	rec, err := h.gateway.GetRecording(chi.URLParam(r, "recordingID"), claims.Party())
	if err != nil {
		writePlaybackError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

// GetPlaybackURL handles GET /api/admin/recordings/{recordingID}/url
func (h *RecordingHandler) GetPlaybackURL(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.GetUserFromContext(r.Context())

	url, err := h.gateway.GetPlaybackURL(r.Context(), chi.URLParam(r, "recordingID"), claims.Party())
	if err != nil {
		writePlaybackError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

// Download handles GET /api/admin/recordings/{recordingID}/download
func (h *RecordingHandler) Download(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.GetUserFromContext(r.Context())
	recordingID := chi.URLParam(r, "recordingID")

	body, size, err := h.gateway.Download(r.Context(), recordingID, claims.Party())
	if err != nil {
		writePlaybackError(w, err)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="recording_%s.wav"`, recordingID))
	if size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	}
	if _, err := io.Copy(w, body); err != nil {
		h.logger.Error().Err(err).Str("recording_id", recordingID).Msg("recording download interrupted")
	}
}

func writePlaybackError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, playback.ErrForbidden):
		http.Error(w, `{"error":"admin role required"}`, http.StatusForbidden)
	case errors.Is(err, playback.ErrNotFound):
		http.Error(w, `{"error":"recording not found"}`, http.StatusNotFound)
	case errors.Is(err, playback.ErrNotReady):
		http.Error(w, `{"error":"recording not ready"}`, http.StatusConflict)
	default:
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
	}
}
