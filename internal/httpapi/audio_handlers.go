package httpapi

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jstrand/prospectcall/internal/audiocache"
)

// handleVoiceAudio serves a synthesized speech clip to the telephony
// provider. Clips are short-lived; an expired id is a 404, and the provider
// simply skips the Play verb.
func (r *Router) handleVoiceAudio(w http.ResponseWriter, req *http.Request) {
	clipID := req.PathValue("id")
	if clipID == "" {
		http.NotFound(w, req)
		return
	}

	if r.clips == nil {
		http.NotFound(w, req)
		return
	}

	audio, err := r.clips.Get(req.Context(), clipID)
	if errors.Is(err, audiocache.ErrNotFound) {
		http.NotFound(w, req)
		return
	}
	if err != nil {
		r.logger.Printf("audio: clip %s fetch failed: %v", clipID, err)
		captureError(req, err, "audio: clip fetch failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("Content-Length", fmt.Sprintf("%d", len(audio)))
	_, _ = w.Write(audio)
}
