package api

import (
	"net/http"

	"minuteman/internal/drive"
	"minuteman/internal/logging"
)

// DriveWebhook handles POST /webhooks/drive. The platform announces folder
// changes through headers with an empty body; the payload never identifies
// the changed file, so the detector answers with a listing pass.
func (h *Handler) DriveWebhook(w http.ResponseWriter, r *http.Request) {
	if h.detector == nil {
		writeJSON(w, http.StatusNotFound, errorBody("folder watching is disabled"))
		return
	}

	notification, err := drive.ParsePushHeaders(r.Header, h.now())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if h.verifier != nil {
		if err := h.verifier.VerifyPushToken(notification); err != nil {
			writeJSON(w, http.StatusUnauthorized, errorBody("channel token mismatch"))
			return
		}
	}

	if err := h.detector.Push(r.Context(), notification); err != nil {
		writeError(w, h.logger, err)
		return
	}

	h.logger.Debug("push notification accepted",
		logging.String("channel_id", notification.ChannelID),
		logging.String("resource_state", notification.ResourceState),
	)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
