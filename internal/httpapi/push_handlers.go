package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"
)

// pushTokenRequest is the body of both push-token endpoints; unregister
// ignores the platform.
type pushTokenRequest struct {
	Token    string `json:"token"`
	Platform string `json:"platform,omitempty"`
}

// handlePushRegister stores a device token for call-outcome notifications.
// Registering the same token again updates its platform, so re-installs on
// the same device never produce duplicate pushes.
func (r *Router) handlePushRegister(w http.ResponseWriter, req *http.Request) {
	user := getAuthUser(req.Context())
	if user == nil {
		http.Error(w, `{"error": "unauthorized"}`, http.StatusUnauthorized)
		return
	}

	body, ok := decodePushToken(w, req)
	if !ok {
		return
	}

	platform := strings.ToLower(strings.TrimSpace(body.Platform))
	if platform != "ios" && platform != "android" {
		writeJSON(w, http.StatusBadRequest, callErrorResponse{Error: "platform must be 'ios' or 'android'", Code: "bad_request"})
		return
	}

	if err := r.store.RegisterPushToken(req.Context(), user.ID, body.Token, platform); err != nil {
		r.logger.Printf("push: register failed for user %s: %v", user.ID, err)
		captureError(req, err, "push: token registration failed")
		writeJSON(w, http.StatusInternalServerError, callErrorResponse{Error: "failed to register token", Code: "internal_error"})
		return
	}

	r.logger.Printf("push: registered %s token for user %s", platform, user.ID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "registered", "platform": platform})
}

// handlePushUnregister drops a device token, e.g. on sign-out.
func (r *Router) handlePushUnregister(w http.ResponseWriter, req *http.Request) {
	user := getAuthUser(req.Context())
	if user == nil {
		http.Error(w, `{"error": "unauthorized"}`, http.StatusUnauthorized)
		return
	}

	body, ok := decodePushToken(w, req)
	if !ok {
		return
	}

	if err := r.store.UnregisterPushToken(req.Context(), body.Token); err != nil {
		r.logger.Printf("push: unregister failed for user %s: %v", user.ID, err)
		captureError(req, err, "push: token removal failed")
		writeJSON(w, http.StatusInternalServerError, callErrorResponse{Error: "failed to unregister token", Code: "internal_error"})
		return
	}

	r.logger.Printf("push: unregistered token for user %s", user.ID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "unregistered"})
}

// decodePushToken parses and validates the shared request body. It writes
// the error response itself and reports whether the caller should proceed.
func decodePushToken(w http.ResponseWriter, req *http.Request) (pushTokenRequest, bool) {
	var body pushTokenRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, callErrorResponse{Error: "invalid request body", Code: "bad_request"})
		return body, false
	}
	body.Token = strings.TrimSpace(body.Token)
	if body.Token == "" {
		writeJSON(w, http.StatusBadRequest, callErrorResponse{Error: "token is required", Code: "bad_request"})
		return body, false
	}
	return body, true
}
