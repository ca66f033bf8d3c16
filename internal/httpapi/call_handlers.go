package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/jstrand/prospectcall/internal/dialog"
	"github.com/jstrand/prospectcall/internal/eventlog"
	"github.com/jstrand/prospectcall/internal/store"
	"github.com/jstrand/prospectcall/internal/telephony"
)

type initiateCallRequest struct {
	ProspectID    string `json:"prospect_id"`
	AgentConfigID string `json:"agent_config_id"`
	Bypass        bool   `json:"bypass_validation,omitempty"`
	Debug         bool   `json:"debug_mode,omitempty"`
}

type callErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// handleInitiateCall places an outbound call to a prospect. Every
// precondition failure carries a stable machine-readable code so the
// dashboard can explain exactly what is missing.
func (r *Router) handleInitiateCall(w http.ResponseWriter, req *http.Request) {
	user := getAuthUser(req.Context())
	if user == nil {
		http.Error(w, `{"error": "unauthorized"}`, http.StatusUnauthorized)
		return
	}

	var body initiateCallRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, callErrorResponse{Error: "invalid request body", Code: "bad_request"})
		return
	}
	if body.ProspectID == "" || body.AgentConfigID == "" {
		writeJSON(w, http.StatusBadRequest, callErrorResponse{Error: "prospect_id and agent_config_id are required", Code: "bad_request"})
		return
	}

	ctx := req.Context()

	prospect, err := r.store.GetProspect(ctx, body.ProspectID)
	if errors.Is(err, store.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, callErrorResponse{Error: "prospect not found", Code: "prospect_not_found"})
		return
	}
	if err != nil {
		captureError(req, err, "calls: prospect lookup failed")
		writeJSON(w, http.StatusInternalServerError, callErrorResponse{Error: "internal error", Code: "internal_error"})
		return
	}

	agentCfg, err := r.store.GetAgentConfig(ctx, body.AgentConfigID)
	if errors.Is(err, store.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, callErrorResponse{Error: "agent config not found", Code: "agent_config_not_found"})
		return
	}
	if err != nil {
		captureError(req, err, "calls: agent config lookup failed")
		writeJSON(w, http.StatusInternalServerError, callErrorResponse{Error: "internal error", Code: "internal_error"})
		return
	}

	creds, err := r.store.GetTwilioCredentials(ctx, user.ID)
	if errors.Is(err, store.ErrNotFound) {
		writeJSON(w, http.StatusPreconditionFailed, callErrorResponse{Error: "telephony credentials not configured", Code: "missing_credentials"})
		return
	}
	if err != nil {
		captureError(req, err, "calls: credentials lookup failed")
		writeJSON(w, http.StatusInternalServerError, callErrorResponse{Error: "internal error", Code: "internal_error"})
		return
	}

	if prospect.Phone == nil || *prospect.Phone == "" {
		writeJSON(w, http.StatusPreconditionFailed, callErrorResponse{Error: "prospect has no phone number", Code: "missing_phone_number"})
		return
	}
	to, err := telephony.FormatE164(*prospect.Phone)
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, callErrorResponse{Error: "prospect phone number is not dialable", Code: "invalid_phone_number"})
		return
	}

	// The record exists before the provider is asked to place anything, so
	// a webhook arriving mid-placement always finds its record.
	callLogID, err := r.store.CreateCallRecord(ctx, prospect.ID, agentCfg.ID, user.ID)
	if err != nil {
		captureError(req, err, "calls: failed to create call record")
		writeJSON(w, http.StatusInternalServerError, callErrorResponse{Error: "internal error", Code: "internal_error"})
		return
	}

	state := dialog.TurnState{
		ProspectID:    prospect.ID,
		AgentConfigID: agentCfg.ID,
		UserID:        user.ID,
		CallLogID:     callLogID,
		Bypass:        body.Bypass,
		Debug:         body.Debug,
	}
	if agentCfg.VoiceID != nil {
		state.VoiceID = *agentCfg.VoiceID
	}

	client := telephony.NewClient(creds.AccountSID, creds.AuthToken)
	result, err := client.PlaceCall(ctx, telephony.PlaceCallParams{
		To:                to,
		From:              creds.FromNumber,
		CallbackURL:       state.URL(r.cfg.PublicBaseURL, "/voice/answer"),
		StatusCallbackURL: state.URL(r.cfg.PublicBaseURL, "/voice/answer/status"),
		Record:            true,
	})
	if err != nil {
		_ = r.store.SetCallStatus(ctx, callLogID, store.StatusFailed)
		r.eventLog.LogAsync(callLogID, eventlog.EventPlacementFailed, map[string]any{"error": err.Error()})

		if telephony.IsTrialRestriction(err) {
			r.logger.Printf("calls: trial restriction placing call to %s: %v", to, err)
			if markErr := r.store.MarkTrialAccount(ctx, user.ID); markErr != nil {
				r.logger.Printf("calls: failed to mark trial account: %v", markErr)
			}
			r.discord.NotifyTrialRestriction(ctx, user.ID, to)
			writeJSON(w, http.StatusForbidden, callErrorResponse{
				Error: "trial account cannot call this number; verify it with your telephony provider first",
				Code:  "trial_restriction",
			})
			return
		}

		r.logger.Printf("calls: placement failed for record %s: %v", callLogID, err)
		captureError(req, err, "calls: placement failed")
		r.discord.NotifyPlacementFailed(ctx, to, err.Error())
		writeJSON(w, http.StatusBadGateway, callErrorResponse{Error: "call could not be placed", Code: "provider_error"})
		return
	}

	if err := r.store.SetProviderCallID(ctx, callLogID, result.SID); err != nil {
		// The call is already ringing; log and keep going.
		r.logger.Printf("calls: failed to set provider call id on %s: %v", callLogID, err)
		captureError(req, err, "calls: failed to set provider call id")
	}
	r.eventLog.LogAsync(callLogID, eventlog.EventCallInitiated, map[string]any{
		"provider_call_id": result.SID,
		"to":               to,
	})

	r.logger.Printf("calls: placed call %s to %s (record %s)", result.SID, to, callLogID)
	writeJSON(w, http.StatusCreated, map[string]string{
		"call_log_id":      callLogID,
		"provider_call_id": result.SID,
		"status":           store.StatusInitiated,
	})
}

// handleListCalls returns the caller's recent call records.
func (r *Router) handleListCalls(w http.ResponseWriter, req *http.Request) {
	user := getAuthUser(req.Context())
	if user == nil {
		http.Error(w, `{"error": "unauthorized"}`, http.StatusUnauthorized)
		return
	}

	limit := 50
	if v := req.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}

	calls, err := r.store.ListCallRecords(req.Context(), user.ID, limit)
	if err != nil {
		captureError(req, err, "calls: list failed")
		writeJSON(w, http.StatusInternalServerError, callErrorResponse{Error: "internal error", Code: "internal_error"})
		return
	}
	if calls == nil {
		calls = []store.CallRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"calls": calls})
}
