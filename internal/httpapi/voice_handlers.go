package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jstrand/prospectcall/internal/dialog"
	"github.com/jstrand/prospectcall/internal/eventlog"
	"github.com/jstrand/prospectcall/internal/notifications"
	"github.com/jstrand/prospectcall/internal/store"
	"github.com/jstrand/prospectcall/internal/telephony"
)

// apologyTwiML is the last-resort document written when even rendering
// fails. The call ends with a polite apology instead of provider-side error
// audio.
const apologyTwiML = `<?xml version="1.0" encoding="UTF-8"?>
<Response>
  <Say>I am sorry, something went wrong on our end. Goodbye.</Say>
  <Hangup></Hangup>
</Response>`

// writeTwiML serializes a call-control document to the response. Webhook
// handlers must always answer with a valid document; a render failure
// degrades to a spoken apology, never a 500 with an open call.
func (r *Router) writeTwiML(w http.ResponseWriter, req *http.Request, doc *telephony.Document) {
	w.Header().Set("Content-Type", telephony.ContentType)

	out, err := doc.Render()
	if err != nil {
		r.logger.Printf("voice: render failed on %s: %v", req.URL.Path, err)
		captureError(req, err, "voice: twiml render failed")
		_, _ = w.Write([]byte(apologyTwiML))
		return
	}
	_, _ = w.Write([]byte(out))
}

// apologyDoc builds the standard in-call failure response.
func apologyDoc() *telephony.Document {
	return telephony.NewDocument().
		Say("I am sorry, something went wrong on our end. Goodbye.", telephony.SayOptions{}).
		Hangup()
}

// validateWebhook checks the provider signature on a webhook request using
// the auth token of the user the turn state points at. Callers must have
// parsed the form already.
func (r *Router) validateWebhook(req *http.Request, state dialog.TurnState) bool {
	var authToken string
	if state.UserID != "" {
		if creds, err := r.store.GetTwilioCredentials(req.Context(), state.UserID); err == nil {
			authToken = creds.AuthToken
		}
	}

	publicURL := strings.TrimRight(r.cfg.PublicBaseURL, "/") + req.URL.RequestURI()
	if telephony.ValidateRequest(req, publicURL, authToken, state.Bypass, r.logger) {
		return true
	}
	r.eventLog.LogAsync(state.CallLogID, eventlog.EventSignatureRejected, map[string]any{
		"path": req.URL.Path,
	})
	return false
}

// handleVoiceAnswer is the call-control webhook the provider invokes when an
// outbound call is answered. It speaks the greeting and opens the first
// gather of the dialog loop, or hands off to the media bridge for realtime
// agents.
func (r *Router) handleVoiceAnswer(w http.ResponseWriter, req *http.Request) {
	if err := req.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}

	state := dialog.ParseTurnState(req.URL.Query())
	if !r.validateWebhook(req, state) {
		http.Error(w, "invalid signature", http.StatusForbidden)
		return
	}

	r.eventLog.LogAsync(state.CallLogID, eventlog.EventWebhookReceived, map[string]any{
		"path": "/voice/answer",
	})

	// Debug mode speaks the received parameters back and hangs up without
	// touching any AI provider. Used to verify webhook plumbing end to end.
	// A request that skipped signature validation is confined to the same
	// document: bypass never reaches a live call.
	if state.Debug || state.Bypass {
		summary := fmt.Sprintf(
			"Debug mode. Prospect %s. Agent config %s. Call log %s. Conversation count %d.",
			state.ProspectID, state.AgentConfigID, state.CallLogID, state.Turn,
		)
		r.writeTwiML(w, req, telephony.NewDocument().
			Say(summary, telephony.SayOptions{}).
			Hangup())
		return
	}

	agentCfg, err := r.store.GetAgentConfig(req.Context(), state.AgentConfigID)
	if err != nil {
		r.logger.Printf("voice: agent config %s lookup failed: %v", state.AgentConfigID, err)
		captureError(req, err, "voice: agent config lookup failed")
		r.writeTwiML(w, req, apologyDoc())
		return
	}

	if state.CallLogID != "" {
		_ = r.store.SetCallStatus(req.Context(), state.CallLogID, store.StatusInProgress)
	}

	// Realtime agents skip the turn loop entirely: hand the audio to the
	// media bridge and let the conversational provider drive.
	if agentCfg.RealtimeAgentID != nil && *agentCfg.RealtimeAgentID != "" {
		mediaURL := wsURLFromPublicBase(r.cfg.PublicBaseURL) + "/media?" + bridgeQuery(state, *agentCfg.RealtimeAgentID)
		r.writeTwiML(w, req, telephony.NewDocument().ConnectStream(mediaURL, nil))
		return
	}

	greeting := dialog.Greeting(agentCfg.SystemPrompt)
	if creds, err := r.store.GetTwilioCredentials(req.Context(), state.UserID); err == nil && creds.TrialAccount {
		greeting = dialog.TrialAccountNotice + greeting
	}

	if state.CallLogID != "" {
		if err := r.store.AppendTranscript(req.Context(), state.CallLogID, "agent: "+greeting); err != nil {
			r.logger.Printf("voice: transcript append failed: %v", err)
		}
	}

	respondURL := state.URL(r.cfg.PublicBaseURL, "/voice/respond")
	doc := telephony.NewDocument().
		Say(greeting, telephony.SayOptions{}).
		Pause(1).
		Gather(telephony.GatherOptions{
			Input:         "speech dtmf",
			Action:        respondURL,
			Timeout:       5,
			SpeechTimeout: "auto",
			NumDigits:     1,
		}, nil).
		// If the gather times out with no input at all, re-enter the loop;
		// the respond handler treats an empty turn as a re-prompt.
		Redirect(respondURL)

	r.writeTwiML(w, req, doc)
}

// bridgeQuery builds the media bridge websocket query from the turn state.
func bridgeQuery(state dialog.TurnState, realtimeAgentID string) string {
	q := state.Values()
	q.Set("agent_id", realtimeAgentID)
	return q.Encode()
}

// providerStatusMap translates provider call lifecycle statuses into call
// record statuses.
var providerStatusMap = map[string]string{
	"queued":      store.StatusInitiated,
	"initiated":   store.StatusInitiated,
	"ringing":     store.StatusRinging,
	"answered":    store.StatusAnswered,
	"in-progress": store.StatusInProgress,
	"completed":   store.StatusCompleted,
	"busy":        store.StatusBusy,
	"no-answer":   store.StatusNoAnswer,
	"failed":      store.StatusFailed,
	"canceled":    store.StatusCanceled,
}

func isTerminalStatus(status string) bool {
	switch status {
	case store.StatusCompleted, store.StatusFailed, store.StatusBusy, store.StatusNoAnswer, store.StatusCanceled:
		return true
	}
	return false
}

// handleVoiceStatus receives asynchronous call lifecycle callbacks. It always
// acknowledges; a failure to record a status must not make the provider
// retry into an error loop.
func (r *Router) handleVoiceStatus(w http.ResponseWriter, req *http.Request) {
	if err := req.ParseForm(); err != nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	state := dialog.ParseTurnState(req.URL.Query())
	if !r.validateWebhook(req, state) {
		http.Error(w, "invalid signature", http.StatusForbidden)
		return
	}

	callSid := req.FormValue("CallSid")
	providerStatus := req.FormValue("CallStatus")
	status, known := providerStatusMap[providerStatus]
	if callSid == "" || !known {
		if providerStatus != "" && !known {
			r.logger.Printf("voice: unknown provider status %q for call %s", providerStatus, callSid)
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}

	var duration *int
	if v := req.FormValue("CallDuration"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			duration = &n
		}
	}
	var recordingURL *string
	if v := req.FormValue("RecordingUrl"); v != "" {
		recordingURL = &v
	}

	if err := r.store.UpdateCallStatusByProviderID(req.Context(), callSid, status, duration, recordingURL, nowUTC()); err != nil {
		r.logger.Printf("voice: status update failed for %s: %v", callSid, err)
		captureError(req, err, "voice: status update failed")
	}

	r.eventLog.LogAsync(state.CallLogID, eventlog.EventStatusCallback, map[string]any{
		"provider_call_id": callSid,
		"status":           status,
	})

	if isTerminalStatus(status) {
		// A live bridge session for this call is now orphaned.
		r.sessions.Close(callSid)
		r.eventLog.LogAsync(state.CallLogID, eventlog.EventCallEnded, map[string]any{"status": status})
		go r.notifyCallOutcome(state.CallLogID)
	}

	w.WriteHeader(http.StatusNoContent)
}

// notifyCallOutcome pushes a completed-call notification to the owner's
// registered devices. Best effort, runs off the webhook path.
func (r *Router) notifyCallOutcome(callLogID string) {
	if callLogID == "" || r.apns == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	record, err := r.store.GetCallRecord(ctx, callLogID)
	if err != nil {
		r.logger.Printf("voice: outcome push lookup failed for %s: %v", callLogID, err)
		return
	}

	prospectName := "prospect"
	if prospect, err := r.store.GetProspect(ctx, record.ProspectID); err == nil {
		prospectName = prospect.Name
	}

	outcome := dialog.OutcomeUndetermined
	if record.Outcome != nil {
		outcome = *record.Outcome
	}
	summary := ""
	if record.Summary != nil {
		summary = *record.Summary
	}

	tokens, err := r.store.GetUserPushTokens(ctx, record.UserID)
	if err != nil {
		r.logger.Printf("voice: push token lookup failed for user %s: %v", record.UserID, err)
		return
	}

	for _, t := range tokens {
		if t.Platform != "ios" {
			continue
		}
		if err := r.apns.SendCallOutcome(t.Token, notifications.CallOutcomeNotification{
			CallRecordID: record.ID,
			ProspectName: prospectName,
			Outcome:      outcome,
			Summary:      summary,
		}); err != nil {
			r.logger.Printf("voice: outcome push failed: %v", err)
		}
	}
}
