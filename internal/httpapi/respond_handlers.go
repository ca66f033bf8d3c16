package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/jstrand/prospectcall/internal/dialog"
	"github.com/jstrand/prospectcall/internal/eventlog"
	"github.com/jstrand/prospectcall/internal/llm"
	"github.com/jstrand/prospectcall/internal/telephony"
)

const repromptText = "Sorry, I didn't catch that. Could you say that again, or press 1 for yes and 2 for no?"

// handleVoiceRespond processes one turn of the gather loop. The provider
// posts whatever the callee said (or keyed); we answer with the next
// call-control document. All call context arrives in the query string, so
// the handler is stateless across turns.
func (r *Router) handleVoiceRespond(w http.ResponseWriter, req *http.Request) {
	if err := req.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}

	state := dialog.ParseTurnState(req.URL.Query())
	if !r.validateWebhook(req, state) {
		http.Error(w, "invalid signature", http.StatusForbidden)
		return
	}

	input := strings.TrimSpace(req.FormValue("SpeechResult"))
	if input == "" {
		if digits := req.FormValue("Digits"); digits != "" {
			input = dialog.NormalizeDTMF(digits)
		}
	}

	// No input at all: re-prompt without advancing the turn counter. A
	// silent turn should not consume conversation budget.
	if input == "" {
		r.eventLog.LogAsync(state.CallLogID, eventlog.EventRepromptIssued, nil)
		respondURL := state.URL(r.cfg.PublicBaseURL, "/voice/respond")
		r.writeTwiML(w, req, telephony.NewDocument().
			Say(repromptText, telephony.SayOptions{}).
			Gather(telephony.GatherOptions{
				Input:         "speech dtmf",
				Action:        respondURL,
				Timeout:       5,
				SpeechTimeout: "auto",
				NumDigits:     1,
			}, nil).
			Redirect(respondURL))
		return
	}

	ctx := req.Context()
	r.logger.Printf("voice: turn %d input for call %s: %s", state.Turn, state.CallLogID, input)

	if state.CallLogID != "" {
		if err := r.store.AppendTranscript(ctx, state.CallLogID, "caller: "+input); err != nil {
			r.logger.Printf("voice: transcript append failed: %v", err)
		}
	}

	messages, opts, err := r.conversationSoFar(ctx, state, input)
	if err != nil {
		r.logger.Printf("voice: failed to rebuild conversation for %s: %v", state.CallLogID, err)
		captureError(req, err, "voice: conversation rebuild failed")
		r.writeTwiML(w, req, apologyDoc())
		return
	}

	reply, err := r.llm.CompleteTurn(ctx, messages, opts)
	if err != nil {
		// The caller is live on the line; degrade to the rule-based reply
		// instead of dead air.
		r.logger.Printf("voice: LLM failed for call %s, using fallback: %v", state.CallLogID, err)
		r.eventLog.LogAsync(state.CallLogID, eventlog.EventLLMFallback, map[string]any{"error": err.Error()})
		reply = dialog.FallbackReply(input)
	}

	if state.CallLogID != "" {
		if err := r.store.AppendTranscript(ctx, state.CallLogID, "agent: "+reply); err != nil {
			r.logger.Printf("voice: transcript append failed: %v", err)
		}
	}
	r.eventLog.LogAsync(state.CallLogID, eventlog.EventTurnCompleted, map[string]any{
		"turn": state.Turn,
	})

	doc := telephony.NewDocument()
	r.speak(ctx, doc, reply, state)

	if dialog.IsClosing(reply) || state.AtCap() {
		doc.Hangup()
		r.writeTwiML(w, req, doc)

		finalMessages := append(messages, llm.Message{Role: "assistant", Content: reply})
		go r.finalizeCall(state.CallLogID, input, finalMessages)
		return
	}

	next := state.Next()
	respondURL := next.URL(r.cfg.PublicBaseURL, "/voice/respond")
	doc.Pause(1).
		Gather(telephony.GatherOptions{
			Input:         "speech dtmf",
			Action:        respondURL,
			Timeout:       5,
			SpeechTimeout: "auto",
			NumDigits:     1,
		}, nil).
		Redirect(respondURL)

	r.writeTwiML(w, req, doc)
}

// speak adds the reply to the document: a synthesized clip when TTS and the
// clip cache cooperate, the provider's built-in voice otherwise.
func (r *Router) speak(ctx context.Context, doc *telephony.Document, reply string, state dialog.TurnState) {
	if r.clips != nil && r.cfg.ElevenLabsAPIKey != "" {
		audio, err := r.tts.Synthesize(ctx, reply, state.VoiceID)
		if err == nil {
			clipID, cacheErr := r.clips.Put(ctx, audio)
			if cacheErr == nil {
				doc.Play(strings.TrimRight(r.cfg.PublicBaseURL, "/") + "/voice/audio/" + clipID)
				return
			}
			err = cacheErr
		}
		r.logger.Printf("voice: TTS unavailable for call %s, using Say: %v", state.CallLogID, err)
		r.eventLog.LogAsync(state.CallLogID, eventlog.EventTTSFallback, map[string]any{"error": err.Error()})
	}
	doc.Say(reply, telephony.SayOptions{})
}

// conversationSoFar rebuilds the LLM message history from the stored
// transcript, with the system prompt composed from the agent config and the
// prospect's context. The latest caller input is already in the transcript.
func (r *Router) conversationSoFar(ctx context.Context, state dialog.TurnState, latestInput string) ([]llm.Message, llm.Options, error) {
	agentCfg, err := r.store.GetAgentConfig(ctx, state.AgentConfigID)
	if err != nil {
		return nil, llm.Options{}, err
	}

	prospectName, prospectNotes := "", ""
	if prospect, err := r.store.GetProspect(ctx, state.ProspectID); err == nil {
		prospectName = prospect.Name
		if prospect.Notes != nil {
			prospectNotes = *prospect.Notes
		}
	}

	messages := []llm.Message{{
		Role:    "system",
		Content: llm.ComposeSystemPrompt(agentCfg.SystemPrompt, prospectName, prospectNotes),
	}}

	if state.CallLogID != "" {
		if record, err := r.store.GetCallRecord(ctx, state.CallLogID); err == nil {
			messages = append(messages, transcriptMessages(record.Transcript)...)
		}
	}

	// The transcript may not have the latest input yet (append is best
	// effort); make sure the model always sees it last.
	last := messages[len(messages)-1]
	if last.Role != "user" || last.Content != latestInput {
		messages = append(messages, llm.Message{Role: "user", Content: latestInput})
	}

	opts := llm.Options{
		Model:       agentCfg.LLMModel,
		Temperature: agentCfg.Temperature,
	}
	return messages, opts, nil
}

// transcriptMessages converts stored "agent:"/"caller:" transcript lines back
// into chat messages.
func transcriptMessages(transcript string) []llm.Message {
	var messages []llm.Message
	for _, line := range strings.Split(transcript, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "agent: "):
			messages = append(messages, llm.Message{Role: "assistant", Content: strings.TrimPrefix(line, "agent: ")})
		case strings.HasPrefix(line, "caller: "):
			messages = append(messages, llm.Message{Role: "user", Content: strings.TrimPrefix(line, "caller: ")})
		}
	}
	return messages
}

// finalizeCall summarizes a finished conversation and persists the outcome.
// Runs in the background after the terminal document is written; uses the
// keyword classifier when summarization is unavailable.
func (r *Router) finalizeCall(callLogID, lastInput string, messages []llm.Message) {
	if callLogID == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	outcome := dialog.ClassifyOutcome(lastInput)
	summary := ""
	if result, err := r.llm.SummarizeCall(ctx, messages); err == nil {
		if result.Outcome != "" {
			outcome = result.Outcome
		}
		summary = result.Summary
	} else {
		r.logger.Printf("voice: summarization failed for %s, keeping keyword outcome: %v", callLogID, err)
	}

	if err := r.store.SetCallOutcome(ctx, callLogID, outcome, summary); err != nil {
		r.logger.Printf("voice: failed to persist outcome for %s: %v", callLogID, err)
	}
}
