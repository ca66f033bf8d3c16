package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jstrand/prospectcall/internal/dialog"
	"github.com/jstrand/prospectcall/internal/eventlog"
	"github.com/jstrand/prospectcall/internal/store"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

const (
	convAIBaseURL = "wss://api.elevenlabs.io/v1/convai/conversation"

	// providerKeepalive is how long the provider leg may stay silent before
	// the bridge assumes it is dead. The provider pings well inside this.
	providerKeepalive = 30 * time.Second

	writeDeadline = 5 * time.Second
)

// Twilio Media Stream message types
type twilioMessage struct {
	Event     string       `json:"event"`
	Media     *twilioMedia `json:"media,omitempty"`
	Start     *twilioStart `json:"start,omitempty"`
	StreamSid string       `json:"streamSid,omitempty"`
}

type twilioMedia struct {
	Track   string `json:"track"`
	Payload string `json:"payload"` // Base64 μ-law audio
}

type twilioStart struct {
	StreamSid    string            `json:"streamSid"`
	AccountSid   string            `json:"accountSid"`
	CallSid      string            `json:"callSid"`
	CustomParams map[string]string `json:"customParameters"`
}

// twilioOutboundMedia is the format for sending audio back to Twilio
type twilioOutboundMedia struct {
	Event     string `json:"event"`
	StreamSid string `json:"streamSid"`
	Media     struct {
		Payload string `json:"payload"` // Base64 μ-law audio
	} `json:"media"`
}

// twilioClear stops queued audio playback on the call (interruptions)
type twilioClear struct {
	Event     string `json:"event"`
	StreamSid string `json:"streamSid"`
}

// Conversational provider (ElevenLabs ConvAI) message types. Decoded as a
// tagged union at the edge; unknown types are logged by type only.
type convAIMessage struct {
	Type string `json:"type"`

	AudioEvent *struct {
		AudioBase64 string `json:"audio_base_64"`
		EventID     int    `json:"event_id"`
	} `json:"audio_event,omitempty"`

	PingEvent *struct {
		EventID int `json:"event_id"`
	} `json:"ping_event,omitempty"`

	AgentResponseEvent *struct {
		AgentResponse string `json:"agent_response"`
	} `json:"agent_response_event,omitempty"`

	UserTranscriptionEvent *struct {
		UserTranscript string `json:"user_transcript"`
	} `json:"user_transcription_event,omitempty"`
}

type convAIUserAudio struct {
	UserAudioChunk string `json:"user_audio_chunk"`
}

type convAIPong struct {
	Type    string `json:"type"`
	EventID int    `json:"event_id"`
}

// bridgeSession relays audio between the telephony media stream and the
// conversational provider for one call. Two read loops, one per leg; closing
// either leg cancels the session context, which closes both sockets.
type bridgeSession struct {
	state dialog.TurnState

	twilioConn   *websocket.Conn
	twilioMu     sync.Mutex
	providerConn *websocket.Conn
	providerMu   sync.Mutex

	// streamSid is empty until the start frame arrives; provider audio
	// received before then has nowhere to go and is dropped.
	mu        sync.Mutex
	streamSid string
	callSid   string
	keepalive *time.Timer

	store    *store.Store
	eventLog *eventlog.Logger
	sessions *SessionRegistry
	logger   *log.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// handleMediaWS upgrades a telephony media stream connection and bridges it
// to the conversational provider identified by the agent_id query parameter.
func (r *Router) handleMediaWS(w http.ResponseWriter, req *http.Request) {
	agentID := req.URL.Query().Get("agent_id")
	if agentID == "" {
		http.Error(w, "missing agent_id", http.StatusBadRequest)
		return
	}
	if r.cfg.ElevenLabsAPIKey == "" {
		r.logger.Printf("media_ws: realtime agent requested but no provider API key configured")
		captureError(req, fmt.Errorf("realtime bridge not configured"), "media_ws: configuration error")
		http.Error(w, "realtime bridge not configured", http.StatusServiceUnavailable)
		return
	}

	state := dialog.ParseTurnState(req.URL.Query())

	twilioConn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Printf("media_ws: upgrade failed: %v", err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	session := &bridgeSession{
		state:      state,
		twilioConn: twilioConn,
		store:      r.store,
		eventLog:   r.eventLog,
		sessions:   r.sessions,
		logger:     r.logger,
		ctx:        ctx,
		cancel:     cancel,
	}

	if !r.sessions.Add("", session.cancel) {
		r.logger.Printf("media_ws: rejecting new bridge, draining")
		cancel()
		_ = twilioConn.Close()
		return
	}

	providerConn, err := dialConvAI(ctx, r.cfg.ElevenLabsAPIKey, agentID)
	if err != nil {
		r.logger.Printf("media_ws: provider dial failed: %v", err)
		captureError(req, err, "media_ws: provider dial failed")
		r.discord.NotifyBridgeError(context.Background(), state.CallLogID, err)
		r.sessions.Done("")
		cancel()
		_ = twilioConn.Close()
		return
	}
	session.providerConn = providerConn

	r.eventLog.LogAsync(state.CallLogID, eventlog.EventBridgeStarted, map[string]any{
		"agent_id": agentID,
	})
	r.logger.Printf("media_ws: bridge established for call record %s (agent %s)", state.CallLogID, agentID)

	session.run()
}

// dialConvAI opens the provider conversation socket and sends the required
// initiation frame before any audio flows.
func dialConvAI(ctx context.Context, apiKey, agentID string) (*websocket.Conn, error) {
	q := url.Values{}
	q.Set("agent_id", agentID)
	q.Set("input_format", "ulaw_8000")
	q.Set("output_format", "ulaw_8000")

	header := http.Header{}
	header.Set("xi-api-key", apiKey)

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, convAIBaseURL+"?"+q.Encode(), header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("provider dial failed (status %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("provider dial failed: %w", err)
	}

	init := map[string]any{"type": "conversation_initiation_client_data"}
	_ = conn.SetWriteDeadline(time.Now().Add(writeDeadline))
	if err := conn.WriteJSON(init); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to send initiation frame: %w", err)
	}
	return conn, nil
}

func (s *bridgeSession) run() {
	defer s.cleanup()

	s.mu.Lock()
	s.keepalive = time.AfterFunc(providerKeepalive, func() {
		s.logger.Printf("media_ws: provider silent for %s, closing bridge", providerKeepalive)
		s.cancel()
	})
	s.mu.Unlock()

	// Closing either socket makes its read loop return an error, so both
	// loops exit promptly once the context is cancelled.
	go func() {
		<-s.ctx.Done()
		_ = s.twilioConn.Close()
		_ = s.providerConn.Close()
	}()

	done := make(chan struct{}, 2)
	go func() { s.readProviderLoop(); done <- struct{}{} }()
	go func() { s.readTwilioLoop(); done <- struct{}{} }()

	// Either leg's closure tears down the other.
	<-done
	s.cancel()
	<-done
}

// readTwilioLoop consumes the telephony media stream and forwards caller
// audio to the provider.
func (s *bridgeSession) readTwilioLoop() {
	for {
		_, msg, err := s.twilioConn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Printf("media_ws: telephony leg closed for call %s", s.currentCallSid())
			} else if s.ctx.Err() == nil {
				s.logger.Printf("media_ws: telephony read error: %v", err)
			}
			return
		}

		var twilioMsg twilioMessage
		if err := json.Unmarshal(msg, &twilioMsg); err != nil {
			s.logger.Printf("media_ws: failed to parse telephony message: %v", err)
			continue
		}

		switch twilioMsg.Event {
		case "connected":
			// Handshake frame, nothing to do yet.

		case "start":
			if twilioMsg.Start == nil {
				continue
			}
			s.mu.Lock()
			s.streamSid = twilioMsg.Start.StreamSid
			s.callSid = twilioMsg.Start.CallSid
			s.mu.Unlock()
			s.sessions.Rekey(twilioMsg.Start.CallSid, s.cancel)
			s.logger.Printf("media_ws: stream started - StreamSid: %s, CallSid: %s",
				twilioMsg.Start.StreamSid, twilioMsg.Start.CallSid)

		case "media":
			if twilioMsg.Media == nil || twilioMsg.Media.Payload == "" {
				continue
			}
			if err := s.writeProvider(convAIUserAudio{UserAudioChunk: twilioMsg.Media.Payload}); err != nil {
				if s.ctx.Err() == nil {
					s.logger.Printf("media_ws: failed to forward caller audio: %v", err)
				}
				return
			}

		case "stop":
			s.logger.Printf("media_ws: stream stopped for call %s", s.currentCallSid())
			return

		case "mark":
			// Playback progress marker; the provider paces its own audio.

		default:
			s.logger.Printf("media_ws: unknown telephony event %q", twilioMsg.Event)
		}
	}
}

// readProviderLoop consumes the conversational provider stream and forwards
// agent audio to the telephony leg.
func (s *bridgeSession) readProviderLoop() {
	for {
		_, msg, err := s.providerConn.ReadMessage()
		if err != nil {
			if s.ctx.Err() == nil {
				s.logger.Printf("media_ws: provider read error: %v", err)
			}
			return
		}
		// Any provider frame counts as liveness, not only pings; the
		// keepalive window measures silence on the socket.
		s.resetKeepalive()

		var providerMsg convAIMessage
		if err := json.Unmarshal(msg, &providerMsg); err != nil {
			s.logger.Printf("media_ws: failed to parse provider message: %v", err)
			continue
		}

		switch providerMsg.Type {
		case "conversation_initiation_metadata":
			// Session accepted; audio follows.

		case "audio":
			if providerMsg.AudioEvent == nil || providerMsg.AudioEvent.AudioBase64 == "" {
				continue
			}
			streamSid := s.currentStreamSid()
			if streamSid == "" {
				// No telephony stream yet; this audio has nowhere to go.
				continue
			}
			out := twilioOutboundMedia{Event: "media", StreamSid: streamSid}
			out.Media.Payload = providerMsg.AudioEvent.AudioBase64
			if err := s.writeTwilio(out); err != nil {
				if s.ctx.Err() == nil {
					s.logger.Printf("media_ws: failed to forward agent audio: %v", err)
				}
				return
			}

		case "interruption":
			// The caller spoke over the agent; flush queued playback so the
			// agent does not keep talking over them.
			streamSid := s.currentStreamSid()
			if streamSid == "" {
				continue
			}
			if err := s.writeTwilio(twilioClear{Event: "clear", StreamSid: streamSid}); err != nil {
				if s.ctx.Err() == nil {
					s.logger.Printf("media_ws: failed to send clear: %v", err)
				}
				return
			}
			s.eventLog.LogAsync(s.state.CallLogID, eventlog.EventBridgeInterruption, nil)

		case "ping":
			if providerMsg.PingEvent == nil {
				continue
			}
			if err := s.writeProvider(convAIPong{Type: "pong", EventID: providerMsg.PingEvent.EventID}); err != nil {
				if s.ctx.Err() == nil {
					s.logger.Printf("media_ws: failed to send pong: %v", err)
				}
				return
			}

		case "agent_response":
			if providerMsg.AgentResponseEvent != nil && s.state.CallLogID != "" {
				s.appendTranscript("agent: " + providerMsg.AgentResponseEvent.AgentResponse)
			}

		case "user_transcript":
			if providerMsg.UserTranscriptionEvent != nil && s.state.CallLogID != "" {
				s.appendTranscript("caller: " + providerMsg.UserTranscriptionEvent.UserTranscript)
			}

		default:
			// Never log payloads here; they can contain raw audio.
			s.logger.Printf("media_ws: unknown provider message type %q", providerMsg.Type)
		}
	}
}

func (s *bridgeSession) writeTwilio(v any) error {
	s.twilioMu.Lock()
	defer s.twilioMu.Unlock()
	_ = s.twilioConn.SetWriteDeadline(time.Now().Add(writeDeadline))
	return s.twilioConn.WriteJSON(v)
}

func (s *bridgeSession) writeProvider(v any) error {
	s.providerMu.Lock()
	defer s.providerMu.Unlock()
	_ = s.providerConn.SetWriteDeadline(time.Now().Add(writeDeadline))
	return s.providerConn.WriteJSON(v)
}

func (s *bridgeSession) currentStreamSid() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streamSid
}

func (s *bridgeSession) currentCallSid() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.callSid
}

func (s *bridgeSession) resetKeepalive() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.keepalive != nil {
		s.keepalive.Reset(providerKeepalive)
	}
}

func (s *bridgeSession) appendTranscript(line string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.store.AppendTranscript(ctx, s.state.CallLogID, line); err != nil {
		s.logger.Printf("media_ws: transcript append failed: %v", err)
	}
}

func (s *bridgeSession) cleanup() {
	s.cancel()

	s.mu.Lock()
	if s.keepalive != nil {
		s.keepalive.Stop()
	}
	callSid := s.callSid
	s.mu.Unlock()

	_ = s.twilioConn.Close()
	_ = s.providerConn.Close()

	s.eventLog.LogAsync(s.state.CallLogID, eventlog.EventBridgeStopped, nil)
	s.sessions.Done(callSid)

	s.logger.Printf("media_ws: bridge closed for call %s", callSid)
}
