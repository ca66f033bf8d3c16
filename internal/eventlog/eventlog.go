package eventlog

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// EventType identifies one kind of call event.
type EventType string

const (
	EventCallInitiated      EventType = "call_initiated"
	EventPlacementFailed    EventType = "placement_failed"
	EventWebhookReceived    EventType = "webhook_received"
	EventSignatureRejected  EventType = "signature_rejected"
	EventStatusCallback     EventType = "status_callback"
	EventTurnCompleted      EventType = "turn_completed"
	EventRepromptIssued     EventType = "reprompt_issued"
	EventLLMFallback        EventType = "llm_fallback"
	EventTTSFallback        EventType = "tts_fallback"
	EventCallEnded          EventType = "call_ended"
	EventBridgeStarted      EventType = "bridge_started"
	EventBridgeStopped      EventType = "bridge_stopped"
	EventBridgeInterruption EventType = "bridge_interruption"
)

// Logger writes per-call-record events to the database for debugging and
// call timelines.
type Logger struct {
	db *pgxpool.Pool
}

func New(db *pgxpool.Pool) *Logger {
	return &Logger{db: db}
}

// Log writes an event synchronously. A nil db or empty call record id is
// silently skipped so callers never need to guard the call.
func (l *Logger) Log(ctx context.Context, callRecordID string, eventType EventType, data map[string]any) error {
	if l == nil || l.db == nil || callRecordID == "" {
		return nil
	}

	dataJSON, err := json.Marshal(data)
	if err != nil {
		dataJSON = []byte("{}")
	}

	_, err = l.db.Exec(ctx, `
		INSERT INTO call_events (call_record_id, event_type, event_data)
		VALUES ($1, $2, $3)
	`, callRecordID, string(eventType), dataJSON)
	return err
}

// LogAsync logs an event without blocking the caller. Webhook handlers use
// this so event persistence never delays a call-control response.
func (l *Logger) LogAsync(callRecordID string, eventType EventType, data map[string]any) {
	if l == nil || l.db == nil || callRecordID == "" {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = l.Log(ctx, callRecordID, eventType, data)
	}()
}
