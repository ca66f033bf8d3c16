package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a looked-up entity does not exist. Handlers
// map it to the entity-specific precondition error code.
var ErrNotFound = errors.New("not found")

type Store struct {
	db *pgxpool.Pool
}

func New(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// Call record statuses.
const (
	StatusInitiated  = "initiated"
	StatusRinging    = "ringing"
	StatusAnswered   = "answered"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
	StatusBusy       = "busy"
	StatusNoAnswer   = "no_answer"
	StatusCanceled   = "canceled"
)

// CallRecord identifies one outbound call attempt. ProviderCallID is unset
// at creation and set exactly once, when the provider accepts the placement.
// Records are never deleted by the core.
type CallRecord struct {
	ID              string     `json:"id"`
	ProspectID      string     `json:"prospect_id"`
	AgentConfigID   string     `json:"agent_config_id"`
	UserID          string     `json:"user_id"`
	ProviderCallID  *string    `json:"provider_call_id,omitempty"`
	Status          string     `json:"status"`
	DurationSeconds *int       `json:"duration_seconds,omitempty"`
	RecordingURL    *string    `json:"recording_url,omitempty"`
	Transcript      string     `json:"transcript"`
	Summary         *string    `json:"summary,omitempty"`
	Outcome         *string    `json:"outcome,omitempty"`
	StartedAt       time.Time  `json:"started_at"`
	EndedAt         *time.Time `json:"ended_at,omitempty"`
}

// Prospect is a call target owned by the dashboard layer; the core only
// reads it.
type Prospect struct {
	ID     string  `json:"id"`
	UserID string  `json:"user_id"`
	Name   string  `json:"name"`
	Phone  *string `json:"phone,omitempty"`
	Notes  *string `json:"notes,omitempty"`
	Status string  `json:"status"`
}

// AgentConfig is a named bundle of dialog behavior, read-only from the
// core's perspective. A non-empty RealtimeAgentID switches the call to the
// full-duplex media bridge instead of the turn-based gather loop.
type AgentConfig struct {
	ID              string  `json:"id"`
	UserID          string  `json:"user_id"`
	Name            string  `json:"name"`
	SystemPrompt    string  `json:"system_prompt"`
	LLMProvider     string  `json:"llm_provider"`
	LLMModel        string  `json:"llm_model"`
	Temperature     float64 `json:"temperature"`
	VoiceProvider   string  `json:"voice_provider"`
	VoiceID         *string `json:"voice_id,omitempty"`
	RealtimeAgentID *string `json:"realtime_agent_id,omitempty"`
}

// TwilioCredentials are a user's telephony provider credentials.
type TwilioCredentials struct {
	UserID       string `json:"user_id"`
	AccountSID   string `json:"account_sid"`
	AuthToken    string `json:"auth_token"`
	FromNumber   string `json:"from_number"`
	TrialAccount bool   `json:"trial_account"`
}

func (s *Store) CreateCallRecord(ctx context.Context, prospectID, agentConfigID, userID string) (string, error) {
	var id string
	err := s.db.QueryRow(ctx, `
		INSERT INTO call_records (id, prospect_id, agent_config_id, user_id, status, transcript, started_at)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, '', NOW())
		RETURNING id
	`, prospectID, agentConfigID, userID, StatusInitiated).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("create call record: %w", err)
	}
	return id, nil
}

// SetProviderCallID records the provider's call identifier after a
// successful placement. It only fills an empty value, so the identifier is
// set exactly once per record.
func (s *Store) SetProviderCallID(ctx context.Context, id, providerCallID string) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE call_records
		SET provider_call_id = $1
		WHERE id = $2 AND provider_call_id IS NULL
	`, providerCallID, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("call record %s already has a provider call id", id)
	}
	return nil
}

func (s *Store) SetCallStatus(ctx context.Context, id, status string) error {
	_, err := s.db.Exec(ctx, `UPDATE call_records SET status = $1 WHERE id = $2`, status, id)
	return err
}

// UpdateCallStatusByProviderID applies a status-callback event. Terminal
// statuses set ended_at; duration and recording URL are recorded when the
// provider supplies them.
func (s *Store) UpdateCallStatusByProviderID(ctx context.Context, providerCallID, status string, duration *int, recordingURL *string, at time.Time) error {
	var endedAt *time.Time
	switch status {
	case StatusCompleted, StatusFailed, StatusBusy, StatusNoAnswer, StatusCanceled:
		endedAt = &at
	}
	_, err := s.db.Exec(ctx, `
		UPDATE call_records
		SET status = $1,
		    duration_seconds = COALESCE($2, duration_seconds),
		    recording_url = COALESCE($3, recording_url),
		    ended_at = COALESCE($4, ended_at)
		WHERE provider_call_id = $5
	`, status, duration, recordingURL, endedAt, providerCallID)
	return err
}

// AppendTranscript appends a line to the call transcript. The concatenation
// happens server-side in a single statement, so concurrent callbacks cannot
// lose each other's appends.
func (s *Store) AppendTranscript(ctx context.Context, id, line string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE call_records
		SET transcript = transcript || $1 || E'\n'
		WHERE id = $2
	`, line, id)
	return err
}

func (s *Store) SetCallOutcome(ctx context.Context, id, outcome, summary string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE call_records SET outcome = $1, summary = $2 WHERE id = $3
	`, outcome, summary, id)
	return err
}

func (s *Store) GetCallRecord(ctx context.Context, id string) (*CallRecord, error) {
	return s.scanCallRecord(s.db.QueryRow(ctx, `
		SELECT id, prospect_id, agent_config_id, user_id, provider_call_id, status,
		       duration_seconds, recording_url, transcript, summary, outcome, started_at, ended_at
		FROM call_records WHERE id = $1
	`, id))
}

func (s *Store) GetCallRecordByProviderID(ctx context.Context, providerCallID string) (*CallRecord, error) {
	return s.scanCallRecord(s.db.QueryRow(ctx, `
		SELECT id, prospect_id, agent_config_id, user_id, provider_call_id, status,
		       duration_seconds, recording_url, transcript, summary, outcome, started_at, ended_at
		FROM call_records WHERE provider_call_id = $1
	`, providerCallID))
}

func (s *Store) scanCallRecord(row pgx.Row) (*CallRecord, error) {
	var c CallRecord
	err := row.Scan(
		&c.ID, &c.ProspectID, &c.AgentConfigID, &c.UserID, &c.ProviderCallID, &c.Status,
		&c.DurationSeconds, &c.RecordingURL, &c.Transcript, &c.Summary, &c.Outcome, &c.StartedAt, &c.EndedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Store) ListCallRecords(ctx context.Context, userID string, limit int) ([]CallRecord, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, prospect_id, agent_config_id, user_id, provider_call_id, status,
		       duration_seconds, recording_url, transcript, summary, outcome, started_at, ended_at
		FROM call_records
		WHERE user_id = $1
		ORDER BY started_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CallRecord
	for rows.Next() {
		var c CallRecord
		if err := rows.Scan(
			&c.ID, &c.ProspectID, &c.AgentConfigID, &c.UserID, &c.ProviderCallID, &c.Status,
			&c.DurationSeconds, &c.RecordingURL, &c.Transcript, &c.Summary, &c.Outcome, &c.StartedAt, &c.EndedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) GetProspect(ctx context.Context, id string) (*Prospect, error) {
	var p Prospect
	err := s.db.QueryRow(ctx, `
		SELECT id, user_id, name, phone, notes, status FROM prospects WHERE id = $1
	`, id).Scan(&p.ID, &p.UserID, &p.Name, &p.Phone, &p.Notes, &p.Status)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) GetAgentConfig(ctx context.Context, id string) (*AgentConfig, error) {
	var a AgentConfig
	err := s.db.QueryRow(ctx, `
		SELECT id, user_id, name, system_prompt, llm_provider, llm_model, temperature,
		       voice_provider, voice_id, realtime_agent_id
		FROM agent_configs WHERE id = $1
	`, id).Scan(
		&a.ID, &a.UserID, &a.Name, &a.SystemPrompt, &a.LLMProvider, &a.LLMModel,
		&a.Temperature, &a.VoiceProvider, &a.VoiceID, &a.RealtimeAgentID,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *Store) GetTwilioCredentials(ctx context.Context, userID string) (*TwilioCredentials, error) {
	var c TwilioCredentials
	err := s.db.QueryRow(ctx, `
		SELECT user_id, account_sid, auth_token, from_number, trial_account
		FROM twilio_credentials WHERE user_id = $1
	`, userID).Scan(&c.UserID, &c.AccountSID, &c.AuthToken, &c.FromNumber, &c.TrialAccount)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// MarkTrialAccount flags a user's credentials as a trial account after a
// placement failure identified the restriction, so later webhook handling
// can degrade gracefully instead of erroring.
func (s *Store) MarkTrialAccount(ctx context.Context, userID string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE twilio_credentials SET trial_account = TRUE WHERE user_id = $1
	`, userID)
	return err
}
