package dialog

import (
	"net/url"
	"strconv"
	"strings"
)

// MaxTurns is the hard backstop against infinite dialog loops. Even if the
// closing-statement heuristic never fires, the call ends once the turn
// counter reaches this cap.
const MaxTurns = 4

// Query parameter names for turn state. The telephony provider is a
// stateless webhook caller, so these parameters are the only channel
// carrying call context between requests. They are a wire format and must
// not be renamed.
const (
	paramProspectID    = "prospect_id"
	paramAgentConfigID = "agent_config_id"
	paramUserID        = "user_id"
	paramVoiceID       = "voice_id"
	paramCallLogID     = "call_log_id"
	paramTurn          = "conversation_count"
	paramBypass        = "bypass_validation"
	paramDebug         = "debug_mode"
)

// TurnState is the per-call dialog state threaded through callback URL query
// parameters. It is deliberately an immutable value: handlers decode it from
// the request, derive the next state with Next, and re-encode it into the
// next callback URL. It never lives in server-side session state.
type TurnState struct {
	ProspectID    string
	AgentConfigID string
	UserID        string
	VoiceID       string
	CallLogID     string
	Turn          int
	Bypass        bool
	Debug         bool
}

// ParseTurnState decodes turn state from request query parameters. Missing
// or malformed values decode to their zero value; the handlers decide which
// fields are required for them.
func ParseTurnState(q url.Values) TurnState {
	turn, _ := strconv.Atoi(q.Get(paramTurn))
	if turn < 0 {
		turn = 0
	}
	return TurnState{
		ProspectID:    q.Get(paramProspectID),
		AgentConfigID: q.Get(paramAgentConfigID),
		UserID:        q.Get(paramUserID),
		VoiceID:       q.Get(paramVoiceID),
		CallLogID:     q.Get(paramCallLogID),
		Turn:          turn,
		Bypass:        parseBool(q.Get(paramBypass)),
		Debug:         parseBool(q.Get(paramDebug)),
	}
}

func parseBool(s string) bool {
	switch strings.ToLower(s) {
	case "1", "true", "yes":
		return true
	}
	return false
}

// Values encodes the state as query parameters.
func (s TurnState) Values() url.Values {
	q := url.Values{}
	q.Set(paramProspectID, s.ProspectID)
	q.Set(paramAgentConfigID, s.AgentConfigID)
	q.Set(paramUserID, s.UserID)
	if s.VoiceID != "" {
		q.Set(paramVoiceID, s.VoiceID)
	}
	q.Set(paramCallLogID, s.CallLogID)
	q.Set(paramTurn, strconv.Itoa(s.Turn))
	if s.Bypass {
		q.Set(paramBypass, "true")
	}
	if s.Debug {
		q.Set(paramDebug, "true")
	}
	return q
}

// URL builds a callback URL for the given base and path carrying this state.
func (s TurnState) URL(publicBase, path string) string {
	return strings.TrimRight(publicBase, "/") + path + "?" + s.Values().Encode()
}

// Next returns the state for the following turn. The counter advances by
// exactly one per round-trip.
func (s TurnState) Next() TurnState {
	s.Turn++
	return s
}

// AtCap reports whether the next turn would exceed the loop cap.
func (s TurnState) AtCap() bool {
	return s.Turn+1 >= MaxTurns
}
