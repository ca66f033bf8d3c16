package dialog

import (
	"net/url"
	"strings"
	"testing"
)

func TestTurnStateRoundTrip(t *testing.T) {
	s := TurnState{
		ProspectID:    "p-1",
		AgentConfigID: "a-2",
		UserID:        "u-3",
		VoiceID:       "v-4",
		CallLogID:     "cl-5",
		Turn:          2,
		Bypass:        true,
		Debug:         true,
	}

	got := ParseTurnState(s.Values())
	if got != s {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, s)
	}
}

func TestTurnStateWireFormat(t *testing.T) {
	// The query parameter names are a wire format shared with live callback
	// URLs; renaming any of them breaks in-flight calls.
	s := TurnState{
		ProspectID:    "p-1",
		AgentConfigID: "a-2",
		UserID:        "u-3",
		VoiceID:       "v-4",
		CallLogID:     "cl-5",
		Turn:          0,
		Bypass:        true,
		Debug:         true,
	}
	q := s.Values()

	for _, key := range []string{
		"prospect_id", "agent_config_id", "user_id", "voice_id",
		"call_log_id", "conversation_count", "bypass_validation", "debug_mode",
	} {
		if !q.Has(key) {
			t.Errorf("encoded state missing wire parameter %q", key)
		}
	}
	if q.Get("conversation_count") != "0" {
		t.Errorf("conversation_count = %q, want 0", q.Get("conversation_count"))
	}
}

func TestTurnStateNext(t *testing.T) {
	s := TurnState{Turn: 1}
	next := s.Next()

	if next.Turn != 2 {
		t.Errorf("Next().Turn = %d, want 2", next.Turn)
	}
	if s.Turn != 1 {
		t.Error("Next must not mutate the receiver")
	}
}

func TestTurnStateLoopTerminates(t *testing.T) {
	// Regardless of what the model says, advancing turn by turn must hit the
	// cap in a bounded number of steps.
	s := TurnState{}
	steps := 0
	for !s.AtCap() {
		s = s.Next()
		steps++
		if steps > MaxTurns {
			t.Fatalf("loop did not terminate within MaxTurns=%d", MaxTurns)
		}
	}
	if steps >= MaxTurns {
		t.Errorf("cap reached after %d steps, want fewer than %d", steps, MaxTurns)
	}
}

func TestTurnStateURL(t *testing.T) {
	s := TurnState{ProspectID: "p-1", AgentConfigID: "a-1", UserID: "u-1", CallLogID: "cl-1"}
	u := s.URL("https://example.com/", "/voice/respond")

	if !strings.HasPrefix(u, "https://example.com/voice/respond?") {
		t.Errorf("unexpected URL prefix: %s", u)
	}

	parsed, err := url.Parse(u)
	if err != nil {
		t.Fatalf("URL does not parse: %v", err)
	}
	if parsed.Query().Get("conversation_count") != "0" {
		t.Error("URL should carry conversation_count=0")
	}
}

func TestParseTurnStateDefensive(t *testing.T) {
	t.Run("garbage turn counter", func(t *testing.T) {
		q := url.Values{"conversation_count": {"banana"}}
		if got := ParseTurnState(q).Turn; got != 0 {
			t.Errorf("Turn = %d, want 0 for malformed counter", got)
		}
	})

	t.Run("negative turn counter", func(t *testing.T) {
		q := url.Values{"conversation_count": {"-3"}}
		if got := ParseTurnState(q).Turn; got != 0 {
			t.Errorf("Turn = %d, want 0 for negative counter", got)
		}
	})

	t.Run("bool spellings", func(t *testing.T) {
		for _, v := range []string{"1", "true", "TRUE", "yes"} {
			q := url.Values{"bypass_validation": {v}}
			if !ParseTurnState(q).Bypass {
				t.Errorf("bypass_validation=%q should parse as true", v)
			}
		}
		q := url.Values{"bypass_validation": {"0"}}
		if ParseTurnState(q).Bypass {
			t.Error("bypass_validation=0 should parse as false")
		}
	})
}
