package dialog

import (
	"fmt"
	"strings"
)

// Call outcomes persisted onto the call record.
const (
	OutcomeInterested    = "interested"
	OutcomeNotInterested = "not_interested"
	OutcomeCallback      = "callback_requested"
	OutcomeUndetermined  = "undetermined"
)

// DefaultGreeting is spoken when the agent configuration has no usable
// system prompt to derive a greeting from.
const DefaultGreeting = "Hi, this is an automated call from your local real estate team. Do you have a quick moment to talk about your property?"

// TrialAccountNotice is prepended to the greeting on trial/sandbox telephony
// accounts so the degraded experience explains itself instead of erroring.
const TrialAccountNotice = "This call is placed from a trial account. "

// Greeting derives the call greeting from an agent's system prompt: the
// first sentence if one exists, otherwise the fixed default.
func Greeting(systemPrompt string) string {
	prompt := strings.TrimSpace(systemPrompt)
	if prompt == "" {
		return DefaultGreeting
	}
	for i, r := range prompt {
		if r == '.' || r == '!' || r == '?' {
			return prompt[:i+1]
		}
	}
	return prompt
}

// NormalizeDTMF maps keypad input to a canonical caller phrase so keyed and
// spoken input flow through the same dialog path.
func NormalizeDTMF(digits string) string {
	switch digits {
	case "1":
		return "Yes, I am interested."
	case "2":
		return "No, I am not interested."
	default:
		return fmt.Sprintf("pressed %s", digits)
	}
}

var affirmativeWords = []string{
	"yes", "yeah", "yep", "sure", "interested", "definitely", "absolutely", "okay", "ok",
}

var negativeWords = []string{
	"no", "not interested", "don't call", "do not call", "stop calling",
	"remove", "leave me alone", "busy", "wrong number",
}

var callbackWords = []string{
	"call back", "call me back", "later", "another time", "next week", "tomorrow",
}

// FallbackReply is the deterministic rule-based reply used when the language
// model is unavailable. The live call must never dead-end on an upstream
// outage.
func FallbackReply(input string) string {
	switch classify(input) {
	case OutcomeNotInterested:
		return "I understand, thank you for your time. Have a great day. Goodbye."
	case OutcomeCallback:
		return "Of course, we will reach out another time. Thank you and goodbye."
	case OutcomeInterested:
		return "That's great to hear. One of our agents will follow up with you shortly with the details. Thank you, goodbye."
	default:
		return "Thanks for letting me know. An agent will follow up with more information. Have a great day, goodbye."
	}
}

func classify(input string) string {
	lower := strings.ToLower(input)
	for _, w := range negativeWords {
		if strings.Contains(lower, w) {
			return OutcomeNotInterested
		}
	}
	for _, w := range callbackWords {
		if strings.Contains(lower, w) {
			return OutcomeCallback
		}
	}
	for _, w := range affirmativeWords {
		if strings.Contains(lower, w) {
			return OutcomeInterested
		}
	}
	return OutcomeUndetermined
}

// ClassifyOutcome maps the caller's final input to a call outcome. Used as
// the fallback when LLM summarization fails.
func ClassifyOutcome(input string) string {
	return classify(input)
}

var closingPhrases = []string{
	"goodbye",
	"good bye",
	"have a great day",
	"have a nice day",
	"have a wonderful day",
	"thank you for your time",
	"talk to you soon",
	"take care",
}

// IsClosing reports whether a reply reads as a closing statement. This is a
// keyword heuristic and easily defeated by paraphrase; the turn cap in
// TurnState is the hard guarantee that the loop terminates.
func IsClosing(reply string) bool {
	lower := strings.ToLower(reply)
	for _, phrase := range closingPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}
