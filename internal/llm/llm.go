package llm

import "context"

// CallSummary is the model's post-call classification of the conversation.
type CallSummary struct {
	Outcome string `json:"outcome"` // interested, not_interested, callback_requested, undetermined
	Summary string `json:"summary"` // one-line description of how the call went
}

// Message represents a conversation message.
type Message struct {
	Role    string // "system", "user", "assistant"
	Content string
}

// Options selects the model parameters for one completion, taken from the
// agent configuration.
type Options struct {
	Model       string
	Temperature float64
	MaxTokens   int
}

// Client defines the interface for LLM providers.
type Client interface {
	// CompleteTurn produces the agent's next conversational reply.
	CompleteTurn(ctx context.Context, messages []Message, opts Options) (string, error)

	// SummarizeCall classifies the finished conversation.
	SummarizeCall(ctx context.Context, messages []Message) (*CallSummary, error)
}
