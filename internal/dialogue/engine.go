package dialogue

import (
	"context"

	"callpulse/internal/convstate"
)

// Result is the engine's decision for one conversational turn.
type Result struct {
	Reply   string `json:"reply"`
	EndCall bool   `json:"end_call"`
}

// Summary is the post-call analysis written back onto the call record.
type Summary struct {
	Summary   string   `json:"summary"`
	Sentiment string   `json:"sentiment"`
	KeyIssues []string `json:"key_issues"`
}

// Engine turns conversational input into a reply and, separately, a
// conversation into an end-of-call summary. It is stateless per call; all
// state arrives through the conversation context.
type Engine interface {
	// GenerateTurn produces the next agent reply for the customer's
	// utterance. The utterance is already appended to conv.History.
	GenerateTurn(ctx context.Context, utterance string, conv convstate.Context) (Result, error)

	// Summarize analyzes the full conversation after the call ends.
	Summarize(ctx context.Context, conv convstate.Context) (Summary, error)

	// ClosingMessage is the spoken goodbye. It must not fail; engines fall
	// back to a canned phrase when generation is unavailable.
	ClosingMessage(conv convstate.Context, reason string) string
}

// FallbackReply is spoken when turn handling fails for any reason, so the
// live call never gets dead air.
const FallbackReply = "I'm sorry, I didn't catch that. Could you please repeat what you said?"
