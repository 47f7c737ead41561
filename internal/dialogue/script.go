package dialogue

import (
	"context"
	"fmt"
	"strings"

	"callpulse/internal/convstate"
)

// ScriptEngine is a deterministic Engine used when no model credentials are
// configured, and by tests. It walks a fixed question list and does a
// keyword-based sentiment read. Useful, predictable, cheap.
type ScriptEngine struct {
	questions []string
}

func NewScriptEngine() *ScriptEngine {
	return &ScriptEngine{
		questions: []string{
			"On a scale from one to ten, how satisfied are you with our service overall?",
			"Is there anything specific we could do better?",
			"Would you recommend us to a friend or colleague?",
		},
	}
}

func (e *ScriptEngine) GenerateTurn(ctx context.Context, utterance string, conv convstate.Context) (Result, error) {
	if wantsToStop(utterance) {
		return Result{Reply: "Understood, I won't keep you any longer.", EndCall: true}, nil
	}

	// The customer's latest utterance is already in history, so answers
	// given so far equal the number of customer turns.
	answered := conv.CustomerTurns()
	if answered >= len(e.questions) {
		return Result{Reply: "That covers everything I wanted to ask.", EndCall: true}, nil
	}
	return Result{Reply: "Thank you. " + e.questions[answered]}, nil
}

func (e *ScriptEngine) Summarize(ctx context.Context, conv convstate.Context) (Summary, error) {
	var customerText []string
	for _, t := range conv.History {
		if t.Role == convstate.RoleUser {
			customerText = append(customerText, t.Content)
		}
	}

	s := Summary{
		Sentiment: keywordSentiment(strings.ToLower(strings.Join(customerText, " "))),
		KeyIssues: []string{},
	}
	if len(customerText) == 0 {
		s.Summary = fmt.Sprintf("Call with %s ended before any survey answers were collected.", conv.CustomerName)
		return s, nil
	}
	s.Summary = fmt.Sprintf("%s answered %d survey question(s). Overall sentiment appears %s.",
		conv.CustomerName, len(customerText), s.Sentiment)
	if s.Sentiment == "negative" {
		s.KeyIssues = append(s.KeyIssues, "customer expressed dissatisfaction")
	}
	return s, nil
}

func (e *ScriptEngine) ClosingMessage(conv convstate.Context, reason string) string {
	if conv.CustomerName == "" {
		return "Thank you for your time today. Goodbye!"
	}
	return fmt.Sprintf("Thank you for your time today, %s. Goodbye!", conv.CustomerName)
}

func wantsToStop(utterance string) bool {
	u := strings.ToLower(utterance)
	for _, kw := range []string{"goodbye", "bye", "stop calling", "not interested", "hang up"} {
		if strings.Contains(u, kw) {
			return true
		}
	}
	return false
}

func keywordSentiment(text string) string {
	negatives := []string{"bad", "terrible", "awful", "unhappy", "angry", "cancel", "slow", "broken", "worst"}
	positives := []string{"great", "good", "excellent", "happy", "love", "fantastic", "perfect"}

	score := 0
	for _, kw := range negatives {
		if strings.Contains(text, kw) {
			score--
		}
	}
	for _, kw := range positives {
		if strings.Contains(text, kw) {
			score++
		}
	}
	switch {
	case score > 0:
		return "positive"
	case score < 0:
		return "negative"
	default:
		return "neutral"
	}
}
