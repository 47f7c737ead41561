package dialogue

import (
	"context"
	"testing"
	"time"

	"callpulse/internal/convstate"
)

var convNow = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

func surveyConv(customerTurns int) convstate.Context {
	conv := convstate.Context{CallID: "call-1", CustomerName: "Dana"}
	conv.Append(convstate.RoleSystem, "You are a survey agent.", convNow)
	conv.Append(convstate.RoleAssistant, "Hello Dana!", convNow)
	for i := 0; i < customerTurns; i++ {
		conv.Append(convstate.RoleUser, "it was fine", convNow)
		conv.Append(convstate.RoleAssistant, "Thank you.", convNow)
	}
	return conv
}

func TestScriptEngineWalksQuestions(t *testing.T) {
	e := NewScriptEngine()

	conv := surveyConv(0)
	conv.Append(convstate.RoleUser, "sure, go ahead", convNow)

	res, err := e.GenerateTurn(context.Background(), "sure, go ahead", conv)
	if err != nil {
		t.Fatalf("GenerateTurn: %v", err)
	}
	if res.EndCall {
		t.Fatal("first question should not end the call")
	}
	if res.Reply != "Thank you. "+e.questions[1] {
		t.Fatalf("reply = %q", res.Reply)
	}
}

func TestScriptEngineEndsAfterAllQuestions(t *testing.T) {
	e := NewScriptEngine()

	conv := surveyConv(len(e.questions))
	res, err := e.GenerateTurn(context.Background(), "yes definitely", conv)
	if err != nil {
		t.Fatalf("GenerateTurn: %v", err)
	}
	if !res.EndCall {
		t.Fatal("engine should end the call once the question list is exhausted")
	}
}

func TestScriptEngineHonorsStopRequest(t *testing.T) {
	e := NewScriptEngine()

	for _, utterance := range []string{"goodbye", "please STOP CALLING me", "I'm not interested"} {
		res, err := e.GenerateTurn(context.Background(), utterance, surveyConv(1))
		if err != nil {
			t.Fatalf("GenerateTurn(%q): %v", utterance, err)
		}
		if !res.EndCall {
			t.Fatalf("utterance %q should end the call", utterance)
		}
	}
}

func TestScriptEngineSummarizeSentiment(t *testing.T) {
	e := NewScriptEngine()

	cases := []struct {
		utterance string
		sentiment string
		issues    int
	}{
		{"the service has been great, I love it", "positive", 0},
		{"it works I guess", "neutral", 0},
		{"it is terrible and slow, I want to cancel", "negative", 1},
	}
	for _, tc := range cases {
		conv := surveyConv(0)
		conv.Append(convstate.RoleUser, tc.utterance, convNow)

		sum, err := e.Summarize(context.Background(), conv)
		if err != nil {
			t.Fatalf("Summarize(%q): %v", tc.utterance, err)
		}
		if sum.Sentiment != tc.sentiment {
			t.Fatalf("sentiment for %q = %s, want %s", tc.utterance, sum.Sentiment, tc.sentiment)
		}
		if len(sum.KeyIssues) != tc.issues {
			t.Fatalf("key issues for %q = %v", tc.utterance, sum.KeyIssues)
		}
		if sum.Summary == "" {
			t.Fatal("summary text is empty")
		}
	}
}

func TestScriptEngineSummarizeSilentCall(t *testing.T) {
	e := NewScriptEngine()

	sum, err := e.Summarize(context.Background(), surveyConv(0))
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if sum.Sentiment != "neutral" {
		t.Fatalf("sentiment = %s", sum.Sentiment)
	}
	if sum.Summary == "" {
		t.Fatal("silent call should still get a summary line")
	}
}

func TestScriptEngineClosingMessage(t *testing.T) {
	e := NewScriptEngine()

	withName := e.ClosingMessage(convstate.Context{CustomerName: "Dana"}, "turn limit reached")
	if withName != "Thank you for your time today, Dana. Goodbye!" {
		t.Fatalf("closing = %q", withName)
	}
	anon := e.ClosingMessage(convstate.Context{}, "conversation complete")
	if anon != "Thank you for your time today. Goodbye!" {
		t.Fatalf("anonymous closing = %q", anon)
	}
}
