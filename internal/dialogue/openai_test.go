package dialogue

import (
	"testing"
)

func TestParseSummaryPlainJSON(t *testing.T) {
	raw := `{"summary": "Customer is satisfied.", "sentiment": "positive", "key_issues": ["billing"]}`

	s, err := ParseSummary(raw)
	if err != nil {
		t.Fatalf("ParseSummary: %v", err)
	}
	if s.Summary != "Customer is satisfied." || s.Sentiment != "positive" {
		t.Fatalf("parsed = %+v", s)
	}
	if len(s.KeyIssues) != 1 || s.KeyIssues[0] != "billing" {
		t.Fatalf("key_issues = %v", s.KeyIssues)
	}
}

func TestParseSummaryStripsCodeFence(t *testing.T) {
	raw := "```json\n{\"summary\": \"Short call.\", \"sentiment\": \"neutral\", \"key_issues\": []}\n```"

	s, err := ParseSummary(raw)
	if err != nil {
		t.Fatalf("ParseSummary: %v", err)
	}
	if s.Summary != "Short call." || s.Sentiment != "neutral" {
		t.Fatalf("parsed = %+v", s)
	}
}

func TestParseSummaryRepairsBrokenJSON(t *testing.T) {
	// Single quotes and a trailing comma, a common model failure mode.
	raw := `{'summary': 'Customer unhappy about outages.', 'sentiment': 'negative', 'key_issues': ['outages',]}`

	s, err := ParseSummary(raw)
	if err != nil {
		t.Fatalf("ParseSummary: %v", err)
	}
	if s.Sentiment != "negative" {
		t.Fatalf("sentiment = %s", s.Sentiment)
	}
	if len(s.KeyIssues) != 1 || s.KeyIssues[0] != "outages" {
		t.Fatalf("key_issues = %v", s.KeyIssues)
	}
}

func TestParseSummaryNormalizesUnknownSentiment(t *testing.T) {
	raw := `{"summary": "ok", "sentiment": "very happy", "key_issues": []}`

	s, err := ParseSummary(raw)
	if err != nil {
		t.Fatalf("ParseSummary: %v", err)
	}
	if s.Sentiment != "neutral" {
		t.Fatalf("sentiment = %s, want neutral", s.Sentiment)
	}
}

func TestParseSummaryRejectsNonJSON(t *testing.T) {
	if _, err := ParseSummary("I could not analyze this call, sorry!"); err == nil {
		t.Fatal("expected an error for prose output")
	}
}

func TestStripCodeFence(t *testing.T) {
	cases := []struct{ in, want string }{
		{"{\"a\":1}", `{"a":1}`},
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"```\n{\"a\":1}\n```", `{"a":1}`},
		{"```json\r\n{\"a\":1}\r\n```", `{"a":1}`},
	}
	for _, tc := range cases {
		if got := stripCodeFence(tc.in); got != tc.want {
			t.Fatalf("stripCodeFence(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
