package telephony

import (
	"strings"
	"testing"
)

func TestRenderGather(t *testing.T) {
	out, err := RenderGather("How satisfied are you?", "https://api.example.com/webhooks/twilio/turn?call_id=c1")
	if err != nil {
		t.Fatalf("RenderGather: %v", err)
	}

	for _, want := range []string{
		"<?xml",
		"<Response>",
		`input="speech dtmf"`,
		`action="https://api.example.com/webhooks/twilio/turn?call_id=c1"`,
		`method="POST"`,
		`voice="Polly.Joanna"`,
		"How satisfied are you?",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("TwiML missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "<Hangup") {
		t.Fatal("gather must not hang up")
	}
}

func TestRenderSayHangup(t *testing.T) {
	out, err := RenderSayHangup("Goodbye!")
	if err != nil {
		t.Fatalf("RenderSayHangup: %v", err)
	}
	if !strings.Contains(out, "Goodbye!") || !strings.Contains(out, "<Hangup") {
		t.Fatalf("TwiML = %s", out)
	}
	if strings.Contains(out, "<Gather") {
		t.Fatal("hangup response must not gather")
	}
}

func TestRenderEscapesText(t *testing.T) {
	out, err := RenderSayHangup(`Thanks for choosing "Fiber & More"`)
	if err != nil {
		t.Fatalf("RenderSayHangup: %v", err)
	}
	if !strings.Contains(out, "&amp;") {
		t.Fatalf("ampersand not escaped:\n%s", out)
	}
}
