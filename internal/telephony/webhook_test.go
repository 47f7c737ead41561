package telephony

import (
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"callpulse/internal/calls"
)

func TestParseTwilioStatusCallback(t *testing.T) {
	form := url.Values{
		"CallSid":      {"CA123"},
		"CallStatus":   {" Completed "},
		"CallDuration": {"42"},
	}
	req := httptest.NewRequest("POST", "/webhooks/twilio/status", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	f, err := ParseTwilioStatusCallback(req)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if f.CallSid != "CA123" || f.CallStatus != "completed" || f.CallDuration != 42 {
		t.Fatalf("parsed form = %+v", f)
	}
}

func TestToStatusEventMapping(t *testing.T) {
	cases := []struct {
		provider string
		status   calls.CallStatus
		reason   calls.FailureReason
		ok       bool
	}{
		{"ringing", calls.CallStatusRinging, "", true},
		{"in-progress", calls.CallStatusAnswered, "", true},
		{"answered", calls.CallStatusAnswered, "", true},
		{"completed", calls.CallStatusCompleted, "", true},
		{"busy", calls.CallStatusFailed, calls.FailureReasonBusy, true},
		{"no-answer", calls.CallStatusFailed, calls.FailureReasonNoAnswer, true},
		{"failed", calls.CallStatusFailed, calls.FailureReasonCallFailed, true},
		{"canceled", calls.CallStatusCancelled, "", true},
		{"queued", "", "", false},
	}
	for _, tc := range cases {
		f := TwilioStatusForm{CallSid: "CA1", CallStatus: tc.provider, CallDuration: 7}
		ev, ok := f.ToStatusEvent()
		if ok != tc.ok {
			t.Fatalf("%q: ok = %v, want %v", tc.provider, ok, tc.ok)
		}
		if !ok {
			continue
		}
		if ev.Status != tc.status || ev.FailureReason != tc.reason {
			t.Fatalf("%q mapped to %s/%s, want %s/%s", tc.provider, ev.Status, ev.FailureReason, tc.status, tc.reason)
		}
		if ev.ProviderCallID != "CA1" || ev.DurationSeconds != 7 || ev.RawStatus != tc.provider {
			t.Fatalf("%q event = %+v", tc.provider, ev)
		}
	}
}

func TestToStatusEventDefaultsErrorText(t *testing.T) {
	f := TwilioStatusForm{CallSid: "CA1", CallStatus: "busy"}
	ev, ok := f.ToStatusEvent()
	if !ok {
		t.Fatal("busy should map")
	}
	if ev.ErrorText != "busy" {
		t.Fatalf("ErrorText = %q, want provider status fallback", ev.ErrorText)
	}

	f = TwilioStatusForm{CallSid: "CA1", CallStatus: "failed", ErrorMessage: "carrier rejected"}
	ev, _ = f.ToStatusEvent()
	if ev.ErrorText != "carrier rejected" {
		t.Fatalf("ErrorText = %q, want carrier message", ev.ErrorText)
	}

	// Non-failure statuses never synthesize error text.
	f = TwilioStatusForm{CallSid: "CA1", CallStatus: "completed"}
	ev, _ = f.ToStatusEvent()
	if ev.ErrorText != "" {
		t.Fatalf("ErrorText = %q, want empty", ev.ErrorText)
	}
}

func TestParseTwilioTurn(t *testing.T) {
	form := url.Values{
		"CallSid":      {"CA9"},
		"SpeechResult": {"  it works great  "},
		"Digits":       {"5"},
	}
	req := httptest.NewRequest("POST", "/webhooks/twilio/turn?call_id=call-7", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	f, err := ParseTwilioTurn(req)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if f.CallID != "call-7" || f.CallSid != "CA9" {
		t.Fatalf("parsed form = %+v", f)
	}
	if f.Utterance() != "it works great" {
		t.Fatalf("utterance = %q, speech should win over digits", f.Utterance())
	}
	if f.IsOpening() {
		t.Fatal("a turn with speech is not the opening")
	}
}

func TestTurnFormDigitsAndOpening(t *testing.T) {
	f := TwilioTurnForm{Digits: "3"}
	if f.Utterance() != "3" {
		t.Fatalf("utterance = %q", f.Utterance())
	}

	opening := TwilioTurnForm{CallID: "call-7", CallSid: "CA9"}
	if !opening.IsOpening() {
		t.Fatal("empty speech and digits should be the opening request")
	}
}
