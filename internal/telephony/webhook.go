package telephony

import (
	"net/http"
	"strconv"
	"strings"

	"callpulse/internal/calls"
)

// TwilioStatusForm captures the subset of the status-callback webhook fields
// we care about. Twilio sends application/x-www-form-urlencoded.
type TwilioStatusForm struct {
	CallSid      string
	CallStatus   string
	CallDuration int
	ErrorCode    string
	ErrorMessage string
}

func ParseTwilioStatusCallback(r *http.Request) (TwilioStatusForm, error) {
	if err := r.ParseForm(); err != nil {
		return TwilioStatusForm{}, err
	}
	f := TwilioStatusForm{
		CallSid:      r.PostFormValue("CallSid"),
		CallStatus:   strings.ToLower(strings.TrimSpace(r.PostFormValue("CallStatus"))),
		ErrorCode:    r.PostFormValue("ErrorCode"),
		ErrorMessage: r.PostFormValue("ErrorMessage"),
	}
	if v := r.PostFormValue("CallDuration"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			f.CallDuration = n
		}
	}
	return f, nil
}

// ToStatusEvent maps the provider vocabulary into the internal lifecycle.
// ok is false for provider statuses the orchestrator ignores.
func (f TwilioStatusForm) ToStatusEvent() (calls.StatusEvent, bool) {
	status, reason, ok := calls.MapProviderStatus(f.CallStatus)
	if !ok {
		return calls.StatusEvent{}, false
	}
	errText := f.ErrorMessage
	if errText == "" && status == calls.CallStatusFailed {
		errText = f.CallStatus
	}
	return calls.StatusEvent{
		ProviderCallID:  f.CallSid,
		Status:          status,
		FailureReason:   reason,
		DurationSeconds: f.CallDuration,
		RawStatus:       f.CallStatus,
		ErrorText:       errText,
	}, true
}

// TwilioTurnForm is one conversational webhook: the transcribed customer
// speech (or DTMF digits) for an in-flight call.
type TwilioTurnForm struct {
	CallID       string // internal call id, carried in the query string
	CallSid      string
	SpeechResult string
	Digits       string
}

func ParseTwilioTurn(r *http.Request) (TwilioTurnForm, error) {
	if err := r.ParseForm(); err != nil {
		return TwilioTurnForm{}, err
	}
	return TwilioTurnForm{
		CallID:       r.URL.Query().Get("call_id"),
		CallSid:      r.PostFormValue("CallSid"),
		SpeechResult: strings.TrimSpace(r.PostFormValue("SpeechResult")),
		Digits:       strings.TrimSpace(r.PostFormValue("Digits")),
	}, nil
}

// Utterance returns what the customer said, preferring speech over digits.
func (f TwilioTurnForm) Utterance() string {
	if f.SpeechResult != "" {
		return f.SpeechResult
	}
	return f.Digits
}

// IsOpening reports whether this is the first contact for the call: Twilio
// requests initial instructions before the customer has said anything.
func (f TwilioTurnForm) IsOpening() bool {
	return f.SpeechResult == "" && f.Digits == ""
}
