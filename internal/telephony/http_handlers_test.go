package telephony

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"callpulse/internal/calls"
)

type fakeFlow struct {
	events  []calls.StatusEvent
	opening TurnReply
	turn    TurnReply
	turnIn  string
	err     error
}

func (f *fakeFlow) HandleProviderWebhook(ctx context.Context, ev calls.StatusEvent) error {
	f.events = append(f.events, ev)
	return f.err
}

func (f *fakeFlow) OpeningTurn(ctx context.Context, callID string) (TurnReply, error) {
	return f.opening, f.err
}

func (f *fakeFlow) CustomerTurn(ctx context.Context, callID, utterance string) (TurnReply, error) {
	f.turnIn = utterance
	return f.turn, f.err
}

func webhookRouter(flow *fakeFlow) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := WebhookHandler{Flow: flow}
	r.POST("/webhooks/twilio/status", h.HandleStatusCallback)
	r.POST("/webhooks/twilio/turn", h.HandleTurn)
	return r
}

func postWebhook(r *gin.Engine, target string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest("POST", target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestStatusCallbackDelegatesEvent(t *testing.T) {
	flow := &fakeFlow{}
	r := webhookRouter(flow)

	w := postWebhook(r, "/webhooks/twilio/status", url.Values{
		"CallSid":    {"CA1"},
		"CallStatus": {"busy"},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if len(flow.events) != 1 || flow.events[0].FailureReason != calls.FailureReasonBusy {
		t.Fatalf("events = %+v", flow.events)
	}
}

func TestStatusCallbackIgnoresUnknownStatus(t *testing.T) {
	flow := &fakeFlow{}
	r := webhookRouter(flow)

	w := postWebhook(r, "/webhooks/twilio/status", url.Values{
		"CallSid":    {"CA1"},
		"CallStatus": {"queued"},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if len(flow.events) != 0 {
		t.Fatalf("queued should be ignored, got %+v", flow.events)
	}
}

func TestTurnOpeningRespondsWithGather(t *testing.T) {
	flow := &fakeFlow{opening: TurnReply{Text: "Hello Dana!"}}
	r := webhookRouter(flow)

	w := postWebhook(r, "/webhooks/twilio/turn?call_id=call-1", url.Values{})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, "Hello Dana!") || !strings.Contains(body, "<Gather") {
		t.Fatalf("body = %s", body)
	}
	if !strings.Contains(body, "call_id=call-1") {
		t.Fatalf("gather action missing call id: %s", body)
	}
}

func TestTurnEndCallRespondsWithHangup(t *testing.T) {
	flow := &fakeFlow{turn: TurnReply{Text: "Goodbye!", EndCall: true}}
	r := webhookRouter(flow)

	w := postWebhook(r, "/webhooks/twilio/turn?call_id=call-1", url.Values{
		"SpeechResult": {"bye now"},
	})
	body := w.Body.String()
	if !strings.Contains(body, "Goodbye!") || !strings.Contains(body, "<Hangup") {
		t.Fatalf("body = %s", body)
	}
	if flow.turnIn != "bye now" {
		t.Fatalf("utterance = %q", flow.turnIn)
	}
}

func TestTurnWithoutCallIDHangsUp(t *testing.T) {
	flow := &fakeFlow{}
	r := webhookRouter(flow)

	w := postWebhook(r, "/webhooks/twilio/turn", url.Values{})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "<Hangup") {
		t.Fatalf("body = %s", w.Body.String())
	}
}
