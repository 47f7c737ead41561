package telephony

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"

	"callpulse/internal/calls"
	"callpulse/pkg/logger"
)

// CallFlow is the orchestrator surface the webhook handlers drive. Injected
// as an interface so this package never imports orchestration logic.
type CallFlow interface {
	HandleProviderWebhook(ctx context.Context, ev calls.StatusEvent) error
	OpeningTurn(ctx context.Context, callID string) (TurnReply, error)
	CustomerTurn(ctx context.Context, callID, utterance string) (TurnReply, error)
}

// TurnReply is what gets spoken back to the customer, and whether the call
// should end after it is played.
type TurnReply struct {
	Text    string
	EndCall bool
}

// WebhookHandler converts Twilio webhooks to internal types and delegates to
// the call flow. No business logic here.
//
// Both endpoints always acknowledge: a 5xx would make Twilio retry-storm the
// webhook, and status handling is idempotent anyway.
type WebhookHandler struct {
	Flow CallFlow
}

// HandleStatusCallback consumes call lifecycle events.
func (h WebhookHandler) HandleStatusCallback(c *gin.Context) {
	log := logger.FromGin(c)

	form, err := ParseTwilioStatusCallback(c.Request)
	if err != nil {
		log.Warn("twilio status webhook parse failed", "err", err)
		c.String(http.StatusOK, "")
		return
	}

	ev, ok := form.ToStatusEvent()
	if !ok {
		log.Debug("twilio status ignored", "call_sid", form.CallSid, "status", form.CallStatus)
		c.String(http.StatusOK, "")
		return
	}

	if err := h.Flow.HandleProviderWebhook(c.Request.Context(), ev); err != nil {
		log.Error("status webhook handling failed", "call_sid", ev.ProviderCallID, "err", err)
	}
	c.String(http.StatusOK, "")
}

// HandleTurn consumes one conversational turn and answers with TwiML.
func (h WebhookHandler) HandleTurn(c *gin.Context) {
	log := logger.FromGin(c)

	form, err := ParseTwilioTurn(c.Request)
	if err != nil || form.CallID == "" {
		log.Warn("twilio turn webhook parse failed", "err", err)
		twiml, rerr := RenderSayHangup("We're sorry, something went wrong. Goodbye.")
		h.respondTwiML(c, twiml, rerr)
		return
	}

	var reply TurnReply
	if form.IsOpening() {
		reply, err = h.Flow.OpeningTurn(c.Request.Context(), form.CallID)
	} else {
		reply, err = h.Flow.CustomerTurn(c.Request.Context(), form.CallID, form.Utterance())
	}
	if err != nil {
		// Turn handling degrades internally; an error here means the call is
		// unknown or finished. End gracefully rather than loop.
		log.Warn("turn handling failed", "call_id", form.CallID, "err", err)
		twiml, rerr := RenderSayHangup("Thank you for your time. Goodbye.")
		h.respondTwiML(c, twiml, rerr)
		return
	}

	if reply.EndCall {
		twiml, rerr := RenderSayHangup(reply.Text)
		h.respondTwiML(c, twiml, rerr)
		return
	}
	action := fmt.Sprintf("/webhooks/twilio/turn?call_id=%s", url.QueryEscape(form.CallID))
	twiml, rerr := RenderGather(reply.Text, action)
	h.respondTwiML(c, twiml, rerr)
}

func (h WebhookHandler) respondTwiML(c *gin.Context, twiml string, err error) {
	if err != nil {
		logger.FromGin(c).Error("twiml render failed", "err", err)
		c.String(http.StatusOK, "")
		return
	}
	c.Header("Content-Type", "application/xml")
	c.String(http.StatusOK, twiml)
}
