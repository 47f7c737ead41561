package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"callpulse/internal/calls"
	"callpulse/internal/convstate"
	"callpulse/internal/dialogue"
	"callpulse/internal/store"
	"callpulse/internal/telephony"
)

// OpeningTurn serves the first turn webhook of a call: speak the greeting and
// start listening. The call is marked answered here as well, since a turn
// webhook can beat the provider's answered status event.
func (o *Orchestrator) OpeningTurn(ctx context.Context, callID string) (telephony.TurnReply, error) {
	conv, err := o.conversation(ctx, callID)
	if err != nil {
		return telephony.TurnReply{}, err
	}
	o.markAnswered(ctx, callID)

	text := greeting(conv)
	now := o.clock()
	conv.Append(convstate.RoleAssistant, text, now)
	if err := o.conv.UpdateHistory(ctx, callID, conv.History, now); err != nil {
		o.log.Warn("persist opening turn failed", "call_id", callID, "err", err)
	}
	return telephony.TurnReply{Text: text}, nil
}

// CustomerTurn serves one customer utterance. It never returns an error: a
// live call must always hear something, so every internal failure degrades to
// the canned fallback reply instead of propagating.
//
// The customer turn cap is enforced before the dialogue engine runs. A call
// at the cap gets the closing message and a delayed completion, with no
// engine round trip.
func (o *Orchestrator) CustomerTurn(ctx context.Context, callID, utterance string) (telephony.TurnReply, error) {
	log := o.log.With("call_id", callID)

	conv, err := o.conversation(ctx, callID)
	if err != nil {
		log.Warn("turn without reconstructable conversation", "err", err)
		return telephony.TurnReply{Text: dialogue.FallbackReply}, nil
	}

	now := o.clock()

	if conv.CustomerTurns() >= maxCustomerTurns {
		closing := o.engine.ClosingMessage(conv, "turn limit reached")
		conv.Append(convstate.RoleAssistant, closing, now)
		if err := o.conv.UpdateHistory(ctx, callID, conv.History, now); err != nil {
			log.Warn("persist closing turn failed", "err", err)
		}
		o.sched.AfterFunc(o.dialer.WrapUpDelay, func() { o.wrapUp(callID) })
		log.Info("turn limit reached, closing call", "customer_turns", conv.CustomerTurns())
		return telephony.TurnReply{Text: closing, EndCall: true}, nil
	}

	conv.Append(convstate.RoleUser, utterance, now)

	res, err := o.engine.GenerateTurn(ctx, utterance, conv)
	if err != nil {
		log.Warn("turn generation failed", "err", err)
		// Keep the customer's words; the next turn retries generation.
		if perr := o.conv.UpdateHistory(ctx, callID, conv.History, now); perr != nil {
			log.Warn("persist turn failed", "err", perr)
		}
		return telephony.TurnReply{Text: dialogue.FallbackReply}, nil
	}

	conv.Append(convstate.RoleAssistant, res.Reply, now)
	reply := telephony.TurnReply{Text: res.Reply}

	if res.EndCall {
		closing := o.engine.ClosingMessage(conv, "conversation complete")
		conv.Append(convstate.RoleAssistant, closing, now)
		reply.Text = res.Reply + " " + closing
		reply.EndCall = true
		o.sched.AfterFunc(o.dialer.WrapUpDelay, func() { o.wrapUp(callID) })
	}

	if err := o.conv.UpdateHistory(ctx, callID, conv.History, now); err != nil {
		log.Warn("persist turn failed", "err", err)
	}
	return reply, nil
}

// conversation loads the call's conversation context, rebuilding it from the
// call, campaign and customer records when the stored copy is gone (instance
// restart, TTL expiry). Reconstruction loses prior turns but keeps the call
// conversable.
func (o *Orchestrator) conversation(ctx context.Context, callID string) (convstate.Context, error) {
	conv, err := o.conv.GetByCallID(ctx, callID)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, convstate.ErrNotFound) {
		return convstate.Context{}, err
	}

	c, err := o.store.GetCallByID(ctx, callID)
	if err != nil {
		return convstate.Context{}, err
	}
	if c.Status.IsTerminal() {
		return convstate.Context{}, fmt.Errorf("call %s already ended", callID)
	}
	camp, err := o.store.GetCampaignByID(ctx, c.CampaignID)
	if err != nil {
		return convstate.Context{}, err
	}
	reason := ""
	if cust, err := o.store.GetCustomerByID(ctx, c.CustomerID); err == nil {
		reason = cust.Reason
	}

	now := o.clock()
	conv = convstate.Context{
		CallID:         c.ID,
		CampaignID:     c.CampaignID,
		CustomerName:   c.CustomerName,
		CustomerReason: reason,
		ServiceTags:    c.ServiceTags,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	conv.Append(convstate.RoleSystem, systemPrompt(camp.ScriptTemplate, c.CustomerName, reason, c.ServiceTags), now)
	if err := o.conv.Insert(ctx, conv); err != nil {
		return convstate.Context{}, err
	}
	o.log.Info("conversation context reconstructed", "call_id", callID)
	return conv, nil
}

// markAnswered promotes a calling/ringing call to answered.
func (o *Orchestrator) markAnswered(ctx context.Context, callID string) {
	c, err := o.store.GetCallByID(ctx, callID)
	if err != nil || !c.Status.IsActive() || c.Status == calls.CallStatusAnswered {
		return
	}
	if err := o.store.UpdateCallStatus(ctx, callID, calls.CallStatusAnswered, store.CallFields{UpdatedAt: o.clock()}); err != nil {
		o.log.Warn("mark answered failed", "call_id", callID, "err", err)
	}
}

// systemPrompt seeds the conversation with the campaign script plus the
// customer facts the dialogue engine should personalize on.
func systemPrompt(script, customerName, reason string, serviceTags []string) string {
	var b strings.Builder
	b.WriteString(script)
	b.WriteString("\nCustomer name: ")
	b.WriteString(customerName)
	if reason != "" {
		b.WriteString("\nReason for follow-up: ")
		b.WriteString(reason)
	}
	if len(serviceTags) > 0 {
		b.WriteString("\nServices: ")
		b.WriteString(strings.Join(serviceTags, ", "))
	}
	return b.String()
}

func greeting(conv convstate.Context) string {
	services := "our services"
	if len(conv.ServiceTags) > 0 {
		services = "your " + strings.Join(conv.ServiceTags, " and ") + " service"
	}
	return fmt.Sprintf(
		"Hello %s! This is a quick automated feedback call about %s. Do you have a moment to share how things have been going?",
		conv.CustomerName, services,
	)
}
