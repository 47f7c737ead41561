package orchestrator

import (
	"context"
	"errors"

	"callpulse/internal/calls"
	"callpulse/internal/convstate"
	"callpulse/internal/store"
)

// HandleProviderWebhook applies one provider status event to the matching
// call. Events are correlated by provider call id among in-flight calls only,
// so duplicates and events for already-settled calls fall through as no-ops.
// The persisted row is the single source of truth; this method may run on a
// different instance than the one that placed the call.
func (o *Orchestrator) HandleProviderWebhook(ctx context.Context, ev calls.StatusEvent) error {
	c, err := o.store.GetCallByProviderID(ctx, ev.ProviderCallID, calls.ActiveStatuses())
	if errors.Is(err, store.ErrNotFound) {
		o.log.Debug("webhook for unknown or settled call",
			"provider_call_id", ev.ProviderCallID, "status", ev.RawStatus)
		return nil
	}
	if err != nil {
		return err
	}

	log := o.log.With("call_id", c.ID, "campaign_id", c.CampaignID, "provider_call_id", ev.ProviderCallID)
	now := o.clock()

	switch ev.Status {
	case calls.CallStatusRinging:
		// Never regress an answered call on a late ringing event, and a
		// duplicate ringing is a no-op.
		if c.Status != calls.CallStatusCalling {
			return nil
		}
		return o.store.UpdateCallStatus(ctx, c.ID, calls.CallStatusRinging, store.CallFields{UpdatedAt: now})

	case calls.CallStatusAnswered:
		if c.Status == calls.CallStatusAnswered {
			return nil
		}
		log.Info("call answered")
		return o.store.UpdateCallStatus(ctx, c.ID, calls.CallStatusAnswered, store.CallFields{UpdatedAt: now})

	case calls.CallStatusCompleted:
		fields := store.CallFields{EndedAt: &now, UpdatedAt: now}
		if ev.DurationSeconds > 0 {
			d := ev.DurationSeconds
			fields.DurationSeconds = &d
		}
		if err := o.store.UpdateCallStatus(ctx, c.ID, calls.CallStatusCompleted, fields); err != nil {
			return err
		}
		log.Info("call completed", "duration_seconds", ev.DurationSeconds)
		o.limiter.Release(ctx)
		o.finishCall(ctx, c.ID, c.ProviderCallID)
		o.sched.AfterFunc(o.dialer.RefillDelay, func() { o.runSchedulerPass(c.CampaignID) })
		return nil

	case calls.CallStatusFailed:
		fields := store.CallFields{
			EndedAt:       &now,
			ErrorMessage:  &ev.ErrorText,
			FailureReason: &ev.FailureReason,
			UpdatedAt:     now,
		}
		if err := o.store.UpdateCallStatus(ctx, c.ID, calls.CallStatusFailed, fields); err != nil {
			return err
		}
		log.Info("call failed", "reason", ev.FailureReason, "provider_status", ev.RawStatus)
		o.limiter.Release(ctx)
		camp, err := o.store.GetCampaignByID(ctx, c.CampaignID)
		if err != nil {
			return err
		}
		c.Status = calls.CallStatusFailed
		c.FailureReason = ev.FailureReason
		o.afterFailure(ctx, camp, c)
		return nil

	case calls.CallStatusCancelled:
		fields := store.CallFields{EndedAt: &now, UpdatedAt: now}
		if err := o.store.UpdateCallStatus(ctx, c.ID, calls.CallStatusCancelled, fields); err != nil {
			return err
		}
		log.Info("call cancelled by provider")
		o.limiter.Release(ctx)
		if err := o.conv.Delete(ctx, c.ID); err != nil {
			log.Warn("conversation purge failed", "err", err)
		}
		o.sched.AfterFunc(o.dialer.RefillDelay, func() { o.runSchedulerPass(c.CampaignID) })
		return nil
	}
	return nil
}

// finishCall is the post-call analysis step: flatten the transcript,
// summarize the conversation, attach the provider recording when one exists,
// and purge the conversation context. Running it twice is safe because the
// purge makes the second run a no-op.
func (o *Orchestrator) finishCall(ctx context.Context, callID, providerCallID string) {
	log := o.log.With("call_id", callID)

	conv, err := o.conv.GetByCallID(ctx, callID)
	if errors.Is(err, convstate.ErrNotFound) {
		return
	}
	if err != nil {
		log.Error("load conversation for analysis failed", "err", err)
		return
	}

	fields := store.CallFields{UpdatedAt: o.clock()}
	transcript := conv.Transcript()
	fields.Transcript = &transcript

	sum, err := o.engine.Summarize(ctx, conv)
	if err != nil {
		// The call stays completed with its transcript; summary columns
		// remain empty rather than failing the webhook.
		log.Warn("summarization failed", "err", err)
	} else {
		fields.Summary = &sum.Summary
		fields.Sentiment = &sum.Sentiment
		issues := sum.KeyIssues
		fields.KeyIssues = &issues
	}

	if providerCallID != "" {
		if u, err := o.gateway.RecordingURL(ctx, providerCallID); err != nil {
			log.Warn("recording fetch failed", "err", err)
		} else if u != "" {
			fields.RecordingURL = &u
		}
	}

	if err := o.store.UpdateCallStatus(ctx, callID, calls.CallStatusCompleted, fields); err != nil {
		log.Error("write call analysis failed", "err", err)
	}
	if err := o.conv.Delete(ctx, callID); err != nil {
		log.Warn("conversation purge failed", "err", err)
	}
	log.Info("call analysis stored", "sentiment", sum.Sentiment, "customer_turns", conv.CustomerTurns())
}

// wrapUp fires after the closing message has had time to play. If the
// provider's completed webhook already settled the call this is a no-op;
// otherwise the call is completed from our side.
func (o *Orchestrator) wrapUp(callID string) {
	ctx := context.Background()
	c, err := o.store.GetCallByID(ctx, callID)
	if err != nil {
		o.log.Error("wrap-up: load call failed", "call_id", callID, "err", err)
		return
	}
	if c.Status.IsTerminal() {
		// Settled by a webhook in the meantime. Analysis may still be
		// pending if the webhook raced the purge; finishCall no-ops when
		// the conversation is gone.
		o.finishCall(ctx, callID, c.ProviderCallID)
		return
	}
	now := o.clock()
	if err := o.store.UpdateCallStatus(ctx, callID, calls.CallStatusCompleted, store.CallFields{EndedAt: &now, UpdatedAt: now}); err != nil {
		o.log.Error("wrap-up: complete call failed", "call_id", callID, "err", err)
		return
	}
	o.limiter.Release(ctx)
	o.finishCall(ctx, callID, c.ProviderCallID)
	o.sched.AfterFunc(o.dialer.RefillDelay, func() { o.runSchedulerPass(c.CampaignID) })
}
