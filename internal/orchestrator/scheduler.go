package orchestrator

import (
	"context"

	"callpulse/internal/calls"
	"callpulse/internal/campaign"
	"callpulse/internal/convstate"
	"callpulse/internal/store"
	"callpulse/internal/telephony"
)

// runSchedulerPass is one iteration of the campaign dial loop. It admits as
// many pending calls as the concurrency limit allows and reschedules itself
// while work remains. Passes are cheap and idempotent: capacity is recomputed
// from the store every time, and the conditional claim means overlapping
// passes (or passes on other instances) never dial the same call twice.
func (o *Orchestrator) runSchedulerPass(campaignID string) {
	ctx := context.Background()
	log := o.log.With("campaign_id", campaignID)

	camp, err := o.store.GetCampaignByID(ctx, campaignID)
	if err != nil {
		log.Error("scheduler pass: load campaign failed", "err", err)
		return
	}
	if camp.Status != campaign.StatusRunning {
		log.Debug("scheduler pass: campaign not running", "status", camp.Status)
		return
	}

	pending, err := o.store.GetCallsByCampaignAndStatus(ctx, campaignID, calls.CallStatusPending, pendingBatchSize)
	if err != nil {
		log.Error("scheduler pass: load pending failed", "err", err)
		o.sched.AfterFunc(o.dialer.RefillDelay, func() { o.runSchedulerPass(campaignID) })
		return
	}
	active, err := o.store.CountCallsByStatuses(ctx, campaignID, calls.ActiveStatuses())
	if err != nil {
		log.Error("scheduler pass: count active failed", "err", err)
		o.sched.AfterFunc(o.dialer.RefillDelay, func() { o.runSchedulerPass(campaignID) })
		return
	}

	if len(pending) == 0 {
		if active == 0 && !o.retryOutstanding(ctx, camp) {
			o.completeCampaign(ctx, camp)
		}
		return
	}

	capacity := camp.MaxConcurrentCalls - active
	if capacity <= 0 {
		o.sched.AfterFunc(o.dialer.SaturatedDelay, func() { o.runSchedulerPass(campaignID) })
		return
	}

	dialed := 0
	for _, c := range pending {
		if dialed >= capacity {
			break
		}
		claimed, err := o.store.ClaimPendingCall(ctx, c.ID, o.clock())
		if err != nil {
			log.Error("claim failed", "call_id", c.ID, "err", err)
			continue
		}
		if !claimed {
			// Lost the race to another pass. Not our call anymore.
			continue
		}
		dialed++
		o.dialCall(ctx, camp, c)
	}

	if dialed < len(pending) {
		o.sched.AfterFunc(o.dialer.SaturatedDelay, func() { o.runSchedulerPass(campaignID) })
	} else if len(pending) == pendingBatchSize {
		o.sched.AfterFunc(o.dialer.RefillDelay, func() { o.runSchedulerPass(campaignID) })
	}
}

// dialCall takes a claimed call through dialing: resolve the customer,
// normalize the number, seed the conversation context, and place the call.
// The claim already moved the call to calling, so every exit path must settle
// it (ringing on success, failed otherwise, or back to pending when the
// global cap defers it).
func (o *Orchestrator) dialCall(ctx context.Context, camp campaign.Campaign, c calls.Call) {
	log := o.log.With("call_id", c.ID, "campaign_id", camp.ID)

	cust, err := o.store.GetCustomerByID(ctx, c.CustomerID)
	if err != nil {
		o.failCall(ctx, camp, c, calls.FailureReasonCustomerNotFound, "customer record not found")
		return
	}

	to, err := o.gateway.FormatPhoneNumber(c.Phone)
	if err != nil {
		o.failCall(ctx, camp, c, calls.FailureReasonInvalidPhone, err.Error())
		return
	}

	acquired, err := o.limiter.Acquire(ctx)
	if err != nil {
		// Fail open: the per-campaign limit still holds.
		log.Warn("global dial slot check failed", "err", err)
	} else if !acquired {
		log.Info("global dial cap reached, deferring call")
		if err := o.store.UpdateCallStatus(ctx, c.ID, calls.CallStatusPending, store.CallFields{UpdatedAt: o.clock()}); err != nil {
			log.Error("defer to pending failed", "err", err)
		}
		o.sched.AfterFunc(o.dialer.SaturatedDelay, func() { o.runSchedulerPass(camp.ID) })
		return
	}

	now := o.clock()
	conv := convstate.Context{
		CallID:         c.ID,
		CampaignID:     camp.ID,
		CustomerName:   cust.Name,
		CustomerReason: cust.Reason,
		ServiceTags:    c.ServiceTags,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	conv.Append(convstate.RoleSystem, systemPrompt(camp.ScriptTemplate, cust.Name, cust.Reason, c.ServiceTags), now)
	if err := o.conv.Insert(ctx, conv); err != nil {
		log.Error("conversation seed failed", "err", err)
		o.limiter.Release(ctx)
		if err := o.store.UpdateCallStatus(ctx, c.ID, calls.CallStatusPending, store.CallFields{UpdatedAt: o.clock()}); err != nil {
			log.Error("defer to pending failed", "err", err)
		}
		o.sched.AfterFunc(o.dialer.RefillDelay, func() { o.runSchedulerPass(camp.ID) })
		return
	}

	res, err := o.gateway.PlaceCall(ctx, telephony.PlaceCallRequest{CallID: c.ID, To: to})
	if err != nil {
		log.Warn("place call failed", "err", err)
		o.limiter.Release(ctx)
		o.failCall(ctx, camp, c, calls.FailureReasonGatewayError, err.Error())
		return
	}

	fields := store.CallFields{ProviderCallID: &res.ProviderCallID, UpdatedAt: o.clock()}
	if err := o.store.UpdateCallStatus(ctx, c.ID, calls.CallStatusRinging, fields); err != nil {
		log.Error("mark ringing failed", "err", err)
		return
	}
	log.Info("call placed", "provider", o.gateway.Name(), "provider_call_id", res.ProviderCallID, "to", to)
}

// failCall settles a call as failed before or during dialing, then runs the
// shared failure handling (retry re-queue, purge, refill).
func (o *Orchestrator) failCall(ctx context.Context, camp campaign.Campaign, c calls.Call, reason calls.FailureReason, msg string) {
	now := o.clock()
	fields := store.CallFields{
		EndedAt:       &now,
		ErrorMessage:  &msg,
		FailureReason: &reason,
		UpdatedAt:     now,
	}
	if err := o.store.UpdateCallStatus(ctx, c.ID, calls.CallStatusFailed, fields); err != nil {
		o.log.Error("mark failed failed", "call_id", c.ID, "err", err)
		return
	}
	c.Status = calls.CallStatusFailed
	c.FailureReason = reason
	o.afterFailure(ctx, camp, c)
}

// afterFailure runs once a call has been recorded as failed: purge the
// conversation, schedule a retry re-queue when the policy allows, and kick
// the scheduler since a concurrency slot just freed up.
func (o *Orchestrator) afterFailure(ctx context.Context, camp campaign.Campaign, c calls.Call) {
	log := o.log.With("call_id", c.ID, "campaign_id", camp.ID)

	if err := o.conv.Delete(ctx, c.ID); err != nil {
		log.Warn("conversation purge failed", "err", err)
	}

	if camp.RetryPolicy.Allows(c.FailureReason) && c.RetryCount < c.MaxRetries {
		delay := camp.RetryPolicy.RetryDelay
		log.Info("retry scheduled",
			"reason", c.FailureReason,
			"retry", c.RetryCount+1,
			"max_retries", c.MaxRetries,
			"delay", delay,
		)
		callID, campaignID := c.ID, camp.ID
		o.sched.AfterFunc(delay, func() { o.requeueCall(campaignID, callID) })
	} else {
		log.Info("call failed permanently", "reason", c.FailureReason, "retry_count", c.RetryCount)
	}

	o.sched.AfterFunc(o.dialer.RefillDelay, func() { o.runSchedulerPass(camp.ID) })
}

// requeueCall moves a failed call back to pending with its retry budget
// decremented. A manual override in the meantime wins: only a call still in
// failed is re-queued.
func (o *Orchestrator) requeueCall(campaignID, callID string) {
	ctx := context.Background()
	c, err := o.store.GetCallByID(ctx, callID)
	if err != nil {
		o.log.Error("requeue: load call failed", "call_id", callID, "err", err)
		return
	}
	if c.Status != calls.CallStatusFailed {
		return
	}
	rc := c.RetryCount + 1
	empty := ""
	fields := store.CallFields{
		RetryCount:     &rc,
		ProviderCallID: &empty,
		UpdatedAt:      o.clock(),
	}
	if err := o.store.UpdateCallStatus(ctx, callID, calls.CallStatusPending, fields); err != nil {
		o.log.Error("requeue failed", "call_id", callID, "err", err)
		return
	}
	o.log.Info("call re-queued", "call_id", callID, "retry", rc)
	o.runSchedulerPass(campaignID)
}

// retryOutstanding reports whether any failed call still has a retry
// re-queue coming, which blocks campaign completion.
func (o *Orchestrator) retryOutstanding(ctx context.Context, camp campaign.Campaign) bool {
	failed, err := o.store.GetCallsByCampaignAndStatus(ctx, camp.ID, calls.CallStatusFailed, 0)
	if err != nil {
		o.log.Error("retry check failed", "campaign_id", camp.ID, "err", err)
		return true
	}
	for _, c := range failed {
		if camp.RetryPolicy.Allows(c.FailureReason) && c.RetryCount < c.MaxRetries {
			return true
		}
	}
	return false
}

func (o *Orchestrator) completeCampaign(ctx context.Context, camp campaign.Campaign) {
	if err := o.store.UpdateCampaignStatus(ctx, camp.ID, campaign.StatusCompleted, o.clock()); err != nil {
		o.log.Error("complete campaign failed", "campaign_id", camp.ID, "err", err)
		return
	}
	o.log.Info("campaign completed", "campaign_id", camp.ID)
}
