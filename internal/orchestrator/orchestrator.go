package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"callpulse/internal/calls"
	"callpulse/internal/campaign"
	"callpulse/internal/config"
	"callpulse/internal/convstate"
	"callpulse/internal/dialogue"
	"callpulse/internal/sched"
	"callpulse/internal/store"
	"callpulse/internal/telephony"
)

var (
	ErrCampaignFinished = errors.New("orchestrator: campaign already finished")
	ErrInvalidStatus    = errors.New("orchestrator: invalid call status")
)

// maxCustomerTurns caps how many times the customer may speak on one call.
// Checked before the dialogue engine runs, so a capped call costs no tokens.
const maxCustomerTurns = 3

// pendingBatchSize bounds how many pending calls one scheduler pass examines.
const pendingBatchSize = 25

// avgCallDuration feeds the duration estimate returned at campaign start.
const avgCallDuration = 150 * time.Second

// Orchestrator runs outbound survey campaigns: it admits pending calls under
// the campaign's concurrency limit, drives the call lifecycle from provider
// webhooks, serves conversational turns, and writes the post-call analysis.
//
// It holds no per-call state in memory. The call row and the persisted
// conversation context are authoritative, so any instance can serve any
// webhook.
type Orchestrator struct {
	store   store.Store
	conv    convstate.Store
	gateway telephony.Gateway
	engine  dialogue.Engine
	sched   sched.Scheduler
	limiter Limiter
	log     *slog.Logger
	clock   func() time.Time
	dialer  config.DialerConfig
}

// Options wires the orchestrator's collaborators. Store, ConvStore, Gateway,
// Engine and Scheduler are required; the rest default sensibly.
type Options struct {
	Store     store.Store
	ConvStore convstate.Store
	Gateway   telephony.Gateway
	Engine    dialogue.Engine
	Scheduler sched.Scheduler
	Limiter   Limiter
	Logger    *slog.Logger
	Clock     func() time.Time
	Dialer    config.DialerConfig
}

func New(o Options) *Orchestrator {
	if o.Limiter == nil {
		o.Limiter = NopLimiter{}
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	if o.Dialer.RefillDelay <= 0 {
		o.Dialer.RefillDelay = 2 * time.Second
	}
	if o.Dialer.SaturatedDelay <= 0 {
		o.Dialer.SaturatedDelay = 10 * time.Second
	}
	if o.Dialer.WrapUpDelay <= 0 {
		o.Dialer.WrapUpDelay = 5 * time.Second
	}
	return &Orchestrator{
		store:   o.Store,
		conv:    o.ConvStore,
		gateway: o.Gateway,
		engine:  o.Engine,
		sched:   o.Scheduler,
		limiter: o.Limiter,
		log:     o.Logger,
		clock:   o.Clock,
		dialer:  o.Dialer,
	}
}

// StartResult is returned to the caller of StartCampaign.
type StartResult struct {
	CampaignID        string        `json:"campaign_id"`
	CallsScheduled    int           `json:"calls_scheduled"`
	EstimatedDuration time.Duration `json:"estimated_duration"`
}

// StartCampaign validates cfg, persists the campaign with one pending call
// per customer in a single transaction, and kicks off the scheduling loop.
// Nothing is persisted when validation fails.
func (o *Orchestrator) StartCampaign(ctx context.Context, cfg campaign.StartConfig) (StartResult, error) {
	if err := cfg.Normalize(); err != nil {
		return StartResult{}, err
	}

	now := o.clock()
	camp := campaign.Campaign{
		ID:                 uuid.NewString(),
		Name:               cfg.Name,
		Status:             campaign.StatusRunning,
		TargetServiceTags:  cfg.TargetServiceTags,
		CustomerCount:      len(cfg.Customers),
		MaxConcurrentCalls: cfg.MaxConcurrentCalls,
		RetryPolicy:        *cfg.RetryPolicy,
		ScriptTemplate:     cfg.ScriptTemplate,
		StartedAt:          &now,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	customers := make([]campaign.Customer, 0, len(cfg.Customers))
	callList := make([]calls.Call, 0, len(cfg.Customers))
	for _, in := range cfg.Customers {
		tags := in.ServiceTags
		if len(tags) == 0 {
			tags = cfg.TargetServiceTags
		}
		cust := campaign.Customer{
			ID:          uuid.NewString(),
			Name:        in.Name,
			Phone:       in.Phone,
			Reason:      in.Reason,
			ServiceTags: tags,
			Priority:    campaign.PriorityMedium,
			Eligible:    true,
			CreatedAt:   now,
		}
		customers = append(customers, cust)
		callList = append(callList, calls.Call{
			ID:           uuid.NewString(),
			CampaignID:   camp.ID,
			CustomerID:   cust.ID,
			CustomerName: cust.Name,
			Phone:        cust.Phone,
			Status:       calls.CallStatusPending,
			ScheduledAt:  now,
			MaxRetries:   cfg.RetryPolicy.MaxRetries,
			ServiceTags:  tags,
			CreatedAt:    now,
			UpdatedAt:    now,
		})
	}

	if err := o.store.InsertCustomers(ctx, customers); err != nil {
		return StartResult{}, fmt.Errorf("insert customers: %w", err)
	}
	if err := o.store.CreateCampaignWithCalls(ctx, camp, callList); err != nil {
		return StartResult{}, fmt.Errorf("create campaign: %w", err)
	}

	o.log.Info("campaign started",
		"campaign_id", camp.ID,
		"name", camp.Name,
		"calls_scheduled", len(callList),
		"max_concurrent_calls", camp.MaxConcurrentCalls,
	)

	campaignID := camp.ID
	o.sched.AfterFunc(0, func() { o.runSchedulerPass(campaignID) })

	waves := (len(callList) + camp.MaxConcurrentCalls - 1) / camp.MaxConcurrentCalls
	return StartResult{
		CampaignID:        camp.ID,
		CallsScheduled:    len(callList),
		EstimatedDuration: time.Duration(waves) * avgCallDuration,
	}, nil
}

// CampaignStatus is the live progress snapshot for one campaign.
type CampaignStatus struct {
	CampaignID string          `json:"campaign_id"`
	Name       string          `json:"name"`
	Status     campaign.Status `json:"status"`

	TotalCalls int `json:"total_calls"`
	Pending    int `json:"pending"`
	InProgress int `json:"in_progress"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	Cancelled  int `json:"cancelled"`

	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// GetCampaignStatus returns the snapshot, or nil (no error) when the
// campaign does not exist.
func (o *Orchestrator) GetCampaignStatus(ctx context.Context, campaignID string) (*CampaignStatus, error) {
	camp, err := o.store.GetCampaignByID(ctx, campaignID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	counts, err := o.store.CampaignCallCounts(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	return &CampaignStatus{
		CampaignID:  camp.ID,
		Name:        camp.Name,
		Status:      camp.Status,
		TotalCalls:  counts.Total(),
		Pending:     counts[calls.CallStatusPending],
		InProgress:  counts.InProgress(),
		Completed:   counts[calls.CallStatusCompleted],
		Failed:      counts[calls.CallStatusFailed],
		Cancelled:   counts[calls.CallStatusCancelled],
		StartedAt:   camp.StartedAt,
		CompletedAt: camp.CompletedAt,
	}, nil
}

// CancelCampaign stops a campaign: the campaign record goes to cancelled and
// live calls are terminated at the provider best-effort. Pending calls keep
// their status; the scheduler never dials for a non-running campaign.
// Idempotent.
func (o *Orchestrator) CancelCampaign(ctx context.Context, campaignID string) error {
	camp, err := o.store.GetCampaignByID(ctx, campaignID)
	if err != nil {
		return err
	}
	if camp.Status == campaign.StatusCompleted {
		return ErrCampaignFinished
	}
	now := o.clock()
	if camp.Status != campaign.StatusCancelled {
		if err := o.store.UpdateCampaignStatus(ctx, campaignID, campaign.StatusCancelled, now); err != nil {
			return err
		}
	}

	list, err := o.store.GetCallsByCampaign(ctx, campaignID)
	if err != nil {
		return err
	}
	for _, c := range list {
		if !c.Status.IsActive() {
			continue
		}
		o.cancelCall(ctx, c)
	}
	o.log.Info("campaign cancelled", "campaign_id", campaignID)
	return nil
}

// CancelCalls cancels the given calls individually, skipping ones already in
// a terminal status. It returns how many were actually cancelled.
func (o *Orchestrator) CancelCalls(ctx context.Context, callIDs []string) (int, error) {
	n := 0
	for _, id := range callIDs {
		c, err := o.store.GetCallByID(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return n, err
		}
		if o.cancelCall(ctx, c) {
			n++
		}
	}
	return n, nil
}

// cancelCall settles one non-terminal call as cancelled, returning whether a
// transition happened.
func (o *Orchestrator) cancelCall(ctx context.Context, c calls.Call) bool {
	if c.Status.IsTerminal() {
		return false
	}
	now := o.clock()
	fields := store.CallFields{UpdatedAt: now}
	if c.Status.IsActive() {
		if c.ProviderCallID != "" {
			if err := o.gateway.CancelCall(ctx, c.ProviderCallID); err != nil {
				o.log.Warn("provider cancel failed", "call_id", c.ID, "err", err)
			}
		}
		fields.EndedAt = &now
		o.limiter.Release(ctx)
	}
	if err := o.store.UpdateCallStatus(ctx, c.ID, calls.CallStatusCancelled, fields); err != nil {
		o.log.Error("cancel call update failed", "call_id", c.ID, "err", err)
		return false
	}
	if err := o.conv.Delete(ctx, c.ID); err != nil {
		o.log.Warn("conversation purge failed", "call_id", c.ID, "err", err)
	}
	return true
}

// OverrideCallStatus is the manual operator escape hatch behind the PATCH
// endpoint. It bypasses lifecycle checks on purpose, but still stamps
// ended_at and purges conversation state when the target is terminal.
func (o *Orchestrator) OverrideCallStatus(ctx context.Context, callID string, status calls.CallStatus) (calls.Call, error) {
	if !status.Valid() {
		return calls.Call{}, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	c, err := o.store.GetCallByID(ctx, callID)
	if err != nil {
		return calls.Call{}, err
	}
	now := o.clock()
	fields := store.CallFields{UpdatedAt: now}
	if status.IsTerminal() && c.EndedAt == nil {
		fields.EndedAt = &now
	}
	if err := o.store.UpdateCallStatus(ctx, callID, status, fields); err != nil {
		return calls.Call{}, err
	}
	if status.IsTerminal() {
		if err := o.conv.Delete(ctx, callID); err != nil {
			o.log.Warn("conversation purge failed", "call_id", callID, "err", err)
		}
	}
	o.log.Info("call status overridden", "call_id", callID, "from", c.Status, "to", status)
	return o.store.GetCallByID(ctx, callID)
}
