package store

import (
	"context"
	"errors"
	"time"

	"callpulse/internal/calls"
	"callpulse/internal/campaign"
)

var ErrNotFound = errors.New("store: not found")

// Store is the durable record of customers, campaigns and calls.
//
// Concurrency contract:
// - Every write is atomic per record.
// - ClaimPendingCall is a conditional update (status moves pending -> calling
//   only if it is still pending). It is the sole admission guard that keeps
//   overlapping scheduler passes from dialing the same call twice.
// - The persisted rows are authoritative; callers must not cache call state
//   in process memory, since webhooks and turn requests may land on another
//   instance.
type Store interface {
	InsertCustomer(ctx context.Context, c campaign.Customer) error
	InsertCustomers(ctx context.Context, cs []campaign.Customer) error
	GetCustomerByID(ctx context.Context, id string) (campaign.Customer, error)
	GetCustomersByServiceTags(ctx context.Context, tags []string) ([]campaign.Customer, error)

	InsertCampaign(ctx context.Context, c campaign.Campaign) error
	GetCampaignByID(ctx context.Context, id string) (campaign.Campaign, error)
	UpdateCampaignStatus(ctx context.Context, id string, status campaign.Status, now time.Time) error

	// CreateCampaignWithCalls persists the campaign and its full call list in
	// one transaction, so a failed start leaves no partial state behind.
	CreateCampaignWithCalls(ctx context.Context, c campaign.Campaign, cs []calls.Call) error

	InsertCalls(ctx context.Context, cs []calls.Call) error
	GetCallByID(ctx context.Context, id string) (calls.Call, error)
	GetCallsByStatus(ctx context.Context, status calls.CallStatus, limit int) ([]calls.Call, error)
	GetCallsByCampaign(ctx context.Context, campaignID string) ([]calls.Call, error)
	GetCallsByCampaignAndStatus(ctx context.Context, campaignID string, status calls.CallStatus, limit int) ([]calls.Call, error)
	CountCallsByStatuses(ctx context.Context, campaignID string, statuses []calls.CallStatus) (int, error)

	// UpdateCallStatus sets the call status and applies any non-nil partial fields.
	UpdateCallStatus(ctx context.Context, id string, status calls.CallStatus, fields CallFields) error

	// ClaimPendingCall transitions id from pending to calling and stamps
	// startedAt, returning true iff this caller won the transition.
	ClaimPendingCall(ctx context.Context, id string, startedAt time.Time) (bool, error)

	// GetCallByProviderID finds the call holding providerCallID whose status
	// is one of among. Used by webhook handling, which only considers
	// in-flight calls.
	GetCallByProviderID(ctx context.Context, providerCallID string, among []calls.CallStatus) (calls.Call, error)

	CampaignCallCounts(ctx context.Context, campaignID string) (StatusCounts, error)
	ListCalls(ctx context.Context, f ListCallsFilter) ([]calls.Call, int, error)
}

// CallFields carries the optional column updates attached to a status change.
// Nil fields are left untouched.
type CallFields struct {
	ProviderCallID  *string
	StartedAt       *time.Time
	EndedAt         *time.Time
	DurationSeconds *int
	Transcript      *string
	Summary         *string
	Sentiment       *string
	KeyIssues       *[]string
	RecordingURL    *string
	ErrorMessage    *string
	FailureReason   *calls.FailureReason
	RetryCount      *int
	UpdatedAt       time.Time
}

// StatusCounts is the per-status call breakdown for one campaign.
type StatusCounts map[calls.CallStatus]int

func (c StatusCounts) Total() int {
	n := 0
	for _, v := range c {
		n += v
	}
	return n
}

func (c StatusCounts) InProgress() int {
	return c[calls.CallStatusCalling] + c[calls.CallStatusRinging] + c[calls.CallStatusAnswered]
}

// ListCallsFilter drives paginated call queries for the control surface.
type ListCallsFilter struct {
	CampaignID string
	Status     calls.CallStatus // empty means all

	// SortBy accepts created_at, scheduled_at or status; created_at otherwise.
	SortBy   string
	SortDesc bool

	Limit  int
	Offset int
}

func (f ListCallsFilter) normalized() ListCallsFilter {
	out := f
	switch out.SortBy {
	case "created_at", "scheduled_at", "status":
	default:
		out.SortBy = "created_at"
	}
	if out.Limit <= 0 || out.Limit > 200 {
		out.Limit = 50
	}
	if out.Offset < 0 {
		out.Offset = 0
	}
	return out
}
