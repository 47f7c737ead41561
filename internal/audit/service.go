package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events.
//
// It MUST be append-only.
// No Update/Delete methods are provided by design.
type Repository interface {
	Append(ctx context.Context, e Event) error
}

// Service logs internal audit information.
//
// Audit is internal-only; callers treat logging as best-effort and never
// fail a campaign or call operation because an audit write failed.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.Type == "" {
		return ErrInvalidEvent
	}

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	return s.repo.Append(ctx, e)
}

// LogCampaign records a campaign-level operator action.
func (s *Service) LogCampaign(ctx context.Context, t EventType, actorUserID, actorRole, ip, campaignID, message string) error {
	return s.Append(ctx, Event{
		Type:        t,
		ActorUserID: actorUserID,
		ActorRole:   actorRole,
		IPAddress:   ip,
		CampaignID:  campaignID,
		Message:     message,
	})
}

// LogCallOverride records a manual call status change.
func (s *Service) LogCallOverride(ctx context.Context, actorUserID, actorRole, ip, callID, message, metadata string) error {
	return s.Append(ctx, Event{
		Type:        EventTypeCallOverride,
		ActorUserID: actorUserID,
		ActorRole:   actorRole,
		IPAddress:   ip,
		CallID:      callID,
		Message:     message,
		Metadata:    metadata,
	})
}
