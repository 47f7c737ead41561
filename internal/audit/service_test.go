package audit

import (
	"context"
	"testing"
	"time"
)

func TestAppendFillsIDAndTimestamp(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)
	fixed := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	svc.clock = func() time.Time { return fixed }

	err := svc.LogCampaign(context.Background(), EventTypeCampaignStart, "user-1", "operator", "10.0.0.1", "camp-1", "campaign started")
	if err != nil {
		t.Fatalf("LogCampaign: %v", err)
	}

	events := repo.Events()
	if len(events) != 1 {
		t.Fatalf("events = %d", len(events))
	}
	e := events[0]
	if e.ID == "" {
		t.Fatal("id not assigned")
	}
	if !e.CreatedAt.Equal(fixed) {
		t.Fatalf("created_at = %v", e.CreatedAt)
	}
	if e.Type != EventTypeCampaignStart || e.ActorUserID != "user-1" || e.CampaignID != "camp-1" {
		t.Fatalf("event = %+v", e)
	}
}

func TestAppendRejectsMissingType(t *testing.T) {
	svc := NewService(NewMemoryRepo())
	if err := svc.Append(context.Background(), Event{Message: "no type"}); err != ErrInvalidEvent {
		t.Fatalf("err = %v, want ErrInvalidEvent", err)
	}
}

func TestLogCallOverrideCarriesMetadata(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)

	err := svc.LogCallOverride(context.Background(), "admin-1", "admin", "10.0.0.2", "call-9", "status forced", `{"to":"voicemail"}`)
	if err != nil {
		t.Fatalf("LogCallOverride: %v", err)
	}

	e := repo.Events()[0]
	if e.Type != EventTypeCallOverride || e.CallID != "call-9" || e.Metadata == "" {
		t.Fatalf("event = %+v", e)
	}
}
