package reporting

import (
	"context"
	"testing"
	"time"

	"callpulse/internal/calls"
	"callpulse/internal/campaign"
	"callpulse/internal/store"
)

func seedReportData(t *testing.T) *store.Memory {
	t.Helper()
	m := store.NewMemory()
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	camp := campaign.Campaign{
		ID:        "camp",
		Name:      "june-survey",
		Status:    campaign.StatusCompleted,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := m.InsertCampaign(context.Background(), camp); err != nil {
		t.Fatalf("InsertCampaign: %v", err)
	}

	rows := []calls.Call{
		{ID: "c1", CampaignID: "camp", Status: calls.CallStatusCompleted, DurationSeconds: 100, Sentiment: "positive", KeyIssues: []string{"Billing", "speed"}},
		{ID: "c2", CampaignID: "camp", Status: calls.CallStatusCompleted, DurationSeconds: 200, Sentiment: "negative", KeyIssues: []string{"billing "}},
		{ID: "c3", CampaignID: "camp", Status: calls.CallStatusCompleted, Sentiment: "neutral"},
		{ID: "c4", CampaignID: "camp", Status: calls.CallStatusFailed, FailureReason: calls.FailureReasonBusy, RetryCount: 2},
		{ID: "c5", CampaignID: "camp", Status: calls.CallStatusFailed, FailureReason: calls.FailureReasonNoAnswer},
		{ID: "c6", CampaignID: "camp", Status: calls.CallStatusCancelled},
		{ID: "c7", CampaignID: "camp", Status: calls.CallStatusPending},
		{ID: "c8", CampaignID: "camp", Status: calls.CallStatusRinging},
	}
	if err := m.InsertCalls(context.Background(), rows); err != nil {
		t.Fatalf("InsertCalls: %v", err)
	}
	return m
}

func TestCampaignReportAggregates(t *testing.T) {
	svc := NewService(seedReportData(t))

	rep, err := svc.CampaignReport(context.Background(), "camp")
	if err != nil {
		t.Fatalf("CampaignReport: %v", err)
	}

	if rep.TotalCalls != 8 || rep.CompletedCalls != 3 || rep.FailedCalls != 2 {
		t.Fatalf("counts = %+v", rep)
	}
	if rep.CancelledCalls != 1 || rep.PendingCalls != 1 || rep.ActiveCalls != 1 || rep.RetriedCalls != 1 {
		t.Fatalf("counts = %+v", rep)
	}

	// Average covers only completed calls that reported a duration.
	if rep.TotalDurationSeconds != 300 || rep.AverageDurationSeconds != 150 {
		t.Fatalf("durations = %d/%d", rep.TotalDurationSeconds, rep.AverageDurationSeconds)
	}

	if rep.SentimentPositive != 1 || rep.SentimentNeutral != 1 || rep.SentimentNegative != 1 {
		t.Fatalf("sentiments = %+v", rep)
	}

	if len(rep.TopIssues) != 2 {
		t.Fatalf("top issues = %+v", rep.TopIssues)
	}
	if rep.TopIssues[0].Issue != "billing" || rep.TopIssues[0].Count != 2 {
		t.Fatalf("issue normalization failed: %+v", rep.TopIssues)
	}
	if rep.TopIssues[1].Issue != "speed" || rep.TopIssues[1].Count != 1 {
		t.Fatalf("top issues = %+v", rep.TopIssues)
	}

	if rep.FailureReasons["busy"] != 1 || rep.FailureReasons["no_answer"] != 1 {
		t.Fatalf("failure reasons = %+v", rep.FailureReasons)
	}
}

func TestCampaignReportUnknownCampaign(t *testing.T) {
	svc := NewService(store.NewMemory())

	if _, err := svc.CampaignReport(context.Background(), "missing"); err != store.ErrNotFound {
		t.Fatalf("err = %v, want store.ErrNotFound", err)
	}
	if _, err := svc.CampaignReport(context.Background(), ""); err != ErrInvalidRequest {
		t.Fatalf("err = %v, want ErrInvalidRequest", err)
	}
}
