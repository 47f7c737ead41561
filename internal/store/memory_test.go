package store

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"callpulse/internal/calls"
	"callpulse/internal/campaign"
)

var t0 = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

func seedCall(t *testing.T, m *Memory, id, campaignID string, status calls.CallStatus, created time.Time) calls.Call {
	t.Helper()
	c := calls.Call{
		ID:          id,
		CampaignID:  campaignID,
		CustomerID:  "cust-" + id,
		Status:      status,
		ScheduledAt: created,
		CreatedAt:   created,
		UpdatedAt:   created,
	}
	if err := m.InsertCalls(context.Background(), []calls.Call{c}); err != nil {
		t.Fatalf("InsertCalls: %v", err)
	}
	return c
}

func TestClaimPendingCallWinsOnce(t *testing.T) {
	m := NewMemory()
	seedCall(t, m, "c1", "camp", calls.CallStatusPending, t0)

	const racers = 16
	wins := make(chan bool, racers)
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := m.ClaimPendingCall(context.Background(), "c1", t0)
			if err != nil {
				t.Errorf("claim: %v", err)
				return
			}
			wins <- ok
		}()
	}
	wg.Wait()
	close(wins)

	won := 0
	for ok := range wins {
		if ok {
			won++
		}
	}
	if won != 1 {
		t.Fatalf("claim won %d times, want exactly 1", won)
	}

	got, _ := m.GetCallByID(context.Background(), "c1")
	if got.Status != calls.CallStatusCalling || got.StartedAt == nil {
		t.Fatalf("claimed call: status=%s started=%v", got.Status, got.StartedAt)
	}
}

func TestClaimPendingCallRejectsNonPending(t *testing.T) {
	m := NewMemory()
	seedCall(t, m, "c1", "camp", calls.CallStatusFailed, t0)

	ok, err := m.ClaimPendingCall(context.Background(), "c1", t0)
	if err != nil || ok {
		t.Fatalf("claim on failed call: ok=%v err=%v", ok, err)
	}
	if _, err := m.ClaimPendingCall(context.Background(), "missing", t0); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateCallStatusPartialFields(t *testing.T) {
	m := NewMemory()
	seedCall(t, m, "c1", "camp", calls.CallStatusAnswered, t0)

	later := t0.Add(2 * time.Minute)
	summary := "short call"
	dur := 95
	err := m.UpdateCallStatus(context.Background(), "c1", calls.CallStatusCompleted, CallFields{
		Summary:         &summary,
		DurationSeconds: &dur,
		EndedAt:         &later,
		UpdatedAt:       later,
	})
	if err != nil {
		t.Fatalf("UpdateCallStatus: %v", err)
	}

	got, _ := m.GetCallByID(context.Background(), "c1")
	if got.Status != calls.CallStatusCompleted || got.Summary != summary || got.DurationSeconds != dur {
		t.Fatalf("partial update lost fields: %+v", got)
	}
	if got.Transcript != "" {
		t.Fatalf("untouched field changed")
	}
	if !got.UpdatedAt.Equal(later) {
		t.Fatalf("updated_at = %v", got.UpdatedAt)
	}
}

func TestGetCallByProviderIDFiltersStatus(t *testing.T) {
	m := NewMemory()
	c := seedCall(t, m, "c1", "camp", calls.CallStatusRinging, t0)
	sid := "SID-1"
	if err := m.UpdateCallStatus(context.Background(), c.ID, calls.CallStatusRinging, CallFields{ProviderCallID: &sid}); err != nil {
		t.Fatalf("set provider id: %v", err)
	}

	got, err := m.GetCallByProviderID(context.Background(), sid, calls.ActiveStatuses())
	if err != nil || got.ID != "c1" {
		t.Fatalf("lookup among active: %v %v", got.ID, err)
	}

	// A settled call must not match: webhook replays see not-found.
	if err := m.UpdateCallStatus(context.Background(), c.ID, calls.CallStatusCompleted, CallFields{}); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if _, err := m.GetCallByProviderID(context.Background(), sid, calls.ActiveStatuses()); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound for settled call, got %v", err)
	}
}

func TestListCallsFilterSortPaginate(t *testing.T) {
	m := NewMemory()
	for i := 0; i < 5; i++ {
		status := calls.CallStatusPending
		if i%2 == 1 {
			status = calls.CallStatusCompleted
		}
		seedCall(t, m, fmt.Sprintf("c%d", i), "camp", status, t0.Add(time.Duration(i)*time.Minute))
	}
	seedCall(t, m, "other", "camp2", calls.CallStatusPending, t0)

	rows, total, err := m.ListCalls(context.Background(), ListCallsFilter{CampaignID: "camp"})
	if err != nil || total != 5 || len(rows) != 5 {
		t.Fatalf("list all: total=%d len=%d err=%v", total, len(rows), err)
	}

	rows, total, err = m.ListCalls(context.Background(), ListCallsFilter{
		CampaignID: "camp",
		Status:     calls.CallStatusCompleted,
		SortDesc:   true,
		Limit:      1,
	})
	if err != nil || total != 2 || len(rows) != 1 {
		t.Fatalf("filtered: total=%d len=%d err=%v", total, len(rows), err)
	}
	if rows[0].ID != "c3" {
		t.Fatalf("desc sort head = %s, want c3", rows[0].ID)
	}

	rows, _, err = m.ListCalls(context.Background(), ListCallsFilter{CampaignID: "camp", Offset: 4})
	if err != nil || len(rows) != 1 || rows[0].ID != "c4" {
		t.Fatalf("offset page: %+v err=%v", rows, err)
	}
}

func TestListCallsStableOnEqualSortKeys(t *testing.T) {
	m := NewMemory()
	for i := 0; i < 4; i++ {
		seedCall(t, m, fmt.Sprintf("c%d", i), "camp", calls.CallStatusPending, t0)
	}

	for _, desc := range []bool{false, true} {
		rows, _, err := m.ListCalls(context.Background(), ListCallsFilter{CampaignID: "camp", SortDesc: desc})
		if err != nil {
			t.Fatalf("desc=%v: %v", desc, err)
		}
		// All created_at values tie, so insertion order must survive either
		// sort direction.
		for i, r := range rows {
			if want := fmt.Sprintf("c%d", i); r.ID != want {
				t.Fatalf("desc=%v row %d = %s, want %s", desc, i, r.ID, want)
			}
		}
	}
}

func TestCampaignCallCounts(t *testing.T) {
	m := NewMemory()
	camp := campaign.Campaign{ID: "camp", Name: "n", Status: campaign.StatusRunning, CreatedAt: t0, UpdatedAt: t0}
	if err := m.InsertCampaign(context.Background(), camp); err != nil {
		t.Fatalf("InsertCampaign: %v", err)
	}
	seedCall(t, m, "c1", "camp", calls.CallStatusPending, t0)
	seedCall(t, m, "c2", "camp", calls.CallStatusRinging, t0)
	seedCall(t, m, "c3", "camp", calls.CallStatusCompleted, t0)

	counts, err := m.CampaignCallCounts(context.Background(), "camp")
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if counts.Total() != 3 || counts.InProgress() != 1 || counts[calls.CallStatusPending] != 1 {
		t.Fatalf("counts = %+v", counts)
	}

	if _, err := m.CampaignCallCounts(context.Background(), "missing"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateCampaignStatusStampsCompletion(t *testing.T) {
	m := NewMemory()
	camp := campaign.Campaign{ID: "camp", Status: campaign.StatusRunning, CreatedAt: t0, UpdatedAt: t0}
	if err := m.InsertCampaign(context.Background(), camp); err != nil {
		t.Fatalf("InsertCampaign: %v", err)
	}

	later := t0.Add(time.Hour)
	if err := m.UpdateCampaignStatus(context.Background(), "camp", campaign.StatusCompleted, later); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, _ := m.GetCampaignByID(context.Background(), "camp")
	if got.CompletedAt == nil || !got.CompletedAt.Equal(later) {
		t.Fatalf("completed_at = %v", got.CompletedAt)
	}
}
