package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"callpulse/internal/calls"
	"callpulse/internal/campaign"
)

// Memory is an in-memory Store for tests and early development.
// It mirrors the Postgres conditional-update semantics, including the
// pending -> calling claim, under a single mutex.
type Memory struct {
	mu sync.Mutex

	customers map[string]campaign.Customer
	campaigns map[string]campaign.Campaign
	calls     map[string]calls.Call

	// order preserves call insertion order for deterministic listings.
	order []string
}

func NewMemory() *Memory {
	return &Memory{
		customers: map[string]campaign.Customer{},
		campaigns: map[string]campaign.Campaign{},
		calls:     map[string]calls.Call{},
	}
}

func (m *Memory) InsertCustomer(ctx context.Context, c campaign.Customer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.customers[c.ID] = c
	return nil
}

func (m *Memory) InsertCustomers(ctx context.Context, cs []campaign.Customer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range cs {
		m.customers[c.ID] = c
	}
	return nil
}

func (m *Memory) GetCustomerByID(ctx context.Context, id string) (campaign.Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.customers[id]
	if !ok {
		return campaign.Customer{}, ErrNotFound
	}
	return c, nil
}

func (m *Memory) GetCustomersByServiceTags(ctx context.Context, tags []string) ([]campaign.Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	want := map[string]struct{}{}
	for _, t := range tags {
		want[t] = struct{}{}
	}
	out := make([]campaign.Customer, 0)
	for _, c := range m.customers {
		for _, t := range c.ServiceTags {
			if _, ok := want[t]; ok {
				out = append(out, c)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) InsertCampaign(ctx context.Context, c campaign.Campaign) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.campaigns[c.ID] = c
	return nil
}

func (m *Memory) GetCampaignByID(ctx context.Context, id string) (campaign.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok {
		return campaign.Campaign{}, ErrNotFound
	}
	return c, nil
}

func (m *Memory) UpdateCampaignStatus(ctx context.Context, id string, status campaign.Status, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok {
		return ErrNotFound
	}
	c.Status = status
	c.UpdatedAt = now
	switch status {
	case campaign.StatusCompleted, campaign.StatusCancelled, campaign.StatusError:
		if c.CompletedAt == nil {
			t := now
			c.CompletedAt = &t
		}
	}
	m.campaigns[id] = c
	return nil
}

func (m *Memory) CreateCampaignWithCalls(ctx context.Context, c campaign.Campaign, cs []calls.Call) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.campaigns[c.ID] = c
	for _, call := range cs {
		if _, ok := m.calls[call.ID]; !ok {
			m.order = append(m.order, call.ID)
		}
		m.calls[call.ID] = call
	}
	return nil
}

func (m *Memory) InsertCalls(ctx context.Context, cs []calls.Call) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range cs {
		if _, ok := m.calls[c.ID]; !ok {
			m.order = append(m.order, c.ID)
		}
		m.calls[c.ID] = c
	}
	return nil
}

func (m *Memory) GetCallByID(ctx context.Context, id string) (calls.Call, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.calls[id]
	if !ok {
		return calls.Call{}, ErrNotFound
	}
	return c, nil
}

func (m *Memory) GetCallsByStatus(ctx context.Context, status calls.CallStatus, limit int) ([]calls.Call, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]calls.Call, 0)
	for _, id := range m.order {
		c := m.calls[id]
		if c.Status != status {
			continue
		}
		out = append(out, c)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *Memory) GetCallsByCampaign(ctx context.Context, campaignID string) ([]calls.Call, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]calls.Call, 0)
	for _, id := range m.order {
		c := m.calls[id]
		if c.CampaignID == campaignID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *Memory) GetCallsByCampaignAndStatus(ctx context.Context, campaignID string, status calls.CallStatus, limit int) ([]calls.Call, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]calls.Call, 0)
	for _, id := range m.order {
		c := m.calls[id]
		if c.CampaignID != campaignID || c.Status != status {
			continue
		}
		out = append(out, c)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *Memory) CountCallsByStatuses(ctx context.Context, campaignID string, statuses []calls.CallStatus) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	want := map[calls.CallStatus]struct{}{}
	for _, s := range statuses {
		want[s] = struct{}{}
	}
	n := 0
	for _, c := range m.calls {
		if c.CampaignID != campaignID {
			continue
		}
		if _, ok := want[c.Status]; ok {
			n++
		}
	}
	return n, nil
}

func (m *Memory) UpdateCallStatus(ctx context.Context, id string, status calls.CallStatus, fields CallFields) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.calls[id]
	if !ok {
		return ErrNotFound
	}
	c.Status = status
	applyFields(&c, fields)
	m.calls[id] = c
	return nil
}

func (m *Memory) ClaimPendingCall(ctx context.Context, id string, startedAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.calls[id]
	if !ok {
		return false, ErrNotFound
	}
	if c.Status != calls.CallStatusPending {
		return false, nil
	}
	c.Status = calls.CallStatusCalling
	t := startedAt
	c.StartedAt = &t
	c.UpdatedAt = startedAt
	m.calls[id] = c
	return true, nil
}

func (m *Memory) GetCallByProviderID(ctx context.Context, providerCallID string, among []calls.CallStatus) (calls.Call, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	want := map[calls.CallStatus]struct{}{}
	for _, s := range among {
		want[s] = struct{}{}
	}
	for _, id := range m.order {
		c := m.calls[id]
		if c.ProviderCallID != providerCallID || c.ProviderCallID == "" {
			continue
		}
		if _, ok := want[c.Status]; ok {
			return c, nil
		}
	}
	return calls.Call{}, ErrNotFound
}

func (m *Memory) CampaignCallCounts(ctx context.Context, campaignID string) (StatusCounts, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.campaigns[campaignID]; !ok {
		return nil, ErrNotFound
	}
	out := StatusCounts{}
	for _, c := range m.calls {
		if c.CampaignID == campaignID {
			out[c.Status]++
		}
	}
	return out, nil
}

func (m *Memory) ListCalls(ctx context.Context, f ListCallsFilter) ([]calls.Call, int, error) {
	f = f.normalized()
	m.mu.Lock()
	defer m.mu.Unlock()

	matched := make([]calls.Call, 0)
	for _, id := range m.order {
		c := m.calls[id]
		if f.CampaignID != "" && c.CampaignID != f.CampaignID {
			continue
		}
		if f.Status != "" && c.Status != f.Status {
			continue
		}
		matched = append(matched, c)
	}

	sort.SliceStable(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if f.SortDesc {
			a, b = b, a
		}
		switch f.SortBy {
		case "scheduled_at":
			return a.ScheduledAt.Before(b.ScheduledAt)
		case "status":
			return a.Status < b.Status
		default:
			return a.CreatedAt.Before(b.CreatedAt)
		}
	})

	total := len(matched)
	if f.Offset >= total {
		return []calls.Call{}, total, nil
	}
	end := f.Offset + f.Limit
	if end > total {
		end = total
	}
	return matched[f.Offset:end], total, nil
}

func applyFields(c *calls.Call, f CallFields) {
	if f.ProviderCallID != nil {
		c.ProviderCallID = *f.ProviderCallID
	}
	if f.StartedAt != nil {
		c.StartedAt = f.StartedAt
	}
	if f.EndedAt != nil {
		c.EndedAt = f.EndedAt
	}
	if f.DurationSeconds != nil {
		c.DurationSeconds = *f.DurationSeconds
	}
	if f.Transcript != nil {
		c.Transcript = *f.Transcript
	}
	if f.Summary != nil {
		c.Summary = *f.Summary
	}
	if f.Sentiment != nil {
		c.Sentiment = *f.Sentiment
	}
	if f.KeyIssues != nil {
		c.KeyIssues = *f.KeyIssues
	}
	if f.RecordingURL != nil {
		c.RecordingURL = *f.RecordingURL
	}
	if f.ErrorMessage != nil {
		c.ErrorMessage = *f.ErrorMessage
	}
	if f.FailureReason != nil {
		c.FailureReason = *f.FailureReason
	}
	if f.RetryCount != nil {
		c.RetryCount = *f.RetryCount
	}
	if !f.UpdatedAt.IsZero() {
		c.UpdatedAt = f.UpdatedAt
	}
}
