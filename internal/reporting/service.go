package reporting

import (
	"context"
	"errors"
	"sort"
	"strings"

	"callpulse/internal/calls"
	"callpulse/internal/campaign"
)

var ErrInvalidRequest = errors.New("reporting: invalid request")

// maxTopIssues bounds the issue list returned in a report.
const maxTopIssues = 10

// Repository abstracts data access for reporting. The main store satisfies
// it; reports only ever read.
type Repository interface {
	GetCampaignByID(ctx context.Context, id string) (campaign.Campaign, error)
	GetCallsByCampaign(ctx context.Context, campaignID string) ([]calls.Call, error)
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service { return &Service{repo: repo} }

// CampaignReport aggregates every call of the campaign into outcome,
// duration, sentiment and issue metrics.
func (s *Service) CampaignReport(ctx context.Context, campaignID string) (CampaignReport, error) {
	if campaignID == "" {
		return CampaignReport{}, ErrInvalidRequest
	}
	if s.repo == nil {
		return CampaignReport{}, errors.New("reporting: repository not configured")
	}

	camp, err := s.repo.GetCampaignByID(ctx, campaignID)
	if err != nil {
		return CampaignReport{}, err
	}
	rows, err := s.repo.GetCallsByCampaign(ctx, campaignID)
	if err != nil {
		return CampaignReport{}, err
	}

	out := CampaignReport{
		CampaignID:  camp.ID,
		Name:        camp.Name,
		Status:      camp.Status,
		StartedAt:   camp.StartedAt,
		CompletedAt: camp.CompletedAt,
	}

	issues := map[string]int{}
	reasons := map[string]int{}
	completedWithDuration := 0

	for _, c := range rows {
		out.TotalCalls++
		if c.RetryCount > 0 {
			out.RetriedCalls++
		}
		switch {
		case c.Status == calls.CallStatusCompleted:
			out.CompletedCalls++
			if c.DurationSeconds > 0 {
				out.TotalDurationSeconds += c.DurationSeconds
				completedWithDuration++
			}
			switch c.Sentiment {
			case "positive":
				out.SentimentPositive++
			case "negative":
				out.SentimentNegative++
			case "neutral":
				out.SentimentNeutral++
			}
			for _, issue := range c.KeyIssues {
				k := strings.ToLower(strings.TrimSpace(issue))
				if k != "" {
					issues[k]++
				}
			}
		case c.Status == calls.CallStatusFailed:
			out.FailedCalls++
			if c.FailureReason != calls.FailureReasonNone {
				reasons[string(c.FailureReason)]++
			}
		case c.Status == calls.CallStatusCancelled:
			out.CancelledCalls++
		case c.Status == calls.CallStatusPending:
			out.PendingCalls++
		case c.Status.IsActive():
			out.ActiveCalls++
		}
	}

	if completedWithDuration > 0 {
		out.AverageDurationSeconds = out.TotalDurationSeconds / completedWithDuration
	}
	out.TopIssues = topIssues(issues, maxTopIssues)
	if len(reasons) > 0 {
		out.FailureReasons = reasons
	}
	return out, nil
}

func topIssues(counts map[string]int, limit int) []IssueCount {
	out := make([]IssueCount, 0, len(counts))
	for k, v := range counts {
		out = append(out, IssueCount{Issue: k, Count: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count == out[j].Count {
			return out[i].Issue < out[j].Issue
		}
		return out[i].Count > out[j].Count
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
