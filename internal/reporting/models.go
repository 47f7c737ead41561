package reporting

import (
	"time"

	"callpulse/internal/campaign"
)

// CampaignReport aggregates the outcome of a campaign's calls for the
// reporting endpoint. It is computed on demand from the immutable call rows.
type CampaignReport struct {
	CampaignID string          `json:"campaign_id"`
	Name       string          `json:"name"`
	Status     campaign.Status `json:"status"`

	TotalCalls     int `json:"total_calls"`
	CompletedCalls int `json:"completed_calls"`
	FailedCalls    int `json:"failed_calls"`
	CancelledCalls int `json:"cancelled_calls"`
	PendingCalls   int `json:"pending_calls"`
	ActiveCalls    int `json:"active_calls"`
	RetriedCalls   int `json:"retried_calls"`

	TotalDurationSeconds   int `json:"total_duration_seconds"`
	AverageDurationSeconds int `json:"average_duration_seconds"`

	// Sentiment breakdown over completed calls that were summarized.
	SentimentPositive int `json:"sentiment_positive"`
	SentimentNeutral  int `json:"sentiment_neutral"`
	SentimentNegative int `json:"sentiment_negative"`

	// TopIssues are the most frequent key issues across summaries,
	// most common first.
	TopIssues []IssueCount `json:"top_issues"`

	// FailureReasons counts failed calls by classified reason.
	FailureReasons map[string]int `json:"failure_reasons,omitempty"`

	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

type IssueCount struct {
	Issue string `json:"issue"`
	Count int    `json:"count"`
}
