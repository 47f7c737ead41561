package calls

import "time"

// Call is one outbound survey call owned by a campaign.
//
// Customer name/phone are denormalized at scheduling time on purpose: a later
// edit to the customer record must not change what an already-scheduled call
// dials or how the script addresses the customer.
//
// Rows are never deleted. Terminal calls are retained for audit and reporting.
type Call struct {
	ID         string `json:"id" db:"id"`
	CampaignID string `json:"campaign_id" db:"campaign_id"`
	CustomerID string `json:"customer_id" db:"customer_id"`

	CustomerName string `json:"customer_name" db:"customer_name"`
	Phone        string `json:"phone" db:"phone"`

	Status CallStatus `json:"status" db:"status"`

	// ProviderCallID is assigned once dialing begins (Twilio CallSid).
	ProviderCallID string `json:"provider_call_id,omitempty" db:"provider_call_id"`

	ScheduledAt time.Time  `json:"scheduled_at" db:"scheduled_at"`
	StartedAt   *time.Time `json:"started_at,omitempty" db:"started_at"`
	EndedAt     *time.Time `json:"ended_at,omitempty" db:"ended_at"`

	DurationSeconds int `json:"duration_seconds" db:"duration_seconds"`

	Transcript   string   `json:"transcript,omitempty" db:"transcript"`
	Summary      string   `json:"summary,omitempty" db:"summary"`
	Sentiment    string   `json:"sentiment,omitempty" db:"sentiment"`
	KeyIssues    []string `json:"key_issues,omitempty" db:"key_issues"`
	RecordingURL string   `json:"recording_url,omitempty" db:"recording_url"`

	// ErrorMessage keeps the raw provider text for audit.
	// Retry decisions are made on FailureReason, never on this string.
	ErrorMessage  string        `json:"error_message,omitempty" db:"error_message"`
	FailureReason FailureReason `json:"failure_reason,omitempty" db:"failure_reason"`

	RetryCount int `json:"retry_count" db:"retry_count"`
	MaxRetries int `json:"max_retries" db:"max_retries"`

	// ServiceTags snapshot the customer's service tags at scheduling time.
	ServiceTags []string `json:"service_tags,omitempty" db:"service_tags"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type CallStatus string

const (
	CallStatusPending   CallStatus = "pending"
	CallStatusCalling   CallStatus = "calling"
	CallStatusRinging   CallStatus = "ringing"
	CallStatusAnswered  CallStatus = "answered"
	CallStatusCompleted CallStatus = "completed"
	CallStatusFailed    CallStatus = "failed"
	CallStatusCancelled CallStatus = "cancelled"

	// Reserved statuses. Recognized by validation and manual overrides,
	// never produced by the automatic webhook/turn logic.
	CallStatusVoicemail CallStatus = "voicemail"
	CallStatusRetry     CallStatus = "retry"
)

// Valid reports whether s is a recognized call status, including the
// reserved ones reachable only through explicit manual override.
func (s CallStatus) Valid() bool {
	switch s {
	case CallStatusPending, CallStatusCalling, CallStatusRinging, CallStatusAnswered,
		CallStatusCompleted, CallStatusFailed, CallStatusCancelled,
		CallStatusVoicemail, CallStatusRetry:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further automatic transition may leave s.
// failed is terminal for webhook purposes; only the retry re-queue may
// move a failed call back to pending.
func (s CallStatus) IsTerminal() bool {
	switch s {
	case CallStatusCompleted, CallStatusFailed, CallStatusCancelled, CallStatusVoicemail:
		return true
	default:
		return false
	}
}

// IsActive reports whether the call occupies a concurrency slot.
func (s CallStatus) IsActive() bool {
	switch s {
	case CallStatusCalling, CallStatusRinging, CallStatusAnswered:
		return true
	default:
		return false
	}
}

// ActiveStatuses are the statuses counted against a campaign's concurrency limit.
func ActiveStatuses() []CallStatus {
	return []CallStatus{CallStatusCalling, CallStatusRinging, CallStatusAnswered}
}

// FailureReason is a closed classification of why a call failed.
// It is populated by the telephony gateway's status mapping so retry policy
// never has to pattern-match provider error prose.
type FailureReason string

const (
	FailureReasonNone             FailureReason = ""
	FailureReasonBusy             FailureReason = "busy"
	FailureReasonNoAnswer         FailureReason = "no_answer"
	FailureReasonCallFailed       FailureReason = "call_failed"
	FailureReasonGatewayError     FailureReason = "gateway_error"
	FailureReasonCustomerNotFound FailureReason = "customer_not_found"
	FailureReasonInvalidPhone     FailureReason = "invalid_phone"
)

// StatusEvent is a provider status callback translated to internal vocabulary.
type StatusEvent struct {
	ProviderCallID  string
	Status          CallStatus
	FailureReason   FailureReason
	DurationSeconds int
	RawStatus       string
	ErrorText       string
}

// MapProviderStatus translates Twilio's status vocabulary into the internal
// call lifecycle. ok is false for provider statuses the orchestrator ignores
// (queued, initiated and any future additions).
func MapProviderStatus(providerStatus string) (status CallStatus, reason FailureReason, ok bool) {
	switch providerStatus {
	case "ringing":
		return CallStatusRinging, FailureReasonNone, true
	case "in-progress", "answered":
		return CallStatusAnswered, FailureReasonNone, true
	case "completed":
		return CallStatusCompleted, FailureReasonNone, true
	case "busy":
		return CallStatusFailed, FailureReasonBusy, true
	case "no-answer":
		return CallStatusFailed, FailureReasonNoAnswer, true
	case "failed":
		return CallStatusFailed, FailureReasonCallFailed, true
	case "canceled":
		return CallStatusCancelled, FailureReasonNone, true
	default:
		return "", FailureReasonNone, false
	}
}
