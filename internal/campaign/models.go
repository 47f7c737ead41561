package campaign

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"callpulse/internal/calls"
)

var ErrValidation = errors.New("campaign: validation failed")

// MaxConcurrencyLimit is the hard ceiling on per-campaign concurrent calls.
// Requests above it are clamped, not rejected.
const MaxConcurrencyLimit = 10

const (
	DefaultMaxConcurrentCalls = 3
	DefaultMaxRetries         = 2
	DefaultRetryDelay         = 5 * time.Minute
)

// Customer is created at import time and immutable afterwards except for
// eligibility/priority recompute. Calls snapshot name/phone at scheduling
// time, so later customer edits never affect scheduled work.
type Customer struct {
	ID          string       `json:"id" db:"id"`
	Name        string       `json:"name" db:"name"`
	Phone       string       `json:"phone" db:"phone"`
	Reason      string       `json:"reason,omitempty" db:"reason"`
	ServiceTags []string     `json:"service_tags" db:"service_tags"`
	Priority    PriorityTier `json:"priority" db:"priority"`
	Eligible    bool         `json:"eligible" db:"eligible"`
	CreatedAt   time.Time    `json:"created_at" db:"created_at"`
}

type PriorityTier string

const (
	PriorityHigh   PriorityTier = "high"
	PriorityMedium PriorityTier = "medium"
	PriorityLow    PriorityTier = "low"
)

// Campaign owns many calls (1:N). Status is mutated only by the orchestrator;
// rows are never deleted, they end in a terminal status.
type Campaign struct {
	ID     string `json:"id" db:"id"`
	Name   string `json:"name" db:"name"`
	Status Status `json:"status" db:"status"`

	TargetServiceTags []string `json:"target_service_tags" db:"target_service_tags"`

	// CustomerCount equals the number of calls created at start time.
	// It never shrinks.
	CustomerCount int `json:"customer_count" db:"customer_count"`

	MaxConcurrentCalls int         `json:"max_concurrent_calls" db:"max_concurrent_calls"`
	RetryPolicy        RetryPolicy `json:"retry_policy" db:"retry_policy"`

	ScriptTemplate string `json:"script_template" db:"script_template"`

	StartedAt   *time.Time `json:"started_at,omitempty" db:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty" db:"completed_at"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}

type Status string

const (
	StatusDraft     Status = "draft"
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused" // reserved for manual control
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusError     Status = "error"
)

func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusRunning, StatusPaused, StatusCompleted, StatusCancelled, StatusError:
		return true
	default:
		return false
	}
}

// RetryPolicy controls the failed -> pending re-queue cycle.
type RetryPolicy struct {
	MaxRetries int           `json:"max_retries"`
	RetryDelay time.Duration `json:"retry_delay"`

	RetryOnBusy     bool `json:"retry_on_busy"`
	RetryOnNoAnswer bool `json:"retry_on_no_answer"`
	RetryOnFailed   bool `json:"retry_on_failed"`
}

// Allows reports whether the policy re-queues a call that failed for the
// given reason. Retry budget is checked separately against the call.
func (p RetryPolicy) Allows(reason calls.FailureReason) bool {
	switch reason {
	case calls.FailureReasonBusy:
		return p.RetryOnBusy
	case calls.FailureReasonNoAnswer:
		return p.RetryOnNoAnswer
	case calls.FailureReasonCallFailed, calls.FailureReasonGatewayError:
		return p.RetryOnFailed
	default:
		return false
	}
}

func (p RetryPolicy) Validate() error {
	if p.MaxRetries < 0 {
		return fmt.Errorf("%w: max_retries must be >= 0", ErrValidation)
	}
	if p.RetryDelay < time.Minute {
		return fmt.Errorf("%w: retry_delay must be at least 1 minute", ErrValidation)
	}
	return nil
}

// CustomerInput is one row of the customer list submitted at campaign start.
type CustomerInput struct {
	Name        string   `json:"name"`
	Phone       string   `json:"phone"`
	Reason      string   `json:"reason,omitempty"`
	ServiceTags []string `json:"service_tags,omitempty"`
}

// StartConfig is the validated input to Orchestrator.StartCampaign. A nil
// RetryPolicy means "not specified" and gets the default policy; an explicit
// policy is kept as-is, including an all-zero one that disables retries.
type StartConfig struct {
	Name               string          `json:"name"`
	Customers          []CustomerInput `json:"customers"`
	TargetServiceTags  []string        `json:"target_service_tags"`
	MaxConcurrentCalls int             `json:"max_concurrent_calls"`
	RetryPolicy        *RetryPolicy    `json:"retry_policy,omitempty"`
	ScriptTemplate     string          `json:"script_template,omitempty"`
}

// Normalize validates cfg, applies defaults and clamps the concurrency limit.
// It must reject bad input before any record is persisted.
func (cfg *StartConfig) Normalize() error {
	if len(cfg.Customers) == 0 {
		return fmt.Errorf("%w: customer list is empty", ErrValidation)
	}
	if len(cfg.TargetServiceTags) == 0 {
		return fmt.Errorf("%w: target service tags are empty", ErrValidation)
	}
	for i, cu := range cfg.Customers {
		if strings.TrimSpace(cu.Name) == "" {
			return fmt.Errorf("%w: customer %d has no name", ErrValidation, i)
		}
		if strings.TrimSpace(cu.Phone) == "" {
			return fmt.Errorf("%w: customer %d has no phone", ErrValidation, i)
		}
	}

	if cfg.Name == "" {
		cfg.Name = fmt.Sprintf("survey-%s", strings.Join(cfg.TargetServiceTags, "-"))
	}
	if cfg.MaxConcurrentCalls <= 0 {
		cfg.MaxConcurrentCalls = DefaultMaxConcurrentCalls
	}
	if cfg.MaxConcurrentCalls > MaxConcurrencyLimit {
		cfg.MaxConcurrentCalls = MaxConcurrencyLimit
	}
	if cfg.RetryPolicy == nil {
		cfg.RetryPolicy = &RetryPolicy{
			MaxRetries:      DefaultMaxRetries,
			RetryDelay:      DefaultRetryDelay,
			RetryOnBusy:     true,
			RetryOnNoAnswer: true,
		}
	}
	if cfg.RetryPolicy.RetryDelay == 0 {
		cfg.RetryPolicy.RetryDelay = DefaultRetryDelay
	}
	if err := cfg.RetryPolicy.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(cfg.ScriptTemplate) == "" {
		cfg.ScriptTemplate = DefaultScriptTemplate(cfg.TargetServiceTags)
	}
	return nil
}

// DefaultScriptTemplate builds the survey prompt used when a campaign does
// not provide its own script.
func DefaultScriptTemplate(serviceTags []string) string {
	services := strings.Join(serviceTags, ", ")
	return "You are a courteous phone agent running a short customer feedback survey about the following services: " + services + ". " +
		"Ask one question at a time, keep each reply under two sentences, thank the customer for their time, " +
		"and end the call politely once you have their overall impression and any specific complaint."
}
