package campaign

import (
	"errors"
	"testing"
	"time"

	"callpulse/internal/calls"
)

func validConfig() StartConfig {
	return StartConfig{
		Name: "june-survey",
		Customers: []CustomerInput{
			{Name: "Dana", Phone: "+15551230001"},
			{Name: "Lee", Phone: "+15551230002"},
		},
		TargetServiceTags:  []string{"fiber_internet"},
		MaxConcurrentCalls: 3,
		RetryPolicy:        &RetryPolicy{MaxRetries: 1, RetryDelay: time.Minute, RetryOnBusy: true},
	}
}

func TestNormalizeRejectsBadInput(t *testing.T) {
	cases := map[string]func(*StartConfig){
		"no customers":      func(c *StartConfig) { c.Customers = nil },
		"no service tags":   func(c *StartConfig) { c.TargetServiceTags = nil },
		"customer no name":  func(c *StartConfig) { c.Customers[1].Name = "  " },
		"customer no phone": func(c *StartConfig) { c.Customers[0].Phone = "" },
		"negative retries":  func(c *StartConfig) { c.RetryPolicy.MaxRetries = -1 },
		"short retry delay": func(c *StartConfig) { c.RetryPolicy.RetryDelay = time.Second },
	}
	for name, mutate := range cases {
		cfg := validConfig()
		mutate(&cfg)
		if err := cfg.Normalize(); !errors.Is(err, ErrValidation) {
			t.Fatalf("%s: err = %v, want ErrValidation", name, err)
		}
	}
}

func TestNormalizeAppliesDefaults(t *testing.T) {
	cfg := StartConfig{
		Customers:         []CustomerInput{{Name: "Dana", Phone: "+15551230001"}},
		TargetServiceTags: []string{"fiber_internet", "iptv"},
	}
	if err := cfg.Normalize(); err != nil {
		t.Fatalf("Normalize: %v", err)
	}

	if cfg.Name != "survey-fiber_internet-iptv" {
		t.Fatalf("default name = %q", cfg.Name)
	}
	if cfg.MaxConcurrentCalls != DefaultMaxConcurrentCalls {
		t.Fatalf("concurrency = %d", cfg.MaxConcurrentCalls)
	}
	if cfg.RetryPolicy.MaxRetries != DefaultMaxRetries || cfg.RetryPolicy.RetryDelay != DefaultRetryDelay {
		t.Fatalf("retry policy = %+v", cfg.RetryPolicy)
	}
	if !cfg.RetryPolicy.RetryOnBusy || !cfg.RetryPolicy.RetryOnNoAnswer || cfg.RetryPolicy.RetryOnFailed {
		t.Fatalf("default retry flags = %+v", cfg.RetryPolicy)
	}
	if cfg.ScriptTemplate == "" {
		t.Fatal("default script template not applied")
	}
}

func TestNormalizeClampsConcurrency(t *testing.T) {
	cfg := validConfig()
	cfg.MaxConcurrentCalls = 50
	if err := cfg.Normalize(); err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if cfg.MaxConcurrentCalls != MaxConcurrencyLimit {
		t.Fatalf("concurrency = %d, want clamp to %d", cfg.MaxConcurrentCalls, MaxConcurrencyLimit)
	}
}

func TestNormalizeKeepsExplicitNoRetryPolicy(t *testing.T) {
	// MaxRetries 0 with a flag set means "never retry", not "use defaults".
	cfg := validConfig()
	cfg.RetryPolicy = &RetryPolicy{MaxRetries: 0, RetryDelay: time.Minute, RetryOnBusy: true}
	if err := cfg.Normalize(); err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if cfg.RetryPolicy.MaxRetries != 0 || cfg.RetryPolicy.RetryOnNoAnswer {
		t.Fatalf("explicit policy rewritten: %+v", cfg.RetryPolicy)
	}
}

func TestNormalizeKeepsAllZeroRetryPolicy(t *testing.T) {
	// An explicitly provided policy with every retry flag off disables
	// retries entirely; only an absent policy gets the defaults.
	cfg := validConfig()
	cfg.RetryPolicy = &RetryPolicy{RetryDelay: time.Minute}
	if err := cfg.Normalize(); err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	p := cfg.RetryPolicy
	if p.MaxRetries != 0 || p.RetryOnBusy || p.RetryOnNoAnswer || p.RetryOnFailed {
		t.Fatalf("no-retry policy rewritten: %+v", p)
	}
}

func TestRetryPolicyAllows(t *testing.T) {
	p := RetryPolicy{RetryOnBusy: true, RetryOnFailed: true}

	if !p.Allows(calls.FailureReasonBusy) {
		t.Fatal("busy should be retryable")
	}
	if p.Allows(calls.FailureReasonNoAnswer) {
		t.Fatal("no-answer retry not enabled")
	}
	if !p.Allows(calls.FailureReasonCallFailed) || !p.Allows(calls.FailureReasonGatewayError) {
		t.Fatal("call_failed and gateway_error share the failed flag")
	}
	for _, reason := range []calls.FailureReason{
		calls.FailureReasonCustomerNotFound,
		calls.FailureReasonInvalidPhone,
		"",
	} {
		if p.Allows(reason) {
			t.Fatalf("%q must never be retried", reason)
		}
	}
}

func TestCampaignStatusValid(t *testing.T) {
	for _, s := range []Status{StatusDraft, StatusRunning, StatusPaused, StatusCompleted, StatusCancelled, StatusError} {
		if !s.Valid() {
			t.Fatalf("%s should be valid", s)
		}
	}
	if Status("archived").Valid() {
		t.Fatal("unknown status accepted")
	}
}
