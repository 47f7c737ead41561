package telephony

import (
	"context"
)

// Gateway defines the provider-agnostic telephony surface used by the
// orchestrator.
//
// Rules:
// - No provider SDK calls outside telephony adapters.
// - Keep request/response types provider-agnostic; provider raw payloads
//   stay inside the adapter.
type Gateway interface {
	Name() string

	// PlaceCall starts an outbound call and returns the provider's call id.
	// The provider drives the rest of the lifecycle through status webhooks.
	PlaceCall(ctx context.Context, req PlaceCallRequest) (PlaceCallResult, error)

	// CancelCall terminates a live call. Best-effort; a call that already
	// ended is not an error.
	CancelCall(ctx context.Context, providerCallID string) error

	// RecordingURL fetches the provider-side recording for a finished call,
	// returning "" when none exists.
	RecordingURL(ctx context.Context, providerCallID string) (string, error)

	// FormatPhoneNumber normalizes raw input to E.164.
	FormatPhoneNumber(raw string) (string, error)
}

// PlaceCallRequest identifies who to dial and which internal call the
// provider's callbacks should be correlated with.
type PlaceCallRequest struct {
	CallID string
	To     string
}

type PlaceCallResult struct {
	ProviderCallID string
}
