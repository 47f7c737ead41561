package convstate

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("convstate: not found")

// Store persists conversation contexts across request boundaries.
//
// Contexts are keyed by call id. Delete must be idempotent: purging a
// context that is already gone is not an error.
type Store interface {
	Insert(ctx context.Context, c Context) error
	GetByCallID(ctx context.Context, callID string) (Context, error)
	UpdateHistory(ctx context.Context, callID string, history []Turn, now time.Time) error
	Delete(ctx context.Context, callID string) error
}
