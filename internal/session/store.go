package session

import (
	"context"
	"errors"
)

var (
	// ErrConflict means a conditional write lost a race. It is an expected
	// outcome, not a failure; callers re-read and retry or give up.
	ErrConflict = errors.New("session: conditional update conflict")
	// ErrNotFound means the record vanished (already reclaimed).
	ErrNotFound = errors.New("session: not found")
	// ErrUnavailable wraps store connectivity failures. Callers fail fast
	// and retry later; nothing is assumed about record state in the interim.
	ErrUnavailable = errors.New("session: store unavailable")
)

// Store is the session store adapter. It is the sole writer of session
// records; every other component mutates sessions exclusively through
// ConditionalUpdate so the guard logic lives in one place.
type Store interface {
	Create(ctx context.Context, s *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	ListByState(ctx context.Context, state State) ([]*Session, error)
	ListAll(ctx context.Context) ([]*Session, error)

	// ConditionalUpdate re-reads the record, fails with ErrConflict if its
	// current state differs from expect, applies mutate to a copy, and
	// commits only if no other writer got in between (version check).
	// Errors returned by mutate abort the write and pass through unchanged.
	// The committed record is returned on success.
	ConditionalUpdate(ctx context.Context, id string, expect State, mutate func(*Session) error) (*Session, error)

	Delete(ctx context.Context, id string) error

	// Subscribe registers fn to receive the full record after every
	// successful mutation of id. The returned func cancels the subscription.
	Subscribe(ctx context.Context, id string, fn func(*Session)) (func(), error)
}
