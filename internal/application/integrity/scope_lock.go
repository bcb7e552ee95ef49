package integrity

import (
	"context"
	"errors"
	"time"
)

// ErrScopeLocked is returned by a ScopeLocker when another batch holds the scope.
var ErrScopeLocked = errors.New("scope is locked by another batch fix")

// ReleaseFunc releases an obtained scope lock.
type ReleaseFunc func(ctx context.Context) error

// ScopeLocker serializes batch fixes per scope. Row locks taken inside each
// fix transaction stay authoritative; the scope lock only keeps two batch
// runs from racing through the same findings.
type ScopeLocker interface {
	Obtain(ctx context.Context, key string, ttl time.Duration) (ReleaseFunc, error)
}

// NoopScopeLocker never blocks.
type NoopScopeLocker struct{}

// Obtain implements ScopeLocker
func (NoopScopeLocker) Obtain(context.Context, string, time.Duration) (ReleaseFunc, error) {
	return func(context.Context) error { return nil }, nil
}
