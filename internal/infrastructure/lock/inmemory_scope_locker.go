package lock

import (
	"context"
	"sync"
	"time"

	appintegrity "github.com/farmerp/backend/internal/application/integrity"
	"github.com/google/uuid"
)

type lease struct {
	token     uuid.UUID
	expiresAt time.Time
}

// InMemoryScopeLocker implements ScopeLocker within one process.
// It is suitable for single-instance deployments and tests.
type InMemoryScopeLocker struct {
	mu     sync.Mutex
	leases map[string]lease
	now    func() time.Time
}

// NewInMemoryScopeLocker creates an empty locker
func NewInMemoryScopeLocker() *InMemoryScopeLocker {
	return &InMemoryScopeLocker{
		leases: make(map[string]lease),
		now:    time.Now,
	}
}

// Obtain takes the lock for key unless an unexpired lease holds it
func (l *InMemoryScopeLocker) Obtain(_ context.Context, key string, ttl time.Duration) (appintegrity.ReleaseFunc, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if held, ok := l.leases[key]; ok && now.Before(held.expiresAt) {
		return nil, appintegrity.ErrScopeLocked
	}

	token := uuid.New()
	l.leases[key] = lease{token: token, expiresAt: now.Add(ttl)}
	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		// a lease taken over after expiry belongs to its new holder
		if held, ok := l.leases[key]; ok && held.token == token {
			delete(l.leases, key)
		}
		return nil
	}, nil
}

// Held returns the number of unexpired leases
func (l *InMemoryScopeLocker) Held() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := 0
	now := l.now()
	for _, held := range l.leases {
		if now.Before(held.expiresAt) {
			n++
		}
	}
	return n
}

var _ appintegrity.ScopeLocker = (*InMemoryScopeLocker)(nil)
