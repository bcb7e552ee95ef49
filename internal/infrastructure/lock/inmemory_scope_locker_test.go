package lock

import (
	"context"
	"sync"
	"testing"
	"time"

	appintegrity "github.com/farmerp/backend/internal/application/integrity"
	"github.com/farmerp/backend/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestInMemoryScopeLocker_Obtain(t *testing.T) {
	ctx := context.Background()

	t.Run("second holder is refused until release", func(t *testing.T) {
		l := NewInMemoryScopeLocker()

		release, err := l.Obtain(ctx, "integrity:batch:all", time.Minute)
		require.NoError(t, err)

		_, err = l.Obtain(ctx, "integrity:batch:all", time.Minute)
		assert.ErrorIs(t, err, appintegrity.ErrScopeLocked)

		require.NoError(t, release(ctx))
		release, err = l.Obtain(ctx, "integrity:batch:all", time.Minute)
		require.NoError(t, err)
		require.NoError(t, release(ctx))
		assert.Zero(t, l.Held())
	})

	t.Run("keys are independent", func(t *testing.T) {
		l := NewInMemoryScopeLocker()

		_, err := l.Obtain(ctx, "farm:a", time.Minute)
		require.NoError(t, err)
		_, err = l.Obtain(ctx, "farm:b", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, 2, l.Held())
	})

	t.Run("expired lease can be taken over", func(t *testing.T) {
		l := NewInMemoryScopeLocker()
		now := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
		l.now = func() time.Time { return now }

		stale, err := l.Obtain(ctx, "farm:a", time.Minute)
		require.NoError(t, err)

		now = now.Add(2 * time.Minute)
		assert.Zero(t, l.Held())
		fresh, err := l.Obtain(ctx, "farm:a", time.Minute)
		require.NoError(t, err)

		// releasing the expired lease must not free the new holder's lock
		require.NoError(t, stale(ctx))
		_, err = l.Obtain(ctx, "farm:a", time.Minute)
		assert.ErrorIs(t, err, appintegrity.ErrScopeLocked)

		require.NoError(t, fresh(ctx))
		assert.Zero(t, l.Held())
	})
}

func TestInMemoryScopeLocker_Concurrent(t *testing.T) {
	l := NewInMemoryScopeLocker()
	ctx := context.Background()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		obtained int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := l.Obtain(ctx, "farm:a", time.Minute); err == nil {
				mu.Lock()
				obtained++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, obtained)
}

func TestFactory_FallsBackToInMemory(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	cfg := config.RedisConfig{Host: "127.0.0.1", Port: 1}

	locker, closer, err := NewFactory(cfg, WithLogger(zap.New(core))).Create(context.Background())
	require.NoError(t, err)
	assert.IsType(t, &InMemoryScopeLocker{}, locker)
	assert.NoError(t, closer.Close())
	assert.Equal(t, 1, logs.FilterMessageSnippet("falling back to in-memory").Len())
}

func TestFactory_RequiresRedisWithoutFallback(t *testing.T) {
	cfg := config.RedisConfig{Host: "127.0.0.1", Port: 1}

	locker, closer, err := NewFactory(cfg, WithInMemoryFallback(false)).Create(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Redis required")
	assert.Nil(t, locker)
	assert.Nil(t, closer)
}
