package lock

import (
	"context"
	"fmt"
	"io"

	appintegrity "github.com/farmerp/backend/internal/application/integrity"
	"github.com/farmerp/backend/internal/infrastructure/config"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Factory builds the scope locker configured for the service
type Factory struct {
	redisConfig           config.RedisConfig
	logger                *zap.Logger
	allowInMemoryFallback bool
}

// FactoryOption configures a Factory
type FactoryOption func(*Factory)

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) FactoryOption {
	return func(f *Factory) {
		f.logger = logger
	}
}

// WithInMemoryFallback controls whether an unreachable redis falls back to
// a process-local locker. Default is true.
func WithInMemoryFallback(allow bool) FactoryOption {
	return func(f *Factory) {
		f.allowInMemoryFallback = allow
	}
}

// NewFactory creates a factory for cfg
func NewFactory(cfg config.RedisConfig, opts ...FactoryOption) *Factory {
	f := &Factory{
		redisConfig:           cfg,
		logger:                zap.NewNop(),
		allowInMemoryFallback: true,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Create returns a redis locker, or an in-memory one when redis is
// unavailable and fallback is allowed. The closer releases the redis client.
func (f *Factory) Create(ctx context.Context) (appintegrity.ScopeLocker, io.Closer, error) {
	locker, err := NewRedisScopeLocker(ctx, &redis.Options{
		Addr:     f.redisConfig.Addr(),
		Password: f.redisConfig.Password,
		DB:       f.redisConfig.DB,
	})
	if err == nil {
		f.logger.Info("using Redis scope locks", zap.String("addr", f.redisConfig.Addr()))
		return locker, locker, nil
	}

	if !f.allowInMemoryFallback {
		return nil, nil, fmt.Errorf("Redis required for scope locks but unavailable: %w", err)
	}

	f.logger.Warn("Redis unavailable, falling back to in-memory scope locks. "+
		"Batch fixes are only serialized within this instance.",
		zap.Error(err),
	)
	return NewInMemoryScopeLocker(), nopCloser{}, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

