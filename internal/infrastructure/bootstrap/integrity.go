// Package bootstrap assembles the integrity engine from configuration. It is
// shared by the API server and the reconcile command.
package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"io"

	appintegrity "github.com/farmerp/backend/internal/application/integrity"
	"github.com/farmerp/backend/internal/domain/shared"
	"github.com/farmerp/backend/internal/infrastructure/config"
	"github.com/farmerp/backend/internal/infrastructure/lock"
	"github.com/farmerp/backend/internal/infrastructure/logger"
	"github.com/farmerp/backend/internal/infrastructure/persistence"
	"github.com/farmerp/backend/internal/infrastructure/scheduler"
	"github.com/farmerp/backend/internal/infrastructure/telemetry"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// OpenDatabase connects to postgres with the zap-backed gorm logger and,
// when enabled, query tracing.
func OpenDatabase(cfg *config.Config, log *zap.Logger) (*persistence.Database, error) {
	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level),
		logger.WithSlowThreshold(cfg.Telemetry.DBSlowQueryThresh))

	db, err := persistence.NewDatabase(&cfg.Database, persistence.WithGormLogger(gormLog))
	if err != nil {
		return nil, err
	}

	plugin := telemetry.NewDBTracingPlugin(telemetry.DBTracingConfig{
		Enabled:         cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled,
		LogFullSQL:      cfg.Telemetry.DBLogFullSQL,
		SlowQueryThresh: cfg.Telemetry.DBSlowQueryThresh,
		DBSystem:        "postgresql",
	}, log)
	if err := plugin.Register(db.DB); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("register database tracing: %w", err)
	}
	return db, nil
}

// Integrity is an assembled engine and the resources it holds
type Integrity struct {
	Service *appintegrity.IntegrityService
	closers []io.Closer
}

// Close releases the scope locker's connection, if any
func (i *Integrity) Close() error {
	var first error
	for _, c := range i.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// NewIntegrity wires the service over db. meter may be nil.
func NewIntegrity(ctx context.Context, cfg *config.Config, db *gorm.DB, log *zap.Logger, meter metric.Meter) (*Integrity, error) {
	txOpts := &sql.TxOptions{Isolation: cfg.Integrity.TxIsolation()}
	svc := appintegrity.NewIntegrityService(
		persistence.NewGormGraphLoader(db, cfg.Integrity.SnapshotReads),
		persistence.NewGormIntegrityTransactionScope(db, txOpts, shared.SystemClock),
		persistence.NewGormAuditTrailRepository(db),
		log.Named("integrity"),
	)

	actor, err := cfg.Integrity.DefaultActorID()
	if err != nil {
		return nil, err
	}
	if actor != nil {
		svc.SetDefaultActor(*actor)
	}

	if meter != nil {
		metrics, err := telemetry.NewIntegrityMetrics(meter)
		if err != nil {
			return nil, fmt.Errorf("create integrity metrics: %w", err)
		}
		svc.SetMetrics(metrics)
	}

	out := &Integrity{Service: svc}
	if cfg.Integrity.ScopeLockEnabled {
		locker, closer, err := lock.NewFactory(cfg.Redis,
			lock.WithLogger(log),
			lock.WithInMemoryFallback(cfg.App.Env != "production"),
		).Create(ctx)
		if err != nil {
			return nil, err
		}
		svc.SetScopeLocker(locker, cfg.Integrity.ScopeLockTTL)
		out.closers = append(out.closers, closer)
	}
	return out, nil
}

// NewScanScheduler returns the background detection scan, or nil when
// integrity.scan_interval is zero. The caller starts and stops it.
func (i *Integrity) NewScanScheduler(cfg *config.Config, log *zap.Logger) (*scheduler.ScanScheduler, error) {
	if cfg.Integrity.ScanInterval == 0 {
		return nil, nil
	}
	return scheduler.NewScanScheduler(scheduler.ScanConfig{
		Interval: cfg.Integrity.ScanInterval,
		Timeout:  cfg.Integrity.ScanTimeout,
	}, i.Service, log.Named("scan"), shared.SystemClock)
}
