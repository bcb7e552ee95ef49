// Package scheduler runs detection scans in the background. Scans only read;
// findings are reported through logs and metrics and nothing is corrected.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/farmerp/backend/internal/domain/integrity"
	"github.com/farmerp/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// JobStatus represents the status of a scan run
type JobStatus string

const (
	JobStatusPending JobStatus = "PENDING"
	JobStatusRunning JobStatus = "RUNNING"
	JobStatusSuccess JobStatus = "SUCCESS"
	JobStatusFailed  JobStatus = "FAILED"
)

// Detector is the read-only part of the integrity service a scan drives
type Detector interface {
	Detect(ctx context.Context, scope integrity.Scope) ([]integrity.Finding, error)
}

// ScanRun records one detection scan
type ScanRun struct {
	Scope       integrity.Scope
	Status      JobStatus
	Error       string
	StartedAt   *time.Time
	CompletedAt *time.Time
	Findings    map[integrity.Kind]int
}

// Total is the number of findings across kinds
func (r ScanRun) Total() int {
	n := 0
	for _, c := range r.Findings {
		n += c
	}
	return n
}

func (r *ScanRun) start(now time.Time) {
	r.Status = JobStatusRunning
	r.StartedAt = &now
}

func (r *ScanRun) complete(now time.Time, findings []integrity.Finding) {
	r.Status = JobStatusSuccess
	r.CompletedAt = &now
	r.Findings = make(map[integrity.Kind]int)
	for _, f := range findings {
		r.Findings[f.Kind]++
	}
}

func (r *ScanRun) fail(now time.Time, err error) {
	r.Status = JobStatusFailed
	r.CompletedAt = &now
	r.Error = err.Error()
}

// ScanConfig holds scan scheduling settings
type ScanConfig struct {
	Interval time.Duration
	Timeout  time.Duration
	Scopes   []integrity.Scope // empty means the whole store
}

// Validate checks the config
func (c ScanConfig) Validate() error {
	if c.Interval <= 0 {
		return fmt.Errorf("%w: interval must be positive, got %s", ErrInvalidConfig, c.Interval)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("%w: timeout must not be negative, got %s", ErrInvalidConfig, c.Timeout)
	}
	return nil
}

// ScanScheduler runs Detect over the configured scopes every Interval.
// Scopes are scanned one after another; a tick that arrives while a scan is
// still running is dropped.
type ScanScheduler struct {
	config   ScanConfig
	detector Detector
	logger   *zap.Logger
	clock    shared.Clock

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
	scanning  bool
	lastRuns  []ScanRun
}

// NewScanScheduler creates a scheduler. A nil clock uses shared.SystemClock.
func NewScanScheduler(config ScanConfig, detector Detector, logger *zap.Logger, clock shared.Clock) (*ScanScheduler, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if len(config.Scopes) == 0 {
		config.Scopes = []integrity.Scope{integrity.AllScope()}
	}
	if clock == nil {
		clock = shared.SystemClock
	}
	return &ScanScheduler{
		config:   config,
		detector: detector,
		logger:   logger,
		clock:    clock,
	}, nil
}

// Start starts the scan loop
func (s *ScanScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go s.runLoop(ctx)

	s.logger.Info("Detection scan scheduler started",
		zap.Duration("interval", s.config.Interval),
		zap.Int("scopes", len(s.config.Scopes)),
	)
	return nil
}

// Stop cancels the loop and waits for an in-flight scan, bounded by ctx
func (s *ScanScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Detection scan scheduler stopped")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Detection scan scheduler stop timed out")
		return ctx.Err()
	}
}

// TriggerNow runs one scan synchronously outside the tick schedule
func (s *ScanScheduler) TriggerNow(ctx context.Context) ([]ScanRun, error) {
	s.mu.Lock()
	running := s.isRunning
	s.mu.Unlock()
	if !running {
		return nil, ErrSchedulerNotRunning
	}
	return s.scan(ctx)
}

// LastRuns returns the runs of the most recent completed scan
func (s *ScanScheduler) LastRuns() []ScanRun {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ScanRun, len(s.lastRuns))
	copy(out, s.lastRuns)
	return out
}

func (s *ScanScheduler) runLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.scan(ctx); err != nil && !errors.Is(err, ErrScanInProgress) {
				s.logger.Warn("Detection scan incomplete", zap.Error(err))
			}
		}
	}
}

func (s *ScanScheduler) scan(ctx context.Context) ([]ScanRun, error) {
	s.mu.Lock()
	if s.scanning {
		s.mu.Unlock()
		return nil, ErrScanInProgress
	}
	s.scanning = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.scanning = false
		s.mu.Unlock()
	}()

	runs := make([]ScanRun, 0, len(s.config.Scopes))
	var firstErr error
	for _, scope := range s.config.Scopes {
		if err := ctx.Err(); err != nil {
			return runs, err
		}
		run := s.scanScope(ctx, scope)
		if run.Status == JobStatusFailed && firstErr == nil {
			firstErr = fmt.Errorf("scope %s: %s", scope.Key(), run.Error)
		}
		runs = append(runs, run)
	}

	s.mu.Lock()
	s.lastRuns = runs
	s.mu.Unlock()
	return runs, firstErr
}

func (s *ScanScheduler) scanScope(ctx context.Context, scope integrity.Scope) ScanRun {
	run := ScanRun{Scope: scope, Status: JobStatusPending}
	run.start(s.clock())

	if s.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.Timeout)
		defer cancel()
	}

	findings, err := s.detector.Detect(ctx, scope)
	if err != nil {
		run.fail(s.clock(), err)
		s.logger.Error("Detection scan failed",
			zap.String("scope", scope.Key()),
			zap.Error(err),
		)
		return run
	}
	run.complete(s.clock(), findings)

	fields := []zap.Field{
		zap.String("scope", scope.Key()),
		zap.Int("findings", run.Total()),
	}
	for kind, n := range run.Findings {
		fields = append(fields, zap.Int("kind."+string(kind), n))
	}
	if run.Total() > 0 {
		s.logger.Warn("Detection scan found inconsistencies", fields...)
	} else {
		s.logger.Info("Detection scan clean", fields...)
	}
	return run
}
