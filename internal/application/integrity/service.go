package integrity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/farmerp/backend/internal/domain/integrity"
	"github.com/farmerp/backend/internal/domain/inventory"
	"github.com/farmerp/backend/internal/domain/shared"
	"github.com/farmerp/backend/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// DefaultLockTTL bounds how long a batch may hold its scope lock.
const DefaultLockTTL = 5 * time.Minute

// IntegrityService detects inconsistencies, previews and applies corrections
// and rolls them back through the audit trail.
type IntegrityService struct {
	loader    integrity.GraphLoader
	txScope   TransactionScope
	auditRepo integrity.AuditTrailRepository
	detector  *integrity.Detector
	locker    ScopeLocker
	lockTTL   time.Duration
	clock     shared.Clock
	actorID   *uuid.UUID
	logger    *zap.Logger
	metrics   *telemetry.IntegrityMetrics
}

// NewIntegrityService creates a new IntegrityService with the default rule set
func NewIntegrityService(
	loader integrity.GraphLoader,
	txScope TransactionScope,
	auditRepo integrity.AuditTrailRepository,
	logger *zap.Logger,
) *IntegrityService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IntegrityService{
		loader:    loader,
		txScope:   txScope,
		auditRepo: auditRepo,
		detector:  integrity.NewDefaultDetector(),
		locker:    NoopScopeLocker{},
		lockTTL:   DefaultLockTTL,
		clock:     shared.SystemClock,
		logger:    logger,
	}
}

// SetDetector replaces the rule set
func (s *IntegrityService) SetDetector(d *integrity.Detector) {
	s.detector = d
}

// SetScopeLocker sets the lock serializing batch fixes per scope
func (s *IntegrityService) SetScopeLocker(locker ScopeLocker, ttl time.Duration) {
	s.locker = locker
	if ttl > 0 {
		s.lockTTL = ttl
	}
}

// SetClock sets the clock stamping audit entries
func (s *IntegrityService) SetClock(clock shared.Clock) {
	s.clock = clock
}

// SetDefaultActor sets the actor recorded when the context carries none
func (s *IntegrityService) SetDefaultActor(actorID uuid.UUID) {
	s.actorID = &actorID
}

// SetMetrics sets the metrics collector
func (s *IntegrityService) SetMetrics(m *telemetry.IntegrityMetrics) {
	s.metrics = m
}

// Detect reports every inconsistency in scope. It never writes.
func (s *IntegrityService) Detect(ctx context.Context, scope integrity.Scope) ([]integrity.Finding, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "integrity", "detect",
		telemetry.WithAttribute(telemetry.SpanAttrScope, scope.Key()))
	defer span.End()
	start := time.Now()

	findings, _, err := s.detect(ctx, scope)
	if err != nil {
		telemetry.RecordError(span, err)
		s.logger.Error("integrity detection failed", zap.String("scope", scope.Key()), zap.Error(err))
		return nil, err
	}

	telemetry.SetAttributes(span, telemetry.SpanAttrFindings, len(findings))
	s.metrics.RecordDuration(ctx, "detect", time.Since(start))
	s.logger.Info("integrity detection completed",
		zap.String("scope", scope.Key()),
		zap.Int("findings", len(findings)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return findings, nil
}

func (s *IntegrityService) detect(ctx context.Context, scope integrity.Scope) ([]integrity.Finding, *integrity.Graph, error) {
	g, err := s.loader.Load(ctx, scope)
	if err != nil {
		return nil, nil, integrity.NewDetectionError(err, "loading scope %s", scope.Key())
	}
	findings, err := s.detector.Detect(ctx, g)
	if err != nil {
		return nil, nil, err
	}

	counts := make(map[integrity.Kind]int)
	for _, f := range findings {
		counts[f.Kind]++
	}
	for kind, n := range counts {
		s.metrics.RecordFindings(ctx, string(kind), n)
	}
	return findings, g, nil
}

// Preview computes the correction every finding in scope would make,
// grouped by kind. It never writes.
func (s *IntegrityService) Preview(ctx context.Context, scope integrity.Scope) ([]integrity.PreviewGroup, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "integrity", "preview",
		telemetry.WithAttribute(telemetry.SpanAttrScope, scope.Key()))
	defer span.End()

	findings, g, err := s.detect(ctx, scope)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	entries, err := integrity.BuildPreview(ctx, findings, g)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	telemetry.SetAttributes(span, telemetry.SpanAttrFindings, len(findings))
	return integrity.GroupPreview(entries), nil
}

// ApplyFix re-validates f against current data and applies its correction
// with an audit entry in one transaction. A finding that no longer applies
// is skipped; a correction that cannot be made leaves the store unchanged.
func (s *IntegrityService) ApplyFix(ctx context.Context, f integrity.Finding) integrity.Outcome {
	ctx, span := telemetry.StartServiceSpan(ctx, "integrity", "apply_fix",
		telemetry.WithAttribute(telemetry.SpanAttrFindingKind, string(f.Kind)),
		telemetry.WithAttribute(telemetry.SpanAttrSubjectType, string(f.Subject.Type)),
		telemetry.WithAttribute(telemetry.SpanAttrSubjectID, f.Subject.ID.String()),
	)
	defer span.End()

	outcome := s.applyFinding(ctx, f)
	s.finishOutcome(ctx, span, outcome)
	s.metrics.RecordFix(ctx, string(f.Kind), string(outcome.Status))
	return outcome
}

func (s *IntegrityService) applyFinding(ctx context.Context, f integrity.Finding) integrity.Outcome {
	var outcome integrity.Outcome
	err := s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		c, err := integrity.ComputeCorrection(ctx, f, repos.Reader())
		if err != nil {
			return err
		}
		written, err := integrity.ApplySnapshot(ctx, repos.Reader(), repos.Writer(), c.Before, c.After)
		if err != nil {
			return err
		}
		c.After = written

		entry := integrity.NewFixEntry(c, s.actor(ctx), s.clock())
		if err := repos.AuditTrail().Append(ctx, entry); err != nil {
			return fmt.Errorf("append audit entry: %w", err)
		}
		outcome = integrity.Applied(f.Kind, f.Subject, entry.ID,
			fmt.Sprintf("corrected %d record(s) for %s", len(written.Records), f.Kind))
		return nil
	})
	switch {
	case err == nil:
		return outcome
	case integrity.IsStale(err):
		return integrity.Skipped(f.Kind, f.Subject, integrity.SkipStaleFinding, "finding no longer applies to current data")
	default:
		return integrity.FailedFromError(f.Kind, f.Subject, err)
	}
}

// ApplyAllOfKind detects the findings of kind in scope and applies each in
// its own transaction, so one failure does not affect the others. When ctx
// is cancelled the remaining findings are reported as skipped; fixes already
// committed stand. The returned error is non-nil only when the batch could
// not run at all or was cancelled.
func (s *IntegrityService) ApplyAllOfKind(ctx context.Context, kind integrity.Kind, scope integrity.Scope) ([]integrity.Outcome, error) {
	if !kind.IsValid() {
		return nil, shared.NewDomainError("INVALID_FINDING_KIND", fmt.Sprintf("unknown finding kind %q", kind))
	}
	ctx, span := telemetry.StartServiceSpan(ctx, "integrity", "apply_all_of_kind",
		telemetry.WithAttribute(telemetry.SpanAttrFindingKind, string(kind)),
		telemetry.WithAttribute(telemetry.SpanAttrScope, scope.Key()),
	)
	defer span.End()
	start := time.Now()

	release, err := s.locker.Obtain(ctx, lockKey(scope), s.lockTTL)
	if err != nil {
		if errors.Is(err, ErrScopeLocked) {
			err = integrity.NewConcurrentModification("another batch fix is running for scope %s", scope.Key())
		}
		telemetry.RecordError(span, err)
		return nil, err
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			s.logger.Warn("failed to release scope lock", zap.String("scope", scope.Key()), zap.Error(err))
		}
	}()

	findings, err := s.Detect(ctx, scope)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	matched := integrity.FilterByKind(findings, kind)

	outcomes := make([]integrity.Outcome, 0, len(matched))
	for i, f := range matched {
		if err := ctx.Err(); err != nil {
			for _, rest := range matched[i:] {
				outcomes = append(outcomes, integrity.Skipped(rest.Kind, rest.Subject, integrity.SkipCancelled, "batch cancelled before this finding"))
			}
			s.logger.Warn("batch fix cancelled",
				zap.String("kind", string(kind)),
				zap.Int("applied", i),
				zap.Int("remaining", len(matched)-i),
			)
			telemetry.RecordError(span, err)
			return outcomes, err
		}
		outcomes = append(outcomes, s.ApplyFix(ctx, f))
	}

	s.metrics.RecordDuration(ctx, "apply_all_of_kind", time.Since(start))
	s.logger.Info("batch fix completed",
		zap.String("kind", string(kind)),
		zap.String("scope", scope.Key()),
		zap.Int("findings", len(matched)),
		zap.Int("applied", countApplied(outcomes)),
	)
	return outcomes, nil
}

// RestoreMissing creates the ledger entry a live source lacks. It is
// idempotent: when the entry already exists the call is skipped.
func (s *IntegrityService) RestoreMissing(ctx context.Context, sourceType inventory.SourceType, sourceID uuid.UUID) integrity.Outcome {
	entityType, ok := integrity.EntityTypeForSource(sourceType)
	subject := integrity.EntityRef{Type: entityType, ID: sourceID}
	if !ok {
		return integrity.Failed(integrity.KindMissingDownstreamRecord, subject, integrity.ErrKindNotRestorable,
			fmt.Sprintf("unknown source type %q", sourceType))
	}
	f := integrity.NewFinding(integrity.KindMissingDownstreamRecord, subject, true, "restore requested")
	return s.ApplyFix(ctx, f)
}

// ListAuditTrail returns the audit entries of one record, newest first.
func (s *IntegrityService) ListAuditTrail(ctx context.Context, modelType integrity.EntityType, modelID uuid.UUID) ([]integrity.AuditTrailEntry, error) {
	if !modelType.IsValid() {
		return nil, shared.NewDomainError("INVALID_MODEL_TYPE", fmt.Sprintf("unknown model type %q", modelType))
	}
	return s.auditRepo.ListByModel(ctx, modelType, modelID)
}

// Rollback restores the records touched by an audit entry to their state
// before it, provided nothing changed them since. The rollback itself is
// audited and can be rolled back in turn.
func (s *IntegrityService) Rollback(ctx context.Context, auditEntryID uuid.UUID) integrity.Outcome {
	ctx, span := telemetry.StartServiceSpan(ctx, "integrity", "rollback",
		telemetry.WithAttribute(telemetry.SpanAttrAuditEntryID, auditEntryID.String()))
	defer span.End()

	var (
		outcome integrity.Outcome
		target  *integrity.AuditTrailEntry
	)
	err := s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		entry, err := repos.AuditTrail().FindByID(ctx, auditEntryID)
		if errors.Is(err, shared.ErrNotFound) {
			return integrity.NewNotRestorable("audit entry %s does not exist", auditEntryID)
		}
		if err != nil {
			return err
		}
		target = entry

		written, err := integrity.ApplySnapshot(ctx, repos.Reader(), repos.Writer(), entry.After, entry.Before)
		if err != nil {
			return err
		}
		rollback := integrity.NewRollbackEntry(entry, written, s.actor(ctx), s.clock())
		if err := repos.AuditTrail().Append(ctx, rollback); err != nil {
			return fmt.Errorf("append audit entry: %w", err)
		}
		outcome = integrity.Applied(entry.FindingKind, integrity.EntityRef{Type: entry.ModelType, ID: entry.ModelID},
			rollback.ID, fmt.Sprintf("rolled back audit entry %s", auditEntryID))
		return nil
	})
	if err != nil {
		var kind integrity.Kind
		var subject integrity.EntityRef
		if target != nil {
			kind = target.FindingKind
			subject = integrity.EntityRef{Type: target.ModelType, ID: target.ModelID}
		}
		outcome = integrity.FailedFromError(kind, subject, err)
	}

	s.finishOutcome(ctx, span, outcome)
	s.metrics.RecordRollback(ctx, string(outcome.Status))
	return outcome
}

func (s *IntegrityService) finishOutcome(ctx context.Context, span trace.Span, outcome integrity.Outcome) {
	telemetry.SetAttributes(span, telemetry.SpanAttrOutcome, string(outcome.Status))
	fields := []zap.Field{
		zap.String("kind", string(outcome.Kind)),
		zap.String("subject", outcome.Subject.String()),
		zap.String("status", string(outcome.Status)),
		zap.String("trace_id", telemetry.GetTraceID(ctx)),
	}
	switch outcome.Status {
	case integrity.OutcomeApplied:
		telemetry.SetAttributes(span, telemetry.SpanAttrAuditEntryID, outcome.AuditEntryID.String())
		s.logger.Info("integrity correction applied", append(fields, zap.Stringer("audit_entry_id", outcome.AuditEntryID))...)
	case integrity.OutcomeSkipped:
		s.logger.Info("integrity correction skipped", append(fields, zap.String("reason", outcome.Reason))...)
	default:
		telemetry.RecordError(span, errors.New(outcome.Message))
		s.logger.Warn("integrity correction failed",
			append(fields, zap.String("error_kind", string(outcome.ErrorKind)), zap.String("message", outcome.Message))...)
	}
}

func (s *IntegrityService) actor(ctx context.Context) *uuid.UUID {
	if id, ok := shared.ActorIDFromContext(ctx); ok {
		return &id
	}
	return s.actorID
}

func lockKey(scope integrity.Scope) string {
	return "integrity:batch:" + scope.Key()
}

func countApplied(outcomes []integrity.Outcome) int {
	n := 0
	for _, o := range outcomes {
		if o.IsApplied() {
			n++
		}
	}
	return n
}
