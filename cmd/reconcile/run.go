package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/farmerp/backend/internal/domain/integrity"
	"github.com/farmerp/backend/internal/domain/inventory"
	"github.com/farmerp/backend/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Exit codes
const (
	exitOK      = 0
	exitFailed  = 1
	exitUsage   = 2
	exitPartial = 3
)

// engine is the part of the integrity service the command drives
type engine interface {
	Detect(ctx context.Context, scope integrity.Scope) ([]integrity.Finding, error)
	Preview(ctx context.Context, scope integrity.Scope) ([]integrity.PreviewGroup, error)
	ApplyAllOfKind(ctx context.Context, kind integrity.Kind, scope integrity.Scope) ([]integrity.Outcome, error)
	RestoreMissing(ctx context.Context, sourceType inventory.SourceType, sourceID uuid.UUID) integrity.Outcome
	Rollback(ctx context.Context, auditEntryID uuid.UUID) integrity.Outcome
}

type mode int

const (
	modeDetect mode = iota
	modePreview
	modeApply
	modeRestore
	modeRollback
)

type options struct {
	mode       mode
	scope      integrity.Scope
	kind       integrity.Kind
	sourceType inventory.SourceType
	sourceID   uuid.UUID
	auditID    uuid.UUID
	actor      *uuid.UUID
	timeout    time.Duration
	logLevel   string
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	fs := flag.NewFlagSet("reconcile", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		farm, livestock, record   string
		kind, restoreType, restID string
		rollback, actor           string
		dryRun, preview, apply    bool
		opts                      options
	)
	fs.StringVar(&farm, "farm", "", "Limit to one farm (UUID)")
	fs.StringVar(&livestock, "livestock", "", "Limit to one livestock batch (UUID)")
	fs.StringVar(&record, "record", "", "Limit to one record (UUID)")
	fs.BoolVar(&dryRun, "dry-run", true, "Report findings without writing")
	fs.BoolVar(&preview, "preview", false, "Print the correction each finding would make")
	fs.BoolVar(&apply, "apply", false, "Apply every finding of --kind in scope")
	fs.StringVar(&kind, "kind", "", "Finding kind to apply")
	fs.StringVar(&restoreType, "restore-type", "", "Source type to restore a ledger entry for (purchase, mutation)")
	fs.StringVar(&restID, "restore-id", "", "Source id to restore a ledger entry for")
	fs.StringVar(&rollback, "rollback", "", "Audit entry id to roll back")
	fs.StringVar(&actor, "actor", "", "Actor recorded on audit entries (UUID)")
	fs.DurationVar(&opts.timeout, "timeout", 0, "Abort after this long; committed fixes stand")
	fs.StringVar(&opts.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if fs.NArg() > 0 {
		return options{}, fmt.Errorf("unexpected argument %q", fs.Arg(0))
	}

	scope, err := scopeFromFlags(farm, livestock, record)
	if err != nil {
		return options{}, err
	}
	opts.scope = scope

	if actor != "" {
		id, err := uuid.Parse(actor)
		if err != nil {
			return options{}, fmt.Errorf("--actor: %w", err)
		}
		opts.actor = &id
	}

	actions := 0
	for _, set := range []bool{apply, restoreType != "" || restID != "", rollback != ""} {
		if set {
			actions++
		}
	}
	if actions > 1 {
		return options{}, errors.New("--apply, --restore-type and --rollback are mutually exclusive")
	}
	dryRunSet := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "dry-run" {
			dryRunSet = true
		}
	})
	if dryRunSet && dryRun && actions > 0 {
		return options{}, errors.New("--dry-run cannot be combined with a writing action")
	}
	if !dryRun && actions == 0 {
		return options{}, errors.New("--dry-run=false needs --apply, --restore-type or --rollback")
	}

	switch {
	case apply:
		opts.mode = modeApply
		opts.kind = integrity.Kind(kind)
		if !opts.kind.IsValid() {
			return options{}, fmt.Errorf("--apply needs a valid --kind, got %q", kind)
		}
	case restoreType != "" || restID != "":
		opts.mode = modeRestore
		opts.sourceType = inventory.SourceType(restoreType)
		if _, ok := integrity.EntityTypeForSource(opts.sourceType); !ok {
			return options{}, fmt.Errorf("--restore-type must be %s or %s", inventory.SourceTypePurchase, inventory.SourceTypeMutation)
		}
		if opts.sourceID, err = uuid.Parse(restID); err != nil {
			return options{}, fmt.Errorf("--restore-id: %w", err)
		}
	case rollback != "":
		opts.mode = modeRollback
		if opts.auditID, err = uuid.Parse(rollback); err != nil {
			return options{}, fmt.Errorf("--rollback: %w", err)
		}
	case preview:
		opts.mode = modePreview
	default:
		opts.mode = modeDetect
	}
	return opts, nil
}

func scopeFromFlags(farm, livestock, record string) (integrity.Scope, error) {
	set := 0
	for _, v := range []string{farm, livestock, record} {
		if v != "" {
			set++
		}
	}
	if set > 1 {
		return integrity.Scope{}, errors.New("at most one of --farm, --livestock and --record may be set")
	}

	parse := func(name, v string) (uuid.UUID, error) {
		id, err := uuid.Parse(v)
		if err != nil {
			return uuid.Nil, fmt.Errorf("--%s: %w", name, err)
		}
		return id, nil
	}
	switch {
	case farm != "":
		id, err := parse("farm", farm)
		return integrity.FarmScope(id), err
	case livestock != "":
		id, err := parse("livestock", livestock)
		return integrity.LivestockScope(id), err
	case record != "":
		id, err := parse("record", record)
		return integrity.RecordScope(id), err
	}
	return integrity.AllScope(), nil
}

// run executes opts against eng, writing one JSON object per line to out.
// It returns the process exit code.
func run(ctx context.Context, eng engine, opts options, out io.Writer, log *zap.Logger) int {
	if opts.actor != nil {
		ctx = shared.WithActorID(ctx, *opts.actor)
	}
	if opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.timeout)
		defer cancel()
	}
	enc := json.NewEncoder(out)

	switch opts.mode {
	case modeDetect:
		findings, err := eng.Detect(ctx, opts.scope)
		if err != nil {
			log.Error("detection failed", zap.Error(err))
			return exitFailed
		}
		for _, f := range findings {
			_ = enc.Encode(f.LogEntry())
		}
		log.Info("detection completed", zap.String("scope", opts.scope.Key()), zap.Int("findings", len(findings)))
		return exitOK

	case modePreview:
		groups, err := eng.Preview(ctx, opts.scope)
		if err != nil {
			log.Error("preview failed", zap.Error(err))
			return exitFailed
		}
		for _, g := range groups {
			for _, e := range g.Entries {
				_ = enc.Encode(e)
			}
		}
		return exitOK

	case modeApply:
		outcomes, err := eng.ApplyAllOfKind(ctx, opts.kind, opts.scope)
		for _, o := range outcomes {
			_ = enc.Encode(o.LogEntry())
		}
		if err != nil {
			log.Error("batch fix did not complete", zap.Error(err), zap.Int("outcomes", len(outcomes)))
			if outcomes != nil {
				return exitPartial
			}
			return exitFailed
		}
		return exitCodeFor(outcomes...)

	case modeRestore:
		o := eng.RestoreMissing(ctx, opts.sourceType, opts.sourceID)
		_ = enc.Encode(o.LogEntry())
		return exitCodeFor(o)

	case modeRollback:
		o := eng.Rollback(ctx, opts.auditID)
		_ = enc.Encode(o.LogEntry())
		return exitCodeFor(o)
	}
	return exitUsage
}

// exitCodeFor is exitPartial when any outcome failed
func exitCodeFor(outcomes ...integrity.Outcome) int {
	for _, o := range outcomes {
		if o.Status == integrity.OutcomeFailed {
			if len(outcomes) == 1 {
				return exitFailed
			}
			return exitPartial
		}
	}
	return exitOK
}
