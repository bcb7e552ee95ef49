package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"testing"

	appintegrity "github.com/farmerp/backend/internal/application/integrity"
	"github.com/farmerp/backend/internal/domain/integrity"
	"github.com/farmerp/backend/internal/domain/inventory"
	"github.com/farmerp/backend/internal/infrastructure/persistence"
	"github.com/farmerp/backend/internal/infrastructure/persistence/integritytest"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestParseFlags(t *testing.T) {
	farm := uuid.NewString()
	audit := uuid.NewString()

	tests := []struct {
		name    string
		args    []string
		want    mode
		wantErr string
	}{
		{name: "detect by default", args: nil, want: modeDetect},
		{name: "preview", args: []string{"--farm", farm, "--preview"}, want: modePreview},
		{name: "apply", args: []string{"--apply", "--kind", "quantity_mismatch"}, want: modeApply},
		{name: "restore", args: []string{"--restore-type", "mutation", "--restore-id", farm}, want: modeRestore},
		{name: "rollback", args: []string{"--rollback", audit}, want: modeRollback},
		{name: "apply without kind", args: []string{"--apply"}, wantErr: "valid --kind"},
		{name: "unknown kind", args: []string{"--apply", "--kind", "bogus"}, wantErr: "valid --kind"},
		{name: "two scopes", args: []string{"--farm", farm, "--record", farm}, wantErr: "at most one"},
		{name: "bad farm id", args: []string{"--farm", "x"}, wantErr: "--farm"},
		{name: "bad restore type", args: []string{"--restore-type", "adjustment", "--restore-id", farm}, wantErr: "--restore-type"},
		{name: "two actions", args: []string{"--apply", "--kind", "quantity_mismatch", "--rollback", audit}, wantErr: "mutually exclusive"},
		{name: "explicit dry run with apply", args: []string{"--dry-run", "--apply", "--kind", "quantity_mismatch"}, wantErr: "--dry-run"},
		{name: "no dry run without action", args: []string{"--dry-run=false"}, wantErr: "--dry-run=false"},
		{name: "stray argument", args: []string{"apply"}, wantErr: "unexpected argument"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts, err := parseFlags(tt.args, io.Discard)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, opts.mode)
		})
	}
}

func TestParseFlags_ScopeAndActor(t *testing.T) {
	livestock := uuid.New()
	actor := uuid.New()

	opts, err := parseFlags([]string{"--livestock", livestock.String(), "--actor", actor.String()}, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, integrity.LivestockScope(livestock), opts.scope)
	require.NotNil(t, opts.actor)
	assert.Equal(t, actor, *opts.actor)
}

type cliHarness struct {
	seed  *integritytest.Seeder
	svc   *appintegrity.IntegrityService
	audit *persistence.GormAuditTrailRepository
}

func newCLIHarness(t *testing.T) *cliHarness {
	t.Helper()
	db := integritytest.NewSQLiteDB(t)
	seed := integritytest.NewSeeder(t, db)
	audit := persistence.NewGormAuditTrailRepository(db)
	svc := appintegrity.NewIntegrityService(
		persistence.NewGormGraphLoader(db, false),
		persistence.NewGormIntegrityTransactionScope(db, nil, seed.Clock),
		audit,
		zap.NewNop(),
	)
	svc.SetClock(seed.Clock)
	return &cliHarness{seed: seed, svc: svc, audit: audit}
}

func jsonLines(t *testing.T, b *bytes.Buffer) []integrity.LogEntry {
	t.Helper()
	var out []integrity.LogEntry
	sc := bufio.NewScanner(b)
	for sc.Scan() {
		var e integrity.LogEntry
		require.NoError(t, json.Unmarshal(sc.Bytes(), &e), sc.Text())
		out = append(out, e)
	}
	return out
}

func TestRun_DetectApplyRollback(t *testing.T) {
	h := newCLIHarness(t)
	ctx := context.Background()
	line := h.seed.PurchaseLine("10", "sack", "50")
	entry := h.seed.PurchaseLedger(line, "10")
	h.seed.SyncSummaries()
	farm := integrity.FarmScope(h.seed.FarmID)

	var out bytes.Buffer
	code := run(ctx, h.svc, options{mode: modeDetect, scope: farm}, &out, zap.NewNop())
	require.Equal(t, exitOK, code)
	lines := jsonLines(t, &out)
	require.Len(t, lines, 1)
	assert.Equal(t, string(integrity.KindQuantityMismatch), lines[0].Type)

	out.Reset()
	actor := uuid.New()
	code = run(ctx, h.svc, options{mode: modeApply, kind: integrity.KindQuantityMismatch, scope: farm, actor: &actor}, &out, zap.NewNop())
	require.Equal(t, exitOK, code)
	lines = jsonLines(t, &out)
	require.Len(t, lines, 1)
	assert.Equal(t, "fix_applied", lines[0].Type)
	assert.True(t, h.seed.LoadLedger(entry.ID).AmountIn.Equal(integritytest.Dec("500")))

	auditID, err := uuid.Parse(lines[0].Data["audit_entry_id"].(string))
	require.NoError(t, err)
	stored, err := h.audit.FindByID(ctx, auditID)
	require.NoError(t, err)
	require.NotNil(t, stored.ActorID)
	assert.Equal(t, actor, *stored.ActorID)

	out.Reset()
	code = run(ctx, h.svc, options{mode: modeRollback, auditID: auditID}, &out, zap.NewNop())
	require.Equal(t, exitOK, code)
	assert.True(t, h.seed.LoadLedger(entry.ID).AmountIn.Equal(integritytest.Dec("10")))
}

func TestRun_Preview(t *testing.T) {
	h := newCLIHarness(t)
	line := h.seed.PurchaseLine("10", "sack", "50")
	h.seed.PurchaseLedger(line, "10")
	h.seed.SyncSummaries()

	var out bytes.Buffer
	code := run(context.Background(), h.svc, options{mode: modePreview, scope: integrity.FarmScope(h.seed.FarmID)}, &out, zap.NewNop())
	require.Equal(t, exitOK, code)

	var entry integrity.PreviewEntry
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(out.Bytes()), &entry))
	assert.True(t, entry.Correctable)
	assert.Equal(t, integrity.KindQuantityMismatch, entry.Finding.Kind)
}

func TestRun_RestoreFailureExitCode(t *testing.T) {
	h := newCLIHarness(t)

	var out bytes.Buffer
	code := run(context.Background(), h.svc, options{
		mode:       modeRestore,
		sourceType: inventory.SourceTypePurchase,
		sourceID:   uuid.New(),
	}, &out, zap.NewNop())
	assert.Equal(t, exitFailed, code)

	lines := jsonLines(t, &out)
	require.Len(t, lines, 1)
	assert.Equal(t, "fix_failed", lines[0].Type)
	assert.Equal(t, string(integrity.ErrKindNotRestorable), lines[0].Data["error_kind"])
}

func TestRun_CancelledBatchIsPartial(t *testing.T) {
	h := newCLIHarness(t)
	line := h.seed.PurchaseLine("10", "sack", "50")
	h.seed.PurchaseLedger(line, "10")
	h.seed.SyncSummaries()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out bytes.Buffer
	code := run(ctx, h.svc, options{mode: modeApply, kind: integrity.KindQuantityMismatch, scope: integrity.AllScope()}, &out, zap.NewNop())
	assert.NotEqual(t, exitOK, code)
}

func TestExitCodeFor(t *testing.T) {
	ref := integrity.EntityRef{Type: integrity.EntityStockLedger, ID: uuid.New()}
	ok := integrity.Applied(integrity.KindQuantityMismatch, ref, uuid.New(), "")
	bad := integrity.Failed(integrity.KindQuantityMismatch, ref, integrity.ErrKindConversion, "")

	assert.Equal(t, exitOK, exitCodeFor())
	assert.Equal(t, exitOK, exitCodeFor(ok))
	assert.Equal(t, exitFailed, exitCodeFor(bad))
	assert.Equal(t, exitPartial, exitCodeFor(ok, bad))
}
