package integrity

import (
	"time"

	"github.com/google/uuid"
)

// AuditAction is what produced an audit entry.
type AuditAction string

const (
	AuditActionFix      AuditAction = "fix"
	AuditActionRollback AuditAction = "rollback"
)

// AuditTrailEntry records one applied fix or rollback with the full state of
// every record it touched. Entries are append-only.
type AuditTrailEntry struct {
	ID           uuid.UUID
	ModelType    EntityType
	ModelID      uuid.UUID
	Action       AuditAction
	FindingKind  Kind
	RollbackOfID *uuid.UUID
	Before       Snapshot
	After        Snapshot
	ActorID      *uuid.UUID
	CreatedAt    time.Time
}

// NewFixEntry creates the audit entry for an applied correction.
func NewFixEntry(c Correction, actorID *uuid.UUID, now time.Time) *AuditTrailEntry {
	return &AuditTrailEntry{
		ID:          uuid.New(),
		ModelType:   c.Subject.Type,
		ModelID:     c.Subject.ID,
		Action:      AuditActionFix,
		FindingKind: c.Kind,
		Before:      c.Before,
		After:       c.After,
		ActorID:     actorID,
		CreatedAt:   now,
	}
}

// NewRollbackEntry creates the entry that reverses target. Its before state is
// what target wrote and its after state is what the rollback wrote.
func NewRollbackEntry(target *AuditTrailEntry, written Snapshot, actorID *uuid.UUID, now time.Time) *AuditTrailEntry {
	targetID := target.ID
	return &AuditTrailEntry{
		ID:           uuid.New(),
		ModelType:    target.ModelType,
		ModelID:      target.ModelID,
		Action:       AuditActionRollback,
		FindingKind:  target.FindingKind,
		RollbackOfID: &targetID,
		Before:       target.After,
		After:        written,
		ActorID:      actorID,
		CreatedAt:    now,
	}
}

// TouchedRecords returns the subject followed by every other record either
// snapshot holds. Fixes that resync related rows list those rows here.
func (e *AuditTrailEntry) TouchedRecords() []EntityRef {
	subject := EntityRef{Type: e.ModelType, ID: e.ModelID}
	out := []EntityRef{subject}
	seen := map[EntityRef]bool{subject: true}
	for _, snap := range []Snapshot{e.Before, e.After} {
		for _, r := range snap.Records {
			ref := r.Ref()
			if seen[ref] {
				continue
			}
			seen[ref] = true
			out = append(out, ref)
		}
	}
	return out
}
