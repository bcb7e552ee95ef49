package dto

import (
	"errors"
	"time"

	"github.com/farmerp/backend/internal/domain/integrity"
	"github.com/google/uuid"
)

// ErrAmbiguousScope is returned when a request names more than one scope filter
var ErrAmbiguousScope = errors.New("at most one of farm_id, livestock_id and record_id may be set")

// ScopeRequest selects the records a detection or batch run covers.
// No filter means every record.
type ScopeRequest struct {
	FarmID      string `form:"farm_id" json:"farm_id" binding:"omitempty,uuid"`
	LivestockID string `form:"livestock_id" json:"livestock_id" binding:"omitempty,uuid"`
	RecordID    string `form:"record_id" json:"record_id" binding:"omitempty,uuid"`
}

// ToScope converts the request into a domain scope
func (r ScopeRequest) ToScope() (integrity.Scope, error) {
	set := 0
	for _, v := range []string{r.FarmID, r.LivestockID, r.RecordID} {
		if v != "" {
			set++
		}
	}
	if set > 1 {
		return integrity.Scope{}, ErrAmbiguousScope
	}

	switch {
	case r.FarmID != "":
		id, err := uuid.Parse(r.FarmID)
		return integrity.FarmScope(id), err
	case r.LivestockID != "":
		id, err := uuid.Parse(r.LivestockID)
		return integrity.LivestockScope(id), err
	case r.RecordID != "":
		id, err := uuid.Parse(r.RecordID)
		return integrity.RecordScope(id), err
	}
	return integrity.AllScope(), nil
}

// ApplyFixRequest carries one finding as returned by the findings endpoint
type ApplyFixRequest struct {
	Finding *integrity.Finding `json:"finding" binding:"required"`
}

// BatchFixRequest applies every finding of one kind within a scope
type BatchFixRequest struct {
	Kind string `json:"kind" binding:"required"`
	ScopeRequest
}

// RestoreRequest names a source whose ledger entry should be recreated
type RestoreRequest struct {
	SourceType string `json:"source_type" binding:"required,restore_source"`
	SourceID   string `json:"source_id" binding:"required,uuid"`
}

// AuditTrailQuery selects the audit history of one record
type AuditTrailQuery struct {
	ModelType string `form:"model_type" binding:"required,entity_type"`
	ModelID   string `form:"model_id" binding:"required,uuid"`
}

// FindingsResponse is the result of a detection run
type FindingsResponse struct {
	Scope    string              `json:"scope"`
	Count    int                 `json:"count"`
	Findings []integrity.Finding `json:"findings"`
}

// NewFindingsResponse wraps findings detected in scope
func NewFindingsResponse(scope integrity.Scope, findings []integrity.Finding) FindingsResponse {
	if findings == nil {
		findings = []integrity.Finding{}
	}
	return FindingsResponse{Scope: scope.Key(), Count: len(findings), Findings: findings}
}

// BatchFixResponse reports a batch run
type BatchFixResponse struct {
	Kind      integrity.Kind      `json:"kind"`
	Scope     string              `json:"scope"`
	Applied   int                 `json:"applied"`
	Skipped   int                 `json:"skipped"`
	Failed    int                 `json:"failed"`
	Cancelled bool                `json:"cancelled,omitempty"`
	Outcomes  []integrity.Outcome `json:"outcomes"`
}

// NewBatchFixResponse counts outcomes by status
func NewBatchFixResponse(kind integrity.Kind, scope integrity.Scope, outcomes []integrity.Outcome) BatchFixResponse {
	resp := BatchFixResponse{Kind: kind, Scope: scope.Key(), Outcomes: outcomes}
	if resp.Outcomes == nil {
		resp.Outcomes = []integrity.Outcome{}
	}
	for _, o := range outcomes {
		switch o.Status {
		case integrity.OutcomeApplied:
			resp.Applied++
		case integrity.OutcomeSkipped:
			resp.Skipped++
		case integrity.OutcomeFailed:
			resp.Failed++
		}
	}
	return resp
}

// AuditTrailEntryResponse is one audit entry with its full snapshots
type AuditTrailEntryResponse struct {
	ID           uuid.UUID             `json:"id"`
	ModelType    integrity.EntityType  `json:"model_type"`
	ModelID      uuid.UUID             `json:"model_id"`
	Action       integrity.AuditAction `json:"action"`
	FindingKind  integrity.Kind        `json:"finding_kind"`
	RollbackOfID *uuid.UUID            `json:"rollback_of_id,omitempty"`
	Before       integrity.Snapshot    `json:"before"`
	After        integrity.Snapshot    `json:"after"`
	ActorID      *uuid.UUID            `json:"actor_id,omitempty"`
	CreatedAt    time.Time             `json:"created_at"`
}

// NewAuditTrailResponse converts audit entries, keeping their order
func NewAuditTrailResponse(entries []integrity.AuditTrailEntry) []AuditTrailEntryResponse {
	out := make([]AuditTrailEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, AuditTrailEntryResponse{
			ID:           e.ID,
			ModelType:    e.ModelType,
			ModelID:      e.ModelID,
			Action:       e.Action,
			FindingKind:  e.FindingKind,
			RollbackOfID: e.RollbackOfID,
			Before:       e.Before,
			After:        e.After,
			ActorID:      e.ActorID,
			CreatedAt:    e.CreatedAt,
		})
	}
	return out
}
