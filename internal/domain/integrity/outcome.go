package integrity

import "github.com/google/uuid"

// OutcomeStatus tags an Outcome.
type OutcomeStatus string

const (
	OutcomeApplied OutcomeStatus = "applied"
	OutcomeSkipped OutcomeStatus = "skipped"
	OutcomeFailed  OutcomeStatus = "failed"
)

// Skip reasons.
const (
	SkipStaleFinding = "skipped_stale_finding"
	SkipCancelled    = "cancelled"
)

// Outcome is the result of applying one fix, restore or rollback:
// Applied(auditEntryID), Skipped(reason) or Failed(errorKind, message).
type Outcome struct {
	Status       OutcomeStatus `json:"status"`
	Kind         Kind          `json:"kind,omitempty"`
	Subject      EntityRef     `json:"subject"`
	AuditEntryID *uuid.UUID    `json:"audit_entry_id,omitempty"`
	Reason       string        `json:"reason,omitempty"`
	ErrorKind    ErrorKind     `json:"error_kind,omitempty"`
	Message      string        `json:"message"`
}

// Applied builds a successful outcome.
func Applied(kind Kind, subject EntityRef, auditEntryID uuid.UUID, message string) Outcome {
	return Outcome{Status: OutcomeApplied, Kind: kind, Subject: subject, AuditEntryID: &auditEntryID, Message: message}
}

// Skipped builds an outcome for work that was deliberately not done.
func Skipped(kind Kind, subject EntityRef, reason, message string) Outcome {
	return Outcome{Status: OutcomeSkipped, Kind: kind, Subject: subject, Reason: reason, Message: message}
}

// Failed builds an outcome for work that was attempted and rolled back.
func Failed(kind Kind, subject EntityRef, errKind ErrorKind, message string) Outcome {
	return Outcome{Status: OutcomeFailed, Kind: kind, Subject: subject, ErrorKind: errKind, Message: message}
}

// FailedFromError builds a Failed outcome classifying err.
func FailedFromError(kind Kind, subject EntityRef, err error) Outcome {
	return Failed(kind, subject, KindOf(err), MessageOf(err))
}

// IsApplied reports whether the outcome is Applied
func (o Outcome) IsApplied() bool {
	return o.Status == OutcomeApplied
}

// LogEntry converts the outcome to the {type, message, data} shape. The type
// is the skip reason for skips, "fix_failed" for failures and "fix_applied"
// for applied fixes.
func (o Outcome) LogEntry() LogEntry {
	data := map[string]any{
		"status":       string(o.Status),
		"subject_type": string(o.Subject.Type),
		"subject_id":   o.Subject.ID.String(),
	}
	if o.Kind != "" {
		data["kind"] = string(o.Kind)
	}
	entryType := "fix_applied"
	switch o.Status {
	case OutcomeApplied:
		data["audit_entry_id"] = o.AuditEntryID.String()
	case OutcomeSkipped:
		entryType = o.Reason
	case OutcomeFailed:
		entryType = "fix_failed"
		data["error_kind"] = string(o.ErrorKind)
	}
	return LogEntry{Type: entryType, Message: o.Message, Data: data}
}
