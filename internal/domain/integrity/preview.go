package integrity

import (
	"context"
	"sort"
)

// PreviewEntry is the dry-run result for one finding. Before and After are
// empty when the finding cannot be corrected; ErrorKind and Reason say why.
type PreviewEntry struct {
	Finding     Finding   `json:"finding"`
	Correctable bool      `json:"correctable"`
	Before      *Snapshot `json:"before,omitempty"`
	After       *Snapshot `json:"after,omitempty"`
	ErrorKind   ErrorKind `json:"error_kind,omitempty"`
	Reason      string    `json:"reason,omitempty"`
}

// PreviewGroup holds the preview entries of one kind.
type PreviewGroup struct {
	Kind    Kind           `json:"kind"`
	Entries []PreviewEntry `json:"entries"`
}

// BuildPreview computes the correction of every finding against r without
// writing anything. Entries are ordered by kind, then detection order.
func BuildPreview(ctx context.Context, findings []Finding, r RecordReader) ([]PreviewEntry, error) {
	entries := make([]PreviewEntry, 0, len(findings))
	for _, f := range findings {
		c, err := ComputeCorrection(ctx, f, r)
		switch {
		case err == nil:
			before, after := c.Before, c.After
			entries = append(entries, PreviewEntry{Finding: f, Correctable: true, Before: &before, After: &after})
		case IsStale(err):
			entries = append(entries, PreviewEntry{Finding: f, Reason: SkipStaleFinding})
		default:
			kind := KindOf(err)
			if kind == ErrKindInternal {
				return nil, NewDetectionError(err, "computing correction for %s", f.Subject)
			}
			entries = append(entries, PreviewEntry{Finding: f, ErrorKind: kind, Reason: MessageOf(err)})
		}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return kindOrder(entries[i].Finding.Kind) < kindOrder(entries[j].Finding.Kind)
	})
	return entries, nil
}

// GroupPreview groups ordered entries by kind for presentation.
func GroupPreview(entries []PreviewEntry) []PreviewGroup {
	var groups []PreviewGroup
	for _, e := range entries {
		if n := len(groups); n > 0 && groups[n-1].Kind == e.Finding.Kind {
			groups[n-1].Entries = append(groups[n-1].Entries, e)
			continue
		}
		groups = append(groups, PreviewGroup{Kind: e.Finding.Kind, Entries: []PreviewEntry{e}})
	}
	return groups
}
