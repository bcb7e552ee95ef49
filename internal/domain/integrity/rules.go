package integrity

import (
	"context"
	"fmt"
)

// Rule is one consistency check over a loaded graph. Rules are pure: they
// never write and never query beyond the graph.
type Rule interface {
	Name() string
	Evaluate(ctx context.Context, g *Graph) ([]Finding, error)
}

// Detector runs its rules in registration order.
type Detector struct {
	rules []Rule
}

// NewDetector constructs an empty detector.
func NewDetector() *Detector {
	return &Detector{}
}

// NewDefaultDetector builds a detector with the built-in rule set.
func NewDefaultDetector() *Detector {
	d := NewDetector()
	d.Register(NewEmptySourceReferenceRule())
	d.Register(NewOrphanedSourceRule())
	d.Register(NewQuantityMismatchRule())
	d.Register(NewConversionMismatchRule())
	d.Register(NewMutationQuantityMismatchRule())
	d.Register(NewMissingDownstreamRule())
	d.Register(NewStockSummaryRule())
	return d
}

// Register appends a rule to the detector.
func (d *Detector) Register(rule Rule) {
	d.rules = append(d.rules, rule)
}

// Rules returns the registered rule names in evaluation order.
func (d *Detector) Rules() []string {
	names := make([]string, 0, len(d.rules))
	for _, r := range d.rules {
		names = append(names, r.Name())
	}
	return names
}

// Detect evaluates every rule. A failing rule aborts the run so a partial
// result is never mistaken for a clean one.
func (d *Detector) Detect(ctx context.Context, g *Graph) ([]Finding, error) {
	findings := make([]Finding, 0)
	for _, rule := range d.rules {
		if err := ctx.Err(); err != nil {
			return nil, NewDetectionError(err, "detection cancelled before rule %s", rule.Name())
		}
		res, err := rule.Evaluate(ctx, g)
		if err != nil {
			return nil, NewDetectionError(err, "rule %s failed", rule.Name())
		}
		findings = append(findings, res...)
	}
	return findings, nil
}

// FilterByKind keeps the findings of one kind, preserving order.
func FilterByKind(findings []Finding, kind Kind) []Finding {
	out := make([]Finding, 0, len(findings))
	for _, f := range findings {
		if f.Kind == kind {
			out = append(out, f)
		}
	}
	return out
}

func reasonf(format string, args ...any) string {
	return fmt.Sprintf(format, args...)
}
