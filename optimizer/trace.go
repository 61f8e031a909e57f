package optimizer

import (
	"fmt"
	"slices"
	"strings"

	"github.com/tensorexpr/texopt/exprgraph"
)

// RewriteRecord documents one applied rewrite: which rule fired, the node ids
// it matched (and removed), the node ids that replaced them, and the estimated
// cost on both sides. Records are never mutated once appended.
type RewriteRecord struct {
	Rule           string
	MatchedIds     []exprgraph.NodeId
	ReplacementIds []exprgraph.NodeId
	CostBefore     float64
	CostAfter      float64
}

// String implements fmt.Stringer.
func (r RewriteRecord) String() string {
	return fmt.Sprintf("%s: matched %v -> replacement %v, cost %g -> %g",
		r.Rule, r.MatchedIds, r.ReplacementIds, r.CostBefore, r.CostAfter)
}

// Trace is the ordered, append-only sequence of rewrites applied during one
// optimization run. Each run owns its trace; traces are never shared.
type Trace struct {
	records []RewriteRecord
}

func (t *Trace) append(r RewriteRecord) {
	t.records = append(t.records, r)
}

// Records returns a copy of the applied rewrite records, in application order.
func (t *Trace) Records() []RewriteRecord {
	return slices.Clone(t.records)
}

// Len returns the number of rewrites applied.
func (t *Trace) Len() int { return len(t.records) }

// Empty returns whether no rewrite was applied: the input graph was already a
// fixpoint.
func (t *Trace) Empty() bool { return len(t.records) == 0 }

// String renders the trace as a human-readable summary, one rewrite per line.
// Callers wanting JSON or other formats should walk Records themselves.
func (t *Trace) String() string {
	if t.Empty() {
		return "no rewrites applied\n"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d rewrites applied:\n", len(t.records))
	for ii, record := range t.records {
		fmt.Fprintf(&b, "%3d. %s\n", ii+1, record)
	}
	return b.String()
}
