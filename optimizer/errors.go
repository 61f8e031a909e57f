package optimizer

import "github.com/pkg/errors"

// The three run-time failure classes of an optimization run. All of them are
// fatal to the run: the optimizer never skips a broken rule or returns a graph
// it cannot vouch for. Build-time shape errors are a different class, see
// shapeinference.ErrShape, and those are recoverable by the caller.
var (
	// ErrSemanticDrift indicates a rewrite rule changed the observable shape or
	// dtype of the graph. This is a correctness bug in that rule, surfaced with
	// the rule name and node ids, never worked around.
	ErrSemanticDrift = errors.New("rewrite changed observable shape or dtype")

	// ErrNonTermination indicates the rewrite budget (Config.MaxRewrites) was
	// exceeded before reaching a fixpoint. The partial graph and trace are
	// still returned so the caller can inspect what is looping.
	ErrNonTermination = errors.New("optimization exceeded its rewrite budget")

	// ErrCostRegression indicates a rewrite created nodes that cost more than
	// the nodes it removed. Every shipped rule is non-cost-increasing, so like
	// ErrSemanticDrift this points at a bug in the offending rule.
	ErrCostRegression = errors.New("rewrite increased estimated cost")
)
