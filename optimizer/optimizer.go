// Package optimizer rewrites tensor expression graphs into cheaper equivalent
// ones, by applying local peephole rules to a fixpoint.
//
// The entry point is Optimize. It works on a private clone of the caller's
// graph, runs the rule battery over a worklist until no rule fires anymore,
// and verifies every rewrite it applies: the replacement must keep the shape
// and dtype of what it replaced, must still pass shape inference, and must not
// increase the estimated cost. A failed verification aborts the run with
// ErrSemanticDrift or ErrCostRegression rather than returning a graph the
// optimizer cannot vouch for, and the rewrite budget turns any rule
// interaction cycle into ErrNonTermination instead of a hang.
package optimizer

import (
	"github.com/pkg/errors"
	"github.com/tensorexpr/texopt/exprgraph"
	"github.com/tensorexpr/texopt/ops"
	"github.com/tensorexpr/texopt/types"
	"k8s.io/klog/v2"
)

// DefaultMaxRewrites is the rewrite budget used when Config.MaxRewrites is
// left zero. The shipped rules strictly shrink the graph or reduce cost, so a
// legitimate run on a reasonable graph stays far below it.
const DefaultMaxRewrites = 1000

// Config parameterizes an optimization run. The zero value is usable and
// equivalent to DefaultConfig().
type Config struct {
	// MaxRewrites caps the total number of rewrites applied in one run.
	// Exceeding it fails the run with ErrNonTermination. Zero means
	// DefaultMaxRewrites; negative disables the cap.
	MaxRewrites int

	// RulePriority lists rule names in the order they are attempted at each
	// node; the first match wins. Empty means all rules in default order.
	// Listing a subset disables the unlisted rules.
	RulePriority []string

	// CostWeights overrides DefaultCostWeights per op type.
	CostWeights map[ops.OpType]float64
}

// DefaultConfig returns the default optimization configuration: all rules, in
// default priority, with DefaultMaxRewrites and DefaultCostWeights.
func DefaultConfig() Config { return Config{} }

// Optimize rewrites the graph to a cheaper equivalent and returns the
// optimized graph along with the trace of rewrites applied. The input graph is
// never mutated: all work happens on a clone, so the caller can diff the two.
//
// The graph must have its outputs designated (Graph.SetOutputs), as they
// define both liveness and what rewrites must preserve. On ErrNonTermination
// the partially optimized graph and trace are still returned; on
// ErrSemanticDrift or ErrCostRegression only the trace is.
func Optimize(g *exprgraph.Graph, cfg Config) (*exprgraph.Graph, *Trace, error) {
	trace := &Trace{}
	if len(g.Outputs()) == 0 {
		return nil, trace, errors.Errorf("graph %q has no designated outputs, call SetOutputs before optimizing", g.Name())
	}
	rules, err := rulesByPriority(cfg.RulePriority)
	if err != nil {
		return nil, trace, err
	}
	cost, err := NewCostModel(cfg.CostWeights)
	if err != nil {
		return nil, trace, err
	}
	maxRewrites := cfg.MaxRewrites
	if maxRewrites == 0 {
		maxRewrites = DefaultMaxRewrites
	}

	r := &run{
		graph:       g.Clone(),
		rules:       rules,
		cost:        cost,
		maxRewrites: maxRewrites,
		trace:       trace,
	}
	r.graph.EliminateDeadNodes()

	for pass := 1; ; pass++ {
		applied, err := r.runPass()
		if err != nil {
			if errors.Is(err, ErrNonTermination) {
				return r.graph, r.trace, err
			}
			return nil, r.trace, err
		}
		klog.V(1).Infof("optimizing graph %q: pass #%d applied %d rewrites", g.Name(), pass, applied)
		if applied == 0 {
			break
		}
	}

	if err := r.graph.CheckShapes(); err != nil {
		return nil, r.trace, errors.Wrapf(ErrSemanticDrift, "optimized graph %q fails shape re-derivation: %v", g.Name(), err)
	}
	return r.graph, r.trace, nil
}

// run holds the mutable state of one Optimize call.
type run struct {
	graph       *exprgraph.Graph
	rules       []Rule
	cost        *CostModel
	maxRewrites int
	trace       *Trace
	rewrites    int
}

// runPass drains one worklist seeded with every live node in topological
// order and returns the number of rewrites applied. After each rewrite the
// replacement root and its consumers are re-queued, since the rewrite may have
// enabled new matches there; everything else on the worklist stays valid or is
// skipped once dead.
func (r *run) runPass() (applied int, err error) {
	g := r.graph
	var worklist []exprgraph.NodeId
	queued := types.MakeSet[exprgraph.NodeId](g.NumNodes())
	enqueue := func(id exprgraph.NodeId) {
		if queued.Has(id) {
			return
		}
		queued.Insert(id)
		worklist = append(worklist, id)
	}
	for _, node := range g.TopoSort() {
		enqueue(node.Id())
	}

	for len(worklist) > 0 {
		id := worklist[0]
		worklist = worklist[1:]
		delete(queued, id)
		node := g.NodeByID(id)
		if node == nil {
			// Removed by an earlier rewrite in this pass.
			continue
		}
		for _, rule := range r.rules {
			m := rule.Match(g, node)
			if m == nil {
				continue
			}
			newRoot, err := r.applyRule(rule, m)
			if err != nil {
				return applied, err
			}
			applied++
			enqueue(newRoot.Id())
			for _, consumer := range g.Consumers(newRoot) {
				enqueue(consumer.Id())
			}
			// node is gone or rewired; the replacement was re-queued.
			break
		}
	}
	return applied, nil
}

// applyRule runs one verified rewrite: budget check, apply, shape and dtype
// preservation check, cost check, dead node sweep, trace record.
func (r *run) applyRule(rule Rule, m *Match) (*exprgraph.Node, error) {
	g := r.graph
	if r.maxRewrites >= 0 && r.rewrites >= r.maxRewrites {
		return nil, errors.Wrapf(ErrNonTermination, "graph %q: rule %q still matches node %s after %d rewrites",
			g.Name(), rule.Name, m.Root, r.rewrites)
	}

	matchedIds := make([]exprgraph.NodeId, len(m.Nodes))
	for ii, node := range m.Nodes {
		matchedIds[ii] = node.Id()
	}
	oldShape := m.Root.Shape().Clone()
	costBefore := r.cost.SubgraphCost(m.Nodes)

	newRoot, created, err := rule.Apply(g, m)
	if err != nil {
		return nil, errors.WithMessagef(err, "graph %q: rule %q failed to rewrite node #%d", g.Name(), rule.Name, matchedIds[0])
	}

	if !newRoot.Shape().Equal(oldShape) {
		return nil, errors.Wrapf(ErrSemanticDrift, "graph %q: rule %q rewrote a node of shape %s into %s of shape %s",
			g.Name(), rule.Name, oldShape, newRoot, newRoot.Shape())
	}
	derived, err := g.RecomputeShape(newRoot)
	if err != nil || !derived.Equal(newRoot.Shape()) {
		return nil, errors.Wrapf(ErrSemanticDrift, "graph %q: rule %q produced node %s that no longer infers its shape (derived %s, err %v)",
			g.Name(), rule.Name, newRoot, derived, err)
	}

	costAfter := r.cost.SubgraphCost(created)
	if costAfter > costBefore {
		return nil, errors.Wrapf(ErrCostRegression, "graph %q: rule %q replaced cost %g with cost %g at node #%d",
			g.Name(), rule.Name, costBefore, costAfter, matchedIds[0])
	}

	g.EliminateDeadNodes()
	r.rewrites++

	replacementIds := make([]exprgraph.NodeId, len(created))
	for ii, node := range created {
		replacementIds[ii] = node.Id()
	}
	record := RewriteRecord{
		Rule:           rule.Name,
		MatchedIds:     matchedIds,
		ReplacementIds: replacementIds,
		CostBefore:     costBefore,
		CostAfter:      costAfter,
	}
	r.trace.append(record)
	klog.V(2).Infof("graph %q: %s", g.Name(), record)
	return newRoot, nil
}
