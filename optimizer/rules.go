package optimizer

import (
	"slices"

	"github.com/pkg/errors"
	"github.com/tensorexpr/texopt/exprgraph"
	"github.com/tensorexpr/texopt/ops"
	"github.com/tensorexpr/texopt/types"
)

// Match binds the subgraph a rule recognized rooted at a node.
type Match struct {
	// Root is the node the pattern fired at.
	Root *exprgraph.Node

	// Nodes are the matched nodes the rewrite removes (they become dead once
	// the replacement is wired in), root first.
	Nodes []*exprgraph.Node
}

// Rule pairs a pattern matcher with its rewrite.
//
// Match is a pure function of (graph, node): it never mutates the graph and
// returns nil when the pattern does not fire rooted at the node. Apply builds
// the replacement subgraph, substitutes it for the matched root, and returns
// the replacement root plus the nodes it created (empty when the rewrite only
// bypasses the root). Apply is deterministic: the same match always produces a
// structurally identical replacement.
type Rule struct {
	Name  string
	Match func(g *exprgraph.Graph, n *exprgraph.Node) *Match
	Apply func(g *exprgraph.Graph, m *Match) (root *exprgraph.Node, created []*exprgraph.Node, err error)
}

// Rule names, usable in Config.RulePriority.
const (
	RuleShapeBeforeReduce      = "shape-before-reduce"
	RuleFuseElementWise        = "fuse-element-wise"
	RuleMergeShapeTransforms   = "merge-shape-transforms"
	RuleEliminateNoopTransform = "eliminate-noop-transform"
	RuleMergeReductions        = "merge-reductions"
)

// DefaultRules returns the rule battery in its default priority order.
func DefaultRules() []Rule {
	return []Rule{
		{Name: RuleShapeBeforeReduce, Match: matchShapeBeforeReduce, Apply: applyShapeBeforeReduce},
		{Name: RuleFuseElementWise, Match: matchFuseElementWise, Apply: applyFuseElementWise},
		{Name: RuleMergeShapeTransforms, Match: matchMergeShapeTransforms, Apply: applyMergeShapeTransforms},
		{Name: RuleEliminateNoopTransform, Match: matchEliminateNoopTransform, Apply: applyEliminateNoopTransform},
		{Name: RuleMergeReductions, Match: matchMergeReductions, Apply: applyMergeReductions},
	}
}

// rulesByPriority resolves the configured rule name order into a rule slice.
// Listing a subset disables the unlisted rules for the run.
func rulesByPriority(names []string) ([]Rule, error) {
	all := DefaultRules()
	if len(names) == 0 {
		return all, nil
	}
	byName := make(map[string]Rule, len(all))
	for _, rule := range all {
		byName[rule.Name] = rule
	}
	rules := make([]Rule, 0, len(names))
	seen := types.MakeSet[string](len(names))
	for _, name := range names {
		rule, ok := byName[name]
		if !ok {
			return nil, errors.Errorf("unknown rule %q in rule priority, valid rules are %v", name, ruleNames(all))
		}
		if seen.Has(name) {
			return nil, errors.Errorf("rule %q repeated in rule priority", name)
		}
		seen.Insert(name)
		rules = append(rules, rule)
	}
	return rules, nil
}

func ruleNames(rules []Rule) []string {
	names := make([]string, len(rules))
	for ii, rule := range rules {
		names[ii] = rule.Name
	}
	return names
}

// soleConsumer returns the single node consuming n, or nil if n has zero or
// multiple consuming references or is a designated graph output. Fusion rules
// must only remove intermediates that pass this check: a shared subexpression
// (or an externally observable output) would change value for its other
// observers if fused away.
func soleConsumer(g *exprgraph.Graph, n *exprgraph.Node) *exprgraph.Node {
	if g.IsOutput(n) {
		return nil
	}
	if g.NumReferences(n) != 1 {
		return nil
	}
	consumers := g.Consumers(n)
	if len(consumers) != 1 {
		return nil
	}
	return consumers[0]
}

func isShapeTransform(opType ops.OpType) bool {
	return opType == ops.OpTypeReshape || opType == ops.OpTypeTranspose
}

// --- shape-before-reduce --------------------------------------------------
//
// A full reduction folds every element regardless of layout, so a reshape or
// transpose feeding it is irrelevant: Reduce(full, Transform(x)) == Reduce(full, x).

func matchShapeBeforeReduce(g *exprgraph.Graph, n *exprgraph.Node) *Match {
	if n.Type() != ops.OpTypeReduce {
		return nil
	}
	transform := n.Inputs()[0]
	if !isShapeTransform(transform.Type()) {
		return nil
	}
	if soleConsumer(g, transform) != n {
		return nil
	}
	attrs := n.ReduceInfo()
	if !attrs.IsFull(transform.Rank()) {
		return nil
	}
	// With keepDims, the output keeps one size-1 axis per input axis; a
	// reshape may change the rank, so bypassing it would change the output
	// shape. Transposes preserve rank and stay safe.
	if attrs.KeepDims && transform.Type() == ops.OpTypeReshape {
		return nil
	}
	if !transform.Inputs()[0].Shape().SameSize(transform.Shape()) {
		// Pure shape transforms always preserve the element count; anything
		// else is not a transform this rule understands.
		return nil
	}
	return &Match{Root: n, Nodes: []*exprgraph.Node{n, transform}}
}

func applyShapeBeforeReduce(g *exprgraph.Graph, m *Match) (*exprgraph.Node, []*exprgraph.Node, error) {
	transform := m.Nodes[1]
	x := transform.Inputs()[0]
	attrs := m.Root.ReduceInfo()
	newRoot, err := g.AddNode(ops.OpTypeReduce, exprgraph.ReduceAttrs{Op: attrs.Op, KeepDims: attrs.KeepDims}, x)
	if err != nil {
		return nil, nil, err
	}
	if err := g.ReplaceSubgraph(m.Root, newRoot); err != nil {
		return nil, nil, err
	}
	return newRoot, []*exprgraph.Node{newRoot}, nil
}

// --- fuse-element-wise ----------------------------------------------------
//
// A chain of element-wise nodes linked through their first operand, with
// single-use intermediates, computes one expression per output element; fusing
// it into a single node turns k passes over the data into one.

func matchFuseElementWise(g *exprgraph.Graph, n *exprgraph.Node) *Match {
	if n.Type() != ops.OpTypeElementWise {
		return nil
	}
	nodes := []*exprgraph.Node{n}
	for cur := n; ; {
		child := cur.Inputs()[0]
		if child.Type() != ops.OpTypeElementWise || soleConsumer(g, child) != cur {
			break
		}
		nodes = append(nodes, child)
		cur = child
	}
	if len(nodes) < 2 {
		return nil
	}
	return &Match{Root: n, Nodes: nodes}
}

func applyFuseElementWise(g *exprgraph.Graph, m *Match) (*exprgraph.Node, []*exprgraph.Node, error) {
	// m.Nodes is root first; stages apply deepest first.
	ordered := slices.Clone(m.Nodes)
	slices.Reverse(ordered)

	var stages []exprgraph.ElementWiseStage
	var inputs []*exprgraph.Node
	for ii, node := range ordered {
		nodeInputs := node.Inputs()
		switch a := node.Attrs().(type) {
		case exprgraph.ElementWiseAttrs:
			stages = append(stages, exprgraph.ElementWiseStage{Fn: a.Fn, Arity: len(nodeInputs)})
		case exprgraph.FusedExprAttrs:
			// Fusing an already-fused node concatenates its stages.
			stages = append(stages, a.Stages...)
		default:
			return nil, nil, errors.Errorf("element-wise node %s carries unexpected attrs %T", node, node.Attrs())
		}
		if ii == 0 {
			inputs = append(inputs, nodeInputs...)
		} else {
			// The first operand is the chain value, produced by the previous
			// stage; only the remaining operands become fused-node inputs.
			inputs = append(inputs, nodeInputs[1:]...)
		}
	}

	newRoot, err := g.AddNode(ops.OpTypeElementWise, exprgraph.FusedExprAttrs{Stages: stages}, inputs...)
	if err != nil {
		return nil, nil, err
	}
	if err := g.ReplaceSubgraph(m.Root, newRoot); err != nil {
		return nil, nil, err
	}
	return newRoot, []*exprgraph.Node{newRoot}, nil
}

// --- merge-shape-transforms -----------------------------------------------
//
// Two consecutive reshapes collapse into the outer reshape; two consecutive
// transposes collapse into the composed permutation. Mixed reshape/transpose
// pairs are NOT merged: a transpose moves axis information a literal
// shape-to-shape merge cannot represent.

func matchMergeShapeTransforms(g *exprgraph.Graph, n *exprgraph.Node) *Match {
	if !isShapeTransform(n.Type()) {
		return nil
	}
	inner := n.Inputs()[0]
	if inner.Type() != n.Type() {
		return nil
	}
	if soleConsumer(g, inner) != n {
		return nil
	}
	return &Match{Root: n, Nodes: []*exprgraph.Node{n, inner}}
}

func applyMergeShapeTransforms(g *exprgraph.Graph, m *Match) (*exprgraph.Node, []*exprgraph.Node, error) {
	inner := m.Nodes[1]
	x := inner.Inputs()[0]
	var newRoot *exprgraph.Node
	var err error
	switch m.Root.Type() {
	case ops.OpTypeReshape:
		// The intermediate layout is irrelevant: only the final dims matter.
		dims := m.Root.Attrs().(exprgraph.ReshapeAttrs).Dimensions
		newRoot, err = g.Reshape(x, dims...)
	case ops.OpTypeTranspose:
		innerPerm := inner.Attrs().(exprgraph.TransposeAttrs).Permutation
		outerPerm := m.Root.Attrs().(exprgraph.TransposeAttrs).Permutation
		// z[i] = y[outer[i]] and y[j] = x[inner[j]], so z[i] = x[inner[outer[i]]].
		composed := make([]int, len(outerPerm))
		for ii, srcAxis := range outerPerm {
			composed[ii] = innerPerm[srcAxis]
		}
		newRoot, err = g.Transpose(x, composed...)
	default:
		return nil, nil, errors.Errorf("merge-shape-transforms matched unexpected op %s", m.Root)
	}
	if err != nil {
		return nil, nil, err
	}
	if err := g.ReplaceSubgraph(m.Root, newRoot); err != nil {
		return nil, nil, err
	}
	return newRoot, []*exprgraph.Node{newRoot}, nil
}

// --- eliminate-noop-transform ---------------------------------------------
//
// An identity reshape or transpose produces exactly its input; every consumer
// can read the input directly, so no single-consumer check is needed.

func matchEliminateNoopTransform(g *exprgraph.Graph, n *exprgraph.Node) *Match {
	switch a := n.Attrs().(type) {
	case exprgraph.ReshapeAttrs:
		if !a.IsIdentity(n.Inputs()[0].Shape()) {
			return nil
		}
	case exprgraph.TransposeAttrs:
		if !a.IsIdentity() {
			return nil
		}
	default:
		return nil
	}
	return &Match{Root: n, Nodes: []*exprgraph.Node{n}}
}

func applyEliminateNoopTransform(g *exprgraph.Graph, m *Match) (*exprgraph.Node, []*exprgraph.Node, error) {
	x := m.Root.Inputs()[0]
	if err := g.ReplaceSubgraph(m.Root, x); err != nil {
		return nil, nil, err
	}
	return x, nil, nil
}

// --- merge-reductions -----------------------------------------------------
//
// Two value-preserving cases, and nothing else:
//
//  1. The inner reduction already produced a scalar. Reducing a single element
//     returns that element for every ReduceOpKind, so the outer reduction is
//     an identity and is dropped. Note the composed value is the INNER
//     reduction's: sum(x) followed by mean is sum(x), not mean(x).
//  2. Both reductions fold the same op with the same keepDims. Sum, Product,
//     Max and Min compose over the union of the axis sets directly; Mean does
//     too because the groups of a rectangular tensor all have equal size, so
//     the mean of per-group means is the overall mean.
//
// Anything that cannot be proven value-preserving at this symbolic level
// (mixed op kinds over non-scalars, differing keepDims) is non-applicable.

func matchMergeReductions(g *exprgraph.Graph, n *exprgraph.Node) *Match {
	if n.Type() != ops.OpTypeReduce {
		return nil
	}
	inner := n.Inputs()[0]
	if inner.Type() != ops.OpTypeReduce {
		return nil
	}
	if inner.IsScalar() {
		// Outer reduce over a scalar is an identity; only the root goes away,
		// so this fires even when the inner reduction has other consumers.
		return &Match{Root: n, Nodes: []*exprgraph.Node{n}}
	}
	if soleConsumer(g, inner) != n {
		return nil
	}
	outerAttrs, innerAttrs := n.ReduceInfo(), inner.ReduceInfo()
	if outerAttrs.Op != innerAttrs.Op || outerAttrs.KeepDims != innerAttrs.KeepDims {
		return nil
	}
	return &Match{Root: n, Nodes: []*exprgraph.Node{n, inner}}
}

func applyMergeReductions(g *exprgraph.Graph, m *Match) (*exprgraph.Node, []*exprgraph.Node, error) {
	inner := m.Root.Inputs()[0]
	if inner.IsScalar() {
		if err := g.ReplaceSubgraph(m.Root, inner); err != nil {
			return nil, nil, err
		}
		return inner, nil, nil
	}
	x := inner.Inputs()[0]
	attrs := inner.ReduceInfo()
	merged := mergeReduceAxes(x.Rank(), attrs, m.Root.ReduceInfo())
	newRoot, err := g.AddNode(ops.OpTypeReduce,
		exprgraph.ReduceAttrs{Op: attrs.Op, Axes: merged, KeepDims: attrs.KeepDims}, x)
	if err != nil {
		return nil, nil, err
	}
	if err := g.ReplaceSubgraph(m.Root, newRoot); err != nil {
		return nil, nil, err
	}
	return newRoot, []*exprgraph.Node{newRoot}, nil
}

// mergeReduceAxes maps the outer reduction's axes back to the original
// operand's axis numbering and unions them with the inner reduction's axes.
// Returns nil (the canonical full reduction) when the union covers every axis.
func mergeReduceAxes(rank int, inner, outer exprgraph.ReduceAttrs) []int {
	innerAxes := normalizeAxes(inner.Axes, rank)
	innerSet := types.SetWith(innerAxes...)

	var outerRank int
	if inner.KeepDims {
		outerRank = rank
	} else {
		outerRank = rank - len(innerAxes)
	}
	outerAxes := normalizeAxes(outer.Axes, outerRank)

	merged := types.SetWith(innerAxes...)
	if inner.KeepDims {
		// Axis numbering is unchanged by a keepDims reduction.
		merged.Insert(outerAxes...)
	} else {
		// Axis b of the inner output is the b-th original axis that survived.
		var kept []int
		for axis := 0; axis < rank; axis++ {
			if !innerSet.Has(axis) {
				kept = append(kept, axis)
			}
		}
		for _, axis := range outerAxes {
			merged.Insert(kept[axis])
		}
	}
	if len(merged) == rank {
		return nil
	}
	axes := make([]int, 0, len(merged))
	for axis := 0; axis < rank; axis++ {
		if merged.Has(axis) {
			axes = append(axes, axis)
		}
	}
	return axes
}

// normalizeAxes resolves the nil-means-all convention.
func normalizeAxes(axes []int, rank int) []int {
	if len(axes) > 0 {
		return axes
	}
	all := make([]int, rank)
	for axis := range all {
		all[axis] = axis
	}
	return all
}
