package optimizer

import (
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tensorexpr/texopt/exprgraph"
	"github.com/tensorexpr/texopt/ops"
)

func TestOptimizeRequiresOutputs(t *testing.T) {
	g := exprgraph.New("no-outputs")
	must1(g.Input("x", F32, 2, 3))
	_, _, err := Optimize(g, DefaultConfig())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SetOutputs")
}

func TestOptimizeDoesNotMutateInput(t *testing.T) {
	g := exprgraph.New("untouched")
	x := must1(g.Input("x", F32, 2, 3))
	tr := must1(g.Transpose(x, 1, 0))
	sum := must1(g.Reduce(ops.ReduceOpSum, tr))
	require.NoError(t, g.SetOutputs(sum))
	before := g.String()

	og, trace, err := Optimize(g, DefaultConfig())
	require.NoError(t, err)
	require.False(t, trace.Empty())
	assert.NotSame(t, g, og)
	assert.Equal(t, before, g.String())
	assert.Equal(t, 3, g.NumNodes())
	assert.NotNil(t, g.NodeByID(tr.Id()))
}

func TestOptimizeIsIdempotent(t *testing.T) {
	g := exprgraph.New("idempotent")
	x := must1(g.Input("x", F32, 2, 3))
	rs := must1(g.Reshape(x, 6))
	rs2 := must1(g.Reshape(rs, 3, 2))
	e := must1(g.ElementWise("exp", rs2))
	l := must1(g.ElementWise("log", e))
	require.NoError(t, g.SetOutputs(l))

	og, trace, err := Optimize(g, DefaultConfig())
	require.NoError(t, err)
	require.False(t, trace.Empty())

	og2, trace2, err := Optimize(og, DefaultConfig())
	require.NoError(t, err)
	assert.True(t, trace2.Empty(), "second optimization applied rewrites: %s", trace2)
	assert.Equal(t, og.String(), og2.String())
}

func TestOptimizeCostIsMonotone(t *testing.T) {
	g := exprgraph.New("monotone")
	x := must1(g.Input("x", F32, 8, 8))
	a := must1(g.ElementWise("exp", x))
	b := must1(g.ElementWise("neg", a))
	tr := must1(g.Transpose(b, 1, 0))
	sum := must1(g.Reduce(ops.ReduceOpSum, tr))
	require.NoError(t, g.SetOutputs(sum))

	og, trace, err := Optimize(g, DefaultConfig())
	require.NoError(t, err)
	for _, record := range trace.Records() {
		assert.LessOrEqual(t, record.CostAfter, record.CostBefore, "rewrite increased cost: %s", record)
	}
	cost, err := NewCostModel(nil)
	require.NoError(t, err)
	assert.LessOrEqual(t, cost.GraphCost(og), cost.GraphCost(g))
}

func TestRulePrioritySubsetDisablesRules(t *testing.T) {
	// Only fusion enabled: the identity reshape survives and, because it
	// breaks the element-wise chain, nothing fuses either.
	g := exprgraph.New("subset")
	x := must1(g.Input("x", F32, 4))
	e := must1(g.ElementWise("exp", x))
	rs := must1(g.Reshape(e, 4))
	l := must1(g.ElementWise("log", rs))
	require.NoError(t, g.SetOutputs(l))

	og, trace, err := Optimize(g, Config{RulePriority: []string{RuleFuseElementWise}})
	require.NoError(t, err)
	assert.True(t, trace.Empty())
	assert.Equal(t, 4, og.NumNodes())

	// With all rules the reshape goes away and the chain fuses.
	og2, trace2, err := Optimize(g, DefaultConfig())
	require.NoError(t, err)
	assert.False(t, trace2.Empty())
	assert.Equal(t, 2, og2.NumNodes())
}

func TestRulePriorityRejectsBadNames(t *testing.T) {
	g := exprgraph.New("bad-priority")
	x := must1(g.Input("x", F32, 4))
	require.NoError(t, g.SetOutputs(x))

	_, _, err := Optimize(g, Config{RulePriority: []string{"no-such-rule"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no-such-rule")

	_, _, err = Optimize(g, Config{RulePriority: []string{RuleFuseElementWise, RuleFuseElementWise}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "repeated")
}

func TestMaxRewritesReturnsPartialResult(t *testing.T) {
	// The chain below needs two rewrites to reach the fixpoint.
	g := exprgraph.New("budget")
	x := must1(g.Input("x", F32, 2, 3, 4))
	tr := must1(g.Transpose(x, 2, 1, 0))
	rs := must1(g.Reshape(tr, 24))
	sum := must1(g.Reduce(ops.ReduceOpSum, rs))
	require.NoError(t, g.SetOutputs(sum))

	og, trace, err := Optimize(g, Config{MaxRewrites: 1})
	require.ErrorIs(t, err, ErrNonTermination)
	require.NotNil(t, og, "partial graph must be returned on non-termination")
	assert.Equal(t, 1, trace.Len())
	// The partially optimized graph is still shape-consistent.
	require.NoError(t, og.CheckShapes())
	assert.True(t, og.Outputs()[0].IsScalar())

	// A sufficient budget finishes cleanly.
	_, trace2, err := Optimize(g, Config{MaxRewrites: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, trace2.Len())

	// A negative budget disables the cap.
	_, trace3, err := Optimize(g, Config{MaxRewrites: -1})
	require.NoError(t, err)
	assert.Equal(t, 2, trace3.Len())
}

func TestOptimizeBadCostWeights(t *testing.T) {
	g := exprgraph.New("bad-weights")
	x := must1(g.Input("x", F32, 4))
	require.NoError(t, g.SetOutputs(x))

	_, _, err := Optimize(g, Config{CostWeights: map[ops.OpType]float64{ops.OpTypeReduce: -1}})
	require.Error(t, err)
}

// randomGraph builds a random but valid expression graph: a few inputs and up
// to depth stacked operations, the last node designated as output.
func randomGraph(rng *rand.Rand, name string, depth int) *exprgraph.Graph {
	g := exprgraph.New(name)
	randomDims := func() []int {
		dims := make([]int, rng.IntN(4)) // rank 0..3
		for ii := range dims {
			dims[ii] = 1 + rng.IntN(4)
		}
		return dims
	}
	var nodes []*exprgraph.Node
	for ii := range 1 + rng.IntN(3) {
		nodes = append(nodes, must1(g.Input(fmt.Sprintf("x%d", ii), F32, randomDims()...)))
	}
	fns := []string{"exp", "log", "neg", "relu"}
	reduceOps := []ops.ReduceOpKind{ops.ReduceOpSum, ops.ReduceOpProduct, ops.ReduceOpMean, ops.ReduceOpMax, ops.ReduceOpMin}
	for range depth {
		pick := nodes[rng.IntN(len(nodes))]
		var node *exprgraph.Node
		var err error
		switch rng.IntN(5) {
		case 0:
			node, err = g.ElementWise(fns[rng.IntN(len(fns))], pick)
		case 1:
			node, err = g.ElementWise("add", pick, pick)
		case 2:
			// Flatten, or re-assert the same dimensions.
			if rng.IntN(2) == 0 {
				node, err = g.Reshape(pick, pick.Shape().Size())
			} else {
				node, err = g.Reshape(pick, pick.Shape().Dimensions...)
			}
		case 3:
			perm := rng.Perm(pick.Rank())
			node, err = g.Transpose(pick, perm...)
		case 4:
			var axes []int
			for axis := 0; axis < pick.Rank(); axis++ {
				if rng.IntN(2) == 0 {
					axes = append(axes, axis)
				}
			}
			if rng.IntN(2) == 0 {
				node, err = g.Reduce(reduceOps[rng.IntN(len(reduceOps))], pick, axes...)
			} else {
				node, err = g.ReduceKeepDims(reduceOps[rng.IntN(len(reduceOps))], pick, axes...)
			}
		}
		if err != nil {
			continue
		}
		nodes = append(nodes, node)
	}
	if err := g.SetOutputs(nodes[len(nodes)-1]); err != nil {
		panic(err)
	}
	return g
}

func TestOptimizeRandomGraphs(t *testing.T) {
	rng := rand.New(rand.NewPCG(42, 0))
	cost, err := NewCostModel(nil)
	require.NoError(t, err)
	for ii := range 100 {
		g := randomGraph(rng, fmt.Sprintf("random-%d", ii), 1+rng.IntN(10))
		og, trace, err := Optimize(g, DefaultConfig())
		require.NoError(t, err, "graph:\n%s", g)
		require.NoError(t, og.CheckShapes(), "graph:\n%s\ntrace:\n%s", g, trace)
		require.True(t, og.IsAcyclic())
		assert.True(t, og.Outputs()[0].Shape().Equal(g.Outputs()[0].Shape()),
			"output shape changed, graph:\n%s\ntrace:\n%s", g, trace)
		assert.LessOrEqual(t, cost.GraphCost(og), cost.GraphCost(g))

		_, trace2, err := Optimize(og, DefaultConfig())
		require.NoError(t, err)
		assert.True(t, trace2.Empty(), "not a fixpoint, graph:\n%s\nextra rewrites:\n%s", og, trace2)
	}
}
