package optimizer

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tensorexpr/texopt/exprgraph"
	"github.com/tensorexpr/texopt/ops"
)

func TestNodeCost(t *testing.T) {
	cost, err := NewCostModel(nil)
	require.NoError(t, err)

	g := exprgraph.New("costs")
	x := must1(g.Input("x", F32, 2, 3))
	c := must1(g.Constant(F32, 2, 3))
	rs := must1(g.Reshape(x, 6))
	tr := must1(g.Transpose(x, 1, 0))
	add := must1(g.ElementWise("add", x, c))
	sum := must1(g.Reduce(ops.ReduceOpSum, x, 0))
	mm := must1(g.Other("matmul", MS(F32, 2, 2), x, tr))

	assert.Equal(t, 0.0, cost.NodeCost(x))
	assert.Equal(t, 0.0, cost.NodeCost(c))
	assert.Equal(t, 1.0, cost.NodeCost(rs))
	assert.Equal(t, 1.0, cost.NodeCost(tr))
	assert.Equal(t, 6.0, cost.NodeCost(add)) // output elements
	assert.Equal(t, 6.0, cost.NodeCost(sum)) // input elements, not the 3 outputs
	assert.Equal(t, 4.0, cost.NodeCost(mm))
}

func TestFusedNodeCostsOnePass(t *testing.T) {
	cost, err := NewCostModel(nil)
	require.NoError(t, err)

	g := exprgraph.New("fused-cost")
	x := must1(g.Input("x", F32, 8))
	y := must1(g.Input("y", F32, 8))
	fused := must1(g.AddNode(ops.OpTypeElementWise, exprgraph.FusedExprAttrs{
		Stages: []exprgraph.ElementWiseStage{
			{Fn: "add", Arity: 2},
			{Fn: "exp", Arity: 1},
			{Fn: "neg", Arity: 1},
		},
	}, x, y))
	single := must1(g.ElementWise("add", x, y))

	// Three stages, same cost as a single pass.
	assert.Equal(t, cost.NodeCost(single), cost.NodeCost(fused))
}

func TestGraphCostCountsLiveNodesOnly(t *testing.T) {
	cost, err := NewCostModel(nil)
	require.NoError(t, err)

	g := exprgraph.New("live-cost")
	x := must1(g.Input("x", F32, 4))
	live := must1(g.ElementWise("exp", x))
	must1(g.ElementWise("log", x)) // dead
	require.NoError(t, g.SetOutputs(live))

	assert.Equal(t, 4.0, cost.GraphCost(g))
	assert.Equal(t, cost.SubgraphCost([]*exprgraph.Node{x, live}), cost.GraphCost(g))
}

func TestCostModelOverrides(t *testing.T) {
	cost, err := NewCostModel(map[ops.OpType]float64{ops.OpTypeElementWise: 3})
	require.NoError(t, err)

	g := exprgraph.New("overrides")
	x := must1(g.Input("x", F32, 2))
	e := must1(g.ElementWise("exp", x))
	rs := must1(g.Reshape(x, 1, 2))
	assert.Equal(t, 6.0, cost.NodeCost(e))
	assert.Equal(t, 1.0, cost.NodeCost(rs)) // defaults still apply elsewhere

	// Zero weight is allowed.
	free, err := NewCostModel(map[ops.OpType]float64{ops.OpTypeElementWise: 0})
	require.NoError(t, err)
	assert.Equal(t, 0.0, free.NodeCost(e))

	_, err = NewCostModel(map[ops.OpType]float64{ops.OpTypeReduce: -0.5})
	require.Error(t, err)
	_, err = NewCostModel(map[ops.OpType]float64{ops.OpTypeReduce: math.NaN()})
	require.Error(t, err)
	_, err = NewCostModel(map[ops.OpType]float64{ops.OpTypeInvalid: 1})
	require.Error(t, err)
	_, err = NewCostModel(map[ops.OpType]float64{ops.OpType(99): 1})
	require.Error(t, err)
}

func TestTrace(t *testing.T) {
	trace := &Trace{}
	assert.True(t, trace.Empty())
	assert.Equal(t, 0, trace.Len())
	assert.Equal(t, "no rewrites applied\n", trace.String())

	trace.append(RewriteRecord{
		Rule:           RuleFuseElementWise,
		MatchedIds:     []exprgraph.NodeId{3, 2},
		ReplacementIds: []exprgraph.NodeId{4},
		CostBefore:     12,
		CostAfter:      6,
	})
	require.Equal(t, 1, trace.Len())
	assert.False(t, trace.Empty())
	assert.Contains(t, trace.String(), RuleFuseElementWise)
	assert.Contains(t, trace.String(), "cost 12 -> 6")

	// Records returns a copy.
	records := trace.Records()
	records[0].Rule = "mutated"
	assert.Equal(t, RuleFuseElementWise, trace.Records()[0].Rule)
}
