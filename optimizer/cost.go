package optimizer

import (
	"maps"
	"math"

	"github.com/pkg/errors"
	"github.com/tensorexpr/texopt/exprgraph"
	"github.com/tensorexpr/texopt/ops"
)

// DefaultCostWeights are the unit cost multipliers per op kind. They encode
// the usual relative expense on a real backend: element-wise and reduction
// work scales with element count, shape transforms are metadata-only and cost
// a flat unit, inputs and constants are free.
var DefaultCostWeights = map[ops.OpType]float64{
	ops.OpTypeInput:       0,
	ops.OpTypeConstant:    0,
	ops.OpTypeReshape:     1,
	ops.OpTypeTranspose:   1,
	ops.OpTypeElementWise: 1,
	ops.OpTypeReduce:      1,
	ops.OpTypeOther:       1,
}

// CostModel assigns a relative cost to nodes and subgraphs, as a monotone
// function of op kind and tensor element count. It is used to check that
// rewrites never increase cost, which is what guarantees the fixpoint driver
// makes monotone progress.
type CostModel struct {
	weights map[ops.OpType]float64
}

// NewCostModel builds a cost model from DefaultCostWeights overlaid with the
// given overrides. Weights must be non-negative and keyed by a valid op type.
func NewCostModel(overrides map[ops.OpType]float64) (*CostModel, error) {
	weights := maps.Clone(DefaultCostWeights)
	for opType, weight := range overrides {
		if !opType.IsAOpType() || opType == ops.OpTypeInvalid || opType == ops.OpTypeLast {
			return nil, errors.Errorf("cost weight given for invalid op type %d", int(opType))
		}
		if weight < 0 || math.IsNaN(weight) {
			return nil, errors.Errorf("cost weight for %s must be a non-negative number, got %v", opType, weight)
		}
		weights[opType] = weight
	}
	return &CostModel{weights: weights}, nil
}

// NodeCost estimates the relative cost of executing a single node:
//
//   - Input/Constant: free (they are operands, not work).
//   - Reshape/Transpose: one flat unit (metadata-only on a real backend).
//   - Reduce: weight x input element count (every input element is folded).
//   - ElementWise/Other: weight x output element count. A fused element-wise
//     node costs a single pass over the output regardless of how many stages
//     it carries -- that is the point of fusing.
func (c *CostModel) NodeCost(n *exprgraph.Node) float64 {
	weight := c.weights[n.Type()]
	switch n.Type() {
	case ops.OpTypeInput, ops.OpTypeConstant:
		return 0
	case ops.OpTypeReshape, ops.OpTypeTranspose:
		return weight
	case ops.OpTypeReduce:
		return weight * float64(n.Inputs()[0].Shape().Size())
	default:
		return weight * float64(n.Shape().Size())
	}
}

// SubgraphCost sums NodeCost over the given nodes.
func (c *CostModel) SubgraphCost(nodes []*exprgraph.Node) (cost float64) {
	for _, node := range nodes {
		cost += c.NodeCost(node)
	}
	return
}

// GraphCost sums NodeCost over the live nodes of the graph.
func (c *CostModel) GraphCost(g *exprgraph.Graph) (cost float64) {
	for node := range g.LiveNodes() {
		cost += c.NodeCost(node)
	}
	return
}
