package exprgraph

import (
	"fmt"
	"slices"
	"strings"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/tensorexpr/texopt/ops"
	"github.com/tensorexpr/texopt/types/shapes"
)

// NodeId is a unique node id within a Graph. Ids are stable and never reused,
// even after the node they referred to is eliminated.
type NodeId int

// InvalidNodeId indicates a node that failed to be created.
const InvalidNodeId = NodeId(-1)

// Node is a single operator application in a Graph.
//
// Nodes are owned by their Graph; a Node's inputs are non-owning references
// (by id) to producer nodes of the same graph. The output shape (and dtype,
// carried inside the shape) is computed by shape inference when the node is
// added and cached; after every rewrite the optimizer re-derives it and
// checks it still matches.
type Node struct {
	graph  *Graph
	id     NodeId
	opType ops.OpType
	inputs []NodeId
	shape  shapes.Shape

	// attrs holds the operator-specific parameters, one of the *Attrs types below.
	attrs any
}

// Type identifies the operation performed by the node.
func (n *Node) Type() ops.OpType {
	if n == nil {
		return ops.OpTypeInvalid
	}
	return n.opType
}

// Graph that holds this Node.
func (n *Node) Graph() *Graph {
	if n == nil {
		return nil
	}
	return n.graph
}

// Shape of the Node's output.
func (n *Node) Shape() shapes.Shape {
	if n == nil {
		return shapes.Shape{}
	}
	return n.shape
}

// DType returns the DType of the node's shape.
func (n *Node) DType() dtypes.DType {
	return n.shape.DType
}

// Rank returns the rank of the node's shape.
func (n *Node) Rank() int {
	return n.shape.Rank()
}

// IsScalar returns whether the node's shape is a scalar.
func (n *Node) IsScalar() bool {
	return n.shape.IsScalar()
}

// Id is the unique id of this node within the Graph.
func (n *Node) Id() NodeId {
	return n.id
}

// Attrs returns the operator-specific parameters of the node: one of
// InputAttrs, ConstantAttrs, ReshapeAttrs, TransposeAttrs, ElementWiseAttrs,
// FusedExprAttrs, ReduceAttrs or OtherAttrs, depending on Type.
func (n *Node) Attrs() any {
	return n.attrs
}

// Inputs are the producer nodes that feed this node, in operand order.
func (n *Node) Inputs() []*Node {
	n.AssertValid()
	inputs := make([]*Node, len(n.inputs))
	for ii, id := range n.inputs {
		inputs[ii] = n.graph.nodes[id]
		if inputs[ii] == nil {
			exceptions.Panicf("node %s holds a dangling reference to node #%d", n, id)
		}
	}
	return inputs
}

// InputIds returns a copy of the input node ids, in operand order.
func (n *Node) InputIds() []NodeId {
	return slices.Clone(n.inputs)
}

// NumInputs returns the number of inputs of the node.
func (n *Node) NumInputs() int {
	return len(n.inputs)
}

// AssertValid panics if `n` is nil or detached from its graph.
func (n *Node) AssertValid() {
	if n == nil {
		exceptions.Panicf("Node is nil")
	}
	if n.graph == nil {
		exceptions.Panicf("Node #%d is in an invalid state (no graph)", n.id)
	}
}

// ReduceInfo returns the reduction parameters.
// It panics if the node is not an OpTypeReduce node.
func (n *Node) ReduceInfo() ReduceAttrs {
	n.AssertValid()
	if n.opType != ops.OpTypeReduce {
		exceptions.Panicf("node %s is not a Reduce node", n)
	}
	return n.attrs.(ReduceAttrs)
}

// String implements the `fmt.Stringer` interface.
func (n *Node) String() string {
	if n == nil {
		return "Node(nil)"
	}
	var attrs string
	if stringer, ok := n.attrs.(fmt.Stringer); ok && stringer.String() != "" {
		attrs = "[" + stringer.String() + "]"
	}
	refs := make([]string, len(n.inputs))
	for ii, id := range n.inputs {
		refs[ii] = fmt.Sprintf("#%d", id)
	}
	return fmt.Sprintf("%s%s(%s)#%d -> %s", n.opType, attrs, strings.Join(refs, ", "), n.id, n.shape)
}

// InputAttrs parameterizes an OpTypeInput node: a named graph parameter with a
// declared shape.
type InputAttrs struct {
	Name  string
	Shape shapes.Shape
}

func (a InputAttrs) String() string { return a.Name }

// ConstantAttrs parameterizes an OpTypeConstant node. The optimizer is purely
// symbolic, so only the shape is carried, never a value.
type ConstantAttrs struct {
	Shape shapes.Shape
}

func (a ConstantAttrs) String() string { return "" }

// ReshapeAttrs parameterizes an OpTypeReshape node with the target dimensions.
type ReshapeAttrs struct {
	Dimensions []int
}

func (a ReshapeAttrs) String() string { return fmt.Sprintf("to=%v", a.Dimensions) }

// IsIdentity returns whether reshaping the given operand shape is a no-op.
func (a ReshapeAttrs) IsIdentity(operand shapes.Shape) bool {
	return slices.Equal(a.Dimensions, operand.Dimensions)
}

// TransposeAttrs parameterizes an OpTypeTranspose node with the axes
// permutation: output axis ii takes the operand's axis Permutation[ii].
type TransposeAttrs struct {
	Permutation []int
}

func (a TransposeAttrs) String() string { return fmt.Sprintf("perm=%v", a.Permutation) }

// IsIdentity returns whether the permutation maps every axis to itself.
func (a TransposeAttrs) IsIdentity() bool {
	for axis, srcAxis := range a.Permutation {
		if axis != srcAxis {
			return false
		}
	}
	return true
}

// ElementWiseAttrs parameterizes a primitive OpTypeElementWise node: Fn is the
// opaque function symbol ("exp", "add", "mul", ...) dispatched by the
// execution backend.
type ElementWiseAttrs struct {
	Fn string
}

func (a ElementWiseAttrs) String() string { return a.Fn }

// ElementWiseStage is one step of a fused element-wise expression. The first
// stage consumes Arity node inputs; every following stage consumes the running
// value plus its next Arity-1 node inputs.
type ElementWiseStage struct {
	Fn    string
	Arity int
}

// FusedExprAttrs parameterizes an OpTypeElementWise node produced by fusing a
// chain of element-wise nodes. Stages apply in order over a single pass of the
// data.
type FusedExprAttrs struct {
	Stages []ElementWiseStage
}

func (a FusedExprAttrs) String() string {
	fns := make([]string, len(a.Stages))
	for ii, stage := range a.Stages {
		fns[ii] = stage.Fn
	}
	return "fused:" + strings.Join(fns, "|")
}

// NumInputs returns the number of node inputs the fused expression consumes.
func (a FusedExprAttrs) NumInputs() int {
	if len(a.Stages) == 0 {
		return 0
	}
	count := a.Stages[0].Arity
	for _, stage := range a.Stages[1:] {
		count += stage.Arity - 1
	}
	return count
}

// ReduceAttrs parameterizes an OpTypeReduce node. Nil (or empty) Axes mean a
// full reduction over every axis. KeepDims keeps reduced axes with dimension 1.
type ReduceAttrs struct {
	Op       ops.ReduceOpKind
	Axes     []int
	KeepDims bool
}

func (a ReduceAttrs) String() string {
	var b strings.Builder
	b.WriteString(a.Op.String())
	if len(a.Axes) == 0 {
		b.WriteString(", axes=all")
	} else {
		fmt.Fprintf(&b, ", axes=%v", a.Axes)
	}
	if a.KeepDims {
		b.WriteString(", keepdims")
	}
	return b.String()
}

// IsFull returns whether the reduction covers every axis of an operand with
// the given rank. Axes are assumed validated (in range, no repeats).
func (a ReduceAttrs) IsFull(operandRank int) bool {
	return len(a.Axes) == 0 || len(a.Axes) == operandRank
}

// OtherAttrs parameterizes an OpTypeOther node: an opaque, cost-annotated
// operator (matrix multiply, convolution, ...) the optimizer never rewrites.
// The output shape is declared by the caller since no inference is possible.
type OtherAttrs struct {
	Name        string
	OutputShape shapes.Shape
}

func (a OtherAttrs) String() string { return a.Name }
