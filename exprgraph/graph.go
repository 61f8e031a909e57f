// Package exprgraph holds the tensor expression graph the optimizer works on:
// a DAG of operator nodes with typed shape/dtype metadata.
//
// A Graph is built through the typed constructors (Input, Reshape, Reduce,
// ...) or the general AddNode; every constructor runs shape inference and
// rejects malformed operator applications with an error wrapping
// shapeinference.ErrShape, leaving the graph unmodified. The graph computes
// the values of its designated output nodes; everything not reachable from an
// output is dead and removable with EliminateDeadNodes.
//
// A Graph instance is exclusively owned by one computation at a time: there is
// no internal locking. To optimize independent graphs concurrently, give each
// run its own Graph (optimizer.Optimize already works on a private clone).
package exprgraph

import (
	"fmt"
	"iter"
	"slices"
	"strings"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
	"github.com/tensorexpr/texopt/ops"
	"github.com/tensorexpr/texopt/types"
	"github.com/tensorexpr/texopt/types/shapes"
)

// ErrDanglingReference indicates an operation referenced a node that is not
// part of the graph's node set. During optimization this is an internal bug in
// a rewrite rule: it is fatal to the run and never silently repaired.
var ErrDanglingReference = errors.New("dangling node reference")

// Graph is a DAG of operator nodes plus a distinguished ordered sequence of
// output node references.
type Graph struct {
	name string

	// nodes indexed by id. Removed ids are never reused.
	nodes  map[NodeId]*Node
	nextId NodeId

	// order keeps node ids in insertion order, so every traversal of the graph
	// is deterministic. It may hold ids of since-removed nodes; they are
	// compacted away by EliminateDeadNodes.
	order []NodeId

	outputs []NodeId
}

// New creates an empty Graph with the given name (used only for diagnostics).
func New(name string) *Graph {
	return &Graph{
		name:  name,
		nodes: make(map[NodeId]*Node),
	}
}

// Name of the graph.
func (g *Graph) Name() string { return g.name }

// NumNodes returns the number of nodes currently in the graph, dead or alive.
func (g *Graph) NumNodes() int { return len(g.nodes) }

// NodeByID returns the node with the given id, or nil if no such node exists
// (anymore).
func (g *Graph) NodeByID(id NodeId) *Node {
	return g.nodes[id]
}

// checkNodes validates that the given nodes are non-nil and owned by this
// graph. Passing a node from another graph is a programming error and panics,
// mirroring how cross-builder ops are rejected.
func (g *Graph) checkNodes(op string, nodes ...*Node) {
	if g == nil {
		exceptions.Panicf("%s: Graph is nil (!?), cannot build a graph", op)
	}
	for idx, node := range nodes {
		if node == nil {
			exceptions.Panicf("%s: input node #%d is nil!?", op, idx)
		}
		if node.graph == nil {
			exceptions.Panicf("%s: input node #%d (id #%d) was removed from its graph, cannot use it with graph %q",
				op, idx, node.id, g.name)
		}
		if node.graph != g {
			exceptions.Panicf("%s: input node #%d was created on a different graph (%q), cannot use it with graph %q",
				op, idx, node.graph.name, g.name)
		}
		if g.nodes[node.id] != node {
			exceptions.Panicf("%s: input node #%d (%s) is no longer part of graph %q", op, idx, node, g.name)
		}
	}
}

// AddNode adds a node of the given op type, attrs and inputs to the graph.
// The output shape is derived by shape inference; if the operator application
// is malformed the error wraps shapeinference.ErrShape and the graph is left
// unmodified. This is the general entry point behind the typed constructors.
func (g *Graph) AddNode(opType ops.OpType, attrs any, inputs ...*Node) (*Node, error) {
	g.checkNodes(opType.String(), inputs...)
	if err := checkArity(opType, attrs, len(inputs)); err != nil {
		return nil, err
	}
	inputShapes := make([]shapes.Shape, len(inputs))
	for ii, input := range inputs {
		inputShapes[ii] = input.shape
	}
	shape, err := inferShape(opType, attrs, inputShapes)
	if err != nil {
		return nil, errors.WithMessagef(err, "adding %s node to graph %q", opType, g.name)
	}
	node := &Node{
		graph:  g,
		id:     g.nextId,
		opType: opType,
		shape:  shape,
		attrs:  attrs,
	}
	node.inputs = make([]NodeId, len(inputs))
	for ii, input := range inputs {
		node.inputs[ii] = input.id
	}
	g.nextId++
	g.nodes[node.id] = node
	g.order = append(g.order, node.id)
	return node, nil
}

// Input adds a named graph parameter with the given dtype and dimensions.
func (g *Graph) Input(name string, dtype dtypes.DType, dimensions ...int) (*Node, error) {
	shape, err := makeShape(dtype, dimensions)
	if err != nil {
		return nil, err
	}
	return g.AddNode(ops.OpTypeInput, InputAttrs{Name: name, Shape: shape})
}

// Constant adds a symbolic literal operand with the given dtype and
// dimensions. No value is carried: the optimizer never computes numbers.
func (g *Graph) Constant(dtype dtypes.DType, dimensions ...int) (*Node, error) {
	shape, err := makeShape(dtype, dimensions)
	if err != nil {
		return nil, err
	}
	return g.AddNode(ops.OpTypeConstant, ConstantAttrs{Shape: shape})
}

// Reshape adds a node reinterpreting x with the given dimensions. The total
// element count must not change.
func (g *Graph) Reshape(x *Node, dimensions ...int) (*Node, error) {
	return g.AddNode(ops.OpTypeReshape, ReshapeAttrs{Dimensions: slices.Clone(dimensions)}, x)
}

// Transpose adds a node permuting the axes of x: output axis ii takes x's
// axis permutations[ii]. The permutation must be a bijection over x's rank.
func (g *Graph) Transpose(x *Node, permutations ...int) (*Node, error) {
	return g.AddNode(ops.OpTypeTranspose, TransposeAttrs{Permutation: slices.Clone(permutations)}, x)
}

// ElementWise adds a node applying the opaque function symbol fn element-wise
// over the given broadcast-compatible operands.
func (g *Graph) ElementWise(fn string, operands ...*Node) (*Node, error) {
	return g.AddNode(ops.OpTypeElementWise, ElementWiseAttrs{Fn: fn}, operands...)
}

// Reduce adds a node folding op over the given axes of x. No axes mean a full
// reduction over every axis. Reduced axes are dropped from the output; see
// ReduceKeepDims to keep them with dimension 1.
func (g *Graph) Reduce(op ops.ReduceOpKind, x *Node, axes ...int) (*Node, error) {
	return g.AddNode(ops.OpTypeReduce, ReduceAttrs{Op: op, Axes: slices.Clone(axes)}, x)
}

// ReduceKeepDims is Reduce keeping the reduced axes in the output with
// dimension 1.
func (g *Graph) ReduceKeepDims(op ops.ReduceOpKind, x *Node, axes ...int) (*Node, error) {
	return g.AddNode(ops.OpTypeReduce, ReduceAttrs{Op: op, Axes: slices.Clone(axes), KeepDims: true}, x)
}

// Other adds an opaque, cost-annotated operator node with a declared output
// shape. The optimizer treats it as a black box and never rewrites it.
func (g *Graph) Other(name string, outputShape shapes.Shape, inputs ...*Node) (*Node, error) {
	return g.AddNode(ops.OpTypeOther, OtherAttrs{Name: name, OutputShape: outputShape.Clone()}, inputs...)
}

// SetOutputs designates the ordered sequence of nodes the graph computes.
// Everything not reachable from an output is considered dead.
func (g *Graph) SetOutputs(outputs ...*Node) error {
	g.checkNodes("SetOutputs", outputs...)
	if len(outputs) == 0 {
		return errors.Errorf("graph %q: SetOutputs requires at least one output node", g.name)
	}
	g.outputs = make([]NodeId, len(outputs))
	for ii, node := range outputs {
		g.outputs[ii] = node.id
	}
	return nil
}

// Outputs returns the designated output nodes, in order.
func (g *Graph) Outputs() []*Node {
	outputs := make([]*Node, len(g.outputs))
	for ii, id := range g.outputs {
		outputs[ii] = g.nodes[id]
		if outputs[ii] == nil {
			exceptions.Panicf("graph %q: output #%d references removed node #%d", g.name, ii, id)
		}
	}
	return outputs
}

// IsOutput returns whether n is one of the designated output nodes. Output
// nodes are externally observable: rewrite rules must treat them as having an
// extra consumer.
func (g *Graph) IsOutput(n *Node) bool {
	return slices.Contains(g.outputs, n.id)
}

// ReplaceSubgraph substitutes newRoot for oldRoot in every place oldRoot is
// referenced: as a node input and as a graph output. oldRoot itself is not
// removed; if nothing reaches it anymore it becomes dead and is dropped by the
// next EliminateDeadNodes. Both nodes must already be part of this graph's
// node set, otherwise the error wraps ErrDanglingReference.
func (g *Graph) ReplaceSubgraph(oldRoot, newRoot *Node) error {
	for _, node := range []*Node{oldRoot, newRoot} {
		if node == nil || node.graph != g || g.nodes[node.id] != node {
			return errors.Wrapf(ErrDanglingReference, "graph %q: ReplaceSubgraph(%s, %s) requires both nodes to be part of the graph",
				g.name, oldRoot, newRoot)
		}
	}
	if oldRoot == newRoot {
		return nil
	}
	for _, id := range g.order {
		node := g.nodes[id]
		if node == nil {
			continue
		}
		for ii, inputId := range node.inputs {
			if inputId == oldRoot.id {
				node.inputs[ii] = newRoot.id
			}
		}
	}
	for ii, id := range g.outputs {
		if id == oldRoot.id {
			g.outputs[ii] = newRoot.id
		}
	}
	return nil
}

// Consumers returns the distinct nodes that reference n as an input, in
// insertion order.
func (g *Graph) Consumers(n *Node) []*Node {
	g.checkNodes("Consumers", n)
	var consumers []*Node
	for _, id := range g.order {
		node := g.nodes[id]
		if node == nil {
			continue
		}
		if slices.Contains(node.inputs, n.id) {
			consumers = append(consumers, node)
		}
	}
	return consumers
}

// NumReferences counts the input slots across the whole graph that reference
// n. It differs from len(Consumers(n)) when a consumer uses n more than once,
// as in ElementWise("mul", x, x).
func (g *Graph) NumReferences(n *Node) int {
	g.checkNodes("NumReferences", n)
	count := 0
	for _, id := range g.order {
		node := g.nodes[id]
		if node == nil {
			continue
		}
		for _, inputId := range node.inputs {
			if inputId == n.id {
				count++
			}
		}
	}
	return count
}

// LiveNodes returns a lazy, restartable sequence over the transitive closure
// of the outputs, producers before consumers. Collect it with slices.Collect
// or range over it directly.
func (g *Graph) LiveNodes() iter.Seq[*Node] {
	return func(yield func(*Node) bool) {
		visited := types.MakeSet[NodeId]()
		var visit func(id NodeId) bool
		visit = func(id NodeId) bool {
			if visited.Has(id) {
				return true
			}
			visited.Insert(id)
			node := g.nodes[id]
			if node == nil {
				exceptions.Panicf("graph %q holds a dangling reference to node #%d", g.name, id)
			}
			for _, inputId := range node.inputs {
				if !visit(inputId) {
					return false
				}
			}
			return yield(node)
		}
		for _, outputId := range g.outputs {
			if !visit(outputId) {
				return
			}
		}
	}
}

// TopoSort returns the live nodes in topological order, producers first.
func (g *Graph) TopoSort() []*Node {
	return slices.Collect(g.LiveNodes())
}

// IsAcyclic reports whether no node's input chain reaches itself. This is an
// invariant-checking operation for tests and debugging, not a normal-path
// call: every mutation exposed by Graph preserves acyclicity.
func (g *Graph) IsAcyclic() bool {
	const (
		unseen = iota
		visiting
		done
	)
	state := make(map[NodeId]int, len(g.nodes))
	var visit func(id NodeId) bool
	visit = func(id NodeId) bool {
		switch state[id] {
		case visiting:
			return false
		case done:
			return true
		}
		state[id] = visiting
		node := g.nodes[id]
		if node != nil {
			for _, inputId := range node.inputs {
				if !visit(inputId) {
					return false
				}
			}
		}
		state[id] = done
		return true
	}
	for _, id := range g.order {
		if g.nodes[id] == nil {
			continue
		}
		if !visit(id) {
			return false
		}
	}
	return true
}

// EliminateDeadNodes removes every node not reachable from the designated
// outputs and returns how many were removed. It is idempotent and safe to run
// at any point.
func (g *Graph) EliminateDeadNodes() int {
	live := types.MakeSet[NodeId](len(g.nodes))
	for node := range g.LiveNodes() {
		live.Insert(node.id)
	}
	removed := 0
	for id, node := range g.nodes {
		if live.Has(id) {
			continue
		}
		node.graph = nil
		delete(g.nodes, id)
		removed++
	}
	if removed > 0 {
		g.order = slices.DeleteFunc(g.order, func(id NodeId) bool {
			return !live.Has(id)
		})
	}
	return removed
}

// Clone returns a deep copy of the graph: same node ids, same outputs,
// sharing nothing mutable with the original.
func (g *Graph) Clone() *Graph {
	g2 := &Graph{
		name:    g.name,
		nodes:   make(map[NodeId]*Node, len(g.nodes)),
		nextId:  g.nextId,
		order:   slices.Clone(g.order),
		outputs: slices.Clone(g.outputs),
	}
	for id, node := range g.nodes {
		g2.nodes[id] = &Node{
			graph:  g2,
			id:     node.id,
			opType: node.opType,
			inputs: slices.Clone(node.inputs),
			shape:  node.shape.Clone(),
			attrs:  cloneAttrs(node.attrs),
		}
	}
	return g2
}

// String renders the live nodes in topological order, for debugging.
func (g *Graph) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Graph %q: %d nodes, %d outputs\n", g.name, len(g.nodes), len(g.outputs))
	for node := range g.LiveNodes() {
		marker := "  "
		if g.IsOutput(node) {
			marker = "=>"
		}
		fmt.Fprintf(&b, "%s %s\n", marker, node)
	}
	return b.String()
}
