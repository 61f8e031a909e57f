package exprgraph

import (
	"slices"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
	"github.com/tensorexpr/texopt/ops"
	"github.com/tensorexpr/texopt/shapeinference"
	"github.com/tensorexpr/texopt/types/shapes"
)

// makeShape builds a shape from caller-provided dtype and dimensions,
// returning a build error instead of panicking like shapes.Make.
func makeShape(dtype dtypes.DType, dimensions []int) (shapes.Shape, error) {
	if dtype == dtypes.InvalidDType {
		return shapes.Invalid(), errors.Wrapf(shapeinference.ErrShape, "invalid dtype for shape with dimensions %v", dimensions)
	}
	for _, dim := range dimensions {
		if dim <= 0 {
			return shapes.Invalid(), errors.Wrapf(shapeinference.ErrShape, "cannot create shape with dimensions %v, they must all be positive", dimensions)
		}
	}
	return shapes.Shape{DType: dtype, Dimensions: slices.Clone(dimensions)}, nil
}

// checkArity validates the number of inputs allowed for the op type.
func checkArity(opType ops.OpType, attrs any, numInputs int) error {
	switch opType {
	case ops.OpTypeInput, ops.OpTypeConstant:
		if numInputs != 0 {
			return errors.Wrapf(shapeinference.ErrShape, "%s nodes take no inputs, got %d", opType, numInputs)
		}
	case ops.OpTypeReshape, ops.OpTypeTranspose, ops.OpTypeReduce:
		if numInputs != 1 {
			return errors.Wrapf(shapeinference.ErrShape, "%s nodes take exactly one input, got %d", opType, numInputs)
		}
	case ops.OpTypeElementWise:
		if numInputs < 1 {
			return errors.Wrapf(shapeinference.ErrShape, "%s nodes take at least one input, got %d", opType, numInputs)
		}
		if fused, ok := attrs.(FusedExprAttrs); ok {
			if want := fused.NumInputs(); want != numInputs {
				return errors.Wrapf(shapeinference.ErrShape, "fused %s stages consume %d inputs, got %d", opType, want, numInputs)
			}
		}
	case ops.OpTypeOther:
		// Any arity.
	default:
		return errors.Wrapf(shapeinference.ErrShape, "cannot add node of op type %s", opType)
	}
	return nil
}

// inferShape derives the output shape of applying (opType, attrs) to inputs.
// The same derivation runs at build time and again after every rewrite; a
// mismatch with the cached shape is how a broken rule is caught.
//
// A mismatched attrs type for the op is a programming error and panics.
func inferShape(opType ops.OpType, attrs any, inputs []shapes.Shape) (shapes.Shape, error) {
	switch opType {
	case ops.OpTypeInput:
		a, ok := attrs.(InputAttrs)
		if !ok {
			exceptions.Panicf("%s node requires InputAttrs, got %T", opType, attrs)
		}
		if !a.Shape.Ok() {
			return shapes.Invalid(), errors.Wrapf(shapeinference.ErrShape, "Input(%q) declared an invalid shape", a.Name)
		}
		return a.Shape.Clone(), nil

	case ops.OpTypeConstant:
		a, ok := attrs.(ConstantAttrs)
		if !ok {
			exceptions.Panicf("%s node requires ConstantAttrs, got %T", opType, attrs)
		}
		if !a.Shape.Ok() {
			return shapes.Invalid(), errors.Wrapf(shapeinference.ErrShape, "Constant declared an invalid shape")
		}
		return a.Shape.Clone(), nil

	case ops.OpTypeReshape:
		a, ok := attrs.(ReshapeAttrs)
		if !ok {
			exceptions.Panicf("%s node requires ReshapeAttrs, got %T", opType, attrs)
		}
		return shapeinference.ReshapeOp(inputs[0], a.Dimensions)

	case ops.OpTypeTranspose:
		a, ok := attrs.(TransposeAttrs)
		if !ok {
			exceptions.Panicf("%s node requires TransposeAttrs, got %T", opType, attrs)
		}
		return shapeinference.TransposeOp(inputs[0], a.Permutation)

	case ops.OpTypeElementWise:
		switch a := attrs.(type) {
		case ElementWiseAttrs:
			if a.Fn == "" {
				return shapes.Invalid(), errors.Wrapf(shapeinference.ErrShape, "ElementWise() requires a function symbol")
			}
		case FusedExprAttrs:
			if len(a.Stages) == 0 {
				return shapes.Invalid(), errors.Wrapf(shapeinference.ErrShape, "fused ElementWise() requires at least one stage")
			}
			for ii, stage := range a.Stages {
				if stage.Fn == "" || stage.Arity < 1 {
					return shapes.Invalid(), errors.Wrapf(shapeinference.ErrShape, "fused ElementWise() stage #%d (%q, arity %d) is malformed", ii, stage.Fn, stage.Arity)
				}
			}
		default:
			exceptions.Panicf("%s node requires ElementWiseAttrs or FusedExprAttrs, got %T", opType, attrs)
		}
		return shapeinference.ElementWiseOp(inputs...)

	case ops.OpTypeReduce:
		a, ok := attrs.(ReduceAttrs)
		if !ok {
			exceptions.Panicf("%s node requires ReduceAttrs, got %T", opType, attrs)
		}
		if !a.Op.IsAReduceOpKind() || a.Op == ops.ReduceOpInvalid {
			return shapes.Invalid(), errors.Wrapf(shapeinference.ErrShape, "Reduce() requires a valid ReduceOpKind, got %s", a.Op)
		}
		return shapeinference.ReduceOp(inputs[0], a.Axes, a.KeepDims)

	case ops.OpTypeOther:
		a, ok := attrs.(OtherAttrs)
		if !ok {
			exceptions.Panicf("%s node requires OtherAttrs, got %T", opType, attrs)
		}
		if !a.OutputShape.Ok() {
			return shapes.Invalid(), errors.Wrapf(shapeinference.ErrShape, "Other(%q) declared an invalid output shape", a.Name)
		}
		return a.OutputShape.Clone(), nil
	}
	exceptions.Panicf("inferShape: unexpected op type %s", opType)
	return shapes.Invalid(), nil
}

// RecomputeShape re-derives the output shape of n from its current inputs and
// attrs, without touching the cached shape. The optimizer compares the result
// against Node.Shape after every rewrite.
func (g *Graph) RecomputeShape(n *Node) (shapes.Shape, error) {
	g.checkNodes("RecomputeShape", n)
	inputShapes := make([]shapes.Shape, len(n.inputs))
	for ii, id := range n.inputs {
		input := g.nodes[id]
		if input == nil {
			return shapes.Invalid(), errors.Wrapf(ErrDanglingReference, "node %s input #%d references removed node #%d", n, ii, id)
		}
		inputShapes[ii] = input.shape
	}
	return inferShape(n.opType, n.attrs, inputShapes)
}

// CheckShapes re-derives the shape of every live node and verifies it matches
// the cached shape/dtype. It returns the first mismatch found.
func (g *Graph) CheckShapes() error {
	for node := range g.LiveNodes() {
		derived, err := g.RecomputeShape(node)
		if err != nil {
			return errors.WithMessagef(err, "graph %q: node %s no longer infers", g.name, node)
		}
		if !derived.Equal(node.shape) {
			return errors.Errorf("graph %q: node %s caches shape %s but infers %s", g.name, node, node.shape, derived)
		}
	}
	return nil
}

// cloneAttrs deep-copies the attrs of a node, so clones share no mutable state.
func cloneAttrs(attrs any) any {
	switch a := attrs.(type) {
	case InputAttrs:
		return InputAttrs{Name: a.Name, Shape: a.Shape.Clone()}
	case ConstantAttrs:
		return ConstantAttrs{Shape: a.Shape.Clone()}
	case ReshapeAttrs:
		return ReshapeAttrs{Dimensions: slices.Clone(a.Dimensions)}
	case TransposeAttrs:
		return TransposeAttrs{Permutation: slices.Clone(a.Permutation)}
	case ElementWiseAttrs:
		return a
	case FusedExprAttrs:
		return FusedExprAttrs{Stages: slices.Clone(a.Stages)}
	case ReduceAttrs:
		return ReduceAttrs{Op: a.Op, Axes: slices.Clone(a.Axes), KeepDims: a.KeepDims}
	case OtherAttrs:
		return OtherAttrs{Name: a.Name, OutputShape: a.OutputShape.Clone()}
	}
	exceptions.Panicf("cloneAttrs: unexpected attrs type %T", attrs)
	return nil
}
