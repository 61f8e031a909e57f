// Package shapeinference calculates the shape resulting from each operation of
// the expression-graph vocabulary and validates its inputs.
//
// It is used twice by the rest of the module: once at graph-building time,
// where a failed inference rejects the operator application (the graph is left
// unmodified), and once after every rewrite, where the optimizer re-derives
// shapes to catch rules that drift from the original semantics.
//
// All validation failures wrap ErrShape and can be tested with errors.Is.
package shapeinference

import (
	"slices"

	"github.com/pkg/errors"
	"github.com/tensorexpr/texopt/types"
	"github.com/tensorexpr/texopt/types/shapes"
)

// ErrShape is the class of all malformed operator applications: reshape to a
// different total size, non-bijective transpose permutations, reduce axes out
// of range, element-wise operands that don't broadcast, and similar.
var ErrShape = errors.New("shape error")

// ReshapeOp to the given dimensions: trivial output shape, but this function
// also checks that the total sizes match.
func ReshapeOp(operand shapes.Shape, dims []int) (output shapes.Shape, err error) {
	if !operand.Ok() {
		return shapes.Invalid(), errors.Wrapf(ErrShape, "Reshape() got invalid operand shape %s", operand)
	}
	for _, dim := range dims {
		if dim <= 0 {
			return shapes.Invalid(), errors.Wrapf(ErrShape, "Reshape(%s) target dimensions %v must all be positive", operand, dims)
		}
	}
	output = shapes.Shape{DType: operand.DType, Dimensions: slices.Clone(dims)}
	if !operand.SameSize(output) {
		return shapes.Invalid(), errors.Wrapf(ErrShape, "Reshape() cannot reshape %s to dimensions %v, their sizes don't match",
			operand, dims)
	}
	return
}

// TransposeOp permutes all axes of the operand.
// There must be one value in permutations for each axis in the operand.
// The output will have: output.Dimensions[ii] = operand.Dimensions[permutations[ii]].
func TransposeOp(operand shapes.Shape, permutations []int) (output shapes.Shape, err error) {
	if !operand.Ok() {
		return shapes.Invalid(), errors.Wrapf(ErrShape, "Transpose() got invalid operand shape %s", operand)
	}
	rank := operand.Rank()
	if len(permutations) != rank {
		err = errors.Wrapf(ErrShape, "Transpose() requires all axes permutations to be defined, operand has shape %s, but %d permutations were given",
			operand, len(permutations))
		return
	}
	if rank == 0 {
		return operand, nil
	}

	// Check permutation axes are within range and unique.
	axesSet := slices.Clone(permutations)
	slices.Sort(axesSet)
	for ii, srcAxis := range axesSet {
		if srcAxis < 0 || srcAxis >= rank {
			err = errors.Wrapf(ErrShape, "invalid permutation axis %d given to Transpose(%s), it must be within the range of its rank",
				srcAxis, operand)
			return
		}
		if ii > 0 && srcAxis == axesSet[ii-1] {
			err = errors.Wrapf(ErrShape, "invalid permutations given to Transpose(%s, %v), there cannot be any repeated axis, each must appear exactly once",
				operand, permutations)
			return
		}
	}

	output = operand.Clone()
	for axis := range output.Dimensions {
		srcAxis := permutations[axis]
		output.Dimensions[axis] = operand.Dimensions[srcAxis]
	}
	return
}

// ReduceOp folds over the given axes. Nil (or empty) axes mean a full
// reduction over every axis of the operand. If keepDims is set the reduced
// axes are kept in the output with dimension 1, otherwise they are dropped.
func ReduceOp(operand shapes.Shape, axes []int, keepDims bool) (output shapes.Shape, err error) {
	if !operand.Ok() {
		return shapes.Invalid(), errors.Wrapf(ErrShape, "Reduce() got invalid operand shape %s", operand)
	}
	rank := operand.Rank()
	axesSet := types.MakeSet[int](len(axes))
	for _, axis := range axes {
		if axis < 0 || axis >= rank {
			return shapes.Invalid(), errors.Wrapf(ErrShape, "Reduce() requires each axis to be 0 <= axis < rank, but got invalid axis %d for shape %s (%s)", axis, operand, operand.AxesNames())
		}
		if axesSet.Has(axis) {
			return shapes.Invalid(), errors.Wrapf(ErrShape, "Reduce() got repeated axis %d for shape %s, each axis must appear at most once", axis, operand)
		}
		axesSet.Insert(axis)
	}
	if len(axes) == 0 {
		// Full reduction.
		for axis := 0; axis < rank; axis++ {
			axesSet.Insert(axis)
		}
	}

	output = shapes.Shape{DType: operand.DType}
	for axis, dim := range operand.Dimensions {
		if !axesSet.Has(axis) {
			output.Dimensions = append(output.Dimensions, dim)
		} else if keepDims {
			output.Dimensions = append(output.Dimensions, 1)
		}
	}
	return
}

// ElementWiseOp returns the broadcast shape of applying an element-wise
// function over the given operands. All operands must share the same DType;
// shapes broadcast pairwise: a scalar broadcasts with anything, otherwise the
// ranks must match and each axis must either agree or one side must have
// dimension 1.
func ElementWiseOp(operands ...shapes.Shape) (output shapes.Shape, err error) {
	if len(operands) == 0 {
		return shapes.Invalid(), errors.Wrapf(ErrShape, "ElementWise() requires at least one operand")
	}
	output = operands[0].Clone()
	if !output.Ok() {
		return shapes.Invalid(), errors.Wrapf(ErrShape, "ElementWise() got invalid operand shape %s", output)
	}
	for _, operand := range operands[1:] {
		if operand.DType != output.DType {
			return shapes.Invalid(), errors.Wrapf(ErrShape, "data types (DType) for ElementWise() must match, got %s and %s", output, operand)
		}
		output, err = broadcast(output, operand)
		if err != nil {
			return shapes.Invalid(), err
		}
	}
	return
}

// broadcast two operand shapes of the same DType.
func broadcast(lhs, rhs shapes.Shape) (output shapes.Shape, err error) {
	if lhs.IsScalar() {
		return rhs.Clone(), nil
	}
	if rhs.IsScalar() {
		return lhs.Clone(), nil
	}
	if lhs.Rank() != rhs.Rank() {
		return shapes.Invalid(), errors.Wrapf(ErrShape, "if operands are not scalars, their rank must match for ElementWise(), got shapes %s and %s",
			lhs, rhs)
	}
	output = lhs.Clone()
	for axis := range output.Dimensions {
		lhsDim, rhsDim := lhs.Dimensions[axis], rhs.Dimensions[axis]
		switch {
		case lhsDim == rhsDim:
			// Nothing to do.
		case lhsDim == 1:
			output.Dimensions[axis] = rhsDim
		case rhsDim == 1:
			// Keep lhsDim.
		default:
			return shapes.Invalid(), errors.Wrapf(ErrShape, "dimension of axis #%d doesn't match and cannot be broadcast for ElementWise(), got shapes %s and %s",
				axis, lhs, rhs)
		}
	}
	return
}
