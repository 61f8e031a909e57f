package shapeinference

import (
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tensorexpr/texopt/types/shapes"
)

var (
	F32 = dtypes.Float32
	F64 = dtypes.Float64

	// MS is a shortcut to create shapes: MS == MakeShape
	MS = shapes.Make
)

func TestReshapeOp(t *testing.T) {
	output, err := ReshapeOp(MS(F32, 2, 3), []int{6})
	require.NoError(t, err)
	assert.True(t, output.Equal(MS(F32, 6)))

	output, err = ReshapeOp(MS(F32, 2, 3), []int{3, 2, 1})
	require.NoError(t, err)
	assert.True(t, output.Equal(MS(F32, 3, 2, 1)))

	// Sizes don't match.
	_, err = ReshapeOp(MS(F32, 2, 3), []int{4})
	require.ErrorIs(t, err, ErrShape)

	// Non-positive target dimension.
	_, err = ReshapeOp(MS(F32, 2, 3), []int{6, 0})
	require.ErrorIs(t, err, ErrShape)

	// Invalid operand.
	_, err = ReshapeOp(shapes.Invalid(), []int{1})
	require.ErrorIs(t, err, ErrShape)
}

func TestTransposeOp(t *testing.T) {
	output, err := TransposeOp(MS(F32, 2, 3, 4), []int{2, 0, 1})
	require.NoError(t, err)
	assert.True(t, output.Equal(MS(F32, 4, 2, 3)))

	// Scalar transpose with no permutations is fine.
	output, err = TransposeOp(shapes.Scalar[float32](), nil)
	require.NoError(t, err)
	assert.True(t, output.IsScalar())

	// Wrong number of permutations.
	_, err = TransposeOp(MS(F32, 2, 3), []int{0})
	require.ErrorIs(t, err, ErrShape)

	// Out-of-range axis.
	_, err = TransposeOp(MS(F32, 2, 3), []int{0, 2})
	require.ErrorIs(t, err, ErrShape)

	// Repeated axis.
	_, err = TransposeOp(MS(F32, 2, 3), []int{1, 1})
	require.ErrorIs(t, err, ErrShape)
}

func TestReduceOp(t *testing.T) {
	// Partial reduction drops the reduced axes.
	output, err := ReduceOp(MS(F32, 2, 3, 4), []int{0, 2}, false)
	require.NoError(t, err)
	assert.True(t, output.Equal(MS(F32, 3)))

	// keepDims keeps them with dimension 1.
	output, err = ReduceOp(MS(F32, 2, 3, 4), []int{0, 2}, true)
	require.NoError(t, err)
	assert.True(t, output.Equal(MS(F32, 1, 3, 1)))

	// Nil axes mean full reduction, to a scalar.
	output, err = ReduceOp(MS(F32, 2, 3, 4), nil, false)
	require.NoError(t, err)
	assert.True(t, output.IsScalar())
	assert.Equal(t, F32, output.DType)

	// Full reduction with keepDims keeps all axes at 1.
	output, err = ReduceOp(MS(F32, 2, 3), nil, true)
	require.NoError(t, err)
	assert.True(t, output.Equal(MS(F32, 1, 1)))

	// Reducing a scalar yields a scalar.
	output, err = ReduceOp(shapes.Scalar[float32](), nil, false)
	require.NoError(t, err)
	assert.True(t, output.IsScalar())

	// Out-of-range and repeated axes.
	_, err = ReduceOp(MS(F32, 2, 3), []int{2}, false)
	require.ErrorIs(t, err, ErrShape)
	_, err = ReduceOp(MS(F32, 2, 3), []int{-1}, false)
	require.ErrorIs(t, err, ErrShape)
	_, err = ReduceOp(MS(F32, 2, 3), []int{0, 0}, false)
	require.ErrorIs(t, err, ErrShape)
}

func TestElementWiseOp(t *testing.T) {
	// Identical shapes.
	output, err := ElementWiseOp(MS(F32, 2, 3), MS(F32, 2, 3))
	require.NoError(t, err)
	assert.True(t, output.Equal(MS(F32, 2, 3)))

	// Scalar broadcasts with anything.
	output, err = ElementWiseOp(MS(F32, 2, 3), shapes.Scalar[float32]())
	require.NoError(t, err)
	assert.True(t, output.Equal(MS(F32, 2, 3)))

	// Dimension-1 axes stretch.
	output, err = ElementWiseOp(MS(F32, 2, 1), MS(F32, 1, 3))
	require.NoError(t, err)
	assert.True(t, output.Equal(MS(F32, 2, 3)))

	// Unary application is the identity on the shape.
	output, err = ElementWiseOp(MS(F32, 5))
	require.NoError(t, err)
	assert.True(t, output.Equal(MS(F32, 5)))

	// DTypes must match.
	_, err = ElementWiseOp(MS(F32, 2, 3), MS(F64, 2, 3))
	require.ErrorIs(t, err, ErrShape)

	// Ranks must match for non-scalars.
	_, err = ElementWiseOp(MS(F32, 2, 3), MS(F32, 3))
	require.ErrorIs(t, err, ErrShape)

	// Incompatible dimension.
	_, err = ElementWiseOp(MS(F32, 2, 3), MS(F32, 2, 4))
	require.ErrorIs(t, err, ErrShape)

	// No operands.
	_, err = ElementWiseOp()
	require.ErrorIs(t, err, ErrShape)
}

func TestErrShapeIsMatchable(t *testing.T) {
	_, err := ReshapeOp(MS(F32, 2), []int{3})
	require.True(t, errors.Is(err, ErrShape))
	assert.Contains(t, err.Error(), "Reshape")
}
