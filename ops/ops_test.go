package ops

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpTypeStrings(t *testing.T) {
	assert.Equal(t, "Reshape", OpTypeReshape.String())
	assert.Equal(t, "ElementWise", OpTypeElementWise.String())
	assert.True(t, OpTypeReduce.IsAOpType())
	assert.False(t, OpType(-1).IsAOpType())
	assert.False(t, OpType(int(OpTypeLast)+1).IsAOpType())

	parsed, err := OpTypeString("Transpose")
	require.NoError(t, err)
	assert.Equal(t, OpTypeTranspose, parsed)
	_, err = OpTypeString("NoSuchOp")
	require.Error(t, err)

	// The enum is closed: values and names stay in sync.
	values := OpTypeValues()
	names := OpTypeStrings()
	require.Equal(t, len(values), len(names))
	for ii, value := range values {
		assert.Equal(t, names[ii], value.String())
	}
}

func TestReduceOpKindStrings(t *testing.T) {
	assert.Equal(t, "Sum", ReduceOpSum.String())
	assert.Equal(t, "Mean", ReduceOpMean.String())
	assert.True(t, ReduceOpMax.IsAReduceOpKind())
	assert.False(t, ReduceOpKind(99).IsAReduceOpKind())

	parsed, err := ReduceOpKindString("Product")
	require.NoError(t, err)
	assert.Equal(t, ReduceOpProduct, parsed)
}
