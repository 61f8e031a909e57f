// Package ops enumerates the operator vocabulary of a tensor expression graph.
//
// The enumeration is closed on purpose: the optimizer's rewrite rules are
// proven shape-preserving and cost-monotone over this fixed set, which would
// not be tractable over an open-ended plugin registry. Operators outside the
// vocabulary are represented as OpTypeOther with a declared output shape and
// are treated as opaque by every rewrite.
package ops

// OpType is an enum of the operations an expression graph node can perform.
type OpType int

//go:generate go tool enumer -type=OpType -trimprefix=OpType -output=gen_optype_enumer.go optype.go

const (
	OpTypeInvalid OpType = iota

	// OpTypeInput is a graph parameter: no inputs, shape declared at build time.
	OpTypeInput

	// OpTypeConstant is a literal operand: no inputs, shape declared at build time.
	OpTypeConstant

	// OpTypeReshape reinterprets its input with new dimensions of the same total size.
	OpTypeReshape

	// OpTypeTranspose permutes the axes of its input.
	OpTypeTranspose

	// OpTypeElementWise applies a function symbol element-wise over one or more
	// broadcast-compatible inputs. Fused chains keep this op type.
	OpTypeElementWise

	// OpTypeReduce folds a ReduceOpKind over a set of axes (nil axes = all).
	OpTypeReduce

	// OpTypeOther is an opaque, cost-annotated operator the optimizer never rewrites.
	OpTypeOther

	// OpTypeLast should always be kept the last, it is used as a counter/marker for OpType.
	OpTypeLast
)
