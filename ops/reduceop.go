package ops

// ReduceOpKind selects the folding function of an OpTypeReduce node.
type ReduceOpKind int

//go:generate go tool enumer -type=ReduceOpKind -trimprefix=ReduceOp -output=gen_reduceopkind_enumer.go reduceop.go

const (
	ReduceOpInvalid ReduceOpKind = iota
	ReduceOpSum
	ReduceOpProduct
	ReduceOpMean
	ReduceOpMax
	ReduceOpMin
)
