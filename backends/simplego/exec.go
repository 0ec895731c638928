package simplego

import (
	"github.com/gomlx/nnc/backends"
	"github.com/gomlx/nnc/pkg/core/ops"
	"github.com/gomlx/nnc/pkg/core/tensors"
	"k8s.io/klog/v2"
)

// executor runs one operation. The presence of the inputs and outputs was already checked
// against the operation's registered bitmask.
type executor func(backend *Backend, op ops.Op, hint ops.Hint, inputs, outputs []*tensors.Dense) backends.Status

// opExecutors maps each op type to its executor. It is filled in init functions.
var opExecutors [ops.OpTypeLast]executor

func init() {
	opExecutors[ops.OpTypeNoOp] = execNoOp
}

func execNoOp(*Backend, ops.Op, ops.Hint, []*tensors.Dense, []*tensors.Dense) backends.Status {
	return backends.StatusSuccess
}

// presence returns the bitmask of the non-nil tensors.
func presence(ts []*tensors.Dense) []uint64 {
	bitmask := make([]uint64, max(1, ops.BitmaskWords(len(ts))))
	for i, t := range ts {
		if t != nil {
			ops.SetBit(bitmask, i)
		}
	}
	return bitmask
}

// Exec implements backends.Backend.
func (b *Backend) Exec(op ops.Op, hint ops.Hint, _ backends.Flags, inputs, outputs []*tensors.Dense) backends.Status {
	if op.Type <= ops.OpTypeInvalid || op.Type >= ops.OpTypeLast {
		return backends.StatusInvalid
	}
	fn := opExecutors[op.Type]
	if fn == nil {
		klog.V(2).Infof("simplego: no kernel for %s", op)
		return backends.StatusNoKernel
	}
	if !ops.IsBitmaskValid(op, presence(inputs), presence(outputs)) {
		klog.V(2).Infof("simplego: %s can't run with inputs %b and outputs %b", op, presence(inputs), presence(outputs))
		return backends.StatusInvalid
	}
	return fn(b, op, hint, inputs, outputs)
}
