package simplego

import (
	"math"

	"github.com/gomlx/nnc/backends"
	"github.com/gomlx/nnc/internal/workerspool"
	"github.com/gomlx/nnc/pkg/core/dtypes"
	"github.com/gomlx/nnc/pkg/core/ops"
	"github.com/gomlx/nnc/pkg/core/tensors"
	"golang.org/x/exp/constraints"
)

// This file implements the element-wise operations. Absent (nil) inputs are taken as ones,
// absent outputs are not computed.

func init() {
	opExecutors[ops.OpTypeEWSumForward] = execElementWise(ewSum[float32], ewSum[float64])
	opExecutors[ops.OpTypeEWSumBackward] = execElementWise(ewSumBackward[float32], ewSumBackward[float64])
	opExecutors[ops.OpTypeEWProdForward] = execElementWise(ewProd[float32], ewProd[float64])
	opExecutors[ops.OpTypeEWProdBackward] = execElementWise(ewProdBackward[float32], ewProdBackward[float64])
	opExecutors[ops.OpTypeEWDivForward] = execElementWise(ewDiv[float32], ewDiv[float64])
	opExecutors[ops.OpTypeEWDivBackward] = execElementWise(ewDivBackward[float32], ewDivBackward[float64])
	opExecutors[ops.OpTypeEWExpForward] = execElementWise(ewExp[float32], ewExp[float64])
	opExecutors[ops.OpTypeEWExpBackward] = execElementWise(ewExpBackward[float32], ewExpBackward[float64])
	opExecutors[ops.OpTypeEWLogForward] = execElementWise(ewLog[float32], ewLog[float64])
	opExecutors[ops.OpTypeEWLogBackward] = execElementWise(ewLogBackward[float32], ewLogBackward[float64])
}

// kernel computes outputs from inputs, all flat slices of the same length (or nil).
type kernel[T constraints.Float] func(inputs, outputs [][]T)

// minParallelChunk is the smallest number of elements handed to a worker.
const minParallelChunk = 16 * 1024

// runKernel runs k over chunks of the flat values, in parallel if workers allow it.
func runKernel[T constraints.Float](workers *workerspool.Pool, k kernel[T], length int, inputs, outputs [][]T) {
	workers.Split(length, minParallelChunk, func(start, end int) {
		k(chunkOf(inputs, start, end), chunkOf(outputs, start, end))
	})
}

func chunkOf[T constraints.Float](flats [][]T, start, end int) [][]T {
	chunk := make([][]T, len(flats))
	for i, flat := range flats {
		if flat != nil {
			chunk[i] = flat[start:end]
		}
	}
	return chunk
}

// execElementWise returns the executor dispatching to the kernel of the dtype of the tensors.
func execElementWise(k32 kernel[float32], k64 kernel[float64]) executor {
	return func(backend *Backend, _ ops.Op, _ ops.Hint, inputs, outputs []*tensors.Dense) backends.Status {
		dtype, length, ok := checkElementWise(inputs, outputs)
		if !ok {
			return backends.StatusInvalid
		}
		switch dtype {
		case dtypes.Float32:
			runKernel(backend.workers, k32, length, flats[float32](inputs), flats[float32](outputs))
		case dtypes.Float64:
			runKernel(backend.workers, k64, length, flats[float64](inputs), flats[float64](outputs))
		case dtypes.Float16:
			outs := make([][]float32, len(outputs))
			for i, t := range outputs {
				if t != nil {
					outs[i] = make([]float32, length)
				}
			}
			runKernel(backend.workers, k32, length, float16sToFloat32s(inputs), outs)
			storeFloat16s(outs, outputs)
		default:
			return backends.StatusNoKernel
		}
		return backends.StatusSuccess
	}
}

// checkElementWise returns the common dtype and number of elements of the tensors.
// It fails if they differ, if there is no output or if a tensor isn't contiguous.
func checkElementWise(inputs, outputs []*tensors.Dense) (dtype dtypes.DType, length int, ok bool) {
	length = -1
	for _, list := range [][]*tensors.Dense{outputs, inputs} {
		for _, t := range list {
			if t == nil {
				continue
			}
			param := t.Param()
			if length < 0 {
				dtype, length = param.DType, param.Count()
			}
			if param.DType != dtype || param.Count() != length || !t.IsContiguous() {
				return dtype, length, false
			}
		}
		if length < 0 {
			// No output given.
			return dtype, length, false
		}
	}
	return dtype, length, true
}

func flats[T float32 | float64](ts []*tensors.Dense) [][]T {
	out := make([][]T, len(ts))
	for i, t := range ts {
		if t != nil {
			out[i] = tensors.Flat[T](t)
		}
	}
	return out
}

func valueOrOne[T constraints.Float](flat []T, i int) T {
	if flat == nil {
		return 1
	}
	return flat[i]
}

func outputLength[T constraints.Float](outputs [][]T) int {
	for _, out := range outputs {
		if out != nil {
			return len(out)
		}
	}
	return 0
}

// ewSum: c = a_1 + ... + a_n.
func ewSum[T constraints.Float](inputs, outputs [][]T) {
	out := outputs[0]
	for i := range out {
		var sum T
		for _, in := range inputs {
			if in != nil {
				sum += in[i]
			}
		}
		out[i] = sum
	}
}

// ewSumBackward: da_k = g.
func ewSumBackward[T constraints.Float](inputs, outputs [][]T) {
	g := inputs[0]
	for i := range outputLength(outputs) {
		v := valueOrOne(g, i)
		for _, out := range outputs {
			if out != nil {
				out[i] = v
			}
		}
	}
}

// ewProd: c = a_1 * ... * a_n.
func ewProd[T constraints.Float](inputs, outputs [][]T) {
	out := outputs[0]
	for i := range out {
		var prod T = 1
		for _, in := range inputs {
			if in != nil {
				prod *= in[i]
			}
		}
		out[i] = prod
	}
}

// ewProdBackward takes g, a_1 ... a_n, c and computes da_k = g * c / a_k.
func ewProdBackward[T constraints.Float](inputs, outputs [][]T) {
	g := inputs[0]
	c := inputs[len(outputs)+1]
	for i := range outputLength(outputs) {
		gc := valueOrOne(g, i) * c[i]
		for k, out := range outputs {
			if out != nil {
				out[i] = gc / inputs[k+1][i]
			}
		}
	}
}

// ewDiv: c = a / b.
func ewDiv[T constraints.Float](inputs, outputs [][]T) {
	a, b, out := inputs[0], inputs[1], outputs[0]
	for i := range out {
		out[i] = valueOrOne(a, i) / b[i]
	}
}

// ewDivBackward takes g, a, b, c and computes da = g / b and db = -g * c / b.
func ewDivBackward[T constraints.Float](inputs, outputs [][]T) {
	g, b := inputs[0], inputs[2]
	da := outputs[0]
	var c, db []T
	if len(outputs) > 1 && len(inputs) > 3 {
		c, db = inputs[3], outputs[1]
	}
	for i := range outputLength(outputs) {
		gb := valueOrOne(g, i) / b[i]
		if da != nil {
			da[i] = gb
		}
		if db != nil {
			db[i] = -gb * c[i]
		}
	}
}

// ewExp: b = exp(a).
func ewExp[T constraints.Float](inputs, outputs [][]T) {
	a, out := inputs[0], outputs[0]
	for i := range out {
		out[i] = T(math.Exp(float64(a[i])))
	}
}

// ewExpBackward takes g, a, b and computes da = g * b.
func ewExpBackward[T constraints.Float](inputs, outputs [][]T) {
	g, b, out := inputs[0], inputs[2], outputs[0]
	for i := range out {
		out[i] = valueOrOne(g, i) * b[i]
	}
}

// ewLog: b = log(a).
func ewLog[T constraints.Float](inputs, outputs [][]T) {
	a, out := inputs[0], outputs[0]
	for i := range out {
		out[i] = T(math.Log(float64(a[i])))
	}
}

// ewLogBackward takes g, a and computes da = g / a.
func ewLogBackward[T constraints.Float](inputs, outputs [][]T) {
	g, a, out := inputs[0], inputs[1], outputs[0]
	for i := range out {
		out[i] = valueOrOne(g, i) / a[i]
	}
}
