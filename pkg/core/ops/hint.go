// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package ops

import (
	"github.com/gomlx/exceptions"
	"github.com/gomlx/nnc/pkg/core/tensors"
)

// ForwardFromInputs sets every output to the parameters of the corresponding input
// (or the last input, if there are fewer inputs than outputs).
func ForwardFromInputs(_ Params, inputs []tensors.Param, _ Hint, outputs []tensors.Param) {
	for i := range outputs {
		outputs[i] = inputs[min(i, len(inputs)-1)]
	}
}

// BackwardFromGradient sets every output to the parameters of the gradient, the first input.
func BackwardFromGradient(_ Params, inputs []tensors.Param, _ Hint, outputs []tensors.Param) {
	for i := range outputs {
		outputs[i] = inputs[0]
	}
}

// BackwardFromInputs sets every output to the forward input it is the gradient of: the inputs
// after the first one.
func BackwardFromInputs(_ Params, inputs []tensors.Param, _ Hint, outputs []tensors.Param) {
	for i := range outputs {
		if i+1 < len(inputs) {
			outputs[i] = inputs[i+1]
		}
	}
}

// spatialAxis returns the axis of the first spatial dimension of p.
func spatialAxis(p tensors.Param) int {
	rank := p.Rank()
	if rank != tensors.MaxDim+1 && rank != tensors.MaxDim+2 {
		exceptions.Panicf("ops: spatial operation on tensor of rank %d: %s", rank, p)
	}
	switch {
	case p.Format == tensors.FormatCHWN, p.Format == tensors.FormatNHWC && rank == tensors.MaxDim+1:
		return 0
	case p.Format == tensors.FormatNHWC, p.Format == tensors.FormatNCHW && rank == tensors.MaxDim+1:
		return 1
	case p.Format == tensors.FormatNCHW:
		return 2
	}
	exceptions.Panicf("ops: unknown format %s", p.Format)
	return -1
}

// HintTensorForward sets the spatial dimensions of b to the ones produced by sliding a
// window of params.Size over a, with the stride and borders of hint.
func HintTensorForward(params Params, a tensors.Param, hint Hint, b *tensors.Param) {
	if a.Format != b.Format {
		exceptions.Panicf("ops.HintTensorForward: formats %s and %s differ", a.Format, b.Format)
	}
	hw := spatialAxis(a)
	for i := 0; i < tensors.MaxDim; i++ {
		stride := max(1, hint.Stride[i])
		b.Dims[i+hw] = (a.Dims[i+hw]+hint.Border.Begin[i]+hint.Border.End[i]-params.Size[i])/stride + 1
	}
}

// HintTensorBackward is the inverse of HintTensorForward: it sets the spatial dimensions of b
// to the ones that, windowed, produce a.
func HintTensorBackward(params Params, a tensors.Param, hint Hint, b *tensors.Param) {
	if a.Format != b.Format {
		exceptions.Panicf("ops.HintTensorBackward: formats %s and %s differ", a.Format, b.Format)
	}
	hw := spatialAxis(a)
	for i := 0; i < tensors.MaxDim; i++ {
		stride := max(1, hint.Stride[i])
		b.Dims[i+hw] = (a.Dims[i+hw]-1)*stride - hint.Border.Begin[i] - hint.Border.End[i] + params.Size[i]
	}
}
