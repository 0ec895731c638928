// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package ops

import (
	"github.com/gomlx/nnc/pkg/core/tensors"
)

// Convolution takes the input, the weights and optionally the bias. The backward produces the
// gradients of the input (optional), the weights and the bias (optional).

func init() {
	Register(OpTypeConvolutionForward, Registration{
		Bitmask:    convolutionForwardBitmask,
		TensorAuto: convolutionTensorAuto,
	})
	Register(OpTypeConvolutionBackward, Registration{
		Bitmask:    convolutionBackwardBitmask,
		TensorAuto: convolutionBackwardTensorAuto,
	})
}

// Convolution returns a convolution with count output channels and a kernel of the given spatial size.
func Convolution(count int, size ...int) Op {
	return Op{
		Type:   OpTypeConvolutionForward,
		Params: Params{Size: tensors.MakeDims(size...), Count: count},
	}
}

func convolutionForwardBitmask(inputs, outputs []uint64) bool {
	in := firstWord(inputs)
	return (in == 7 || in == 3) && firstWord(outputs) == 1
}

func convolutionBackwardBitmask(inputs, outputs []uint64) bool {
	in := firstWord(inputs)
	out := firstWord(outputs)
	if in&7 == 1|2|4 && (out == 1|2|4 || out == 1|2) {
		return true
	}
	// Without the gradient of the input the weights are not needed.
	return in&3 == 1|2 && (out == 2|4 || out == 2)
}

func channelAxis(p tensors.Param) int {
	if p.Format == tensors.FormatNCHW {
		if p.Rank() == tensors.MaxDim+1 {
			return 0
		}
		return 1
	}
	if p.Format == tensors.FormatCHWN {
		return 0
	}
	return p.Rank() - 1
}

func convolutionTensorAuto(params Params, inputs []tensors.Param, hint Hint, outputs []tensors.Param) {
	out := inputs[0]
	HintTensorForward(params, inputs[0], hint, &out)
	out.Dims[channelAxis(out)] = params.Count
	outputs[0] = out
}

func convolutionBackwardTensorAuto(params Params, inputs []tensors.Param, _ Hint, outputs []tensors.Param) {
	for i := range outputs {
		switch {
		case i < 2 && i+1 < len(inputs):
			outputs[i] = inputs[i+1]
		case i == 2:
			bias := inputs[0]
			bias.Dims = tensors.MakeDims(params.Count)
			outputs[i] = bias
		}
	}
}
