// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package ops

// Element-wise operations.
//
// The backward of an operation with n inputs and m outputs takes as inputs the m gradients
// of the outputs, the n forward inputs and the m forward outputs, and produces the n
// gradients of the forward inputs.

func init() {
	Register(OpTypeEWSumForward, Registration{
		Attributes: AttrInplace,
		Bitmask:    ewSumForwardBitmask,
		TensorAuto: ForwardFromInputs,
	})
	Register(OpTypeEWSumBackward, Registration{
		Attributes: AttrInplace | AttrPassthrough,
		Bitmask:    ewSumBackwardBitmask,
		TensorAuto: BackwardFromGradient,
	})
	Register(OpTypeEWProdForward, Registration{
		Attributes: AttrInplace,
		Bitmask:    ewSumForwardBitmask,
		TensorAuto: ForwardFromInputs,
	})
	Register(OpTypeEWProdBackward, Registration{
		Attributes: AttrNullIsOnes,
		Bitmask:    ewProdBackwardBitmask,
		TensorAuto: BackwardFromGradient,
	})
	Register(OpTypeEWDivForward, Registration{
		Attributes: AttrInplace | AttrNullIsOnes,
		Bitmask:    ewDivForwardBitmask,
		TensorAuto: ForwardFromInputs,
	})
	Register(OpTypeEWDivBackward, Registration{
		Attributes: AttrNullIsOnes,
		Bitmask:    ewDivBackwardBitmask,
		TensorAuto: BackwardFromGradient,
	})
	Register(OpTypeEWExpForward, Registration{
		Attributes: AttrInplace,
		Bitmask:    unaryForwardBitmask,
		TensorAuto: ForwardFromInputs,
	})
	Register(OpTypeEWExpBackward, Registration{
		Attributes: AttrInplace | AttrNullIsOnes,
		Bitmask:    ewExpBackwardBitmask,
		TensorAuto: BackwardFromGradient,
	})
	Register(OpTypeEWLogForward, Registration{
		Attributes: AttrInplace,
		Bitmask:    unaryForwardBitmask,
		TensorAuto: ForwardFromInputs,
	})
	Register(OpTypeEWLogBackward, Registration{
		Attributes: AttrInplace | AttrNullIsOnes,
		Bitmask:    ewLogBackwardBitmask,
		TensorAuto: BackwardFromGradient,
	})
}

// ewSumForwardBitmask accepts one output and any prefix of inputs.
func ewSumForwardBitmask(inputs, outputs []uint64) bool {
	if firstWord(outputs) != 1 {
		return false
	}
	_, ok := onesPrefix(inputs)
	return ok
}

// ewSumBackwardBitmask requires the gradient and accepts any prefix of outputs.
func ewSumBackwardBitmask(inputs, outputs []uint64) bool {
	if firstWord(inputs)&1 != 1 {
		return false
	}
	_, ok := onesPrefix(outputs)
	return ok
}

// ewProdBackwardBitmask requires, besides the forward inputs whose gradients are computed,
// the gradient and the forward output.
func ewProdBackwardBitmask(inputs, outputs []uint64) bool {
	inputCount, ok := onesPrefix(inputs)
	if !ok {
		return false
	}
	outputCount, ok := onesPrefix(outputs)
	if !ok {
		return false
	}
	return outputCount+2 == inputCount
}

func ewDivForwardBitmask(inputs, outputs []uint64) bool {
	if firstWord(outputs) != 1 {
		return false
	}
	// The numerator can be absent, meaning 1.
	in := firstWord(inputs) & 3
	return in == 3 || in == 2
}

func ewDivBackwardBitmask(inputs, outputs []uint64) bool {
	// The forward numerator is never needed.
	in := firstWord(inputs) & (15 &^ 2)
	out := firstWord(outputs)
	if in == 1|4|8 && out == 1|2 {
		return true
	}
	return in == 1|4 && out == 1
}

func unaryForwardBitmask(inputs, outputs []uint64) bool {
	return firstWord(inputs)&1 == 1 && firstWord(outputs) == 1
}

// ewExpBackwardBitmask needs the gradient and the forward output, not the forward input.
func ewExpBackwardBitmask(inputs, outputs []uint64) bool {
	return firstWord(inputs)&(7&^2) == 1|4 && firstWord(outputs) == 1
}

// ewLogBackwardBitmask needs the gradient and the forward input.
func ewLogBackwardBitmask(inputs, outputs []uint64) bool {
	return firstWord(inputs)&3 == 3 && firstWord(outputs) == 1
}
