// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package ops

import (
	"testing"

	"github.com/gomlx/nnc/pkg/core/dtypes"
	"github.com/gomlx/nnc/pkg/core/tensors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpTypes(t *testing.T) {
	for opType := OpTypeGraphForward; opType < OpTypeLast; opType += 2 {
		require.True(t, opType.IsForward(), "%s", opType)
		require.False(t, opType.IsBackward(), "%s", opType)
		require.Equal(t, opType+1, opType.Backward())
		require.True(t, (opType + 1).IsBackward(), "%s", opType+1)
		require.NotNil(t, Lookup(opType), "%s not registered", opType)
		require.NotNil(t, Lookup(opType+1), "%s not registered", opType+1)
	}
	assert.Equal(t, OpTypeNoOp, OpTypeNoOp.Backward())
	assert.Equal(t, "EWExpBackward", OpTypeEWExpForward.Backward().String())
	assert.True(t, OpTypeGraphBackward.IsGraph())
	require.Panics(t, func() { OpTypeEWLogBackward.Backward() })
	require.Panics(t, func() { Register(OpTypeEWSumForward, Registration{}) })
	assert.True(t, HasAttributes(OpTypeEWSumBackward, AttrInplace|AttrPassthrough))
	assert.False(t, HasAttributes(OpTypeEWProdBackward, AttrInplace))
}

func TestBitmaskHelpers(t *testing.T) {
	bitmask := make([]uint64, BitmaskWords(70))
	require.Len(t, bitmask, 2)
	SetBit(bitmask, 0)
	SetBit(bitmask, 65)
	assert.True(t, HasBit(bitmask, 65))
	assert.Equal(t, uint64(2), bitmask[1])
	ClearBit(bitmask, 65)
	assert.False(t, HasBit(bitmask, 65))

	count, ok := onesPrefix([]uint64{0b0111})
	assert.True(t, ok)
	assert.Equal(t, 3, count)
	_, ok = onesPrefix([]uint64{0b1011})
	assert.False(t, ok)
	count, ok = onesPrefix([]uint64{^uint64(0), 1})
	assert.True(t, ok)
	assert.Equal(t, 65, count)
	_, ok = onesPrefix([]uint64{1, 1})
	assert.False(t, ok)
}

func TestElementWiseBitmasks(t *testing.T) {
	sum := New(OpTypeEWSumForward)
	assert.True(t, IsBitmaskValid(sum, []uint64{0b111}, []uint64{1}))
	assert.False(t, IsBitmaskValid(sum, []uint64{0b101}, []uint64{1}))
	assert.False(t, IsBitmaskValid(sum, []uint64{0b11}, []uint64{0}))

	sumBack := sum.Backward()
	assert.True(t, IsBitmaskValid(sumBack, []uint64{1}, []uint64{0b11}))
	assert.True(t, IsBitmaskValid(sumBack, []uint64{1}, []uint64{0b01}))
	assert.False(t, IsBitmaskValid(sumBack, []uint64{1}, []uint64{0b10}))
	assert.False(t, IsBitmaskValid(sumBack, []uint64{0}, []uint64{0b11}))

	// Gradient, 2 inputs and output for the 2 gradients.
	prodBack := New(OpTypeEWProdBackward)
	assert.True(t, IsBitmaskValid(prodBack, []uint64{0b1111}, []uint64{0b11}))
	assert.True(t, IsBitmaskValid(prodBack, []uint64{0b111}, []uint64{0b1}))
	assert.False(t, IsBitmaskValid(prodBack, []uint64{0b111}, []uint64{0b11}))

	expBack := New(OpTypeEWExpBackward)
	assert.True(t, IsBitmaskValid(expBack, []uint64{0b101}, []uint64{1}))
	assert.True(t, IsBitmaskValid(expBack, []uint64{0b111}, []uint64{1}))
	assert.False(t, IsBitmaskValid(expBack, []uint64{0b011}, []uint64{1}))

	logBack := New(OpTypeEWLogBackward)
	assert.True(t, IsBitmaskValid(logBack, []uint64{0b011}, []uint64{1}))
	assert.False(t, IsBitmaskValid(logBack, []uint64{0b101}, []uint64{1}))

	divBack := New(OpTypeEWDivBackward)
	assert.True(t, IsBitmaskValid(divBack, []uint64{0b1101}, []uint64{0b11}))
	assert.True(t, IsBitmaskValid(divBack, []uint64{0b0101}, []uint64{0b01}))
	assert.False(t, IsBitmaskValid(divBack, []uint64{0b0101}, []uint64{0b11}))
	assert.True(t, IsBitmaskValid(New(OpTypeEWDivForward), []uint64{0b10}, []uint64{1}))

	// Not registered predicates accept anything.
	assert.True(t, IsBitmaskValid(NoOp, nil, nil))
}

func TestInferShapes(t *testing.T) {
	a := tensors.MakeParam(dtypes.Float32, 2, 3)
	b := tensors.MakeParam(dtypes.Float32, 4)
	outputs := make([]tensors.Param, 1)
	InferShapes(New(OpTypeEWSumForward), []tensors.Param{a, a}, NoHint, outputs)
	assert.Equal(t, a, outputs[0])

	outputs = make([]tensors.Param, 2)
	InferShapes(New(OpTypeEWProdBackward), []tensors.Param{b, a, a, b}, NoHint, outputs)
	assert.Equal(t, []tensors.Param{b, b}, outputs)

	outputs = make([]tensors.Param, 2)
	BackwardFromInputs(Params{}, []tensors.Param{b, a, a}, NoHint, outputs)
	assert.Equal(t, []tensors.Param{a, a}, outputs)
}

func TestConvolutionShapes(t *testing.T) {
	conv := Convolution(16, 3, 3)
	hint := Hint{Stride: [tensors.MaxDim]int{2, 2}, Border: Border{Begin: [tensors.MaxDim]int{1, 1}, End: [tensors.MaxDim]int{1, 1}}}
	input := tensors.MakeParam(dtypes.Float32, 8, 32, 32, 3)
	weights := tensors.MakeParam(dtypes.Float32, 16, 3, 3, 3)
	outputs := make([]tensors.Param, 1)
	InferShapes(conv, []tensors.Param{input, weights}, hint, outputs)
	assert.Equal(t, []int{8, 16, 16, 16}, outputs[0].Dims.Slice())

	back := tensors.MakeParam(dtypes.Float32, 8, 16, 16, 3)
	HintTensorBackward(conv.Params, outputs[0], hint, &back)
	assert.Equal(t, []int{8, 31, 31, 3}, back.Dims.Slice())

	chw := tensors.MakeParam(dtypes.Float32, 3, 32, 32)
	chw.Format = tensors.FormatNCHW
	InferShapes(conv, []tensors.Param{chw, weights}, NoHint, outputs)
	assert.Equal(t, []int{16, 30, 30}, outputs[0].Dims.Slice())

	grads := make([]tensors.Param, 3)
	InferShapes(conv.Backward(), []tensors.Param{outputs[0], chw, weights}, NoHint, grads)
	assert.Equal(t, chw, grads[0])
	assert.Equal(t, weights, grads[1])
	assert.Equal(t, []int{16}, grads[2].Dims.Slice())

	assert.True(t, IsBitmaskValid(conv, []uint64{0b11}, []uint64{1}))
	assert.True(t, IsBitmaskValid(conv.Backward(), []uint64{0b111}, []uint64{0b011}))
	assert.True(t, IsBitmaskValid(conv.Backward(), []uint64{0b011}, []uint64{0b110}))
	assert.False(t, IsBitmaskValid(conv.Backward(), []uint64{0b011}, []uint64{0b011}))
}
