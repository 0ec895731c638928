// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package tensors

import (
	"testing"

	"github.com/gomlx/nnc/pkg/core/dtypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParam(t *testing.T) {
	p := MakeParam(dtypes.Float32, 2, 3)
	assert.Equal(t, 2, p.Rank())
	assert.Equal(t, 6, p.Count())
	assert.Equal(t, 24, p.Memory())
	assert.Equal(t, CPUMemory, p.MemoryKind)
	gpu := p
	gpu.MemoryKind, gpu.DeviceID = GPUMemory, 1
	assert.Equal(t, "(Float32)[2 3]@GPU:1", gpu.String())
	assert.Equal(t, 24, gpu.Memory())
	assert.Equal(t, []int{1, 1, 2, 3}, p.AlignedDims())
	assert.Equal(t, "(Float32)[2 3]", p.String())
	assert.False(t, p.IsAuto())
	assert.True(t, Param{DType: dtypes.Float32}.IsAuto())
	assert.Equal(t, []int{6, 4}, MakeDims(2, 3, 4).Aligned(2))

	require.Panics(t, func() { MakeDims(1, 2, 3, 4, 5, 6, 7, 8, 9) })
	require.Panics(t, func() { MakeDims(2, 0) })
}

func TestDenseAndViews(t *testing.T) {
	backing := FromFlat([]float32{
		0, 1, 2, 3,
		4, 5, 6, 7,
		8, 9, 10, 11,
	}, 3, 4)
	assert.True(t, backing.Owned())
	assert.Equal(t, TypeDense, backing.Type())

	view := NewView(backing, []int{1, 1}, 2, 2)
	assert.Equal(t, TypeView, view.Type())
	assert.False(t, view.Owned())
	assert.False(t, view.IsContiguous())
	assert.Equal(t, []float32{5, 6, 9, 10}, CopyFlat[float32](view))
	require.Panics(t, func() { view.Bytes() })

	// Writes through the backing tensor are seen by the view.
	Flat[float32](backing)[5] = 50
	assert.Equal(t, []float32{50, 6, 9, 10}, CopyFlat[float32](view))

	rows := NewView(backing, []int{1, 0}, 2, 4)
	assert.True(t, rows.IsContiguous())
	assert.Equal(t, []float32{4, 50, 6, 7, 8, 9, 10, 11}, Flat[float32](rows))

	// Out of bounds views are rejected.
	require.Panics(t, func() { NewView(backing, []int{2, 0}, 2, 4) })
	require.Panics(t, func() { NewView(backing, []int{0, 3}, 1, 2) })
	require.Panics(t, func() { Flat[float64](backing) })
}

func TestData(t *testing.T) {
	buf := make([]byte, 16)
	d := MakeData(buf)
	assert.True(t, d.Offset(4).Offset(-4).Same(d))
	assert.False(t, d.Offset(4).Same(d))
	assert.False(t, d.Same(MakeData(make([]byte, 16))))
	assert.True(t, Data{}.IsNil())
	assert.Len(t, d.Offset(8).Bytes(8), 8)
	require.Panics(t, func() { d.Offset(12).Bytes(8) })
}
