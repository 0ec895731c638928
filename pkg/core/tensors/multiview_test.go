// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package tensors

import (
	"testing"

	"github.com/gomlx/nnc/pkg/core/dtypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type loopID struct{ name string }

func newBuffers(n, size int) []*Dense {
	buffers := make([]*Dense, n)
	for i := range buffers {
		buffers[i] = New(MakeParam(dtypes.Float32, size))
	}
	return buffers
}

func dataOf(buffers []*Dense) []Data {
	data := make([]Data, len(buffers))
	for i, b := range buffers {
		data[i] = b.Data()
	}
	return data
}

func TestMultiViewSelect(t *testing.T) {
	anchor := &loopID{"body"}
	buffers := newBuffers(3, 4)
	tv := FromData(buffers[0].Param(), buffers[0].Data())

	k1n := NewMultiView(tv, dataOf(buffers), KindK1N, 2, anchor)
	assert.Equal(t, 3, k1n.Len())
	var got []int
	for count := 0; count < 6; count++ {
		got = append(got, k1n.Select(count))
	}
	assert.Equal(t, []int{0, 1, 2, 1, 2, 1}, got)

	k0n := NewMultiView(tv, dataOf(buffers[1:]), KindK0N, 2, anchor)
	got = got[:0]
	for count := 0; count < 5; count++ {
		got = append(got, k0n.Select(count))
	}
	assert.Equal(t, []int{0, 1, 0, 1, 0}, got)
	assert.True(t, k0n.Anchor() == anchor)

	require.Panics(t, func() { NewMultiView(tv, dataOf(buffers), KindK0N, 2, anchor) })
	require.Panics(t, func() { NewMultiView(tv, nil, KindK0N, 0, anchor) })
	require.Panics(t, func() { NewMultiView(tv, dataOf(buffers), KindK12, 1, anchor) })
}

func TestMultiViewBroadcast(t *testing.T) {
	inner := &loopID{"inner"}
	outer := &loopID{"outer"}
	buffers := newBuffers(4, 8)
	tvA := FromData(buffers[0].Param(), Data{})
	tvB := FromData(buffers[0].Param(), Data{})
	a := NewMultiView(tvA, dataOf(buffers[:2]), KindK0N, 2, inner)
	b := NewMultiView(tvB, dataOf(buffers[2:]), KindK0N, 2, inner)
	root := NewNestedMultiView([]*MultiView{a, b}, KindK0N, 2, outer)
	require.True(t, a.Parent() == root)
	require.Equal(t, 2, root.Depth())
	require.Equal(t, 1, a.Depth())

	a.SetOffset(8)
	refA := FromData(MakeParam(dtypes.Float32, 1), Data{})
	refRoot := FromData(MakeParam(dtypes.Float32, 1), Data{})
	a.AddReference(12, refA)
	root.AddReference(4, refRoot)

	a.SetCurrent(a.Select(1))
	a.Broadcast()
	require.True(t, tvA.Data().Same(buffers[1].Data()))
	base := buffers[1].Data().Offset(-8)
	assert.True(t, refA.Data().Same(base.Offset(12)))
	assert.True(t, refRoot.Data().Same(base.Offset(4)))

	// Switching the selection moves every reference along.
	a.SetCurrent(a.Select(2))
	a.Broadcast()
	base = buffers[0].Data().Offset(-8)
	assert.True(t, refA.Data().Same(base.Offset(12)))
	assert.True(t, refRoot.Data().Same(base.Offset(4)))

	root.Free()
	assert.Nil(t, root.References())
	assert.True(t, tvA.Data().Same(buffers[0].Data()), "freeing doesn't touch the tensors")
}

func TestMultiViewSinglePointer(t *testing.T) {
	buffers := newBuffers(2, 4)
	tv := FromData(buffers[0].Param(), buffers[0].Data())
	mv := NewMultiView(tv, dataOf(buffers[1:]), KindK0N, 1, nil)
	require.True(t, mv.IsSinglePointer())
	ref := FromData(tv.Param(), Data{})
	mv.AddReference(0, ref)
	mv.SetCurrent(mv.Select(3))
	mv.Broadcast()
	assert.True(t, tv.Data().Same(buffers[0].Data()), "single pointer multi-views keep the terminal data")
	assert.True(t, ref.Data().Same(buffers[0].Data()))
}
