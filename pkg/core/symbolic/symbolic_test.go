// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package symbolic

import (
	"testing"

	"github.com/gomlx/nnc/pkg/core/dtypes"
	"github.com/gomlx/nnc/pkg/core/ops"
	"github.com/gomlx/nnc/pkg/core/tensors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func f32(dims ...int) tensors.Param { return tensors.MakeParam(dtypes.Float32, dims...) }

func unary(g *Graph, opType ops.OpType, in, out TensorSymbol) ExecSymbol {
	return g.NewExecSymbol(ops.New(opType), []TensorSymbol{in}, []TensorSymbol{out}, opType.String())
}

func TestSymbols(t *testing.T) {
	g := New("symbols")
	x := g.NewTensorSymbol(f32(4, 6), "x")
	a := g.NewAliasSymbol(x, []int{2, 3}, nil, f32(2, 3), "a")
	assert.Equal(t, 2, g.NumTensorSymbols())
	assert.Equal(t, x, g.AliasOf(a))
	assert.Equal(t, NoTensorSymbol, g.AliasOf(x))
	ofs, inc := g.AliasOffsets(a)
	assert.Equal(t, tensors.MakeDims(2, 3), ofs)
	assert.Equal(t, tensors.MakeDims(4, 6), inc)
	require.Panics(t, func() { g.NewAliasSymbol(a, []int{0, 0}, nil, f32(1, 1), "") })

	g.SetFlags(x, TensorFlagInitZeros)
	assert.Equal(t, TensorFlagInitZeros, g.Flags(x))
	assert.Equal(t, "x", g.TensorName(x))
	assert.Equal(t, "%0(x)", x.String())

	other := New("other")
	y := other.NewTensorSymbol(f32(1), "")
	require.Panics(t, func() { g.Param(y) })
	assert.False(t, NoTensorSymbol.IsValid())
}

func TestInfer(t *testing.T) {
	g := New("infer")
	x := g.NewTensorSymbol(f32(3, 5), "x")
	y := g.NewTensorSymbol(f32(), "y")
	z := g.NewTensorSymbol(f32(), "z")
	e0 := unary(g, ops.OpTypeEWExpForward, x, y)
	e1 := unary(g, ops.OpTypeEWLogForward, y, z)
	g.Concat(e0, e1)
	g.Concat(e0, e1)
	assert.Equal(t, []ExecSymbol{e1}, g.Outgoings(e0))
	assert.True(t, g.Param(z).IsAuto())

	g.Infer([]ExecSymbol{e0}, []ExecSymbol{e1})
	assert.Equal(t, f32(3, 5), g.Param(y))
	assert.Equal(t, f32(3, 5), g.Param(z))

	var visited []int
	g.Visit([]ExecSymbol{e0}, []ExecSymbol{e1}, func(e ExecSymbol, _ int, _ bool) {
		visited = append(visited, e.Index())
	})
	assert.Equal(t, []int{0, 1}, visited)
}
