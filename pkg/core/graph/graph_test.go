// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package graph

import (
	"testing"

	"github.com/gomlx/nnc/pkg/core/dtypes"
	"github.com/gomlx/nnc/pkg/core/ops"
	"github.com/gomlx/nnc/pkg/core/tensors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newNoOps(g *Graph, n int) []Exec {
	execs := make([]Exec, n)
	for i := range execs {
		execs[i] = g.NewExec(ops.NoOp, ops.NoHint, nil, nil)
	}
	return execs
}

func visitOrder(g *Graph, sources, destinations []Exec) []int {
	var order []int
	g.Visit(sources, destinations, func(e Exec, _ int, _ bool) {
		order = append(order, e.Index())
	})
	return order
}

func TestGraphEdges(t *testing.T) {
	g := New("edges")
	e := newNoOps(g, 3)
	g.Concat(e[0], e[1])
	g.Concat(e[0], e[1])
	g.Concat(e[0], e[2])
	assert.Equal(t, []Exec{e[1], e[2]}, g.Outgoings(e[0]))
	assert.True(t, g.Disconnect(e[0], e[1]))
	assert.False(t, g.Disconnect(e[0], e[1]))
	assert.Equal(t, []Exec{e[2]}, g.Outgoings(e[0]))

	other := New("other")
	o := newNoOps(other, 1)
	require.Panics(t, func() { g.Concat(e[0], o[0]) })
	require.Panics(t, func() { g.SetSources(o[0]) })
	assert.False(t, NoExec.IsValid())
}

func TestGraphVisit(t *testing.T) {
	g := New("diamond")
	e := newNoOps(g, 4)
	g.Concat(e[0], e[1])
	g.Concat(e[0], e[2])
	g.Concat(e[1], e[3])
	g.Concat(e[2], e[3])

	var levels []int
	var terms []bool
	g.Visit(e[:1], e[3:], func(_ Exec, level int, term bool) {
		levels = append(levels, level)
		terms = append(terms, term)
	})
	assert.Equal(t, []int{0, 1, 1, 2}, levels)
	assert.Equal(t, []bool{false, false, false, true}, terms)
	assert.Equal(t, []int{0, 1, 2, 3}, visitOrder(g, e[:1], e[3:]))

	// Cached until the topology changes.
	require.Len(t, g.orders, 1)
	_ = g.Order(e[:1], e[3:])
	require.Len(t, g.orders, 1)
	e4 := g.NewExec(ops.NoOp, ops.NoHint, nil, nil)
	assert.Nil(t, g.orders)
	g.Concat(e[3], e4)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, visitOrder(g, e[:1], []Exec{e4}))
}

func TestGraphIO(t *testing.T) {
	g := New("io")
	x := tensors.New(tensors.MakeParam(dtypes.Float32, 2))
	y := tensors.New(tensors.MakeParam(dtypes.Float32, 2))
	e := g.NewExec(ops.New(ops.OpTypeEWExpForward), ops.NoHint, []tensors.Tensor{x}, []tensors.Tensor{y})
	assert.Equal(t, []tensors.Tensor{x}, g.Inputs(e))
	assert.Equal(t, []tensors.Tensor{y}, g.Outputs(e))
	assert.Equal(t, ops.OpTypeEWExpForward, g.Op(e).Type)
	assert.Empty(t, g.wraps)

	mv := tensors.NewMultiView(y, []tensors.Data{x.Data(), y.Data()}, tensors.KindK0N, 2, g)
	g.SetIO(e, []tensors.Tensor{x}, []tensors.Tensor{mv})
	assert.Equal(t, []Exec{e}, g.wraps)
	g.SetCasts(e, []tensors.Tensor{mv})
	assert.Equal(t, []Exec{e}, g.wraps)
}

func TestSubGraphs(t *testing.T) {
	g := New("main")
	body := New("body")
	require.Panics(t, func() { g.While(ops.OpTypeEWSumForward, body) })
	loop := g.While(ops.OpTypeGraphForward, body)
	assert.Equal(t, g, body.Parent())
	assert.Equal(t, loop, body.ParentExec())
	assert.Equal(t, []*Graph{body}, g.SubGraphs())
	require.Panics(t, func() { New("again").While(ops.OpTypeGraphForward, body) })

	// Execs with multi-views created after the loop are registered in every enclosing graph.
	x := tensors.New(tensors.MakeParam(dtypes.Float32, 1))
	mv := tensors.NewMultiView(x, []tensors.Data{x.Data(), x.Data()}, tensors.KindK0N, 2, body)
	e := body.NewExec(ops.New(ops.OpTypeEWExpForward), ops.NoHint, []tensors.Tensor{mv}, []tensors.Tensor{x})
	assert.Equal(t, []Exec{e}, body.wraps)
	assert.Equal(t, []Exec{e}, g.wraps)

	g.Free()
	assert.Zero(t, g.NumExecs())
	assert.Zero(t, body.NumExecs())
}
