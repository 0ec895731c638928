// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package graph

import (
	"fmt"
	"strings"

	"github.com/gomlx/nnc/internal/topo"
)

func (g *Graph) outgoings(idx int) []int { return g.execs[idx].outgoings }

func (g *Graph) indices(execs []Exec, what string) []int {
	indices := make([]int, len(execs))
	for i, e := range execs {
		g.checkExec(e, what)
		indices[i] = e.idx
	}
	return indices
}

func (g *Graph) topologyChanged() { g.orders = nil }

// Order returns the order execs are visited from sources to destinations.
// It is computed once and cached until the graph changes.
func (g *Graph) Order(sources, destinations []Exec) topo.Order {
	src := g.indices(sources, "graph.Order")
	dst := g.indices(destinations, "graph.Order")
	var key strings.Builder
	fmt.Fprintf(&key, "%v>%v", src, dst)
	if order, found := g.orders[key.String()]; found {
		return order
	}
	order := topo.NewOrder(len(g.execs), g.outgoings, src, dst)
	if g.orders == nil {
		g.orders = make(map[string]topo.Order)
	}
	g.orders[key.String()] = order
	return order
}

// Visit calls fn for every exec from sources to destinations, in topological order.
// level is the round of the traversal and term is set for destinations.
func (g *Graph) Visit(sources, destinations []Exec, fn func(e Exec, level int, term bool)) {
	g.Order(sources, destinations).ForEach(func(step topo.Step) {
		fn(Exec{graph: g, idx: step.Index}, step.Level, step.Term)
	})
}
