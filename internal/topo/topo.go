// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package topo implements the topological traversal shared by the concrete and the symbolic graphs.
//
// Nodes are indexed from 0 to numNodes-1 and edges are given by an outgoings function.
// A traversal starts from a set of sources and stops expanding once all destinations
// have been visited.
package topo

import (
	"github.com/gomlx/exceptions"
)

// Step is one visited node.
type Step struct {
	// Index of the node visited.
	Index int

	// Level is the round of the traversal: sources are visited at level 0,
	// nodes that became ready after them at level 1, etc.
	Level int

	// Term is set if the node is one of the destinations.
	Term bool
}

// Outgoings returns the indices of the nodes that depend on node.
type Outgoings func(node int) []int

type incoming struct {
	count       int
	destination bool
	reached     bool
}

// Visit calls visitor for every node reachable from sources, in topological order, until every
// destination has been visited.
//
// Nodes that become ready in the same round are visited in the order they entered the frontier.
// A destination whose incoming edges were all seen but that wasn't expanded, because the other
// destinations were already reached, is still visited at the end, at the level after the last round.
//
// It panics if a source or destination is out of range.
func Visit(numNodes int, outgoings Outgoings, sources, destinations []int, visitor func(step Step)) {
	for _, idx := range sources {
		if idx < 0 || idx >= numNodes {
			exceptions.Panicf("topo.Visit: source %d out of range [0, %d)", idx, numNodes)
		}
	}
	in := make([]incoming, numNodes)
	for _, idx := range destinations {
		if idx < 0 || idx >= numNodes {
			exceptions.Panicf("topo.Visit: destination %d out of range [0, %d)", idx, numNodes)
		}
		in[idx].destination = true
	}
	for node := 0; node < numNodes; node++ {
		for _, target := range outgoings(node) {
			in[target].count++
		}
	}

	frontier := append(make([]int, 0, numNodes), sources...)
	next := make([]int, 0, numNodes)
	reached := 0
	level := 0
	for ; len(frontier) > 0; level++ {
		next = next[:0]
		for _, idx := range frontier {
			visitor(Step{Index: idx, Level: level, Term: in[idx].destination})
			if in[idx].destination {
				reached++
				in[idx].reached = true
			}
			for _, target := range outgoings(idx) {
				in[target].count--
				if in[target].count == 0 && reached < len(destinations) {
					next = append(next, target)
				}
			}
		}
		frontier, next = next, frontier
	}

	for _, idx := range destinations {
		if in[idx].reached {
			continue
		}
		if in[idx].count != 0 {
			exceptions.Panicf("topo.Visit: destination %d still has %d unvisited predecessors", idx, in[idx].count)
		}
		in[idx].reached = true
		visitor(Step{Index: idx, Level: level, Term: true})
	}
}

// Order is a recorded traversal that can be replayed without recomputing it.
type Order []Step

// NewOrder records the traversal of Visit.
func NewOrder(numNodes int, outgoings Outgoings, sources, destinations []int) Order {
	order := make(Order, 0, numNodes)
	Visit(numNodes, outgoings, sources, destinations, func(step Step) {
		order = append(order, step)
	})
	return order
}

// ForEach calls fn for every step of the recorded traversal, in order.
func (o Order) ForEach(fn func(step Step)) {
	for _, step := range o {
		fn(step)
	}
}

// Indices returns the visited node indices, in order.
func (o Order) Indices() []int {
	indices := make([]int, len(o))
	for i, step := range o {
		indices[i] = step.Index
	}
	return indices
}
