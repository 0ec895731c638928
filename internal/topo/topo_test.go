// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package topo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func edges(adjacency map[int][]int) Outgoings {
	return func(node int) []int { return adjacency[node] }
}

func TestVisitDiamond(t *testing.T) {
	out := edges(map[int][]int{0: {1, 2}, 1: {3}, 2: {3}})
	order := NewOrder(4, out, []int{0}, []int{3})
	assert.Equal(t, Order{
		{Index: 0, Level: 0},
		{Index: 1, Level: 1},
		{Index: 2, Level: 1},
		{Index: 3, Level: 2, Term: true},
	}, order)
}

func TestVisitTopologicalSoundness(t *testing.T) {
	adjacency := map[int][]int{
		0: {2, 3},
		1: {3, 4},
		2: {5},
		3: {5, 6},
		4: {6},
		5: {7},
		6: {7},
	}
	out := edges(adjacency)
	position := make(map[int]int)
	Visit(8, out, []int{0, 1}, []int{7}, func(step Step) {
		_, seen := position[step.Index]
		require.False(t, seen, "node %d visited twice", step.Index)
		position[step.Index] = len(position)
	})
	require.Len(t, position, 8)
	for from, targets := range adjacency {
		for _, to := range targets {
			assert.Less(t, position[from], position[to], "edge %d->%d", from, to)
		}
	}
}

func TestVisitStopsAtDestinations(t *testing.T) {
	out := edges(map[int][]int{0: {1, 3}, 1: {2}, 3: {4}})
	order := NewOrder(5, out, []int{0}, []int{1})
	// 3 was already in the frontier when 1 was reached, but 2 and 4 are pruned.
	assert.Equal(t, []int{0, 1, 3}, order.Indices())
	assert.True(t, order[1].Term)
}

func TestVisitDestinationFixUp(t *testing.T) {
	out := edges(map[int][]int{0: {1}})
	order := NewOrder(3, out, []int{0}, []int{1, 2})
	assert.Equal(t, []int{0, 1, 2}, order.Indices())
	assert.Equal(t, Step{Index: 2, Level: 2, Term: true}, order[2])
	for i := 1; i < len(order); i++ {
		assert.LessOrEqual(t, order[i-1].Level, order[i].Level)
	}

	// A destination with a predecessor that can't be reached is an error.
	out = edges(map[int][]int{0: {2}, 1: {2}})
	require.Panics(t, func() { NewOrder(3, out, []int{0}, []int{2}) })
}

func TestVisitOutOfRange(t *testing.T) {
	out := edges(nil)
	require.Panics(t, func() { NewOrder(2, out, []int{2}, []int{0}) })
	require.Panics(t, func() { NewOrder(2, out, []int{0}, []int{-1}) })
}

func TestOrderReplay(t *testing.T) {
	out := edges(map[int][]int{0: {1}, 1: {2}})
	order := NewOrder(3, out, []int{0}, []int{2})
	var replayed []Step
	order.ForEach(func(step Step) { replayed = append(replayed, step) })
	assert.Equal(t, []Step(order), replayed)
}
