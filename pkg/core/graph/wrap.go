// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package graph

import (
	"github.com/gomlx/nnc/pkg/core/tensors"
)

// slot is a tensor used by an exec. A pending slot holds a multi-view whose selection was
// updated by unwrap but not broadcast yet: that happens when the exec actually runs.
type slot struct {
	tensor  tensors.Tensor
	pending *tensors.MultiView
}

func (s slot) isPending() bool { return s.pending != nil }

// wrapStack holds the tensors of an exec, with one level per loop whose multi-views were
// resolved: levels[0] has the tensors as given, levels[ptr] is the current one.
type wrapStack struct {
	levels [][]slot
	ptr    int
	// depth is the deepest multi-view nesting found in levels[0], 0 if there are no multi-views.
	depth int
}

func (w *wrapStack) reset(ts []tensors.Tensor) {
	level := make([]slot, len(ts))
	w.depth = 0
	for i, t := range ts {
		level[i] = slot{tensor: t}
		if mv, ok := t.(*tensors.MultiView); ok {
			w.depth = max(w.depth, mv.Depth())
		}
	}
	w.levels = make([][]slot, 1, w.depth+1)
	w.levels[0] = level
	w.ptr = 0
}

// current returns the slots of the current level.
func (w *wrapStack) current() []slot {
	if len(w.levels) == 0 {
		return nil
	}
	return w.levels[w.ptr]
}

// tensors returns the tensors of the current level. Pending slots return their multi-view.
func (w *wrapStack) tensors() []tensors.Tensor {
	level := w.current()
	ts := make([]tensors.Tensor, len(level))
	for i, s := range level {
		if s.isPending() {
			ts[i] = s.pending
		} else {
			ts[i] = s.tensor
		}
	}
	return ts
}

// anchoredAt returns whether any slot holds a multi-view to be resolved by the loop of anchor.
func anchoredAt(level []slot, anchor any) bool {
	for _, s := range level {
		if s.isPending() {
			continue
		}
		if mv, ok := s.tensor.(*tensors.MultiView); ok && mv.Anchor() == anchor {
			return true
		}
	}
	return false
}

// resolve follows the multi-views of s anchored at anchor down to their selection for count.
// Multi-views of other loops are left as they are. Terminal multi-views are selected but
// returned pending.
func resolve(s slot, anchor any, count int) slot {
	if s.isPending() {
		return s
	}
	t := s.tensor
	for {
		mv, ok := t.(*tensors.MultiView)
		if !ok || mv.Anchor() != anchor {
			return slot{tensor: t}
		}
		idx := mv.Select(count)
		if mv.Terminal() != nil {
			if !mv.IsSinglePointer() {
				mv.SetCurrent(idx)
			}
			return slot{pending: mv}
		}
		t = mv.View(idx)
	}
}

// unwrap pushes a level with the multi-views anchored at anchor resolved for count.
// It does nothing if there is none.
func (w *wrapStack) unwrap(anchor any, count int) {
	if w.depth == 0 {
		return
	}
	level := w.levels[w.ptr]
	if !anchoredAt(level, anchor) {
		return
	}
	w.ptr++
	if len(w.levels) <= w.ptr {
		w.levels = append(w.levels, make([]slot, len(level)))
	}
	next := w.levels[w.ptr]
	for i, s := range level {
		next[i] = resolve(s, anchor, count)
	}
}

// rewrap pops the level pushed by the matching unwrap.
func (w *wrapStack) rewrap(anchor any) {
	if w.depth == 0 || w.ptr == 0 {
		return
	}
	if anchoredAt(w.levels[w.ptr-1], anchor) {
		w.ptr--
	}
}

// broadcastPending broadcasts the pending slots of the current level and replaces them with
// their terminal tensor.
func (w *wrapStack) broadcastPending() {
	level := w.current()
	for i, s := range level {
		if s.isPending() {
			s.pending.Broadcast()
			level[i] = slot{tensor: s.pending.Terminal()}
		}
	}
}

// unwrap resolves, in every exec with multi-views, those anchored at g for the iteration count.
func (g *Graph) unwrap(count int) {
	for _, e := range g.wraps {
		info := e.graph.execs[e.idx]
		info.io.unwrap(g, count)
		info.casts.unwrap(g, count)
	}
}

// rewrap undoes unwrap.
func (g *Graph) rewrap() {
	for _, e := range g.wraps {
		info := e.graph.execs[e.idx]
		info.io.rewrap(g)
		info.casts.rewrap(g)
	}
}
