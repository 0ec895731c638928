// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package tensors

import (
	"fmt"

	"github.com/gomlx/exceptions"
)

// MultiViewKind is the number of leading candidates that are used only once, before the
// remaining ones start repeating.
type MultiViewKind int

const (
	// KindK0N has no prologue: every candidate repeats.
	KindK0N MultiViewKind = 0
	// KindK1N uses the first candidate on the first iteration only.
	KindK1N MultiViewKind = 1
	// KindK12 is reserved.
	KindK12 MultiViewKind = 2
)

func (k MultiViewKind) String() string {
	switch k {
	case KindK0N:
		return "K0N"
	case KindK1N:
		return "K1N"
	case KindK12:
		return "K12"
	}
	return fmt.Sprintf("MultiViewKind(%d)", int(k))
}

// Reference is a tensor pointing at a fixed byte offset from the start of whatever buffer a
// MultiView currently selects.
type Reference struct {
	Offset int
	Tensor *Dense
}

// MultiView is a tensor whose storage changes with the iteration of the loop that owns it
// (the anchor). It either has a terminal tensor and a list of candidate data positions, or it
// nests one MultiView per candidate, for loops within loops.
//
// The anchor is compared by identity only, usually it is the *graph.Graph of the loop body.
type MultiView struct {
	kind   MultiViewKind
	repeat int
	anchor any

	tv         *Dense
	candidates []Data
	views      []*MultiView

	parent *MultiView
	it     Data
	offset int
	refs   []Reference
}

var _ Tensor = (*MultiView)(nil)

func checkKindAndRepeat(kind MultiViewKind, repeat, numCandidates int) {
	if kind != KindK0N && kind != KindK1N {
		exceptions.Panicf("tensors: multi-view kind %s not supported", kind)
	}
	if repeat <= 0 {
		exceptions.Panicf("tensors: multi-view repeat must be > 0, got %d", repeat)
	}
	if numCandidates != int(kind)+repeat {
		exceptions.Panicf("tensors: multi-view %s with repeat %d needs %d candidates, got %d",
			kind, repeat, int(kind)+repeat, numCandidates)
	}
}

// NewMultiView creates a terminal multi-view: tv is pointed at one of candidates on every
// iteration of the loop identified by anchor.
func NewMultiView(tv *Dense, candidates []Data, kind MultiViewKind, repeat int, anchor any) *MultiView {
	checkKindAndRepeat(kind, repeat, len(candidates))
	if tv == nil {
		exceptions.Panicf("tensors.NewMultiView: terminal tensor is nil, use NewNestedMultiView")
	}
	return &MultiView{
		kind:       kind,
		repeat:     repeat,
		anchor:     anchor,
		tv:         tv,
		candidates: append([]Data(nil), candidates...),
		it:         tv.Data(),
	}
}

// NewNestedMultiView creates a multi-view that selects one of views on every iteration of the
// loop identified by anchor. Each view becomes a child of the new multi-view.
func NewNestedMultiView(views []*MultiView, kind MultiViewKind, repeat int, anchor any) *MultiView {
	checkKindAndRepeat(kind, repeat, len(views))
	mv := &MultiView{
		kind:   kind,
		repeat: repeat,
		anchor: anchor,
		views:  append([]*MultiView(nil), views...),
	}
	for i, view := range views {
		if view == nil {
			exceptions.Panicf("tensors.NewNestedMultiView: view #%d is nil", i)
		}
		view.parent = mv
	}
	return mv
}

// Type implements Tensor.
func (mv *MultiView) Type() Type { return TypeMultiView }

func (mv *MultiView) isTensor() {}

// Kind returns the number of prologue candidates.
func (mv *MultiView) Kind() MultiViewKind { return mv.kind }

// Repeat returns the length of the cycle.
func (mv *MultiView) Repeat() int { return mv.repeat }

// Anchor returns the identity of the loop that owns mv.
func (mv *MultiView) Anchor() any { return mv.anchor }

// Terminal returns the tensor updated on selection, or nil if mv nests other multi-views.
func (mv *MultiView) Terminal() *Dense { return mv.tv }

// Parent returns the multi-view mv is nested in, if any.
func (mv *MultiView) Parent() *MultiView { return mv.parent }

// Len returns the number of candidates.
func (mv *MultiView) Len() int { return int(mv.kind) + mv.repeat }

// IsSinglePointer returns whether mv has a single candidate that never changes. In that case
// Broadcast leaves the terminal tensor untouched.
func (mv *MultiView) IsSinglePointer() bool {
	return mv.kind == KindK0N && mv.repeat == 1
}

// Select returns the index of the candidate for the given iteration count: the first Kind()
// iterations use their own candidate, later ones cycle over the remaining Repeat() candidates.
func (mv *MultiView) Select(count int) int {
	off := int(mv.kind)
	if count >= off {
		return (count-off)%mv.repeat + off
	}
	return count
}

// Candidate returns the data position of the i-th candidate of a terminal multi-view.
func (mv *MultiView) Candidate(i int) Data { return mv.candidates[i] }

// View returns the i-th nested multi-view.
func (mv *MultiView) View(i int) *MultiView { return mv.views[i] }

// SetCurrent makes the i-th candidate the current selection. It doesn't update any tensor,
// see Broadcast.
func (mv *MultiView) SetCurrent(i int) {
	if mv.tv == nil {
		exceptions.Panicf("tensors: SetCurrent on a nested multi-view")
	}
	mv.it = mv.candidates[i]
}

// Current returns the current selection.
func (mv *MultiView) Current() Data { return mv.it }

// Offset returns the byte offset of the terminal tensor from the start of the logical buffer.
func (mv *MultiView) Offset() int { return mv.offset }

// SetOffset sets the byte offset of the terminal tensor from the start of the logical buffer.
func (mv *MultiView) SetOffset(offset int) { mv.offset = offset }

// AddReference registers tensor to point offset bytes from the start of the logical buffer
// every time mv (or any multi-view it is nested in) is broadcast.
func (mv *MultiView) AddReference(offset int, tensor *Dense) {
	if mv.refs == nil {
		mv.refs = make([]Reference, 0, 1)
	}
	mv.refs = append(mv.refs, Reference{Offset: offset, Tensor: tensor})
}

// References returns the registered references.
func (mv *MultiView) References() []Reference { return mv.refs }

// Broadcast points the terminal tensor at the current selection and updates every
// reference registered at mv and its ancestors.
func (mv *MultiView) Broadcast() {
	if mv.tv == nil {
		exceptions.Panicf("tensors: Broadcast on a nested multi-view")
	}
	if !mv.IsSinglePointer() {
		mv.tv.SetData(mv.it)
	}
	root := mv.tv.Data().Offset(-mv.offset)
	for c := mv; c != nil; c = c.parent {
		for _, ref := range c.refs {
			ref.Tensor.SetData(root.Offset(ref.Offset))
		}
	}
}

// Depth returns the number of multi-view levels from mv down to its terminal tensor.
func (mv *MultiView) Depth() int {
	depth := 0
	for c := mv; c != nil; {
		depth++
		if c.tv != nil || len(c.views) == 0 {
			break
		}
		c = c.views[0]
	}
	return depth
}

// Free drops the candidate table and the reference registry. The terminal tensor and the
// reference tensors are not owned by mv and are left untouched.
func (mv *MultiView) Free() {
	mv.candidates = nil
	mv.views = nil
	mv.refs = nil
}

// String implements fmt.Stringer.
func (mv *MultiView) String() string {
	if mv.tv != nil {
		return fmt.Sprintf("MultiView(%s, repeat=%d, tv=%s)", mv.kind, mv.repeat, mv.tv)
	}
	return fmt.Sprintf("MultiView(%s, repeat=%d, nested=%d)", mv.kind, mv.repeat, len(mv.views))
}
