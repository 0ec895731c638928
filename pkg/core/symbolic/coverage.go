// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package symbolic

import (
	"github.com/gomlx/exceptions"
	"github.com/gomlx/nnc/pkg/core/tensors"
)

const (
	// coverageScratch bounds the number of distinct region boundaries over all axes.
	coverageScratch = 1024
	// coverageMaxCells bounds the number of cells of the coarse grid.
	coverageMaxCells = 2048 * 8
)

// region is the part of a tensor a view writes.
type region struct {
	ofs, dims tensors.Dims
}

// fullyCovered returns whether the aliases of ref write every element of the tensor they view,
// in which case it doesn't need to be zeroed first.
func (b *backward) fullyCovered(ref *tensorRef) bool {
	base := b.forwardOf(ref.d)
	if base.isAlias() {
		exceptions.Panicf("symbolic.Backward: coverage of an alias")
	}
	regions := make([]region, len(ref.aliasRegistry))
	for i, ad := range ref.aliasRegistry {
		alias := b.forwardOf(ad)
		if alias.inc != base.param.Dims {
			return false
		}
		regions[i] = region{ofs: alias.ofs, dims: alias.param.Dims}
	}
	return coversAll(base.param.Dims, regions)
}

// coversAll reports whether regions cover the whole of a tensor with the given dims.
//
// The boundaries of the regions split every axis into segments, and the segments form a
// coarse grid: each cell is either fully inside a region or fully outside. The answer is false
// if there are too many boundaries or cells to check.
func coversAll(dims tensors.Dims, regions []region) bool {
	var scratch [coverageScratch]int
	var gridDims, gridSteps [tensors.MaxDimAlloc]int
	var boundaries [tensors.MaxDimAlloc][]int
	rank := dims.Rank()
	if rank == 0 {
		return len(regions) > 0
	}
	numCells := 1
	used := 0
	for axis := range rank {
		head, tail := false, false
		axisBounds := scratch[used:used]
		for _, r := range regions {
			start, end := r.ofs[axis], r.ofs[axis]+max(1, r.dims[axis])
			head = head || start == 0
			tail = tail || end == dims[axis]
			if start != 0 {
				axisBounds = insertSorted(axisBounds, start)
			}
			if used+len(axisBounds) >= coverageScratch {
				return false
			}
			if end < dims[axis] {
				axisBounds = insertSorted(axisBounds, end)
			}
			if used+len(axisBounds) >= coverageScratch {
				return false
			}
		}
		if !head || !tail {
			return false
		}
		boundaries[axis] = axisBounds
		gridDims[axis] = len(axisBounds)
		numCells *= len(axisBounds) + 1
		used += len(axisBounds)
	}
	if numCells > coverageMaxCells {
		return false
	}
	for axis := range rank {
		if axis == 0 {
			gridSteps[axis] = 1
		} else {
			gridSteps[axis] = gridSteps[axis-1] * (gridDims[axis-1] + 1)
		}
	}

	cells := make([]uint8, (numCells+7)>>3)
	g := grid{dims: dims, boundaries: boundaries[:rank], gridDims: gridDims[:rank], steps: gridSteps[:rank], cells: cells}
	for _, r := range regions {
		g.fill(r, 0, rank-1)
	}
	for _, c := range cells[:numCells>>3] {
		if c != 0xff {
			return false
		}
	}
	if rest := numCells & 7; rest > 0 {
		mask := uint8(1)<<rest - 1
		if cells[len(cells)-1] != mask {
			return false
		}
	}
	return true
}

// insertSorted inserts v into the sorted bounds if it is not there yet. bounds must have
// spare capacity.
func insertSorted(bounds []int, v int) []int {
	lo, hi := 0, len(bounds)-1
	for lo <= hi {
		mid := lo + (hi-lo)>>1
		switch {
		case v == bounds[mid]:
			return bounds
		case v < bounds[mid]:
			hi = mid - 1
		default:
			lo = mid + 1
		}
	}
	bounds = bounds[:len(bounds)+1]
	copy(bounds[lo+1:], bounds[lo:])
	bounds[lo] = v
	return bounds
}

// boundaryIndex returns the position of v in the sorted bounds.
func boundaryIndex(bounds []int, v int) int {
	if len(bounds) <= 1 {
		return 0
	}
	lo, hi := 0, len(bounds)-1
	for lo <= hi {
		mid := lo + (hi-lo)>>1
		switch {
		case v == bounds[mid]:
			return mid
		case v < bounds[mid]:
			hi = mid - 1
		default:
			lo = mid + 1
		}
	}
	exceptions.Panicf("symbolic: boundary %d not found in %v", v, bounds)
	return -1
}

// grid is a coarse bitmap of the cells of a tensor, see coversAll.
type grid struct {
	dims       tensors.Dims
	boundaries [][]int
	gridDims   []int
	steps      []int
	cells      []uint8
}

func (g *grid) set(i int) { g.cells[i>>3] |= 1 << (i & 7) }

// span returns the range of cells [start, end) of r along axis.
func (g *grid) span(r region, axis int) (start, end int) {
	if r.ofs[axis] != 0 {
		start = boundaryIndex(g.boundaries[axis], r.ofs[axis]) + 1
	}
	regionEnd := r.ofs[axis] + max(1, r.dims[axis])
	if r.ofs[axis]+r.dims[axis] == g.dims[axis] {
		end = g.gridDims[axis] + 1
	} else {
		end = boundaryIndex(g.boundaries[axis], regionEnd) + 1
	}
	if start < 0 || end <= start {
		exceptions.Panicf("symbolic: empty span [%d, %d) on axis %d", start, end, axis)
	}
	return
}

// fill sets the cells of r, from axis down to 0, starting at cell offset.
func (g *grid) fill(r region, offset, axis int) {
	switch axis {
	case 0:
		start, end := g.span(r, 0)
		for i := start; i < end; i++ {
			g.set(offset + i)
		}
		return
	case 1:
		start0, end0 := g.span(r, 0)
		start1, end1 := g.span(r, 1)
		step := g.steps[1]
		if step == end0-start0 {
			// Full rows: one contiguous run.
			for i := start1 * step; i < end1*step; i++ {
				g.set(offset + i)
			}
			return
		}
		offset += start1 * step
		for range end1 - start1 {
			for j := start0; j < end0; j++ {
				g.set(offset + j)
			}
			offset += step
		}
		return
	}
	start, end := g.span(r, axis)
	for i := start; i < end; i++ {
		g.fill(r, offset+i*g.steps[axis], axis-1)
	}
}
