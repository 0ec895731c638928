// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package tensors

import (
	"fmt"
	"strings"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/nnc/pkg/core/dtypes"
)

// MaxDimAlloc is the capacity of the dimension array of a tensor.
const MaxDimAlloc = 8

// MaxDim is the number of spatial dimensions assumed by AlignedDims and the convolution hints.
const MaxDim = 2

// MemoryKind is where the data of a tensor lives.
type MemoryKind int

const (
	CPUMemory MemoryKind = iota + 1
	GPUMemory
)

func (m MemoryKind) String() string {
	switch m {
	case CPUMemory:
		return "CPU"
	case GPUMemory:
		return "GPU"
	}
	return fmt.Sprintf("MemoryKind(%d)", int(m))
}

// Format is the order in which dimensions are laid out.
type Format int

const (
	FormatNHWC Format = iota + 1
	FormatNCHW
	FormatCHWN
)

func (f Format) String() string {
	switch f {
	case FormatNHWC:
		return "NHWC"
	case FormatNCHW:
		return "NCHW"
	case FormatCHWN:
		return "CHWN"
	}
	return fmt.Sprintf("Format(%d)", int(f))
}

// Dims is the fixed capacity dimension array. Dimensions are stored left aligned
// and the first 0 terminates it.
type Dims [MaxDimAlloc]int

// Param describes the memory, layout and shape of a tensor.
type Param struct {
	MemoryKind MemoryKind
	DeviceID   int
	Format     Format
	DType      dtypes.DType
	Dims       Dims
}

// MakeDims converts a list of dimensions into Dims. It panics if there are too many
// or if any of them is not positive.
func MakeDims(dims ...int) (d Dims) {
	if len(dims) > MaxDimAlloc {
		exceptions.Panicf("tensors: %d dimensions given, at most %d supported", len(dims), MaxDimAlloc)
	}
	for i, dim := range dims {
		if dim <= 0 {
			exceptions.Panicf("tensors: invalid dimension %d at axis %d of %v", dim, i, dims)
		}
		d[i] = dim
	}
	return
}

// MakeParam returns a CPU, NHWC parameter for the given dtype and dimensions.
func MakeParam(dtype dtypes.DType, dims ...int) Param {
	return Param{
		MemoryKind: CPUMemory,
		Format:     FormatNHWC,
		DType:      dtype,
		Dims:       MakeDims(dims...),
	}
}

// Rank returns the number of dimensions set.
func (d Dims) Rank() int {
	for i, dim := range d {
		if dim == 0 {
			return i
		}
	}
	return MaxDimAlloc
}

// Slice returns the set dimensions as a slice.
func (d Dims) Slice() []int {
	return append([]int(nil), d[:d.Rank()]...)
}

// Count returns the number of elements. A rank-0 Dims counts as a scalar.
func (d Dims) Count() int {
	count := 1
	for _, dim := range d[:d.Rank()] {
		count *= dim
	}
	return count
}

// Aligned returns n dimensions aligned to the right: leading slots not set are 1.
// Dimensions beyond n on the left are folded into the first slot.
func (d Dims) Aligned(n int) []int {
	aligned := make([]int, n)
	for i := range aligned {
		aligned[i] = 1
	}
	rank := d.Rank()
	for i := 0; i < rank; i++ {
		j := n - rank + i
		if j < 0 {
			aligned[0] *= d[i]
			continue
		}
		aligned[j] *= d[i]
	}
	return aligned
}

// Rank of the tensor described.
func (p Param) Rank() int { return p.Dims.Rank() }

// Count returns the number of elements.
func (p Param) Count() int { return p.Dims.Count() }

// Memory returns the number of bytes needed to store the tensor.
func (p Param) Memory() int { return p.Count() * p.DType.Size() }

// IsAuto returns whether the shape is yet to be inferred.
func (p Param) IsAuto() bool { return p.Dims[0] == 0 }

// AlignedDims returns the dimensions aligned to the right on MaxDim+2 slots.
func (p Param) AlignedDims() []int { return p.Dims.Aligned(MaxDim + 2) }

// String implements fmt.Stringer.
func (p Param) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "(%s)[", p.DType)
	for i, dim := range p.Dims[:p.Rank()] {
		if i > 0 {
			sb.WriteString(" ")
		}
		fmt.Fprintf(&sb, "%d", dim)
	}
	sb.WriteString("]")
	if p.MemoryKind == GPUMemory {
		fmt.Fprintf(&sb, "@GPU:%d", p.DeviceID)
	}
	return sb.String()
}
