// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package tensors defines the concrete tensors the graph executes on: dense tensors,
// views into a sub-region of a dense tensor, and multi-view tensors used by loop
// bodies to switch the underlying buffer on every iteration.
package tensors

import (
	"fmt"
	"unsafe"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/exceptions"
	"github.com/gomlx/nnc/pkg/core/dtypes"
)

// Type tags the concrete kind of a Tensor.
type Type int

const (
	TypeDense Type = iota
	TypeView
	TypeMultiView
)

func (t Type) String() string {
	switch t {
	case TypeDense:
		return "Dense"
	case TypeView:
		return "View"
	case TypeMultiView:
		return "MultiView"
	}
	return fmt.Sprintf("Type(%d)", int(t))
}

// Tensor is implemented by *Dense (dense tensors and views) and *MultiView.
type Tensor interface {
	Type() Type
	isTensor()
}

// Dense is a tensor, or a view into a sub-region of another tensor if it was created with NewView.
type Dense struct {
	param Param
	data  Data
	owned bool

	// inc is the increment (stride) of each axis, only set for views.
	inc Dims
}

var _ Tensor = (*Dense)(nil)

// New allocates a zeroed tensor on the CPU, which owns its buffer.
func New(param Param) *Dense {
	if param.MemoryKind == GPUMemory {
		exceptions.Panicf("tensors.New: GPU memory can only be allocated by a backend, got %s", param)
	}
	if !param.DType.IsValid() {
		exceptions.Panicf("tensors.New: invalid dtype in %s", param)
	}
	return &Dense{
		param: param,
		data:  MakeData(AllocBytes(param.Memory())),
		owned: true,
	}
}

// FromData creates a tensor over data it doesn't own.
func FromData(param Param, data Data) *Dense {
	return &Dense{param: param, data: data}
}

// FromFlat allocates a tensor with the given dimensions and copies flat into it.
func FromFlat[T dtypes.Supported](flat []T, dims ...int) *Dense {
	param := MakeParam(dtypes.FromGoType[T](), dims...)
	if param.Count() != len(flat) {
		exceptions.Panicf("tensors.FromFlat: %d values given for dimensions %v", len(flat), dims)
	}
	t := New(param)
	copy(Flat[T](t), flat)
	return t
}

// FromBytes creates a tensor that takes ownership of buf. It panics if buf is too small.
func FromBytes(param Param, buf []byte) *Dense {
	if len(buf) < param.Memory() {
		exceptions.Panicf("tensors.FromBytes: %d bytes given for %s", len(buf), param)
	}
	return &Dense{param: param, data: MakeData(buf), owned: true}
}

// NewView creates a view of dims starting at ofs into backing. The view borrows the backing buffer.
// It panics if the region is not contained in backing.
func NewView(backing *Dense, ofs []int, dims ...int) *Dense {
	rank := backing.param.Rank()
	if len(ofs) != rank || len(dims) != rank {
		exceptions.Panicf("tensors.NewView: view rank (ofs=%v, dims=%v) doesn't match backing %s", ofs, dims, backing.param)
	}
	inc := backing.Inc()
	param := backing.param
	param.Dims = MakeDims(dims...)
	offset := 0
	stride := 1
	for axis := rank - 1; axis >= 0; axis-- {
		if ofs[axis] < 0 || ofs[axis]+dims[axis] > backing.param.Dims[axis] {
			exceptions.Panicf("tensors.NewView: axis %d region [%d, %d) out of backing dimension %d",
				axis, ofs[axis], ofs[axis]+dims[axis], backing.param.Dims[axis])
		}
		offset += ofs[axis] * stride
		stride *= inc[axis]
	}
	return &Dense{
		param: param,
		data:  backing.data.Offset(offset * param.DType.Size()),
		inc:   inc,
	}
}

// Type implements Tensor.
func (t *Dense) Type() Type {
	if t.IsView() {
		return TypeView
	}
	return TypeDense
}

func (t *Dense) isTensor() {}

// IsView returns whether t addresses a sub-region of another tensor.
func (t *Dense) IsView() bool { return t.inc[0] != 0 }

// Param returns the description of the tensor.
func (t *Dense) Param() Param { return t.param }

// Owned returns whether the tensor owns its buffer.
func (t *Dense) Owned() bool { return t.owned }

// Data returns the position of the first element.
func (t *Dense) Data() Data { return t.data }

// SetData points the tensor somewhere else. Used by MultiView.Broadcast.
func (t *Dense) SetData(data Data) { t.data = data }

// Inc returns the increment of each axis: the dimensions of the backing tensor for views,
// the tensor's own dimensions otherwise.
func (t *Dense) Inc() Dims {
	if t.IsView() {
		return t.inc
	}
	return t.param.Dims
}

// IsContiguous returns whether the elements are stored without gaps.
func (t *Dense) IsContiguous() bool {
	if !t.IsView() {
		return true
	}
	rank := t.param.Rank()
	for axis := 1; axis < rank; axis++ {
		if t.inc[axis] != t.param.Dims[axis] {
			return false
		}
	}
	return true
}

// Bytes returns the raw bytes of a contiguous tensor.
func (t *Dense) Bytes() []byte {
	if !t.IsContiguous() {
		exceptions.Panicf("tensors: Bytes() of non-contiguous view %s", t)
	}
	return t.data.Bytes(t.param.Memory())
}

// Flat returns the elements of a contiguous tensor as a slice sharing its buffer.
func Flat[T dtypes.Supported](t *Dense) []T {
	if want := dtypes.FromGoType[T](); t.param.DType != want {
		exceptions.Panicf("tensors.Flat: tensor is %s, requested %s", t.param.DType, want)
	}
	n := t.param.Count()
	if n == 0 {
		return nil
	}
	b := t.Bytes()
	return unsafe.Slice((*T)(unsafe.Pointer(unsafe.SliceData(b))), n)
}

// CopyFlat returns a copy of the elements of t, following the strides of views.
func CopyFlat[T dtypes.Supported](t *Dense) []T {
	if t.IsContiguous() {
		return append([]T(nil), Flat[T](t)...)
	}
	rank := t.param.Rank()
	dims := t.param.Dims
	strides := make([]int, rank)
	stride := 1
	for axis := rank - 1; axis >= 0; axis-- {
		strides[axis] = stride
		stride *= t.inc[axis]
	}
	size := t.param.DType.Size()
	out := make([]T, 0, t.param.Count())
	idx := make([]int, rank)
	for {
		offset := 0
		for axis, i := range idx {
			offset += i * strides[axis]
		}
		b := t.data.Offset(offset * size).Bytes(size)
		out = append(out, *(*T)(unsafe.Pointer(unsafe.SliceData(b))))
		axis := rank - 1
		for ; axis >= 0; axis-- {
			idx[axis]++
			if idx[axis] < dims[axis] {
				break
			}
			idx[axis] = 0
		}
		if axis < 0 {
			return out
		}
	}
}

// String implements fmt.Stringer.
func (t *Dense) String() string {
	return fmt.Sprintf("%s%s %s", t.Type(), t.param, humanize.Bytes(uint64(t.param.Memory())))
}
