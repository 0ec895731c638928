// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package tensors

import (
	"unsafe"

	"github.com/gomlx/exceptions"
)

// Data is a position inside a byte buffer: what a raw data pointer is for a tensor.
// The zero value is the nil position.
//
// Offsets may temporarily fall outside the buffer (see MultiView.Broadcast), but
// Bytes panics unless the requested range is inside it.
type Data struct {
	buf []byte
	off int
}

// MakeData returns the position at the start of buf.
func MakeData(buf []byte) Data {
	return Data{buf: buf}
}

// IsNil returns whether d points to nothing.
func (d Data) IsNil() bool { return d.buf == nil }

// Offset returns the position delta bytes after d.
func (d Data) Offset(delta int) Data {
	return Data{buf: d.buf, off: d.off + delta}
}

// Off returns the byte offset into the underlying buffer.
func (d Data) Off() int { return d.off }

// Same returns whether d and other point to the same byte of the same buffer.
func (d Data) Same(other Data) bool {
	if d.buf == nil || other.buf == nil {
		return d.buf == nil && other.buf == nil
	}
	return unsafe.SliceData(d.buf) == unsafe.SliceData(other.buf) && d.off == other.off
}

// Bytes returns the n bytes starting at d.
func (d Data) Bytes(n int) []byte {
	if d.buf == nil {
		exceptions.Panicf("tensors: access to nil data")
	}
	if d.off < 0 || d.off+n > len(d.buf) {
		exceptions.Panicf("tensors: data range [%d, %d) out of buffer of %d bytes", d.off, d.off+n, len(d.buf))
	}
	return d.buf[d.off : d.off+n]
}

// AllocBytes returns a zeroed byte buffer aligned to 8 bytes, suitable to back any dtype.
func AllocBytes(n int) []byte {
	if n == 0 {
		return []byte{}
	}
	words := make([]uint64, (n+7)/8)
	return unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(words))), n)
}
