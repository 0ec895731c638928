// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package dtypes lists the element types a tensor can hold.
package dtypes

import (
	"fmt"
	"reflect"

	"github.com/x448/float16"
)

// DType is the element type of a tensor.
type DType int

const (
	InvalidDType DType = iota
	Float32
	Float64
	Float16
	Int32
	Int64
	UInt8
	lastDType
)

var dtypeNames = [lastDType]string{
	InvalidDType: "InvalidDType",
	Float32:      "Float32",
	Float64:      "Float64",
	Float16:      "Float16",
	Int32:        "Int32",
	Int64:        "Int64",
	UInt8:        "UInt8",
}

// String implements fmt.Stringer.
func (dtype DType) String() string {
	if dtype < 0 || dtype >= lastDType {
		return fmt.Sprintf("DType(%d)", int(dtype))
	}
	return dtypeNames[dtype]
}

// IsValid returns whether dtype is one of the known element types.
func (dtype DType) IsValid() bool {
	return dtype > InvalidDType && dtype < lastDType
}

// IsFloat returns whether dtype is a floating point type.
func (dtype DType) IsFloat() bool {
	return dtype == Float32 || dtype == Float64 || dtype == Float16
}

// Size returns the number of bytes of one element. It returns 0 for invalid dtypes.
func (dtype DType) Size() int {
	switch dtype {
	case Float32, Int32:
		return 4
	case Float64, Int64:
		return 8
	case Float16:
		return 2
	case UInt8:
		return 1
	}
	return 0
}

// GoType returns the Go type used to store one element.
func (dtype DType) GoType() reflect.Type {
	switch dtype {
	case Float32:
		return reflect.TypeOf(float32(0))
	case Float64:
		return reflect.TypeOf(float64(0))
	case Float16:
		return reflect.TypeOf(float16.Float16(0))
	case Int32:
		return reflect.TypeOf(int32(0))
	case Int64:
		return reflect.TypeOf(int64(0))
	case UInt8:
		return reflect.TypeOf(uint8(0))
	}
	return nil
}

// Supported lists the element types accepted by FromGoType.
type Supported interface {
	float32 | float64 | float16.Float16 | int32 | int64 | uint8
}

// FromGoType returns the DType for the Go type T.
func FromGoType[T Supported]() DType {
	var v T
	switch any(v).(type) {
	case float32:
		return Float32
	case float64:
		return Float64
	case float16.Float16:
		return Float16
	case int32:
		return Int32
	case int64:
		return Int64
	case uint8:
		return UInt8
	}
	return InvalidDType
}
