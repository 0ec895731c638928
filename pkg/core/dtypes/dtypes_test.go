// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package dtypes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/x448/float16"
)

func TestSizes(t *testing.T) {
	assert.Equal(t, 4, Float32.Size())
	assert.Equal(t, 8, Float64.Size())
	assert.Equal(t, 2, Float16.Size())
	assert.Equal(t, 1, UInt8.Size())
	assert.Equal(t, 0, InvalidDType.Size())
	for dtype := Float32; dtype < lastDType; dtype++ {
		assert.Equal(t, int(dtype.GoType().Size()), dtype.Size(), "dtype %s", dtype)
	}
}

func TestFromGoType(t *testing.T) {
	assert.Equal(t, Float32, FromGoType[float32]())
	assert.Equal(t, Float16, FromGoType[float16.Float16]())
	assert.Equal(t, Int64, FromGoType[int64]())
	assert.True(t, Float16.IsFloat())
	assert.False(t, Int32.IsFloat())
	assert.Equal(t, "DType(99)", DType(99).String())
}
