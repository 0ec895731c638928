// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package simplego

// Float16 element-wise support: values are converted to float32, computed and converted back.

import (
	"github.com/gomlx/nnc/pkg/core/tensors"
	"github.com/x448/float16"
)

func float16sToFloat32s(ts []*tensors.Dense) [][]float32 {
	out := make([][]float32, len(ts))
	for i, t := range ts {
		if t == nil {
			continue
		}
		flat := tensors.Flat[float16.Float16](t)
		out[i] = make([]float32, len(flat))
		for j, v := range flat {
			out[i][j] = v.Float32()
		}
	}
	return out
}

func storeFloat16s(values [][]float32, ts []*tensors.Dense) {
	for i, t := range ts {
		if t == nil {
			continue
		}
		flat := tensors.Flat[float16.Float16](t)
		for j, v := range values[i] {
			flat[j] = float16.Fromfloat32(v)
		}
	}
}
