package simplego

import (
	"math"
	"testing"

	"github.com/gomlx/nnc/backends"
	"github.com/gomlx/nnc/pkg/core/dtypes"
	"github.com/gomlx/nnc/pkg/core/ops"
	"github.com/gomlx/nnc/pkg/core/tensors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/x448/float16"
)

func TestRegistered(t *testing.T) {
	backend := backends.NewWithConfig(BackendName)
	require.NotNil(t, backend)
	assert.Equal(t, "SimpleGo (go)", backend.Name())
	assert.Contains(t, backends.List(), BackendName)
	require.Panics(t, func() { backends.NewWithConfig("unknown:config") })
}

func newTestBackend(t *testing.T, config string) *Backend {
	backend, err := newBackend(config)
	require.NoError(t, err)
	return backend
}

func TestConfig(t *testing.T) {
	backend := newTestBackend(t, "parallel=3")
	assert.Equal(t, 3, backend.workers.MaxParallelism())
	backend = newTestBackend(t, " parallel=0 ,")
	assert.False(t, backend.workers.IsEnabled())
	_, err := newBackend("parallel=many")
	require.Error(t, err)
	_, err = newBackend("fast")
	require.ErrorContains(t, err, "unknown option")
	require.Panics(t, func() { New("parallel=") })
}

func TestParallelElementWise(t *testing.T) {
	const length = 5*minParallelChunk + 3
	flat := make([]float32, length)
	for i := range flat {
		flat[i] = float32(i % 7)
	}
	a := tensors.FromFlat(flat, length)
	for _, config := range []string{"parallel=0", "parallel=4", "parallel=-1"} {
		backend := newTestBackend(t, config)
		c := tensors.New(a.Param())
		require.Equal(t, backends.StatusSuccess,
			backend.Exec(ops.New(ops.OpTypeEWSumForward), ops.NoHint, 0, []*tensors.Dense{a, a}, []*tensors.Dense{c}))
		got := tensors.Flat[float32](c)
		for i, v := range got {
			if v != 2*flat[i] {
				t.Fatalf("%s: element %d is %g, wanted %g", config, i, v, 2*flat[i])
			}
		}
	}
}

func TestTensorPool(t *testing.T) {
	backend := newTestBackend(t, "")
	param := tensors.MakeParam(dtypes.Float32, 3)
	a := backend.NewTensor(param)
	require.True(t, a.Owned())
	tensors.Flat[float32](a)[1] = 7
	backend.FreeTensor(a)
	b := backend.NewTensor(param)
	assert.Equal(t, []float32{0, 0, 0}, tensors.Flat[float32](b), "reused buffers are cleared")

	view := tensors.NewView(b, []int{1}, 2)
	require.Panics(t, func() { backend.FreeTensor(view) })
	require.Panics(t, func() { backend.NewTensor(tensors.Param{MemoryKind: tensors.GPUMemory, DType: dtypes.Float32}) })
}

func TestElementWiseForward(t *testing.T) {
	backend := newTestBackend(t, "")
	a := tensors.FromFlat([]float32{1, 2, 3}, 3)
	b := tensors.FromFlat([]float32{4, 5, 6}, 3)
	c := tensors.New(a.Param())
	status := backend.Exec(ops.New(ops.OpTypeEWSumForward), ops.NoHint, 0, []*tensors.Dense{a, b, a}, []*tensors.Dense{c})
	require.Equal(t, backends.StatusSuccess, status)
	assert.Equal(t, []float32{6, 9, 12}, tensors.Flat[float32](c))

	status = backend.Exec(ops.New(ops.OpTypeEWProdForward), ops.NoHint, 0, []*tensors.Dense{a, b}, []*tensors.Dense{c})
	require.Equal(t, backends.StatusSuccess, status)
	assert.Equal(t, []float32{4, 10, 18}, tensors.Flat[float32](c))

	status = backend.Exec(ops.New(ops.OpTypeEWDivForward), ops.NoHint, 0, []*tensors.Dense{nil, b}, []*tensors.Dense{c})
	require.Equal(t, backends.StatusSuccess, status)
	assert.InDeltaSlice(t, []float32{0.25, 0.2, 1.0 / 6}, tensors.Flat[float32](c), 1e-6)

	// In place.
	status = backend.Exec(ops.New(ops.OpTypeEWSumForward), ops.NoHint, 0, []*tensors.Dense{a, a}, []*tensors.Dense{a})
	require.Equal(t, backends.StatusSuccess, status)
	assert.Equal(t, []float32{2, 4, 6}, tensors.Flat[float32](a))
}

func TestElementWiseBackward(t *testing.T) {
	backend := newTestBackend(t, "")
	x := tensors.FromFlat([]float64{0.5, 1, 2}, 3)
	y := tensors.New(x.Param())
	require.Equal(t, backends.StatusSuccess,
		backend.Exec(ops.New(ops.OpTypeEWExpForward), ops.NoHint, 0, []*tensors.Dense{x}, []*tensors.Dense{y}))
	g := tensors.FromFlat([]float64{1, 2, 3}, 3)
	dx := tensors.New(x.Param())

	// exp backward doesn't need the forward input.
	require.Equal(t, backends.StatusSuccess,
		backend.Exec(ops.New(ops.OpTypeEWExpBackward), ops.NoHint, 0, []*tensors.Dense{g, nil, y}, []*tensors.Dense{dx}))
	want := []float64{math.Exp(0.5), 2 * math.E, 3 * math.Exp(2)}
	assert.InDeltaSlice(t, want, tensors.Flat[float64](dx), 1e-9)

	// log backward needs the forward input.
	require.Equal(t, backends.StatusSuccess,
		backend.Exec(ops.New(ops.OpTypeEWLogBackward), ops.NoHint, 0, []*tensors.Dense{g, x}, []*tensors.Dense{dx}))
	assert.InDeltaSlice(t, []float64{2, 2, 1.5}, tensors.Flat[float64](dx), 1e-9)
	require.Equal(t, backends.StatusInvalid,
		backend.Exec(ops.New(ops.OpTypeEWLogBackward), ops.NoHint, 0, []*tensors.Dense{g, nil, y}, []*tensors.Dense{dx}))

	// prod backward: g, a, b, c -> da, db.
	a := tensors.FromFlat([]float64{2, 3, 4}, 3)
	b := tensors.FromFlat([]float64{5, 6, 7}, 3)
	c := tensors.FromFlat([]float64{10, 18, 28}, 3)
	da, db := tensors.New(a.Param()), tensors.New(a.Param())
	require.Equal(t, backends.StatusSuccess,
		backend.Exec(ops.New(ops.OpTypeEWProdBackward), ops.NoHint, 0, []*tensors.Dense{g, a, b, c}, []*tensors.Dense{da, db}))
	assert.InDeltaSlice(t, []float64{5, 12, 21}, tensors.Flat[float64](da), 1e-9)
	assert.InDeltaSlice(t, []float64{2, 6, 12}, tensors.Flat[float64](db), 1e-9)

	// sum backward passes the gradient through.
	require.Equal(t, backends.StatusSuccess,
		backend.Exec(ops.New(ops.OpTypeEWSumBackward), ops.NoHint, 0, []*tensors.Dense{g}, []*tensors.Dense{da, db}))
	assert.Equal(t, []float64{1, 2, 3}, tensors.Flat[float64](db))
}

func TestElementWiseFloat16(t *testing.T) {
	backend := newTestBackend(t, "")
	a := tensors.FromFlat([]float16.Float16{float16.Fromfloat32(1.5), float16.Fromfloat32(-2)}, 2)
	c := backend.NewTensor(a.Param())
	require.Equal(t, backends.StatusSuccess,
		backend.Exec(ops.New(ops.OpTypeEWSumForward), ops.NoHint, 0, []*tensors.Dense{a, a}, []*tensors.Dense{c}))
	flat := tensors.Flat[float16.Float16](c)
	assert.Equal(t, float32(3), flat[0].Float32())
	assert.Equal(t, float32(-4), flat[1].Float32())
}

func TestExecFailures(t *testing.T) {
	backend := newTestBackend(t, "")
	a := tensors.FromFlat([]float32{1, 2, 3}, 3)
	b := tensors.FromFlat([]float32{1, 2}, 2)
	c := tensors.New(a.Param())
	assert.Equal(t, backends.StatusInvalid,
		backend.Exec(ops.New(ops.OpTypeEWSumForward), ops.NoHint, 0, []*tensors.Dense{a, b}, []*tensors.Dense{c}))
	assert.Equal(t, backends.StatusInvalid,
		backend.Exec(ops.New(ops.OpTypeEWSumForward), ops.NoHint, 0, []*tensors.Dense{a, nil, a}, []*tensors.Dense{c}))
	i := tensors.FromFlat([]int32{1, 2, 3}, 3)
	assert.Equal(t, backends.StatusNoKernel,
		backend.Exec(ops.New(ops.OpTypeEWSumForward), ops.NoHint, 0, []*tensors.Dense{i}, []*tensors.Dense{i}))
	assert.Equal(t, backends.StatusNoKernel,
		backend.Exec(ops.Convolution(1, 1, 1), ops.NoHint, 0, []*tensors.Dense{a, a}, []*tensors.Dense{c}))
	assert.Equal(t, backends.StatusSuccess, backend.Exec(ops.NoOp, ops.NoHint, 0, nil, nil))
}
