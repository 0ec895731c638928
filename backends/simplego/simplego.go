// Package simplego implements a simple, and not very fast, but very portable backend for NNC.
//
// It only implements the element-wise operations over the float dtypes (Float16 is computed in float32).
package simplego

import (
	"strconv"
	"strings"
	"sync"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/nnc/backends"
	"github.com/gomlx/nnc/internal/workerspool"
	"github.com/gomlx/nnc/pkg/core/tensors"
	"github.com/pkg/errors"
)

// BackendName to be used in NNC_BACKEND to specify this backend.
const BackendName = "go"

// Registers New() as the default constructor for "go" backend.
func init() {
	backends.Register(BackendName, New)
}

// New constructs a new SimpleGo Backend.
//
// The configuration is a comma-separated list of options:
//
//   - "parallel=N": run element-wise kernels over up to N goroutines. 0 disables it, and -1 has
//     no limit. The default is the number of CPUs.
//
// It panics on an invalid configuration.
func New(config string) backends.Backend {
	b, err := newBackend(config)
	if err != nil {
		panic(err)
	}
	return b
}

func newBackend(config string) (*Backend, error) {
	parallelism := workerspool.DefaultParallelism()
	for _, option := range strings.Split(config, ",") {
		option = strings.TrimSpace(option)
		if option == "" {
			continue
		}
		key, value, _ := strings.Cut(option, "=")
		switch key {
		case "parallel":
			var err error
			parallelism, err = strconv.Atoi(value)
			if err != nil {
				return nil, errors.Wrapf(err, "simplego: invalid option %q", option)
			}
		default:
			return nil, errors.Errorf("simplego: unknown option %q in configuration %q", key, config)
		}
	}
	return &Backend{workers: workerspool.New(parallelism)}, nil
}

// Backend implements the backends.Backend interface.
type Backend struct {
	workers *workerspool.Pool

	// bufferPools are a map to pools of buffers that can be reused.
	// The underlying type is map[int]*sync.Pool, keyed by the size in bytes.
	bufferPools sync.Map
}

// Compile-time check that simplego.Backend implements backends.Backend.
var _ backends.Backend = &Backend{}

// Name returns the short name of the backend.
func (b *Backend) Name() string {
	return "SimpleGo (go)"
}

// String implement backends.Backend.
func (b *Backend) String() string { return BackendName }

// Description is a longer description of the Backend that can be used to pretty-print.
func (b *Backend) Description() string {
	return "Simple Go Portable Backend"
}

// getBufferPool for the given size in bytes.
func (b *Backend) getBufferPool(size int) *sync.Pool {
	poolInterface, ok := b.bufferPools.Load(size)
	if !ok {
		poolInterface, _ = b.bufferPools.LoadOrStore(size, &sync.Pool{
			New: func() interface{} {
				buf := tensors.AllocBytes(size)
				return &buf
			},
		})
	}
	return poolInterface.(*sync.Pool)
}

// NewTensor returns a zeroed CPU tensor, reusing buffers released with FreeTensor.
func (b *Backend) NewTensor(param tensors.Param) *tensors.Dense {
	if param.MemoryKind != tensors.CPUMemory {
		exceptions.Panicf("simplego: only CPU memory supported, got %s", param)
	}
	size := param.Memory()
	buf := b.getBufferPool(size).Get().(*[]byte)
	clear(*buf)
	return tensors.FromBytes(param, *buf)
}

// FreeTensor returns the buffer of a tensor created with NewTensor to the pool.
// After this any references to the tensor should be dropped.
func (b *Backend) FreeTensor(t *tensors.Dense) {
	if t == nil {
		return
	}
	if !t.Owned() || t.IsView() {
		exceptions.Panicf("simplego: FreeTensor(%s) of a tensor that doesn't own its buffer", t)
	}
	buf := t.Bytes()
	b.getBufferPool(len(buf)).Put(&buf)
}

// Finalize releases all the associated resources immediately, and makes the backend invalid.
func (b *Backend) Finalize() {
	b.bufferPools.Clear()
}
