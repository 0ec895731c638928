// Package backends defines the interface to the systems that execute single operations and
// allocate tensors for the graphs.
//
// The graph engine never runs an operation itself: it arranges the order of execution and
// which buffers are used, and calls Backend.Exec for every leaf node.
//
// Misuse, like asking for an unknown backend, panics with github.com/gomlx/exceptions.
package backends

import (
	"maps"
	"os"
	"slices"
	"strings"
	"sync"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/nnc/pkg/core/ops"
	"github.com/gomlx/nnc/pkg/core/tensors"
)

// Flags are passed along to Backend.Exec by the graph.
type Flags int

// Backend is the API that needs to be implemented by an NNC backend.
type Backend interface {
	// Name returns the short name of the backend. E.g.: "go" for the SimpleGo backend.
	Name() string

	// Description is a longer description of the Backend that can be used to pretty-print.
	Description() string

	// Exec runs op over the given tensors. Inputs and outputs may be nil if the operation
	// accepts them absent.
	Exec(op ops.Op, hint ops.Hint, flags Flags, inputs, outputs []*tensors.Dense) Status

	// NewTensor allocates a tensor owned by the backend.
	NewTensor(param tensors.Param) *tensors.Dense

	// FreeTensor releases a tensor allocated with NewTensor.
	FreeTensor(t *tensors.Dense)

	// Finalize releases all the associated resources immediately, and makes the backend invalid.
	Finalize()
}

// Constructor takes a config string (optionally empty) and returns a Backend.
type Constructor func(config string) Backend

var (
	registryMu      sync.Mutex
	constructors    = make(map[string]Constructor)
	firstRegistered string
)

// Register the constructor of the backend with the given name. Usually called from the init
// function of the backend package.
func Register(name string, constructor Constructor) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if len(constructors) == 0 {
		firstRegistered = name
	}
	constructors[name] = constructor
}

// List returns the sorted names of the registered backends.
func List() []string {
	registryMu.Lock()
	defer registryMu.Unlock()
	return slices.Sorted(maps.Keys(constructors))
}

// DefaultConfig is used by New when ConfigEnvVar is not set.
var DefaultConfig string

// ConfigEnvVar is the environment variable with the backend configuration New uses,
// in the format described in NewWithConfig.
const ConfigEnvVar = "NNC_BACKEND"

// New returns a Backend configured by $NNC_BACKEND, or else by DefaultConfig, or else the
// first registered backend with an empty configuration.
//
// It panics if no backend was registered.
func New() Backend {
	if config, found := os.LookupEnv(ConfigEnvVar); found {
		return NewWithConfig(config)
	}
	return NewWithConfig(DefaultConfig)
}

// NewWithConfig returns the Backend for config, formatted as "<backend_name>:<backend_config>".
//
// A config without ":" is the name of the backend if one is registered with that name,
// otherwise the configuration of the first registered backend.
func NewWithConfig(config string) Backend {
	registryMu.Lock()
	if len(constructors) == 0 {
		registryMu.Unlock()
		exceptions.Panicf(`backends: none registered, maybe import _ "github.com/gomlx/nnc/backends/simplego"?`)
	}
	name, backendConfig, hasName := strings.Cut(config, ":")
	if !hasName {
		if _, found := constructors[config]; found {
			backendConfig = ""
		} else {
			name, backendConfig = firstRegistered, config
		}
	}
	constructor, found := constructors[name]
	registryMu.Unlock()
	if !found {
		exceptions.Panicf("backends: unknown backend %q in configuration %q", name, config)
	}
	return constructor(backendConfig)
}
