// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package ops

import (
	"github.com/gomlx/exceptions"
	"github.com/gomlx/nnc/pkg/core/tensors"
)

// Attributes are properties of an operation type.
type Attributes int

const (
	// AttrInplace means an output can share the buffer of an input.
	AttrInplace Attributes = 1 << iota

	// AttrPassthrough means the outputs are copies of the first input.
	AttrPassthrough

	// AttrNullIsOnes means an absent input is taken as a tensor of ones.
	AttrNullIsOnes
)

// BitmaskFn reports whether an operation can run with the given inputs and outputs present.
// Bit i of the bitmasks (bit i%64 of word i/64) is set if the i-th input (or output) is given.
type BitmaskFn func(inputs, outputs []uint64) bool

// TensorAutoFn infers the output parameters from the input parameters.
type TensorAutoFn func(params Params, inputs []tensors.Param, hint Hint, outputs []tensors.Param)

// Registration is what is known statically about an operation type.
type Registration struct {
	Attributes Attributes
	Bitmask    BitmaskFn
	TensorAuto TensorAutoFn
}

var registry [OpTypeLast]*Registration

// Register the properties of an operation type. It should be called from init functions only.
func Register(opType OpType, registration Registration) {
	if opType <= OpTypeInvalid || opType >= OpTypeLast {
		exceptions.Panicf("ops.Register: invalid op type %s", opType)
	}
	if registry[opType] != nil {
		exceptions.Panicf("ops.Register: op type %s registered twice", opType)
	}
	registry[opType] = &registration
}

// Lookup returns the registration of opType, or nil if it was never registered.
func Lookup(opType OpType) *Registration {
	if opType <= OpTypeInvalid || opType >= OpTypeLast {
		return nil
	}
	return registry[opType]
}

// HasAttributes returns whether opType is registered with all the attrs.
func HasAttributes(opType OpType, attrs Attributes) bool {
	r := Lookup(opType)
	return r != nil && r.Attributes&attrs == attrs
}

// IsBitmaskValid reports whether op can run with the given inputs and outputs present.
// Operation types without a registered predicate accept anything.
func IsBitmaskValid(op Op, inputs, outputs []uint64) bool {
	r := Lookup(op.Type)
	if r == nil || r.Bitmask == nil {
		return true
	}
	return r.Bitmask(inputs, outputs)
}

// InferShapes fills outputs from the inputs, using the registered inference function of the
// operation. Operations without one forward their inputs.
func InferShapes(op Op, inputs []tensors.Param, hint Hint, outputs []tensors.Param) {
	if len(outputs) == 0 || len(inputs) == 0 {
		return
	}
	r := Lookup(op.Type)
	if r == nil || r.TensorAuto == nil {
		ForwardFromInputs(op.Params, inputs, hint, outputs)
		return
	}
	r.TensorAuto(op.Params, inputs, hint, outputs)
}

func init() {
	Register(OpTypeNoOp, Registration{})
	Register(OpTypeGraphForward, Registration{})
	Register(OpTypeGraphBackward, Registration{})
}
