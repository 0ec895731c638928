// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package ops describes the operations executed by the graphs: their types, static parameters
// and hints, and for every type the registered validity predicate of a backward bitmask and the
// shape inference function.
//
// Registrations are done once, in init functions, and are read-only afterwards.
package ops

import (
	"fmt"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/nnc/pkg/core/tensors"
)

// OpType enumerates the operations. Every forward operation is immediately followed by its backward.
type OpType int

const (
	OpTypeInvalid OpType = iota
	OpTypeNoOp

	// OpTypeGraphForward runs a sub-graph, typically the body of a while loop.
	OpTypeGraphForward
	OpTypeGraphBackward

	OpTypeEWSumForward
	OpTypeEWSumBackward
	OpTypeEWProdForward
	OpTypeEWProdBackward
	OpTypeEWDivForward
	OpTypeEWDivBackward
	OpTypeEWExpForward
	OpTypeEWExpBackward
	OpTypeEWLogForward
	OpTypeEWLogBackward
	OpTypeConvolutionForward
	OpTypeConvolutionBackward

	// OpTypeLast should always be kept the last, it is used as a counter/marker for OpType.
	OpTypeLast
)

var opTypeNames = [OpTypeLast]string{
	OpTypeInvalid:             "Invalid",
	OpTypeNoOp:                "NoOp",
	OpTypeGraphForward:        "GraphForward",
	OpTypeGraphBackward:       "GraphBackward",
	OpTypeEWSumForward:        "EWSumForward",
	OpTypeEWSumBackward:       "EWSumBackward",
	OpTypeEWProdForward:       "EWProdForward",
	OpTypeEWProdBackward:      "EWProdBackward",
	OpTypeEWDivForward:        "EWDivForward",
	OpTypeEWDivBackward:       "EWDivBackward",
	OpTypeEWExpForward:        "EWExpForward",
	OpTypeEWExpBackward:       "EWExpBackward",
	OpTypeEWLogForward:        "EWLogForward",
	OpTypeEWLogBackward:       "EWLogBackward",
	OpTypeConvolutionForward:  "ConvolutionForward",
	OpTypeConvolutionBackward: "ConvolutionBackward",
}

// String implements fmt.Stringer.
func (t OpType) String() string {
	if t < 0 || t >= OpTypeLast {
		return fmt.Sprintf("OpType(%d)", int(t))
	}
	return opTypeNames[t]
}

// IsForward returns whether t is the forward half of an operation.
func (t OpType) IsForward() bool {
	return t >= OpTypeGraphForward && t < OpTypeLast && (t-OpTypeGraphForward)%2 == 0
}

// IsBackward returns whether t is the backward half of an operation.
func (t OpType) IsBackward() bool {
	return t > OpTypeGraphForward && t < OpTypeLast && (t-OpTypeGraphForward)%2 == 1
}

// IsGraph returns whether t runs a sub-graph.
func (t OpType) IsGraph() bool {
	return t == OpTypeGraphForward || t == OpTypeGraphBackward
}

// Backward returns the backward operation of a forward one. NoOp is its own backward.
func (t OpType) Backward() OpType {
	if t == OpTypeNoOp {
		return OpTypeNoOp
	}
	if !t.IsForward() {
		exceptions.Panicf("ops: %s is not a forward operation", t)
	}
	return t + 1
}

// Params are the static parameters of an operation.
type Params struct {
	// Size is the window size of the operation, e.g. the kernel of a convolution.
	Size tensors.Dims

	// Count is the number of output channels of a convolution.
	Count int
}

// Op is an operation type plus its static parameters.
type Op struct {
	Type   OpType
	Params Params
}

// NoOp is the operation that does nothing: used to join or sequence other operations.
var NoOp = Op{Type: OpTypeNoOp}

// New returns an operation without parameters.
func New(opType OpType) Op {
	return Op{Type: opType}
}

// IsNoOp returns whether op does nothing.
func (op Op) IsNoOp() bool { return op.Type == OpTypeNoOp }

// Backward returns the backward of op, with the same parameters.
func (op Op) Backward() Op {
	return Op{Type: op.Type.Backward(), Params: op.Params}
}

// String implements fmt.Stringer.
func (op Op) String() string { return op.Type.String() }

// Border is the padding before and after each spatial dimension.
type Border struct {
	Begin, End [tensors.MaxDim]int
}

// Hint is the execution hint of an operation: stride and padding of the spatial dimensions.
type Hint struct {
	Stride [tensors.MaxDim]int
	Border Border
}

// NoHint is the empty hint.
var NoHint = Hint{}
