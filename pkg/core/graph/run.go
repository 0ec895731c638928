// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package graph

import (
	"fmt"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/nnc/backends"
	"github.com/gomlx/nnc/pkg/core/dtypes"
	"github.com/gomlx/nnc/pkg/core/ops"
	"github.com/gomlx/nnc/pkg/core/tensors"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// TensorTape records the tensors of every loop iteration, for gradients of loops.
// Run doesn't support it yet.
type TensorTape struct{}

// ExecError is returned by Run when an exec fails, or when Run is called with execs of another graph.
type ExecError struct {
	Status backends.Status
	Exec   Exec
	Reason string
}

// Error implements error.
func (e *ExecError) Error() string {
	if e.Exec.IsValid() {
		return fmt.Sprintf("exec %s failed with status %s: %s", e.Exec, e.Status, e.Reason)
	}
	return fmt.Sprintf("graph run failed with status %s: %s", e.Status, e.Reason)
}

// Run executes g from sources to destinations on backend. Loops (see SetWhileExpr) and
// sub-graphs run by execs are executed recursively.
//
// It returns an *ExecError (possibly wrapped) if an exec fails or if any of the sources or
// destinations is not an exec of g. The tape must be nil.
func (g *Graph) Run(backend backends.Backend, tape *TensorTape, flags backends.Flags, sources, destinations []Exec) error {
	return g.run(backend, nil, nil, tape, flags, sources, destinations)
}

// RunAll executes g from its declared sources to its declared destinations.
func (g *Graph) RunAll(backend backends.Backend) error {
	return g.Run(backend, nil, 0, g.sources, g.destinations)
}

func (g *Graph) run(backend backends.Backend, inputs, outputs []tensors.Tensor, tape *TensorTape, flags backends.Flags,
	sources, destinations []Exec) error {
	if tape != nil {
		exceptions.Panicf("graph.Run: tensor tape not supported")
	}
	for _, e := range sources {
		if e.graph != g || !e.IsValid() {
			return &ExecError{Status: backends.StatusInvalid, Reason: fmt.Sprintf("source %s is not part of %s", e, g)}
		}
	}
	for _, e := range destinations {
		if e.graph != g || !e.IsValid() {
			return &ExecError{Status: backends.StatusInvalid, Reason: fmt.Sprintf("destination %s is not part of %s", e, g)}
		}
	}
	if g.whileExpr == nil {
		return g.visitAndExec(backend, tape, flags, sources, destinations)
	}

	follows := g.follows()
	countTensor := tensors.New(tensors.MakeParam(dtypes.Int64, 1))
	special := []*tensors.Dense{countTensor}
	for count := 0; ; count++ {
		tensors.Flat[int64](countTensor)[0] = int64(count)
		klog.V(1).Infof("%s: loop iteration %d", g, count)
		g.unwrap(count)
		if err := g.visitAndExec(backend, tape, flags, sources, g.breakpoints); err != nil {
			g.rewrap()
			return errors.WithMessagef(err, "%s loop iteration %d", g.name, count)
		}
		if !g.whileExpr(special, inputs, outputs, g.whileData) {
			g.rewrap()
			return nil
		}
		if len(follows) > 0 {
			if err := g.visitAndExec(backend, tape, flags, follows, destinations); err != nil {
				g.rewrap()
				return errors.WithMessagef(err, "%s loop iteration %d", g.name, count)
			}
		}
		g.rewrap()
	}
}

// visitAndExec runs the execs from sources to destinations, stopping at the first failure.
func (g *Graph) visitAndExec(backend backends.Backend, tape *TensorTape, flags backends.Flags, sources, destinations []Exec) error {
	var err error
	g.Visit(sources, destinations, func(e Exec, level int, _ bool) {
		if err != nil {
			return
		}
		err = g.execute(backend, tape, flags, e, level)
	})
	return err
}

// execute runs a single exec, broadcasting its pending multi-views first.
func (g *Graph) execute(backend backends.Backend, tape *TensorTape, flags backends.Flags, e Exec, level int) error {
	info := g.execs[e.idx]
	// Outputs are broadcast before they are written, so references see the new buffer.
	info.io.broadcastPending()
	info.casts.broadcastPending()
	io := info.io.tensors()
	inputs, outputs := io[:info.numInputs], io[info.numInputs:]

	if info.op.Type.IsGraph() {
		sub := g.subGraphs[info.graphRef-1]
		klog.V(1).Infof("%s [%d, %d]: run %s", info.op, e.idx, level, sub)
		err := sub.run(backend, inputs, outputs, tape, flags, sub.sources, sub.destinations)
		if err != nil {
			return errors.WithMessagef(err, "in sub-graph run by %s", e)
		}
		return nil
	}

	denseInputs, err := denseTensors(e, inputs)
	if err != nil {
		return err
	}
	denseOutputs, err := denseTensors(e, outputs)
	if err != nil {
		return err
	}
	if klog.V(1).Enabled() {
		klog.Infof("%s [%d, %d]: [%d] -> [%d]", info.op, e.idx, level, len(inputs), len(outputs))
		for i, t := range denseInputs {
			klog.Infof("|-> %d. %s", i+1, describe(t))
		}
		for i, t := range denseOutputs {
			klog.Infof("|<- %d. %s", i+1, describe(t))
		}
	}
	if info.op.Type == ops.OpTypeNoOp {
		return nil
	}
	status := backend.Exec(info.op, info.hint, flags, denseInputs, denseOutputs)
	if !status.Ok() {
		return &ExecError{Status: status, Exec: e, Reason: fmt.Sprintf("backend %q", backend.Name())}
	}
	return nil
}

func denseTensors(e Exec, ts []tensors.Tensor) ([]*tensors.Dense, error) {
	dense := make([]*tensors.Dense, len(ts))
	for i, t := range ts {
		switch t := t.(type) {
		case nil:
		case *tensors.Dense:
			dense[i] = t
		default:
			return nil, &ExecError{Status: backends.StatusInvalid, Exec: e,
				Reason: fmt.Sprintf("tensor #%d is an unresolved %s", i, t)}
		}
	}
	return dense, nil
}

func describe(t *tensors.Dense) string {
	if t == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%s @%d", t, t.Data().Off())
}
