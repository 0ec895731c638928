// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package symbolic

import (
	"github.com/gomlx/exceptions"
	"github.com/gomlx/nnc/internal/topo"
	"github.com/gomlx/nnc/pkg/core/ops"
	"github.com/gomlx/nnc/pkg/support/sets"
	"k8s.io/klog/v2"
)

// Flow bits of a forward exec: it is reached backwards from some f symbol, and forward from some
// wrt symbol. Only execs with both bits are differentiated.
const (
	flowF   = 0x1
	flowWRT = 0x2
	flowAll = flowF | flowWRT
)

// Use bits of a forward tensor symbol while minimizing the backward bitmasks.
const (
	useWRT = 0x1
	useF   = 0x2
)

// backwardInfo is what is known about the backward of one forward exec.
type backwardInfo struct {
	flow int
	// outgoings are the edges of the reversed graph.
	outgoings []int
	// inputBitmask has one bit per backward input: gradients of the forward outputs, then the
	// forward inputs, then the forward outputs. outputBitmask has one bit per gradient of a
	// forward input, and is nil if no gradient is needed.
	inputBitmask, outputBitmask []uint64
}

// backward holds the state of one differentiation. Forward tensor symbols index versions, the
// gradient symbols to create are in symbols.
type backward struct {
	g          *Graph
	numExecs   int
	numTensors int

	forwardOrder, backwardOrder topo.Order
	infos                       []backwardInfo

	execs    []autogradExec
	versions []tensorVersion
	symbols  []autogradSymbol
	sums     []*sumExec
}

// Backward differentiates the f symbols with respect to the wrt symbols, over the execs from
// sources to destinations. The gradient execs and symbols are added to g.
//
// Only execs reached from a wrt symbol that also reach an f symbol are differentiated. The
// gradient of a symbol written by more than one exec is summed before it is used.
//
// Afterwards BackwardTensorSymbol returns the gradient symbol of each f and wrt symbol, and
// BackwardExecSymbol the exec that computes a gradient symbol.
//
// It panics if f or wrt symbols are aliases, or if an exec is not a forward operation.
func (g *Graph) Backward(sources, destinations []ExecSymbol, f, wrt []TensorSymbol) {
	if len(g.execs) == 0 || len(g.tensors) == 0 {
		exceptions.Panicf("symbolic.Backward: %s is empty", g)
	}
	for _, t := range f {
		if g.tensorInfo(t, "symbolic.Backward").isAlias() {
			exceptions.Panicf("symbolic.Backward: f symbol %s is an alias", t)
		}
	}
	for _, t := range wrt {
		if g.tensorInfo(t, "symbolic.Backward").isAlias() {
			exceptions.Panicf("symbolic.Backward: wrt symbol %s is an alias", t)
		}
	}
	g.Infer(sources, destinations)
	b := &backward{g: g, numExecs: len(g.execs), numTensors: len(g.tensors)}
	b.prepare(g.execIndices(sources, "symbolic.Backward"), g.execIndices(destinations, "symbolic.Backward"),
		g.symbolIndices(f, "symbolic.Backward"), g.symbolIndices(wrt, "symbolic.Backward"))
	b.reversePass()
	b.sumWRT(g.symbolIndices(wrt, "symbolic.Backward"))
	b.generate(g.symbolIndices(f, "symbolic.Backward"), g.symbolIndices(wrt, "symbolic.Backward"))
	if klog.V(2).Enabled() {
		differentiated := 0
		for _, info := range b.infos {
			if info.flow == flowAll {
				differentiated++
			}
		}
		klog.Infof("%s: differentiated %d of %d execs, %d sums, %d new tensor symbols",
			g.name, differentiated, b.numExecs, len(b.sums), len(b.symbols))
	}
}

// base returns the symbol idx is an alias of, or idx itself.
func (b *backward) base(idx int) int {
	for b.g.tensors[idx].isAlias() {
		idx = b.g.tensors[idx].aliasOf
	}
	return idx
}

// prepare builds the reversed graph, marks the flows and minimizes the bitmasks.
func (b *backward) prepare(sources, destinations, f, wrt []int) {
	g := b.g
	b.infos = make([]backwardInfo, b.numExecs)
	b.forwardOrder = topo.NewOrder(b.numExecs, g.outgoings, sources, destinations)
	for _, idx := range b.forwardOrder.Indices() {
		op := g.execs[idx].op
		if !op.Type.IsForward() && !op.IsNoOp() {
			exceptions.Panicf("symbolic.Backward: %s is not a forward operation", ExecSymbol{g, idx})
		}
		for _, d := range g.execs[idx].outgoings {
			b.infos[d].outgoings = append(b.infos[d].outgoings, idx)
		}
	}
	b.backwardOrder = topo.NewOrder(b.numExecs, func(idx int) []int { return b.infos[idx].outgoings },
		destinations, sources)

	fSet, wrtSet := sets.MakeWith(f...), sets.MakeWith(wrt...)
	for _, idx := range b.backwardOrder.Indices() {
		info := &b.infos[idx]
		found := info.flow&flowF != 0
		for _, d := range g.execs[idx].outputs {
			if found {
				break
			}
			found = d >= 0 && fSet.Has(b.base(d))
		}
		if found {
			info.flow |= flowF
			for _, d := range info.outgoings {
				b.infos[d].flow |= flowF
			}
		}
	}
	for _, idx := range b.forwardOrder.Indices() {
		info := &b.infos[idx]
		found := info.flow&flowWRT != 0
		for _, d := range g.execs[idx].inputs {
			if found {
				break
			}
			found = d >= 0 && wrtSet.Has(b.base(d))
		}
		if found {
			info.flow |= flowWRT
			for _, d := range g.execs[idx].outgoings {
				b.infos[d].flow |= flowWRT
			}
		}
	}

	for idx, exec := range g.execs[:b.numExecs] {
		b.infos[idx].inputBitmask = make([]uint64, ops.BitmaskWords(len(exec.outputs)*2+len(exec.inputs)))
		b.infos[idx].outputBitmask = make([]uint64, ops.BitmaskWords(len(exec.inputs)))
	}
	used := make([]uint8, b.numTensors)
	for _, d := range f {
		used[b.base(d)] |= useF
	}
	for _, d := range wrt {
		used[b.base(d)] |= useWRT
	}
	usedAs := func(d int, use uint8) bool { return d >= 0 && used[b.base(d)]&use != 0 }
	for _, idx := range b.forwardOrder.Indices() {
		info := &b.infos[idx]
		if info.flow != flowAll {
			continue
		}
		exec := g.execs[idx]
		op := exec.op.Backward()
		numInputBits := len(exec.outputs)*2 + len(exec.inputs)
		for i := range numInputBits {
			ops.SetBit(info.inputBitmask, i)
		}
		for i := range exec.inputs {
			ops.SetBit(info.outputBitmask, i)
		}
		maybeNoOp := true
		for _, d := range exec.inputs {
			if usedAs(d, useWRT) {
				maybeNoOp = false
				break
			}
		}
		if maybeNoOp {
			info.outputBitmask = nil
			continue
		}
		if !ops.IsBitmaskValid(op, info.inputBitmask, info.outputBitmask) {
			continue
		}
		for changed := true; changed; {
			changed = false
			for i, d := range exec.inputs {
				if !usedAs(d, useWRT) && ops.HasBit(info.outputBitmask, i) {
					ops.ClearBit(info.outputBitmask, i)
					if ops.IsBitmaskValid(op, info.inputBitmask, info.outputBitmask) {
						changed = true
					} else {
						ops.SetBit(info.outputBitmask, i)
					}
				}
			}
			for i := range numInputBits {
				if (i >= len(exec.outputs) || !usedAs(exec.outputs[i], useF)) && ops.HasBit(info.inputBitmask, i) {
					ops.ClearBit(info.inputBitmask, i)
					if ops.IsBitmaskValid(op, info.inputBitmask, info.outputBitmask) {
						changed = true
					} else {
						ops.SetBit(info.inputBitmask, i)
					}
				}
			}
		}
		for i, d := range exec.outputs {
			if d >= 0 && ops.HasBit(info.inputBitmask, i) {
				used[b.base(d)] |= useWRT
			}
		}
		if klog.V(2).Enabled() {
			klog.Infof("backward of %s: inputs %b, outputs %b", ExecSymbol{g, idx}, info.inputBitmask, info.outputBitmask)
		}
	}
}

// BackwardTensorSymbol returns the gradient symbol of a forward f or wrt symbol of the last
// Backward. It panics if forward has no gradient.
func (g *Graph) BackwardTensorSymbol(forward TensorSymbol) TensorSymbol {
	g.tensorInfo(forward, "symbolic.BackwardTensorSymbol")
	if forward.idx >= g.forwardSize || g.backwardTensors[forward.idx] < 0 {
		exceptions.Panicf("symbolic.BackwardTensorSymbol: %s was not differentiated", forward)
	}
	return TensorSymbol{graph: g, idx: g.backwardTensors[forward.idx]}
}

// BackwardExecSymbol returns the exec that writes the gradient symbol returned by
// BackwardTensorSymbol for a wrt symbol. It panics if there is none.
func (g *Graph) BackwardExecSymbol(gradient TensorSymbol) ExecSymbol {
	g.tensorInfo(gradient, "symbolic.BackwardExecSymbol")
	dd := gradient.idx - g.forwardSize
	if dd < 0 || dd >= len(g.backwardExecs) || g.backwardExecs[dd] < 0 {
		exceptions.Panicf("symbolic.BackwardExecSymbol: %s is not the gradient of a wrt symbol", gradient)
	}
	return ExecSymbol{graph: g, idx: g.backwardExecs[dd]}
}
