// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package symbolic

import (
	"github.com/gomlx/exceptions"
	"github.com/gomlx/nnc/pkg/core/ops"
)

func gradientName(name string) string {
	if name == "" {
		return ""
	}
	return "d" + name
}

// generate adds the gradient symbols, the backward and sum execs and their edges to the graph,
// and records the lookup tables.
func (b *backward) generate(f, wrt []int) {
	g := b.g
	for i := range b.symbols {
		sym := &b.symbols[i]
		forward := g.tensors[sym.d]
		if sym.aliasOf < 0 {
			if forward.isAlias() {
				exceptions.Panicf("symbolic.Backward: gradient of alias %%%d without its base", sym.d)
			}
			sym.symbol = g.NewTensorSymbol(forward.param, gradientName(forward.name))
			g.SetFlags(sym.symbol, sym.flags)
			continue
		}
		if !forward.isAlias() {
			exceptions.Panicf("symbolic.Backward: gradient alias of %%%d, which is not an alias", sym.d)
		}
		// Bases are always created before their aliases.
		base := b.symbols[sym.aliasOf].symbol
		sym.symbol = g.newAlias(base.idx, forward.ofs, forward.inc, forward.param, gradientName(forward.name))
	}

	symbolOf := func(ad int) TensorSymbol {
		if ad < 0 {
			return NoTensorSymbol
		}
		return b.symbols[ad].symbol
	}
	forwardSymbol := func(info *backwardInfo, bit, d int) TensorSymbol {
		if d < 0 || !ops.HasBit(info.inputBitmask, bit) {
			return NoTensorSymbol
		}
		return TensorSymbol{graph: g, idx: d}
	}
	for idx := range b.numExecs {
		info := &b.infos[idx]
		if info.flow != flowAll {
			continue
		}
		exec := &b.execs[idx]
		forward := g.execs[idx]
		if exec.op.IsNoOp() {
			exec.symbol = g.NewExecSymbol(ops.NoOp, nil, nil, "")
			continue
		}
		numGrads := len(forward.outputs)
		inputs := make([]TensorSymbol, 0, numGrads+len(forward.inputs)+len(forward.outputs))
		for j := range numGrads {
			if ops.HasBit(info.inputBitmask, j) {
				inputs = append(inputs, symbolOf(exec.inputs[j]))
			} else {
				inputs = append(inputs, NoTensorSymbol)
			}
		}
		for j, d := range forward.inputs {
			inputs = append(inputs, forwardSymbol(info, numGrads+j, d))
		}
		for j, d := range forward.outputs {
			inputs = append(inputs, forwardSymbol(info, numGrads+len(forward.inputs)+j, d))
		}
		outputs := make([]TensorSymbol, len(forward.inputs))
		for j := range outputs {
			if ops.HasBit(info.outputBitmask, j) {
				outputs[j] = symbolOf(exec.outputs[j])
			} else {
				outputs[j] = NoTensorSymbol
			}
		}
		exec.symbol = g.NewExecSymbol(exec.op, inputs, outputs, gradientName(forward.name))
		g.execs[exec.symbol.idx].hint = forward.hint
	}

	for _, sum := range b.sums {
		inputs := make([]TensorSymbol, len(sum.inputs))
		for j, ad := range sum.inputs {
			inputs[j] = symbolOf(ad)
		}
		sum.symbol = g.NewExecSymbol(ops.New(ops.OpTypeEWSumForward), inputs, []TensorSymbol{symbolOf(sum.output)}, "")
	}

	execSymbolOf := func(x int) ExecSymbol {
		if x < b.numExecs {
			return b.execs[x].symbol
		}
		return b.sums[x-b.numExecs].symbol
	}
	for idx := range b.numExecs {
		if b.infos[idx].flow != flowAll {
			continue
		}
		exec := &b.execs[idx]
		g.concat(g.execs[idx], exec.symbol.idx)
		for _, d := range exec.outgoings {
			g.concat(g.execs[exec.symbol.idx], execSymbolOf(d).idx)
		}
	}
	for _, sum := range b.sums {
		for _, d := range sum.outgoings {
			g.concat(g.execs[sum.symbol.idx], execSymbolOf(d).idx)
		}
	}

	g.forwardSize = b.numTensors
	g.backwardTensors = make([]int, b.numTensors)
	for i := range g.backwardTensors {
		g.backwardTensors[i] = -1
	}
	g.backwardExecs = make([]int, len(g.tensors)-b.numTensors)
	for i := range g.backwardExecs {
		g.backwardExecs[i] = -1
	}
	for _, d := range wrt {
		ver := &b.versions[d]
		if len(ver.refs) == 0 {
			// Not reached from any f symbol.
			continue
		}
		ref := ver.refs[ver.c]
		symbol := b.symbols[ref.d].symbol
		g.backwardTensors[d] = symbol.idx
		dd := symbol.idx - b.numTensors
		if len(ref.execRegistry) == 0 {
			g.backwardExecs[dd] = execSymbolOf(ref.x).idx
			continue
		}
		// Several execs write parts of the gradient: join them.
		noop := g.NewExecSymbol(ops.NoOp, nil, nil, "")
		g.concat(g.execs[execSymbolOf(ref.x).idx], noop.idx)
		for _, x := range ref.execRegistry {
			g.concat(g.execs[b.execs[x].symbol.idx], noop.idx)
		}
		g.backwardExecs[dd] = noop.idx
	}
	for _, d := range f {
		ver := &b.versions[d]
		if len(ver.refs) == 0 {
			continue
		}
		g.backwardTensors[d] = b.symbols[ver.refs[ver.c].d].symbol.idx
	}
}
