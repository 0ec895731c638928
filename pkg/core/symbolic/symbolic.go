// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package symbolic implements the symbolic graph: tensor symbols stand for tensors not yet
// allocated, exec symbols for the operations over them.
//
// A symbolic graph can be differentiated in place (see Graph.Backward): the gradient symbols
// and operations are added to the same graph, and can be looked up from the forward symbols
// afterwards.
//
// Symbols are never removed: they are indices into tables that only grow. A Graph is not safe
// for concurrent use.
package symbolic

import (
	"fmt"
	"slices"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/nnc/internal/topo"
	"github.com/gomlx/nnc/pkg/core/ops"
	"github.com/gomlx/nnc/pkg/core/tensors"
)

// TensorFlags are allocation properties of a tensor symbol.
type TensorFlags int

const (
	// TensorFlagInitZeros means the tensor must be zeroed when allocated: it is only partially
	// written through its aliases before being read.
	TensorFlagInitZeros TensorFlags = 1 << iota
)

// TensorSymbol is a handle to a tensor symbol of a Graph.
type TensorSymbol struct {
	graph *Graph
	idx   int
}

// NoTensorSymbol marks an absent input or output.
var NoTensorSymbol = TensorSymbol{idx: -1}

// Index of the symbol in its graph.
func (t TensorSymbol) Index() int { return t.idx }

// Graph the symbol belongs to.
func (t TensorSymbol) Graph() *Graph { return t.graph }

// IsValid returns whether t refers to a tensor symbol.
func (t TensorSymbol) IsValid() bool {
	return t.graph != nil && t.idx >= 0 && t.idx < len(t.graph.tensors)
}

// String implements fmt.Stringer.
func (t TensorSymbol) String() string {
	if !t.IsValid() {
		return "TensorSymbol(none)"
	}
	if name := t.graph.tensors[t.idx].name; name != "" {
		return fmt.Sprintf("%%%d(%s)", t.idx, name)
	}
	return fmt.Sprintf("%%%d", t.idx)
}

// ExecSymbol is a handle to an exec symbol of a Graph.
type ExecSymbol struct {
	graph *Graph
	idx   int
}

// NoExecSymbol is an invalid handle.
var NoExecSymbol = ExecSymbol{idx: -1}

// Index of the symbol in its graph.
func (e ExecSymbol) Index() int { return e.idx }

// Graph the symbol belongs to.
func (e ExecSymbol) Graph() *Graph { return e.graph }

// IsValid returns whether e refers to an exec symbol.
func (e ExecSymbol) IsValid() bool { return e.graph != nil && e.idx >= 0 && e.idx < len(e.graph.execs) }

// String implements fmt.Stringer.
func (e ExecSymbol) String() string {
	if !e.IsValid() {
		return "ExecSymbol(none)"
	}
	info := e.graph.execs[e.idx]
	if info.name != "" {
		return fmt.Sprintf("#%d(%s:%s)", e.idx, info.name, info.op)
	}
	return fmt.Sprintf("#%d(%s)", e.idx, info.op)
}

type tensorInfo struct {
	param tensors.Param
	// aliasOf is the index of the tensor symbol this one is a view of, or -1.
	aliasOf  int
	ofs, inc tensors.Dims
	flags    TensorFlags
	name     string
}

func (t *tensorInfo) isAlias() bool { return t.aliasOf >= 0 }

type execInfo struct {
	op              ops.Op
	hint            ops.Hint
	inputs, outputs []int
	outgoings       []int
	name            string
}

// Graph is a symbolic graph. Create it with New.
type Graph struct {
	name    string
	tensors []*tensorInfo
	execs   []*execInfo

	// Set by Backward: forwardSize is the number of tensor symbols before differentiation.
	forwardSize     int
	backwardTensors []int
	backwardExecs   []int
}

// New creates an empty symbolic graph.
func New(name string) *Graph {
	return &Graph{name: name}
}

// Name of the graph.
func (g *Graph) Name() string { return g.name }

// String implements fmt.Stringer.
func (g *Graph) String() string {
	return fmt.Sprintf("SymbolicGraph(%q, %d tensors, %d execs)", g.name, len(g.tensors), len(g.execs))
}

// NumTensorSymbols returns the number of tensor symbols.
func (g *Graph) NumTensorSymbols() int { return len(g.tensors) }

// NumExecSymbols returns the number of exec symbols.
func (g *Graph) NumExecSymbols() int { return len(g.execs) }

// TensorSymbolAt returns the handle of the tensor symbol with the given index.
func (g *Graph) TensorSymbolAt(idx int) TensorSymbol {
	t := TensorSymbol{graph: g, idx: idx}
	g.tensorInfo(t, "symbolic.TensorSymbolAt")
	return t
}

// ExecSymbolAt returns the handle of the exec symbol with the given index.
func (g *Graph) ExecSymbolAt(idx int) ExecSymbol {
	e := ExecSymbol{graph: g, idx: idx}
	g.execInfo(e, "symbolic.ExecSymbolAt")
	return e
}

func (g *Graph) tensorInfo(t TensorSymbol, what string) *tensorInfo {
	if t.graph != g || !t.IsValid() {
		exceptions.Panicf("%s: %s doesn't belong to %s", what, t, g)
	}
	return g.tensors[t.idx]
}

func (g *Graph) execInfo(e ExecSymbol, what string) *execInfo {
	if e.graph != g || !e.IsValid() {
		exceptions.Panicf("%s: %s doesn't belong to %s", what, e, g)
	}
	return g.execs[e.idx]
}

// NewTensorSymbol creates a tensor symbol. Dims left as zero are inferred (see Infer).
func (g *Graph) NewTensorSymbol(param tensors.Param, name string) TensorSymbol {
	g.tensors = append(g.tensors, &tensorInfo{param: param, aliasOf: -1, name: name})
	return TensorSymbol{graph: g, idx: len(g.tensors) - 1}
}

// NewAliasSymbol creates a symbol for a view of of: it starts at the coordinates ofs of a
// tensor with dimensions inc, and has its own dimensions in param.
//
// inc defaults to the dimensions of of. Aliases of aliases are not supported.
func (g *Graph) NewAliasSymbol(of TensorSymbol, ofs, inc []int, param tensors.Param, name string) TensorSymbol {
	base := g.tensorInfo(of, "symbolic.NewAliasSymbol")
	if base.isAlias() {
		exceptions.Panicf("symbolic.NewAliasSymbol: %s is itself an alias", of)
	}
	info := &tensorInfo{param: param, aliasOf: of.idx, name: name}
	if len(ofs) > tensors.MaxDimAlloc || len(inc) > tensors.MaxDimAlloc {
		exceptions.Panicf("symbolic.NewAliasSymbol: at most %d offsets and increments", tensors.MaxDimAlloc)
	}
	copy(info.ofs[:], ofs)
	if len(inc) > 0 {
		copy(info.inc[:], inc)
	} else {
		info.inc = base.param.Dims
	}
	g.tensors = append(g.tensors, info)
	return TensorSymbol{graph: g, idx: len(g.tensors) - 1}
}

func (g *Graph) newAlias(of int, ofs, inc tensors.Dims, param tensors.Param, name string) TensorSymbol {
	g.tensors = append(g.tensors, &tensorInfo{param: param, aliasOf: of, ofs: ofs, inc: inc, name: name})
	return TensorSymbol{graph: g, idx: len(g.tensors) - 1}
}

// Param returns the tensor parameters of t.
func (g *Graph) Param(t TensorSymbol) tensors.Param { return g.tensorInfo(t, "symbolic.Param").param }

// TensorName returns the name given to t.
func (g *Graph) TensorName(t TensorSymbol) string { return g.tensorInfo(t, "symbolic.TensorName").name }

// AliasOf returns the symbol t is a view of, or NoTensorSymbol.
func (g *Graph) AliasOf(t TensorSymbol) TensorSymbol {
	info := g.tensorInfo(t, "symbolic.AliasOf")
	if !info.isAlias() {
		return NoTensorSymbol
	}
	return TensorSymbol{graph: g, idx: info.aliasOf}
}

// AliasOffsets returns the offsets and increments of the alias t.
func (g *Graph) AliasOffsets(t TensorSymbol) (ofs, inc tensors.Dims) {
	info := g.tensorInfo(t, "symbolic.AliasOffsets")
	return info.ofs, info.inc
}

// SetFlags replaces the flags of t.
func (g *Graph) SetFlags(t TensorSymbol, flags TensorFlags) {
	g.tensorInfo(t, "symbolic.SetFlags").flags = flags
}

// Flags returns the flags of t.
func (g *Graph) Flags(t TensorSymbol) TensorFlags { return g.tensorInfo(t, "symbolic.Flags").flags }

func (g *Graph) symbolIndices(ts []TensorSymbol, what string) []int {
	indices := make([]int, len(ts))
	for i, t := range ts {
		if t.idx < 0 {
			indices[i] = -1
			continue
		}
		g.tensorInfo(t, what)
		indices[i] = t.idx
	}
	return indices
}

// NewExecSymbol adds an operation over the given tensor symbols. Absent inputs or outputs are
// given as NoTensorSymbol.
func (g *Graph) NewExecSymbol(op ops.Op, inputs, outputs []TensorSymbol, name string) ExecSymbol {
	g.execs = append(g.execs, &execInfo{
		op:      op,
		inputs:  g.symbolIndices(inputs, "symbolic.NewExecSymbol"),
		outputs: g.symbolIndices(outputs, "symbolic.NewExecSymbol"),
		name:    name,
	})
	return ExecSymbol{graph: g, idx: len(g.execs) - 1}
}

// SetHint sets the execution hint of e.
func (g *Graph) SetHint(e ExecSymbol, hint ops.Hint) { g.execInfo(e, "symbolic.SetHint").hint = hint }

// Hint returns the execution hint of e.
func (g *Graph) Hint(e ExecSymbol) ops.Hint { return g.execInfo(e, "symbolic.Hint").hint }

// Op returns the operation of e.
func (g *Graph) Op(e ExecSymbol) ops.Op { return g.execInfo(e, "symbolic.Op").op }

// ExecName returns the name given to e.
func (g *Graph) ExecName(e ExecSymbol) string { return g.execInfo(e, "symbolic.ExecName").name }

func (g *Graph) tensorSymbols(indices []int) []TensorSymbol {
	symbols := make([]TensorSymbol, len(indices))
	for i, idx := range indices {
		if idx < 0 {
			symbols[i] = NoTensorSymbol
		} else {
			symbols[i] = TensorSymbol{graph: g, idx: idx}
		}
	}
	return symbols
}

// Inputs returns the input symbols of e.
func (g *Graph) Inputs(e ExecSymbol) []TensorSymbol {
	return g.tensorSymbols(g.execInfo(e, "symbolic.Inputs").inputs)
}

// Outputs returns the output symbols of e.
func (g *Graph) Outputs(e ExecSymbol) []TensorSymbol {
	return g.tensorSymbols(g.execInfo(e, "symbolic.Outputs").outputs)
}

// Concat adds the edge from -> to.
func (g *Graph) Concat(from, to ExecSymbol) {
	info := g.execInfo(from, "symbolic.Concat")
	g.execInfo(to, "symbolic.Concat")
	g.concat(info, to.idx)
}

func (g *Graph) concat(info *execInfo, to int) {
	if !slices.Contains(info.outgoings, to) {
		info.outgoings = append(info.outgoings, to)
	}
}

// Outgoings returns the exec symbols that run after e.
func (g *Graph) Outgoings(e ExecSymbol) []ExecSymbol {
	info := g.execInfo(e, "symbolic.Outgoings")
	out := make([]ExecSymbol, len(info.outgoings))
	for i, idx := range info.outgoings {
		out[i] = ExecSymbol{graph: g, idx: idx}
	}
	return out
}

func (g *Graph) outgoings(idx int) []int { return g.execs[idx].outgoings }

func (g *Graph) execIndices(execs []ExecSymbol, what string) []int {
	indices := make([]int, len(execs))
	for i, e := range execs {
		g.execInfo(e, what)
		indices[i] = e.idx
	}
	return indices
}

// Visit calls fn for the exec symbols from sources to destinations in topological order.
func (g *Graph) Visit(sources, destinations []ExecSymbol, fn func(e ExecSymbol, level int, term bool)) {
	src := g.execIndices(sources, "symbolic.Visit")
	dst := g.execIndices(destinations, "symbolic.Visit")
	topo.Visit(len(g.execs), g.outgoings, src, dst, func(step topo.Step) {
		fn(ExecSymbol{graph: g, idx: step.Index}, step.Level, step.Term)
	})
}

// Infer fills the dimensions of the output symbols left as zero, in topological order from
// sources to destinations, using the shape inference of each operation.
func (g *Graph) Infer(sources, destinations []ExecSymbol) {
	g.Visit(sources, destinations, func(e ExecSymbol, _ int, _ bool) {
		info := g.execs[e.idx]
		auto := false
		for _, idx := range info.outputs {
			if idx >= 0 && g.tensors[idx].param.IsAuto() && !g.tensors[idx].isAlias() {
				auto = true
				break
			}
		}
		if !auto {
			return
		}
		inputs := make([]tensors.Param, len(info.inputs))
		for i, idx := range info.inputs {
			if idx >= 0 {
				inputs[i] = g.tensors[idx].param
			}
		}
		outputs := make([]tensors.Param, len(info.outputs))
		for i, idx := range info.outputs {
			if idx >= 0 {
				outputs[i] = g.tensors[idx].param
			}
		}
		ops.InferShapes(info.op, inputs, info.hint, outputs)
		for i, idx := range info.outputs {
			if idx >= 0 && g.tensors[idx].param.IsAuto() && !g.tensors[idx].isAlias() {
				g.tensors[idx].param = outputs[i]
			}
		}
	})
}
