// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package graph implements the concrete execution graph: nodes (here called "execs") run one
// operation over concrete tensors, and edges order their execution.
//
// An exec can also run a sub-graph (see Graph.While), which is how loops are expressed: the
// sub-graph is run repeatedly while its predicate holds, and the multi-view tensors
// (tensors.MultiView) anchored at it are resolved to a different buffer on every iteration.
//
// Graph execution is synchronous and single-threaded. A Graph is not safe for concurrent use.
package graph

import (
	"fmt"
	"slices"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/nnc/internal/topo"
	"github.com/gomlx/nnc/pkg/core/ops"
	"github.com/gomlx/nnc/pkg/core/tensors"
	"github.com/gomlx/nnc/pkg/support/sets"
)

// Graph is a concrete execution graph. Create it with New.
type Graph struct {
	name  string
	execs []*execInfo

	// subGraphs are owned by this graph, parent is a back reference only.
	subGraphs []*Graph
	parent    *Graph
	// execIdx is the index+1 of the exec in parent that runs this graph, 0 if none.
	execIdx int

	sources, destinations []Exec

	// While loop: set if this graph is the body of a loop.
	whileExpr   WhileExpr
	whileData   any
	breakpoints []Exec

	// wraps are the execs, in this graph or in any sub-graph, that have multi-view tensors.
	wraps   []Exec
	wrapSet sets.Set[Exec]

	orders map[string]topo.Order
}

// Exec is a handle to an exec of a graph. Its index is stable for the lifetime of the graph.
type Exec struct {
	graph *Graph
	idx   int
}

// NoExec is an invalid handle.
var NoExec = Exec{idx: -1}

// Graph returns the graph the exec belongs to.
func (e Exec) Graph() *Graph { return e.graph }

// Index returns the index of the exec within its graph.
func (e Exec) Index() int { return e.idx }

// IsValid returns whether e refers to an exec.
func (e Exec) IsValid() bool { return e.graph != nil && e.idx >= 0 && e.idx < len(e.graph.execs) }

// String implements fmt.Stringer.
func (e Exec) String() string {
	if !e.IsValid() {
		return "Exec(invalid)"
	}
	return fmt.Sprintf("%s#%d(%s)", e.graph.name, e.idx, e.graph.execs[e.idx].op)
}

type execInfo struct {
	op        ops.Op
	hint      ops.Hint
	numInputs int

	// io holds inputs followed by outputs, casts the cast tensors: both with one level
	// per multi-view resolution.
	io, casts wrapStack

	// graphRef is the index+1 of the sub-graph run by this exec, 0 if none.
	graphRef  int
	outgoings []int
}

// New creates an empty graph.
func New(name string) *Graph {
	return &Graph{name: name, wrapSet: sets.Make[Exec]()}
}

// Name of the graph.
func (g *Graph) Name() string { return g.name }

// String implements fmt.Stringer.
func (g *Graph) String() string {
	return fmt.Sprintf("Graph(%q, %d execs, %d sub-graphs)", g.name, len(g.execs), len(g.subGraphs))
}

// NumExecs returns the number of execs in the graph.
func (g *Graph) NumExecs() int { return len(g.execs) }

// Parent returns the graph running this one, if any.
func (g *Graph) Parent() *Graph { return g.parent }

// SubGraphs returns the graphs owned by g.
func (g *Graph) SubGraphs() []*Graph { return g.subGraphs }

// ParentExec returns the exec of the parent graph that runs g, or NoExec.
func (g *Graph) ParentExec() Exec {
	if g.parent == nil || g.execIdx == 0 {
		return NoExec
	}
	return Exec{graph: g.parent, idx: g.execIdx - 1}
}

func (g *Graph) checkExec(e Exec, what string) *execInfo {
	if e.graph != g || !e.IsValid() {
		exceptions.Panicf("%s: %s doesn't belong to %s", what, e, g)
	}
	return g.execs[e.idx]
}

// NewExec adds an exec running op over the given inputs and outputs. Tensors may be nil
// where the operation accepts them absent.
func (g *Graph) NewExec(op ops.Op, hint ops.Hint, inputs, outputs []tensors.Tensor) Exec {
	e := Exec{graph: g, idx: len(g.execs)}
	g.execs = append(g.execs, &execInfo{op: op, hint: hint})
	g.SetIO(e, inputs, outputs)
	g.topologyChanged()
	return e
}

// SetIO replaces the inputs and outputs of e.
func (g *Graph) SetIO(e Exec, inputs, outputs []tensors.Tensor) {
	info := g.checkExec(e, "graph.SetIO")
	info.numInputs = len(inputs)
	info.io.reset(append(slices.Clone(inputs), outputs...))
	if info.io.depth > 0 {
		g.addWraps([]Exec{e})
	}
}

// SetCasts sets tensors that take part in the exec without being its inputs or outputs.
func (g *Graph) SetCasts(e Exec, casts []tensors.Tensor) {
	info := g.checkExec(e, "graph.SetCasts")
	info.casts.reset(slices.Clone(casts))
	if info.casts.depth > 0 {
		g.addWraps([]Exec{e})
	}
}

// Op returns the operation of e.
func (g *Graph) Op(e Exec) ops.Op { return g.checkExec(e, "graph.Op").op }

// Inputs returns the tensors e currently reads: multi-views resolved by an ongoing loop
// iteration are returned resolved.
func (g *Graph) Inputs(e Exec) []tensors.Tensor {
	info := g.checkExec(e, "graph.Inputs")
	return info.io.tensors()[:info.numInputs]
}

// Outputs returns the tensors e currently writes, see Inputs.
func (g *Graph) Outputs(e Exec) []tensors.Tensor {
	info := g.checkExec(e, "graph.Outputs")
	return info.io.tensors()[info.numInputs:]
}

// addWraps registers execs with multi-view tensors in g and every graph g runs in.
func (g *Graph) addWraps(execs []Exec) {
	for c := g; c != nil; c = c.parent {
		for _, e := range execs {
			if c.wrapSet.Has(e) {
				continue
			}
			c.wrapSet.Insert(e)
			c.wraps = append(c.wraps, e)
		}
	}
}

// Concat adds the edge from -> to: to runs after from.
func (g *Graph) Concat(from, to Exec) {
	info := g.checkExec(from, "graph.Concat")
	g.checkExec(to, "graph.Concat")
	if slices.Contains(info.outgoings, to.idx) {
		return
	}
	info.outgoings = append(info.outgoings, to.idx)
	g.topologyChanged()
}

// Disconnect removes the edge from -> to, and returns whether there was one.
func (g *Graph) Disconnect(from, to Exec) bool {
	info := g.checkExec(from, "graph.Disconnect")
	g.checkExec(to, "graph.Disconnect")
	i := slices.Index(info.outgoings, to.idx)
	if i < 0 {
		return false
	}
	info.outgoings = slices.Delete(info.outgoings, i, i+1)
	g.topologyChanged()
	return true
}

// Outgoings returns the execs that run after e.
func (g *Graph) Outgoings(e Exec) []Exec {
	info := g.checkExec(e, "graph.Outgoings")
	out := make([]Exec, len(info.outgoings))
	for i, idx := range info.outgoings {
		out[i] = Exec{graph: g, idx: idx}
	}
	return out
}

// SetSources sets the default execs a run starts from.
func (g *Graph) SetSources(sources ...Exec) {
	for _, e := range sources {
		g.checkExec(e, "graph.SetSources")
	}
	g.sources = slices.Clone(sources)
}

// SetDestinations sets the default execs a run ends at.
func (g *Graph) SetDestinations(destinations ...Exec) {
	for _, e := range destinations {
		g.checkExec(e, "graph.SetDestinations")
	}
	g.destinations = slices.Clone(destinations)
}

// Sources returns the default execs a run starts from.
func (g *Graph) Sources() []Exec { return g.sources }

// Destinations returns the default execs a run ends at.
func (g *Graph) Destinations() []Exec { return g.destinations }

// Free releases the execs of g and, recursively, of its sub-graphs.
// Tensors are not owned by the graph and are left untouched.
func (g *Graph) Free() {
	for _, sub := range g.subGraphs {
		sub.Free()
	}
	g.subGraphs = nil
	g.execs = nil
	g.wraps = nil
	g.wrapSet = sets.Make[Exec]()
	g.sources, g.destinations, g.breakpoints = nil, nil, nil
	g.orders = nil
}
