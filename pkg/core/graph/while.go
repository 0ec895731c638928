// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package graph

import (
	"slices"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/nnc/pkg/core/ops"
	"github.com/gomlx/nnc/pkg/core/tensors"
)

// WhileExpr is the predicate of a loop, evaluated after the breakpoints of every iteration:
// the loop goes on while it returns true.
//
// special holds the iteration count (see LoopCount), inputs and outputs are the tensors of the
// exec running the loop and data is what was given to SetWhileExpr.
type WhileExpr func(special []*tensors.Dense, inputs, outputs []tensors.Tensor, data any) bool

// LoopCount returns the iteration count from the special tensors given to a WhileExpr.
func LoopCount(special []*tensors.Dense) int {
	return int(tensors.Flat[int64](special[0])[0])
}

// While adds an exec to g that runs body. g takes ownership of body.
//
// body is a loop if SetWhileExpr is called on it, otherwise it is run once.
// The inputs and outputs of the returned exec can be set with SetIO.
func (g *Graph) While(opType ops.OpType, body *Graph) Exec {
	if !opType.IsGraph() {
		exceptions.Panicf("graph.While: %s doesn't run a sub-graph", opType)
	}
	if body.parent != nil {
		exceptions.Panicf("graph.While: %s is already run by %s", body, body.parent)
	}
	if body == g {
		exceptions.Panicf("graph.While: %s can't run itself", g)
	}
	e := g.NewExec(ops.New(opType), ops.NoHint, nil, nil)
	g.subGraphs = append(g.subGraphs, body)
	body.parent = g
	body.execIdx = e.idx + 1
	g.execs[e.idx].graphRef = len(g.subGraphs)
	if len(body.wraps) > 0 {
		g.addWraps(body.wraps)
	}
	return e
}

// SetWhileExpr makes g a loop: on every iteration g runs from its sources to the breakpoints,
// then evaluates expr, and if it holds, continues from the breakpoints to its destinations.
func (g *Graph) SetWhileExpr(expr WhileExpr, data any, breakpoints ...Exec) {
	if len(breakpoints) == 0 {
		exceptions.Panicf("graph.SetWhileExpr: at least one breakpoint required")
	}
	for _, e := range breakpoints {
		g.checkExec(e, "graph.SetWhileExpr")
	}
	g.whileExpr = expr
	g.whileData = data
	g.breakpoints = slices.Clone(breakpoints)
}

// IsLoop returns whether g is the body of a loop.
func (g *Graph) IsLoop() bool { return g.whileExpr != nil }

// follows returns the execs right after the breakpoints.
func (g *Graph) follows() []Exec {
	var follows []Exec
	for _, bp := range g.breakpoints {
		for _, idx := range g.execs[bp.idx].outgoings {
			e := Exec{graph: g, idx: idx}
			if !slices.Contains(follows, e) {
				follows = append(follows, e)
			}
		}
	}
	return follows
}
