// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// nnc_inspect builds a small symbolic graph, differentiates it and prints its symbols. Optionally
// it also runs a while loop with ping-pong buffers on a backend.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/gomlx/nnc/backends"
	_ "github.com/gomlx/nnc/backends/simplego"
	"github.com/gomlx/nnc/pkg/core/dtypes"
	"github.com/gomlx/nnc/pkg/core/graph"
	"github.com/gomlx/nnc/pkg/core/ops"
	"github.com/gomlx/nnc/pkg/core/symbolic"
	"github.com/gomlx/nnc/pkg/core/tensors"
	"github.com/janpfeifer/must"
	"github.com/schollz/progressbar/v3"
	"k8s.io/klog/v2"
)

var (
	flagDemo = flag.String("demo", "chain", `Symbolic graph to differentiate: "chain" for log(exp(x)) or `+
		`"split" for exp(x) and exp over the two halves of x.`)
	flagSize = flag.Int("size", 4, "Number of elements of x.")
	flagLoop = flag.Int("loop", 0, "If > 0, runs a while loop of this many iterations on the backend "+
		"selected by $"+backends.ConfigEnvVar+".")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()
	if *flagSize < 2 || *flagSize%2 != 0 {
		klog.Errorf("-size must be even and at least 2, got %d", *flagSize)
		os.Exit(1)
	}

	var d *demo
	switch *flagDemo {
	case "chain":
		d = chainGraph(*flagSize)
	case "split":
		d = splitGraph(*flagSize)
	default:
		klog.Errorf("Unknown -demo=%q, see 'nnc_inspect -help'", *flagDemo)
		os.Exit(1)
	}
	numTensors, numExecs := d.g.NumTensorSymbols(), d.g.NumExecSymbols()
	d.g.Backward(d.sources, d.destinations, d.f, d.wrt)
	reportSymbols(d.g, numTensors, numExecs, d.wrt)

	if *flagLoop > 0 {
		runLoop(*flagLoop)
	}
}

func f32(dims ...int) tensors.Param { return tensors.MakeParam(dtypes.Float32, dims...) }

func unary(g *symbolic.Graph, opType ops.OpType, in, out symbolic.TensorSymbol, name string) symbolic.ExecSymbol {
	return g.NewExecSymbol(ops.New(opType), []symbolic.TensorSymbol{in}, []symbolic.TensorSymbol{out}, name)
}

// demo is a forward graph and what to differentiate.
type demo struct {
	g                     *symbolic.Graph
	sources, destinations []symbolic.ExecSymbol
	f, wrt                []symbolic.TensorSymbol
}

// chainGraph is z = log(exp(x)).
func chainGraph(size int) *demo {
	g := symbolic.New("chain")
	x := g.NewTensorSymbol(f32(size), "x")
	y := g.NewTensorSymbol(f32(), "y")
	z := g.NewTensorSymbol(f32(), "z")
	exp := unary(g, ops.OpTypeEWExpForward, x, y, "exp")
	log := unary(g, ops.OpTypeEWLogForward, y, z, "log")
	g.Concat(exp, log)
	return &demo{
		g:            g,
		sources:      []symbolic.ExecSymbol{exp},
		destinations: []symbolic.ExecSymbol{log},
		f:            []symbolic.TensorSymbol{z},
		wrt:          []symbolic.TensorSymbol{x},
	}
}

// splitGraph is y = exp(x), z0 = exp(x[:size/2]) and z1 = exp(x[size/2:]).
func splitGraph(size int) *demo {
	g := symbolic.New("split")
	half := size / 2
	x := g.NewTensorSymbol(f32(size), "x")
	y := g.NewTensorSymbol(f32(), "y")
	a0 := g.NewAliasSymbol(x, []int{0}, nil, f32(half), "x0")
	a1 := g.NewAliasSymbol(x, []int{half}, nil, f32(half), "x1")
	z0 := g.NewTensorSymbol(f32(), "z0")
	z1 := g.NewTensorSymbol(f32(), "z1")
	execs := []symbolic.ExecSymbol{
		unary(g, ops.OpTypeEWExpForward, x, y, "exp"),
		unary(g, ops.OpTypeEWExpForward, a0, z0, "exp0"),
		unary(g, ops.OpTypeEWExpForward, a1, z1, "exp1"),
	}
	return &demo{
		g:            g,
		sources:      execs,
		destinations: execs,
		f:            []symbolic.TensorSymbol{y, z0, z1},
		wrt:          []symbolic.TensorSymbol{x},
	}
}

// runLoop doubles x = 1 numIterations times, ping-ponging between two buffers.
func runLoop(numIterations int) {
	backend := backends.New()
	defer backend.Finalize()
	x := tensors.FromFlat([]float32{1}, 1)
	a, b := backend.NewTensor(x.Param()), backend.NewTensor(x.Param())
	defer backend.FreeTensor(a)
	defer backend.FreeTensor(b)

	body := graph.New("body")
	in := tensors.NewMultiView(tensors.FromData(x.Param(), x.Data()),
		[]tensors.Data{x.Data(), a.Data(), b.Data()}, tensors.KindK1N, 2, body)
	out := tensors.NewMultiView(tensors.FromData(x.Param(), a.Data()),
		[]tensors.Data{a.Data(), b.Data()}, tensors.KindK0N, 2, body)
	sum := body.NewExec(ops.New(ops.OpTypeEWSumForward), ops.NoHint,
		[]tensors.Tensor{in, in}, []tensors.Tensor{out})
	body.SetSources(sum)
	body.SetDestinations(sum)

	bar := progressbar.NewOptions(numIterations,
		progressbar.OptionSetDescription("loop"),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("iterations"),
		progressbar.OptionSetTheme(progressbar.ThemeASCII),
	)
	body.SetWhileExpr(func(special []*tensors.Dense, _, _ []tensors.Tensor, _ any) bool {
		count := graph.LoopCount(special)
		if count > 0 {
			_ = bar.Add(1)
		}
		return count < numIterations
	}, nil, sum)

	root := graph.New("root")
	loop := root.While(ops.OpTypeGraphForward, body)
	root.SetSources(loop)
	root.SetDestinations(loop)
	must.M(root.RunAll(backend))
	_ = bar.Finish()
	fmt.Println()
	reportLoop(backend, numIterations, x, a, b)
	root.Free()
}
