// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/gomlx/nnc/backends"
	"github.com/gomlx/nnc/pkg/core/symbolic"
	"github.com/gomlx/nnc/pkg/core/tensors"
)

var (
	headerRowStyle = lipgloss.NewStyle().Reverse(true).
			Padding(0, 2, 0, 2).Align(lipgloss.Center)

	oddRowStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFF")).
			PaddingLeft(1).PaddingRight(1)
	evenRowStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#999")).
			PaddingLeft(1).PaddingRight(1)

	titleStyle = lipgloss.NewStyle().Bold(true).Padding(1, 4, 1, 4)
)

func newPlainTable(withHeader bool) *lgtable.Table {
	return lgtable.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("99"))).
		StyleFunc(func(row, col int) (s lipgloss.Style) {
			if withHeader && row == 1 {
				s = headerRowStyle
				return
			}
			if row%2 == 0 {
				s = oddRowStyle
			} else {
				s = evenRowStyle
			}
			if col == 0 {
				s = s.Align(lipgloss.Right)
			} else {
				s = s.Align(lipgloss.Left)
			}
			return
		})
}

func joinTensorSymbols(symbols []symbolic.TensorSymbol) string {
	parts := make([]string, len(symbols))
	for i, t := range symbols {
		if t.IsValid() {
			parts[i] = t.String()
		} else {
			parts[i] = "-"
		}
	}
	return strings.Join(parts, ", ")
}

func joinExecSymbols(symbols []symbolic.ExecSymbol) string {
	parts := make([]string, len(symbols))
	for i, e := range symbols {
		parts[i] = fmt.Sprint(e.Index())
	}
	return strings.Join(parts, ", ")
}

// reportSymbols prints the tensor and exec symbols of g, marking the ones added by Backward,
// and the gradients of the wrt symbols.
func reportSymbols(g *symbolic.Graph, numForwardTensors, numForwardExecs int, wrt []symbolic.TensorSymbol) {
	fmt.Println(titleStyle.Render(fmt.Sprintf("Tensor symbols of %q", g.Name())))
	table := newPlainTable(true)
	table.Row("#", "Name", "Param", "Alias of", "Flags", "Bytes", "Pass")
	for idx := range g.NumTensorSymbols() {
		t := g.TensorSymbolAt(idx)
		param := g.Param(t)
		aliasOf := "-"
		if base := g.AliasOf(t); base.IsValid() {
			ofs, _ := g.AliasOffsets(t)
			aliasOf = fmt.Sprintf("%s at %v", base, ofs[:param.Rank()])
		}
		flags := "-"
		if g.Flags(t)&symbolic.TensorFlagInitZeros != 0 {
			flags = "init_zeros"
		}
		table.Row(fmt.Sprint(idx), g.TensorName(t), param.String(), aliasOf, flags,
			humanize.Bytes(uint64(param.Memory())), pass(idx, numForwardTensors))
	}
	fmt.Println(table.Render())

	fmt.Println(titleStyle.Render(fmt.Sprintf("Exec symbols of %q", g.Name())))
	table = newPlainTable(true)
	table.Row("#", "Name", "Op", "Inputs", "Outputs", "Outgoings", "Pass")
	for idx := range g.NumExecSymbols() {
		e := g.ExecSymbolAt(idx)
		table.Row(fmt.Sprint(idx), g.ExecName(e), g.Op(e).String(), joinTensorSymbols(g.Inputs(e)),
			joinTensorSymbols(g.Outputs(e)), joinExecSymbols(g.Outgoings(e)), pass(idx, numForwardExecs))
	}
	fmt.Println(table.Render())

	fmt.Println(titleStyle.Render("Gradients"))
	table = newPlainTable(true)
	table.Row("wrt", "Gradient", "Computed by")
	for _, t := range wrt {
		gradient := g.BackwardTensorSymbol(t)
		table.Row(t.String(), gradient.String(), fmt.Sprint(g.BackwardExecSymbol(gradient).Index()))
	}
	fmt.Println(table.Render())
}

func pass(idx, numForward int) string {
	if idx < numForward {
		return "forward"
	}
	return "backward"
}

// reportLoop prints the buffers of the ping-pong loop.
func reportLoop(backend backends.Backend, numIterations int, x, a, b *tensors.Dense) {
	fmt.Println(titleStyle.Render(fmt.Sprintf("While loop on %q", backend.Name())))
	table := newPlainTable(false)
	table.Row("iterations", humanize.Comma(int64(numIterations)))
	for _, row := range []struct {
		name string
		t    *tensors.Dense
	}{{"x", x}, {"a", a}, {"b", b}} {
		table.Row(row.name, fmt.Sprintf("%v (%s)", tensors.Flat[float32](row.t), row.t))
	}
	fmt.Println(table.Render())
}
