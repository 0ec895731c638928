// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package symbolic

import (
	"slices"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/nnc/pkg/core/ops"
)

// autogradExec is the backward of a forward exec, same index.
type autogradExec struct {
	op              ops.Op
	inputs, outputs []int
	// outgoings index execs below numExecs, and sums (offset by numExecs) above.
	outgoings []int
	symbol    ExecSymbol
}

// autogradSymbol is a gradient symbol to create: the gradient of forward tensor d, possibly
// through an alias of another autograd symbol.
type autogradSymbol struct {
	d       int
	aliasOf int
	flags   TensorFlags
	symbol  TensorSymbol
}

// tensorRef is one write of a gradient: symbol d written by exec x (or sum, see
// autogradExec.outgoings).
//
// Writes through aliases list the alias symbols sharing the buffer in aliasRegistry, and the
// other execs writing them in execRegistry.
type tensorRef struct {
	d, x          int
	execRegistry  []int
	aliasRegistry []int
}

func (r *tensorRef) hasAliases() bool { return len(r.aliasRegistry) > 0 }

// tensorVersion lists the writes to the gradient of one forward tensor: the ones from c on
// are not summed yet.
type tensorVersion struct {
	c    int
	refs []*tensorRef
}

// sumExec adds its inputs into output.
type sumExec struct {
	inputs    []int
	output    int
	outgoings []int
	symbol    ExecSymbol
}

func (b *backward) newSymbol(d, aliasOf int) int {
	b.symbols = append(b.symbols, autogradSymbol{d: d, aliasOf: aliasOf})
	return len(b.symbols) - 1
}

// outgoingsOf returns the outgoings of the backward exec or sum x.
func (b *backward) outgoingsOf(x int) *[]int {
	if x < b.numExecs {
		return &b.execs[x].outgoings
	}
	return &b.sums[x-b.numExecs].outgoings
}

// replaceOutgoing removes from from list, and adds to if it is not there yet.
func replaceOutgoing(list *[]int, from, to int) {
	*list = slices.DeleteFunc(*list, func(v int) bool { return v == from })
	if !slices.Contains(*list, to) {
		*list = append(*list, to)
	}
}

func addOutgoing(list *[]int, to int) {
	if !slices.Contains(*list, to) {
		*list = append(*list, to)
	}
}

// forwardOf returns the forward tensor info of the autograd symbol ad.
func (b *backward) forwardOf(ad int) *tensorInfo {
	return b.g.tensors[b.symbols[ad].d]
}

// zeroInitIfPartial flags the symbol of ref to be zeroed if its aliases don't cover it.
func (b *backward) zeroInitIfPartial(ref *tensorRef) {
	if ref.hasAliases() && !b.fullyCovered(ref) {
		sym := &b.symbols[ref.d]
		if sym.aliasOf >= 0 {
			exceptions.Panicf("symbolic.Backward: gradient with aliases is itself an alias")
		}
		sym.flags |= TensorFlagInitZeros
	}
}

// reversePass creates the gradient symbols and writes of every differentiated exec, in
// backward order.
func (b *backward) reversePass() {
	g := b.g
	b.execs = make([]autogradExec, b.numExecs)
	for idx := range b.infos {
		info := &b.infos[idx]
		if info.flow != flowAll {
			continue
		}
		for _, d := range info.outgoings {
			if b.infos[d].flow == flowAll {
				b.execs[idx].outgoings = append(b.execs[idx].outgoings, d)
			}
		}
	}
	b.versions = make([]tensorVersion, b.numTensors)
	b.symbols = make([]autogradSymbol, 0, b.numTensors)

	for _, idx := range b.backwardOrder.Indices() {
		info := &b.infos[idx]
		if info.flow != flowAll {
			continue
		}
		forward := g.execs[idx]
		exec := &b.execs[idx]
		exec.op = forward.op.Backward()
		if info.outputBitmask == nil {
			exec.op = ops.NoOp
			continue
		}
		exec.inputs = make([]int, len(forward.outputs))
		exec.outputs = make([]int, len(forward.inputs))
		for i, d := range forward.outputs {
			if d < 0 || !ops.HasBit(info.inputBitmask, i) {
				exec.inputs[i] = -1
				continue
			}
			exec.inputs[i] = b.gradientOfOutput(idx, d)
		}
		for i, d := range forward.inputs {
			if d < 0 || !ops.HasBit(info.outputBitmask, i) {
				exec.outputs[i] = -1
				continue
			}
			exec.outputs[i] = b.gradientOfInput(idx, d)
		}
	}
}

// gradientOfOutput returns the autograd symbol holding the current gradient of the forward
// output d, read by the backward of exec idx.
func (b *backward) gradientOfOutput(idx, d int) int {
	alias := b.g.tensors[d]
	verIdx := d
	if alias.isAlias() {
		verIdx = alias.aliasOf
	}
	ver := &b.versions[verIdx]
	if len(ver.refs) == 0 {
		// First use: this is the gradient of an f symbol, given by the caller.
		if !alias.isAlias() {
			ver.refs = append(ver.refs, &tensorRef{d: b.newSymbol(d, -1), x: idx})
		} else {
			ref := &tensorRef{d: b.newSymbol(alias.aliasOf, -1), x: idx}
			ref.aliasRegistry = []int{b.newSymbol(d, ref.d)}
			ver.refs = append(ver.refs, ref)
		}
	}
	if alias.isAlias() {
		return b.sumAliasVersions(idx, d, ver)
	}
	if ver.c == len(ver.refs)-1 {
		ref := ver.refs[ver.c]
		// Other aliases may write parts of it before it is read.
		b.zeroInitIfPartial(ref)
		return ref.d
	}
	b.sumVersions(idx, d, ver)
	return ver.refs[ver.c].d
}

// gradientOfInput creates the autograd symbol for the gradient of the forward input d written
// by the backward of exec idx.
func (b *backward) gradientOfInput(idx, d int) int {
	alias := b.g.tensors[d]
	if !alias.isAlias() {
		ad := b.newSymbol(d, -1)
		b.versions[d].refs = append(b.versions[d].refs, &tensorRef{d: ad, x: idx})
		return ad
	}
	// Pack it into a pending write of the same tensor that doesn't touch this region.
	ver := &b.versions[alias.aliasOf]
	for _, ref := range ver.refs[ver.c:] {
		if !b.involvesAlias(ref, alias) {
			ad := b.newSymbol(d, ref.d)
			ref.aliasRegistry = append(ref.aliasRegistry, ad)
			ref.execRegistry = append(ref.execRegistry, idx)
			return ad
		}
	}
	ref := &tensorRef{d: b.newSymbol(alias.aliasOf, -1), x: idx}
	ad := b.newSymbol(d, ref.d)
	ref.aliasRegistry = []int{ad}
	ver.refs = append(ver.refs, ref)
	return ad
}

// sumVersions adds a sum of the pending writes of ver into a new gradient of the forward
// symbol d, read by exec idx (-1 if none).
func (b *backward) sumVersions(idx, d int, ver *tensorVersion) {
	if ver.c >= len(ver.refs) {
		exceptions.Panicf("symbolic.Backward: no pending gradient to sum for %%%d", d)
	}
	pending := ver.refs[ver.c:]
	inputs := make([]int, len(pending))
	for i, ref := range pending {
		inputs[i] = ref.d
	}
	sum := &sumExec{inputs: inputs, output: b.newSymbol(d, -1)}
	if idx >= 0 {
		sum.outgoings = []int{idx}
	}
	b.sums = append(b.sums, sum)
	outgoing := b.numExecs + len(b.sums) - 1
	for _, ref := range pending {
		replaceOutgoing(b.outgoingsOf(ref.x), idx, outgoing)
		b.zeroInitIfPartial(ref)
		for _, x := range ref.execRegistry {
			replaceOutgoing(&b.execs[x].outgoings, idx, outgoing)
		}
	}
	ver.refs = append(ver.refs, &tensorRef{d: sum.output, x: outgoing})
	ver.c = len(ver.refs) - 1
}

// pendingMatch is a pending write of ver involved with an alias: k is the matching alias symbol
// of the write, or -1 if the write overlaps the alias without matching it exactly.
type pendingMatch struct {
	k, i int
}

// sumAliasVersions returns the autograd symbol holding the current gradient of the forward alias
// d, summing the pending writes that overlap it if needed.
func (b *backward) sumAliasVersions(idx, d int, ver *tensorVersion) int {
	alias := b.g.tensors[d]
	var matches []pendingMatch
	for i := ver.c; i < len(ver.refs); i++ {
		ref := ver.refs[i]
		if k := b.findAlias(ref, alias); k >= 0 {
			matches = append(matches, pendingMatch{k: k, i: i})
		} else if b.involvesAlias(ref, alias) {
			matches = append(matches, pendingMatch{k: -1, i: i})
		}
	}

	switch len(matches) {
	case 0:
		// Nothing wrote this region: read it from a zeroed tensor.
		base := b.newSymbol(alias.aliasOf, -1)
		b.symbols[base].flags |= TensorFlagInitZeros
		return b.newSymbol(d, base)

	case 1:
		if matches[0].k >= 0 {
			return matches[0].k
		}
		ref := ver.refs[matches[0].i]
		if sym := b.symbols[ref.d]; sym.aliasOf >= 0 {
			b.symbols[sym.aliasOf].flags |= TensorFlagInitZeros
		} else {
			b.zeroInitIfPartial(ref)
		}
		ad := b.newSymbol(d, ref.d)
		if ref.hasAliases() {
			ref.aliasRegistry = append(ref.aliasRegistry, ad)
		}
		return ad
	}

	exclusive := true
	inputs := make([]int, len(matches))
	for i, m := range matches {
		ref := ver.refs[m.i]
		if exclusive && m.k >= 0 && b.hasAliasExclusively(ref, alias) {
			inputs[i] = ref.aliasRegistry[0]
			continue
		}
		if exclusive {
			exclusive = false
			for j := range i {
				inputs[j] = ver.refs[matches[j].i].d
			}
		}
		inputs[i] = ref.d
	}
	refD := b.newSymbol(alias.aliasOf, -1)
	ad := b.newSymbol(d, refD)
	sum := &sumExec{inputs: inputs, output: refD}
	if exclusive {
		sum.output = ad
	}
	if idx >= 0 {
		sum.outgoings = []int{idx}
	}
	b.sums = append(b.sums, sum)
	outgoing := b.numExecs + len(b.sums) - 1

	noAliasRegistry := false
	for _, m := range matches {
		ref := ver.refs[m.i]
		if !exclusive {
			// The sum writes the whole tensor: partial inputs need zeroed buffers.
			if sym := b.symbols[ref.d]; sym.aliasOf >= 0 {
				b.symbols[sym.aliasOf].flags |= TensorFlagInitZeros
			} else {
				b.zeroInitIfPartial(ref)
			}
		}
		noAliasRegistry = noAliasRegistry || !ref.hasAliases()
		addOutgoing(b.outgoingsOf(ref.x), outgoing)
		for _, x := range ref.execRegistry {
			addOutgoing(&b.execs[x].outgoings, outgoing)
		}
	}

	summed := &tensorRef{d: refD, x: outgoing}
	if !noAliasRegistry || exclusive {
		if !exclusive {
			for _, m := range matches {
				summed.aliasRegistry = append(summed.aliasRegistry, ver.refs[m.i].aliasRegistry...)
			}
		}
		summed.aliasRegistry = append(summed.aliasRegistry, ad)
	}
	// Move the summed writes to the front of the pending ones.
	for i, m := range matches {
		if m.i > ver.c+i {
			ver.refs[ver.c+i], ver.refs[m.i] = ver.refs[m.i], ver.refs[ver.c+i]
		}
	}
	ver.refs = append(ver.refs, summed)
	ver.c += len(matches)
	return ad
}

// involvesAlias returns whether ref may write the region of alias. Writes of the whole tensor,
// and aliases with different increments, are assumed to overlap.
func (b *backward) involvesAlias(ref *tensorRef, alias *tensorInfo) bool {
	if !ref.hasAliases() {
		return true
	}
	for _, ad := range ref.aliasRegistry {
		other := b.forwardOf(ad)
		if other.inc != alias.inc {
			return true
		}
		disjoint := false
		for j := 0; j < len(other.param.Dims) && other.param.Dims[j] != 0 && alias.param.Dims[j] != 0; j++ {
			end := min(other.ofs[j]+other.param.Dims[j], alias.ofs[j]+alias.param.Dims[j])
			if end <= max(other.ofs[j], alias.ofs[j]) {
				disjoint = true
				break
			}
		}
		if !disjoint {
			return true
		}
	}
	return false
}

func sameRegion(a, b *tensorInfo) bool {
	return a.inc == b.inc && a.ofs == b.ofs && a.param.Dims == b.param.Dims
}

// findAlias returns the alias symbol of ref matching alias exactly, or -1.
func (b *backward) findAlias(ref *tensorRef, alias *tensorInfo) int {
	for _, ad := range ref.aliasRegistry {
		if sameRegion(b.forwardOf(ad), alias) {
			return ad
		}
	}
	return -1
}

// hasAliasExclusively returns whether every alias of ref matches alias exactly.
func (b *backward) hasAliasExclusively(ref *tensorRef, alias *tensorInfo) bool {
	if !ref.hasAliases() {
		return false
	}
	for _, ad := range ref.aliasRegistry {
		if !sameRegion(b.forwardOf(ad), alias) {
			return false
		}
	}
	return true
}

// sumWRT sums the pending gradients of the wrt symbols.
func (b *backward) sumWRT(wrt []int) {
	for _, d := range wrt {
		ver := &b.versions[d]
		if ver.c < len(ver.refs)-1 {
			b.sumVersions(-1, d, ver)
		} else if ver.c < len(ver.refs) {
			// A gradient only written through aliases may have gaps.
			b.zeroInitIfPartial(ver.refs[ver.c])
		}
	}
}
