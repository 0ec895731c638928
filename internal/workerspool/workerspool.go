// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package workerspool limits the number of goroutines running kernel work.
package workerspool

import (
	"runtime"
	"sync"
)

// Pool of workers. The zero value runs everything inline.
type Pool struct {
	// maxParallelism is the number of tasks running at the same time: 0 disables parallelism,
	// -1 is unlimited.
	maxParallelism int
	mu             sync.Mutex
	cond           sync.Cond // Signaled whenever numRunning is decreased.
	numRunning     int
}

// New returns a Pool with the given parallelism. A negative value means unlimited, and
// DefaultParallelism uses one worker per CPU.
func New(maxParallelism int) *Pool {
	w := &Pool{maxParallelism: maxParallelism}
	w.cond = sync.Cond{L: &w.mu}
	return w
}

// DefaultParallelism is runtime.NumCPU().
func DefaultParallelism() int { return runtime.NumCPU() }

// IsEnabled returns whether tasks may run in parallel.
func (w *Pool) IsEnabled() bool { return w != nil && w.maxParallelism != 0 }

// IsUnlimited returns whether there is no limit to the number of tasks running.
func (w *Pool) IsUnlimited() bool { return w != nil && w.maxParallelism < 0 }

// MaxParallelism returns the configured parallelism.
func (w *Pool) MaxParallelism() int {
	if w == nil {
		return 0
	}
	return w.maxParallelism
}

// WaitToStart waits until there is a worker available and starts task in it.
// If parallelism is disabled, it runs task inline.
func (w *Pool) WaitToStart(task func()) {
	if !w.IsEnabled() {
		task()
		return
	}
	if w.IsUnlimited() {
		go task()
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	for w.numRunning >= w.maxParallelism {
		w.cond.Wait()
	}
	w.numRunning++
	go func() {
		defer func() {
			w.mu.Lock()
			w.numRunning--
			w.cond.Signal()
			w.mu.Unlock()
		}()
		task()
	}()
}

// Split calls fn over consecutive ranges [start, end) covering [0, length), each at least
// minChunk long (except the last), and returns when all calls are done.
func (w *Pool) Split(length, minChunk int, fn func(start, end int)) {
	if length <= 0 {
		return
	}
	numChunks := 1
	if w.IsEnabled() {
		numChunks = max(1, length/max(1, minChunk))
		if !w.IsUnlimited() {
			numChunks = min(numChunks, w.maxParallelism)
		}
	}
	if numChunks == 1 {
		fn(0, length)
		return
	}
	chunk := (length + numChunks - 1) / numChunks
	var wg sync.WaitGroup
	for start := 0; start < length; start += chunk {
		end := min(start+chunk, length)
		wg.Add(1)
		w.WaitToStart(func() {
			defer wg.Done()
			fn(start, end)
		})
	}
	wg.Wait()
}
