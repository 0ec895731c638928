// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package workerspool

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_Split(t *testing.T) {
	for _, parallelism := range []int{0, 1, 3, -1} {
		pool := New(parallelism)
		var mu sync.Mutex
		covered := make([]int, 100)
		var calls atomic.Int32
		pool.Split(len(covered), 10, func(start, end int) {
			calls.Add(1)
			mu.Lock()
			defer mu.Unlock()
			for i := start; i < end; i++ {
				covered[i]++
			}
		})
		for i, c := range covered {
			require.Equalf(t, 1, c, "parallelism=%d, element %d", parallelism, i)
		}
		switch parallelism {
		case 0, 1:
			assert.Equal(t, int32(1), calls.Load())
		case 3:
			assert.Equal(t, int32(3), calls.Load())
		default:
			assert.Equal(t, int32(10), calls.Load())
		}
	}

	// Nothing to do.
	New(2).Split(0, 1, func(_, _ int) { t.Fatal("unexpected call") })
	// Small lengths run inline.
	var pool *Pool
	assert.False(t, pool.IsEnabled())
	called := false
	pool.Split(5, 10, func(start, end int) {
		called = true
		assert.Equal(t, 0, start)
		assert.Equal(t, 5, end)
	})
	assert.True(t, called)
}

func TestPool_WaitToStart(t *testing.T) {
	pool := New(2)
	var running, maxRunning atomic.Int32
	var wg sync.WaitGroup
	release := make(chan struct{})
	for range 6 {
		wg.Add(1)
		go pool.WaitToStart(func() {
			defer wg.Done()
			n := running.Add(1)
			for {
				old := maxRunning.Load()
				if n <= old || maxRunning.CompareAndSwap(old, n) {
					break
				}
			}
			<-release
			running.Add(-1)
		})
	}
	close(release)
	wg.Wait()
	assert.LessOrEqual(t, maxRunning.Load(), int32(2))
}
