// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package sets

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSet(t *testing.T) {
	s := Make[int](10)
	assert.Empty(t, s)
	s.Insert(7, 3, 7)
	assert.Len(t, s, 2)
	assert.True(t, s.Has(3))
	assert.False(t, s.Has(5))

	s2 := MakeWith(5, 7)
	assert.Equal(t, []int{3}, Sorted(s.Sub(s2)))
	assert.Equal(t, []int{3, 5, 7}, Sorted(s.Union(s2)))
	assert.False(t, s.Equal(s2))

	s.Delete(7, 11)
	assert.True(t, s.Equal(MakeWith(3)))
	assert.False(t, s.Equal(MakeWith(-3)))
}

func TestSortedStrings(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, Sorted(MakeWith("c", "a", "b")))
	assert.Empty(t, Sorted(Make[string]()))
}
