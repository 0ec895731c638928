// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package sets implements Set[T], a map[T]struct{} with set operations on top.
//
// The zero value is a nil map: it can be read but not inserted into, use Make or MakeWith.
package sets

import (
	"slices"

	"golang.org/x/exp/constraints"
)

// Set of elements of type T.
type Set[T comparable] map[T]struct{}

// Make returns an empty Set, with optional capacity reserved for size elements.
func Make[T comparable](size ...int) Set[T] {
	if len(size) > 0 {
		return make(Set[T], size[0])
	}
	return make(Set[T])
}

// MakeWith returns a Set holding elements.
func MakeWith[T comparable](elements ...T) Set[T] {
	s := Make[T](len(elements))
	s.Insert(elements...)
	return s
}

// Has reports whether key is in s.
func (s Set[T]) Has(key T) bool {
	_, found := s[key]
	return found
}

// Insert adds keys to s.
func (s Set[T]) Insert(keys ...T) {
	for _, key := range keys {
		s[key] = struct{}{}
	}
}

// Delete removes keys from s. Keys not in s are ignored.
func (s Set[T]) Delete(keys ...T) {
	for _, key := range keys {
		delete(s, key)
	}
}

// Sub returns a new set with the elements of s not in s2.
func (s Set[T]) Sub(s2 Set[T]) Set[T] {
	sub := Make[T]()
	for key := range s {
		if !s2.Has(key) {
			sub.Insert(key)
		}
	}
	return sub
}

// Union returns a new set with the elements of s and s2.
func (s Set[T]) Union(s2 Set[T]) Set[T] {
	union := Make[T](len(s) + len(s2))
	for key := range s {
		union.Insert(key)
	}
	for key := range s2 {
		union.Insert(key)
	}
	return union
}

// Equal reports whether s and s2 hold the same elements.
func (s Set[T]) Equal(s2 Set[T]) bool {
	if len(s) != len(s2) {
		return false
	}
	for key := range s {
		if !s2.Has(key) {
			return false
		}
	}
	return true
}

// Sorted returns the elements of s in ascending order.
func Sorted[T constraints.Ordered](s Set[T]) []T {
	keys := make([]T, 0, len(s))
	for key := range s {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return keys
}
