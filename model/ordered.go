// Copyright (c) 2022, The GoKi Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package model

import (
	"fmt"

	"golang.org/x/exp/slices"
)

// OrderedRegistry is the ordered mapping spec section 5 requires for
// neuron/synapse/current-source registries: "Use an ordered mapping for
// neuron/synapse/current-source registries to guarantee stable
// iteration." Insertion order is preserved; names are unique. Grounded on
// the teacher's golang.org/x/exp/slices usage in extract.go/process.go
// for in-place ordered-buffer surgery, applied here to an ordered name
// list instead of a line buffer.
type OrderedRegistry[T any] struct {
	order []string
	items map[string]*T
}

// NewOrderedRegistry returns an empty OrderedRegistry.
func NewOrderedRegistry[T any]() *OrderedRegistry[T] {
	return &OrderedRegistry[T]{items: map[string]*T{}}
}

// Add inserts v under name. It is an error to add a duplicate name (spec
// section 3 invariant: "Every group name is unique within its
// category"), surfaced as a construction error per spec section 7.
func (r *OrderedRegistry[T]) Add(name string, v *T) error {
	if _, exists := r.items[name]; exists {
		return fmt.Errorf("duplicate name %q", name)
	}
	r.items[name] = v
	r.order = append(r.order, name)
	return nil
}

// Get looks up an entry by name.
func (r *OrderedRegistry[T]) Get(name string) (*T, bool) {
	v, ok := r.items[name]
	return v, ok
}

// Remove deletes name from the registry, preserving the relative order of
// the remaining entries.
func (r *OrderedRegistry[T]) Remove(name string) {
	if _, exists := r.items[name]; !exists {
		return
	}
	delete(r.items, name)
	if idx := slices.Index(r.order, name); idx >= 0 {
		r.order = slices.Delete(r.order, idx, idx+1)
	}
}

// Names returns the ordered list of names, in insertion order.
func (r *OrderedRegistry[T]) Names() []string {
	return append([]string(nil), r.order...)
}

// Len returns the number of entries.
func (r *OrderedRegistry[T]) Len() int {
	return len(r.order)
}

// Each calls fn for every entry, in insertion order, stopping early if fn
// returns false.
func (r *OrderedRegistry[T]) Each(fn func(name string, v *T) bool) {
	for _, name := range r.order {
		if !fn(name, r.items[name]) {
			return
		}
	}
}
