// Copyright (c) 2022, The GoKi Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package snippet

import (
	"fmt"
	"sync"
)

// Registry holds named snippets, behaving like the global registry spec
// section 9 describes replacing the source's virtual-inheritance snippet
// hierarchy with: "behavior-bearing snippets register in a global
// registry indexed by a type tag". The front-end model-library catalog
// (out of scope, spec section 1) is exactly this registry's expected
// caller: it registers ready-made snippets once at init time, and the
// core looks them up by name when a group is added.
type Registry struct {
	mu    sync.RWMutex
	items map[string]*Snippet
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{items: map[string]*Snippet{}}
}

// Register adds s to the registry. It is an error to register two
// snippets under the same name.
func (r *Registry) Register(s *Snippet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.items[s.Name]; exists {
		return fmt.Errorf("snippet registry: duplicate snippet name %q", s.Name)
	}
	r.items[s.Name] = s
	return nil
}

// Get looks up a snippet by name.
func (r *Registry) Get(name string) (*Snippet, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.items[name]
	return s, ok
}
