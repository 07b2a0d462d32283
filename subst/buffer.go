// Copyright (c) 2022, The GoKi Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package subst implements the placeholder-DSL substitution engine: the
// text transformer that rewrites snippet code (written using the $(...)
// placeholder syntax) into concrete backend source. It is a pure text
// transformer with no knowledge of the network model or any backend; all
// five public operations mutate a Buffer in place.
package subst

import "bytes"

// Buffer is a mutable code buffer, the unit every substitution operation
// rewrites in place. Mirrors the teacher's line-oriented []byte handling
// in sledits.go and extract.go, generalized from whole-file lines to a
// single code fragment (a snippet's code string for one role).
type Buffer struct {
	data []byte
}

// New wraps code in a Buffer ready for substitution.
func New(code string) *Buffer {
	return &Buffer{data: []byte(code)}
}

// String returns the buffer's current contents.
func (b *Buffer) String() string {
	return string(b.data)
}

// Bytes returns the buffer's current contents as a byte slice. The caller
// must not retain it across further mutation of b.
func (b *Buffer) Bytes() []byte {
	return b.data
}

// Substitute performs a global literal replacement of every occurrence of
// target with replacement. This is the most primitive of the five public
// operations; NameSubstitution and ValueSubstitution are built on it.
func (b *Buffer) Substitute(target, replacement string) {
	if target == "" {
		return
	}
	b.data = bytes.ReplaceAll(b.data, []byte(target), []byte(replacement))
}
