// Copyright (c) 2022, The GoKi Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package backend declares the capability set the generator pipeline
// consumes (spec section 4.3): an abstract target for variable
// declaration and allocation, parallel-group iteration, atomic add, RNG,
// synchronization primitives, and push/pull between host and device. The
// Backend is never responsible for the content of user snippets, only
// for the scaffolding emitted around them.
package backend

import (
	"bytes"
	"fmt"
	"strings"
)

// Stream is the code buffer a Backend opens for a generator callback to
// write into. It tracks an indent level so nested emission (kernel body
// inside a parallel-group dispatch inside a preamble) reads the way
// hand-written backend source would. Grounded on the teacher's
// bytes.Buffer-based line rewriting (sledits.go's byte-slice editing),
// generalized here from post-hoc rewriting to forward emission.
type Stream struct {
	buf    bytes.Buffer
	indent int
}

// NewStream returns an empty Stream.
func NewStream() *Stream { return &Stream{} }

// Indent increases the indent level used by subsequent Line/Printf calls.
func (s *Stream) Indent() { s.indent++ }

// Dedent decreases the indent level. It is a no-op at indent zero.
func (s *Stream) Dedent() {
	if s.indent > 0 {
		s.indent--
	}
}

// Line writes one line, prefixed with the current indent, followed by a
// newline.
func (s *Stream) Line(text string) {
	s.buf.WriteString(strings.Repeat("    ", s.indent))
	s.buf.WriteString(text)
	s.buf.WriteByte('\n')
}

// Printf formats and writes one indented line.
func (s *Stream) Printf(format string, args ...any) {
	s.Line(fmt.Sprintf(format, args...))
}

// Raw writes text with no indent and no trailing newline, for splicing in
// already-formatted snippet code.
func (s *Stream) Raw(text string) {
	s.buf.WriteString(text)
}

// String returns the accumulated text.
func (s *Stream) String() string { return s.buf.String() }

// Bytes returns the accumulated text as a byte slice.
func (s *Stream) Bytes() []byte { return s.buf.Bytes() }
