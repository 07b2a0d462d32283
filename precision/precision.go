// Copyright (c) 2022, The GoKi Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package precision defines the floating-point precision tag a Model
// carries, and the literal-suffix / math-function-name conventions that
// tag drives in the generated kernels.
package precision

// FType is a floating point precision selector.
type FType int

const (
	// Single is 32-bit float precision (the common case; "f" suffix on
	// literals, "f"-suffixed math function names).
	Single FType = iota

	// Double is 64-bit float precision (no suffix on literals or math
	// function names).
	Double

	// Extended is a backend-specific extended precision (treated
	// identically to Double for literal/function coercion purposes, since
	// no backend in this pack distinguishes the two at the text level).
	Extended
)

func (t FType) String() string {
	switch t {
	case Single:
		return "float"
	case Double:
		return "double"
	case Extended:
		return "extended"
	default:
		return "unknown"
	}
}

// CType returns the backend scalar type name for this precision.
func (t FType) CType() string {
	switch t {
	case Single:
		return "float"
	case Double, Extended:
		return "double"
	default:
		return "float"
	}
}

// IsSingle reports whether literals/functions should carry the single
// precision ("f") suffix.
func (t FType) IsSingle() bool {
	return t == Single
}
