// Copyright (c) 2022, The GoKi Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package subst

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gennsim/genncore/precision"
)

// NameSubstitution replaces, for each n in names, every occurrence of
// $(n+suffix) with prefix+n+infix+suffix. This is the convention that
// produces device-memory identifiers like "dd_V_neuronsA" from prefix
// "dd_", n "V", infix "_neuronsA" (the caller passes infix = "_" +
// group name, and suffix = "", "_pre" or "_post" for the reserved
// presynaptic/postsynaptic placeholder forms).
func (b *Buffer) NameSubstitution(names []string, prefix, infix, suffix string) {
	for _, n := range names {
		placeholder := "$(" + n + suffix + ")"
		replacement := prefix + n + infix + suffix
		b.Substitute(placeholder, replacement)
	}
}

// ValueSubstitution replaces, for each (n, v) pair, every occurrence of
// $(n+suffix) with a backend-appropriate literal representation of v
// written at full precision (no digits lost). Used for parameters and
// derived parameters, which are known constants at generation time.
func (b *Buffer) ValueSubstitution(names []string, values []float64, suffix string, prec precision.FType) error {
	if len(names) != len(values) {
		return fmt.Errorf("subst: ValueSubstitution: %d names but %d values", len(names), len(values))
	}
	for i, n := range names {
		placeholder := "$(" + n + suffix + ")"
		replacement := FormatLiteral(values[i], prec)
		b.Substitute(placeholder, replacement)
	}
	return nil
}

// FormatLiteral formats v as a backend numeric literal at full precision,
// then runs it through the single instance of the EnsureFType state
// machine so a value substitution and a literal already present in source
// code always end up with an identical textual form.
func FormatLiteral(v float64, prec precision.FType) string {
	s := strconv.FormatFloat(v, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		// a value substitution is always a float constant, even when its
		// value happens to be integral (e.g. a derived parameter of 3.0) --
		// unlike a literal already present in user code, which the scanner
		// must leave alone when it looks like an integer.
		s += ".0"
	}
	buf := New(s)
	buf.EnsureFType(prec)
	return buf.String()
}
