// Copyright (c) 2022, The GoKi Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package generator implements the three-artifact generator pipeline
// (spec section 4.5): GenerateNeuronUpdate, GenerateSynapseUpdate and
// GenerateInit. The pipeline itself is language-neutral -- it never opens
// a file or decides output paths -- and consumes a Model, a
// backend.Backend and the backend's own callback-driven scaffolding.
// Grounded on the overall shape of the teacher's extraction/emission
// passes (one pass per logical unit, resolve placeholders, commit to an
// output stream), generalized from "one pass per source file" to "one
// pass per neuron/synapse group".
package generator

import (
	"fmt"
	"sort"

	"github.com/gennsim/genncore/backend"
	"github.com/gennsim/genncore/snippet"
	"github.com/gennsim/genncore/subst"
	"github.com/gennsim/genncore/timer"
)

// bindSnippetScope pushes the three frames a snippet instance's code
// needs resolved against: parameter values, derived parameter values, and
// variable names rewritten with the backend's device prefix plus a
// group-local infix (so `$(V)` in a shared snippet becomes
// `dd_V_groupName` once bound to a specific group). It returns the number
// of frames pushed, for a matching popScope.
func bindSnippetScope(sub *backend.Substitutions, snip *snippet.Snippet, params []float64, derived map[string]float64, varPrefix, groupInfix string) int {
	n := 0
	if len(snip.ParamNames) > 0 {
		sub.PushValues(snip.ParamNames, params, "")
		n++
	}
	if len(derived) > 0 {
		names := snip.DerivedParamNames()
		vals := make([]float64, len(names))
		for i, n := range names {
			vals[i] = derived[n]
		}
		sub.PushValues(names, vals, "")
		n++
	}
	if len(snip.Vars) > 0 {
		sub.PushNames(snip.VarNames(), varPrefix, groupInfix, "")
		n++
	}
	// extra global parameters are model-wide symbols, not per-group, so
	// they take the device prefix but no group infix.
	if len(snip.ExtraGlobalPar) > 0 {
		sub.PushNames(snip.EGPNames(), varPrefix, "", "")
		n++
	}
	return n
}

// popScope pops exactly n frames, in LIFO order. Used by callers that
// bound their frame count from bindSnippetScope's return value plus any
// extra frames (PushNames/PushFunc) they pushed on top.
func popScope(sub *backend.Substitutions, n int) {
	for i := 0; i < n; i++ {
		sub.Pop()
	}
}

// bindInjectCurrent binds the `$(injectCurrent, value)` control primitive
// (spec section 6) to an accumulation into the neuron update's Isyn
// register.
func bindInjectCurrent(sub *backend.Substitutions) {
	sub.PushFunc("injectCurrent", 1, "Isyn += $(0)")
}

// bindRNG binds the reserved `$(rng)` placeholder to a population's
// per-element RNG state, and each `$(gennrand_*)` primitive the backend
// supports to its textual expansion against that state (spec section 6).
// Returns the number of frames pushed, for a matching popScope.
func bindRNG(sub *backend.Substitutions, be backend.Backend, popName string) int {
	ref := be.RNGVarRef(popName)
	sub.PushFunc("rng", 0, ref)
	n := 1
	names := be.RandNames()
	order := make([]string, 0, len(names))
	for name := range names {
		order = append(order, name)
	}
	sort.Strings(order)
	for _, name := range order {
		arity := names[name]
		args := make([]string, arity)
		for i := range args {
			args[i] = fmt.Sprintf("$(%d)", i)
		}
		call, err := be.RandCall(name, ref, args...)
		if err != nil {
			continue
		}
		sub.PushFunc(name, arity, call)
		n++
	}
	return n
}

// startTiming starts the optional timer a Generate* entry point was
// called with -- callers pass nothing to skip timing, or a *timer.Time to
// accumulate real generation cost across repeated calls (spec section 5:
// the generator is single-threaded and produces deterministic text, which
// makes a caller generating many models in one process want to know how
// much of its own wall time that costs). Returns the Stop to defer.
func startTiming(tm []*timer.Time) func() {
	if len(tm) == 0 || tm[0] == nil {
		return func() {}
	}
	t := tm[0]
	t.Start()
	return func() { t.Stop() }
}

// resolveCode resolves one role's code string against the current
// Substitutions stack and enforces that nothing in the placeholder DSL
// survives (spec section 4.6: "Every code-string handled by the
// generator is passed through check_unresolved at the point where it is
// about to be committed to the output stream"). context names the
// snippet and role for the diagnostic.
func resolveCode(sub *backend.Substitutions, code, context string) (string, error) {
	if code == "" {
		return "", nil
	}
	resolved, err := sub.Resolve(code)
	if err != nil {
		return "", fmt.Errorf("generator: %s: %w", context, err)
	}
	if err := subst.CheckUnresolved(resolved, context); err != nil {
		return "", err
	}
	// literal and math-function coercion runs after the barrier, over
	// fully concrete text; EnsureFType is idempotent, so code that is
	// resolved once and spliced into a larger fragment that resolves
	// again comes out identical.
	buf := subst.New(resolved)
	buf.EnsureFType(sub.Precision())
	return buf.String(), nil
}
