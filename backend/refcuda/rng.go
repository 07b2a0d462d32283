// Copyright (c) 2022, The GoKi Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package refcuda

import "fmt"

// rngCall names the CUDA curand-family invocation backing one
// gennrand_* primitive, keyed by name so snippet code referencing
// `$(gennrand_uniform)` etc. resolves to concrete device calls.
// Supplements the teacher's slrand package, which ships only the
// Philox4x32 counter-based core with no gennrand_* surface above it.
var rngCall = map[string]string{
	"gennrand_uniform":     "curand_uniform(&%s)",
	"gennrand_normal":      "curand_normal(&%s)",
	"gennrand_exponential": "-logf(curand_uniform(&%s))",
	"gennrand_log_normal":  "curand_log_normal(&%s, %s, %s)",
	"gennrand_gamma":       "gennrandGamma(&%s, %s)",
	"gennrand_binomial":    "gennrandBinomial(&%s, %s, %s)",
}

// gennRandArity gives the number of extra arguments (beyond the RNG state
// itself) each gennrand_* primitive takes, so the generator package can
// register a function substitution of the right arity for each.
var gennRandArity = map[string]int{
	"gennrand_uniform":     0,
	"gennrand_normal":      0,
	"gennrand_exponential": 0,
	"gennrand_log_normal":  2,
	"gennrand_gamma":       1,
	"gennrand_binomial":    2,
}

// RandNames implements backend.Backend.RandNames.
func (b *Backend) RandNames() map[string]int {
	out := make(map[string]int, len(gennRandArity))
	for k, v := range gennRandArity {
		out[k] = v
	}
	return out
}

// GennRandCall returns the textual expansion for a gennrand_* primitive
// given its RNG state variable and any extra arguments the primitive
// takes (mean/std for log_normal, shape for gamma, n/p for binomial).
func GennRandCall(name, rngVar string, args ...string) (string, error) {
	tmpl, ok := rngCall[name]
	if !ok {
		return "", fmt.Errorf("refcuda: unknown RNG primitive %q", name)
	}
	vals := make([]any, 0, 1+len(args))
	vals = append(vals, rngVar)
	for _, a := range args {
		vals = append(vals, a)
	}
	return fmt.Sprintf(tmpl, vals...), nil
}

// RandCall implements backend.Backend.RandCall by delegating to
// GennRandCall.
func (b *Backend) RandCall(name, rngVar string, args ...string) (string, error) {
	return GennRandCall(name, rngVar, args...)
}

// RNGVarRef implements backend.Backend.RNGVarRef: the per-element RNG
// state AllocatePopRNG declared for popName, indexed by the enclosing
// parallel dispatch's local id. rngCall's templates take the address of
// this reference themselves (e.g. "curand_uniform(&%s)").
func (b *Backend) RNGVarRef(popName string) string {
	return fmt.Sprintf("%s%s_rng[lid]", b.varPrefix, popName)
}

// rngStateType is the CUDA device RNG state type, one per addressable
// stream.
const rngStateType = "curandState"
