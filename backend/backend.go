// Copyright (c) 2022, The GoKi Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package backend

import (
	"github.com/gennsim/genncore/model"
	"github.com/gennsim/genncore/precision"
	"github.com/gennsim/genncore/snippet"
)

// GroupHandler is invoked once per group by GenParallelGroup, receiving
// the stream to emit the group's body into, the caller's Substitutions
// stack (passed through as given; the handler binds any per-group frames
// itself), the group's name, and the name of the group-local thread id
// variable.
type GroupHandler func(os *Stream, sub *Substitutions, groupName string, localID string)

// InitHandler is invoked by the per-population/per-element/per-row init
// emitters to fill in the body of an initializer block.
type InitHandler func(os *Stream, sub *Substitutions)

// Backend is the capability set the generator pipeline requires from a
// target (spec section 4.3). It is not responsible for the content of
// user snippets -- only the scaffolding emitted around them. Grounded on
// the capability surface implicit in the teacher's vgpu wiring
// (examples/axon/main.go: Vars/Sets, Uniform vs Storage, push/pull,
// RunComputeWait), generalized from one fixed compute pipeline to an
// arbitrary named variable/kernel set.
type Backend interface {
	// Name identifies the backend, used in diagnostics and generated
	// filenames.
	Name() string

	// DeclareVar emits a declaration for a variable of the given type and
	// count at the given location. loc may span host, device and
	// zero-copy residency simultaneously.
	DeclareVar(os *Stream, name, ctype string, count int, loc model.VarLocation)
	// AllocateVar emits the allocation call(s) implied by loc.
	AllocateVar(os *Stream, name, ctype string, count int, loc model.VarLocation)
	// FreeVar emits the matching deallocation.
	FreeVar(os *Stream, name string, loc model.VarLocation)

	// DeclareEGP, AllocateEGP, PushEGP, PullEGP mirror the Declare/
	// Allocate/Push/Pull variable operations for an extra global
	// parameter, whose count is supplied at runtime rather than baked
	// into the declaration.
	DeclareEGP(os *Stream, name, ctype string)
	AllocateEGP(os *Stream, name, ctype string)
	PushEGP(os *Stream, name string)
	PullEGP(os *Stream, name string)

	// Push and Pull emit a host<->device transfer for count elements of a
	// variable, honoring zero-copy bypass (no-op when loc.IsZeroCopy()).
	Push(os *Stream, name string, count int, loc model.VarLocation)
	Pull(os *Stream, name string, count int, loc model.VarLocation)
	// CurrentVariablePush/Pull restrict the transfer to the current delay
	// slot of a queued variable, addressed through popName's queue
	// pointer. count is the per-slot element count.
	CurrentVariablePush(os *Stream, name, popName string, count int, loc model.VarLocation)
	CurrentVariablePull(os *Stream, name, popName string, count int, loc model.VarLocation)

	// GenParallelGroup emits the dispatch scaffolding for a collection of
	// groups, given a function mapping each group name to its local
	// thread count; it calls handler once per group with the local id
	// already bound within that group's slice of the flat thread space.
	// sub is the caller's Substitutions stack, constructed at the model's
	// precision, threaded through to every handler invocation.
	GenParallelGroup(os *Stream, sub *Substitutions, groupNames []string, threadCount func(name string) int, handler GroupHandler)
	// GenPopVariableInit emits a once-per-population initializer block,
	// guarded by "id == 0" on cooperative backends.
	GenPopVariableInit(os *Stream, sub *Substitutions, handler InitHandler)
	// GenVariableInit emits a per-element initializer over count elements
	// named by countVar, with id already bound by the enclosing parallel
	// dispatch.
	GenVariableInit(os *Stream, sub *Substitutions, count int, countVar string, handler InitHandler)
	// GenSynapseVariableRowInit emits per-element initialization for one
	// synapse group's row.
	GenSynapseVariableRowInit(os *Stream, sub *Substitutions, sg *model.SynapseGroup, handler InitHandler)

	// FloatAtomicAdd returns the textual invocation for an atomic
	// floating-point add on the target, e.g. "atomicAdd" on CUDA.
	FloatAtomicAdd(prec precision.FType) string
	// GetVarPrefix returns the prefix applied to device-resident symbols
	// (e.g. "dd_", empty on a CPU-only backend).
	GetVarPrefix() string

	// DeclareRNG and DeclarePopRNG emit the state declarations for the
	// global RNG stream and a per-population stream addressed by neuron
	// id; AllocateRNG and AllocatePopRNG emit the matching allocations.
	DeclareRNG(os *Stream)
	DeclarePopRNG(os *Stream, popName string)
	AllocateRNG(os *Stream)
	AllocatePopRNG(os *Stream, popName string, count int)
	// RNGVarRef returns the textual reference to a population's per-element
	// RNG state, to bind the reserved `$(rng)` placeholder against.
	RNGVarRef(popName string) string
	// RandCall returns the textual expansion of a gennrand_* primitive
	// (spec section 6) given its RNG state reference and any extra
	// arguments the primitive takes.
	RandCall(name, rngVar string, args ...string) (string, error)
	// RandNames lists the gennrand_* primitives this backend supports,
	// keyed by name with the number of extra arguments (beyond the RNG
	// state) each one takes.
	RandNames() map[string]int

	// GenKernelPrototype emits a forward declaration for a generated
	// kernel, for the definitions-internal artifact.
	GenKernelPrototype(os *Stream, kernelName string)
	// GenKernelLaunch emits the host-side dispatch of a generated kernel
	// over totalThreads threads, padded to the backend's block size.
	GenKernelLaunch(os *Stream, kernelName string, totalThreads int)
	// GenKernelPreamble and GenKernelPostamble emit backend boilerplate
	// that wraps every generated kernel (includes, barrier placement,
	// thread-id computation).
	GenKernelPreamble(os *Stream, kernelName string)
	GenKernelPostamble(os *Stream, kernelName string)
	// GenMakefile emits the build rules needed to turn generated source
	// into a loadable kernel/module.
	GenMakefile(os *Stream, kernelNames []string)
	// GenTimerDecl and GenTimerCode wire the profiling timer that wraps a
	// generated kernel invocation.
	GenTimerDecl(os *Stream, kernelName string)
	GenTimerCode(os *Stream, kernelName string, body func(os *Stream))

	// SupportsNativeSharedAtomics reports whether the small-population
	// optimization (strategy package) may use shared-memory atomics.
	SupportsNativeSharedAtomics() bool
	// BlockSize is the thread-block/workgroup size groups are padded to.
	BlockSize() int
}

// GroupLayoutChecker is an optional capability a Backend may implement
// when its per-group constant block has device layout rules (field types,
// alignment). The runner emitter type-asserts for it and rejects a group
// whose snippet cannot be laid out on the target.
type GroupLayoutChecker interface {
	CheckGroupLayout(snip *snippet.Snippet) error
}
