// Copyright (c) 2022, The GoKi Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package strategy implements the presynaptic update strategies (spec
// section 4.4): the three ways a synapse group's update may be dispatched
// across threads, chosen by the first compatible strategy in a fixed
// order. There is no teacher analogue for this dispatch -- emer-gosl
// never selects among update strategies -- so these types are written
// directly against the spec's own compatibility/threads/stride table, in
// the teacher's small-struct-with-methods idiom (model.NeuronGroup,
// model.SynapseGroup).
package strategy

import (
	"github.com/gennsim/genncore/backend"
	"github.com/gennsim/genncore/model"
)

// Strategy is one presynaptic update dispatch scheme.
type Strategy interface {
	// Name identifies the strategy for diagnostics.
	Name() string
	// IsCompatible reports whether this strategy may handle sg.
	IsCompatible(sg *model.SynapseGroup) bool
	// NumThreads is the thread count this strategy dispatches sg's update
	// over.
	NumThreads(sg *model.SynapseGroup) int
	// RowStride is the per-thread row stride used when walking
	// connectivity.
	RowStride(sg *model.SynapseGroup) int
	// SharedMemoryPerThread is 1 if the small-population optimization
	// applies to sg on be, else 0.
	SharedMemoryPerThread(sg *model.SynapseGroup, be backend.Backend) int
	// GenPreamble declares any per-thread accumulator the update loop
	// needs (a dense register, a zeroed shared-memory slot, or nothing).
	GenPreamble(os *backend.Stream, sub *backend.Substitutions, sg *model.SynapseGroup, be backend.Backend)
	// GenUpdate emits the main per-spike loop, splicing in simCode (the
	// weight-update sim_code, already substituted) as the per-synapse
	// body.
	GenUpdate(os *backend.Stream, sub *backend.Substitutions, sg *model.SynapseGroup, be backend.Backend, simCode string)
	// GenPostamble flushes any accumulator GenPreamble declared into the
	// group's inSyn buffer.
	GenPostamble(os *backend.Stream, sub *backend.Substitutions, sg *model.SynapseGroup, be backend.Backend)
}

// ordered is the fixed selection order spec section 4.4 mandates:
// PreSpanProcedural, then PreSpan, then PostSpan.
var ordered = []Strategy{
	PreSpanProcedural{},
	PreSpan{},
	PostSpan{},
}

// Select returns the first compatible strategy for sg in the fixed
// PreSpanProcedural -> PreSpan -> PostSpan order. It always returns a
// non-nil strategy: PostSpan's compatibility test ("span is postsynaptic
// and connectivity is not procedural") is not exhaustive by itself, so
// callers that construct a SynapseGroup outside those three cases get
// PostSpan as the fallback, matching the teacher's habit of treating the
// last case in an ordered dispatch as the default.
func Select(sg *model.SynapseGroup) Strategy {
	for _, s := range ordered {
		if s.IsCompatible(sg) {
			return s
		}
	}
	return PostSpan{}
}

// usesRegisterAccumulator reports whether this synapse group's update
// accumulates into a per-thread dense register rather than inSyn
// directly -- true for dense connectivity with no dendritic delay
// requirement, the condition AddToInSyn checks to choose the
// "can accumulate in register" row of the dispatch table.
func usesRegisterAccumulator(sg *model.SynapseGroup) bool {
	return sg.MatrixConnectivity == model.MatrixDense && !sg.IsDendriticDelayRequired
}
