// Copyright (c) 2022, The GoKi Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package strategy

import (
	"github.com/gennsim/genncore/backend"
	"github.com/gennsim/genncore/model"
)

// PreSpanProcedural is compatible when connectivity is procedural and
// every weight variable has a global or procedural implementation; it
// invokes the connectivity initializer's row-build code per presynaptic
// spike with `add_synapse` bound to the weight-update sim code, rather
// than walking a stored row.
type PreSpanProcedural struct{}

func (PreSpanProcedural) Name() string { return "PreSpanProcedural" }

func (PreSpanProcedural) IsCompatible(sg *model.SynapseGroup) bool {
	return sg.IsProcedural() && sg.IsWeightGlobalOrProcedural()
}

func (PreSpanProcedural) NumThreads(sg *model.SynapseGroup) int {
	return sg.NumSrc() * sg.ThreadsPerSpike
}

func (PreSpanProcedural) RowStride(sg *model.SynapseGroup) int {
	return (sg.NumTrg() + sg.ThreadsPerSpike - 1) / sg.ThreadsPerSpike
}

func (PreSpanProcedural) SharedMemoryPerThread(sg *model.SynapseGroup, be backend.Backend) int {
	if be.SupportsNativeSharedAtomics() && sg.SharedMemApplies(be.BlockSize()) {
		return 1
	}
	return 0
}

func (PreSpanProcedural) GenPreamble(os *backend.Stream, sub *backend.Substitutions, sg *model.SynapseGroup, be backend.Backend) {
	os.Printf("// %s: procedural connectivity, no stored row to prime", sg.Name)
}

func (s PreSpanProcedural) GenUpdate(os *backend.Stream, sub *backend.Substitutions, sg *model.SynapseGroup, be backend.Backend, simCode string) {
	os.Printf("for (unsigned int spk = 0; spk < numSpikesPre; spk++) {")
	os.Indent()
	os.Printf("const unsigned int pre_idx = spikePre[spk];")
	os.Printf("const unsigned int post = threadIdx.x %% %d;", s.RowStride(sg))
	os.Line("// invoke connectivity initializer row_build code, add_synapse bound to:")
	os.Raw(simCode)
	os.Line("")
	os.Dedent()
	os.Line("}")
}

func (PreSpanProcedural) GenPostamble(os *backend.Stream, sub *backend.Substitutions, sg *model.SynapseGroup, be backend.Backend) {
}
