// Copyright (c) 2022, The GoKi Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package strategy

import (
	"github.com/gennsim/genncore/backend"
	"github.com/gennsim/genncore/model"
)

// PreSpan is compatible when the group's span is presynaptic and its
// connectivity is stored sparsely; it emits a per-spike loop that reads
// rowLength[pre_idx] and walks the stored row.
type PreSpan struct{}

func (PreSpan) Name() string { return "PreSpan" }

func (PreSpan) IsCompatible(sg *model.SynapseGroup) bool {
	return sg.Span == model.SpanPresynaptic && sg.MatrixConnectivity == model.MatrixSparse
}

func (PreSpan) NumThreads(sg *model.SynapseGroup) int {
	return sg.NumSrc() * sg.ThreadsPerSpike
}

func (PreSpan) RowStride(sg *model.SynapseGroup) int {
	return (sg.MaxConnections + sg.ThreadsPerSpike - 1) / sg.ThreadsPerSpike
}

func (PreSpan) SharedMemoryPerThread(sg *model.SynapseGroup, be backend.Backend) int {
	if be.SupportsNativeSharedAtomics() && sg.SharedMemApplies(be.BlockSize()) {
		return 1
	}
	return 0
}

func (s PreSpan) GenPreamble(os *backend.Stream, sub *backend.Substitutions, sg *model.SynapseGroup, be backend.Backend) {
	if usesRegisterAccumulator(sg) {
		os.Line("scalar linSyn = 0;")
	}
	if s.SharedMemoryPerThread(sg, be) == 1 {
		os.Line("if (threadIdx.x == 0) shLg[0] = 0;")
		os.Line("__syncthreads();")
	}
}

func (s PreSpan) GenUpdate(os *backend.Stream, sub *backend.Substitutions, sg *model.SynapseGroup, be backend.Backend, simCode string) {
	os.Printf("for (unsigned int spk = 0; spk < numSpikesPre; spk++) {")
	os.Indent()
	os.Printf("const unsigned int pre_idx = spikePre[spk];")
	os.Printf("const unsigned int row_len = rowLength[pre_idx];")
	os.Printf("const unsigned int stride = %d;", s.RowStride(sg))
	os.Line("if (threadIdx.x < row_len) {")
	os.Indent()
	os.Raw(simCode)
	os.Line("")
	os.Dedent()
	os.Line("}")
	os.Dedent()
	os.Line("}")
}

func (s PreSpan) GenPostamble(os *backend.Stream, sub *backend.Substitutions, sg *model.SynapseGroup, be backend.Backend) {
	if usesRegisterAccumulator(sg) {
		atomic := "linSyn"
		os.Printf("inSyn[post] += %s;", atomic)
	}
	if s.SharedMemoryPerThread(sg, be) == 1 {
		os.Line("__syncthreads();")
		os.Line("if (threadIdx.x == 0) inSyn[post] += shLg[0];")
	}
}
