// Copyright (c) 2022, The GoKi Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package strategy

import (
	"github.com/gennsim/genncore/backend"
	"github.com/gennsim/genncore/model"
)

// PostSpan is compatible when the group's span is postsynaptic and its
// connectivity is not procedural; it blocks spikes into shared memory
// and crosses them with one thread per postsynaptic index.
type PostSpan struct{}

func (PostSpan) Name() string { return "PostSpan" }

func (PostSpan) IsCompatible(sg *model.SynapseGroup) bool {
	return sg.Span == model.SpanPostsynaptic && sg.MatrixConnectivity != model.MatrixProcedural
}

func (PostSpan) NumThreads(sg *model.SynapseGroup) int {
	return sg.MaxConnections
}

func (PostSpan) RowStride(sg *model.SynapseGroup) int {
	return sg.MaxConnections
}

func (s PostSpan) SharedMemoryPerThread(sg *model.SynapseGroup, be backend.Backend) int {
	if be.SupportsNativeSharedAtomics() && sg.SharedMemApplies(be.BlockSize()) {
		return 1
	}
	return 0
}

func (s PostSpan) GenPreamble(os *backend.Stream, sub *backend.Substitutions, sg *model.SynapseGroup, be backend.Backend) {
	if usesRegisterAccumulator(sg) {
		os.Line("scalar linSyn = 0;")
	}
	if s.SharedMemoryPerThread(sg, be) == 1 {
		os.Line("__shared__ scalar shSpk[BLOCK_SIZE];")
	}
}

func (s PostSpan) GenUpdate(os *backend.Stream, sub *backend.Substitutions, sg *model.SynapseGroup, be backend.Backend, simCode string) {
	os.Printf("for (unsigned int spkBlk = 0; spkBlk < numSpikesPre; spkBlk += %d) {", be.BlockSize())
	os.Indent()
	os.Line("__syncthreads();")
	os.Line("if (threadIdx.x + spkBlk < numSpikesPre) shSpk[threadIdx.x] = spikePre[spkBlk + threadIdx.x];")
	os.Line("__syncthreads();")
	os.Printf("const unsigned int block_end = min(%d, numSpikesPre - spkBlk);", be.BlockSize())
	os.Line("for (unsigned int j = 0; j < block_end; j++) {")
	os.Indent()
	os.Line("const unsigned int pre_idx = shSpk[j];")
	os.Line("const unsigned int post = threadIdx.x;")
	os.Raw(simCode)
	os.Line("")
	os.Dedent()
	os.Line("}")
	os.Dedent()
	os.Line("}")
}

func (s PostSpan) GenPostamble(os *backend.Stream, sub *backend.Substitutions, sg *model.SynapseGroup, be backend.Backend) {
	if usesRegisterAccumulator(sg) {
		os.Line("inSyn[post] += linSyn;")
	}
}
