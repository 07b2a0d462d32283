// Copyright (c) 2022, The GoKi Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package refcuda is the reference backend: the CUDA-equivalent
// implementation of the backend.Backend capability set, chosen as the
// reference pattern per the open question on the OpenCL backend's
// incomplete stub methods. Device-buffer bookkeeping, when a live
// compute system is attached, is built directly on goki.dev/vgpu/v2's
// Vars/Sets abstraction -- the same Uniform-vs-Storage distinction and
// AddStruct/ConfigVals/RunComputeWait(n,1,1) conventions the teacher
// uses in examples/axon/main.go -- so that generated code and the
// runtime buffer layout a caller allocates to load it stay in lock step.
package refcuda

import (
	"goki.dev/vgpu/v2/vgpu"

	"github.com/gennsim/genncore/backend"
	"github.com/gennsim/genncore/model"
	"github.com/gennsim/genncore/precision"
)

// Backend implements backend.Backend by emitting CUDA C text and,
// optionally, mirroring every declared variable into an attached vgpu
// compute system's Vars/Sets so a caller can actually load and run the
// generated kernels (spec's Non-goal is running the simulation, not
// refusing to describe a loadable buffer layout for one).
type Backend struct {
	blockSize     int
	sharedAtomics bool
	varPrefix     string

	sys        *vgpu.System
	uniformSet *vgpu.VarSet
	storageSet *vgpu.VarSet
	registered map[string]bool
}

// NewBackend returns a reference CUDA backend padding groups to
// blockSize threads, offering native shared-memory atomics if
// sharedAtomics is true.
func NewBackend(blockSize int, sharedAtomics bool) *Backend {
	return &Backend{
		blockSize:     blockSize,
		sharedAtomics: sharedAtomics,
		varPrefix:     "dd_",
		registered:    map[string]bool{},
	}
}

// AttachSystem wires this backend's device-buffer bookkeeping to a live
// vgpu compute system: subsequent DeclareVar and AllocateEGP calls
// register a matching vgpu.Var in sys's uniform or storage set, in
// addition to emitting their CUDA text (DeclareEGP registers nothing). Safe to call once per Backend; a
// Backend with no attached system still emits correct text, it just
// tracks no runtime buffer layout.
func (b *Backend) AttachSystem(sys *vgpu.System) {
	b.sys = sys
	vars := sys.Vars()
	b.uniformSet = vars.AddSet()
	b.storageSet = vars.AddSet()
}

func (b *Backend) Name() string { return "refcuda" }

func (b *Backend) GetVarPrefix() string { return b.varPrefix }

func (b *Backend) BlockSize() int { return b.blockSize }

func (b *Backend) SupportsNativeSharedAtomics() bool { return b.sharedAtomics }

func (b *Backend) registerDeviceVar(name, ctype string, count int, uniform bool) {
	if b.sys == nil || b.registered[name] {
		return
	}
	sz := sizeOf(ctype)
	if sz == 0 {
		sz = 4
	}
	set := b.storageSet
	kind := vgpu.Storage
	if uniform {
		set = b.uniformSet
		kind = vgpu.Uniform
	}
	set.AddStruct(name, sz, count, kind, vgpu.ComputeShader)
	b.registered[name] = true
}

func (b *Backend) DeclareVar(os *backend.Stream, name, ctype string, count int, loc model.VarLocation) {
	if loc.HasHost() {
		os.Printf("%s* %s;", ctype, name)
	}
	if loc.HasDevice() {
		os.Printf("%s* %s%s;", ctype, b.varPrefix, name)
	}
	b.registerDeviceVar(name, ctype, count, count == 1)
}

func (b *Backend) AllocateVar(os *backend.Stream, name, ctype string, count int, loc model.VarLocation) {
	if loc.HasHost() {
		os.Printf("%s = (%s*)malloc(%d * sizeof(%s));", name, ctype, count, ctype)
	}
	if loc.HasDevice() {
		os.Printf("cudaMalloc((void**)&%s%s, %d * sizeof(%s));", b.varPrefix, name, count, ctype)
	}
}

func (b *Backend) FreeVar(os *backend.Stream, name string, loc model.VarLocation) {
	if loc.HasHost() {
		os.Printf("free(%s);", name)
	}
	if loc.HasDevice() {
		os.Printf("cudaFree(%s%s);", b.varPrefix, name)
	}
}

func (b *Backend) DeclareEGP(os *backend.Stream, name, ctype string) {
	os.Printf("%s %s;", ctype, name)
	os.Printf("%s* %s%s;", ctype, b.varPrefix, name)
}

func (b *Backend) AllocateEGP(os *backend.Stream, name, ctype string) {
	os.Printf("cudaMalloc((void**)&%s%s, sizeof(%s));", b.varPrefix, name, ctype)
	b.registerDeviceVar(name, ctype, 1, true)
}

func (b *Backend) PushEGP(os *backend.Stream, name string) {
	os.Printf("cudaMemcpy(%s%s, &%s, sizeof(%s), cudaMemcpyHostToDevice);", b.varPrefix, name, name, name)
}

func (b *Backend) PullEGP(os *backend.Stream, name string) {
	os.Printf("cudaMemcpy(&%s, %s%s, sizeof(%s), cudaMemcpyDeviceToHost);", name, b.varPrefix, name, name)
}

func (b *Backend) Push(os *backend.Stream, name string, count int, loc model.VarLocation) {
	if !loc.NeedsPushPull() {
		os.Printf("// %s is zero-copy or device-only: push is a no-op", name)
		return
	}
	os.Printf("cudaMemcpy(%s%s, %s, %d * sizeof(*%s), cudaMemcpyHostToDevice);", b.varPrefix, name, name, count, name)
}

func (b *Backend) Pull(os *backend.Stream, name string, count int, loc model.VarLocation) {
	if !loc.NeedsPushPull() {
		os.Printf("// %s is zero-copy or device-only: pull is a no-op", name)
		return
	}
	os.Printf("cudaMemcpy(%s, %s%s, %d * sizeof(*%s), cudaMemcpyDeviceToHost);", name, b.varPrefix, name, count, name)
}

func (b *Backend) CurrentVariablePush(os *backend.Stream, name, popName string, count int, loc model.VarLocation) {
	if !loc.NeedsPushPull() {
		return
	}
	os.Printf("cudaMemcpy(%s%s + spkQuePtr%s * %d, %s + spkQuePtr%s * %d, %d * sizeof(*%s), cudaMemcpyHostToDevice);",
		b.varPrefix, name, popName, count, name, popName, count, count, name)
}

func (b *Backend) CurrentVariablePull(os *backend.Stream, name, popName string, count int, loc model.VarLocation) {
	if !loc.NeedsPushPull() {
		return
	}
	os.Printf("cudaMemcpy(%s + spkQuePtr%s * %d, %s%s + spkQuePtr%s * %d, %d * sizeof(*%s), cudaMemcpyDeviceToHost);",
		name, popName, count, b.varPrefix, name, popName, count, count, name)
}

func (b *Backend) GenParallelGroup(os *backend.Stream, sub *backend.Substitutions, groupNames []string, threadCount func(name string) int, handler backend.GroupHandler) {
	total := 0
	starts := make(map[string]int, len(groupNames))
	for _, n := range groupNames {
		starts[n] = total
		total += padToBlock(threadCount(n), b.blockSize)
	}
	os.Printf("const unsigned int id = blockIdx.x * blockDim.x + threadIdx.x;")
	os.Printf("if (id >= %d) return;", total)
	for _, n := range groupNames {
		os.Printf("if (id >= %d && id < %d) {", starts[n], starts[n]+padToBlock(threadCount(n), b.blockSize))
		os.Indent()
		os.Printf("const unsigned int lid = id - %d;", starts[n])
		handler(os, sub, n, "lid")
		os.Dedent()
		os.Line("}")
	}
}

func padToBlock(n, block int) int {
	if block <= 0 {
		return n
	}
	if n%block == 0 {
		return n
	}
	return (n/block + 1) * block
}

func (b *Backend) GenPopVariableInit(os *backend.Stream, sub *backend.Substitutions, handler backend.InitHandler) {
	os.Printf("if (lid == 0) {")
	os.Indent()
	handler(os, sub)
	os.Dedent()
	os.Line("}")
}

func (b *Backend) GenVariableInit(os *backend.Stream, sub *backend.Substitutions, count int, countVar string, handler backend.InitHandler) {
	os.Printf("if (lid < %s) {", countVar)
	os.Indent()
	handler(os, sub)
	os.Dedent()
	os.Line("}")
	_ = count
}

func (b *Backend) GenSynapseVariableRowInit(os *backend.Stream, sub *backend.Substitutions, sg *model.SynapseGroup, handler backend.InitHandler) {
	os.Printf("// row init for synapse group %s", sg.Name)
	handler(os, sub)
}

func (b *Backend) FloatAtomicAdd(prec precision.FType) string {
	if prec.IsSingle() {
		return "atomicAdd"
	}
	return "atomicAddDouble"
}

func (b *Backend) DeclareRNG(os *backend.Stream) {
	os.Printf("%s* d_rng;", rngStateType)
}

func (b *Backend) DeclarePopRNG(os *backend.Stream, popName string) {
	os.Printf("%s* %s%s_rng;", rngStateType, b.varPrefix, popName)
}

func (b *Backend) AllocateRNG(os *backend.Stream) {
	os.Printf("cudaMalloc((void**)&d_rng, sizeof(%s));", rngStateType)
}

func (b *Backend) AllocatePopRNG(os *backend.Stream, popName string, count int) {
	os.Printf("cudaMalloc((void**)&%s%s_rng, %d * sizeof(%s));", b.varPrefix, popName, count, rngStateType)
}

func (b *Backend) GenKernelPrototype(os *backend.Stream, kernelName string) {
	os.Printf("extern \"C\" __global__ void %s();", kernelName)
}

func (b *Backend) GenKernelLaunch(os *backend.Stream, kernelName string, totalThreads int) {
	grid := padToBlock(totalThreads, b.blockSize) / b.blockSize
	if grid < 1 {
		grid = 1
	}
	os.Printf("%s<<<%d, %d>>>();", kernelName, grid, b.blockSize)
}

func (b *Backend) GenKernelPreamble(os *backend.Stream, kernelName string) {
	os.Printf("extern \"C\" __global__ void %s() {", kernelName)
	os.Indent()
}

func (b *Backend) GenKernelPostamble(os *backend.Stream, kernelName string) {
	os.Dedent()
	os.Printf("} // %s", kernelName)
	os.Line("")
}

func (b *Backend) GenMakefile(os *backend.Stream, kernelNames []string) {
	os.Line("NVCC := nvcc")
	os.Line("NVCCFLAGS := -arch=sm_60 -std=c++14")
	for _, k := range kernelNames {
		os.Printf("%s.o: %s.cu", k, k)
		os.Printf("\t$(NVCC) $(NVCCFLAGS) -c $< -o $@")
	}
}

func (b *Backend) GenTimerDecl(os *backend.Stream, kernelName string) {
	os.Printf("cudaEvent_t %sStart, %sStop;", kernelName, kernelName)
	os.Printf("cudaEventCreate(&%sStart);", kernelName)
	os.Printf("cudaEventCreate(&%sStop);", kernelName)
}

func (b *Backend) GenTimerCode(os *backend.Stream, kernelName string, body func(os *backend.Stream)) {
	os.Printf("cudaEventRecord(%sStart);", kernelName)
	body(os)
	os.Printf("cudaEventRecord(%sStop);", kernelName)
}
