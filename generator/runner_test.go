// Copyright (c) 2022, The GoKi Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package generator

import (
	"strings"
	"testing"

	"github.com/gennsim/genncore/backend/refcuda"
	"github.com/gennsim/genncore/model"
	"github.com/gennsim/genncore/precision"
	"github.com/gennsim/genncore/snippet"
)

func TestGenerateDefinitions(t *testing.T) {
	m := buildTestModel(t)
	be := refcuda.NewBackend(32, true)

	out, err := GenerateDefinitions(m, be)
	if err != nil {
		t.Fatalf("GenerateDefinitions: %v", err)
	}
	for _, want := range []string{
		"typedef float scalar;",
		"typedef float timepoint;",
		"timepoint t;",
		"unsigned int spikeCountA;",
		"dd_V_A;",
		"dd_glbSpk_B;",
		"dd_inSyn_S;",
		"dd_g_S;",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("GenerateDefinitions output missing %q\n%s", want, out)
		}
	}
	if strings.Contains(out, "$(") {
		t.Errorf("GenerateDefinitions left unresolved placeholder:\n%s", out)
	}
}

func TestGenerateDefinitionsInternal(t *testing.T) {
	m := buildTestModel(t)
	be := refcuda.NewBackend(32, true)

	out, err := GenerateDefinitionsInternal(m, be)
	if err != nil {
		t.Fatalf("GenerateDefinitionsInternal: %v", err)
	}
	for _, want := range []string{
		"extern \"C\" __global__ void updateNeurons();",
		"extern \"C\" __global__ void updateSynapses();",
		"extern \"C\" __global__ void init();",
		"curandState* d_rng;",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("GenerateDefinitionsInternal output missing %q\n%s", want, out)
		}
	}
}

func TestGenerateRunner(t *testing.T) {
	m := buildTestModel(t)
	be := refcuda.NewBackend(32, true)

	out, err := GenerateRunner(m, be)
	if err != nil {
		t.Fatalf("GenerateRunner: %v", err)
	}
	for _, want := range []string{
		"void allocateMem() {",
		"cudaMalloc",
		"void pushAStateToDevice() {",
		"void pullAStateFromDevice() {",
		"void pushSStateToDevice() {",
		"void initialize() {",
		"void stepTime() {",
		"preNeuronReset<<<",
		"updateSynapses<<<",
		"updateNeurons<<<",
		"t += 0.1f;",
		"iT++;",
		"void freeMem() {",
		"cudaFree",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("GenerateRunner output missing %q\n%s", want, out)
		}
	}
	// synapse updates launch before the neuron updates that consume them
	if strings.Index(out, "updateSynapses<<<") > strings.Index(out, "updateNeurons<<<") {
		t.Errorf("stepTime launches updateNeurons before updateSynapses:\n%s", out)
	}
}

func TestGenerateRunnerTiming(t *testing.T) {
	m := buildTestModel(t)
	m.SetTiming(true)
	be := refcuda.NewBackend(32, true)

	defs, err := GenerateDefinitions(m, be)
	if err != nil {
		t.Fatalf("GenerateDefinitions: %v", err)
	}
	if !strings.Contains(defs, "cudaEventCreate(&updateNeuronsStart);") {
		t.Errorf("timing-enabled definitions missing timer declaration:\n%s", defs)
	}
	run, err := GenerateRunner(m, be)
	if err != nil {
		t.Fatalf("GenerateRunner: %v", err)
	}
	if !strings.Contains(run, "cudaEventRecord(updateNeuronsStart);") {
		t.Errorf("timing-enabled runner missing timer wrap:\n%s", run)
	}
}

func TestGenerateMakefile(t *testing.T) {
	m := buildTestModel(t)
	be := refcuda.NewBackend(32, true)

	out, err := GenerateMakefile(m, be)
	if err != nil {
		t.Fatalf("GenerateMakefile: %v", err)
	}
	for _, want := range []string{"NVCC", "updateNeurons.o: updateNeurons.cu", "init.o: init.cu"} {
		if !strings.Contains(out, want) {
			t.Errorf("GenerateMakefile output missing %q\n%s", want, out)
		}
	}
}

// TestGenerateRunnerEGP checks extra-global-parameter plumbing: one
// declaration in definitions, and push/pull functions in the runner.
func TestGenerateRunnerEGP(t *testing.T) {
	m := model.NewModel("EGP")
	s := snippet.NewSnippet("Stim", snippet.KindCurrentSource)
	s.ParamNames = []string{"scale"}
	s.ExtraGlobalPar = []snippet.EGP{{Name: "Iext", Type: "float*"}}
	s.Code = map[snippet.Role]string{
		snippet.RoleInjection: "$(injectCurrent, $(scale) * $(Iext)[lid]);",
	}
	if _, err := m.AddNeuronGroup("A", 4, lifSnippet(), []float64{1.0, 20.0, -60.0, -70.0, -50.0}, -1); err != nil {
		t.Fatalf("AddNeuronGroup: %v", err)
	}
	if _, err := m.AddCurrentSource("Stim", s, "A", []float64{2.0}); err != nil {
		t.Fatalf("AddCurrentSource: %v", err)
	}
	if err := m.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	be := refcuda.NewBackend(32, true)
	defs, err := GenerateDefinitions(m, be)
	if err != nil {
		t.Fatalf("GenerateDefinitions: %v", err)
	}
	if !strings.Contains(defs, "dd_Iext;") {
		t.Errorf("definitions missing EGP declaration:\n%s", defs)
	}
	run, err := GenerateRunner(m, be)
	if err != nil {
		t.Fatalf("GenerateRunner: %v", err)
	}
	for _, want := range []string{"void pushIextToDevice() {", "void pullIextFromDevice() {"} {
		if !strings.Contains(run, want) {
			t.Errorf("runner missing %q\n%s", want, run)
		}
	}
}

// TestGeneratorDeterminism re-runs every emitter on the same finalized
// model and requires byte-identical output (spec section 8: "two runs of
// the generator on the same finalized model produce byte-identical
// output").
func TestGeneratorDeterminism(t *testing.T) {
	m := buildTestModel(t)
	be := refcuda.NewBackend(32, true)

	type emitFn func() (string, error)
	all := map[string]emitFn{
		"neuron":      func() (string, error) { return GenerateNeuronUpdate(m, be) },
		"synapse":     func() (string, error) { return GenerateSynapseUpdate(m, be) },
		"init":        func() (string, error) { return GenerateInit(m, be) },
		"definitions": func() (string, error) { return GenerateDefinitions(m, be) },
		"internal":    func() (string, error) { return GenerateDefinitionsInternal(m, be) },
		"runner":      func() (string, error) { return GenerateRunner(m, be) },
		"makefile":    func() (string, error) { return GenerateMakefile(m, be) },
	}
	for name, emit := range all {
		first, err := emit()
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		for i := 0; i < 3; i++ {
			again, err := emit()
			if err != nil {
				t.Fatalf("%s rerun: %v", name, err)
			}
			if again != first {
				t.Errorf("%s output differs between runs", name)
			}
		}
	}
}

// TestDoublePrecisionCoercion checks the pipeline-level effect of
// ensure_ftype: with a double-precision model, an "f"-suffixed literal in
// user code is stripped and parameter literals carry no suffix.
func TestDoublePrecisionCoercion(t *testing.T) {
	m := model.NewModel("Dbl")
	m.SetPrecision(precision.Double)
	s := snippet.NewSnippet("Leak", snippet.KindNeuron)
	s.ParamNames = []string{"tau"}
	s.Vars = []snippet.Var{{Name: "V", Type: "scalar", Access: snippet.ReadWrite}}
	s.Code = map[snippet.Role]string{
		snippet.RoleSim:       "$(V) += 0.5f * expf(-1.0f / $(tau)) * Isyn;",
		snippet.RoleThreshold: "$(V) >= 1.0",
	}
	if _, err := m.AddNeuronGroup("A", 4, s, []float64{20.0}, -1); err != nil {
		t.Fatalf("AddNeuronGroup: %v", err)
	}
	if err := m.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	be := refcuda.NewBackend(32, true)
	out, err := GenerateNeuronUpdate(m, be)
	if err != nil {
		t.Fatalf("GenerateNeuronUpdate: %v", err)
	}
	for _, want := range []string{"0.5 * exp(-1.0 / 20.0)", "lV >= 1.0"} {
		if !strings.Contains(out, want) {
			t.Errorf("double-precision output missing %q\n%s", want, out)
		}
	}
	if strings.Contains(out, "0.5f") || strings.Contains(out, "expf") {
		t.Errorf("double-precision output kept single-precision forms:\n%s", out)
	}
}

// TestDelayedStateRunner exercises queue-required state end to end: a
// delayed synapse group referencing $(V_pre) widens the source group's
// state buffer and switches its transfers to the current-slot form.
func TestDelayedStateRunner(t *testing.T) {
	m := model.NewModel("Delayed")
	if _, err := m.AddNeuronGroup("A", 16, lifSnippet(), []float64{1.0, 20.0, -60.0, -70.0, -50.0}, -1); err != nil {
		t.Fatalf("AddNeuronGroup A: %v", err)
	}
	if _, err := m.AddNeuronGroup("B", 8, lifSnippet(), []float64{1.0, 20.0, -60.0, -70.0, -50.0}, -1); err != nil {
		t.Fatalf("AddNeuronGroup B: %v", err)
	}
	wum := snippet.NewSnippet("PrePulse", snippet.KindWeightUpdate)
	wum.ParamNames = []string{"g"}
	wum.Code = map[snippet.Role]string{snippet.RoleSim: "$(addToInSyn, $(g) * $(V_pre));"}
	if _, err := m.AddSynapseGroup("S", model.MatrixDense, model.WeightGlobal, 3, "A", "B",
		wum, []float64{0.5}, nil, nil, nil); err != nil {
		t.Fatalf("AddSynapseGroup: %v", err)
	}
	if err := m.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	a, _ := m.NeuronGroups().Get("A")
	if a.NumDelaySlots != 4 {
		t.Fatalf("expected 4 delay slots, got %d", a.NumDelaySlots)
	}
	if !a.IsQueueRequired["V"] {
		t.Fatalf("V should be queue-required after finalize")
	}

	be := refcuda.NewBackend(32, true)
	defs, err := GenerateDefinitions(m, be)
	if err != nil {
		t.Fatalf("GenerateDefinitions: %v", err)
	}
	if !strings.Contains(defs, "spkQuePtrA;") {
		t.Errorf("delayed group missing queue pointer declaration:\n%s", defs)
	}
	run, err := GenerateRunner(m, be)
	if err != nil {
		t.Fatalf("GenerateRunner: %v", err)
	}
	if !strings.Contains(run, "spkQuePtrA") {
		t.Errorf("queued variable should push/pull through the current delay slot:\n%s", run)
	}
	upd, err := GenerateNeuronUpdate(m, be)
	if err != nil {
		t.Fatalf("GenerateNeuronUpdate: %v", err)
	}
	for _, want := range []string{"readDelayOffset", "writeDelayOffset", "spkQuePtrA = (spkQuePtrA + 1) % 4;"} {
		if !strings.Contains(upd, want) {
			t.Errorf("delayed neuron update missing %q\n%s", want, upd)
		}
	}
}
