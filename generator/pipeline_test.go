// Copyright (c) 2022, The GoKi Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package generator

import (
	"bytes"
	"log"
	"strings"
	"testing"

	"github.com/gennsim/genncore/backend/refcuda"
	"github.com/gennsim/genncore/model"
	"github.com/gennsim/genncore/snippet"
	"github.com/gennsim/genncore/timer"
)

func lifSnippet() *snippet.Snippet {
	s := snippet.NewSnippet("LIF", snippet.KindNeuron)
	s.ParamNames = []string{"C", "TauM", "Vrest", "Vreset", "Vthresh"}
	s.Vars = []snippet.Var{{Name: "V", Type: "scalar", Access: snippet.ReadWrite}}
	s.Code = map[snippet.Role]string{
		snippet.RoleSim:       "$(V) += (DT / $(C)) * (($(Vrest) - $(V)) + Isyn);",
		snippet.RoleThreshold: "$(V) >= $(Vthresh)",
		snippet.RoleReset:     "$(V) = $(Vreset);",
	}
	return s
}

func vInitSnippet() *snippet.Snippet {
	s := snippet.NewSnippet("Const", snippet.KindVarInit)
	s.ParamNames = []string{"Lo", "Hi"}
	s.Code = map[snippet.Role]string{
		snippet.RoleVarInit: "$(value) = 0.5 * ($(Lo) + $(Hi));",
	}
	return s
}

func staticPulseSnippet() *snippet.Snippet {
	s := snippet.NewSnippet("StaticPulse", snippet.KindWeightUpdate)
	s.ParamNames = []string{"g"}
	s.Vars = []snippet.Var{{Name: "g", Type: "scalar", Access: snippet.ReadWrite}}
	s.Code = map[snippet.Role]string{
		snippet.RoleSim: "$(addToInSyn, $(g));",
	}
	return s
}

func expCurrSnippet() *snippet.Snippet {
	s := snippet.NewSnippet("ExpCurr", snippet.KindPostsynaptic)
	s.ParamNames = []string{"tau"}
	s.DerivedParams = []snippet.DerivedParam{
		{Name: "expDecay", Fn: func(p map[string]float64, dt float64) float64 { return 0.9 }},
	}
	s.Code = map[snippet.Role]string{
		snippet.RoleDecay: "$(inSyn) *= $(expDecay);",
	}
	return s
}

func dcCurrentSnippet() *snippet.Snippet {
	s := snippet.NewSnippet("DC", snippet.KindCurrentSource)
	s.ParamNames = []string{"amp"}
	s.Code = map[snippet.Role]string{
		snippet.RoleInjection: "$(injectCurrent, $(amp));",
	}
	return s
}

func rowBuildSnippet() *snippet.Snippet {
	s := snippet.NewSnippet("FixedDegree", snippet.KindConnectivityInit)
	s.Code = map[snippet.Role]string{
		snippet.RoleRowBuild: "$(addSynapse, 0); endRow",
	}
	return s
}

// buildTestModel assembles a small two-population network exercising
// every role the pipeline resolves: a dense individually-weighted synapse
// group with a merged postsynaptic decay, and an external current source.
func buildTestModel(t *testing.T) *model.Model {
	t.Helper()
	m := model.NewModel("Test")
	a, err := m.AddNeuronGroup("A", 16, lifSnippet(), []float64{1.0, 20.0, -60.0, -70.0, -50.0}, -1)
	if err != nil {
		t.Fatalf("AddNeuronGroup A: %v", err)
	}
	b, err := m.AddNeuronGroup("B", 8, lifSnippet(), []float64{1.0, 20.0, -60.0, -70.0, -50.0}, -1)
	if err != nil {
		t.Fatalf("AddNeuronGroup B: %v", err)
	}
	sg, err := m.AddSynapseGroup("S", model.MatrixDense, model.WeightIndividual, 0, "A", "B",
		staticPulseSnippet(), []float64{0.5}, expCurrSnippet(), []float64{5.0}, nil)
	if err != nil {
		t.Fatalf("AddSynapseGroup: %v", err)
	}
	sg.WUMVarInits["g"] = vInitSnippet()
	sg.WUMVarInitParams["g"] = []float64{0.0, 1.0}

	a.VarInits["V"] = vInitSnippet()
	a.VarInitParams["V"] = []float64{-70.0, -60.0}

	if _, err := m.AddCurrentSource("I", dcCurrentSnippet(), "B", []float64{0.1}); err != nil {
		t.Fatalf("AddCurrentSource: %v", err)
	}
	_ = b

	if err := m.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	return m
}

func TestGenerateNeuronUpdate(t *testing.T) {
	m := buildTestModel(t)
	be := refcuda.NewBackend(32, true)

	out, err := GenerateNeuronUpdate(m, be)
	if err != nil {
		t.Fatalf("GenerateNeuronUpdate: %v", err)
	}
	for _, want := range []string{"updateNeurons", "Isyn += ", "inSyn_S", "*= ", "if (", "spikeCount", "glbSpk_", "oldSpike_A", "rawThresh", "spike = rawThresh && !"} {
		if !strings.Contains(out, want) {
			t.Errorf("GenerateNeuronUpdate output missing %q\n%s", want, out)
		}
	}
	if strings.Contains(out, "$(") {
		t.Errorf("GenerateNeuronUpdate left unresolved placeholder:\n%s", out)
	}
}

func TestGenerateNeuronUpdateWarnsOnMissingThreshold(t *testing.T) {
	m := model.NewModel("NoSpike")
	s := snippet.NewSnippet("Passive", snippet.KindNeuron)
	s.ParamNames = []string{"tau"}
	s.Vars = []snippet.Var{{Name: "V", Type: "scalar", Access: snippet.ReadWrite}}
	s.Code = map[snippet.Role]string{
		snippet.RoleSim: "$(V) += Isyn / $(tau);",
	}
	if _, err := m.AddNeuronGroup("A", 4, s, []float64{10.0}, -1); err != nil {
		t.Fatalf("AddNeuronGroup: %v", err)
	}
	if err := m.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	be := refcuda.NewBackend(32, true)
	var logBuf bytes.Buffer
	prevLog := log.Writer()
	log.SetOutput(&logBuf)
	out, err := GenerateNeuronUpdate(m, be)
	log.SetOutput(prevLog)
	if err != nil {
		t.Fatalf("GenerateNeuronUpdate: %v", err)
	}
	if strings.Contains(out, "rawThresh") {
		t.Errorf("spike-free group should not emit a threshold test:\n%s", out)
	}
	if !strings.Contains(logBuf.String(), "has no threshold_code") {
		t.Errorf("missing threshold_code should log a warning, got %q", logBuf.String())
	}
}

func TestGenerateNeuronUpdateSpikeEvents(t *testing.T) {
	m := model.NewModel("Events")
	if _, err := m.AddNeuronGroup("A", 16, lifSnippet(), []float64{1.0, 20.0, -60.0, -70.0, -50.0}, -1); err != nil {
		t.Fatalf("AddNeuronGroup A: %v", err)
	}
	if _, err := m.AddNeuronGroup("B", 8, lifSnippet(), []float64{1.0, 20.0, -60.0, -70.0, -50.0}, -1); err != nil {
		t.Fatalf("AddNeuronGroup B: %v", err)
	}
	wum := snippet.NewSnippet("GradedPulse", snippet.KindWeightUpdate)
	wum.ParamNames = []string{"g", "Epre"}
	wum.Code = map[snippet.Role]string{
		snippet.RoleSim:            "$(addToInSyn, $(g));",
		snippet.RoleEventThreshold: "$(V_pre) > $(Epre)",
	}
	if _, err := m.AddSynapseGroup("S", model.MatrixDense, model.WeightGlobal, 0, "A", "B",
		wum, []float64{0.5, -30.0}, nil, nil, nil); err != nil {
		t.Fatalf("AddSynapseGroup: %v", err)
	}
	if err := m.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	be := refcuda.NewBackend(32, true)
	upd, err := GenerateNeuronUpdate(m, be)
	if err != nil {
		t.Fatalf("GenerateNeuronUpdate: %v", err)
	}
	// the event count is zeroed every step in preNeuronReset, before the
	// update kernel appends to glbSpkEvnt_
	for _, want := range []string{"spikeEventCountA = 0;", "glbSpkEvnt_A", "atomicAdd(&spikeEventCountA, 1)"} {
		if !strings.Contains(upd, want) {
			t.Errorf("spike-event neuron update missing %q\n%s", want, upd)
		}
	}
	if strings.Index(upd, "spikeEventCountA = 0;") > strings.Index(upd, "glbSpkEvnt_A") {
		t.Errorf("event count reset should be emitted in preNeuronReset, ahead of the update kernel:\n%s", upd)
	}
	ini, err := GenerateInit(m, be)
	if err != nil {
		t.Fatalf("GenerateInit: %v", err)
	}
	if !strings.Contains(ini, "spikeEventCountA = 0;") {
		t.Errorf("init should zero the spike-event count:\n%s", ini)
	}
}

func TestGenerateSynapseUpdate(t *testing.T) {
	m := buildTestModel(t)
	be := refcuda.NewBackend(32, true)

	out, err := GenerateSynapseUpdate(m, be)
	if err != nil {
		t.Fatalf("GenerateSynapseUpdate: %v", err)
	}
	if !strings.Contains(out, "updateSynapses") {
		t.Errorf("missing updateSynapses kernel:\n%s", out)
	}
	if strings.Contains(out, "$(") {
		t.Errorf("GenerateSynapseUpdate left unresolved placeholder:\n%s", out)
	}
}

func TestGenerateSynapseUpdateProcedural(t *testing.T) {
	m := model.NewModel("Procedural")
	a, err := m.AddNeuronGroup("A", 16, lifSnippet(), []float64{1.0, 20.0, -60.0, -70.0, -50.0}, -1)
	if err != nil {
		t.Fatalf("AddNeuronGroup A: %v", err)
	}
	_, err = m.AddNeuronGroup("B", 8, lifSnippet(), []float64{1.0, 20.0, -60.0, -70.0, -50.0}, -1)
	if err != nil {
		t.Fatalf("AddNeuronGroup B: %v", err)
	}
	wum := snippet.NewSnippet("ProcPulse", snippet.KindWeightUpdate)
	wum.ParamNames = []string{"g"}
	wum.Code = map[snippet.Role]string{snippet.RoleSim: "$(addToInSyn, $(g));"}
	if _, err := m.AddSynapseGroup("S", model.MatrixProcedural, model.WeightProcedural, 0, "A", "B",
		wum, []float64{0.3}, nil, nil, rowBuildSnippet()); err != nil {
		t.Fatalf("AddSynapseGroup: %v", err)
	}
	if err := m.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	be := refcuda.NewBackend(32, true)
	out, err := GenerateSynapseUpdate(m, be)
	if err != nil {
		t.Fatalf("GenerateSynapseUpdate: %v", err)
	}
	if !strings.Contains(out, "while (true)") && !strings.Contains(out, "for (") {
		t.Errorf("procedural strategy should drive the row-build loop somehow:\n%s", out)
	}
	if strings.Contains(out, "$(") {
		t.Errorf("GenerateSynapseUpdate left unresolved placeholder:\n%s", out)
	}
	_ = a
}

func TestGenerateInit(t *testing.T) {
	m := buildTestModel(t)
	be := refcuda.NewBackend(32, true)

	out, err := GenerateInit(m, be)
	if err != nil {
		t.Fatalf("GenerateInit: %v", err)
	}
	for _, want := range []string{"init", "spikeCountA = 0", "spkTime_A", "-TIME_MAX", "oldSpike_A"} {
		if !strings.Contains(out, want) {
			t.Errorf("GenerateInit output missing %q\n%s", want, out)
		}
	}
	if strings.Contains(out, "$(") {
		t.Errorf("GenerateInit left unresolved placeholder:\n%s", out)
	}
}

func TestGenerateInitSparseConnectivity(t *testing.T) {
	m := model.NewModel("Sparse")
	if _, err := m.AddNeuronGroup("A", 16, lifSnippet(), []float64{1.0, 20.0, -60.0, -70.0, -50.0}, -1); err != nil {
		t.Fatalf("AddNeuronGroup A: %v", err)
	}
	if _, err := m.AddNeuronGroup("B", 8, lifSnippet(), []float64{1.0, 20.0, -60.0, -70.0, -50.0}, -1); err != nil {
		t.Fatalf("AddNeuronGroup B: %v", err)
	}
	if _, err := m.AddSynapseGroup("S", model.MatrixSparse, model.WeightIndividual, 0, "A", "B",
		staticPulseSnippet(), []float64{0.5}, nil, nil, rowBuildSnippet()); err != nil {
		t.Fatalf("AddSynapseGroup: %v", err)
	}
	if err := m.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	be := refcuda.NewBackend(32, true)
	out, err := GenerateInit(m, be)
	if err != nil {
		t.Fatalf("GenerateInit: %v", err)
	}
	if !strings.Contains(out, "initializeSparse") {
		t.Errorf("missing initializeSparse pass:\n%s", out)
	}
	if !strings.Contains(out, "while (true)") {
		t.Errorf("missing row-build driver loop:\n%s", out)
	}
	if strings.Contains(out, "endRow") {
		t.Errorf("endRow placeholder should have resolved to break:\n%s", out)
	}
}

// TestGeneratePipelineTiming runs all three emitters repeatedly, each
// accumulating into its own timer.Time (the optional trailing argument
// every Generate* entry point takes), and asserts the result is sane. Not
// a performance regression check (spec §1 leaves runtime performance out
// of scope) -- it's here so the three emitters stay cheap enough not to
// be a surprise to a caller generating many models in one process.
func TestGeneratePipelineTiming(t *testing.T) {
	m := buildTestModel(t)
	be := refcuda.NewBackend(32, true)

	var neuronTm, synapseTm, initTm timer.Time
	for i := 0; i < 20; i++ {
		if _, err := GenerateNeuronUpdate(m, be, &neuronTm); err != nil {
			t.Fatalf("GenerateNeuronUpdate: %v", err)
		}
		if _, err := GenerateSynapseUpdate(m, be, &synapseTm); err != nil {
			t.Fatalf("GenerateSynapseUpdate: %v", err)
		}
		if _, err := GenerateInit(m, be, &initTm); err != nil {
			t.Fatalf("GenerateInit: %v", err)
		}
	}
	for _, tm := range []*timer.Time{&neuronTm, &synapseTm, &initTm} {
		if tm.N != 20 {
			t.Fatalf("expected 20 timed iterations, got %d", tm.N)
		}
		if tm.AvgMSecs() > 50 {
			t.Errorf("generator pipeline average %fms/iteration looks too slow for a text-emission pass", tm.AvgMSecs())
		}
	}
}

func TestGenerateNeuronUpdateRejectsUnfinalized(t *testing.T) {
	m := model.NewModel("Unfinalized")
	if _, err := m.AddNeuronGroup("A", 4, lifSnippet(), []float64{1.0, 20.0, -60.0, -70.0, -50.0}, -1); err != nil {
		t.Fatalf("AddNeuronGroup: %v", err)
	}
	be := refcuda.NewBackend(32, true)
	if _, err := GenerateNeuronUpdate(m, be); err == nil {
		t.Fatalf("expected error generating from an unfinalized model")
	}
}
