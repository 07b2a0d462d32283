// Copyright (c) 2022, The GoKi Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package model

import (
	"testing"

	"github.com/gennsim/genncore/snippet"
)

func lifSnippet() *snippet.Snippet {
	s := snippet.NewSnippet("LIF", snippet.KindNeuron)
	s.ParamNames = []string{"C", "TauM", "Vrest", "Vreset", "Vthresh"}
	s.Vars = []snippet.Var{{Name: "V", Type: "scalar", Access: snippet.ReadWrite}}
	s.Code = map[snippet.Role]string{
		snippet.RoleSim:       "$(V) += (DT / $(C)) * ($(Vrest) - $(V));",
		snippet.RoleThreshold: "$(V) >= $(Vthresh)",
		snippet.RoleReset:     "$(V) = $(Vreset);",
	}
	return s
}

func staticPulseSnippet() *snippet.Snippet {
	s := snippet.NewSnippet("StaticPulse", snippet.KindWeightUpdate)
	s.ParamNames = []string{"g"}
	s.Code = map[snippet.Role]string{
		snippet.RoleSim: "addToInSyn($(g));",
	}
	return s
}

func delayedPulseSnippet() *snippet.Snippet {
	s := snippet.NewSnippet("DelayedPulse", snippet.KindWeightUpdate)
	s.ParamNames = []string{"g"}
	s.Code = map[snippet.Role]string{
		snippet.RoleSim: "if ($(V_pre) > 0.0) { addToInSyn($(g)); }",
	}
	return s
}

func expCurrSnippet() *snippet.Snippet {
	s := snippet.NewSnippet("ExpCurr", snippet.KindPostsynaptic)
	s.ParamNames = []string{"tau"}
	s.Code = map[snippet.Role]string{
		snippet.RoleDecay: "$(inSyn) *= $(expDecay);",
	}
	return s
}

func newTestModel(t *testing.T) (*Model, *NeuronGroup) {
	t.Helper()
	m := NewModel("TestNet")
	lif := lifSnippet()
	ng, err := m.AddNeuronGroup("A", 16, lif, []float64{1.0, 20.0, -60.0, -70.0, -50.0}, -1)
	if err != nil {
		t.Fatalf("AddNeuronGroup: %v", err)
	}
	return m, ng
}

// TestFinalizeDelayWidening reproduces the delay-propagation scenario: a
// synapse group with delay_steps=3 whose weight-update code references
// $(V_pre) must widen its source population to 4 delay slots and mark V
// as needing a spike queue.
func TestFinalizeDelayWidening(t *testing.T) {
	m, a := newTestModel(t)
	b := mustAddNeuron(t, m, "B", 8)

	_, err := m.AddSynapseGroup("S", MatrixDense, WeightIndividual, 3, "A", "B",
		delayedPulseSnippet(), []float64{0.5}, nil, nil, nil)
	if err != nil {
		t.Fatalf("AddSynapseGroup: %v", err)
	}

	if err := m.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	if a.NumDelaySlots != 4 {
		t.Errorf("A.NumDelaySlots = %d, want 4", a.NumDelaySlots)
	}
	if !a.IsQueueRequired["V"] {
		t.Errorf("A.IsQueueRequired[V] = false, want true")
	}
	if b.NumDelaySlots != 1 {
		t.Errorf("B.NumDelaySlots = %d, want 1 (untouched)", b.NumDelaySlots)
	}
}

func mustAddNeuron(t *testing.T, m *Model, name string, count int) *NeuronGroup {
	t.Helper()
	ng, err := m.AddNeuronGroup(name, count, lifSnippet(), []float64{1.0, 20.0, -60.0, -70.0, -50.0}, -1)
	if err != nil {
		t.Fatalf("AddNeuronGroup(%s): %v", name, err)
	}
	return ng
}

func TestFinalizeIsIdempotent(t *testing.T) {
	m, a := newTestModel(t)
	b := mustAddNeuron(t, m, "B", 8)
	if _, err := m.AddSynapseGroup("S", MatrixDense, WeightIndividual, 2, "A", "B",
		delayedPulseSnippet(), []float64{0.5}, nil, nil, nil); err != nil {
		t.Fatalf("AddSynapseGroup: %v", err)
	}
	if err := m.Finalize(); err != nil {
		t.Fatalf("first Finalize: %v", err)
	}
	firstSlots, firstQueue := a.NumDelaySlots, a.IsQueueRequired["V"]
	if err := m.Finalize(); err != nil {
		t.Fatalf("second Finalize: %v", err)
	}
	if a.NumDelaySlots != firstSlots || a.IsQueueRequired["V"] != firstQueue {
		t.Errorf("Finalize is not idempotent: got (%d,%v), want (%d,%v)",
			a.NumDelaySlots, a.IsQueueRequired["V"], firstSlots, firstQueue)
	}
	_ = b
}

func TestFinalizeMergesCompatiblePostsynapticModels(t *testing.T) {
	m, _ := newTestModel(t)
	b := mustAddNeuron(t, m, "B", 8)
	psm := expCurrSnippet()
	if _, err := m.AddSynapseGroup("S1", MatrixDense, WeightIndividual, 0, "A", "B",
		staticPulseSnippet(), []float64{0.1}, psm, []float64{5.0}, nil); err != nil {
		t.Fatalf("AddSynapseGroup S1: %v", err)
	}
	if _, err := m.AddSynapseGroup("S2", MatrixDense, WeightIndividual, 0, "A", "B",
		staticPulseSnippet(), []float64{0.2}, psm, []float64{5.0}, nil); err != nil {
		t.Fatalf("AddSynapseGroup S2: %v", err)
	}
	if err := m.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if len(b.MergedInSynGroups) != 1 || len(b.MergedInSynGroups[0]) != 2 {
		t.Fatalf("expected S1 and S2 merged into one group, got %v", b.MergedInSynGroups)
	}
	s1, _ := m.SynapseGroups().Get("S1")
	s2, _ := m.SynapseGroups().Get("S2")
	if !s1.IsPSModelMerged || !s2.IsPSModelMerged {
		t.Errorf("expected both S1 and S2 marked IsPSModelMerged")
	}
}

func TestFinalizeMergeDisabledStillPartitions(t *testing.T) {
	m, _ := newTestModel(t)
	m.SetMergePostsynapticModels(false)
	b := mustAddNeuron(t, m, "B", 8)
	psm := expCurrSnippet()
	if _, err := m.AddSynapseGroup("S1", MatrixDense, WeightIndividual, 0, "A", "B",
		staticPulseSnippet(), []float64{0.1}, psm, []float64{5.0}, nil); err != nil {
		t.Fatalf("AddSynapseGroup S1: %v", err)
	}
	if _, err := m.AddSynapseGroup("S2", MatrixDense, WeightIndividual, 0, "A", "B",
		staticPulseSnippet(), []float64{0.2}, psm, []float64{5.0}, nil); err != nil {
		t.Fatalf("AddSynapseGroup S2: %v", err)
	}
	if err := m.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if len(b.MergedInSynGroups) != 2 || len(b.MergedInSynGroups[0]) != 1 || len(b.MergedInSynGroups[1]) != 1 {
		t.Fatalf("expected two singleton batches with merging off, got %v", b.MergedInSynGroups)
	}
	s1, _ := m.SynapseGroups().Get("S1")
	s2, _ := m.SynapseGroups().Get("S2")
	if s1.IsPSModelMerged || s2.IsPSModelMerged {
		t.Errorf("no group should be marked IsPSModelMerged with merging off")
	}
}

func TestAddSynapseGroupRejectsUnknownTarget(t *testing.T) {
	m, _ := newTestModel(t)
	if _, err := m.AddSynapseGroup("S", MatrixDense, WeightIndividual, 0, "A", "Ghost",
		staticPulseSnippet(), []float64{0.1}, nil, nil, nil); err == nil {
		t.Fatalf("expected error for unknown target neuron group")
	}
	if m.SynapseGroups().Len() != 0 {
		t.Errorf("rejected synapse group should not be registered")
	}
}

func TestAddNeuronGroupRejectsDuplicateName(t *testing.T) {
	m, _ := newTestModel(t)
	if _, err := m.AddNeuronGroup("A", 4, lifSnippet(), []float64{1.0, 20.0, -60.0, -70.0, -50.0}, -1); err == nil {
		t.Fatalf("expected duplicate-name error")
	}
}

func TestAddNeuronGroupRejectsWrongParamCount(t *testing.T) {
	m := NewModel("TestNet")
	if _, err := m.AddNeuronGroup("A", 4, lifSnippet(), []float64{1.0}, -1); err == nil {
		t.Fatalf("expected param-count error")
	}
}

func TestAddSynapseGroupRejectsProceduralWithIndividualWeights(t *testing.T) {
	m, _ := newTestModel(t)
	mustAddNeuron(t, m, "B", 8)
	if _, err := m.AddSynapseGroup("S", MatrixProcedural, WeightIndividual, 0, "A", "B",
		staticPulseSnippet(), []float64{0.1}, nil, nil, nil); err == nil {
		t.Fatalf("expected incompatible matrix/weight combination error")
	}
}

func TestCannotAddAfterFinalize(t *testing.T) {
	m, _ := newTestModel(t)
	if err := m.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if _, err := m.AddNeuronGroup("C", 4, lifSnippet(), []float64{1.0, 20.0, -60.0, -70.0, -50.0}, -1); err == nil {
		t.Fatalf("expected error adding neuron group after Finalize")
	}
}

func TestDerivedParamsComputed(t *testing.T) {
	m, a := newTestModel(t)
	a.Snip.DerivedParams = []snippet.DerivedParam{
		{Name: "ExpTC", Fn: func(params map[string]float64, dt float64) float64 {
			return dt / params["TauM"]
		}},
	}
	if err := m.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	want := m.DT() / 20.0
	if got := a.DerivedParams["ExpTC"]; got != want {
		t.Errorf("DerivedParams[ExpTC] = %v, want %v", got, want)
	}
}
