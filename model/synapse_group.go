// Copyright (c) 2022, The GoKi Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package model

import "github.com/gennsim/genncore/snippet"

// SynapseGroup is a named directed edge between two neuron groups (spec
// section 3), carrying a weight-update snippet and a postsynaptic
// snippet. Src and Trg are weak references into the owning Model's
// neuron group registry.
type SynapseGroup struct {
	Name string

	MatrixConnectivity MatrixConnectivity
	MatrixWeight       MatrixWeight
	DelaySteps         int
	BackPropDelaySteps int

	WUM       *snippet.Snippet
	WUMParams []float64
	// WUMVarInits/PreVarInits/PostVarInits mirror NeuronGroup.VarInits:
	// one initializer snippet per variable that needs a non-default
	// start value.
	WUMVarInits     map[string]*snippet.Snippet
	WUMPreVarInits  map[string]*snippet.Snippet
	WUMPostVarInits map[string]*snippet.Snippet
	// WUMVarInitParams gives the parameter values for each entry in
	// WUMVarInits, keyed the same way (mirrors NeuronGroup.VarInitParams).
	WUMVarInitParams map[string][]float64

	PSM              *snippet.Snippet
	PSMParams        []float64
	PSMVarInits      map[string]*snippet.Snippet
	PSMVarInitParams map[string][]float64

	ConnectivityInit *snippet.Snippet

	Src *NeuronGroup
	Trg *NeuronGroup

	MaxConnections  int
	Span            Span
	ThreadsPerSpike int

	// derived, set by Model.Finalize:
	WUMDerivedParams map[string]float64
	PSMDerivedParams map[string]float64

	IsDendriticDelayRequired       bool
	IsEventThresholdRetestRequired bool
	IsPSModelMerged                bool
}

// NewSynapseGroup constructs a SynapseGroup with defaults: presynaptic
// span, one thread per spike, and no dendritic delay.
func NewSynapseGroup(name string, matrixConn MatrixConnectivity, matrixWeight MatrixWeight, delaySteps int,
	src, trg *NeuronGroup, wum *snippet.Snippet, wumParams []float64,
	psm *snippet.Snippet, psmParams []float64, connInit *snippet.Snippet) *SynapseGroup {
	return &SynapseGroup{
		Name:               name,
		MatrixConnectivity: matrixConn,
		MatrixWeight:       matrixWeight,
		DelaySteps:         delaySteps,
		WUM:                wum,
		WUMParams:          wumParams,
		WUMVarInits:        map[string]*snippet.Snippet{},
		WUMPreVarInits:     map[string]*snippet.Snippet{},
		WUMPostVarInits:    map[string]*snippet.Snippet{},
		WUMVarInitParams:   map[string][]float64{},
		PSM:                psm,
		PSMParams:          psmParams,
		PSMVarInits:        map[string]*snippet.Snippet{},
		PSMVarInitParams:   map[string][]float64{},
		ConnectivityInit:   connInit,
		Src:                src,
		Trg:                trg,
		MaxConnections:     trg.Count,
		Span:               SpanPresynaptic,
		ThreadsPerSpike:    1,
		WUMDerivedParams:   map[string]float64{},
		PSMDerivedParams:   map[string]float64{},
	}
}

// IsProcedural reports whether this group's connectivity is regenerated
// on demand rather than stored.
func (sg *SynapseGroup) IsProcedural() bool {
	return sg.MatrixConnectivity == MatrixProcedural
}

// IsWeightGlobalOrProcedural reports whether every weight value is shared
// or re-derived, as opposed to individually stored per synapse -- the
// PreSpanProcedural compatibility test in spec section 4.4 needs this.
func (sg *SynapseGroup) IsWeightGlobalOrProcedural() bool {
	return sg.MatrixWeight == WeightGlobal || sg.MatrixWeight == WeightProcedural
}

// NumSrc is the number of presynaptic neurons, used for thread-count
// formulas.
func (sg *SynapseGroup) NumSrc() int { return sg.Src.Count }

// NumTrg is the number of postsynaptic neurons.
func (sg *SynapseGroup) NumTrg() int { return sg.Trg.Count }

// SharedMemApplies reports whether the "small population" optimization's
// non-device-capability conditions hold: no dendritic delay requirement
// and the target population fits in one thread block (spec section 4.4).
// The device-capability half of the test (native shared atomics) is the
// caller's to check against the chosen Backend.
func (sg *SynapseGroup) SharedMemApplies(blockSize int) bool {
	return !sg.IsDendriticDelayRequired && sg.NumTrg() <= blockSize
}
