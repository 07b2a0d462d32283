// Copyright (c) 2022, The GoKi Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package model

import (
	"fmt"

	"github.com/gennsim/genncore/precision"
	"github.com/gennsim/genncore/snippet"
)

// Model is the registry of neuron groups, synapse groups and current
// sources (spec section 3, "Ownership & lifecycle"). The Model
// exclusively owns every NeuronGroup, SynapseGroup and CurrentSource;
// everything else holds weak references into it. Groups are created by
// Add* calls before Finalize; Finalize is called exactly once before code
// generation.
type Model struct {
	name     string
	prec     precision.FType
	timePrec *precision.FType // nil means "same as prec"
	dt       float64
	timing   bool
	seed     int64

	defaultVarLocation                VarLocation
	defaultEGPLocation                VarLocation
	defaultSparseConnectivityLocation VarLocation
	defaultNarrowSparseInd            bool
	mergePostsynapticModels           bool

	neurons  *OrderedRegistry[NeuronGroup]
	synapses *OrderedRegistry[SynapseGroup]
	currents *OrderedRegistry[CurrentSource]

	finalized bool
}

// NewModel constructs an empty Model with the spec's stated defaults:
// single precision, no separate time precision, dt=0.1, merging of
// postsynaptic models enabled (the common case), and host+device
// variable/EGP locations.
func NewModel(name string) *Model {
	return &Model{
		name:                              name,
		prec:                              precision.Single,
		dt:                                0.1,
		defaultVarLocation:                LocHostDevice,
		defaultEGPLocation:                LocHostDevice,
		defaultSparseConnectivityLocation: LocHostDevice,
		mergePostsynapticModels:           true,
		neurons:                           NewOrderedRegistry[NeuronGroup](),
		synapses:                          NewOrderedRegistry[SynapseGroup](),
		currents:                          NewOrderedRegistry[CurrentSource](),
	}
}

func (m *Model) Name() string               { return m.name }
func (m *Model) Precision() precision.FType { return m.prec }
func (m *Model) DT() float64                { return m.dt }
func (m *Model) Timing() bool               { return m.timing }
func (m *Model) Seed() int64                { return m.seed }
func (m *Model) Finalized() bool            { return m.finalized }

// TimePrecision returns the precision used for time values: the explicit
// time precision if SetTimePrecision was called, otherwise the model's
// main precision.
func (m *Model) TimePrecision() precision.FType {
	if m.timePrec != nil {
		return *m.timePrec
	}
	return m.prec
}

func (m *Model) SetName(name string)                              { m.name = name }
func (m *Model) SetPrecision(p precision.FType)                   { m.prec = p }
func (m *Model) SetTimePrecision(p precision.FType)               { m.timePrec = &p }
func (m *Model) SetDT(dt float64)                                 { m.dt = dt }
func (m *Model) SetTiming(on bool)                                { m.timing = on }
func (m *Model) SetSeed(seed int64)                               { m.seed = seed }
func (m *Model) SetDefaultVarLocation(l VarLocation)              { m.defaultVarLocation = l }
func (m *Model) SetDefaultExtraGlobalParamLocation(l VarLocation) { m.defaultEGPLocation = l }
func (m *Model) SetDefaultSparseConnectivityLocation(l VarLocation) {
	m.defaultSparseConnectivityLocation = l
}
func (m *Model) SetDefaultNarrowSparseInd(on bool)  { m.defaultNarrowSparseInd = on }
func (m *Model) SetMergePostsynapticModels(on bool) { m.mergePostsynapticModels = on }

func (m *Model) DefaultVarLocation() VarLocation              { return m.defaultVarLocation }
func (m *Model) DefaultExtraGlobalParamLocation() VarLocation { return m.defaultEGPLocation }
func (m *Model) DefaultSparseConnectivityLocation() VarLocation {
	return m.defaultSparseConnectivityLocation
}
func (m *Model) DefaultNarrowSparseInd() bool { return m.defaultNarrowSparseInd }

// NeuronGroups, SynapseGroups and CurrentSources expose the ordered
// registries for iteration by the generator pipeline (spec section 5:
// stable iteration order is required for deterministic output).
func (m *Model) NeuronGroups() *OrderedRegistry[NeuronGroup]     { return m.neurons }
func (m *Model) SynapseGroups() *OrderedRegistry[SynapseGroup]   { return m.synapses }
func (m *Model) CurrentSources() *OrderedRegistry[CurrentSource] { return m.currents }

// AddNeuronGroup registers a new neuron population. Returns an error if
// the name is already taken, params don't match the snippet's declared
// parameter count, or the model has already been finalized.
func (m *Model) AddNeuronGroup(name string, count int, snip *snippet.Snippet, params []float64, hostID int) (*NeuronGroup, error) {
	if m.finalized {
		return nil, fmt.Errorf("model: cannot add neuron group %q after Finalize", name)
	}
	if err := snip.ValidateParamValues(params); err != nil {
		return nil, err
	}
	ng := NewNeuronGroup(name, count, snip, params, hostID)
	if err := m.neurons.Add(name, ng); err != nil {
		return nil, fmt.Errorf("model: AddNeuronGroup: %w", err)
	}
	return ng, nil
}

// AddSynapseGroup registers a new directed edge between two previously
// added neuron groups. src and trg are resolved by name against the
// model's neuron group registry (spec section 3 invariant: "Every
// synapse group's src/trg resolve to existing neuron groups").
func (m *Model) AddSynapseGroup(name string, matrixConn MatrixConnectivity, matrixWeight MatrixWeight, delaySteps int,
	srcName, trgName string, wum *snippet.Snippet, wumParams []float64,
	psm *snippet.Snippet, psmParams []float64, connInit *snippet.Snippet) (*SynapseGroup, error) {
	if m.finalized {
		return nil, fmt.Errorf("model: cannot add synapse group %q after Finalize", name)
	}
	src, ok := m.neurons.Get(srcName)
	if !ok {
		return nil, fmt.Errorf("model: AddSynapseGroup %q: unknown source neuron group %q", name, srcName)
	}
	trg, ok := m.neurons.Get(trgName)
	if !ok {
		return nil, fmt.Errorf("model: AddSynapseGroup %q: unknown target neuron group %q", name, trgName)
	}
	if wum != nil {
		if err := wum.ValidateParamValues(wumParams); err != nil {
			return nil, err
		}
	}
	if psm != nil {
		if err := psm.ValidateParamValues(psmParams); err != nil {
			return nil, err
		}
	}
	if matrixConn == MatrixProcedural && matrixWeight == WeightIndividual {
		return nil, fmt.Errorf("model: AddSynapseGroup %q: procedural connectivity is incompatible with individually-stored weights", name)
	}
	sg := NewSynapseGroup(name, matrixConn, matrixWeight, delaySteps, src, trg, wum, wumParams, psm, psmParams, connInit)
	if err := m.synapses.Add(name, sg); err != nil {
		return nil, fmt.Errorf("model: AddSynapseGroup: %w", err)
	}
	src.OutgoingSynapses = append(src.OutgoingSynapses, sg)
	trg.IncomingSynapses = append(trg.IncomingSynapses, sg)
	return sg, nil
}

// AddCurrentSource registers a new external current injection targeting a
// previously added neuron group.
func (m *Model) AddCurrentSource(name string, snip *snippet.Snippet, targetName string, params []float64) (*CurrentSource, error) {
	if m.finalized {
		return nil, fmt.Errorf("model: cannot add current source %q after Finalize", name)
	}
	target, ok := m.neurons.Get(targetName)
	if !ok {
		return nil, fmt.Errorf("model: AddCurrentSource %q: unknown target neuron group %q", name, targetName)
	}
	if err := snip.ValidateParamValues(params); err != nil {
		return nil, err
	}
	cs := NewCurrentSource(name, snip, params, target)
	if err := m.currents.Add(name, cs); err != nil {
		return nil, fmt.Errorf("model: AddCurrentSource: %w", err)
	}
	target.IncomingCurrents = append(target.IncomingCurrents, cs)
	return cs, nil
}
