// Copyright (c) 2022, The GoKi Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package model

import "github.com/gennsim/genncore/snippet"

// NeuronGroup is a named population of Count identical neurons simulated
// by one neuron Snippet (spec section 3). The Model exclusively owns
// NeuronGroup instances; everything else (SynapseGroup.Src/Trg,
// CurrentSource.Target) holds a weak reference into the Model's
// registry by name.
type NeuronGroup struct {
	Name   string
	Count  int
	Snip   *snippet.Snippet
	Params []float64
	// VarInits gives one initializer Snippet per variable name that
	// needs one (role snippet.RoleVarInit); variables absent from this
	// map get no initialization code.
	VarInits map[string]*snippet.Snippet
	// VarInitParams gives the parameter values for each entry in
	// VarInits, keyed the same way.
	VarInitParams map[string][]float64

	VarLocations       map[string]VarLocation
	VarImplementations map[string]VarImplementation

	HostID int

	// derived, set by Model.Finalize:
	DerivedParams map[string]float64

	OutgoingSynapses []*SynapseGroup
	IncomingSynapses []*SynapseGroup
	IncomingCurrents []*CurrentSource

	NumDelaySlots     int
	IsQueueRequired   map[string]bool
	MergedInSynGroups [][]*SynapseGroup
}

// NewNeuronGroup constructs a NeuronGroup with defaults applied: every
// variable is host+device resident and individually implemented unless
// overridden, and NumDelaySlots starts at 1 (no delay) per spec section 3
// ("After finalize, num_delay_slots >= max(delay_steps)+1... "; 1 is the
// floor for an undelayed population).
func NewNeuronGroup(name string, count int, snip *snippet.Snippet, params []float64, hostID int) *NeuronGroup {
	ng := &NeuronGroup{
		Name:               name,
		Count:              count,
		Snip:               snip,
		Params:             params,
		VarInits:           map[string]*snippet.Snippet{},
		VarInitParams:      map[string][]float64{},
		VarLocations:       map[string]VarLocation{},
		VarImplementations: map[string]VarImplementation{},
		DerivedParams:      map[string]float64{},
		NumDelaySlots:      1,
		IsQueueRequired:    map[string]bool{},
	}
	for _, v := range snip.Vars {
		ng.VarLocations[v.Name] = LocHostDevice
		ng.VarImplementations[v.Name] = VarIndividual
		ng.IsQueueRequired[v.Name] = false
	}
	return ng
}

// SetVarLocation overrides the location of a single declared variable.
func (ng *NeuronGroup) SetVarLocation(varName string, loc VarLocation) {
	ng.VarLocations[varName] = loc
}

// SetVarImplementation overrides the implementation of a single declared
// variable.
func (ng *NeuronGroup) SetVarImplementation(varName string, impl VarImplementation) {
	ng.VarImplementations[varName] = impl
}

// RequiresDelay reports whether this population needs more than the
// single always-present delay slot.
func (ng *NeuronGroup) RequiresDelay() bool {
	return ng.NumDelaySlots > 1
}
