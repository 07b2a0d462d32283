// Copyright (c) 2022, The GoKi Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package model

import "github.com/gennsim/genncore/snippet"

// CurrentSource is an external injection applied to a neuron group each
// timestep (spec section 3/GLOSSARY). Target is a weak reference into
// the owning Model's neuron group registry.
type CurrentSource struct {
	Name      string
	Snip      *snippet.Snippet
	Params    []float64
	VarInits  map[string]*snippet.Snippet
	Target    *NeuronGroup
	Locations map[string]VarLocation

	// DerivedParams is set by Model.Finalize.
	DerivedParams map[string]float64
}

// NewCurrentSource constructs a CurrentSource with every variable
// host+device resident by default.
func NewCurrentSource(name string, snip *snippet.Snippet, params []float64, target *NeuronGroup) *CurrentSource {
	cs := &CurrentSource{
		Name:          name,
		Snip:          snip,
		Params:        params,
		VarInits:      map[string]*snippet.Snippet{},
		Target:        target,
		Locations:     map[string]VarLocation{},
		DerivedParams: map[string]float64{},
	}
	for _, v := range snip.Vars {
		cs.Locations[v.Name] = LocHostDevice
	}
	return cs
}
