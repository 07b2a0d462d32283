// Copyright (c) 2022, The GoKi Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package model

import (
	"fmt"
	"regexp"

	"github.com/goki/ki/ints"

	"github.com/gennsim/genncore/snippet"
)

// varRefRE matches a presynaptic or postsynaptic variable reference in
// weight-update code, e.g. "$(V_pre)" or "$(V_post)".
var varRefRE = regexp.MustCompile(`\$\(\s*([A-Za-z_][A-Za-z0-9_]*)_(pre|post)\s*\)`)

// roles scanned for pre/post variable references when propagating delay
// and spike-queue requirements (spec section 4.1, step 2).
var delayScanRoles = []snippet.Role{
	snippet.RoleSim,
	snippet.RoleEventThreshold,
	snippet.RoleSynapseDynamics,
	snippet.RoleLearnPost,
}

// Finalize runs the derivation pass spec section 4.1 requires: derive
// parameters, propagate delay/queue requirements, check acyclicity of
// that propagation, and merge compatible postsynaptic models. It is
// idempotent -- calling it again on an already-finalized model re-derives
// the same values and returns nil -- and fails atomically: if any step
// returns an error, no field on any group is mutated (every derived value
// is computed into local maps first and only written back once every
// step has succeeded).
func (m *Model) Finalize() error {
	neuronDerived := map[string]map[string]float64{}
	m.neurons.Each(func(name string, ng *NeuronGroup) bool {
		neuronDerived[name] = deriveParams(ng.Snip, ng.Params, m.dt)
		return true
	})

	wumDerived := map[string]map[string]float64{}
	psmDerived := map[string]map[string]float64{}
	m.synapses.Each(func(name string, sg *SynapseGroup) bool {
		if sg.WUM != nil {
			wumDerived[name] = deriveParams(sg.WUM, sg.WUMParams, m.dt)
		}
		if sg.PSM != nil {
			psmDerived[name] = deriveParams(sg.PSM, sg.PSMParams, m.dt)
		}
		return true
	})

	currentDerived := map[string]map[string]float64{}
	m.currents.Each(func(name string, cs *CurrentSource) bool {
		currentDerived[name] = deriveParams(cs.Snip, cs.Params, m.dt)
		return true
	})

	delaySlots := map[string]int{}
	queueRequired := map[string]map[string]bool{}
	m.neurons.Each(func(name string, ng *NeuronGroup) bool {
		delaySlots[name] = 1
		qr := map[string]bool{}
		for _, v := range ng.Snip.Vars {
			qr[v.Name] = false
		}
		queueRequired[name] = qr
		return true
	})

	var propagateErr error
	m.synapses.Each(func(name string, sg *SynapseGroup) bool {
		if sg.WUM == nil {
			return true
		}
		delaySlots[sg.Src.Name] = ints.MaxInt(delaySlots[sg.Src.Name], sg.DelaySteps+1)
		for _, role := range delayScanRoles {
			code := sg.WUM.CodeFor(role)
			for _, match := range varRefRE.FindAllStringSubmatch(code, -1) {
				varName, side := match[1], match[2]
				if side == "pre" {
					if !sg.Src.Snip.HasVar(varName) {
						propagateErr = fmt.Errorf("model: Finalize: synapse group %q weight-update code references undeclared presynaptic variable %q", name, varName)
						return false
					}
					// only delayed access queues history; an undelayed
					// reference reads the live value
					if sg.DelaySteps > 0 {
						queueRequired[sg.Src.Name][varName] = true
					}
				} else {
					if !sg.Trg.Snip.HasVar(varName) {
						propagateErr = fmt.Errorf("model: Finalize: synapse group %q weight-update code references undeclared postsynaptic variable %q", name, varName)
						return false
					}
					if sg.BackPropDelaySteps > 0 {
						queueRequired[sg.Trg.Name][varName] = true
						delaySlots[sg.Trg.Name] = ints.MaxInt(delaySlots[sg.Trg.Name], sg.BackPropDelaySteps+1)
					}
				}
			}
		}
		return true
	})
	if propagateErr != nil {
		return propagateErr
	}

	if err := checkDelayAcyclic(m, delaySlots); err != nil {
		return err
	}

	// the partition of incoming synapse groups always exists -- it is
	// what the neuron kernel and the buffer inventory iterate. With
	// merging disabled every group is its own singleton batch (one inSyn
	// buffer each); merging only coalesces compatible batches.
	merged := map[string][][]*SynapseGroup{}
	m.neurons.Each(func(name string, ng *NeuronGroup) bool {
		if m.mergePostsynapticModels {
			merged[name] = mergePostsynapticGroups(ng.IncomingSynapses)
		} else {
			groups := make([][]*SynapseGroup, 0, len(ng.IncomingSynapses))
			for _, sg := range ng.IncomingSynapses {
				groups = append(groups, []*SynapseGroup{sg})
			}
			merged[name] = groups
		}
		return true
	})

	m.neurons.Each(func(name string, ng *NeuronGroup) bool {
		ng.DerivedParams = neuronDerived[name]
		ng.NumDelaySlots = delaySlots[name]
		ng.IsQueueRequired = queueRequired[name]
		if groups, ok := merged[name]; ok {
			ng.MergedInSynGroups = groups
			for _, group := range groups {
				if len(group) < 2 {
					continue
				}
				for _, sg := range group {
					sg.IsPSModelMerged = true
				}
			}
		}
		return true
	})
	m.synapses.Each(func(name string, sg *SynapseGroup) bool {
		sg.IsDendriticDelayRequired = sg.BackPropDelaySteps > 0
		if d, ok := wumDerived[name]; ok {
			sg.WUMDerivedParams = d
		}
		if d, ok := psmDerived[name]; ok {
			sg.PSMDerivedParams = d
		}
		return true
	})
	m.currents.Each(func(name string, cs *CurrentSource) bool {
		cs.DerivedParams = currentDerived[name]
		return true
	})

	m.finalized = true
	return nil
}

// deriveParams evaluates every derived parameter of a snippet against a
// group's parameter values and dt, by name (spec section 4.1, step 1).
func deriveParams(snip *snippet.Snippet, values []float64, dt float64) map[string]float64 {
	params := snip.ParamMap(values)
	out := make(map[string]float64, len(snip.DerivedParams))
	for _, dp := range snip.DerivedParams {
		out[dp.Name] = dp.Fn(params, dt)
	}
	return out
}

// checkDelayAcyclic verifies that no neuron group can reach itself through
// a chain of synapse groups whose weight-update code requires a delayed
// variable, which would make delay propagation (and thus finalization)
// ill-defined (spec section 4.1, step 4, and section 8's acyclicity
// invariant). A plain self-loop with no delay is fine -- it is only an
// error when the cycle is carried entirely through delay-requiring edges.
func checkDelayAcyclic(m *Model, delaySlots map[string]int) error {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := map[string]int{}
	m.neurons.Each(func(name string, _ *NeuronGroup) bool { color[name] = white; return true })

	var visit func(name string, stack []string) error
	visit = func(name string, stack []string) error {
		color[name] = gray
		stack = append(stack, name)
		ng, _ := m.neurons.Get(name)
		for _, sg := range ng.OutgoingSynapses {
			if sg.WUM == nil || sg.DelaySteps <= 0 || delaySlots[ng.Name] <= 1 {
				continue
			}
			next := sg.Trg.Name
			switch color[next] {
			case gray:
				return fmt.Errorf("model: Finalize: delay-requiring cycle detected through synapse group %q (%v -> %s)", sg.Name, stack, next)
			case white:
				if err := visit(next, stack); err != nil {
					return err
				}
			}
		}
		color[name] = black
		return nil
	}

	var names []string
	m.neurons.Each(func(name string, _ *NeuronGroup) bool { names = append(names, name); return true })
	for _, name := range names {
		if color[name] == white {
			if err := visit(name, nil); err != nil {
				return err
			}
		}
	}
	return nil
}

// mergePostsynapticGroups partitions a neuron group's incoming synapse
// groups into batches that share the same postsynaptic snippet, identical
// parameter values, and identical dendritic-delay requirement -- the
// conditions under which GeNN accumulates their contributions into one
// shared inSyn buffer via atomic add rather than allocating one buffer per
// synapse group (spec section 4.1, step 3).
func mergePostsynapticGroups(incoming []*SynapseGroup) [][]*SynapseGroup {
	var groups [][]*SynapseGroup
	for _, sg := range incoming {
		placed := false
		for i, group := range groups {
			lead := group[0]
			if psmCompatible(lead, sg) {
				groups[i] = append(groups[i], sg)
				placed = true
				break
			}
		}
		if !placed {
			groups = append(groups, []*SynapseGroup{sg})
		}
	}
	return groups
}

func psmCompatible(a, b *SynapseGroup) bool {
	if a.PSM != b.PSM {
		return false
	}
	if a.PSM == nil {
		return false
	}
	if a.BackPropDelaySteps != b.BackPropDelaySteps {
		return false
	}
	if len(a.PSMParams) != len(b.PSMParams) {
		return false
	}
	for i := range a.PSMParams {
		if a.PSMParams[i] != b.PSMParams[i] {
			return false
		}
	}
	return true
}
