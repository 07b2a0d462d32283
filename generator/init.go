// Copyright (c) 2022, The GoKi Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package generator

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gennsim/genncore/backend"
	"github.com/gennsim/genncore/model"
	"github.com/gennsim/genncore/snippet"
	"github.com/gennsim/genncore/timer"
)

// GenerateInit emits the init kernel (spec section 4.5, "Initialization"):
// per-population spike count/buffer/queue-pointer zeroing and spike-time
// sentinel, per-variable initializers for every individually-implemented
// variable, a connectivity-building pass for sparse synapse groups, and
// an initializeSparse pass.
func GenerateInit(m *model.Model, be backend.Backend, tm ...*timer.Time) (string, error) {
	if !m.Finalized() {
		return "", fmt.Errorf("generator: GenerateInit: model %q is not finalized", m.Name())
	}
	defer startTiming(tm)()
	os := backend.NewStream()
	be.GenKernelPreamble(os, "init")

	names := m.NeuronGroups().Names()
	var groupErr error
	sub := backend.NewSubstitutions(m.Precision())
	be.GenParallelGroup(os, sub, names, func(name string) int {
		ng, _ := m.NeuronGroups().Get(name)
		return ng.Count
	}, func(body *backend.Stream, sub *backend.Substitutions, name string, localID string) {
		ng, _ := m.NeuronGroups().Get(name)
		if err := emitNeuronGroupInit(body, sub, ng, be, m.DT()); err != nil {
			groupErr = err
		}
	})
	if groupErr != nil {
		return "", groupErr
	}

	be.GenKernelPostamble(os, "init")

	if err := emitSynapseWUMVarInit(os, m, be, m.DT()); err != nil {
		return "", err
	}
	if err := emitSynapsePSMVarInit(os, m, be, m.DT()); err != nil {
		return "", err
	}
	if err := emitCurrentSourceVarInit(os, m, be, m.DT()); err != nil {
		return "", err
	}
	if err := emitSparseConnectivityInit(os, m, be); err != nil {
		return "", err
	}

	return os.String(), nil
}

// emitNeuronGroupInit zeroes a population's spike machinery and runs each
// of its variables' initializers (spec section 4.5: "initialize spike
// counts and spike buffers... initialize spike times to a sentinel
// -TIME_MAX").
func emitNeuronGroupInit(os *backend.Stream, sub *backend.Substitutions, ng *model.NeuronGroup, be backend.Backend, dt float64) error {
	prefix := be.GetVarPrefix()

	// glbSpk_<name>/spikeCount<name> are the flat, per-step buffer and
	// scalar counter neuron_update.go writes through atomicAdd. The
	// counters are re-zeroed every step by preNeuronReset; the buffer is
	// not, so init puts both in a defined state once. spkQuePtr only
	// exists when the population is delayed.
	be.GenPopVariableInit(os, sub, func(body *backend.Stream, _ *backend.Substitutions) {
		body.Printf("spikeCount%s = 0;", ng.Name)
		if neuronGroupEmitsSpikeEvents(ng) {
			body.Printf("spikeEventCount%s = 0;", ng.Name)
		}
		if ng.RequiresDelay() {
			body.Printf("spkQuePtr%s = 0;", ng.Name)
		}
	})

	be.GenVariableInit(os, sub, ng.Count, strconv.Itoa(ng.Count), func(body *backend.Stream, _ *backend.Substitutions) {
		body.Printf("%sglbSpk_%s[lid] = 0;", prefix, ng.Name)
		body.Printf("%sspkTime_%s[lid] = -TIME_MAX;", prefix, ng.Name)
		body.Printf("%soldSpike_%s[lid] = false;", prefix, ng.Name)
	})

	for _, v := range ng.Snip.Vars {
		if ng.VarImplementations[v.Name] != model.VarIndividual {
			continue
		}
		initSnip, ok := ng.VarInits[v.Name]
		if !ok || initSnip == nil {
			continue
		}
		if err := emitVarInit(os, sub, be, initSnip, ng.VarInitParams[v.Name], prefix, "_"+ng.Name, v.Name, dt); err != nil {
			return err
		}
	}
	return nil
}

// emitSynapseWUMVarInit emits a dedicated kernel initializing every
// individually-stored weight-update variable across all synapse groups
// that have one (spec section 4.5). Global and procedural weights have
// nothing to initialize here -- their value comes from the group's
// parameters, not a per-connection state array. One GenParallelGroup call
// dispatches every such group at once (mirroring
// emitSparseConnectivityInit), so the `lid` GenSynapseVariableRowInit's
// body references is declared exactly once per kernel.
func emitSynapseWUMVarInit(os *backend.Stream, m *model.Model, be backend.Backend, dt float64) error {
	var names []string
	m.SynapseGroups().Each(func(name string, sg *model.SynapseGroup) bool {
		if sg.WUM != nil && sg.MatrixWeight == model.WeightIndividual && len(sg.WUMVarInits) > 0 {
			names = append(names, name)
		}
		return true
	})
	if len(names) == 0 {
		return nil
	}
	prefix := be.GetVarPrefix()
	be.GenKernelPreamble(os, "initializeSynapseWUMVars")
	var groupErr error
	sub := backend.NewSubstitutions(m.Precision())
	be.GenParallelGroup(os, sub, names, func(name string) int {
		sg, _ := m.SynapseGroups().Get(name)
		return sg.NumSrc()
	}, func(body *backend.Stream, sub *backend.Substitutions, name, localID string) {
		sg, _ := m.SynapseGroups().Get(name)
		for _, v := range sg.WUM.Vars {
			initSnip, ok := sg.WUMVarInits[v.Name]
			if !ok || initSnip == nil {
				continue
			}
			be.GenSynapseVariableRowInit(body, sub, sg, func(rowBody *backend.Stream, rowSub *backend.Substitutions) {
				if err := emitVarInit(rowBody, rowSub, be, initSnip, sg.WUMVarInitParams[v.Name], prefix, "_"+sg.Name, v.Name, dt); err != nil {
					groupErr = err
				}
			})
		}
	})
	if groupErr != nil {
		return groupErr
	}
	be.GenKernelPostamble(os, "initializeSynapseWUMVars")
	return nil
}

// emitSynapsePSMVarInit mirrors emitSynapseWUMVarInit for postsynaptic
// state, dispatched one thread per target neuron instead of per row.
func emitSynapsePSMVarInit(os *backend.Stream, m *model.Model, be backend.Backend, dt float64) error {
	var names []string
	m.SynapseGroups().Each(func(name string, sg *model.SynapseGroup) bool {
		if sg.PSM != nil && len(sg.PSMVarInits) > 0 {
			names = append(names, name)
		}
		return true
	})
	if len(names) == 0 {
		return nil
	}
	prefix := be.GetVarPrefix()
	be.GenKernelPreamble(os, "initializeSynapsePSMVars")
	var groupErr error
	sub := backend.NewSubstitutions(m.Precision())
	be.GenParallelGroup(os, sub, names, func(name string) int {
		sg, _ := m.SynapseGroups().Get(name)
		return sg.NumTrg()
	}, func(body *backend.Stream, sub *backend.Substitutions, name, localID string) {
		sg, _ := m.SynapseGroups().Get(name)
		be.GenVariableInit(body, sub, sg.NumTrg(), strconv.Itoa(sg.NumTrg()), func(elemBody *backend.Stream, elemSub *backend.Substitutions) {
			for _, v := range sg.PSM.Vars {
				initSnip, ok := sg.PSMVarInits[v.Name]
				if !ok || initSnip == nil {
					continue
				}
				if err := emitVarInit(elemBody, elemSub, be, initSnip, sg.PSMVarInitParams[v.Name], prefix, "_"+sg.Name, v.Name, dt); err != nil {
					groupErr = err
				}
			}
		})
	})
	if groupErr != nil {
		return groupErr
	}
	be.GenKernelPostamble(os, "initializeSynapsePSMVars")
	return nil
}

// emitCurrentSourceVarInit mirrors emitSynapsePSMVarInit for external
// current sources, dispatched one thread per element of the source's
// target population.
func emitCurrentSourceVarInit(os *backend.Stream, m *model.Model, be backend.Backend, dt float64) error {
	var names []string
	m.CurrentSources().Each(func(name string, cs *model.CurrentSource) bool {
		if len(cs.VarInits) > 0 {
			names = append(names, name)
		}
		return true
	})
	if len(names) == 0 {
		return nil
	}
	prefix := be.GetVarPrefix()
	be.GenKernelPreamble(os, "initializeCurrentSourceVars")
	var groupErr error
	sub := backend.NewSubstitutions(m.Precision())
	be.GenParallelGroup(os, sub, names, func(name string) int {
		cs, _ := m.CurrentSources().Get(name)
		return cs.Target.Count
	}, func(body *backend.Stream, sub *backend.Substitutions, name, localID string) {
		cs, _ := m.CurrentSources().Get(name)
		be.GenVariableInit(body, sub, cs.Target.Count, strconv.Itoa(cs.Target.Count), func(elemBody *backend.Stream, elemSub *backend.Substitutions) {
			for _, v := range cs.Snip.Vars {
				initSnip, ok := cs.VarInits[v.Name]
				if !ok || initSnip == nil {
					continue
				}
				if err := emitVarInit(elemBody, elemSub, be, initSnip, cs.Params, prefix, "_"+cs.Name, v.Name, dt); err != nil {
					groupErr = err
				}
			}
		})
	})
	if groupErr != nil {
		return groupErr
	}
	be.GenKernelPostamble(os, "initializeCurrentSourceVars")
	return nil
}

// emitVarInit resolves one variable's initializer snippet, binding the
// reserved `$(value)` placeholder to that variable's device symbol before
// running it through the normal parameter/derived-parameter scope (spec
// section 4.5: "for every variable marked individual, emit its
// initializer, which is itself a snippet").
func emitVarInit(os *backend.Stream, sub *backend.Substitutions, be backend.Backend, initSnip *snippet.Snippet, params []float64, prefix, groupInfix, varName string, dt float64) error {
	raw := initSnip.CodeFor(snippet.RoleVarInit)
	if raw == "" {
		return nil
	}
	target := prefix + varName + groupInfix + "[lid]"
	raw = strings.ReplaceAll(raw, "$(value)", target)

	derived := map[string]float64{}
	if len(initSnip.DerivedParams) > 0 {
		pm := initSnip.ParamMap(params)
		for _, dp := range initSnip.DerivedParams {
			derived[dp.Name] = dp.Fn(pm, dt)
		}
	}
	n := bindSnippetScope(sub, initSnip, params, derived, prefix, groupInfix)
	n += bindRNG(sub, be, strings.TrimPrefix(groupInfix, "_"))
	defer popScope(sub, n)

	code, err := resolveCode(sub, raw, initSnip.Name+"/var_init("+varName+")")
	if err != nil {
		return err
	}
	os.Raw(code)
	os.Line("")
	return nil
}

// emitSparseConnectivityInit drives the row-build code for every sparse
// synapse group (spec section 4.5: "for sparse connectivity, emit a
// while(true) { …; if(endRow) break; } driver"), then emits the
// initializeSparse pass that copies the resulting index arrays to device.
// Rows are stored at a fixed stride of sg.MaxConnections rather than a
// packed CSR, so `$(addSynapse, post)` only needs a running per-row
// counter, not a global prefix-sum pass.
func emitSparseConnectivityInit(os *backend.Stream, m *model.Model, be backend.Backend) error {
	var names []string
	m.SynapseGroups().Each(func(name string, sg *model.SynapseGroup) bool {
		if sg.MatrixConnectivity == model.MatrixSparse && sg.ConnectivityInit != nil {
			names = append(names, name)
		}
		return true
	})
	if len(names) == 0 {
		return nil
	}

	be.GenKernelPreamble(os, "initializeSparse")
	var groupErr error
	sub := backend.NewSubstitutions(m.Precision())
	be.GenParallelGroup(os, sub, names, func(name string) int {
		sg, _ := m.SynapseGroups().Get(name)
		return sg.NumSrc()
	}, func(body *backend.Stream, sub *backend.Substitutions, name string, localID string) {
		sg, _ := m.SynapseGroups().Get(name)
		prefix := be.GetVarPrefix()
		n := bindSnippetScope(sub, sg.ConnectivityInit, nil, nil, prefix, "_"+sg.Name)
		sub.PushFunc("addSynapse", 1, fmt.Sprintf("%sind_%s[(lid * %d) + row_length++] = $(0)",
			prefix, sg.Name, sg.MaxConnections))
		defer popScope(sub, n+1)

		raw := strings.ReplaceAll(sg.ConnectivityInit.CodeFor(snippet.RoleRowBuild), "endRow", "break")
		rowCode, err := resolveCode(sub, raw, sg.ConnectivityInit.Name+"/row_build")
		if err != nil {
			groupErr = err
			return
		}
		body.Printf("unsigned int row_length = 0;")
		body.Line("while (true) {")
		body.Indent()
		body.Raw(rowCode)
		body.Line("")
		body.Dedent()
		body.Line("}")
		body.Printf("%sindInG_%s[lid] = lid * %d;", prefix, sg.Name, sg.MaxConnections)
		body.Printf("if (lid == %d) { %sindInG_%s[%d] = %d * %d; }",
			sg.NumSrc()-1, prefix, sg.Name, sg.NumSrc(), sg.NumSrc(), sg.MaxConnections)
	})
	if groupErr != nil {
		return groupErr
	}
	be.GenKernelPostamble(os, "initializeSparse")

	for _, name := range names {
		sg, _ := m.SynapseGroups().Get(name)
		be.Push(os, "indInG_"+sg.Name, sg.NumSrc()+1, model.LocHostDevice)
		be.Push(os, "ind_"+sg.Name, sg.MaxConnections*sg.NumSrc(), model.LocHostDevice)
	}
	return nil
}
