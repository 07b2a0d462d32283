// Copyright (c) 2022, The GoKi Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package generator

import (
	"fmt"
	"strings"

	"github.com/gennsim/genncore/backend"
	"github.com/gennsim/genncore/model"
	"github.com/gennsim/genncore/snippet"
	"github.com/gennsim/genncore/strategy"
	"github.com/gennsim/genncore/timer"
)

// GenerateSynapseUpdate emits the synapse update kernel for every
// synapse group in m (spec section 4.5, "Synapse update"): for each
// group, select a presynaptic update strategy, emit its preamble,
// update and postamble, then emit the postsynaptic-learning and
// synapse-dynamics passes for groups that define those optional code
// roles.
func GenerateSynapseUpdate(m *model.Model, be backend.Backend, tm ...*timer.Time) (string, error) {
	if !m.Finalized() {
		return "", fmt.Errorf("generator: GenerateSynapseUpdate: model %q is not finalized", m.Name())
	}
	defer startTiming(tm)()
	os := backend.NewStream()
	be.GenKernelPreamble(os, "updateSynapses")

	names := m.SynapseGroups().Names()
	var groupErr error
	sub := backend.NewSubstitutions(m.Precision())
	be.GenParallelGroup(os, sub, names, func(name string) int {
		sg, _ := m.SynapseGroups().Get(name)
		return strategy.Select(sg).NumThreads(sg)
	}, func(body *backend.Stream, sub *backend.Substitutions, name string, localID string) {
		sg, _ := m.SynapseGroups().Get(name)
		if err := emitSynapseGroupUpdate(body, sub, sg, be, m); err != nil {
			groupErr = err
		}
	})
	if groupErr != nil {
		return "", groupErr
	}
	be.GenKernelPostamble(os, "updateSynapses")

	if err := emitLearnPostPass(os, m, be); err != nil {
		return "", err
	}
	if err := emitSynapseDynamicsPass(os, m, be); err != nil {
		return "", err
	}

	return os.String(), nil
}

// bindSynapseGroupScope pushes the weight-update parameter/derived/var
// frames for sg plus the reserved presynaptic and postsynaptic variable
// forms ($(X_pre), $(X_post)). It returns the number of frames pushed,
// for a matching popScope. Callers that also need the addToInSyn/
// addToInSynDelay control primitives push those on top themselves, since
// only the main update pass (not learn_post/synapse_dynamics) binds them.
func bindSynapseGroupScope(sub *backend.Substitutions, sg *model.SynapseGroup, be backend.Backend) int {
	prefix := be.GetVarPrefix()
	n := bindSnippetScope(sub, sg.WUM, sg.WUMParams, sg.WUMDerivedParams, prefix, "_"+sg.Name)
	if len(sg.Src.Snip.Vars) > 0 {
		sub.PushNames(sg.Src.Snip.VarNames(), prefix, "_"+sg.Src.Name, "_pre")
		n++
	}
	if len(sg.Trg.Snip.Vars) > 0 {
		sub.PushNames(sg.Trg.Snip.VarNames(), prefix, "_"+sg.Trg.Name, "_post")
		n++
	}
	// reserved index/time placeholders; pre_idx and post are declared by
	// whichever strategy loop encloses the resolved code.
	sub.PushFunc("id_pre", 0, "pre_idx")
	sub.PushFunc("id_post", 0, "post")
	sub.PushFunc("id_syn", 0, fmt.Sprintf("((pre_idx * %d) + post)", sg.NumTrg()))
	sub.PushFunc("t", 0, "t")
	n += 4
	return n
}

func emitSynapseGroupUpdate(os *backend.Stream, sub *backend.Substitutions, sg *model.SynapseGroup, be backend.Backend, m *model.Model) error {
	if sg.WUM == nil {
		return nil
	}
	prec := m.Precision()

	n := bindSynapseGroupScope(sub, sg, be)
	atomic := be.FloatAtomicAdd(prec)
	sub.PushFunc("addToInSyn", 1, strategy.AddToInSyn(sg, be, prec, "$(0)"))
	sub.PushFunc("addToInSynDelay", 2, fmt.Sprintf("%s(&denDelay[offset+($(1))+post], $(0))", atomic))
	n += 2
	defer popScope(sub, n)

	strat := strategy.Select(sg)

	if _, ok := strat.(strategy.PreSpanProcedural); ok {
		return emitProceduralSynapseUpdate(os, sub, sg, strat, be)
	}

	simCode, err := resolveCode(sub, sg.WUM.CodeFor(snippet.RoleSim), sg.WUM.Name+"/sim")
	if err != nil {
		return err
	}

	if sg.IsEventThresholdRetestRequired {
		raw := sg.WUM.CodeFor(snippet.RoleEventThreshold)
		raw = strings.ReplaceAll(raw, "$(id_pre)", "pre_idx")
		cond, err := resolveCode(sub, raw, sg.WUM.Name+"/event_threshold_retest")
		if err != nil {
			return err
		}
		simCode = strategy.WrapEventThreshold(simCode, cond)
	}

	strat.GenPreamble(os, sub, sg, be)
	strat.GenUpdate(os, sub, sg, be, simCode)
	strat.GenPostamble(os, sub, sg, be)
	return nil
}

// emitProceduralSynapseUpdate handles the PreSpanProcedural strategy's
// special case (spec section 4.4): the connectivity initializer's
// row_build code is the per-spike loop body, with `$(addSynapse, post)`
// bound to run the weight-update sim code at that postsynaptic index
// rather than walking a stored row.
func emitProceduralSynapseUpdate(os *backend.Stream, sub *backend.Substitutions, sg *model.SynapseGroup, strat strategy.Strategy, be backend.Backend) error {
	if sg.ConnectivityInit == nil {
		return fmt.Errorf("generator: synapse group %q: procedural connectivity requires a connectivity initializer", sg.Name)
	}
	simCode, err := resolveCode(sub, sg.WUM.CodeFor(snippet.RoleSim), sg.WUM.Name+"/sim")
	if err != nil {
		return err
	}
	sub.PushFunc("addSynapse", 1, "{ const unsigned int post = $(0); "+simCode+" }")
	defer sub.Pop()

	raw := strings.ReplaceAll(sg.ConnectivityInit.CodeFor(snippet.RoleRowBuild), "endRow", "break")
	rowCode, err := resolveCode(sub, raw, sg.ConnectivityInit.Name+"/row_build")
	if err != nil {
		return err
	}

	strat.GenPreamble(os, sub, sg, be)
	strat.GenUpdate(os, sub, sg, be, rowCode)
	strat.GenPostamble(os, sub, sg, be)
	return nil
}

// emitLearnPostPass emits a postsynaptic-learning kernel (spec section
// 4.5: "emit postsynaptic learning for groups that define
// learn_post_code"), dispatched one thread per postsynaptic neuron for
// each group that defines the role.
func emitLearnPostPass(os *backend.Stream, m *model.Model, be backend.Backend) error {
	var names []string
	m.SynapseGroups().Each(func(name string, sg *model.SynapseGroup) bool {
		if sg.WUM != nil && sg.WUM.CodeFor(snippet.RoleLearnPost) != "" {
			names = append(names, name)
		}
		return true
	})
	if len(names) == 0 {
		return nil
	}
	be.GenKernelPreamble(os, "learnPostSynapses")
	var groupErr error
	sub := backend.NewSubstitutions(m.Precision())
	be.GenParallelGroup(os, sub, names, func(name string) int {
		sg, _ := m.SynapseGroups().Get(name)
		return sg.NumTrg()
	}, func(body *backend.Stream, sub *backend.Substitutions, name string, localID string) {
		sg, _ := m.SynapseGroups().Get(name)
		n := bindSynapseGroupScope(sub, sg, be)
		defer popScope(sub, n)
		code, err := resolveCode(sub, sg.WUM.CodeFor(snippet.RoleLearnPost), sg.WUM.Name+"/learn_post")
		if err != nil {
			groupErr = err
			return
		}
		body.Printf("const unsigned int post = %s;", localID)
		body.Raw(code)
		body.Line("")
	})
	if groupErr != nil {
		return groupErr
	}
	be.GenKernelPostamble(os, "learnPostSynapses")
	return nil
}

// emitSynapseDynamicsPass emits a per-timestep synapse-dynamics kernel
// (spec section 4.5) for groups that define synapse_dynamics_code,
// dispatched the same way the main update kernel dispatches that group.
func emitSynapseDynamicsPass(os *backend.Stream, m *model.Model, be backend.Backend) error {
	var names []string
	m.SynapseGroups().Each(func(name string, sg *model.SynapseGroup) bool {
		if sg.WUM != nil && sg.WUM.CodeFor(snippet.RoleSynapseDynamics) != "" {
			names = append(names, name)
		}
		return true
	})
	if len(names) == 0 {
		return nil
	}
	be.GenKernelPreamble(os, "synapseDynamics")
	var groupErr error
	sub := backend.NewSubstitutions(m.Precision())
	be.GenParallelGroup(os, sub, names, func(name string) int {
		sg, _ := m.SynapseGroups().Get(name)
		return strategy.Select(sg).NumThreads(sg)
	}, func(body *backend.Stream, sub *backend.Substitutions, name string, localID string) {
		sg, _ := m.SynapseGroups().Get(name)
		n := bindSynapseGroupScope(sub, sg, be)
		defer popScope(sub, n)
		code, err := resolveCode(sub, sg.WUM.CodeFor(snippet.RoleSynapseDynamics), sg.WUM.Name+"/synapse_dynamics")
		if err != nil {
			groupErr = err
			return
		}
		stride := strategy.Select(sg).RowStride(sg)
		body.Printf("const unsigned int pre_idx = %s / %d;", localID, stride)
		body.Printf("const unsigned int post = %s %%%% %d;", localID, stride)
		body.Raw(code)
		body.Line("")
	})
	if groupErr != nil {
		return groupErr
	}
	be.GenKernelPostamble(os, "synapseDynamics")
	return nil
}
