// Copyright (c) 2022, The GoKi Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package generator

import (
	"fmt"
	"log"
	"strings"

	"github.com/gennsim/genncore/backend"
	"github.com/gennsim/genncore/model"
	"github.com/gennsim/genncore/snippet"
	"github.com/gennsim/genncore/timer"
)

// GenerateNeuronUpdate emits the pre-reset kernel (queue pointer advance,
// spike-count zeroing) and the neuron update kernel for every neuron
// group in m, in registry iteration order (spec section 4.5, "Neuron
// update"). Errors name the snippet/role/residue that failed
// check_unresolved.
func GenerateNeuronUpdate(m *model.Model, be backend.Backend, tm ...*timer.Time) (string, error) {
	if !m.Finalized() {
		return "", fmt.Errorf("generator: GenerateNeuronUpdate: model %q is not finalized", m.Name())
	}
	defer startTiming(tm)()
	os := backend.NewStream()
	be.GenKernelPreamble(os, "preNeuronReset")
	m.NeuronGroups().Each(func(name string, ng *model.NeuronGroup) bool {
		if ng.RequiresDelay() {
			os.Printf("spkQuePtr%s = (spkQuePtr%s + 1) %% %d;", name, name, ng.NumDelaySlots)
		}
		os.Printf("spikeCount%s = 0;", name)
		if neuronGroupEmitsSpikeEvents(ng) {
			os.Printf("spikeEventCount%s = 0;", name)
		}
		return true
	})
	be.GenKernelPostamble(os, "preNeuronReset")

	be.GenKernelPreamble(os, "updateNeurons")
	names := m.NeuronGroups().Names()
	sub := backend.NewSubstitutions(m.Precision())
	var groupErr error
	be.GenParallelGroup(os, sub, names, func(name string) int {
		ng, _ := m.NeuronGroups().Get(name)
		return ng.Count
	}, func(body *backend.Stream, sub *backend.Substitutions, name string, localID string) {
		ng, _ := m.NeuronGroups().Get(name)
		if err := emitNeuronGroupUpdate(body, sub, ng, be, localID); err != nil {
			groupErr = err
		}
	})
	if groupErr != nil {
		return "", groupErr
	}
	be.GenKernelPostamble(os, "updateNeurons")
	return os.String(), nil
}

// bindNeuronReservedScope pushes the reserved scalar placeholders the
// neuron roles may use: $(id), $(t), $(Isyn) and $(sT) (the group's
// last-spike time, read through the spkTime buffer). Returns the frame
// count for popScope.
func bindNeuronReservedScope(sub *backend.Substitutions, ng *model.NeuronGroup, prefix, lid string) int {
	sub.PushFunc("id", 0, lid)
	sub.PushFunc("t", 0, "t")
	sub.PushFunc("Isyn", 0, "Isyn")
	sub.PushFunc("sT", 0, fmt.Sprintf("%sspkTime_%s[%s]", prefix, ng.Name, lid))
	return 4
}

func emitNeuronGroupUpdate(os *backend.Stream, sub *backend.Substitutions, ng *model.NeuronGroup, be backend.Backend, lid string) error {
	prefix := be.GetVarPrefix()
	n := bindSnippetScope(sub, ng.Snip, ng.Params, ng.DerivedParams, prefix, "_"+ng.Name)
	n += bindRNG(sub, be, ng.Name)
	n += bindNeuronReservedScope(sub, ng, prefix, lid)
	// innermost frame wins: inside this kernel a snippet variable
	// reference resolves to the local register, not the device symbol.
	if len(ng.Snip.Vars) > 0 {
		sub.PushNames(ng.Snip.VarNames(), "l", "", "")
		n++
	}
	defer popScope(sub, n)

	// pull state into registers; queued variables read the prior-step
	// slot (spec section 5: "Delayed variables are read from the
	// prior-step slot and written to the current slot").
	if ng.RequiresDelay() {
		os.Printf("const unsigned int readDelayOffset = ((spkQuePtr%s + %d) %% %d) * %d;",
			ng.Name, ng.NumDelaySlots-1, ng.NumDelaySlots, ng.Count)
		os.Printf("const unsigned int writeDelayOffset = spkQuePtr%s * %d;", ng.Name, ng.Count)
	}
	for _, v := range ng.Snip.Vars {
		if ng.IsQueueRequired[v.Name] {
			os.Printf("scalar l%s = %s%s_%s[readDelayOffset + %s];", v.Name, prefix, v.Name, ng.Name, lid)
		} else {
			os.Printf("scalar l%s = %s%s_%s[%s];", v.Name, prefix, v.Name, ng.Name, lid)
		}
	}

	os.Line("scalar Isyn = 0;")
	for _, group := range ng.MergedInSynGroups {
		lead := group[0]
		if err := emitInSynApply(os, sub, lead, len(group), prefix, lid); err != nil {
			return err
		}
	}
	for _, cs := range ng.IncomingCurrents {
		if err := emitCurrentInjection(os, sub, cs, prefix); err != nil {
			return err
		}
	}

	simCode, err := resolveCode(sub, ng.Snip.CodeFor(snippet.RoleSim), ng.Snip.Name+"/sim")
	if err != nil {
		return err
	}
	os.Raw(simCode)
	os.Line("")

	threshCode, err := resolveCode(sub, ng.Snip.CodeFor(snippet.RoleThreshold), ng.Snip.Name+"/threshold")
	if err != nil {
		return err
	}
	// oldSpike_<name> is NeuronGroup-owned state in the same family as
	// glbSpk_/spkTime_: a Count-sized device array, zeroed by
	// emitNeuronGroupInit, holding the raw threshold_code result from the
	// previous step. Auto-refractory gating compares this step's raw
	// result against it so a condition that stays true across several
	// steps (e.g. membrane voltage parked above threshold with no reset)
	// fires once per crossing instead of every step.
	oldSpikeRef := fmt.Sprintf("%soldSpike_%s[%s]", prefix, ng.Name, lid)
	if threshCode == "" {
		// spec section 7: "missing threshold condition emits a warning
		// and treats the group as spike-free" -- one of the two
		// documented places the core silently substitutes a default.
		log.Printf("generator: neuron group %q (snippet %q) has no threshold_code; treated as spike-free", ng.Name, ng.Snip.Name)
		os.Printf("%s = false;", oldSpikeRef)
	} else {
		os.Printf("const bool rawThresh = (%s);", threshCode)
		os.Printf("const bool spike = rawThresh && !%s;", oldSpikeRef)
		os.Printf("%s = rawThresh;", oldSpikeRef)
		os.Line("if (spike) {")
		os.Indent()
		spkOffset := ""
		if ng.RequiresDelay() {
			spkOffset = "writeDelayOffset + "
		}
		os.Printf("%sglbSpk_%s[%satomicAdd(&spikeCount%s, 1)] = %s;", prefix, ng.Name, spkOffset, ng.Name, lid)
		os.Printf("%sspkTime_%s[%s] = t;", prefix, ng.Name, lid)
		resetCode, err := resolveCode(sub, ng.Snip.CodeFor(snippet.RoleReset), ng.Snip.Name+"/reset")
		if err != nil {
			return err
		}
		if resetCode != "" {
			os.Raw(resetCode)
			os.Line("")
		}
		os.Dedent()
		os.Line("}")
	}

	eventCond, err := emitSpikeEventCondition(sub, ng, lid)
	if err != nil {
		return err
	}
	if eventCond != "" {
		os.Printf("if (%s) {", eventCond)
		os.Indent()
		os.Printf("%sglbSpkEvnt_%s[atomicAdd(&spikeEventCount%s, 1)] = %s;", prefix, ng.Name, ng.Name, lid)
		os.Dedent()
		os.Line("}")
	}

	for _, v := range ng.Snip.Vars {
		if ng.IsQueueRequired[v.Name] {
			os.Printf("%s%s_%s[writeDelayOffset + %s] = l%s;", prefix, v.Name, ng.Name, lid, v.Name)
		} else {
			os.Printf("%s%s_%s[%s] = l%s;", prefix, v.Name, ng.Name, lid, v.Name)
		}
	}

	for _, group := range ng.MergedInSynGroups {
		lead := group[0]
		if err := emitPSMDecay(os, sub, lead, prefix, lid); err != nil {
			return err
		}
	}
	return nil
}

// emitInSynApply pulls one merged incoming group's accumulator into a
// register, adds the dendritic-delay head when the group buffers delayed
// dendritic input, and applies it to Isyn -- through the postsynaptic
// apply_input_code when the PSM defines one, as a plain accumulate
// otherwise (spec section 4.5: "pull inSyn (and add the dendritic-delay
// head), run the postsynaptic apply_input_code, accumulate into Isyn").
func emitInSynApply(os *backend.Stream, sub *backend.Substitutions, lead *model.SynapseGroup, mergedCount int, prefix, lid string) error {
	reg := "linSyn_" + lead.Name
	os.Printf("scalar %s = %sinSyn_%s[%s]; // merged: %d synapse group(s)", reg, prefix, lead.Name, lid, mergedCount)
	if lead.IsDendriticDelayRequired {
		slots := lead.BackPropDelaySteps + 1
		head := fmt.Sprintf("%sdenDelay_%s[(denDelayPtr%s * %d) + %s]", prefix, lead.Name, lead.Name, lead.NumTrg(), lid)
		os.Printf("%s += %s;", reg, head)
		os.Printf("%s = 0;", head)
		os.Printf("denDelayPtr%s = (denDelayPtr%s + 1) %% %d;", lead.Name, lead.Name, slots)
	}

	apply := ""
	if lead.PSM != nil {
		apply = lead.PSM.CodeFor(snippet.RoleApplyInput)
	}
	if apply == "" {
		os.Printf("Isyn += %s;", reg)
		return nil
	}
	n := bindSnippetScope(sub, lead.PSM, lead.PSMParams, lead.PSMDerivedParams, prefix, "_"+lead.Name)
	sub.PushFunc("inSyn", 0, reg)
	sub.PushFunc("Isyn", 0, "Isyn")
	defer popScope(sub, n+2)
	code, err := resolveCode(sub, apply, lead.PSM.Name+"/apply_input")
	if err != nil {
		return err
	}
	os.Raw(code)
	os.Line("")
	return nil
}

// emitSpikeEventCondition builds the OR of every outgoing synapse
// group's event_threshold_code for ng (spec section 4.5: "on spike-like
// event, OR over all outgoing spike-event conditions"), with `$(id_pre)`
// bound to the neuron's own thread id since the presynaptic population
// is the one being updated. Returns "" if no outgoing group defines one.
func emitSpikeEventCondition(sub *backend.Substitutions, ng *model.NeuronGroup, lid string) (string, error) {
	var conds []string
	for _, sg := range ng.OutgoingSynapses {
		if sg.WUM == nil {
			continue
		}
		raw := sg.WUM.CodeFor(snippet.RoleEventThreshold)
		if raw == "" {
			continue
		}
		// the synapse group's own pre-population is the neuron group
		// currently being updated, so $(id_pre) resolves to the enclosing
		// kernel's bound id and $(X_pre) to the local register
		raw = strings.ReplaceAll(raw, "$(id_pre)", lid)
		for _, v := range ng.Snip.Vars {
			raw = strings.ReplaceAll(raw, "$("+v.Name+"_pre)", "l"+v.Name)
		}
		sub.PushValues(sg.WUM.ParamNames, sg.WUMParams, "")
		cond, err := resolveCode(sub, raw, sg.WUM.Name+"/event_threshold")
		sub.Pop()
		if err != nil {
			return "", err
		}
		if cond != "" {
			conds = append(conds, "("+cond+")")
		}
	}
	return strings.Join(conds, " || "), nil
}

// emitPSMDecay resolves and emits one merged incoming synapse group's
// postsynaptic decay_code and writes the accumulator register back (spec
// section 4.5 runs decay after the neuron's own state write-back),
// binding the lead group's PSM parameters, derived parameters and the
// reserved `$(inSyn)` placeholder to that group's register.
func emitPSMDecay(os *backend.Stream, sub *backend.Substitutions, lead *model.SynapseGroup, prefix, lid string) error {
	reg := "linSyn_" + lead.Name
	if lead.PSM != nil {
		n := bindSnippetScope(sub, lead.PSM, lead.PSMParams, lead.PSMDerivedParams, prefix, "_"+lead.Name)
		sub.PushFunc("inSyn", 0, reg)
		decay, err := resolveCode(sub, lead.PSM.CodeFor(snippet.RoleDecay), lead.PSM.Name+"/decay")
		popScope(sub, n+1)
		if err != nil {
			return err
		}
		if decay != "" {
			os.Raw(decay)
			os.Line("")
		}
	}
	os.Printf("%sinSyn_%s[%s] = %s;", prefix, lead.Name, lid, reg)
	return nil
}

// emitCurrentInjection resolves and emits one current source's
// injection_code, binding `$(injectCurrent, value)` to `Isyn += value`
// (spec section 6's control primitive) around the source's own
// parameter/derived-parameter/variable scope.
func emitCurrentInjection(os *backend.Stream, sub *backend.Substitutions, cs *model.CurrentSource, prefix string) error {
	n := bindSnippetScope(sub, cs.Snip, cs.Params, cs.DerivedParams, prefix, "_"+cs.Name)
	bindInjectCurrent(sub)
	defer popScope(sub, n+1)

	inj, err := resolveCode(sub, cs.Snip.CodeFor(snippet.RoleInjection), cs.Snip.Name+"/injection")
	if err != nil {
		return err
	}
	if inj != "" {
		os.Raw(inj)
		os.Line("")
	}
	return nil
}
