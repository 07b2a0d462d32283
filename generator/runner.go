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
	"github.com/gennsim/genncore/subst"
	"github.com/gennsim/genncore/timer"
)

// varDecl is one entry in the model's device-state inventory: a named
// buffer the runner must declare, allocate, push/pull and free. The same
// inventory drives GenerateDefinitions and GenerateRunner so the two
// emitted artifacts always agree on names, types and counts.
type varDecl struct {
	name  string
	ctype string
	count int
	loc   model.VarLocation
}

type egpDecl struct {
	name  string
	ctype string
}

// stateInventory walks the finalized model and produces the ordered
// inventory of every device buffer and extra global parameter the
// generated kernels reference: neuron state (delay-widened where queued),
// spike machinery, merged inSyn accumulators and dendritic-delay rings,
// per-connection weight state, sparse index arrays, current-source state.
// Iteration follows registry order throughout, so the inventory -- and
// everything emitted from it -- is deterministic.
func stateInventory(m *model.Model) ([]varDecl, []egpDecl) {
	var vars []varDecl
	var egps []egpDecl
	defLoc := m.DefaultVarLocation()
	timeType := "timepoint"

	m.NeuronGroups().Each(func(name string, ng *model.NeuronGroup) bool {
		slots := ng.NumDelaySlots
		for _, v := range ng.Snip.Vars {
			switch ng.VarImplementations[v.Name] {
			case model.VarIndividual:
				d := varDecl{name: v.Name + "_" + name, ctype: v.Type, loc: ng.VarLocations[v.Name]}
				if ng.IsQueueRequired[v.Name] {
					d.count = ng.Count * slots
				} else {
					d.count = ng.Count
				}
				vars = append(vars, d)
			case model.VarGlobal:
				vars = append(vars, varDecl{name: v.Name + "_" + name, ctype: v.Type, count: 1, loc: ng.VarLocations[v.Name]})
			}
			// procedural variables are re-derived on demand, never stored
		}
		spkCount := ng.Count
		if ng.RequiresDelay() {
			spkCount = ng.Count * slots
		}
		vars = append(vars,
			varDecl{name: "glbSpk_" + name, ctype: "unsigned int", count: spkCount, loc: defLoc},
			varDecl{name: "spkTime_" + name, ctype: timeType, count: ng.Count, loc: defLoc},
			varDecl{name: "oldSpike_" + name, ctype: "bool", count: ng.Count, loc: defLoc},
		)
		if neuronGroupEmitsSpikeEvents(ng) {
			vars = append(vars, varDecl{name: "glbSpkEvnt_" + name, ctype: "unsigned int", count: ng.Count, loc: defLoc})
		}
		addEGPs(&egps, ng.Snip)
		for _, group := range ng.MergedInSynGroups {
			lead := group[0]
			vars = append(vars, varDecl{name: "inSyn_" + lead.Name, ctype: "scalar", count: lead.NumTrg(), loc: defLoc})
			if lead.IsDendriticDelayRequired {
				vars = append(vars, varDecl{
					name:  "denDelay_" + lead.Name,
					ctype: "scalar",
					count: lead.NumTrg() * (lead.BackPropDelaySteps + 1),
					loc:   defLoc,
				})
			}
		}
		return true
	})

	narrowInd := "unsigned int"
	if m.DefaultNarrowSparseInd() {
		narrowInd = "uint16_t"
	}
	m.SynapseGroups().Each(func(name string, sg *model.SynapseGroup) bool {
		if sg.WUM != nil && sg.MatrixWeight == model.WeightIndividual {
			for _, v := range sg.WUM.Vars {
				vars = append(vars, varDecl{
					name:  v.Name + "_" + name,
					ctype: v.Type,
					count: sg.NumSrc() * sg.MaxConnections,
					loc:   defLoc,
				})
			}
		}
		switch sg.MatrixConnectivity {
		case model.MatrixSparse:
			connLoc := m.DefaultSparseConnectivityLocation()
			vars = append(vars,
				varDecl{name: "rowLength_" + name, ctype: "unsigned int", count: sg.NumSrc(), loc: connLoc},
				varDecl{name: "ind_" + name, ctype: narrowInd, count: sg.NumSrc() * sg.MaxConnections, loc: connLoc},
				varDecl{name: "indInG_" + name, ctype: "unsigned int", count: sg.NumSrc() + 1, loc: connLoc},
			)
		case model.MatrixBitmask:
			words := (sg.NumSrc()*sg.NumTrg() + 31) / 32
			vars = append(vars, varDecl{name: "gp_" + name, ctype: "uint32_t", count: words, loc: m.DefaultSparseConnectivityLocation()})
		}
		if sg.PSM != nil {
			for _, v := range sg.PSM.Vars {
				vars = append(vars, varDecl{name: v.Name + "_" + name, ctype: v.Type, count: sg.NumTrg(), loc: defLoc})
			}
			addEGPs(&egps, sg.PSM)
		}
		addEGPs(&egps, sg.WUM)
		return true
	})

	m.CurrentSources().Each(func(name string, cs *model.CurrentSource) bool {
		for _, v := range cs.Snip.Vars {
			vars = append(vars, varDecl{name: v.Name + "_" + name, ctype: v.Type, count: cs.Target.Count, loc: cs.Locations[v.Name]})
		}
		addEGPs(&egps, cs.Snip)
		return true
	})
	return vars, egps
}

func addEGPs(egps *[]egpDecl, snip *snippet.Snippet) {
	if snip == nil {
		return
	}
	for _, e := range snip.ExtraGlobalPar {
		dup := false
		for _, have := range *egps {
			if have.name == e.Name {
				dup = true
				break
			}
		}
		if !dup {
			*egps = append(*egps, egpDecl{name: e.Name, ctype: e.Type})
		}
	}
}

// neuronGroupEmitsSpikeEvents reports whether any outgoing synapse group
// defines an event-threshold condition, requiring the spike-event buffer
// and counter alongside the true-spike machinery.
func neuronGroupEmitsSpikeEvents(ng *model.NeuronGroup) bool {
	for _, sg := range ng.OutgoingSynapses {
		if sg.WUM != nil && sg.WUM.CodeFor(snippet.RoleEventThreshold) != "" {
			return true
		}
	}
	return false
}

// neuronGroupNeedsRNG reports whether any code the group's update or
// initialization resolves draws random values, requiring a per-population
// RNG stream addressed by neuron id.
func neuronGroupNeedsRNG(ng *model.NeuronGroup) bool {
	if snippetUsesRNG(ng.Snip) {
		return true
	}
	for _, s := range ng.VarInits {
		if snippetUsesRNG(s) {
			return true
		}
	}
	for _, cs := range ng.IncomingCurrents {
		if snippetUsesRNG(cs.Snip) {
			return true
		}
		for _, s := range cs.VarInits {
			if snippetUsesRNG(s) {
				return true
			}
		}
	}
	return false
}

func snippetUsesRNG(snip *snippet.Snippet) bool {
	if snip == nil {
		return false
	}
	for _, code := range snip.Code {
		if strings.Contains(code, "$(gennrand") || strings.Contains(code, "$(rng)") {
			return true
		}
	}
	return false
}

// kernelNames returns the kernel set the three pipeline emitters produce
// for this model, in launch order, with the thread total each dispatches.
// The conditional entries (learn-post, synapse dynamics, the init
// sub-kernels) mirror the predicates their emitters use, so the runner's
// launches match the kernels that actually exist.
func kernelNames(m *model.Model) []kernelInfo {
	neuronTotal := 0
	m.NeuronGroups().Each(func(_ string, ng *model.NeuronGroup) bool {
		neuronTotal += ng.Count
		return true
	})
	synapseTotal, learnTotal, dynTotal := 0, 0, 0
	m.SynapseGroups().Each(func(_ string, sg *model.SynapseGroup) bool {
		synapseTotal += strategy.Select(sg).NumThreads(sg)
		if sg.WUM != nil && sg.WUM.CodeFor(snippet.RoleLearnPost) != "" {
			learnTotal += sg.NumTrg()
		}
		if sg.WUM != nil && sg.WUM.CodeFor(snippet.RoleSynapseDynamics) != "" {
			dynTotal += strategy.Select(sg).NumThreads(sg)
		}
		return true
	})

	ks := []kernelInfo{
		{name: "updateSynapses", threads: synapseTotal, step: true},
	}
	if learnTotal > 0 {
		ks = append(ks, kernelInfo{name: "learnPostSynapses", threads: learnTotal, step: true})
	}
	if dynTotal > 0 {
		ks = append(ks, kernelInfo{name: "synapseDynamics", threads: dynTotal, step: true})
	}
	ks = append(ks, kernelInfo{name: "preNeuronReset", threads: 1})
	ks = append(ks, kernelInfo{name: "updateNeurons", threads: neuronTotal, step: true})
	ks = append(ks, kernelInfo{name: "init", threads: neuronTotal})

	wumInit, psmInit, sparseInit := 0, 0, 0
	m.SynapseGroups().Each(func(_ string, sg *model.SynapseGroup) bool {
		if sg.WUM != nil && sg.MatrixWeight == model.WeightIndividual && len(sg.WUMVarInits) > 0 {
			wumInit += sg.NumSrc()
		}
		if sg.PSM != nil && len(sg.PSMVarInits) > 0 {
			psmInit += sg.NumTrg()
		}
		if sg.MatrixConnectivity == model.MatrixSparse && sg.ConnectivityInit != nil {
			sparseInit += sg.NumSrc()
		}
		return true
	})
	csInit := 0
	m.CurrentSources().Each(func(_ string, cs *model.CurrentSource) bool {
		if len(cs.VarInits) > 0 {
			csInit += cs.Target.Count
		}
		return true
	})
	if wumInit > 0 {
		ks = append(ks, kernelInfo{name: "initializeSynapseWUMVars", threads: wumInit})
	}
	if psmInit > 0 {
		ks = append(ks, kernelInfo{name: "initializeSynapsePSMVars", threads: psmInit})
	}
	if csInit > 0 {
		ks = append(ks, kernelInfo{name: "initializeCurrentSourceVars", threads: csInit})
	}
	if sparseInit > 0 {
		ks = append(ks, kernelInfo{name: "initializeSparse", threads: sparseInit})
	}
	return ks
}

type kernelInfo struct {
	name    string
	threads int
	step    bool // launched every timestep (vs. once at initialization)
}

// GenerateDefinitions emits the definitions artifact (spec section 6):
// the scalar/timepoint typedefs, the simulation clock, and a declaration
// for every device buffer and extra global parameter the generated
// kernels reference. On backends with device layout rules it also
// verifies every group snippet can be laid out at all.
func GenerateDefinitions(m *model.Model, be backend.Backend, tm ...*timer.Time) (string, error) {
	if !m.Finalized() {
		return "", fmt.Errorf("generator: GenerateDefinitions: model %q is not finalized", m.Name())
	}
	defer startTiming(tm)()
	if err := checkGroupLayouts(m, be); err != nil {
		return "", err
	}
	os := backend.NewStream()
	os.Printf("// definitions for model %s, backend %s", m.Name(), be.Name())
	os.Printf("typedef %s scalar;", m.Precision().CType())
	os.Printf("typedef %s timepoint;", m.TimePrecision().CType())
	os.Line("timepoint t;")
	os.Line("unsigned long long iT;")

	vars, egps := stateInventory(m)
	m.NeuronGroups().Each(func(name string, ng *model.NeuronGroup) bool {
		os.Printf("unsigned int spikeCount%s;", name)
		if neuronGroupEmitsSpikeEvents(ng) {
			os.Printf("unsigned int spikeEventCount%s;", name)
		}
		if ng.RequiresDelay() {
			os.Printf("unsigned int spkQuePtr%s;", name)
		}
		for _, group := range ng.MergedInSynGroups {
			if group[0].IsDendriticDelayRequired {
				os.Printf("unsigned int denDelayPtr%s;", group[0].Name)
			}
		}
		return true
	})
	for _, v := range vars {
		be.DeclareVar(os, v.name, v.ctype, v.count, v.loc)
	}
	for _, e := range egps {
		be.DeclareEGP(os, e.name, e.ctype)
	}
	if m.Timing() {
		for _, k := range kernelNames(m) {
			be.GenTimerDecl(os, k.name)
		}
	}
	return os.String(), nil
}

// GenerateDefinitionsInternal emits the definitions-internal artifact
// (spec section 6): the declarations only generated code itself needs --
// the prototype of every kernel the pipeline emits and the
// per-population RNG state -- kept out of the public definitions header
// a caller includes.
func GenerateDefinitionsInternal(m *model.Model, be backend.Backend, tm ...*timer.Time) (string, error) {
	if !m.Finalized() {
		return "", fmt.Errorf("generator: GenerateDefinitionsInternal: model %q is not finalized", m.Name())
	}
	defer startTiming(tm)()
	os := backend.NewStream()
	os.Printf("// internal definitions for model %s, backend %s", m.Name(), be.Name())
	for _, k := range kernelNames(m) {
		be.GenKernelPrototype(os, k.name)
	}
	be.DeclareRNG(os)
	m.NeuronGroups().Each(func(name string, ng *model.NeuronGroup) bool {
		if neuronGroupNeedsRNG(ng) {
			be.DeclarePopRNG(os, name)
		}
		return true
	})
	return os.String(), nil
}

func checkGroupLayouts(m *model.Model, be backend.Backend) error {
	lc, ok := be.(backend.GroupLayoutChecker)
	if !ok {
		return nil
	}
	var err error
	m.NeuronGroups().Each(func(name string, ng *model.NeuronGroup) bool {
		if e := lc.CheckGroupLayout(ng.Snip); e != nil {
			err = fmt.Errorf("generator: neuron group %q: %w", name, e)
		}
		return err == nil
	})
	if err != nil {
		return err
	}
	m.SynapseGroups().Each(func(name string, sg *model.SynapseGroup) bool {
		for _, snip := range []*snippet.Snippet{sg.WUM, sg.PSM} {
			if snip == nil {
				continue
			}
			if e := lc.CheckGroupLayout(snip); e != nil {
				err = fmt.Errorf("generator: synapse group %q: %w", name, e)
				return false
			}
		}
		return true
	})
	if err != nil {
		return err
	}
	m.CurrentSources().Each(func(name string, cs *model.CurrentSource) bool {
		if e := lc.CheckGroupLayout(cs.Snip); e != nil {
			err = fmt.Errorf("generator: current source %q: %w", name, e)
		}
		return err == nil
	})
	return err
}

// GenerateRunner emits the runner artifact (spec section 6): allocateMem
// and freeMem for every device buffer, per-population push/pull state
// transfers (restricted to the current delay slot for queued variables),
// per-EGP allocate/push/pull, the initialize entry point, and stepTime,
// which launches the per-timestep kernels in dependency order (spec
// section 5: synapse updates execute after the neuron updates they depend
// on; the queue pointer advance happens exactly once per step, in the
// pre-reset kernel) and advances the simulation clock.
func GenerateRunner(m *model.Model, be backend.Backend, tm ...*timer.Time) (string, error) {
	if !m.Finalized() {
		return "", fmt.Errorf("generator: GenerateRunner: model %q is not finalized", m.Name())
	}
	defer startTiming(tm)()
	os := backend.NewStream()
	vars, egps := stateInventory(m)
	kernels := kernelNames(m)

	os.Line("void allocateMem() {")
	os.Indent()
	for _, v := range vars {
		be.AllocateVar(os, v.name, v.ctype, v.count, v.loc)
	}
	for _, e := range egps {
		be.AllocateEGP(os, e.name, e.ctype)
	}
	be.AllocateRNG(os)
	m.NeuronGroups().Each(func(name string, ng *model.NeuronGroup) bool {
		if neuronGroupNeedsRNG(ng) {
			be.AllocatePopRNG(os, name, ng.Count)
		}
		return true
	})
	os.Dedent()
	os.Line("}")
	os.Line("")

	for _, e := range egps {
		os.Printf("void push%sToDevice() {", e.name)
		os.Indent()
		be.PushEGP(os, e.name)
		os.Dedent()
		os.Line("}")
		os.Printf("void pull%sFromDevice() {", e.name)
		os.Indent()
		be.PullEGP(os, e.name)
		os.Dedent()
		os.Line("}")
	}
	if len(egps) > 0 {
		os.Line("")
	}

	emitGroupStateTransfers(os, m, be)

	os.Line("void initialize() {")
	os.Indent()
	os.Line("t = 0;")
	os.Line("iT = 0;")
	for _, k := range kernels {
		if !k.step && k.name != "preNeuronReset" {
			be.GenKernelLaunch(os, k.name, k.threads)
		}
	}
	os.Dedent()
	os.Line("}")
	os.Line("")

	os.Line("void stepTime() {")
	os.Indent()
	for _, k := range kernels {
		if !k.step && k.name != "preNeuronReset" {
			continue
		}
		launch := k
		if m.Timing() {
			be.GenTimerCode(os, k.name, func(body *backend.Stream) {
				be.GenKernelLaunch(body, launch.name, launch.threads)
			})
		} else {
			be.GenKernelLaunch(os, k.name, k.threads)
		}
	}
	os.Printf("t += %s;", formatDT(m))
	os.Line("iT++;")
	os.Dedent()
	os.Line("}")
	os.Line("")

	os.Line("void freeMem() {")
	os.Indent()
	for _, v := range vars {
		be.FreeVar(os, v.name, v.loc)
	}
	os.Dedent()
	os.Line("}")
	return os.String(), nil
}

// emitGroupStateTransfers emits one push and one pull function per
// neuron group, synapse group and current source, transferring every
// individually-stored variable that is host+device resident. Queued
// neuron variables transfer only the current delay slot.
func emitGroupStateTransfers(os *backend.Stream, m *model.Model, be backend.Backend) {
	m.NeuronGroups().Each(func(name string, ng *model.NeuronGroup) bool {
		os.Printf("void push%sStateToDevice() {", name)
		os.Indent()
		for _, v := range ng.Snip.Vars {
			if ng.VarImplementations[v.Name] != model.VarIndividual {
				continue
			}
			sym := v.Name + "_" + name
			if ng.IsQueueRequired[v.Name] {
				be.CurrentVariablePush(os, sym, name, ng.Count, ng.VarLocations[v.Name])
			} else {
				be.Push(os, sym, ng.Count, ng.VarLocations[v.Name])
			}
		}
		os.Dedent()
		os.Line("}")
		os.Printf("void pull%sStateFromDevice() {", name)
		os.Indent()
		for _, v := range ng.Snip.Vars {
			if ng.VarImplementations[v.Name] != model.VarIndividual {
				continue
			}
			sym := v.Name + "_" + name
			if ng.IsQueueRequired[v.Name] {
				be.CurrentVariablePull(os, sym, name, ng.Count, ng.VarLocations[v.Name])
			} else {
				be.Pull(os, sym, ng.Count, ng.VarLocations[v.Name])
			}
		}
		os.Dedent()
		os.Line("}")
		return true
	})

	defLoc := m.DefaultVarLocation()
	m.SynapseGroups().Each(func(name string, sg *model.SynapseGroup) bool {
		if sg.WUM == nil || sg.MatrixWeight != model.WeightIndividual {
			return true
		}
		count := sg.NumSrc() * sg.MaxConnections
		os.Printf("void push%sStateToDevice() {", name)
		os.Indent()
		for _, v := range sg.WUM.Vars {
			be.Push(os, v.Name+"_"+name, count, defLoc)
		}
		os.Dedent()
		os.Line("}")
		os.Printf("void pull%sStateFromDevice() {", name)
		os.Indent()
		for _, v := range sg.WUM.Vars {
			be.Pull(os, v.Name+"_"+name, count, defLoc)
		}
		os.Dedent()
		os.Line("}")
		return true
	})

	m.CurrentSources().Each(func(name string, cs *model.CurrentSource) bool {
		if len(cs.Snip.Vars) == 0 {
			return true
		}
		os.Printf("void push%sStateToDevice() {", name)
		os.Indent()
		for _, v := range cs.Snip.Vars {
			be.Push(os, v.Name+"_"+name, cs.Target.Count, cs.Locations[v.Name])
		}
		os.Dedent()
		os.Line("}")
		os.Printf("void pull%sStateFromDevice() {", name)
		os.Indent()
		for _, v := range cs.Snip.Vars {
			be.Pull(os, v.Name+"_"+name, cs.Target.Count, cs.Locations[v.Name])
		}
		os.Dedent()
		os.Line("}")
		return true
	})
	os.Line("")
}

// formatDT renders the model timestep as a literal at the model's
// precision, through the same coercion path value substitution uses.
func formatDT(m *model.Model) string {
	return subst.FormatLiteral(m.DT(), m.Precision())
}

// GenerateMakefile emits the build-rule fragment for every kernel source
// the pipeline produced, delegating the rule syntax to the backend.
func GenerateMakefile(m *model.Model, be backend.Backend, tm ...*timer.Time) (string, error) {
	if !m.Finalized() {
		return "", fmt.Errorf("generator: GenerateMakefile: model %q is not finalized", m.Name())
	}
	defer startTiming(tm)()
	os := backend.NewStream()
	names := make([]string, 0, 8)
	seen := map[string]bool{}
	for _, k := range kernelNames(m) {
		if !seen[k.name] {
			names = append(names, k.name)
			seen[k.name] = true
		}
	}
	be.GenMakefile(os, names)
	return os.String(), nil
}
