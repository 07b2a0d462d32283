// Copyright (c) 2022, The GoKi Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package snippet defines the immutable Snippet value type (spec section
// 3): a bundle of named parameters, derived parameters, extra global
// parameters, variables and role-keyed code strings written in the
// placeholder DSL. A snippet never mutates after construction; the
// Substitution Engine (package subst) is what rewrites its code into
// concrete backend source, once per group that uses it.
package snippet

import "fmt"

// Access describes whether a variable may be written by the code that
// reads it.
type Access int

const (
	ReadWrite Access = iota
	ReadOnly
)

// Var is one entry in a Snippet's ordered variable list.
type Var struct {
	Name   string
	Type   string // backend scalar/vector type name, e.g. "float", "float2"
	Access Access
}

// Param is an ordered parameter name; values are supplied per-group, not
// carried by the Snippet itself.
type Param struct {
	Name string
}

// DerivedFunc computes a derived parameter's value from the group's
// parameter values (by name) and the model time step.
type DerivedFunc func(params map[string]float64, dt float64) float64

// DerivedParam is a derived parameter: a closed-form function of the
// group's parameters and dt, materialized once at Model.Finalize.
type DerivedParam struct {
	Name string
	Fn   DerivedFunc
}

// EGP is an extra global parameter: a runtime-bound scalar or array whose
// value is set by the caller rather than computed, and whose Type may be
// pointer-typed (e.g. "float*"), which matters for memory placement.
type EGP struct {
	Name string
	Type string
}

// IsPointer reports whether this EGP is pointer-typed and therefore
// backed by a device allocation rather than inlined as a scalar.
func (e EGP) IsPointer() bool {
	return len(e.Type) > 0 && e.Type[len(e.Type)-1] == '*'
}

// Role names the code strings a Snippet may carry. Not every Snippet kind
// uses every role; Kind determines which roles are meaningful.
type Role string

const (
	RoleSim             Role = "sim"
	RoleThreshold       Role = "threshold"
	RoleReset           Role = "reset"
	RoleInjection       Role = "injection"
	RoleDecay           Role = "decay"
	RoleApplyInput      Role = "apply_input"
	RoleRowBuild        Role = "row_build"
	RoleEventThreshold  Role = "event_threshold"
	RoleLearnPost       Role = "learn_post"
	RoleSynapseDynamics Role = "synapse_dynamics"
	RoleVarInit         Role = "var_init"
)

// Kind tags which of the six snippet subkinds (spec section 9: "a
// tagged union for snippet subkinds that need extra code strings") a
// Snippet is. The generator looks code up by Role alone; it does not
// check a snippet's Kind.
type Kind int

const (
	KindNeuron Kind = iota
	KindWeightUpdate
	KindPostsynaptic
	KindCurrentSource
	KindConnectivityInit
	KindVarInit
)

// Snippet is the immutable bundle described by spec section 3. Exported
// fields are treated as read-only after construction; callers build one
// with NewSnippet and then fill in its exported fields, or by populating
// a literal.
type Snippet struct {
	Name           string
	Kind           Kind
	ParamNames     []string
	DerivedParams  []DerivedParam
	ExtraGlobalPar []EGP
	Vars           []Var
	Code           map[Role]string
}

// NewSnippet constructs an empty, named Snippet of the given kind.
func NewSnippet(name string, kind Kind) *Snippet {
	return &Snippet{
		Name: name,
		Kind: kind,
		Code: map[Role]string{},
	}
}

// VarNames returns the ordered list of variable names, for convenience
// when building name_substitution calls.
func (s *Snippet) VarNames() []string {
	names := make([]string, len(s.Vars))
	for i, v := range s.Vars {
		names[i] = v.Name
	}
	return names
}

// HasVar reports whether name is a declared variable of this snippet.
func (s *Snippet) HasVar(name string) bool {
	for _, v := range s.Vars {
		if v.Name == name {
			return true
		}
	}
	return false
}

// EGPNames returns the ordered list of extra global parameter names.
func (s *Snippet) EGPNames() []string {
	names := make([]string, len(s.ExtraGlobalPar))
	for i, e := range s.ExtraGlobalPar {
		names[i] = e.Name
	}
	return names
}

// DerivedParamNames returns the ordered list of derived parameter names.
func (s *Snippet) DerivedParamNames() []string {
	names := make([]string, len(s.DerivedParams))
	for i, d := range s.DerivedParams {
		names[i] = d.Name
	}
	return names
}

// CodeFor returns the code string for role, or "" if the snippet doesn't
// define it (some roles, e.g. threshold or reset, are optional -- spec
// section 7: "missing threshold condition emits a warning... missing
// reset code silently omits the reset block").
func (s *Snippet) CodeFor(role Role) string {
	return s.Code[role]
}

// ValidateParamValues checks that a group supplying values for this
// snippet's parameters has exactly one value per declared parameter name,
// in order. This is a construction-time check (spec section 7: "Model
// construction errors... surfaced at the add* or setter call").
func (s *Snippet) ValidateParamValues(values []float64) error {
	if len(values) != len(s.ParamNames) {
		return fmt.Errorf("snippet %q: expected %d parameter values, got %d", s.Name, len(s.ParamNames), len(values))
	}
	return nil
}

// ValidateVarInits checks that a group supplying variable initializers
// for this snippet names only variables the snippet actually declares.
func (s *Snippet) ValidateVarInits(names []string) error {
	for _, n := range names {
		if !s.HasVar(n) {
			return fmt.Errorf("snippet %q: variable initializer %q is not in the snippet's var list", s.Name, n)
		}
	}
	return nil
}

// ParamMap builds a name->value map from this snippet's ordered parameter
// names and a parallel values slice, for use with DerivedFunc.
func (s *Snippet) ParamMap(values []float64) map[string]float64 {
	m := make(map[string]float64, len(s.ParamNames))
	for i, n := range s.ParamNames {
		if i < len(values) {
			m[n] = values[i]
		}
	}
	return m
}
