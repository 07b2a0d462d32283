// Copyright (c) 2022, The GoKi Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package backend

import (
	"github.com/gennsim/genncore/precision"
	"github.com/gennsim/genncore/subst"
)

// frame is one scope of bindings pushed onto a Substitutions stack: a
// name substitution (variable name -> prefixed/suffixed symbol) and/or a
// value substitution (parameter name -> literal), plus any function
// macros defined at this scope.
type frame struct {
	names                 []string
	prefix, infix, suffix string

	valueNames  []string
	values      []float64
	valueSuffix string

	funcName     string
	funcArity    int
	funcTemplate string
}

// Substitutions is the nested-scope stack the generator threads through
// every Backend callback (spec section 4.3: "callbacks that receive a
// code stream plus a Substitutions stack"). Each pushed frame can bind
// variable names, parameter values, or a function macro; Resolve applies
// the innermost (most recently pushed) binding for a given placeholder
// first, so a group-local frame shadows a model-wide one.
type Substitutions struct {
	prec   precision.FType
	frames []frame
}

// NewSubstitutions returns an empty stack at the given output precision,
// used by ValueSubstitution frames to format literals.
func NewSubstitutions(prec precision.FType) *Substitutions {
	return &Substitutions{prec: prec}
}

// PushNames binds placeholders `$(name+suffix)` to `prefix+name+infix+suffix`
// for the lifetime of this frame.
func (s *Substitutions) PushNames(names []string, prefix, infix, suffix string) {
	s.frames = append(s.frames, frame{names: names, prefix: prefix, infix: infix, suffix: suffix})
}

// PushValues binds placeholders `$(name+suffix)` to the literal form of
// the corresponding value, formatted at the stack's precision.
func (s *Substitutions) PushValues(names []string, values []float64, suffix string) {
	s.frames = append(s.frames, frame{valueNames: names, values: values, valueSuffix: suffix})
}

// PushFunc binds a function-style placeholder `$(funcName, arg0, ...)` to
// a template expansion.
func (s *Substitutions) PushFunc(funcName string, arity int, template string) {
	s.frames = append(s.frames, frame{funcName: funcName, funcArity: arity, funcTemplate: template})
}

// Precision returns the output precision the stack formats value
// literals at, so resolution points can run the companion literal/math
// coercion pass at the same precision.
func (s *Substitutions) Precision() precision.FType { return s.prec }

// Pop removes the most recently pushed frame.
func (s *Substitutions) Pop() {
	if len(s.frames) > 0 {
		s.frames = s.frames[:len(s.frames)-1]
	}
}

// Depth returns the current number of pushed frames.
func (s *Substitutions) Depth() int { return len(s.frames) }

// Resolve applies every pushed frame, innermost first, to code and
// returns the result. It never mutates unresolved placeholders left by
// a frame not yet pushed (e.g. user parameter names bound by a later,
// outer scope); callers run check_unresolved once all scopes relevant to
// a code string have been pushed.
func (s *Substitutions) Resolve(code string) (string, error) {
	b := subst.New(code)
	for i := len(s.frames) - 1; i >= 0; i-- {
		f := s.frames[i]
		switch {
		case f.names != nil:
			b.NameSubstitution(f.names, f.prefix, f.infix, f.suffix)
		case f.values != nil:
			if err := b.ValueSubstitution(f.valueNames, f.values, f.valueSuffix, s.prec); err != nil {
				return "", err
			}
		case f.funcName != "":
			if err := b.FunctionSubstitute(f.funcName, f.funcArity, f.funcTemplate); err != nil {
				return "", err
			}
		}
	}
	return b.String(), nil
}
