// Copyright (c) 2022, The GoKi Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package subst

import (
	"testing"

	"github.com/gennsim/genncore/precision"
)

func TestEnsureFTypeSingle(t *testing.T) {
	b := New("x = 1.5 + 2e-3 + 3;")
	b.EnsureFType(precision.Single)
	want := "x = 1.5f + 2e-3f + 3;"
	if got := b.String(); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestEnsureFTypeDouble(t *testing.T) {
	b := New("x = 1.5f + 2.0;")
	b.EnsureFType(precision.Double)
	want := "x = 1.5 + 2.0;"
	if got := b.String(); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestEnsureFTypeIdempotent(t *testing.T) {
	cases := []string{
		"x = 1.5 + 2e-3 + 3;",
		"x = 1.5f + 2.0;",
		"y = cos(x) * sinf(z) + 3;",
		"",
		"no numbers here at all",
	}
	for _, c := range cases {
		for _, p := range []precision.FType{precision.Single, precision.Double} {
			once := New(c)
			once.EnsureFType(p)
			s1 := once.String()
			twice := New(s1)
			twice.EnsureFType(p)
			s2 := twice.String()
			if s1 != s2 {
				t.Errorf("not idempotent for %q at precision %v: %q != %q", c, p, s1, s2)
			}
		}
	}
}

func TestEnsureFTypeNonInterference(t *testing.T) {
	cases := []string{
		"foo(3, bar)",
		"int i = 0;",
		"for (id = 0; id < n; id++) {}",
	}
	for _, c := range cases {
		for _, p := range []precision.FType{precision.Single, precision.Double} {
			b := New(c)
			b.EnsureFType(p)
			if got := b.String(); got != c {
				t.Errorf("non-interference failed for %q at precision %v: got %q", c, p, got)
			}
		}
	}
}

func TestEnsureFTypeIntegerEndOfInputPassThrough(t *testing.T) {
	b := New("3")
	b.EnsureFType(precision.Single)
	if got := b.String(); got != "3" {
		t.Errorf("got %q, want %q (integer pass-through at end of input)", got, "3")
	}
}

func TestEnsureFTypeMathFuncs(t *testing.T) {
	b := New("y = cos(x) + pow(a, b);")
	b.EnsureFType(precision.Single)
	want := "y = cosf(x) + powf(a, b);"
	if got := b.String(); got != want {
		t.Errorf("got %q, want %q", got, want)
	}

	b2 := New("y = cosf(x) + powf(a, b);")
	b2.EnsureFType(precision.Double)
	want2 := "y = cos(x) + pow(a, b);"
	if got := b2.String(); got != want2 {
		t.Errorf("got %q, want %q", got, want2)
	}
}

func TestEnsureFTypeMathFuncsDontClobberPrefixNames(t *testing.T) {
	b := New("y = acos(x);")
	b.EnsureFType(precision.Single)
	want := "y = acosf(x);"
	if got := b.String(); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestValueSubstitutionRemovesAllOccurrences(t *testing.T) {
	b := New("$(tau) * $(tau) + $(amp)")
	err := b.ValueSubstitution([]string{"tau", "amp"}, []float64{5, 0.7}, "", precision.Single)
	if err != nil {
		t.Fatal(err)
	}
	for _, p := range []string{"tau", "amp"} {
		if err := CheckUnresolved("$("+p+")", "test"); err == nil {
			t.Fatalf("sanity: CheckUnresolved should flag $(%s)", p)
		}
	}
	if err := b.CheckUnresolved("test"); err != nil {
		t.Errorf("unexpected unresolved placeholder after value substitution: %v", err)
	}
}

func TestDCCurrentSourceLiteral(t *testing.T) {
	// scenario 4: DC current source, amp = 0.7, should format as "0.7"
	// at full single precision.
	b := New("Isyn += $(amp);")
	if err := b.ValueSubstitution([]string{"amp"}, []float64{0.7}, "", precision.Single); err != nil {
		t.Fatal(err)
	}
	want := "Isyn += 0.7f;"
	if got := b.String(); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestNameSubstitution(t *testing.T) {
	b := New("$(V_pre) += 1;")
	b.NameSubstitution([]string{"V"}, "dd_", "_neuronsA", "_pre")
	want := "dd_V_neuronsA_pre += 1;"
	if got := b.String(); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestFunctionSubstituteNestedArgs(t *testing.T) {
	b := New("y = $(scale, $(mul, a, b), 0.5);")
	if err := b.FunctionSubstitute("scale", 2, "(($(0)) * ($(1)))"); err != nil {
		t.Fatal(err)
	}
	want := "y = (($(mul, a, b)) * (0.5));"
	if got := b.String(); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestFunctionSubstituteZeroArity(t *testing.T) {
	b := New("r = $(gennrand_uniform);")
	if err := b.FunctionSubstitute("gennrand_uniform", 0, "curand_uniform(&rng)"); err != nil {
		t.Fatal(err)
	}
	want := "r = curand_uniform(&rng);"
	if got := b.String(); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestFunctionSubstituteArityMismatchFails(t *testing.T) {
	b := New("y = $(scale, a);")
	if err := b.FunctionSubstitute("scale", 2, "$(0) * $(1)"); err == nil {
		t.Fatal("expected arity mismatch error")
	}
}

func TestFunctionSubstituteEmptyArgumentFails(t *testing.T) {
	b := New("y = $(scale, , 0.5);")
	if err := b.FunctionSubstitute("scale", 2, "$(0) * $(1)"); err == nil {
		t.Fatal("expected empty-argument error")
	}
}

func TestCheckUnresolvedReportsResidue(t *testing.T) {
	err := CheckUnresolved("x = $(tau) + $(foo, a, b);", "neuronA.sim")
	if err == nil {
		t.Fatal("expected error for unresolved placeholders")
	}
}

func TestCheckUnresolvedEmptyOnFullySubstituted(t *testing.T) {
	if err := CheckUnresolved("x = 5.0f + dd_V_neuronsA;", "neuronA.sim"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
