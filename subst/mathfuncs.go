// Copyright (c) 2022, The GoKi Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package subst

import (
	"regexp"

	"github.com/gennsim/genncore/precision"
)

// mathFuncs is the fixed table of math function base names the companion
// pass of EnsureFType rewrites between their double form (bare name) and
// single-precision form (name+"f"), matching the C/CUDA math library
// surface the teacher's HLSL emission targets (SPEC_FULL.md section 3).
// Not shipped by the example pack in table form -- built from the
// standard math.h / CUDA math API surface.
var mathFuncs = []string{
	"sin", "cos", "tan", "asin", "acos", "atan", "atan2",
	"sinh", "cosh", "tanh", "asinh", "acosh", "atanh",
	"exp", "exp2", "expm1", "log", "log2", "log10", "log1p",
	"pow", "sqrt", "cbrt", "rsqrt", "hypot",
	"fabs", "floor", "ceil", "round", "trunc", "rint", "nearbyint",
	"fmod", "remainder", "remquo", "copysign", "nextafter", "nexttoward",
	"fdim", "fmax", "fmin", "fma",
	"erf", "erfc", "tgamma", "lgamma",
	"ldexp", "frexp", "modf", "scalbn", "scalbln", "ilogb", "logb",
	"j0", "j1", "jn", "y0", "y1",
}

type mathFuncRegexps struct {
	double *regexp.Regexp // matches the bare (double-precision) name
	single *regexp.Regexp // matches the "f"-suffixed (single-precision) name
}

var mathFuncTable = func() map[string]mathFuncRegexps {
	t := make(map[string]mathFuncRegexps, len(mathFuncs))
	for _, name := range mathFuncs {
		t[name] = mathFuncRegexps{
			double: regexp.MustCompile(`\b` + name + `\b`),
			single: regexp.MustCompile(`\b` + name + `f\b`),
		}
	}
	return t
}()

// ensureFTypeFuncs rewrites every math function name in src to its
// single- or double-precision form, per prec. Extended precision is
// treated identically to double, since no backend in this pack
// distinguishes the two at the text level.
func ensureFTypeFuncs(src []byte, prec precision.FType) []byte {
	if prec.IsSingle() {
		for _, name := range mathFuncs {
			re := mathFuncTable[name]
			// avoid double-suffixing an already-single name: replace the
			// bare name, but a prior single name ("cosf") never matches
			// \bcos\b since the trailing "f" breaks the word boundary.
			src = re.double.ReplaceAll(src, []byte(name+"f"))
		}
		return src
	}
	for _, name := range mathFuncs {
		re := mathFuncTable[name]
		src = re.single.ReplaceAll(src, []byte(name))
	}
	return src
}
