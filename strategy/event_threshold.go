// Copyright (c) 2022, The GoKi Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package strategy

import (
	"strings"

	"github.com/gennsim/genncore/backend"
)

// WrapEventThreshold re-tests a weight-update group's event-threshold
// condition around its sim code when the group emits spike-like events
// rather than true spikes (spec section 4.4): the threshold expression
// has `$(id_pre)` bound to the current presynaptic index, already
// resolved into threshExpr by the caller's Substitutions stack. If
// threshExpr is empty (no event_threshold_code), simCode is returned
// unwrapped.
func WrapEventThreshold(simCode, threshExpr string) string {
	if strings.TrimSpace(threshExpr) == "" {
		return simCode
	}
	var b strings.Builder
	b.WriteString("if (")
	b.WriteString(threshExpr)
	b.WriteString(") {\n")
	b.WriteString(simCode)
	b.WriteString("\n}")
	return b.String()
}

// EmitEventThresholdRetest writes the wrapped update directly to os,
// using the strategy's own GenUpdate for the inner body.
func EmitEventThresholdRetest(os *backend.Stream, threshExpr string, emitUpdate func(os *backend.Stream)) {
	if strings.TrimSpace(threshExpr) == "" {
		emitUpdate(os)
		return
	}
	os.Printf("if (%s) {", threshExpr)
	os.Indent()
	emitUpdate(os)
	os.Dedent()
	os.Line("}")
}
