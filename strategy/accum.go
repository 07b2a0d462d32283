// Copyright (c) 2022, The GoKi Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package strategy

import (
	"fmt"

	"github.com/gennsim/genncore/backend"
	"github.com/gennsim/genncore/model"
	"github.com/gennsim/genncore/precision"
)

// AddToInSyn expands the `addToInSyn($(0))` binding inside a weight
// update's sim_code substitutions, choosing the accumulation strategy in
// the fixed order spec section 4.4's dispatch table prescribes:
// dendritic delay first, then the small-population shared accumulator,
// then a dense in-register accumulate, falling back to a plain atomic add
// into inSyn.
func AddToInSyn(sg *model.SynapseGroup, be backend.Backend, prec precision.FType, value string) string {
	atomic := be.FloatAtomicAdd(prec)
	switch {
	case sg.IsDendriticDelayRequired:
		return fmt.Sprintf("%s(&denDelay[offset+post], %s)", atomic, value)
	case be.SupportsNativeSharedAtomics() && sg.SharedMemApplies(be.BlockSize()):
		return fmt.Sprintf("%s(&shLg[post], %s)", atomic, value)
	case usesRegisterAccumulator(sg):
		return fmt.Sprintf("linSyn += %s", value)
	default:
		return fmt.Sprintf("%s(&inSyn[post], %s)", atomic, value)
	}
}
