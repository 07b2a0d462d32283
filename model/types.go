// Copyright (c) 2022, The GoKi Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package model implements the network model (spec section 4.2): the
// registry of neuron groups, synapse groups and current sources, with
// derived facts computed by a finalization pass that runs exactly once.
package model

// VarLocation is a bit set over {host, device, zero_copy}, controlling
// memory allocation and push/pull emission for one variable or EGP.
type VarLocation int

const (
	LocHost VarLocation = 1 << iota
	LocDevice
	LocZeroCopy
)

// LocHostDevice is the common case: resident on both host and device,
// requiring explicit push/pull.
const LocHostDevice = LocHost | LocDevice

func (l VarLocation) HasHost() bool    { return l&LocHost != 0 }
func (l VarLocation) HasDevice() bool  { return l&LocDevice != 0 }
func (l VarLocation) IsZeroCopy() bool { return l&LocZeroCopy != 0 }
func (l VarLocation) NeedsPushPull() bool {
	return l.HasHost() && l.HasDevice() && !l.IsZeroCopy()
}

// VarImplementation selects how a variable's value is realized.
type VarImplementation int

const (
	// VarIndividual: a per-element array, one value per group member.
	VarIndividual VarImplementation = iota
	// VarGlobal: one value shared by every element of the group.
	VarGlobal
	// VarProcedural: re-derived from a seed on demand, never stored.
	VarProcedural
)

// MatrixConnectivity selects how a SynapseGroup's connectivity is stored.
type MatrixConnectivity int

const (
	MatrixDense MatrixConnectivity = iota
	MatrixSparse
	MatrixBitmask
	MatrixProcedural
)

func (m MatrixConnectivity) String() string {
	switch m {
	case MatrixDense:
		return "dense"
	case MatrixSparse:
		return "sparse"
	case MatrixBitmask:
		return "bitmask"
	case MatrixProcedural:
		return "procedural"
	default:
		return "unknown"
	}
}

// MatrixWeight selects how a SynapseGroup's weight values are stored.
type MatrixWeight int

const (
	WeightIndividual MatrixWeight = iota
	WeightGlobal
	WeightProcedural
)

// Span selects the parallelization axis for a synapse group's update.
type Span int

const (
	SpanPresynaptic Span = iota
	SpanPostsynaptic
)

func (s Span) String() string {
	if s == SpanPresynaptic {
		return "presynaptic"
	}
	return "postsynaptic"
}
