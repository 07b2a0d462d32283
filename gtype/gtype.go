// Copyright (c) 2022, The GoKi Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package gtype defines the device-resident numeric types that may appear
// as an extra-global-parameter or variable type in a Snippet. Float is the
// default scalar; FloatN are packed vectors for snippets that need a
// coordinate, rate, or weight-pair EGP without declaring a separate
// per-element variable for each component.
package gtype

import "goki.dev/mat32/v2"

// Float is the default device scalar type for single precision.
type Float = float32

// Float2 is a length 2 vector of float32, usable as an EGP type.
type Float2 = mat32.Vec2

// Float3 is a length 3 vector of float32, usable as an EGP type.
type Float3 = mat32.Vec3

// Float4 is a length 4 vector of float32, usable as an EGP type.
type Float4 = mat32.Vec4
