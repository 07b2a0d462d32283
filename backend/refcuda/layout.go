// Copyright (c) 2022, The GoKi Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package refcuda

import (
	"fmt"
	"log"
	"strings"
	"unsafe"

	"github.com/gennsim/genncore/gbool"
	"github.com/gennsim/genncore/gtype"
	"github.com/gennsim/genncore/snippet"
)

// sizeOf returns the device byte size of a backend scalar/vector type
// name: 4 for the 32-bit basic types and bool, 8 for double, and the
// float2/3/4 vector sizes; it returns 0 for any other type name.
func sizeOf(ctype string) int {
	switch ctype {
	case "float", "scalar", "int", "unsigned int", "uint32_t", "int32_t":
		return 4
	case "bool":
		// device flags are int32-backed (gbool); a native 1-byte bool
		// breaks the 4-byte basic alignment uniform blocks require
		return int(unsafe.Sizeof(gbool.False))
	case "double":
		return 8
	case "float2":
		return int(unsafe.Sizeof(gtype.Float2{}))
	case "float3":
		return int(unsafe.Sizeof(gtype.Float3{}))
	case "float4":
		return int(unsafe.Sizeof(gtype.Float4{}))
	default:
		return 0
	}
}

// LayoutIssue describes one problem found while checking a uniform
// parameter block's device layout.
type LayoutIssue string

// CheckParamBlockLayout verifies that a snippet's ordered parameter list,
// laid out as a uniform struct for GenParallelGroup's per-group constant
// block, consists only of 32-bit basic/vector types and totals a multiple
// of 16 bytes -- the same two checks the teacher's struct-alignment
// checker applies to compute-shader uniform structs, here run against a
// snippet's Vars/ParamNames instead of a Go struct's fields (there is no
// Go struct to type-check: the fields here are declared in the
// placeholder DSL, not as Go source).
func CheckParamBlockLayout(snip *snippet.Snippet, ctypeOf func(varName string) string) []LayoutIssue {
	var issues []LayoutIssue
	total := 0
	for range snip.ParamNames {
		total += sizeOf("float")
	}
	for _, v := range snip.Vars {
		ct := v.Type
		if ct == "" {
			ct = ctypeOf(v.Name)
		}
		sz := sizeOf(ct)
		if sz == 0 {
			issues = append(issues, LayoutIssue(fmt.Sprintf("%s: unsupported type %q for a uniform block (must be [u]int32 or float[234])", v.Name, ct)))
			continue
		}
		total += sz
	}
	if total > 0 && total%16 != 0 {
		issues = append(issues, LayoutIssue(fmt.Sprintf("%s: parameter block size %d is not a multiple of 16 bytes", snip.Name, total)))
	}
	return issues
}

// CheckGroupLayout implements backend.GroupLayoutChecker. Unsupported
// field types are hard errors; a block size that is not a multiple of 16
// bytes is only logged, since the runner pads the allocation up rather
// than refusing the model.
func (b *Backend) CheckGroupLayout(snip *snippet.Snippet) error {
	var hard []LayoutIssue
	for _, is := range CheckParamBlockLayout(snip, func(string) string { return "float" }) {
		if strings.Contains(string(is), "unsupported type") {
			hard = append(hard, is)
		} else {
			log.Printf("refcuda: %s (padded up)", is)
		}
	}
	if len(hard) > 0 {
		return fmt.Errorf("refcuda: snippet %q cannot be laid out as a uniform block:\n%s", snip.Name, FormatIssues(hard))
	}
	return nil
}

// FormatIssues renders a slice of LayoutIssue for diagnostic output, one
// per line, matching the teacher's plain fmt.Printf reporting style.
func FormatIssues(issues []LayoutIssue) string {
	lines := make([]string, len(issues))
	for i, is := range issues {
		lines[i] = "    " + string(is)
	}
	return strings.Join(lines, "\n")
}
