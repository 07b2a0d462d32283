// Copyright (c) 2022, The GoKi Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package subst

import (
	"fmt"
	"strings"
)

// FunctionSubstitute rewrites every occurrence of $(funcName, a1, a2, ...,
// a_arity) with template, whose body may reference its arguments via
// $(0), $(1), .... Argument parsing respects nested parentheses and
// strips top-level whitespace from each argument. Zero-arity calls are
// matched as $(funcName) with no trailing comma. It is an error (per
// spec section 4.1, "Fails (assertion) if the matched call has the wrong
// arity or an empty argument") if a matched call supplies the wrong
// number of arguments or any argument is empty after trimming.
func (b *Buffer) FunctionSubstitute(funcName string, arity int, template string) error {
	out, err := rewriteCalls(b.data, funcName, arity, template)
	if err != nil {
		return err
	}
	b.data = out
	return nil
}

// rewriteCalls scans src for "$(funcName" and, for each occurrence,
// parses a balanced argument list (possibly empty, for arity 0) up to
// the matching close paren, then replaces the whole "$(funcName, ...)"
// span with template, having substituted $(0)..$(arity-1) for the
// parsed arguments.
func rewriteCalls(src []byte, funcName string, arity int, template string) ([]byte, error) {
	key := "$(" + funcName
	out := make([]byte, 0, len(src))
	s := string(src)
	i := 0
	for {
		idx := strings.Index(s[i:], key)
		if idx < 0 {
			out = append(out, s[i:]...)
			break
		}
		start := i + idx
		out = append(out, s[i:start]...)

		// character immediately after the matched name must be a comma
		// (start of an argument list), a close paren (zero-arity call),
		// or nothing else -- otherwise this is a longer identifier that
		// happens to have funcName as a prefix (e.g. "$(scale2" when
		// looking for "$(scale"), so it's not a match.
		after := start + len(key)
		if after >= len(s) {
			out = append(out, s[start:]...)
			break
		}
		switch s[after] {
		case ',', ')':
			// real match, parse below
		default:
			out = append(out, s[start:after]...)
			i = after
			continue
		}

		argsStart := after
		end, args, err := parseArgs(s, argsStart)
		if err != nil {
			return nil, fmt.Errorf("subst: FunctionSubstitute(%s): %w", funcName, err)
		}
		if len(args) != arity {
			return nil, fmt.Errorf("subst: FunctionSubstitute(%s): expected %d args, got %d in %q",
				funcName, arity, len(args), s[start:end])
		}
		for _, a := range args {
			if a == "" {
				return nil, fmt.Errorf("subst: FunctionSubstitute(%s): empty argument in %q", funcName, s[start:end])
			}
		}

		expanded := expandTemplate(template, args)
		out = append(out, expanded...)
		i = end
	}
	return out, nil
}

// parseArgs parses a balanced "(...)"-nested argument list starting
// right after the function name (pos points at the comma or close
// paren following the name), up to and including the matching close
// paren of the $(...) call. Whitespace at the top level of each
// argument is stripped; nested parentheses are balanced and left
// untouched inside arguments.
func parseArgs(s string, pos int) (end int, args []string, err error) {
	if s[pos] == ')' {
		return pos + 1, nil, nil
	}
	// s[pos] == ','
	depth := 0
	argStart := pos + 1
	i := pos + 1
	for i < len(s) {
		switch s[i] {
		case '(':
			depth++
		case ')':
			if depth == 0 {
				args = append(args, strings.TrimSpace(s[argStart:i]))
				return i + 1, args, nil
			}
			depth--
		case ',':
			if depth == 0 {
				args = append(args, strings.TrimSpace(s[argStart:i]))
				argStart = i + 1
			}
		}
		i++
	}
	return 0, nil, fmt.Errorf("unterminated argument list starting at %d", pos)
}

// expandTemplate substitutes $(0)..$(len(args)-1) in template for args.
func expandTemplate(template string, args []string) string {
	out := template
	for i, a := range args {
		out = strings.ReplaceAll(out, fmt.Sprintf("$(%d)", i), a)
	}
	return out
}
