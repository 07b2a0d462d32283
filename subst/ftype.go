// Copyright (c) 2022, The GoKi Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package subst

import "github.com/gennsim/genncore/precision"

// ftypeState is one of the seven states of the ensure_ftype scanner
// (spec section 4.1). stAfterToken is "S0", stBeforeNumber is "S1",
// and so on through stExpDigits ("S6"). The "after trailing letter"
// state is stAfterToken itself: an "else"-class character, including
// the letter that ends a floating literal, lands the scanner there until
// the next "op"-class character.
type ftypeState int

const (
	stBeforeNumber ftypeState = iota // S1: may start number
	stAfterToken                     // S0: looking for lead-in
	stInteger                        // S2: integer body
	stFraction                       // S3: fractional body
	stAfterExpMark                   // S4: after exponent marker
	stAfterExpSign                   // S5: after exponent sign
	stExpDigits                      // S6: exponent digits
)

type charClass int

const (
	clsDigit charClass = iota
	clsDot
	clsExp
	clsSign
	clsOp
	clsElse
)

func classify(c byte) charClass {
	switch {
	case c >= '0' && c <= '9':
		return clsDigit
	case c == '.':
		return clsDot
	case c == 'e' || c == 'E':
		return clsExp
	case c == '+' || c == '-':
		return clsSign
	case c == ' ' || c == '\t' || c == '\n' || c == '\r' ||
		c == '(' || c == ')' || c == '[' || c == ']' || c == '{' || c == '}' ||
		c == ',' || c == ';' || c == ':' || c == '*' || c == '/' || c == '%' ||
		c == '=' || c == '<' || c == '>' || c == '!' || c == '&' || c == '|' ||
		c == '^' || c == '~' || c == '?':
		return clsOp
	default:
		return clsElse
	}
}

// EnsureFType runs the numeric-literal precision coercion pass over the
// buffer (spec section 4.1), then the companion math-function-name
// coercion pass. For single precision it appends an "f" suffix to every
// floating literal lacking one and rewrites math function names to their
// "f"-suffixed forms; for double/extended it strips any "f" literal
// suffix and un-suffixes math function names. Integer-looking tokens (no
// dot, no exponent) are left untouched -- this is a documented invariant,
// not an oversight: see DESIGN.md's Open Question entry.
func (b *Buffer) EnsureFType(prec precision.FType) {
	b.data = ensureFTypeLiterals(b.data, prec.IsSingle())
	b.data = ensureFTypeFuncs(b.data, prec)
}

func ensureFTypeLiterals(src []byte, single bool) []byte {
	out := make([]byte, 0, len(src)+8)
	state := stBeforeNumber
	i, n := 0, len(src)
	for i < n {
		c := src[i]
		cls := classify(c)
		switch state {
		case stAfterToken: // S0
			if cls == clsOp {
				state = stBeforeNumber
			}
			out = append(out, c)
			i++
		case stBeforeNumber: // S1
			switch cls {
			case clsDigit:
				state = stInteger
			case clsDot:
				state = stFraction
			case clsElse:
				state = stAfterToken
			}
			out = append(out, c)
			i++
		case stInteger: // S2
			switch cls {
			case clsDot:
				state = stFraction
			case clsExp:
				state = stAfterExpMark
			case clsOp:
				state = stBeforeNumber // fix-int: no emit
			case clsElse:
				state = stAfterToken // no emit
			}
			out = append(out, c)
			i++
		case stFraction: // S3
			switch cls {
			case clsExp:
				state = stAfterExpMark
				out = append(out, c)
				i++
			case clsOp:
				out, i = emitAt(out, src, i, single)
				state = stBeforeNumber
			case clsElse:
				out, i = emitAt(out, src, i, single)
				state = stAfterToken
			default: // digit, dot or sign: stay
				out = append(out, c)
				i++
			}
		case stAfterExpMark: // S4
			switch cls {
			case clsDigit:
				state = stExpDigits
				out = append(out, c)
				i++
			case clsSign:
				state = stAfterExpSign
				out = append(out, c)
				i++
			case clsOp:
				out, i = emitAt(out, src, i, single)
				state = stBeforeNumber
			case clsElse:
				state = stAfterToken
				out = append(out, c)
				i++
			default:
				out = append(out, c)
				i++
			}
		case stAfterExpSign: // S5
			switch cls {
			case clsDigit:
				state = stExpDigits
				out = append(out, c)
				i++
			case clsOp:
				out, i = emitAt(out, src, i, single)
				state = stBeforeNumber
			case clsElse:
				state = stAfterToken
				out = append(out, c)
				i++
			default:
				out = append(out, c)
				i++
			}
		case stExpDigits: // S6
			switch cls {
			case clsDigit:
				out = append(out, c)
				i++
			case clsOp:
				out, i = emitAt(out, src, i, single)
				state = stBeforeNumber
			case clsElse:
				out, i = emitAt(out, src, i, single)
				state = stAfterToken
			default:
				out = append(out, c)
				i++
			}
		}
	}
	if (state == stFraction || state == stExpDigits) && single {
		out = append(out, 'f')
	}
	return out
}

// emitAt performs the insert/strip suffix action at the boundary
// character src[i] (the character that ended a floating literal), and
// returns the new output slice plus the index to resume scanning from.
func emitAt(out []byte, src []byte, i int, single bool) ([]byte, int) {
	c := src[i]
	if c == 'f' || c == 'F' {
		if single {
			out = append(out, c) // already suffixed
		}
		// double/extended: drop the suffix
		return out, i + 1
	}
	if single {
		out = append(out, 'f')
	}
	out = append(out, c)
	return out, i + 1
}
