// Copyright Consensys Software Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with
// the License. You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on
// an "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied. See the License for the
// specific language governing permissions and limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0

// Package bitfield packs and unpacks logical field values to and from
// instruction words given a schema.FieldEncoding's list of bit segments.
// Both functions are pure: no allocation, no error path, total over their
// domain by construction of the schema invariants.
package bitfield

import "github.com/consensys/rv32fuzz/pkg/isa/schema"

// mask64 returns a mask of the low w bits (w in [0,64]).
func mask64(w uint) uint64 {
	if w == 0 {
		return 0
	}

	if w >= 64 {
		return ^uint64(0)
	}

	return (uint64(1) << w) - 1
}

// Encode packs value into word according to enc's segments, returning the
// updated word. For each segment, the corresponding slice of value is
// extracted, the target bit range of word is cleared, and the extracted
// bits are OR'd in shifted into place. Segments are applied in declaration
// order; the no-overlap invariant on enc makes the result order-independent.
func Encode(word uint64, enc *schema.FieldEncoding, value int64) uint64 {
	masked := uint64(value) & mask64(enc.TotalWidth)

	for _, seg := range enc.Segments {
		if seg.Width == 0 {
			continue
		}

		bits := (masked >> seg.ValueLsb) & mask64(seg.Width)
		clearMask := mask64(seg.Width) << seg.WordLsb
		word = (word &^ clearMask) | (bits << seg.WordLsb)
	}

	return word
}

// Decode assembles a logical field value from word according to enc's
// segments: value is built by OR'ing ((word >> seg.WordLsb) & mask(seg.Width))
// << seg.ValueLsb over all segments. When enc.IsSigned and
// enc.TotalWidth is strictly less than 64, the result is sign-extended
// from bit TotalWidth-1.
func Decode(word uint64, enc *schema.FieldEncoding) int64 {
	var value uint64

	for _, seg := range enc.Segments {
		if seg.Width == 0 {
			continue
		}

		bits := (word >> seg.WordLsb) & mask64(seg.Width)
		value |= bits << seg.ValueLsb
	}

	value &= mask64(enc.TotalWidth)

	if enc.IsSigned && enc.TotalWidth > 0 && enc.TotalWidth < 64 {
		return SignExtend(int64(value), enc.TotalWidth)
	}

	return int64(value)
}

// SignExtend sign-extends the low width bits of v, treating bit width-1 as
// the sign bit. width must be in (0,64).
func SignExtend(v int64, width uint) int64 {
	shift := 64 - width
	return (v << shift) >> shift
}

// Encode32 is a convenience wrapper over Encode for the common RV32 case
// of a 32-bit instruction word.
func Encode32(word uint32, enc *schema.FieldEncoding, value int64) uint32 {
	return uint32(Encode(uint64(word), enc, value))
}

// Decode32 is a convenience wrapper over Decode for the common RV32 case
// of a 32-bit instruction word.
func Decode32(word uint32, enc *schema.FieldEncoding) int64 {
	return Decode(uint64(word), enc)
}
