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
package bitfield

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/consensys/rv32fuzz/pkg/isa/schema"
)

func rdField() *schema.FieldEncoding {
	return &schema.FieldEncoding{
		Name:       "rd",
		TotalWidth: 5,
		Segments:   []schema.FieldSegment{{WordLsb: 7, Width: 5, ValueLsb: 0}},
	}
}

func sImmField() *schema.FieldEncoding {
	return &schema.FieldEncoding{
		Name:       "imm",
		TotalWidth: 12,
		IsSigned:   true,
		Segments: []schema.FieldSegment{
			{WordLsb: 25, Width: 7, ValueLsb: 5},
			{WordLsb: 7, Width: 5, ValueLsb: 0},
		},
	}
}

// Scenario 1 from spec.md §9: decode/encode the rd field of an R-type ADD.
func TestScenarioRTypeRd(t *testing.T) {
	enc := rdField()

	assert.Equal(t, int64(1), Decode32(0x003100B3, enc))

	base := uint32(0x003100B3) &^ (0x1F << 7)
	assert.Equal(t, uint32(0x003102B3), Encode32(base, enc, 5))
}

// Scenario 2 from spec.md §9: discontiguous S-type immediate round-trips
// through both segments and sign-extends correctly.
func TestScenarioDiscontiguousImmediate(t *testing.T) {
	enc := sImmField()

	word := Encode32(0, enc, -1)
	assert.Equal(t, uint32(0xFE000F80), word&0xFE000F80)
	assert.Equal(t, uint32(0x7F), (word>>25)&0x7F)
	assert.Equal(t, uint32(0x1F), (word>>7)&0x1F)

	assert.Equal(t, int64(-1), Decode32(word, enc))
}

func TestRoundTripUnsignedAllWidths(t *testing.T) {
	for w := uint(1); w <= 20; w++ {
		enc := &schema.FieldEncoding{
			TotalWidth: w,
			Segments:   []schema.FieldSegment{{WordLsb: 0, Width: w, ValueLsb: 0}},
		}

		for v := int64(0); v < int64(1)<<w; v++ {
			word := Encode32(0, enc, v)
			require.Equal(t, v, Decode32(word, enc))
		}
	}
}

func TestRoundTripSigned(t *testing.T) {
	enc := &schema.FieldEncoding{
		TotalWidth: 12,
		IsSigned:   true,
		Segments:   []schema.FieldSegment{{WordLsb: 20, Width: 12, ValueLsb: 0}},
	}

	for v := int64(-2048); v < 2048; v++ {
		word := Encode32(0, enc, v)
		assert.Equal(t, v, Decode32(word, enc))
	}
}

func TestSignedMaxNegative(t *testing.T) {
	enc := &schema.FieldEncoding{
		TotalWidth: 12,
		IsSigned:   true,
		Segments:   []schema.FieldSegment{{WordLsb: 20, Width: 12, ValueLsb: 0}},
	}

	word := Encode32(0, enc, -2048)
	assert.Equal(t, int64(-2048), Decode32(word, enc))
}

// Non-interference: encoding two non-overlapping fields of the same format
// in either order yields the same word.
func TestNonInterference(t *testing.T) {
	rd := rdField()
	rs1 := &schema.FieldEncoding{
		TotalWidth: 5,
		Segments:   []schema.FieldSegment{{WordLsb: 15, Width: 5, ValueLsb: 0}},
	}

	a := Encode32(Encode32(0, rd, 7), rs1, 9)
	b := Encode32(Encode32(0, rs1, 9), rd, 7)
	assert.Equal(t, a, b)
}

func TestZeroWidthFieldIsNoop(t *testing.T) {
	enc := &schema.FieldEncoding{TotalWidth: 0}

	assert.Equal(t, uint32(0x1234), Encode32(0x1234, enc, 99))
	assert.Equal(t, int64(0), Decode32(0x1234, enc))
}
