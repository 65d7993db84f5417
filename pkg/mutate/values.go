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
package mutate

import (
	"math/rand/v2"
	"strings"

	"github.com/consensys/rv32fuzz/pkg/isa/schema"
)

// registerRange returns the exclusive upper bound for register draws:
// normally the ISA's full register_count, but restricted to 16 when
// Config.EmbeddedRegs is set (RV32_MODE containing "E").
func (m *Mutator) registerRange() uint {
	count := m.isa.RegisterCount
	if count == 0 {
		count = 32
	}

	if m.cfg.EmbeddedRegs && count > 16 {
		count = 16
	}

	return count
}

// isDestinationRegisterField reports whether name looks like a destination
// register ("rd" or "rd_rs1"), which draws a non-zero value with higher
// probability to avoid trivially dead code.
func isDestinationRegisterField(name string) bool {
	lower := strings.ToLower(name)
	return lower == "rd" || lower == "rd_rs1"
}

// randomFieldValue implements §4.3's randomFieldValue(name, enc):
// register fields draw uniformly over the register range, with
// destination registers re-drawn away from 0 with probability ~0.8;
// signed immediates draw uniformly over their signed range, biased
// toward 0 or ±1 boundary cases; everything else draws uniformly over
// its declared width.
func (m *Mutator) randomFieldValue(name string, enc *schema.FieldEncoding, rng *rand.Rand) int64 {
	switch enc.Kind {
	case schema.Register:
		return m.randomRegisterValue(name, rng)
	case schema.Immediate:
		return m.randomImmediateValue(enc, rng)
	default:
		return randomUnsignedValue(enc.TotalWidth, rng)
	}
}

func (m *Mutator) randomRegisterValue(name string, rng *rand.Rand) int64 {
	upper := m.registerRange()
	if upper == 0 {
		return 0
	}

	draw := rng.UintN(uint(upper))

	if draw == 0 && isDestinationRegisterField(name) && upper > 1 && rng.Float64() < 0.8 {
		draw = 1 + rng.UintN(upper-1)
	}

	return int64(draw)
}

func (m *Mutator) randomImmediateValue(enc *schema.FieldEncoding, rng *rand.Rand) int64 {
	w := enc.TotalWidth
	if w == 0 {
		return 0
	}

	if enc.IsSigned {
		low := -(int64(1) << (w - 1))
		high := int64(1) << (w - 1)
		span := high - low

		if m.isa != nil && m.isa.Defaults.Hints.SignedImmediatesBias {
			if rng.Float64() < m.cfg.ImmRandomProb {
				return 0
			}
		} else if rng.Float64() < m.cfg.ImmRandomProb {
			if rng.IntN(2) == 0 {
				return 1
			}

			return -1
		}

		return low + int64(rng.Uint64N(uint64(span)))
	}

	return randomUnsignedValue(w, rng)
}

func randomUnsignedValue(width uint, rng *rand.Rand) int64 {
	if width == 0 {
		return 0
	}

	if width >= 64 {
		return int64(rng.Uint64())
	}

	span := uint64(1) << width

	return int64(rng.Uint64N(span))
}
