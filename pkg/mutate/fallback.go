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

import "math/rand/v2"

// ruleName enumerates the fallback (no-schema) mutation rules.
type ruleName uint8

const (
	byteFlip ruleName = iota
	insertPattern
	swapChunks
	truncate
	duplicateChunk
)

// rule pairs a fallback mutation with its selection weight.
type rule struct {
	name   ruleName
	weight uint
}

// defaultRules are the weighted rule set applied when no ISA schema is
// available, matching §4.3's "Fallback path" rule names.
var defaultRules = []rule{
	{byteFlip, 40},
	{insertPattern, 15},
	{swapChunks, 15},
	{truncate, 10},
	{duplicateChunk, 20},
}

// mutateFallback implements §4.3's fallback path: 1-3 weighted-random
// rules applied in place, clamping indices to the buffer bounds.
func (m *Mutator) mutateFallback(input []byte, maxOutputBytes int, rng *rand.Rand) []byte {
	buf := make([]byte, len(input))
	copy(buf, input)

	if len(buf) == 0 {
		buf = m.nopWord()
	}

	n := 1 + rng.IntN(3)

	for i := 0; i < n; i++ {
		buf = applyRule(buf, pickRule(rng), rng, maxOutputBytes)
	}

	return buf
}

func pickRule(rng *rand.Rand) ruleName {
	var total uint
	for _, r := range defaultRules {
		total += r.weight
	}

	pick := rng.UintN(total)

	var acc uint
	for _, r := range defaultRules {
		acc += r.weight
		if pick < acc {
			return r.name
		}
	}

	return byteFlip
}

func applyRule(buf []byte, name ruleName, rng *rand.Rand, maxOutputBytes int) []byte {
	if len(buf) == 0 {
		return buf
	}

	switch name {
	case byteFlip:
		idx := rng.IntN(len(buf))
		buf[idx] ^= byte(1 << rng.IntN(8))

		return buf
	case insertPattern:
		pattern := []byte{0x00, 0xFF, 0x7F, 0x80}[:1+rng.IntN(4)]
		idx := rng.IntN(len(buf) + 1)

		if maxOutputBytes > 0 && len(buf)+len(pattern) > maxOutputBytes {
			return buf
		}

		out := make([]byte, 0, len(buf)+len(pattern))
		out = append(out, buf[:idx]...)
		out = append(out, pattern...)
		out = append(out, buf[idx:]...)

		return out
	case swapChunks:
		if len(buf) < 2 {
			return buf
		}

		i := rng.IntN(len(buf))
		j := rng.IntN(len(buf))
		buf[i], buf[j] = buf[j], buf[i]

		return buf
	case truncate:
		if len(buf) <= 1 {
			return buf
		}

		cut := 1 + rng.IntN(len(buf)-1)

		return buf[:cut]
	case duplicateChunk:
		if len(buf) == 0 {
			return buf
		}

		chunkLen := 1 + rng.IntN(min(4, len(buf)))
		start := rng.IntN(len(buf) - chunkLen + 1)
		chunk := buf[start : start+chunkLen]

		if maxOutputBytes > 0 && len(buf)+len(chunk) > maxOutputBytes {
			return buf
		}

		out := make([]byte, 0, len(buf)+len(chunk))
		out = append(out, buf...)
		out = append(out, chunk...)

		return out
	default:
		return buf
	}
}
