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
	"encoding/binary"
	"math/rand/v2"
)

// canonicalNop is the wire encoding of RV32I's ADDI x0, x0, 0, the
// conventional nop; nopWord emits it for a 4-byte word.
const canonicalNop uint32 = 0x00000013

// ecall is the wire encoding of the RV32I ECALL instruction.
const ecall uint32 = 0x00000073

// injectEnvelope appends the trailing "exit stub" described in §4.3/§6: a
// LUI/ADDI/ADDI/SW/ECALL sequence that writes 1 to TohostAddr when a
// nonzero tohost address is configured, or a bare ECALL otherwise. Partial
// trailing bytes are zero-padded up to a word boundary first (no nop words
// are inserted), and the payload is trimmed as needed to keep the total
// word count under Config.MaxWordsTotal.
func (m *Mutator) injectEnvelope(buf []byte, maxOutputBytes int, _ *rand.Rand) []byte {
	wordBytes := m.wordBytes
	if wordBytes <= 0 {
		wordBytes = 4
	}

	stub := m.exitStub()

	capWords := m.cfg.MaxWordsTotal
	if capWords == 0 {
		capWords = ^uint(0)
	}

	stubWords := uint(len(stub) / 4)

	payload := padToWordBoundary(buf, wordBytes)

	payloadWordCap := uint(0)
	if capWords > stubWords {
		payloadWordCap = capWords - stubWords
	}

	maxPayloadBytes := int(payloadWordCap) * wordBytes
	if maxOutputBytes > 0 {
		if budget := maxOutputBytes - len(stub); budget < maxPayloadBytes || maxPayloadBytes == 0 {
			maxPayloadBytes = budget
		}
	}

	if maxPayloadBytes < 0 {
		maxPayloadBytes = 0
	}

	if len(payload) > maxPayloadBytes {
		payload = payload[:roundDownToWord(maxPayloadBytes, wordBytes)]
	}

	out := make([]byte, 0, len(payload)+len(stub))
	out = append(out, payload...)
	out = append(out, stub...)

	return out
}

// exitStub builds the little-endian byte sequence for the configured
// tohost address, or a bare ECALL when TohostAddr is zero.
func (m *Mutator) exitStub() []byte {
	if m.cfg.TohostAddr == 0 {
		return encodeWords(ecall)
	}

	hi20, lo12 := splitHiLo(m.cfg.TohostAddr)

	// LUI x5, hi20
	lui := encodeUType(0x37, 5, hi20)
	// ADDI x5, x5, lo12
	addiLo := encodeIType(0x13, 0, 5, 5, lo12)
	// ADDI x6, x0, 1
	addiOne := encodeIType(0x13, 0, 6, 0, 1)
	// SW x6, 0(x5)
	sw := encodeSType(0x23, 2, 5, 6, 0)

	return encodeWords(lui, addiLo, addiOne, sw, ecall)
}

func encodeWords(words ...uint32) []byte {
	out := make([]byte, 4*len(words))

	for i, w := range words {
		binary.LittleEndian.PutUint32(out[i*4:], w)
	}

	return out
}

// splitHiLo applies the standard (addr+0x800)>>12 / addr-(hi20<<12) split
// so that hi20<<12 + sign_extend(lo12) reconstructs addr exactly.
func splitHiLo(addr uint32) (hi20 uint32, lo12 uint32) {
	hi20 = (addr + 0x800) >> 12
	lo12 = addr - (hi20 << 12)

	return hi20, lo12 & 0xFFF
}

func encodeUType(opcode, rd, imm20 uint32) uint32 {
	return (imm20 << 12) | (rd << 7) | opcode
}

func encodeIType(opcode, funct3, rd, rs1, imm12 uint32) uint32 {
	return ((imm12 & 0xFFF) << 20) | (rs1 << 15) | (funct3 << 12) | (rd << 7) | opcode
}

func encodeSType(opcode, funct3, rs1, rs2, imm12 uint32) uint32 {
	imm := imm12 & 0xFFF
	lo := imm & 0x1F
	hi := (imm >> 5) & 0x7F

	return (hi << 25) | (rs2 << 20) | (rs1 << 15) | (funct3 << 12) | (lo << 7) | opcode
}
