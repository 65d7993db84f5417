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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/consensys/rv32fuzz/pkg/isa/schema"
)

func loadTestISA(t *testing.T) *schema.ISAConfig {
	t.Helper()

	dir := t.TempDir()

	doc := `
isa: rv32i
base_width: 32
registers: 32

fields:
  opcode: {bits: [0,6], type: opcode}
  rd: {bits: [7,11], type: reg}
  funct3: {bits: [12,14], type: funct}
  rs1: {bits: [15,19], type: reg}
  imm12: {bits: [20,31], signed: true, type: imm}

formats:
  I:
    width: 32
    fields: [opcode, rd, funct3, rs1, imm12]

instructions:
  addi:
    format: I
    fixed: {opcode: 0x13, funct3: 0}
`

	require.NoError(t, os.WriteFile(filepath.Join(dir, "rv32i.yaml"), []byte(doc), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "isa_map.yaml"), []byte("rv32i:\n  - rv32i.yaml\n"), 0o644))

	isa, err := schema.Load(dir, "rv32i")
	require.NoError(t, err)

	return isa
}

func TestMutatorDeterminism(t *testing.T) {
	isa := loadTestISA(t)
	m := New(DefaultConfig(), isa)

	input := []byte{0x13, 0x00, 0x00, 0x00}

	a := m.Mutate(input, 64, 42)
	b := m.Mutate(input, 64, 42)

	assert.Equal(t, a, b)
}

func TestMutatorDeterminismNoSchema(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Strategy = RAW
	m := New(cfg, nil)

	input := []byte{0xDE, 0xAD, 0xBE, 0xEF, 0x01}

	a := m.Mutate(input, 64, 7)
	b := m.Mutate(input, 64, 7)

	assert.Equal(t, a, b)
}

func TestMutatorLengthDiscipline(t *testing.T) {
	isa := loadTestISA(t)
	cfg := DefaultConfig()
	cfg.Strategy = IR
	m := New(cfg, isa)

	for seed := uint64(0); seed < 50; seed++ {
		out := m.Mutate([]byte{1, 2, 3}, 16, seed)
		assert.LessOrEqual(t, len(out), 16)
		assert.Equal(t, 0, len(out)%4, "schema-guided output must be word-aligned")
	}
}

func TestMutatorEmptyInputProducesNop(t *testing.T) {
	isa := loadTestISA(t)
	m := New(DefaultConfig(), isa)

	out := m.Mutate(nil, 64, 1)
	assert.NotEmpty(t, out)
	assert.Equal(t, 0, len(out)%4)
}

func TestMutatorOddTrailingBytesPadded(t *testing.T) {
	isa := loadTestISA(t)
	m := New(DefaultConfig(), isa)

	out := m.Mutate([]byte{0x01, 0x02, 0x03}, 64, 3)
	assert.Equal(t, 0, len(out)%4)
}

func TestFallbackRawNeverDecodes(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Strategy = RAW
	isa := loadTestISA(t)
	m := New(cfg, isa)

	out := m.Mutate([]byte{1, 2, 3, 4}, 64, 99)
	assert.NotNil(t, out)
}

func TestEnvelopeBareEcallWithoutTohost(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Strategy = RAW
	cfg.InjectEnvelope = true
	m := New(cfg, nil)

	out := m.Mutate([]byte{0x13, 0x00, 0x00, 0x00}, 64, 1)
	require.GreaterOrEqual(t, len(out), 4)
	assert.Equal(t, []byte{0x73, 0x00, 0x00, 0x00}, out[len(out)-4:])
}

func TestEnvelopeWithTohost(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Strategy = RAW
	cfg.InjectEnvelope = true
	cfg.TohostAddr = 0x80001000
	m := New(cfg, nil)

	out := m.Mutate([]byte{0x13, 0x00, 0x00, 0x00}, 256, 1)
	require.GreaterOrEqual(t, len(out), 20)

	stub := out[len(out)-20:]
	assert.Equal(t, []byte{0x73, 0x00, 0x00, 0x00}, stub[16:20])
}

// loadRV32ICTestdata loads the real testdata/schema fixture's rv32ic
// ISA (rv32i.yaml extended with rv32c.yaml's CR/CI compressed formats),
// rather than an inline rv32i-only fixture, so the compressed path gets
// exercised against the same files a live run would load.
func loadRV32ICTestdata(t *testing.T) *schema.ISAConfig {
	t.Helper()

	isa, err := schema.Load("../../testdata/schema", "rv32ic")
	require.NoError(t, err)

	return isa
}

func TestInstructionsForWidthSeparatesCompressedFromBase(t *testing.T) {
	isa := loadRV32ICTestdata(t)
	m := New(DefaultConfig(), isa)

	compressed := m.instructionsForWidth(16)
	require.NotEmpty(t, compressed, "rv32ic must declare at least one 16-bit instruction")

	names16 := make(map[string]bool)
	for _, insn := range compressed {
		format, ok := isa.Format(insn.FormatName)
		require.True(t, ok)
		assert.Equal(t, uint(16), format.WordWidth, "instructionsForWidth(16) must only return 16-bit formats")
		names16[insn.Mnemonic] = true
	}

	assert.True(t, names16["c.mv"])
	assert.True(t, names16["c.addi"])
	assert.True(t, names16["c.nop"])

	base := m.instructionsForWidth(32)
	require.NotEmpty(t, base)

	for _, insn := range base {
		assert.False(t, names16[insn.Mnemonic],
			"a 16-bit compressed instruction must never be offered to the 32-bit wholesale-replace path")
	}
}

// TestRandomInstructionWordNeverMixesWidths is the regression test for the
// wholesale-replace corruption: every word randomInstructionWord(rng, 32)
// produces must decode, at width 32, to some instruction whose format is
// not one of rv32ic's 16-bit CR/CI formats.
func TestRandomInstructionWordNeverMixesWidths(t *testing.T) {
	isa := loadRV32ICTestdata(t)
	m := New(DefaultConfig(), isa)
	rng := newRNG(123)

	for i := 0; i < 200; i++ {
		word := m.randomInstructionWord(rng, 32)

		insn, format := m.identify(word, 32)
		require.NotNil(t, insn, "word 0x%08x must decode to a known 32-bit instruction", word)
		assert.NotEqual(t, uint(16), format.WordWidth)
	}

	for i := 0; i < 200; i++ {
		half := m.randomInstructionWord(rng, 16)
		require.LessOrEqual(t, half, uint32(0xFFFF))

		insn, format := m.identify(half, 16)
		require.NotNil(t, insn, "halfword 0x%04x must decode to a known 16-bit instruction", half)
		assert.Equal(t, uint(16), format.WordWidth)
	}
}

// TestMutateCompressedHalfStaysWordAligned exercises the compressed-half
// mutation path end to end against the real rv32ic fixture: the buffer
// length (and thus word alignment) must never change, since only the
// targeted 2-byte halfword is rewritten in place.
func TestMutateCompressedHalfStaysWordAligned(t *testing.T) {
	isa := loadRV32ICTestdata(t)

	cfg := DefaultConfig()
	cfg.Strategy = IR
	cfg.EnableCompressed = true

	m := New(cfg, isa)

	// c.mv rd=0 rs2=0: opcode=0x2 @[0:1], funct3=4 @[13:15].
	input := []byte{0x02, 0x80, 0x13, 0x00}

	for seed := uint64(0); seed < 100; seed++ {
		out := m.Mutate(input, 64, seed)
		assert.Equal(t, 4, len(out), "compressed-half mutation must not change the 4-byte slot length")
	}
}

// TestIdentifyRejectsCompressedWordAtBaseWidth confirms identify honors
// format.WordWidth: a bit pattern that only makes sense as a 16-bit CR
// instruction (opcode bits [0:1] = 0b10, never a valid 32-bit base opcode
// since RV32 base opcodes always have bits [0:1] = 0b11) must not be
// reported as a 32-bit instruction.
func TestIdentifyRejectsCompressedWordAtBaseWidth(t *testing.T) {
	isa := loadRV32ICTestdata(t)
	m := New(DefaultConfig(), isa)

	// c.mv: c_opcode=0x2 @[0:1], c_funct3=4 @[13:15] -> 0x8002.
	const cMv uint32 = 0x8002

	insn, format := m.identify(cMv, 16)
	require.NotNil(t, insn)
	assert.Equal(t, "c.mv", insn.Mnemonic)
	assert.Equal(t, uint(16), format.WordWidth)

	insn32, _ := m.identify(cMv, 32)
	assert.Nil(t, insn32, "a 16-bit-only encoding must not be identified at width 32")
}

func TestSplitHiLoReconstructsAddress(t *testing.T) {
	addrs := []uint32{0x80001000, 0x1000, 0xFFFFF000, 0x7FF}

	for _, addr := range addrs {
		hi, lo := splitHiLo(addr)
		signedLo := int32(lo<<20) >> 20
		got := (hi << 12) + uint32(signedLo)
		assert.Equal(t, addr, got)
	}
}
