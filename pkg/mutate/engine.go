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
	"strings"

	"github.com/consensys/rv32fuzz/pkg/isa/bitfield"
	"github.com/consensys/rv32fuzz/pkg/isa/schema"
)

// Mutator holds the small immutable Config, a read-only reference to an
// ISAConfig (nil when running without a schema), and the length of the
// last produced buffer. A fresh PRNG is seeded on every Mutate call, so
// the Mutator itself carries no per-call state between invocations.
type Mutator struct {
	cfg       Config
	isa       *schema.ISAConfig
	lastLen   int
	wordBytes int
}

// New constructs a Mutator. isa may be nil, in which case Mutate always
// takes the fallback (schema-less) path regardless of Config.Strategy.
func New(cfg Config, isa *schema.ISAConfig) *Mutator {
	wordBytes := 4
	if isa != nil && isa.BaseWidth > 0 {
		wordBytes = int(isa.BaseWidth) / 8
		if wordBytes < 1 {
			wordBytes = 1
		}
	}

	return &Mutator{cfg: cfg, isa: isa, wordBytes: wordBytes}
}

// LastLength returns the length, in bytes, of the last buffer produced by
// Mutate. Exposed so cgo callers can honor the two-call ABI (mutate, then
// fetch the length via a separate accessor).
func (m *Mutator) LastLength() int {
	return m.lastLen
}

// newRNG seeds a PCG generator deterministically from seed: same seed, same
// stream, every time. rand/v2's PCG is the stdlib's seedable, reproducible
// source, which is what the mutator-determinism invariant (§8) requires.
func newRNG(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// Mutate is the public entry point: given input bytes, a cap on output
// length, and a seed, produce a mutated buffer. Output is bit-identical
// for identical (input, seed, schema).
func (m *Mutator) Mutate(input []byte, maxOutputBytes int, seed uint64) []byte {
	rng := newRNG(seed)

	var out []byte

	if m.isa != nil && m.takesSchemaPath(rng) {
		out = m.mutateSchemaGuided(input, maxOutputBytes, rng)
	} else {
		out = m.mutateFallback(input, maxOutputBytes, rng)
	}

	if m.cfg.InjectEnvelope {
		out = m.injectEnvelope(out, maxOutputBytes, rng)
	}

	if maxOutputBytes > 0 && len(out) > maxOutputBytes {
		out = out[:maxOutputBytes]
	}

	m.lastLen = len(out)

	return out
}

// takesSchemaPath decides, per Config.Strategy, whether this call uses the
// schema-guided (IR) path or the raw fallback.
func (m *Mutator) takesSchemaPath(rng *rand.Rand) bool {
	switch m.cfg.Strategy {
	case RAW:
		return false
	case IR:
		return true
	case HYBRID:
		return rng.Float64() < m.cfg.DecodeProb
	case AUTO:
		return rng.Float64() < autoDecodeProb
	default:
		return false
	}
}

// mutateSchemaGuided implements §4.3's schema-guided path: pad to a word
// boundary, choose 1-3 operations, and for each either replace a word with
// a fresh random instance of some instruction, or decode-mutate-re-encode
// the existing word.
func (m *Mutator) mutateSchemaGuided(input []byte, maxOutputBytes int, rng *rand.Rand) []byte {
	buf := padToWordBoundary(input, m.wordBytes)
	if len(buf) == 0 {
		buf = m.nopWord()
	}

	if maxOutputBytes > 0 && len(buf) > maxOutputBytes {
		buf = buf[:roundDownToWord(maxOutputBytes, m.wordBytes)]
		if len(buf) == 0 {
			buf = m.nopWord()
		}
	}

	n := 1 + rng.IntN(3)

	for i := 0; i < n; i++ {
		m.applyOneSchemaOp(buf, rng)
	}

	return buf
}

// applyOneSchemaOp performs one schema-guided mutation operation in place:
// picks a word-aligned offset and either replaces the word wholesale with a
// freshly encoded random instruction, or decodes-mutates-re-encodes the
// existing word. On illegality after mutation, the operation is skipped
// (not retried), per §4.3 step 5.
func (m *Mutator) applyOneSchemaOp(buf []byte, rng *rand.Rand) {
	wordCount := len(buf) / m.wordBytes
	if wordCount == 0 {
		return
	}

	offset := rng.IntN(wordCount) * m.wordBytes

	// When the slot is a full 32-bit word but the ISA also declares 16-bit
	// compressed formats, occasionally mutate one compressed halfword in
	// place instead of replacing the whole 32-bit word: the same treatment
	// the original mutator gives a "compressed neighbor" inside a 4-byte
	// slot, never writing a 16-bit-format instruction as if it were 32 bits.
	if m.wordBytes == 4 && m.cfg.EnableCompressed && m.hasCompressedFormats() && rng.IntN(3) == 0 {
		m.mutateCompressedHalf(buf, offset, rng)
		return
	}

	width := uint(m.wordBytes * 8)

	var before uint32
	if m.wordBytes == 4 {
		before = binary.LittleEndian.Uint32(buf[offset:])
	} else {
		before = uint32(binary.LittleEndian.Uint16(buf[offset:]))
	}

	var after uint32

	if rng.IntN(2) == 0 {
		after = m.randomInstructionWord(rng, width)
	} else {
		after = m.mutateOneField(before, width, rng)
	}

	if !m.isLegal(after, width) {
		return
	}

	if m.wordBytes == 4 {
		binary.LittleEndian.PutUint32(buf[offset:], after)
	} else {
		binary.LittleEndian.PutUint16(buf[offset:], uint16(after))
	}
}

// hasCompressedFormats reports whether the loaded ISA declares any 16-bit
// format, i.e. whether a compressed-instruction mutation is possible at all.
func (m *Mutator) hasCompressedFormats() bool {
	for _, f := range m.isa.Formats {
		if f.WordWidth == 16 {
			return true
		}
	}

	return false
}

// mutateCompressedHalf decodes, mutates, and re-encodes one 16-bit halfword
// of buf (either half of the 32-bit word at offset), writing back only
// those 2 bytes so the rest of the stream is left untouched. Unlike the
// 32-bit wholesale-replace path, candidates are drawn exclusively from
// 16-bit formats, so a compressed instruction is never written across a
// 4-byte slot.
func (m *Mutator) mutateCompressedHalf(buf []byte, wordOffset int, rng *rand.Rand) {
	halfOffset := wordOffset
	if rng.IntN(2) == 1 && wordOffset+2 < len(buf) {
		halfOffset = wordOffset + 2
	}

	if halfOffset+2 > len(buf) {
		return
	}

	before := uint32(binary.LittleEndian.Uint16(buf[halfOffset:]))

	var after uint32

	if rng.IntN(2) == 0 {
		after = m.randomInstructionWord(rng, 16)
	} else {
		after = m.mutateOneField(before, 16, rng)
	}

	if !m.isLegal(after, 16) {
		return
	}

	binary.LittleEndian.PutUint16(buf[halfOffset:], uint16(after))
}

// formatMatchesWidth reports whether format's declared word width matches
// width, treating an unset (zero) WordWidth as the conventional 32-bit
// default so existing base-ISA fixtures that omit it keep working.
func formatMatchesWidth(format *schema.FormatSpec, width uint) bool {
	if format.WordWidth == width {
		return true
	}

	return format.WordWidth == 0 && width == 32
}

// instructionsForWidth returns the instructions whose format matches width,
// so a wholesale word replacement can never pick an instruction sized for a
// different slot than the one it's about to overwrite (e.g. a 16-bit
// compressed instruction written into a 32-bit slot would desync the
// surrounding byte stream).
func (m *Mutator) instructionsForWidth(width uint) []schema.InstructionSpec {
	var out []schema.InstructionSpec

	for _, insn := range m.isa.Instructions {
		format, ok := m.isa.Format(insn.FormatName)
		if !ok || !formatMatchesWidth(format, width) {
			continue
		}

		out = append(out, insn)
	}

	return out
}

// isMExtensionMnemonic reports whether mnemonic names an M-extension
// instruction (mul/div/rem and their variants), used to weight the
// base-ALU vs M-extension pools per RegBase/RegM.
func isMExtensionMnemonic(mnemonic string) bool {
	lower := strings.ToLower(mnemonic)

	return strings.HasPrefix(lower, "mul") || strings.HasPrefix(lower, "div") || strings.HasPrefix(lower, "rem")
}

// pickWeightedInstruction splits candidates into the M-extension pool and
// everything else, then draws from one pool with probability
// RegBase:RegM (mirrors RV32_R_BASE/RV32_R_M), falling back to a uniform
// draw across whichever pool is non-empty when the split is degenerate.
func (m *Mutator) pickWeightedInstruction(candidates []schema.InstructionSpec, rng *rand.Rand) schema.InstructionSpec {
	var base, mext []schema.InstructionSpec

	for _, insn := range candidates {
		if isMExtensionMnemonic(insn.Mnemonic) {
			mext = append(mext, insn)
		} else {
			base = append(base, insn)
		}
	}

	pool := candidates

	switch {
	case len(base) > 0 && len(mext) > 0:
		total := m.cfg.RegBase + m.cfg.RegM
		if total == 0 {
			total = 1
		}

		if rng.UintN(total) < m.cfg.RegBase {
			pool = base
		} else {
			pool = mext
		}
	case len(mext) > 0:
		pool = mext
	case len(base) > 0:
		pool = base
	}

	return pool[rng.IntN(len(pool))]
}

// randomInstructionWord encodes a freshly generated instance of a randomly
// chosen InstructionSpec whose format matches width: fixed fields take
// their pinned value, every other field in the format draws from
// randomFieldValue.
func (m *Mutator) randomInstructionWord(rng *rand.Rand, width uint) uint32 {
	candidates := m.instructionsForWidth(width)
	if len(candidates) == 0 {
		return 0
	}

	var insn schema.InstructionSpec
	if width == 32 {
		insn = m.pickWeightedInstruction(candidates, rng)
	} else {
		insn = candidates[rng.IntN(len(candidates))]
	}

	format, ok := m.isa.Format(insn.FormatName)
	if !ok {
		return 0
	}

	var word uint32

	for _, fieldName := range format.Fields {
		enc, ok := m.isa.Field(fieldName)
		if !ok {
			continue
		}

		var value int64

		if fixed, isFixed := insn.FixedFields[fieldName]; isFixed {
			value = int64(fixed)
		} else {
			value = m.randomFieldValue(fieldName, enc, rng)
		}

		word = bitfield.Encode32(word, enc, value)
	}

	return word
}

// mutateOneField decodes word (sized to width), identifies its matching
// InstructionSpec by fixed-field match where possible (so fixed fields
// like the opcode are left untouched), mutates one variable field, and
// re-encodes.
func (m *Mutator) mutateOneField(word uint32, width uint, rng *rand.Rand) uint32 {
	insn, format := m.identify(word, width)
	if format == nil {
		return word
	}

	variable := variableFields(format, insn)
	if len(variable) == 0 {
		return word
	}

	fieldName := variable[rng.IntN(len(variable))]

	enc, ok := m.isa.Field(fieldName)
	if !ok {
		return word
	}

	value := m.randomFieldValue(fieldName, enc, rng)

	return bitfield.Encode32(word, enc, value)
}

// variableFields returns the fields of format not pinned by insn (or, when
// no instruction was identified, all of format's fields).
func variableFields(format *schema.FormatSpec, insn *schema.InstructionSpec) []string {
	var out []string

	for _, f := range format.Fields {
		if insn != nil {
			if _, fixed := insn.FixedFields[f]; fixed {
				continue
			}
		}

		out = append(out, f)
	}

	return out
}

// identify finds the InstructionSpec whose format matches width and whose
// fixed fields all match word's decoded values, trying each instruction in
// turn (opcode+funct-bit matching, generalized: any format whose fixed
// fields are all satisfied is a candidate; the first match wins). Returns
// (nil, format) if no instruction matches exactly but a same-width format
// exists to mutate blindly against (the one with the lowest name), or
// (nil, nil) if nothing at all fits.
func (m *Mutator) identify(word uint32, width uint) (*schema.InstructionSpec, *schema.FormatSpec) {
	for i := range m.isa.Instructions {
		insn := &m.isa.Instructions[i]

		format, ok := m.isa.Format(insn.FormatName)
		if !ok || !formatMatchesWidth(format, width) {
			continue
		}

		if m.matchesFixed(word, format, insn) {
			return insn, format
		}
	}

	// No exact instruction matched; fall back to the same-width format with
	// the lowest name, if any, so the field can still be mutated blindly
	// and the choice does not depend on map iteration order.
	var fallback *schema.FormatSpec

	for _, f := range m.isa.Formats {
		if formatMatchesWidth(f, width) && (fallback == nil || f.Name < fallback.Name) {
			fallback = f
		}
	}

	return nil, fallback
}

func (m *Mutator) matchesFixed(word uint32, format *schema.FormatSpec, insn *schema.InstructionSpec) bool {
	if len(insn.FixedFields) == 0 {
		return false
	}

	for name, want := range insn.FixedFields {
		enc, ok := m.isa.Field(name)
		if !ok {
			return false
		}

		if uint32(bitfield.Decode32(word, enc)) != want {
			return false
		}
	}

	return true
}

// isLegal runs a lightweight legality check: when the schema has
// instructions to validate against, a word that matches some known
// instruction's fixed fields is legal, and any other word is accepted as
// long as a format of the same width exists. The opcode and funct values
// of a word that matches no instruction are not checked.
func (m *Mutator) isLegal(word uint32, width uint) bool {
	if m.isa == nil || len(m.isa.Instructions) == 0 {
		return true
	}

	insn, format := m.identify(word, width)
	if insn != nil {
		return true
	}

	// No pinned instruction matched exactly; accept so long as some format
	// of this width exists.
	return format != nil
}

// nopWord returns a single encoded nop-equivalent word sized to the ISA's
// base word width: canonicalNop (ADDI x0, x0, 0) for a 4-byte word;
// otherwise the all-fixed-field encoding of the first instruction in
// Instructions whose format has that width and no variable fields, or an
// all-zero word when there is none.
func (m *Mutator) nopWord() []byte {
	buf := make([]byte, m.wordBytes)

	if m.wordBytes == 4 {
		binary.LittleEndian.PutUint32(buf, canonicalNop)
		return buf
	}

	if m.isa != nil {
		for _, insn := range m.isa.Instructions {
			format, ok := m.isa.Format(insn.FormatName)
			if !ok || !formatMatchesWidth(format, uint(m.wordBytes*8)) {
				continue
			}

			if len(variableFields(format, &insn)) != 0 {
				continue
			}

			var word uint32
			for _, fieldName := range format.Fields {
				enc, ok := m.isa.Field(fieldName)
				if !ok {
					continue
				}
				word = bitfield.Encode32(word, enc, int64(insn.FixedFields[fieldName]))
			}

			if m.wordBytes == 4 {
				binary.LittleEndian.PutUint32(buf, word)
			} else {
				binary.LittleEndian.PutUint16(buf, uint16(word))
			}

			return buf
		}
	}

	return buf
}

func padToWordBoundary(input []byte, wordBytes int) []byte {
	if wordBytes <= 0 {
		wordBytes = 4
	}

	n := len(input)
	rem := n % wordBytes

	if rem == 0 {
		out := make([]byte, n)
		copy(out, input)

		return out
	}

	padded := n + (wordBytes - rem)
	out := make([]byte, padded)
	copy(out, input)

	return out
}

func roundDownToWord(n, wordBytes int) int {
	if wordBytes <= 0 {
		return n
	}

	return (n / wordBytes) * wordBytes
}
