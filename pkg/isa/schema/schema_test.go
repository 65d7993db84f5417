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
package schema

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSchemaFixture(t *testing.T, dir string) {
	t.Helper()

	isaMap := `
rv32i:
  - rv32i.yaml
`
	rv32i := `
isa: rv32i
base_width: 32
registers: 32
defaults:
  mutation_hints:
    signed_immediates_bias: true

fields:
  opcode:
    bits: [0, 6]
    type: opcode
  rd:
    bits: [7, 11]
    type: reg
  funct3:
    bits: [12, 14]
    type: funct
  rs1:
    bits: [15, 19]
    type: reg
  imm12:
    bits: [20, 31]
    signed: true
    type: imm

formats:
  R:
    width: 32
    fields: [opcode, rd, funct3, rs1]
  I:
    width: 32
    fields: [opcode, rd, funct3, rs1, imm12]

instructions:
  addi:
    format: I
    fixed:
      opcode: 0x13
      funct3: 0
  add:
    format: R
    fixed:
      opcode: 0x33
      funct3: 0
`

	require.NoError(t, os.WriteFile(filepath.Join(dir, "isa_map.yaml"), []byte(isaMap), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "rv32i.yaml"), []byte(rv32i), 0o644))
}

func TestLoadBasicSchema(t *testing.T) {
	dir := t.TempDir()
	writeSchemaFixture(t, dir)

	isa, err := Load(dir, "rv32i")
	require.NoError(t, err)

	assert.Equal(t, uint(32), isa.BaseWidth)
	assert.Equal(t, uint(32), isa.RegisterCount)
	assert.True(t, isa.Defaults.Hints.SignedImmediatesBias)

	rd, ok := isa.Field("rd")
	require.True(t, ok)
	assert.Equal(t, Register, rd.Kind)
	assert.Equal(t, uint(5), rd.TotalWidth)

	imm, ok := isa.Field("imm12")
	require.True(t, ok)
	assert.True(t, imm.IsSigned)
	assert.Equal(t, uint(12), imm.TotalWidth)

	rFmt, ok := isa.Format("R")
	require.True(t, ok)
	assert.Equal(t, []string{"opcode", "rd", "funct3", "rs1"}, rFmt.Fields)

	assert.Len(t, isa.Instructions, 2)
	assert.Len(t, isa.InstructionsByFormat("I"), 1)
}

func TestLoadUnresolvedISA(t *testing.T) {
	dir := t.TempDir()
	writeSchemaFixture(t, dir)

	_, err := Load(dir, "does-not-exist")
	require.Error(t, err)

	var schemaErr *Error
	require.ErrorAs(t, err, &schemaErr)
	assert.Equal(t, ErrUnresolvedISA, schemaErr.Kind)
}

func TestLoadMissingSchemaDir(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing"), "rv32i")
	require.Error(t, err)

	var schemaErr *Error
	require.ErrorAs(t, err, &schemaErr)
	assert.Equal(t, ErrFileNotFound, schemaErr.Kind)
}

func TestExtendsMergesBeforeSelf(t *testing.T) {
	dir := t.TempDir()

	base := `
fields:
  opcode:
    bits: [0, 6]
formats:
  R:
    width: 32
    fields: [opcode]
`
	child := `
extends: base.yaml
isa: rv32im
instructions:
  add:
    format: R
    fixed:
      opcode: 0x33
`

	require.NoError(t, os.WriteFile(filepath.Join(dir, "base.yaml"), []byte(base), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "child.yaml"), []byte(child), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "isa_map.yaml"), []byte("rv32im:\n  - child.yaml\n"), 0o644))

	isa, err := Load(dir, "rv32im")
	require.NoError(t, err)
	assert.Equal(t, "rv32im", isa.ISAName)
	assert.Len(t, isa.Instructions, 1)

	_, ok := isa.Field("opcode")
	assert.True(t, ok)
}

func TestCyclicIncludeFails(t *testing.T) {
	dir := t.TempDir()

	a := "extends: b.yaml\nfields: {x: {bits: [0,1]}}\n"
	b := "extends: a.yaml\nfields: {y: {bits: [0,1]}}\n"

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yaml"), []byte(a), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.yaml"), []byte(b), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "isa_map.yaml"), []byte("loopy:\n  - a.yaml\n"), 0o644))

	_, err := Load(dir, "loopy")
	require.Error(t, err)

	var schemaErr *Error
	require.ErrorAs(t, err, &schemaErr)
	assert.Equal(t, ErrCyclicInclude, schemaErr.Kind)
}

func TestFieldMissingWidthFails(t *testing.T) {
	dir := t.TempDir()

	doc := "fields:\n  bad: {}\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.yaml"), []byte(doc), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "isa_map.yaml"), []byte("bad:\n  - bad.yaml\n"), 0o644))

	_, err := Load(dir, "bad")
	require.Error(t, err)

	var schemaErr *Error
	require.ErrorAs(t, err, &schemaErr)
	assert.Equal(t, ErrFieldDefinition, schemaErr.Kind)
}

func TestDiscontiguousImmediateSegments(t *testing.T) {
	dir := t.TempDir()

	doc := `
fields:
  imm_s:
    segments:
      - bits: [7, 11]
      - bits: [25, 31]
    signed: true
formats:
  S:
    width: 32
    fields: [imm_s]
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "s.yaml"), []byte(doc), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "isa_map.yaml"), []byte("stype:\n  - s.yaml\n"), 0o644))

	isa, err := Load(dir, "stype")
	require.NoError(t, err)

	enc, ok := isa.Field("imm_s")
	require.True(t, ok)
	require.Len(t, enc.Segments, 2)
	assert.Equal(t, uint(5), enc.Segments[0].Width)
	assert.Equal(t, uint(0), enc.Segments[0].ValueLsb)
	assert.Equal(t, uint(7), enc.Segments[1].Width)
	assert.Equal(t, uint(5), enc.Segments[1].ValueLsb)
	assert.Equal(t, uint(12), enc.TotalWidth)
}

func TestParseIntegerLiterals(t *testing.T) {
	cases := map[string]int64{
		"0":     0,
		"10":    10,
		"-1":    -1,
		"0x1F":  31,
		"0b101": 5,
		"+7":    7,
		"":      0,
	}

	for in, want := range cases {
		got, err := parseInteger(in)
		require.NoError(t, err)
		assert.Equal(t, want, got, in)
	}

	_, err := parseInteger("not-a-number")
	assert.Error(t, err)
}
