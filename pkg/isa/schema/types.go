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

// FieldKind classifies a field's semantic role, used to guide random value
// generation during mutation.
type FieldKind uint8

const (
	// Unknown indicates no classification could be inferred.
	Unknown FieldKind = iota
	// Opcode identifies an operation-selecting field, usually fixed.
	Opcode
	// Enum identifies an enumerated sub-field (funct3, funct7, csr, ...).
	Enum
	// Immediate identifies an immediate value, signed or unsigned.
	Immediate
	// Predicate identifies a conditional predicate field.
	Predicate
	// Memory identifies a memory-addressing field.
	Memory
	// Register identifies a register specifier.
	Register
	// Floating identifies a floating-point specific field.
	Floating
)

// String renders the field kind for logging and diagnostics.
func (k FieldKind) String() string {
	switch k {
	case Opcode:
		return "Opcode"
	case Enum:
		return "Enum"
	case Immediate:
		return "Immediate"
	case Predicate:
		return "Predicate"
	case Memory:
		return "Memory"
	case Register:
		return "Register"
	case Floating:
		return "Floating"
	default:
		return "Unknown"
	}
}

// FieldSegment states that Width bits of a logical field value, starting at
// bit position ValueLsb of the value, occupy the instruction word at bits
// [WordLsb, WordLsb+Width-1].
type FieldSegment struct {
	WordLsb  uint
	Width    uint
	ValueLsb uint
}

// FieldEncoding is the complete specification of an instruction field: its
// logical width and signedness, and its physical layout as an ordered
// sequence of segments. The ranges [ValueLsb,ValueLsb+Width) of the
// Segments must not overlap; whether they cover all of [0,TotalWidth) is
// not checked.
type FieldEncoding struct {
	Name       string
	TotalWidth uint
	IsSigned   bool
	Segments   []FieldSegment
	Kind       FieldKind
	// RawType carries the schema's original type tag, kept for diagnostics.
	RawType string
}

// FormatSpec names an instruction format: its word width (16 or 32) and the
// ordered list of field names that compose it.
type FormatSpec struct {
	Name      string
	WordWidth uint
	Fields    []string
}

// InstructionSpec ties a mnemonic to a format, pinning a subset of that
// format's fields to fixed values (e.g. the opcode). Every other field in
// the format is variable.
type InstructionSpec struct {
	Mnemonic    string
	FormatName  string
	FixedFields map[string]uint32
}

// Hints captures the optional mutation-hint block carried by a schema; all
// fields are advisory and default to their zero value when absent.
type Hints struct {
	RegPrefersZeroOneHot bool
	SignedImmediatesBias bool
	AlignLoadStore       uint32
}

// Defaults groups ISA-wide defaults that are not part of the core encoding
// model but influence mutation and execution setup.
type Defaults struct {
	Endianness string
	DefaultPC  uint64
	Hints      Hints
}

// ISAConfig is the fully-resolved, read-only ISA model produced by Load. It
// is constructed once per process and never mutated thereafter; components
// share it by pointer.
type ISAConfig struct {
	ISAName       string
	BaseWidth     uint
	RegisterCount uint
	Defaults      Defaults
	Fields        map[string]*FieldEncoding
	Formats       map[string]*FormatSpec
	Instructions  []InstructionSpec
}

// Field looks up a field encoding by name, returning false if undefined.
func (c *ISAConfig) Field(name string) (*FieldEncoding, bool) {
	enc, ok := c.Fields[name]
	return enc, ok
}

// Format looks up a format spec by name, returning false if undefined.
func (c *ISAConfig) Format(name string) (*FormatSpec, bool) {
	fmt, ok := c.Formats[name]
	return fmt, ok
}

// InstructionsByFormat returns the subset of Instructions using the given
// format, in the order of Instructions (sorted by mnemonic).
func (c *ISAConfig) InstructionsByFormat(format string) []InstructionSpec {
	var out []InstructionSpec

	for _, insn := range c.Instructions {
		if insn.FormatName == format {
			out = append(out, insn)
		}
	}

	return out
}
