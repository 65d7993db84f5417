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
	"slices"
	"strings"

	"github.com/bits-and-blooms/bitset"
)

// deduceFieldKind infers a FieldKind from a field's name or raw type tag
// using the substring rules named in §4.1: "imm" -> Immediate, "reg"/"rd"/
// "rs" -> Register, "funct"/"flag" -> Enum, and so on.
func deduceFieldKind(raw string) FieldKind {
	lower := strings.ToLower(raw)

	switch {
	case lower == "opcode" || strings.Contains(lower, "opcode"):
		return Opcode
	case lower == "enum" || strings.Contains(lower, "funct") || strings.Contains(lower, "flag"):
		return Enum
	case strings.Contains(lower, "imm"):
		return Immediate
	case strings.Contains(lower, "pred"):
		return Predicate
	case strings.Contains(lower, "mem"):
		return Memory
	case strings.Contains(lower, "csr"):
		return Enum
	case strings.Contains(lower, "freg") || strings.Contains(lower, "fp_reg"):
		return Floating
	case strings.Contains(lower, "reg") || lower == "rs" || lower == "rd" || lower == "rt":
		return Register
	case lower == "aq_rl":
		return Enum
	default:
		return Unknown
	}
}

// parseSegment builds one FieldSegment from either a two-element [lsb,msb]
// sequence or a mapping form ({lsb,width} or {bits:[lsb,msb]}, optionally
// with an explicit value_lsb).
func parseSegment(file, field string, node any, defaultValueLsb uint) (FieldSegment, error) {
	seg := FieldSegment{ValueLsb: defaultValueLsb}

	switch v := node.(type) {
	case []any:
		if len(v) != 2 {
			return seg, newError(ErrFieldDefinition, file, field, "segment sequence must contain [lsb, msb]")
		}

		lsb, msb, err := lsbMsb(v)
		if err != nil {
			return seg, wrapFieldErr(file, field, err)
		}

		seg.WordLsb = lsb
		seg.Width = msb - lsb + 1

		return seg, nil
	default:
		m, ok := asMap(node)
		if !ok {
			return seg, newError(ErrFieldDefinition, file, field, "unexpected segment node type")
		}

		if vl, ok := m["value_lsb"]; ok {
			seg.ValueLsb = uintOf(vl)
		}

		if lsb, ok := m["lsb"]; ok {
			seg.WordLsb = uintOf(lsb)
		}

		if width, ok := m["width"]; ok {
			seg.Width = uintOf(width)
		}

		if bits, ok := m["bits"]; ok {
			bitsList, ok := bits.([]any)
			if !ok || len(bitsList) != 2 {
				return seg, newError(ErrFieldDefinition, file, field, "segment bits must contain [lsb, msb]")
			}

			lsb, msb, err := lsbMsb(bitsList)
			if err != nil {
				return seg, wrapFieldErr(file, field, err)
			}

			seg.WordLsb = lsb
			seg.Width = msb - lsb + 1
		}

		if seg.Width == 0 {
			return seg, newError(ErrFieldDefinition, file, field, "segment missing width definition")
		}

		return seg, nil
	}
}

func lsbMsb(pair []any) (uint, uint, error) {
	lsb := uintOf(pair[0])
	msb := uintOf(pair[1])

	if msb < lsb {
		return 0, 0, errSegmentOrder
	}

	return lsb, msb, nil
}

var errSegmentOrder = newError(ErrFieldDefinition, "", "", "segment msb < lsb")

func wrapFieldErr(file, field string, err error) error {
	if e, ok := err.(*Error); ok {
		e.File, e.Entity = file, field
		return e
	}

	return err
}

// uintOf coerces a YAML-decoded scalar (int, int64, uint64, or numeric
// string per parseInteger) into a uint.
func uintOf(v any) uint {
	switch n := v.(type) {
	case int:
		return uint(n)
	case int64:
		return uint(n)
	case uint64:
		return uint(n)
	case string:
		val, _ := parseInteger(n)
		return uint(val)
	default:
		return 0
	}
}

// computeFieldWidth derives TotalWidth as max(seg.ValueLsb+seg.Width) when
// the schema omits an explicit width.
func computeFieldWidth(segments []FieldSegment) uint {
	var max uint

	for _, s := range segments {
		if extent := s.ValueLsb + s.Width; extent > max {
			max = extent
		}
	}

	return max
}

// parseField builds a FieldEncoding from its YAML definition, applying the
// bits/segments inference rules of §4.1: a "bits" pair yields one segment;
// a "segments" list yields successive segments with contiguous ValueLsb
// accumulation unless an entry overrides it.
func parseField(file, name string, node map[string]any) (*FieldEncoding, error) {
	enc := &FieldEncoding{Name: name}

	if signed, ok := node["signed"]; ok {
		enc.IsSigned = boolOf(signed)
	}

	if width, ok := node["width"]; ok {
		enc.TotalWidth = uintOf(width)
	}

	if typ, ok := node["type"]; ok {
		if s, ok := typ.(string); ok {
			enc.RawType = s
			enc.Kind = deduceFieldKind(s)
		}
	}

	appendSegments := func(list []any) error {
		nextValueLsb := uint(0)
		if n := len(enc.Segments); n > 0 {
			last := enc.Segments[n-1]
			nextValueLsb = last.ValueLsb + last.Width
		}

		for _, entry := range list {
			seg, err := parseSegment(file, name, entry, nextValueLsb)
			if err != nil {
				return err
			}

			nextValueLsb = seg.ValueLsb + seg.Width
			enc.Segments = append(enc.Segments, seg)
		}

		return nil
	}

	switch {
	case node["segments"] != nil:
		list, ok := node["segments"].([]any)
		if !ok {
			return nil, newError(ErrFieldDefinition, file, name, "segments must be a sequence")
		}

		if err := appendSegments(list); err != nil {
			return nil, err
		}
	case node["bits"] != nil:
		if list, ok := node["bits"].([]any); ok && len(list) == 2 {
			if _, isPair := list[0].(string); !isPair {
				seg, err := parseSegment(file, name, list, 0)
				if err != nil {
					return nil, err
				}

				if vl, ok := node["value_lsb"]; ok {
					seg.ValueLsb = uintOf(vl)
				}

				enc.Segments = append(enc.Segments, seg)

				break
			}
		}

		if list, ok := node["bits"].([]any); ok {
			if err := appendSegments(list); err != nil {
				return nil, err
			}
		}
	case node["lsb"] != nil && node["width"] != nil:
		seg := FieldSegment{
			WordLsb: uintOf(node["lsb"]),
			Width:   uintOf(node["width"]),
		}

		if vl, ok := node["value_lsb"]; ok {
			seg.ValueLsb = uintOf(vl)
		}

		enc.Segments = append(enc.Segments, seg)
	}

	if len(enc.Segments) > 0 && enc.TotalWidth == 0 {
		enc.TotalWidth = computeFieldWidth(enc.Segments)
	}

	if len(enc.Segments) == 0 && enc.TotalWidth == 0 {
		return nil, newError(ErrFieldDefinition, file, name, "field missing width/segments definition")
	}

	if err := validateNoOverlap(file, name, enc); err != nil {
		return nil, err
	}

	if enc.Kind == Unknown {
		enc.Kind = deduceFieldKind(name)
	}

	return enc, nil
}

// validateNoOverlap enforces the FieldEncoding invariant that no two
// segments claim the same value bit in [0,TotalWidth). Coverage is not
// checked: a value bit no segment stores (such as the always-zero low bit
// of imm_b) is accepted. A width-0 field is legal and trivially satisfies
// this (it is a no-op for encode/decode).
func validateNoOverlap(file, name string, enc *FieldEncoding) error {
	if enc.TotalWidth == 0 {
		return nil
	}

	covered := bitset.New(enc.TotalWidth)

	for _, seg := range enc.Segments {
		for i := uint(0); i < seg.Width; i++ {
			pos := seg.ValueLsb + i
			if pos >= enc.TotalWidth {
				continue
			}

			if covered.Test(pos) {
				return newError(ErrSegmentsOverlap, file, name, "segments overlap at value bit")
			}

			covered.Set(pos)
		}
	}

	return nil
}

func boolOf(v any) bool {
	b, _ := v.(bool)
	return b
}

// mergeFieldDefinition reconciles an inline field definition discovered
// while walking a format's field list against any pre-existing global
// entry: widths and segments must agree, per §4.1's format-inference
// consistency check.
func mergeFieldDefinition(file string, fields map[string]*FieldEncoding, candidate *FieldEncoding) error {
	existing, ok := fields[candidate.Name]
	if !ok {
		fields[candidate.Name] = candidate
		return nil
	}

	if existing.TotalWidth != 0 && candidate.TotalWidth != 0 && existing.TotalWidth != candidate.TotalWidth {
		return newError(ErrFieldDefinition, file, candidate.Name, "inline field width disagrees with existing definition")
	}

	if len(existing.Segments) > 0 && len(candidate.Segments) > 0 && !slices.Equal(existing.Segments, candidate.Segments) {
		return newError(ErrFieldDefinition, file, candidate.Name, "inline field segments disagree with existing definition")
	}

	if len(existing.Segments) == 0 && len(candidate.Segments) > 0 {
		existing.Segments = candidate.Segments
	}

	if existing.TotalWidth == 0 {
		existing.TotalWidth = candidate.TotalWidth
	}

	if candidate.IsSigned {
		existing.IsSigned = true
	}

	return nil
}

// parseFormat builds a FormatSpec, resolving each field reference: a
// name-string must already exist in the global field table; an inline
// definition also contributes to that table.
func parseFormat(file, name string, node map[string]any, fields map[string]*FieldEncoding) (*FormatSpec, error) {
	spec := &FormatSpec{Name: name}

	if width, ok := node["width"]; ok {
		spec.WordWidth = uintOf(width)
	}

	rawFields, ok := node["fields"]
	if !ok {
		return nil, newError(ErrMissingFormat, file, name, "format missing fields")
	}

	list, ok := rawFields.([]any)
	if !ok {
		return nil, newError(ErrMissingFormat, file, name, "format fields must be a sequence")
	}

	for _, entry := range list {
		switch v := entry.(type) {
		case string:
			spec.Fields = append(spec.Fields, v)

			if _, known := fields[v]; !known {
				return nil, newError(ErrUnknownField, file, name, "format references unknown field '"+v+"'")
			}
		default:
			m, ok := asMap(entry)
			if !ok {
				return nil, newError(ErrMissingFormat, file, name, "format has invalid field entry")
			}

			fieldName, ok := m["name"].(string)
			if !ok {
				return nil, newError(ErrMissingFormat, file, name, "inline field definition missing name")
			}

			spec.Fields = append(spec.Fields, fieldName)

			derived, err := parseField(file, fieldName, m)
			if err != nil {
				return nil, err
			}

			if err := mergeFieldDefinition(file, fields, derived); err != nil {
				return nil, err
			}
		}
	}

	return spec, nil
}

// instructionSkipKeys are instruction-body keys that are never themselves
// fixed-field assignments.
var instructionSkipKeys = map[string]bool{
	"format": true, "fixed": true, "description": true,
	"comment": true, "notes": true, "tags": true,
	"weight": true, "probability": true,
}

// parseInstruction builds an InstructionSpec: it must name a format, and
// may pin any subset of that format's fields via an explicit "fixed" map
// or via bare top-level scalar keys (the schema's shorthand).
func parseInstruction(file, name string, node map[string]any) (InstructionSpec, error) {
	spec := InstructionSpec{Mnemonic: name, FixedFields: map[string]uint32{}}

	format, ok := node["format"].(string)
	if !ok {
		return spec, newError(ErrMissingFormat, file, name, "instruction missing format")
	}

	spec.FormatName = format

	if fixed, ok := asMap(node["fixed"]); ok {
		for k, v := range fixed {
			val := intOf(v)
			spec.FixedFields[k] = uint32(val)
		}
	}

	for k, v := range node {
		if instructionSkipKeys[k] {
			continue
		}

		if !isScalar(v) {
			continue
		}

		spec.FixedFields[k] = uint32(intOf(v))
	}

	return spec, nil
}

func intOf(v any) int64 {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int64:
		return n
	case uint64:
		return int64(n)
	case string:
		val, _ := parseInteger(n)
		return val
	default:
		return 0
	}
}

func isScalar(v any) bool {
	switch v.(type) {
	case int, int64, uint64, string, bool, float64:
		return true
	default:
		return false
	}
}
