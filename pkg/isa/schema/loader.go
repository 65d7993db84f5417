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

// Package schema parses one or more structured-text (YAML) ISA files into
// an in-memory, read-only ISAConfig. Resolution proceeds in three stages:
// locate sources via an isa_map, merge the ordered files into a single
// logical document, then walk that document to build FieldEncoding,
// FormatSpec and InstructionSpec values.
package schema

import (
	"os"
	"sort"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Load resolves isaName against schemaDir/isa_map.yaml, merges the
// transitive include/extends closure, and builds an ISAConfig. No partial
// ISAConfig is ever returned: any failure along the way aborts with a
// descriptive *Error naming the offending file or entity.
func Load(schemaDir, isaName string) (*ISAConfig, error) {
	sources, err := resolveSources(schemaDir, isaName)
	if err != nil {
		return nil, err
	}

	var ordered []string

	visiting := map[string]bool{}
	visited := map[string]bool{}

	for _, src := range sources {
		if err := collectDependencies(src, &ordered, visiting, visited); err != nil {
			return nil, err
		}
	}

	merged, err := mergeDocuments(ordered)
	if err != nil {
		return nil, err
	}

	return buildConfig(isaName, merged)
}

// mergeDocuments parses each file in order, prepending the accumulated
// anchor library's synthetic preamble so reusable anchored blocks defined
// in an earlier file remain resolvable in a later one, then folds the
// parsed document into the running merge per §4.1 rule (a)/(b).
func mergeDocuments(files []string) (map[string]any, error) {
	merged := map[string]any{}
	anchors := newAnchorLibrary()

	for _, file := range files {
		raw, err := os.ReadFile(file)
		if err != nil {
			return nil, newError(ErrFileNotFound, file, "", err.Error())
		}

		content := string(raw)
		combined := anchors.preamble() + content

		var doc map[string]any
		if err := yaml.Unmarshal([]byte(combined), &doc); err != nil {
			return nil, newError(ErrParse, file, "", "failed to parse schema file: "+err.Error())
		}

		delete(doc, "__anchors")

		anchors.absorb(extractAnchorBlocks(content))

		log.Debug("merging schema source " + file)

		merged = mergeNodes(merged, doc)
	}

	if len(merged) == 0 {
		return nil, newError(ErrParse, "", "", "merged schema document is empty")
	}

	return merged, nil
}

// buildConfig walks the merged document and constructs the ISAConfig,
// applying field/format/instruction inference rules in order (fields
// before formats, since formats resolve field names against the field
// table; formats before nothing instructions need beyond their own body).
func buildConfig(isaName string, merged map[string]any) (*ISAConfig, error) {
	isa := &ISAConfig{
		ISAName: isaName,
		Fields:  map[string]*FieldEncoding{},
		Formats: map[string]*FormatSpec{},
	}

	if name, ok := merged["isa"].(string); ok && name != "" {
		isa.ISAName = name
	}

	applyMeta(isa, merged)
	applyDefaults(isa, merged)

	if isa.RegisterCount == 0 {
		if rc, ok := merged["registers"]; ok {
			isa.RegisterCount = uintOf(rc)
		} else if rc, ok := merged["register_count"]; ok {
			isa.RegisterCount = uintOf(rc)
		}
	}

	if bw, ok := merged["base_width"]; ok {
		isa.BaseWidth = uintOf(bw)
	}

	if fieldsNode, ok := asMap(merged["fields"]); ok {
		for name, def := range fieldsNode {
			if name == mergeKey {
				continue
			}

			defMap, ok := asMap(def)
			if !ok {
				return nil, newError(ErrFieldDefinition, "", name, "field definition must be a mapping")
			}

			enc, err := parseField("", name, defMap)
			if err != nil {
				return nil, err
			}

			isa.Fields[name] = enc
		}
	}

	if formatsNode, ok := asMap(merged["formats"]); ok {
		for name, def := range formatsNode {
			if name == mergeKey {
				continue
			}

			defMap, ok := asMap(def)
			if !ok {
				return nil, newError(ErrMissingFormat, "", name, "format definition must be a mapping")
			}

			spec, err := parseFormat("", name, defMap, isa.Fields)
			if err != nil {
				return nil, err
			}

			isa.Formats[name] = spec
		}
	}

	if insnNode, ok := asMap(merged["instructions"]); ok {
		// Go map order is random, so instructions are built in sorted
		// mnemonic order: the InstructionSpec slice, and everything the
		// mutator derives from its order, is the same on every load.
		names := make([]string, 0, len(insnNode))
		for name := range insnNode {
			names = append(names, name)
		}

		sort.Strings(names)

		for _, name := range names {
			def := insnNode[name]

			if name == mergeKey {
				continue
			}

			defMap, ok := asMap(def)
			if !ok {
				return nil, newError(ErrMissingFormat, "", name, "instruction definition must be a mapping")
			}

			spec, err := parseInstruction("", name, defMap)
			if err != nil {
				return nil, err
			}

			if _, known := isa.Formats[spec.FormatName]; !known {
				return nil, newError(ErrMissingFormat, "", name, "instruction references unknown format '"+spec.FormatName+"'")
			}

			isa.Instructions = append(isa.Instructions, spec)
		}
	}

	finalizeWidths(isa)

	return isa, nil
}

func applyMeta(isa *ISAConfig, merged map[string]any) {
	meta, ok := asMap(merged["meta"])
	if !ok {
		return
	}

	if name, ok := meta["isa_name"].(string); ok && name != "" {
		isa.ISAName = name
	}

	if end, ok := meta["endianness"].(string); ok {
		isa.Defaults.Endianness = end
	}

	if pc, ok := meta["default_pc"]; ok {
		isa.Defaults.DefaultPC = uint64(intOf(pc))
	}
}

func applyDefaults(isa *ISAConfig, merged map[string]any) {
	defaults, ok := asMap(merged["defaults"])
	if !ok {
		return
	}

	if rc, ok := defaults["register_count"]; ok {
		isa.RegisterCount = uintOf(rc)
	}

	if pc, ok := defaults["default_pc"]; ok {
		isa.Defaults.DefaultPC = uint64(intOf(pc))
	}

	if end, ok := defaults["endianness"].(string); ok {
		isa.Defaults.Endianness = end
	}

	if hints, ok := asMap(defaults["mutation_hints"]); ok {
		if v, ok := hints["reg_prefers_zero_one_hot"]; ok {
			isa.Defaults.Hints.RegPrefersZeroOneHot = boolOf(v)
		}

		if v, ok := hints["signed_immediates_bias"]; ok {
			isa.Defaults.Hints.SignedImmediatesBias = boolOf(v)
		}

		if v, ok := hints["align_load_store"]; ok {
			isa.Defaults.Hints.AlignLoadStore = uint32(intOf(v))
		}
	}
}

// finalizeWidths applies the fallback rules: a format with no declared
// width inherits BaseWidth; BaseWidth itself defaults to the widest format
// seen, or 32 if none; RegisterCount defaults to 32.
func finalizeWidths(isa *ISAConfig) {
	var maxFormatWidth uint

	for _, f := range isa.Formats {
		if f.WordWidth == 0 {
			f.WordWidth = isa.BaseWidth
		}

		if f.WordWidth > maxFormatWidth {
			maxFormatWidth = f.WordWidth
		}
	}

	if isa.BaseWidth == 0 {
		if maxFormatWidth > 0 {
			isa.BaseWidth = maxFormatWidth
		} else {
			isa.BaseWidth = 32
		}
	}

	if isa.RegisterCount == 0 {
		isa.RegisterCount = 32
	}
}
