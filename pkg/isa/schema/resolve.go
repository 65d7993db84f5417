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

	"gopkg.in/yaml.v3"
)

// resolveSources loads isaName's isa_map entry and returns the absolute,
// existence-checked list of schema files it names, in the order given by
// the map (before include/extends expansion).
func resolveSources(schemaDir, isaName string) ([]string, error) {
	mapPath := filepath.Join(schemaDir, "isa_map.yaml")

	raw, err := os.ReadFile(mapPath)
	if err != nil {
		return nil, newError(ErrFileNotFound, mapPath, "", "isa_map not found: "+err.Error())
	}

	var doc map[string]any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, newError(ErrParse, mapPath, "", "failed to parse isa_map: "+err.Error())
	}

	includes := includesForISA(doc, isaName)
	if len(includes) == 0 {
		return nil, newError(ErrUnresolvedISA, mapPath, isaName, "no schema files registered for ISA '"+isaName+"'")
	}

	out := make([]string, 0, len(includes))

	for _, inc := range includes {
		candidate := inc
		if !filepath.IsAbs(candidate) {
			candidate = filepath.Join(schemaDir, candidate)
		}

		candidate = filepath.Clean(candidate)

		if _, err := os.Stat(candidate); err != nil {
			return nil, newError(ErrFileNotFound, candidate, isaName, "schema include referenced by isa_map not found")
		}

		out = append(out, candidate)
	}

	return out, nil
}

// includesForISA extracts the ordered include-file list for isaName,
// supporting both a flat "<isa>: [files...]" map and the nested
// "isa_families: <family>: <isa>: {includes: [...]}" form.
func includesForISA(doc map[string]any, isaName string) []string {
	if families, ok := doc["isa_families"]; ok {
		if famMap, ok := asMap(families); ok {
			for _, variants := range famMap {
				variantMap, ok := asMap(variants)
				if !ok {
					continue
				}

				entry, ok := variantMap[isaName]
				if !ok {
					continue
				}

				if list := includesFromEntry(entry); len(list) > 0 {
					return list
				}
			}
		}
	}

	if entry, ok := doc[isaName]; ok {
		return includesFromEntry(entry)
	}

	return nil
}

func includesFromEntry(entry any) []string {
	switch v := entry.(type) {
	case []any:
		return toStringSlice(v)
	case string:
		return []string{v}
	default:
		if m, ok := asMap(entry); ok {
			if inc, ok := m["includes"]; ok {
				if list, ok := inc.([]any); ok {
					return toStringSlice(list)
				}
			}
		}
	}

	return nil
}

func toStringSlice(items []any) []string {
	out := make([]string, 0, len(items))

	for _, it := range items {
		if s, ok := it.(string); ok {
			out = append(out, s)
		}
	}

	return out
}

// collectDependencies walks extends/include references transitively,
// recording each referenced file exactly once in depth-first post-order
// (a file's includes are merged before the file itself), and fails fast on
// a cycle.
func collectDependencies(path string, ordered *[]string, visiting, visited map[string]bool) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return newError(ErrFileNotFound, path, "", err.Error())
	}

	if visited[abs] {
		return nil
	}

	if visiting[abs] {
		return newError(ErrCyclicInclude, abs, "", "cyclic include detected")
	}

	visiting[abs] = true

	raw, err := os.ReadFile(abs)
	if err != nil {
		return newError(ErrFileNotFound, abs, "", err.Error())
	}

	var doc map[string]any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return newError(ErrParse, abs, "", "failed to parse for dependency scan: "+err.Error())
	}

	dir := filepath.Dir(abs)

	for _, key := range []string{"extends", "include"} {
		for _, rel := range referencesForKey(doc, key) {
			child := rel
			if !filepath.IsAbs(child) {
				child = filepath.Join(dir, child)
			}

			if err := collectDependencies(child, ordered, visiting, visited); err != nil {
				return err
			}
		}
	}

	visiting[abs] = false
	visited[abs] = true
	*ordered = append(*ordered, abs)

	return nil
}

func referencesForKey(doc map[string]any, key string) []string {
	val, ok := doc[key]
	if !ok {
		return nil
	}

	switch v := val.(type) {
	case string:
		return []string{v}
	case []any:
		return toStringSlice(v)
	default:
		return nil
	}
}
