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

import "strings"

// reservedPrefix marks keys dropped after merge (the anchor-definitions
// preamble injected ahead of each parsed file lives under one of these).
const reservedPrefix = "__"

// mergeKey is the schema language's "merge this sub-document's keys into
// the current map as if written inline" marker.
const mergeKey = "<<"

// mergeNodes merges overlay into base per §4.1 rule (a)+(b): maps are
// merged key-by-key with later files overlaying earlier ones; an explicit
// merge-key entry inlines a sub-document's keys; sequences are replaced
// wholesale, never concatenated.
func mergeNodes(base, overlay map[string]any) map[string]any {
	if base == nil {
		base = map[string]any{}
	}

	for key, val := range overlay {
		if key == mergeKey {
			switch v := val.(type) {
			case []any:
				for _, nested := range v {
					if nestedMap, ok := asMap(nested); ok {
						base = mergeNodes(base, nestedMap)
					}
				}
			default:
				if nestedMap, ok := asMap(v); ok {
					base = mergeNodes(base, nestedMap)
				}
			}
			continue
		}

		if strings.HasPrefix(key, reservedPrefix) {
			continue
		}

		existing, existingIsMap := asMap(base[key])
		incoming, incomingIsMap := asMap(val)

		if existingIsMap && incomingIsMap {
			base[key] = mergeNodes(existing, incoming)
		} else {
			base[key] = val
		}
	}

	return base
}

// asMap coerces a decoded YAML value into map[string]any, handling both the
// map[string]any shape yaml.v3 produces for mapping nodes and the
// map[any]any shape older decode paths can yield.
func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[any]any:
		out := make(map[string]any, len(m))

		for k, val := range m {
			if ks, ok := k.(string); ok {
				out[ks] = val
			}
		}

		return out, true
	default:
		return nil, false
	}
}
