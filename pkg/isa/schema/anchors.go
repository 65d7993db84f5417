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
	"regexp"
	"strings"
)

// anchorDef is one reusable anchored block carried forward across file
// boundaries, keyed by anchor name so a later file redefining the same
// anchor simply replaces the earlier definition.
type anchorDef struct {
	name  string
	block string
}

// anchorLine matches a YAML anchor declaration ("&name") outside of a
// trailing comment.
var anchorLine = regexp.MustCompile(`&([A-Za-z0-9_-]+)`)

// extractAnchorBlocks scans raw schema text for anchor declarations and
// returns each one together with its defining line and any more-indented
// continuation lines, so it can be replayed verbatim ahead of later files.
func extractAnchorBlocks(text string) []anchorDef {
	lines := strings.Split(text, "\n")

	var out []anchorDef

	for i := 0; i < len(lines); i++ {
		line := lines[i]

		commentAt := strings.IndexByte(line, '#')
		searchIn := line
		if commentAt >= 0 {
			searchIn = line[:commentAt]
		}

		loc := anchorLine.FindStringSubmatchIndex(searchIn)
		if loc == nil {
			continue
		}

		name := searchIn[loc[2]:loc[3]]
		indent := leadingWhitespace(line)

		var block strings.Builder
		block.WriteString(line)
		block.WriteString("\n")

		j := i + 1
		for j < len(lines) {
			next := lines[j]
			if strings.TrimSpace(next) == "" {
				break
			}
			if leadingWhitespace(next) <= indent {
				break
			}
			block.WriteString(next)
			block.WriteString("\n")
			j++
		}

		out = append(out, anchorDef{name: name, block: block.String()})
	}

	return out
}

func leadingWhitespace(line string) int {
	n := 0
	for n < len(line) && (line[n] == ' ' || line[n] == '\t') {
		n++
	}
	return n
}

// anchorLibrary accumulates anchor definitions seen across files, later
// definitions of the same name replacing earlier ones, and renders the
// accumulated set as a synthetic preamble nested under a reserved key so it
// is dropped by mergeNodes after parsing.
type anchorLibrary struct {
	order []string
	defs  map[string]string
}

func newAnchorLibrary() *anchorLibrary {
	return &anchorLibrary{defs: map[string]string{}}
}

func (l *anchorLibrary) absorb(blocks []anchorDef) {
	for _, b := range blocks {
		if _, seen := l.defs[b.name]; !seen {
			l.order = append(l.order, b.name)
		}
		l.defs[b.name] = b.block
	}
}

func (l *anchorLibrary) preamble() string {
	if len(l.order) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("__anchors:\n")

	for _, name := range l.order {
		for _, line := range strings.Split(l.defs[name], "\n") {
			if line == "" {
				continue
			}
			sb.WriteString("  ")
			sb.WriteString(line)
			sb.WriteString("\n")
		}
	}

	sb.WriteString("\n")

	return sb.String()
}
