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
package golden

import (
	"regexp"
	"strconv"
)

// lookaheadLimit bounds how many follow-up lines the parser will associate
// with a single commit line before giving up and treating the commit as
// complete on its own.
const lookaheadLimit = 16

// Layered regexes: the reference simulator's textual log format is not a
// stable contract, so every pattern is tried independently and the first
// match wins, rather than relying on fixed column positions.
var (
	commitLineRe = regexp.MustCompile(`core\s+\d+:\s*0x([0-9a-fA-F]+)\s*\(0x([0-9a-fA-F]+)\)`)

	// Two textual shapes seen for register writes across simulator
	// versions: "x5 0x...." and "x5 = 0x....".
	regWriteRe  = regexp.MustCompile(`\bx(\d{1,2})\s+0x([0-9a-fA-F]+)\b`)
	regWriteEqRe = regexp.MustCompile(`\bx(\d{1,2})\s*=\s*0x([0-9a-fA-F]+)\b`)

	memStoreRe = regexp.MustCompile(`mem\s*\[0x([0-9a-fA-F]+)\]\s*=\s*0x([0-9a-fA-F]+)`)
	memLoadRe  = regexp.MustCompile(`mem\s*\[0x([0-9a-fA-F]+)\]\s*->\s*0x([0-9a-fA-F]+)`)

	fatalTrapRe = regexp.MustCompile(`core\s+\d+:.*exception.*?\(([^)]*)\)|core\s+\d+:.*exception`)
	trapEpcRe   = regexp.MustCompile(`epc\s*0x([0-9a-fA-F]+)`)
)

// parsedCommit is the raw result of scanning one commit line plus its
// associated follow-up lines, before pc_write is fixed up by the
// lookahead buffer in driver.go.
type parsedCommit struct {
	pcRead uint64
	insn   uint32

	hasRegWrite bool
	rdAddr      uint8
	rdWdata     uint64

	hasStore bool
	hasLoad  bool
	memAddr  uint64
	memData  uint64
}

// matchCommitLine reports whether line opens a new commit, returning the
// decoded pc/insn on success.
func matchCommitLine(line string) (pcRead uint64, insn uint32, ok bool) {
	m := commitLineRe.FindStringSubmatch(line)
	if m == nil {
		return 0, 0, false
	}

	pc, err := strconv.ParseUint(m[1], 16, 64)
	if err != nil {
		return 0, 0, false
	}

	word, err := strconv.ParseUint(m[2], 16, 32)
	if err != nil {
		return 0, 0, false
	}

	return pc, uint32(word), true
}

// applyFollowupLine folds one lookahead line's content into pc, mutating
// it in place. Returns true if the line was recognized as associated
// state (a register write, store, or load) rather than unrelated noise.
func applyFollowupLine(pc *parsedCommit, line string) bool {
	if m := regWriteRe.FindStringSubmatch(line); m != nil {
		setRegWrite(pc, m)
		return true
	}

	if m := regWriteEqRe.FindStringSubmatch(line); m != nil {
		setRegWrite(pc, m)
		return true
	}

	if m := memStoreRe.FindStringSubmatch(line); m != nil {
		pc.hasStore = true
		pc.memAddr, _ = strconv.ParseUint(m[1], 16, 64)
		pc.memData, _ = strconv.ParseUint(m[2], 16, 64)

		return true
	}

	if m := memLoadRe.FindStringSubmatch(line); m != nil {
		pc.hasLoad = true
		pc.memAddr, _ = strconv.ParseUint(m[1], 16, 64)
		pc.memData, _ = strconv.ParseUint(m[2], 16, 64)

		return true
	}

	return false
}

func setRegWrite(pc *parsedCommit, m []string) {
	reg, err := strconv.ParseUint(m[1], 10, 8)
	if err != nil || reg > 31 {
		return
	}

	data, err := strconv.ParseUint(m[2], 16, 64)
	if err != nil {
		return
	}

	pc.hasRegWrite = true
	pc.rdAddr = uint8(reg)
	pc.rdWdata = data
}

// matchFatalTrap reports whether line reports a terminating exception, and
// if so extracts a human-readable kind/epc summary.
func matchFatalTrap(line string) (summary string, ok bool) {
	if !fatalTrapRe.MatchString(line) {
		return "", false
	}

	epc := ""
	if m := trapEpcRe.FindStringSubmatch(line); m != nil {
		epc = "0x" + m[1]
	}

	summary = line
	if epc != "" {
		summary += " (epc=" + epc + ")"
	}

	return summary, true
}
