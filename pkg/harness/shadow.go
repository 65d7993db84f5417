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
package harness

import (
	"github.com/bits-and-blooms/bitset"

	"github.com/consensys/rv32fuzz/pkg/golden"
)

// MemConfig bounds the harness's shadow memory window.
type MemConfig struct {
	Base uint64
	Size uint64
}

// shadow holds the per-iteration mirrored architectural state: two
// register files, two byte-addressed memory images, and four counters.
// It is constructed fresh on every DUT reset and discarded at the end of
// the iteration.
type shadow struct {
	dutRegs  [32]uint64
	goldRegs [32]uint64

	mem MemConfig

	dutMem  []byte
	goldMem []byte

	dutMcycle, goldMcycle     uint64
	dutMinstret, goldMinstret uint64

	lastPCWrite   uint64
	stagnantCount uint64

	// touchedDUT/touchedGold record which of the 32 registers have been
	// written at least once this iteration, so a regfile_mismatch crash
	// report can distinguish "never written" from "written and equal" in
	// its diagnostic Details block.
	touchedDUT  *bitset.BitSet
	touchedGold *bitset.BitSet
}

func newShadow(mem MemConfig) *shadow {
	return &shadow{
		mem:         mem,
		dutMem:      make([]byte, mem.Size),
		goldMem:     make([]byte, mem.Size),
		touchedDUT:  bitset.New(32),
		touchedGold: bitset.New(32),
	}
}

// updateRegs applies a commit's register write to regs, forcing x0 to
// stay zero regardless of what the commit reports, and records the
// destination in touched when the write is non-trivial.
func updateRegs(regs *[32]uint64, touched *bitset.BitSet, r golden.CommitRecord) {
	if r.RdAddr != 0 {
		regs[r.RdAddr] = r.RdWdata
		touched.Set(uint(r.RdAddr))
	}

	regs[0] = 0
}

// applyStore writes r's store data into mem at the masked byte positions
// within mem's tracked window, reporting whether anything was written
// (addresses outside the window are silently ignored, matching a
// fixed-size shadow that only tracks a bounded address range).
func (s *shadow) applyStore(mem []byte, r golden.CommitRecord) bool {
	if !r.MemIsStore || r.MemAddr < s.mem.Base {
		return false
	}

	off := r.MemAddr - s.mem.Base
	if off >= uint64(len(mem)) {
		return false
	}

	wrote := false

	for i := 0; i < 4; i++ {
		if r.MemWmask&(1<<uint(i)) == 0 {
			continue
		}

		idx := off + uint64(i)
		if idx >= uint64(len(mem)) {
			continue
		}

		mem[idx] = byte(r.MemWdata >> (8 * i))
		wrote = true
	}

	return wrote
}

// window4 returns the 4-byte aligned window containing addr.
func (s *shadow) window4(mem []byte, addr uint64) [4]byte {
	var out [4]byte

	base := (addr &^ 3)
	if base < s.mem.Base {
		return out
	}

	off := base - s.mem.Base

	for i := 0; i < 4; i++ {
		idx := off + uint64(i)
		if idx < uint64(len(mem)) {
			out[i] = mem[idx]
		}
	}

	return out
}
