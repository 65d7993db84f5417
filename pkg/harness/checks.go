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

import "github.com/consensys/rv32fuzz/pkg/golden"

// localAnomaly runs the checks applied to every DUT commit regardless of
// whether golden checking is active: x0-write, PC alignment, memory
// mask/alignment irregularities, and PC stagnation.
func localAnomaly(r golden.CommitRecord, s *shadow, stagnationLimit uint64) (Reason, bool) {
	if r.RdAddr == 0 && r.RdWdata != 0 {
		return ReasonX0Write, true
	}

	if r.PCWrite&1 != 0 {
		return ReasonPCMisaligned, true
	}

	if reason, bad := memAlignment(r.MemAddr, r.MemWmask, "store"); bad {
		return reason, true
	}

	if reason, bad := memAlignment(r.MemAddr, r.MemRmask, "load"); bad {
		return reason, true
	}

	if r.PCWrite == s.lastPCWrite {
		s.stagnantCount++
	} else {
		s.stagnantCount = 0
		s.lastPCWrite = r.PCWrite
	}

	if s.stagnantCount > stagnationLimit {
		return ReasonPCStagnation, true
	}

	return "", false
}

// memAlignment implements the mask/alignment rule verbatim: for a nonzero
// mask, off = addr&3 and contig = the run of consecutive set bits starting
// at off. A mask shape other than {1<<off, 3<<off (contig==2), 0xF
// (contig==4)} is mem_mask_irregular_<op>; contig>=2 with addr odd, or
// contig==4 with addr not 4-aligned, is mem_unaligned_<op>.
func memAlignment(addr uint64, mask uint8, op string) (Reason, bool) {
	if mask == 0 {
		return "", false
	}

	off := uint(addr & 3)
	contig := contiguousRun(mask, off)

	shapeOK := mask == (1<<off) ||
		(contig == 2 && mask == (3<<off)) ||
		(contig == 4 && mask == 0xF)

	if !shapeOK {
		return memMaskIrregular(op), true
	}

	if contig >= 2 && addr&1 != 0 {
		return memUnaligned(op), true
	}

	if contig >= 4 && addr&3 != 0 {
		return memUnaligned(op), true
	}

	return "", false
}

// contiguousRun counts the consecutive set bits of mask starting at bit
// off, stopping at the first clear bit or bit 8.
func contiguousRun(mask uint8, off uint) uint {
	var n uint

	for off+n < 8 && mask&(1<<(off+n)) != 0 {
		n++
	}

	return n
}

// divergence runs the paired DUT/golden checks in first-match-wins order.
func divergence(dut, gold golden.CommitRecord, s *shadow, checkCSR CSRCheckConfig, dutCSR, goldCSR CSRCommit) (Reason, bool) {
	if dut.PCWrite != gold.PCWrite {
		return ReasonPCMismatch, true
	}

	for i := 0; i < 32; i++ {
		if s.dutRegs[i] != s.goldRegs[i] {
			return ReasonRegfileMismatch, true
		}
	}

	if dut.MemIsLoad != gold.MemIsLoad || dut.MemIsStore != gold.MemIsStore {
		return ReasonMemKind, true
	}

	if dut.MemIsStore && gold.MemIsStore && dut.MemAddr != gold.MemAddr {
		return ReasonMemStoreAddr, true
	}

	if dut.MemIsLoad && gold.MemIsLoad && dut.MemAddr != gold.MemAddr {
		return ReasonMemLoadAddr, true
	}

	if dut.MemIsStore && gold.MemIsStore {
		dutWindow := s.window4(s.dutMem, dut.MemAddr)
		goldWindow := s.window4(s.goldMem, gold.MemAddr)

		if dutWindow != goldWindow {
			return ReasonMemContentAfterStore, true
		}
	}

	if checkCSR.Minstret && dutCSR.MinstretData != goldCSR.MinstretData {
		return ReasonCSRMinstret, true
	}

	if checkCSR.Mcycle && dutCSR.McycleData != goldCSR.McycleData {
		return ReasonCSRMcycle, true
	}

	return "", false
}

// CSRCheckConfig toggles the optional CSR divergence checks, which default
// to off unless the DUT advertises support (open question resolved in
// DESIGN.md).
type CSRCheckConfig struct {
	Minstret bool
	Mcycle   bool
}
