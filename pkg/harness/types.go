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

// Package harness implements the differential-execution harness (C5): it
// drives a DUT through a CpuInterface, optionally pairs each commit with a
// golden.Driver commit, and aborts the iteration on the first local
// anomaly or divergence.
package harness

import "github.com/consensys/rv32fuzz/pkg/golden"

// CpuInterface is the capability set the harness requires of a DUT
// adapter. Implementations typically wrap a Verilator-compiled model via
// cgo; the harness itself is agnostic to that boundary.
type CpuInterface interface {
	Reset()
	LoadInput(input []byte)
	// Step advances the DUT by one clock. It returns the CommitRecord and
	// true when rvfi_valid was observed immediately after the step.
	Step() (golden.CommitRecord, bool)
	GotFinish() bool
	Trap() bool
}

// Observables are carried on golden.CommitRecord; CSR write tracking is
// layered on top via CSRCommit below, since not every DUT implements the
// counters.
type CSRCommit struct {
	MinstretWrite bool
	MinstretData  uint64
	McycleWrite   bool
	McycleData    uint64
}

// CpuInterfaceCSR is an optional extension a DUT adapter may implement to
// report mcycle/minstret write data alongside the last Step call.
type CpuInterfaceCSR interface {
	LastCSRCommit() CSRCommit
}

// Exit codes, per the error handling design: each reason class gets a
// distinct code so the fuzzer front-end can classify outcomes without
// parsing text.
const (
	ExitClean      = 0
	ExitAnomaly    = 1
	ExitDivergence = 123
	ExitTrap       = 124
	ExitTimeout    = 125
	ExitSignal     = 126
)

// Reason is a crash-artifact reason tag.
type Reason string

const (
	ReasonX0Write              Reason = "x0_write"
	ReasonPCMisaligned         Reason = "pc_misaligned"
	ReasonPCStagnation         Reason = "pc_stagnation"
	ReasonTrap                 Reason = "trap"
	ReasonTimeout              Reason = "timeout"
	ReasonPCMismatch           Reason = "golden_divergence_pc"
	ReasonRegfileMismatch      Reason = "golden_divergence_regfile"
	ReasonMemKind              Reason = "golden_divergence_mem_kind"
	ReasonMemStoreAddr         Reason = "golden_divergence_mem_store_addr"
	ReasonMemLoadAddr          Reason = "golden_divergence_mem_load_addr"
	ReasonMemContentAfterStore Reason = "golden_divergence_mem_content"
	ReasonCSRMinstret          Reason = "golden_divergence_csr_minstret"
	ReasonCSRMcycle            Reason = "golden_divergence_csr_mcycle"
)

func memMaskIrregular(op string) Reason { return Reason("mem_mask_irregular_" + op) }
func memUnaligned(op string) Reason     { return Reason("mem_unaligned_" + op) }
