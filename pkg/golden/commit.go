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

// Package golden drives a reference RISC-V simulator ("the golden model")
// as a subprocess, parses its textual commit log, and yields CommitRecords
// to the differential harness (C4). The simulator's output format is
// treated as inherently ambiguous: parsing uses layered, fallback-friendly
// regexes rather than positional slicing.
package golden

// CommitRecord is the architectural state produced by one retired
// instruction, shared between the golden driver and the DUT adapter.
// Masks are byte-granular: bit i of MemRmask/MemWmask corresponds to byte i
// of the memory word.
type CommitRecord struct {
	PCRead  uint64
	PCWrite uint64
	Insn    uint32

	RdAddr  uint8
	RdWdata uint64

	MemAddr     uint64
	MemRmask    uint8
	MemWmask    uint8
	MemRdata    uint64
	MemWdata    uint64
	MemIsLoad   bool
	MemIsStore  bool

	Trap bool
}
