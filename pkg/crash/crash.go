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

// Package crash writes the .bin/.log artifact pair produced when the
// differential harness aborts an iteration.
package crash

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/bits-and-blooms/bitset"
	log "github.com/sirupsen/logrus"
)

// Report describes one crash: why it happened, where execution was, and
// the input bytes that triggered it.
type Report struct {
	Reason  string
	Cycle   uint64
	PC      uint64
	Insn    uint32
	Input   []byte
	Details string
}

// Writer places crash artifacts under Dir, invoking an external
// disassembler (when configured) to render the Disassembly section.
type Writer struct {
	Dir         string
	ObjdumpBin  string
	now         func() string
}

// NewWriter constructs a Writer rooted at dir, creating it if necessary.
func NewWriter(dir, objdumpBin string, nowFn func() string) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("crash: mkdir %q: %w", dir, err)
	}

	return &Writer{Dir: dir, ObjdumpBin: objdumpBin, now: nowFn}, nil
}

// Write produces crash_<reason>_<timestamp>_cyc<cycle>.{bin,log} under
// Dir, via a temp file plus rename so a partially-written artifact is
// never observed by a concurrent reader.
func (w *Writer) Write(r Report) error {
	base := fmt.Sprintf("crash_%s_%s_cyc%d", sanitize(r.Reason), w.now(), r.Cycle)

	binPath := filepath.Join(w.Dir, base+".bin")
	if err := atomicWrite(binPath, r.Input); err != nil {
		return err
	}

	logPath := filepath.Join(w.Dir, base+".log")

	return atomicWrite(logPath, []byte(w.renderLog(r)))
}

func sanitize(reason string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		default:
			return '_'
		}
	}, reason)
}

func atomicWrite(path string, content []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("crash: create temp for %q: %w", path, err)
	}

	tmpPath := tmp.Name()

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmpPath)

		return fmt.Errorf("crash: write %q: %w", path, err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("crash: close %q: %w", path, err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("crash: rename into %q: %w", path, err)
	}

	return nil
}

func (w *Writer) renderLog(r Report) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Reason: %s\n", r.Reason)
	fmt.Fprintf(&b, "Cycle: %d\n", r.Cycle)
	fmt.Fprintf(&b, "PC: 0x%08x\n", r.PC)
	fmt.Fprintf(&b, "Instruction: 0x%08x\n", r.Insn)
	b.WriteString("\n")

	b.WriteString("Hexdump:\n")
	b.WriteString(hexdump(r.Input))
	b.WriteString("\n")

	b.WriteString("Disassembly:\n")

	disasm, err := w.disassemble(r.Input)
	if err != nil {
		log.Warnf("crash: disassembly failed: %v", err)
		b.WriteString("(unavailable)\n")
	} else {
		b.WriteString(disasm)
	}

	if r.Details != "" {
		b.WriteString("\nDetails:\n")
		b.WriteString(r.Details)
		b.WriteString("\n")
	}

	return b.String()
}

func (w *Writer) disassemble(input []byte) (string, error) {
	if w.ObjdumpBin == "" {
		return "", fmt.Errorf("no objdump configured")
	}

	tmp, err := os.CreateTemp("", "rv32fuzz-crash-*.bin")
	if err != nil {
		return "", err
	}

	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(input); err != nil {
		tmp.Close()
		return "", err
	}

	tmp.Close()

	cmd := exec.Command(w.ObjdumpBin, "-D", "-b", "binary", "-m", "riscv:rv32", tmp.Name())

	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("%w: %s", err, out)
	}

	return string(out), nil
}

func hexdump(data []byte) string {
	var b strings.Builder

	for i := 0; i < len(data); i += 16 {
		end := i + 16
		if end > len(data) {
			end = len(data)
		}

		fmt.Fprintf(&b, "%08x  ", i)

		for j := i; j < end; j++ {
			fmt.Fprintf(&b, "%02x ", data[j])
		}

		b.WriteString("\n")
	}

	return b.String()
}

// RegisterDiff renders a side-by-side register-file mismatch block for the
// Details section, naming the first divergent index. touchedDUT/touchedGold
// mark which registers have been written at least once this iteration; an
// untouched register on either side is called out, since a mismatch there
// means one side wrote a register the other never touched at all.
func RegisterDiff(idx int, dut, gold [32]uint64, touchedDUT, touchedGold *bitset.BitSet) string {
	var b strings.Builder

	fmt.Fprintf(&b, "regfile mismatch at x%d: dut=0x%016x gold=0x%016x\n", idx, dut[idx], gold[idx])

	if touchedDUT != nil && touchedGold != nil && touchedDUT.Test(uint(idx)) != touchedGold.Test(uint(idx)) {
		fmt.Fprintf(&b, "x%d touched dut=%v gold=%v\n", idx, touchedDUT.Test(uint(idx)), touchedGold.Test(uint(idx)))
	}

	b.WriteString("dut:  ")

	for i, v := range dut {
		fmt.Fprintf(&b, "x%d=0x%x ", i, v)
	}

	b.WriteString("\ngold: ")

	for i, v := range gold {
		fmt.Fprintf(&b, "x%d=0x%x ", i, v)
	}

	b.WriteString("\n")

	return b.String()
}

// MemoryDiff renders the 4-byte aligned window around addr from both
// shadow memories for the Details section.
func MemoryDiff(addr uint64, dutWindow, goldWindow [4]byte) string {
	return fmt.Sprintf("mem window @0x%08x: dut=%02x%02x%02x%02x gold=%02x%02x%02x%02x\n",
		addr&^3,
		dutWindow[0], dutWindow[1], dutWindow[2], dutWindow[3],
		goldWindow[0], goldWindow[1], goldWindow[2], goldWindow[3])
}
