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
	"fmt"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/consensys/rv32fuzz/pkg/crash"
	"github.com/consensys/rv32fuzz/pkg/golden"
	"github.com/consensys/rv32fuzz/pkg/trace"
)

// Config bounds one harness run: cycle budget, stagnation threshold,
// shadow memory window, and which optional CSR checks are active.
type Config struct {
	MaxCycles       uint64
	StagnationLimit uint64
	Mem             MemConfig
	CSR             CSRCheckConfig
}

// DefaultConfig mirrors the environment defaults documented for
// MAX_CYCLES/PC_STAGNATION_LIMIT, with CSR checks off per the resolved
// open question.
func DefaultConfig() Config {
	return Config{
		MaxCycles:       100000,
		StagnationLimit: 64,
		Mem:             MemConfig{Base: 0x80000000, Size: 1 << 20},
	}
}

// Harness ties a CpuInterface to an optional golden.Driver, shadow state,
// trace writers, and a crash.Writer for one fuzzing iteration.
type Harness struct {
	cfg Config

	crashWriter *crash.Writer
	dutTrace    *trace.Writer
	goldTrace   *trace.Writer

	input []byte
}

// New constructs a Harness. Either trace writer may be nil to disable that
// stream; crashWriter must not be nil.
func New(cfg Config, crashWriter *crash.Writer, dutTrace, goldTrace *trace.Writer) *Harness {
	return &Harness{cfg: cfg, crashWriter: crashWriter, dutTrace: dutTrace, goldTrace: goldTrace}
}

// Run drives cpu over input for up to Config.MaxCycles, pairing commits
// against gold when non-nil, and returns the iteration's exit code.
func (h *Harness) Run(cpu CpuInterface, input []byte, gold *golden.Driver) int {
	cpu.Reset()
	cpu.LoadInput(input)

	h.input = input

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, unix.SIGINT, unix.SIGTERM, unix.SIGHUP)
	defer signal.Stop(sigCh)

	s := newShadow(h.cfg.Mem)
	goldActive := gold != nil

	var cyc uint64

	for ; cyc < h.cfg.MaxCycles && !cpu.GotFinish(); cyc++ {
		select {
		case sig := <-sigCh:
			h.emitCrash(signalReason(sig), cyc, golden.CommitRecord{})
			return ExitSignal
		default:
		}

		r, committed := cpu.Step()

		if committed {
			h.writeTrace(h.dutTrace, r)
			updateRegs(&s.dutRegs, s.touchedDUT, r)

			var dutCSR, goldCSR CSRCommit
			if csrCpu, ok := cpu.(CpuInterfaceCSR); ok {
				dutCSR = csrCpu.LastCSRCommit()
			}

			if goldActive {
				rg, ok := gold.NextCommit()
				if !ok {
					log.Warn("harness: golden model exhausted or disengaged; continuing with local checks only")
					goldActive = false
				} else {
					h.writeTrace(h.goldTrace, rg)
					updateRegs(&s.goldRegs, s.touchedGold, rg)

					s.goldMcycle++
					s.goldMinstret++
					goldCSR.McycleData = s.goldMcycle
					goldCSR.MinstretData = s.goldMinstret

					s.applyStore(s.goldMem, rg)
					s.applyStore(s.dutMem, r)

					if reason, bad := divergence(r, rg, s, h.cfg.CSR, dutCSR, goldCSR); bad {
						h.emitDivergence(reason, cyc, r, rg, s)
						return ExitDivergence
					}
				}
			}

			if reason, bad := localAnomaly(r, s, h.cfg.StagnationLimit); bad {
				h.emitCrash(reason, cyc, r)
				return ExitAnomaly
			}
		}

		if cpu.Trap() && !committed {
			h.emitCrash(ReasonTrap, cyc, golden.CommitRecord{})
			return ExitTrap
		}
	}

	if cyc >= h.cfg.MaxCycles && !cpu.GotFinish() {
		h.emitCrash(ReasonTimeout, cyc, golden.CommitRecord{})
		return ExitTimeout
	}

	return ExitClean
}

// signalReason formats a delivered OS signal as spec.md §4.5's
// "signal_N" crash reason, N being the signal number (e.g. 2 for
// SIGINT, 15 for SIGTERM).
func signalReason(sig os.Signal) Reason {
	if s, ok := sig.(syscall.Signal); ok {
		return Reason(fmt.Sprintf("signal_%d", int(s)))
	}

	return Reason(fmt.Sprintf("signal_%s", sig))
}

func (h *Harness) writeTrace(w *trace.Writer, r golden.CommitRecord) {
	if w == nil {
		return
	}

	row := trace.Row{
		PCRead: r.PCRead, PCWrite: r.PCWrite, Insn: r.Insn,
		RdAddr: r.RdAddr, RdWdata: r.RdWdata,
		MemAddr: r.MemAddr, MemRmask: r.MemRmask, MemWmask: r.MemWmask,
		Trap: r.Trap,
	}

	if err := w.Write(row); err != nil {
		log.Warnf("harness: trace write failed: %v", err)
	}
}

// emitDivergence builds the diagnostic Details block named in the crash
// artifact format before delegating to emitCrash: the mismatching
// register file for regfile_mismatch, both sides' 4-byte window for
// mem_content_after_store.
func (h *Harness) emitDivergence(reason Reason, cyc uint64, r, rg golden.CommitRecord, s *shadow) {
	details := ""

	switch reason {
	case ReasonRegfileMismatch:
		for i := 0; i < 32; i++ {
			if s.dutRegs[i] != s.goldRegs[i] {
				details = crash.RegisterDiff(i, s.dutRegs, s.goldRegs, s.touchedDUT, s.touchedGold)
				break
			}
		}
	case ReasonMemContentAfterStore:
		details = crash.MemoryDiff(r.MemAddr, s.window4(s.dutMem, r.MemAddr), s.window4(s.goldMem, rg.MemAddr))
	}

	h.emitCrashDetailed(reason, cyc, r, details)
}

func (h *Harness) emitCrash(reason Reason, cyc uint64, r golden.CommitRecord) {
	h.emitCrashDetailed(reason, cyc, r, "")
}

func (h *Harness) emitCrashDetailed(reason Reason, cyc uint64, r golden.CommitRecord, details string) {
	if h.crashWriter == nil {
		return
	}

	report := crash.Report{
		Reason: string(reason),
		Cycle:  cyc,
		PC:     r.PCRead,
		Insn:   r.Insn,
		Input:  h.input,
		Details: details,
	}

	if err := h.crashWriter.Write(report); err != nil {
		log.Errorf("harness: failed to write crash artifact: %v", err)
	}
}
