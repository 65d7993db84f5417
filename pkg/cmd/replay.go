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
package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/consensys/rv32fuzz/pkg/config"
	"github.com/consensys/rv32fuzz/pkg/crash"
	"github.com/consensys/rv32fuzz/pkg/golden"
	"github.com/consensys/rv32fuzz/pkg/harness"
	"github.com/consensys/rv32fuzz/pkg/trace"
)

var replayCmd = &cobra.Command{
	Use:   "replay dut-trace.csv golden-log.txt input-bin",
	Short: "Re-run the differential harness against a captured DUT trace and golden commit log.",
	Long: "Replay feeds a previously captured DUT trace CSV (see TRACE_MODE) through the same " +
		"local-anomaly and divergence checks the live harness applies, paired against a golden " +
		"commit log captured the same way. It runs regardless of GOLDEN_MODE.",
	Args: cobra.ExactArgs(3),
	Run: func(cmd *cobra.Command, args []string) {
		root := config.Load()

		dutFile, err := os.Open(args[0])
		if err != nil {
			fmt.Println(err)
			os.Exit(2)
		}
		defer dutFile.Close()

		rows, err := trace.ReadCSV(dutFile)
		if err != nil {
			fmt.Println(err)
			os.Exit(2)
		}

		goldFile, err := os.Open(args[1])
		if err != nil {
			fmt.Println(err)
			os.Exit(2)
		}
		defer goldFile.Close()

		input, err := os.ReadFile(args[2])
		if err != nil {
			fmt.Println(err)
			os.Exit(2)
		}

		cw, err := crash.NewWriter(root.CrashLogDir, "", timestampNow)
		if err != nil {
			fmt.Println(err)
			os.Exit(2)
		}

		hcfg := harness.DefaultConfig()
		hcfg.MaxCycles = root.MaxCycles
		hcfg.StagnationLimit = root.PCStagnationLimit
		hcfg.CSR.Minstret = root.CheckCSRMinstret
		hcfg.CSR.Mcycle = root.CheckCSRMcycle

		dutTrace, goldTrace, err := openTraceWriters(root.TraceDir, root.TraceMode)
		if err != nil {
			fmt.Println(err)
			os.Exit(2)
		}

		h := harness.New(hcfg, cw, dutTrace, goldTrace)
		gold := golden.NewDriverFromReader(goldFile)

		code := h.Run(&replayCPU{rows: rows}, input, gold)
		os.Exit(code)
	},
}

// replayCPU implements harness.CpuInterface by stepping through a slice of
// previously captured trace.Rows rather than a live DUT.
type replayCPU struct {
	rows []trace.Row
	idx  int
}

func (c *replayCPU) Reset()           {}
func (c *replayCPU) LoadInput([]byte) {}
func (c *replayCPU) GotFinish() bool  { return c.idx >= len(c.rows) }
func (c *replayCPU) Trap() bool       { return false }

func (c *replayCPU) Step() (golden.CommitRecord, bool) {
	if c.idx >= len(c.rows) {
		return golden.CommitRecord{}, false
	}

	row := c.rows[c.idx]
	c.idx++

	return golden.CommitRecord{
		PCRead: row.PCRead, PCWrite: row.PCWrite, Insn: row.Insn,
		RdAddr: row.RdAddr, RdWdata: row.RdWdata,
		MemAddr: row.MemAddr, MemRmask: row.MemRmask, MemWmask: row.MemWmask,
		MemIsLoad:  row.MemRmask != 0,
		MemIsStore: row.MemWmask != 0,
		Trap:       row.Trap,
	}, true
}

func timestampNow() string {
	return fmt.Sprintf("%d", time.Now().Unix())
}

// openTraceWriters honors TraceMode (TRACE_MODE): it creates "dut.csv"
// and/or "gold.csv" under dir for whichever stream(s) are enabled, leaving
// the other writer nil so the harness skips that stream entirely.
func openTraceWriters(dir string, mode trace.Mode) (dutTrace, goldTrace *trace.Writer, err error) {
	if mode == trace.Off {
		return nil, nil, nil
	}

	if dir == "" {
		dir = "."
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("replay: create trace dir: %w", err)
	}

	if mode == trace.DUTOnly || mode == trace.Both {
		dutTrace, err = newTraceFile(filepath.Join(dir, "dut.csv"))
		if err != nil {
			return nil, nil, err
		}
	}

	if mode == trace.GoldOnly || mode == trace.Both {
		goldTrace, err = newTraceFile(filepath.Join(dir, "gold.csv"))
		if err != nil {
			return nil, nil, err
		}
	}

	return dutTrace, goldTrace, nil
}

func newTraceFile(path string) (*trace.Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("replay: create trace file %s: %w", path, err)
	}

	w, err := trace.NewWriter(f)
	if err != nil {
		return nil, fmt.Errorf("replay: init trace writer %s: %w", path, err)
	}

	return w, nil
}

func init() {
	rootCmd.AddCommand(replayCmd)
}
