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
	"os"
	"strings"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/consensys/rv32fuzz/pkg/crash"
	"github.com/consensys/rv32fuzz/pkg/golden"
)

// scriptedCPU replays a fixed sequence of commits, one per Step call, then
// reports finish.
type scriptedCPU struct {
	commits []golden.CommitRecord
	idx     int
	trapped bool
}

func (c *scriptedCPU) Reset()                {}
func (c *scriptedCPU) LoadInput(_ []byte)     {}
func (c *scriptedCPU) GotFinish() bool        { return c.idx >= len(c.commits) }
func (c *scriptedCPU) Trap() bool             { return c.trapped }

func (c *scriptedCPU) Step() (golden.CommitRecord, bool) {
	if c.idx >= len(c.commits) {
		return golden.CommitRecord{}, false
	}

	r := c.commits[c.idx]
	c.idx++

	return r, true
}

func newTestHarness(t *testing.T, cfg Config) (*Harness, string) {
	t.Helper()

	dir := t.TempDir()

	cw, err := crash.NewWriter(dir, "", func() string { return "t" })
	require.NoError(t, err)

	return New(cfg, cw, nil, nil), dir
}

func TestCleanRunExitsZero(t *testing.T) {
	cpu := &scriptedCPU{commits: []golden.CommitRecord{
		{PCRead: 0x1000, PCWrite: 0x1004},
		{PCRead: 0x1004, PCWrite: 0x1008},
	}}

	h, _ := newTestHarness(t, DefaultConfig())

	code := h.Run(cpu, []byte{1, 2, 3, 4}, nil)
	assert.Equal(t, ExitClean, code)
}

func TestX0WriteAnomaly(t *testing.T) {
	cpu := &scriptedCPU{commits: []golden.CommitRecord{
		{PCRead: 0x1000, PCWrite: 0x1004, RdAddr: 0, RdWdata: 5},
	}}

	h, dir := newTestHarness(t, DefaultConfig())

	code := h.Run(cpu, []byte{1}, nil)
	assert.Equal(t, ExitAnomaly, code)
	assertCrashReason(t, dir, "x0_write")
}

func TestPCMisalignedAnomaly(t *testing.T) {
	cpu := &scriptedCPU{commits: []golden.CommitRecord{
		{PCRead: 0x1000, PCWrite: 0x1003},
	}}

	h, dir := newTestHarness(t, DefaultConfig())

	code := h.Run(cpu, []byte{1}, nil)
	assert.Equal(t, ExitAnomaly, code)
	assertCrashReason(t, dir, "pc_misaligned")
}

func TestStoreMaskIrregularDiscontiguous(t *testing.T) {
	cpu := &scriptedCPU{commits: []golden.CommitRecord{
		{PCRead: 0x1000, PCWrite: 0x1004, MemWmask: 0x5, MemAddr: 0x80000000},
	}}

	h, dir := newTestHarness(t, DefaultConfig())

	code := h.Run(cpu, []byte{1}, nil)
	assert.Equal(t, ExitAnomaly, code)
	assertCrashReason(t, dir, "mem_mask_irregular_store")
}

func TestPCStagnationAnomaly(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StagnationLimit = 3

	var commits []golden.CommitRecord
	for i := 0; i < 6; i++ {
		commits = append(commits, golden.CommitRecord{PCRead: 0x1000, PCWrite: 0x1000})
	}

	cpu := &scriptedCPU{commits: commits}

	h, dir := newTestHarness(t, cfg)

	code := h.Run(cpu, []byte{1}, nil)
	assert.Equal(t, ExitAnomaly, code)
	assertCrashReason(t, dir, "pc_stagnation")
}

func TestTrapWithoutCommit(t *testing.T) {
	cpu := &neverFinishCPU{scriptedCPU: scriptedCPU{trapped: true}}

	h, dir := newTestHarness(t, DefaultConfig())

	code := h.Run(cpu, []byte{1}, nil)
	assert.Equal(t, ExitTrap, code)
	assertCrashReason(t, dir, "trap")
}

func TestTimeoutWhenCyclesExhausted(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxCycles = 2

	// commits list longer than MaxCycles and never sets GotFinish true.
	var commits []golden.CommitRecord
	for i := 0; i < 10; i++ {
		commits = append(commits, golden.CommitRecord{PCRead: uint64(0x1000 + 4*i), PCWrite: uint64(0x1000 + 4*(i+1))})
	}

	cpu := &neverFinishCPU{scriptedCPU: scriptedCPU{commits: commits}}

	h, dir := newTestHarness(t, cfg)

	code := h.Run(cpu, []byte{1}, nil)
	assert.Equal(t, ExitTimeout, code)
	assertCrashReason(t, dir, "timeout")
}

type neverFinishCPU struct {
	scriptedCPU
}

func (c *neverFinishCPU) GotFinish() bool { return false }

func (c *neverFinishCPU) Step() (golden.CommitRecord, bool) {
	if c.idx >= len(c.commits) {
		return golden.CommitRecord{}, false
	}

	r := c.commits[c.idx]
	c.idx++

	return r, true
}

func TestGoldenDivergencePCMismatch(t *testing.T) {
	cpu := &scriptedCPU{commits: []golden.CommitRecord{
		{PCRead: 0x1000, PCWrite: 0x1004},
	}}

	goldLog := "core   0: 0x1000 (0x00000013)\n" +
		"core   0: 0x1100 (0x00000013)\n"
	gold := golden.NewDriverFromReader(strings.NewReader(goldLog))

	h, dir := newTestHarness(t, DefaultConfig())

	code := h.Run(cpu, []byte{1}, gold)
	assert.Equal(t, ExitDivergence, code)
	assertCrashReason(t, dir, "golden_divergence_pc")
}

func TestGoldenDisengagesOnExhaustion(t *testing.T) {
	cpu := &scriptedCPU{commits: []golden.CommitRecord{
		{PCRead: 0x1000, PCWrite: 0x1004},
		{PCRead: 0x1004, PCWrite: 0x1008},
	}}

	goldLog := "core   0: 0x1000 (0x00000013)\n"
	gold := golden.NewDriverFromReader(strings.NewReader(goldLog))

	h, _ := newTestHarness(t, DefaultConfig())

	code := h.Run(cpu, []byte{1}, gold)
	assert.Equal(t, ExitClean, code, "golden disengagement must not abort the iteration")
}

// signalingCPU never finishes on its own (like neverFinishCPU) but sends
// itself SIGINT on its first Step call, exercising Run's per-iteration
// pending-signal check against a real OS-delivered signal.
type signalingCPU struct {
	neverFinishCPU
	sent bool
}

func (c *signalingCPU) Step() (golden.CommitRecord, bool) {
	if !c.sent {
		c.sent = true
		_ = syscall.Kill(os.Getpid(), syscall.SIGINT)
	}

	return c.neverFinishCPU.Step()
}

func TestSignalPendingAbortsRun(t *testing.T) {
	cpu := &signalingCPU{neverFinishCPU: neverFinishCPU{scriptedCPU: scriptedCPU{
		commits: []golden.CommitRecord{{PCRead: 0x1000, PCWrite: 0x1004}},
	}}}

	h, dir := newTestHarness(t, DefaultConfig())

	code := h.Run(cpu, []byte{1}, nil)
	assert.Equal(t, ExitSignal, code)
	assertCrashReason(t, dir, "signal_2")
}

func TestSignalReasonFormatsKnownSignal(t *testing.T) {
	assert.Equal(t, Reason("signal_15"), signalReason(syscall.SIGTERM))
}

func assertCrashReason(t *testing.T, dir, reasonSubstr string) {
	t.Helper()

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)

	var names []string

	found := false

	for _, e := range entries {
		names = append(names, e.Name())

		if strings.Contains(e.Name(), reasonSubstr) {
			found = true
		}
	}

	assert.True(t, found, "expected a crash artifact containing %q among %v", reasonSubstr, names)
}
