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
	"bufio"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// shutdownGrace is how long Stop waits between asking the child to
// terminate and giving up on a clean exit.
const shutdownGrace = 200 * time.Millisecond

// Driver spawns the reference simulator for one fuzzing iteration, parses
// its commit log, and yields CommitRecords via NextCommit. A Driver is
// single-use: one input, one child process, then Stop.
type Driver struct {
	cfg Config

	cmd        *exec.Cmd
	pipeReader *os.File
	pipeWriter *os.File
	scanner    *bufio.Scanner
	logFile    *os.File

	cmdStrings []string
	tmpDir     string

	held          *parsedCommit
	bufferedStart *parsedCommit

	eof           bool
	fatalTrapSeen bool
	trapSummary   string
}

// NewDriver spawns the golden model for input under cfg, wrapping it as an
// ELF first via the configured toolchain. The caller must call Stop when
// done, even on error paths after partial startup.
func NewDriver(cfg Config, input []byte) (*Driver, error) {
	tmpDir, err := os.MkdirTemp("", "rv32fuzz-golden-*")
	if err != nil {
		return nil, fmt.Errorf("golden: tempdir: %w", err)
	}

	d := &Driver{cfg: cfg, tmpDir: tmpDir}

	elfPath, elfCmds, err := wrapELF(tmpDir, input, cfg)
	if err != nil {
		os.RemoveAll(tmpDir)
		return nil, err
	}

	d.cmdStrings = append(d.cmdStrings, elfCmds...)

	args := []string{"-l", "--log-commits"}
	if cfg.SpikeISA != "" {
		args = append(args, "--isa="+cfg.SpikeISA)
	}

	args = append(args, fmt.Sprintf("--pc=%#x", cfg.Entry()))

	if cfg.PkBin != "" {
		args = append(args, cfg.PkBin)
	}

	args = append(args, elfPath)

	d.cmd = exec.Command(cfg.SpikeBin, args...)
	d.cmdStrings = append(d.cmdStrings, d.cmd.String())

	r, w, err := os.Pipe()
	if err != nil {
		os.RemoveAll(tmpDir)
		return nil, fmt.Errorf("golden: pipe: %w", err)
	}

	d.pipeReader, d.pipeWriter = r, w
	d.cmd.Stdout = w
	d.cmd.Stderr = w

	if cfg.SpikeLogFile != "" {
		logFile, err := os.Create(cfg.SpikeLogFile)
		if err != nil {
			log.Warnf("golden: could not open SPIKE_LOG_FILE %q: %v", cfg.SpikeLogFile, err)
		} else {
			d.logFile = logFile
		}
	}

	if err := d.cmd.Start(); err != nil {
		w.Close()
		r.Close()
		os.RemoveAll(tmpDir)

		return nil, fmt.Errorf("golden: spawn %s: %w", cfg.SpikeBin, err)
	}

	w.Close()

	var reader io.Reader = r
	if d.logFile != nil {
		reader = io.TeeReader(r, d.logFile)
	}

	d.scanner = bufio.NewScanner(reader)
	d.scanner.Buffer(make([]byte, 4096), 1<<20)

	return d, nil
}

// NewDriverFromReader builds a Driver directly from a pre-recorded commit
// log, with no child process. This backs the reserved GOLDEN_MODE=replay
// path, where a fuzzing iteration is re-checked against a log captured on
// a previous run rather than a freshly spawned simulator.
func NewDriverFromReader(r io.Reader) *Driver {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 4096), 1<<20)

	return &Driver{scanner: scanner}
}

// CommandStrings returns the exact command lines used to wrap and spawn
// the golden model, for inclusion in crash reports.
func (d *Driver) CommandStrings() []string {
	return d.cmdStrings
}

// FatalTrapSeen reports whether the golden model reported a terminating
// exception, along with the human-readable summary line.
func (d *Driver) FatalTrapSeen() (bool, string) {
	return d.fatalTrapSeen, d.trapSummary
}

// NextCommit returns the next CommitRecord, or false on EOF, fatal trap,
// or child exit. PCWrite is computed from the *following* commit's
// PCRead when available (the one-commit lookahead rule), falling back to
// PCRead+4 for the final commit before the stream ends.
func (d *Driver) NextCommit() (CommitRecord, bool) {
	if d.held == nil {
		pc, ok := d.scanOneCommit()
		if !ok {
			return CommitRecord{}, false
		}

		d.held = pc
	}

	cur := d.held

	next, ok := d.scanOneCommit()

	var pcWrite uint64

	if ok {
		pcWrite = next.pcRead
		d.held = next
	} else {
		pcWrite = cur.pcRead + 4
		d.held = nil
	}

	return toCommitRecord(cur, pcWrite), true
}

func toCommitRecord(pc *parsedCommit, pcWrite uint64) CommitRecord {
	r := CommitRecord{
		PCRead:  pc.pcRead,
		PCWrite: pcWrite,
		Insn:    pc.insn,
	}

	if pc.hasRegWrite {
		r.RdAddr = pc.rdAddr
		r.RdWdata = pc.rdWdata
	}

	if pc.hasStore {
		r.MemIsStore = true
		r.MemAddr = pc.memAddr
		r.MemWdata = pc.memData
		r.MemWmask = 0xF
	}

	if pc.hasLoad {
		r.MemIsLoad = true
		r.MemAddr = pc.memAddr
		r.MemRdata = pc.memData
		r.MemRmask = 0xF
	}

	return r
}

// scanOneCommit returns the next fully-formed parsedCommit (its opening
// commit line plus any associated follow-up lines), or false on EOF or
// fatal trap.
func (d *Driver) scanOneCommit() (*parsedCommit, bool) {
	if d.eof || d.fatalTrapSeen {
		return nil, false
	}

	var cur *parsedCommit

	if d.bufferedStart != nil {
		cur = d.bufferedStart
		d.bufferedStart = nil
	} else {
		for d.scanner.Scan() {
			line := d.scanner.Text()

			if summary, ok := matchFatalTrap(line); ok {
				d.fatalTrapSeen = true
				d.trapSummary = summary

				return nil, false
			}

			if pcRead, insn, ok := matchCommitLine(line); ok {
				cur = &parsedCommit{pcRead: pcRead, insn: insn}
				break
			}
		}

		if cur == nil {
			d.eof = true
			return nil, false
		}
	}

	for i := 0; i < lookaheadLimit; i++ {
		if !d.scanner.Scan() {
			d.eof = true
			return cur, true
		}

		line := d.scanner.Text()

		if strings.TrimSpace(line) == "" {
			return cur, true
		}

		if summary, ok := matchFatalTrap(line); ok {
			d.fatalTrapSeen = true
			d.trapSummary = summary

			return cur, true
		}

		if pcRead, insn, ok := matchCommitLine(line); ok {
			d.bufferedStart = &parsedCommit{pcRead: pcRead, insn: insn}
			return cur, true
		}

		applyFollowupLine(cur, line)
	}

	return cur, true
}

// Stop terminates the child process, allowing shutdownGrace for a clean
// exit before escalating to SIGKILL, drains any remaining stdout to avoid
// a pipe-buffer deadlock, and removes temporary files.
func (d *Driver) Stop() {
	if d.cmd != nil && d.cmd.Process != nil {
		_ = d.cmd.Process.Signal(unix.SIGTERM)

		done := make(chan struct{})

		go func() {
			_ = d.cmd.Wait()
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(shutdownGrace):
			_ = d.cmd.Process.Signal(unix.SIGKILL)
			<-done
		}
	}

	if d.scanner != nil {
		for d.scanner.Scan() {
			// drain
		}
	}

	if d.pipeReader != nil {
		d.pipeReader.Close()
	}

	if d.logFile != nil {
		d.logFile.Close()
	}

	if d.tmpDir != "" {
		os.RemoveAll(d.tmpDir)
	}
}
