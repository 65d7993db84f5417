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

// Package trace writes per-commit CSV trace files for the DUT and golden
// execution streams.
package trace

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Mode selects which of the DUT/golden streams are traced.
type Mode uint8

const (
	// Off disables tracing entirely.
	Off Mode = iota
	// DUTOnly traces only the device-under-test stream.
	DUTOnly
	// GoldOnly traces only the golden-model stream.
	GoldOnly
	// Both traces both streams.
	Both
)

// ParseMode maps the RV32_MODE-style TRACE_MODE string to a Mode, defaulting
// to Off for anything unrecognized.
func ParseMode(s string) Mode {
	switch s {
	case "dut":
		return DUTOnly
	case "gold":
		return GoldOnly
	case "both":
		return Both
	default:
		return Off
	}
}

const header = "#pc_r,pc_w,insn,rd_addr,rd_wdata,mem_addr,mem_rmask,mem_wmask,trap\n"

// Row is the subset of a CommitRecord needed to emit one trace line; kept
// independent of the golden/harness packages to avoid an import cycle.
type Row struct {
	PCRead, PCWrite uint64
	Insn            uint32
	RdAddr          uint8
	RdWdata         uint64
	MemAddr         uint64
	MemRmask        uint8
	MemWmask        uint8
	Trap            bool
}

// Writer emits Rows as CSV lines to an underlying stream, writing the
// header once on construction.
type Writer struct {
	w io.Writer
}

// NewWriter wraps w, writing the CSV header immediately.
func NewWriter(w io.Writer) (*Writer, error) {
	if _, err := io.WriteString(w, header); err != nil {
		return nil, fmt.Errorf("trace: write header: %w", err)
	}

	return &Writer{w: w}, nil
}

// Write emits one CSV row. Hex fields use 0x%08x; rd_addr and trap are
// decimal, matching the wire format in the external interfaces section.
func (t *Writer) Write(r Row) error {
	trapBit := 0
	if r.Trap {
		trapBit = 1
	}

	_, err := fmt.Fprintf(t.w, "0x%08x,0x%08x,0x%08x,%d,0x%08x,0x%08x,0x%08x,0x%08x,%d\n",
		r.PCRead, r.PCWrite, r.Insn, r.RdAddr, r.RdWdata, r.MemAddr, r.MemRmask, r.MemWmask, trapBit)

	return err
}

// ReadCSV parses a trace file written by Writer back into Rows, skipping
// the leading "#"-prefixed header line. Used by the replay command to
// re-drive a previously captured DUT commit stream.
func ReadCSV(r io.Reader) ([]Row, error) {
	reader := csv.NewReader(r)
	reader.Comment = '#'

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("trace: parse csv: %w", err)
	}

	rows := make([]Row, 0, len(records))

	for i, rec := range records {
		if len(rec) != 9 {
			return nil, fmt.Errorf("trace: row %d: expected 9 fields, got %d", i, len(rec))
		}

		row, err := parseRow(rec)
		if err != nil {
			return nil, fmt.Errorf("trace: row %d: %w", i, err)
		}

		rows = append(rows, row)
	}

	return rows, nil
}

func parseRow(rec []string) (Row, error) {
	pcRead, err := parseHex64(rec[0])
	if err != nil {
		return Row{}, err
	}

	pcWrite, err := parseHex64(rec[1])
	if err != nil {
		return Row{}, err
	}

	insn, err := parseHex64(rec[2])
	if err != nil {
		return Row{}, err
	}

	rdAddr, err := strconv.ParseUint(rec[3], 10, 8)
	if err != nil {
		return Row{}, err
	}

	rdWdata, err := parseHex64(rec[4])
	if err != nil {
		return Row{}, err
	}

	memAddr, err := parseHex64(rec[5])
	if err != nil {
		return Row{}, err
	}

	memRmask, err := parseHex64(rec[6])
	if err != nil {
		return Row{}, err
	}

	memWmask, err := parseHex64(rec[7])
	if err != nil {
		return Row{}, err
	}

	trapBit, err := strconv.ParseUint(rec[8], 10, 8)
	if err != nil {
		return Row{}, err
	}

	return Row{
		PCRead: pcRead, PCWrite: pcWrite, Insn: uint32(insn),
		RdAddr: uint8(rdAddr), RdWdata: rdWdata,
		MemAddr: memAddr, MemRmask: uint8(memRmask), MemWmask: uint8(memWmask),
		Trap: trapBit != 0,
	}, nil
}

func parseHex64(s string) (uint64, error) {
	return strconv.ParseUint(strings.TrimPrefix(s, "0x"), 16, 64)
}
