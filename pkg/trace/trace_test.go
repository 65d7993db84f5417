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
package trace

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseModeRecognizesAllValues(t *testing.T) {
	assert.Equal(t, DUTOnly, ParseMode("dut"))
	assert.Equal(t, GoldOnly, ParseMode("gold"))
	assert.Equal(t, Both, ParseMode("both"))
	assert.Equal(t, Off, ParseMode(""))
	assert.Equal(t, Off, ParseMode("bogus"))
}

func TestWriterEmitsHeaderThenRows(t *testing.T) {
	var buf bytes.Buffer

	w, err := NewWriter(&buf)
	require.NoError(t, err)

	require.NoError(t, w.Write(Row{
		PCRead: 0x80000000, PCWrite: 0x80000004, Insn: 0x00000013,
		RdAddr: 1, RdWdata: 0xdeadbeef,
		MemAddr: 0, MemRmask: 0, MemWmask: 0, Trap: false,
	}))

	out := buf.String()
	assert.Equal(t, header, out[:len(header)])
	assert.Contains(t, out, "0x80000000,0x80000004,0x00000013,1,0xdeadbeef,0x00000000,0x00000000,0x00000000,0\n")
}

func TestReadCSVRoundTrips(t *testing.T) {
	var buf bytes.Buffer

	w, err := NewWriter(&buf)
	require.NoError(t, err)

	rows := []Row{
		{PCRead: 0x1000, PCWrite: 0x1004, Insn: 0x13, RdAddr: 2, RdWdata: 7, Trap: false},
		{PCRead: 0x1004, PCWrite: 0x1008, Insn: 0x23, MemAddr: 0x80000040, MemWmask: 0xf, MemRmask: 0, Trap: false},
		{PCRead: 0x1008, PCWrite: 0x1008, Insn: 0x73, Trap: true},
	}

	for _, r := range rows {
		require.NoError(t, w.Write(r))
	}

	got, err := ReadCSV(&buf)
	require.NoError(t, err)
	require.Equal(t, rows, got)
}

func TestReadCSVRejectsWrongFieldCount(t *testing.T) {
	_, err := ReadCSV(bytes.NewBufferString("#pc_r,pc_w\n0x1,0x2\n"))
	assert.Error(t, err)
}

func TestReadCSVRejectsMalformedHex(t *testing.T) {
	_, err := ReadCSV(bytes.NewBufferString(
		"#pc_r,pc_w,insn,rd_addr,rd_wdata,mem_addr,mem_rmask,mem_wmask,trap\n" +
			"not-hex,0x0,0x0,0,0x0,0x0,0x0,0x0,0\n"))
	assert.Error(t, err)
}
