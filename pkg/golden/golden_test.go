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
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func driverFromLog(text string) *Driver {
	return &Driver{scanner: bufio.NewScanner(strings.NewReader(text))}
}

func TestNextCommitPCWriteUsesSuccessorPCRead(t *testing.T) {
	log := "core   0: 0x80000000 (0x00000013)\n" +
		"core   0: 0x80000004 (0x00000093)\n" +
		"x1 0x00000001\n" +
		"core   0: 0x80000100 (0x0000006f)\n"

	d := driverFromLog(log)

	r1, ok := d.NextCommit()
	require.True(t, ok)
	assert.Equal(t, uint64(0x80000000), r1.PCRead)
	assert.Equal(t, uint64(0x80000004), r1.PCWrite, "pc_write should be the successor commit's pc_read, not pc_read+4")

	r2, ok := d.NextCommit()
	require.True(t, ok)
	assert.Equal(t, uint64(0x80000004), r2.PCRead)
	assert.Equal(t, uint64(0x80000100), r2.PCWrite, "a jump's pc_write must reflect the actual next PC, not +4")
	assert.True(t, r2.RdAddr == 1 && r2.RdWdata == 1)

	r3, ok := d.NextCommit()
	require.True(t, ok)
	assert.Equal(t, uint64(0x80000100), r3.PCRead)
	assert.Equal(t, uint64(0x80000104), r3.PCWrite, "final commit with no successor falls back to pc_read+4")

	_, ok = d.NextCommit()
	assert.False(t, ok)
}

func TestNextCommitParsesStoreAndLoad(t *testing.T) {
	log := "core   0: 0x1000 (0x00012023)\n" +
		"mem [0x80001000] = 0x000000ff\n" +
		"core   0: 0x1004 (0x00012083)\n" +
		"mem [0x80001000] -> 0x000000ff\n"

	d := driverFromLog(log)

	r1, ok := d.NextCommit()
	require.True(t, ok)
	assert.True(t, r1.MemIsStore)
	assert.Equal(t, uint64(0x80001000), r1.MemAddr)
	assert.Equal(t, uint64(0xff), r1.MemWdata)

	r2, ok := d.NextCommit()
	require.True(t, ok)
	assert.True(t, r2.MemIsLoad)
	assert.Equal(t, uint64(0xff), r2.MemRdata)
}

func TestFatalTrapStopsStream(t *testing.T) {
	log := "core   0: 0x1000 (0x00000013)\n" +
		"core   0: exception trap_illegal_instruction, epc 0x1004\n" +
		"core   0: 0x2000 (0x00000013)\n"

	d := driverFromLog(log)

	r1, ok := d.NextCommit()
	require.True(t, ok, "the commit preceding the exception line is still valid and must be emitted")
	assert.Equal(t, uint64(0x1000), r1.PCRead)

	_, ok = d.NextCommit()
	require.False(t, ok, "fatal trap ends the stream once the preceding commit has been emitted")

	seen, summary := d.FatalTrapSeen()
	assert.True(t, seen)
	assert.Contains(t, summary, "epc=0x1004")
}

func TestBlankLineEndsAssociation(t *testing.T) {
	log := "core   0: 0x1000 (0x00000013)\n" +
		"x1 0x00000005\n" +
		"\n" +
		"core   0: 0x1004 (0x00000013)\n"

	d := driverFromLog(log)

	r1, ok := d.NextCommit()
	require.True(t, ok)
	assert.Equal(t, uint8(1), r1.RdAddr)
	assert.Equal(t, uint64(5), r1.RdWdata)
}

func TestMatchCommitLineRejectsUnrelatedText(t *testing.T) {
	_, _, ok := matchCommitLine("this is not a commit line")
	assert.False(t, ok)
}

func TestRegWriteEqualsSyntax(t *testing.T) {
	pc := &parsedCommit{}
	ok := applyFollowupLine(pc, "x7 = 0x0000002a")
	assert.True(t, ok)
	assert.Equal(t, uint8(7), pc.rdAddr)
	assert.Equal(t, uint64(0x2a), pc.rdWdata)
}
