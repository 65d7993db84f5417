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

// Command rv32fuzzlib builds a c-shared object exporting the mutator entry
// points named in the external interfaces section: an init call that loads
// the ISA schema from the environment, a deinit call, and two mutation
// calls distinguished by how they return the output length.
//
// The ISA model is process-wide after Rv32fuzzInit, held in package-level
// variables guarded by a mutex (every Rv32fuzzInit call replaces it),
// because the c-shared ABI only exposes free functions to the caller.
package main

import "C"

import (
	"sync"
	"unsafe"

	log "github.com/sirupsen/logrus"

	"github.com/consensys/rv32fuzz/pkg/config"
	"github.com/consensys/rv32fuzz/pkg/isa/schema"
	"github.com/consensys/rv32fuzz/pkg/mutate"
)

var (
	initOnce sync.Once
	mu       sync.Mutex

	globalISA  *schema.ISAConfig
	globalCfg  mutate.Config
	globalMut  *mutate.Mutator
	lastOutput []byte
)

// Rv32fuzzInit reads SCHEMA_DIR/MUTATOR_CONFIG and the RV32_* tuning
// variables from the environment and loads the ISA schema, returning 0 on
// success and -1 if the schema failed to load. Safe to call more than
// once; later calls re-resolve the environment.
//
//export Rv32fuzzInit
func Rv32fuzzInit() C.int {
	mu.Lock()
	defer mu.Unlock()

	root := config.Load()

	isa, err := schema.Load(root.SchemaDir, root.ISAName)
	if err != nil {
		log.Errorf("rv32fuzzlib: init: %v", err)
		return -1
	}

	globalISA = isa
	globalCfg = root.Mutator
	globalMut = mutate.New(globalCfg, globalISA)

	initOnce.Do(func() {
		log.Debugf("rv32fuzzlib: initialized isa=%s", isa.ISAName)
	})

	return 0
}

// Rv32fuzzDeinit releases the process-wide ISA model. Idempotent.
//
//export Rv32fuzzDeinit
func Rv32fuzzDeinit() {
	mu.Lock()
	defer mu.Unlock()

	globalISA = nil
	globalMut = nil
	lastOutput = nil
}

// Rv32fuzzMutate implements the two-call ABI: it writes into outputBuffer
// when the mutated length fits maxOutputLength, else returns a freshly
// C-allocated copy of the output (C.CBytes) that the caller must free.
// The actual length is fetched separately via Rv32fuzzLastLength.
//
//export Rv32fuzzMutate
func Rv32fuzzMutate(inputBuffer *C.uchar, inputLength C.int, outputBuffer *C.uchar, maxOutputLength C.int, seed C.ulonglong) *C.uchar {
	mu.Lock()
	defer mu.Unlock()

	if globalMut == nil {
		Rv32fuzzInit()
	}

	input := C.GoBytes(unsafe.Pointer(inputBuffer), inputLength)
	out := globalMut.Mutate(input, int(maxOutputLength), uint64(seed))
	lastOutput = out

	if outputBuffer != nil && len(out) <= int(maxOutputLength) {
		dst := unsafe.Slice((*byte)(unsafe.Pointer(outputBuffer)), int(maxOutputLength))
		copy(dst, out)

		return outputBuffer
	}

	return (*C.uchar)(C.CBytes(out))
}

// Rv32fuzzLastLength returns the length, in bytes, of the buffer produced
// by the most recent Rv32fuzzMutate call.
//
//export Rv32fuzzLastLength
func Rv32fuzzLastLength() C.int {
	mu.Lock()
	defer mu.Unlock()

	if globalMut == nil {
		return 0
	}

	return C.int(globalMut.LastLength())
}

// Rv32fuzzMutateOut is the alternate entry point: it returns the output
// length directly and writes the output pointer through outPtr, mirroring
// fuzzer-front-end ABIs that prefer an out-parameter to a hidden-accessor
// pair. The buffer written through outPtr is always a freshly C-allocated
// copy (C.CBytes) that the caller must free.
//
//export Rv32fuzzMutateOut
func Rv32fuzzMutateOut(inputBuffer *C.uchar, inputLength C.int, maxOutputLength C.int, seed C.ulonglong, outPtr **C.uchar) C.int {
	mu.Lock()
	defer mu.Unlock()

	if globalMut == nil {
		Rv32fuzzInit()
	}

	input := C.GoBytes(unsafe.Pointer(inputBuffer), inputLength)
	out := globalMut.Mutate(input, int(maxOutputLength), uint64(seed))
	lastOutput = out

	*outPtr = (*C.uchar)(C.CBytes(out))

	return C.int(len(out))
}

func main() {}
