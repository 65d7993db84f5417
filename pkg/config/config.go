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

// Package config loads the process environment into the mutator, golden
// driver, and harness configuration structs described in the external
// interfaces section. Loading is trivial by design: plain os.Getenv reads
// with typed parsing and documented defaults, no remote config service.
package config

import (
	"os"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/consensys/rv32fuzz/pkg/golden"
	"github.com/consensys/rv32fuzz/pkg/mutate"
	"github.com/consensys/rv32fuzz/pkg/trace"
)

// GoldenMode selects how (or whether) the golden driver participates.
type GoldenMode uint8

const (
	// GoldenLive enables per-commit differential checking.
	GoldenLive GoldenMode = iota
	// GoldenOff disables the golden driver entirely.
	GoldenOff
	// GoldenBatch is reserved for a future batched-comparison mode.
	GoldenBatch
	// GoldenReplay is reserved for a future log-replay mode.
	GoldenReplay
)

// ParseGoldenMode maps GOLDEN_MODE's string values to GoldenMode, defaulting
// to GoldenLive for an unset or unrecognized value.
func ParseGoldenMode(s string) GoldenMode {
	switch strings.ToLower(s) {
	case "off", "none":
		return GoldenOff
	case "batch":
		return GoldenBatch
	case "replay":
		return GoldenReplay
	default:
		return GoldenLive
	}
}

// Root aggregates every environment-derived setting the front-end process
// needs at startup.
type Root struct {
	ProjectRoot string
	SchemaDir   string
	ISAName     string

	Mutator mutate.Config

	Golden     golden.Config
	GoldenMode GoldenMode

	TraceDir  string
	TraceMode trace.Mode

	MaxCycles          uint64
	PCStagnationLimit  uint64
	MaxProgramWords    uint
	TohostAddr         uint32
	CrashLogDir        string
	ExecBackend        string

	CheckCSRMinstret bool
	CheckCSRMcycle   bool
}

// Load reads the variables named in the external interfaces section from
// the process environment, applying the documented defaults for anything
// unset. OBJDUMP is not read.
func Load() Root {
	r := Root{
		ProjectRoot: getenv("PROJECT_ROOT", "."),
		SchemaDir:   getenv("SCHEMA_DIR", "schema"),
		ISAName:     getenv("MUTATOR_CONFIG", "rv32i"),

		Golden: golden.Config{
			SpikeBin:     getenv("SPIKE_BIN", "spike"),
			SpikeISA:     getenv("SPIKE_ISA", "RV32IMAC"),
			PkBin:        os.Getenv("PK_BIN"),
			SpikeLogFile: os.Getenv("SPIKE_LOG_FILE"),
			ObjcopyBin:   getenv("OBJCOPY_BIN", "objcopy"),
			LdBin:        getenv("LD_BIN", "ld"),
			LinkerScript: os.Getenv("LINKER_SCRIPT"),
		},
		GoldenMode: ParseGoldenMode(os.Getenv("GOLDEN_MODE")),

		TraceDir:  os.Getenv("TRACE_DIR"),
		TraceMode: trace.ParseMode(os.Getenv("TRACE_MODE")),

		MaxCycles:         getenvUint64("MAX_CYCLES", 100000),
		PCStagnationLimit: getenvUint64("PC_STAGNATION_LIMIT", 64),
		MaxProgramWords:   uint(getenvUint64("MAX_PROGRAM_WORDS", 4096)),
		TohostAddr:        uint32(getenvUint64("TOHOST_ADDR", 0)),
		CrashLogDir:       getenv("CRASH_LOG_DIR", "crashes"),
		ExecBackend:       getenv("EXEC_BACKEND", "verilator"),

		CheckCSRMinstret: getenvBool("CHECK_CSR_MINSTRET", false),
		CheckCSRMcycle:   getenvBool("CHECK_CSR_MCYCLE", false),
	}

	if r.ExecBackend != "verilator" {
		log.Warnf("config: EXEC_BACKEND=%q is not supported, falling back to verilator", r.ExecBackend)
		r.ExecBackend = "verilator"
	}

	r.Golden.Symbols = map[string]uint64{
		"RAM_BASE":   getenvUint64("RAM_BASE", 0x80000000),
		"STACK_ADDR": getenvUint64("STACK_ADDR", 0x80100000),
		"ENTRY":      getenvUint64("RAM_BASE", 0x80000000),
	}
	r.Golden.EntryPC = r.Golden.Symbols["ENTRY"]

	r.Mutator = loadMutatorConfig(r.TohostAddr)

	return r
}

func loadMutatorConfig(tohost uint32) mutate.Config {
	cfg := mutate.DefaultConfig()

	switch strings.ToUpper(os.Getenv("RV32_STRATEGY")) {
	case "RAW":
		cfg.Strategy = mutate.RAW
	case "IR":
		cfg.Strategy = mutate.IR
	case "HYBRID":
		cfg.Strategy = mutate.HYBRID
	case "AUTO":
		cfg.Strategy = mutate.AUTO
	}

	cfg.DecodeProb = getenvFloat("RV32_DECODE_PROB", cfg.DecodeProb)
	cfg.ImmRandomProb = getenvFloat("RV32_IMM_RANDOM", cfg.ImmRandomProb)
	cfg.RegBase = uint(getenvUint64("RV32_R_BASE", uint64(cfg.RegBase)))
	cfg.RegM = uint(getenvUint64("RV32_R_M", uint64(cfg.RegM)))
	cfg.EnableCompressed = getenvBool("RV32_ENABLE_C", false)
	cfg.Verbose = getenvBool("RV32_VERBOSE", false)
	cfg.EmbeddedRegs = strings.Contains(strings.ToUpper(os.Getenv("RV32_MODE")), "E")
	cfg.TohostAddr = tohost
	cfg.MaxWordsTotal = uint(getenvUint64("MAX_PROGRAM_WORDS", uint64(cfg.MaxWordsTotal)))

	return cfg
}

func getenv(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}

	return fallback
}

func getenvUint64(name string, fallback uint64) uint64 {
	v := os.Getenv(name)
	if v == "" {
		return fallback
	}

	n, err := strconv.ParseUint(strings.TrimPrefix(v, "0x"), hexOrDec(v), 64)
	if err != nil {
		log.Warnf("config: %s=%q is not a valid integer, using default %d", name, v, fallback)
		return fallback
	}

	return n
}

func hexOrDec(v string) int {
	if strings.HasPrefix(v, "0x") || strings.HasPrefix(v, "0X") {
		return 16
	}

	return 10
}

func getenvFloat(name string, fallback float64) float64 {
	v := os.Getenv(name)
	if v == "" {
		return fallback
	}

	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Warnf("config: %s=%q is not a valid float, using default %v", name, v, fallback)
		return fallback
	}

	return f
}

func getenvBool(name string, fallback bool) bool {
	v := os.Getenv(name)
	if v == "" {
		return fallback
	}

	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Warnf("config: %s=%q is not a valid boolean, using default %v", name, v, fallback)
		return fallback
	}

	return b
}
