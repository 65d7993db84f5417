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

// Package mutate implements the ISA-aware instruction mutator (C3): given
// an optional loaded schema.ISAConfig, it mutates byte buffers while
// preserving encodability, falling back to raw byte-level edits when no
// schema is available.
package mutate

// Strategy selects how mutate operations are generated.
type Strategy uint8

const (
	// RAW never decodes: bit-level flips and small byte-pattern edits only.
	RAW Strategy = iota
	// IR always decodes the selected word, mutates one field, re-encodes.
	IR
	// HYBRID chooses IR with probability Config.DecodeProb, else RAW.
	HYBRID
	// AUTO is HYBRID with an implementation-chosen probability.
	AUTO
)

// String renders the strategy name for logging.
func (s Strategy) String() string {
	switch s {
	case IR:
		return "IR"
	case HYBRID:
		return "HYBRID"
	case AUTO:
		return "AUTO"
	default:
		return "RAW"
	}
}

// autoDecodeProb is AUTO's implementation-chosen IR probability.
const autoDecodeProb = 0.6

// Config is the mutator's small, immutable tuning surface. It never
// changes after construction; a Mutator holds one by value.
type Config struct {
	Strategy Strategy
	// DecodeProb is HYBRID's probability of taking the IR branch, in [0,1].
	DecodeProb float64
	// ImmRandomProb is the probability that a signed-immediate draw is
	// replaced by a boundary value: 0 when the schema sets
	// signed_immediates_bias, otherwise +1 or -1.
	ImmRandomProb float64
	// RegBase/RegM weight the R-type base-ALU vs M-extension instruction
	// pools when replacing a word wholesale (mirrors RV32_R_BASE/RV32_R_M).
	RegBase uint
	RegM    uint
	// EnableCompressed allows 16-bit compressed words to be selected.
	EnableCompressed bool
	// EmbeddedRegs restricts register draws to [0,16) (RV32_MODE contains "E").
	EmbeddedRegs bool
	// Verbose enables extra diagnostic logging.
	Verbose bool
	// InjectEnvelope appends a trailing exit stub after mutation.
	InjectEnvelope bool
	// TohostAddr is the address written to signal simulator termination;
	// zero means "no tohost", so the envelope is a bare ECALL.
	TohostAddr    uint32
	MaxWordsTotal uint
}

// DefaultConfig mirrors the original source's compiled-in defaults.
func DefaultConfig() Config {
	return Config{
		Strategy:      AUTO,
		DecodeProb:    0.7,
		ImmRandomProb: 0.3,
		RegBase:       70,
		RegM:          30,
		MaxWordsTotal: 4096,
	}
}
