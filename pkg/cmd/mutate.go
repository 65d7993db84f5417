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

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/consensys/rv32fuzz/pkg/config"
	"github.com/consensys/rv32fuzz/pkg/isa/schema"
	"github.com/consensys/rv32fuzz/pkg/mutate"
)

var mutateCmd = &cobra.Command{
	Use:   "mutate input-file",
	Short: "Apply one schema-aware mutation to an input file and print the result.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		root := config.Load()

		input, err := os.ReadFile(args[0])
		if err != nil {
			fmt.Println(err)
			os.Exit(2)
		}

		cfg := root.Mutator
		if strategy := GetString(cmd, "strategy"); strategy != "" {
			parsed, ok := parseStrategy(strategy)
			if !ok {
				fmt.Printf("unknown strategy %q\n", strategy)
				os.Exit(2)
			}

			cfg.Strategy = parsed
		}

		var isa *schema.ISAConfig
		if !GetFlag(cmd, "no-schema") {
			isa = loadISA(cmd, root)
		}

		m := mutate.New(cfg, isa)
		out := m.Mutate(input, int(GetUint(cmd, "max-output")), uint64(GetUint(cmd, "seed")))

		if outFile := GetString(cmd, "output"); outFile != "" {
			if err := os.WriteFile(outFile, out, 0o644); err != nil {
				fmt.Println(err)
				os.Exit(2)
			}

			return
		}

		os.Stdout.Write(out)
		log.Debugf("mutate: produced %d bytes from %d-byte input (strategy=%s)", len(out), len(input), cfg.Strategy)
	},
}

func parseStrategy(s string) (mutate.Strategy, bool) {
	switch s {
	case "raw":
		return mutate.RAW, true
	case "ir":
		return mutate.IR, true
	case "hybrid":
		return mutate.HYBRID, true
	case "auto":
		return mutate.AUTO, true
	default:
		return mutate.RAW, false
	}
}

func init() {
	mutateCmd.Flags().Uint("seed", 1, "deterministic PRNG seed")
	mutateCmd.Flags().Uint("max-output", 4096, "maximum output length in bytes")
	mutateCmd.Flags().String("strategy", "", "override RV32_STRATEGY (raw|ir|hybrid|auto)")
	mutateCmd.Flags().String("output", "", "write mutated bytes here instead of stdout")
	mutateCmd.Flags().Bool("no-schema", false, "always take the fallback (schema-less) mutation path")
	rootCmd.AddCommand(mutateCmd)
}
