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
	"sort"

	"github.com/spf13/cobra"

	"github.com/consensys/rv32fuzz/pkg/config"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Load and summarize an ISA schema.",
	Run: func(cmd *cobra.Command, args []string) {
		root := config.Load()
		isa := loadISA(cmd, root)

		fmt.Printf("isa: %s\n", isa.ISAName)
		fmt.Printf("base_width: %d\n", isa.BaseWidth)
		fmt.Printf("register_count: %d\n", isa.RegisterCount)

		fieldNames := make([]string, 0, len(isa.Fields))
		for name := range isa.Fields {
			fieldNames = append(fieldNames, name)
		}

		sort.Strings(fieldNames)

		fmt.Printf("fields (%d):\n", len(fieldNames))

		for _, name := range fieldNames {
			enc := isa.Fields[name]
			fmt.Printf("  %-16s width=%-3d signed=%-5v kind=%s\n", name, enc.TotalWidth, enc.IsSigned, enc.Kind)
		}

		formatNames := make([]string, 0, len(isa.Formats))
		for name := range isa.Formats {
			formatNames = append(formatNames, name)
		}

		sort.Strings(formatNames)

		fmt.Printf("formats (%d):\n", len(formatNames))

		for _, name := range formatNames {
			f := isa.Formats[name]
			fmt.Printf("  %-16s word_width=%-3d fields=%v\n", name, f.WordWidth, f.Fields)
		}

		fmt.Printf("instructions (%d):\n", len(isa.Instructions))

		for _, insn := range isa.Instructions {
			fmt.Printf("  %-16s format=%s fixed=%v\n", insn.Mnemonic, insn.FormatName, insn.FixedFields)
		}
	},
}

func init() {
	rootCmd.AddCommand(schemaCmd)
}
