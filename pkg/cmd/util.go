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

	"github.com/spf13/cobra"

	"github.com/consensys/rv32fuzz/pkg/config"
	"github.com/consensys/rv32fuzz/pkg/isa/schema"
)

// GetFlag gets an expected flag, or exits if an error arises.
func GetFlag(cmd *cobra.Command, flag string) bool {
	r, err := cmd.Flags().GetBool(flag)
	if err != nil {
		fmt.Println(err)
		os.Exit(2)
	}

	return r
}

// GetUint gets an expected unsigned integer, or exits if an error arises.
func GetUint(cmd *cobra.Command, flag string) uint {
	r, err := cmd.Flags().GetUint(flag)
	if err != nil {
		fmt.Println(err)
		os.Exit(2)
	}

	return r
}

// GetString gets an expected string, or exits if an error arises.
func GetString(cmd *cobra.Command, flag string) string {
	r, err := cmd.Flags().GetString(flag)
	if err != nil {
		fmt.Println(err)
		os.Exit(2)
	}

	return r
}

// loadISA resolves SCHEMA_DIR/MUTATOR_CONFIG (overridable by --schema-dir
// and --isa) and loads the schema, exiting the process on failure per the
// error handling design's "schema errors are fatal at init" rule.
func loadISA(cmd *cobra.Command, root config.Root) *schema.ISAConfig {
	dir := root.SchemaDir
	if v := GetString(cmd, "schema-dir"); v != "" {
		dir = v
	}

	isaName := root.ISAName
	if v := GetString(cmd, "isa"); v != "" {
		isaName = v
	}

	isa, err := schema.Load(dir, isaName)
	if err != nil {
		fmt.Println(err)
		os.Exit(2)
	}

	return isa
}
