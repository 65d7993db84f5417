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
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
)

// wrapELF writes input to a temporary raw-binary file, wraps it as an
// object file via the configured objcopy-equivalent, and links it with the
// configured linker script into a temporary ELF whose entry point is
// cfg.Entry(). The symbol table is forwarded as a sequence of -defsym
// NAME=VALUE arguments, sorted for reproducible command strings.
func wrapELF(dir string, input []byte, cfg Config) (elfPath string, cmdStrings []string, err error) {
	rawPath := filepath.Join(dir, "input.bin")
	if err := os.WriteFile(rawPath, input, 0o644); err != nil {
		return "", nil, fmt.Errorf("golden: write raw input: %w", err)
	}

	objPath := filepath.Join(dir, "input.o")
	objcopyArgs := []string{
		"-I", "binary",
		"-O", "elf32-littleriscv",
		"-B", "riscv",
		rawPath, objPath,
	}

	objcopyCmd := exec.Command(cfg.ObjcopyBin, objcopyArgs...)

	out, err := objcopyCmd.CombinedOutput()
	if err != nil {
		return "", nil, fmt.Errorf("golden: objcopy failed: %w\n%s", err, out)
	}

	cmdStrings = append(cmdStrings, objcopyCmd.String())

	elfPath = filepath.Join(dir, "input.elf")

	ldArgs := []string{"-T", cfg.LinkerScript, "-o", elfPath}

	names := make([]string, 0, len(cfg.Symbols))
	for name := range cfg.Symbols {
		names = append(names, name)
	}

	sort.Strings(names)

	for _, name := range names {
		ldArgs = append(ldArgs, fmt.Sprintf("-defsym=%s=0x%x", name, cfg.Symbols[name]))
	}

	ldArgs = append(ldArgs, objPath)

	ldCmd := exec.Command(cfg.LdBin, ldArgs...)

	out, err = ldCmd.CombinedOutput()
	if err != nil {
		return "", nil, fmt.Errorf("golden: link failed: %w\n%s", err, out)
	}

	cmdStrings = append(cmdStrings, ldCmd.String())

	return elfPath, cmdStrings, nil
}
