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
package schema

import (
	"strconv"
	"strings"
)

// parseInteger accepts decimal, 0x… and 0b… literals with an optional
// leading sign, per §4.1 of the schema format. An empty string parses as 0.
func parseInteger(text string) (int64, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, nil
	}

	negative := false
	offset := 0

	if text[0] == '+' || text[0] == '-' {
		negative = text[0] == '-'
		offset = 1
	}

	base := 10
	digits := text[offset:]

	if len(digits) > 1 && digits[0] == '0' {
		switch digits[1] {
		case 'x', 'X':
			base = 16
			digits = digits[2:]
		case 'b', 'B':
			base = 2
			digits = digits[2:]
		}
	}

	if digits == "" {
		return 0, nil
	}

	magnitude, err := strconv.ParseUint(digits, base, 64)
	if err != nil {
		return 0, newError(ErrMalformedInteger, "", "", "invalid numeric literal: "+text)
	}

	value := int64(magnitude)
	if negative {
		value = -value
	}

	return value, nil
}
