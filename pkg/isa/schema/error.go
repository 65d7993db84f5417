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

import "fmt"

// ErrorKind classifies why schema resolution failed.
type ErrorKind uint8

const (
	// ErrFileNotFound indicates a referenced schema source could not be read.
	ErrFileNotFound ErrorKind = iota
	// ErrUnresolvedISA indicates the isa_map has no entry for the requested name.
	ErrUnresolvedISA
	// ErrCyclicInclude indicates an include/extends chain revisits a file.
	ErrCyclicInclude
	// ErrMalformedInteger indicates an integer literal could not be parsed.
	ErrMalformedInteger
	// ErrParse indicates the underlying YAML document was malformed.
	ErrParse
	// ErrFieldDefinition indicates a field has neither width nor segments.
	ErrFieldDefinition
	// ErrUnknownField indicates a format referenced an undefined field.
	ErrUnknownField
	// ErrMissingFormat indicates an instruction referenced no format.
	ErrMissingFormat
	// ErrSegmentsOverlap indicates two of a field's segments claim the same
	// value bit.
	ErrSegmentsOverlap
)

// Error is a structured error naming the offending file or entity, in the
// shape the loader's callers need to report a precise diagnostic. Modeled
// on the teacher's SyntaxError: a small struct carrying provenance plus a
// message, rather than an opaque wrapped error.
type Error struct {
	Kind   ErrorKind
	File   string
	Entity string
	Detail string
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.File != "" && e.Entity != "":
		return fmt.Sprintf("schema error in %s (%s): %s", e.File, e.Entity, e.Detail)
	case e.File != "":
		return fmt.Sprintf("schema error in %s: %s", e.File, e.Detail)
	case e.Entity != "":
		return fmt.Sprintf("schema error (%s): %s", e.Entity, e.Detail)
	default:
		return fmt.Sprintf("schema error: %s", e.Detail)
	}
}

func newError(kind ErrorKind, file, entity, detail string) *Error {
	return &Error{Kind: kind, File: file, Entity: entity, Detail: detail}
}
