/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package sflow

import (
	"errors"
	"fmt"
)

var (
	// ErrParse marks any malformed record. Callers skip the record and
	// continue; a bad record never aborts the stream.
	ErrParse = errors.New("malformed sflow record")

	ErrTruncatedDatagram = errors.New("truncated datagram")
	ErrMissingField      = errors.New("missing required field")
	ErrInvalidField      = errors.New("invalid field value")
	ErrLineTooLong       = errors.New("line exceeds maximum length")
)

// ParseError describes a malformed record with its position in the stream.
type ParseError struct {
	Line   int
	Field  string
	Reason error
}

func (e *ParseError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%v: field %q at line %d: %v", ErrParse, e.Field, e.Line, e.Reason)
	}

	return fmt.Sprintf("%v at line %d: %v", ErrParse, e.Line, e.Reason)
}

func (e *ParseError) Unwrap() error {
	return e.Reason
}

// Is reports true for ErrParse so callers can classify with errors.Is.
func (*ParseError) Is(target error) bool {
	return target == ErrParse
}

func newParseError(line int, field string, reason error) *ParseError {
	return &ParseError{Line: line, Field: field, Reason: reason}
}
