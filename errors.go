// errors.go: Error codes and typed errors for Cinch
//
// Validation errors are fatal and abort construction. Dispatch errors are
// returned as data inside an Outcome and never abort anything.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package cinch

import (
	"fmt"

	"github.com/agilira/go-errors"
)

// Error codes for specification validation
const (
	ErrCodeEmptySpecification         = "CINCH_EMPTY_SPECIFICATION"
	ErrCodeMissingField               = "CINCH_MISSING_FIELD"
	ErrCodeWrongType                  = "CINCH_WRONG_TYPE"
	ErrCodeEmptyValue                 = "CINCH_EMPTY_VALUE"
	ErrCodeMultiWordName              = "CINCH_MULTI_WORD_NAME"
	ErrCodeNonBooleanFlag             = "CINCH_NON_BOOLEAN_FLAG"
	ErrCodeCommandsNotAList           = "CINCH_COMMANDS_NOT_A_LIST"
	ErrCodeEmptyCommandObject         = "CINCH_EMPTY_COMMAND_OBJECT"
	ErrCodeUnknownCommandKey          = "CINCH_UNKNOWN_COMMAND_KEY"
	ErrCodeCommandMissingDescriptor   = "CINCH_COMMAND_MISSING_DESCRIPTOR"
	ErrCodeCommandMissingDescription  = "CINCH_COMMAND_MISSING_DESCRIPTION"
	ErrCodeGlobalCommandFieldConflict = "CINCH_GLOBAL_COMMAND_FIELD_CONFLICT"
	ErrCodeDuplicateGlobalCommand     = "CINCH_DUPLICATE_GLOBAL_COMMAND"
	ErrCodeInvalidShortOptionLength   = "CINCH_INVALID_SHORT_OPTION_LENGTH"
	ErrCodeDuplicateDescriptor        = "CINCH_DUPLICATE_DESCRIPTOR"
)

// Error codes for dispatch, loading and the ambient subsystems
const (
	ErrCodeUnrecognizedToken   = "CINCH_UNRECOGNIZED_TOKEN"
	ErrCodeInvalidSpecPath     = "CINCH_INVALID_SPEC_PATH"
	ErrCodeSpecNotFound        = "CINCH_SPEC_NOT_FOUND"
	ErrCodeSpecUnreadable      = "CINCH_SPEC_UNREADABLE"
	ErrCodeSpecUnparsable      = "CINCH_SPEC_UNPARSABLE"
	ErrCodeUnsupportedFormat   = "CINCH_UNSUPPORTED_FORMAT"
	ErrCodeInvalidConfig       = "CINCH_INVALID_CONFIG"
	ErrCodeInvalidAuditConfig  = "CINCH_INVALID_AUDIT_CONFIG"
	ErrCodeInvalidPollInterval = "CINCH_INVALID_POLL_INTERVAL"
	ErrCodeWatcherBusy         = "CINCH_WATCHER_BUSY"
	ErrCodeWatcherStopped      = "CINCH_WATCHER_STOPPED"
	ErrCodeIOError             = "CINCH_IO_ERROR"
)

// UserNote is what an end user of a generated tool should see when the
// tool's own specification is broken.
const UserNote = "The tool is not currently functional. Please contact the developer!"

// ErrorKind enumerates the validation failures a specification can produce.
type ErrorKind int

const (
	KindEmptySpecification ErrorKind = iota + 1
	KindMissingField
	KindWrongType
	KindEmptyValue
	KindMultiWordName
	KindNonBooleanFlag
	KindCommandsNotAList
	KindEmptyCommandObject
	KindUnknownCommandKey
	KindCommandMissingDescriptor
	KindCommandMissingDescription
	KindGlobalCommandFieldConflict
	KindDuplicateGlobalCommand
	KindInvalidShortOptionLength
	KindDuplicateDescriptor
)

var kindCodes = map[ErrorKind]string{
	KindEmptySpecification:         ErrCodeEmptySpecification,
	KindMissingField:               ErrCodeMissingField,
	KindWrongType:                  ErrCodeWrongType,
	KindEmptyValue:                 ErrCodeEmptyValue,
	KindMultiWordName:              ErrCodeMultiWordName,
	KindNonBooleanFlag:             ErrCodeNonBooleanFlag,
	KindCommandsNotAList:           ErrCodeCommandsNotAList,
	KindEmptyCommandObject:         ErrCodeEmptyCommandObject,
	KindUnknownCommandKey:          ErrCodeUnknownCommandKey,
	KindCommandMissingDescriptor:   ErrCodeCommandMissingDescriptor,
	KindCommandMissingDescription:  ErrCodeCommandMissingDescription,
	KindGlobalCommandFieldConflict: ErrCodeGlobalCommandFieldConflict,
	KindDuplicateGlobalCommand:     ErrCodeDuplicateGlobalCommand,
	KindInvalidShortOptionLength:   ErrCodeInvalidShortOptionLength,
	KindDuplicateDescriptor:        ErrCodeDuplicateDescriptor,
}

var kindNames = map[ErrorKind]string{
	KindEmptySpecification:         "EmptySpecification",
	KindMissingField:               "MissingField",
	KindWrongType:                  "WrongType",
	KindEmptyValue:                 "EmptyValue",
	KindMultiWordName:              "MultiWordName",
	KindNonBooleanFlag:             "NonBooleanFlag",
	KindCommandsNotAList:           "CommandsNotAList",
	KindEmptyCommandObject:         "EmptyCommandObject",
	KindUnknownCommandKey:          "UnknownCommandKey",
	KindCommandMissingDescriptor:   "CommandMissingDescriptor",
	KindCommandMissingDescription:  "CommandMissingDescription",
	KindGlobalCommandFieldConflict: "GlobalCommandFieldConflict",
	KindDuplicateGlobalCommand:     "DuplicateGlobalCommand",
	KindInvalidShortOptionLength:   "InvalidShortOptionLength",
	KindDuplicateDescriptor:        "DuplicateDescriptor",
}

// String returns the kind name used in diagnostics and logs
func (k ErrorKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "Unknown"
}

// Code returns the CINCH_* error code for the kind
func (k ErrorKind) Code() string {
	if code, ok := kindCodes[k]; ok {
		return code
	}
	return ErrCodeInvalidConfig
}

// DescriptorKind names one of the three uniqueness domains of command descriptors.
type DescriptorKind string

const (
	DescriptorShort DescriptorKind = "short"
	DescriptorLong  DescriptorKind = "long"
	DescriptorPlain DescriptorKind = "plain"
)

// ValidationError describes the first structural defect found in a
// specification. Only the fields relevant to Kind are populated; indexes
// are 1-based and zero when not applicable.
type ValidationError struct {
	Kind           ErrorKind
	Field          string
	Expected       string
	Key            string
	Value          interface{}
	Index          int
	OriginalIndex  int
	DescriptorKind DescriptorKind

	// Diagnostic is the developer-facing explanation. It names the field,
	// the supplied value and the expected shape.
	Diagnostic string

	cause error
}

func newValidationError(kind ErrorKind, diagnostic string) *ValidationError {
	return &ValidationError{Kind: kind, Diagnostic: diagnostic}
}

// seal builds the coded cause once all structured fields are known.
func (e *ValidationError) seal() *ValidationError {
	e.cause = errors.New(errors.ErrorCode(e.Kind.Code()), e.Diagnostic).
		WithContext("kind", e.Kind.String()).
		WithContext("field", e.Field).
		WithContext("index", e.Index).
		WithContext("original_index", e.OriginalIndex)
	return e
}

// Error returns the coded error string
func (e *ValidationError) Error() string {
	if e.cause == nil {
		return fmt.Sprintf("[%s]: %s", e.Kind.Code(), e.Diagnostic)
	}
	return e.cause.Error()
}

// Unwrap exposes the go-errors cause so error codes survive wrapping
func (e *ValidationError) Unwrap() error {
	return e.cause
}

// Code returns the CINCH_* code of the failure
func (e *ValidationError) Code() string {
	return e.Kind.Code()
}

// UserNote returns the message intended for end users of the broken tool
func (e *ValidationError) UserNote() string {
	return UserNote
}

// DispatchError reports a token that matches nothing in the specification.
// It travels inside an Outcome; Message is ready for display.
type DispatchError struct {
	Token      string
	Tool       string
	Suggestion string
	Message    string

	cause error
}

func newDispatchError(tool, token, suggestion, message string) *DispatchError {
	return &DispatchError{
		Token:      token,
		Tool:       tool,
		Suggestion: suggestion,
		Message:    message,
		cause: errors.New(ErrCodeUnrecognizedToken, message).
			WithContext("tool", tool).
			WithContext("token", token),
	}
}

// Error returns the coded error string
func (e *DispatchError) Error() string {
	return e.cause.Error()
}

// Unwrap exposes the go-errors cause
func (e *DispatchError) Unwrap() error {
	return e.cause
}

// GetErrorCode extracts the error code from a Cinch error
func GetErrorCode(err error) string {
	if err == nil {
		return ""
	}

	switch typed := err.(type) {
	case *ValidationError:
		return typed.Code()
	case *DispatchError:
		return ErrCodeUnrecognizedToken
	}

	errStr := err.Error()

	// go-errors format: [CODE]: Message
	if len(errStr) > 3 && errStr[0] == '[' {
		for idx := 1; idx < len(errStr); idx++ {
			if errStr[idx] == ']' {
				return errStr[1:idx]
			}
		}
	}

	// CODE: Message
	for idx := 0; idx < len(errStr); idx++ {
		if errStr[idx] == ':' {
			return errStr[:idx]
		}
	}

	return errStr
}

// IsValidationError reports whether err is a specification validation failure
func IsValidationError(err error) bool {
	_, ok := err.(*ValidationError)
	return ok
}
