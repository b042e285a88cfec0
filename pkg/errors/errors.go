// SPDX-License-Identifier: Apache-2.0
// Package errors provides typed error handling with rich context for Avalon matches.
// Actor-facing failures are recoverable and degrade to a legal fallback decision;
// configuration and invariant failures abort the match.
package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
)

// ErrorCode classifies Avalon errors for monitoring and recovery.
type ErrorCode string

const (
	// CodeInternal indicates an internal system error.
	CodeInternal ErrorCode = "INTERNAL_ERROR"

	// CodeConfiguration indicates an invalid match setup (seat or role count).
	CodeConfiguration ErrorCode = "CONFIGURATION"

	// CodeActorTimeout indicates an actor did not answer within its attempt timeout.
	CodeActorTimeout ErrorCode = "ACTOR_TIMEOUT"

	// CodeActorEmptyResponse indicates an actor answered with no usable text.
	CodeActorEmptyResponse ErrorCode = "ACTOR_EMPTY_RESPONSE"

	// CodeMalformedDecision indicates a response could not be resolved to a legal decision.
	CodeMalformedDecision ErrorCode = "MALFORMED_DECISION"

	// CodeInvariantViolation indicates an engine bug; the match is aborted.
	CodeInvariantViolation ErrorCode = "INVARIANT_VIOLATION"

	// CodeContextLost indicates the caller's context was canceled.
	CodeContextLost ErrorCode = "CONTEXT_LOST"

	// CodeInvalidInput indicates the input was invalid.
	CodeInvalidInput ErrorCode = "INVALID_INPUT"

	// CodeNotFound indicates a resource was not found.
	CodeNotFound ErrorCode = "NOT_FOUND"

	// CodeStorage indicates a timeline sink failed to persist a record.
	CodeStorage ErrorCode = "STORAGE_ERROR"

	// CodeLLMError indicates an LLM provider error.
	CodeLLMError ErrorCode = "LLM_ERROR"

	// CodeCircuitOpen indicates an actor is short-circuited after repeated failures.
	CodeCircuitOpen ErrorCode = "CIRCUIT_OPEN"
)

// AvalonError is a typed error with rich context for observability.
// It implements the error interface and can be unwrapped with errors.As().
type AvalonError struct {
	Code        ErrorCode
	Message     string
	Err         error
	Context     map[string]interface{}
	Recoverable bool
}

// Error implements the error interface.
func (e *AvalonError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap implements errors.Unwrap for error chain traversal.
func (e *AvalonError) Unwrap() error {
	return e.Err
}

// MarshalJSON implements json.Marshaler for structured logging.
func (e *AvalonError) MarshalJSON() ([]byte, error) {
	cause := ""
	if e.Err != nil {
		cause = e.Err.Error()
	}
	return json.Marshal(&struct {
		Code        string                 `json:"code"`
		Message     string                 `json:"message"`
		Err         string                 `json:"error,omitempty"`
		Context     map[string]interface{} `json:"context,omitempty"`
		Recoverable bool                   `json:"recoverable"`
	}{
		Code:        string(e.Code),
		Message:     e.Message,
		Err:         cause,
		Context:     e.Context,
		Recoverable: e.Recoverable,
	})
}

// New creates a new AvalonError with the given code, message, and cause.
// Recoverability defaults from the code: actor-facing codes are recoverable.
func New(code ErrorCode, msg string, cause error) *AvalonError {
	return &AvalonError{
		Code:        code,
		Message:     msg,
		Err:         cause,
		Context:     make(map[string]interface{}),
		Recoverable: defaultRecoverable(code),
	}
}

// Newf is New with a formatted message and no cause.
func Newf(code ErrorCode, format string, args ...interface{}) *AvalonError {
	return New(code, fmt.Sprintf(format, args...), nil)
}

// WithContext adds a key-value pair to the error context.
// Returns the error for method chaining.
func (e *AvalonError) WithContext(key string, value interface{}) *AvalonError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithRecoverable sets whether the error can be recovered from.
// Returns the error for method chaining.
func (e *AvalonError) WithRecoverable(recoverable bool) *AvalonError {
	e.Recoverable = recoverable
	return e
}

// RecoverableString returns "true" or "false" as a string for observability.
func (e *AvalonError) RecoverableString() string {
	if e.Recoverable {
		return "true"
	}
	return "false"
}

// AsAvalonError attempts to convert an error to an AvalonError.
// Returns the error as AvalonError if it is one, or wraps it otherwise.
func AsAvalonError(err error) *AvalonError {
	if err == nil {
		return nil
	}
	var ae *AvalonError
	if stderrors.As(err, &ae) {
		return ae
	}
	return New(CodeInternal, "wrapped error", err)
}

// CodeOf returns the code of the first AvalonError in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var ae *AvalonError
	if stderrors.As(err, &ae) {
		return ae.Code
	}
	return ""
}

// IsCode reports whether err carries the given code anywhere in its chain.
func IsCode(err error, code ErrorCode) bool {
	return err != nil && CodeOf(err) == code
}

// IsFatal reports whether err must abort a running match.
func IsFatal(err error) bool {
	switch CodeOf(err) {
	case CodeConfiguration, CodeInvariantViolation:
		return true
	}
	return false
}

func defaultRecoverable(code ErrorCode) bool {
	switch code {
	case CodeActorTimeout, CodeActorEmptyResponse, CodeMalformedDecision, CodeLLMError:
		return true
	}
	return false
}
