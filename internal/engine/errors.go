package engine

import (
	"errors"
	"fmt"
)

// CodeFCAError is the code carried by every caller-contract violation.
const CodeFCAError = "FCAError"

// FCAError reports a structurally invalid request: a message without
// params.event, or a teardown identifier that is not sdk_Module.method.
//
// FCAError is the only failure the engine surfaces as an error. Dispatch
// and validation failures are reported inside results.
type FCAError struct {
	// Code is always CodeFCAError.
	Code string `json:"code"`

	// Message is a human-readable description.
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *FCAError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// newFCAError creates an FCAError with a formatted message.
func newFCAError(format string, args ...any) *FCAError {
	return &FCAError{Code: CodeFCAError, Message: fmt.Sprintf(format, args...)}
}

// IsFCAError returns true if the error is an FCAError.
// Uses errors.As to handle wrapped errors.
func IsFCAError(err error) bool {
	var fe *FCAError
	return errors.As(err, &fe)
}

// ErrorResult is the {"error": {code, message}} body returned to callers
// in place of a result.
type ErrorResult struct {
	Error *FCAError `json:"error"`
}

// AsErrorResult converts err to an ErrorResult. Errors other than FCAError
// keep their message under the FCAError code.
func AsErrorResult(err error) ErrorResult {
	var fe *FCAError
	if errors.As(err, &fe) {
		return ErrorResult{Error: fe}
	}
	return ErrorResult{Error: &FCAError{Code: CodeFCAError, Message: err.Error()}}
}
