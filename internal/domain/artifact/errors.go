package artifact

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode standardizes failure semantics across the lifecycle manager.
type ErrorCode string

const (
	CodeInvalidDefinition     ErrorCode = "invalid_definition"
	CodeDuplicateRegistration ErrorCode = "duplicate_registration"
	CodeKindMismatch          ErrorCode = "kind_mismatch"
	CodeRefreshFailed         ErrorCode = "refresh_failed"
	CodeEvolutionAbort        ErrorCode = "evolution_abort"
	CodeNotFound              ErrorCode = "not_found"
	CodeInternal              ErrorCode = "internal"
)

// Error is the canonical error wrapper for artifact operations.
type Error struct {
	Code    ErrorCode
	Op      string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	op := strings.TrimSpace(e.Op)
	msg := strings.TrimSpace(e.Message)
	switch {
	case op != "" && msg != "":
		return fmt.Sprintf("%s: %s (%s)", op, msg, e.Code)
	case op != "":
		return fmt.Sprintf("%s (%s)", op, e.Code)
	case msg != "":
		return fmt.Sprintf("%s (%s)", msg, e.Code)
	default:
		return string(e.Code)
	}
}

func (e *Error) Unwrap() error { return e.Cause }

// NewError builds an artifact error with explicit code + operation.
func NewError(code ErrorCode, op, message string, cause error) error {
	return &Error{
		Code:    code,
		Op:      strings.TrimSpace(op),
		Message: strings.TrimSpace(message),
		Cause:   cause,
	}
}

// Wrap annotates an existing error with artifact error semantics.
func Wrap(code ErrorCode, op string, err error) error {
	if err == nil {
		return nil
	}
	return NewError(code, op, err.Error(), err)
}

// IsCode checks whether err (or a wrapped err) carries the given code.
func IsCode(err error, code ErrorCode) bool {
	var aerr *Error
	if !errors.As(err, &aerr) {
		return false
	}
	return aerr.Code == code
}

// CodeOf extracts the error code when available.
func CodeOf(err error) ErrorCode {
	var aerr *Error
	if !errors.As(err, &aerr) {
		return ""
	}
	return aerr.Code
}
