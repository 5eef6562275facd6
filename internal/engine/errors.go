package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/contest/internal/config"
)

// ErrValidation is matched (errors.Is) by every error that means no
// verdict could be reached for a submission. Callers show "try again".
var ErrValidation = errors.New("answer could not be validated")

// Error represents a rejected engine operation.
//
// Error includes structured fields for diagnostics and for the CLI's JSON
// output.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Stage is the stage the operation targeted, if any.
	Stage config.StageID

	// Err is the underlying cause, if any.
	Err error
}

// ErrorCode categorizes engine errors.
type ErrorCode string

const (
	// ErrCodeInvalidStage indicates a stage outside [1, N].
	ErrCodeInvalidStage ErrorCode = "INVALID_STAGE"

	// ErrCodeStageLocked indicates the previous stage is unsolved.
	ErrCodeStageLocked ErrorCode = "STAGE_LOCKED"

	// ErrCodeStageDisabled indicates the administrator disabled the stage.
	ErrCodeStageDisabled ErrorCode = "STAGE_DISABLED"

	// ErrCodeInvalidStep indicates a step that does not match the stage's
	// progress (e.g. a second answer before the first was accepted).
	ErrCodeInvalidStep ErrorCode = "INVALID_STEP"

	// ErrCodeComplete indicates every stage is already solved.
	ErrCodeComplete ErrorCode = "CONTEST_COMPLETE"

	// ErrCodeValidation indicates the validator returned no verdict.
	ErrCodeValidation ErrorCode = "VALIDATION_FAILED"
)

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Stage != 0 {
		msg = fmt.Sprintf("%s (stage=%d)", msg, e.Stage)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches ErrValidation for validation errors.
func (e *Error) Is(target error) bool {
	return target == ErrValidation && e.Code == ErrCodeValidation
}

// CodeOf returns the code of an *Error in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var ee *Error
	if errors.As(err, &ee) {
		return ee.Code
	}
	return ""
}

// IsLocked reports whether err is a locked-stage rejection.
func IsLocked(err error) bool {
	return CodeOf(err) == ErrCodeStageLocked
}

// IsDisabled reports whether err is a disabled-stage rejection.
func IsDisabled(err error) bool {
	return CodeOf(err) == ErrCodeStageDisabled
}

func newError(code ErrorCode, stage config.StageID, format string, args ...any) *Error {
	return &Error{Code: code, Stage: stage, Message: fmt.Sprintf(format, args...)}
}

func newValidationError(stage config.StageID, cause error) *Error {
	return &Error{
		Code:    ErrCodeValidation,
		Stage:   stage,
		Message: "validator returned no verdict",
		Err:     cause,
	}
}
