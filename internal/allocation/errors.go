package allocation

import (
	"errors"
	"fmt"

	"github.com/iliyamo/trainer-seat-allocation/internal/lock"
	"github.com/iliyamo/trainer-seat-allocation/internal/repository"
)

// Code is the structured error code surfaced to callers.
type Code string

const (
	CodeInsufficientResources Code = "INSUFFICIENT_RESOURCES"
	CodeNoSuitableToken       Code = "NO_SUITABLE_TOKEN"
	CodeNoResourcesAvailable  Code = "NO_RESOURCES_AVAILABLE"
	CodePlanNotFound          Code = "PLAN_NOT_FOUND"
	CodeStudentNotFound       Code = "STUDENT_NOT_FOUND"
	CodeStudentNotOwned       Code = "STUDENT_NOT_OWNED"
	CodeStudentAlreadyActive  Code = "STUDENT_ALREADY_ACTIVE"
	CodeStudentNotActive      Code = "STUDENT_NOT_ACTIVE"
	CodeTransitionInProgress  Code = "TRANSITION_IN_PROGRESS"
	CodeInvalidRequest        Code = "INVALID_REQUEST"
	CodeInternal              Code = "INTERNAL_ERROR"
)

// Base error values.  errors.Is(err, ErrX) holds for any *Error whose
// Code maps to ErrX.
var (
	ErrInsufficientResources = errors.New("insufficient resources")
	ErrNoSuitableToken       = errors.New("no suitable token")
	ErrNoResourcesAvailable  = errors.New("no resources available")
	ErrPlanNotFound          = errors.New("plan not found")
	ErrStudentNotFound       = errors.New("student not found")
	ErrStudentNotOwned       = errors.New("student belongs to another trainer")
	ErrStudentAlreadyActive  = errors.New("student already active")
	ErrStudentNotActive      = errors.New("student not active")
	ErrTransitionInProgress  = errors.New("plan transition in progress")
	ErrInvalidRequest        = errors.New("invalid request")
	ErrInternal              = errors.New("internal error")
)

var sentinels = map[Code]error{
	CodeInsufficientResources: ErrInsufficientResources,
	CodeNoSuitableToken:       ErrNoSuitableToken,
	CodeNoResourcesAvailable:  ErrNoResourcesAvailable,
	CodePlanNotFound:          ErrPlanNotFound,
	CodeStudentNotFound:       ErrStudentNotFound,
	CodeStudentNotOwned:       ErrStudentNotOwned,
	CodeStudentAlreadyActive:  ErrStudentAlreadyActive,
	CodeStudentNotActive:      ErrStudentNotActive,
	CodeTransitionInProgress:  ErrTransitionInProgress,
	CodeInvalidRequest:        ErrInvalidRequest,
	CodeInternal:              ErrInternal,
}

// Error is a structured allocation error.
type Error struct {
	Code Code
	Op   string // operation that failed, e.g. "ledger.assign"
	Err  error  // underlying cause, may be nil
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Code, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Code)
}

func (e *Error) Unwrap() error { return e.Err }

// Is implements errors.Is against the base error values.
func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}
	return sentinels[e.Code] == target
}

func newError(code Code, op string, err error) *Error {
	return &Error{Code: code, Op: op, Err: err}
}

func errorf(code Code, op, format string, args ...any) *Error {
	return &Error{Code: code, Op: op, Err: fmt.Errorf(format, args...)}
}

// internal wraps an unexpected datastore failure.  Structured errors
// pass through untouched so a capacity failure deep in a call chain
// keeps its code.
func internal(op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	switch {
	case errors.Is(err, repository.ErrPlanNotFound):
		return newError(CodePlanNotFound, op, err)
	case errors.Is(err, repository.ErrStudentNotFound):
		return newError(CodeStudentNotFound, op, err)
	}
	return newError(CodeInternal, op, err)
}

// CodeOf classifies any error.  Errors that carry no code are internal.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	switch {
	case errors.Is(err, repository.ErrPlanNotFound):
		return CodePlanNotFound
	case errors.Is(err, repository.ErrStudentNotFound):
		return CodeStudentNotFound
	case errors.Is(err, lock.ErrLocked):
		return CodeTransitionInProgress
	}
	return CodeInternal
}

// IsRetryable reports whether the caller may retry the same request.
// Losing a race for the last unit after a positive validation is a
// normal outcome, not a bug.
func IsRetryable(err error) bool {
	switch CodeOf(err) {
	case CodeInsufficientResources, CodeTransitionInProgress:
		return true
	}
	return false
}

// isSoft reports whether err is a business-rule failure that a batch
// records per item instead of aborting.
func isSoft(err error) bool {
	code := CodeOf(err)
	return code != CodeInternal && code != ""
}

// ItemError describes why one student in a batch was skipped.
type ItemError struct {
	StudentID uint64 `json:"student_id"`
	Code      Code   `json:"code"`
	Message   string `json:"message"`
}

func itemError(studentID uint64, err error) ItemError {
	msg := err.Error()
	var e *Error
	if errors.As(err, &e) && e.Err != nil {
		msg = e.Err.Error()
	}
	return ItemError{StudentID: studentID, Code: CodeOf(err), Message: msg}
}
