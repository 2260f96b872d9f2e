package utils

import (
	"errors"
	"fmt"
)

// Sentinel failure classes matched with errors.Is across package boundaries.
var (
	ErrDataUnavailable        = errors.New("data unavailable")
	ErrInvalidServiceMetadata = errors.New("invalid service metadata")
	ErrExecutionFailure       = errors.New("execution failure")
	ErrSuperseded             = errors.New("analysis superseded")
	ErrNotFound               = errors.New("not found")
	ErrInvalidArgument        = errors.New("invalid argument")
)

// AppError wraps an operation, human-facing message, and underlying error.
type AppError struct {
	Op  string
	Msg string
	Err error
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Msg)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError constructs an AppError.
func NewAppError(op, msg string, err error) error {
	return &AppError{Op: op, Msg: msg, Err: err}
}

// Unavailable wraps cause so that it matches ErrDataUnavailable as well as cause itself.
func Unavailable(op string, cause error) error {
	if cause == nil {
		return &AppError{Op: op, Msg: "data unavailable", Err: ErrDataUnavailable}
	}
	return &AppError{Op: op, Msg: "data unavailable", Err: errors.Join(ErrDataUnavailable, cause)}
}

// Invalid returns an ErrInvalidArgument with a formatted message.
func Invalid(op, format string, args ...any) error {
	return &AppError{Op: op, Msg: fmt.Sprintf(format, args...), Err: ErrInvalidArgument}
}
