package notes

import (
	"errors"
	"fmt"
)

// ParseError reports malformed import input
type ParseError struct {
	Msg string
	Err error
}

func (e *ParseError) Error() string { return e.Msg }
func (e *ParseError) Unwrap() error { return e.Err }

// ValidationError reports input that parsed but is missing required data
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// IOError reports a persistence or download failure
type IOError struct {
	Op  string
	Err error
}

func (e *IOError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }
func (e *IOError) Unwrap() error { return e.Err }

func ioErr(op string, err error) error {
	return &IOError{Op: op, Err: err}
}

// IsParseError reports whether err is (or wraps) a ParseError
func IsParseError(err error) bool {
	var target *ParseError
	return errors.As(err, &target)
}

// IsValidationError reports whether err is (or wraps) a ValidationError
func IsValidationError(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

// IsIOError reports whether err is (or wraps) an IOError
func IsIOError(err error) bool {
	var target *IOError
	return errors.As(err, &target)
}
