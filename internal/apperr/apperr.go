// Package apperr is the error taxonomy shared by script generation, call
// initiation and status polling.
package apperr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindValidation      Kind = "validation"
	KindEmptyGeneration Kind = "empty_generation"
	KindProvider        Kind = "provider"
	KindStatusRefresh   Kind = "status_refresh"
	KindDuplicateLaunch Kind = "duplicate_launch"
)

// Error carries a Kind so action boundaries can pick the user-facing message
// without inspecting provider-specific error types.
type Error struct {
	Kind   Kind
	Op     string
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := fmt.Sprintf("%s: %s", e.Op, e.Kind)
	if e.Reason != "" {
		msg += " (" + e.Reason + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func Validation(op, reason string) *Error {
	return &Error{Kind: KindValidation, Op: op, Reason: reason}
}

func EmptyGeneration(op string) *Error {
	return &Error{Kind: KindEmptyGeneration, Op: op, Reason: "empty script returned from language model"}
}

func Provider(op string, err error) *Error {
	return &Error{Kind: KindProvider, Op: op, Err: err}
}

func StatusRefresh(op string, err error) *Error {
	return &Error{Kind: KindStatusRefresh, Op: op, Err: err}
}

func DuplicateLaunch(op, key string) *Error {
	return &Error{Kind: KindDuplicateLaunch, Op: op, Reason: key}
}

// KindOf returns the Kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func IsKind(err error, k Kind) bool {
	return err != nil && KindOf(err) == k
}
