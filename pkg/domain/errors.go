package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures surfaced by the core.
type ErrorKind string

// Error kinds. Only KindCompensation is fatal: the approval failed after the
// budget write and the rollback write failed as well.
const (
	KindValidation    ErrorKind = "validation"
	KindAuthorization ErrorKind = "authorization"
	KindInvalidState  ErrorKind = "invalid_state"
	KindNotFound      ErrorKind = "not_found"
	KindStorage       ErrorKind = "storage"
	KindRolledBack    ErrorKind = "rolled_back"
	KindCompensation  ErrorKind = "compensation"
)

// Error is the typed error returned by core operations.
type Error struct {
	Kind    ErrorKind
	Op      string
	Rule    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	if e.Op == "" {
		return msg
	}
	return fmt.Sprintf("%s: %s", e.Op, msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Fatal reports whether the error requires operator attention.
func (e *Error) Fatal() bool { return e.Kind == KindCompensation }

// KindOf returns the kind of err, or "" when err is not a *Error.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}

// IsInvalidState reports invalid-state failures, including a target year,
// item or request that no longer exists.
func IsInvalidState(err error) bool {
	k := KindOf(err)
	return k == KindInvalidState || k == KindNotFound
}

// IsFatal reports whether err is an unrecovered compensation failure.
func IsFatal(err error) bool {
	var de *Error
	return errors.As(err, &de) && de.Fatal()
}

// RuleOf returns the validation rule name carried by err.
func RuleOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Rule
	}
	return ""
}

// ValidationError builds a validation failure tagged with the rule that failed.
func ValidationError(rule, format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Rule: rule, Message: fmt.Sprintf(format, args...)}
}

// AuthorizationError builds an authorization failure.
func AuthorizationError(format string, args ...any) *Error {
	return &Error{Kind: KindAuthorization, Message: fmt.Sprintf(format, args...)}
}

// NotFoundError builds a missing-target failure.
func NotFoundError(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// StorageError wraps a persistence failure.
func StorageError(op string, err error) *Error {
	return &Error{Kind: KindStorage, Op: op, Err: err}
}

// WithOp tags a core error with the operation that produced it, leaving
// errors that already name an operation untouched.
func WithOp(op string, err error) error {
	var de *Error
	if errors.As(err, &de) && de.Op == "" {
		cp := *de
		cp.Op = op
		return &cp
	}
	return err
}
