package repository

import (
	"errors"
	"fmt"
	"log/slog"
)

type ErrorKind uint8

const (
	KindConnection ErrorKind = iota + 1
	KindInternal
	KindClientNotFound
	KindBalanceConstraintViolation
)

func (k ErrorKind) String() string {
	switch k {
	case KindConnection:
		return "connection"
	case KindInternal:
		return "internal"
	case KindClientNotFound:
		return "client not found"
	case KindBalanceConstraintViolation:
		return "balance constraint violation"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Error is the domain error returned by every Repository operation.
// Two Errors match under errors.Is when their kinds are equal, so callers
// compare against the sentinels below.
type Error struct {
	Kind   ErrorKind
	Detail string
	Err    error
}

func (e *Error) Error() string {
	switch {
	case e.Detail != "":
		return e.Kind.String() + ": " + e.Detail
	case e.Err != nil:
		return e.Kind.String() + ": " + e.Err.Error()
	default:
		return e.Kind.String()
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

var (
	ErrConnection                 = &Error{Kind: KindConnection}
	ErrInternal                   = &Error{Kind: KindInternal}
	ErrClientNotFound             = &Error{Kind: KindClientNotFound}
	ErrBalanceConstraintViolation = &Error{Kind: KindBalanceConstraintViolation}
)

// Internal builds an internal error. The detail is diagnostic only.
func Internal(detail string) error {
	return &Error{Kind: KindInternal, Detail: detail}
}

// PrepareError reports a statement that could not be prepared on a fresh
// connection.
type PrepareError struct {
	Statement Statement
	Err       error
}

func (e *PrepareError) Error() string {
	return fmt.Sprintf("prepare %s: %v", e.Statement, e.Err)
}

func (e *PrepareError) Unwrap() error {
	return e.Err
}

// translateAcquireError maps a failure to obtain a usable connection.
func translateAcquireError(err error) error {
	slog.Error("Error acquiring connection", "error", err)

	var pe *PrepareError
	if errors.As(err, &pe) {
		return &Error{Kind: KindInternal, Detail: pe.Error(), Err: err}
	}
	// timeouts, closed pool, abandoned callers and dial failures
	return &Error{Kind: KindConnection, Err: err}
}

// translateQueryError maps a transport or protocol failure during execution.
func translateQueryError(err error) error {
	slog.Error("Postgres error", "error", err)
	return &Error{Kind: KindInternal, Detail: err.Error(), Err: err}
}
