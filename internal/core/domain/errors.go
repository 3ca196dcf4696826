package domain

import (
	"context"
	"errors"
	"strings"
)

// ErrNotFound marks catalog lookups for objects that do not exist.
var ErrNotFound = errors.New("not found")

// Kind tags a gate failure so transports can map it onto their own status
// codes without string matching. The set is stable across backends.
type Kind string

const (
	KindValidation Kind = "validation_failure"
	KindIdentifier Kind = "identifier_rejected"
	KindConnection Kind = "connection_failure"
	KindExecution  Kind = "execution_failure"
	KindTimeout    Kind = "timeout"
)

// Error is the structured failure crossing the gate boundary. Details carries
// the per-check messages of a validation failure; Err the wrapped cause.
type Error struct {
	Kind    Kind
	Message string
	Details []string
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	if len(e.Details) > 0 {
		b.WriteString(": ")
		b.WriteString(strings.Join(e.Details, "; "))
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// NewError builds a gate error with a kind and message.
func NewError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// WrapError attaches a kind and message to an underlying cause.
func WrapError(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf classifies any error for boundary reporting. Context deadline errors
// become KindTimeout even when a driver wrapped them; everything unclassified
// counts as an execution failure.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return KindTimeout
	}
	return KindExecution
}
