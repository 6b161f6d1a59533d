package session

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindUnauthorized Kind = "unauthorized"
	KindValidation   Kind = "validation"
	KindNetwork      Kind = "network"
	KindServer       Kind = "server"
)

// Error is the only error type the client surfaces for API calls. Kind tells
// the caller whether the failure is recoverable: validation errors carry
// field-level details, network/server errors may be retried by the caller,
// unauthorized means the session is gone and the user must log in again.
type Error struct {
	Kind    Kind
	Status  int
	Message string
	Fields  map[string]any
	cause   error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.cause)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.cause }

func newError(kind Kind, status int, message string, cause error) *Error {
	return &Error{Kind: kind, Status: status, Message: message, cause: cause}
}

func kindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

func IsUnauthorized(err error) bool { k, ok := kindOf(err); return ok && k == KindUnauthorized }
func IsValidation(err error) bool   { k, ok := kindOf(err); return ok && k == KindValidation }
func IsNetwork(err error) bool      { k, ok := kindOf(err); return ok && k == KindNetwork }
func IsServer(err error) bool       { k, ok := kindOf(err); return ok && k == KindServer }
