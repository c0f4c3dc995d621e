// internal/api/errors.go
package api

import (
	"context"
	"errors"
	"fmt"

	"github.com/TEAMTWIN/internal/agent"
	"github.com/TEAMTWIN/internal/skb"
)

// Kind is the stable tag external collaborators dispatch on
type Kind string

const (
	KindInvalidArgument Kind = "invalid_argument"
	KindNotFound        Kind = "not_found"
	KindConflict        Kind = "conflict"
	KindTimeout         Kind = "timeout"
	KindUnavailable     Kind = "unavailable"
	KindNoViableAgent   Kind = "no_viable_agent"
	KindInternalError   Kind = "internal_error"
)

// Error is the structured error every API operation returns on failure
type Error struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
	err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.err
}

// ErrorKind extracts the kind tag from any error, defaulting to
// internal_error for errors that did not come from this package
func ErrorKind(err error) Kind {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return KindInternalError
}

func newError(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// wrap maps core errors onto the taxonomy at the API boundary
func wrap(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return err
	}

	kind := KindInternalError
	switch {
	case errors.Is(err, skb.ErrNotFound):
		kind = KindNotFound
	case errors.Is(err, skb.ErrConflict):
		kind = KindConflict
	case errors.Is(err, agent.ErrNoViableAgent):
		kind = KindNoViableAgent
	case errors.Is(err, context.DeadlineExceeded):
		kind = KindTimeout
	case errors.Is(err, agent.ErrInternal):
		kind = KindInternalError
	}
	return &Error{Kind: kind, Message: err.Error(), err: err}
}
