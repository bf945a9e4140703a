package errors

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/yungbote/tutorgraph-backend/internal/platform/apierr"
)

var (
	// ErrNotFound is a generic sentinel for missing resources.
	ErrNotFound = errors.New("not found")
	// ErrInvalidArgument is a generic sentinel for invalid input.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrConflict covers failed preconditions: unmatched hunks, double undo,
	// applying a changeset in the wrong state.
	ErrConflict = errors.New("conflict")
	// ErrIO wraps filesystem failures during vault writes.
	ErrIO = errors.New("io error")
)

// Error carries a kind sentinel plus enough detail (code, offending values)
// for the HTTP layer to build a useful message.
type Error struct {
	Kind    error
	Code    string
	Message string
	Fields  map[string]any
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Message
	if msg == "" {
		msg = e.Code
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap exposes both the kind sentinel and the cause to errors.Is/As.
func (e *Error) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Cause != nil {
		out = append(out, e.Cause)
	}
	return out
}

func newError(kind error, code, message string, fields map[string]any) *Error {
	return &Error{Kind: kind, Code: code, Message: message, Fields: fields}
}

func Validation(code, message string, fields map[string]any) *Error {
	return newError(ErrInvalidArgument, code, message, fields)
}

func NotFound(code, message string, fields map[string]any) *Error {
	return newError(ErrNotFound, code, message, fields)
}

func Conflict(code, message string, fields map[string]any) *Error {
	return newError(ErrConflict, code, message, fields)
}

func IO(code, message string, cause error, fields map[string]any) *Error {
	e := newError(ErrIO, code, message, fields)
	e.Cause = cause
	return e
}

// CodeOf returns the machine-readable code of the first *Error in err's chain.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// ToAPI maps an error to the status/code pair the HTTP layer renders.
func ToAPI(err error) *apierr.Error {
	if err == nil {
		return nil
	}
	var e *Error
	code := "internal_error"
	var fields map[string]any
	if errors.As(err, &e) {
		code = e.Code
		fields = e.Fields
	}
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrInvalidArgument):
		status = http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ErrConflict):
		status = http.StatusConflict
	}
	out := apierr.New(status, code, err)
	out.Fields = fields
	return out
}
