package errs

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failure for the caller.
type Kind string

const (
	NotFound    Kind = "not_found"
	Forbidden   Kind = "forbidden"
	Conflict    Kind = "conflict"
	Validation  Kind = "validation"
	Persistence Kind = "persistence"
)

// ErrStale is returned by a store when the document changed between read and write.
var ErrStale = errors.New("document version changed")

type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

func newf(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func NotFoundf(format string, args ...any) error   { return newf(NotFound, format, args...) }
func Forbiddenf(format string, args ...any) error  { return newf(Forbidden, format, args...) }
func Conflictf(format string, args ...any) error   { return newf(Conflict, format, args...) }
func Validationf(format string, args ...any) error { return newf(Validation, format, args...) }

// Wrap attaches a storage error to a Persistence failure named after op.
// Errors that already carry a kind pass through untouched.
func Wrap(err error, op string) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return &Error{Kind: Persistence, Msg: op + " failed", Err: err}
}

// KindOf reports the kind of err. Untyped errors count as Persistence.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Persistence
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Message is the text safe to show a client. Persistence details stay in the logs.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Msg
	}
	return "internal error"
}

func HTTPStatus(kind Kind) int {
	switch kind {
	case NotFound:
		return http.StatusNotFound
	case Forbidden:
		return http.StatusForbidden
	case Conflict:
		return http.StatusConflict
	case Validation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
