// Package errors defines the sentinel errors shared by the retrieval core and
// the AppError wrapper that carries an HTTP status for the service layer.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrInvalidCorpus     = errors.New("invalid corpus")
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrDocumentNotFound  = errors.New("document not found")
	ErrQueryNotInGold    = errors.New("query not in gold judgments")
	ErrDuplicateDocument = errors.New("duplicate document id")
	ErrInternal          = errors.New("internal error")
	ErrTimeout           = errors.New("operation timed out")
	// ErrMalformedEvent marks an analytics message that can never be
	// decoded. Consumers commit past it instead of retrying.
	ErrMalformedEvent = errors.New("malformed event")
)

type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusCode,
	}
}

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: statusCode,
	}
}

// Invalid is shorthand for a 400 ErrInvalidArgument with a formatted message.
func Invalid(format string, args ...any) *AppError {
	return Newf(ErrInvalidArgument, http.StatusBadRequest, format, args...)
}

func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrDocumentNotFound), errors.Is(err, ErrQueryNotInGold):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidArgument), errors.Is(err, ErrInvalidCorpus):
		return http.StatusBadRequest
	case errors.Is(err, ErrDuplicateDocument):
		return http.StatusConflict
	case errors.Is(err, ErrTimeout):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
