package common

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5/pgconn"
)

// Error is a failure the API reports to its caller. Code is the variant name
// placed in the JSON body, Status the HTTP status it is answered with.
type Error struct {
	Code   string
	Status int
}

func (e *Error) Error() string { return e.Code }

func newError(code string, status int) *Error {
	return &Error{Code: code, Status: status}
}

var (
	ErrNotFound   = newError("NotFound", http.StatusNotFound)
	ErrBadRequest = newError("BadRequest", http.StatusBadRequest)

	// registration
	ErrNameTooShort         = newError("TooShort", http.StatusBadRequest)
	ErrNameTooLong          = newError("TooLong", http.StatusBadRequest)
	ErrNameInvalidCharacter = newError("InvalidCharacter", http.StatusBadRequest)
	ErrUserExists           = newError("AlreadyExists", http.StatusBadRequest)

	// fetch_tasks
	ErrInvalidProject = newError("InvalidProject", http.StatusBadRequest)

	// submit_result
	ErrInvalidTask  = newError("InvalidTask", http.StatusNotFound)
	ErrResultExists = newError("AlreadyExists", http.StatusBadRequest)

	// authentication
	ErrBadAPIKey    = newError("BadApiKey", http.StatusBadRequest)
	ErrUserDisabled = newError("UserDisabled", http.StatusUnauthorized)
)

const (
	pgUniqueViolation      = "23505"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

// HTTPStatusFromError maps domain errors to HTTP status codes. Errors outside
// the taxonomy are infrastructure failures.
func HTTPStatusFromError(err error) int {
	if err == nil {
		return http.StatusOK
	}
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return http.StatusInternalServerError
}

// IsUniqueViolation reports whether err carries SQLSTATE 23505.
func IsUniqueViolation(err error) bool {
	return pgCode(err) == pgUniqueViolation
}

// IsRetryable reports whether the transaction that produced err may simply be
// run again.
func IsRetryable(err error) bool {
	code := pgCode(err)
	return code == pgSerializationFailure || code == pgDeadlockDetected
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// Errorf creates a new error with formatting, useful for wrapping.
func Errorf(format string, args ...interface{}) error {
	return fmt.Errorf(format, args...)
}
