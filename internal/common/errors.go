package common

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrNotFound        = errors.New("requested resource not found")
	ErrUnauthorized    = errors.New("unauthorized access")
	ErrForbidden       = errors.New("forbidden access")
	ErrBadRequest      = errors.New("bad request")
	ErrValidation      = errors.New("validation failed")
	ErrInvariant       = errors.New("operation would violate an account invariant")
	ErrTooManyRequests = errors.New("too many requests")
)

// GenericErrorMessage is returned to callers for errors that carry no safe message.
const GenericErrorMessage = "Request could not be processed"

// pgUniqueViolation is the SQLSTATE for unique constraint violations.
const pgUniqueViolation = "23505"

// HTTPStatusFromError maps domain errors to HTTP status codes.
// Unknown errors fall back to 400.
func HTTPStatusFromError(err error) int {
	if err == nil {
		return http.StatusOK
	}
	if errors.Is(err, ErrNotFound) {
		return http.StatusNotFound
	}
	if errors.Is(err, ErrUnauthorized) {
		return http.StatusUnauthorized
	}
	if errors.Is(err, ErrForbidden) || errors.Is(err, ErrInvariant) {
		return http.StatusForbidden
	}
	if errors.Is(err, ErrBadRequest) || errors.Is(err, ErrValidation) {
		return http.StatusBadRequest
	}
	if errors.Is(err, ErrTooManyRequests) {
		return http.StatusTooManyRequests
	}
	return http.StatusBadRequest
}

// IsKnown reports whether err belongs to the domain error taxonomy.
func IsKnown(err error) bool {
	for _, sentinel := range []error{
		ErrNotFound, ErrUnauthorized, ErrForbidden, ErrBadRequest,
		ErrValidation, ErrInvariant, ErrTooManyRequests,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}

// MessageFromError returns the caller-safe message for err. Domain errors are
// wrapped as "<message>: <sentinel>", so the sentinel suffix is stripped.
// Anything outside the taxonomy gets GenericErrorMessage.
func MessageFromError(err error) string {
	if err == nil || !IsKnown(err) {
		return GenericErrorMessage
	}
	msg := err.Error()
	if i := strings.Index(msg, ": "); i > 0 {
		msg = msg[:i]
	}
	return msg
}

// IsUniqueViolation reports whether err is a Postgres unique constraint violation.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

// Errorf creates a new error with formatting, useful for wrapping.
func Errorf(format string, args ...interface{}) error {
	return fmt.Errorf(format, args...)
}
