package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/ruteri/accesskeys-registry/interfaces"
)

var errorTable = []struct {
	err    error
	code   string
	status int
}{
	{interfaces.ErrValidation, CodeValidation, http.StatusBadRequest},
	{interfaces.ErrUnauthorized, CodeUnauthorized, http.StatusUnauthorized},
	{interfaces.ErrNotFound, CodeNotFound, http.StatusNotFound},
	{interfaces.ErrNotTransferable, CodeNotTransferable, http.StatusConflict},
	{interfaces.ErrInactiveOrFrozen, CodeInactiveOrFrozen, http.StatusConflict},
	{interfaces.ErrExpired, CodeExpired, http.StatusConflict},
	{interfaces.ErrAccountFrozen, CodeAccountFrozen, http.StatusConflict},
	{interfaces.ErrAlreadyInitialized, CodeAlreadyInitialized, http.StatusConflict},
	{interfaces.ErrSupplyExhausted, CodeSupplyExhausted, http.StatusConflict},
}

// StatusFor maps a registry error to its HTTP status and error code.
func StatusFor(err error) (int, string) {
	for _, e := range errorTable {
		if errors.Is(err, e.err) {
			return e.status, e.code
		}
	}
	return http.StatusInternalServerError, CodeInternal
}

// ResponseError is a registry error decoded from an HTTP response.
// It unwraps to the matching interfaces sentinel, if any.
type ResponseError struct {
	StatusCode int
	Code       string
	Message    string

	sentinel error
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("registry returned %d (%s): %s", e.StatusCode, e.Code, e.Message)
}

func (e *ResponseError) Unwrap() error {
	return e.sentinel
}

// ErrorFor rebuilds a registry error from a response so callers can use errors.Is.
func ErrorFor(statusCode int, resp *ErrorResponse) error {
	rerr := &ResponseError{StatusCode: statusCode, Code: resp.Code, Message: resp.Error}
	for _, e := range errorTable {
		if e.code == resp.Code {
			rerr.sentinel = e.err
			break
		}
	}
	return rerr
}
