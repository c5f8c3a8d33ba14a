// Package apperror defines the ledger's typed errors. Every error that can
// reach an API client is an *AppError carrying a stable code and the HTTP
// status it maps to; anything else is reported as an internal error.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	CodeInternal               = "INTERNAL_ERROR"
	CodeValidation             = "VALIDATION_ERROR"
	CodeUnauthorized           = "UNAUTHORIZED"
	CodeNotFound               = "NOT_FOUND"
	CodeDuplicate              = "DUPLICATE"
	CodeInvalidState           = "INVALID_STATE"
	CodeConcurrentModification = "CONCURRENT_MODIFICATION"
)

// AppError is a client-facing error.
type AppError struct {
	Code       string         `json:"code"`
	Message    string         `json:"message"`
	Details    map[string]any `json:"details,omitempty"`
	HTTPStatus int            `json:"-"`
	// Err is logged, never serialised.
	Err error `json:"-"`
}

func newError(status int, code, message string, details map[string]any) *AppError {
	return &AppError{Code: code, Message: message, Details: details, HTTPStatus: status}
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Code + ": " + e.Message
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
}

func (e *AppError) Unwrap() error { return e.Err }

// WithDetail sets one detail entry and returns e.
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any, 1)
	}
	e.Details[key] = value
	return e
}

// NewValidation is a malformed or incomplete request (400).
func NewValidation(message string) *AppError {
	return newError(http.StatusBadRequest, CodeValidation, message, nil)
}

// NewUnauthorized is a request without a usable caller identity (401).
func NewUnauthorized(message string) *AppError {
	return newError(http.StatusUnauthorized, CodeUnauthorized, message, nil)
}

func NewNotFound(entity string, id any) *AppError {
	return newError(http.StatusNotFound, CodeNotFound, entity+" not found",
		map[string]any{"entity": entity, "id": id})
}

// NewDuplicate reports a uniqueness conflict, e.g. a second accrual for
// the same receipt line (409).
func NewDuplicate(entity string, key any) *AppError {
	return newError(http.StatusConflict, CodeDuplicate, entity+" already exists",
		map[string]any{"entity": entity, "key": key})
}

// NewInvalidTransition rejects an operation the record's current state does
// not allow, such as adjusting an invoiced accrual (422).
func NewInvalidTransition(entity string, id any, state, operation string) *AppError {
	return newError(http.StatusUnprocessableEntity, CodeInvalidState,
		fmt.Sprintf("%s in state %s does not allow %s", entity, state, operation),
		map[string]any{"entity": entity, "id": id, "state": state, "operation": operation})
}

// NewConcurrentModification is a lost optimistic-version race (409).
func NewConcurrentModification(entity string, id any) *AppError {
	return newError(http.StatusConflict, CodeConcurrentModification,
		"record was modified concurrently, reload and retry",
		map[string]any{"entity": entity, "id": id})
}

// NewInternal hides err from the client behind a generic 500.
func NewInternal(err error) *AppError {
	e := newError(http.StatusInternalServerError, CodeInternal, "Internal server error", nil)
	e.Err = err
	return e
}

// AsAppError finds the first *AppError in err's chain.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// HasCode reports whether err's chain holds an *AppError with code.
func HasCode(err error, code string) bool {
	appErr, ok := AsAppError(err)
	return ok && appErr.Code == code
}

func IsInvalidState(err error) bool { return HasCode(err, CodeInvalidState) }

func IsDuplicate(err error) bool { return HasCode(err, CodeDuplicate) }
