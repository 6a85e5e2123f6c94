package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Standard sentinel errors for the cart engine and its outer surfaces.
var (
	ErrNotFound           = errors.New("resource not found")
	ErrInvalidInput       = errors.New("invalid input")
	ErrInternal           = errors.New("internal error")
	ErrContractViolation  = errors.New("line item contract violation")
	ErrRuleRejected       = errors.New("cart rule rejected mutation")
	ErrStorageUnavailable = errors.New("durable storage unavailable")
	ErrCorruptSnapshot    = errors.New("corrupt cart snapshot")
	ErrNoMigrationPath    = errors.New("no migration path for cart snapshot")
	ErrSnapshotExpired    = errors.New("cart snapshot expired")
	ErrTooManyRequests    = errors.New("too many requests")
)

// AppError represents a structured application error with HTTP status mapping.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NotFound creates a 404 error.
func NotFound(resource, id string) *AppError {
	return &AppError{
		Code:    "NOT_FOUND",
		Message: fmt.Sprintf("%s with id %s not found", resource, id),
		Status:  http.StatusNotFound,
		Err:     ErrNotFound,
	}
}

// InvalidInput creates a 400 error.
func InvalidInput(message string) *AppError {
	return &AppError{
		Code:    "INVALID_INPUT",
		Message: message,
		Status:  http.StatusBadRequest,
		Err:     ErrInvalidInput,
	}
}

// ContractViolation creates a 400 error for a malformed line item. It signals a
// caller bug, not a shopper-facing condition.
func ContractViolation(message string) *AppError {
	return &AppError{
		Code:    "INVALID_ITEM",
		Message: message,
		Status:  http.StatusBadRequest,
		Err:     ErrContractViolation,
	}
}

// RuleRejected creates a 422 error carrying the business-rule message verbatim.
func RuleRejected(message string) *AppError {
	return &AppError{
		Code:    "CART_RULE_REJECTED",
		Message: message,
		Status:  http.StatusUnprocessableEntity,
		Err:     ErrRuleRejected,
	}
}

// StorageUnavailable wraps a durable-store failure.
func StorageUnavailable(err error) *AppError {
	return &AppError{
		Code:    "STORAGE_UNAVAILABLE",
		Message: "cart storage is unavailable",
		Status:  http.StatusServiceUnavailable,
		Err:     errors.Join(ErrStorageUnavailable, err),
	}
}

// Internal creates a 500 error.
func Internal(err error) *AppError {
	return &AppError{
		Code:    "INTERNAL_ERROR",
		Message: "an internal error occurred",
		Status:  http.StatusInternalServerError,
		Err:     err,
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	return fmt.Errorf("%s: %w", message, err)
}

// HTTPStatus returns the HTTP status code for the given error.
func HTTPStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Status
	}

	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrContractViolation):
		return http.StatusBadRequest
	case errors.Is(err, ErrRuleRejected):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrTooManyRequests):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrStorageUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
