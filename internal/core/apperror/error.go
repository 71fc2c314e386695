// Package apperror provides structured error handling for the ledger.
// Every business failure is an AppError carrying a stable code, a human message
// and enough details (entity id, requested vs. available) to render to a user.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes
const (
	// Infrastructure errors (5xx)
	CodeInternal = "INTERNAL_ERROR"
	CodeDatabase = "DATABASE_ERROR"

	// Validation errors (400)
	CodeValidation      = "VALIDATION_ERROR"
	CodeInvalidQuantity = "INVALID_QUANTITY"
	CodeInvalidAmount   = "INVALID_AMOUNT"

	// Business rule violations (422)
	CodeInsufficientStock = "INSUFFICIENT_STOCK"
	CodeRestoreConflict   = "RESTORE_CONFLICT"
	CodeShopInactive      = "SHOP_INACTIVE"
	CodeInvalidState      = "INVALID_STATE"

	// Authorization errors (401, 403)
	CodeUnauthorized = "UNAUTHORIZED"
	CodeForbidden    = "FORBIDDEN"

	// Not found (404)
	CodeNotFound = "NOT_FOUND"

	// Conflict (409)
	CodeDuplicateShopName      = "DUPLICATE_SHOP_NAME"
	CodeDuplicate              = "DUPLICATE_ENTRY"
	CodeConcurrentModification = "CONCURRENT_MODIFICATION"
	CodeAlreadyDeleted         = "ALREADY_DELETED"
	CodeSettlementInProgress   = "SETTLEMENT_IN_PROGRESS"

	// Settlement persistence failure (500)
	CodeSettlementFailed = "SETTLEMENT_FAILED"
)

// AppError is the standard error type for the ledger.
type AppError struct {
	// Code is a machine-readable error identifier
	Code string `json:"code"`

	// Message is a human-readable error description
	Message string `json:"message"`

	// Details contains additional context (ids, quantities, amounts)
	Details map[string]any `json:"details,omitempty"`

	// HTTPStatus is the suggested HTTP status code
	HTTPStatus int `json:"-"`

	// Err is the underlying error (not exposed in JSON)
	Err error `json:"-"`
}

// Error implements error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetail adds a key-value pair to error details
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithCause sets the underlying error
func (e *AppError) WithCause(err error) *AppError {
	e.Err = err
	return e
}

// --- Factory functions ---

// NewValidation creates a validation error (400)
func NewValidation(message string) *AppError {
	return &AppError{
		Code:       CodeValidation,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewInvalidQuantity is returned for a zero or negative quantity.
func NewInvalidQuantity(productID string, qty any) *AppError {
	return &AppError{
		Code:       CodeInvalidQuantity,
		Message:    "Quantity must be greater than zero",
		HTTPStatus: http.StatusBadRequest,
		Details:    map[string]any{"product_id": productID, "quantity": qty},
	}
}

// NewQuantityOutOfRange is returned when a quantity or resulting stock level
// would exceed the supported maximum.
func NewQuantityOutOfRange(productID string, qty any, max string) *AppError {
	return &AppError{
		Code:       CodeInvalidQuantity,
		Message:    fmt.Sprintf("Quantity exceeds the supported maximum of %s", max),
		HTTPStatus: http.StatusBadRequest,
		Details:    map[string]any{"product_id": productID, "quantity": qty, "max": max},
	}
}

// NewInvalidAmount is returned for a zero, negative or out-of-range amount.
func NewInvalidAmount(message string, amount any) *AppError {
	return &AppError{
		Code:       CodeInvalidAmount,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
		Details:    map[string]any{"amount": amount},
	}
}

// NewNotFound creates a not found error (404)
func NewNotFound(entity string, id any) *AppError {
	return &AppError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", entity),
		HTTPStatus: http.StatusNotFound,
		Details:    map[string]any{"entity": entity, "id": id},
	}
}

// NewBusinessRule creates a business rule violation error (422)
func NewBusinessRule(code, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: http.StatusUnprocessableEntity,
	}
}

// NewInsufficientStock creates a stock shortage error.
// Quantities are passed as their decimal string form.
func NewInsufficientStock(productID, product, requested, available string) *AppError {
	return &AppError{
		Code:       CodeInsufficientStock,
		Message:    fmt.Sprintf("Insufficient stock for %s", product),
		HTTPStatus: http.StatusUnprocessableEntity,
		Details: map[string]any{
			"product_id": productID,
			"product":    product,
			"requested":  requested,
			"available":  available,
		},
	}
}

// NewRestoreConflict wraps the stock shortage that prevented a restore.
func NewRestoreConflict(deliveryID string, cause *AppError) *AppError {
	e := &AppError{
		Code:       CodeRestoreConflict,
		Message:    "Delivery cannot be restored with current stock",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"delivery_id": deliveryID},
		Err:        cause,
	}
	if cause != nil {
		for k, v := range cause.Details {
			e.Details[k] = v
		}
	}
	return e
}

// NewAlreadyDeleted is returned when deleting a record that is not active.
func NewAlreadyDeleted(entity string, id any, state string) *AppError {
	return &AppError{
		Code:       CodeAlreadyDeleted,
		Message:    fmt.Sprintf("%s is already %s", entity, state),
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"entity": entity, "id": id, "state": state},
	}
}

// NewInvalidState is returned for an illegal lifecycle transition.
func NewInvalidState(entity string, id any, from, to string) *AppError {
	return &AppError{
		Code:       CodeInvalidState,
		Message:    fmt.Sprintf("%s cannot move from %s to %s", entity, from, to),
		HTTPStatus: http.StatusUnprocessableEntity,
		Details:    map[string]any{"entity": entity, "id": id, "from": from, "to": to},
	}
}

// NewShopInactive is returned when a command targets a removed shop.
func NewShopInactive(shopID string) *AppError {
	return &AppError{
		Code:       CodeShopInactive,
		Message:    "Shop is not active",
		HTTPStatus: http.StatusUnprocessableEntity,
		Details:    map[string]any{"shop_id": shopID},
	}
}

// NewDuplicateShopName is returned when an active shop already uses the name.
func NewDuplicateShopName(name string) *AppError {
	return &AppError{
		Code:       CodeDuplicateShopName,
		Message:    fmt.Sprintf("Shop %q already exists", name),
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"name": name},
	}
}

// NewDuplicate creates a duplicate entry error (409)
func NewDuplicate(entity, field, value string) *AppError {
	return &AppError{
		Code:       CodeDuplicate,
		Message:    fmt.Sprintf("%s with this %s already exists", entity, field),
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"entity": entity, "field": field, "value": value},
	}
}

// NewConcurrentModification creates an optimistic locking error
func NewConcurrentModification(entity string, id any) *AppError {
	return &AppError{
		Code:       CodeConcurrentModification,
		Message:    "Record was modified concurrently, reload and try again",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"entity": entity, "id": id},
	}
}

// NewSettlementInProgress is returned while the daily settlement holds the ledger.
func NewSettlementInProgress() *AppError {
	return &AppError{
		Code:       CodeSettlementInProgress,
		Message:    "Daily settlement is running, try again shortly",
		HTTPStatus: http.StatusConflict,
	}
}

// NewSettlementFailed reports a rolled back settlement.
func NewSettlementFailed(date string, err error) *AppError {
	return &AppError{
		Code:       CodeSettlementFailed,
		Message:    "Daily settlement failed and was rolled back",
		HTTPStatus: http.StatusInternalServerError,
		Details:    map[string]any{"date": date},
		Err:        err,
	}
}

// NewInternal creates an internal server error (hides details from client)
func NewInternal(err error) *AppError {
	return &AppError{
		Code:       CodeInternal,
		Message:    "Internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// NewUnauthorized creates an authentication error (401)
func NewUnauthorized(message string) *AppError {
	return &AppError{
		Code:       CodeUnauthorized,
		Message:    message,
		HTTPStatus: http.StatusUnauthorized,
	}
}

// NewForbidden creates an authorization error (403)
func NewForbidden(message string) *AppError {
	return &AppError{
		Code:       CodeForbidden,
		Message:    message,
		HTTPStatus: http.StatusForbidden,
	}
}

// --- Helper functions ---

// IsAppError checks if error is AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// AsAppError extracts AppError from error chain
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// Is reports whether the outermost AppError in err's chain has the given code.
func Is(err error, code string) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code == code
	}
	return false
}

// GetHTTPStatus returns appropriate HTTP status for any error
func GetHTTPStatus(err error) int {
	if appErr, ok := AsAppError(err); ok {
		return appErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

// IsNotFound checks if error is CodeNotFound
func IsNotFound(err error) bool {
	return Is(err, CodeNotFound)
}
