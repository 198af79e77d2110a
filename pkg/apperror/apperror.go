// Package apperror defines the typed error taxonomy shared by services,
// handlers and event consumers. Handlers map kinds to HTTP status codes; the
// event consumer uses kinds to decide between retrying and skipping.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for propagation decisions.
type Kind int

const (
	// KindInternal covers unexpected infrastructure failures. Event
	// processing treats these as transient and retries.
	KindInternal Kind = iota
	// KindValidation covers user-correctable input problems.
	KindValidation
	// KindConflict covers duplicate-key situations such as an existing
	// (shop, medicine, batch) triple.
	KindConflict
	// KindNotFound covers missing lots, shops or medicines.
	KindNotFound
	// KindInsufficientStock covers movements or reservations that would
	// drive a quantity negative.
	KindInsufficientStock
	// KindReconciliation covers events that imply a state the ledger cannot
	// confirm. Logged and alerted, never fatal.
	KindReconciliation
)

// Error is a classified application error.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Validationf(format string, args ...interface{}) *Error {
	return newf(KindValidation, format, args...)
}

func Conflictf(format string, args ...interface{}) *Error {
	return newf(KindConflict, format, args...)
}

func NotFoundf(format string, args ...interface{}) *Error {
	return newf(KindNotFound, format, args...)
}

func InsufficientStockf(format string, args ...interface{}) *Error {
	return newf(KindInsufficientStock, format, args...)
}

func Reconciliationf(format string, args ...interface{}) *Error {
	return newf(KindReconciliation, format, args...)
}

// Wrap classifies an underlying error while preserving it for errors.Is/As.
func Wrap(kind Kind, err error, message string) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf returns the kind of err, or KindInternal for unclassified errors.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Permanent reports whether err is a business failure that retrying cannot
// fix. Unclassified errors are assumed transient.
func Permanent(err error) bool {
	switch KindOf(err) {
	case KindValidation, KindConflict, KindNotFound, KindInsufficientStock, KindReconciliation:
		return true
	}
	return false
}

// HTTPStatus maps an error to the status code handlers should return.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict, KindInsufficientStock:
		return http.StatusConflict
	case KindReconciliation:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
