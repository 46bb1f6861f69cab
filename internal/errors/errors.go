// Package errors provides structured error types for streamhouse.
// Every error carries a category, code, message and retryable flag so that
// composition failures, catalog failures and configuration failures can be
// told apart with errors.Is regardless of how deeply they are wrapped.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors by the phase or component that raised them.
type ErrorCategory string

const (
	ErrCategoryComposition   ErrorCategory = "COMPOSITION"
	ErrCategoryConfiguration ErrorCategory = "CONFIGURATION"
	ErrCategoryCatalog       ErrorCategory = "CATALOG"
	ErrCategoryStorage       ErrorCategory = "STORAGE"
	ErrCategoryInternal      ErrorCategory = "INTERNAL"
)

// Error codes for each category.
const (
	// Composition codes
	CodeDuplicateTable = "DUPLICATE_TABLE"
	CodeNotFound       = "NOT_FOUND"

	// Configuration codes
	CodeInvalidConfig = "INVALID_CONFIG"

	// Catalog codes
	CodeExecutionFailed  = "EXECUTION_FAILED"
	CodeExecutionTimeout = "EXECUTION_TIMEOUT"

	// Storage codes
	CodeListFailed  = "LIST_FAILED"
	CodeWriteFailed = "WRITE_FAILED"

	// Internal codes
	CodeUnexpected = "UNEXPECTED"
)

// Sentinels for errors.Is. Matching compares category and code only.
var (
	ErrDuplicateTable = New(ErrCategoryComposition, CodeDuplicateTable, "duplicate table")
	ErrNotFound       = New(ErrCategoryComposition, CodeNotFound, "not found")
	ErrConfiguration  = New(ErrCategoryConfiguration, CodeInvalidConfig, "invalid configuration")
	ErrCatalog        = New(ErrCategoryCatalog, CodeExecutionFailed, "catalog execution failed")
	ErrCatalogTimeout = New(ErrCategoryCatalog, CodeExecutionTimeout, "catalog execution timed out")
)

// Error is the structured error type used throughout the system.
type Error struct {
	Category  ErrorCategory
	Code      string
	Message   string
	Details   map[string]interface{}
	Cause     error
	Retryable bool

	hideCause bool
}

// Error returns a formatted error string.
func (e *Error) Error() string {
	if e.Cause != nil && !e.hideCause {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches this error's category and code.
// Both catalog codes match ErrCatalog so callers can test for "any catalog failure".
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	if e.Category != t.Category {
		return false
	}
	if t == ErrCatalog {
		return true
	}
	return e.Code == t.Code
}

// New creates a new Error.
func New(category ErrorCategory, code, message string) *Error {
	return &Error{
		Category:  category,
		Code:      code,
		Message:   message,
		Retryable: isRetryable(category, code),
	}
}

// Wrap creates a new Error wrapping an existing error.
func Wrap(category ErrorCategory, code, message string, cause error) *Error {
	return &Error{
		Category:  category,
		Code:      code,
		Message:   message,
		Cause:     cause,
		Retryable: isRetryable(category, code),
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *Error) WithDetails(details map[string]interface{}) *Error {
	cp := *e
	cp.Details = details
	return &cp
}

// HideCause returns a copy of the error whose message omits the cause text.
// The cause stays reachable through Unwrap.
func (e *Error) HideCause() *Error {
	cp := *e
	cp.hideCause = true
	return &cp
}

// Detail returns a single detail value, or nil.
func (e *Error) Detail(key string) interface{} {
	if e.Details == nil {
		return nil
	}
	return e.Details[key]
}

// IsRetryable checks whether an error (or its chain) is retryable.
func IsRetryable(err error) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.Retryable
	}
	return false
}

// GetCategory extracts the error category from an error chain.
// Returns empty string if the error is not an *Error.
func GetCategory(err error) ErrorCategory {
	var se *Error
	if errors.As(err, &se) {
		return se.Category
	}
	return ""
}

// GetCode extracts the error code from an error chain.
// Returns empty string if the error is not an *Error.
func GetCode(err error) string {
	var se *Error
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}

// Catalog failures are retried by the trigger layer, never internally.
func isRetryable(category ErrorCategory, code string) bool {
	switch {
	case category == ErrCategoryCatalog && code == CodeExecutionFailed:
		return true
	case category == ErrCategoryCatalog && code == CodeExecutionTimeout:
		return true
	case category == ErrCategoryStorage && code == CodeListFailed:
		return true
	default:
		return false
	}
}

// Convenience constructors for the taxonomy.

// DuplicateTable reports a table name collision at composition time.
func DuplicateTable(table string) *Error {
	return New(ErrCategoryComposition, CodeDuplicateTable,
		fmt.Sprintf("duplicate table %q", table)).
		WithDetails(map[string]interface{}{"table": table})
}

// NotFound reports a lookup of a table or binding that was never registered.
func NotFound(kind, name string) *Error {
	return New(ErrCategoryComposition, CodeNotFound,
		fmt.Sprintf("%s %q does not exist", kind, name)).
		WithDetails(map[string]interface{}{"kind": kind, "name": name})
}

// Configuration reports malformed or missing configuration.
func Configuration(format string, args ...interface{}) *Error {
	return New(ErrCategoryConfiguration, CodeInvalidConfig, fmt.Sprintf(format, args...))
}

// Catalog wraps a failed statement execution.
func Catalog(message string, cause error) *Error {
	return Wrap(ErrCategoryCatalog, CodeExecutionFailed, message, cause)
}

// CatalogTimeout wraps a statement execution that exceeded its deadline.
func CatalogTimeout(message string, cause error) *Error {
	return Wrap(ErrCategoryCatalog, CodeExecutionTimeout, message, cause)
}

func NewStorageError(code, message string, cause error) *Error {
	return Wrap(ErrCategoryStorage, code, message, cause)
}

func NewInternalError(message string, cause error) *Error {
	return Wrap(ErrCategoryInternal, CodeUnexpected, message, cause)
}
