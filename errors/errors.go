package errors

import (
	"errors"
	"fmt"
)

// Category classifies error types for targeted handling and monitoring.
type Category string

const (
	CategoryLoad          Category = "load"
	CategoryNotLoaded     Category = "not_loaded"
	CategoryClosed        Category = "closed"
	CategoryDecode        Category = "decode"
	CategoryEncode        Category = "encode"
	CategoryInvalidOption Category = "invalid_option"
	CategoryStorage       Category = "storage"
	CategoryConfig        Category = "config"
	CategoryPipeline      Category = "pipeline"
	CategoryTransient     Category = "transient"
)

// ProcessingError is the structured error type used throughout the module.
type ProcessingError struct {
	Category  Category
	Op        string // operation name
	Err       error
	Retryable bool
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("[%s] %s: %v", e.Category, e.Op, e.Err)
}

func (e *ProcessingError) Unwrap() error { return e.Err }

// New creates a non-retryable ProcessingError.
func New(category Category, op string, err error) *ProcessingError {
	return &ProcessingError{Category: category, Op: op, Err: err}
}

// Transient creates a retryable ProcessingError.
func Transient(op string, err error) *ProcessingError {
	return &ProcessingError{Category: CategoryTransient, Op: op, Err: err, Retryable: true}
}

// Wrap wraps an existing error with context. An error that is already a
// ProcessingError keeps its category so the kind survives re-wrapping.
func Wrap(category Category, op string, err error) error {
	if err == nil {
		return nil
	}
	var pe *ProcessingError
	if errors.As(err, &pe) {
		return err
	}
	return New(category, op, err)
}

// IsRetryable reports whether err represents a transient failure.
func IsRetryable(err error) bool {
	var pe *ProcessingError
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	return false
}

// IsCategory reports whether err belongs to the given category.
func IsCategory(err error, cat Category) bool {
	var pe *ProcessingError
	if errors.As(err, &pe) {
		return pe.Category == cat
	}
	return false
}

// CategoryOf returns the category of err, or "" when err is not a
// ProcessingError.
func CategoryOf(err error) Category {
	var pe *ProcessingError
	if errors.As(err, &pe) {
		return pe.Category
	}
	return ""
}

// Sentinel errors for common failure modes.
var (
	ErrUnsupportedFormat  = errors.New("unsupported image format")
	ErrInvalidDimensions  = errors.New("invalid dimensions")
	ErrEmptyInput         = errors.New("empty input")
	ErrEmptyOutput        = errors.New("encoder produced no output")
	ErrNotLoaded          = errors.New("session not loaded")
	ErrAlreadyLoaded      = errors.New("session already loaded")
	ErrAlreadyClosed      = errors.New("session already closed")
	ErrInvalidState       = errors.New("invalid session state")
	ErrInvalidOption      = errors.New("invalid option")
	ErrOutputLocked       = errors.New("output location is locked by another batch")
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrNoThumbnail        = errors.New("source has no embedded thumbnail")
)
