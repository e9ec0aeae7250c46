package errors_test

import (
	stderrors "errors"
	"fmt"
	"testing"

	apperrors "github.com/Skryldev/raw-converter/errors"
)

func TestKindPredicates(t *testing.T) {
	tests := []struct {
		name string
		err  error
		is   func(error) bool
		cat  apperrors.Category
	}{
		{"load", apperrors.LoadError("load", apperrors.ErrEmptyInput), apperrors.IsLoadError, apperrors.CategoryLoad},
		{"not loaded", apperrors.NotLoadedError("convert"), apperrors.IsNotLoadedError, apperrors.CategoryNotLoaded},
		{"closed", apperrors.AlreadyClosedError("convert"), apperrors.IsAlreadyClosedError, apperrors.CategoryClosed},
		{"decode", apperrors.DecodeError("decode", stderrors.New("boom")), apperrors.IsDecodeError, apperrors.CategoryDecode},
		{"encode", apperrors.EncodeError("encode", apperrors.ErrUnsupportedFormat), apperrors.IsEncodeError, apperrors.CategoryEncode},
		{"option", apperrors.InvalidOptionError("validate", "quality %d", 0), apperrors.IsInvalidOptionError, apperrors.CategoryInvalidOption},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if !tc.is(tc.err) {
				t.Errorf("predicate false for %v", tc.err)
			}
			if got := apperrors.CategoryOf(tc.err); got != tc.cat {
				t.Errorf("CategoryOf = %q, want %q", got, tc.cat)
			}
		})
	}
}

func TestWrapKeepsOriginalCategory(t *testing.T) {
	inner := apperrors.InvalidOptionError("validate", "width must be positive")
	wrapped := apperrors.EncodeError("convert", fmt.Errorf("ctx: %w", inner))
	if !apperrors.IsInvalidOptionError(wrapped) {
		t.Errorf("expected invalid option category to survive, got %v", wrapped)
	}
	if !stderrors.Is(wrapped, apperrors.ErrInvalidOption) {
		t.Error("sentinel lost through wrapping")
	}
}

func TestTransientIsRetryable(t *testing.T) {
	err := apperrors.Transient("s3.put", stderrors.New("timeout"))
	if !apperrors.IsRetryable(err) {
		t.Error("transient error should be retryable")
	}
	if apperrors.IsRetryable(apperrors.DecodeError("decode", stderrors.New("x"))) {
		t.Error("decode error should not be retryable")
	}
	if apperrors.Wrap(apperrors.CategoryDecode, "op", nil) != nil {
		t.Error("Wrap(nil) should be nil")
	}
}
