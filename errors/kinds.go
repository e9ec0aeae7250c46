package errors

import "fmt"

// LoadError reports an unreadable, unsupported or corrupt source, or a load
// attempted in the wrong lifecycle state.
func LoadError(op string, err error) error { return Wrap(CategoryLoad, op, err) }

// NotLoadedError reports an operation issued before a successful load.
func NotLoadedError(op string) error { return New(CategoryNotLoaded, op, ErrNotLoaded) }

// AlreadyClosedError reports an operation issued after close.
func AlreadyClosedError(op string) error { return New(CategoryClosed, op, ErrAlreadyClosed) }

// DecodeError reports a native decode failure. The session stays retryable.
func DecodeError(op string, err error) error { return Wrap(CategoryDecode, op, err) }

// EncodeError reports a format-specific encode failure, including a format
// that has no encoder on this build.
func EncodeError(op string, err error) error { return Wrap(CategoryEncode, op, err) }

// InvalidOptionError reports an out-of-range or malformed conversion option.
func InvalidOptionError(op, format string, args ...any) error {
	return New(CategoryInvalidOption, op, fmt.Errorf("%w: "+format, append([]any{ErrInvalidOption}, args...)...))
}

func IsLoadError(err error) bool          { return IsCategory(err, CategoryLoad) }
func IsNotLoadedError(err error) bool     { return IsCategory(err, CategoryNotLoaded) }
func IsAlreadyClosedError(err error) bool { return IsCategory(err, CategoryClosed) }
func IsDecodeError(err error) bool        { return IsCategory(err, CategoryDecode) }
func IsEncodeError(err error) bool        { return IsCategory(err, CategoryEncode) }
func IsInvalidOptionError(err error) bool { return IsCategory(err, CategoryInvalidOption) }
