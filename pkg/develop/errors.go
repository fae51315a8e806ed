package develop

import (
	"errors"
	"fmt"
)

var (
	// ErrDecode indicates the source could not be read or decoded. No output is produced.
	ErrDecode = errors.New("decode error")

	// ErrEncode indicates an export could not be encoded or written.
	ErrEncode = errors.New("encode error")

	// ErrInvalidDimension indicates a negative target dimension.
	ErrInvalidDimension = errors.New("invalid target dimension")
)

// DecodeError is a failure to read or decode a source.
// Wraps ErrDecode for errors.Is() compatibility.
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", ErrDecode.Error(), e.Path)
	}
	return fmt.Sprintf("%s: %s: %v", ErrDecode.Error(), e.Path, e.Err)
}

func (e *DecodeError) Unwrap() []error { return []error{ErrDecode, e.Err} }

// EncodeError is a failure to encode or write an export.
// Wraps ErrEncode for errors.Is() compatibility.
type EncodeError struct {
	Path string
	Err  error
}

func (e *EncodeError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s: %v", ErrEncode.Error(), e.Path, e.Err)
}

func (e *EncodeError) Unwrap() []error { return []error{ErrEncode, e.Err} }
