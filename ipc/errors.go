package ipc

import (
	"errors"
	"fmt"
)

// CodecErrorKind classifies wire message errors.
type CodecErrorKind int

const (
	// CodecErrorMalformed indicates a header that violates the message invariants.
	CodecErrorMalformed CodecErrorKind = iota
	// CodecErrorTooLarge indicates a message or payload above the configured maximum.
	CodecErrorTooLarge
	// CodecErrorTruncated indicates fewer bytes than the header declares.
	CodecErrorTruncated
	// CodecErrorBounds indicates a chunk that would write outside its destination buffer.
	CodecErrorBounds
)

func (k CodecErrorKind) String() string {
	switch k {
	case CodecErrorMalformed:
		return "malformed"
	case CodecErrorTooLarge:
		return "too_large"
	case CodecErrorTruncated:
		return "truncated"
	case CodecErrorBounds:
		return "bounds_violation"
	default:
		return fmt.Sprintf("codec_error(%d)", int(k))
	}
}

// CodecError represents a wire message encode, decode or placement error.
// None of these are fatal: the offending message is dropped and counted.
type CodecError struct {
	Kind CodecErrorKind
	Msg  string
	Err  error
}

func (e *CodecError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *CodecError) Unwrap() error {
	return e.Err
}

func codecErrorf(kind CodecErrorKind, format string, args ...any) *CodecError {
	return &CodecError{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// IsBoundsViolation returns true if err is a chunk bounds violation.
func IsBoundsViolation(err error) bool {
	var codecErr *CodecError
	if errors.As(err, &codecErr) {
		return codecErr.Kind == CodecErrorBounds
	}
	return false
}

// IsMalformed returns true if err describes an undecodable message
// (malformed, truncated or oversized).
func IsMalformed(err error) bool {
	var codecErr *CodecError
	if errors.As(err, &codecErr) {
		return codecErr.Kind != CodecErrorBounds
	}
	return false
}
