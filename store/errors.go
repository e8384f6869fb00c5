package store

import (
	"errors"
	"fmt"
)

// ErrEndOfStream is returned by Reader.ReadFrame after the end-of-stream
// record. It is the only clean termination of a recording.
var ErrEndOfStream = errors.New("end of stream")

// Sentinel errors for store failure classification.
// Use errors.Is(err, ErrXxx) for typed assertions.
var (
	// ErrTruncated indicates the file ended without an end-of-stream record,
	// either at a record boundary or inside a record.
	ErrTruncated = errors.New("recording truncated")

	// ErrCorrupt indicates a header that cannot describe a valid frame.
	ErrCorrupt = errors.New("recording corrupt")

	// ErrIO indicates an operating-system level read, write or open failure.
	ErrIO = errors.New("recording i/o failure")

	// ErrClosed indicates use of a writer after Close or Abort.
	ErrClosed = errors.New("recording closed")
)

// StoreError wraps an underlying error with store classification.
type StoreError struct {
	// Kind is the sentinel error for classification (e.g., ErrTruncated).
	Kind error
	// Op is the operation that failed (e.g., "open", "read", "write").
	Op string
	// Path is the file involved, if known.
	Path string
	// Offset is the byte offset of the record being processed.
	Offset int64
	// Err is the underlying error, if any.
	Err error
}

func (e *StoreError) Error() string {
	msg := e.Op
	if e.Path != "" {
		msg += " " + e.Path
	}
	msg += fmt.Sprintf(" at offset %d: %v", e.Offset, e.Kind)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error for errors.Is/As chain traversal.
func (e *StoreError) Unwrap() error {
	return e.Err
}

// Is reports whether the error matches the target sentinel.
func (e *StoreError) Is(target error) bool {
	return errors.Is(e.Kind, target)
}

func newStoreError(kind error, op, path string, offset int64, err error) *StoreError {
	return &StoreError{Kind: kind, Op: op, Path: path, Offset: offset, Err: err}
}
