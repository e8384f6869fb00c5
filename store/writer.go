package store

import (
	"bufio"
	"io"
	"os"

	"github.com/pithecene-io/framelog/iox"
	"github.com/pithecene-io/framelog/types"
)

// Writer appends frame records to a recording.
// Not safe for concurrent use.
type Writer struct {
	path   string
	bw     *bufio.Writer
	closer io.Closer
	hdr    [HeaderSize]byte

	maxBytes uint64
	frames   int64
	offset   int64
	closed   bool
}

// Create creates (or truncates) the file at path for recording.
func Create(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, newStoreError(ErrIO, "create", path, 0, err)
	}
	w := NewWriter(f)
	w.path = path
	return w, nil
}

// NewWriter records into w. If w is an io.Closer it is closed by Close and Abort.
func NewWriter(w io.Writer) *Writer {
	c, _ := w.(io.Closer)
	return &Writer{
		bw:       bufio.NewWriterSize(w, 64*1024),
		closer:   c,
		maxBytes: DefaultMaxFrameBytes,
	}
}

// SetMaxFrameBytes bounds each stream of a written record, matching the
// limit readers apply. Zero or negative restores DefaultMaxFrameBytes.
func (w *Writer) SetMaxFrameBytes(n int) {
	if n <= 0 {
		n = DefaultMaxFrameBytes
	}
	w.maxBytes = uint64(n)
}

// Path returns the file path, or "" for writers built with NewWriter.
func (w *Writer) Path() string {
	return w.path
}

// Frames returns the number of frames written.
func (w *Writer) Frames() int64 {
	return w.frames
}

// WriteFrame appends one frame record and flushes it to the OS, so a
// crash loses at most the frame being written. A frame a reader with the
// same limit would reject is refused with ErrCorrupt and nothing is written.
func (w *Writer) WriteFrame(f *types.Frame) error {
	if w.closed {
		return newStoreError(ErrClosed, "write", w.path, w.offset, nil)
	}

	h, err := headerFor(f)
	if err != nil {
		return newStoreError(ErrCorrupt, "write", w.path, w.offset, err)
	}
	if err := h.validate(w.maxBytes); err != nil {
		return newStoreError(ErrCorrupt, "write", w.path, w.offset, err)
	}
	h.MarshalTo(w.hdr[:])

	if err := w.write(w.hdr[:], f.Depth, f.Color); err != nil {
		return err
	}
	w.frames++
	return nil
}

func (w *Writer) write(parts ...[]byte) error {
	start := w.offset
	for _, p := range parts {
		n, err := w.bw.Write(p)
		w.offset += int64(n)
		if err != nil {
			return newStoreError(ErrIO, "write", w.path, start, err)
		}
	}
	if err := w.bw.Flush(); err != nil {
		return newStoreError(ErrIO, "flush", w.path, start, err)
	}
	return nil
}

// Close appends the end-of-stream record, flushes and closes the file.
// Calling Close again is a no-op.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	eos := RecordHeader{Type: FrameEndOfStream}
	eos.MarshalTo(w.hdr[:])
	writeErr := w.write(w.hdr[:])

	if w.closer == nil {
		return writeErr
	}
	if err := w.closer.Close(); err != nil && writeErr == nil {
		return newStoreError(ErrIO, "close", w.path, w.offset, err)
	}
	return writeErr
}

// Abort closes the file without the end-of-stream record, leaving a
// recording that readers report as truncated. Used after write failures.
func (w *Writer) Abort() error {
	if w.closed {
		return nil
	}
	w.closed = true
	iox.DiscardErr(w.bw.Flush)
	if w.closer == nil {
		return nil
	}
	if err := w.closer.Close(); err != nil {
		return newStoreError(ErrIO, "abort", w.path, w.offset, err)
	}
	return nil
}
