package store

import (
	"bufio"
	"errors"
	"io"
	"os"

	"github.com/pithecene-io/framelog/types"
)

// Reader reads frame records from a recording.
// Not safe for concurrent use.
type Reader struct {
	path     string
	br       *bufio.Reader
	closer   io.Closer
	maxBytes uint64

	hdr   [HeaderSize]byte
	depth []byte
	color []byte

	frames int64
	offset int64
	eos    bool
}

// Open opens the recording at path. maxBytes bounds each stream of a
// record; zero means DefaultMaxFrameBytes.
func Open(path string, maxBytes int) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, newStoreError(ErrIO, "open", path, 0, err)
	}
	r := NewReader(f, maxBytes)
	r.path = path
	return r, nil
}

// NewReader reads a recording from r. If r is an io.Closer it is closed by Close.
func NewReader(r io.Reader, maxBytes int) *Reader {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxFrameBytes
	}
	c, _ := r.(io.Closer)
	return &Reader{
		br:       bufio.NewReaderSize(r, 64*1024),
		closer:   c,
		maxBytes: uint64(maxBytes),
	}
}

// Path returns the file path, or "" for readers built with NewReader.
func (r *Reader) Path() string {
	return r.path
}

// Frames returns the number of normal frames read so far.
func (r *Reader) Frames() int64 {
	return r.frames
}

// Offset returns the byte offset of the next record.
func (r *Reader) Offset() int64 {
	return r.offset
}

// ReadFrame reads the next frame. The returned Depth and Color alias
// reader-owned buffers that are overwritten by the next call.
//
// Errors:
//   - ErrEndOfStream: the end-of-stream record was read (clean end)
//   - *StoreError matching ErrTruncated: the file ended before the
//     end-of-stream record, including an empty file and short reads
//   - *StoreError matching ErrCorrupt: the header cannot describe a valid frame
//   - *StoreError matching ErrIO: any other read failure
func (r *Reader) ReadFrame() (types.Frame, error) {
	if r.eos {
		return types.Frame{}, ErrEndOfStream
	}

	start := r.offset
	if err := r.readFull(r.hdr[:]); err != nil {
		return types.Frame{}, r.classify(err, "read header", start)
	}

	h := ParseHeader(r.hdr[:])
	if err := h.validate(r.maxBytes); err != nil {
		return types.Frame{}, newStoreError(ErrCorrupt, "read header", r.path, start, err)
	}
	if h.Type == FrameEndOfStream {
		r.eos = true
		return types.Frame{}, ErrEndOfStream
	}

	r.depth = resize(r.depth, int(h.DepthSize))
	r.color = resize(r.color, int(h.ColorSize))
	if err := r.readFull(r.depth); err != nil {
		return types.Frame{}, r.classify(err, "read depth", start)
	}
	if err := r.readFull(r.color); err != nil {
		return types.Frame{}, r.classify(err, "read color", start)
	}

	r.frames++
	return types.Frame{
		FrameID:     h.FrameID,
		TimestampMs: h.TimestampMs,
		Width:       int(h.Width),
		Height:      int(h.Height),
		Depth:       r.depth,
		Color:       r.color,
	}, nil
}

func (r *Reader) readFull(b []byte) error {
	n, err := io.ReadFull(r.br, b)
	r.offset += int64(n)
	return err
}

// classify maps a read error to a StoreError. A clean EOF before a header
// is still truncation: only the end-of-stream record ends a recording.
func (r *Reader) classify(err error, op string, offset int64) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return newStoreError(ErrTruncated, op, r.path, offset, err)
	}
	return newStoreError(ErrIO, op, r.path, offset, err)
}

// AtEOF reports whether no bytes remain after the current position.
// Used to detect trailing data after the end-of-stream record.
func (r *Reader) AtEOF() bool {
	_, err := r.br.Peek(1)
	return err != nil
}

// Close closes the underlying file.
func (r *Reader) Close() error {
	if r.closer == nil {
		return nil
	}
	c := r.closer
	r.closer = nil
	return c.Close()
}

func resize(b []byte, n int) []byte {
	if cap(b) >= n {
		return b[:n]
	}
	return make([]byte, n)
}
