// Package assembly reassembles chunked wire messages into whole frames.
//
// A Reassembler tracks one in-progress frame. Metadata opens a frame and
// sizes its buffers; Depth and Color chunks are placed at their offsets
// through ipc.WriteChunk. A frame completes once every expected chunk of
// both streams has arrived. Chunks for any other frame id are stale and
// ignored.
package assembly

import (
	"errors"
	"fmt"
	"math"

	"github.com/pithecene-io/framelog/ipc"
	"github.com/pithecene-io/framelog/types"
)

// DefaultMaxPixels bounds width*height for a single frame (4096x4096).
const DefaultMaxPixels = 4096 * 4096

// Limits bounds the buffers a Metadata message may request.
type Limits struct {
	// MaxPixels is the largest accepted width*height. Zero means DefaultMaxPixels.
	MaxPixels int
}

func (l Limits) maxPixels() uint64 {
	if l.MaxPixels <= 0 {
		return DefaultMaxPixels
	}
	return uint64(l.MaxPixels)
}

// ErrAllocation is matched by every *AllocationError.
var ErrAllocation = errors.New("frame allocation failed")

// ErrChunkMismatch indicates a chunk whose totalChunks disagrees with the
// frame's expected chunk count.
var ErrChunkMismatch = errors.New("chunk count mismatch")

// AllocationError reports a Metadata message whose buffers could not be
// sized. The previous assembly is left untouched.
type AllocationError struct {
	FrameID uint32
	Width   uint32
	Height  uint32
	Reason  string
}

func (e *AllocationError) Error() string {
	return fmt.Sprintf("frame %d (%dx%d): %s", e.FrameID, e.Width, e.Height, e.Reason)
}

// Is matches ErrAllocation.
func (e *AllocationError) Is(target error) bool {
	return target == ErrAllocation
}

// Result describes the effect of applying one message.
type Result int

const (
	// ResultIgnored means the message changed nothing: a duplicate Metadata,
	// a repeated chunk, or a non-frame message.
	ResultIgnored Result = iota
	// ResultStarted means a Metadata message opened a new frame.
	ResultStarted
	// ResultChunk means a new chunk was placed.
	ResultChunk
	// ResultStale means the chunk belongs to a frame other than the current one.
	ResultStale
	// ResultCompleted means the chunk completed the current frame.
	ResultCompleted
)

func (r Result) String() string {
	switch r {
	case ResultIgnored:
		return "ignored"
	case ResultStarted:
		return "started"
	case ResultChunk:
		return "chunk"
	case ResultStale:
		return "stale"
	case ResultCompleted:
		return "completed"
	default:
		return fmt.Sprintf("result(%d)", int(r))
	}
}

// Stats counts reassembly outcomes.
type Stats struct {
	FramesStarted      int64 `json:"frames_started"`
	FramesCompleted    int64 `json:"frames_completed"`
	ChunksPlaced       int64 `json:"chunks_placed"`
	StaleChunks        int64 `json:"stale_chunks"`
	DuplicateChunks    int64 `json:"duplicate_chunks"`
	DuplicateMetadata  int64 `json:"duplicate_metadata"`
	BoundsViolations   int64 `json:"bounds_violations"`
	MismatchedChunks   int64 `json:"mismatched_chunks"`
	AllocationFailures int64 `json:"allocation_failures"`
}

// stream is the per-stream half of a FrameAssembly.
type stream struct {
	buf      []byte
	seen     []bool
	expected uint32
	received uint32
}

func (s *stream) reset(size int) {
	if cap(s.buf) >= size {
		s.buf = s.buf[:size]
		clear(s.buf)
	} else {
		s.buf = make([]byte, size)
	}
	s.seen = s.seen[:0]
	s.expected = 0
	s.received = 0
}

func (s *stream) done() bool {
	return s.expected > 0 && s.received == s.expected
}

// FrameAssembly is the state of the frame being reassembled.
type FrameAssembly struct {
	FrameID     uint32
	TimestampMs uint32
	Width       uint32
	Height      uint32

	depth stream
	color stream

	active   bool
	complete bool
}

// Progress returns received/expected chunk counts for both streams.
func (a *FrameAssembly) Progress() (depthReceived, depthExpected, colorReceived, colorExpected uint32) {
	return a.depth.received, a.depth.expected, a.color.received, a.color.expected
}

// Complete reports whether every expected chunk of both streams has arrived.
func (a *FrameAssembly) Complete() bool {
	return a.complete
}

// Reassembler turns a message sequence into completed frames.
// Not safe for concurrent use; each receive loop owns one.
type Reassembler struct {
	codec  *ipc.Codec
	limits Limits
	cur    FrameAssembly
	stats  Stats
}

// NewReassembler creates a reassembler for messages produced by codec.
func NewReassembler(codec *ipc.Codec, limits Limits) *Reassembler {
	return &Reassembler{codec: codec, limits: limits}
}

// Apply folds one decoded message into the current assembly.
//
// Errors:
//   - *AllocationError: Metadata dimensions are zero or over the limit
//   - *ipc.CodecError with Kind=CodecErrorBounds: chunk placement out of range
//   - ErrChunkMismatch: chunk count disagrees with the frame's expected count
//
// In every error case the message is dropped and counters are unchanged.
func (r *Reassembler) Apply(msg ipc.Message) (Result, error) {
	switch msg.Kind {
	case types.KindMetadata:
		return r.applyMetadata(msg)
	case types.KindDepth:
		return r.applyChunk(&r.cur.depth, msg)
	case types.KindColor:
		return r.applyChunk(&r.cur.color, msg)
	default:
		return ResultIgnored, nil
	}
}

func (r *Reassembler) applyMetadata(msg ipc.Message) (Result, error) {
	if r.cur.active && msg.FrameID == r.cur.FrameID {
		r.stats.DuplicateMetadata++
		return ResultIgnored, nil
	}

	pixels := uint64(msg.Width) * uint64(msg.Height)
	reason := ""
	switch {
	case pixels == 0:
		reason = "empty frame dimensions"
	case msg.Width > math.MaxUint16 || msg.Height > math.MaxUint16:
		reason = fmt.Sprintf("dimensions exceed %d", math.MaxUint16)
	case pixels > r.limits.maxPixels():
		reason = fmt.Sprintf("%d pixels exceeds limit %d", pixels, r.limits.maxPixels())
	}
	if reason != "" {
		r.stats.AllocationFailures++
		return ResultIgnored, &AllocationError{
			FrameID: msg.FrameID,
			Width:   msg.Width,
			Height:  msg.Height,
			Reason:  reason,
		}
	}

	n := int(pixels)
	r.cur.depth.reset(n * types.DepthBytesPerPixel)
	r.cur.color.reset(n * types.ColorBytesPerPixel)
	r.cur.FrameID = msg.FrameID
	r.cur.TimestampMs = msg.TimestampMs
	r.cur.Width = msg.Width
	r.cur.Height = msg.Height
	r.cur.active = true
	r.cur.complete = false

	r.stats.FramesStarted++
	return ResultStarted, nil
}

func (r *Reassembler) applyChunk(s *stream, msg ipc.Message) (Result, error) {
	if !r.cur.active || msg.FrameID != r.cur.FrameID {
		r.stats.StaleChunks++
		return ResultStale, nil
	}

	expected := s.expected
	if expected == 0 {
		expected = uint32(r.codec.ChunkCount(len(s.buf)))
	}
	if msg.TotalChunks != expected {
		r.stats.MismatchedChunks++
		return ResultIgnored, fmt.Errorf("%w: frame %d %s chunk reports %d chunks, want %d",
			ErrChunkMismatch, msg.FrameID, msg.Kind, msg.TotalChunks, expected)
	}

	if err := ipc.WriteChunk(s.buf, msg, r.codec.MaxPayload()); err != nil {
		r.stats.BoundsViolations++
		return ResultIgnored, err
	}

	if s.expected == 0 {
		s.expected = expected
		s.seen = append(s.seen[:0], make([]bool, expected)...)
	}
	if s.seen[msg.ChunkIndex] {
		r.stats.DuplicateChunks++
		return ResultIgnored, nil
	}
	s.seen[msg.ChunkIndex] = true
	s.received++
	r.stats.ChunksPlaced++

	if !r.cur.complete && r.cur.depth.done() && r.cur.color.done() {
		r.cur.complete = true
		r.stats.FramesCompleted++
		return ResultCompleted, nil
	}
	return ResultChunk, nil
}

// Assembly returns the current assembly state.
func (r *Reassembler) Assembly() *FrameAssembly {
	return &r.cur
}

// Current returns the current frame. Depth and Color alias the
// reassembler's buffers and are valid until the next Metadata.
func (r *Reassembler) Current() types.Frame {
	return types.Frame{
		FrameID:     r.cur.FrameID,
		TimestampMs: r.cur.TimestampMs,
		Width:       int(r.cur.Width),
		Height:      int(r.cur.Height),
		Depth:       r.cur.depth.buf,
		Color:       r.cur.color.buf,
	}
}

// Stats returns reassembly counters.
func (r *Reassembler) Stats() Stats {
	return r.stats
}
