// Package ipc implements the framelog wire protocol.
//
// Two layers live here:
//   - Wire messages (message.go): a fixed little-endian header plus payload,
//     the unit carried by every channel. Frames larger than one message are
//     split into Depth and Color chunks.
//   - Stream framing (this file): 4-byte big-endian length prefixed frames
//     used to carry wire messages and control replies over byte streams
//     such as pipes and unix sockets.
package ipc

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/pithecene-io/framelog/types"
)

// Stream frame size constants.
const (
	// MaxFrameSize is the maximum stream frame size (1 MiB), including length prefix.
	MaxFrameSize = 1024 * 1024
	// MaxFramePayloadSize is the maximum stream frame payload (MaxFrameSize - 4 bytes).
	MaxFramePayloadSize = MaxFrameSize - LengthPrefixSize
	// LengthPrefixSize is the size of the length prefix in bytes.
	LengthPrefixSize = 4
)

// FrameErrorKind classifies stream frame errors.
type FrameErrorKind int

const (
	// FrameErrorPartial indicates a truncated or incomplete frame.
	FrameErrorPartial FrameErrorKind = iota
	// FrameErrorTooLarge indicates a frame exceeding MaxFrameSize.
	FrameErrorTooLarge
	// FrameErrorDecode indicates a msgpack decoding error.
	FrameErrorDecode
)

// FrameError represents a stream frame error.
type FrameError struct {
	Kind FrameErrorKind
	Msg  string
	Err  error
}

func (e *FrameError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *FrameError) Unwrap() error {
	return e.Err
}

// IsFatal returns true if this error is fatal to the stream.
// Partial and oversized frames leave the stream unsynchronised.
func (e *FrameError) IsFatal() bool {
	return e.Kind == FrameErrorPartial || e.Kind == FrameErrorTooLarge
}

// IsFatalFrameError returns true if the error is a fatal frame error.
func IsFatalFrameError(err error) bool {
	var frameErr *FrameError
	if errors.As(err, &frameErr) {
		return frameErr.IsFatal()
	}
	return false
}

// FrameDecoder decodes length-prefixed frames from a stream.
type FrameDecoder struct {
	reader io.Reader
}

// NewFrameDecoder creates a new frame decoder.
// The reader is wrapped in a bufio.Reader to batch small reads.
func NewFrameDecoder(r io.Reader) *FrameDecoder {
	return &FrameDecoder{reader: bufio.NewReader(r)}
}

// ReadFrame reads a single frame from the stream.
//
// Errors:
//   - io.EOF: stream ended cleanly (no more frames)
//   - *FrameError with Kind=FrameErrorPartial: incomplete frame (fatal)
//   - *FrameError with Kind=FrameErrorTooLarge: frame exceeds limit (fatal)
func (d *FrameDecoder) ReadFrame() ([]byte, error) {
	var lengthBuf [LengthPrefixSize]byte
	_, err := io.ReadFull(d.reader, lengthBuf[:])
	if err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, &FrameError{
			Kind: FrameErrorPartial,
			Msg:  "failed to read length prefix",
			Err:  err,
		}
	}

	payloadSize := binary.BigEndian.Uint32(lengthBuf[:])
	if payloadSize > MaxFramePayloadSize {
		return nil, &FrameError{
			Kind: FrameErrorTooLarge,
			Msg:  fmt.Sprintf("payload size %d exceeds maximum %d", payloadSize, MaxFramePayloadSize),
		}
	}

	payload := make([]byte, payloadSize)
	_, err = io.ReadFull(d.reader, payload)
	if err != nil {
		return nil, &FrameError{
			Kind: FrameErrorPartial,
			Msg:  "failed to read payload",
			Err:  err,
		}
	}

	return payload, nil
}

// FrameEncoder writes length-prefixed frames to a stream.
type FrameEncoder struct {
	writer io.Writer
	buf    []byte
}

// NewFrameEncoder creates a new frame encoder.
func NewFrameEncoder(w io.Writer) *FrameEncoder {
	return &FrameEncoder{writer: w}
}

// WriteFrame writes payload with its length prefix in a single write.
func (e *FrameEncoder) WriteFrame(payload []byte) error {
	if len(payload) > MaxFramePayloadSize {
		return &FrameError{
			Kind: FrameErrorTooLarge,
			Msg:  fmt.Sprintf("payload size %d exceeds maximum %d", len(payload), MaxFramePayloadSize),
		}
	}
	e.buf = binary.BigEndian.AppendUint32(e.buf[:0], uint32(len(payload)))
	e.buf = append(e.buf, payload...)
	_, err := e.writer.Write(e.buf)
	return err
}

// ControlReply is the acknowledgement returned over a control socket.
type ControlReply struct {
	// Accepted is true when the command was queued on the control channel.
	Accepted bool `msgpack:"accepted"`
	// Command echoes the command that was received.
	Command types.ControlCommand `msgpack:"command"`
	// Error describes why the command was not queued.
	Error string `msgpack:"error,omitempty"`
}

// EncodeControlReply encodes a reply as a msgpack payload.
func EncodeControlReply(reply *ControlReply) ([]byte, error) {
	return msgpack.Marshal(reply)
}

// DecodeControlReply decodes a reply payload.
func DecodeControlReply(payload []byte) (*ControlReply, error) {
	var reply ControlReply
	if err := msgpack.Unmarshal(payload, &reply); err != nil {
		return nil, &FrameError{
			Kind: FrameErrorDecode,
			Msg:  "failed to decode control reply",
			Err:  err,
		}
	}
	return &reply, nil
}
