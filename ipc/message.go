package ipc

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/pithecene-io/framelog/types"
)

// Wire layout constants. All header fields are little-endian u32.
const (
	// HeaderSize is the fixed size of a wire message header in bytes.
	HeaderSize = 36 + FilenameFieldSize
	// FilenameFieldSize is the size of the NUL-padded filename field.
	FilenameFieldSize = 256
	// MaxFilenameLen is the longest filename that fits with its terminator.
	MaxFilenameLen = FilenameFieldSize - 1
	// DefaultMaxMessageSize is the default channel message size limit.
	DefaultMaxMessageSize = 8192
)

// Header field offsets.
const (
	offKind        = 0
	offWidth       = 4
	offHeight      = 8
	offChunkIndex  = 12
	offTotalChunks = 16
	offPayloadSize = 20
	offFrameID     = 24
	offTimestamp   = 28
	offCommand     = 32
	offFilename    = 36
)

// Message is one wire message: a fixed header followed by payload bytes.
// Payload length is the header's payloadSize.
type Message struct {
	Kind        types.MessageKind
	Width       uint32
	Height      uint32
	ChunkIndex  uint32
	TotalChunks uint32
	FrameID     uint32
	TimestampMs uint32
	Command     types.ControlCommand
	Filename    string
	Payload     []byte
}

// Size returns the encoded message size.
func (m *Message) Size() int {
	return HeaderSize + len(m.Payload)
}

// AppendTo appends the encoded message to dst.
// Filenames longer than MaxFilenameLen bytes are truncated.
func (m *Message) AppendTo(dst []byte) []byte {
	start := len(dst)
	dst = append(dst, make([]byte, HeaderSize)...)
	h := dst[start:]

	binary.LittleEndian.PutUint32(h[offKind:], uint32(m.Kind))
	binary.LittleEndian.PutUint32(h[offWidth:], m.Width)
	binary.LittleEndian.PutUint32(h[offHeight:], m.Height)
	binary.LittleEndian.PutUint32(h[offChunkIndex:], m.ChunkIndex)
	binary.LittleEndian.PutUint32(h[offTotalChunks:], m.TotalChunks)
	binary.LittleEndian.PutUint32(h[offPayloadSize:], uint32(len(m.Payload)))
	binary.LittleEndian.PutUint32(h[offFrameID:], m.FrameID)
	binary.LittleEndian.PutUint32(h[offTimestamp:], m.TimestampMs)
	binary.LittleEndian.PutUint32(h[offCommand:], uint32(m.Command))

	name := m.Filename
	if len(name) > MaxFilenameLen {
		name = name[:MaxFilenameLen]
	}
	copy(h[offFilename:offFilename+MaxFilenameLen], name)

	return append(dst, m.Payload...)
}

// Marshal encodes the message into a new buffer.
func (m *Message) Marshal() []byte {
	return m.AppendTo(make([]byte, 0, m.Size()))
}

// Codec encodes and decodes wire messages under a fixed message size limit.
type Codec struct {
	maxMessageSize int
}

// NewCodec creates a codec for the given maximum message size.
// The size must leave room for at least one payload byte after the header.
func NewCodec(maxMessageSize int) (*Codec, error) {
	if maxMessageSize <= HeaderSize {
		return nil, fmt.Errorf("max message size %d must exceed header size %d", maxMessageSize, HeaderSize)
	}
	return &Codec{maxMessageSize: maxMessageSize}, nil
}

// DefaultCodec returns a codec with DefaultMaxMessageSize.
func DefaultCodec() *Codec {
	return &Codec{maxMessageSize: DefaultMaxMessageSize}
}

// MaxMessageSize returns the configured message size limit.
func (c *Codec) MaxMessageSize() int {
	return c.maxMessageSize
}

// MaxPayload returns the largest payload a single message may carry.
func (c *Codec) MaxPayload() int {
	return c.maxMessageSize - HeaderSize
}

// ChunkCount returns the number of chunks needed for n payload bytes.
func (c *Codec) ChunkCount(n int) int {
	p := c.MaxPayload()
	return (n + p - 1) / p
}

// EncodeMetadata builds the Metadata message that opens a frame.
func (c *Codec) EncodeMetadata(frameID, timestampMs, width, height uint32) Message {
	return Message{
		Kind:        types.KindMetadata,
		Width:       width,
		Height:      height,
		FrameID:     frameID,
		TimestampMs: timestampMs,
	}
}

// EncodeChunks splits payload into Depth or Color chunk messages.
// Every chunk but the last carries exactly MaxPayload bytes. An empty
// payload yields no chunks. Chunk payloads alias the input slice.
func (c *Codec) EncodeChunks(kind types.MessageKind, frameID, timestampMs, width, height uint32, payload []byte) []Message {
	total := c.ChunkCount(len(payload))
	if total == 0 {
		return nil
	}

	p := c.MaxPayload()
	msgs := make([]Message, 0, total)
	for i := range total {
		start := i * p
		end := min(start+p, len(payload))
		msgs = append(msgs, Message{
			Kind:        kind,
			Width:       width,
			Height:      height,
			ChunkIndex:  uint32(i),
			TotalChunks: uint32(total),
			FrameID:     frameID,
			TimestampMs: timestampMs,
			Payload:     payload[start:end],
		})
	}
	return msgs
}

// EncodeFrame encodes a whole frame as Metadata, depth chunks, then color chunks.
func (c *Codec) EncodeFrame(f *types.Frame) []Message {
	w, h := uint32(f.Width), uint32(f.Height)
	depth := c.EncodeChunks(types.KindDepth, f.FrameID, f.TimestampMs, w, h, f.Depth)
	color := c.EncodeChunks(types.KindColor, f.FrameID, f.TimestampMs, w, h, f.Color)

	msgs := make([]Message, 0, 1+len(depth)+len(color))
	msgs = append(msgs, c.EncodeMetadata(f.FrameID, f.TimestampMs, w, h))
	msgs = append(msgs, depth...)
	return append(msgs, color...)
}

// EncodeControl builds a Control message.
func (c *Codec) EncodeControl(cmd types.ControlCommand, filename string) Message {
	return Message{
		Kind:     types.KindControl,
		Command:  cmd,
		Filename: filename,
	}
}

// Decode parses and validates a wire message.
// The returned payload aliases buf.
func (c *Codec) Decode(buf []byte) (Message, error) {
	if len(buf) < HeaderSize {
		return Message{}, codecErrorf(CodecErrorTruncated, "message length %d shorter than header %d", len(buf), HeaderSize)
	}
	if len(buf) > c.maxMessageSize {
		return Message{}, codecErrorf(CodecErrorTooLarge, "message length %d exceeds maximum %d", len(buf), c.maxMessageSize)
	}

	m := Message{
		Kind:        types.MessageKind(binary.LittleEndian.Uint32(buf[offKind:])),
		Width:       binary.LittleEndian.Uint32(buf[offWidth:]),
		Height:      binary.LittleEndian.Uint32(buf[offHeight:]),
		ChunkIndex:  binary.LittleEndian.Uint32(buf[offChunkIndex:]),
		TotalChunks: binary.LittleEndian.Uint32(buf[offTotalChunks:]),
		FrameID:     binary.LittleEndian.Uint32(buf[offFrameID:]),
		TimestampMs: binary.LittleEndian.Uint32(buf[offTimestamp:]),
		Command:     types.ControlCommand(binary.LittleEndian.Uint32(buf[offCommand:])),
	}
	payloadSize := binary.LittleEndian.Uint32(buf[offPayloadSize:])

	if !m.Kind.Valid() {
		return Message{}, codecErrorf(CodecErrorMalformed, "unknown message kind %d", uint32(m.Kind))
	}
	if uint64(payloadSize) > uint64(c.MaxPayload()) {
		return Message{}, codecErrorf(CodecErrorTooLarge, "payload size %d exceeds maximum %d", payloadSize, c.MaxPayload())
	}
	have := len(buf) - HeaderSize
	if uint64(have) < uint64(payloadSize) {
		return Message{}, codecErrorf(CodecErrorTruncated, "payload has %d bytes, header declares %d", have, payloadSize)
	}
	if uint64(have) > uint64(payloadSize) {
		return Message{}, codecErrorf(CodecErrorMalformed, "%d trailing bytes after payload", uint64(have)-uint64(payloadSize))
	}

	switch m.Kind {
	case types.KindMetadata:
		if payloadSize != 0 || m.TotalChunks != 0 {
			return Message{}, codecErrorf(CodecErrorMalformed, "metadata must have no payload and no chunks")
		}
	case types.KindDepth, types.KindColor:
		if m.TotalChunks == 0 || m.ChunkIndex >= m.TotalChunks {
			return Message{}, codecErrorf(CodecErrorMalformed, "chunk index %d out of range for %d chunks", m.ChunkIndex, m.TotalChunks)
		}
	case types.KindControl:
		field := buf[offFilename : offFilename+FilenameFieldSize]
		if i := bytes.IndexByte(field, 0); i >= 0 {
			field = field[:i]
		} else {
			field = field[:MaxFilenameLen]
		}
		m.Filename = string(field)
	}

	m.Payload = buf[HeaderSize : HeaderSize+int(payloadSize)]
	return m, nil
}

// WriteChunk copies a chunk's payload into dst at chunkIndex*maxPayload.
// This is the only place chunk offsets are computed. A chunk whose
// placement would leave dst is rejected and dst is left untouched.
func WriteChunk(dst []byte, msg Message, maxPayload int) error {
	if maxPayload <= 0 {
		return codecErrorf(CodecErrorBounds, "invalid max payload %d", maxPayload)
	}
	if msg.TotalChunks == 0 || msg.ChunkIndex >= msg.TotalChunks {
		return codecErrorf(CodecErrorBounds, "chunk index %d out of range for %d chunks", msg.ChunkIndex, msg.TotalChunks)
	}

	offset := uint64(msg.ChunkIndex) * uint64(maxPayload)
	end := offset + uint64(len(msg.Payload))
	if end > uint64(len(dst)) {
		return codecErrorf(CodecErrorBounds, "chunk %d (%d bytes at offset %d) exceeds buffer of %d bytes",
			msg.ChunkIndex, len(msg.Payload), offset, len(dst))
	}

	copy(dst[offset:end], msg.Payload)
	return nil
}
