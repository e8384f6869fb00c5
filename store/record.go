// Package store reads and writes recorded frame files.
//
// A recording is a sequence of records, each a fixed 28-byte little-endian
// header followed by the depth bytes and then the color bytes:
//
//	off  size  field
//	0    4     frameId
//	4    4     timestampMs
//	8    2     frameType (1 = normal frame, 0xFF = end of stream)
//	10   2     width
//	12   2     height
//	14   2     padding (zero)
//	16   4     depthByteSize
//	20   4     colorByteSize
//	24   4     reserved (zero)
//
// A closed recording ends with exactly one end-of-stream record whose other
// fields are all zero. A recording without it was not closed cleanly.
package store

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/pithecene-io/framelog/types"
)

// HeaderSize is the size of a record header in bytes.
const HeaderSize = 28

// DefaultMaxFrameBytes bounds each stream of a single record. It holds the
// color stream of a 4096x4096 frame, the largest frame the reassembler
// accepts by default.
const DefaultMaxFrameBytes = 4096 * 4096 * types.ColorBytesPerPixel

// FrameType discriminates records.
type FrameType uint16

const (
	// FrameNormal is a depth+color frame.
	FrameNormal FrameType = 1
	// FrameEndOfStream terminates a recording.
	FrameEndOfStream FrameType = 0xFF
)

// RecordHeader is a decoded record header.
type RecordHeader struct {
	FrameID     uint32
	TimestampMs uint32
	Type        FrameType
	Width       uint16
	Height      uint16
	Padding     uint16
	DepthSize   uint32
	ColorSize   uint32
	Reserved    uint32
}

// MarshalTo encodes the header into b, which must hold HeaderSize bytes.
func (h *RecordHeader) MarshalTo(b []byte) {
	_ = b[HeaderSize-1]
	binary.LittleEndian.PutUint32(b[0:], h.FrameID)
	binary.LittleEndian.PutUint32(b[4:], h.TimestampMs)
	binary.LittleEndian.PutUint16(b[8:], uint16(h.Type))
	binary.LittleEndian.PutUint16(b[10:], h.Width)
	binary.LittleEndian.PutUint16(b[12:], h.Height)
	binary.LittleEndian.PutUint16(b[14:], h.Padding)
	binary.LittleEndian.PutUint32(b[16:], h.DepthSize)
	binary.LittleEndian.PutUint32(b[20:], h.ColorSize)
	binary.LittleEndian.PutUint32(b[24:], h.Reserved)
}

// ParseHeader decodes a header from b, which must hold HeaderSize bytes.
func ParseHeader(b []byte) RecordHeader {
	_ = b[HeaderSize-1]
	return RecordHeader{
		FrameID:     binary.LittleEndian.Uint32(b[0:]),
		TimestampMs: binary.LittleEndian.Uint32(b[4:]),
		Type:        FrameType(binary.LittleEndian.Uint16(b[8:])),
		Width:       binary.LittleEndian.Uint16(b[10:]),
		Height:      binary.LittleEndian.Uint16(b[12:]),
		Padding:     binary.LittleEndian.Uint16(b[14:]),
		DepthSize:   binary.LittleEndian.Uint32(b[16:]),
		ColorSize:   binary.LittleEndian.Uint32(b[20:]),
		Reserved:    binary.LittleEndian.Uint32(b[24:]),
	}
}

// headerFor builds the normal-frame header for f.
func headerFor(f *types.Frame) (RecordHeader, error) {
	if err := f.Validate(); err != nil {
		return RecordHeader{}, err
	}
	if f.Width > math.MaxUint16 || f.Height > math.MaxUint16 {
		return RecordHeader{}, fmt.Errorf("frame dimensions %dx%d exceed %d", f.Width, f.Height, math.MaxUint16)
	}
	return RecordHeader{
		FrameID:     f.FrameID,
		TimestampMs: f.TimestampMs,
		Type:        FrameNormal,
		Width:       uint16(f.Width),
		Height:      uint16(f.Height),
		DepthSize:   uint32(len(f.Depth)),
		ColorSize:   uint32(len(f.Color)),
	}, nil
}

// validate checks a normal-frame header against maxBytes per stream.
func (h *RecordHeader) validate(maxBytes uint64) error {
	switch h.Type {
	case FrameNormal:
	case FrameEndOfStream:
		if *h != (RecordHeader{Type: FrameEndOfStream}) {
			return fmt.Errorf("end-of-stream record has non-zero fields")
		}
		return nil
	default:
		return fmt.Errorf("unknown frame type 0x%x", uint16(h.Type))
	}

	if uint64(h.DepthSize) > maxBytes || uint64(h.ColorSize) > maxBytes {
		return fmt.Errorf("stream sizes %d/%d exceed limit %d", h.DepthSize, h.ColorSize, maxBytes)
	}
	pixels := uint64(h.Width) * uint64(h.Height)
	if pixels == 0 {
		return fmt.Errorf("empty frame dimensions %dx%d", h.Width, h.Height)
	}
	if uint64(h.DepthSize) != pixels*types.DepthBytesPerPixel || uint64(h.ColorSize) != pixels*types.ColorBytesPerPixel {
		return fmt.Errorf("stream sizes %d/%d do not match %dx%d", h.DepthSize, h.ColorSize, h.Width, h.Height)
	}
	return nil
}
