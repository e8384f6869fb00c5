// Package types defines core domain types for the framelog pipeline.
//
//nolint:revive // types is a common Go package naming convention
package types

import (
	"encoding/binary"
	"fmt"
)

// Bytes per pixel for each stream.
const (
	// DepthBytesPerPixel is the size of one little-endian int16 depth sample.
	DepthBytesPerPixel = 2
	// ColorBytesPerPixel is the size of one RGB color sample.
	ColorBytesPerPixel = 3
)

// Frame is one depth+color capture.
// Depth holds width*height little-endian int16 samples, Color holds
// width*height RGB triples.
type Frame struct {
	FrameID     uint32 `json:"frame_id" yaml:"frame_id"`
	TimestampMs uint32 `json:"timestamp_ms" yaml:"timestamp_ms"`
	Width       int    `json:"width" yaml:"width"`
	Height      int    `json:"height" yaml:"height"`
	Depth       []byte `json:"-" yaml:"-"`
	Color       []byte `json:"-" yaml:"-"`
}

// Pixels returns width*height.
func (f *Frame) Pixels() int {
	return f.Width * f.Height
}

// DepthSize returns the expected depth byte size for the frame dimensions.
func (f *Frame) DepthSize() int {
	return f.Pixels() * DepthBytesPerPixel
}

// ColorSize returns the expected color byte size for the frame dimensions.
func (f *Frame) ColorSize() int {
	return f.Pixels() * ColorBytesPerPixel
}

// Validate checks that the stream sizes match the dimensions.
func (f *Frame) Validate() error {
	if f.Width <= 0 || f.Height <= 0 {
		return fmt.Errorf("invalid frame dimensions %dx%d", f.Width, f.Height)
	}
	if len(f.Depth) != f.DepthSize() {
		return fmt.Errorf("depth size %d does not match %dx%d (want %d)", len(f.Depth), f.Width, f.Height, f.DepthSize())
	}
	if len(f.Color) != f.ColorSize() {
		return fmt.Errorf("color size %d does not match %dx%d (want %d)", len(f.Color), f.Width, f.Height, f.ColorSize())
	}
	return nil
}

// Clone returns a deep copy of the frame.
func (f *Frame) Clone() Frame {
	out := *f
	out.Depth = append([]byte(nil), f.Depth...)
	out.Color = append([]byte(nil), f.Color...)
	return out
}

// DepthSamples decodes the depth stream into int16 samples.
func (f *Frame) DepthSamples() []int16 {
	n := len(f.Depth) / DepthBytesPerPixel
	out := make([]int16, n)
	for i := range n {
		out[i] = int16(binary.LittleEndian.Uint16(f.Depth[i*2:]))
	}
	return out
}

// EncodeDepth appends depth samples to dst as little-endian int16 bytes.
func EncodeDepth(dst []byte, samples []int16) []byte {
	for _, s := range samples {
		dst = binary.LittleEndian.AppendUint16(dst, uint16(s))
	}
	return dst
}
