package store

import (
	"errors"
	"os"
)

// Summary describes a recording without replaying it.
type Summary struct {
	Path             string `json:"path" yaml:"path"`
	FileBytes        int64  `json:"file_bytes" yaml:"file_bytes"`
	Frames           int64  `json:"frames" yaml:"frames"`
	FirstFrameID     uint32 `json:"first_frame_id" yaml:"first_frame_id"`
	LastFrameID      uint32 `json:"last_frame_id" yaml:"last_frame_id"`
	FirstTimestampMs uint32 `json:"first_timestamp_ms" yaml:"first_timestamp_ms"`
	LastTimestampMs  uint32 `json:"last_timestamp_ms" yaml:"last_timestamp_ms"`
	DurationMs       uint32 `json:"duration_ms" yaml:"duration_ms"`
	Width            int    `json:"width" yaml:"width"`
	Height           int    `json:"height" yaml:"height"`
	DepthBytes       int64  `json:"depth_bytes" yaml:"depth_bytes"`
	ColorBytes       int64  `json:"color_bytes" yaml:"color_bytes"`
	DimensionChanges int    `json:"dimension_changes" yaml:"dimension_changes"`
	Complete         bool   `json:"complete" yaml:"complete"`
	Problem          string `json:"problem,omitempty" yaml:"problem,omitempty"`
}

// Scan reads the recording at path to its end and summarises it.
// A recording that is truncated or corrupt still yields a Summary with
// Complete=false and Problem set; the error is returned only when the
// file cannot be opened.
func Scan(path string, maxBytes int) (Summary, error) {
	sum := Summary{Path: path}
	if fi, err := os.Stat(path); err == nil {
		sum.FileBytes = fi.Size()
	}

	r, err := Open(path, maxBytes)
	if err != nil {
		return sum, err
	}
	defer r.Close()

	for {
		f, err := r.ReadFrame()
		if errors.Is(err, ErrEndOfStream) {
			sum.Complete = true
			if !r.AtEOF() {
				sum.Problem = "trailing data after end-of-stream record"
			}
			return sum, nil
		}
		if err != nil {
			sum.Problem = err.Error()
			return sum, nil
		}

		if sum.Frames == 0 {
			sum.FirstFrameID = f.FrameID
			sum.FirstTimestampMs = f.TimestampMs
			sum.Width, sum.Height = f.Width, f.Height
		} else if f.Width != sum.Width || f.Height != sum.Height {
			sum.DimensionChanges++
			sum.Width, sum.Height = f.Width, f.Height
		}
		sum.Frames++
		sum.LastFrameID = f.FrameID
		sum.LastTimestampMs = f.TimestampMs
		sum.DurationMs = f.TimestampMs - sum.FirstTimestampMs
		sum.DepthBytes += int64(len(f.Depth))
		sum.ColorBytes += int64(len(f.Color))
	}
}
