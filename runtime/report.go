package runtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/pithecene-io/framelog/assembly"
	"github.com/pithecene-io/framelog/channel"
	"github.com/pithecene-io/framelog/metrics"
	"github.com/pithecene-io/framelog/types"
)

// RunReport is the structured JSON report written by `framelog run --report`.
type RunReport struct {
	SessionID  string `json:"session_id"`
	Version    string `json:"version"`
	StartedAt  string `json:"started_at"`
	DurationMs int64  `json:"duration_ms"`
	ExitCode   int    `json:"exit_code"`

	Policy     *ReportPolicy         `json:"policy"`
	State      LoggerState           `json:"state"`
	Sessions   []types.SessionResult `json:"sessions"`
	Channels   []channel.Stats       `json:"channels"`
	Reassembly assembly.Stats        `json:"reassembly"`
	Slot       assembly.SlotStats    `json:"slot"`
	LastFrame  *ReportFrame          `json:"last_frame,omitempty"`
	Metrics    *metrics.Snapshot     `json:"metrics"`
}

// ReportFrame describes the frame left in the consumer slot at stop.
type ReportFrame struct {
	FrameID     uint32 `json:"frame_id"`
	TimestampMs uint32 `json:"timestamp_ms"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
}

// ReportPolicy holds producer send policy stats in the report.
type ReportPolicy struct {
	Name            string `json:"name"`
	FramesSent      int64  `json:"frames_sent"`
	FramesDropped   int64  `json:"frames_dropped"`
	MessagesSent    int64  `json:"messages_sent"`
	MessagesDropped int64  `json:"messages_dropped"`
	Errors          int64  `json:"errors"`
}

// BuildRunReport composes a RunReport from a stopped pipeline.
// The exitCode is the process exit code that will be returned to the caller.
func BuildRunReport(p *Pipeline, snap metrics.Snapshot, exitCode int) *RunReport {
	ps := p.producer.Stats()
	sessions := p.Sessions()
	if sessions == nil {
		sessions = []types.SessionResult{}
	}
	var last *ReportFrame
	if f, _ := p.slot.Peek(); f.Width > 0 {
		last = &ReportFrame{FrameID: f.FrameID, TimestampMs: f.TimestampMs, Width: f.Width, Height: f.Height}
	}
	return &RunReport{
		SessionID:  p.cfg.Session.SessionID,
		Version:    types.Version,
		StartedAt:  p.startedAt.UTC().Format(time.RFC3339Nano),
		DurationMs: p.cfg.Clock().Sub(p.startedAt).Milliseconds(),
		ExitCode:   exitCode,
		Policy: &ReportPolicy{
			Name:            string(p.producer.PolicyName()),
			FramesSent:      ps.FramesSent,
			FramesDropped:   ps.FramesDropped,
			MessagesSent:    ps.MessagesSent,
			MessagesDropped: ps.MessagesDropped,
			Errors:          ps.Errors,
		},
		State:      p.State(),
		Sessions:   sessions,
		Channels:   p.ChannelStats(),
		Reassembly: p.ReceiverStats(),
		Slot:       p.slot.Stats(),
		LastFrame:  last,
		Metrics:    &snap,
	}
}

// WriteRunReport writes the report as JSON to the specified path.
// If path is "-", writes to stderr.
func WriteRunReport(report *RunReport, path string) error {
	if path == "" {
		return errors.New("report path must not be empty")
	}

	if path == "-" {
		if err := writeRunReportTo(report, os.Stderr); err != nil {
			return fmt.Errorf("failed to write report to stderr: %w", err)
		}
		return nil
	}

	data, err := marshalReport(report)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write report to %s: %w", path, err)
	}
	return nil
}

// writeRunReportTo writes report JSON to any writer (for testing).
func writeRunReportTo(report *RunReport, w io.Writer) error {
	data, err := marshalReport(report)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

func marshalReport(report *RunReport) ([]byte, error) {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal report: %w", err)
	}
	return append(data, '\n'), nil
}
