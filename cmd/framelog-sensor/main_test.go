package main

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/pithecene-io/framelog/ipc"
	"github.com/pithecene-io/framelog/log"
	"github.com/pithecene-io/framelog/types"
)

func validChoice() sensorChoice {
	return sensorChoice{width: 16, height: 8, fps: 500, frames: 3, policy: "strict"}
}

func TestValidateSensorChoice(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*sensorChoice)
		wantErr bool
	}{
		{"valid", func(*sensorChoice) {}, false},
		{"empty policy means strict", func(c *sensorChoice) { c.policy = "" }, false},
		{"drop policy", func(c *sensorChoice) { c.policy = "drop" }, false},
		{"zero width", func(c *sensorChoice) { c.width = 0 }, true},
		{"height too large", func(c *sensorChoice) { c.height = 70000 }, true},
		{"zero fps", func(c *sensorChoice) { c.fps = 0 }, true},
		{"negative frames", func(c *sensorChoice) { c.frames = -1 }, true},
		{"message size within header", func(c *sensorChoice) { c.maxMessageSize = ipc.HeaderSize }, true},
		{"unknown policy", func(c *sensorChoice) { c.policy = "buffered" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validChoice()
			tt.mutate(&c)
			if err := validateSensorChoice(c); (err != nil) != tt.wantErr {
				t.Errorf("validateSensorChoice = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRunSensor_WritesFramedMessages(t *testing.T) {
	var out bytes.Buffer
	stats, err := runSensor(t.Context(), validChoice(), &out, log.NewNop())
	if err != nil {
		t.Fatalf("runSensor failed: %v", err)
	}
	if stats.FramesSent != 3 {
		t.Errorf("FramesSent = %d, want 3", stats.FramesSent)
	}

	codec := ipc.DefaultCodec()
	dec := ipc.NewFrameDecoder(&out)
	var metadata, lastFrame uint32
	for {
		payload, err := dec.ReadFrame()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("ReadFrame failed: %v", err)
		}
		msg, err := codec.Decode(payload)
		if err != nil {
			t.Fatalf("Decode failed: %v", err)
		}
		if msg.Kind == types.KindMetadata {
			metadata++
			lastFrame = msg.FrameID
			if msg.Width != 16 || msg.Height != 8 {
				t.Errorf("metadata dims = %dx%d", msg.Width, msg.Height)
			}
		}
	}
	if metadata != 3 || lastFrame != 3 {
		t.Errorf("metadata messages = %d (last frame %d), want 3", metadata, lastFrame)
	}
}

type brokenWriter struct{}

func (brokenWriter) Write([]byte) (int, error) { return 0, errors.New("broken pipe") }

func TestRunSensor_OutputFailure(t *testing.T) {
	c := validChoice()
	c.frames = 0
	if _, err := runSensor(t.Context(), c, brokenWriter{}, log.NewNop()); err == nil {
		t.Fatal("expected error from broken output")
	}
}
