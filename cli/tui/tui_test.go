package tui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/pithecene-io/framelog/lode"
	"github.com/pithecene-io/framelog/store"
)

func TestIsTUISupported(t *testing.T) {
	tests := []struct {
		viewType string
		want     bool
	}{
		{ViewInspectRecording, true},
		{ViewSessionStats, true},

		{"sessions", false},
		{"ctl", false},
		{"version", false},
		{"run", false},
		{"unknown", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.viewType, func(t *testing.T) {
			if got := IsTUISupported(tt.viewType); got != tt.want {
				t.Errorf("IsTUISupported(%q) = %v, want %v", tt.viewType, got, tt.want)
			}
		})
	}
}

func TestSupportedTUIViews(t *testing.T) {
	views := SupportedTUIViews()
	if len(views) != 2 {
		t.Errorf("SupportedTUIViews() returned %d views, expected 2", len(views))
	}
	for _, v := range views {
		if !IsTUISupported(v) {
			t.Errorf("SupportedTUIViews() returned %q but IsTUISupported returns false", v)
		}
	}
}

func TestRun_UnsupportedViewType(t *testing.T) {
	if err := Run("sessions", nil); err == nil {
		t.Error("Expected error for unsupported view type")
	}
}

func TestRecordingStatus(t *testing.T) {
	tests := []struct {
		name string
		sum  store.Summary
		want string
	}{
		{"complete", store.Summary{Complete: true, Frames: 3}, "complete"},
		{"empty file", store.Summary{Problem: "read at offset 0: recording truncated"}, "open"},
		{"truncated", store.Summary{Frames: 2, FileBytes: 90, Problem: "read x at offset 60: recording truncated"}, "incomplete"},
		{"corrupt", store.Summary{FileBytes: 28, Problem: "read x at offset 0: recording corrupt"}, "corrupt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RecordingStatus(&tt.sum); got != tt.want {
				t.Errorf("RecordingStatus = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRenderStatic_Recording(t *testing.T) {
	sum := &store.Summary{
		Path: "walk.bin", Frames: 5, FirstFrameID: 3, LastFrameID: 7,
		Width: 64, Height: 48, Complete: true,
	}
	out := RenderStatic(ViewInspectRecording, sum)
	for _, want := range []string{"walk.bin", "complete", "3 .. 7", "64x48"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRenderStatic_SessionStats(t *testing.T) {
	st := &lode.SessionStats{Total: 4, Recordings: 2, Playbacks: 2, Complete: 3, Failed: 1, Frames: 120}
	out := RenderStatic(ViewSessionStats, st)
	for _, want := range []string{"Session Statistics", "Recordings", "120"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRenderStatic_WrongPayload(t *testing.T) {
	out := RenderStatic(ViewInspectRecording, "not a summary")
	if !strings.Contains(out, "Invalid data type") {
		t.Errorf("expected invalid data message, got:\n%s", out)
	}
}

func TestModel_QuitKey(t *testing.T) {
	m := NewModel(ViewInspectRecording, &store.Summary{})
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if next.(Model).View() != "" {
		t.Error("quitting model should render nothing")
	}
}
