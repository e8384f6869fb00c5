package cmd

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"github.com/pithecene-io/framelog/cli/config"
	"github.com/pithecene-io/framelog/runtime"
	"github.com/pithecene-io/framelog/types"
)

func TestReadOnlyFlags_IncludesTUI(t *testing.T) {
	hasTUI := false
	for _, f := range ReadOnlyFlags() {
		if f.Names()[0] == "tui" {
			hasTUI = true
			break
		}
	}
	if !hasTUI {
		t.Error("ReadOnlyFlags should include --tui flag for explicit error handling")
	}
}

func TestIsStderrTTY(_ *testing.T) {
	// Depends on the environment; must not panic.
	_ = isStderrTTY()
}

func TestParseCtlArgs(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		wantCmd  types.ControlCommand
		wantFile string
		wantErr  bool
	}{
		{"start record", []string{"start-record", "a.bin"}, types.CommandStartRecord, "a.bin", false},
		{"snake case", []string{"start_playback", "b.bin"}, types.CommandStartPlayback, "b.bin", false},
		{"stop record", []string{"stop-record"}, types.CommandStopRecord, "", false},
		{"short play", []string{"play", "c.bin"}, types.CommandStartPlayback, "c.bin", false},
		{"missing filename", []string{"start-record"}, 0, "", true},
		{"unexpected filename", []string{"stop-playback", "x.bin"}, 0, "", true},
		{"extra argument", []string{"record", "a.bin", "b.bin"}, 0, "", true},
		{"unknown command", []string{"pause"}, 0, "", true},
		{"filename too long", []string{"record", strings.Repeat("f", 256)}, 0, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, file, err := parseCtlArgs(tt.args)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseCtlArgs err = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && (cmd != tt.wantCmd || file != tt.wantFile) {
				t.Errorf("parseCtlArgs = %s %q, want %s %q", cmd, file, tt.wantCmd, tt.wantFile)
			}
		})
	}
}

func TestParseControlLine(t *testing.T) {
	tests := []struct {
		name       string
		line       string
		wantOK     bool
		wantErr    bool
		wantAction lineAction
		wantCmd    types.ControlCommand
		wantFile   string
	}{
		{"blank", "   ", false, false, 0, 0, ""},
		{"comment", "# note", false, false, 0, 0, ""},
		{"status", "status", true, false, actionStatus, 0, ""},
		{"quit uppercase", "QUIT", true, false, actionQuit, 0, ""},
		{"exit", "exit", true, false, actionQuit, 0, ""},
		{"help", "?", true, false, actionHelp, 0, ""},
		{"record", "record walk.bin", true, false, actionCommand, types.CommandStartRecord, "walk.bin"},
		{"filename with spaces", "play  my walk.bin ", true, false, actionCommand, types.CommandStartPlayback, "my walk.bin"},
		{"stop play", "stop-play", true, false, actionCommand, types.CommandStopPlayback, ""},
		{"record without file", "record", true, true, 0, 0, ""},
		{"stop with file", "stop-record x", true, true, 0, 0, ""},
		{"unknown", "rewind", true, true, 0, 0, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cl, ok, err := parseControlLine(tt.line)
			if ok != tt.wantOK {
				t.Fatalf("ok = %t, want %t", ok, tt.wantOK)
			}
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if !ok || tt.wantErr {
				return
			}
			if cl.action != tt.wantAction || cl.cmd != tt.wantCmd || cl.filename != tt.wantFile {
				t.Errorf("parsed = %+v", cl)
			}
		})
	}
}

// fakeTarget records control calls.
type fakeTarget struct {
	calls []string
	err   error
	state runtime.LoggerState
}

func (f *fakeTarget) Control(_ context.Context, cmd types.ControlCommand, filename string) error {
	f.calls = append(f.calls, cmd.String()+" "+filename)
	return f.err
}

func (f *fakeTarget) State() runtime.LoggerState { return f.state }

func TestRunControlLines(t *testing.T) {
	target := &fakeTarget{state: runtime.LoggerState{
		Mode: types.ModeRecording, Filename: "walk.bin", RecordedFrames: 12,
	}}
	in := strings.NewReader("record walk.bin\nbogus\n\nstatus\nstop-record\nquit\nrecord never.bin\n")
	var out bytes.Buffer

	err := runControlLines(t.Context(), in, target, &out)
	if !errors.Is(err, errQuit) {
		t.Fatalf("runControlLines = %v, want errQuit", err)
	}
	if len(target.calls) != 2 {
		t.Fatalf("calls = %v, want 2 before quit", target.calls)
	}

	got := out.String()
	for _, want := range []string{
		"ok: start_record walk.bin",
		`error: unknown control command "bogus"`,
		"mode=recording passthrough=false file=walk.bin recorded=12 played=0",
		"ok: stop_record",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
}

func TestRunControlLines_EOFAndRejection(t *testing.T) {
	target := &fakeTarget{err: errors.New("control channel full")}
	var out bytes.Buffer
	if err := runControlLines(t.Context(), strings.NewReader("record a.bin\n"), target, &out); err != nil {
		t.Fatalf("runControlLines = %v, want nil at EOF", err)
	}
	if !strings.Contains(out.String(), "error: control channel full") {
		t.Errorf("output = %q", out.String())
	}
}

func TestRetriesOr(t *testing.T) {
	zero, five := 0, 5
	tests := []struct {
		name string
		v    *int
		want int
	}{
		{"nil uses default", nil, 3},
		{"explicit zero", &zero, 0},
		{"explicit value", &five, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := retriesOr(tt.v, 3); got != tt.want {
				t.Errorf("retriesOr = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestArchiveChoice_BackendName(t *testing.T) {
	tests := []struct {
		choice archiveChoice
		want   string
	}{
		{archiveChoice{}, "none"},
		{archiveChoice{backend: "s3"}, "none"},
		{archiveChoice{path: "/tmp/a"}, "fs"},
		{archiveChoice{backend: "s3", path: "bucket/prefix"}, "s3"},
	}
	for _, tt := range tests {
		if got := tt.choice.backendName(); got != tt.want {
			t.Errorf("backendName(%+v) = %s, want %s", tt.choice, got, tt.want)
		}
	}
}

func TestBuildArchiver_Errors(t *testing.T) {
	if _, err := buildArchiver(t.Context(), archiveChoice{}); err == nil {
		t.Error("expected error without a path")
	}
	if _, err := buildArchiver(t.Context(), archiveChoice{backend: "gcs", path: "x"}); err == nil {
		t.Error("expected error for unknown backend")
	}
	a, err := buildArchiver(t.Context(), archiveChoice{path: t.TempDir()})
	if err != nil {
		t.Fatalf("fs archiver: %v", err)
	}
	_ = a.Close()
}

func TestBuildAdapter(t *testing.T) {
	mr := miniredis.RunT(t)

	tests := []struct {
		name    string
		cfg     config.AdapterConfig
		wantNil bool
		wantErr bool
	}{
		{"none", config.AdapterConfig{}, true, false},
		{"redis", config.AdapterConfig{Type: "redis", URL: "redis://" + mr.Addr()}, false, false},
		{"redis bad url", config.AdapterConfig{Type: "redis", URL: "://nope"}, false, true},
		{"webhook", config.AdapterConfig{Type: "webhook", URL: "http://127.0.0.1:1/hook"}, false, false},
		{"unknown", config.AdapterConfig{Type: "kafka", URL: "x"}, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ad, err := buildAdapter(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("buildAdapter err = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if (ad == nil) != tt.wantNil {
				t.Fatalf("adapter = %v, wantNil %t", ad, tt.wantNil)
			}
			if ad != nil {
				_ = ad.Close()
			}
		})
	}
}

func TestSessionOutcomeHelpers(t *testing.T) {
	rec := types.SessionResult{Kind: types.SessionRecording, Outcome: types.OutcomeComplete}
	stopped := types.SessionResult{Kind: types.SessionPlayback, Outcome: types.OutcomeStopped}
	failed := types.SessionResult{Kind: types.SessionRecording, Outcome: types.OutcomeFailed}
	incomplete := types.SessionResult{Kind: types.SessionPlayback, Outcome: types.OutcomeIncomplete}

	if sessionsFailed([]types.SessionResult{rec, stopped}) {
		t.Error("complete and stopped sessions are not failures")
	}
	if !sessionsFailed([]types.SessionResult{rec, failed}) {
		t.Error("failed session not detected")
	}
	if !sessionsFailed([]types.SessionResult{incomplete}) {
		t.Error("incomplete session not detected")
	}

	if playbackEnded([]types.SessionResult{rec}) {
		t.Error("recording alone does not end playback")
	}
	if !playbackEnded([]types.SessionResult{rec, stopped}) {
		t.Error("playback session not detected")
	}
}
