package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/pithecene-io/framelog/ipc"
	"github.com/pithecene-io/framelog/runtime"
	"github.com/pithecene-io/framelog/types"
)

// errQuit is returned by runControlLines when the operator asks to quit.
var errQuit = errors.New("quit requested")

// controlTarget is the part of a pipeline the control reader drives.
type controlTarget interface {
	Control(ctx context.Context, cmd types.ControlCommand, filename string) error
	State() runtime.LoggerState
}

type lineAction int

const (
	actionCommand lineAction = iota
	actionStatus
	actionQuit
	actionHelp
)

// controlLine is one parsed operator line.
type controlLine struct {
	action   lineAction
	cmd      types.ControlCommand
	filename string
}

const controlHelp = `commands:
  record FILE     start recording to FILE
  stop-record     stop recording
  play FILE       replay FILE in place of live input
  stop-play       stop playback
  status          show logger state
  quit            shut down`

// parseControlLine parses one operator line. ok is false for blank lines
// and # comments. Filenames may contain spaces.
func parseControlLine(line string) (cl controlLine, ok bool, err error) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return controlLine{}, false, nil
	}

	word, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)
	word = strings.ToLower(word)

	switch word {
	case "status":
		return controlLine{action: actionStatus}, true, nil
	case "quit", "exit":
		return controlLine{action: actionQuit}, true, nil
	case "help", "?":
		return controlLine{action: actionHelp}, true, nil
	}

	cmd, err := types.ParseControlCommand(word)
	if err != nil {
		return controlLine{}, true, err
	}
	switch {
	case cmd.NeedsFilename() && rest == "":
		return controlLine{}, true, fmt.Errorf("%s requires a filename", cmd)
	case !cmd.NeedsFilename() && rest != "":
		return controlLine{}, true, fmt.Errorf("%s takes no filename", cmd)
	case len(rest) > ipc.MaxFilenameLen:
		return controlLine{}, true, fmt.Errorf("filename longer than %d bytes", ipc.MaxFilenameLen)
	}
	return controlLine{action: actionCommand, cmd: cmd, filename: rest}, true, nil
}

// runControlLines reads operator lines from r until EOF, quit or ctx done.
// Returns errQuit on quit and nil on EOF or cancellation. Parse errors are
// reported to out and reading continues.
func runControlLines(ctx context.Context, r io.Reader, target controlTarget, out io.Writer) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}

		cl, ok, err := parseControlLine(scanner.Text())
		if !ok {
			continue
		}
		if err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
			continue
		}

		switch cl.action {
		case actionQuit:
			return errQuit
		case actionHelp:
			fmt.Fprintln(out, controlHelp)
		case actionStatus:
			writeState(out, target.State())
		case actionCommand:
			if err := target.Control(ctx, cl.cmd, cl.filename); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				fmt.Fprintf(out, "error: %v\n", err)
				continue
			}
			fmt.Fprintf(out, "ok: %s %s\n", cl.cmd, cl.filename)
		}
	}
	return scanner.Err()
}

func writeState(out io.Writer, st runtime.LoggerState) {
	fmt.Fprintf(out, "mode=%s passthrough=%t", st.Mode, st.PassThrough)
	if st.Filename != "" {
		fmt.Fprintf(out, " file=%s", st.Filename)
	}
	fmt.Fprintf(out, " recorded=%d played=%d\n", st.RecordedFrames, st.PlayedFrames)
}
