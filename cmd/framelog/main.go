// Package main provides the framelog CLI entrypoint.
//
// `run` owns the pipeline. `ctl` drives a running pipeline over its control
// socket. `inspect`, `sessions` and `version` are read-only.
//
// Usage:
//
//	framelog <command> [subcommand] [options]
//
// Exit codes for `run`:
//   - 0: every session completed or was stopped
//   - 1: startup or shutdown error
//   - 2: a session ended incomplete or failed
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/framelog/cli/cmd"
	"github.com/pithecene-io/framelog/types"
)

// Commit is set via ldflags at build time.
var commit = "unknown"

func main() {
	if err := newApp().Run(os.Args); err != nil {
		// ExitErrHandler already exited for cli.ExitCoder errors.
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:           "framelog",
		Usage:          "Sensor frame logger, recorder and replayer",
		Version:        fmt.Sprintf("%s (commit: %s)", types.Version, commit),
		ExitErrHandler: exitErrHandler,
		Commands: []*cli.Command{
			cmd.RunCommand(),
			cmd.CtlCommand(),
			cmd.InspectCommand(),
			cmd.SessionsCommand(),
			cmd.VersionCommand(commit),
		},
	}
}

// exitErrHandler preserves exit codes from cli.Exit.
func exitErrHandler(_ *cli.Context, err error) {
	if err == nil {
		return
	}
	code, msg := exitStatus(err)
	if msg != "" {
		fmt.Fprintln(os.Stderr, msg)
	}
	os.Exit(code)
}

// exitStatus maps err to a process exit code and the message worth
// printing. cli.Exit("", N) renders as "exit status N", which is suppressed.
func exitStatus(err error) (int, string) {
	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		code := exitCoder.ExitCode()
		msg := exitCoder.Error()
		if msg == fmt.Sprintf("exit status %d", code) {
			msg = ""
		}
		return code, msg
	}
	return 1, fmt.Sprintf("Error: %v", err)
}
