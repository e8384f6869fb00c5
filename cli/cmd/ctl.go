package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/framelog/channel"
	"github.com/pithecene-io/framelog/cli/render"
	"github.com/pithecene-io/framelog/ipc"
	"github.com/pithecene-io/framelog/types"
)

// CtlResponse is the ctl command payload.
type CtlResponse struct {
	Command  string `json:"command" yaml:"command"`
	Filename string `json:"filename,omitempty" yaml:"filename,omitempty"`
	Accepted bool   `json:"accepted" yaml:"accepted"`
	Error    string `json:"error,omitempty" yaml:"error,omitempty"`
}

// CtlCommand returns the ctl command, which sends one control command to a
// running `framelog run` through its control socket.
func CtlCommand() *cli.Command {
	return &cli.Command{
		Name:      "ctl",
		Usage:     "Send a control command to a running framelog",
		ArgsUsage: "<start-record FILE | stop-record | start-playback FILE | stop-playback>",
		Flags: append(ReadOnlyFlags(),
			&cli.StringFlag{
				Name:     "socket",
				Aliases:  []string{"s"},
				Usage:    "Control socket path of the running framelog",
				EnvVars:  []string{"FRAMELOG_CONTROL_SOCKET"},
				Required: true,
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "Time to wait for the reply",
				Value: 3 * time.Second,
			},
		),
		Action: ctlAction,
	}
}

func ctlAction(c *cli.Context) error {
	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for ctl command", exitError)
	}
	if c.NArg() < 1 {
		return cli.Exit("control command required", exitError)
	}

	cmd, filename, err := parseCtlArgs(c.Args().Slice())
	if err != nil {
		return cli.Exit(err.Error(), exitError)
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
	defer cancel()

	msg := ipc.DefaultCodec().EncodeControl(cmd, filename)
	reply, err := channel.SendControl(ctx, c.String("socket"), msg)
	if err != nil {
		return cli.Exit(err.Error(), exitError)
	}

	resp := CtlResponse{
		Command:  reply.Command.String(),
		Filename: filename,
		Accepted: reply.Accepted,
		Error:    reply.Error,
	}
	if err := r.Render(resp); err != nil {
		return err
	}
	if !reply.Accepted {
		return cli.Exit("", exitError)
	}
	return nil
}

// parseCtlArgs validates a command and its filename argument.
func parseCtlArgs(args []string) (types.ControlCommand, string, error) {
	cmd, err := types.ParseControlCommand(args[0])
	if err != nil {
		return 0, "", err
	}
	filename := ""
	if len(args) > 1 {
		filename = args[1]
	}
	switch {
	case len(args) > 2:
		return 0, "", fmt.Errorf("%s takes at most one argument", cmd)
	case cmd.NeedsFilename() && filename == "":
		return 0, "", fmt.Errorf("%s requires a filename", cmd)
	case !cmd.NeedsFilename() && filename != "":
		return 0, "", fmt.Errorf("%s takes no filename", cmd)
	case len(filename) > ipc.MaxFilenameLen:
		return 0, "", fmt.Errorf("filename longer than %d bytes", ipc.MaxFilenameLen)
	}
	return cmd, filename, nil
}
