package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/framelog/cli/render"
	"github.com/pithecene-io/framelog/cli/tui"
	"github.com/pithecene-io/framelog/store"
)

// InspectCommand returns the inspect command.
// Inspect scans a recording without replaying it.
func InspectCommand() *cli.Command {
	return &cli.Command{
		Name:      "inspect",
		Usage:     "Summarise a recording file",
		ArgsUsage: "<file>",
		Flags: append(ReadOnlyFlags(),
			&cli.IntFlag{
				Name:  "max-frame-bytes",
				Usage: "Largest accepted depth or color payload per frame",
				Value: store.DefaultMaxFrameBytes,
			},
		),
		Action: inspectAction,
	}
}

// InspectResponse is the inspect payload.
type InspectResponse struct {
	store.Summary `yaml:",inline"`
	Status        string `json:"status" yaml:"status"`
}

func inspectAction(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("recording file required", exitError)
	}
	path := c.Args().First()

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	sum, err := store.Scan(path, c.Int("max-frame-bytes"))
	if err != nil {
		return cli.Exit(fmt.Sprintf("cannot open recording: %v", err), exitError)
	}

	if c.Bool("tui") {
		if err := r.RenderTUI(tui.ViewInspectRecording, &sum); err != nil {
			return err
		}
	} else if err := r.Render(InspectResponse{Summary: sum, Status: tui.RecordingStatus(&sum)}); err != nil {
		return err
	}

	if !sum.Complete {
		return cli.Exit("", exitIncomplete)
	}
	return nil
}
