package cmd

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/framelog/cli/render"
	"github.com/pithecene-io/framelog/cli/tui"
	"github.com/pithecene-io/framelog/iox"
	"github.com/pithecene-io/framelog/lode"
)

// sessionsWarningThreshold is the number of rows above which we suggest --limit.
const sessionsWarningThreshold = 100

// SessionsCommand returns the sessions command.
// Sessions lists archived recording and playback sessions.
func SessionsCommand() *cli.Command {
	return &cli.Command{
		Name:  "sessions",
		Usage: "List archived recording and playback sessions",
		Flags: append(append(ReadOnlyFlags(), archiveFlags()...),
			&cli.StringFlag{Name: "day", Usage: "Filter by day (YYYY-MM-DD, UTC)"},
			&cli.StringFlag{Name: "kind", Usage: "Filter by kind: recording, playback"},
			&cli.StringFlag{Name: "outcome", Usage: "Filter by outcome: complete, stopped, incomplete, failed"},
			&cli.StringFlag{Name: "session", Usage: "Filter by session id"},
			&cli.IntFlag{Name: "limit", Usage: "Maximum number of rows (0 = no limit)"},
			&cli.BoolFlag{Name: "stats", Usage: "Show totals instead of rows"},
		),
		Action: sessionsAction,
		Subcommands: []*cli.Command{
			sessionsFetchCommand(),
		},
	}
}

func sessionsAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	if c.Bool("tui") && !c.Bool("stats") {
		return cli.Exit("--tui is only supported with --stats", exitError)
	}

	archiver, err := openArchive(c)
	if err != nil {
		return err
	}
	defer iox.DiscardClose(archiver)

	filter := lode.SessionFilter{
		SessionID: c.String("session"),
		Kind:      c.String("kind"),
		Day:       c.String("day"),
		Outcome:   c.String("outcome"),
		Limit:     c.Int("limit"),
	}
	rows, err := lode.QuerySessions(c.Context, archiver.Dataset(), filter)
	if err != nil && !errors.Is(err, lode.ErrNoSessionsFound) {
		return cli.Exit(fmt.Sprintf("query sessions: %v", err), exitError)
	}
	if rows == nil {
		rows = []lode.SessionRecord{}
	}

	if c.Bool("stats") {
		stats := lode.TallySessions(rows)
		if c.Bool("tui") {
			return r.RenderTUI(tui.ViewSessionStats, &stats)
		}
		return r.Render(stats)
	}

	// Warn on large output without --limit (TTY only to avoid noise in pipelines).
	if len(rows) > sessionsWarningThreshold && filter.Limit == 0 && isStderrTTY() {
		fmt.Fprintf(os.Stderr, "Warning: returning %d sessions. Consider using --limit to reduce output.\n\n", len(rows))
	}
	return r.Render(rows)
}

// FetchResponse is the sessions fetch payload.
type FetchResponse struct {
	ObjectPath string `json:"object_path" yaml:"object_path"`
	Output     string `json:"output" yaml:"output"`
	Bytes      int64  `json:"bytes" yaml:"bytes"`
	SHA256     string `json:"sha256,omitempty" yaml:"sha256,omitempty"`
	Verified   bool   `json:"verified" yaml:"verified"`
}

func sessionsFetchCommand() *cli.Command {
	return &cli.Command{
		Name:      "fetch",
		Usage:     "Copy an archived recording back to a local file",
		ArgsUsage: "<object-path>",
		Flags: append(append(ReadOnlyFlags(), archiveFlags()...),
			&cli.StringFlag{
				Name:     "out",
				Aliases:  []string{"o"},
				Usage:    "Local file to write",
				Required: true,
			},
		),
		Action: sessionsFetchAction,
	}
}

func sessionsFetchAction(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("object path required", exitError)
	}
	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for sessions fetch", exitError)
	}
	objectPath := c.Args().First()

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	archiver, err := openArchive(c)
	if err != nil {
		return err
	}
	defer iox.DiscardClose(archiver)

	resp, err := fetchRecording(c, archiver, objectPath, c.String("out"))
	if err != nil {
		return cli.Exit(err.Error(), exitError)
	}
	if err := r.Render(resp); err != nil {
		return err
	}
	if resp.SHA256 != "" && !resp.Verified {
		return cli.Exit("fetched recording does not match its manifest digest", exitError)
	}
	return nil
}

func fetchRecording(c *cli.Context, archiver *lode.Archiver, objectPath, out string) (*FetchResponse, error) {
	f, err := os.Create(out)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", out, err)
	}
	h := sha256.New()
	n, err := archiver.Fetch(c.Context, objectPath, io.MultiWriter(f, h))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(out)
		return nil, fmt.Errorf("fetch %s: %w", objectPath, err)
	}

	resp := &FetchResponse{ObjectPath: objectPath, Output: out, Bytes: n}
	if m, err := archiver.Manifest(c.Context, objectPath); err == nil {
		resp.SHA256 = m.SHA256
		resp.Verified = m.SHA256 == hex.EncodeToString(h.Sum(nil))
	}
	return resp, nil
}

// openArchive builds the archiver named by the archive flags.
func openArchive(c *cli.Context) (*lode.Archiver, error) {
	choice := archiveChoice{
		backend:   c.String("archive-backend"),
		path:      c.String("archive-path"),
		dataset:   c.String("archive-dataset"),
		region:    c.String("archive-region"),
		endpoint:  c.String("archive-endpoint"),
		pathStyle: c.Bool("archive-s3-path-style"),
	}
	if !choice.enabled() {
		return nil, cli.Exit("--archive-path is required", exitError)
	}
	a, err := buildArchiver(c.Context, choice)
	if err != nil {
		return nil, cli.Exit(fmt.Sprintf("open archive: %v", err), exitError)
	}
	return a, nil
}
