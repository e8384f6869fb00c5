package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/framelog/adapter"
	"github.com/pithecene-io/framelog/assembly"
	"github.com/pithecene-io/framelog/channel"
	"github.com/pithecene-io/framelog/cli/config"
	"github.com/pithecene-io/framelog/iox"
	"github.com/pithecene-io/framelog/lode"
	"github.com/pithecene-io/framelog/log"
	"github.com/pithecene-io/framelog/metrics"
	"github.com/pithecene-io/framelog/policy"
	"github.com/pithecene-io/framelog/runtime"
	"github.com/pithecene-io/framelog/types"
)

// playbackPollInterval is how often run checks for the end of a --play session.
const playbackPollInterval = 50 * time.Millisecond

// RunCommand returns the run command.
// Run wires producer, logger, playback and viewer together and serves
// control commands until interrupted.
func RunCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Run the frame pipeline (synthetic sensor, logger, playback, viewer)",
		Flags: append([]cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to framelog.yaml (flags override its values)",
			},
			// Session flags
			&cli.StringFlag{Name: "record", Usage: "Start recording to FILE immediately"},
			&cli.StringFlag{Name: "play", Usage: "Replay FILE immediately; exits when playback ends unless --duration is set"},
			&cli.DurationFlag{Name: "duration", Usage: "Stop after this long (0 = until interrupted)"},
			&cli.StringFlag{Name: "report", Usage: "Write a JSON run report to PATH (- for stderr)"},
			&cli.StringFlag{Name: "input", Usage: "Read wire messages from PATH (- for stdin) instead of the synthetic source"},
			&cli.BoolFlag{Name: "no-stdin", Usage: "Do not read control lines from stdin"},
			&cli.BoolFlag{Name: "quiet", Usage: "Suppress the run summary"},
			&cli.Float64Flag{Name: "render-fps", Usage: "Viewer tick rate", Value: DefaultRenderFPS},
			// Channel flags
			&cli.IntFlag{Name: "queue-depth", Usage: "Messages per channel"},
			&cli.IntFlag{Name: "max-message-size", Usage: "Largest channel message in bytes"},
			// Engine flags
			&cli.DurationFlag{Name: "control-poll", Usage: "Logger data wait, bounds control latency"},
			&cli.DurationFlag{Name: "frame-interval", Usage: "Playback pacing between frames"},
			&cli.IntFlag{Name: "max-frame-bytes", Usage: "Largest stored depth or color payload"},
			&cli.IntFlag{Name: "max-pixels", Usage: "Largest accepted frame width*height"},
			// Producer flags
			&cli.StringFlag{Name: "policy", Usage: "Producer send policy: strict or drop"},
			&cli.DurationFlag{Name: "send-timeout", Usage: "Drop policy wait before discarding a frame"},
			&cli.IntFlag{Name: "width", Usage: "Synthetic frame width"},
			&cli.IntFlag{Name: "height", Usage: "Synthetic frame height"},
			&cli.Float64Flag{Name: "fps", Usage: "Synthetic frame rate"},
			&cli.BoolFlag{Name: "synthetic", Usage: "Run the synthetic sensor source", Value: true},
			// Adapter flags
			&cli.StringFlag{Name: "adapter", Usage: "Session notification adapter: redis or webhook"},
			&cli.StringFlag{Name: "adapter-url", Usage: "Adapter URL (redis://... or https://...)"},
			&cli.StringFlag{Name: "adapter-channel", Usage: "Redis pub/sub channel"},
			&cli.DurationFlag{Name: "adapter-timeout", Usage: "Per-publish timeout"},
			&cli.IntFlag{Name: "adapter-retries", Usage: "Publish retry attempts"},
			// Process flags
			&cli.StringFlag{Name: "control-socket", Usage: "Accept `framelog ctl` commands on this unix socket"},
			&cli.DurationFlag{Name: "shutdown-timeout", Usage: "Time allowed for roles to stop"},
			&cli.StringFlag{Name: "log-level", Usage: "Log level: debug, info, warn, error"},
		}, archiveFlags()...),
		Action: runAction,
	}
}

// runOptions are the per-invocation settings that have no config file key.
type runOptions struct {
	record    string
	play      string
	duration  time.Duration
	report    string
	quiet     bool
	renderFPS float64
	input     io.Reader
	stdin     io.Reader
	out       io.Writer
	logOutput io.Writer
}

func runAction(c *cli.Context) error {
	cfg, err := resolveRunConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), exitError)
	}

	opts := runOptions{
		record:    c.String("record"),
		play:      c.String("play"),
		duration:  c.Duration("duration"),
		report:    c.String("report"),
		quiet:     c.Bool("quiet"),
		renderFPS: c.Float64("render-fps"),
		out:       c.App.Writer,
		logOutput: c.App.ErrWriter,
	}
	switch path := c.String("input"); path {
	case "":
		if !c.Bool("no-stdin") {
			opts.stdin = os.Stdin
		}
	case "-":
		opts.input = os.Stdin
	default:
		f, err := os.Open(path)
		if err != nil {
			return cli.Exit(fmt.Sprintf("open input: %v", err), exitError)
		}
		defer iox.DiscardClose(f)
		opts.input = f
	}
	if opts.input != nil && !c.IsSet("synthetic") {
		off := false
		cfg.Producer.Synthetic = &off
	}
	if opts.record != "" && opts.play != "" {
		return cli.Exit("--record and --play are mutually exclusive", exitError)
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	code, err := runPipeline(ctx, cfg, opts)
	switch {
	case err != nil:
		return cli.Exit(err.Error(), code)
	case code != exitSuccess:
		return cli.Exit("", code)
	}
	return nil
}

// resolveRunConfig loads --config when given and applies explicitly set
// flags on top of it.
func resolveRunConfig(c *cli.Context) (*config.Config, error) {
	cfg := &config.Config{}
	if path := c.String("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	setInt := func(name string, dst *int) {
		if c.IsSet(name) {
			*dst = c.Int(name)
		}
	}
	setString := func(name string, dst *string) {
		if c.IsSet(name) {
			*dst = c.String(name)
		}
	}
	setDuration := func(name string, dst *config.Duration) {
		if c.IsSet(name) {
			dst.Duration = c.Duration(name)
		}
	}

	setInt("queue-depth", &cfg.Channels.QueueDepth)
	setInt("max-message-size", &cfg.Channels.MaxMessageSize)
	setDuration("control-poll", &cfg.Logger.ControlPollInterval)
	setDuration("frame-interval", &cfg.Playback.FrameInterval)
	setInt("max-frame-bytes", &cfg.Playback.MaxFrameBytes)
	setInt("max-pixels", &cfg.Playback.MaxPixels)

	setString("policy", &cfg.Producer.Policy)
	setDuration("send-timeout", &cfg.Producer.SendTimeout)
	setInt("width", &cfg.Producer.Width)
	setInt("height", &cfg.Producer.Height)
	if c.IsSet("fps") {
		cfg.Producer.FPS = c.Float64("fps")
	}
	if c.IsSet("synthetic") {
		v := c.Bool("synthetic")
		cfg.Producer.Synthetic = &v
	}

	setString("archive-backend", &cfg.Archive.Backend)
	setString("archive-path", &cfg.Archive.Path)
	setString("archive-dataset", &cfg.Archive.Dataset)
	setString("archive-region", &cfg.Archive.Region)
	setString("archive-endpoint", &cfg.Archive.Endpoint)
	if c.IsSet("archive-s3-path-style") {
		cfg.Archive.S3PathStyle = c.Bool("archive-s3-path-style")
	}
	if cfg.Archive.Path != "" && cfg.Archive.Backend == "" {
		cfg.Archive.Backend = "fs"
	}

	setString("adapter", &cfg.Adapter.Type)
	setString("adapter-url", &cfg.Adapter.URL)
	setString("adapter-channel", &cfg.Adapter.Channel)
	setDuration("adapter-timeout", &cfg.Adapter.Timeout)
	if c.IsSet("adapter-retries") {
		v := c.Int("adapter-retries")
		cfg.Adapter.Retries = &v
	}

	setString("control-socket", &cfg.ControlSocket)
	setDuration("shutdown-timeout", &cfg.ShutdownTimeout)
	setString("log-level", &cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// runPipeline runs until ctx is done, opts.duration elapses, a --play
// session ends or the operator quits. Returns the process exit code.
func runPipeline(ctx context.Context, cfg *config.Config, opts runOptions) (int, error) {
	meta := types.NewSessionMeta()
	logger := log.NewLogger(meta)
	if opts.logOutput != nil {
		logger = logger.WithOutput(opts.logOutput)
	}
	if cfg.LogLevel != "" {
		leveled, err := logger.WithLevel(cfg.LogLevel)
		if err != nil {
			return exitError, fmt.Errorf("invalid log level: %w", err)
		}
		logger = leveled
	}
	defer func() { _ = logger.Sync() }()

	// Archiver, adapter and control server, closed newest first on return.
	var closers []io.Closer
	defer func() {
		if err := iox.CloseAll(closers...); err != nil {
			logger.Warn("failed to release run resources", map[string]any{"error": err.Error()})
		}
	}()

	polName, err := policy.ParseName(cfg.Producer.Policy)
	if err != nil {
		return exitError, err
	}
	archive := archiveChoiceFromConfig(cfg.Archive)
	collector := metrics.NewCollector(string(polName), archive.backendName(), meta.SessionID)

	var archiver lode.SessionArchiver
	if archive.enabled() {
		a, err := buildArchiver(ctx, archive)
		if err != nil {
			return exitError, fmt.Errorf("failed to open archive: %w", err)
		}
		archiver = lode.NewInstrumentedArchiver(a, collector)
		closers = append(closers, archiver)
	}

	ad, err := buildAdapter(cfg.Adapter)
	if err != nil {
		return exitError, fmt.Errorf("failed to create adapter: %w", err)
	}
	if ad != nil {
		closers = append(closers, ad)
	}

	p, err := runtime.NewPipeline(pipelineConfig(cfg, polName, archiver, ad, meta, logger, collector))
	if err != nil {
		return exitError, fmt.Errorf("failed to create pipeline: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if err := p.Start(runCtx); err != nil {
		return exitError, fmt.Errorf("failed to start pipeline: %w", err)
	}

	v := newViewer(p.Slot(), opts.renderFPS, logger.With("viewer"))
	go v.Run(runCtx)

	if cfg.ControlSocket != "" {
		srv, err := channel.ListenControl(cfg.ControlSocket, p.ControlChannel(), p.Codec(), logger.With("control"))
		if err != nil {
			_ = p.Stop(shutdownTimeout(cfg))
			return exitError, err
		}
		closers = append(closers, srv)
		go func() {
			if err := srv.Serve(runCtx); err != nil {
				logger.Error("control socket failed", map[string]any{"error": err.Error()})
			}
		}()
	}

	if err := startInitialSession(runCtx, p, opts); err != nil {
		_ = p.Stop(shutdownTimeout(cfg))
		return exitError, err
	}

	if opts.input != nil {
		go func() {
			if err := channel.Pump(runCtx, opts.input, p.SensorChannel()); err != nil && !errors.Is(err, channel.ErrClosed) && runCtx.Err() == nil {
				logger.Error("input stream failed", map[string]any{"error": err.Error()})
			}
		}()
	}

	if opts.stdin != nil {
		go func() {
			if err := runControlLines(runCtx, opts.stdin, p, opts.out); errors.Is(err, errQuit) {
				cancel()
			}
		}()
	}

	waitForEnd(runCtx, p, opts)

	stopErr := p.Stop(shutdownTimeout(cfg))
	cancel()

	code := exitSuccess
	if stopErr != nil {
		code = exitError
		logger.Error("pipeline did not stop cleanly", map[string]any{"error": stopErr.Error()})
	} else if sessionsFailed(p.Sessions()) {
		code = exitIncomplete
	}

	report := runtime.BuildRunReport(p, collector.Snapshot(), code)
	if opts.report != "" {
		if err := runtime.WriteRunReport(report, opts.report); err != nil {
			logger.Error("failed to write run report", map[string]any{"error": err.Error()})
		}
	}
	if !opts.quiet && opts.out != nil {
		printRunSummary(opts.out, report, v)
	}

	if stopErr != nil {
		return code, stopErr
	}
	return code, nil
}

func pipelineConfig(
	cfg *config.Config,
	polName policy.Name,
	archiver lode.SessionArchiver,
	ad adapter.Adapter,
	meta *types.SessionMeta,
	logger *log.Logger,
	collector *metrics.Collector,
) runtime.PipelineConfig {
	pc := runtime.PipelineConfig{
		ChannelOptions: channel.Options{
			Depth:          cfg.Channels.QueueDepth,
			MaxMessageSize: cfg.Channels.MaxMessageSize,
		},
		Limits:              assembly.Limits{MaxPixels: cfg.Playback.MaxPixels},
		Policy:              polName,
		SendTimeout:         cfg.Producer.SendTimeout.Duration,
		ControlPollInterval: cfg.Logger.ControlPollInterval.Duration,
		FrameInterval:       cfg.Playback.FrameInterval.Duration,
		IdlePoll:            cfg.Playback.IdlePoll.Duration,
		MaxFrameBytes:       cfg.Playback.MaxFrameBytes,
		Archiver:            archiver,
		Adapter:             ad,
		Session:             meta,
		Logger:              logger,
		Metrics:             collector,
	}
	if cfg.Producer.SyntheticEnabled() {
		pc.Synthetic = &runtime.SyntheticConfig{
			Width:  cfg.Producer.Width,
			Height: cfg.Producer.Height,
			FPS:    cfg.Producer.FPS,
		}
	}
	return pc
}

func startInitialSession(ctx context.Context, p *runtime.Pipeline, opts runOptions) error {
	switch {
	case opts.record != "":
		return p.Control(ctx, types.CommandStartRecord, opts.record)
	case opts.play != "":
		return p.Control(ctx, types.CommandStartPlayback, opts.play)
	}
	return nil
}

// waitForEnd blocks until the run should stop.
func waitForEnd(ctx context.Context, p *runtime.Pipeline, opts runOptions) {
	var deadline <-chan time.Time
	if opts.duration > 0 {
		t := time.NewTimer(opts.duration)
		defer t.Stop()
		deadline = t.C
	}

	var poll <-chan time.Time
	if opts.play != "" && opts.duration == 0 {
		t := time.NewTicker(playbackPollInterval)
		defer t.Stop()
		poll = t.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-deadline:
			return
		case <-poll:
			if playbackEnded(p.Sessions()) {
				return
			}
		}
	}
}

func playbackEnded(sessions []types.SessionResult) bool {
	for _, s := range sessions {
		if s.Kind == types.SessionPlayback {
			return true
		}
	}
	return false
}

// sessionsFailed reports whether any session ended incomplete or failed.
func sessionsFailed(sessions []types.SessionResult) bool {
	for _, s := range sessions {
		if s.Outcome == types.OutcomeIncomplete || s.Outcome == types.OutcomeFailed {
			return true
		}
	}
	return false
}

func shutdownTimeout(cfg *config.Config) time.Duration {
	return durationOr(cfg.ShutdownTimeout.Duration, runtime.DefaultShutdownTimeout)
}

func printRunSummary(out io.Writer, r *runtime.RunReport, v *viewer) {
	fmt.Fprintf(out, "\nsession_id=%s, exit_code=%d, duration=%s\n",
		r.SessionID, r.ExitCode, (time.Duration(r.DurationMs) * time.Millisecond).String())
	fmt.Fprintf(out, "policy=%s, frames_sent=%d, frames_dropped=%d\n",
		r.Policy.Name, r.Policy.FramesSent, r.Policy.FramesDropped)

	fmt.Fprintf(out, "\n=== Logger ===\n")
	fmt.Fprintf(out, "Mode:             %s\n", r.State.Mode)
	fmt.Fprintf(out, "Frames Recorded:  %d\n", r.State.RecordedFrames)
	fmt.Fprintf(out, "Frames Played:    %d\n", r.State.PlayedFrames)

	fmt.Fprintf(out, "\n=== Viewer ===\n")
	fmt.Fprintf(out, "Frames Assembled: %d\n", r.Reassembly.FramesCompleted)
	fmt.Fprintf(out, "Frames Displayed: %d\n", v.Displayed())
	fmt.Fprintf(out, "Last Frame ID:    %d\n", v.LastFrameID())
	fmt.Fprintf(out, "Stale Chunks:     %d\n", r.Reassembly.StaleChunks)

	if len(r.Sessions) > 0 {
		fmt.Fprintf(out, "\n=== Sessions ===\n")
		for _, s := range r.Sessions {
			fmt.Fprintf(out, "  - %-9s %-10s frames=%-6d %s\n", s.Kind, s.Outcome, s.Frames, s.Filename)
		}
	}

	if r.Metrics != nil && (r.Metrics.ArchiveSuccess > 0 || r.Metrics.ArchiveFailure > 0) {
		fmt.Fprintf(out, "\n=== Archive ===\n")
		fmt.Fprintf(out, "Archived:         %d\n", r.Metrics.ArchiveSuccess)
		fmt.Fprintf(out, "Failed:           %d\n", r.Metrics.ArchiveFailure)
	}
}
