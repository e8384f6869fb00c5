// Package main provides framelog-sensor, a stand-alone synthetic sensor.
//
// It publishes the moving test pattern through the producer and writes the
// resulting wire messages length-prefixed to stdout, ready to be piped into
// `framelog run --input -`.
//
// Usage:
//
//	framelog-sensor [--width W] [--height H] [--fps F] [--frames N] | framelog run --input -
//
// Exit codes:
//   - 0: the frame limit was reached or the sensor was interrupted
//   - 1: configuration or output error
package main

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

	"github.com/pithecene-io/framelog/channel"
	"github.com/pithecene-io/framelog/ipc"
	"github.com/pithecene-io/framelog/log"
	"github.com/pithecene-io/framelog/policy"
	"github.com/pithecene-io/framelog/runtime"
	"github.com/pithecene-io/framelog/types"
)

// sensorChoice holds parsed sensor configuration from CLI flags.
type sensorChoice struct {
	width          int
	height         int
	fps            float64
	frames         int
	queueDepth     int
	maxMessageSize int
	policy         string
	sendTimeout    time.Duration
}

func main() {
	app := &cli.App{
		Name:           "framelog-sensor",
		Usage:          "Synthetic depth and color sensor writing wire messages to stdout",
		Version:        types.Version,
		ExitErrHandler: exitErrHandler,
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "width", Value: runtime.DefaultSyntheticWidth, Usage: "Frame width in pixels"},
			&cli.IntFlag{Name: "height", Value: runtime.DefaultSyntheticHeight, Usage: "Frame height in pixels"},
			&cli.Float64Flag{Name: "fps", Value: runtime.DefaultSyntheticFPS, Usage: "Publish rate"},
			&cli.IntFlag{Name: "frames", Usage: "Stop after N frames (0 = until interrupted)"},
			&cli.IntFlag{Name: "queue-depth", Usage: "Output queue depth (0 = default)"},
			&cli.IntFlag{Name: "max-message-size", Usage: "Maximum wire message size in bytes (0 = default)"},
			&cli.StringFlag{Name: "policy", Value: string(policy.NameStrict), Usage: "Send policy: strict, drop"},
			&cli.DurationFlag{Name: "send-timeout", Usage: "Mid-frame send timeout for the drop policy"},
			&cli.StringFlag{Name: "log-level", Value: "info", Usage: "Log level for stderr output"},
		},
		Action: sensorAction,
	}

	if err := app.Run(os.Args); err != nil {
		os.Exit(1)
	}
}

func sensorAction(c *cli.Context) error {
	choice := sensorChoice{
		width:          c.Int("width"),
		height:         c.Int("height"),
		fps:            c.Float64("fps"),
		frames:         c.Int("frames"),
		queueDepth:     c.Int("queue-depth"),
		maxMessageSize: c.Int("max-message-size"),
		policy:         c.String("policy"),
		sendTimeout:    c.Duration("send-timeout"),
	}
	if err := validateSensorChoice(choice); err != nil {
		return cli.Exit(err.Error(), 1)
	}

	logger, err := log.NewLogger(types.NewSessionMeta()).WithOutput(os.Stderr).WithLevel(c.String("log-level"))
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	stats, err := runSensor(ctx, choice, os.Stdout, logger.With("sensor"))
	logger.Sugar().Infof("sensor finished: %d frames sent, %d dropped", stats.FramesSent, stats.FramesDropped)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	return nil
}

// validateSensorChoice range-checks the flags before anything is opened.
func validateSensorChoice(choice sensorChoice) error {
	var errs []error
	if choice.width <= 0 || choice.width > 0xFFFF {
		errs = append(errs, fmt.Errorf("--width %d out of range", choice.width))
	}
	if choice.height <= 0 || choice.height > 0xFFFF {
		errs = append(errs, fmt.Errorf("--height %d out of range", choice.height))
	}
	if choice.fps <= 0 || choice.fps > 1000 {
		errs = append(errs, fmt.Errorf("--fps %g out of range", choice.fps))
	}
	if choice.frames < 0 {
		errs = append(errs, errors.New("--frames must not be negative"))
	}
	if choice.queueDepth < 0 {
		errs = append(errs, errors.New("--queue-depth must not be negative"))
	}
	if n := choice.maxMessageSize; n != 0 && n <= ipc.HeaderSize {
		errs = append(errs, fmt.Errorf("--max-message-size %d must exceed header size %d", n, ipc.HeaderSize))
	}
	if _, err := policy.ParseName(choice.policy); err != nil {
		errs = append(errs, err)
	}
	if choice.sendTimeout < 0 {
		errs = append(errs, errors.New("--send-timeout must not be negative"))
	}
	return errors.Join(errs...)
}

// runSensor publishes synthetic frames and forwards every wire message to
// out until the frame limit is reached or ctx is done. Messages already
// queued when the source stops are still written.
func runSensor(ctx context.Context, choice sensorChoice, out io.Writer, logger *log.Logger) (policy.Stats, error) {
	reg := channel.NewRegistry(channel.Options{
		Depth:          choice.queueDepth,
		MaxMessageSize: choice.maxMessageSize,
	})
	queue, err := reg.Open(channel.SensorLogger)
	if err != nil {
		return policy.Stats{}, err
	}
	codec, err := ipc.NewCodec(queue.MaxMessageSize())
	if err != nil {
		reg.CloseAll()
		return policy.Stats{}, err
	}
	name, err := policy.ParseName(choice.policy)
	if err != nil {
		reg.CloseAll()
		return policy.Stats{}, err
	}
	producer, err := runtime.NewProducer(runtime.ProducerConfig{
		Codec:       codec,
		Sink:        queue,
		Policy:      name,
		SendTimeout: choice.sendTimeout,
		Logger:      logger,
	})
	if err != nil {
		reg.CloseAll()
		return policy.Stats{}, err
	}

	// The forwarder outlives ctx so it can drain what the source queued.
	fwdCtx, cancelFwd := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelFwd()
	fwdErr := make(chan error, 1)
	go func() {
		err := channel.Forward(fwdCtx, queue, out)
		if err != nil {
			// Unblock a producer waiting on a full queue.
			reg.CloseAll()
		}
		fwdErr <- err
	}()

	source := runtime.NewSyntheticSource(runtime.SyntheticConfig{
		Width:  choice.width,
		Height: choice.height,
		FPS:    choice.fps,
		Frames: choice.frames,
	}, producer)
	srcErr := source.Run(ctx)
	reg.CloseAll()

	err = <-fwdErr
	if errors.Is(srcErr, channel.ErrClosed) && err != nil {
		srcErr = nil
	}
	return producer.Stats(), errors.Join(srcErr, err)
}

// exitErrHandler preserves exit codes from cli.Exit.
func exitErrHandler(_ *cli.Context, err error) {
	if err == nil {
		return
	}
	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		code := exitCoder.ExitCode()
		if msg := exitCoder.Error(); msg != "" && msg != fmt.Sprintf("exit status %d", code) {
			fmt.Fprintln(os.Stderr, msg)
		}
		os.Exit(code)
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
