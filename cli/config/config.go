package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/pithecene-io/framelog/assembly"
	"github.com/pithecene-io/framelog/ipc"
	"github.com/pithecene-io/framelog/policy"
	"github.com/pithecene-io/framelog/store"
	"github.com/pithecene-io/framelog/types"
)

// Config represents a framelog.yaml configuration file.
// All values are optional and act as defaults for framelog run flags.
// CLI flags always override config values.
type Config struct {
	Channels        ChannelsConfig `yaml:"channels"`
	Logger          LoggerConfig   `yaml:"logger"`
	Playback        PlaybackConfig `yaml:"playback"`
	Producer        ProducerConfig `yaml:"producer"`
	Archive         ArchiveConfig  `yaml:"archive"`
	Adapter         AdapterConfig  `yaml:"adapter"`
	ControlSocket   string         `yaml:"control_socket"`
	ShutdownTimeout Duration       `yaml:"shutdown_timeout"`
	LogLevel        string         `yaml:"log_level"`
}

// ChannelsConfig sizes the three named channels.
type ChannelsConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	QueueDepth     int `yaml:"queue_depth"`
}

// LoggerConfig tunes the logger engine.
type LoggerConfig struct {
	ControlPollInterval Duration `yaml:"control_poll_interval"`
}

// PlaybackConfig tunes the playback engine and the frame size limits
// shared by recording and replay.
type PlaybackConfig struct {
	FrameInterval Duration `yaml:"frame_interval"`
	IdlePoll      Duration `yaml:"idle_poll"`
	MaxFrameBytes int      `yaml:"max_frame_bytes"`
	// MaxPixels bounds width*height of a reassembled frame. The effective
	// max_frame_bytes must hold the color stream of such a frame.
	MaxPixels int `yaml:"max_pixels"`
}

// frameLimits returns max_pixels and max_frame_bytes with zero values
// replaced by their defaults.
func (p PlaybackConfig) frameLimits() (pixels, frameBytes int) {
	pixels, frameBytes = p.MaxPixels, p.MaxFrameBytes
	if pixels == 0 {
		pixels = assembly.DefaultMaxPixels
	}
	if frameBytes == 0 {
		frameBytes = store.DefaultMaxFrameBytes
	}
	return pixels, frameBytes
}

// ProducerConfig configures the producer and its synthetic source.
type ProducerConfig struct {
	Policy      string   `yaml:"policy"`
	SendTimeout Duration `yaml:"send_timeout"`
	Width       int      `yaml:"width"`
	Height      int      `yaml:"height"`
	FPS         float64  `yaml:"fps"`
	// Synthetic enables the built-in pattern source. Nil means enabled.
	Synthetic *bool `yaml:"synthetic,omitempty"`
}

// ArchiveConfig holds recording archive settings.
type ArchiveConfig struct {
	Dataset     string `yaml:"dataset"`
	Backend     string `yaml:"backend"`
	Path        string `yaml:"path"`
	Region      string `yaml:"region"`
	Endpoint    string `yaml:"endpoint"`
	S3PathStyle bool   `yaml:"s3_path_style"`
}

// AdapterConfig holds session notification settings.
type AdapterConfig struct {
	Type      string            `yaml:"type"`
	URL       string            `yaml:"url"`
	Channel   string            `yaml:"channel,omitempty"`
	KeyPrefix string            `yaml:"key_prefix,omitempty"`
	TTL       Duration          `yaml:"ttl,omitempty"`
	Headers   map[string]string `yaml:"headers,omitempty"`
	Timeout   Duration          `yaml:"timeout,omitempty"`
	Retries   *int              `yaml:"retries,omitempty"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "33ms", "5s").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "100ms" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// SyntheticEnabled reports whether the synthetic source should run.
func (p *ProducerConfig) SyntheticEnabled() bool {
	return p.Synthetic == nil || *p.Synthetic
}

// Validate range-checks every set value. Zero values mean "use the default"
// and always pass.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	if n := c.Channels.MaxMessageSize; n != 0 {
		check(n > ipc.HeaderSize, "channels.max_message_size %d must exceed header size %d", n, ipc.HeaderSize)
	}
	check(c.Channels.QueueDepth >= 0, "channels.queue_depth must not be negative")

	check(c.Logger.ControlPollInterval.Duration >= 0, "logger.control_poll_interval must not be negative")
	check(c.Playback.FrameInterval.Duration >= 0, "playback.frame_interval must not be negative")
	check(c.Playback.IdlePoll.Duration >= 0, "playback.idle_poll must not be negative")
	check(c.Playback.MaxFrameBytes >= 0, "playback.max_frame_bytes must not be negative")
	check(c.Playback.MaxPixels >= 0, "playback.max_pixels must not be negative")
	if c.Playback.MaxFrameBytes >= 0 && c.Playback.MaxPixels >= 0 {
		pixels, frameBytes := c.Playback.frameLimits()
		check(frameBytes/types.ColorBytesPerPixel >= pixels,
			"playback.max_frame_bytes %d cannot hold a %d pixel color stream (playback.max_pixels)", frameBytes, pixels)
	}

	if _, err := policy.ParseName(c.Producer.Policy); err != nil {
		errs = append(errs, fmt.Errorf("producer.policy: %w", err))
	}
	check(c.Producer.SendTimeout.Duration >= 0, "producer.send_timeout must not be negative")
	check(c.Producer.Width >= 0 && c.Producer.Width <= 0xFFFF, "producer.width %d out of range", c.Producer.Width)
	check(c.Producer.Height >= 0 && c.Producer.Height <= 0xFFFF, "producer.height %d out of range", c.Producer.Height)
	check(c.Producer.FPS >= 0 && c.Producer.FPS <= 1000, "producer.fps %g out of range", c.Producer.FPS)

	switch c.Archive.Backend {
	case "", "fs", "s3":
	default:
		errs = append(errs, fmt.Errorf("archive.backend %q must be fs or s3", c.Archive.Backend))
	}
	if c.Archive.Backend != "" {
		check(c.Archive.Path != "", "archive.path is required when archive.backend is set")
	}

	switch c.Adapter.Type {
	case "", "redis", "webhook":
	default:
		errs = append(errs, fmt.Errorf("adapter.type %q must be redis or webhook", c.Adapter.Type))
	}
	if c.Adapter.Type != "" {
		check(c.Adapter.URL != "", "adapter.url is required when adapter.type is set")
	}
	if c.Adapter.Retries != nil {
		check(*c.Adapter.Retries >= 0, "adapter.retries must not be negative")
	}

	check(c.ShutdownTimeout.Duration >= 0, "shutdown_timeout must not be negative")

	return errors.Join(errs...)
}
