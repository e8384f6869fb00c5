package runtime

import (
	"context"
	"time"
)

// Synthetic source defaults.
const (
	DefaultSyntheticWidth  = 320
	DefaultSyntheticHeight = 240
	DefaultSyntheticFPS    = 30
)

// SyntheticConfig configures a SyntheticSource.
type SyntheticConfig struct {
	Width  int
	Height int
	// FPS is the publish rate. Zero means DefaultSyntheticFPS.
	FPS float64
	// Frames stops the source after this many frames. Zero means unlimited.
	Frames int
}

// SyntheticSource stands in for the sensor: it publishes deterministic
// depth and color patterns at a fixed rate.
type SyntheticSource struct {
	cfg      SyntheticConfig
	producer *Producer
	depth    []int16
	color    []byte
}

// NewSyntheticSource creates a source publishing through p.
func NewSyntheticSource(cfg SyntheticConfig, p *Producer) *SyntheticSource {
	if cfg.Width <= 0 {
		cfg.Width = DefaultSyntheticWidth
	}
	if cfg.Height <= 0 {
		cfg.Height = DefaultSyntheticHeight
	}
	if cfg.FPS <= 0 {
		cfg.FPS = DefaultSyntheticFPS
	}
	n := cfg.Width * cfg.Height
	return &SyntheticSource{
		cfg:      cfg,
		producer: p,
		depth:    make([]int16, n),
		color:    make([]byte, n*3),
	}
}

// Run publishes frames until ctx is done or the frame limit is reached.
func (s *SyntheticSource) Run(ctx context.Context) error {
	ticker := time.NewTicker(time.Duration(float64(time.Second) / s.cfg.FPS))
	defer ticker.Stop()

	for n := 0; s.cfg.Frames == 0 || n < s.cfg.Frames; n++ {
		if ctx.Err() != nil {
			return nil
		}
		SyntheticPattern(n, s.cfg.Width, s.cfg.Height, s.depth, s.color)
		if err := s.producer.Publish(ctx, s.depth, s.color, s.cfg.Width, s.cfg.Height); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
	return nil
}

// SyntheticPattern fills depth and color with frame n of a moving ramp.
// Depth is in millimetres; color is an RGB gradient.
func SyntheticPattern(n, w, h int, depth []int16, color []byte) {
	for y := range h {
		for x := range w {
			i := y*w + x
			depth[i] = int16(500 + (x+y+n)%4000)
			color[i*3] = byte(x + n)
			color[i*3+1] = byte(y + n)
			color[i*3+2] = byte(n)
		}
	}
}
