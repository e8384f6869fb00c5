package cmd

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/pithecene-io/framelog/assembly"
	"github.com/pithecene-io/framelog/log"
	"github.com/pithecene-io/framelog/types"
)

// DefaultRenderFPS is the viewer tick rate.
const DefaultRenderFPS = 30

// viewer stands in for the renderer: at most once per tick it waits for a
// new frame in the slot and counts it.
type viewer struct {
	slot     *assembly.Slot
	interval time.Duration
	logger   *log.Logger

	frame     types.Frame
	displayed atomic.Int64
	lastID    atomic.Uint32
}

func newViewer(slot *assembly.Slot, fps float64, logger *log.Logger) *viewer {
	if fps <= 0 {
		fps = DefaultRenderFPS
	}
	return &viewer{
		slot:     slot,
		interval: time.Duration(float64(time.Second) / fps),
		logger:   logger,
	}
}

// Run ticks until ctx is done.
func (v *viewer) Run(ctx context.Context) {
	ticker := time.NewTicker(v.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if err := v.slot.Next(ctx, &v.frame); err != nil {
			return
		}
		n := v.displayed.Add(1)
		v.lastID.Store(v.frame.FrameID)
		if n == 1 {
			v.logger.Info("first frame displayed", map[string]any{
				"frame_id": v.frame.FrameID,
				"width":    v.frame.Width,
				"height":   v.frame.Height,
			})
		}
	}
}

// Displayed returns the number of distinct frames shown.
func (v *viewer) Displayed() int64 {
	return v.displayed.Load()
}

// LastFrameID returns the id of the last frame shown.
func (v *viewer) LastFrameID() uint32 {
	return v.lastID.Load()
}
