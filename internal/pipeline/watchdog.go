package pipeline

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/YawnsDuzin/nvr-gstreamer/internal/logging"
)

const (
	watchdogTickInterval = 2 * time.Second
	watchdogStallTimeout = 5 * time.Second
)

// FrameWatchdog declares "connection lost" when no buffer crosses a known
// probe point for watchdogStallTimeout, catching silent stalls that RTSP
// TCP keep-alive alone is too slow to detect (§4.5). Grounded in
// internal/mediamtx/health_monitor.go's ticker-driven monitorLoop, adapted
// from an HTTP health poll to an atomic last-arrival timestamp.
type FrameWatchdog struct {
	cameraID     string
	logger       *logging.Logger
	lastArrival  atomic.Int64 // unix nanos
	onStall      func()
	spamLimiter  *rate.Limiter
	declared     atomic.Bool
}

// NewFrameWatchdog creates a FrameWatchdog for one camera. onStall is
// invoked (from the watchdog's own goroutine, never the media-backend
// thread) when the gap exceeds watchdogStallTimeout while the controller is
// Playing.
func NewFrameWatchdog(cameraID string, logger *logging.Logger, onStall func()) *FrameWatchdog {
	w := &FrameWatchdog{
		cameraID:    cameraID,
		logger:      logger,
		onStall:     onStall,
		spamLimiter: rate.NewLimiter(rate.Every(30*time.Second), 1),
	}
	w.Touch()
	return w
}

// Touch records a buffer arrival. Called from the MediaGraph's stderr
// reader/demuxer-progress probe on every buffer (§4.5).
func (w *FrameWatchdog) Touch() {
	w.lastArrival.Store(time.Now().UnixNano())
	w.declared.Store(false)
}

// Run blocks, ticking every watchdogTickInterval until ctx is cancelled.
// Intended to run under an errgroup alongside the controller's other timer
// goroutines so stop() can cancel and join them as one unit (§5, §12).
func (w *FrameWatchdog) Run(ctx context.Context) error {
	ticker := time.NewTicker(watchdogTickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			gap := time.Since(time.Unix(0, w.lastArrival.Load()))
			if gap > watchdogStallTimeout {
				if w.spamLimiter.Allow() {
					w.logger.WithFields(logging.Fields{"camera_id": w.cameraID, "gap_seconds": gap.Seconds()}).
						Warn("frame watchdog detected stall, declaring connection lost")
				}
				if !w.declared.Swap(true) {
					w.onStall()
				}
			}
		}
	}
}
