package pipeline

import (
	"context"
	"fmt"
	"math/rand"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/YawnsDuzin/nvr-gstreamer/internal/logging"
)

const (
	reconnectBaseDelay  = 5 * time.Second
	reconnectFactor     = 2.0
	reconnectCap        = 60 * time.Second
	reconnectMaxAttempt = 10

	recordingRetryInterval   = 6 * time.Second
	recordingRetryMaxAttempt = 20

	tcpProbeTimeout = 3 * time.Second
)

// RetryKind selects which of the two independent schedules a RetryScheduler
// instance runs (§4.8).
type RetryKind string

const (
	RetryKindReconnect      RetryKind = "reconnect"
	RetryKindRecordingRetry RetryKind = "recording_retry"
)

// RetryScheduler manages a single timer with a computed delay, a monotonic
// attempt counter, a maximum-attempts cap, and cancellation semantics.
// Grounded in internal/mediamtx/health_monitor.go's getBackoffDelay/
// retryWithBackoff; only one timer per kind may exist at a time (§3) —
// rescheduling always cancels the prior timer first.
type RetryScheduler struct {
	kind     RetryKind
	cameraID string
	logger   *logging.Logger

	mu      sync.Mutex
	attempt int
	timer   *time.Timer
	done    bool
}

// NewRetryScheduler creates a scheduler for one camera and kind.
func NewRetryScheduler(kind RetryKind, cameraID string, logger *logging.Logger) *RetryScheduler {
	return &RetryScheduler{kind: kind, cameraID: cameraID, logger: logger}
}

// maxAttempts returns the cap for this scheduler's kind.
func (s *RetryScheduler) maxAttempts() int {
	if s.kind == RetryKindReconnect {
		return reconnectMaxAttempt
	}
	return recordingRetryMaxAttempt
}

// nextDelay computes the delay for the next attempt. Reconnect uses
// exponential backoff with base 5s, factor 2, cap 60s, with downward jitter
// that puts each delay between 75% and 100% of its nominal value;
// recording-retry uses fixed 6s intervals (§4.8).
func (s *RetryScheduler) nextDelay(attempt int) time.Duration {
	if s.kind == RetryKindRecordingRetry {
		return recordingRetryInterval
	}

	delay := float64(reconnectBaseDelay) * pow(reconnectFactor, float64(attempt-1))
	if delay > float64(reconnectCap) {
		delay = float64(reconnectCap)
	}
	jitter := delay * (0.75 + rand.Float64()*0.25)
	if jitter > float64(reconnectCap) {
		jitter = float64(reconnectCap)
	}
	return time.Duration(jitter)
}

func pow(base, exp float64) float64 {
	result := 1.0
	for i := 0; i < int(exp); i++ {
		result *= base
	}
	return result
}

// Schedule cancels any pending timer and arms a new one. onFire runs on the
// timer's own goroutine, and the controller's retry callbacks do their work
// there directly rather than handing it to another goroutine. It
// returns false without scheduling if max attempts has been reached; the
// caller is expected to treat that as permanent exhaustion (§4.8).
func (s *RetryScheduler) Schedule(onFire func(attempt int)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done {
		return false
	}
	if s.timer != nil {
		s.timer.Stop()
	}

	s.attempt++
	if s.attempt > s.maxAttempts() {
		s.done = true
		s.logger.WithFields(logging.Fields{"camera_id": s.cameraID, "kind": s.kind, "attempts": s.attempt - 1}).
			Error("retry scheduler exhausted max attempts")
		return false
	}

	delay := s.nextDelay(s.attempt)
	attempt := s.attempt
	s.logger.WithFields(logging.Fields{"camera_id": s.cameraID, "kind": s.kind, "attempt": attempt, "delay": delay}).
		Info("retry scheduler arming next attempt")

	s.timer = time.AfterFunc(delay, func() { onFire(attempt) })
	return true
}

// Cancel stops any pending timer without marking the scheduler exhausted.
// RetryScheduler.Cancel is always invoked, and observed to return, before
// MediaGraph teardown begins in PipelineController.stop (§10).
func (s *RetryScheduler) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// Reset clears the attempt counter and exhaustion flag after a successful
// recovery.
func (s *RetryScheduler) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempt = 0
	s.done = false
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// Attempt returns the current attempt count.
func (s *RetryScheduler) Attempt() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempt
}

// ProbeTCP performs a cheap TCP dial on host:port parsed from an rtsp:// URL
// with a 3s timeout, run before reconnecting; failure reschedules without
// touching the pipeline (§4.8).
func ProbeTCP(ctx context.Context, rtspURL string) error {
	u, err := url.Parse(rtspURL)
	if err != nil {
		return fmt.Errorf("parse rtsp url: %w", err)
	}
	host := u.Host
	if u.Port() == "" {
		host = net.JoinHostPort(u.Hostname(), "554")
	}

	dialCtx, cancel := context.WithTimeout(ctx, tcpProbeTimeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(dialCtx, "tcp", host)
	if err != nil {
		return fmt.Errorf("tcp probe %s: %w", host, err)
	}
	conn.Close()
	return nil
}
