package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/YawnsDuzin/nvr-gstreamer/internal/common"
	"github.com/YawnsDuzin/nvr-gstreamer/internal/config"
	"github.com/YawnsDuzin/nvr-gstreamer/internal/logging"
)

var _ common.Stoppable = (*PipelineController)(nil)

const (
	osdTickInterval     = 1 * time.Second
	startTimeout        = 3 * time.Second
	stopJoinTimeout     = 2 * time.Second
)

// PipelineController is one per configured camera for the process's
// lifetime (§3). It owns its MediaGraph, PathGuard results, FrameWatchdog,
// RetryScheduler timers, and CallbackRegistry exclusively; external
// observers hold only weak references and the controller never extends
// their lifetime (§3 Ownership). Implements common.Stoppable.
type PipelineController struct {
	cameraID string
	logger   *logging.Logger

	mu            sync.Mutex
	snapshot      config.Snapshot
	state         controllerState
	mode          Mode
	recording     bool
	everConnected bool

	shouldAutoResumeRecording bool

	graph           *MediaGraph
	pathGuard       *PathGuard
	segmenter       *Segmenter
	watchdog        *FrameWatchdog
	reconnectSched  *RetryScheduler
	recordRetrySched *RetryScheduler
	registry        *CallbackRegistry

	osdLimiter *rate.Limiter

	faultHop chan storageFaultHop

	group      *errgroup.Group
	groupCtx   context.Context
	cancelGrp  context.CancelFunc
}

// NewPipelineController constructs a controller in the Idle state. It does
// not build the media graph; call Create for that (§4.1).
func NewPipelineController(cameraID string, snapshot config.Snapshot, logger *logging.Logger) *PipelineController {
	c := &PipelineController{
		cameraID:   cameraID,
		logger:     logger,
		snapshot:   snapshot,
		state:      stateIdle,
		mode:       Mode(snapshot.Camera.Mode),
		registry:   NewCallbackRegistry(logger),
		osdLimiter: rate.NewLimiter(rate.Every(osdTickInterval), 1),
		faultHop:   make(chan storageFaultHop, 4),
	}
	c.pathGuard = NewPathGuard(logger, snapshot.Storage.WarnFreeSpaceGB)
	c.segmenter = NewSegmenter(snapshot.Storage.RecordingPath, cameraID, snapshot.Recording.FileFormat, logger, c.faultHop)
	c.reconnectSched = NewRetryScheduler(RetryKindReconnect, cameraID, logger)
	c.recordRetrySched = NewRetryScheduler(RetryKindRecordingRetry, cameraID, logger)
	return c
}

// Create builds the MediaGraph from the current settings. Fails with
// ConstructionError if any required element cannot be instantiated. Does
// not start data flow (§4.1).
func (c *PipelineController) Create() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != stateIdle {
		return nil
	}

	c.graph = NewMediaGraph(c.cameraID, c.snapshot, c.logger, c.segmenter, c.HandleBusEvent)
	if err := c.graph.Build(); err != nil {
		return err
	}

	c.state = stateBuilt
	return nil
}

// Start transitions the graph to a running state, arms the FrameWatchdog,
// applies the initial mode's valve configuration, and notifies connection
// observers with connected=true. Idempotent if already playing (§4.1).
func (c *PipelineController) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state == statePlaying {
		c.mu.Unlock()
		return nil
	}
	if c.state == stateIdle {
		c.mu.Unlock()
		if err := c.Create(); err != nil {
			return err
		}
		c.mu.Lock()
	}
	c.mu.Unlock()

	startCtx, cancel := context.WithTimeout(ctx, startTimeout)
	defer cancel()

	// The streaming branch is kept open during startup regardless of mode
	// so the graph reaches running state (§4.2); mode-correct valves are
	// re-applied immediately after.
	if err := c.graph.OpenStreamingValve(); err != nil {
		return &StartError{CameraID: c.cameraID, Reason: "streaming valve failed to open", Err: err}
	}

	select {
	case <-startCtx.Done():
		return &StartError{CameraID: c.cameraID, Reason: "start timed out", Err: startCtx.Err()}
	default:
	}

	c.mu.Lock()
	c.state = statePlaying
	firstConnect := !c.everConnected
	c.everConnected = true
	c.mu.Unlock()

	c.armTimers()
	c.applyModeValves()

	c.registry.NotifyConnection(ConnectionState{CameraID: c.cameraID, IsConnected: true, Severity: SeverityNormal})
	c.reconnectSched.Reset()

	c.maybeAutoResumeRecording(firstConnect)
	return nil
}

// armTimers starts the FrameWatchdog and OSD refresh goroutines under a
// fresh errgroup so Stop can cancel and join them as one unit (§5, §12).
func (c *PipelineController) armTimers() {
	c.mu.Lock()
	defer c.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(ctx)
	c.group = g
	c.groupCtx = gctx
	c.cancelGrp = cancel

	c.watchdog = NewFrameWatchdog(c.cameraID, c.logger, c.onFrameStall)
	c.graph.SetFrameActivityCallback(c.watchdog.Touch)
	g.Go(func() error { return c.watchdog.Run(gctx) })
	g.Go(func() error { return c.osdLoop(gctx) })
	g.Go(func() error { return c.faultHopLoop(gctx) })
}

func (c *PipelineController) osdLoop(ctx context.Context) error {
	ticker := time.NewTicker(osdTickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if !c.osdLimiter.Allow() {
				continue
			}
			text := fmt.Sprintf("%s %s", c.snapshot.Camera.Name, time.Now().Format("2006-01-02 15:04:05"))
			if err := c.graph.UpdateOSDText(text); err != nil {
				c.logger.WithFields(logging.Fields{"camera_id": c.cameraID, "error": err}).Debug("osd text refresh failed")
			}
		}
	}
}

// faultHopLoop drains the Segmenter's thread-safe storage-fault signal and
// dispatches it onto the controller's own control path (§4.4, §9).
func (c *PipelineController) faultHopLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case fault := <-c.faultHop:
			c.pathGuard.SetLastCorruptedFile(fault.Path)
			c.handleStorageDisconnected()
		}
	}
}

// Stop tears down the graph to a null state. Idempotent. Cancels all
// timers, then the media graph, in that order (§5 Cancellation). Must be
// safe to call from any thread without self-deadlock.
func (c *PipelineController) Stop(ctx context.Context) error {
	c.mu.Lock()
	if c.state == stateStopped || c.state == stateIdle {
		c.mu.Unlock()
		return nil
	}
	wasPlaying := c.state == statePlaying
	c.state = stateStopped
	cancelGrp := c.cancelGrp
	group := c.group
	c.mu.Unlock()

	c.reconnectSched.Cancel()
	c.recordRetrySched.Cancel()

	if cancelGrp != nil {
		cancelGrp()
	}
	if group != nil {
		_ = group.Wait()
	}

	if c.graph != nil {
		c.graph.Teardown()
	}

	c.mu.Lock()
	c.recording = false
	c.mu.Unlock()

	if wasPlaying {
		c.registry.NotifyConnection(ConnectionState{CameraID: c.cameraID, IsConnected: false, Severity: SeverityCritical})
	}

	c.registry.Clear()
	return nil
}

// StartRecording opens the recording valve after a successful
// PathGuard.Validate. Fails with RecordingStartError when not playing, path
// validation fails, or the valve element is missing. Idempotent (§4.1).
func (c *PipelineController) StartRecording() error {
	c.mu.Lock()
	if c.recording {
		c.mu.Unlock()
		return nil
	}
	if c.state != statePlaying {
		c.mu.Unlock()
		return &RecordingStartError{CameraID: c.cameraID, Cause: "controller not playing"}
	}
	if c.graph == nil {
		c.mu.Unlock()
		return &RecordingStartError{CameraID: c.cameraID, Cause: "media graph missing"}
	}
	c.mu.Unlock()

	if _, err := c.pathGuard.Validate(c.snapshot.Storage.RecordingPath, c.cameraID, time.Now()); err != nil {
		return &RecordingStartError{CameraID: c.cameraID, Cause: "path validation failed", Err: err}
	}

	c.graph.OpenRecordingValve(context.Background())

	c.mu.Lock()
	c.recording = true
	c.mu.Unlock()

	c.recordRetrySched.Reset()
	c.registry.NotifyRecording(RecordingState{CameraID: c.cameraID, IsRecording: true, Severity: SeverityNormal})
	return nil
}

// StopRecording closes the recording valve and instructs the muxer to
// finalize the current segment. If reason is StopReasonStorageError the
// finalization signal is skipped because the mount is gone. Idempotent
// (§4.1).
func (c *PipelineController) StopRecording(reason StopReason) {
	c.mu.Lock()
	if !c.recording {
		c.mu.Unlock()
		return
	}
	c.recording = false
	c.mu.Unlock()

	if c.graph != nil {
		c.graph.CloseRecordingValve(reason)
	}

	c.registry.NotifyRecording(RecordingState{CameraID: c.cameraID, IsRecording: false, Severity: severityForStopReason(reason)})
}

func severityForStopReason(reason StopReason) Severity {
	if reason == StopReasonStorageError {
		return SeverityWarning
	}
	return SeverityNormal
}

// SetMode updates the mode; if playing, re-applies the valve configuration
// immediately (§4.1). set_mode does not itself (re)open the recording valve
// — StartRecording must be called explicitly.
func (c *PipelineController) SetMode(mode Mode) {
	c.mu.Lock()
	c.mode = mode
	playing := c.state == statePlaying
	c.mu.Unlock()

	if playing {
		c.applyModeValves()
	}
}

// applyModeValves implements the mode table of §4.2.
func (c *PipelineController) applyModeValves() {
	c.mu.Lock()
	mode := c.mode
	recording := c.recording
	c.mu.Unlock()

	switch mode {
	case ModeStreamingOnly:
		_ = c.graph.OpenStreamingValve()
		if recording {
			c.StopRecording(StopReasonRequested)
		}
	case ModeRecordingOnly:
		c.graph.CloseStreamingValve()
	case ModeBoth:
		_ = c.graph.OpenStreamingValve()
	}
}

// RegisterObserver adds o to the registry for the given kind.
func (c *PipelineController) RegisterObserver(kind ObserverKind, observer interface{}) {
	switch kind {
	case ObserverKindRecording:
		if o, ok := observer.(RecordingObserver); ok {
			c.registry.RegisterRecordingObserver(o)
		}
	case ObserverKindConnection:
		if o, ok := observer.(ConnectionObserver); ok {
			c.registry.RegisterConnectionObserver(o)
		}
	}
}

// UnregisterObserver removes o from the registry for the given kind.
func (c *PipelineController) UnregisterObserver(kind ObserverKind, observer interface{}) {
	switch kind {
	case ObserverKindRecording:
		if o, ok := observer.(RecordingObserver); ok {
			c.registry.UnregisterRecordingObserver(o)
		}
	case ObserverKindConnection:
		if o, ok := observer.(ConnectionObserver); ok {
			c.registry.UnregisterConnectionObserver(o)
		}
	}
}

// SetWindowHandle injects the platform window handle for the video sink;
// re-injection while running is supported (§6).
func (c *PipelineController) SetWindowHandle(handle string) {
	if c.graph != nil {
		c.graph.SetWindowHandle(handle)
	}
}

// NotifyStorageErrorFromUI handles an inbound signal from an external
// storage monitor that observed a failure independently, identically to a
// STORAGE_DISCONNECTED from the bus (§6).
func (c *PipelineController) NotifyStorageErrorFromUI() {
	c.handleStorageDisconnected()
}

// HandleBusEvent classifies a raw media-bus event and dispatches it to the
// per-kind recovery table of §4.7. Intended to be called from MediaGraph's
// stderr-parsing goroutine, never from the control path directly.
func (c *PipelineController) HandleBusEvent(ev BusEvent) {
	classification := Classify(ev)
	c.logger.WithFields(logging.Fields{
		"camera_id": c.cameraID,
		"kind":      classification.Kind,
		"branch":    classification.Branch,
		"source":    classification.SourceElem,
	}).Warn("classified media error")

	switch classification.Kind {
	case ErrorKindRTSPNetwork:
		c.handleRTSPNetworkError()
	case ErrorKindStorageDisconnected:
		c.handleStorageDisconnected()
	case ErrorKindDiskFull:
		c.handleDiskFull()
	case ErrorKindDecoder:
		c.logger.WithFields(logging.Fields{"camera_id": c.cameraID}).Debug("decoder error flush, no state change")
	case ErrorKindVideoSink:
		c.handleVideoSinkError()
	case ErrorKindUnknown:
		if classification.SourceElem == "source" {
			c.handleRTSPNetworkError()
		} else {
			c.logger.WithFields(logging.Fields{"camera_id": c.cameraID}).Info("unknown error, ignored")
		}
	}
}

// onFrameStall is FrameWatchdog's callback, treated identically to an
// explicit RTSP error (§4.5).
func (c *PipelineController) onFrameStall() {
	c.handleRTSPNetworkError()
}

// handleRTSPNetworkError implements §4.7's RTSP_NETWORK row: tear the graph
// down, remember was_recording, schedule reconnect with backoff. The teardown
// runs synchronously on the calling goroutine (the stderr scanner or the
// watchdog); it is not handed to a separate worker.
func (c *PipelineController) handleRTSPNetworkError() {
	c.mu.Lock()
	if c.state != statePlaying {
		c.mu.Unlock()
		return
	}
	wasRecording := c.recording
	c.shouldAutoResumeRecording = wasRecording
	c.recording = false
	c.state = stateStopped
	c.mu.Unlock()

	if wasRecording {
		c.registry.NotifyRecording(RecordingState{CameraID: c.cameraID, IsRecording: false, Severity: SeverityWarning})
	}
	c.registry.NotifyConnection(ConnectionState{CameraID: c.cameraID, IsConnected: false, Severity: SeverityWarning})

	if c.graph != nil {
		c.graph.Teardown()
	}

	var attemptReconnect func(attempt int)
	attemptReconnect = func(attempt int) {
		if err := ProbeTCP(context.Background(), c.snapshot.Camera.RTSPURL); err != nil {
			c.logger.WithFields(logging.Fields{"camera_id": c.cameraID, "attempt": attempt, "error": err}).
				Info("tcp probe failed, rescheduling reconnect")
			c.reconnectSched.Schedule(attemptReconnect)
			return
		}

		c.mu.Lock()
		c.state = stateBuilt
		c.mu.Unlock()

		if err := c.Start(context.Background()); err != nil {
			c.logger.WithFields(logging.Fields{"camera_id": c.cameraID, "attempt": attempt, "error": err}).
				Warn("reconnect attempt failed to start")
		}
	}
	c.reconnectSched.Schedule(attemptReconnect)
}

// handleStorageDisconnected implements §4.7's STORAGE_DISCONNECTED row.
func (c *PipelineController) handleStorageDisconnected() {
	c.mu.Lock()
	c.shouldAutoResumeRecording = true
	c.mu.Unlock()

	c.StopRecording(StopReasonStorageError)
	c.recordRetrySched.Schedule(c.retryStorageRecording)
}

// retryStorageRecording is recordRetrySched's onFire callback for a
// STORAGE_DISCONNECTED recovery. On failure it re-arms the scheduler with
// itself so the retry continues every recordingRetryInterval up to
// recordingRetryMaxAttempt (§4.7/§4.8) — it must never be replaced with a
// one-shot no-op, or the retry loop dies after its first tick.
func (c *PipelineController) retryStorageRecording(attempt int) {
	if err := c.StartRecording(); err != nil {
		c.logger.WithFields(logging.Fields{"camera_id": c.cameraID, "attempt": attempt}).
			Debug("recording-retry attempt still blocked")
		c.recordRetrySched.Schedule(c.retryStorageRecording)
		return
	}
	c.recordRetrySched.Reset()
}

// handleDiskFull implements §4.7's DISK_FULL row. The storage janitor is an
// external collaborator; this controller only stops recording and defers to
// the free-space check on the next recording-retry tick.
func (c *PipelineController) handleDiskFull() {
	c.StopRecording(StopReasonStorageError)
	c.logger.WithFields(logging.Fields{"camera_id": c.cameraID}).Error("disk full, recording stopped pending external janitor")
	c.recordRetrySched.Schedule(c.retryDiskFullRecording)
}

// retryDiskFullRecording is recordRetrySched's onFire callback for a
// DISK_FULL recovery; see retryStorageRecording for why it must re-arm
// itself rather than a one-shot no-op on failure.
func (c *PipelineController) retryDiskFullRecording(attempt int) {
	if err := c.StartRecording(); err != nil {
		c.logger.WithFields(logging.Fields{"camera_id": c.cameraID, "attempt": attempt}).
			Debug("recording-retry attempt still blocked on disk space")
		c.recordRetrySched.Schedule(c.retryDiskFullRecording)
		return
	}
	c.recordRetrySched.Reset()
}

// handleVideoSinkError implements §4.7's VIDEO_SINK row: headless is a
// no-op; otherwise close the streaming valve only, recording continues.
func (c *PipelineController) handleVideoSinkError() {
	handle := ""
	if c.graph != nil {
		handle = c.graph.WindowHandle()
	}

	if handle == "" {
		return
	}
	if c.graph != nil {
		c.graph.CloseStreamingValve()
	}
	c.logger.WithFields(logging.Fields{"camera_id": c.cameraID}).Warn("streaming branch error, streaming valve closed, recording unaffected")
}

// maybeAutoResumeRecording implements the auto-resume policy of §4.1.
func (c *PipelineController) maybeAutoResumeRecording(firstConnect bool) {
	c.mu.Lock()
	shouldResume := c.shouldAutoResumeRecording
	recordOnStart := c.snapshot.Camera.RecordingEnabledStart
	c.mu.Unlock()

	switch {
	case shouldResume:
		_ = c.StartRecording()
	case firstConnect && recordOnStart:
		_ = c.StartRecording()
	}
}

// IsPlaying reports whether the controller is in the Playing state.
func (c *PipelineController) IsPlaying() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == statePlaying
}

// IsRecording reports whether the recording sub-state is on.
func (c *PipelineController) IsRecording() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recording
}

// EverConnected reports whether Playing has ever been entered.
func (c *PipelineController) EverConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.everConnected
}

// ApplySettings replaces the controller's settings snapshot. Delivered
// through an explicit call rather than the controller reaching into global
// state (§9).
func (c *PipelineController) ApplySettings(snapshot config.Snapshot) {
	c.mu.Lock()
	c.snapshot = snapshot
	c.mode = Mode(snapshot.Camera.Mode)
	graph := c.graph
	c.mu.Unlock()

	c.pathGuard.ApplySettings(snapshot.Storage.WarnFreeSpaceGB)
	c.segmenter.ApplySettings(snapshot.Storage.RecordingPath, snapshot.Recording.FileFormat)
	if graph != nil {
		graph.ApplySettings(snapshot)
	}
}

// Metrics reports CPU/RSS usage of this camera's currently running
// subprocess(es), or a zero-value result if construction hasn't happened yet
// (§1 "the process-wide system monitor" out-of-scope collaborator; §12).
func (c *PipelineController) Metrics() PipelineMetrics {
	c.mu.Lock()
	graph := c.graph
	c.mu.Unlock()

	m := PipelineMetrics{CameraID: c.cameraID}
	if graph == nil {
		return m
	}
	m.Streaming, m.Recording = graph.Metrics()
	return m
}
