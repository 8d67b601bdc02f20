package pipeline

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YawnsDuzin/nvr-gstreamer/internal/config"
)

func testSnapshot(t *testing.T) config.Snapshot {
	t.Helper()
	return config.Snapshot{
		Recording: config.RecordingConfig{FileFormat: config.FileFormatMP4, Codec: config.CodecH264, RotationMinutes: 1},
		Streaming: config.StreamingConfig{TCPTimeoutMS: 5000, MaxReconnectAttempts: 10, ReconnectDelaySeconds: 5},
		Storage:   config.StorageConfig{RecordingPath: t.TempDir(), MinFreeSpaceGB: 1, WarnFreeSpaceGB: 5},
		Camera:    config.CameraConfig{CameraID: "cam-1", Name: "Front Door", RTSPURL: "rtsp://127.0.0.1:554/stream", Mode: config.ModeBoth},
	}
}

func TestPipelineController_Stop_IsIdempotentBeforeCreate(t *testing.T) {
	c := NewPipelineController("cam-1", testSnapshot(t), newTestLogger())

	require.NoError(t, c.Stop(context.Background()))
	require.NoError(t, c.Stop(context.Background()))
}

func TestPipelineController_SetMode_UpdatesModeWithoutPlaying(t *testing.T) {
	c := NewPipelineController("cam-1", testSnapshot(t), newTestLogger())

	c.SetMode(ModeStreamingOnly)
	assert.Equal(t, ModeStreamingOnly, c.mode)
}

func TestPipelineController_RegisterObserver_RecordingKind(t *testing.T) {
	c := NewPipelineController("cam-1", testSnapshot(t), newTestLogger())
	spy := &recordingSpy{}

	c.RegisterObserver(ObserverKindRecording, spy)
	c.registry.NotifyRecording(RecordingState{CameraID: "cam-1", IsRecording: true})

	require.Len(t, spy.states, 1)
}

func TestPipelineController_StartRecording_FailsWhenNotPlaying(t *testing.T) {
	c := NewPipelineController("cam-1", testSnapshot(t), newTestLogger())

	err := c.StartRecording()
	require.Error(t, err)
	var recErr *RecordingStartError
	assert.ErrorAs(t, err, &recErr)
}

func TestPipelineController_Create_FailsConstructionWithoutFFmpegBinary(t *testing.T) {
	if _, err := exec.LookPath("ffmpeg"); err == nil {
		t.Skip("ffmpeg is installed in this environment; construction-failure path not exercised")
	}

	c := NewPipelineController("cam-1", testSnapshot(t), newTestLogger())
	err := c.Create()
	require.Error(t, err)
	var ctorErr *ConstructionError
	assert.ErrorAs(t, err, &ctorErr)
}

func TestPipelineController_EverConnected_StartsFalse(t *testing.T) {
	c := NewPipelineController("cam-1", testSnapshot(t), newTestLogger())
	assert.False(t, c.EverConnected())
}

func TestPipelineController_Metrics_ZeroValueBeforeCreate(t *testing.T) {
	c := NewPipelineController("cam-1", testSnapshot(t), newTestLogger())

	m := c.Metrics()
	assert.Equal(t, "cam-1", m.CameraID)
	assert.Nil(t, m.Streaming)
	assert.Nil(t, m.Recording)
}

func TestPipelineController_ApplySettings_PropagatesToPathGuardAndSegmenter(t *testing.T) {
	c := NewPipelineController("cam-1", testSnapshot(t), newTestLogger())

	newRoot := t.TempDir()
	updated := testSnapshot(t)
	updated.Storage.RecordingPath = newRoot
	updated.Storage.WarnFreeSpaceGB = 42
	updated.Recording.FileFormat = config.FileFormatMKV

	c.ApplySettings(updated)

	assert.Equal(t, float64(42), c.pathGuard.warnFreeSpaceGB)
	assert.Equal(t, newRoot, c.segmenter.recordingRoot)
	assert.Equal(t, "mkv", c.segmenter.ext)
}

// playingControllerWithoutFFmpeg builds a controller in the Playing state
// with a real MediaGraph that was never Build()-validated, so the test
// doesn't depend on an ffmpeg binary being on PATH. OpenRecordingValve only
// spawns ffmpeg from its own background retry loop and never blocks
// StartRecording's success path, so this is sufficient to exercise the
// recording-retry handlers end to end.
func playingControllerWithoutFFmpeg(t *testing.T, snapshot config.Snapshot) *PipelineController {
	t.Helper()
	c := NewPipelineController("cam-1", snapshot, newTestLogger())
	c.mu.Lock()
	c.state = statePlaying
	c.graph = NewMediaGraph(c.cameraID, c.snapshot, c.logger, c.segmenter, c.HandleBusEvent)
	c.mu.Unlock()
	return c
}

// TestPipelineController_HandleStorageDisconnected_RetriesPastFirstTick
// guards against the recording-retry loop silently dying after its first
// tick (§4.7/§4.8: "every 6s, up to 20 attempts"). A prior version
// rescheduled an empty no-op closure on failure instead of recursing into
// the named retry callback, so only the first tick ever ran real logic.
// This waits for the first real scheduler tick to fail and re-arm, fixes the
// simulated fault, then expects the second tick to resume recording, matching Testable-Properties scenario 3
// (USB yanked mid-record, mount restored a few attempts later).
func TestPipelineController_HandleStorageDisconnected_RetriesPastFirstTick(t *testing.T) {
	snapshot := testSnapshot(t)
	snapshot.Storage.RecordingPath = fmt.Sprintf("/mnt/does-not-exist-%d", time.Now().UnixNano())

	c := playingControllerWithoutFFmpeg(t, snapshot)

	c.mu.Lock()
	c.recording = true
	c.mu.Unlock()

	c.handleStorageDisconnected()

	require.Eventually(t, func() bool {
		return c.recordRetrySched.Attempt() >= 2
	}, recordingRetryInterval*3, 50*time.Millisecond, "expected the first retry tick to have fired and re-armed the scheduler")

	require.False(t, c.IsRecording(), "recording must stay stopped while the mount is missing")

	fixed := testSnapshot(t)
	c.ApplySettings(fixed)

	require.Eventually(t, func() bool {
		return c.IsRecording()
	}, recordingRetryInterval*2, 50*time.Millisecond, "recording should resume once a later retry tick observes the restored mount")
}

// TestPipelineController_HandleDiskFull_RetriesPastFirstTick is
// handleDiskFull's equivalent of the test above — it shares the same
// recursive-retry bug class (§4.7 DISK_FULL row).
func TestPipelineController_HandleDiskFull_RetriesPastFirstTick(t *testing.T) {
	snapshot := testSnapshot(t)
	snapshot.Storage.RecordingPath = fmt.Sprintf("/mnt/does-not-exist-%d", time.Now().UnixNano())

	c := playingControllerWithoutFFmpeg(t, snapshot)
	c.mu.Lock()
	c.recording = true
	c.mu.Unlock()

	c.handleDiskFull()

	require.Eventually(t, func() bool {
		return c.recordRetrySched.Attempt() >= 2
	}, recordingRetryInterval*3, 50*time.Millisecond, "expected the first retry tick to have fired and re-armed the scheduler")

	fixed := testSnapshot(t)
	c.ApplySettings(fixed)

	require.Eventually(t, func() bool {
		return c.IsRecording()
	}, recordingRetryInterval*2, 50*time.Millisecond, "recording should resume once a later retry tick observes the restored free space")
}

// TestPipelineController_ArmTimers_StaysPlayingPastStallThresholdWithLiveStderr
// is the controller-level sibling of the MediaGraph-level watchdog wiring
// tests: it drives armTimers' real FrameWatchdog goroutine through a real
// MediaGraph.scanStderr fed by simulated ffmpeg stderr activity, for longer
// than watchdogStallTimeout, and asserts the controller never falls out of
// Playing. This is Testable-Properties scenario 1's "stay connected" half —
// before the fix, every controller declared a spurious stall ~6s after
// Start regardless of stream health, because nothing past construction ever
// called watchdog.Touch.
func TestPipelineController_ArmTimers_StaysPlayingPastStallThresholdWithLiveStderr(t *testing.T) {
	c := playingControllerWithoutFFmpeg(t, testSnapshot(t))
	c.armTimers()
	defer func() {
		c.mu.Lock()
		cancel := c.cancelGrp
		group := c.group
		c.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		if group != nil {
			_ = group.Wait()
		}
	}()

	pr, pw := io.Pipe()
	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(500 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				pw.Close()
				return
			case <-ticker.C:
				if _, err := pw.Write([]byte("frame=   42 fps= 25 q=-1.0 size=  1024kB time=00:00:01.68 bitrate= 498.0kbits/s\n")); err != nil {
					return
				}
			}
		}
	}()
	defer close(stop)

	go c.graph.scanStderr(pr, BranchHintStreaming)

	require.Never(t, func() bool {
		return !c.IsPlaying()
	}, watchdogStallTimeout+watchdogTickInterval+500*time.Millisecond, 250*time.Millisecond,
		"controller must stay Playing while stderr activity keeps touching the watchdog")
}
