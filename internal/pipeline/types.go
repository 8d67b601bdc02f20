// Package pipeline implements the per-camera media pipeline core: one
// PipelineController per configured camera, supervising an FFmpeg-subprocess
// MediaGraph, a PathGuard pre-recording check, a FrameWatchdog stall
// detector, an ErrorClassifier/RetryScheduler recovery loop, and a
// CallbackRegistry fan-out to connection/recording observers.
package pipeline

import (
	"fmt"
	"time"

	"github.com/YawnsDuzin/nvr-gstreamer/internal/config"
)

// Mode selects which branches of the media graph are active.
type Mode string

const (
	ModeStreamingOnly Mode = Mode(config.ModeStreamingOnly)
	ModeRecordingOnly Mode = Mode(config.ModeRecordingOnly)
	ModeBoth          Mode = Mode(config.ModeBoth)
)

// ErrorKind is the closed classification set over all runtime media errors
// (§4.6). Classification is total: every raw error maps to exactly one kind.
type ErrorKind string

const (
	ErrorKindRTSPNetwork         ErrorKind = "rtsp_network"
	ErrorKindStorageDisconnected ErrorKind = "storage_disconnected"
	ErrorKindDiskFull            ErrorKind = "disk_full"
	ErrorKindDecoder             ErrorKind = "decoder"
	ErrorKindVideoSink           ErrorKind = "video_sink"
	ErrorKindUnknown             ErrorKind = "unknown"
)

// BranchHint distinguishes which branch raised an otherwise-unclassified
// error, folding the original implementation's RECORDING_BRANCH/
// STREAMING_BRANCH catch-all kinds into ErrorKindUnknown (§13) without
// growing the closed ErrorKind set.
type BranchHint string

const (
	BranchHintNone      BranchHint = ""
	BranchHintStreaming BranchHint = "streaming_branch"
	BranchHintRecording BranchHint = "recording_branch"
)

// Severity is a stable machine-readable tier accompanying a status value, so
// an observer can render without re-deriving severity from the raw state
// (§13, modeled on the original's get_status_color).
type Severity string

const (
	SeverityNormal   Severity = "normal"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// ConnectionState is the controller-level connection status reported to
// observers, carrying the severity tier alongside the raw boolean.
type ConnectionState struct {
	CameraID    string
	IsConnected bool
	Severity    Severity
	Detail      string
}

// RecordingState is the controller-level recording status reported to
// observers.
type RecordingState struct {
	CameraID    string
	IsRecording bool
	Severity    Severity
	Detail      string
}

// FreeSpaceTier is PathGuard's free-space classification: pass, an
// intermediate warning ahead of the hard floor, or a hard failure (§13,
// modeled on the original's AlertLevel).
type FreeSpaceTier string

const (
	FreeSpaceOK       FreeSpaceTier = "ok"
	FreeSpaceWarning  FreeSpaceTier = "warning"
	FreeSpaceCritical FreeSpaceTier = "critical"
)

// controllerState is the internal PipelineController state machine (§4.1).
type controllerState string

const (
	stateIdle    controllerState = "idle"
	stateBuilt   controllerState = "built"
	statePlaying controllerState = "playing"
	stateStopped controllerState = "stopped"
)

// StopReason distinguishes a graceful stop_recording from one triggered
// because the storage mount itself vanished (§4.1 stop_recording(reason)).
type StopReason string

const (
	StopReasonRequested   StopReason = "requested"
	StopReasonStorageError StopReason = "storage_error"
)

// Segment is a single recording fragment (§3 Data Model).
type Segment struct {
	Index           int
	Path            string
	PlannedStart    time.Time
	CameraID        string
	CorrelationID   string
}

// TransformMethod is the single transform value flip+rotation settings are
// mapped to by the table in §4.2.
type TransformMethod string

const (
	TransformIdentity TransformMethod = "identity"
	TransformHFlip    TransformMethod = "hflip"
	TransformVFlip    TransformMethod = "vflip"
	Transform180      TransformMethod = "rot180"
	TransformCW90     TransformMethod = "cw90"
	TransformCCW90    TransformMethod = "ccw90"
)

// ResolveTransformMethod implements the rotation+flip → method table of
// §4.2. Non-cardinal rotations are rejected by config validation, so only
// {0,90,180,270} reach here.
func ResolveTransformMethod(rotation int, flip config.FlipSetting) (TransformMethod, error) {
	switch rotation {
	case 90:
		return TransformCW90, nil
	case 270:
		return TransformCCW90, nil
	case 0:
		switch flip {
		case config.FlipNone:
			return TransformIdentity, nil
		case config.FlipHorizontal:
			return TransformHFlip, nil
		case config.FlipVertical:
			return TransformVFlip, nil
		case config.FlipBoth:
			return Transform180, nil
		}
	case 180:
		switch flip {
		case config.FlipNone:
			return Transform180, nil
		case config.FlipHorizontal:
			return TransformVFlip, nil
		case config.FlipVertical:
			return TransformHFlip, nil
		case config.FlipBoth:
			return Transform180, nil
		}
	}
	return "", fmt.Errorf("unsupported rotation/flip combination: rotation=%d flip=%s", rotation, flip)
}

// ObserverKind distinguishes the two CallbackRegistry channels (§4.9).
type ObserverKind string

const (
	ObserverKindRecording ObserverKind = "recording"
	ObserverKindConnection ObserverKind = "connection"
)

// ConnectionObserver receives connection-state transitions.
type ConnectionObserver interface {
	OnConnectionState(state ConnectionState)
}

// RecordingObserver receives recording-state transitions.
type RecordingObserver interface {
	OnRecordingState(state RecordingState)
}

// ProcessMetrics reports the resource footprint of one supervised FFmpeg
// subprocess, surfaced to the external system monitor (§1 out-of-scope
// collaborators; §12 gopsutil wiring).
type ProcessMetrics struct {
	PID        int32
	CPUPercent float64
	RSSBytes   uint64
}

// PipelineMetrics aggregates the streaming and recording branch subprocess
// metrics for one camera's PipelineController.Metrics() call.
type PipelineMetrics struct {
	CameraID  string
	Streaming *ProcessMetrics
	Recording *ProcessMetrics
}
