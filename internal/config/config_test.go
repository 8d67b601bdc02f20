package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_SnapshotFor_ReturnsSharedGroupsPlusCamera(t *testing.T) {
	cfg := &Config{
		Recording: RecordingConfig{FileFormat: FileFormatMP4, Codec: CodecH264, RotationMinutes: 60},
		Streaming: StreamingConfig{LatencyMS: 200},
		Storage:   StorageConfig{RecordingPath: "/var/lib/nvr/recordings", MinFreeSpaceGB: 1, WarnFreeSpaceGB: 5},
		Cameras: []CameraConfig{
			{CameraID: "cam-1", RTSPURL: "rtsp://10.0.0.1/stream", Mode: ModeBoth},
			{CameraID: "cam-2", RTSPURL: "rtsp://10.0.0.2/stream", Mode: ModeStreamingOnly},
		},
	}

	snap, ok := cfg.SnapshotFor("cam-2")
	require.True(t, ok)
	assert.Equal(t, "cam-2", snap.Camera.CameraID)
	assert.Equal(t, ModeStreamingOnly, snap.Camera.Mode)
	assert.Equal(t, cfg.Recording, snap.Recording)
	assert.Equal(t, cfg.Storage, snap.Storage)
}

func TestConfig_SnapshotFor_UnknownCameraReturnsFalse(t *testing.T) {
	cfg := &Config{Cameras: []CameraConfig{{CameraID: "cam-1"}}}

	_, ok := cfg.SnapshotFor("does-not-exist")
	assert.False(t, ok)
}

func TestConfig_String_IncludesCameraCount(t *testing.T) {
	cfg := &Config{
		Recording: RecordingConfig{FileFormat: FileFormatMP4, Codec: CodecH264, RotationMinutes: 30},
		Storage:   StorageConfig{RecordingPath: "/data", MinFreeSpaceGB: 2},
		Logging:   LoggingConfig{Level: "info"},
		Cameras:   []CameraConfig{{CameraID: "a"}, {CameraID: "b"}},
	}

	assert.Contains(t, cfg.String(), "Cameras: 2 configured")
}
