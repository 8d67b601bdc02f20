package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/YawnsDuzin/nvr-gstreamer/internal/logging"
)

// Config represents the complete on-disk/env configuration for the pipeline
// core, decoded by viper into mapstructure-tagged fields.
type Config struct {
	Recording RecordingConfig  `mapstructure:"recording"`
	Streaming StreamingConfig  `mapstructure:"streaming"`
	Storage   StorageConfig    `mapstructure:"storage"`
	Logging   LoggingConfig    `mapstructure:"logging"`
	Cameras   []CameraConfig   `mapstructure:"cameras"`
}

// FileFormat is the closed set of recording container formats.
type FileFormat string

const (
	FileFormatMP4 FileFormat = "mp4"
	FileFormatMKV FileFormat = "mkv"
	FileFormatAVI FileFormat = "avi"
)

// Codec is the closed set of recording video codecs.
type Codec string

const (
	CodecH264 Codec = "h264"
	CodecH265 Codec = "h265"
)

// Mode is the closed set of pipeline operating modes.
type Mode string

const (
	ModeStreamingOnly Mode = "streaming_only"
	ModeRecordingOnly Mode = "recording_only"
	ModeBoth          Mode = "both"
)

// FlipSetting is the closed set of video-transform flip settings.
type FlipSetting string

const (
	FlipNone       FlipSetting = "none"
	FlipHorizontal FlipSetting = "horizontal"
	FlipVertical   FlipSetting = "vertical"
	FlipBoth       FlipSetting = "both"
)

// RecordingConfig holds recording-branch settings (§6 "recording" group).
type RecordingConfig struct {
	FileFormat         FileFormat    `mapstructure:"file_format"`
	Codec              Codec         `mapstructure:"codec"`
	RotationMinutes    int           `mapstructure:"rotation_minutes"`
	FragmentDuration   time.Duration `mapstructure:"fragment_duration_ms"`
	MaxSegmentBytes    int64         `mapstructure:"max_segment_bytes"`
}

// OSDConfig holds on-screen-display overlay settings.
type OSDConfig struct {
	ShowTimestamp  bool   `mapstructure:"show_timestamp"`
	ShowCameraName bool   `mapstructure:"show_camera_name"`
	Font           string `mapstructure:"font"`
	Color          string `mapstructure:"color"`
	Alignment      string `mapstructure:"alignment"`
	Padding        int    `mapstructure:"padding"`
}

// StreamingConfig holds streaming-branch settings (§6 "streaming" group).
type StreamingConfig struct {
	LatencyMS             int           `mapstructure:"latency_ms"`
	TCPTimeoutMS          int           `mapstructure:"tcp_timeout_ms"`
	KeepaliveTimeoutS     int           `mapstructure:"keepalive_timeout_s"`
	UseHardwareAccel      bool          `mapstructure:"use_hardware_acceleration"`
	DecoderPreference     []string      `mapstructure:"decoder_preference"`
	OSD                   OSDConfig     `mapstructure:"osd"`
	DefaultLayout         string        `mapstructure:"default_layout"`
	MaxReconnectAttempts  int           `mapstructure:"max_reconnect_attempts"`
	ReconnectDelaySeconds int           `mapstructure:"reconnect_delay_seconds"`
}

// StorageConfig holds recording-archive storage settings.
type StorageConfig struct {
	RecordingPath         string  `mapstructure:"recording_path"`
	MinFreeSpaceGB        float64 `mapstructure:"min_free_space_gb"`
	WarnFreeSpaceGB       float64 `mapstructure:"warn_free_space_gb"`
}

// LoggingConfig mirrors internal/logging.LoggingConfig's mapstructure shape
// so the top-level Config can decode it in one viper.Unmarshal call.
type LoggingConfig struct {
	Level          string `mapstructure:"level"`
	Format         string `mapstructure:"format"`
	FileEnabled    bool   `mapstructure:"file_enabled"`
	FilePath       string `mapstructure:"file_path"`
	MaxFileSizeMB  int    `mapstructure:"max_file_size_mb"`
	BackupCount    int    `mapstructure:"backup_count"`
	ConsoleEnabled bool   `mapstructure:"console_enabled"`
}

// VideoTransform describes the per-camera flip/rotation settings mapped to a
// single transform method by the table in SPEC_FULL.md §4.2.
type VideoTransform struct {
	Enabled  bool        `mapstructure:"enabled"`
	Flip     FlipSetting `mapstructure:"flip"`
	Rotation int         `mapstructure:"rotation"`
}

// CameraConfig holds per-camera settings (§6 "per-camera" group).
type CameraConfig struct {
	CameraID               string         `mapstructure:"camera_id"`
	Name                   string         `mapstructure:"name"`
	RTSPURL                string         `mapstructure:"rtsp_url"`
	Enabled                bool           `mapstructure:"enabled"`
	Username               string         `mapstructure:"username"`
	Password               string         `mapstructure:"password"`
	Mode                   Mode           `mapstructure:"mode"`
	StreamingEnabledStart  bool           `mapstructure:"streaming_enabled_start"`
	RecordingEnabledStart  bool           `mapstructure:"recording_enabled_start"`
	VideoTransform         VideoTransform `mapstructure:"video_transform"`
}

// ToLoggingConfig adapts the settings-schema LoggingConfig to the shape
// internal/logging.ConfigureFactory expects.
func (c LoggingConfig) ToLoggingConfig() *logging.LoggingConfig {
	return &logging.LoggingConfig{
		Level:          c.Level,
		Format:         c.Format,
		FileEnabled:    c.FileEnabled,
		FilePath:       c.FilePath,
		MaxFileSize:    c.MaxFileSizeMB,
		BackupCount:    c.BackupCount,
		ConsoleEnabled: c.ConsoleEnabled,
	}
}

// String returns a debug-friendly summary of the configuration.
func (c *Config) String() string {
	var parts []string
	parts = append(parts, fmt.Sprintf("Recording: format=%s codec=%s rotation=%dm", c.Recording.FileFormat, c.Recording.Codec, c.Recording.RotationMinutes))
	parts = append(parts, fmt.Sprintf("Storage: path=%s min_free_gb=%.1f", c.Storage.RecordingPath, c.Storage.MinFreeSpaceGB))
	parts = append(parts, fmt.Sprintf("Logging: level=%s", c.Logging.Level))
	parts = append(parts, fmt.Sprintf("Cameras: %d configured", len(c.Cameras)))
	return fmt.Sprintf("Config{%s}", strings.Join(parts, ", "))
}

// Snapshot is the immutable view of settings a PipelineController is handed
// at construction and again on ApplySettings; see SPEC_FULL.md §9 on
// replacing global singletons with an explicit settings snapshot.
type Snapshot struct {
	Recording RecordingConfig
	Streaming StreamingConfig
	Storage   StorageConfig
	Camera    CameraConfig
}

// SnapshotFor builds an immutable per-camera Snapshot from the full config.
// It returns false if no camera with the given ID is configured.
func (c *Config) SnapshotFor(cameraID string) (Snapshot, bool) {
	for _, cam := range c.Cameras {
		if cam.CameraID == cameraID {
			return Snapshot{
				Recording: c.Recording,
				Streaming: c.Streaming,
				Storage:   c.Storage,
				Camera:    cam,
			}, true
		}
	}
	return Snapshot{}, false
}
