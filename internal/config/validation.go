package config

import (
	"fmt"
	"strings"
)

// Validate validates the complete configuration, rejecting unknown enum
// values at snapshot construction rather than at use site (SPEC_FULL.md §9).
func Validate(config *Config) error {
	if err := validateRecordingConfig(&config.Recording); err != nil {
		return fmt.Errorf("recording config: %w", err)
	}
	if err := validateStreamingConfig(&config.Streaming); err != nil {
		return fmt.Errorf("streaming config: %w", err)
	}
	if err := validateStorageConfig(&config.Storage); err != nil {
		return fmt.Errorf("storage config: %w", err)
	}
	if err := validateLoggingConfig(&config.Logging); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}
	for i := range config.Cameras {
		if err := validateCameraConfig(&config.Cameras[i]); err != nil {
			return fmt.Errorf("cameras[%d] (%s): %w", i, config.Cameras[i].CameraID, err)
		}
	}
	if err := validateNoDuplicateCameraIDs(config.Cameras); err != nil {
		return err
	}

	return nil
}

func validateRecordingConfig(c *RecordingConfig) error {
	validFormats := []string{string(FileFormatMP4), string(FileFormatMKV), string(FileFormatAVI)}
	if !contains(validFormats, string(c.FileFormat)) {
		return fmt.Errorf("invalid file_format: %s, must be one of %v", c.FileFormat, validFormats)
	}

	validCodecs := []string{string(CodecH264), string(CodecH265)}
	if !contains(validCodecs, string(c.Codec)) {
		return fmt.Errorf("invalid codec: %s, must be one of %v", c.Codec, validCodecs)
	}

	if c.RotationMinutes < 1 || c.RotationMinutes > 1440 {
		return fmt.Errorf("rotation_minutes must be between 1 and 1440, got %d", c.RotationMinutes)
	}

	if c.FragmentDuration <= 0 {
		return fmt.Errorf("fragment_duration_ms must be positive")
	}

	if c.MaxSegmentBytes < 0 {
		return fmt.Errorf("max_segment_bytes must be non-negative")
	}

	return nil
}

func validateStreamingConfig(c *StreamingConfig) error {
	if c.LatencyMS < 0 {
		return fmt.Errorf("latency_ms must be non-negative")
	}
	if c.TCPTimeoutMS <= 0 {
		return fmt.Errorf("tcp_timeout_ms must be positive")
	}
	if c.KeepaliveTimeoutS <= 0 {
		return fmt.Errorf("keepalive_timeout_s must be positive")
	}
	if c.MaxReconnectAttempts < 0 {
		return fmt.Errorf("max_reconnect_attempts must be non-negative")
	}
	if c.ReconnectDelaySeconds <= 0 {
		return fmt.Errorf("reconnect_delay_seconds must be positive")
	}

	validAlignments := []string{"top-left", "top-right", "bottom-left", "bottom-right"}
	if c.OSD.Alignment != "" && !contains(validAlignments, c.OSD.Alignment) {
		return fmt.Errorf("osd.alignment must be one of %v", validAlignments)
	}

	return nil
}

func validateStorageConfig(c *StorageConfig) error {
	if strings.TrimSpace(c.RecordingPath) == "" {
		return fmt.Errorf("recording_path cannot be empty")
	}
	if strings.Contains(c.RecordingPath, "..") {
		return fmt.Errorf("recording_path must not contain path traversal segments")
	}
	if c.MinFreeSpaceGB <= 0 {
		return fmt.Errorf("min_free_space_gb must be positive")
	}
	if c.WarnFreeSpaceGB < c.MinFreeSpaceGB {
		return fmt.Errorf("warn_free_space_gb (%.1f) must be >= min_free_space_gb (%.1f)", c.WarnFreeSpaceGB, c.MinFreeSpaceGB)
	}
	return nil
}

func validateLoggingConfig(c *LoggingConfig) error {
	validLevels := map[string]bool{"debug": true, "info": true, "warning": true, "warn": true, "error": true, "fatal": true}
	if !validLevels[strings.ToLower(c.Level)] {
		return fmt.Errorf("invalid log level: %s", c.Level)
	}
	if c.FileEnabled && strings.TrimSpace(c.FilePath) == "" {
		return fmt.Errorf("file_path cannot be empty when file logging is enabled")
	}
	if c.FileEnabled && c.MaxFileSizeMB < 1 {
		return fmt.Errorf("max_file_size_mb must be at least 1")
	}
	return nil
}

func validateCameraConfig(c *CameraConfig) error {
	if strings.TrimSpace(c.CameraID) == "" {
		return fmt.Errorf("camera_id cannot be empty")
	}
	if strings.TrimSpace(c.RTSPURL) == "" {
		return fmt.Errorf("rtsp_url cannot be empty")
	}
	if !strings.HasPrefix(c.RTSPURL, "rtsp://") {
		return fmt.Errorf("rtsp_url must use the rtsp:// scheme, got %q", c.RTSPURL)
	}

	validModes := []string{string(ModeStreamingOnly), string(ModeRecordingOnly), string(ModeBoth)}
	if !contains(validModes, string(c.Mode)) {
		return fmt.Errorf("invalid mode: %s, must be one of %v", c.Mode, validModes)
	}

	if c.VideoTransform.Enabled {
		if err := validateVideoTransform(&c.VideoTransform); err != nil {
			return fmt.Errorf("video_transform: %w", err)
		}
	}

	return nil
}

func validateVideoTransform(t *VideoTransform) error {
	validFlips := []string{string(FlipNone), string(FlipHorizontal), string(FlipVertical), string(FlipBoth)}
	if !contains(validFlips, string(t.Flip)) {
		return fmt.Errorf("invalid flip: %s, must be one of %v", t.Flip, validFlips)
	}
	switch t.Rotation {
	case 0, 90, 180, 270:
	default:
		return fmt.Errorf("rotation must be one of 0, 90, 180, 270, got %d", t.Rotation)
	}
	return nil
}

func validateNoDuplicateCameraIDs(cameras []CameraConfig) error {
	seen := make(map[string]bool, len(cameras))
	for _, c := range cameras {
		if seen[c.CameraID] {
			return fmt.Errorf("duplicate camera_id: %s", c.CameraID)
		}
		seen[c.CameraID] = true
	}
	return nil
}

// contains checks if a slice contains a specific value.
func contains(slice []string, value string) bool {
	for _, item := range slice {
		if item == value {
			return true
		}
	}
	return false
}
