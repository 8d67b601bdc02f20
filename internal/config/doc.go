// Package config provides the settings snapshot consumed by the per-camera
// pipeline core.
//
// It handles configuration loading, validation, and hot reload, and exposes
// a closed, immutable SettingsSnapshot to PipelineController so the pipeline
// never reaches into global state.
//
// Key Features:
//   - YAML configuration file loading with Viper
//   - Environment variable override support (NVR_* prefix)
//   - Hot reload with file system watching (fsnotify)
//   - Configuration validation with meaningful error messages, rejecting
//     unknown enum values (mode, file format, codec) at load time
//
// Configuration Categories:
//   - Recording: container format, codec, rotation interval, fragment duration
//   - Streaming: latency, timeouts, hardware acceleration, OSD, reconnect policy
//   - Cameras: per-camera RTSP URL, credentials, transform, enabled flags
//   - Storage: recording root, free-space floor
//
// Usage Pattern:
//   - Create a ConfigLoader with NewConfigLoader()
//   - Load configuration with LoadConfig(path)
//   - Convert to an immutable per-camera snapshot with Config.SnapshotFor(cameraID)
//   - Watch for changes with NewConfigWatcher(path, callback)
package config
