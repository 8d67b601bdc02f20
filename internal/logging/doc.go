// Package logging provides structured logging with correlation ID support for the NVR pipeline core.
//
// This package implements a centralized logging system using Logrus with structured
// logging, correlation ID tracking, component identification, and configurable output
// destinations (console, file, both, or disabled).
//
// Key Features:
//   - Structured logging with JSON and text formatters
//   - Correlation ID tracking for request tracing
//   - Component-based logger instances
//   - Configurable log levels (debug, info, warn, error, fatal)
//   - File rotation with configurable size limits and backup retention
//   - Console and file output with independent enable/disable
//   - Global logger factory with consistent configuration
//
// Usage Patterns:
//   - Get logger factory: GetLoggerFactory()
//   - Configure globally: ConfigureFactory(config) or ConfigureGlobalLogging(config)
//   - Create component logger: GetLogger("pipeline.cam-1")
//   - Add correlation ID: WithCorrelationID(ctx, id)
//
// Field Conventions:
//   - "component": Component name (e.g., "pipeline.cam-1", "pathguard")
//   - "correlation_id": Request correlation ID for tracing
//   - "camera_id": Camera identifier for per-camera log lines
package logging
