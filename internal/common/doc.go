// Package common provides shared interfaces and utilities for the NVR
// pipeline core.
//
// This package contains shared interfaces and helper functions used across
// multiple components to ensure consistent behavior and graceful shutdown patterns.
//
// Key Components:
//   - Stoppable: Interface for services requiring graceful shutdown
//   - StopWithTimeout: Helper function for timeout-based shutdown
//
// Usage Pattern:
//   - Implement Stoppable interface for services requiring shutdown
//   - Use StopWithTimeout() for consistent timeout-based shutdown
//   - Pass context for cancellation and timeout enforcement
package common
