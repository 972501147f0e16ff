// Package logging provides a minimal logging interface and adapters for blobmesh.
//
// The Logger interface defines the standard logging methods (Debug, Info,
// Warn, Error) that stores and the pipeline runner use for observability.
// This package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping Go's structured logging
//   - NoOpLogger for silent operation (testing, minimal setups)
//   - StoreLogger with contextual helpers for S3 calls, upload sessions
//     and pipeline steps
//
// Usage:
//
//	logger := logging.NewSlogLogger(logging.LogLevelInfo, "json", false)
//	store, _ := s3.New(ctx, cfg, s3.WithLogger(logger))
//
// The design intentionally keeps the interface minimal to avoid vendor
// lock-in while supporting structured logging where available.
package logging
