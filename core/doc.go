// Package core provides the foundational domain types and interfaces used by
// blobmesh. It defines the core abstractions for:
//
//   - BlobStore (pluggable blob persistence backends)
//   - Upload (incremental multipart upload sessions)
//   - Containers (tenant scoping for keys and buckets)
//   - Paged listing of stored blobs
//   - CleanupPolicy (lifecycle of replaced blobs)
//
// The package intentionally keeps implementation concerns (S3 wiring, in-memory
// maps, pipeline orchestration) out of scope, exposing small interfaces so that
// backends can be swapped without touching calling code. All exported
// identifiers include concise documentation to aid discoverability and
// external consumption.
package core
