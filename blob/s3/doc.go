// Package s3 provides the production core.BlobStore backend on top of AWS S3
// or any S3-compatible service (LocalStack, MinIO, Ceph RGW).
//
// The backend keeps the dependency surface narrow: all S3 traffic goes through
// the small S3API interface so tests can substitute mocks, and configuration
// (bucket naming, endpoint, credentials, connection pool) is explicit via
// Config. Buckets are derived per container, created on first use, and cached
// afterwards. Uploads use the multipart API with parts buffered to the 5 MiB
// service minimum; transient service errors are retried with exponential
// backoff.
package s3
