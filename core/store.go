package core

import (
	"context"
	"io"
	"time"
)

// DefaultMaxKeys is the page size used by List when a query does not set one.
const DefaultMaxKeys = 1000

// BlobMetadata describes a stored blob without its payload.
type BlobMetadata struct {
	// Key is the backend key the blob is stored under.
	Key string
	// Container identifies the tenant the blob belongs to.
	Container string
	// Size is the payload size in bytes.
	Size int64
	// Created is the time the blob became visible in the backend.
	Created time.Time
}

// ListQuery selects a page of blobs from a container.
type ListQuery struct {
	// Prefix restricts the listing. Empty means the container's own
	// key prefix ("<container>/").
	Prefix string
	// PageToken resumes a previous listing. Empty starts from the beginning.
	PageToken string
	// MaxKeys caps the page size. Zero means DefaultMaxKeys.
	MaxKeys int32
}

// Page is one page of a listing plus the token for the next one.
type Page struct {
	Blobs []BlobMetadata
	// NextPageToken is empty when the listing is exhausted.
	NextPageToken string
}

// Upload is an incremental upload session. Data is appended in arbitrarily
// sized chunks; the backend decides how to buffer and flush them. A session
// ends with exactly one call to Complete or Abort.
type Upload interface {
	// Key returns the backend key the finished blob will be stored under.
	Key() string
	// Append consumes r to EOF and returns the number of bytes appended.
	Append(ctx context.Context, r io.Reader) (int64, error)
	// Complete finalizes the session and returns metadata for the stored
	// blob. Zero-byte sessions are valid.
	Complete(ctx context.Context) (BlobMetadata, error)
	// Abort discards the session and any data appended so far.
	Abort(ctx context.Context) error
}

// BlobStore defines the interface for blob persistence. Implementations must
// be safe for concurrent use and scope all keys by container. Reads stream;
// writes go through Upload sessions so very large payloads never have to be
// held in memory at once.
type BlobStore interface {
	// Upload starts a new upload session. If previous is non-empty it names
	// the blob the finished upload logically replaces; backends consult the
	// container's cleanup policy to decide whether the replaced blob is
	// deleted on Complete.
	Upload(ctx context.Context, c Container, previous string) (Upload, error)

	// Open returns a streaming reader over the whole blob.
	Open(ctx context.Context, c Container, key string) (io.ReadCloser, error)

	// OpenRange returns a streaming reader over the half-open byte range
	// [start, end).
	OpenRange(ctx context.Context, c Container, key string, start, end int64) (io.ReadCloser, error)

	// Exists reports whether the key holds a blob.
	Exists(ctx context.Context, c Container, key string) (bool, error)

	// Delete removes the blob.
	Delete(ctx context.Context, c Container, key string) error

	// Copy duplicates the blob inside the container and returns the new key.
	Copy(ctx context.Context, c Container, key string) (string, error)

	// List returns one page of blob metadata for the container.
	List(ctx context.Context, c Container, q ListQuery) (Page, error)

	// DeleteBatch removes several blobs in one backend call and reports,
	// per key, which deletions succeeded and which failed.
	DeleteBatch(ctx context.Context, c Container, keys []string) (deleted, failed []string, err error)

	// DropContainer removes the container's backing storage entirely.
	DropContainer(ctx context.Context, c Container) error
}
