// Package blobmesh provides a high-level façade over the core BlobStore
// abstraction and its backends (in-memory & S3) enabling rapid construction
// of blob-backed applications. Most applications interact with this package
// by:
//  1. Creating a Mesh via New() (in-memory) or NewS3() (production S3 backend)
//  2. Writing blobs with Put / streaming them back with Get and GetRange
//  3. Housekeeping with List, DeleteBatch and Vacuum
//
// The façade delegates persistence to a core.BlobStore while keeping setup
// and usage ergonomics concise. All defaults are safe for local development
// and testing; production deployments supply an S3 configuration and a
// structured logger.
package blobmesh

import (
	"context"
	"io"

	"github.com/blobmesh/blobmesh/blob"
	s3blob "github.com/blobmesh/blobmesh/blob/s3"
	"github.com/blobmesh/blobmesh/core"
	"github.com/blobmesh/blobmesh/logging"
)

// Options configures the Mesh instance.
type Options struct {
	// Store is the blob persistence backend. Defaults to in-memory.
	Store core.BlobStore
	// Cleanup decides the fate of replaced blobs. Defaults to CleanAlways.
	Cleanup core.CleanupPolicy
	// Logger receives structured events. Defaults to NoOpLogger.
	Logger logging.Logger
}

// WithStore overrides the persistence backend.
func WithStore(store core.BlobStore) func(o *Options) {
	return func(o *Options) { o.Store = store }
}

// WithCleanupPolicy overrides the replaced-blob cleanup policy.
func WithCleanupPolicy(p core.CleanupPolicy) func(o *Options) {
	return func(o *Options) { o.Cleanup = p }
}

// WithLogger overrides the logger.
func WithLogger(l logging.Logger) func(o *Options) {
	return func(o *Options) { o.Logger = l }
}

// Mesh is the façade over a blob storage backend.
type Mesh struct {
	store  core.BlobStore
	logger logging.Logger
}

// New constructs a Mesh with optional overrides. Without overrides it uses an
// in-memory store, suitable for tests and prototypes.
func New(optFns ...func(o *Options)) *Mesh {
	opts := Options{
		Cleanup: core.CleanAlways{},
		Logger:  logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Store == nil {
		opts.Store = blob.NewInMemoryStore(func(o *blob.InMemoryOptions) {
			o.Cleanup = opts.Cleanup
		})
	}
	return &Mesh{store: opts.Store, logger: opts.Logger}
}

// NewS3 constructs a Mesh backed by S3 (or an S3-compatible service).
func NewS3(ctx context.Context, cfg s3blob.Config, optFns ...func(o *Options)) (*Mesh, error) {
	opts := Options{
		Cleanup: core.CleanAlways{},
		Logger:  logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	store, err := s3blob.New(ctx, cfg,
		s3blob.WithCleanupPolicy(opts.Cleanup),
		s3blob.WithLogger(opts.Logger),
	)
	if err != nil {
		return nil, err
	}
	return &Mesh{store: store, logger: opts.Logger}, nil
}

// Store exposes the underlying backend for callers that need the full
// interface.
func (m *Mesh) Store() core.BlobStore { return m.store }

// Put streams r into a new blob and returns its metadata. If previous is
// non-empty the finished blob logically replaces it and the backend's cleanup
// policy applies.
func (m *Mesh) Put(ctx context.Context, c core.Container, previous string, r io.Reader) (core.BlobMetadata, error) {
	up, err := m.store.Upload(ctx, c, previous)
	if err != nil {
		return core.BlobMetadata{}, err
	}
	if _, err := up.Append(ctx, r); err != nil {
		// best effort; the session is already failed
		_ = up.Abort(ctx)
		return core.BlobMetadata{}, err
	}
	return up.Complete(ctx)
}

// Get returns a streaming reader over the blob.
func (m *Mesh) Get(ctx context.Context, c core.Container, key string) (io.ReadCloser, error) {
	return m.store.Open(ctx, c, key)
}

// GetRange returns a streaming reader over the half-open byte range
// [start, end).
func (m *Mesh) GetRange(ctx context.Context, c core.Container, key string, start, end int64) (io.ReadCloser, error) {
	return m.store.OpenRange(ctx, c, key, start, end)
}

// Exists reports whether the key holds a blob.
func (m *Mesh) Exists(ctx context.Context, c core.Container, key string) (bool, error) {
	return m.store.Exists(ctx, c, key)
}

// Delete removes the blob.
func (m *Mesh) Delete(ctx context.Context, c core.Container, key string) error {
	return m.store.Delete(ctx, c, key)
}

// Copy duplicates the blob inside the container and returns the new key.
func (m *Mesh) Copy(ctx context.Context, c core.Container, key string) (string, error) {
	return m.store.Copy(ctx, c, key)
}

// List returns one page of blob metadata for the container.
func (m *Mesh) List(ctx context.Context, c core.Container, q core.ListQuery) (core.Page, error) {
	return m.store.List(ctx, c, q)
}

// Vacuum deletes every blob under the prefix (the whole container when prefix
// is empty), page by page, and reports which keys were deleted and which the
// backend refused.
func (m *Mesh) Vacuum(ctx context.Context, c core.Container, prefix string) (deleted, failed []string, err error) {
	defer logging.TimeOperation(m.logger, "vacuum")()

	q := core.ListQuery{Prefix: prefix}
	for {
		page, err := m.store.List(ctx, c, q)
		if err != nil {
			return deleted, failed, err
		}
		if len(page.Blobs) == 0 {
			return deleted, failed, nil
		}

		keys := make([]string, 0, len(page.Blobs))
		for _, b := range page.Blobs {
			keys = append(keys, b.Key)
		}
		d, f, err := m.store.DeleteBatch(ctx, c, keys)
		deleted = append(deleted, d...)
		failed = append(failed, f...)
		if err != nil {
			return deleted, failed, err
		}

		if page.NextPageToken == "" {
			return deleted, failed, nil
		}
		q.PageToken = page.NextPageToken
	}
}
