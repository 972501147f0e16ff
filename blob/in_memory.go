package blob

import (
	"bytes"
	"context"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/blobmesh/blobmesh/core"
)

// InMemoryStore is an in-process core.BlobStore implementation useful for
// tests, examples and single-process prototypes. It keeps all blobs in nested
// maps guarded by an RWMutex. Data is copied on upload / retrieval to avoid
// accidental external mutation of internal buffers.
//
// Layout: container -> key -> payload + creation time
//
// This implementation is intentionally minimal; it does not enforce retention
// limits, size quotas, or eviction. For production, prefer the S3 backend,
// which can scale and survive process restarts.
type InMemoryStore struct {
	mu      sync.RWMutex
	blobs   map[string]map[string]entry // container -> key -> entry
	cleanup core.CleanupPolicy
}

type entry struct {
	data    []byte
	created time.Time
}

// InMemoryOptions configures an InMemoryStore.
type InMemoryOptions struct {
	// Cleanup decides the fate of replaced blobs. Defaults to CleanAlways.
	Cleanup core.CleanupPolicy
}

// NewInMemoryStore returns an empty in-memory blob store.
func NewInMemoryStore(optFns ...func(o *InMemoryOptions)) *InMemoryStore {
	opts := InMemoryOptions{Cleanup: core.CleanAlways{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &InMemoryStore{blobs: make(map[string]map[string]entry), cleanup: opts.Cleanup}
}

// Upload starts an in-memory upload session.
func (s *InMemoryStore) Upload(_ context.Context, c core.Container, previous string) (core.Upload, error) {
	return &memUpload{store: s, container: c, key: core.NewKey(c), previous: previous}, nil
}

// Open returns a reader over a copy of the stored payload or ErrNotFound.
func (s *InMemoryStore) Open(_ context.Context, c core.Container, key string) (io.ReadCloser, error) {
	data, err := s.get(c, key)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// OpenRange returns a reader over the half-open byte range [start, end).
func (s *InMemoryStore) OpenRange(_ context.Context, c core.Container, key string, start, end int64) (io.ReadCloser, error) {
	data, err := s.get(c, key)
	if err != nil {
		return nil, err
	}
	if start < 0 || end < start || end > int64(len(data)) {
		return nil, ErrInvalidRange
	}
	return io.NopCloser(bytes.NewReader(data[start:end])), nil
}

// Exists reports whether the key holds a blob.
func (s *InMemoryStore) Exists(_ context.Context, c core.Container, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.blobs[c.ID]
	if !ok {
		return false, nil
	}
	_, ok = m[key]
	return ok, nil
}

// Delete removes the blob if present or returns ErrNotFound.
func (s *InMemoryStore) Delete(_ context.Context, c core.Container, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.blobs[c.ID]
	if !ok {
		return ErrNotFound
	}
	if _, ok := m[key]; !ok {
		return ErrNotFound
	}
	delete(m, key)
	return nil
}

// Copy duplicates the blob under a fresh key and returns it.
func (s *InMemoryStore) Copy(_ context.Context, c core.Container, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.blobs[c.ID]
	if !ok {
		return "", ErrNotFound
	}
	e, ok := m[key]
	if !ok {
		return "", ErrNotFound
	}
	cp := make([]byte, len(e.data))
	copy(cp, e.data)
	newKey := core.NewKey(c)
	m[newKey] = entry{data: cp, created: time.Now()}
	return newKey, nil
}

// List returns a lexicographically ordered page of blob metadata.
func (s *InMemoryStore) List(_ context.Context, c core.Container, q core.ListQuery) (core.Page, error) {
	prefix := q.Prefix
	if prefix == "" {
		prefix = c.Prefix()
	}
	maxKeys := q.MaxKeys
	if maxKeys <= 0 {
		maxKeys = core.DefaultMaxKeys
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	m := s.blobs[c.ID]
	keys := make([]string, 0, len(m))
	for k := range m {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix && k > q.PageToken {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	page := core.Page{}
	for _, k := range keys {
		if int32(len(page.Blobs)) == maxKeys {
			page.NextPageToken = page.Blobs[len(page.Blobs)-1].Key
			break
		}
		e := m[k]
		page.Blobs = append(page.Blobs, core.BlobMetadata{
			Key:       k,
			Container: c.ID,
			Size:      int64(len(e.data)),
			Created:   e.created,
		})
	}
	return page, nil
}

// DeleteBatch removes keys in bulk. Missing keys are treated as already
// deleted, matching object store semantics.
func (s *InMemoryStore) DeleteBatch(_ context.Context, c core.Container, keys []string) (deleted, failed []string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.blobs[c.ID]
	for _, k := range keys {
		delete(m, k)
		deleted = append(deleted, k)
	}
	return deleted, nil, nil
}

// DropContainer discards all blobs stored for the container.
func (s *InMemoryStore) DropContainer(_ context.Context, c core.Container) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blobs, c.ID)
	return nil
}

func (s *InMemoryStore) get(c core.Container, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.blobs[c.ID]
	if !ok {
		return nil, ErrNotFound
	}
	e, ok := m[key]
	if !ok {
		return nil, ErrNotFound
	}
	cp := make([]byte, len(e.data))
	copy(cp, e.data)
	return cp, nil
}

func (s *InMemoryStore) put(c core.Container, key string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blobs[c.ID]; !ok {
		s.blobs[c.ID] = make(map[string]entry)
	}
	s.blobs[c.ID][key] = entry{data: data, created: time.Now()}
}

// memUpload buffers appended data until Complete.
type memUpload struct {
	store     *InMemoryStore
	container core.Container
	key       string
	previous  string
	buf       bytes.Buffer
	closed    bool
}

// Key implements core.Upload.
func (u *memUpload) Key() string { return u.key }

// Append implements core.Upload.
func (u *memUpload) Append(_ context.Context, r io.Reader) (int64, error) {
	if u.closed {
		return 0, ErrUploadClosed
	}
	return io.Copy(&u.buf, r)
}

// Complete implements core.Upload. The replaced blob, if any, is deleted when
// the store's cleanup policy allows.
func (u *memUpload) Complete(ctx context.Context) (core.BlobMetadata, error) {
	if u.closed {
		return core.BlobMetadata{}, ErrUploadClosed
	}
	u.closed = true

	data := make([]byte, u.buf.Len())
	copy(data, u.buf.Bytes())
	u.store.put(u.container, u.key, data)

	if u.previous != "" && u.store.cleanup.ShouldClean(u.container, u.previous) {
		// replaced blob may already be gone
		_ = u.store.Delete(ctx, u.container, u.previous)
	}

	return core.BlobMetadata{
		Key:       u.key,
		Container: u.container.ID,
		Size:      int64(len(data)),
		Created:   time.Now(),
	}, nil
}

// Abort implements core.Upload.
func (u *memUpload) Abort(context.Context) error {
	if u.closed {
		return ErrUploadClosed
	}
	u.closed = true
	u.buf.Reset()
	return nil
}
