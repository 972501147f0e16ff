package blob

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/blobmesh/blobmesh/core"
)

// Interface compliance (compile-time assertion)
var _ core.BlobStore = (*InMemoryStore)(nil)

func put(t *testing.T, s *InMemoryStore, c core.Container, previous, payload string) core.BlobMetadata {
	t.Helper()
	up, err := s.Upload(context.Background(), c, previous)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if _, err := up.Append(context.Background(), strings.NewReader(payload)); err != nil {
		t.Fatalf("append: %v", err)
	}
	md, err := up.Complete(context.Background())
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	return md
}

func read(t *testing.T, r io.ReadCloser) string {
	t.Helper()
	defer r.Close()
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		t.Fatalf("read: %v", err)
	}
	return buf.String()
}

func TestInMemoryStore_UploadRoundtrip(t *testing.T) {
	s := NewInMemoryStore()
	c := core.Container{ID: "c1"}

	md := put(t, s, c, "", "hello world")
	if md.Size != 11 {
		t.Fatalf("expected size 11, got %d", md.Size)
	}
	if !strings.HasPrefix(md.Key, "c1/") {
		t.Fatalf("key %q not scoped to container", md.Key)
	}

	r, err := s.Open(context.Background(), c, md.Key)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if got := read(t, r); got != "hello world" {
		t.Fatalf("expected payload roundtrip, got %q", got)
	}
}

func TestInMemoryStore_OpenRange(t *testing.T) {
	s := NewInMemoryStore()
	c := core.Container{ID: "c1"}
	md := put(t, s, c, "", "0123456789")

	r, err := s.OpenRange(context.Background(), c, md.Key, 2, 5)
	if err != nil {
		t.Fatalf("open range: %v", err)
	}
	if got := read(t, r); got != "234" {
		t.Fatalf("expected half-open range, got %q", got)
	}

	if _, err := s.OpenRange(context.Background(), c, md.Key, 5, 100); !errors.Is(err, ErrInvalidRange) {
		t.Fatalf("expected ErrInvalidRange, got %v", err)
	}
}

func TestInMemoryStore_NotFound(t *testing.T) {
	s := NewInMemoryStore()
	c := core.Container{ID: "c1"}

	if _, err := s.Open(context.Background(), c, "c1/missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	ok, err := s.Exists(context.Background(), c, "c1/missing")
	if err != nil || ok {
		t.Fatalf("expected exists=false, got %v/%v", ok, err)
	}
	if err := s.Delete(context.Background(), c, "c1/missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestInMemoryStore_ReplaceCleansPrevious(t *testing.T) {
	s := NewInMemoryStore()
	c := core.Container{ID: "c1"}

	old := put(t, s, c, "", "v1")
	replacement := put(t, s, c, old.Key, "v2")

	ok, _ := s.Exists(context.Background(), c, old.Key)
	if ok {
		t.Fatal("replaced blob should have been cleaned")
	}
	ok, _ = s.Exists(context.Background(), c, replacement.Key)
	if !ok {
		t.Fatal("replacement blob missing")
	}
}

func TestInMemoryStore_CleanNeverRetains(t *testing.T) {
	s := NewInMemoryStore(func(o *InMemoryOptions) { o.Cleanup = core.CleanNever{} })
	c := core.Container{ID: "c1"}

	old := put(t, s, c, "", "v1")
	put(t, s, c, old.Key, "v2")

	ok, _ := s.Exists(context.Background(), c, old.Key)
	if !ok {
		t.Fatal("CleanNever must retain replaced blobs")
	}
}

func TestInMemoryStore_UploadClosedSession(t *testing.T) {
	s := NewInMemoryStore()
	c := core.Container{ID: "c1"}

	up, _ := s.Upload(context.Background(), c, "")
	if err := up.Abort(context.Background()); err != nil {
		t.Fatalf("abort: %v", err)
	}
	if _, err := up.Append(context.Background(), strings.NewReader("x")); !errors.Is(err, ErrUploadClosed) {
		t.Fatalf("expected ErrUploadClosed, got %v", err)
	}
	if _, err := up.Complete(context.Background()); !errors.Is(err, ErrUploadClosed) {
		t.Fatalf("expected ErrUploadClosed, got %v", err)
	}

	// nothing was stored
	page, _ := s.List(context.Background(), c, core.ListQuery{})
	if len(page.Blobs) != 0 {
		t.Fatalf("aborted upload must not store blobs, got %d", len(page.Blobs))
	}
}

func TestInMemoryStore_ListPaging(t *testing.T) {
	s := NewInMemoryStore()
	c := core.Container{ID: "c1"}
	for i := 0; i < 5; i++ {
		put(t, s, c, "", "x")
	}

	var seen []string
	q := core.ListQuery{MaxKeys: 2}
	for {
		page, err := s.List(context.Background(), c, q)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		for _, b := range page.Blobs {
			seen = append(seen, b.Key)
		}
		if page.NextPageToken == "" {
			break
		}
		q.PageToken = page.NextPageToken
	}
	if len(seen) != 5 {
		t.Fatalf("expected 5 keys across pages, got %d", len(seen))
	}
	for i := 1; i < len(seen); i++ {
		if seen[i-1] >= seen[i] {
			t.Fatalf("listing not ordered: %q >= %q", seen[i-1], seen[i])
		}
	}
}

func TestInMemoryStore_CopyAndBatchDelete(t *testing.T) {
	s := NewInMemoryStore()
	c := core.Container{ID: "c1"}
	md := put(t, s, c, "", "payload")

	cp, err := s.Copy(context.Background(), c, md.Key)
	if err != nil {
		t.Fatalf("copy: %v", err)
	}
	if cp == md.Key {
		t.Fatal("copy must get a fresh key")
	}

	deleted, failed, err := s.DeleteBatch(context.Background(), c, []string{md.Key, cp, "c1/missing"})
	if err != nil {
		t.Fatalf("delete batch: %v", err)
	}
	if len(deleted) != 3 || len(failed) != 0 {
		t.Fatalf("expected idempotent batch delete, got deleted=%v failed=%v", deleted, failed)
	}
}

func TestInMemoryStore_DropContainer(t *testing.T) {
	s := NewInMemoryStore()
	c := core.Container{ID: "c1"}
	md := put(t, s, c, "", "payload")

	if err := s.DropContainer(context.Background(), c); err != nil {
		t.Fatalf("drop: %v", err)
	}
	ok, _ := s.Exists(context.Background(), c, md.Key)
	if ok {
		t.Fatal("dropped container still holds blobs")
	}
}
