package s3

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/juju/clock"

	"github.com/blobmesh/blobmesh/blob"
	"github.com/blobmesh/blobmesh/core"
	"github.com/blobmesh/blobmesh/logging"
)

// locationUnconstrained is the one region that must not be sent as a
// LocationConstraint when creating buckets.
const locationUnconstrained = "us-east-1"

// Options holds dependency overrides passed to New().
type Options struct {
	// Client replaces the SDK client, mainly for tests.
	Client S3API
	// Cleanup decides the fate of replaced blobs. Defaults to CleanAlways.
	Cleanup core.CleanupPolicy
	// Logger receives structured store events. Defaults to NoOpLogger.
	Logger logging.Logger
	// Clock drives retry backoff. Defaults to the wall clock.
	Clock clock.Clock
}

// WithClient injects a pre-built (or mock) S3 client.
func WithClient(client S3API) func(o *Options) {
	return func(o *Options) { o.Client = client }
}

// WithCleanupPolicy overrides the replaced-blob cleanup policy.
func WithCleanupPolicy(p core.CleanupPolicy) func(o *Options) {
	return func(o *Options) { o.Cleanup = p }
}

// WithLogger overrides the store logger.
func WithLogger(l logging.Logger) func(o *Options) {
	return func(o *Options) { o.Logger = l }
}

// WithClock overrides the retry clock, mainly for tests.
func WithClock(c clock.Clock) func(o *Options) {
	return func(o *Options) { o.Clock = c }
}

// Store is the S3-backed core.BlobStore. Safe for concurrent use; the number
// of in-flight S3 calls is bounded by Config.MaxPoolConnections.
type Store struct {
	client  S3API
	cfg     Config
	cleanup core.CleanupPolicy
	logger  logging.Logger
	clock   clock.Clock
	sem     chan struct{}

	mu      sync.Mutex
	buckets map[string]struct{} // bucket names known to exist
	active  map[string]*upload  // in-flight sessions by replaced key
}

// New constructs a Store. Unless a client is injected the SDK client is built
// from the config (credentials, region, endpoint).
func New(ctx context.Context, cfg Config, optFns ...func(o *Options)) (*Store, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	opts := Options{
		Cleanup: core.CleanAlways{},
		Logger:  logging.NoOpLogger{},
		Clock:   clock.WallClock,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Client == nil {
		client, err := newClient(ctx, cfg)
		if err != nil {
			return nil, err
		}
		opts.Client = client
	}

	pool := cfg.MaxPoolConnections
	if pool <= 0 {
		pool = DefaultMaxPoolConnections
	}

	return &Store{
		client:  opts.Client,
		cfg:     cfg,
		cleanup: opts.Cleanup,
		logger:  logging.ForComponent(opts.Logger, "s3"),
		clock:   opts.Clock,
		sem:     make(chan struct{}, pool),
		buckets: make(map[string]struct{}),
		active:  make(map[string]*upload),
	}, nil
}

// Upload implements core.BlobStore. It resolves the container's bucket and
// initiates a multipart upload for a freshly generated key. A still-open
// session replacing the same key is stale by definition and is aborted first.
func (s *Store) Upload(ctx context.Context, c core.Container, previous string) (core.Upload, error) {
	bucket, err := s.bucketFor(ctx, c)
	if err != nil {
		return nil, err
	}

	if previous != "" {
		s.mu.Lock()
		stale := s.active[previous]
		s.mu.Unlock()
		if stale != nil {
			s.logger.Warn("aborting stale upload %s replacing %s", stale.key, previous)
			_ = stale.Abort(ctx)
		}
	}

	key := core.NewKey(c)

	var out *awss3.CreateMultipartUploadOutput
	err = s.call(ctx, "CreateMultipartUpload", bucket, func() error {
		var err error
		out, err = s.client.CreateMultipartUpload(ctx, &awss3.CreateMultipartUploadInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create multipart upload: %w", err)
	}

	up := &upload{
		store:     s,
		container: c,
		bucket:    bucket,
		key:       key,
		uploadID:  aws.ToString(out.UploadId),
		previous:  previous,
		logger:    logging.ForContainer(s.logger, c.ID, key),
		started:   s.clock.Now(),
	}
	if previous != "" {
		s.mu.Lock()
		s.active[previous] = up
		s.mu.Unlock()
	}
	return up, nil
}

// forget drops a finished session from the active registry.
func (s *Store) forget(u *upload) {
	if u.previous == "" {
		return
	}
	s.mu.Lock()
	if s.active[u.previous] == u {
		delete(s.active, u.previous)
	}
	s.mu.Unlock()
}

// Open implements core.BlobStore. The returned reader streams directly from
// the service and must be closed by the caller.
func (s *Store) Open(ctx context.Context, c core.Container, key string) (io.ReadCloser, error) {
	return s.open(ctx, c, key, nil)
}

// OpenRange implements core.BlobStore for the half-open range [start, end).
func (s *Store) OpenRange(ctx context.Context, c core.Container, key string, start, end int64) (io.ReadCloser, error) {
	if start < 0 || end < start {
		return nil, blob.ErrInvalidRange
	}
	return s.open(ctx, c, key, aws.String(fmt.Sprintf("bytes=%d-%d", start, end-1)))
}

func (s *Store) open(ctx context.Context, c core.Container, key string, rng *string) (io.ReadCloser, error) {
	bucket, err := s.bucketFor(ctx, c)
	if err != nil {
		return nil, err
	}

	var out *awss3.GetObjectOutput
	err = s.call(ctx, "GetObject", bucket, func() error {
		var err error
		out, err = s.client.GetObject(ctx, &awss3.GetObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
			Range:  rng,
		})
		return err
	})
	if err != nil {
		if isNotFound(err) {
			return nil, blob.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get object %s: %w", key, err)
	}
	return out.Body, nil
}

// Exists implements core.BlobStore via HeadObject.
func (s *Store) Exists(ctx context.Context, c core.Container, key string) (bool, error) {
	bucket, err := s.bucketFor(ctx, c)
	if err != nil {
		return false, err
	}

	err = s.call(ctx, "HeadObject", bucket, func() error {
		_, err := s.client.HeadObject(ctx, &awss3.HeadObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
		})
		return err
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to head object %s: %w", key, err)
	}
	return true, nil
}

// Delete implements core.BlobStore.
func (s *Store) Delete(ctx context.Context, c core.Container, key string) error {
	bucket, err := s.bucketFor(ctx, c)
	if err != nil {
		return err
	}
	return s.deleteObject(ctx, bucket, key)
}

func (s *Store) deleteObject(ctx context.Context, bucket, key string) error {
	err := s.call(ctx, "DeleteObject", bucket, func() error {
		_, err := s.client.DeleteObject(ctx, &awss3.DeleteObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to delete object %s: %w", key, err)
	}
	return nil
}

// Copy implements core.BlobStore with a server-side CopyObject to a freshly
// generated key.
func (s *Store) Copy(ctx context.Context, c core.Container, key string) (string, error) {
	bucket, err := s.bucketFor(ctx, c)
	if err != nil {
		return "", err
	}

	newKey := core.NewKey(c)
	err = s.call(ctx, "CopyObject", bucket, func() error {
		_, err := s.client.CopyObject(ctx, &awss3.CopyObjectInput{
			Bucket:     aws.String(bucket),
			Key:        aws.String(newKey),
			CopySource: aws.String(bucket + "/" + key),
		})
		return err
	})
	if err != nil {
		if isNotFound(err) {
			return "", blob.ErrNotFound
		}
		return "", fmt.Errorf("failed to copy object %s: %w", key, err)
	}
	return newKey, nil
}

// List implements core.BlobStore via ListObjectsV2 with continuation tokens.
func (s *Store) List(ctx context.Context, c core.Container, q core.ListQuery) (core.Page, error) {
	bucket, err := s.bucketFor(ctx, c)
	if err != nil {
		return core.Page{}, err
	}

	prefix := q.Prefix
	if prefix == "" {
		prefix = c.Prefix()
	}
	maxKeys := q.MaxKeys
	if maxKeys <= 0 {
		maxKeys = core.DefaultMaxKeys
	}

	input := &awss3.ListObjectsV2Input{
		Bucket:  aws.String(bucket),
		Prefix:  aws.String(prefix),
		MaxKeys: aws.Int32(maxKeys),
	}
	if q.PageToken != "" {
		input.ContinuationToken = aws.String(q.PageToken)
	}

	var out *awss3.ListObjectsV2Output
	err = s.call(ctx, "ListObjectsV2", bucket, func() error {
		var err error
		out, err = s.client.ListObjectsV2(ctx, input)
		return err
	})
	if err != nil {
		return core.Page{}, fmt.Errorf("failed to list objects: %w", err)
	}

	page := core.Page{
		Blobs:         make([]core.BlobMetadata, 0, len(out.Contents)),
		NextPageToken: aws.ToString(out.NextContinuationToken),
	}
	for _, item := range out.Contents {
		page.Blobs = append(page.Blobs, core.BlobMetadata{
			Key:       aws.ToString(item.Key),
			Container: c.ID,
			Size:      aws.ToInt64(item.Size),
			Created:   aws.ToTime(item.LastModified),
		})
	}
	return page, nil
}

// DeleteBatch implements core.BlobStore via a single DeleteObjects call and
// splits the response into deleted and failed keys.
func (s *Store) DeleteBatch(ctx context.Context, c core.Container, keys []string) (deleted, failed []string, err error) {
	bucket, err := s.bucketFor(ctx, c)
	if err != nil {
		return nil, nil, err
	}

	objects := make([]types.ObjectIdentifier, 0, len(keys))
	for _, key := range keys {
		objects = append(objects, types.ObjectIdentifier{Key: aws.String(key)})
	}

	var out *awss3.DeleteObjectsOutput
	err = s.call(ctx, "DeleteObjects", bucket, func() error {
		var err error
		out, err = s.client.DeleteObjects(ctx, &awss3.DeleteObjectsInput{
			Bucket: aws.String(bucket),
			Delete: &types.Delete{Objects: objects},
		})
		return err
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to delete objects: %w", err)
	}

	for _, obj := range out.Deleted {
		deleted = append(deleted, aws.ToString(obj.Key))
	}
	for _, objErr := range out.Errors {
		failed = append(failed, aws.ToString(objErr.Key))
	}
	return deleted, failed, nil
}

// DropContainer implements core.BlobStore by deleting the container's bucket.
// The bucket must already be empty.
func (s *Store) DropContainer(ctx context.Context, c core.Container) error {
	bucket, err := s.bucketFor(ctx, c)
	if err != nil {
		return err
	}

	err = s.call(ctx, "DeleteBucket", bucket, func() error {
		_, err := s.client.DeleteBucket(ctx, &awss3.DeleteBucketInput{
			Bucket: aws.String(bucket),
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to delete bucket %s: %w", bucket, err)
	}

	s.mu.Lock()
	delete(s.buckets, bucket)
	s.mu.Unlock()
	return nil
}

// bucketFor resolves the container's bucket name. Overrides are honored only
// when accessible; derived buckets are created on first use and cached.
func (s *Store) bucketFor(ctx context.Context, c core.Container) (string, error) {
	if c.BucketOverride != "" {
		ok, err := s.bucketAccessible(ctx, c.BucketOverride)
		if err != nil {
			return "", err
		}
		if !ok {
			s.logger.Error("bucket override %q for container %q is not accessible", c.BucketOverride, c.ID)
			return "", fmt.Errorf("%w: %s", ErrBucketDenied, c.BucketOverride)
		}
		return c.BucketOverride, nil
	}

	bucket := c.BucketName(s.cfg.Bucket, s.cfg.BucketNameFormat, s.cfg.BucketDelimiter)

	s.mu.Lock()
	_, known := s.buckets[bucket]
	s.mu.Unlock()
	if known {
		return bucket, nil
	}

	if err := s.ensureBucket(ctx, bucket); err != nil {
		return "", err
	}

	s.mu.Lock()
	s.buckets[bucket] = struct{}{}
	s.mu.Unlock()
	return bucket, nil
}

// ensureBucket creates the bucket if it does not exist yet.
func (s *Store) ensureBucket(ctx context.Context, bucket string) error {
	ok, err := s.bucketAccessible(ctx, bucket)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}

	input := &awss3.CreateBucketInput{Bucket: aws.String(bucket)}
	// us-east-1 rejects an explicit LocationConstraint
	if s.cfg.Region != locationUnconstrained {
		input.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(s.cfg.Region),
		}
	}

	err = s.call(ctx, "CreateBucket", bucket, func() error {
		_, err := s.client.CreateBucket(ctx, input)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
	}
	s.logger.Info("created bucket %s", bucket)
	return nil
}

// bucketAccessible reports whether the bucket exists and is reachable with
// the configured credentials.
func (s *Store) bucketAccessible(ctx context.Context, bucket string) (bool, error) {
	err := s.call(ctx, "HeadBucket", bucket, func() error {
		_, err := s.client.HeadBucket(ctx, &awss3.HeadBucketInput{
			Bucket: aws.String(bucket),
		})
		return err
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check bucket accessibility: %w", err)
	}
	return true, nil
}
