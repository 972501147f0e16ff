package s3

import (
	"context"
	"time"

	"github.com/juju/retry"

	"github.com/blobmesh/blobmesh/logging"
)

const (
	retryAttempts = 3
	retryMinDelay = 100 * time.Millisecond
	retryMaxDelay = 5 * time.Second
)

// call runs one S3 operation through the store's concurrency gate, retrying
// transient failures with exponential backoff. The operation and bucket names
// are only used for logging.
func (s *Store) call(ctx context.Context, op, bucket string, f func() error) error {
	release, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	start := time.Now()
	err = retry.Call(retry.CallArgs{
		Func: f,
		IsFatalError: func(err error) bool {
			return !isTransient(err)
		},
		NotifyFunc: func(err error, attempt int) {
			s.logger.Warn("retrying %s after transient error (attempt %d): %v", op, attempt, err)
		},
		Attempts:    retryAttempts,
		Delay:       retryMinDelay,
		MaxDelay:    retryMaxDelay,
		BackoffFunc: retry.DoubleDelay,
		Clock:       s.clock,
		Stop:        ctx.Done(),
	})
	dur := time.Since(start)
	if err != nil && isNotFound(err) {
		// not found is an expected outcome for existence probes
		s.logger.Debug("s3 %s on %s answered not found after %s", op, bucket, dur)
	} else {
		logging.LogS3Call(s.logger, op, bucket, dur, err)
	}
	return err
}

// acquire takes a slot from the bounded connection pool, honoring ctx.
func (s *Store) acquire(ctx context.Context) (func(), error) {
	select {
	case s.sem <- struct{}{}:
		return func() { <-s.sem }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
