package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/blobmesh/blobmesh/blob"
	"github.com/blobmesh/blobmesh/core"
	"github.com/blobmesh/blobmesh/logging"
)

// MinPartSize is the smallest part S3 accepts for every part but the last.
// Appended data is buffered until a full part is available.
const MinPartSize = 5 * 1024 * 1024

// upload is a multipart upload session against one bucket/key.
type upload struct {
	store     *Store
	container core.Container
	bucket    string
	key       string
	uploadID  string
	previous  string
	logger    logging.Logger
	started   time.Time

	buf     bytes.Buffer
	parts   []types.CompletedPart
	partNum int32
	size    int64
	closed  bool
}

// Key implements core.Upload.
func (u *upload) Key() string { return u.key }

// Append implements core.Upload. Data is buffered and flushed as 5 MiB parts.
func (u *upload) Append(ctx context.Context, r io.Reader) (int64, error) {
	if u.closed {
		return 0, blob.ErrUploadClosed
	}

	var total int64
	chunk := make([]byte, MinPartSize)
	for {
		n, err := r.Read(chunk)
		if n > 0 {
			total += int64(n)
			u.size += int64(n)
			u.buf.Write(chunk[:n])
			for u.buf.Len() >= MinPartSize {
				if err := u.flushPart(ctx, u.buf.Next(MinPartSize)); err != nil {
					return total, err
				}
			}
		}
		if err == io.EOF {
			return total, nil
		}
		if err != nil {
			return total, fmt.Errorf("failed to read upload data: %w", err)
		}
	}
}

// Complete implements core.Upload. Zero-byte sessions are completed by
// uploading a single empty part, which the service accepts as the whole
// object. The replaced blob, if any, is deleted afterwards when the cleanup
// policy allows; failures there are logged but do not fail the upload.
// A failed Complete leaves the session open so that Abort can still reach
// the server-side multipart upload.
func (u *upload) Complete(ctx context.Context) (core.BlobMetadata, error) {
	if u.closed {
		return core.BlobMetadata{}, blob.ErrUploadClosed
	}

	if u.buf.Len() > 0 || len(u.parts) == 0 {
		if err := u.flushPart(ctx, u.buf.Next(u.buf.Len())); err != nil {
			logging.LogUpload(u.logger, u.key, len(u.parts), u.size, time.Since(u.started), err)
			return core.BlobMetadata{}, err
		}
	}

	err := u.store.call(ctx, "CompleteMultipartUpload", u.bucket, func() error {
		_, err := u.store.client.CompleteMultipartUpload(ctx, &awss3.CompleteMultipartUploadInput{
			Bucket:          aws.String(u.bucket),
			Key:             aws.String(u.key),
			UploadId:        aws.String(u.uploadID),
			MultipartUpload: &types.CompletedMultipartUpload{Parts: u.parts},
		})
		return err
	})
	if err != nil {
		logging.LogUpload(u.logger, u.key, len(u.parts), u.size, time.Since(u.started), err)
		return core.BlobMetadata{}, fmt.Errorf("failed to complete multipart upload: %w", err)
	}
	u.closed = true
	u.store.forget(u)

	if u.previous != "" && u.store.cleanup.ShouldClean(u.container, u.previous) {
		if err := u.store.deleteObject(ctx, u.bucket, u.previous); err != nil {
			u.logger.Warn("failed to delete replaced blob %s: %v", u.previous, err)
		}
	}

	logging.LogUpload(u.logger, u.key, len(u.parts), u.size, time.Since(u.started), nil)

	return core.BlobMetadata{
		Key:       u.key,
		Container: u.container.ID,
		Size:      u.size,
		Created:   u.store.clock.Now(),
	}, nil
}

// Abort implements core.Upload. Server-side abort failures are logged and
// swallowed; the stale multipart upload will be reaped by bucket lifecycle
// rules.
func (u *upload) Abort(ctx context.Context) error {
	if u.closed {
		return blob.ErrUploadClosed
	}
	u.closed = true
	u.buf.Reset()
	u.store.forget(u)

	err := u.store.call(ctx, "AbortMultipartUpload", u.bucket, func() error {
		_, err := u.store.client.AbortMultipartUpload(ctx, &awss3.AbortMultipartUploadInput{
			Bucket:   aws.String(u.bucket),
			Key:      aws.String(u.key),
			UploadId: aws.String(u.uploadID),
		})
		return err
	})
	if err != nil {
		u.logger.Warn("could not abort multipart upload %s: %v", u.key, err)
	}
	return nil
}

// flushPart uploads one part and records its ETag for completion.
func (u *upload) flushPart(ctx context.Context, data []byte) error {
	u.partNum++
	partNum := u.partNum

	var out *awss3.UploadPartOutput
	err := u.store.call(ctx, "UploadPart", u.bucket, func() error {
		var err error
		out, err = u.store.client.UploadPart(ctx, &awss3.UploadPartInput{
			Bucket:     aws.String(u.bucket),
			Key:        aws.String(u.key),
			UploadId:   aws.String(u.uploadID),
			PartNumber: aws.Int32(partNum),
			Body:       bytes.NewReader(data),
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to upload part %d: %w", partNum, err)
	}

	u.parts = append(u.parts, types.CompletedPart{
		ETag:       out.ETag,
		PartNumber: aws.Int32(partNum),
	})
	return nil
}
