package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// fakeS3 is a stateful in-memory S3API for tests. Errors can be queued per
// operation to exercise retry and not-found handling.
type fakeS3 struct {
	mu       sync.Mutex
	buckets  map[string]map[string][]byte // bucket -> key -> payload
	uploads  map[string]map[int32][]byte  // uploadID -> part number -> payload
	failures map[string][]error           // op -> queued errors, popped per call
	calls    []string

	createBucketInputs []*awss3.CreateBucketInput
	lastRange          string
	batchFailKeys      map[string]bool // keys DeleteObjects reports as failed
	nextUpload         int
}

func newFakeS3() *fakeS3 {
	return &fakeS3{
		buckets:       map[string]map[string][]byte{},
		uploads:       map[string]map[int32][]byte{},
		failures:      map[string][]error{},
		batchFailKeys: map[string]bool{},
	}
}

func (f *fakeS3) failNext(op string, errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[op] = append(f.failures[op], errs...)
}

func (f *fakeS3) liveUploads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.uploads)
}

func (f *fakeS3) countCalls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == op {
			n++
		}
	}
	return n
}

// begin records the call and pops a queued failure, if any.
func (f *fakeS3) begin(op string) error {
	f.calls = append(f.calls, op)
	if errs := f.failures[op]; len(errs) > 0 {
		f.failures[op] = errs[1:]
		return errs[0]
	}
	return nil
}

func apiErr(code string, fault smithy.ErrorFault) error {
	return &smithy.GenericAPIError{Code: code, Message: code, Fault: fault}
}

func notFoundErr() error   { return apiErr("NotFound", smithy.FaultClient) }
func accessDenied() error  { return apiErr("AccessDenied", smithy.FaultClient) }
func internalError() error { return apiErr("InternalError", smithy.FaultServer) }

func (f *fakeS3) GetObject(_ context.Context, params *awss3.GetObjectInput, _ ...func(*awss3.Options)) (*awss3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("GetObject"); err != nil {
		return nil, err
	}
	f.lastRange = aws.ToString(params.Range)
	bucket, ok := f.buckets[aws.ToString(params.Bucket)]
	if !ok {
		return nil, notFoundErr()
	}
	data, ok := bucket[aws.ToString(params.Key)]
	if !ok {
		return nil, notFoundErr()
	}
	if rng := aws.ToString(params.Range); rng != "" {
		var start, end int64
		if _, err := fmt.Sscanf(rng, "bytes=%d-%d", &start, &end); err != nil {
			return nil, err
		}
		if end >= int64(len(data)) {
			end = int64(len(data)) - 1
		}
		data = data[start : end+1]
	}
	return &awss3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(data)),
		ContentLength: aws.Int64(int64(len(data))),
	}, nil
}

func (f *fakeS3) HeadObject(_ context.Context, params *awss3.HeadObjectInput, _ ...func(*awss3.Options)) (*awss3.HeadObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("HeadObject"); err != nil {
		return nil, err
	}
	bucket, ok := f.buckets[aws.ToString(params.Bucket)]
	if !ok {
		return nil, notFoundErr()
	}
	data, ok := bucket[aws.ToString(params.Key)]
	if !ok {
		return nil, notFoundErr()
	}
	return &awss3.HeadObjectOutput{ContentLength: aws.Int64(int64(len(data)))}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, params *awss3.DeleteObjectInput, _ ...func(*awss3.Options)) (*awss3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("DeleteObject"); err != nil {
		return nil, err
	}
	if bucket, ok := f.buckets[aws.ToString(params.Bucket)]; ok {
		delete(bucket, aws.ToString(params.Key))
	}
	return &awss3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) DeleteObjects(_ context.Context, params *awss3.DeleteObjectsInput, _ ...func(*awss3.Options)) (*awss3.DeleteObjectsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("DeleteObjects"); err != nil {
		return nil, err
	}
	bucket := f.buckets[aws.ToString(params.Bucket)]
	out := &awss3.DeleteObjectsOutput{}
	for _, obj := range params.Delete.Objects {
		key := aws.ToString(obj.Key)
		if f.batchFailKeys[key] {
			out.Errors = append(out.Errors, types.Error{Key: obj.Key, Code: aws.String("AccessDenied")})
			continue
		}
		delete(bucket, key)
		out.Deleted = append(out.Deleted, types.DeletedObject{Key: obj.Key})
	}
	return out, nil
}

func (f *fakeS3) CopyObject(_ context.Context, params *awss3.CopyObjectInput, _ ...func(*awss3.Options)) (*awss3.CopyObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("CopyObject"); err != nil {
		return nil, err
	}
	srcBucket, srcKey, _ := strings.Cut(aws.ToString(params.CopySource), "/")
	src, ok := f.buckets[srcBucket]
	if !ok {
		return nil, notFoundErr()
	}
	data, ok := src[srcKey]
	if !ok {
		return nil, notFoundErr()
	}
	dst, ok := f.buckets[aws.ToString(params.Bucket)]
	if !ok {
		return nil, notFoundErr()
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	dst[aws.ToString(params.Key)] = cp
	return &awss3.CopyObjectOutput{}, nil
}

func (f *fakeS3) ListObjectsV2(_ context.Context, params *awss3.ListObjectsV2Input, _ ...func(*awss3.Options)) (*awss3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("ListObjectsV2"); err != nil {
		return nil, err
	}
	bucket, ok := f.buckets[aws.ToString(params.Bucket)]
	if !ok {
		return nil, notFoundErr()
	}
	prefix := aws.ToString(params.Prefix)
	after := aws.ToString(params.ContinuationToken)
	maxKeys := int(aws.ToInt32(params.MaxKeys))
	if maxKeys <= 0 {
		maxKeys = 1000
	}

	keys := make([]string, 0, len(bucket))
	for k := range bucket {
		if strings.HasPrefix(k, prefix) && k > after {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	out := &awss3.ListObjectsV2Output{}
	for _, k := range keys {
		if len(out.Contents) == maxKeys {
			out.NextContinuationToken = out.Contents[len(out.Contents)-1].Key
			break
		}
		out.Contents = append(out.Contents, types.Object{
			Key:          aws.String(k),
			Size:         aws.Int64(int64(len(bucket[k]))),
			LastModified: aws.Time(time.Now()),
		})
	}
	return out, nil
}

func (f *fakeS3) CreateMultipartUpload(_ context.Context, params *awss3.CreateMultipartUploadInput, _ ...func(*awss3.Options)) (*awss3.CreateMultipartUploadOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("CreateMultipartUpload"); err != nil {
		return nil, err
	}
	f.nextUpload++
	id := fmt.Sprintf("upload-%d", f.nextUpload)
	f.uploads[id] = map[int32][]byte{}
	return &awss3.CreateMultipartUploadOutput{
		Bucket:   params.Bucket,
		Key:      params.Key,
		UploadId: aws.String(id),
	}, nil
}

func (f *fakeS3) UploadPart(_ context.Context, params *awss3.UploadPartInput, _ ...func(*awss3.Options)) (*awss3.UploadPartOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("UploadPart"); err != nil {
		return nil, err
	}
	parts, ok := f.uploads[aws.ToString(params.UploadId)]
	if !ok {
		return nil, notFoundErr()
	}
	data, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	num := aws.ToInt32(params.PartNumber)
	parts[num] = data
	return &awss3.UploadPartOutput{ETag: aws.String(fmt.Sprintf("etag-%d", num))}, nil
}

func (f *fakeS3) CompleteMultipartUpload(_ context.Context, params *awss3.CompleteMultipartUploadInput, _ ...func(*awss3.Options)) (*awss3.CompleteMultipartUploadOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("CompleteMultipartUpload"); err != nil {
		return nil, err
	}
	id := aws.ToString(params.UploadId)
	parts, ok := f.uploads[id]
	if !ok {
		return nil, notFoundErr()
	}
	bucket, ok := f.buckets[aws.ToString(params.Bucket)]
	if !ok {
		return nil, notFoundErr()
	}

	var payload []byte
	for _, part := range params.MultipartUpload.Parts {
		data, ok := parts[aws.ToInt32(part.PartNumber)]
		if !ok {
			return nil, apiErr("InvalidPart", smithy.FaultClient)
		}
		payload = append(payload, data...)
	}
	bucket[aws.ToString(params.Key)] = payload
	delete(f.uploads, id)
	return &awss3.CompleteMultipartUploadOutput{Key: params.Key}, nil
}

func (f *fakeS3) AbortMultipartUpload(_ context.Context, params *awss3.AbortMultipartUploadInput, _ ...func(*awss3.Options)) (*awss3.AbortMultipartUploadOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("AbortMultipartUpload"); err != nil {
		return nil, err
	}
	delete(f.uploads, aws.ToString(params.UploadId))
	return &awss3.AbortMultipartUploadOutput{}, nil
}

func (f *fakeS3) HeadBucket(_ context.Context, params *awss3.HeadBucketInput, _ ...func(*awss3.Options)) (*awss3.HeadBucketOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("HeadBucket"); err != nil {
		return nil, err
	}
	if _, ok := f.buckets[aws.ToString(params.Bucket)]; !ok {
		return nil, notFoundErr()
	}
	return &awss3.HeadBucketOutput{}, nil
}

func (f *fakeS3) CreateBucket(_ context.Context, params *awss3.CreateBucketInput, _ ...func(*awss3.Options)) (*awss3.CreateBucketOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("CreateBucket"); err != nil {
		return nil, err
	}
	f.createBucketInputs = append(f.createBucketInputs, params)
	f.buckets[aws.ToString(params.Bucket)] = map[string][]byte{}
	return &awss3.CreateBucketOutput{}, nil
}

func (f *fakeS3) DeleteBucket(_ context.Context, params *awss3.DeleteBucketInput, _ ...func(*awss3.Options)) (*awss3.DeleteBucketOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("DeleteBucket"); err != nil {
		return nil, err
	}
	if _, ok := f.buckets[aws.ToString(params.Bucket)]; !ok {
		return nil, notFoundErr()
	}
	delete(f.buckets, aws.ToString(params.Bucket))
	return &awss3.DeleteBucketOutput{}, nil
}

var _ S3API = (*fakeS3)(nil)
