package s3

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/aws/smithy-go"
)

// ErrBucketDenied is returned when a container pins a bucket override that is
// missing or not accessible with the configured credentials.
var ErrBucketDenied = fmt.Errorf("bucket not accessible")

// isNotFound reports whether err is the service telling us a key or bucket
// does not exist. "NoSuchKey" is kept for backwards compatibility with older
// S3-compatible services that answer it instead of a plain 404.
func isNotFound(err error) bool {
	var ae smithy.APIError
	if errors.As(err, &ae) {
		switch ae.ErrorCode() {
		case "NotFound", "NoSuchKey", "NoSuchBucket", "404":
			return true
		}
	}
	return false
}

// isTransient classifies errors worth retrying: server faults, throttling and
// network-level failures. Context cancellation and client-side errors are
// fatal.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var ae smithy.APIError
	if errors.As(err, &ae) {
		switch ae.ErrorCode() {
		case "InternalError", "SlowDown", "RequestTimeout", "ServiceUnavailable", "ThrottlingException":
			return true
		}
		return ae.ErrorFault() == smithy.FaultServer
	}
	var ne net.Error
	return errors.As(err, &ne)
}
