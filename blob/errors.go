package blob

import "fmt"

var (
	// ErrNotFound is returned when a key does not hold a blob in the
	// underlying store.
	ErrNotFound = fmt.Errorf("blob not found")

	// ErrUploadClosed is returned when Append, Complete or Abort is called
	// on an upload session that has already been completed or aborted.
	ErrUploadClosed = fmt.Errorf("upload session closed")

	// ErrInvalidRange is returned by OpenRange when start/end do not form a
	// valid half-open range within the blob.
	ErrInvalidRange = fmt.Errorf("invalid byte range")
)
