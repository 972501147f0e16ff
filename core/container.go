package core

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Container scopes blobs to a tenant. Backends derive bucket names and key
// prefixes from it.
type Container struct {
	// ID is the tenant identifier. Lowercased before use in bucket names.
	ID string
	// BucketOverride, when set, pins the container to an existing bucket
	// instead of the backend's derived bucket name. Backends must verify
	// the bucket is accessible before honoring the override.
	BucketOverride string
}

// Prefix returns the key prefix all of the container's blobs share.
func (c Container) Prefix() string {
	return c.ID + "/"
}

// NewKey generates a fresh backend key inside the container's prefix.
func NewKey(c Container) string {
	return fmt.Sprintf("%s%s", c.Prefix(), uuid.NewString())
}

// BucketName derives a bucket name for the container from a base name and a
// format of the form "{container}{delimiter}{base}". An empty delimiter is
// inferred from the base name: "." when the base itself is dotted, "-"
// otherwise. Underscores are not legal in bucket names and are normalized to
// hyphens.
func (c Container) BucketName(base, format, delimiter string) string {
	if format == "" {
		format = "{container}{delimiter}{base}"
	}
	if delimiter == "" {
		if strings.Contains(base, ".") {
			delimiter = "."
		} else {
			delimiter = "-"
		}
	}
	name := strings.NewReplacer(
		"{container}", strings.ToLower(c.ID),
		"{delimiter}", delimiter,
		"{base}", base,
	).Replace(format)
	return strings.ReplaceAll(name, "_", "-")
}
