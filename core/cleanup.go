package core

// CleanupPolicy decides whether the blob a finished upload replaces should be
// deleted from the backend. The default policy always cleans; retention-aware
// deployments can keep superseded blobs around for auditing or undo.
type CleanupPolicy interface {
	// ShouldClean reports whether the replaced blob at key may be deleted.
	ShouldClean(c Container, key string) bool
}

// CleanAlways deletes every replaced blob. This is the default.
type CleanAlways struct{}

// ShouldClean implements CleanupPolicy.
func (CleanAlways) ShouldClean(Container, string) bool { return true }

// CleanNever retains every replaced blob.
type CleanNever struct{}

// ShouldClean implements CleanupPolicy.
func (CleanNever) ShouldClean(Container, string) bool { return false }
