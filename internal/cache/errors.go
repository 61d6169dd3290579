package cache

import "fmt"

// CorruptedError reports inconsistent local cache state: a dirty
// package folder or metadata disagreeing with what is on disk.
// Callers recover by removing the folder and reclassifying the binary.
type CorruptedError struct {
	Path   string
	Reason string
}

func (e *CorruptedError) Error() string {
	return fmt.Sprintf("corrupted cache entry %s: %s", e.Path, e.Reason)
}
