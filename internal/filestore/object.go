package filestore

import "time"

// ObjectInfo describes a single object stored in a bucket.
type ObjectInfo struct {
	Bucket string

	// Key is the full object path within the bucket (e.g. "exports/users.json").
	Key string

	// Size is the byte size of the object. -1 if unknown.
	Size int64

	ContentType string

	// ETag is the object's entity tag, as returned by the backend.
	ETag string

	LastModified time.Time
}

// PutOptions describes how an object is written.
type PutOptions struct {
	// ContentType defaults to application/octet-stream when empty.
	ContentType string

	// Metadata is stored as user metadata next to the object.
	Metadata map[string]string
}
