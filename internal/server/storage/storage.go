// Package storage defines the backend interface for persisting raw uploaded
// bytes and its S3 and local-filesystem implementations.
package storage

import "context"

// Descriptor locates a stored object and carries its public URL.
type Descriptor struct {
	Location    string
	Path        string
	Bucket      string
	URL         string
	ContentType string
	Size        int64
}

// Backend persists raw uploaded bytes and returns location descriptors.
type Backend interface {
	Store(ctx context.Context, data []byte, name string, contentType string) (*Descriptor, error)
	Get(ctx context.Context, path string) ([]byte, error)
	Delete(ctx context.Context, path string) error
}
