// Package storage defines the blob store abstraction the checkpoint and
// export layers persist through, independent of whether objects live on the
// local filesystem, in memory or in Google Cloud Storage.
package storage

import (
	"context"
	"errors"
	"io"
)

// ErrObjectNotFound is returned by GetObject when no object exists at path.
var ErrObjectNotFound = errors.New("object not found")

// BlobStore reads and writes whole objects by relative path.
type BlobStore interface {
	// GetObject returns the full object content or ErrObjectNotFound.
	GetObject(ctx context.Context, path string) ([]byte, error)
	// PutObject replaces the object at path and returns its URI.
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}
