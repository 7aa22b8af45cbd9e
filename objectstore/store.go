// Package objectstore implements the content-addressed blob store module
// artifacts, job stdout, and large plan JSON bodies are offloaded to.
package objectstore

import (
	"context"
	"io"
)

// Store is the abstraction over a content-addressed object store.
// Implementations receive all config through the constructor.
type Store interface {
	// Put uploads body under key, returning once the write is durable.
	Put(ctx context.Context, key string, body io.Reader, size int64) error
	// Get streams the object stored at key. The caller must close the
	// returned ReadCloser.
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	// Exists reports whether an object is stored at key.
	Exists(ctx context.Context, key string) (bool, error)
	// Delete removes the object at key. Deleting a missing key is not an
	// error.
	Delete(ctx context.Context, key string) error
}
