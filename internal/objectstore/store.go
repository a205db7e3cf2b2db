// Package objectstore is the worker's view of object storage: existence
// checks, uploads, listing and downloads by key.
package objectstore

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a key or bucket does not exist
var ErrNotFound = errors.New("object not found")

// Object describes a stored object
type Object struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// Store is implemented by every storage backend
type Store interface {
	// Exists reports whether an object is stored under key
	Exists(ctx context.Context, key string) (bool, error)
	// Upload stores the file at localPath under key
	Upload(ctx context.Context, key, localPath, contentType string) error
	// BucketExists reports whether the configured bucket is reachable
	BucketExists(ctx context.Context) (bool, error)
	// List returns all objects whose key starts with prefix
	List(ctx context.Context, prefix string) ([]Object, error)
	// Download writes the object stored under key to localPath
	Download(ctx context.Context, key, localPath string) error
}
