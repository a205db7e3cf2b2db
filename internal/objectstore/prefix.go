package objectstore

import (
	"context"
	"strings"
)

// Prefixed places every key of the wrapped store under a fixed prefix, e.g.
// a per-run folder
type Prefixed struct {
	inner  Store
	prefix string
}

// WithPrefix wraps store; an empty prefix returns store unchanged
func WithPrefix(store Store, prefix string) Store {
	if prefix == "" {
		return store
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &Prefixed{inner: store, prefix: prefix}
}

func (p *Prefixed) Exists(ctx context.Context, key string) (bool, error) {
	return p.inner.Exists(ctx, p.prefix+key)
}

func (p *Prefixed) Upload(ctx context.Context, key, localPath, contentType string) error {
	return p.inner.Upload(ctx, p.prefix+key, localPath, contentType)
}

func (p *Prefixed) BucketExists(ctx context.Context) (bool, error) {
	return p.inner.BucketExists(ctx)
}

// List returns keys relative to the prefix
func (p *Prefixed) List(ctx context.Context, prefix string) ([]Object, error) {
	objects, err := p.inner.List(ctx, p.prefix+prefix)
	if err != nil {
		return nil, err
	}
	for i := range objects {
		objects[i].Key = strings.TrimPrefix(objects[i].Key, p.prefix)
	}
	return objects, nil
}

func (p *Prefixed) Download(ctx context.Context, key, localPath string) error {
	return p.inner.Download(ctx, p.prefix+key, localPath)
}
