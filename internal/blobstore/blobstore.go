// Package blobstore holds generated artifacts. Objects are write-once: Put
// refuses to overwrite an existing key.
package blobstore

import (
	"context"
	"errors"
)

var (
	// ErrObjectNotFound is returned by Get for keys that do not exist.
	ErrObjectNotFound = errors.New("object not found")
	// ErrObjectExists is returned by Put when the key is already taken.
	ErrObjectExists = errors.New("object already exists")
)

// Store is the artifact storage used by the document registry.
type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}
