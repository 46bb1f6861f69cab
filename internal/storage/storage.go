// Package storage provides the object storage the delivery pipeline writes to
// and the drift report reads from, plus per-table location resolution.
package storage

import (
	"context"
	"errors"
)

// Common errors for storage operations.
var (
	ErrWriteFailed = errors.New("write failed")
	ErrListFailed  = errors.New("list failed")
)

// ObjectStorage abstracts the object store holding table data.
// Object paths are relative to the backend root: the bucket for S3, the base
// directory for local storage.
type ObjectStorage interface {
	// Put writes data to objectPath, replacing any existing object.
	Put(ctx context.Context, objectPath string, data []byte) error

	// ListObjects returns all object paths under the given prefix.
	// Used by drift reporting to find partition directories.
	ListObjects(ctx context.Context, prefix string) ([]string, error)
}
