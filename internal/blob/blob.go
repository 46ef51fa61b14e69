// Package blob abstracts key-addressed binary object storage. The raw payload
// namespace and the parquet data-lake namespace are both plain buckets behind
// this interface.
package blob

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when no object exists under the key.
var ErrNotFound = errors.New("object not found")

type Store interface {
	Put(ctx context.Context, bucket, key string, data []byte, metadata map[string]string) error
	Get(ctx context.Context, bucket, key string) ([]byte, error)
	EnsureBucket(ctx context.Context, bucket string) error
}
