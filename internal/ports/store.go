package ports

import "context"

// DocumentStore reads and writes whole documents by key.
// Get returns an error satisfying errors.IsNotFound when the key does not exist.
type DocumentStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, body []byte, contentType string) error
}
