// Package storage archives raw crawled pages so a parse regression can be
// replayed against the original HTML.
package storage

import (
	"context"
	"io"
)

type Storage interface {
	Upload(ctx context.Context, filename string, content io.Reader, contentType string) (*UploadResult, error)
	Delete(ctx context.Context, key string) error
}

type UploadResult struct {
	Key string
	URL string
}
