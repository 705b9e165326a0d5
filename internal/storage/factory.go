package storage

import (
	"context"

	appconfig "github.com/devkyu/platewatch/internal/config"
)

func NewStorage(ctx context.Context, cfg appconfig.Config) (Storage, error) {
	switch cfg.StorageMode {
	case "s3", "aws":
		return NewS3Storage(ctx, cfg)
	default:
		return NewLocalStorage(cfg.LocalStorageDir, cfg.LocalStorageURL)
	}
}
