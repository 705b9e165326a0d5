package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

type LocalStorage struct {
	baseDir string
	baseURL string
}

func NewLocalStorage(baseDir, baseURL string) (*LocalStorage, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	return &LocalStorage{
		baseDir: baseDir,
		baseURL: baseURL,
	}, nil
}

func (s *LocalStorage) Upload(ctx context.Context, filename string, content io.Reader, contentType string) (*UploadResult, error) {
	data, err := io.ReadAll(content)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot content: %w", err)
	}

	key := generateKey(filename)
	filePath := filepath.Join(s.baseDir, key)

	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory structure: %w", err)
	}

	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return nil, fmt.Errorf("failed to write snapshot: %w", err)
	}

	url := fmt.Sprintf("%s/%s", s.baseURL, key)

	slog.Info("snapshot stored locally", "key", key, "path", filePath, "size", len(data))

	return &UploadResult{
		Key: key,
		URL: url,
	}, nil
}

func (s *LocalStorage) Delete(ctx context.Context, key string) error {
	filePath := filepath.Join(s.baseDir, key)

	if err := os.Remove(filePath); err != nil {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}

	slog.Info("snapshot deleted from local storage", "key", key, "path", filePath)
	return nil
}

func generateKey(filename string) string {
	ext := filepath.Ext(filename)
	basename := filename[:len(filename)-len(ext)]

	safeBasename := filepath.Base(basename)

	timestamp := time.Now().Format("2006/01/02")
	uniqueID := uuid.New().String()[:8]

	return fmt.Sprintf("snapshots/%s/%s_%s%s", timestamp, safeBasename, uniqueID, ext)
}
