package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LocalBackend persists uploads on the local filesystem, serving them under
// a public URL prefix. Used in development and in tests.
type LocalBackend struct {
	baseDir      string
	publicPrefix string
}

func NewLocalBackend(baseDir, publicPrefix string) (*LocalBackend, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	if publicPrefix == "" {
		publicPrefix = "/static/"
	}
	if !strings.HasSuffix(publicPrefix, "/") {
		publicPrefix += "/"
	}
	return &LocalBackend{baseDir: baseDir, publicPrefix: publicPrefix}, nil
}

func (b *LocalBackend) Store(ctx context.Context, data []byte, name string, contentType string) (*Descriptor, error) {
	target := filepath.Join(b.baseDir, filepath.Base(name))
	if err := os.WriteFile(target, data, 0o644); err != nil {
		return nil, fmt.Errorf("write file: %w", err)
	}
	return &Descriptor{
		Location:    "local",
		Path:        target,
		URL:         b.publicPrefix + filepath.Base(name),
		ContentType: contentType,
		Size:        int64(len(data)),
	}, nil
}

func (b *LocalBackend) Get(ctx context.Context, path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return data, nil
}

func (b *LocalBackend) Delete(ctx context.Context, path string) error {
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove file: %w", err)
	}
	return nil
}
