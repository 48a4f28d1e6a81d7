package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// Blobs reads attachment content.
type Blobs interface {
	Name() string
	Read(ctx context.Context, path string) ([]byte, error)
}

// LocalFS reads attachments from the local filesystem. Relative paths are
// resolved against Root.
type LocalFS struct {
	Root string
}

// NewLocalFS returns local storage rooted at root ("" means the working
// directory).
func NewLocalFS(root string) *LocalFS {
	return &LocalFS{Root: root}
}

func (s *LocalFS) Name() string { return "local_fs" }

func (s *LocalFS) Read(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !filepath.IsAbs(path) && s.Root != "" {
		path = filepath.Join(s.Root, path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read attachment: %w", err)
	}
	return data, nil
}
