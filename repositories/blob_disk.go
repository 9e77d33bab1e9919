package repositories

import (
	"context"
	"os"
	"path/filepath"

	"mentorlink/contract"
)

// DiskBlobStorage keeps attachments on the local filesystem for local runs
// and tests. URLs are file:// paths.
type DiskBlobStorage struct {
	root string
}

func NewDiskBlobStorage(root string) *DiskBlobStorage {
	return &DiskBlobStorage{root: root}
}

func (s *DiskBlobStorage) Upload(_ context.Context, data []byte, path string) (string, error) {
	full := filepath.Join(s.root, filepath.FromSlash(path))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return "", err
	}
	abs, err := filepath.Abs(full)
	if err != nil {
		return "", err
	}
	return "file://" + filepath.ToSlash(abs), nil
}

var _ contract.BlobStorage = (*DiskBlobStorage)(nil)
