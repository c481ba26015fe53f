package storage

import (
	"fmt"
	"os"
	"path/filepath"
)

// FileSnapshotStore keeps the raw page source captured at failure time, one
// file per article. A write always replaces the previous snapshot so only
// the latest failure's evidence is retained.
type FileSnapshotStore struct {
	dir string
}

func NewFileSnapshotStore(dir string) (*FileSnapshotStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot dir: %w", err)
	}
	return &FileSnapshotStore{dir: dir}, nil
}

func (s *FileSnapshotStore) path(articleID int64) string {
	return filepath.Join(s.dir, fmt.Sprintf("%d.html", articleID))
}

// Write stores the page source for an article, overwriting any previous one.
func (s *FileSnapshotStore) Write(articleID int64, source string) error {
	if err := os.WriteFile(s.path(articleID), []byte(source), 0o644); err != nil {
		return fmt.Errorf("write snapshot %d: %w", articleID, err)
	}
	return nil
}

// Read returns the stored page source for an article.
func (s *FileSnapshotStore) Read(articleID int64) (string, error) {
	data, err := os.ReadFile(s.path(articleID))
	if err != nil {
		return "", fmt.Errorf("read snapshot %d: %w", articleID, err)
	}
	return string(data), nil
}

// Exists reports whether a snapshot is stored for an article.
func (s *FileSnapshotStore) Exists(articleID int64) bool {
	_, err := os.Stat(s.path(articleID))
	return err == nil
}
