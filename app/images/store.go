package images

import (
	"fmt"
	"os"
	"path/filepath"
)

// Store writes image blobs under a media directory and serves their
// paths relative to it.
type Store struct {
	dir string
}

func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create media directory: %w", err)
	}

	return &Store{dir: dir}, nil
}

func (s *Store) Dir() string {
	return s.dir
}

// Write stores a blob under the given relative name and returns that
// name. The relative name is what gets persisted, so the media
// directory can move without rewriting asset rows.
func (s *Store) Write(name string, data []byte) (string, error) {
	path := filepath.Join(s.dir, name)

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("failed to create asset directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write asset file: %w", err)
	}

	return name, nil
}

// Remove deletes a stored blob. A missing file is not an error, the
// desired state is already reached.
func (s *Store) Remove(name string) error {
	err := os.Remove(filepath.Join(s.dir, name))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove asset file: %w", err)
	}

	return nil
}
