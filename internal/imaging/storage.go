package imaging

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// RefPrefix is the URL path under which stored covers are served.
const RefPrefix = "images/"

// Storage keeps one cover file per book in a flat directory, named
// {bookID}.jpg. Safe for concurrent use.
type Storage struct {
	dir string
	mu  sync.RWMutex
}

// NewStorage creates dir if needed and returns a Storage rooted there.
func NewStorage(dir string) (*Storage, error) {
	if dir == "" {
		return nil, errors.New("imaging: storage directory cannot be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("imaging: create storage directory: %w", err)
	}
	return &Storage{dir: dir}, nil
}

// Dir is the directory covers are stored in.
func (s *Storage) Dir() string {
	return s.dir
}

// Save writes data as the cover for id, replacing any previous one. The file
// is written to a temporary name first and renamed into place, so readers
// never see a partial cover.
func (s *Storage) Save(id string, data []byte) error {
	if err := checkID(id); err != nil {
		return err
	}
	if len(data) == 0 {
		return errors.New("imaging: image data cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(s.dir, id+".*.tmp")
	if err != nil {
		return fmt.Errorf("imaging: create temp file: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("imaging: write cover: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("imaging: close cover: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("imaging: chmod cover: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.Path(id)); err != nil {
		return fmt.Errorf("imaging: store cover: %w", err)
	}
	return nil
}

// Exists reports whether a cover is stored for id.
func (s *Storage) Exists(id string) bool {
	if checkID(id) != nil {
		return false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	_, err := os.Stat(s.Path(id))
	return err == nil
}

// Delete removes the cover for id. A missing file is not an error.
func (s *Storage) Delete(id string) error {
	if err := checkID(id); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.Path(id)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("imaging: delete cover: %w", err)
	}
	return nil
}

// Path returns the full filesystem path for id's cover.
func (s *Storage) Path(id string) string {
	return filepath.Join(s.dir, id+Extension)
}

// Ref is the cover reference recorded on the book, e.g. "images/{id}.jpg".
func (s *Storage) Ref(id string) string {
	return RefPrefix + id + Extension
}

func checkID(id string) error {
	if id == "" {
		return errors.New("imaging: id cannot be empty")
	}
	if strings.ContainsAny(id, `/\.`) {
		return fmt.Errorf("imaging: invalid id %q", id)
	}
	return nil
}
