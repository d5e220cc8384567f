package media

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Scratch is the well-known local directory downloaded media lands in.
// Files appear under their final name only once fully written.
type Scratch struct {
	root string
}

// NewScratch creates the scratch root if needed.
func NewScratch(root string) (*Scratch, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve scratch root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create scratch root: %w", err)
	}
	return &Scratch{root: abs}, nil
}

// Root returns the absolute scratch directory.
func (s *Scratch) Root() string { return s.root }

// Put streams reader into key through a temporary sibling file and renames it
// into place, so readers never observe a truncated file. It returns the final
// path and the number of bytes written.
func (s *Scratch) Put(_ context.Context, key string, reader io.Reader, maxBytes int64) (string, int64, error) {
	dest, err := s.hostPath(key)
	if err != nil {
		return "", 0, err
	}
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", 0, fmt.Errorf("create parent dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(dest)+".*.part")
	if err != nil {
		return "", 0, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	written, err := copyWithLimit(tmp, reader, maxBytes)
	if err != nil {
		return "", written, err
	}
	if err := tmp.Sync(); err != nil {
		return "", written, fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", written, fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		return "", written, fmt.Errorf("commit file: %w", err)
	}
	committed = true
	return dest, written, nil
}

// Open reads a committed file.
func (s *Scratch) Open(_ context.Context, key string) (io.ReadCloser, error) {
	dest, err := s.hostPath(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(dest)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	return f, nil
}

// Delete removes a file; a missing file is not an error.
func (s *Scratch) Delete(_ context.Context, key string) error {
	dest, err := s.hostPath(key)
	if err != nil {
		return err
	}
	if err := os.Remove(dest); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete file: %w", err)
	}
	return nil
}

// hostPath converts a storage key of the form "<kind>/<name>" into a path
// under the scratch root.
func (s *Scratch) hostPath(key string) (string, error) {
	clean := filepath.Clean(key)
	if filepath.IsAbs(clean) {
		return "", fmt.Errorf("%w: absolute key %s", ErrPathTraversal, key)
	}
	if strings.HasPrefix(clean, ".."+string(filepath.Separator)) || clean == ".." {
		return "", fmt.Errorf("%w: %s", ErrPathTraversal, key)
	}
	idx := strings.IndexByte(clean, filepath.Separator)
	if idx <= 0 || strings.TrimSpace(clean[idx+1:]) == "" {
		return "", fmt.Errorf("storage key must be <kind>/<name>: %s", key)
	}
	joined := filepath.Join(s.root, clean)
	if !strings.HasPrefix(joined, s.root+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrPathTraversal, key)
	}
	return joined, nil
}
