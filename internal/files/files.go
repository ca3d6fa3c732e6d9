// Package files removes uploaded attachments from local disk.
package files

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

var ErrOutsideRoot = errors.New("path escapes upload directory")

// LocalRemover deletes files under root. Message file paths are public URL
// paths such as "/uploads/x.png" and are resolved relative to root.
type LocalRemover struct {
	root string
}

func NewLocalRemover(root string) (*LocalRemover, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve upload dir: %w", err)
	}
	return &LocalRemover{root: abs}, nil
}

// Remove deletes the file; a file that is already gone is not an error.
func (r *LocalRemover) Remove(_ context.Context, path string) error {
	full, err := r.Resolve(path)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	return nil
}

// Resolve maps a stored file path to an absolute path under root.
func (r *LocalRemover) Resolve(path string) (string, error) {
	clean := filepath.Clean("/" + filepath.FromSlash(path))
	full := filepath.Join(r.root, clean)
	if !strings.HasPrefix(full, r.root+string(filepath.Separator)) {
		return "", ErrOutsideRoot
	}
	return full, nil
}
