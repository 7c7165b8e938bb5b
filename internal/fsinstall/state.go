package fsinstall

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Exists reports whether a previous install occupies the target prefix.
func Exists(t InstallTarget) (bool, error) {
	info, err := os.Stat(t.Prefix)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to inspect %s: %w", t.Prefix, err)
	}
	if !info.IsDir() {
		return false, fmt.Errorf("install prefix %s exists but is not a directory", t.Prefix)
	}
	return true, nil
}

// Remove deletes the target prefix tree. It refuses to touch anything that is
// not a direct child of the dependency root.
func Remove(t InstallTarget) error {
	root := filepath.Clean(t.Root)
	prefix := filepath.Clean(t.Prefix)
	if root == "" || filepath.Dir(prefix) != root || strings.HasPrefix(filepath.Base(prefix), ".") {
		return fmt.Errorf("refusing to remove %s: not an install prefix under %s", prefix, root)
	}
	if err := os.RemoveAll(prefix); err != nil {
		return fmt.Errorf("failed to remove %s: %w", prefix, err)
	}
	return nil
}
