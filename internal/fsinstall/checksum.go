package fsinstall

import (
	"fmt"
	"io"
	"os"

	"lukechampine.com/blake3"
)

// fileDigest returns the hex blake3-256 digest of the file at path.
func fileDigest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := blake3.New(32, nil)
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash %s: %w", path, err)
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}

// verifyDigest checks path against want. An empty want skips the check.
// A mismatching file is removed so a re-run downloads it again.
func verifyDigest(path, want string) error {
	if want == "" {
		return nil
	}
	got, err := fileDigest(path)
	if err != nil {
		return err
	}
	if got != want {
		os.Remove(path)
		return fmt.Errorf("%w: %s: expected %s, got %s", ErrChecksumMismatch, path, want, got)
	}
	return nil
}
