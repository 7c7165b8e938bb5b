package fsinstall

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLockRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "deps")

	first, err := lockRoot(root)
	require.NoError(t, err)
	require.FileExists(t, filepath.Join(root, lockName))

	_, err = lockRoot(root)
	require.ErrorIs(t, err, ErrLocked)

	first.release()
	again, err := lockRoot(root)
	require.NoError(t, err)
	again.release()
}
