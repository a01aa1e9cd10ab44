package gopher

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// writeFile creates path with content and sets mode explicitly, bypassing umask.
func writeFile(t *testing.T, path, content string, mode os.FileMode) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), mode))
	require.NoError(t, os.Chmod(path, mode))
}

func mkdir(t *testing.T, path string, mode os.FileMode) {
	t.Helper()
	require.NoError(t, os.MkdirAll(path, 0o755))
	require.NoError(t, os.Chmod(path, mode))
}

// newDocRoot builds a small public tree:
//
//	root/gophermap
//	root/hello.txt
//	root/docs/gophermap
//	root/docs/notes.txt
//	root/empty/            (no gophermap)
func newDocRoot(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.Chmod(root, 0o755))

	writeFile(t, filepath.Join(root, GophermapFile), "Welcome\n1Docs\tdocs\n", 0o644)
	writeFile(t, filepath.Join(root, "hello.txt"), "hello, gopher\n", 0o644)
	mkdir(t, filepath.Join(root, "docs"), 0o755)
	writeFile(t, filepath.Join(root, "docs", GophermapFile), "0Notes\tnotes.txt\n", 0o644)
	writeFile(t, filepath.Join(root, "docs", "notes.txt"), "notes\n", 0o644)
	mkdir(t, filepath.Join(root, "empty"), 0o755)

	return root
}
