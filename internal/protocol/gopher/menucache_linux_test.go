package gopher

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMenuCacheDetectsReplacedGophermap(t *testing.T) {
	cache, err := NewMenuCache(8)
	require.NoError(t, err)
	defer cache.Close()

	dir := t.TempDir()
	path := filepath.Join(dir, GophermapFile)
	stamp := time.Unix(1_700_000_000, 0)

	writeFile(t, path, "iOld menu\n", 0o644)
	require.NoError(t, os.Chtimes(path, stamp, stamp))
	before, err := os.Lstat(path)
	require.NoError(t, err)

	cache.Put(path, "/", before, []byte("old"))
	cache.Wait()

	_, ok := cache.Get(path, "/", before)
	require.True(t, ok)

	// Same size and mtime, new inode
	replacement := filepath.Join(dir, "gophermap.new")
	writeFile(t, replacement, "iNew menu\n", 0o644)
	require.NoError(t, os.Chtimes(replacement, stamp, stamp))
	require.NoError(t, os.Rename(replacement, path))

	after, err := os.Lstat(path)
	require.NoError(t, err)
	require.Equal(t, before.Size(), after.Size())
	require.True(t, before.ModTime().Equal(after.ModTime()))

	_, ok = cache.Get(path, "/", after)
	assert.False(t, ok)
}
