package gopher

import (
	"fmt"
	"io/fs"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// MenuCache holds encoded menus keyed by gophermap path and request selector.
//
// An entry is only returned while the gophermap's size, modification time and
// file identity match the values recorded when it was stored, so edits show up
// on the next request. The identity is the device, inode and change time on
// Linux; elsewhere only size and mtime are compared, and a same-size edit that
// restores the old mtime is served stale until the entry is evicted.
type MenuCache struct {
	cache *ristretto.Cache[string, *cachedMenu]
}

type cachedMenu struct {
	body     []byte
	modTime  time.Time
	size     int64
	identity fileIdentity
}

func (m *cachedMenu) fresh(info fs.FileInfo) bool {
	return m.modTime.Equal(info.ModTime()) &&
		m.size == info.Size() &&
		m.identity == identityOf(info)
}

// NewMenuCache creates a cache bounded to maxEntries menus.
func NewMenuCache(maxEntries int64) (*MenuCache, error) {
	if maxEntries <= 0 {
		return nil, fmt.Errorf("invalid menu cache size %d: must be > 0", maxEntries)
	}

	cache, err := ristretto.NewCache(&ristretto.Config[string, *cachedMenu]{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
		// cost counts menus, not bytes
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("create menu cache: %w", err)
	}

	return &MenuCache{cache: cache}, nil
}

func menuKey(gophermap, selector string) string {
	return gophermap + "\x00" + selector
}

// Get returns the cached menu body if it is still fresh for info.
func (c *MenuCache) Get(gophermap, selector string, info fs.FileInfo) ([]byte, bool) {
	key := menuKey(gophermap, selector)
	menu, ok := c.cache.Get(key)
	if !ok {
		return nil, false
	}
	if info == nil || !menu.fresh(info) {
		c.cache.Del(key)
		return nil, false
	}
	return menu.body, true
}

// Put stores an encoded menu body. Admission is best effort.
func (c *MenuCache) Put(gophermap, selector string, info fs.FileInfo, body []byte) {
	if info == nil {
		return
	}
	c.cache.Set(menuKey(gophermap, selector), &cachedMenu{
		body:     body,
		modTime:  info.ModTime(),
		size:     info.Size(),
		identity: identityOf(info),
	}, 1)
}

// Wait blocks until pending writes are visible to Get.
func (c *MenuCache) Wait() {
	c.cache.Wait()
}

// Close releases the cache's background goroutines.
func (c *MenuCache) Close() {
	c.cache.Close()
}
