package hashcache

import (
	"path/filepath"
	"testing"
)

func TestCacheRoundTrip(t *testing.T) {
	cache, err := Open(filepath.Join(t.TempDir(), "hashes.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer cache.Close()

	key := Key{ZipPath: "a.zip", EntryPath: "Photos from 2023/img.jpg", Size: 100, ZipMtime: 1700000000}

	if got := cache.Get(key); got != "" {
		t.Errorf("Get on empty cache = %q", got)
	}

	if err := cache.PutAll(map[Key]string{key: "deadbeef"}); err != nil {
		t.Fatal(err)
	}
	if got := cache.Get(key); got != "deadbeef" {
		t.Errorf("Get = %q, want deadbeef", got)
	}

	// A changed archive mtime invalidates the row.
	stale := key
	stale.ZipMtime = 1800000000
	if got := cache.Get(stale); got != "" {
		t.Errorf("Get with stale mtime = %q, want miss", got)
	}

	// Upsert replaces the stale row.
	if err := cache.PutAll(map[Key]string{stale: "cafef00d"}); err != nil {
		t.Fatal(err)
	}
	if got := cache.Get(stale); got != "cafef00d" {
		t.Errorf("Get after upsert = %q", got)
	}
	if got := cache.Get(key); got != "" {
		t.Errorf("old row survived upsert: %q", got)
	}
}

func TestNilCacheIsAlwaysMiss(t *testing.T) {
	var cache *Cache
	if got := cache.Get(Key{}); got != "" {
		t.Errorf("nil cache Get = %q", got)
	}
	if err := cache.PutAll(map[Key]string{{}: "x"}); err != nil {
		t.Errorf("nil cache PutAll = %v", err)
	}
	if err := cache.Close(); err != nil {
		t.Errorf("nil cache Close = %v", err)
	}
}
