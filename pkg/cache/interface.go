// Package cache defines the content-addressable result cache the screenshot
// service reads before and writes after a capture. Entries are keyed by a
// fingerprint of the capture parameters and expire after a fixed TTL.
// Concrete backends (e.g. the file cache) live in sub-packages.
//
//go:generate mockgen -package mockcache -source=interface.go -destination=mock/mockcache.go *
package cache

import (
	"context"
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// Key is the fingerprint of a capture request. It is safe to use as a file name.
type Key string

// String implements fmt.Stringer.
func (k Key) String() string { return string(k) }

// Fingerprint derives the cache key of a capture from its (already normalized)
// URL and full-page flag. Equal inputs always produce equal keys.
func Fingerprint(url string, fullPage bool) Key {
	d := xxhash.New()
	_, _ = d.WriteString(url)
	_, _ = d.WriteString("\x00fullPage=")
	_, _ = d.WriteString(strconv.FormatBool(fullPage))

	return Key(strconv.FormatUint(d.Sum64(), 16))
}

// Cache stores rendered screenshots.
type Cache interface {
	// Get returns the stored bytes when a fresh entry exists. Expired entries
	// are removed and reported as a miss. Get never fails; unreadable entries
	// are misses as well.
	Get(ctx context.Context, key Key) ([]byte, bool)
	// Set stores data under key, replacing any previous entry.
	Set(ctx context.Context, key Key, data []byte) error
	// Prune removes every expired entry and reports how many were removed.
	Prune(ctx context.Context) (int, error)
}
