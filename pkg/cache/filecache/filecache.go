// Package filecache implements cache.Cache on a directory: one file per key,
// holding the raw image bytes, with the file's modification time as the entry's
// creation time. There is no background sweep; stale entries are removed when
// a read finds them or by Prune.
package filecache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"screenshot/pkg/cache"
	"screenshot/pkg/logger"
)

const (
	tmpSuffix = ".tmp"
	dirPerm   = 0o755
)

// Options configure the file cache.
type Options struct {
	// Dir is the directory entries are stored in. It is created on first write.
	Dir string
	// TTL is the maximum age of a servable entry.
	TTL time.Duration
	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
	// Meter creates the cache instruments. Defaults to the global meter.
	Meter metric.Meter
}

type fileCache struct {
	fs      afero.Fs
	options Options
	lookups metric.Int64Counter
}

var _ cache.Cache = (*fileCache)(nil)

// New creates a file cache on fsys. Production code passes afero.NewOsFs().
func New(fsys afero.Fs, options Options) (cache.Cache, error) {
	if options.Now == nil {
		options.Now = time.Now
	}
	if options.Meter == nil {
		options.Meter = otel.Meter("screenshot/pkg/cache/filecache")
	}

	lookups, err := options.Meter.Int64Counter("screenshot_cache_lookups",
		metric.WithDescription("Result cache lookups by outcome"))
	if err != nil {
		return nil, fmt.Errorf("could not create lookups counter: %w", err)
	}

	return &fileCache{
		fs:      fsys,
		options: options,
		lookups: lookups,
	}, nil
}

func (c *fileCache) path(key cache.Key) string {
	return filepath.Join(c.options.Dir, key.String())
}

func (c *fileCache) count(ctx context.Context, result string) {
	c.lookups.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

func (c *fileCache) expired(info fs.FileInfo) bool {
	return c.options.Now().Sub(info.ModTime()) >= c.options.TTL
}

// Get implements cache.Cache.
func (c *fileCache) Get(ctx context.Context, key cache.Key) ([]byte, bool) {
	name := c.path(key)

	info, err := c.fs.Stat(name)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			logger.Warn(ctx, "could not stat cache entry", zap.String("key", key.String()), zap.Error(err))
		}
		c.count(ctx, "miss")

		return nil, false
	}

	if c.expired(info) {
		if err := c.fs.Remove(name); err != nil && !errors.Is(err, fs.ErrNotExist) {
			logger.Warn(ctx, "could not remove expired cache entry", zap.String("key", key.String()), zap.Error(err))
		}
		c.count(ctx, "expired")

		return nil, false
	}

	data, err := afero.ReadFile(c.fs, name)
	if err != nil {
		logger.Warn(ctx, "could not read cache entry", zap.String("key", key.String()), zap.Error(err))
		c.count(ctx, "miss")

		return nil, false
	}

	c.count(ctx, "hit")

	return data, true
}

// Set implements cache.Cache. The entry is written to a temporary file first
// and renamed into place so concurrent readers never see a partial image.
func (c *fileCache) Set(ctx context.Context, key cache.Key, data []byte) error {
	if err := c.fs.MkdirAll(c.options.Dir, dirPerm); err != nil {
		return fmt.Errorf("could not create cache directory: %w", err)
	}

	tmp, err := afero.TempFile(c.fs, c.options.Dir, key.String()+"-*"+tmpSuffix)
	if err != nil {
		return fmt.Errorf("could not create cache file: %w", err)
	}
	tmpName := tmp.Name()

	_, err = tmp.Write(data)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = c.fs.Remove(tmpName)

		return fmt.Errorf("could not write cache file: %w", err)
	}

	if err := c.fs.Rename(tmpName, c.path(key)); err != nil {
		_ = c.fs.Remove(tmpName)

		return fmt.Errorf("could not move cache file into place: %w", err)
	}

	logger.Debug(ctx, "stored cache entry", zap.String("key", key.String()), zap.Int("bytes", len(data)))

	return nil
}

// Prune implements cache.Cache. Leftover temporary files older than the TTL
// are removed as well.
func (c *fileCache) Prune(ctx context.Context) (int, error) {
	entries, err := afero.ReadDir(c.fs, c.options.Dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}

		return 0, fmt.Errorf("could not list cache directory: %w", err)
	}

	removed := 0
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return removed, fmt.Errorf("prune interrupted: %w", err)
		}
		if entry.IsDir() || !c.expired(entry) {
			continue
		}

		name := filepath.Join(c.options.Dir, entry.Name())
		if err := c.fs.Remove(name); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return removed, fmt.Errorf("could not remove %s: %w", entry.Name(), err)
		}
		if !strings.HasSuffix(entry.Name(), tmpSuffix) {
			removed++
		}
	}

	logger.Info(ctx, "pruned cache", zap.Int("removed", removed), zap.String("dir", c.options.Dir))

	return removed, nil
}
