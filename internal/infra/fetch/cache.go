package fetch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/tutu-network/classifier/internal/domain"
)

// Cache keeps fetched content on disk, keyed by reference. Entries older
// than ttl are refetched; a failed refetch falls back to the stale entry.
type Cache struct {
	dir    string
	ttl    time.Duration
	inner  domain.ContentFetcher
	logger *slog.Logger
}

// NewCache wraps inner with an on-disk cache under dir. ttl <= 0 never expires.
func NewCache(dir string, ttl time.Duration, inner domain.ContentFetcher, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{dir: dir, ttl: ttl, inner: inner, logger: logger}
}

func (c *Cache) Fetch(ctx context.Context, ref string) ([]byte, error) {
	path := c.path(ref)

	info, statErr := os.Stat(path)
	fresh := statErr == nil && (c.ttl <= 0 || time.Since(info.ModTime()) < c.ttl)
	if fresh {
		if data, err := os.ReadFile(path); err == nil {
			return data, nil
		}
	}

	data, err := c.inner.Fetch(ctx, ref)
	if err != nil {
		if statErr == nil {
			if stale, rerr := os.ReadFile(path); rerr == nil {
				c.logger.Warn("using stale cached content", "url", ref, "error", err)
				return stale, nil
			}
		}
		return nil, err
	}

	if err := c.store(path, data); err != nil {
		c.logger.Warn("cache write failed", "url", ref, "error", err)
	}
	return data, nil
}

func (c *Cache) path(ref string) string {
	sum := sha256.Sum256([]byte(ref))
	return filepath.Join(c.dir, hex.EncodeToString(sum[:16]))
}

// store writes through a temp file so readers never see a partial entry.
func (c *Cache) store(path string, data []byte) error {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	tmp, err := os.CreateTemp(c.dir, ".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
