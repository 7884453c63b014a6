// Package cache implements the content-addressed on-disk store for fetched
// bodies, header sidecars, and extraction results. File names are the
// SHA-256 of the canonical URL; freshness is bounded by a modification-time
// TTL. The cache is shared across workers but URL keys partition perfectly
// by domain, so no two workers ever write the same key.
package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jonesrussell/domaincrawl/internal/urls"
)

const (
	headersExt    = ".headers"
	extractionExt = ".json"
	tmpExt        = ".tmp"
)

// Cache is a content-addressed TTL-bounded store rooted at a directory.
type Cache struct {
	dir    string
	maxAge time.Duration
	now    func() time.Time
}

// New creates a cache rooted at dir with the given freshness limit. The
// directory is created if missing.
func New(dir string, maxAge time.Duration) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cache: create %s: %w", dir, err)
	}

	return &Cache{dir: dir, maxAge: maxAge, now: time.Now}, nil
}

// IsCached reports whether a fresh body exists for the URL.
func (c *Cache) IsCached(u urls.URL) bool {
	return c.isFresh(c.bodyPath(u))
}

// Fetch returns the cached body when present and fresh. A vanished or stale
// file is a miss, never an error.
func (c *Cache) Fetch(u urls.URL) ([]byte, bool) {
	path := c.bodyPath(u)
	if !c.isFresh(path) {
		return nil, false
	}

	// The file can disappear between the freshness check and the read;
	// treat that as a miss.
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}

	return body, true
}

// StoreBody writes the raw body under the URL's content hash.
func (c *Cache) StoreBody(u urls.URL, body []byte) error {
	return c.writeAtomic(c.bodyPath(u), body)
}

// StoreHeaders writes the header sidecar as a JSON object.
func (c *Cache) StoreHeaders(u urls.URL, headers map[string]string) error {
	data, err := json.Marshal(headers)
	if err != nil {
		return fmt.Errorf("cache: encode headers: %w", err)
	}

	return c.writeAtomic(c.bodyPath(u)+headersExt, data)
}

// StoreExtraction writes the extractor result, pretty-printed with 2-space
// indent and a trailing newline.
func (c *Cache) StoreExtraction(u urls.URL, result json.RawMessage) error {
	pretty, err := indentJSON(result)
	if err != nil {
		return fmt.Errorf("cache: encode extraction: %w", err)
	}

	return c.writeAtomic(c.bodyPath(u)+extractionExt, append(pretty, '\n'))
}

func (c *Cache) bodyPath(u urls.URL) string {
	return filepath.Join(c.dir, u.Sha256Hex())
}

// isFresh reports whether the file exists and its mtime is within maxAge.
// An unreadable timestamp or one in the future counts as expired.
func (c *Cache) isFresh(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}

	age := c.now().Sub(info.ModTime())
	if age < 0 {
		return false
	}

	return age <= c.maxAge
}

// writeAtomic writes via a .tmp sibling and renames into place.
func (c *Cache) writeAtomic(path string, data []byte) error {
	tmp := path + tmpExt
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("cache: write %s: %w", tmp, err)
	}

	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("cache: rename %s: %w", path, err)
	}

	return nil
}

func indentJSON(raw json.RawMessage) ([]byte, error) {
	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, err
	}

	return json.MarshalIndent(value, "", "  ")
}
