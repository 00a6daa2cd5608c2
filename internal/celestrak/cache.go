package celestrak

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"
)

// ErrCacheEmpty is returned by LoadLatest when no cached response exists.
var ErrCacheEmpty = errors.New("no cached GP responses")

const cachePrefix = "gp_"

// Entry is one cached response. Its file name encodes both fields, e.g.
// gp_1739506780.tle.
type Entry struct {
	Path      string
	FetchedAt time.Time
	Format    Format
}

// Cache keeps raw GP responses on disk so runs can continue offline. Only
// the newest maxFiles entries are retained; unrelated files in the
// directory are left alone.
type Cache struct {
	dir      string
	maxFiles int
}

// NewCache returns a cache rooted at dir. maxFiles <= 0 keeps five.
func NewCache(dir string, maxFiles int) *Cache {
	if maxFiles <= 0 {
		maxFiles = 5
	}
	return &Cache{dir: dir, maxFiles: maxFiles}
}

func (c *Cache) Dir() string { return c.dir }

// Write stores data fetched at ts and prunes old entries. The file appears
// under its final name only once complete.
func (c *Cache) Write(data []byte, ts time.Time, f Format) (Entry, error) {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return Entry{}, fmt.Errorf("creating cache dir: %w", err)
	}

	e := Entry{
		Path:      filepath.Join(c.dir, cachePrefix+strconv.FormatInt(ts.Unix(), 10)+extension(f)),
		FetchedAt: time.Unix(ts.Unix(), 0).UTC(),
		Format:    f,
	}
	tmp, err := os.CreateTemp(c.dir, ".gp-*.partial")
	if err != nil {
		return Entry{}, fmt.Errorf("creating cache file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return Entry{}, fmt.Errorf("writing cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return Entry{}, fmt.Errorf("writing cache file: %w", err)
	}
	if err := os.Rename(tmp.Name(), e.Path); err != nil {
		os.Remove(tmp.Name())
		return Entry{}, fmt.Errorf("committing cache file: %w", err)
	}
	return e, c.prune()
}

// LoadLatest reads the newest entry.
func (c *Cache) LoadLatest() ([]byte, Entry, error) {
	entries, err := c.Entries()
	if err != nil {
		return nil, Entry{}, err
	}
	if len(entries) == 0 {
		return nil, Entry{}, ErrCacheEmpty
	}
	data, err := os.ReadFile(entries[0].Path)
	if err != nil {
		return nil, Entry{}, fmt.Errorf("reading cache file: %w", err)
	}
	return data, entries[0], nil
}

// Entries lists cached responses, newest first.
func (c *Cache) Entries() ([]Entry, error) {
	matches, err := filepath.Glob(filepath.Join(c.dir, cachePrefix+"*"))
	if err != nil {
		return nil, fmt.Errorf("listing cache dir: %w", err)
	}

	var entries []Entry
	for _, path := range matches {
		if e, ok := parseEntry(path); ok {
			entries = append(entries, e)
		}
	}
	slices.SortFunc(entries, func(a, b Entry) int {
		if n := b.FetchedAt.Compare(a.FetchedAt); n != 0 {
			return n
		}
		return strings.Compare(b.Path, a.Path)
	})
	return entries, nil
}

func parseEntry(path string) (Entry, bool) {
	name := filepath.Base(path)
	stem, f := strings.TrimPrefix(name, cachePrefix), FormatTLE
	switch {
	case strings.HasSuffix(stem, ".tle"):
		stem = strings.TrimSuffix(stem, ".tle")
	case strings.HasSuffix(stem, ".json"):
		stem, f = strings.TrimSuffix(stem, ".json"), FormatJSON
	default:
		return Entry{}, false
	}
	unix, err := strconv.ParseInt(stem, 10, 64)
	if err != nil {
		return Entry{}, false
	}
	return Entry{Path: path, FetchedAt: time.Unix(unix, 0).UTC(), Format: f}, true
}

func extension(f Format) string {
	if f == FormatJSON {
		return ".json"
	}
	return ".tle"
}

func (c *Cache) prune() error {
	entries, err := c.Entries()
	if err != nil {
		return err
	}
	if len(entries) <= c.maxFiles {
		return nil
	}
	for _, e := range entries[c.maxFiles:] {
		if err := os.Remove(e.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("pruning cache file %s: %w", filepath.Base(e.Path), err)
		}
	}
	return nil
}
