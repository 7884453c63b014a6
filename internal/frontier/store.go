// Package frontier loads seed URL files grouped by registrable domain and
// appends newly discovered same-domain URLs to per-domain frontier files.
// Appends are sorted, deduplicated, and newline-guarded; lines are never
// removed. The on-disk append is per-domain-file and each domain file is
// owned by exactly one worker per run.
package frontier

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/jonesrussell/domaincrawl/internal/urls"
)

// listExt is the extension of engine-written frontier files.
const listExt = ".list"

// ErrMissingDir is returned when the frontier directory does not exist at
// startup.
var ErrMissingDir = errors.New("frontier: directory does not exist")

// DomainBatch is the per-domain unit of work: the domain key, its sorted
// deduplicated seed set, and the pacing interval. Immutable after startup;
// discovered URLs accrete to the on-disk file only.
type DomainBatch struct {
	Domain    urls.URL
	Seeds     []urls.URL
	RateLimit time.Duration
}

// Store reads and appends per-domain frontier files under a directory.
type Store struct {
	dir string
}

// NewStore opens the frontier directory. A missing or non-directory path
// fails the whole frontier load.
func NewStore(dir string) (*Store, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMissingDir, dir)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("frontier: not a directory: %s", dir)
	}

	return &Store{dir: dir}, nil
}

// Load reads every regular file in the directory, one URL per non-blank
// line, drops invalid URLs, and groups the rest by registrable domain.
// Batches are keyed by the domain URL's canonical form.
func (s *Store) Load() (map[string]*DomainBatch, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("frontier: read %s: %w", s.dir, err)
	}

	batches := make(map[string]*DomainBatch)

	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		if loadErr := s.loadFile(filepath.Join(s.dir, entry.Name()), batches); loadErr != nil {
			return nil, loadErr
		}
	}

	for _, batch := range batches {
		batch.Seeds = sortAndDedup(batch.Seeds)
	}

	return batches, nil
}

func (s *Store) loadFile(path string, batches map[string]*DomainBatch) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("frontier: open %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		u := urls.Parse(line)
		if !u.IsValid() {
			continue
		}

		domain := u.Domain()
		key := domain.Canonical()
		batch, ok := batches[key]
		if !ok {
			batch = &DomainBatch{Domain: domain}
			batches[key] = batch
		}
		batch.Seeds = append(batch.Seeds, u)
	}

	if scanErr := scanner.Err(); scanErr != nil {
		return fmt.Errorf("frontier: scan %s: %w", path, scanErr)
	}

	return nil
}

// Append writes the given URLs to the domain's frontier file
// <sha256(domain)>.list: canonicalized, newline-sanitized, sorted, and
// deduplicated against themselves, in a single append write. When the
// existing file does not end with a newline, a leading newline guards
// against line joining. Lines are never removed.
func (s *Store) Append(domain urls.URL, list []urls.URL) error {
	if len(list) == 0 {
		return nil
	}

	lines := make([]string, 0, len(list))
	for _, u := range list {
		line := strings.NewReplacer("\r", "", "\n", "").Replace(u.Canonical())
		if line != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) == 0 {
		return nil
	}

	sort.Strings(lines)
	lines = dedupStrings(lines)

	path := filepath.Join(s.dir, domain.Sha256Hex()+listExt)

	var buf strings.Builder
	if needsLeadingNewline(path) {
		buf.WriteByte('\n')
	}
	for _, line := range lines {
		buf.WriteString(line)
		buf.WriteByte('\n')
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("frontier: open %s: %w", path, err)
	}
	defer f.Close()

	if _, writeErr := f.WriteString(buf.String()); writeErr != nil {
		return fmt.Errorf("frontier: append %s: %w", path, writeErr)
	}

	return nil
}

// needsLeadingNewline reports whether the file exists, is non-empty, and its
// last byte is not '\n'.
func needsLeadingNewline(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.Size() == 0 {
		return false
	}

	last := make([]byte, 1)
	if _, readErr := f.ReadAt(last, info.Size()-1); readErr != nil {
		return false
	}

	return last[0] != '\n'
}

func sortAndDedup(list []urls.URL) []urls.URL {
	sort.Slice(list, func(i, j int) bool { return list[i].Less(list[j]) })

	out := list[:0]
	for _, u := range list {
		if len(out) == 0 || u.Canonical() != out[len(out)-1].Canonical() {
			out = append(out, u)
		}
	}

	return out
}

func dedupStrings(sorted []string) []string {
	out := sorted[:0]
	for _, s := range sorted {
		if len(out) == 0 || s != out[len(out)-1] {
			out = append(out, s)
		}
	}
	return out
}
