package frontier_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/domaincrawl/internal/frontier"
	"github.com/jonesrussell/domaincrawl/internal/urls"
)

func parseAll(t *testing.T, raw ...string) []urls.URL {
	t.Helper()
	out := make([]urls.URL, 0, len(raw))
	for _, r := range raw {
		u := urls.Parse(r)
		require.True(t, u.IsValid(), "test URL %q must be valid", r)
		out = append(out, u)
	}
	return out
}

func TestNewStoreMissingDir(t *testing.T) {
	_, err := frontier.NewStore(filepath.Join(t.TempDir(), "absent"))
	require.ErrorIs(t, err, frontier.ErrMissingDir)
}

func TestLoadGroupsByDomain(t *testing.T) {
	dir := t.TempDir()
	seed := strings.Join([]string{
		"https://a.example.com/one",
		"https://example.com/two",
		"https://example.net/three",
		"not a url at all ://",
		"",
		"https://example.com/two", // duplicate
	}, "\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "seed.list"), []byte(seed), 0o600))

	store, err := frontier.NewStore(dir)
	require.NoError(t, err)

	batches, err := store.Load()
	require.NoError(t, err)
	require.Len(t, batches, 2)

	com := batches["example.com"]
	require.NotNil(t, com)
	assert.Len(t, com.Seeds, 2) // deduplicated

	net := batches["example.net"]
	require.NotNil(t, net)
	assert.Len(t, net.Seeds, 1)

	// Every seed in a batch belongs to that batch's domain.
	for key, batch := range batches {
		for _, u := range batch.Seeds {
			assert.Equal(t, key, u.RegistrableDomain())
		}
	}
}

func TestAppendRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := frontier.NewStore(dir)
	require.NoError(t, err)

	domain := urls.Parse("example.com")
	in := parseAll(t,
		"https://example.com/b",
		"https://example.com/a",
		"https://example.com/b", // duplicate
		"https://example.com/c",
	)

	require.NoError(t, store.Append(domain, in))

	raw, readErr := os.ReadFile(filepath.Join(dir, domain.Sha256Hex()+".list"))
	require.NoError(t, readErr)

	// Reading back yields sort(dedup(S)), newline-terminated.
	want := "https://example.com/a\nhttps://example.com/b\nhttps://example.com/c\n"
	assert.Equal(t, want, string(raw))
}

func TestAppendNewlineGuard(t *testing.T) {
	dir := t.TempDir()
	store, err := frontier.NewStore(dir)
	require.NoError(t, err)

	domain := urls.Parse("example.com")
	path := filepath.Join(dir, domain.Sha256Hex()+".list")

	// Existing file without a trailing newline.
	require.NoError(t, os.WriteFile(path, []byte("https://example.com/old"), 0o600))

	require.NoError(t, store.Append(domain, parseAll(t, "https://example.com/new")))

	raw, readErr := os.ReadFile(path)
	require.NoError(t, readErr)
	assert.Equal(t, "https://example.com/old\nhttps://example.com/new\n", string(raw))
}

func TestAppendNeverRemovesLines(t *testing.T) {
	dir := t.TempDir()
	store, err := frontier.NewStore(dir)
	require.NoError(t, err)

	domain := urls.Parse("example.com")
	require.NoError(t, store.Append(domain, parseAll(t, "https://example.com/1")))
	require.NoError(t, store.Append(domain, parseAll(t, "https://example.com/1", "https://example.com/2")))

	raw, readErr := os.ReadFile(filepath.Join(dir, domain.Sha256Hex()+".list"))
	require.NoError(t, readErr)

	// The second append does not dedup against the file, only against itself.
	assert.Equal(t, "https://example.com/1\nhttps://example.com/1\nhttps://example.com/2\n", string(raw))
}

func TestAppendEmptyIsNoop(t *testing.T) {
	dir := t.TempDir()
	store, err := frontier.NewStore(dir)
	require.NoError(t, err)

	domain := urls.Parse("example.com")
	require.NoError(t, store.Append(domain, nil))

	_, statErr := os.Stat(filepath.Join(dir, domain.Sha256Hex()+".list"))
	assert.True(t, os.IsNotExist(statErr))
}
