package trust

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
)

const bundleDirName = "bundles"

// rebuildHostBundle concatenates the base CA bundle with every issuer PEM
// persisted for the host and writes the result atomically to
// <pem_dir>/bundles/<host>.bundle.pem.
func (s *Store) rebuildHostBundle(host string) (string, error) {
	base, err := os.ReadFile(s.baseCAPath)
	if err != nil {
		return "", fmt.Errorf("trust: read base bundle: %w", err)
	}

	var combined bytes.Buffer
	combined.Write(base)
	ensureNewline(&combined)

	pattern := filepath.Join(s.pemDir, SanitizeName(host)+"__*.pem")
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return "", fmt.Errorf("trust: glob %s: %w", pattern, err)
	}

	for _, path := range matches {
		pemData, readErr := os.ReadFile(path)
		if readErr != nil {
			continue
		}
		combined.Write(pemData)
		ensureNewline(&combined)
	}

	bundleDir := filepath.Join(s.pemDir, bundleDirName)
	if mkErr := os.MkdirAll(bundleDir, 0o755); mkErr != nil {
		return "", fmt.Errorf("trust: create %s: %w", bundleDir, mkErr)
	}

	bundlePath := filepath.Join(bundleDir, host+".bundle.pem")
	tmp := bundlePath + ".tmp"
	if writeErr := os.WriteFile(tmp, combined.Bytes(), 0o644); writeErr != nil {
		return "", fmt.Errorf("trust: write %s: %w", tmp, writeErr)
	}
	if renameErr := os.Rename(tmp, bundlePath); renameErr != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("trust: rename %s: %w", bundlePath, renameErr)
	}

	s.bundlePathByHost[host] = bundlePath

	return bundlePath, nil
}

// systemBundlePaths lists well-known CA bundle locations, first match wins.
var systemBundlePaths = []string{
	"/etc/ssl/certs/ca-certificates.crt",
	"/etc/pki/tls/certs/ca-bundle.crt",
	"/etc/ssl/ca-bundle.pem",
	"/etc/pki/tls/cacert.pem",
	"/etc/ssl/cert.pem",
}

// SystemBundlePath returns the first existing well-known CA bundle path.
func SystemBundlePath() (string, error) {
	for _, path := range systemBundlePaths {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("trust: no system CA bundle found")
}
