package trust

import (
	"bytes"
	"context"
	"crypto/x509"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// maxIssuerBytes bounds a single downloaded issuer payload.
const maxIssuerBytes = 1 << 20

// Augmentation is the outcome of a successful trust augmentation: a
// certificate pool to retry the connection with, and the bundle that backs
// it. When the pool came from a one-shot temporary bundle, Close unlinks
// it; Close must be deferred over the single retry.
type Augmentation struct {
	Pool       *x509.CertPool
	BundlePath string
	cleanup    func()
}

// Close releases any one-shot resources held by the augmentation.
func (a *Augmentation) Close() {
	if a.cleanup != nil {
		a.cleanup()
		a.cleanup = nil
	}
}

// Augment attempts to extend trust for the host with intermediates fetched
// via AIA. It returns false when nothing new was discovered or the bundle
// could not be applied; trust is left unchanged in that case.
func (s *Store) Augment(ctx context.Context, hostport string) (*Augmentation, bool) {
	host := stripPort(hostport)

	aiaURLs := s.AIAURLs(ctx, hostport)
	if len(aiaURLs) == 0 {
		return nil, false
	}

	var extras [][]byte

	for _, issuerURL := range aiaURLs {
		if strings.HasPrefix(issuerURL, "ldap://") {
			continue // not supported
		}

		raw, err := s.fetchIssuer(ctx, issuerURL)
		if err != nil {
			continue
		}

		pemData := EnsurePEM(raw)
		if pemData == nil {
			continue
		}

		cn := IssuerCN(pemData)
		if cn == "" {
			continue
		}

		if _, seen := s.issuerPEMByCN[cn]; seen {
			continue
		}
		s.issuerPEMByCN[cn] = pemData

		// Persistence failures leave the in-memory extra usable.
		_ = s.persistPEM(host, cn, pemData)
		extras = append(extras, pemData)
	}

	if len(extras) == 0 {
		return nil, false
	}

	if aug, ok := s.applyHostBundle(host); ok {
		return aug, true
	}

	return s.applyTempBundle(extras)
}

// fetchIssuer downloads one AIA payload over plain HTTP semantics with the
// pkix Accept header.
func (s *Store) fetchIssuer(ctx context.Context, issuerURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, issuerURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("trust: build request %s: %w", issuerURL, err)
	}
	req.Header.Set("Accept", aiaAccept)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("trust: fetch issuer %s: %w", issuerURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("trust: fetch issuer %s: status %d", issuerURL, resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxIssuerBytes))
	if err != nil {
		return nil, fmt.Errorf("trust: read issuer %s: %w", issuerURL, err)
	}

	return raw, nil
}

// applyHostBundle rebuilds the persistent per-host bundle and loads it into
// a certificate pool.
func (s *Store) applyHostBundle(host string) (*Augmentation, bool) {
	bundlePath, err := s.rebuildHostBundle(host)
	if err != nil {
		return nil, false
	}

	data, err := os.ReadFile(bundlePath)
	if err != nil {
		return nil, false
	}

	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(data) {
		return nil, false
	}

	return &Augmentation{Pool: pool, BundlePath: bundlePath}, true
}

// applyTempBundle is the fallback: a one-shot bundle of base CAs plus the
// freshly discovered extras, written to a temporary file whose lifetime is
// tied to the retry via Close.
func (s *Store) applyTempBundle(extras [][]byte) (*Augmentation, bool) {
	base, err := os.ReadFile(s.baseCAPath)
	if err != nil {
		return nil, false
	}

	var combined bytes.Buffer
	combined.Write(base)
	ensureNewline(&combined)
	for _, pemData := range extras {
		combined.Write(pemData)
		ensureNewline(&combined)
	}

	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(combined.Bytes()) {
		return nil, false
	}

	tmpPath := filepath.Join(os.TempDir(), "cabundle_"+uuid.NewString()+".pem")
	if writeErr := os.WriteFile(tmpPath, combined.Bytes(), 0o600); writeErr != nil {
		return nil, false
	}

	return &Augmentation{
		Pool:       pool,
		BundlePath: tmpPath,
		cleanup:    func() { os.Remove(tmpPath) },
	}, true
}

func ensureNewline(buf *bytes.Buffer) {
	if buf.Len() > 0 && buf.Bytes()[buf.Len()-1] != '\n' {
		buf.WriteByte('\n')
	}
}
