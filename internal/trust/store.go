// Package trust implements the TLS trust augmentation pipeline: discovering
// AIA "CA Issuers" URLs from a server's leaf certificate, fetching and
// normalizing intermediate certificates, persisting them under sanitized
// names, and assembling per-host CA bundles layered on the system bundle.
//
// A Store is owned by exactly one Fetcher. Its caches are per-instance and
// never shared across workers; the duplication cost is trivial next to the
// contention and correctness risk of a process-global cache.
package trust

import (
	"context"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"encoding/hex"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"
)

const (
	aiaPositiveTTL = 24 * time.Hour
	aiaNegativeTTL = 10 * time.Minute
	aiaCacheCap    = 4096

	probeConnectTimeout = 4 * time.Second
	probeTotalTimeout   = 8 * time.Second

	fetchConnectTimeout = 4 * time.Second
	fetchTotalTimeout   = 10 * time.Second
)

// aiaAccept is the Accept header sent when downloading issuer certificates.
const aiaAccept = "application/pkix-cert, application/pkcs7-mime, " +
	"application/x-pkcs7-certificates, application/x-x509-ca-cert;q=0.9, */*;q=0.5"

// aiaEntry is one cached AIA lookup. An empty URL list is a negative entry.
type aiaEntry struct {
	urls     []string
	negative bool
	expires  time.Time
}

// Store holds the per-fetcher trust state.
type Store struct {
	pemDir     string
	baseCAPath string

	aiaByHost        map[string]aiaEntry
	aiaByFingerprint map[string]aiaEntry
	issuerPEMByCN    map[string][]byte
	bundlePathByHost map[string]string

	httpClient *http.Client
	probeLeaf  func(ctx context.Context, hostport string) (*x509.Certificate, error)
	now        func() time.Time
}

// NewStore creates a trust store persisting intermediates under pemDir and
// layering bundles on the CA file at baseCAPath.
func NewStore(pemDir, baseCAPath string) (*Store, error) {
	if err := os.MkdirAll(pemDir, 0o755); err != nil {
		return nil, fmt.Errorf("trust: create %s: %w", pemDir, err)
	}

	return &Store{
		pemDir:           pemDir,
		baseCAPath:       baseCAPath,
		aiaByHost:        make(map[string]aiaEntry),
		aiaByFingerprint: make(map[string]aiaEntry),
		issuerPEMByCN:    make(map[string][]byte),
		bundlePathByHost: make(map[string]string),
		httpClient: &http.Client{
			Timeout: fetchTotalTimeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{Timeout: fetchConnectTimeout}).DialContext,
			},
		},
		probeLeaf: probeLeafCertificate,
		now:       time.Now,
	}, nil
}

// BaseCAPath returns the path of the base CA bundle.
func (s *Store) BaseCAPath() string {
	return s.baseCAPath
}

// AIAURLs returns the CA-Issuers URLs advertised by the leaf certificate
// served at the given host (optionally host:port), consulting the host and
// fingerprint caches first. The probe runs with verification disabled: only
// the leaf's AIA extension is wanted, never a trusted chain, and the relaxed
// connection is discarded here and never handed back to the fetch path.
func (s *Store) AIAURLs(ctx context.Context, hostport string) []string {
	host := stripPort(hostport)
	now := s.now()

	if entry, ok := s.aiaByHost[host]; ok && entry.expires.After(now) {
		return entry.urls // may be empty (negative)
	}

	probeCtx, cancel := context.WithTimeout(ctx, probeTotalTimeout)
	defer cancel()

	leaf, err := s.probeLeaf(probeCtx, withDefaultPort(hostport))
	if err != nil || leaf == nil {
		return nil
	}

	fp := sha256.Sum256(leaf.Raw)
	fingerprint := hex.EncodeToString(fp[:])

	// The fingerprint index is authoritative across hosts sharing a leaf.
	if entry, ok := s.aiaByFingerprint[fingerprint]; ok && entry.expires.After(now) {
		s.aiaByHost[host] = entry
		return entry.urls
	}

	found := leaf.IssuingCertificateURL

	entry := aiaEntry{urls: found, negative: len(found) == 0}
	ttl := aiaPositiveTTL
	if entry.negative {
		ttl = aiaNegativeTTL
	}
	entry.expires = now.Add(ttl)

	s.aiaByFingerprint[fingerprint] = entry
	s.aiaByHost[host] = entry

	// Coarse caps: clear wholesale rather than tracking recency.
	if len(s.aiaByFingerprint) > aiaCacheCap {
		s.aiaByFingerprint = make(map[string]aiaEntry)
	}
	if len(s.aiaByHost) > aiaCacheCap {
		s.aiaByHost = make(map[string]aiaEntry)
	}

	return found
}

// probeLeafCertificate performs a verification-disabled TLS handshake and
// returns the peer's leaf certificate.
func probeLeafCertificate(ctx context.Context, hostport string) (*x509.Certificate, error) {
	host, _, err := net.SplitHostPort(hostport)
	if err != nil {
		host = hostport
	}

	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{Timeout: probeConnectTimeout},
		Config: &tls.Config{
			ServerName:         host,
			InsecureSkipVerify: true, //nolint:gosec // leaf inspection only; see package doc
		},
	}

	conn, err := dialer.DialContext(ctx, "tcp", hostport)
	if err != nil {
		return nil, fmt.Errorf("trust: probe %s: %w", hostport, err)
	}
	defer conn.Close()

	tlsConn, ok := conn.(*tls.Conn)
	if !ok {
		return nil, fmt.Errorf("trust: probe %s: not a TLS connection", hostport)
	}

	peers := tlsConn.ConnectionState().PeerCertificates
	if len(peers) == 0 {
		return nil, fmt.Errorf("trust: probe %s: no peer certificates", hostport)
	}

	return peers[0], nil
}

func stripPort(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return host
}

// withDefaultPort appends :443 when the host carries no port.
func withDefaultPort(hostport string) string {
	if _, _, err := net.SplitHostPort(hostport); err == nil {
		return hostport
	}
	return net.JoinHostPort(hostport, "443")
}
