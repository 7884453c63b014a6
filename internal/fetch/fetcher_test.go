package fetch_test

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/domaincrawl/internal/fetch"
	"github.com/jonesrussell/domaincrawl/internal/logger"
	"github.com/jonesrussell/domaincrawl/internal/trust"
	"github.com/jonesrussell/domaincrawl/internal/urls"
	"github.com/jonesrussell/domaincrawl/internal/useragent"
)

type caFixture struct {
	cert *x509.Certificate
	key  *ecdsa.PrivateKey
	der  []byte
	pem  []byte
}

func newCA(t *testing.T, cn string) *caFixture {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: cn},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		IsCA:                  true,
		KeyUsage:              x509.KeyUsageCertSign,
		BasicConstraintsValid: true,
	}

	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)

	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)

	return &caFixture{
		cert: cert,
		key:  key,
		der:  der,
		pem:  pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}),
	}
}

// newLeaf issues a server certificate for 127.0.0.1 signed by the CA,
// advertising the given AIA CA-Issuers URL.
func newLeaf(t *testing.T, ca *caFixture, aiaURL string) tls.Certificate {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(2),
		Subject:               pkix.Name{CommonName: "127.0.0.1"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		IPAddresses:           []net.IP{net.ParseIP("127.0.0.1")},
		IssuingCertificateURL: []string{aiaURL},
	}

	der, err := x509.CreateCertificate(rand.Reader, tmpl, ca.cert, &key.PublicKey, ca.key)
	require.NoError(t, err)

	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key}
}

// newFetcher wires a fetcher whose base trust is the given CA bundle.
func newFetcher(t *testing.T, basePEM []byte) (*fetch.Fetcher, *trust.Store) {
	t.Helper()

	basePath := filepath.Join(t.TempDir(), "ca-bundle.crt")
	require.NoError(t, os.WriteFile(basePath, basePEM, 0o600))

	store, err := trust.NewStore(t.TempDir(), basePath)
	require.NoError(t, err)

	uaPath := filepath.Join(t.TempDir(), "agents.txt")
	require.NoError(t, os.WriteFile(uaPath, []byte("test-agent/1.0\n"), 0o600))
	pool, err := useragent.Load(uaPath)
	require.NoError(t, err)

	f, err := fetch.NewFetcher(store, pool, logger.NewNoOp())
	require.NoError(t, err)

	return f, store
}

func TestFetchOK(t *testing.T) {
	var gotUA string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html>hello</html>"))
	}))
	defer server.Close()

	f, _ := newFetcher(t, newCA(t, "Unused Root").pem)

	resp, err := f.Fetch(context.Background(), urls.Parse(server.URL+"/page"))
	require.NoError(t, err)

	assert.True(t, resp.IsOkay())
	assert.False(t, resp.IsRedirect())
	assert.Equal(t, "<html>hello</html>", string(resp.Body))
	assert.Equal(t, 0, resp.RedirectCount)
	assert.Equal(t, "test-agent/1.0", gotUA)

	ct, ok := resp.Header("content-type")
	assert.True(t, ok)
	assert.Equal(t, "text/html", ct)
}

func TestFetchFollowsRedirects(t *testing.T) {
	var refererAtB string
	mux := http.NewServeMux()
	mux.HandleFunc("/a", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/b", http.StatusFound)
	})
	mux.HandleFunc("/b", func(w http.ResponseWriter, r *http.Request) {
		refererAtB = r.Header.Get("Referer")
		http.Redirect(w, r, "/c", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/c", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("final"))
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	f, _ := newFetcher(t, newCA(t, "Unused Root").pem)

	resp, err := f.Fetch(context.Background(), urls.Parse(server.URL+"/a"))
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, "final", string(resp.Body))
	assert.Equal(t, 2, resp.RedirectCount)
	assert.True(t, strings.HasSuffix(resp.EffectiveURL.Canonical(), "/c"))
	assert.Equal(t, server.URL+"/a", refererAtB)
}

func TestFetchRedirectLoopCapped(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/loop", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/loop", http.StatusFound)
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	f, _ := newFetcher(t, newCA(t, "Unused Root").pem)

	_, err := f.Fetch(context.Background(), urls.Parse(server.URL+"/loop"))
	require.Error(t, err)
}

// A verification failure triggers AIA discovery, intermediate download,
// bundle assembly, and a successful strict retry on the augmented trust.
func TestFetchAugmentsTrustOnVerificationFailure(t *testing.T) {
	siteCA := newCA(t, "Site Root CA")

	derServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pkix-cert")
		w.Write(siteCA.der)
	}))
	defer derServer.Close()

	site := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("trusted now"))
	}))
	site.TLS = &tls.Config{
		Certificates: []tls.Certificate{newLeaf(t, siteCA, derServer.URL+"/root.der")},
	}
	site.StartTLS()
	defer site.Close()

	// Base trust knows nothing about the site's CA.
	f, store := newFetcher(t, newCA(t, "Unrelated Root").pem)

	resp, err := f.Fetch(context.Background(), urls.Parse(site.URL+"/"))
	require.NoError(t, err)
	assert.Equal(t, "trusted now", string(resp.Body))

	// The discovered CA was persisted and a positive AIA entry cached.
	assert.NotEmpty(t, store.AIAURLs(context.Background(), urls.Parse(site.URL).Host()))
}

func TestRateGatePacing(t *testing.T) {
	gate := fetch.NewRateGate(50 * time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	for range 3 {
		require.NoError(t, gate.Wait(ctx))
	}
	elapsed := time.Since(start)

	// First slot is immediate; two more cost one interval each.
	assert.GreaterOrEqual(t, elapsed, 100*time.Millisecond)
}

func TestRateGateDisabled(t *testing.T) {
	gate := fetch.NewRateGate(0)

	start := time.Now()
	for range 10 {
		require.NoError(t, gate.Wait(context.Background()))
	}
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestResponseHeaderOrderAndLookup(t *testing.T) {
	resp := &fetch.Response{
		Headers: []fetch.Header{
			{Name: "Content-Type", Value: "text/html"},
			{Name: "Set-Cookie", Value: "a=1"},
			{Name: "Set-Cookie", Value: "b=2"},
		},
	}

	v, ok := resp.Header("CONTENT-TYPE")
	assert.True(t, ok)
	assert.Equal(t, "text/html", v)

	// First value wins on lookup; the map keeps the last.
	v, _ = resp.Header("set-cookie")
	assert.Equal(t, "a=1", v)
	assert.Equal(t, "b=2", resp.HeaderMap()["Set-Cookie"])

	_, ok = resp.Header("X-Missing")
	assert.False(t, ok)
}
