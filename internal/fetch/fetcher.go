package fetch

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jonesrussell/domaincrawl/internal/logger"
	"github.com/jonesrussell/domaincrawl/internal/trust"
	"github.com/jonesrussell/domaincrawl/internal/urls"
	"github.com/jonesrussell/domaincrawl/internal/useragent"
)

const (
	connectTimeout   = 10 * time.Second
	totalTimeout     = 45 * time.Second
	keepAliveIdle    = 60 * time.Second
	maxRedirects     = 10
	maxResponseBytes = 10 * 1024 * 1024 // 10 MB
)

// ErrTooManyRedirects is returned when the redirect chain exceeds the cap.
var ErrTooManyRedirects = errors.New("fetch: too many redirects")

// Fetcher performs single HTTPS GETs with redirect following for one
// domain worker. It owns its TrustStore and is used sequentially by exactly
// one worker; none of its state is safe for concurrent use.
type Fetcher struct {
	clientH2 *http.Client
	clientH1 *http.Client
	trust    *trust.Store
	agents   *useragent.Pool
	log      logger.Interface

	// redirectCount is written by the redirect hook during a single fetch;
	// safe under the one-worker ownership rule.
	redirectCount int
}

// NewFetcher builds a fetcher verifying against the trust store's base CA
// bundle. The HTTP/2 client is preferred; the HTTP/1.1 twin exists for the
// framing-error downgrade path.
func NewFetcher(trustStore *trust.Store, agents *useragent.Pool, log logger.Interface) (*Fetcher, error) {
	basePool, err := loadPool(trustStore.BaseCAPath())
	if err != nil {
		return nil, err
	}

	f := &Fetcher{trust: trustStore, agents: agents, log: log}
	f.clientH2 = f.newClient(basePool, true)
	f.clientH1 = f.newClient(basePool, false)

	return f, nil
}

// Fetch performs one GET with up to ten followed redirects. On an HTTP/2
// stream failure or partial transfer it retries once over HTTP/1.1; on a
// certificate verification failure it runs trust augmentation and retries
// once with strict verification against the augmented bundle.
func (f *Fetcher) Fetch(ctx context.Context, u urls.URL) (*Response, error) {
	resp, err := f.do(ctx, f.clientH2, u)
	if err == nil {
		return resp, nil
	}

	switch {
	case isHTTP2TransportErr(err):
		f.log.Debug("downgrading to HTTP/1.1", "url", u.Canonical(), "error", err.Error())
		return f.do(ctx, f.clientH1, u)

	case isTLSVerificationErr(err):
		aug, ok := f.trust.Augment(ctx, u.Host())
		if !ok {
			return nil, err
		}
		defer aug.Close()

		f.log.Debug("retrying with augmented trust",
			"url", u.Canonical(), "bundle", aug.BundlePath)

		retry := f.newClient(aug.Pool, true)
		return f.do(ctx, retry, u)
	}

	return nil, err
}

// do runs one request on the given client.
func (f *Fetcher) do(ctx context.Context, client *http.Client, u urls.URL) (*Response, error) {
	reqCtx, cancel := context.WithTimeout(ctx, totalTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, u.Canonical(), http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("fetch: build request: %w", err)
	}
	req.Header.Set("User-Agent", f.agents.Random())

	f.redirectCount = 0

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: %s: %w", u.Canonical(), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("fetch: read body %s: %w", u.Canonical(), err)
	}

	return &Response{
		Status:        resp.StatusCode,
		Headers:       headersFromResponse(resp.Header),
		Body:          body,
		RedirectCount: f.redirectCount,
		EffectiveURL:  urls.Parse(resp.Request.URL.String()),
	}, nil
}

// newClient builds an HTTP client trusting the given pool. h2 selects the
// protocol preference; the HTTP/1.1 variant empties TLSNextProto to keep
// the handshake off ALPN h2.
func (f *Fetcher) newClient(pool *x509.CertPool, h2 bool) *http.Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   connectTimeout,
			KeepAlive: keepAliveIdle,
		}).DialContext,
		ForceAttemptHTTP2: h2,
		IdleConnTimeout:   keepAliveIdle,
		TLSClientConfig: &tls.Config{
			RootCAs:    pool,
			MinVersion: tls.VersionTLS12,
		},
	}
	if !h2 {
		transport.TLSNextProto = map[string]func(string, *tls.Conn) http.RoundTripper{}
	}

	return &http.Client{
		Timeout:       totalTimeout,
		Transport:     transport,
		CheckRedirect: f.checkRedirect,
	}
}

// checkRedirect caps the chain at maxRedirects and sets the Referer from
// the previous hop.
func (f *Fetcher) checkRedirect(req *http.Request, via []*http.Request) error {
	if len(via) > maxRedirects {
		return ErrTooManyRedirects
	}

	f.redirectCount = len(via)
	req.Header.Set("Referer", via[len(via)-1].URL.String())

	return nil
}

// loadPool reads a CA bundle file into a certificate pool. An empty path
// falls back to the system pool (nil RootCAs).
func loadPool(path string) (*x509.CertPool, error) {
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("fetch: read CA bundle %s: %w", path, err)
	}

	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(data) {
		return nil, fmt.Errorf("fetch: no certificates in %s", path)
	}

	return pool, nil
}

// isHTTP2TransportErr classifies errors worth an HTTP/1.1 downgrade:
// HTTP/2 stream or framing failures and partial transfers.
func isHTTP2TransportErr(err error) bool {
	if err == nil {
		return false
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "http2") &&
		(strings.Contains(msg, "frame") ||
			strings.Contains(msg, "stream") ||
			strings.Contains(msg, "protocol")) {
		return true
	}

	return strings.Contains(msg, "unexpected eof")
}

// isTLSVerificationErr classifies peer verification failures that warrant
// trust augmentation.
func isTLSVerificationErr(err error) bool {
	if err == nil {
		return false
	}

	var unknownAuthority x509.UnknownAuthorityError
	if errors.As(err, &unknownAuthority) {
		return true
	}

	var certInvalid x509.CertificateInvalidError
	if errors.As(err, &certInvalid) {
		return true
	}

	msg := err.Error()
	return strings.Contains(msg, "unable to get local issuer certificate") ||
		strings.Contains(msg, "certificate signed by unknown authority")
}
