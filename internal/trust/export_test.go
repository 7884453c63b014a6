package trust

import (
	"context"
	"crypto/x509"
	"net/http"
	"time"
)

// Test seams: swap the probe, clock, and HTTP client without touching the
// production surface.

func (s *Store) SetProbeForTest(probe func(ctx context.Context, hostport string) (*x509.Certificate, error)) {
	s.probeLeaf = probe
}

func (s *Store) SetClockForTest(now func() time.Time) {
	s.now = now
}

func (s *Store) SetHTTPClientForTest(client *http.Client) {
	s.httpClient = client
}

func (s *Store) AIACacheSizesForTest() (byHost, byFingerprint int) {
	return len(s.aiaByHost), len(s.aiaByFingerprint)
}
