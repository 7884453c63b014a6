package trust

import (
	"bytes"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"

	"go.mozilla.org/pkcs7"
)

// pemCertHeader marks input that is already PEM.
var pemCertHeader = []byte("-----BEGIN CERTIFICATE-----")

// EnsurePEM normalizes an AIA payload to PEM. PEM input passes through;
// a single DER X.509 is re-encoded; a PKCS#7/CMS certs-only envelope yields
// every contained certificate concatenated. Unusable input returns nil.
func EnsurePEM(data []byte) []byte {
	if bytes.Contains(data, pemCertHeader) {
		return data
	}

	if cert, err := x509.ParseCertificate(data); err == nil {
		return encodePEM(cert.Raw)
	}

	if p7, err := pkcs7.Parse(data); err == nil && len(p7.Certificates) > 0 {
		var out bytes.Buffer
		for _, cert := range p7.Certificates {
			out.Write(encodePEM(cert.Raw))
		}
		return out.Bytes()
	}

	return nil
}

// firstCertificate parses the first certificate block of a PEM blob.
func firstCertificate(pemData []byte) (*x509.Certificate, error) {
	rest := pemData
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			return nil, fmt.Errorf("trust: no certificate block in PEM")
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		return x509.ParseCertificate(block.Bytes)
	}
}

// IssuerCN returns the issuer common name of the first certificate in the
// PEM blob, empty when unreadable.
func IssuerCN(pemData []byte) string {
	cert, err := firstCertificate(pemData)
	if err != nil {
		return ""
	}
	return cert.Issuer.CommonName
}

// SanitizeName keeps [A-Za-z0-9._-] and replaces every other byte with '_'.
func SanitizeName(s string) string {
	out := make([]byte, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9',
			c == '.', c == '-', c == '_':
			out[i] = c
		default:
			out[i] = '_'
		}
	}
	return string(out)
}

// persistPEM writes an issuer PEM under <pem_dir>/<host>__<cn>.pem with both
// components sanitized.
func (s *Store) persistPEM(host, issuerCN string, pemData []byte) error {
	name := SanitizeName(host) + "__" + SanitizeName(issuerCN) + ".pem"
	path := filepath.Join(s.pemDir, name)

	if err := os.WriteFile(path, pemData, 0o644); err != nil {
		return fmt.Errorf("trust: persist %s: %w", path, err)
	}

	return nil
}

func encodePEM(der []byte) []byte {
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
}
