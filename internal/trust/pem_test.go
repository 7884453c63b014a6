package trust_test

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mozilla.org/pkcs7"

	"github.com/jonesrussell/domaincrawl/internal/trust"
)

// selfSignedDER creates a throwaway self-signed certificate with the given
// common name and returns its DER encoding.
func selfSignedDER(t *testing.T, cn string) []byte {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: cn},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		IsCA:                  true,
		BasicConstraintsValid: true,
	}

	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)

	return der
}

func pemEncode(der []byte) []byte {
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
}

func TestEnsurePEMPassthrough(t *testing.T) {
	pemData := pemEncode(selfSignedDER(t, "Passthrough CA"))
	assert.Equal(t, pemData, trust.EnsurePEM(pemData))
}

func TestEnsurePEMFromDER(t *testing.T) {
	der := selfSignedDER(t, "DER CA")

	got := trust.EnsurePEM(der)
	require.NotNil(t, got)

	// Round-trip law: DER of a PEM re-encodes to the same PEM.
	assert.Equal(t, string(pemEncode(der)), string(got))
}

func TestEnsurePEMFromPKCS7(t *testing.T) {
	der := selfSignedDER(t, "P7 CA One")

	p7, err := pkcs7.DegenerateCertificate(der)
	require.NoError(t, err)

	got := trust.EnsurePEM(p7)
	require.NotNil(t, got)
	assert.Equal(t, string(pemEncode(der)), string(got))

	block, rest := pem.Decode(got)
	require.NotNil(t, block)
	assert.Empty(t, rest)
}

func TestEnsurePEMGarbage(t *testing.T) {
	assert.Nil(t, trust.EnsurePEM([]byte("not a certificate at all")))
	assert.Nil(t, trust.EnsurePEM(nil))
}

func TestIssuerCN(t *testing.T) {
	pemData := pemEncode(selfSignedDER(t, "Intermediate CA"))

	// Self-signed: issuer CN equals subject CN.
	assert.Equal(t, "Intermediate CA", trust.IssuerCN(pemData))
	assert.Empty(t, trust.IssuerCN([]byte("garbage")))
}

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"example.com", "example.com"},
		{"Intermediate CA", "Intermediate_CA"},
		{"a/b\\c:d", "a_b_c_d"},
		{"ok-name_1.x", "ok-name_1.x"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, trust.SanitizeName(tt.in))
	}
}
