package testingx

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"time"

	"github.com/mailtls/mailtls/internal/runtimex"
)

// Key types understood by [*PKI.MustNewClientIdentity].
const (
	KeyTypeRSA     = "RSA"
	KeyTypeEC      = "EC"
	KeyTypeEd25519 = "Ed25519"
)

// PKI is a self-signed certification authority issuing client
// certificates for tests.
type PKI struct {
	// CACert is the CA certificate.
	CACert *x509.Certificate

	caKey  crypto.Signer
	serial int64
}

// MustNewPKI creates a new [*PKI] whose CA has the given common name.
func MustNewPKI(commonName string) *PKI {
	key := runtimex.Try1(ecdsa.GenerateKey(elliptic.P256(), rand.Reader))
	template := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: commonName, Organization: []string{"mailtls tests"}},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	der := runtimex.Try1(x509.CreateCertificate(rand.Reader, template, template, key.Public(), key))
	return &PKI{
		CACert: runtimex.Try1(x509.ParseCertificate(der)),
		caKey:  key,
		serial: 1,
	}
}

// CertPool returns a pool containing the CA certificate.
func (p *PKI) CertPool() *x509.CertPool {
	pool := x509.NewCertPool()
	pool.AddCert(p.CACert)
	return pool
}

// MustNewClientIdentity issues a client certificate with the given common
// name and key type and returns the chain (leaf first, then the CA) and
// the private key. This method is not safe for concurrent use.
func (p *PKI) MustNewClientIdentity(commonName, keyType string) ([]*x509.Certificate, crypto.Signer) {
	return p.mustIssue(&x509.Certificate{
		Subject:     pkix.Name{CommonName: commonName},
		ExtKeyUsage: []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
	}, keyType)
}

// MustNewServerIdentity is like [*PKI.MustNewClientIdentity] but issues
// a server certificate valid for the given host name.
func (p *PKI) MustNewServerIdentity(host, keyType string) ([]*x509.Certificate, crypto.Signer) {
	return p.mustIssue(&x509.Certificate{
		Subject:     pkix.Name{CommonName: host},
		DNSNames:    []string{host},
		ExtKeyUsage: []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}, keyType)
}

func (p *PKI) mustIssue(template *x509.Certificate, keyType string) ([]*x509.Certificate, crypto.Signer) {
	key := mustGenerateKey(keyType)
	p.serial++
	template.SerialNumber = big.NewInt(p.serial)
	template.NotBefore = time.Now().Add(-time.Hour)
	template.NotAfter = time.Now().Add(24 * time.Hour)
	template.KeyUsage = x509.KeyUsageDigitalSignature
	der := runtimex.Try1(x509.CreateCertificate(rand.Reader, template, p.CACert, key.Public(), p.caKey))
	leaf := runtimex.Try1(x509.ParseCertificate(der))
	return []*x509.Certificate{leaf, p.CACert}, key
}

func mustGenerateKey(keyType string) crypto.Signer {
	switch keyType {
	case KeyTypeRSA:
		return runtimex.Try1(rsa.GenerateKey(rand.Reader, 2048))
	case KeyTypeEd25519:
		_, key := runtimex.Try2(ed25519.GenerateKey(rand.Reader))
		return key
	default:
		return runtimex.Try1(ecdsa.GenerateKey(elliptic.P256(), rand.Reader))
	}
}

// MustEncodeChainPEM encodes the given chain using PEM.
func MustEncodeChainPEM(chain []*x509.Certificate) []byte {
	var out []byte
	for _, cert := range chain {
		out = append(out, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw})...)
	}
	return out
}

// MustEncodeKeyPEM encodes the given private key as a PKCS#8 PEM block.
func MustEncodeKeyPEM(key crypto.Signer) []byte {
	der := runtimex.Try1(x509.MarshalPKCS8PrivateKey(key))
	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})
}
