// Package credstore contains the stores holding the identities (certificate
// chain plus private key) used for TLS client authentication.
package credstore

import (
	"bytes"
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/x509"
	"errors"
	"slices"
	"sort"
)

// ErrNoSuchAlias indicates that the store has no identity for an alias.
var ErrNoSuchAlias = errors.New("credstore: no such alias")

// ErrKeyMismatch indicates that the private key does not belong to the leaf certificate.
var ErrKeyMismatch = errors.New("credstore: private key does not match the certificate")

// ErrEmptyChain indicates that an identity has no certificates.
var ErrEmptyChain = errors.New("credstore: empty certificate chain")

// Key types as advertised in a server's CertificateRequest.
const (
	KeyTypeRSA     = "RSA"
	KeyTypeEC      = "EC"
	KeyTypeEd25519 = "Ed25519"
)

// Identity is a certificate chain, leaf first, and its private key.
type Identity struct {
	Chain []*x509.Certificate
	Key   crypto.Signer
}

// NewIdentity validates the chain and the key and returns an [*Identity].
func NewIdentity(chain []*x509.Certificate, key crypto.Signer) (*Identity, error) {
	if len(chain) <= 0 {
		return nil, ErrEmptyChain
	}
	if !publicKeyEqual(chain[0].PublicKey, key.Public()) {
		return nil, ErrKeyMismatch
	}
	return &Identity{Chain: chain, Key: key}, nil
}

// KeyType returns the key type of the given public key, or an
// empty string for unknown key types.
func KeyType(pub crypto.PublicKey) string {
	switch pub.(type) {
	case *rsa.PublicKey:
		return KeyTypeRSA
	case *ecdsa.PublicKey:
		return KeyTypeEC
	case ed25519.PublicKey:
		return KeyTypeEd25519
	default:
		return ""
	}
}

// Matches returns whether the identity is acceptable for a server that
// advertised the given key types and DER-encoded issuer names. Empty
// keyTypes or issuers do not constrain the match.
func (id *Identity) Matches(keyTypes []string, issuers [][]byte) bool {
	if len(keyTypes) > 0 && !slices.Contains(keyTypes, KeyType(id.Chain[0].PublicKey)) {
		return false
	}
	if len(issuers) <= 0 {
		return true
	}
	for _, cert := range id.Chain {
		for _, issuer := range issuers {
			if bytes.Equal(cert.RawIssuer, issuer) {
				return true
			}
		}
	}
	return false
}

type publicKeyWithEqual interface {
	Equal(x crypto.PublicKey) bool
}

func publicKeyEqual(a, b crypto.PublicKey) bool {
	pk, good := a.(publicKeyWithEqual)
	return good && pk.Equal(b)
}

// orderChain moves the certificate matching key in front and returns
// the resulting chain, or [ErrKeyMismatch] if no certificate matches.
func orderChain(certs []*x509.Certificate, key crypto.Signer) ([]*x509.Certificate, error) {
	for idx, cert := range certs {
		if publicKeyEqual(cert.PublicKey, key.Public()) {
			chain := []*x509.Certificate{cert}
			chain = append(chain, certs[:idx]...)
			chain = append(chain, certs[idx+1:]...)
			return chain, nil
		}
	}
	if len(certs) <= 0 {
		return nil, ErrEmptyChain
	}
	return nil, ErrKeyMismatch
}

// sortedMatches returns the sorted aliases whose identity matches.
func sortedMatches(identities map[string]*Identity, keyTypes []string, issuers [][]byte) []string {
	out := []string{}
	for alias, id := range identities {
		if id.Matches(keyTypes, issuers) {
			out = append(out, alias)
		}
	}
	sort.Strings(out)
	return out
}
