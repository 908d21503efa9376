package model

//
// Client certificate credentials
//

import (
	"crypto"
	"crypto/x509"
)

// CredentialStore is the store holding private keys and certificate
// chains used for TLS client authentication. Entries are addressed
// by alias. Implementations MUST be safe for concurrent reads.
type CredentialStore interface {
	// CertificateChain returns the chain stored under alias with the leaf
	// certificate first. When there is no such alias, the error is such
	// that errors.Is(err, credstore.ErrNoSuchAlias).
	CertificateChain(alias string) ([]*x509.Certificate, error)

	// PrivateKey returns the private key stored under alias. The same
	// missing-alias semantics of CertificateChain apply.
	PrivateKey(alias string) (crypto.Signer, error)

	// MatchingAliases returns the aliases whose identity is acceptable
	// given the key types (e.g., "RSA", "EC") and DER-encoded issuer
	// distinguished names advertised by a server. An empty keyTypes or
	// issuers list does not constrain the result.
	MatchingAliases(keyTypes []string, issuers [][]byte) ([]string, error)
}
