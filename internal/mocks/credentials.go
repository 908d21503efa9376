package mocks

import (
	"crypto"
	"crypto/x509"

	"github.com/mailtls/mailtls/internal/model"
)

// CredentialStore allows mocking model.CredentialStore.
type CredentialStore struct {
	MockCertificateChain func(alias string) ([]*x509.Certificate, error)
	MockPrivateKey       func(alias string) (crypto.Signer, error)
	MockMatchingAliases  func(keyTypes []string, issuers [][]byte) ([]string, error)
}

var _ model.CredentialStore = &CredentialStore{}

// CertificateChain calls MockCertificateChain.
func (cs *CredentialStore) CertificateChain(alias string) ([]*x509.Certificate, error) {
	return cs.MockCertificateChain(alias)
}

// PrivateKey calls MockPrivateKey.
func (cs *CredentialStore) PrivateKey(alias string) (crypto.Signer, error) {
	return cs.MockPrivateKey(alias)
}

// MatchingAliases calls MockMatchingAliases.
func (cs *CredentialStore) MatchingAliases(keyTypes []string, issuers [][]byte) ([]string, error) {
	return cs.MockMatchingAliases(keyTypes, issuers)
}
