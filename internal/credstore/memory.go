package credstore

import (
	"crypto"
	"crypto/x509"
	"fmt"
	"sort"
	"sync"

	"github.com/mailtls/mailtls/internal/model"
)

// Memory is an in-memory credential store.
//
// The zero value is ready to use.
type Memory struct {
	m  map[string]*Identity
	mu sync.RWMutex
}

var _ model.CredentialStore = &Memory{}

// Add adds or replaces the identity stored under alias.
func (s *Memory) Add(alias string, chain []*x509.Certificate, key crypto.Signer) error {
	id, err := NewIdentity(chain, key)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.m == nil {
		s.m = make(map[string]*Identity)
	}
	s.m[alias] = id
	return nil
}

// Delete removes the identity stored under alias, if any.
func (s *Memory) Delete(alias string) {
	s.mu.Lock()
	delete(s.m, alias)
	s.mu.Unlock()
}

// Aliases returns the sorted list of aliases.
func (s *Memory) Aliases() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.m))
	for alias := range s.m {
		out = append(out, alias)
	}
	sort.Strings(out)
	return out
}

func (s *Memory) identity(alias string) (*Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, found := s.m[alias]
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrNoSuchAlias, alias)
	}
	return id, nil
}

// CertificateChain implements model.CredentialStore.
func (s *Memory) CertificateChain(alias string) ([]*x509.Certificate, error) {
	id, err := s.identity(alias)
	if err != nil {
		return nil, err
	}
	return id.Chain, nil
}

// PrivateKey implements model.CredentialStore.
func (s *Memory) PrivateKey(alias string) (crypto.Signer, error) {
	id, err := s.identity(alias)
	if err != nil {
		return nil, err
	}
	return id.Key, nil
}

// MatchingAliases implements model.CredentialStore.
func (s *Memory) MatchingAliases(keyTypes []string, issuers [][]byte) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedMatches(s.m, keyTypes, issuers), nil
}
