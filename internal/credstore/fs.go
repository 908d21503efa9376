package credstore

import (
	"crypto"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/mailtls/mailtls/internal/kvstore"
	"github.com/mailtls/mailtls/internal/model"
	"golang.org/x/crypto/pkcs12"
)

// ErrInvalidPEM indicates that some PEM data could not be parsed.
var ErrInvalidPEM = errors.New("credstore: invalid PEM data")

// ErrInvalidAlias indicates that an alias is empty.
var ErrInvalidAlias = errors.New("credstore: invalid alias")

// bundleSuffix is the suffix of the keys holding identities.
const bundleSuffix = ".pem"

// FS is a credential store keeping each identity as a PEM bundle (the
// chain as CERTIFICATE blocks followed by a PKCS#8 PRIVATE KEY block)
// inside a [model.KeyValueStore].
type FS struct {
	kvs model.KeyValueStore
}

var _ model.CredentialStore = &FS{}

// NewFS creates a new [*FS] using the given key-value store.
func NewFS(kvs model.KeyValueStore) *FS {
	return &FS{kvs: kvs}
}

// NewFSWithDir is like [NewFS] with a [*kvstore.FS] rooted at dir.
func NewFSWithDir(dir string) (*FS, error) {
	kvs, err := kvstore.NewFS(dir)
	if err != nil {
		return nil, err
	}
	return NewFS(kvs), nil
}

// Portable returns true: FS only needs a directory, so it can supply
// client certificates on every platform.
func (s *FS) Portable() bool {
	return true
}

func keyForAlias(alias string) string {
	return url.PathEscape(alias) + bundleSuffix
}

func aliasForKey(key string) (string, bool) {
	if !strings.HasSuffix(key, bundleSuffix) {
		return "", false
	}
	alias, err := url.PathUnescape(strings.TrimSuffix(key, bundleSuffix))
	return alias, err == nil
}

// Import stores under alias the identity made of the PEM-encoded
// certificates in certPEM and the PEM-encoded private key in keyPEM. The
// certificate matching the key becomes the leaf.
func (s *FS) Import(alias string, certPEM, keyPEM []byte) error {
	certs, err := parseCertificatesPEM(certPEM)
	if err != nil {
		return err
	}
	key, err := parsePrivateKeyPEM(keyPEM)
	if err != nil {
		return err
	}
	return s.store(alias, certs, key)
}

// ImportPKCS12 stores under alias the identity contained in the given
// PKCS#12 archive protected by password.
func (s *FS) ImportPKCS12(alias string, pfx []byte, password string) error {
	blocks, err := pkcs12.ToPEM(pfx, password)
	if err != nil {
		return fmt.Errorf("credstore: cannot decode PKCS#12 data: %w", err)
	}
	var (
		certs []*x509.Certificate
		key   crypto.Signer
	)
	for _, block := range blocks {
		switch block.Type {
		case "CERTIFICATE":
			cert, err := x509.ParseCertificate(block.Bytes)
			if err != nil {
				return err
			}
			certs = append(certs, cert)
		case "PRIVATE KEY":
			if key, err = parsePrivateKeyDER(block.Bytes); err != nil {
				return err
			}
		}
	}
	if key == nil {
		return fmt.Errorf("%w: no private key in PKCS#12 data", ErrInvalidPEM)
	}
	return s.store(alias, certs, key)
}

func (s *FS) store(alias string, certs []*x509.Certificate, key crypto.Signer) error {
	if alias == "" {
		return ErrInvalidAlias
	}
	chain, err := orderChain(certs, key)
	if err != nil {
		return err
	}
	keyDER, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return err
	}
	var bundle []byte
	for _, cert := range chain {
		bundle = append(bundle, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw})...)
	}
	bundle = append(bundle, pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: keyDER})...)
	return s.kvs.Set(keyForAlias(alias), bundle)
}

// Delete removes the identity stored under alias.
func (s *FS) Delete(alias string) error {
	return s.kvs.Delete(keyForAlias(alias))
}

// Aliases returns the sorted list of aliases.
func (s *FS) Aliases() ([]string, error) {
	keys, err := s.kvs.Keys()
	if err != nil {
		return nil, err
	}
	out := []string{}
	for _, key := range keys {
		if alias, good := aliasForKey(key); good {
			out = append(out, alias)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *FS) load(alias string) (*Identity, error) {
	data, err := s.kvs.Get(keyForAlias(alias))
	if errors.Is(err, kvstore.ErrNoSuchKey) {
		return nil, fmt.Errorf("%w: %s", ErrNoSuchAlias, alias)
	}
	if err != nil {
		return nil, err
	}
	var (
		chain []*x509.Certificate
		key   crypto.Signer
	)
	for {
		var block *pem.Block
		if block, data = pem.Decode(data); block == nil {
			break
		}
		switch block.Type {
		case "CERTIFICATE":
			cert, err := x509.ParseCertificate(block.Bytes)
			if err != nil {
				return nil, err
			}
			chain = append(chain, cert)
		case "PRIVATE KEY":
			if key, err = parsePrivateKeyDER(block.Bytes); err != nil {
				return nil, err
			}
		}
	}
	if key == nil {
		return nil, fmt.Errorf("%w: no private key for %s", ErrInvalidPEM, alias)
	}
	return NewIdentity(chain, key)
}

// CertificateChain implements model.CredentialStore.
func (s *FS) CertificateChain(alias string) ([]*x509.Certificate, error) {
	id, err := s.load(alias)
	if err != nil {
		return nil, err
	}
	return id.Chain, nil
}

// PrivateKey implements model.CredentialStore.
func (s *FS) PrivateKey(alias string) (crypto.Signer, error) {
	id, err := s.load(alias)
	if err != nil {
		return nil, err
	}
	return id.Key, nil
}

// MatchingAliases implements model.CredentialStore.
func (s *FS) MatchingAliases(keyTypes []string, issuers [][]byte) ([]string, error) {
	aliases, err := s.Aliases()
	if err != nil {
		return nil, err
	}
	identities := make(map[string]*Identity)
	for _, alias := range aliases {
		id, err := s.load(alias)
		if err != nil {
			return nil, err
		}
		identities[alias] = id
	}
	return sortedMatches(identities, keyTypes, issuers), nil
}

func parseCertificatesPEM(data []byte) ([]*x509.Certificate, error) {
	var out []*x509.Certificate
	for {
		var block *pem.Block
		if block, data = pem.Decode(data); block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, err
		}
		out = append(out, cert)
	}
	if len(out) <= 0 {
		return nil, fmt.Errorf("%w: no certificates", ErrInvalidPEM)
	}
	return out, nil
}

func parsePrivateKeyPEM(data []byte) (crypto.Signer, error) {
	for {
		var block *pem.Block
		if block, data = pem.Decode(data); block == nil {
			return nil, fmt.Errorf("%w: no private key", ErrInvalidPEM)
		}
		if strings.HasSuffix(block.Type, "PRIVATE KEY") {
			return parsePrivateKeyDER(block.Bytes)
		}
	}
}

// parsePrivateKeyDER parses PKCS#8, PKCS#1 and SEC 1 private keys.
func parsePrivateKeyDER(der []byte) (crypto.Signer, error) {
	if key, err := x509.ParsePKCS8PrivateKey(der); err == nil {
		signer, good := key.(crypto.Signer)
		if !good {
			return nil, fmt.Errorf("%w: unsupported private key type %T", ErrInvalidPEM, key)
		}
		return signer, nil
	}
	if key, err := x509.ParsePKCS1PrivateKey(der); err == nil {
		return key, nil
	}
	if key, err := x509.ParseECPrivateKey(der); err == nil {
		return key, nil
	}
	return nil, fmt.Errorf("%w: cannot parse private key", ErrInvalidPEM)
}
