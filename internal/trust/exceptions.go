package trust

import (
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"sync"

	"github.com/mailtls/mailtls/internal/kvstore"
	"github.com/mailtls/mailtls/internal/model"
)

// Fingerprint returns the hex-encoded SHA-256 digest of the certificate.
func Fingerprint(cert *x509.Certificate) string {
	digest := sha256.Sum256(cert.Raw)
	return hex.EncodeToString(digest[:])
}

// Exceptions contains the server certificates the user approved for a
// specific host and port, stored as lists of fingerprints.
type Exceptions struct {
	kvs model.KeyValueStore
	mu  sync.Mutex
}

// NewExceptions creates [*Exceptions] backed by the given store.
func NewExceptions(kvs model.KeyValueStore) *Exceptions {
	return &Exceptions{kvs: kvs}
}

func exceptionsKey(host string, port int) string {
	return fmt.Sprintf("%s_%d.json", url.PathEscape(host), port)
}

func (e *Exceptions) read(host string, port int) ([]string, error) {
	data, err := e.kvs.Get(exceptionsKey(host, port))
	if errors.Is(err, kvstore.ErrNoSuchKey) {
		return []string{}, nil
	}
	if err != nil {
		return nil, err
	}
	var out []string
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (e *Exceptions) write(host string, port int, fingerprints []string) error {
	if len(fingerprints) <= 0 {
		return e.kvs.Delete(exceptionsKey(host, port))
	}
	data, err := json.Marshal(fingerprints)
	if err != nil {
		return err
	}
	return e.kvs.Set(exceptionsKey(host, port), data)
}

// Add approves cert for host and port.
func (e *Exceptions) Add(host string, port int, cert *x509.Certificate) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	fingerprints, err := e.read(host, port)
	if err != nil {
		return err
	}
	fp := Fingerprint(cert)
	if slices.Contains(fingerprints, fp) {
		return nil
	}
	return e.write(host, port, append(fingerprints, fp))
}

// Contains returns whether cert was approved for host and port.
func (e *Exceptions) Contains(host string, port int, cert *x509.Certificate) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	fingerprints, err := e.read(host, port)
	if err != nil {
		return false, err
	}
	return slices.Contains(fingerprints, Fingerprint(cert)), nil
}

// Remove withdraws the approval of the certificate with the given
// fingerprint for host and port.
func (e *Exceptions) Remove(host string, port int, fingerprint string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	fingerprints, err := e.read(host, port)
	if err != nil {
		return err
	}
	fingerprints = slices.DeleteFunc(fingerprints, func(fp string) bool {
		return fp == fingerprint
	})
	return e.write(host, port, fingerprints)
}

// List returns the fingerprints approved for host and port.
func (e *Exceptions) List(host string, port int) ([]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.read(host, port)
}
