// Package trust decides whether the certificate chain presented by a
// mail server is acceptable for a given host and port.
//
// A chain is acceptable when it verifies against the configured roots
// for the host name, or when the user explicitly approved the server's
// leaf certificate for that host and port (see [*Exceptions]).
package trust

import (
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"strconv"

	"github.com/mailtls/mailtls/internal/model"
	"github.com/mailtls/mailtls/internal/netxlite"
)

// ErrEmptyChain indicates that the server did not send any certificate.
var ErrEmptyChain = errors.New("trust: empty certificate chain")

// CertificateRejectedError indicates that a server chain is not acceptable.
type CertificateRejectedError struct {
	// Host and Port identify the destination.
	Host string
	Port int

	// Leaf is the server certificate, if it could be parsed.
	Leaf *x509.Certificate

	// Err is the underlying verification error.
	Err error
}

// Error implements error.
func (e *CertificateRejectedError) Error() string {
	endpoint := net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
	return fmt.Sprintf("trust: certificate for %s rejected: %s", endpoint, e.Err.Error())
}

// Unwrap allows to use errors.Is and errors.As.
func (e *CertificateRejectedError) Unwrap() error {
	return e.Err
}

// Failure returns the failure string describing why we rejected the chain.
func (e *CertificateRejectedError) Failure() string {
	return netxlite.ClassifyTLSHandshakeError(e.Err)
}

// Provider implements [model.TrustEvaluatorProvider].
type Provider struct {
	// Roots contains the trusted roots. When nil, we use the system pool.
	Roots *x509.CertPool

	// Exceptions contains the user-approved certificates. May be nil.
	Exceptions *Exceptions

	// Logger is the optional logger.
	Logger model.Logger
}

var _ model.TrustEvaluatorProvider = &Provider{}

// TrustEvaluator implements model.TrustEvaluatorProvider.
func (p *Provider) TrustEvaluator(host string, port int) (model.TrustEvaluator, error) {
	roots := p.Roots
	if roots == nil {
		pool, err := x509.SystemCertPool()
		if err != nil {
			return nil, err
		}
		roots = pool
	}
	ev := &evaluator{
		exceptions: p.Exceptions,
		host:       host,
		logger:     model.ValidLoggerOrDefault(p.Logger),
		port:       port,
		roots:      roots,
	}
	return ev, nil
}

type evaluator struct {
	exceptions *Exceptions
	host       string
	logger     model.Logger
	port       int
	roots      *x509.CertPool
}

// EvaluateServerChain implements model.TrustEvaluator.
func (ev *evaluator) EvaluateServerChain(rawCerts [][]byte) error {
	if len(rawCerts) <= 0 {
		return ev.reject(nil, ErrEmptyChain)
	}
	certs := make([]*x509.Certificate, 0, len(rawCerts))
	for _, raw := range rawCerts {
		cert, err := x509.ParseCertificate(raw)
		if err != nil {
			return ev.reject(nil, err)
		}
		certs = append(certs, cert)
	}
	opts := x509.VerifyOptions{
		DNSName:       ev.host,
		Intermediates: x509.NewCertPool(),
		Roots:         ev.roots,
	}
	for _, cert := range certs[1:] {
		opts.Intermediates.AddCert(cert)
	}
	_, err := certs[0].Verify(opts)
	if err == nil {
		return nil
	}
	if ev.exceptions != nil {
		approved, lookupErr := ev.exceptions.Contains(ev.host, ev.port, certs[0])
		if lookupErr != nil {
			ev.logger.Warnf("trust: cannot read exceptions for %s: %s", ev.host, lookupErr.Error())
		}
		if approved {
			ev.logger.Infof("trust: accepting user-approved certificate %s for %s",
				Fingerprint(certs[0]), ev.host)
			return nil
		}
	}
	return ev.reject(certs[0], err)
}

func (ev *evaluator) reject(leaf *x509.Certificate, err error) error {
	return &CertificateRejectedError{Host: ev.host, Port: ev.port, Leaf: leaf, Err: err}
}
