package securechannel

import (
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/hex"
	"errors"
	"fmt"
	"slices"

	"github.com/mailtls/mailtls/internal/credstore"
	"github.com/mailtls/mailtls/internal/model"
)

// clientCertificateFunc is the type of tls.Config.GetClientCertificate.
type clientCertificateFunc func(cri *tls.CertificateRequestInfo) (*tls.Certificate, error)

// newClientCertificateFunc returns the certificate-supply strategy for mode.
func newClientCertificateFunc(mode AliasMode, dest Destination,
	store model.CredentialStore, logger model.Logger) clientCertificateFunc {
	switch mode.Kind {
	case AliasModeExplicit:
		return explicitAliasStrategy(mode.Alias, store, logger)
	case AliasModeInteractive:
		return interactiveAbortStrategy(dest, logger)
	default:
		return noClientCertificateStrategy()
	}
}

// noClientCertificateStrategy answers with an empty certificate, which
// continues the handshake without client authentication.
func noClientCertificateStrategy() clientCertificateFunc {
	return func(cri *tls.CertificateRequestInfo) (*tls.Certificate, error) {
		return &tls.Certificate{}, nil
	}
}

// explicitAliasStrategy answers with the identity stored under alias. A
// missing alias behaves like [noClientCertificateStrategy] while any other
// store error aborts the handshake.
func explicitAliasStrategy(alias string, store model.CredentialStore, logger model.Logger) clientCertificateFunc {
	return func(cri *tls.CertificateRequestInfo) (*tls.Certificate, error) {
		chain, err := store.CertificateChain(alias)
		if errors.Is(err, credstore.ErrNoSuchAlias) {
			logger.Warnf("securechannel: no client certificate with alias %q", alias)
			return &tls.Certificate{}, nil
		}
		if err != nil {
			return nil, fmt.Errorf("securechannel: cannot read chain for %q: %w", alias, err)
		}
		key, err := store.PrivateKey(alias)
		if errors.Is(err, credstore.ErrNoSuchAlias) {
			logger.Warnf("securechannel: no private key with alias %q", alias)
			return &tls.Certificate{}, nil
		}
		if err != nil {
			return nil, fmt.Errorf("securechannel: cannot read key for %q: %w", alias, err)
		}
		if len(chain) <= 0 {
			return &tls.Certificate{}, nil
		}
		cert := &tls.Certificate{
			Certificate: certificateChainRaw(chain),
			PrivateKey:  key,
			Leaf:        chain[0],
		}
		logger.Debugf("securechannel: presenting client certificate %q {subject=%s}",
			alias, chain[0].Subject.String())
		return cert, nil
	}
}

// interactiveAbortStrategy never answers. It aborts the handshake with an
// [*InteractiveSelectionRequiredError] describing the server's request.
func interactiveAbortStrategy(dest Destination, logger model.Logger) clientCertificateFunc {
	return func(cri *tls.CertificateRequestInfo) (*tls.Certificate, error) {
		err := &InteractiveSelectionRequiredError{
			Destination:          dest,
			KeyTypes:             acceptableKeyTypes(cri.SignatureSchemes),
			Issuers:              issuerStrings(cri.AcceptableCAs),
			RawIssuers:           cri.AcceptableCAs,
			CertificateRequested: true,
		}
		if err.RawIssuers == nil {
			err.RawIssuers = [][]byte{}
		}
		logger.Infof("securechannel: %s", err.Error())
		return nil, err
	}
}

// acceptableKeyTypes maps the signature schemes advertised by the
// server to key types, in order of first appearance.
func acceptableKeyTypes(schemes []tls.SignatureScheme) []string {
	out := []string{}
	for _, scheme := range schemes {
		var keyType string
		switch scheme {
		case tls.PKCS1WithSHA1, tls.PKCS1WithSHA256, tls.PKCS1WithSHA384, tls.PKCS1WithSHA512,
			tls.PSSWithSHA256, tls.PSSWithSHA384, tls.PSSWithSHA512:
			keyType = credstore.KeyTypeRSA
		case tls.ECDSAWithSHA1, tls.ECDSAWithP256AndSHA256, tls.ECDSAWithP384AndSHA384,
			tls.ECDSAWithP521AndSHA512:
			keyType = credstore.KeyTypeEC
		case tls.Ed25519:
			keyType = credstore.KeyTypeEd25519
		default:
			continue
		}
		if !slices.Contains(out, keyType) {
			out = append(out, keyType)
		}
	}
	return out
}

// issuerStrings converts DER-encoded distinguished names to strings. Names
// we cannot parse are hex encoded.
func issuerStrings(rawIssuers [][]byte) []string {
	out := []string{}
	for _, raw := range rawIssuers {
		var rdns pkix.RDNSequence
		if rest, err := asn1.Unmarshal(raw, &rdns); err != nil || len(rest) > 0 {
			out = append(out, hex.EncodeToString(raw))
			continue
		}
		var name pkix.Name
		name.FillFromRDNSequence(&rdns)
		out = append(out, name.String())
	}
	return out
}

// certificateChainRaw returns the DER encoding of chain.
func certificateChainRaw(chain []*x509.Certificate) [][]byte {
	out := make([][]byte, 0, len(chain))
	for _, cert := range chain {
		out = append(out, cert.Raw)
	}
	return out
}
