package securechannel

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mailtls/mailtls/internal/netxlite"
	"github.com/mailtls/mailtls/internal/trust"
)

// ErrUnsupportedPlatform indicates that a client certificate was requested
// on a platform without client certificate support.
var ErrUnsupportedPlatform = errors.New("securechannel: client certificates are not supported on this platform")

// FailureInteractiveSelectionRequired is the failure string of
// [*InteractiveSelectionRequiredError].
const FailureInteractiveSelectionRequired = "interactive_selection_required"

// AlgorithmUnavailableError indicates that a cryptographic primitive
// needed to build the TLS context is not available.
type AlgorithmUnavailableError struct {
	Err error
}

// Error implements error.
func (e *AlgorithmUnavailableError) Error() string {
	return fmt.Sprintf("securechannel: algorithm unavailable: %s", e.Err.Error())
}

// Unwrap allows to use errors.Is and errors.As.
func (e *AlgorithmUnavailableError) Unwrap() error {
	return e.Err
}

// ContextInitError indicates that we could not initialize the TLS context.
type ContextInitError struct {
	Err error
}

// Error implements error.
func (e *ContextInitError) Error() string {
	return fmt.Sprintf("securechannel: cannot initialize TLS context: %s", e.Err.Error())
}

// Unwrap allows to use errors.Is and errors.As.
func (e *ContextInitError) Unwrap() error {
	return e.Err
}

// InteractiveSelectionRequiredError is the error returned by attempts
// using the [AliasModeInteractive] mode. It contains what a human needs
// to choose the client certificate to use for the next attempt.
type InteractiveSelectionRequiredError struct {
	// Destination is the destination of the attempt.
	Destination Destination

	// KeyTypes contains the acceptable key types ("RSA", "EC", "Ed25519").
	KeyTypes []string

	// Issuers contains the acceptable issuers as strings.
	Issuers []string

	// RawIssuers contains the DER-encoded acceptable issuers.
	RawIssuers [][]byte

	// CertificateRequested is false when the handshake completed without
	// the server asking for a client certificate.
	CertificateRequested bool
}

// Error implements error.
func (e *InteractiveSelectionRequiredError) Error() string {
	if !e.CertificateRequested {
		return fmt.Sprintf("securechannel: %s did not request a client certificate", e.Destination)
	}
	return fmt.Sprintf("securechannel: %s requested a client certificate {keyTypes=[%s] issuers=%d}",
		e.Destination, strings.Join(e.KeyTypes, ","), len(e.RawIssuers))
}

// Failure implements netxlite.Failurer.
func (e *InteractiveSelectionRequiredError) Failure() string {
	return FailureInteractiveSelectionRequired
}

var _ netxlite.Failurer = &InteractiveSelectionRequiredError{}

// ErrorKind tells the caller what to do after a failed attempt.
type ErrorKind string

const (
	// KindNone is the kind of a nil error.
	KindNone = ErrorKind("")

	// KindUnsupportedPlatform means that the attempt cannot succeed on this platform.
	KindUnsupportedPlatform = ErrorKind("unsupported_platform")

	// KindCrypto means that the runtime's cryptography is broken.
	KindCrypto = ErrorKind("crypto")

	// KindInteractiveSelection means that we should retry after a human picks an alias.
	KindInteractiveSelection = ErrorKind("interactive_selection")

	// KindTrust means that the server certificate was rejected.
	KindTrust = ErrorKind("trust")

	// KindTransport means that the network failed and the caller may retry.
	KindTransport = ErrorKind("transport")

	// KindUnknown is for all the other errors.
	KindUnknown = ErrorKind("unknown")
)

// Classify returns the [ErrorKind] of err.
func Classify(err error) ErrorKind {
	if err == nil {
		return KindNone
	}
	if errors.Is(err, ErrUnsupportedPlatform) {
		return KindUnsupportedPlatform
	}
	var (
		algorithmErr   *AlgorithmUnavailableError
		contextInitErr *ContextInitError
		selectionErr   *InteractiveSelectionRequiredError
		rejectedErr    *trust.CertificateRejectedError
		errWrapper     *netxlite.ErrWrapper
	)
	switch {
	case errors.As(err, &algorithmErr), errors.As(err, &contextInitErr):
		return KindCrypto
	case errors.As(err, &selectionErr):
		return KindInteractiveSelection
	case errors.As(err, &rejectedErr):
		return KindTrust
	case errors.As(err, &errWrapper):
		switch errWrapper.Failure {
		case netxlite.FailureSSLInvalidHostname,
			netxlite.FailureSSLUnknownAuthority,
			netxlite.FailureSSLInvalidCertificate:
			return KindTrust
		}
		return KindTransport
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindTransport
	default:
		return KindUnknown
	}
}
