package netxlite

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"syscall"
)

// ClassifyGenericError maps an error occurred during an operation
// to a failure string. This specific classifier is the most
// generic one. You usually use it when mapping I/O errors. You should
// check whether there is a specific classifier for more specific
// operations (e.g., the TLS handshake).
//
// If the input error is an *ErrWrapper we don't perform
// the classification again and we return its Failure.
//
// If everything else fails, this classifier returns a string
// like "unknown_failure: XXX".
func ClassifyGenericError(err error) string {
	var errwrapper *ErrWrapper
	if errors.As(err, &errwrapper) {
		return errwrapper.Error() // we've already wrapped it
	}

	var failurer Failurer
	if errors.As(err, &failurer) {
		return failurer.Failure()
	}

	if failure := classifySyscallError(err); failure != "" {
		return failure
	}

	if errors.Is(err, context.Canceled) {
		return FailureInterrupted
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return FailureGenericTimeoutError
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return FailureEOFError
	}
	if errors.Is(err, net.ErrClosed) {
		return FailureConnectionAlreadyClosed
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return FailureGenericTimeoutError
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
		return FailureDNSNXDOMAINError
	}

	if failure := classifyWithStringSuffix(err); failure != "" {
		return failure
	}

	return fmt.Sprintf("%s%s", FailureUnknownFailurePrefix, err.Error())
}

// classifySyscallError maps the errno values we care about.
//
// QUIRK: on Windows the stdlib returns WSA error codes that are
// not equal to the syscall.Errno values below, so we fall back to
// classifyWithStringSuffix for those.
func classifySyscallError(err error) string {
	var errno syscall.Errno
	if !errors.As(err, &errno) {
		return ""
	}
	switch errno {
	case syscall.ECONNREFUSED:
		return FailureConnectionRefused
	case syscall.ECONNRESET:
		return FailureConnectionReset
	case syscall.EHOSTUNREACH:
		return FailureHostUnreachable
	case syscall.ENETUNREACH:
		return FailureNetworkUnreachable
	case syscall.ETIMEDOUT:
		return FailureGenericTimeoutError
	}
	return ""
}

// classifyWithStringSuffix is a subset of ClassifyGenericError that
// performs classification by looking at error suffixes. This function
// will return an empty string if it cannot classify the error.
func classifyWithStringSuffix(err error) string {
	s := err.Error()
	switch {
	case strings.HasSuffix(s, "operation was canceled"):
		return FailureInterrupted
	case strings.HasSuffix(s, "EOF"):
		return FailureEOFError
	case strings.HasSuffix(s, "i/o timeout"):
		return FailureGenericTimeoutError
	case strings.HasSuffix(s, "TLS handshake timeout"):
		return FailureGenericTimeoutError
	case strings.HasSuffix(s, "connection refused"):
		return FailureConnectionRefused
	case strings.HasSuffix(s, "connection reset by peer"):
		return FailureConnectionReset
	case strings.HasSuffix(s, "use of closed network connection"):
		return FailureConnectionAlreadyClosed
	}
	return ""
}

// ClassifyTLSHandshakeError maps an error occurred during the TLS
// handshake to a failure string. If this classifier fails, it calls
// ClassifyGenericError and returns to the caller its return value.
func ClassifyTLSHandshakeError(err error) string {
	var errwrapper *ErrWrapper
	if errors.As(err, &errwrapper) {
		return errwrapper.Error() // we've already wrapped it
	}

	var failurer Failurer
	if errors.As(err, &failurer) {
		return failurer.Failure()
	}

	var x509HostnameError x509.HostnameError
	if errors.As(err, &x509HostnameError) {
		return FailureSSLInvalidHostname
	}
	var x509UnknownAuthorityError x509.UnknownAuthorityError
	if errors.As(err, &x509UnknownAuthorityError) {
		return FailureSSLUnknownAuthority
	}
	var x509CertificateInvalidError x509.CertificateInvalidError
	if errors.As(err, &x509CertificateInvalidError) {
		return FailureSSLInvalidCertificate
	}
	var alertErr tls.AlertError
	if errors.As(err, &alertErr) {
		return FailureSSLTLSAlertFromPeer
	}
	if strings.HasPrefix(err.Error(), "remote error: tls: ") {
		return FailureSSLTLSAlertFromPeer
	}
	if strings.HasPrefix(err.Error(), "tls: ") {
		return FailureSSLFailedHandshake
	}
	return ClassifyGenericError(err)
}
