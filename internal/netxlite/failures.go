package netxlite

// Failure strings returned by (*ErrWrapper).Error.
const (
	FailureConnectionAlreadyClosed  = "connection_already_closed"
	FailureConnectionRefused        = "connection_refused"
	FailureConnectionReset          = "connection_reset"
	FailureDNSNXDOMAINError         = "dns_nxdomain_error"
	FailureEOFError                 = "eof_error"
	FailureGenericTimeoutError      = "generic_timeout_error"
	FailureHostUnreachable          = "host_unreachable"
	FailureInterrupted              = "interrupted"
	FailureNetworkUnreachable       = "network_unreachable"
	FailureSSLFailedHandshake       = "ssl_failed_handshake"
	FailureSSLInvalidCertificate    = "ssl_invalid_certificate"
	FailureSSLInvalidHostname       = "ssl_invalid_hostname"
	FailureSSLUnknownAuthority      = "ssl_unknown_authority"
	FailureSSLTLSAlertFromPeer      = "ssl_tls_alert_from_peer"
	FailureUnknownFailurePrefix     = "unknown_failure: "
)

// Operations that may fail.
const (
	// ConnectOperation is the operation where we connect to a remote endpoint.
	ConnectOperation = "connect"

	// TLSHandshakeOperation is the TLS handshake.
	TLSHandshakeOperation = "tls_handshake"

	// ReadOperation is when we read from a socket.
	ReadOperation = "read"

	// WriteOperation is when we write to a socket.
	WriteOperation = "write"

	// CloseOperation is when we close a socket.
	CloseOperation = "close"

	// TopLevelOperation is used when we don't know the operation.
	TopLevelOperation = "top_level"
)
