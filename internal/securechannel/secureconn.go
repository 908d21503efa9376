package securechannel

import (
	"crypto/tls"
	"net"
	"sync"
)

// SecureConn is an established TLS connection to a mail endpoint.
type SecureConn struct {
	// Conn is the TLS connection.
	net.Conn

	// State is the TLS connection state after the handshake.
	State tls.ConnectionState

	// Destination is the remote endpoint.
	Destination Destination

	// Mode is the client certificate mode used by the handshake.
	Mode AliasMode

	// RequireSecure is the caller's policy flag recorded by UpgradeInPlace.
	RequireSecure bool

	// PresentedAlias is the alias of the client certificate we sent
	// to the server or an empty string if we did not send one.
	PresentedAlias string

	closeErr  error
	closeOnce sync.Once
}

func newSecureConn(conn net.Conn, state tls.ConnectionState,
	tlsCtx *TLSContext, requireSecure bool) *SecureConn {
	sconn := &SecureConn{
		Conn:          conn,
		State:         state,
		Destination:   tlsCtx.Destination,
		Mode:          tlsCtx.Mode,
		RequireSecure: requireSecure,
	}
	if tlsCtx.presented.Load() {
		sconn.PresentedAlias = tlsCtx.Mode.Alias
	}
	return sconn
}

// Close closes the TLS connection and the transport below it. Only the
// first call has an effect; later calls return the same error.
func (c *SecureConn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.Conn.Close()
	})
	return c.closeErr
}
