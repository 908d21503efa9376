package netxlite

import (
	"context"
	"net"
	"time"

	"github.com/mailtls/mailtls/internal/model"
)

// NewDialer creates a new Dialer using the standard library, which
// logs using the given logger and wraps errors into *ErrWrapper.
//
// The returned dialer guarantees:
//
// 1. logging;
//
// 2. error wrapping of DialContext as well as of Read, Write, and
// Close invoked on the returned connections.
func NewDialer(logger model.DebugLogger) model.Dialer {
	return NewDialerWithTimeout(logger, 0)
}

// NewDialerWithTimeout is like NewDialer but uses the given dial timeout. A
// zero or negative timeout means using the default timeout.
func NewDialerWithTimeout(logger model.DebugLogger, timeout time.Duration) model.Dialer {
	return &dialerLogger{
		Dialer: &dialerErrWrapper{
			Dialer: &DialerSystem{Timeout: timeout},
		},
		DebugLogger: logger,
	}
}

// DialerSystem is a model.Dialer that uses the stdlib's net.Dialer
// to construct the new connection.
type DialerSystem struct {
	// Timeout is the OPTIONAL dial timeout. If this value is zero, we
	// will use a default timeout of 15 seconds.
	Timeout time.Duration
}

var _ model.Dialer = &DialerSystem{}

const dialerDefaultTimeout = 15 * time.Second

func (d *DialerSystem) newUnderlyingDialer() *net.Dialer {
	t := d.Timeout
	if t <= 0 {
		t = dialerDefaultTimeout
	}
	return &net.Dialer{Timeout: t, KeepAlive: 15 * time.Second}
}

// DialContext implements model.Dialer.DialContext.
func (d *DialerSystem) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	return d.newUnderlyingDialer().DialContext(ctx, network, address)
}

// CloseIdleConnections implements model.Dialer.CloseIdleConnections.
func (d *DialerSystem) CloseIdleConnections() {
	// nothing to do here
}

// dialerLogger is a Dialer with logging.
type dialerLogger struct {
	// Dialer is the underlying dialer.
	Dialer model.Dialer

	// DebugLogger is the underlying logger.
	DebugLogger model.DebugLogger
}

var _ model.Dialer = &dialerLogger{}

// DialContext implements model.Dialer.DialContext.
func (d *dialerLogger) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	d.DebugLogger.Debugf("dial %s/%s...", address, network)
	start := time.Now()
	conn, err := d.Dialer.DialContext(ctx, network, address)
	elapsed := time.Since(start)
	if err != nil {
		d.DebugLogger.Debugf("dial %s/%s... %s in %s", address, network, err, elapsed)
		return nil, err
	}
	d.DebugLogger.Debugf("dial %s/%s... ok in %s", address, network, elapsed)
	return conn, nil
}

// CloseIdleConnections implements model.Dialer.CloseIdleConnections.
func (d *dialerLogger) CloseIdleConnections() {
	d.Dialer.CloseIdleConnections()
}

// dialerErrWrapper is a dialer that performs error wrapping. The connection
// returned by the DialContext function will also perform error wrapping.
type dialerErrWrapper struct {
	// Dialer is the underlying dialer.
	Dialer model.Dialer
}

var _ model.Dialer = &dialerErrWrapper{}

// DialContext implements model.Dialer.DialContext.
func (d *dialerErrWrapper) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	conn, err := d.Dialer.DialContext(ctx, network, address)
	if err != nil {
		return nil, NewErrWrapper(ClassifyGenericError, ConnectOperation, err)
	}
	return &dialerErrWrapperConn{Conn: conn}, nil
}

// CloseIdleConnections implements model.Dialer.CloseIdleConnections.
func (d *dialerErrWrapper) CloseIdleConnections() {
	d.Dialer.CloseIdleConnections()
}

// dialerErrWrapperConn is a net.Conn that performs error wrapping.
type dialerErrWrapperConn struct {
	// Conn is the underlying connection.
	net.Conn
}

var _ net.Conn = &dialerErrWrapperConn{}

// Read implements net.Conn.Read.
func (c *dialerErrWrapperConn) Read(b []byte) (int, error) {
	count, err := c.Conn.Read(b)
	if err != nil {
		return 0, NewErrWrapper(ClassifyGenericError, ReadOperation, err)
	}
	return count, nil
}

// Write implements net.Conn.Write.
func (c *dialerErrWrapperConn) Write(b []byte) (int, error) {
	count, err := c.Conn.Write(b)
	if err != nil {
		return 0, NewErrWrapper(ClassifyGenericError, WriteOperation, err)
	}
	return count, nil
}

// Close implements net.Conn.Close.
func (c *dialerErrWrapperConn) Close() error {
	err := c.Conn.Close()
	if err != nil {
		return NewErrWrapper(ClassifyGenericError, CloseOperation, err)
	}
	return nil
}
