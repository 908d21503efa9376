package testingx

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/mailtls/mailtls/internal/model"
	"github.com/mailtls/mailtls/internal/runtimex"
)

// CloseVerify verifies that we're closing all connections exactly once.
//
// The zero value of this struct is ready to use.
type CloseVerify struct {
	mu     sync.Mutex
	conns  map[string]*closeVerifyConn
	closes map[string]int
}

func (cv *CloseVerify) addConn(key string, conn *closeVerifyConn) {
	defer cv.mu.Unlock()
	cv.mu.Lock()
	if cv.conns == nil {
		cv.conns = make(map[string]*closeVerifyConn)
		cv.closes = make(map[string]int)
	}
	_, good := cv.conns[key]
	runtimex.Assert(!good, fmt.Sprintf("we're already tracking: %s", key))
	cv.conns[key] = conn
	cv.closes[key] = 0
}

// recordClose returns true when this is the first Close for key.
func (cv *CloseVerify) recordClose(key string) bool {
	defer cv.mu.Unlock()
	cv.mu.Lock()
	count, good := cv.closes[key]
	runtimex.Assert(good, fmt.Sprintf("we're not tracking: %s", key))
	cv.closes[key] = count + 1
	return count == 0
}

// CheckForOpenConns returns an error if we still have some open connections.
func (cv *CloseVerify) CheckForOpenConns() error {
	defer cv.mu.Unlock()
	cv.mu.Lock()
	var errorv []error
	for key, count := range cv.closes {
		if count <= 0 {
			errorv = append(errorv, fmt.Errorf("%s has not been closed", key))
		}
	}
	return errors.Join(errorv...) // returns nil if empty
}

// CheckForMultipleCloses returns an error if we closed a connection more than once.
func (cv *CloseVerify) CheckForMultipleCloses() error {
	defer cv.mu.Unlock()
	cv.mu.Lock()
	var errorv []error
	for key, count := range cv.closes {
		if count > 1 {
			errorv = append(errorv, fmt.Errorf("%s has been closed %d times", key, count))
		}
	}
	return errors.Join(errorv...) // returns nil if empty
}

// CloseCount returns the number of Close calls across all tracked connections.
func (cv *CloseVerify) CloseCount() (total int) {
	defer cv.mu.Unlock()
	cv.mu.Lock()
	for _, count := range cv.closes {
		total += count
	}
	return
}

// WrapConn returns a [net.Conn] that communicates close events to the
// [*CloseVerify] struct. Only the first Close reaches the wrapped conn.
func (cv *CloseVerify) WrapConn(conn net.Conn) net.Conn {
	localAddr := conn.LocalAddr()
	key := fmt.Sprintf("%s/%s", localAddr.String(), localAddr.Network())
	wrapper := &closeVerifyConn{Conn: conn, cv: cv, key: key}
	cv.addConn(key, wrapper)
	return wrapper
}

// WrapDialer returns a [model.Dialer] whose connections are wrapped using [WrapConn].
func (cv *CloseVerify) WrapDialer(dialer model.Dialer) model.Dialer {
	return &closeVerifyDialer{Dialer: dialer, cv: cv}
}

type closeVerifyDialer struct {
	model.Dialer
	cv *CloseVerify
}

// DialContext implements model.Dialer.
func (d *closeVerifyDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	conn, err := d.Dialer.DialContext(ctx, network, address)
	if err != nil {
		return nil, err
	}
	return d.cv.WrapConn(conn), nil
}

type closeVerifyConn struct {
	net.Conn
	cv  *CloseVerify
	key string
}

// Close implements net.Conn.
func (c *closeVerifyConn) Close() error {
	if !c.cv.recordClose(c.key) {
		return net.ErrClosed
	}
	return c.Conn.Close()
}
