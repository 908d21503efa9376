package testingx

import "net"

// TCPListener creates TCP listeners for the servers in this package.
type TCPListener interface {
	ListenTCP(network string, addr *net.TCPAddr) (net.Listener, error)
}

// TCPListenerStdlib implements [TCPListener] for the stdlib.
type TCPListenerStdlib struct{}

var _ TCPListener = &TCPListenerStdlib{}

// ListenTCP implements TCPListener.
func (*TCPListenerStdlib) ListenTCP(network string, addr *net.TCPAddr) (net.Listener, error) {
	return net.ListenTCP(network, addr)
}

// localhostAddr is the address where our servers listen by default.
func localhostAddr() *net.TCPAddr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1)}
}
