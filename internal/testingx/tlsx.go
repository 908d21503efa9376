package testingx

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/mailtls/mailtls/internal/runtimex"
	"github.com/ooni/netem"
)

// TLSMITMProvider provides the server side of the TLS handshake using
// certificates issued on the fly for the requested SNI by a local CA.
type TLSMITMProvider interface {
	// CACert returns the CA certificate used by the server, which
	// allows you to add to an existing [*x509.CertPool].
	CACert() *x509.Certificate

	// DefaultCertPool returns the default cert pool to use.
	DefaultCertPool() (*x509.CertPool, error)

	// ServerTLSConfig returns ready to use server TLS configuration.
	ServerTLSConfig() *tls.Config
}

// MustNewTLSMITMProviderNetem uses [github.com/ooni/netem] to implement [TLSMITMProvider].
func MustNewTLSMITMProviderNetem() TLSMITMProvider {
	return &netemTLSMITMProvider{runtimex.Try1(netem.NewTLSMITMConfig())}
}

type netemTLSMITMProvider struct {
	cfg *netem.TLSMITMConfig
}

// CACert implements TLSMITMProvider.
func (p *netemTLSMITMProvider) CACert() *x509.Certificate {
	return p.cfg.Cert
}

// DefaultCertPool implements TLSMITMProvider.
func (p *netemTLSMITMProvider) DefaultCertPool() (*x509.CertPool, error) {
	return p.cfg.CertPool()
}

// ServerTLSConfig implements TLSMITMProvider.
func (p *netemTLSMITMProvider) ServerTLSConfig() *tls.Config {
	return p.cfg.TLSConfig()
}

// TLSHandler handles TLS connections. A handler should first handle the TLS handshake
// in the GetCertificate method. If GetCertificate did not return an error, and the
// handler implements [TLSConnHandler], its HandleTLSConn method will be called after
// the handshake to handle the lifecycle of the TLS conn itself.
type TLSHandler interface {
	// GetCertificate handles the TLS handshake.
	GetCertificate(ctx context.Context, tcpConn net.Conn, chi *tls.ClientHelloInfo) (*tls.Certificate, error)
}

// TLSConn is the interface assumed by an established TLS conn.
type TLSConn interface {
	ConnectionState() tls.ConnectionState
	net.Conn
}

// TLSConnHandler is the interface implemented by handlers that want to handle
// and manage the established TLS connection after the handshake.
type TLSConnHandler interface {
	HandleTLSConn(conn TLSConn)
}

// TLSClientAuthHandler is the interface implemented by handlers that
// send a CertificateRequest to the client during the handshake.
type TLSClientAuthHandler interface {
	// ClientAuth returns the client auth policy and the pool whose
	// subjects are advertised to the client as acceptable issuers.
	ClientAuth() (tls.ClientAuthType, *x509.CertPool)
}

// TLSServer is a TLS server useful to implement test servers.
type TLSServer struct {
	// cancel unblocks background goroutines blocked on the context contolling their lifecycle.
	cancel context.CancelFunc

	// closeOnce provides "once" semantics when closing.
	closeOnce sync.Once

	// endpoint is the endpoint where we're listening.
	endpoint string

	// handler contains the TLSHandler.
	handler TLSHandler

	// listener is the listening socket controller.
	listener net.Listener

	// wg waits until the listening loop has finished running.
	wg sync.WaitGroup
}

// MustNewTLSServer is a simplified [MustNewTLSServerEx] that uses the stdlib and localhost.
func MustNewTLSServer(handler TLSHandler) *TLSServer {
	return MustNewTLSServerEx(localhostAddr(), &TCPListenerStdlib{}, handler)
}

// MustNewTLSServerEx creates and starts a new TLSServer that executes
// the given action during the TLS handshake.
func MustNewTLSServerEx(addr *net.TCPAddr, tcpListener TCPListener, handler TLSHandler) *TLSServer {
	listener := runtimex.Try1(tcpListener.ListenTCP("tcp", addr))
	ctx, cancel := context.WithCancel(context.Background())
	srv := &TLSServer{
		cancel:    cancel,
		closeOnce: sync.Once{},
		endpoint:  listener.Addr().String(),
		handler:   handler,
		listener:  listener,
		wg:        sync.WaitGroup{},
	}
	srv.wg.Add(1)
	go acceptLoop(ctx, &srv.wg, listener, func(ctx context.Context, conn net.Conn) {
		defer conn.Close()
		serveTLS(ctx, conn, srv.handler)
	})
	return srv
}

// Endpoint returns the endpoint where the server is listening.
func (p *TLSServer) Endpoint() string {
	return p.endpoint
}

// Close closes this server as soon as possible.
func (p *TLSServer) Close() (err error) {
	p.closeOnce.Do(func() {
		err = p.listener.Close()
		p.cancel()
		p.wg.Wait()
	})
	return
}

// acceptLoop accepts connections until the listener is closed and runs
// each of them on a background goroutine, which is overkill in general
// but reasonable for a server designed for testing.
func acceptLoop(ctx context.Context, wg *sync.WaitGroup, listener net.Listener,
	handle func(ctx context.Context, conn net.Conn)) {
	defer wg.Done()
	for {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		go handle(ctx, conn)
	}
}

// serveTLS performs the server side of the handshake over tcpConn and
// lets the handler manage the established conn. The caller owns tcpConn.
func serveTLS(ctx context.Context, tcpConn net.Conn, handler TLSHandler) {
	tlsConfig := &tls.Config{
		GetCertificate: func(chi *tls.ClientHelloInfo) (*tls.Certificate, error) {
			return handler.GetCertificate(ctx, tcpConn, chi)
		},
	}
	if h, good := handler.(TLSClientAuthHandler); good {
		tlsConfig.ClientAuth, tlsConfig.ClientCAs = h.ClientAuth()
	}
	tlsConn := tls.Server(tcpConn, tlsConfig)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		return
	}
	defer tlsConn.Close()
	if h, good := handler.(TLSConnHandler); good {
		h.HandleTLSConn(tlsConn)
	}
}

const (
	// TLSAlertInternalError is the alter sent on internal errors
	TLSAlertInternalError = byte(80)

	// TLSAlertUnrecognizedName is the alert sent when the name is not recognized
	TLSAlertUnrecognizedName = byte(112)
)

// TLSHandlerSendAlert sends the alert given as argument to the client.
func TLSHandlerSendAlert(alert byte) TLSHandler {
	return &tlsHandlerSendAlert{alert}
}

type tlsHandlerSendAlert struct {
	alert byte
}

// GetCertificate implements TLSHandler.
func (thx *tlsHandlerSendAlert) GetCertificate(
	ctx context.Context, tcpConn net.Conn, chi *tls.ClientHelloInfo) (*tls.Certificate, error) {
	alertdata := []byte{
		21, // alert
		3,  // version[0]
		3,  // version[1]
		0,  // length[0]
		2,  // length[1]
		2,  // fatal
		thx.alert,
	}
	_, _ = tcpConn.Write(alertdata)
	_ = tcpConn.Close() // close connection to avoid the caller trying to send another alert
	return nil, errors.New("internal error")
}

// TLSHandlerEOF closes the connection during the handshake.
func TLSHandlerEOF() TLSHandler {
	return &tlsHandlerEOF{}
}

type tlsHandlerEOF struct{}

// GetCertificate implements TLSHandler.
func (*tlsHandlerEOF) GetCertificate(ctx context.Context, tcpConn net.Conn, chi *tls.ClientHelloInfo) (*tls.Certificate, error) {
	tcpConn.Close() // close the TCP connection to force EOF during the handshake
	return nil, errors.New("internal error")
}

// TLSHandlerHandshakeAndWriteText returns a [TLSHandler] that attempts to
// complete the handshake and returns the given text to the caller.
func TLSHandlerHandshakeAndWriteText(mitm TLSMITMProvider, text []byte) TLSHandler {
	return &tlsHandlerHandshakeAndWriteText{mitm, text}
}

var _ TLSConnHandler = &tlsHandlerHandshakeAndWriteText{}

type tlsHandlerHandshakeAndWriteText struct {
	mitm TLSMITMProvider
	text []byte
}

// GetCertificate implements TLSHandler.
func (thx *tlsHandlerHandshakeAndWriteText) GetCertificate(ctx context.Context, tcpConn net.Conn, chi *tls.ClientHelloInfo) (*tls.Certificate, error) {
	return thx.mitm.ServerTLSConfig().GetCertificate(chi)
}

// HandleTLSConn implements TLSHandler.
func (thx *tlsHandlerHandshakeAndWriteText) HandleTLSConn(conn TLSConn) {
	_, _ = conn.Write(thx.text)
}

// TLSHandlerRequestClientCert returns a [TLSHandler] that completes the
// handshake asking the client for a certificate issued by one of the CAs
// in clientCAs. After the handshake it writes a line greeting the common
// name of the client certificate, or "anonymous" when the client did not
// send one. The client certificate is not verified.
func TLSHandlerRequestClientCert(mitm TLSMITMProvider, clientCAs *x509.CertPool) TLSHandler {
	return &tlsHandlerRequestClientCert{mitm, clientCAs}
}

var (
	_ TLSConnHandler       = &tlsHandlerRequestClientCert{}
	_ TLSClientAuthHandler = &tlsHandlerRequestClientCert{}
)

type tlsHandlerRequestClientCert struct {
	mitm      TLSMITMProvider
	clientCAs *x509.CertPool
}

// GetCertificate implements TLSHandler.
func (thx *tlsHandlerRequestClientCert) GetCertificate(ctx context.Context, tcpConn net.Conn, chi *tls.ClientHelloInfo) (*tls.Certificate, error) {
	return thx.mitm.ServerTLSConfig().GetCertificate(chi)
}

// ClientAuth implements TLSClientAuthHandler.
func (thx *tlsHandlerRequestClientCert) ClientAuth() (tls.ClientAuthType, *x509.CertPool) {
	return tls.RequestClientCert, thx.clientCAs
}

// HandleTLSConn implements TLSConnHandler.
func (thx *tlsHandlerRequestClientCert) HandleTLSConn(conn TLSConn) {
	_, _ = conn.Write([]byte(ClientCertGreeting(conn.ConnectionState())))
}

// ClientCertGreeting returns the line written by [TLSHandlerRequestClientCert].
func ClientCertGreeting(state tls.ConnectionState) string {
	name := "anonymous"
	if len(state.PeerCertificates) > 0 {
		name = state.PeerCertificates[0].Subject.CommonName
	}
	return fmt.Sprintf("hello, %s\n", name)
}
