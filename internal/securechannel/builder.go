package securechannel

import (
	"context"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"io"
	"net"
	"sync/atomic"
	"time"

	"github.com/mailtls/mailtls/internal/model"
	"github.com/mailtls/mailtls/internal/netxlite"
	"github.com/mailtls/mailtls/internal/platform"
)

// ErrNoCredentialStore indicates that an explicit alias was requested
// but the [*Builder] has no credential store.
var ErrNoCredentialStore = errors.New("securechannel: no credential store")

// ErrNoTrustProvider indicates that the [*Builder] has no trust provider.
var ErrNoTrustProvider = errors.New("securechannel: no trust evaluator provider")

// TLSContext is the handshake configuration of a single attempt.
type TLSContext struct {
	// Config is the TLS config, which binds the certificate-supply
	// strategy and the trust evaluator of the destination.
	Config *tls.Config

	// Destination is the destination of the attempt.
	Destination Destination

	// Mode is the client certificate mode of the attempt.
	Mode AliasMode

	// presented is set when the handshake sends a client certificate.
	presented atomic.Bool
}

// Builder builds TLS contexts and secure connections. The zero value is
// invalid; construct using [NewBuilder] or fill at least TrustProvider.
type Builder struct {
	// ClientCertificateSupport is the OPTIONAL platform capability
	// gate. When nil, we use [platform.ClientCertificateSupportAvailable].
	ClientCertificateSupport func() bool

	// CredentialStore holds the client identities. It's required when
	// using the [AliasModeExplicit] mode.
	CredentialStore model.CredentialStore

	// Dialer is the OPTIONAL dialer. When nil, we use [netxlite.NewDialer].
	Dialer model.Dialer

	// Handshaker is the OPTIONAL TLS handshaker. When nil, we
	// use [netxlite.NewTLSHandshakerStdlib].
	Handshaker model.TLSHandshaker

	// Logger is the OPTIONAL logger. When nil, we use [model.DiscardLogger].
	Logger model.Logger

	// MinTLSVersion is the OPTIONAL minimum TLS version. It is one of
	// the strings accepted by [netxlite.ConfigureTLSVersion]. When
	// empty, the minimum version is TLSv1.2.
	MinTLSVersion string

	// Rand is the OPTIONAL randomness source. When nil, we use crypto/rand.
	Rand io.Reader

	// TrustProvider provides destination-scoped trust evaluators.
	TrustProvider model.TrustEvaluatorProvider
}

// portableCredentialStore is implemented by credential stores that do not
// depend on a platform API.
type portableCredentialStore interface {
	Portable() bool
}

// clientCertificateSupportFor returns the capability gate for store. A
// portable store supplies client certificates on every platform; any
// other store depends on [platform.ClientCertificateSupportAvailable].
func clientCertificateSupportFor(store model.CredentialStore) func() bool {
	if ps, good := store.(portableCredentialStore); good && ps.Portable() {
		return func() bool { return true }
	}
	return platform.ClientCertificateSupportAvailable
}

// NewBuilder creates a new [*Builder] using the default dialer, handshaker
// and the capability gate matching store.
func NewBuilder(store model.CredentialStore, provider model.TrustEvaluatorProvider, logger model.Logger) *Builder {
	logger = model.ValidLoggerOrDefault(logger)
	return &Builder{
		ClientCertificateSupport: clientCertificateSupportFor(store),
		CredentialStore:          store,
		Dialer:                   netxlite.NewDialer(logger),
		Handshaker:               netxlite.NewTLSHandshakerStdlib(logger),
		Logger:                   logger,
		Rand:                     rand.Reader,
		TrustProvider:            provider,
	}
}

func (b *Builder) clientCertificateSupport() bool {
	if b.ClientCertificateSupport != nil {
		return b.ClientCertificateSupport()
	}
	return platform.ClientCertificateSupportAvailable()
}

func (b *Builder) logger() model.Logger {
	return model.ValidLoggerOrDefault(b.Logger)
}

func (b *Builder) dialer() model.Dialer {
	if b.Dialer != nil {
		return b.Dialer
	}
	return netxlite.NewDialer(b.logger())
}

func (b *Builder) handshaker() model.TLSHandshaker {
	if b.Handshaker != nil {
		return b.Handshaker
	}
	return netxlite.NewTLSHandshakerStdlib(b.logger())
}

func (b *Builder) rand() io.Reader {
	if b.Rand != nil {
		return b.Rand
	}
	return rand.Reader
}

// BuildContext builds the [*TLSContext] for an attempt to reach dest. The
// mode is interactive when ctx carries the interactive selection signal,
// explicit when alias is not empty, and none otherwise. This function
// does not perform any network I/O.
func (b *Builder) BuildContext(ctx context.Context, dest Destination, alias string) (*TLSContext, error) {
	mode := SelectAliasMode(InteractiveSelectionRequired(ctx), alias)
	return b.BuildContextWithMode(ctx, dest, mode)
}

// BuildContextWithMode is like [*Builder.BuildContext] with an explicit mode.
func (b *Builder) BuildContextWithMode(ctx context.Context, dest Destination, mode AliasMode) (*TLSContext, error) {
	if mode.Kind != AliasModeNone && !b.clientCertificateSupport() {
		return nil, ErrUnsupportedPlatform
	}
	if mode.Kind == AliasModeExplicit && b.CredentialStore == nil {
		return nil, &ContextInitError{ErrNoCredentialStore}
	}

	random := b.rand()
	if _, err := io.ReadFull(random, make([]byte, 32)); err != nil {
		return nil, &AlgorithmUnavailableError{err}
	}

	if b.TrustProvider == nil {
		return nil, &ContextInitError{ErrNoTrustProvider}
	}
	evaluator, err := b.TrustProvider.TrustEvaluator(dest.Host, dest.Port)
	if err != nil {
		return nil, &ContextInitError{err}
	}

	logger := b.logger()
	tlsCtx := &TLSContext{Destination: dest, Mode: mode}
	supply := newClientCertificateFunc(mode, dest, b.CredentialStore, logger)
	tlsCtx.Config = &tls.Config{
		GetClientCertificate: func(cri *tls.CertificateRequestInfo) (*tls.Certificate, error) {
			cert, err := supply(cri)
			if err == nil && len(cert.Certificate) > 0 {
				tlsCtx.presented.Store(true)
			}
			return cert, err
		},
		// We verify the chain using the evaluator of the destination
		// inside VerifyPeerCertificate.
		InsecureSkipVerify: true,
		MinVersion:         tls.VersionTLS12,
		Rand:               random,
		ServerName:         dest.Host,
		VerifyPeerCertificate: func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
			return evaluator.EvaluateServerChain(rawCerts)
		},
	}
	if err := netxlite.ConfigureTLSVersion(tlsCtx.Config, b.MinTLSVersion); err != nil {
		return nil, &ContextInitError{err}
	}
	logger.Debugf("securechannel: context for %s {mode=%s}", dest, mode)
	return tlsCtx, nil
}

// OpenDirect connects to dest and performs the TLS handshake. The alias
// semantics are the ones of [*Builder.BuildContext]. An attempt in the
// interactive mode always fails with [*InteractiveSelectionRequiredError].
func (b *Builder) OpenDirect(ctx context.Context, dest Destination, alias string) (*SecureConn, error) {
	mode := SelectAliasMode(InteractiveSelectionRequired(ctx), alias)
	return b.OpenDirectWithMode(ctx, dest, mode)
}

// OpenDirectWithMode is like [*Builder.OpenDirect] with an explicit mode.
func (b *Builder) OpenDirectWithMode(ctx context.Context, dest Destination, mode AliasMode) (*SecureConn, error) {
	sconn, err := b.openDirect(ctx, dest, mode)
	observeAttempt("open_direct", mode, err)
	return sconn, err
}

func (b *Builder) openDirect(ctx context.Context, dest Destination, mode AliasMode) (*SecureConn, error) {
	tlsCtx, err := b.BuildContextWithMode(ctx, dest, mode)
	if err != nil {
		return nil, err
	}
	conn, err := b.dialer().DialContext(ctx, "tcp", dest.Endpoint())
	if err != nil {
		return nil, err
	}
	tlsConn, state, err := b.handshake(ctx, tlsCtx, conn)
	if err != nil {
		if tlsConn != nil {
			tlsConn.Close()
		} else {
			conn.Close()
		}
		return nil, err
	}
	return newSecureConn(tlsConn, state, tlsCtx, false), nil
}

// Dial opens a plaintext TCP connection with dest using the builder's
// dialer. Use it to run a STARTTLS preamble before [*Builder.UpgradeInPlace].
func (b *Builder) Dial(ctx context.Context, dest Destination) (net.Conn, error) {
	return b.dialer().DialContext(ctx, "tcp", dest.Endpoint())
}

// UpgradeInPlace performs the TLS handshake over conn, which is usually
// a plaintext connection after a successful STARTTLS command. On success
// the returned [*SecureConn] owns conn. On failure the caller still owns
// conn and is responsible for closing it. The requireSecure flag is the
// caller's policy and is recorded into the [*SecureConn].
func (b *Builder) UpgradeInPlace(ctx context.Context, conn net.Conn,
	dest Destination, requireSecure bool, alias string) (*SecureConn, error) {
	mode := SelectAliasMode(InteractiveSelectionRequired(ctx), alias)
	return b.UpgradeInPlaceWithMode(ctx, conn, dest, requireSecure, mode)
}

// UpgradeInPlaceWithMode is like [*Builder.UpgradeInPlace] with an explicit mode.
func (b *Builder) UpgradeInPlaceWithMode(ctx context.Context, conn net.Conn,
	dest Destination, requireSecure bool, mode AliasMode) (*SecureConn, error) {
	sconn, err := b.upgradeInPlace(ctx, conn, dest, requireSecure, mode)
	observeAttempt("upgrade_in_place", mode, err)
	return sconn, err
}

func (b *Builder) upgradeInPlace(ctx context.Context, conn net.Conn,
	dest Destination, requireSecure bool, mode AliasMode) (*SecureConn, error) {
	tlsCtx, err := b.BuildContextWithMode(ctx, dest, mode)
	if err != nil {
		return nil, err
	}
	tlsConn, state, err := b.handshake(ctx, tlsCtx, conn)
	if err != nil {
		return nil, err
	}
	return newSecureConn(tlsConn, state, tlsCtx, requireSecure), nil
}

// handshake performs the handshake using tlsCtx. When the handshake in the
// interactive mode completes because the server did not request a client
// certificate, it returns the established conn along with the error.
func (b *Builder) handshake(ctx context.Context, tlsCtx *TLSContext, conn net.Conn) (net.Conn, tls.ConnectionState, error) {
	start := time.Now()
	tlsConn, state, err := b.handshaker().Handshake(ctx, conn, tlsCtx.Config)
	metricHandshakeDurationSeconds.Observe(time.Since(start).Seconds())
	if err != nil {
		var selectionErr *InteractiveSelectionRequiredError
		if errors.As(err, &selectionErr) {
			return nil, tls.ConnectionState{}, selectionErr
		}
		return nil, tls.ConnectionState{}, err
	}
	if tlsCtx.Mode.Kind == AliasModeInteractive {
		selectionErr := &InteractiveSelectionRequiredError{
			Destination:          tlsCtx.Destination,
			KeyTypes:             []string{},
			Issuers:              []string{},
			RawIssuers:           [][]byte{},
			CertificateRequested: false,
		}
		b.logger().Infof("securechannel: %s", selectionErr.Error())
		return tlsConn, tls.ConnectionState{}, selectionErr
	}
	return tlsConn, state, nil
}
