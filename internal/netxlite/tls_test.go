package netxlite

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/apex/log"
	"github.com/mailtls/mailtls/internal/mocks"
	"github.com/mailtls/mailtls/internal/model"
)

func TestVersionString(t *testing.T) {
	if TLSVersionString(tls.VersionTLS13) != "TLSv1.3" {
		t.Fatal("not working for existing version")
	}
	if TLSVersionString(1) != "TLS_VERSION_UNKNOWN_1" {
		t.Fatal("not working for nonexisting version")
	}
	if TLSVersionString(0) != "" {
		t.Fatal("not working for zero version")
	}
}

func TestCipherSuite(t *testing.T) {
	if TLSCipherSuiteString(tls.TLS_AES_128_GCM_SHA256) != "TLS_AES_128_GCM_SHA256" {
		t.Fatal("not working for existing cipher suite")
	}
	if TLSCipherSuiteString(tls.TLS_RSA_WITH_RC4_128_SHA) != "TLS_RSA_WITH_RC4_128_SHA" {
		t.Fatal("not working for insecure cipher suite")
	}
	if TLSCipherSuiteString(1) != "TLS_CIPHER_SUITE_UNKNOWN_1" {
		t.Fatal("not working for nonexisting cipher suite")
	}
	if TLSCipherSuiteString(0) != "" {
		t.Fatal("not working for zero cipher suite")
	}
}

func TestConfigureTLSVersion(t *testing.T) {
	tests := []struct {
		name       string
		version    string
		wantErr    error
		versionMin int
	}{{
		name:       "with TLSv1.3",
		version:    "TLSv1.3",
		wantErr:    nil,
		versionMin: tls.VersionTLS13,
	}, {
		name:       "with TLSv1.2",
		version:    "TLSv1.2",
		wantErr:    nil,
		versionMin: tls.VersionTLS12,
	}, {
		name:       "with default",
		version:    "",
		wantErr:    nil,
		versionMin: 0,
	}, {
		name:       "with TLSv1.0",
		version:    "TLSv1.0",
		wantErr:    ErrInvalidTLSVersion,
		versionMin: 0,
	}}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conf := new(tls.Config)
			err := ConfigureTLSVersion(conf, tt.version)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("not the error we expected: %+v", err)
			}
			if conf.MinVersion != uint16(tt.versionMin) {
				t.Fatalf("not the min version we expected: %+v", conf.MinVersion)
			}
		})
	}
}

func TestNewTLSHandshakerStdlib(t *testing.T) {
	th := NewTLSHandshakerStdlibWithTimeout(log.Log, 3*time.Second)
	logger := th.(*tlsHandshakerLogger)
	if logger.DebugLogger != log.Log {
		t.Fatal("invalid logger")
	}
	errWrapper := logger.TLSHandshaker.(*tlsHandshakerErrWrapper)
	configurable := errWrapper.TLSHandshaker.(*tlsHandshakerConfigurable)
	if configurable.NewConn != nil {
		t.Fatal("expected nil NewConn")
	}
	if configurable.Timeout != 3*time.Second {
		t.Fatal("unexpected timeout")
	}
}

func TestTLSHandshakerConfigurable(t *testing.T) {
	t.Run("with error", func(t *testing.T) {
		var times []time.Time
		h := &tlsHandshakerConfigurable{}
		tcpConn := &mocks.Conn{
			MockWrite: func(b []byte) (int, error) {
				return 0, io.EOF
			},
			MockSetDeadline: func(t time.Time) error {
				times = append(times, t)
				return nil
			},
		}
		ctx := context.Background()
		conn, _, err := h.Handshake(ctx, tcpConn, &tls.Config{
			ServerName: "x.org",
		})
		if !errors.Is(err, io.EOF) {
			t.Fatal("not the error that we expected", err)
		}
		if conn != nil {
			t.Fatal("expected nil con here")
		}
		if len(times) != 2 {
			t.Fatal("expected two time entries")
		}
		if !times[0].After(time.Now()) {
			t.Fatal("timeout not in the future")
		}
		if !times[1].IsZero() {
			t.Fatal("did not clear timeout on exit")
		}
	})

	t.Run("with success", func(t *testing.T) {
		handler := http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			rw.WriteHeader(200)
		})
		srvr := httptest.NewTLSServer(handler)
		defer srvr.Close()
		URL, err := url.Parse(srvr.URL)
		if err != nil {
			t.Fatal(err)
		}
		conn, err := net.Dial("tcp", URL.Host)
		if err != nil {
			t.Fatal(err)
		}
		defer conn.Close()
		handshaker := &tlsHandshakerConfigurable{}
		ctx := context.Background()
		config := &tls.Config{
			InsecureSkipVerify: true,
			MinVersion:         tls.VersionTLS13,
			MaxVersion:         tls.VersionTLS13,
			ServerName:         URL.Hostname(),
		}
		tlsConn, connState, err := handshaker.Handshake(ctx, conn, config)
		if err != nil {
			t.Fatal(err)
		}
		defer tlsConn.Close()
		if connState.Version != tls.VersionTLS13 {
			t.Fatal("unexpected TLS version")
		}
	})

	t.Run("uses the custom NewConn", func(t *testing.T) {
		expected := errors.New("mocked error")
		h := &tlsHandshakerConfigurable{
			NewConn: func(conn net.Conn, config *tls.Config) model.TLSConn {
				return &mocks.TLSConn{
					MockHandshakeContext: func(ctx context.Context) error {
						return expected
					},
				}
			},
		}
		tcpConn := &mocks.Conn{
			MockSetDeadline: func(t time.Time) error {
				return nil
			},
		}
		conn, _, err := h.Handshake(context.Background(), tcpConn, &tls.Config{})
		if !errors.Is(err, expected) {
			t.Fatal("not the error we expected", err)
		}
		if conn != nil {
			t.Fatal("expected nil conn")
		}
	})
}

func TestTLSHandshakerLogger(t *testing.T) {
	t.Run("on success", func(t *testing.T) {
		var count int
		th := &tlsHandshakerLogger{
			TLSHandshaker: &mocks.TLSHandshaker{
				MockHandshake: func(ctx context.Context, conn net.Conn, config *tls.Config) (net.Conn, tls.ConnectionState, error) {
					return &mocks.TLSConn{}, tls.ConnectionState{Version: tls.VersionTLS13}, nil
				},
			},
			DebugLogger: &mocks.Logger{
				MockDebugf: func(format string, v ...interface{}) {
					count++
				},
			},
		}
		conn, state, err := th.Handshake(context.Background(), &mocks.Conn{}, &tls.Config{})
		if err != nil {
			t.Fatal(err)
		}
		if conn == nil || state.Version != tls.VersionTLS13 {
			t.Fatal("unexpected result")
		}
		if count != 2 {
			t.Fatal("not logging as expected", count)
		}
	})

	t.Run("reports the server certificate", func(t *testing.T) {
		var lines []string
		peer := &x509.Certificate{Subject: pkix.Name{CommonName: "imap.example.com"}}
		th := &tlsHandshakerLogger{
			TLSHandshaker: &mocks.TLSHandshaker{
				MockHandshake: func(ctx context.Context, conn net.Conn, config *tls.Config) (net.Conn, tls.ConnectionState, error) {
					state := tls.ConnectionState{
						Version:          tls.VersionTLS12,
						CipherSuite:      tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
						PeerCertificates: []*x509.Certificate{peer},
					}
					return &mocks.TLSConn{}, state, nil
				},
			},
			DebugLogger: &mocks.Logger{
				MockDebugf: func(format string, v ...interface{}) {
					lines = append(lines, fmt.Sprintf(format, v...))
				},
			},
		}
		config := &tls.Config{ServerName: "imap.example.com", MinVersion: tls.VersionTLS12}
		if _, _, err := th.Handshake(context.Background(), &mocks.Conn{}, config); err != nil {
			t.Fatal(err)
		}
		if len(lines) != 2 || lines[0] != "tls {sni=imap.example.com min=TLSv1.2}..." {
			t.Fatal("unexpected first line", lines)
		}
		if !strings.Contains(lines[1], "peer=imap.example.com cipher=TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256 v=TLSv1.2") {
			t.Fatal("unexpected second line", lines[1])
		}
	})

	t.Run("on failure", func(t *testing.T) {
		var count int
		th := &tlsHandshakerLogger{
			TLSHandshaker: &mocks.TLSHandshaker{
				MockHandshake: func(ctx context.Context, conn net.Conn, config *tls.Config) (net.Conn, tls.ConnectionState, error) {
					return nil, tls.ConnectionState{}, io.EOF
				},
			},
			DebugLogger: &mocks.Logger{
				MockDebugf: func(format string, v ...interface{}) {
					count++
				},
			},
		}
		conn, _, err := th.Handshake(context.Background(), &mocks.Conn{}, &tls.Config{})
		if !errors.Is(err, io.EOF) {
			t.Fatal("not the error we expected", err)
		}
		if conn != nil {
			t.Fatal("expected nil conn")
		}
		if count != 2 {
			t.Fatal("not logging as expected", count)
		}
	})
}

func TestTLSHandshakerErrWrapper(t *testing.T) {
	t.Run("wraps errors", func(t *testing.T) {
		th := &tlsHandshakerErrWrapper{
			TLSHandshaker: &mocks.TLSHandshaker{
				MockHandshake: func(ctx context.Context, conn net.Conn, config *tls.Config) (net.Conn, tls.ConnectionState, error) {
					return nil, tls.ConnectionState{}, io.EOF
				},
			},
		}
		conn, _, err := th.Handshake(context.Background(), &mocks.Conn{}, &tls.Config{})
		var ew *ErrWrapper
		if !errors.As(err, &ew) {
			t.Fatal("not an ErrWrapper", err)
		}
		if ew.Operation != TLSHandshakeOperation || ew.Failure != FailureEOFError {
			t.Fatal("unexpected wrapper", ew.Operation, ew.Failure)
		}
		if conn != nil {
			t.Fatal("expected nil conn")
		}
	})

	t.Run("passes through success", func(t *testing.T) {
		expected := &mocks.TLSConn{}
		th := &tlsHandshakerErrWrapper{
			TLSHandshaker: &mocks.TLSHandshaker{
				MockHandshake: func(ctx context.Context, conn net.Conn, config *tls.Config) (net.Conn, tls.ConnectionState, error) {
					return expected, tls.ConnectionState{}, nil
				},
			},
		}
		conn, _, err := th.Handshake(context.Background(), &mocks.Conn{}, &tls.Config{})
		if err != nil {
			t.Fatal(err)
		}
		if conn != expected {
			t.Fatal("unexpected conn")
		}
	})
}
