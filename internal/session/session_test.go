package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"testing"

	"github.com/apex/log"
	"github.com/google/go-cmp/cmp"
	"github.com/mailtls/mailtls/config"
	"github.com/mailtls/mailtls/internal/credstore"
	"github.com/mailtls/mailtls/internal/mocks"
	"github.com/mailtls/mailtls/internal/netxlite"
	"github.com/mailtls/mailtls/internal/runtimex"
	"github.com/mailtls/mailtls/internal/securechannel"
	"github.com/mailtls/mailtls/internal/starttls"
	"github.com/mailtls/mailtls/internal/testingx"
	"github.com/mailtls/mailtls/internal/trust"
)

// testEnv is a server reachable through the session's builder.
type testEnv struct {
	cv       *testingx.CloseVerify
	dialed   []string
	saved    []string
	selected [][]string
	session  *Session
}

type serverConfig struct {
	// protocol is the STARTTLS protocol or empty for direct TLS.
	protocol string

	// refuseStartTLS causes the server to refuse STARTTLS.
	refuseStartTLS bool

	// requestClientCert causes the server to request a client certificate.
	requestClientCert bool
}

func newTestEnv(t *testing.T, sc *serverConfig) *testEnv {
	mitm := testingx.MustNewTLSMITMProviderNetem()
	pki := testingx.MustNewPKI("Example Mail Users CA")
	var handler testingx.TLSHandler
	if sc.requestClientCert {
		handler = testingx.TLSHandlerRequestClientCert(mitm, pki.CertPool())
	} else {
		handler = testingx.TLSHandlerHandshakeAndWriteText(mitm, []byte("hello, anonymous\n"))
	}

	var endpoint string
	if sc.protocol != "" {
		srv := testingx.MustNewMailServer(&testingx.MailServerConfig{
			Protocol:       sc.protocol,
			RefuseStartTLS: sc.refuseStartTLS,
			Handler:        handler,
		})
		t.Cleanup(func() { srv.Close() })
		endpoint = srv.Endpoint()
	} else {
		srv := testingx.MustNewTLSServer(handler)
		t.Cleanup(func() { srv.Close() })
		endpoint = srv.Endpoint()
	}

	store := &credstore.Memory{}
	chain, key := pki.MustNewClientIdentity("user-cert-1", testingx.KeyTypeEC)
	runtimex.Try0(store.Add("user-cert-1", chain, key))
	otherPKI := testingx.MustNewPKI("Unrelated CA")
	chain, key = otherPKI.MustNewClientIdentity("unrelated-cert", testingx.KeyTypeEC)
	runtimex.Try0(store.Add("unrelated-cert", chain, key))

	env := &testEnv{cv: &testingx.CloseVerify{}}
	dialer := &mocks.Dialer{
		MockDialContext: func(ctx context.Context, network, address string) (net.Conn, error) {
			env.dialed = append(env.dialed, address)
			return netxlite.NewDialer(log.Log).DialContext(ctx, network, endpoint)
		},
	}
	var attempts int
	env.session = &Session{
		Builder: &securechannel.Builder{
			ClientCertificateSupport: func() bool { return true },
			CredentialStore:          store,
			Dialer:                   env.cv.WrapDialer(dialer),
			Handshaker:               netxlite.NewTLSHandshakerStdlib(log.Log),
			Logger:                   log.Log,
			TrustProvider: &trust.Provider{
				Roots:  runtimex.Try1(mitm.DefaultCertPool()),
				Logger: log.Log,
			},
		},
		Logger: log.Log,
		NewAttemptID: func() string {
			attempts++
			return fmt.Sprintf("attempt-%d", attempts)
		},
		Saver: AliasSaverFunc(func(ctx context.Context, account, alias string) error {
			env.saved = append(env.saved, account+"="+alias)
			return nil
		}),
		Selector: securechannel.AliasSelectorFunc(func(ctx context.Context,
			request *securechannel.InteractiveSelectionRequiredError, candidates []string) (string, error) {
			env.selected = append(env.selected, candidates)
			return candidates[0], nil
		}),
	}
	return env
}

func (env *testEnv) checkConnsClosed(t *testing.T) {
	if err := env.cv.CheckForOpenConns(); err != nil {
		t.Fatal(err)
	}
	if err := env.cv.CheckForMultipleCloses(); err != nil {
		t.Fatal(err)
	}
}

func readGreeting(t *testing.T, conn net.Conn) string {
	data, err := io.ReadAll(conn)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func TestConnectDirectTLS(t *testing.T) {
	t.Run("with an explicit alias", func(t *testing.T) {
		env := newTestEnv(t, &serverConfig{requestClientCert: true})
		account := &config.Account{
			Name:                   "work",
			Host:                   "imap.example.com",
			Port:                   993,
			Security:               config.SecurityTLS,
			ClientCertificateAlias: "user-cert-1",
		}
		sconn, err := env.session.Connect(context.Background(), account)
		if err != nil {
			t.Fatal(err)
		}
		if got := readGreeting(t, sconn); got != "hello, user-cert-1\n" {
			t.Fatal("unexpected greeting", got)
		}
		if sconn.PresentedAlias != "user-cert-1" {
			t.Fatal("unexpected presented alias", sconn.PresentedAlias)
		}
		sconn.Close()
		if diff := cmp.Diff([]string{"imap.example.com:993"}, env.dialed); diff != "" {
			t.Fatal(diff)
		}
		if len(env.saved) != 0 || len(env.selected) != 0 {
			t.Fatal("unexpected selection", env.saved, env.selected)
		}
		env.checkConnsClosed(t)
	})

	t.Run("with interactive selection", func(t *testing.T) {
		env := newTestEnv(t, &serverConfig{requestClientCert: true})
		account := &config.Account{
			Name:                    "work",
			Host:                    "imap.example.com",
			Port:                    993,
			Security:                config.SecurityTLS,
			SelectClientCertificate: true,
		}
		sconn, err := env.session.Connect(context.Background(), account)
		if err != nil {
			t.Fatal(err)
		}
		if got := readGreeting(t, sconn); got != "hello, user-cert-1\n" {
			t.Fatal("unexpected greeting", got)
		}
		if sconn.Mode != securechannel.ExplicitAlias("user-cert-1") {
			t.Fatal("unexpected mode", sconn.Mode)
		}
		sconn.Close()
		if diff := cmp.Diff([][]string{{"user-cert-1"}}, env.selected); diff != "" {
			t.Fatal(diff)
		}
		if diff := cmp.Diff([]string{"work=user-cert-1"}, env.saved); diff != "" {
			t.Fatal(diff)
		}
		if len(env.dialed) != 2 {
			t.Fatal("expected two attempts", env.dialed)
		}
		env.checkConnsClosed(t)
	})

	t.Run("with interactive selection when the server does not ask", func(t *testing.T) {
		env := newTestEnv(t, &serverConfig{requestClientCert: false})
		account := &config.Account{
			Name:                    "work",
			Host:                    "imap.example.com",
			Port:                    993,
			Security:                config.SecurityTLS,
			SelectClientCertificate: true,
		}
		sconn, err := env.session.Connect(context.Background(), account)
		if err != nil {
			t.Fatal(err)
		}
		if sconn.Mode != securechannel.NoClientCertificate() || sconn.PresentedAlias != "" {
			t.Fatal("unexpected secure conn", sconn.Mode, sconn.PresentedAlias)
		}
		sconn.Close()
		if len(env.saved) != 0 || len(env.selected) != 0 {
			t.Fatal("unexpected selection", env.saved, env.selected)
		}
		if len(env.dialed) != 2 {
			t.Fatal("expected two attempts", env.dialed)
		}
		env.checkConnsClosed(t)
	})

	t.Run("when the human cancels the selection", func(t *testing.T) {
		env := newTestEnv(t, &serverConfig{requestClientCert: true})
		env.session.Selector = securechannel.AliasSelectorFunc(func(ctx context.Context,
			request *securechannel.InteractiveSelectionRequiredError, candidates []string) (string, error) {
			return "", nil
		})
		account := &config.Account{
			Name:                    "work",
			Host:                    "imap.example.com",
			Port:                    993,
			SelectClientCertificate: true,
		}
		sconn, err := env.session.Connect(context.Background(), account)
		if !errors.Is(err, securechannel.ErrSelectionCancelled) {
			t.Fatal("unexpected error", err)
		}
		if sconn != nil {
			t.Fatal("expected nil conn")
		}
		if len(env.saved) != 0 || len(env.dialed) != 1 {
			t.Fatal("unexpected state", env.saved, env.dialed)
		}
		env.checkConnsClosed(t)
	})

	t.Run("without a selector", func(t *testing.T) {
		env := newTestEnv(t, &serverConfig{requestClientCert: true})
		env.session.Selector = nil
		account := &config.Account{
			Name:                    "work",
			Host:                    "imap.example.com",
			Port:                    993,
			SelectClientCertificate: true,
		}
		_, err := env.session.Connect(context.Background(), account)
		if !errors.Is(err, securechannel.ErrSelectionCancelled) {
			t.Fatal("unexpected error", err)
		}
		env.checkConnsClosed(t)
	})

	t.Run("when saving the alias fails", func(t *testing.T) {
		env := newTestEnv(t, &serverConfig{requestClientCert: true})
		var warnings []string
		env.session.Logger = &mocks.Logger{
			MockInfof: func(format string, v ...interface{}) {},
			MockDebugf: func(format string, v ...interface{}) {},
			MockWarnf: func(format string, v ...interface{}) {
				warnings = append(warnings, fmt.Sprintf(format, v...))
			},
		}
		env.session.Saver = AliasSaverFunc(func(ctx context.Context, account, alias string) error {
			return errors.New("read-only file system")
		})
		account := &config.Account{
			Name:                    "work",
			Host:                    "imap.example.com",
			Port:                    993,
			SelectClientCertificate: true,
		}
		sconn, err := env.session.Connect(context.Background(), account)
		if err != nil {
			t.Fatal(err)
		}
		sconn.Close()
		if len(warnings) != 1 || !strings.Contains(warnings[0], "read-only file system") {
			t.Fatal("unexpected warnings", warnings)
		}
		env.checkConnsClosed(t)
	})
}

func TestConnectSTARTTLS(t *testing.T) {
	for _, proto := range []string{starttls.ProtocolSMTP, starttls.ProtocolIMAP, starttls.ProtocolPOP3} {
		t.Run(fmt.Sprintf("with %s and interactive selection", proto), func(t *testing.T) {
			env := newTestEnv(t, &serverConfig{protocol: proto, requestClientCert: true})
			account := &config.Account{
				Name:                    "personal",
				Protocol:                proto,
				Host:                    "mail.example.org",
				Port:                    587,
				Security:                config.SecuritySTARTTLS,
				RequireSecure:           true,
				SelectClientCertificate: true,
			}
			sconn, err := env.session.Connect(context.Background(), account)
			if err != nil {
				t.Fatal(err)
			}
			if got := readGreeting(t, sconn); got != "hello, user-cert-1\n" {
				t.Fatal("unexpected greeting", got)
			}
			if !sconn.RequireSecure || sconn.PresentedAlias != "user-cert-1" {
				t.Fatal("unexpected secure conn", sconn.RequireSecure, sconn.PresentedAlias)
			}
			sconn.Close()
			if diff := cmp.Diff([]string{"personal=user-cert-1"}, env.saved); diff != "" {
				t.Fatal(diff)
			}
			env.checkConnsClosed(t)
		})
	}

	t.Run("when the server refuses STARTTLS", func(t *testing.T) {
		env := newTestEnv(t, &serverConfig{protocol: starttls.ProtocolSMTP, refuseStartTLS: true})
		account := &config.Account{
			Name:          "personal",
			Protocol:      starttls.ProtocolSMTP,
			Host:          "mail.example.org",
			Port:          587,
			Security:      config.SecuritySTARTTLS,
			RequireSecure: true,
		}
		sconn, err := env.session.Connect(context.Background(), account)
		if !errors.Is(err, starttls.ErrStartTLSNotSupported) {
			t.Fatal("unexpected error", err)
		}
		if sconn != nil {
			t.Fatal("expected nil conn")
		}
		env.checkConnsClosed(t)
	})

	t.Run("when the handshake fails", func(t *testing.T) {
		env := newTestEnv(t, &serverConfig{protocol: starttls.ProtocolIMAP})
		env.session.Builder.TrustProvider = &trust.Provider{Roots: testingx.MustNewPKI("Other").CertPool()}
		account := &config.Account{
			Name:     "personal",
			Protocol: starttls.ProtocolIMAP,
			Host:     "mail.example.org",
			Port:     143,
			Security: config.SecuritySTARTTLS,
		}
		_, err := env.session.Connect(context.Background(), account)
		if kind := securechannel.Classify(err); kind != securechannel.KindTrust {
			t.Fatal("unexpected error kind", kind, err)
		}
		env.checkConnsClosed(t)
	})
}

func TestConnectWithInvalidAccount(t *testing.T) {
	t.Run("with unknown security", func(t *testing.T) {
		env := newTestEnv(t, &serverConfig{})
		account := &config.Account{Name: "x", Host: "mail.example.com", Port: 993, Security: "ssl"}
		if _, err := env.session.Connect(context.Background(), account); !errors.Is(err, ErrInvalidAccount) {
			t.Fatal("unexpected error", err)
		}
	})

	t.Run("with invalid port", func(t *testing.T) {
		env := newTestEnv(t, &serverConfig{})
		account := &config.Account{Name: "x", Host: "mail.example.com", Port: 0}
		if _, err := env.session.Connect(context.Background(), account); !errors.Is(err, securechannel.ErrInvalidDestination) {
			t.Fatal("unexpected error", err)
		}
		if len(env.dialed) != 0 {
			t.Fatal("unexpected dial", env.dialed)
		}
	})

	t.Run("without builder", func(t *testing.T) {
		s := &Session{}
		account := &config.Account{Name: "x", Host: "mail.example.com", Port: 993}
		if _, err := s.Connect(context.Background(), account); !errors.Is(err, ErrInvalidAccount) {
			t.Fatal("unexpected error", err)
		}
	})
}

func TestAttemptLogger(t *testing.T) {
	var (
		mu       sync.Mutex
		messages []string
	)
	record := func(format string, v ...interface{}) {
		mu.Lock()
		messages = append(messages, fmt.Sprintf(format, v...))
		mu.Unlock()
	}
	s := &Session{
		Logger: &mocks.Logger{
			MockDebugf: record,
			MockInfof:  record,
			MockWarnf:  record,
		},
		NewAttemptID: func() string { return "0000" },
	}
	account := &config.Account{Name: "work"}
	logger := s.attemptLogger(account, securechannel.InteractiveAbort())
	logger.Infof("connecting to %s", "imap.example.com:993")
	logger.Debugf("x=%d", 1)
	logger.Warnf("oops")
	expect := []string{
		"[work 0000 interactive] connecting to imap.example.com:993",
		"[work 0000 interactive] x=1",
		"[work 0000 interactive] oops",
	}
	if diff := cmp.Diff(expect, messages); diff != "" {
		t.Fatal(diff)
	}
}

func TestDefaultAttemptIDIsUUID(t *testing.T) {
	s := &Session{}
	id := s.newAttemptID()
	if len(id) != 36 || strings.Count(id, "-") != 4 {
		t.Fatal("unexpected attempt id", id)
	}
	if id == s.newAttemptID() {
		t.Fatal("expected different ids")
	}
}

func TestConfigAliasSaver(t *testing.T) {
	t.Setenv("MAILTLS_HOME", t.TempDir())
	c := runtimex.Try1(config.ParseConfig([]byte(`{"accounts": [{"name": "work", "host": "h", "port": 993}]}`)))
	saver := ConfigAliasSaver(c)
	err := saver.SaveAlias(context.Background(), "work", "user-cert-1")
	if err == nil || err.Error() != "config file path is empty" {
		t.Fatal("unexpected error", err)
	}
	account := runtimex.Try1(c.Account("work"))
	if account.ClientCertificateAlias != "user-cert-1" {
		t.Fatal("unexpected alias", account.ClientCertificateAlias)
	}
}
