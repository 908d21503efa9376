package testingx

import (
	"bufio"
	"context"
	"net"
	"strings"
	"sync"

	"github.com/mailtls/mailtls/internal/runtimex"
)

// Mail protocols understood by [MailServer].
const (
	MailProtocolSMTP = "smtp"
	MailProtocolIMAP = "imap"
	MailProtocolPOP3 = "pop3"
)

// MailServerConfig configures a [MailServer].
type MailServerConfig struct {
	// Protocol is one of smtp, imap and pop3.
	Protocol string

	// RefuseStartTLS makes the server omit STARTTLS from its
	// capabilities and refuse the upgrade command.
	RefuseStartTLS bool

	// Handler handles the TLS handshake after the upgrade.
	Handler TLSHandler
}

// MailServer emulates the plaintext preamble of a mail server offering
// STARTTLS and hands the upgraded conn to a [TLSHandler].
type MailServer struct {
	cancel    context.CancelFunc
	closeOnce sync.Once
	config    *MailServerConfig
	endpoint  string
	listener  net.Listener
	wg        sync.WaitGroup
}

// MustNewMailServer creates and starts a new [MailServer] on localhost.
func MustNewMailServer(config *MailServerConfig) *MailServer {
	listener := runtimex.Try1((&TCPListenerStdlib{}).ListenTCP("tcp", localhostAddr()))
	ctx, cancel := context.WithCancel(context.Background())
	srv := &MailServer{
		cancel:   cancel,
		config:   config,
		endpoint: listener.Addr().String(),
		listener: listener,
	}
	srv.wg.Add(1)
	go acceptLoop(ctx, &srv.wg, listener, srv.handle)
	return srv
}

// Endpoint returns the endpoint where the server is listening.
func (ms *MailServer) Endpoint() string {
	return ms.endpoint
}

// Close closes this server as soon as possible.
func (ms *MailServer) Close() (err error) {
	ms.closeOnce.Do(func() {
		err = ms.listener.Close()
		ms.cancel()
		ms.wg.Wait()
	})
	return
}

func (ms *MailServer) handle(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	rw := bufio.NewReadWriter(bufio.NewReader(conn), bufio.NewWriter(conn))
	var upgrade bool
	switch ms.config.Protocol {
	case MailProtocolSMTP:
		upgrade = ms.smtp(rw)
	case MailProtocolIMAP:
		upgrade = ms.imap(rw)
	case MailProtocolPOP3:
		upgrade = ms.pop3(rw)
	}
	if !upgrade || rw.Reader.Buffered() > 0 {
		return
	}
	serveTLS(ctx, conn, ms.config.Handler)
}

// send writes the given lines terminated by CRLF.
func send(rw *bufio.ReadWriter, lines ...string) bool {
	for _, line := range lines {
		if _, err := rw.WriteString(line + "\r\n"); err != nil {
			return false
		}
	}
	return rw.Flush() == nil
}

// recv reads a line and returns it without the trailing CRLF.
func recv(rw *bufio.ReadWriter) (string, bool) {
	line, err := rw.ReadString('\n')
	if err != nil {
		return "", false
	}
	return strings.TrimRight(line, "\r\n"), true
}

func (ms *MailServer) smtp(rw *bufio.ReadWriter) bool {
	if !send(rw, "220-mail.example.com ESMTP", "220 ready") {
		return false
	}
	for {
		line, good := recv(rw)
		if !good {
			return false
		}
		verb := strings.ToUpper(strings.Fields(line + " x")[0])
		switch verb {
		case "EHLO":
			caps := []string{"250-mail.example.com", "250-PIPELINING", "250-8BITMIME"}
			if !ms.config.RefuseStartTLS {
				caps = append(caps, "250-STARTTLS")
			}
			caps = append(caps, "250 SMTPUTF8")
			if !send(rw, caps...) {
				return false
			}
		case "STARTTLS":
			if ms.config.RefuseStartTLS {
				if !send(rw, "454 4.7.0 TLS not available") {
					return false
				}
				continue
			}
			return send(rw, "220 2.0.0 Ready to start TLS")
		case "QUIT":
			_ = send(rw, "221 2.0.0 Bye")
			return false
		default:
			if !send(rw, "502 5.5.2 Error: command not recognized") {
				return false
			}
		}
	}
}

func (ms *MailServer) imap(rw *bufio.ReadWriter) bool {
	if !send(rw, "* OK IMAP4rev1 Service Ready") {
		return false
	}
	for {
		line, good := recv(rw)
		if !good {
			return false
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			if !send(rw, "* BAD Invalid command") {
				return false
			}
			continue
		}
		tag, verb := fields[0], strings.ToUpper(fields[1])
		switch verb {
		case "CAPABILITY":
			caps := "* CAPABILITY IMAP4rev1 LOGINDISABLED"
			if !ms.config.RefuseStartTLS {
				caps += " STARTTLS"
			}
			if !send(rw, caps, tag+" OK CAPABILITY completed") {
				return false
			}
		case "STARTTLS":
			if ms.config.RefuseStartTLS {
				if !send(rw, tag+" BAD STARTTLS unavailable") {
					return false
				}
				continue
			}
			return send(rw, tag+" OK Begin TLS negotiation now")
		case "LOGOUT":
			_ = send(rw, "* BYE logging out", tag+" OK LOGOUT completed")
			return false
		default:
			if !send(rw, tag+" BAD Unknown command") {
				return false
			}
		}
	}
}

func (ms *MailServer) pop3(rw *bufio.ReadWriter) bool {
	if !send(rw, "+OK POP3 server ready") {
		return false
	}
	for {
		line, good := recv(rw)
		if !good {
			return false
		}
		switch strings.ToUpper(strings.TrimSpace(line)) {
		case "CAPA":
			caps := []string{"+OK Capability list follows", "USER", "UIDL"}
			if !ms.config.RefuseStartTLS {
				caps = append(caps, "STLS")
			}
			caps = append(caps, ".")
			if !send(rw, caps...) {
				return false
			}
		case "STLS":
			if ms.config.RefuseStartTLS {
				if !send(rw, "-ERR Command not permitted") {
					return false
				}
				continue
			}
			return send(rw, "+OK Begin TLS negotiation")
		case "QUIT":
			_ = send(rw, "+OK bye")
			return false
		default:
			if !send(rw, "-ERR Unknown command") {
				return false
			}
		}
	}
}
