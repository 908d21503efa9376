// Package starttls speaks the plaintext preamble that mail protocols use
// before upgrading a connection to TLS with STARTTLS.
package starttls

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/mailtls/mailtls/internal/model"
)

// Protocol specific errors.
var (
	ErrStartTLSNotSupported = errors.New("starttls: STARTTLS not supported by server")
	ErrInvalidResponse      = errors.New("starttls: invalid server response")
	ErrUnsupportedProtocol  = errors.New("starttls: unsupported protocol")
	ErrBufferedData         = errors.New("starttls: server sent data before the TLS handshake")
)

// Supported protocols.
const (
	ProtocolSMTP = "smtp"
	ProtocolIMAP = "imap"
	ProtocolPOP3 = "pop3"
)

// MaxLineLength is the maximum length of a server line including CRLF.
const MaxLineLength = 4096

// DefaultTimeout is the default timeout for the whole negotiation.
const DefaultTimeout = 30 * time.Second

// Options contains options for [Negotiate].
type Options struct {
	// ClientName is the OPTIONAL name sent with SMTP's EHLO.
	ClientName string

	// Logger is the OPTIONAL logger.
	Logger model.Logger

	// Timeout is the OPTIONAL timeout used when ctx has no deadline.
	Timeout time.Duration
}

func (o *Options) clientName() string {
	if o != nil && o.ClientName != "" {
		return o.ClientName
	}
	return "localhost"
}

func (o *Options) logger() model.Logger {
	if o != nil {
		return model.ValidLoggerOrDefault(o.Logger)
	}
	return model.DiscardLogger
}

func (o *Options) timeout() time.Duration {
	if o != nil && o.Timeout > 0 {
		return o.Timeout
	}
	return DefaultTimeout
}

// ProtocolForPort returns the protocol conventionally spoken on port.
func ProtocolForPort(port int) (string, error) {
	switch port {
	case 25, 587:
		return ProtocolSMTP, nil
	case 143:
		return ProtocolIMAP, nil
	case 110:
		return ProtocolPOP3, nil
	default:
		return "", fmt.Errorf("%w: port %d", ErrUnsupportedProtocol, port)
	}
}

// negotiator implements the preamble of a protocol.
type negotiator interface {
	negotiate(s *session) error
}

var negotiators = map[string]func() negotiator{
	ProtocolSMTP: func() negotiator { return &smtpNegotiator{} },
	ProtocolIMAP: func() negotiator { return &imapNegotiator{} },
	ProtocolPOP3: func() negotiator { return &pop3Negotiator{} },
}

// Negotiate speaks the preamble of proto over conn until the server is
// ready for the TLS handshake. On success conn is ready for the handshake
// and no data the server sent is left unread. The deadline comes from ctx
// or from the options' timeout and is cleared before returning.
func Negotiate(ctx context.Context, conn net.Conn, proto string, opts *Options) error {
	factory, found := negotiators[proto]
	if !found {
		return fmt.Errorf("%w: %s", ErrUnsupportedProtocol, proto)
	}
	deadline, found := ctx.Deadline()
	if !found {
		deadline = time.Now().Add(opts.timeout())
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return err
	}
	defer conn.SetDeadline(time.Time{})

	// unblock I/O when the context is canceled
	stop := context.AfterFunc(ctx, func() {
		conn.SetDeadline(time.Now())
	})
	defer stop()

	logger := opts.logger()
	s := &session{
		clientName: opts.clientName(),
		logger:     logger,
		proto:      proto,
		rw:         bufio.NewReadWriter(bufio.NewReaderSize(conn, MaxLineLength), bufio.NewWriter(conn)),
	}
	logger.Debugf("starttls {proto=%s addr=%s}...", proto, conn.RemoteAddr().String())
	start := time.Now()
	err := factory().negotiate(s)
	if err == nil && s.rw.Reader.Buffered() > 0 {
		err = ErrBufferedData
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = fmt.Errorf("%s: %w", proto, ctxErr)
		}
		logger.Debugf("starttls {proto=%s}... %s in %s", proto, err, time.Since(start))
		return err
	}
	logger.Debugf("starttls {proto=%s}... ok in %s", proto, time.Since(start))
	return nil
}

// session is the state of a negotiation.
type session struct {
	clientName string
	logger     model.Logger
	proto      string
	rw         *bufio.ReadWriter
}

func (s *session) writeLine(line string) error {
	if _, err := s.rw.WriteString(line + "\r\n"); err != nil {
		return err
	}
	return s.rw.Flush()
}

// readLine reads a line of at most [MaxLineLength] bytes.
func (s *session) readLine() (string, error) {
	line, err := s.rw.ReadSlice('\n')
	if errors.Is(err, bufio.ErrBufferFull) {
		return "", fmt.Errorf("%w: line longer than %d bytes", ErrInvalidResponse, MaxLineLength)
	}
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(line), "\r\n"), nil
}
