package netxlite

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/mailtls/mailtls/internal/mocks"
	"github.com/mailtls/mailtls/internal/model"
)

func TestNewDialer(t *testing.T) {
	d := NewDialer(model.DiscardLogger)
	logger := d.(*dialerLogger)
	if logger.DebugLogger != model.DiscardLogger {
		t.Fatal("invalid logger")
	}
	errWrapper := logger.Dialer.(*dialerErrWrapper)
	if _, ok := errWrapper.Dialer.(*DialerSystem); !ok {
		t.Fatal("invalid underlying dialer")
	}
}

func TestNewDialerWithTimeout(t *testing.T) {
	d := NewDialerWithTimeout(model.DiscardLogger, 3*time.Second)
	errWrapper := d.(*dialerLogger).Dialer.(*dialerErrWrapper)
	system := errWrapper.Dialer.(*DialerSystem)
	if system.Timeout != 3*time.Second {
		t.Fatal("unexpected timeout", system.Timeout)
	}
}

func TestDialerSystem(t *testing.T) {
	t.Run("uses the default timeout", func(t *testing.T) {
		d := &DialerSystem{}
		if d.newUnderlyingDialer().Timeout != dialerDefaultTimeout {
			t.Fatal("unexpected timeout")
		}
	})

	t.Run("honours a custom timeout", func(t *testing.T) {
		d := &DialerSystem{Timeout: time.Second}
		if d.newUnderlyingDialer().Timeout != time.Second {
			t.Fatal("unexpected timeout")
		}
	})

	t.Run("DialContext with canceled context", func(t *testing.T) {
		d := &DialerSystem{}
		ctx, cancel := context.WithCancel(context.Background())
		cancel() // immediately!
		conn, err := d.DialContext(ctx, "tcp", "8.8.8.8:853")
		if err == nil || !strings.HasSuffix(err.Error(), "operation was canceled") {
			t.Fatal("not the error we expected", err)
		}
		if conn != nil {
			t.Fatal("expected nil conn")
		}
	})

	t.Run("DialContext with success", func(t *testing.T) {
		listener, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			t.Fatal(err)
		}
		defer listener.Close()
		d := &DialerSystem{}
		conn, err := d.DialContext(context.Background(), "tcp", listener.Addr().String())
		if err != nil {
			t.Fatal(err)
		}
		conn.Close()
	})
}

func TestDialerLogger(t *testing.T) {
	t.Run("on success", func(t *testing.T) {
		var count int
		d := &dialerLogger{
			Dialer: &mocks.Dialer{
				MockDialContext: func(ctx context.Context, network, address string) (net.Conn, error) {
					return &mocks.Conn{}, nil
				},
			},
			DebugLogger: &mocks.Logger{
				MockDebugf: func(format string, v ...interface{}) {
					count++
				},
			},
		}
		conn, err := d.DialContext(context.Background(), "tcp", "10.0.0.1:25")
		if err != nil {
			t.Fatal(err)
		}
		if conn == nil {
			t.Fatal("expected non-nil conn")
		}
		if count != 2 {
			t.Fatal("not logging as expected", count)
		}
	})

	t.Run("on failure", func(t *testing.T) {
		var count int
		expected := errors.New("mocked error")
		d := &dialerLogger{
			Dialer: &mocks.Dialer{
				MockDialContext: func(ctx context.Context, network, address string) (net.Conn, error) {
					return nil, expected
				},
			},
			DebugLogger: &mocks.Logger{
				MockDebugf: func(format string, v ...interface{}) {
					count++
				},
			},
		}
		conn, err := d.DialContext(context.Background(), "tcp", "10.0.0.1:25")
		if !errors.Is(err, expected) {
			t.Fatal("not the error we expected", err)
		}
		if conn != nil {
			t.Fatal("expected nil conn")
		}
		if count != 2 {
			t.Fatal("not logging as expected", count)
		}
	})

	t.Run("CloseIdleConnections", func(t *testing.T) {
		var called bool
		d := &dialerLogger{
			Dialer: &mocks.Dialer{
				MockCloseIdleConnections: func() {
					called = true
				},
			},
			DebugLogger: model.DiscardLogger,
		}
		d.CloseIdleConnections()
		if !called {
			t.Fatal("not called")
		}
	})
}

func TestDialerErrWrapper(t *testing.T) {
	t.Run("DialContext on failure", func(t *testing.T) {
		d := &dialerErrWrapper{
			Dialer: &mocks.Dialer{
				MockDialContext: func(ctx context.Context, network, address string) (net.Conn, error) {
					return nil, io.EOF
				},
			},
		}
		conn, err := d.DialContext(context.Background(), "tcp", "10.0.0.1:25")
		var ew *ErrWrapper
		if !errors.As(err, &ew) {
			t.Fatal("cannot convert to ErrWrapper")
		}
		if ew.Operation != ConnectOperation {
			t.Fatal("unexpected operation", ew.Operation)
		}
		if ew.Failure != FailureEOFError {
			t.Fatal("unexpected failure", ew.Failure)
		}
		if conn != nil {
			t.Fatal("expected nil conn")
		}
	})

	t.Run("the returned conn wraps errors", func(t *testing.T) {
		d := &dialerErrWrapper{
			Dialer: &mocks.Dialer{
				MockDialContext: func(ctx context.Context, network, address string) (net.Conn, error) {
					return &mocks.Conn{
						MockRead: func(b []byte) (int, error) {
							return 0, io.EOF
						},
						MockWrite: func(b []byte) (int, error) {
							return 0, io.EOF
						},
						MockClose: func() error {
							return io.EOF
						},
					}, nil
				},
			},
		}
		conn, err := d.DialContext(context.Background(), "tcp", "10.0.0.1:25")
		if err != nil {
			t.Fatal(err)
		}
		var ew *ErrWrapper
		if _, err := conn.Read(make([]byte, 8)); !errors.As(err, &ew) || ew.Operation != ReadOperation {
			t.Fatal("unexpected read error", err)
		}
		if _, err := conn.Write(make([]byte, 8)); !errors.As(err, &ew) || ew.Operation != WriteOperation {
			t.Fatal("unexpected write error", err)
		}
		if err := conn.Close(); !errors.As(err, &ew) || ew.Operation != CloseOperation {
			t.Fatal("unexpected close error", err)
		}
	})

	t.Run("the returned conn passes through success", func(t *testing.T) {
		d := &dialerErrWrapper{
			Dialer: &mocks.Dialer{
				MockDialContext: func(ctx context.Context, network, address string) (net.Conn, error) {
					return &mocks.Conn{
						MockRead: func(b []byte) (int, error) {
							return len(b), nil
						},
						MockWrite: func(b []byte) (int, error) {
							return len(b), nil
						},
						MockClose: func() error {
							return nil
						},
					}, nil
				},
			},
		}
		conn, err := d.DialContext(context.Background(), "tcp", "10.0.0.1:25")
		if err != nil {
			t.Fatal(err)
		}
		if count, err := conn.Read(make([]byte, 8)); err != nil || count != 8 {
			t.Fatal("unexpected read result", count, err)
		}
		if count, err := conn.Write(make([]byte, 4)); err != nil || count != 4 {
			t.Fatal("unexpected write result", count, err)
		}
		if err := conn.Close(); err != nil {
			t.Fatal(err)
		}
	})
}
