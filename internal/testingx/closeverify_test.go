package testingx

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/mailtls/mailtls/internal/mocks"
)

func TestCloseVerify(t *testing.T) {
	newConn := func(local string) net.Conn {
		return &mocks.Conn{
			MockLocalAddr: func() net.Addr {
				return &mocks.Addr{
					MockString:  func() string { return local },
					MockNetwork: func() string { return "tcp" },
				}
			},
			MockClose: func() error {
				return nil
			},
		}
	}

	t.Run("reports connections that were not closed", func(t *testing.T) {
		cv := &CloseVerify{}
		conn := cv.WrapConn(newConn("127.0.0.1:5000"))
		if err := cv.CheckForOpenConns(); err == nil {
			t.Fatal("expected an error")
		}
		conn.Close()
		if err := cv.CheckForOpenConns(); err != nil {
			t.Fatal(err)
		}
	})

	t.Run("reports and swallows multiple closes", func(t *testing.T) {
		var underlying int
		cv := &CloseVerify{}
		inner := newConn("127.0.0.1:5001").(*mocks.Conn)
		inner.MockClose = func() error {
			underlying++
			return nil
		}
		conn := cv.WrapConn(inner)
		if err := conn.Close(); err != nil {
			t.Fatal(err)
		}
		if err := conn.Close(); !errors.Is(err, net.ErrClosed) {
			t.Fatal("unexpected error", err)
		}
		if underlying != 1 {
			t.Fatal("expected one underlying close, got", underlying)
		}
		if cv.CloseCount() != 2 {
			t.Fatal("expected two close calls, got", cv.CloseCount())
		}
		if err := cv.CheckForMultipleCloses(); err == nil {
			t.Fatal("expected an error")
		}
	})

	t.Run("WrapDialer", func(t *testing.T) {
		cv := &CloseVerify{}
		expected := errors.New("mocked error")
		dialer := cv.WrapDialer(&mocks.Dialer{
			MockDialContext: func(ctx context.Context, network, address string) (net.Conn, error) {
				if address == "127.0.0.1:1" {
					return nil, expected
				}
				return newConn("127.0.0.1:5002"), nil
			},
		})
		if _, err := dialer.DialContext(context.Background(), "tcp", "127.0.0.1:1"); !errors.Is(err, expected) {
			t.Fatal("unexpected error", err)
		}
		conn, err := dialer.DialContext(context.Background(), "tcp", "127.0.0.1:25")
		if err != nil {
			t.Fatal(err)
		}
		conn.Close()
		if err := cv.CheckForOpenConns(); err != nil {
			t.Fatal(err)
		}
		if err := cv.CheckForMultipleCloses(); err != nil {
			t.Fatal(err)
		}
	})
}
