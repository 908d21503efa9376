package securechannel

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/mailtls/mailtls/internal/idnax"
)

// ErrInvalidDestination indicates that the host or the port are not valid.
var ErrInvalidDestination = errors.New("securechannel: invalid destination")

// Destination is the remote mail endpoint of a connection attempt.
type Destination struct {
	// Host is the ASCII host name or IP address.
	Host string

	// Port is the TCP port.
	Port int
}

// NewDestination validates host and port and returns a [Destination]
// whose host is converted to its ASCII form.
func NewDestination(host string, port int) (Destination, error) {
	if port < 1 || port > 65535 {
		return Destination{}, fmt.Errorf("%w: port %d out of range", ErrInvalidDestination, port)
	}
	host = strings.TrimSuffix(host, ".")
	if host == "" {
		return Destination{}, fmt.Errorf("%w: empty host", ErrInvalidDestination)
	}
	if net.ParseIP(host) != nil {
		return Destination{Host: host, Port: port}, nil
	}
	ascii, err := idnax.ToASCII(host)
	if err != nil {
		return Destination{}, fmt.Errorf("%w: %s", ErrInvalidDestination, err.Error())
	}
	return Destination{Host: ascii, Port: port}, nil
}

// Endpoint returns the host and port joined as a TCP endpoint.
func (d Destination) Endpoint() string {
	return net.JoinHostPort(d.Host, strconv.Itoa(d.Port))
}

// String implements fmt.Stringer.
func (d Destination) String() string {
	return d.Endpoint()
}
