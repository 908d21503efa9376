package config

import (
	"github.com/mailtls/mailtls/internal/starttls"
	"github.com/pkg/errors"
)

// Security settings of an account.
const (
	// SecurityTLS means TLS from the first byte.
	SecurityTLS = "tls"

	// SecuritySTARTTLS means upgrading a plaintext connection.
	SecuritySTARTTLS = "starttls"
)

// Account settings
type Account struct {
	Name                    string `json:"name"`
	Protocol                string `json:"protocol"`
	Host                    string `json:"host"`
	Port                    int    `json:"port"`
	Security                string `json:"security"`
	RequireSecure           bool   `json:"require_secure"`
	ClientCertificateAlias  string `json:"client_certificate_alias"`
	SelectClientCertificate bool   `json:"select_client_certificate"`
}

// Default account settings
func (a *Account) Default() {
	if a.Security == "" {
		a.Security = SecurityTLS
	}
	if a.Protocol == "" && a.Security == SecuritySTARTTLS {
		if proto, err := starttls.ProtocolForPort(a.Port); err == nil {
			a.Protocol = proto
		}
	}
}

// Validate the account settings
func (a *Account) Validate() error {
	if a.Name == "" {
		return errors.New("missing account name")
	}
	if a.Host == "" {
		return errors.Errorf("%s: missing host", a.Name)
	}
	if a.Port <= 0 || a.Port > 65535 {
		return errors.Errorf("%s: invalid port: %d", a.Name, a.Port)
	}
	switch a.Security {
	case SecurityTLS:
		switch a.Protocol {
		case "", starttls.ProtocolSMTP, starttls.ProtocolIMAP, starttls.ProtocolPOP3:
		default:
			return errors.Errorf("%s: invalid protocol: %q", a.Name, a.Protocol)
		}
	case SecuritySTARTTLS:
		switch a.Protocol {
		case starttls.ProtocolSMTP, starttls.ProtocolIMAP, starttls.ProtocolPOP3:
		default:
			return errors.Errorf("%s: invalid protocol for starttls: %q", a.Name, a.Protocol)
		}
	default:
		return errors.Errorf("%s: invalid security: %q", a.Name, a.Security)
	}
	return nil
}
