package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/apex/log"
	"github.com/mailtls/mailtls/config"
	"github.com/mailtls/mailtls/internal/netxlite"
	"github.com/mailtls/mailtls/internal/securechannel"
	"github.com/mailtls/mailtls/internal/starttls"
	"github.com/mailtls/mailtls/internal/trust"
	"github.com/spf13/cobra"
)

// connectOptions contains the options of the connect subcommand.
type connectOptions struct {
	Alias             string
	RequireSecure     bool
	SelectCertificate bool
	StartTLS          string
	Timeout           time.Duration
}

// registerConnect registers the connect subcommand
func registerConnect(rootCmd *cobra.Command, globalOptions *Options) {
	var options connectOptions
	subCmd := &cobra.Command{
		Use:   "connect HOST PORT",
		Short: "Connects to a mail server and prints the TLS parameters",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return connectMain(cmd.Context(), globalOptions, &options, args[0], args[1])
		},
	}
	rootCmd.AddCommand(subCmd)
	flags := subCmd.Flags()

	flags.StringVarP(
		&options.Alias,
		"alias",
		"a",
		"",
		"alias of the client certificate to present",
	)

	flags.BoolVar(
		&options.RequireSecure,
		"require-secure",
		false,
		"record that the caller requires a secure channel",
	)

	flags.BoolVarP(
		&options.SelectCertificate,
		"select-certificate",
		"s",
		false,
		"interactively select the client certificate if the server asks for one",
	)

	flags.StringVar(
		&options.StartTLS,
		"starttls",
		"",
		"upgrade a plaintext connection using STARTTLS (one of: smtp, imap, pop3)",
	)

	flags.DurationVar(
		&options.Timeout,
		"timeout",
		0,
		"dial and handshake timeout (default: the config's handshake_timeout)",
	)

	subCmd.MarkFlagsMutuallyExclusive("alias", "select-certificate")
}

// newAdHocAccount creates the account used by the connect subcommand.
func newAdHocAccount(host, port string, options *connectOptions) (*config.Account, error) {
	portnum, err := strconv.Atoi(port)
	if err != nil {
		return nil, fmt.Errorf("invalid port: %q", port)
	}
	account := &config.Account{
		Name:                    fmt.Sprintf("%s:%d", host, portnum),
		Host:                    host,
		Port:                    portnum,
		Security:                config.SecurityTLS,
		RequireSecure:           options.RequireSecure,
		ClientCertificateAlias:  options.Alias,
		SelectClientCertificate: options.SelectCertificate,
	}
	if options.StartTLS != "" {
		account.Security = config.SecuritySTARTTLS
		account.Protocol = options.StartTLS
	}
	if err := account.Validate(); err != nil {
		return nil, err
	}
	return account, nil
}

func connectMain(ctx context.Context, globalOptions *Options, options *connectOptions, host, port string) error {
	account, err := newAdHocAccount(host, port, options)
	if err != nil {
		return err
	}
	env, err := newEnvironment(globalOptions)
	if err != nil {
		return err
	}
	return connectAccount(ctx, env.newSession(options.Timeout), account)
}

// connectAccount connects to account and prints the connection summary.
func connectAccount(ctx context.Context, sess sessionConnector, account *config.Account) error {
	sconn, err := sess.Connect(ctx, account)
	if err != nil {
		explainError(account, err)
		return err
	}
	defer sconn.Close()
	log.WithFields(connectionFields(account, sconn)).Info("connected")
	return nil
}

// sessionConnector is the part of *session.Session we use here.
type sessionConnector interface {
	Connect(ctx context.Context, account *config.Account) (*securechannel.SecureConn, error)
}

// connectionFields returns the fields of the "connection" typed log.
func connectionFields(account *config.Account, sconn *securechannel.SecureConn) log.Fields {
	security := account.Security
	if account.Security == config.SecuritySTARTTLS {
		security = fmt.Sprintf("%s (%s)", account.Security, account.Protocol)
	}
	var serverName string
	if len(sconn.State.PeerCertificates) > 0 {
		serverName = sconn.State.PeerCertificates[0].Subject.String()
	}
	return log.Fields{
		"type":               "connection",
		"destination":        sconn.Destination.String(),
		"security":           security,
		"tls_version":        netxlite.TLSVersionString(sconn.State.Version),
		"cipher_suite":       netxlite.TLSCipherSuiteString(sconn.State.CipherSuite),
		"server_name":        serverName,
		"client_certificate": sconn.PresentedAlias,
		"require_secure":     sconn.RequireSecure,
	}
}

// explainError logs hints to solve common failures.
func explainError(account *config.Account, err error) {
	var rejected *trust.CertificateRejectedError
	switch {
	case errors.As(err, &rejected):
		log.Warnf("the certificate of %s:%d is not trusted: %v", rejected.Host, rejected.Port, rejected.Err)
		log.Warnf("if you trust it anyway, use: mailtls trust add %s %d --cert FILE", rejected.Host, rejected.Port)
	case errors.Is(err, starttls.ErrStartTLSNotSupported):
		log.Warnf("%s does not support STARTTLS; not falling back to plaintext", account.Host)
	case errors.Is(err, securechannel.ErrNoMatchingAlias):
		log.Warn("no stored client certificate matches the server request; use: mailtls certs import")
	case errors.Is(err, securechannel.ErrUnsupportedPlatform):
		log.Warn("client certificates are not supported on this platform")
	default:
		log.Warnf("connecting failed with a %q error", securechannel.Classify(err))
	}
}
