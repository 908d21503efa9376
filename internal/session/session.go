package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/mailtls/mailtls/config"
	"github.com/mailtls/mailtls/internal/model"
	"github.com/mailtls/mailtls/internal/securechannel"
	"github.com/mailtls/mailtls/internal/starttls"
)

// ErrInvalidAccount indicates that an account cannot be used to connect.
var ErrInvalidAccount = errors.New("session: invalid account")

// AliasSaver persists the client certificate alias chosen for an account.
type AliasSaver interface {
	SaveAlias(ctx context.Context, account, alias string) error
}

// AliasSaverFunc adapts a func to the [AliasSaver] interface.
type AliasSaverFunc func(ctx context.Context, account, alias string) error

var _ AliasSaver = AliasSaverFunc(nil)

// SaveAlias implements AliasSaver.
func (fx AliasSaverFunc) SaveAlias(ctx context.Context, account, alias string) error {
	return fx(ctx, account, alias)
}

// ConfigAliasSaver returns an [AliasSaver] writing aliases back into c.
func ConfigAliasSaver(c *config.Config) AliasSaver {
	return AliasSaverFunc(func(ctx context.Context, account, alias string) error {
		return c.SaveAccountAlias(account, alias)
	})
}

// Session connects to mail accounts.
type Session struct {
	// Builder is the MANDATORY secure channel builder.
	Builder *securechannel.Builder

	// ClientName is the OPTIONAL name sent with SMTP's EHLO.
	ClientName string

	// Logger is the OPTIONAL logger.
	Logger model.Logger

	// NewAttemptID is the OPTIONAL factory for attempt IDs. When nil,
	// we use random UUIDs.
	NewAttemptID func() string

	// Saver is the OPTIONAL alias saver. When nil, we do not persist
	// the alias chosen interactively.
	Saver AliasSaver

	// Selector is the OPTIONAL alias selector. When nil, accounts
	// requiring interactive selection fail.
	Selector securechannel.AliasSelector
}

func (s *Session) logger() model.Logger {
	return model.ValidLoggerOrDefault(s.Logger)
}

func (s *Session) newAttemptID() string {
	if s.NewAttemptID != nil {
		return s.NewAttemptID()
	}
	return uuid.Must(uuid.NewRandom()).String()
}

func (s *Session) selector() securechannel.AliasSelector {
	if s.Selector != nil {
		return s.Selector
	}
	return securechannel.AliasSelectorFunc(func(ctx context.Context,
		request *securechannel.InteractiveSelectionRequiredError, candidates []string) (string, error) {
		return "", securechannel.ErrSelectionCancelled
	})
}

// Connect establishes a secure channel with account. When the account
// requires interactive selection, Connect may perform a second attempt
// using a fresh connection and saves the chosen alias with Saver. A
// failure to save the alias is logged and does not fail Connect.
func (s *Session) Connect(ctx context.Context, account *config.Account) (*securechannel.SecureConn, error) {
	if s.Builder == nil {
		return nil, fmt.Errorf("%w: no builder", ErrInvalidAccount)
	}
	dest, err := securechannel.NewDestination(account.Host, account.Port)
	if err != nil {
		return nil, err
	}
	var attempt securechannel.AttemptFunc
	switch account.Security {
	case config.SecurityTLS, "":
		attempt = func(ctx context.Context, mode securechannel.AliasMode) (*securechannel.SecureConn, error) {
			logger := s.attemptLogger(account, mode)
			logger.Infof("connecting to %s using tls...", dest)
			sconn, err := s.Builder.OpenDirectWithMode(ctx, dest, mode)
			logger.Infof("connecting to %s using tls... %s", dest, model.ErrorToStringOrOK(err))
			return sconn, err
		}
	case config.SecuritySTARTTLS:
		attempt = func(ctx context.Context, mode securechannel.AliasMode) (*securechannel.SecureConn, error) {
			logger := s.attemptLogger(account, mode)
			logger.Infof("connecting to %s using %s starttls...", dest, account.Protocol)
			sconn, err := s.upgrade(ctx, logger, account, dest, mode)
			logger.Infof("connecting to %s using %s starttls... %s",
				dest, account.Protocol, model.ErrorToStringOrOK(err))
			return sconn, err
		}
	default:
		return nil, fmt.Errorf("%w: unknown security %q", ErrInvalidAccount, account.Security)
	}

	interactive := account.SelectClientCertificate || securechannel.InteractiveSelectionRequired(ctx)
	mode := securechannel.SelectAliasMode(interactive, account.ClientCertificateAlias)
	sconn, alias, err := securechannel.RunWithSelection(
		ctx, mode, s.Builder.CredentialStore, s.selector(), s.logger(), attempt)
	if err != nil {
		return nil, err
	}
	if mode.Kind == securechannel.AliasModeInteractive && alias != "" && s.Saver != nil {
		if err := s.Saver.SaveAlias(ctx, account.Name, alias); err != nil {
			s.logger().Warnf("session: cannot save alias %q for %s: %s", alias, account.Name, err.Error())
		}
	}
	return sconn, nil
}

// upgrade dials dest, negotiates STARTTLS and upgrades the connection.
func (s *Session) upgrade(ctx context.Context, logger model.Logger, account *config.Account,
	dest securechannel.Destination, mode securechannel.AliasMode) (*securechannel.SecureConn, error) {
	conn, err := s.Builder.Dial(ctx, dest)
	if err != nil {
		return nil, err
	}
	opts := &starttls.Options{ClientName: s.ClientName, Logger: logger}
	if err := starttls.Negotiate(ctx, conn, account.Protocol, opts); err != nil {
		conn.Close()
		return nil, err
	}
	sconn, err := s.Builder.UpgradeInPlaceWithMode(ctx, conn, dest, account.RequireSecure, mode)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return sconn, nil
}

func (s *Session) attemptLogger(account *config.Account, mode securechannel.AliasMode) model.Logger {
	return &prefixLogger{
		Logger: s.logger(),
		prefix: fmt.Sprintf("[%s %s %s] ", account.Name, s.newAttemptID(), mode),
	}
}
