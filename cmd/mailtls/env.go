package main

import (
	"os"
	"time"

	"github.com/apex/log"
	"github.com/mailtls/mailtls/config"
	"github.com/mailtls/mailtls/internal/credstore"
	"github.com/mailtls/mailtls/internal/kvstore"
	"github.com/mailtls/mailtls/internal/netxlite"
	"github.com/mailtls/mailtls/internal/securechannel"
	"github.com/mailtls/mailtls/internal/session"
	"github.com/mailtls/mailtls/internal/trust"
	"github.com/mailtls/mailtls/utils"
)

// environment contains the state shared by the subcommands.
type environment struct {
	config      *config.Config
	credentials *credstore.FS
	exceptions  *trust.Exceptions
}

// newEnvironment reads the config and opens the stores.
func newEnvironment(globalOptions *Options) (*environment, error) {
	home := globalOptions.HomeDir
	if home != "" {
		// the config defaults are relative to the home directory
		if err := os.Setenv("MAILTLS_HOME", home); err != nil {
			return nil, err
		}
	} else {
		var err error
		if home, err = utils.GetHome(); err != nil {
			return nil, err
		}
	}
	if err := os.MkdirAll(home, 0700); err != nil {
		return nil, err
	}
	configPath := globalOptions.ConfigFile
	if configPath == "" {
		configPath = utils.ConfigPath(home)
	}
	cfg, err := config.ReadOrCreateConfig(configPath)
	if err != nil {
		return nil, err
	}
	setLogLevel(globalOptions.Verbose, cfg.LogLevel)
	credentials, err := credstore.NewFSWithDir(cfg.CredentialStoreDir)
	if err != nil {
		return nil, err
	}
	trustKVS, err := kvstore.NewFS(cfg.TrustStoreDir)
	if err != nil {
		return nil, err
	}
	env := &environment{
		config:      cfg,
		credentials: credentials,
		exceptions:  trust.NewExceptions(trustKVS),
	}
	return env, nil
}

// newSession creates a session using the given handshake timeout. A zero
// timeout means using the config's timeout.
func (env *environment) newSession(timeout time.Duration) *session.Session {
	if timeout <= 0 {
		timeout = env.config.HandshakeTimeoutDuration()
	}
	provider := &trust.Provider{
		Exceptions: env.exceptions,
		Logger:     log.Log,
	}
	builder := securechannel.NewBuilder(env.credentials, provider, log.Log)
	builder.Dialer = netxlite.NewDialerWithTimeout(log.Log, timeout)
	builder.Handshaker = netxlite.NewTLSHandshakerStdlibWithTimeout(log.Log, timeout)
	builder.MinTLSVersion = env.config.MinTLSVersion
	return &session.Session{
		Builder:  builder,
		Logger:   log.Log,
		Selector: newSurveySelector(),
	}
}
