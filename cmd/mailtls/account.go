package main

import (
	"net"
	"strconv"

	"github.com/apex/log"
	"github.com/mailtls/mailtls/internal/session"
	"github.com/spf13/cobra"
)

// registerAccount registers the account subcommand
func registerAccount(rootCmd *cobra.Command, globalOptions *Options) {
	subCmd := &cobra.Command{
		Use:   "account",
		Short: "Uses the accounts in the config file",
		Args:  cobra.NoArgs,
	}
	rootCmd.AddCommand(subCmd)

	subCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "Lists the configured accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return accountListMain(globalOptions)
		},
	})

	subCmd.AddCommand(&cobra.Command{
		Use:   "connect NAME",
		Short: "Connects using a configured account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := newEnvironment(globalOptions)
			if err != nil {
				return err
			}
			account, err := env.config.Account(args[0])
			if err != nil {
				return err
			}
			sess := env.newSession(0)
			sess.Saver = session.ConfigAliasSaver(env.config)
			return connectAccount(cmd.Context(), sess, account)
		},
	})
}

func accountListMain(globalOptions *Options) error {
	env, err := newEnvironment(globalOptions)
	if err != nil {
		return err
	}
	if len(env.config.Accounts) <= 0 {
		log.Infof("no accounts in %s", env.config.Path())
		return nil
	}
	for _, account := range env.config.Accounts {
		log.WithFields(log.Fields{
			"type":     "table",
			"name":     account.Name,
			"endpoint": net.JoinHostPort(account.Host, strconv.Itoa(account.Port)),
			"security": account.Security,
			"alias":    account.ClientCertificateAlias,
			"select":   account.SelectClientCertificate,
		}).Info("account")
	}
	return nil
}
