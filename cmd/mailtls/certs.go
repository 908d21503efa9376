package main

import (
	"errors"
	"os"
	"time"

	"github.com/apex/log"
	"github.com/mailtls/mailtls/internal/trust"
	"github.com/spf13/cobra"
)

// certsImportOptions contains the options of certs import.
type certsImportOptions struct {
	CertFile string
	KeyFile  string
	PKCS12   string
	Password string
}

// registerCerts registers the certs subcommand
func registerCerts(rootCmd *cobra.Command, globalOptions *Options) {
	subCmd := &cobra.Command{
		Use:   "certs",
		Short: "Manages the client certificates",
		Args:  cobra.NoArgs,
	}
	rootCmd.AddCommand(subCmd)

	var options certsImportOptions
	importCmd := &cobra.Command{
		Use:   "import ALIAS",
		Short: "Imports a client certificate and its private key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return certsImportMain(globalOptions, &options, args[0])
		},
	}
	flags := importCmd.Flags()
	flags.StringVar(&options.CertFile, "cert", "", "PEM file containing the certificate chain")
	flags.StringVar(&options.KeyFile, "key", "", "PEM file containing the private key")
	flags.StringVar(&options.PKCS12, "pkcs12", "", "PKCS#12 file containing chain and key")
	flags.StringVar(&options.Password, "password", "", "password of the PKCS#12 file")
	importCmd.MarkFlagsRequiredTogether("cert", "key")
	importCmd.MarkFlagsMutuallyExclusive("cert", "pkcs12")
	importCmd.MarkFlagsOneRequired("cert", "pkcs12")
	subCmd.AddCommand(importCmd)

	subCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "Lists the client certificates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return certsListMain(globalOptions)
		},
	})

	subCmd.AddCommand(&cobra.Command{
		Use:   "delete ALIAS",
		Short: "Deletes a client certificate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := newEnvironment(globalOptions)
			if err != nil {
				return err
			}
			if err := env.credentials.Delete(args[0]); err != nil {
				return err
			}
			log.Infof("deleted %s", args[0])
			return nil
		},
	})
}

func certsImportMain(globalOptions *Options, options *certsImportOptions, alias string) error {
	env, err := newEnvironment(globalOptions)
	if err != nil {
		return err
	}
	switch {
	case options.PKCS12 != "":
		pfx, err := os.ReadFile(options.PKCS12)
		if err != nil {
			return err
		}
		err = env.credentials.ImportPKCS12(alias, pfx, options.Password)
		if err != nil {
			return err
		}
	case options.CertFile != "" && options.KeyFile != "":
		certPEM, err := os.ReadFile(options.CertFile)
		if err != nil {
			return err
		}
		keyPEM, err := os.ReadFile(options.KeyFile)
		if err != nil {
			return err
		}
		if err := env.credentials.Import(alias, certPEM, keyPEM); err != nil {
			return err
		}
	default:
		return errors.New("either --cert and --key or --pkcs12 are required")
	}
	log.Infof("imported %s", alias)
	return nil
}

func certsListMain(globalOptions *Options) error {
	env, err := newEnvironment(globalOptions)
	if err != nil {
		return err
	}
	aliases, err := env.credentials.Aliases()
	if err != nil {
		return err
	}
	if len(aliases) <= 0 {
		log.Info("no client certificates")
		return nil
	}
	for _, alias := range aliases {
		chain, err := env.credentials.CertificateChain(alias)
		if err != nil {
			log.Warnf("cannot load %s: %s", alias, err.Error())
			continue
		}
		leaf := chain[0]
		log.WithFields(log.Fields{
			"type":        "table",
			"alias":       alias,
			"subject":     leaf.Subject.String(),
			"issuer":      leaf.Issuer.String(),
			"not_after":   leaf.NotAfter.Format(time.RFC3339),
			"fingerprint": trust.Fingerprint(leaf),
		}).Info("certificate")
	}
	return nil
}
