package main

import (
	"crypto/x509"
	"encoding/pem"
	"errors"
	"os"
	"strconv"

	"github.com/apex/log"
	"github.com/mailtls/mailtls/internal/securechannel"
	"github.com/mailtls/mailtls/internal/trust"
	"github.com/spf13/cobra"
)

// errNoCertificate indicates that a PEM file contains no certificate.
var errNoCertificate = errors.New("no CERTIFICATE block in file")

// registerTrust registers the trust subcommand
func registerTrust(rootCmd *cobra.Command, globalOptions *Options) {
	subCmd := &cobra.Command{
		Use:   "trust",
		Short: "Manages the server certificates trusted despite verification failures",
		Args:  cobra.NoArgs,
	}
	rootCmd.AddCommand(subCmd)

	var certFile string
	addCmd := &cobra.Command{
		Use:   "add HOST PORT",
		Short: "Trusts the given server certificate for HOST and PORT",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return trustAddMain(globalOptions, certFile, args[0], args[1])
		},
	}
	addCmd.Flags().StringVar(&certFile, "cert", "", "PEM file containing the server certificate")
	_ = addCmd.MarkFlagRequired("cert")
	subCmd.AddCommand(addCmd)

	subCmd.AddCommand(&cobra.Command{
		Use:   "list HOST PORT",
		Short: "Lists the fingerprints trusted for HOST and PORT",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return trustListMain(globalOptions, args[0], args[1])
		},
	})

	subCmd.AddCommand(&cobra.Command{
		Use:   "remove HOST PORT FINGERPRINT",
		Short: "Stops trusting the given fingerprint for HOST and PORT",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, dest, err := newTrustEnvironment(globalOptions, args[0], args[1])
			if err != nil {
				return err
			}
			return env.exceptions.Remove(dest.Host, dest.Port, args[2])
		},
	})
}

// newTrustEnvironment creates the environment and the destination.
func newTrustEnvironment(globalOptions *Options, host, port string) (*environment, securechannel.Destination, error) {
	portnum, err := strconv.Atoi(port)
	if err != nil {
		return nil, securechannel.Destination{}, err
	}
	dest, err := securechannel.NewDestination(host, portnum)
	if err != nil {
		return nil, securechannel.Destination{}, err
	}
	env, err := newEnvironment(globalOptions)
	if err != nil {
		return nil, securechannel.Destination{}, err
	}
	return env, dest, nil
}

// readLeafCertificate returns the first certificate in a PEM file.
func readLeafCertificate(path string) (*x509.Certificate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	for {
		var block *pem.Block
		block, data = pem.Decode(data)
		if block == nil {
			return nil, errNoCertificate
		}
		if block.Type == "CERTIFICATE" {
			return x509.ParseCertificate(block.Bytes)
		}
	}
}

func trustAddMain(globalOptions *Options, certFile, host, port string) error {
	env, dest, err := newTrustEnvironment(globalOptions, host, port)
	if err != nil {
		return err
	}
	cert, err := readLeafCertificate(certFile)
	if err != nil {
		return err
	}
	if err := env.exceptions.Add(dest.Host, dest.Port, cert); err != nil {
		return err
	}
	log.Infof("trusting %s for %s", trust.Fingerprint(cert), dest)
	return nil
}

func trustListMain(globalOptions *Options, host, port string) error {
	env, dest, err := newTrustEnvironment(globalOptions, host, port)
	if err != nil {
		return err
	}
	fingerprints, err := env.exceptions.List(dest.Host, dest.Port)
	if err != nil {
		return err
	}
	if len(fingerprints) <= 0 {
		log.Infof("no trusted certificates for %s", dest)
		return nil
	}
	for _, fingerprint := range fingerprints {
		log.WithFields(log.Fields{
			"type":        "table",
			"destination": dest.String(),
			"fingerprint": fingerprint,
		}).Info("exception")
	}
	return nil
}
