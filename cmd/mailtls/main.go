// Command mailtls opens TLS channels with mail servers and manages the
// client certificates and the trust exceptions used by these channels.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/apex/log"
	"github.com/mailtls/mailtls/internal/log/handlers/cli"
	"github.com/spf13/cobra"
)

// Options contains the options you can set from the CLI.
type Options struct {
	ConfigFile string
	HomeDir    string
	Verbose    bool
}

// main is the main function of mailtls.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	var globalOptions Options
	rootCmd := newRootCommand(&globalOptions)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.WithError(err).Error("mailtls failed")
		stop()
		os.Exit(1)
	}
}

// newRootCommand creates the root command and registers the subcommands.
func newRootCommand(globalOptions *Options) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "mailtls",
		Short:         "mailtls opens TLS channels with mail servers",
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			log.SetHandler(cli.Default)
			setLogLevel(globalOptions.Verbose, "info")
		},
	}
	flags := rootCmd.PersistentFlags()

	flags.StringVarP(
		&globalOptions.ConfigFile,
		"config",
		"c",
		"",
		"path to the config file (default: \"$MAILTLS_HOME/config.json\")",
	)

	flags.StringVar(
		&globalOptions.HomeDir,
		"home",
		"",
		"force specific home directory",
	)

	flags.BoolVarP(
		&globalOptions.Verbose,
		"verbose",
		"v",
		false,
		"increase verbosity level",
	)

	registerConnect(rootCmd, globalOptions)
	registerAccount(rootCmd, globalOptions)
	registerCerts(rootCmd, globalOptions)
	registerTrust(rootCmd, globalOptions)
	return rootCmd
}

// setLogLevel sets the log level using the --verbose flag or the
// log_level config setting.
func setLogLevel(verbose bool, level string) {
	if verbose {
		log.SetLevel(log.DebugLevel)
		return
	}
	parsed, err := log.ParseLevel(level)
	if err != nil {
		parsed = log.InfoLevel
	}
	log.SetLevel(parsed)
}
