// Package cli implements the gatekeeper command line.
package cli

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/vitalvas/gatekeeper/config"
)

type globalOptions struct {
	configFile string
	envFiles   []string
	logLevel   string
}

func (o *globalOptions) bind(fs *pflag.FlagSet) {
	fs.StringVarP(&o.configFile, "config", "c", "", "config file path (env: GATEKEEPER_CONFIG)")
	fs.StringSliceVar(&o.envFiles, "env-file", []string{".env"}, "dotenv files loaded before GATEKEEPER_* overrides")
	fs.StringVar(&o.logLevel, "log-level", "", "override log.level")
}

// load reads the configuration and applies command line overrides.
func (o *globalOptions) load() (*config.Config, *logrus.Logger, error) {
	path := o.configFile
	if path == "" {
		path = os.Getenv("GATEKEEPER_CONFIG")
	}

	cfg, err := config.Load(path, o.envFiles...)
	if err != nil {
		return nil, nil, err
	}

	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}

	logger, err := config.NewLogger(cfg.Log)
	if err != nil {
		return nil, nil, fmt.Errorf("log level: %w", err)
	}

	return cfg, logger, nil
}

// NewRootCmd creates the gatekeeper root command.
func NewRootCmd() *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:   "gatekeeper",
		Short: "gatekeeper - request admission for HTTP services",
		Long: `gatekeeper admits HTTP requests through three independent stages:
per-client token bucket rate limiting, bearer token validation and
request signature verification.

Configuration precedence (highest to lowest):
  1. Command-line flags
  2. Environment variables (GATEKEEPER_*), including dotenv files
  3. Configuration file`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	opts.bind(rootCmd.PersistentFlags())

	rootCmd.AddCommand(
		newServeCmd(opts),
		newTokenCmd(opts),
		newSignCmd(opts),
		newSecretCmd(),
	)

	return rootCmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
