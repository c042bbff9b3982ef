package main

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/use-agent/racefetch/app"
	"github.com/use-agent/racefetch/config"
)

// stackBuilder creates the racing stack for a command.
type stackBuilder func(*config.Config) (*app.Stack, error)

type rootOptions struct {
	configPath string
	logLevel   string
	build      stackBuilder
}

func newRootCmd(build stackBuilder) *cobra.Command {
	opts := &rootOptions{build: build}

	root := &cobra.Command{
		Use:   "racectl",
		Short: "Acquire documents by racing retrieval strategies",
		Long: `racectl fetches a URL through every configured strategy at once
(direct, proxy, relays, headless browser) and keeps the first response that
passes the chosen validation gate.

Configuration comes from RACEFETCH_* environment variables, optionally
overlaid by a YAML file passed with --config.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "YAML config file")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")

	root.AddCommand(
		newGetCmd(opts),
		newStrategiesCmd(opts),
		newBenchCmd(opts),
	)
	return root
}

// loadConfig reads the configuration and installs a text logger on stderr so
// stdout carries only documents.
func (o *rootOptions) loadConfig() (*config.Config, error) {
	cfg := config.Load()
	if o.configPath != "" {
		var err error
		if cfg, err = config.LoadFile(o.configPath); err != nil {
			return nil, err
		}
	}
	cfg.Log = config.LogConfig{Level: o.logLevel, Format: "text"}
	app.InitLogger(cfg.Log, os.Stderr)
	return cfg, nil
}
