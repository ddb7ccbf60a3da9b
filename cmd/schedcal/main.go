package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"schedcal/internal/config"
	appLog "schedcal/internal/log"
	"schedcal/internal/store"
)

const version = "0.1.0-dev"

type rootOptions struct {
	configPath string
	logLevel   string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "schedcal",
		Short:         "Recurring schedules and reminder timers",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "schedcal.yaml", "Path to config file")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level (overrides config if set)")

	root.AddCommand(
		newServeCmd(opts),
		newExpandCmd(opts),
		newPlanCmd(opts),
		newAddCmd(opts),
		newExportCmd(opts),
		newImportCmd(opts),
		newStatsCmd(opts),
	)
	return root
}

// load reads the config and applies the log level. Every subcommand starts
// here.
func (o *rootOptions) load() (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", o.configPath, err)
	}
	level := cfg.LogLevel
	if o.logLevel != "" {
		level = o.logLevel
	}
	appLog.SetLevel(appLog.ParseLevel(level))
	return cfg, nil
}

func (o *rootOptions) loadWithStore() (*config.Config, *store.FileStore, error) {
	cfg, err := o.load()
	if err != nil {
		return nil, nil, err
	}
	st, err := store.Open(cfg.StorePath)
	if err != nil {
		return nil, nil, err
	}
	return cfg, st, nil
}
