// Package cli implements the supplycache command line, an inspection tool over a
// persistent (sqlite) cache store.
package cli

import (
	"fmt"
	"os"

	"github.com/goliatone/go-supply-cache/cache"
	"github.com/goliatone/go-supply-cache/pkg/di"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type options struct {
	configPath string
	dsn        string
	verbose    bool
}

// NewRootCmd builds the command tree. Every subcommand opens its own container from the
// persistent flags and closes it when done.
func NewRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "supplycache",
		Short:         "Inspect and maintain the supply cache store",
		Long:          `A command-line utility for inspecting cached listings, stale markers, invalidation rules and the offline queue.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Path to a TOML or YAML config file")
	root.PersistentFlags().StringVar(&opts.dsn, "dsn", "", "SQLite DSN of the cache store (overrides the config)")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Verbose debug output to stderr")

	root.AddCommand(
		newKeysCmd(opts),
		newStaleCmd(opts),
		newRulesCmd(opts),
		newClearCmd(opts),
		newSweepCmd(opts),
		newQueueCmd(opts),
		newDeadLettersCmd(opts),
	)
	return root
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func (o *options) config() (di.Config, error) {
	config := di.DefaultConfig()
	if o.configPath != "" {
		loaded, err := di.LoadConfig(o.configPath)
		if err != nil {
			return di.Config{}, err
		}
		config = loaded
	}
	if o.dsn != "" {
		config.Store.Backend = cache.BackendSQLite
		config.Store.DSN = o.dsn
	}
	return config, nil
}

func (o *options) logger() *zap.Logger {
	if !o.verbose {
		return zap.NewNop()
	}
	logger, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// withContainer opens a container, runs fn and closes the container.
func (o *options) withContainer(fn func(c *di.Container) error) error {
	config, err := o.config()
	if err != nil {
		return err
	}

	logger := o.logger()
	defer logger.Sync() //nolint:errcheck

	container, err := di.NewContainer(config, di.WithLogger(logger))
	if err != nil {
		return err
	}

	if err := fn(container); err != nil {
		container.Close()
		return err
	}
	return container.Close()
}
