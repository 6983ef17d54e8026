// Package main is factoryctl, the operator CLI for factory_os: project
// scaffolding, schema migrations and seed data.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/R3E-Network/factory_os/internal/app"
	"github.com/R3E-Network/factory_os/internal/cli"
	"github.com/R3E-Network/factory_os/internal/config"
	"github.com/R3E-Network/factory_os/internal/logging"
)

type rootOptions struct {
	envFile     string
	databaseURL string
	logLevel    string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "factoryctl",
		Short:         "factoryctl - manage factory_os projects and databases",
		Version:       app.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", config.DefaultEnvFile, "optional .env file")
	root.PersistentFlags().StringVar(&opts.databaseURL, "database-url", "", "database URL (overrides DATABASE_URL)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "log level")

	root.AddCommand(initCmd(opts))
	root.AddCommand(migrateCmd(opts))
	root.AddCommand(seedCmd(opts))
	root.AddCommand(hashPasswordCmd())
	root.AddCommand(versionCmd())
	return root
}

// load reads the configuration and applies the persistent flag overrides.
func (o *rootOptions) load() (*config.Config, error) {
	cfg, err := config.Load(o.envFile)
	if err != nil {
		return nil, err
	}
	if o.databaseURL != "" {
		cfg.Database.URL = o.databaseURL
	}
	return cfg, nil
}

func (o *rootOptions) logger(cmd *cobra.Command) *logging.Logger {
	log := logging.New("factoryctl", o.logLevel, "text")
	log.SetOutput(cmd.ErrOrStderr())
	return log
}

func printer(cmd *cobra.Command) *cli.Printer {
	return cli.NewPrinter(cmd.OutOrStdout())
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the factoryctl version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", app.ServiceName, app.Version)
		},
	}
}
