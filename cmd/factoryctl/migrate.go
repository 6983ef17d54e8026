package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/R3E-Network/factory_os/internal/platform/database"
	"github.com/R3E-Network/factory_os/internal/platform/migrations"
)

func migrateCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the devices schema",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd.Context(), root, func(mg *migrations.Migrator) error {
				if err := mg.Up(); err != nil {
					return fmt.Errorf("migrate up: %w", err)
				}
				return reportVersion(cmd, mg)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down [steps]",
		Short: "Roll back migrations (all when steps is omitted)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			steps := 0
			if len(args) == 1 {
				n, err := strconv.Atoi(args[0])
				if err != nil || n <= 0 {
					return fmt.Errorf("steps must be a positive integer, got %q", args[0])
				}
				steps = n
			}
			return withMigrator(cmd.Context(), root, func(mg *migrations.Migrator) error {
				if err := mg.Down(steps); err != nil {
					return fmt.Errorf("migrate down: %w", err)
				}
				return reportVersion(cmd, mg)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the applied schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd.Context(), root, func(mg *migrations.Migrator) error {
				return reportVersion(cmd, mg)
			})
		},
	})
	return cmd
}

func withMigrator(ctx context.Context, root *rootOptions, fn func(*migrations.Migrator) error) error {
	cfg, err := root.load()
	if err != nil {
		return err
	}
	driver, _, err := database.ParseURL(cfg.Database.URL)
	if err != nil {
		return err
	}
	db, err := database.Open(ctx, database.Config{URL: cfg.Database.URL})
	if err != nil {
		return err
	}

	mg, err := migrations.NewMigrator(db.DB, driver)
	if err != nil {
		db.Close()
		return err
	}
	defer mg.Close()
	return fn(mg)
}

func reportVersion(cmd *cobra.Command, mg *migrations.Migrator) error {
	v, dirty, err := mg.Version()
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	p := printer(cmd)
	switch {
	case dirty:
		p.Warning("schema version %d (dirty)", v)
	case v == 0:
		p.Info("no migrations applied")
	default:
		p.Success("schema version %d", v)
	}
	return nil
}
