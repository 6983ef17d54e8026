package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/R3E-Network/factory_os/internal/app/services/devices"
	"github.com/R3E-Network/factory_os/internal/app/storage/sqlstore"
	"github.com/R3E-Network/factory_os/internal/platform/database"
	"github.com/R3E-Network/factory_os/internal/platform/migrations"
	"github.com/R3E-Network/factory_os/internal/scaffold"
)

func seedCmd(root *rootOptions) *cobra.Command {
	var (
		manifestPath string
		migrate      bool
	)

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Insert seed devices (CNC-001 unless a manifest lists others)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			seeds := []scaffold.SeedDevice{scaffold.MockDevice}
			if manifestPath != "" {
				m, err := scaffold.LoadManifest(manifestPath)
				if err != nil {
					return err
				}
				if err := m.Normalize(); err != nil {
					return err
				}
				seeds = m.Devices
			}

			cfg, err := root.load()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			db, err := database.Open(ctx, database.Config{URL: cfg.Database.URL})
			if err != nil {
				return err
			}
			defer db.Close()

			if migrate {
				if err := migrations.Apply(ctx, db.DB); err != nil {
					return err
				}
			}

			svc := devices.New(sqlstore.New(db), root.logger(cmd))
			p := printer(cmd)
			for _, seed := range seeds {
				saved, err := svc.Save(ctx, seed.Device())
				if err != nil {
					return fmt.Errorf("seed %s: %w", seed.Name, err)
				}
				p.Success("Seeded device %d %s (%s, %s)", saved.ID, saved.Name, saved.Status, saved.FactoryID)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&manifestPath, "manifest", "f", "", "YAML manifest whose devices are seeded")
	cmd.Flags().BoolVar(&migrate, "migrate", true, "create the devices table when missing")
	return cmd
}
