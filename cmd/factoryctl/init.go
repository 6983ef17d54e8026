package main

import (
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/R3E-Network/factory_os/internal/scaffold"
)

func initCmd(root *rootOptions) *cobra.Command {
	var (
		manifestPath string
		manifest     scaffold.Manifest
		dir          string
		force        bool
		skipInstall  bool
	)

	cmd := &cobra.Command{
		Use:   "init [dir]",
		Short: "Generate a standalone factory backend project",
		Long: `Generate a standalone factory backend project from the embedded templates.

Project parameters come from a YAML manifest (--manifest) or from flags.
Flags that are set explicitly win over the manifest.

Examples:
  factoryctl init plant-a --module github.com/acme/plant-a --location TW_01
  factoryctl init --manifest factory.yaml --force`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m := scaffold.Manifest{}
			if manifestPath != "" {
				loaded, err := scaffold.LoadManifest(manifestPath)
				if err != nil {
					return err
				}
				m = loaded
			}
			flags := cmd.Flags()
			if flags.Changed("name") {
				m.Name = manifest.Name
			}
			if flags.Changed("module") {
				m.Module = manifest.Module
			}
			if flags.Changed("location") {
				m.FactoryLocation = manifest.FactoryLocation
			}
			if flags.Changed("port") {
				m.Port = manifest.Port
			}
			if len(args) == 1 {
				dir = args[0]
			}
			if m.Name == "" && dir != "" {
				if abs, err := filepath.Abs(dir); err == nil {
					m.Name = strings.ToLower(filepath.Base(abs))
				}
			}

			gen := &scaffold.Generator{
				Dir:         dir,
				Force:       force,
				SkipInstall: skipInstall,
				Runner:      scaffold.ExecRunner{Stdout: cmd.OutOrStdout(), Stderr: cmd.ErrOrStderr()},
				Printer:     printer(cmd),
				Logger:      root.logger(cmd),
			}
			_, err := gen.Generate(cmd.Context(), m)
			return err
		},
	}

	cmd.Flags().StringVarP(&manifestPath, "manifest", "f", "", "YAML manifest with project parameters")
	cmd.Flags().StringVar(&manifest.Name, "name", "", "project name (default target dir name or "+scaffold.DefaultName+")")
	cmd.Flags().StringVar(&manifest.Module, "module", "", "Go module path (default example.com/<name>)")
	cmd.Flags().StringVar(&manifest.FactoryLocation, "location", "", "factory location")
	cmd.Flags().IntVar(&manifest.Port, "port", 0, "HTTP port of the generated server")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing files")
	cmd.Flags().BoolVar(&skipInstall, "skip-install", false, "do not run go mod tidy")
	return cmd
}
