package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kimhsiao/resaletally/internal/config"
)

func newConfigCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or create configuration",
	}

	var (
		path  string
		force bool
	)
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a config file with default values",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			target := path
			if target == "" {
				target = config.DefaultPath()
			}
			if err := config.WriteFile(target, config.Default(), force); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", target)
			return nil
		},
	}
	initCmd.Flags().StringVar(&path, "path", "", "output path (default: ~/.resaletally/resaletally.yaml)")
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			shown := *cfg
			shown.Remote.PostgREST.APIKey = mask(shown.Remote.PostgREST.APIKey)
			shown.Remote.Postgres.DSN = mask(shown.Remote.Postgres.DSN)
			shown.Remote.S3.SecretKey = mask(shown.Remote.S3.SecretKey)
			out := cmd.OutOrStdout()
			return c.print(out, shown, func() {
				fmt.Fprintf(out, "data_dir:     %s\n", shown.DataDir)
				fmt.Fprintf(out, "listen_addr:  %s\n", shown.ListenAddr)
				fmt.Fprintf(out, "backend:      %s\n", shown.Remote.Backend)
				fmt.Fprintf(out, "sync.enabled: %t\n", shown.Sync.Enabled)
				fmt.Fprintf(out, "debounce:     %s\n", shown.Sync.DebounceDelay)
				fmt.Fprintf(out, "periodic:     %s\n", shown.Sync.PeriodicInterval)
			})
		},
	}

	cmd.AddCommand(initCmd, showCmd)
	return cmd
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	return "********"
}
