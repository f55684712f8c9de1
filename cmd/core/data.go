package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/kimhsiao/resaletally/internal/models"
)

func newExportCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "export [FILE]",
		Short: "Export all local data as JSON",
		Long:  "Write a full snapshot of the local store to FILE, or to stdout when FILE is omitted or \"-\".",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open(cmd)
			if err != nil {
				return err
			}
			snapshot, err := a.Repo.ExportSnapshot()
			if err != nil {
				return err
			}

			var out io.Writer = cmd.OutOrStdout()
			if len(args) == 1 && args[0] != "-" {
				f, err := os.OpenFile(args[0], os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
				if err != nil {
					return fmt.Errorf("creating export file: %w", err)
				}
				defer f.Close()
				out = f
			}

			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			if err := enc.Encode(snapshot); err != nil {
				return fmt.Errorf("writing export: %w", err)
			}
			if len(args) == 1 && args[0] != "-" {
				fmt.Fprintf(cmd.OutOrStdout(), "Exported %d sales to %s\n", len(snapshot.Sales), args[0])
			}
			return nil
		},
	}
}

func newImportCmd(c *cli) *cobra.Command {
	var upload bool

	cmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Replace local data with an exported JSON file",
		Long: `Replace local collections with those in FILE. Collections missing from the
file are left untouched. Use --sync to upload the result right away.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open(cmd)
			if err != nil {
				return err
			}

			raw, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading import file: %w", err)
			}
			var snapshot models.Snapshot
			if err := json.Unmarshal(raw, &snapshot); err != nil {
				return fmt.Errorf("parsing import file: %w", err)
			}
			if err := a.Repo.ImportSnapshot(&snapshot); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d sales, %d materials\n", len(snapshot.Sales), len(snapshot.Materials))

			if upload {
				if _, err := a.Client.Upload(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Uploaded.")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&upload, "sync", false, "upload after importing")
	return cmd
}

func newRestoreCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "restore [HASH]",
		Short: "List login backups or restore one",
		Long: `Without arguments, list the backups taken before each login. With HASH
(or a unique prefix of it), replace local data with that backup.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open(cmd)
			if err != nil {
				return err
			}
			backups, err := a.Backups.List()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if len(args) == 0 {
				return c.print(out, backups, func() {
					if len(backups) == 0 {
						fmt.Fprintln(out, "No backups.")
						return
					}
					w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
					fmt.Fprintln(w, "HASH\tSIZE\tTAKEN")
					for _, b := range backups {
						marker := ""
						if b.Hash == a.Session.BackupHash() {
							marker = " *"
						}
						fmt.Fprintf(w, "%s%s\t%d\t%s\n", b.Hash[:12], marker, b.Size,
							time.Unix(b.ModTime, 0).Format("2006-01-02 15:04"))
					}
					w.Flush()
				})
			}

			var match string
			for _, b := range backups {
				if strings.HasPrefix(b.Hash, args[0]) {
					if match != "" {
						return fmt.Errorf("backup prefix %q is ambiguous", args[0])
					}
					match = b.Hash
				}
			}
			if match == "" {
				return fmt.Errorf("no backup matches %q", args[0])
			}
			if err := a.Client.RestoreBackup(match); err != nil {
				return err
			}
			fmt.Fprintf(out, "Restored backup %s\n", match[:12])
			return nil
		},
	}
}

func newConflictsCmd(c *cli) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "conflicts",
		Short: "Show recent merge conflicts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open(cmd)
			if err != nil {
				return err
			}
			logs, err := a.Repo.ListConflictLogs(limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			return c.print(out, logs, func() {
				if len(logs) == 0 {
					fmt.Fprintln(out, "No conflicts recorded.")
					return
				}
				w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "DETECTED\tCOLLECTION\tITEM\tRESOLUTION\tPOLICY")
				for _, l := range logs {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
						l.DetectedAtTime().Local().Format("2006-01-02 15:04:05"),
						l.Collection, l.ItemID, l.Resolution, l.Policy)
				}
				w.Flush()
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of entries to show")
	return cmd
}
