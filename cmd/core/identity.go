package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newIDCmd(c *cli) *cobra.Command {
	var regenerate bool

	cmd := &cobra.Command{
		Use:   "id",
		Short: "Show or regenerate the user code",
		Long: `Print the 6 character user code. Enter it on another device with
"resaletally login CODE" to share data. --new issues a fresh code; data
under the old code stays in the remote store.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open(cmd)
			if err != nil {
				return err
			}
			code := a.Session.UserID()
			if regenerate {
				if code, err = a.Session.RegenerateUserID(); err != nil {
					return err
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), code)
			return nil
		},
	}

	cmd.Flags().BoolVar(&regenerate, "new", false, "generate a new user code")
	return cmd
}

func newQueueCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Show the offline sync queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open(cmd)
			if err != nil {
				return err
			}
			items := a.Queue.List()
			out := cmd.OutOrStdout()

			type row struct {
				ID        string `json:"id"`
				Action    string `json:"action"`
				Timestamp string `json:"timestamp"`
				Sales     int    `json:"sales"`
			}
			rows := make([]row, 0, len(items))
			for _, it := range items {
				r := row{ID: it.ID, Action: string(it.Action), Timestamp: it.Timestamp.Format("2006-01-02 15:04:05")}
				if it.Snapshot != nil {
					r.Sales = len(it.Snapshot.Sales)
				}
				rows = append(rows, r)
			}

			return c.print(out, rows, func() {
				if len(rows) == 0 {
					fmt.Fprintln(out, "Queue is empty.")
					return
				}
				for _, r := range rows {
					fmt.Fprintf(out, "%s  %s  %s  (%d sales)\n", r.Timestamp, r.Action, r.ID, r.Sales)
				}
			})
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "drain",
		Short: "Upload queued snapshots now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open(cmd)
			if err != nil {
				return err
			}
			n, err := a.Scheduler.DrainQueue(cmd.Context())
			fmt.Fprintf(cmd.OutOrStdout(), "Drained %d item(s)\n", n)
			return err
		},
	}, &cobra.Command{
		Use:   "clear",
		Short: "Discard queued snapshots",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open(cmd)
			if err != nil {
				return err
			}
			n := a.Queue.Len()
			if err := a.Queue.Clear(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d item(s)\n", n)
			return nil
		},
	})
	return cmd
}
