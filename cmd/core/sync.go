package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	syncpkg "github.com/kimhsiao/resaletally/internal/sync"
)

func newSyncCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Upload local data now",
		Long:  "Upload the local snapshot to the remote store. Unchanged data is not sent again.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open(cmd)
			if err != nil {
				return err
			}
			result, err := a.Client.Upload(cmd.Context())
			if err != nil {
				return err
			}
			return c.print(cmd.OutOrStdout(), result, func() {
				out := cmd.OutOrStdout()
				if result.Skipped {
					fmt.Fprintln(out, "Already up to date.")
					return
				}
				fmt.Fprintf(out, "Uploaded as %s (version %d) in %s\n",
					a.Session.UserID(), a.Session.SyncVersion(), result.Duration.Round(time.Millisecond))
			})
		},
	}
}

func newDownloadCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "download",
		Short: "Merge the remote copy into local data",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open(cmd)
			if err != nil {
				return err
			}
			result, err := a.Client.Download(cmd.Context())
			if err != nil {
				return err
			}
			return c.print(cmd.OutOrStdout(), result, func() {
				printResult(cmd, result)
			})
		},
	}
}

func newLoginCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "login CODE",
		Short: "Switch to another user code and merge its data",
		Long: `Switch this device to another 6 character user code. Local data is backed
up first, then merged with the data stored under CODE. On failure the
previous code and data are restored.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open(cmd)
			if err != nil {
				return err
			}
			if err := a.Client.Login(cmd.Context(), args[0]); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Now using user code %s\n", a.Session.UserID())
			if hash := a.Session.BackupHash(); hash != "" {
				fmt.Fprintf(out, "Previous data backed up as %s\n", hash[:12])
			}
			return nil
		},
	}
}

type statusView struct {
	UserID       string                   `json:"userId"`
	DeviceID     string                   `json:"deviceId"`
	Enabled      bool                     `json:"enabled"`
	Backend      string                   `json:"backend"`
	LastSync     *time.Time               `json:"lastSync,omitempty"`
	SyncVersion  int64                    `json:"syncVersion"`
	QueuedItems  int                      `json:"queuedItems"`
	BackupHash   string                   `json:"backupHash,omitempty"`
	RecentErrors []syncpkg.SyncErrorEntry `json:"recentErrors,omitempty"`
}

func newStatusCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show sync identity and state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open(cmd)
			if err != nil {
				return err
			}
			view := statusView{
				UserID:       a.Session.UserID(),
				DeviceID:     a.Session.DeviceID(),
				Enabled:      a.Session.Enabled() && a.Config.Sync.Enabled,
				Backend:      a.Config.Remote.Backend,
				LastSync:     a.Client.LastSync(),
				SyncVersion:  a.Session.SyncVersion(),
				QueuedItems:  a.Queue.Len(),
				BackupHash:   a.Session.BackupHash(),
				RecentErrors: a.Client.ErrorHistory(),
			}
			return c.print(cmd.OutOrStdout(), view, func() {
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "User code:    %s\n", view.UserID)
				fmt.Fprintf(out, "Device:       %s\n", view.DeviceID)
				fmt.Fprintf(out, "Sync enabled: %t\n", view.Enabled)
				fmt.Fprintf(out, "Backend:      %s\n", view.Backend)
				if view.LastSync != nil {
					fmt.Fprintf(out, "Last sync:    %s\n", view.LastSync.Local().Format("2006-01-02 15:04:05"))
				} else {
					fmt.Fprintln(out, "Last sync:    never")
				}
				fmt.Fprintf(out, "Version:      %d\n", view.SyncVersion)
				fmt.Fprintf(out, "Queued:       %d\n", view.QueuedItems)
			})
		},
	}
}

func printResult(cmd *cobra.Command, result *syncpkg.SyncResult) {
	out := cmd.OutOrStdout()
	if result.FirstSync {
		fmt.Fprintln(out, "No remote data yet; local data uploaded.")
		return
	}
	fmt.Fprintf(out, "Downloaded %d, uploaded %d, conflicts %d (%s)\n",
		result.Downloaded, result.Uploaded, result.Conflicts, result.Duration.Round(time.Millisecond))
}
