package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dmitrijs2005/shiftsync/internal/client/config"
)

// StatusCmd prints the sync status of the running daemon.
func StatusCmd(flags *config.Flags) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the sync status of the running daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := daemonClient(flags)
			if err != nil {
				return err
			}
			s, err := c.Status(cmd.Context())
			if err != nil {
				return err
			}

			if asJSON {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(s)
			}
			printStatus(cmd.OutOrStdout(), s)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the raw status object")
	return cmd
}

// SyncCmd sends every queued operation now.
func SyncCmd(flags *config.Flags) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Send queued operations to the remote store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := daemonClient(flags)
			if err != nil {
				return err
			}
			res, err := c.Sync(cmd.Context())
			if err != nil {
				return err
			}
			printDrain(cmd.OutOrStdout(), res)
			return nil
		},
	}
}

// ForceSyncCmd pushes the complete local data set to the remote store.
func ForceSyncCmd(flags *config.Flags) *cobra.Command {
	return &cobra.Command{
		Use:   "force-sync",
		Short: "Push all local data to the remote store",
		Long: `Drain the queue, then write every local record, tombstones included,
to the remote store. Use it after restoring a device or when the remote
store was wiped.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := daemonClient(flags)
			if err != nil {
				return err
			}
			s, err := c.ForceSync(cmd.Context())
			if err != nil {
				return err
			}
			printStatus(cmd.OutOrStdout(), s)
			return nil
		},
	}
}

// CheckCmd runs one integrity pass in the daemon.
func CheckCmd(flags *config.Flags) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Compare local checksums with the remote store and heal mismatches",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := daemonClient(flags)
			if err != nil {
				return err
			}
			rep, err := c.Check(cmd.Context())
			if err != nil {
				return err
			}
			printReport(cmd.OutOrStdout(), rep)
			return nil
		},
	}
}

// AutoSyncCmd switches periodic syncing of the running daemon on or off.
func AutoSyncCmd(flags *config.Flags) *cobra.Command {
	return &cobra.Command{
		Use:       "auto-sync on|off",
		Short:     "Turn periodic syncing on or off",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"on", "off"},
		RunE: func(cmd *cobra.Command, args []string) error {
			var enabled bool
			switch args[0] {
			case "on":
				enabled = true
			case "off":
			default:
				return fmt.Errorf("expected on or off, got %q", args[0])
			}

			c, err := daemonClient(flags)
			if err != nil {
				return err
			}
			s, err := c.SetAutoSync(cmd.Context(), enabled)
			if err != nil {
				return err
			}
			printStatus(cmd.OutOrStdout(), s)
			return nil
		},
	}
}
