// Package cli implements the shiftsync command line: the daemon itself and
// the one-shot commands that talk to it over the status API.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/dmitrijs2005/shiftsync/internal/client/config"
	"github.com/dmitrijs2005/shiftsync/internal/client/statusws"
)

// RootCmd returns the shiftsync command tree. The configuration flags are
// persistent so every subcommand accepts them.
func RootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "shiftsync",
		Short: "Offline-first sync client for the shop floor dashboard",
		Long: `shiftsync keeps a local copy of the dashboard data and mirrors
every change to the remote store whenever it is reachable.

Start the daemon with "shiftsync run". The other commands talk to the
running daemon, which is the only process that owns the local database.`,
		SilenceUsage: true,
	}

	flags := config.NewFlags(root.PersistentFlags())

	root.AddCommand(RunCmd(flags))
	root.AddCommand(StatusCmd(flags))
	root.AddCommand(PutCmd(flags))
	root.AddCommand(DeleteCmd(flags))
	root.AddCommand(ListCmd(flags))
	root.AddCommand(SyncCmd(flags))
	root.AddCommand(ForceSyncCmd(flags))
	root.AddCommand(AutoSyncCmd(flags))
	root.AddCommand(CheckCmd(flags))
	return root
}

// daemonClient loads the configuration and returns a client for the status
// API of the running daemon.
func daemonClient(flags *config.Flags) (*statusws.Client, error) {
	cfg, err := flags.Load()
	if err != nil {
		return nil, err
	}
	return statusws.NewClient(cfg.StatusAddr), nil
}
