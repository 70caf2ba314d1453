package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/dmitrijs2005/shiftsync/internal/client/app"
	"github.com/dmitrijs2005/shiftsync/internal/client/config"
	"github.com/dmitrijs2005/shiftsync/internal/logging"
)

// RunCmd starts the daemon in the foreground.
func RunCmd(flags *config.Flags) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the sync daemon",
		Long: `Open the local database, connect to the configured remote store and
serve the status API until interrupted.

SIGINT and SIGTERM flush pending operations and stop the daemon.
SIGCONT triggers a catch-up sync, the same as the dashboard becoming visible.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.Load()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			log := newLogger(cfg)

			a, err := app.New(ctx, cfg, log)
			if err != nil {
				return err
			}
			return a.Run(ctx)
		},
	}
}

func newLogger(cfg *config.Config) logging.Logger {
	level := logging.ParseLevel(cfg.LogLevel)
	if cfg.LogFormat == "text" {
		return logging.NewText(os.Stderr, level)
	}
	return logging.NewJSON(os.Stderr, level)
}
