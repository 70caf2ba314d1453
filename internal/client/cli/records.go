package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/dmitrijs2005/shiftsync/internal/client/config"
	"github.com/dmitrijs2005/shiftsync/internal/models"
)

// PutCmd creates or updates a record.
func PutCmd(flags *config.Flags) *cobra.Command {
	return &cobra.Command{
		Use:   "put <table> <id> <key=value>... | <table> <id> '<json object>'",
		Short: "Create or update a record",
		Long: `Create or update a record through the daemon. The write lands in the
local database first and is mirrored to the remote store when possible.

Examples:
  shiftsync put tasks t1 title="Replace belt" done=false priority=2
  shiftsync put parts p1 '{"name":"bearing","qty":4}'`,
		Args: cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			table, id, err := parseKey(args[0], args[1])
			if err != nil {
				return err
			}
			fields, err := parseFields(args[2:])
			if err != nil {
				return err
			}

			c, err := daemonClient(flags)
			if err != nil {
				return err
			}
			rec, err := c.Put(cmd.Context(), table, id, fields)
			if err != nil {
				return err
			}
			printRecord(cmd.OutOrStdout(), "saved", rec)
			return nil
		},
	}
}

// DeleteCmd tombstones a record.
func DeleteCmd(flags *config.Flags) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <table> <id>",
		Short: "Delete a record",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			table, id, err := parseKey(args[0], args[1])
			if err != nil {
				return err
			}

			c, err := daemonClient(flags)
			if err != nil {
				return err
			}
			rec, err := c.Delete(cmd.Context(), table, id)
			if err != nil {
				return err
			}
			printRecord(cmd.OutOrStdout(), "deleted", rec)
			return nil
		},
	}
}

// ListCmd prints the live records of a table.
func ListCmd(flags *config.Flags) *cobra.Command {
	return &cobra.Command{
		Use:   "list <table>",
		Short: "List the records of a table",
		Long: `List the live records of a table. On a terminal the records are shown
as a table; otherwise one JSON object is written per line.

Tables: shifts, workers, parts, tasks, task_notes, time_logs`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			table, err := models.ParseTable(args[0])
			if err != nil {
				return err
			}

			c, err := daemonClient(flags)
			if err != nil {
				return err
			}
			recs, err := c.List(cmd.Context(), table)
			if err != nil {
				return err
			}
			return printRecords(cmd.OutOrStdout(), recs, isTerminal(int(os.Stdout.Fd())))
		},
	}
}
