package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"

	"github.com/dmitrijs2005/shiftsync/internal/client/integrity"
	"github.com/dmitrijs2005/shiftsync/internal/client/syncer"
	"github.com/dmitrijs2005/shiftsync/internal/models"
)

func phaseLabel(p syncer.Phase) string {
	switch p {
	case syncer.PhaseConnected:
		return color.New(color.FgGreen).Sprint(string(p))
	case syncer.PhaseSyncing, syncer.PhasePending:
		return color.New(color.FgYellow).Sprint(string(p))
	case syncer.PhaseOffline:
		return color.New(color.FgRed).Sprint(string(p))
	}
	return string(p)
}

func printStatus(w io.Writer, s syncer.Status) {
	fmt.Fprintf(w, "Phase:      %s\n", phaseLabel(s.Phase))
	fmt.Fprintf(w, "Online:     %t\n", s.Online)
	fmt.Fprintf(w, "Remote:     %t\n", s.RemoteConfigured)
	fmt.Fprintf(w, "Queued:     %d\n", s.QueueSize)
	fmt.Fprintf(w, "Auto sync:  %t\n", s.AutoSync)
	if !s.LastAttempt.IsZero() {
		fmt.Fprintf(w, "Last sync:  %s\n", s.LastAttempt.Local().Format(time.DateTime))
	}
	if s.AuthRequired {
		fmt.Fprintf(w, "%s remote store rejected the access token\n", color.New(color.FgRed).Sprint("AUTH"))
	}
	if s.Degraded {
		fmt.Fprintf(w, "%s %s\n", color.New(color.FgYellow).Sprint("DEGRADED"), s.DegradedReason)
	}
	if s.LastError != "" {
		fmt.Fprintf(w, "Last error: %s\n", s.LastError)
	}
}

func printRecord(w io.Writer, verb string, r models.Record) {
	fmt.Fprintf(w, "%s %s (version %d)\n", color.New(color.FgGreen).Sprint(verb), r.Key(), r.Version)
}

// printRecords writes a table for humans and JSON lines for pipes.
func printRecords(w io.Writer, recs []models.Record, tty bool) error {
	if !tty {
		enc := json.NewEncoder(w)
		for _, r := range recs {
			if err := enc.Encode(r); err != nil {
				return err
			}
		}
		return nil
	}

	if len(recs) == 0 {
		fmt.Fprintln(w, "No records.")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tVERSION\tMODIFIED\tDEVICE\tFIELDS")
	fmt.Fprintln(tw, "--\t-------\t--------\t------\t------")
	for _, r := range recs {
		fields, err := json.Marshal(r.Fields)
		if err != nil {
			return err
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\n",
			r.ID, r.Version, r.LastModified.Local().Format(time.DateTime), r.DeviceID, fields)
	}
	return tw.Flush()
}

func printDrain(w io.Writer, res syncer.DrainResult) {
	fmt.Fprintf(w, "Sent %d of %d queued operations\n", res.Succeeded, res.Attempted)
	if res.Failed > 0 {
		fmt.Fprintf(w, "  %s %d will be retried\n", color.New(color.FgYellow).Sprint("failed:"), res.Failed)
	}
	if res.AuthDeferred > 0 {
		fmt.Fprintf(w, "  %s %d waiting for a valid token\n", color.New(color.FgRed).Sprint("auth:"), res.AuthDeferred)
	}
	if res.Dropped > 0 {
		fmt.Fprintf(w, "  %s %d gave up after too many retries\n", color.New(color.FgRed).Sprint("dropped:"), res.Dropped)
	}
}

func printReport(w io.Writer, rep integrity.Report) {
	label := color.New(color.FgGreen).Sprint("OK")
	if rep.Mismatched > 0 {
		label = color.New(color.FgYellow).Sprint("MISMATCH")
	}
	fmt.Fprintf(w, "Integrity %s: checked %d, mismatched %d, healed %d, deferred %d, forgotten %d\n",
		label, rep.Checked, rep.Mismatched, rep.Healed, rep.Deferred, rep.Forgotten)
}
