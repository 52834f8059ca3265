package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/BadgerOps/cloudsave/internal/store"
)

var (
	historyLimit  int
	historyFailed bool
)

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent sync runs",
		Long: `List recent upload and download runs recorded in the history database,
newest first. Use --failed to list files whose transfer failed and has not
succeeded since.`,
		Example: `  cloudsave history
  cloudsave history --namespace survival --limit 5
  cloudsave history --failed`,
		RunE: historyRun,
	}

	cmd.Flags().IntVar(&historyLimit, "limit", 20, "maximum number of entries to show")
	cmd.Flags().BoolVar(&historyFailed, "failed", false, "show unresolved failed transfers instead of runs")

	return cmd
}

func historyRun(cmd *cobra.Command, args []string) error {
	if globalStore == nil {
		return fmt.Errorf("run history is disabled or unavailable")
	}

	ns := currentNamespace()
	if historyFailed {
		failed, err := globalStore.ListFailedTransfers(ns, historyLimit)
		if err != nil {
			return err
		}
		printFailedTransfers(os.Stdout, failed)
		return nil
	}

	runs, err := globalStore.ListSyncRuns(ns, historyLimit)
	if err != nil {
		return err
	}
	printRuns(os.Stdout, runs)
	return nil
}

func printRuns(w io.Writer, runs []store.SyncRun) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No sync runs recorded.")
		return
	}

	fmt.Fprintf(w, "%-17s %-12s %-9s %-11s %7s %10s  %s\n", "Started", "Namespace", "Direction", "Status", "Files", "Size", "Error")
	fmt.Fprintln(w, strings.Repeat("-", 90))
	for _, r := range runs {
		fmt.Fprintf(w, "%-17s %-12s %-9s %-11s %7s %10s  %s\n",
			r.StartTime.Local().Format("2006-01-02 15:04"),
			r.Namespace,
			r.Direction,
			r.Status,
			fmt.Sprintf("%d/%d", r.FilesTransferred, r.FilesPlanned),
			humanize.Bytes(uint64(r.BytesTransferred)),
			r.ErrorMessage,
		)
	}
}

func printFailedTransfers(w io.Writer, failed []store.FailedTransfer) {
	if len(failed) == 0 {
		fmt.Fprintln(w, "No unresolved failed transfers.")
		return
	}

	fmt.Fprintf(w, "%-17s %-12s %-9s %s\n", "Failed", "Namespace", "Direction", "Path")
	fmt.Fprintln(w, strings.Repeat("-", 70))
	for _, f := range failed {
		fmt.Fprintf(w, "%-17s %-12s %-9s %s\n", f.FailedAt.Local().Format("2006-01-02 15:04"), f.Namespace, f.Direction, f.Path)
		if f.Error != "" {
			fmt.Fprintf(w, "    %s\n", f.Error)
		}
	}
}
