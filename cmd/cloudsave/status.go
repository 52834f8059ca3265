package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/BadgerOps/cloudsave/internal/engine"
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Display what the manifest tracks",
		Long: `Display the manifest status for the save directory: how many files each
namespace tracks, their total size and playtime, and when each namespace
last synced. Status never contacts storage.`,
		Example: `  cloudsave status
  cloudsave status --save-dir /srv/vintagestory/Saves`,
		RunE: statusRun,
	}

	return cmd
}

func statusRun(cmd *cobra.Command, args []string) error {
	if globalEngine == nil {
		return fmt.Errorf("sync engine not initialized")
	}

	printStatus(os.Stdout, globalEngine.Status(), currentNamespace())
	return nil
}

func currentNamespace() string {
	if globalCfg == nil {
		return ""
	}
	return globalCfg.Saves.Namespace
}

func printStatus(w io.Writer, st *engine.StatusReport, configured string) {
	fmt.Fprintf(w, "Save directory: %s\n", st.Root)
	fmt.Fprintf(w, "Manifest:       %s\n", st.ManifestPath)
	fmt.Fprintln(w, st.Message)

	if st.LoadErr != nil || len(st.Namespaces) == 0 {
		return
	}

	current := st.Stats.CurrentBucket
	if configured != "" {
		current = configured
	}
	if current != "" {
		fmt.Fprintf(w, "Current namespace: %s\n", current)
	}
	if !st.Stats.LastOpened.IsZero() {
		fmt.Fprintf(w, "Last upload: %s\n", humanize.Time(st.Stats.LastOpened))
	}

	fmt.Fprintln(w, "")
	fmt.Fprintf(w, "%-20s %8s %12s %10s %20s\n", "Namespace", "Files", "Size", "Playtime", "Last Sync")
	fmt.Fprintln(w, strings.Repeat("-", 74))

	for _, ns := range st.Namespaces {
		lastSync := "never"
		if ns.LastRun != nil {
			lastSync = ns.LastRun.StartTime.Local().Format("2006-01-02 15:04")
		}
		size := humanize.Bytes(uint64(ns.TotalBytes))
		if ns.Unsized > 0 {
			size += "+"
		}
		fmt.Fprintf(w, "%-20s %8d %12s %10s %20s\n",
			ns.Name,
			ns.Files,
			size,
			formatPlaytime(ns.Playtime),
			lastSync,
		)
	}
	fmt.Fprintln(w, "")
}

func formatPlaytime(seconds uint64) string {
	if seconds == 0 {
		return "-"
	}
	return (time.Duration(seconds) * time.Second).String()
}
