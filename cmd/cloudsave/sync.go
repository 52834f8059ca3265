package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/BadgerOps/cloudsave/internal/engine"
	cserrors "github.com/BadgerOps/cloudsave/internal/errors"
)

var (
	syncDryRun        bool
	syncForce         bool
	syncIgnoreCorrupt bool
)

func newUploadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "upload",
		Short: "Upload new and changed save files",
		Long: `Upload every file under the save directory that the manifest does not
show as uploaded at its current size. The manifest is updated after each
file, so an interrupted upload resumes where it stopped.

Files deleted locally are never deleted from the bucket. Use "cloudsave
forget --remote" for that.`,
		Example: `  cloudsave upload --namespace survival
  cloudsave upload --dry-run
  cloudsave upload --force`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return syncRun(cmd, engine.DirectionUpload)
		},
	}

	cmd.Flags().BoolVar(&syncDryRun, "dry-run", false, "show what would be uploaded without uploading")
	cmd.Flags().BoolVar(&syncForce, "force", false, "upload every file regardless of the manifest")
	cmd.Flags().BoolVar(&syncIgnoreCorrupt, "ignore-corrupt-manifest", false, "start from an empty manifest if the existing one is unreadable")

	return cmd
}

func newDownloadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "download",
		Short: "Download save files missing or different locally",
		Long: `Download every file under the namespace prefix that is missing from the
save directory or whose local size differs. Files are written to a temporary
name and renamed into place. The manifest is not changed.`,
		Example: `  cloudsave download --namespace survival
  cloudsave download --dry-run`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return syncRun(cmd, engine.DirectionDownload)
		},
	}

	cmd.Flags().BoolVar(&syncDryRun, "dry-run", false, "show what would be downloaded without downloading")

	return cmd
}

func syncRun(cmd *cobra.Command, dir engine.Direction) error {
	if globalEngine == nil {
		return fmt.Errorf("sync engine not initialized")
	}

	ns, err := activeNamespace()
	if err != nil {
		return err
	}

	lock, err := acquireRunLock(globalEngine.Root())
	if err != nil {
		return err
	}
	defer releaseRunLock(lock)

	opts := engine.SyncOptions{
		DryRun:                syncDryRun,
		Force:                 syncForce,
		IgnoreCorruptManifest: syncIgnoreCorrupt,
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	run := globalEngine.Start(ctx, dir, ns, opts)

	var report *engine.SyncReport
	g := new(errgroup.Group)
	g.Go(func() error {
		renderProgress(os.Stderr, run, !quiet && isatty.IsTerminal(os.Stderr.Fd()))
		return nil
	})
	g.Go(func() error {
		var err error
		report, err = run.Wait()
		return err
	})
	runErr := g.Wait()

	if snap := run.Snapshot(); snap.DroppedEvents > 0 {
		logger.Debug("progress events dropped", "run", run.ID, "count", snap.DroppedEvents)
	}
	if report != nil {
		printReport(os.Stdout, report)
	}
	if runErr != nil {
		return describeError(runErr)
	}
	return nil
}

// progressSource is the part of engine.Run the renderer reads.
type progressSource interface {
	Progress() <-chan engine.ProgressEvent
	Snapshot() engine.SyncProgress
}

// renderProgress drains events until the channel closes. With live set it
// redraws a single status line.
func renderProgress(w io.Writer, src progressSource, live bool) {
	drew := false
	for ev := range src.Progress() {
		if !live {
			continue
		}
		fmt.Fprintf(w, "\r\033[K[%d/%d] %s / %s  %s%s  %s",
			ev.CompletedFiles, ev.TotalFiles,
			humanize.Bytes(uint64(ev.TransferredBytes)),
			humanize.Bytes(uint64(ev.TotalBytes)),
			ev.Elapsed.Truncate(time.Second),
			rateSuffix(src.Snapshot()),
			ev.CurrentFile,
		)
		drew = true
	}
	if drew {
		fmt.Fprintln(w)
	}
}

// rateSuffix formats the transfer rate and time remaining once known.
func rateSuffix(p engine.SyncProgress) string {
	if p.BytesPerSecond <= 0 {
		return ""
	}
	out := fmt.Sprintf("  %s/s", humanize.Bytes(uint64(p.BytesPerSecond)))
	if p.ETA > 0 {
		out += fmt.Sprintf("  ETA %s", p.ETA)
	}
	return out
}

func printReport(w io.Writer, r *engine.SyncReport) {
	verb := "Uploaded"
	if r.Direction == engine.DirectionDownload {
		verb = "Downloaded"
	}

	if r.ManifestReset {
		fmt.Fprintln(w, "WARNING: the manifest was unreadable and has been replaced.")
	}

	switch {
	case r.UpToDate:
		considered := r.LocalFiles
		if r.Direction == engine.DirectionDownload {
			considered = r.RemoteFiles
		}
		fmt.Fprintf(w, "Already up to date: %d files in %q need no %s.\n", considered, r.Namespace, r.Direction)
		return
	case r.DryRun:
		fmt.Fprintf(w, "DRY RUN: %s would transfer %d files:\n", r.Direction, r.Planned)
		var total int64
		for _, a := range r.Actions {
			fmt.Fprintf(w, "  %-8s %s (%s, %s)\n", a.Direction, a.Path, humanize.Bytes(uint64(a.Size)), a.Reason)
			total += a.Size
		}
		fmt.Fprintf(w, "Total: %s, %d files already in sync\n", humanize.Bytes(uint64(total)), r.Skipped)
		return
	}

	elapsed := r.EndTime.Sub(r.StartTime).Truncate(time.Millisecond)
	fmt.Fprintf(w, "%s %d of %d files (%s) in %s.\n", verb, r.Transferred, r.Planned, humanize.Bytes(uint64(r.Bytes)), elapsed)
	if r.Skipped > 0 {
		fmt.Fprintf(w, "Skipped %d unchanged files.\n", r.Skipped)
	}
	if r.Failed != nil {
		fmt.Fprintf(w, "Failed on %s: %s\n", r.Failed.Path, r.Failed.Error)
		if pending := r.Planned - r.Transferred - 1; pending > 0 {
			fmt.Fprintf(w, "%d files were not attempted; run the command again to continue.\n", pending)
		}
	}
}

// describeError adds a hint for the error categories users can act on.
func describeError(err error) error {
	switch cserrors.Kind(err) {
	case "no_files_found":
		return fmt.Errorf("%w (check --save-dir or VS_SAVE_DIR)", err)
	case "manifest_corrupt":
		return fmt.Errorf("%w (rerun with --ignore-corrupt-manifest to start over)", err)
	case "config_missing":
		return fmt.Errorf("%w (see cloudsave config show)", err)
	default:
		return err
	}
}
