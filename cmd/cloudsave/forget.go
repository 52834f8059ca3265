package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/BadgerOps/cloudsave/internal/engine"
)

var (
	forgetAll    bool
	forgetRemote bool
)

func newForgetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "forget [PATH...]",
		Short: "Remove files from the manifest",
		Long: `Remove entries from the manifest so the next upload sends those files
again. Paths are relative to the save directory. With --all every entry of
the namespace is removed. With --remote the matching objects are also
deleted from the bucket.`,
		Example: `  cloudsave forget --namespace survival Backups/old.vcdbs
  cloudsave forget --namespace survival --all
  cloudsave forget --namespace survival --all --remote`,
		RunE: forgetRun,
	}

	cmd.Flags().BoolVar(&forgetAll, "all", false, "forget every file in the namespace")
	cmd.Flags().BoolVar(&forgetRemote, "remote", false, "also delete the objects from storage")

	return cmd
}

func forgetRun(cmd *cobra.Command, args []string) error {
	if globalEngine == nil {
		return fmt.Errorf("sync engine not initialized")
	}
	if forgetAll && len(args) > 0 {
		return fmt.Errorf("pass either paths or --all, not both")
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

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	report, err := globalEngine.Forget(ctx, ns, engine.ForgetOptions{
		All:    forgetAll,
		Paths:  args,
		Remote: forgetRemote,
	})
	if report != nil {
		for _, p := range report.NotTracked {
			fmt.Fprintf(os.Stdout, "Not tracked: %s\n", p)
		}
		if report.NamespaceDropped {
			fmt.Fprintf(os.Stdout, "Forgot namespace %q (%d files).\n", ns, len(report.Forgotten))
		} else {
			fmt.Fprintf(os.Stdout, "Forgot %d files in %q.\n", len(report.Forgotten), ns)
		}
		if forgetRemote {
			fmt.Fprintf(os.Stdout, "Deleted %d objects from storage.\n", len(report.RemoteDeleted))
		}
	}
	return err
}
