package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/BadgerOps/cloudsave/internal/config"
	"github.com/BadgerOps/cloudsave/internal/engine"
	cserrors "github.com/BadgerOps/cloudsave/internal/errors"
	"github.com/BadgerOps/cloudsave/internal/inventory"
	"github.com/BadgerOps/cloudsave/internal/manifest"
	"github.com/BadgerOps/cloudsave/internal/savedir"
	"github.com/BadgerOps/cloudsave/internal/storage"
	"github.com/BadgerOps/cloudsave/internal/store"
)

var (
	// Global flags
	cfgPath   string
	saveDir   string
	namespace string
	logLevel  string
	logFormat string
	quiet     bool
	globalCfg *config.Config
	logger    *slog.Logger

	// Global components
	saveRoot     string
	globalStore  *store.Store
	globalEngine *engine.SyncManager
)

// initializeComponents resolves the save root and wires the sync engine.
// Storage is connected lazily, so commands that never reach the network
// work without credentials.
func initializeComponents() error {
	if globalCfg == nil {
		return fmt.Errorf("config not loaded")
	}

	root, err := savedir.Resolve(globalCfg.Saves.Root)
	if err != nil {
		return err
	}
	saveRoot = root

	manifests := manifest.NewStore(filepath.Join(root, globalCfg.Saves.ManifestName), logger)
	ignore := inventory.LoadIgnore(root, globalCfg.Saves.ManifestName, globalCfg.Saves.Ignore, logger)
	scanner := inventory.NewScanner(ignore, logger)

	if globalCfg.History.Enabled {
		st, err := store.New(globalCfg.HistoryPath(), logger)
		if err != nil {
			// History is informational; syncing still works without it.
			logger.Warn("run history unavailable", "path", globalCfg.HistoryPath(), "error", err)
		} else {
			globalStore = st
		}
	}

	storageCfg := globalCfg.Storage
	connect := func(ctx context.Context) (storage.Storage, error) {
		return storage.NewS3(ctx, storageCfg, logger)
	}

	globalEngine = engine.NewSyncManager(root, manifests, scanner, connect, globalStore, logger)
	globalEngine.SetPrefixFunc(storageCfg.PrefixFor)

	logger.Debug("components initialized", "root", root, "manifest", manifests.Path(), "history", globalStore != nil)
	return nil
}

// shouldSkipComponentInit checks if a command should skip component initialization
func shouldSkipComponentInit(cmd *cobra.Command) bool {
	skipInitCmds := map[string]bool{
		"help":    true,
		"version": true,
		"config":  true,
	}
	for c := cmd; c != nil; c = c.Parent() {
		if skipInitCmds[c.Name()] {
			return true
		}
	}
	return false
}

// closeStore closes the global store connection
func closeStore() {
	if globalStore != nil {
		if err := globalStore.Close(); err != nil {
			logger.Error("failed to close store", "error", err)
		}
		globalStore = nil
	}
}

// NewRootCmd creates and returns the root command
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cloudsave",
		Short: "Back up Vintage Story saves to S3-compatible storage",
		Long: `cloudsave keeps a local Vintage Story save directory in sync with a
bucket on Backblaze B2 or any S3-compatible store. Uploads send only files
whose size changed since the last upload, as recorded in a manifest kept in
the save directory. Downloads fetch files that are missing locally or differ
in size.

Connection settings come from a config file, a .env file, or the
B2_KEY_ID, B2_APPLICATION_KEY, B2_BUCKET, B2_REGION and B2_ENDPOINT
environment variables.`,
		Example: `  cloudsave upload --namespace survival
  cloudsave upload --dry-run
  cloudsave download --namespace survival
  cloudsave status
  cloudsave forget --namespace survival Backups/old.vcdbs
  cloudsave history --limit 5`,
		Version: "0.1.0",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			setupLogging()

			if shouldSkipConfig(cmd.Name()) {
				return nil
			}

			if cfgPath == "" {
				var err error
				cfgPath, err = config.FindConfigFile()
				if err != nil {
					logger.Debug("config file not found, using defaults", "error", err)
				}
			}

			if cfgPath != "" {
				var err error
				globalCfg, err = config.Load(cfgPath)
				if err != nil {
					return fmt.Errorf("failed to load config: %w", err)
				}
			} else {
				globalCfg = config.DefaultConfig()
			}

			if err := config.ApplyEnv(globalCfg); err != nil {
				return err
			}

			// Override with command-line flags if provided
			if saveDir != "" {
				globalCfg.Saves.Root = saveDir
			}
			if namespace != "" {
				globalCfg.Saves.Namespace = namespace
			}

			if err := globalCfg.Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}

			logger.Debug("config loaded", "path", cfgPath, "root", globalCfg.Saves.Root, "namespace", globalCfg.Saves.Namespace)

			if !shouldSkipComponentInit(cmd) {
				if err := initializeComponents(); err != nil {
					return fmt.Errorf("failed to initialize: %w", err)
				}
			}

			// Errors from here on are runtime failures, not usage mistakes.
			cmd.SilenceUsage = true
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			closeStore()
		},
	}

	cmd.PersistentFlags().StringVar(&cfgPath, "config", "", "path to config file (auto-discovered if not specified)")
	cmd.PersistentFlags().StringVar(&saveDir, "save-dir", "", "override the save directory (VS_SAVE_DIR)")
	cmd.PersistentFlags().StringVarP(&namespace, "namespace", "n", "", "bucket namespace to sync (CLOUDSAVE_NAMESPACE)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text or json)")
	cmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress progress output")

	cmd.AddCommand(
		newUploadCmd(),
		newDownloadCmd(),
		newStatusCmd(),
		newHistoryCmd(),
		newForgetCmd(),
		newConfigCmd(),
	)

	return cmd
}

// setupLogging initializes the slog logger based on flags
func setupLogging() {
	var level slog.Level
	switch strings.ToLower(logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	if strings.ToLower(logFormat) == "json" {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	} else {
		handler = tint.NewHandler(os.Stderr, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
			NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
		})
	}

	logger = slog.New(handler)
	slog.SetDefault(logger)
}

// shouldSkipConfig checks if a command should skip config loading
func shouldSkipConfig(cmdName string) bool {
	skipConfigCmds := map[string]bool{
		"help":    true,
		"version": true,
	}
	return skipConfigCmds[cmdName]
}

// activeNamespace returns the namespace from --namespace or config.
func activeNamespace() (string, error) {
	if globalCfg == nil || strings.Trim(globalCfg.Saves.Namespace, "/ ") == "" {
		return "", fmt.Errorf("%w: no namespace (use --namespace or CLOUDSAVE_NAMESPACE)", cserrors.ErrConfigMissing)
	}
	return strings.Trim(globalCfg.Saves.Namespace, "/ "), nil
}
