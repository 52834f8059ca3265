package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/BadgerOps/cloudsave/internal/savedir"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
		Long: `Inspect cloudsave configuration. Values are merged from the config file,
a .env file in the working directory, environment variables and flags.`,
		Example: `  cloudsave config show
  cloudsave config path`,
	}

	cmd.AddCommand(
		newConfigShowCmd(),
		newConfigPathCmd(),
	)

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Display the effective configuration",
		Long: `Display the effective configuration in YAML format with secrets
redacted.`,
		Example: `  cloudsave config show
  cloudsave config show --config ~/.config/cloudsave/config.yaml`,
		RunE: configShowRun,
	}

	return cmd
}

func configShowRun(cmd *cobra.Command, args []string) error {
	if globalCfg == nil {
		return fmt.Errorf("config not loaded")
	}

	redacted := globalCfg.Redacted()
	data, err := yaml.Marshal(&redacted)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	fmt.Fprintln(os.Stdout, "Current Configuration:")
	fmt.Fprintln(os.Stdout, "======================")
	fmt.Fprint(os.Stdout, string(data))

	if err := globalCfg.Storage.Validate(); err != nil {
		fmt.Fprintf(os.Stdout, "\nStorage is not ready: %v\n", err)
	}
	return nil
}

func newConfigPathCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "path",
		Short: "Show which files and directories are in use",
		RunE:  configPathRun,
	}

	return cmd
}

func configPathRun(cmd *cobra.Command, args []string) error {
	if globalCfg == nil {
		return fmt.Errorf("config not loaded")
	}

	file := cfgPath
	if file == "" {
		file = "(none, using defaults)"
	}
	fmt.Fprintf(os.Stdout, "Config file:    %s\n", file)

	root, err := savedir.Resolve(globalCfg.Saves.Root)
	if err != nil {
		fmt.Fprintf(os.Stdout, "Save directory: unavailable (%v)\n", err)
	} else {
		fmt.Fprintf(os.Stdout, "Save directory: %s\n", root)
	}

	if globalCfg.History.Enabled {
		fmt.Fprintf(os.Stdout, "History:        %s\n", globalCfg.HistoryPath())
	} else {
		fmt.Fprintln(os.Stdout, "History:        disabled")
	}
	return nil
}
