package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/lpharvest/am"
	"github.com/teranos/lpharvest/cmd/lpharvest/commands"
	"github.com/teranos/lpharvest/errors"
	"github.com/teranos/lpharvest/logger"
)

var rootCmd = &cobra.Command{
	Use:   "lpharvest",
	Short: "lpharvest - harvest Logpoint search results",
	Long: `lpharvest - run Logpoint searches across repositories and export the rows.

One search fans out over every configured repository under a shared call
pace, merges the results newest first, and writes them as CSV, TSV, JSON,
JSON lines, YAML or SQLite.

Available commands:
  search  - Run a search and write the merged rows
  am      - Manage configuration
  version - Show build information

Examples:
  lpharvest am init                          # Write a starter lpharvest.toml
  lpharvest search -o out.csv                # Run the configured search
  lpharvest search 'user=*' -r 'r1 r2' -vv   # Override the query, more detail`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		jsonOutput, _ := cmd.Flags().GetBool("json")
		verbosity, _ := cmd.Flags().GetCount("verbose")

		// 'am show' output is meant to be piped, keep it free of log lines
		if cmd.Name() != "show" {
			if err := logger.InitializeWithVerbosity(jsonOutput, verbosity); err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			logger.Logger.Debugw("Logger initialized", "verbosity", logger.LevelName(verbosity), "json", jsonOutput)
		}

		if configPath, _ := cmd.Flags().GetString("config"); configPath != "" {
			if err := am.UseConfigFile(configPath); err != nil {
				return err
			}
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (repeat for more detail: -v, -vv, -vvv)")
	rootCmd.PersistentFlags().Bool("json", false, "JSON logs and progress events")
	rootCmd.PersistentFlags().StringP("config", "c", "", "Config file (skips the default config search)")

	rootCmd.AddCommand(commands.SearchCmd)
	rootCmd.AddCommand(commands.AmCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := rootCmd.ExecuteContext(ctx)
	stop()

	code := commands.ExitCode(err)
	if err != nil {
		printError(err, code)
	}
	logger.Cleanup()
	os.Exit(code)
}

func printError(err error, code int) {
	if code == commands.ExitCodeFailure {
		pterm.Error.WithWriter(os.Stderr).Println(err.Error())
	} else {
		pterm.Warning.WithWriter(os.Stderr).Println(err.Error())
	}
	if hint := errors.FlattenHints(err); hint != "" {
		pterm.Info.WithWriter(os.Stderr).Println(hint)
	}
}
