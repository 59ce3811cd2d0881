package commands

import (
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/lpharvest/am"
	"github.com/teranos/lpharvest/errors"
)

// AmCmd represents the am (configuration) command
var AmCmd = &cobra.Command{
	Use:   "am",
	Short: "Manage lpharvest configuration",
	Long: `Display and manage lpharvest configuration.

Configuration sources (in order of precedence):
1. Command line flags
2. Environment variables (LPHARVEST_* prefix, e.g. LPHARVEST_LOGPOINT_SECRET_KEY)
3. --config file, or else:
   a. Project config (lpharvest.toml, searched upward from the working directory)
   b. User config (~/.lpharvest/config.toml)
   c. System config (/etc/lpharvest/config.toml)
4. Default values

Examples:
  lpharvest am show               # Show effective configuration (secret redacted)
  lpharvest am validate           # Check the configuration can run a search
  lpharvest am init               # Write a starter lpharvest.toml here`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var amShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  "Display the effective configuration from all sources, with the secret key redacted",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := am.Load()
		if err != nil {
			return errors.Wrap(err, "failed to load config")
		}
		fmt.Fprint(cmd.OutOrStdout(), am.Describe())
		return cfg.WriteTOML(cmd.OutOrStdout())
	},
}

var amValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate current configuration",
	Long:  "Validate that the current configuration has everything a search needs",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := am.Load()
		if err != nil {
			return errors.Wrap(err, "failed to load config")
		}
		if err := cfg.ValidateTask(); err != nil {
			return err
		}
		pterm.Success.Println("Configuration is valid")
		return nil
	},
}

var amInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a starter config file",
	Long: `Write a starter config to path (default ./lpharvest.toml).

An existing file is only replaced with --force; the previous versions are
kept as .back1, .back2 and .back3.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := am.ProjectConfigName
		if len(args) == 1 {
			path = args[0]
		}
		force, _ := cmd.Flags().GetBool("force")
		if err := am.WriteStarter(path, force); err != nil {
			return err
		}
		pterm.Success.Printfln("Wrote %s", path)
		pterm.Info.Printfln("Set the secret with: export %s_LOGPOINT_SECRET_KEY=...", am.EnvPrefix)
		return nil
	},
}

func init() {
	amInitCmd.Flags().Bool("force", false, "Replace an existing file")

	AmCmd.AddCommand(amShowCmd)
	AmCmd.AddCommand(amValidateCmd)
	AmCmd.AddCommand(amInitCmd)
}
