package commands

import (
	"github.com/spf13/cobra"
)

// NewRootCommand creates the designmap root command with every subcommand.
func NewRootCommand() *cobra.Command {
	opts := &appOptions{}

	rootCmd := &cobra.Command{
		Use:   "designmap",
		Short: "Classify design exports into components and drive code generation",
		Long: `designmap turns a design tool scene-graph export into component records.

Commands:
  run       Analyze every component, generate and validate code when configured
  classify  Classify, extract and map components, print JSON records
  validate  Check an export against the export schema
  serve     Start the HTTP API
  mcp       Start the MCP server on stdio
  watch     Re-classify an export whenever it changes`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to designmap.yaml")
	rootCmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(
		NewRunCommand(opts),
		NewClassifyCommand(opts),
		NewValidateCommand(),
		NewServeCommand(opts),
		NewMCPCommand(opts),
		NewWatchCommand(opts),
		NewVersionCommand(),
	)

	return rootCmd
}
