package commands

import (
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/designmap/pkg/mcp"
	"github.com/Sumatoshi-tech/designmap/pkg/observability"
)

// NewMCPCommand creates the MCP server command.
func NewMCPCommand(opts *appOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Start MCP server for AI agent integration",
		Long: `Start a Model Context Protocol (MCP) server on stdio transport.

The MCP server exposes designmap as tools that AI agents can discover and
invoke:
  - designmap_classify: classify, extract and map every component of an export
  - designmap_validate: check an export against the export schema
  - designmap_run: run the full pipeline over an export`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, observability.ModeMCP, func(application *app) error {
				red, err := observability.NewREDMetrics(application.providers.Meter)
				if err != nil {
					return err
				}

				srv := mcp.NewServer(mcp.ServerDeps{
					Engine:  application.engine,
					Runner:  application.runner,
					Logger:  application.logger,
					Metrics: red,
					Tracer:  application.providers.Tracer,
				})

				return srv.Run(cmd.Context())
			})
		},
	}
}
