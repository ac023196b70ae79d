package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/designmap/pkg/observability"
	"github.com/Sumatoshi-tech/designmap/pkg/scene"
)

// NewClassifyCommand creates the classify command.
func NewClassifyCommand(opts *appOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "classify <export.json|->",
		Short: "Classify components and print their records as JSON",
		Long: `Run classification, property extraction and slot mapping over every
component instance of an export. No external service is called.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := loadExport(cmd, args[0])
			if err != nil {
				return err
			}

			return withApp(cmd, opts, observability.ModeCLI, func(application *app) error {
				return classifyTo(cmd.Context(), application, doc, cmd.OutOrStdout())
			})
		},
	}

	cmd.Flags().BoolVar(&opts.nested, "nested", false, "also classify instances nested inside other instances")

	return cmd
}

// classifyTo analyzes doc and writes the records as indented JSON.
func classifyTo(ctx context.Context, application *app, doc *scene.Document, writer io.Writer) error {
	records, err := application.engine.AnalyzeDocument(ctx, doc, application.cfg.Pipeline.IncludeNested)
	if err != nil {
		return fmt.Errorf("classify: %w", err)
	}

	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")

	err = encoder.Encode(records)
	if err != nil {
		return fmt.Errorf("encode records: %w", err)
	}

	return nil
}
