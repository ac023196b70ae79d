package commands

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/designmap/pkg/observability"
	"github.com/Sumatoshi-tech/designmap/pkg/pipeline"
	"github.com/Sumatoshi-tech/designmap/pkg/report"
)

var (
	// ErrUnitsFailed is returned when a batch finished with failed units.
	ErrUnitsFailed = errors.New("units failed")
	// ErrBinaryToTerminal is returned when xlsx output would go to a terminal.
	ErrBinaryToTerminal = errors.New("xlsx output needs --output or a redirected stdout")
)

// RunCommand holds configuration for the run command.
type RunCommand struct {
	app     *appOptions
	format  string
	output  string
	noColor bool
	errCol  bool
}

// NewRunCommand creates the run command.
func NewRunCommand(opts *appOptions) *cobra.Command {
	rc := &RunCommand{app: opts}

	cmd := &cobra.Command{
		Use:   "run <export.json|->",
		Short: "Run the full pipeline over a design export",
		Long: `Ingest an export, analyze every component instance, then call code
generation and visual validation when they are configured. Exits non-zero
when any unit fails.`,
		Args: cobra.ExactArgs(1),
		RunE: rc.Run,
	}

	cmd.Flags().StringVarP(&rc.format, "format", "f", report.FormatText,
		"output format: "+strings.Join(report.Formats(), ", "))
	cmd.Flags().StringVarP(&rc.output, "output", "o", "", "write the report to a file instead of stdout")
	cmd.Flags().BoolVar(&opts.nested, "nested", false, "also process instances nested inside other instances")
	cmd.Flags().BoolVar(&rc.noColor, "no-color", false, "disable colored output")
	cmd.Flags().BoolVar(&rc.errCol, "errors", false, "add an error column to the text table")

	return cmd
}

// Run executes the run command.
func (rc *RunCommand) Run(cmd *cobra.Command, args []string) error {
	if !slices.Contains(report.Formats(), rc.format) {
		return fmt.Errorf("%w: %q", report.ErrUnknownFormat, rc.format)
	}

	if rc.format == report.FormatXLSX && rc.output == "" && isTerminal(cmd.OutOrStdout()) {
		return ErrBinaryToTerminal
	}

	doc, err := loadExport(cmd, args[0])
	if err != nil {
		return err
	}

	return withApp(cmd, rc.app, observability.ModeCLI, func(application *app) error {
		batch, runErr := application.runner.Run(cmd.Context(), doc)
		if batch == nil {
			return runErr
		}

		writeErr := rc.writeReport(cmd, batch)
		if writeErr != nil {
			return writeErr
		}

		if runErr != nil {
			return runErr
		}

		failed := len(batch.InState(pipeline.StateFailed))
		if failed > 0 {
			return fmt.Errorf("%w: %d of %d", ErrUnitsFailed, failed, len(batch.Order))
		}

		return nil
	})
}

func (rc *RunCommand) writeReport(cmd *cobra.Command, batch *pipeline.Batch) error {
	opts := report.Options{NoColor: rc.noColor || rc.output != "", Verbose: rc.errCol}

	if rc.output == "" {
		return report.Write(cmd.OutOrStdout(), batch, rc.format, opts)
	}

	file, err := os.Create(rc.output)
	if err != nil {
		return fmt.Errorf("create %s: %w", rc.output, err)
	}

	writeErr := report.Write(file, batch, rc.format, opts)

	return errors.Join(writeErr, file.Close())
}

// isTerminal reports whether writer is a character device.
func isTerminal(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}

	info, err := file.Stat()
	if err != nil {
		return false
	}

	return info.Mode()&os.ModeCharDevice != 0
}
