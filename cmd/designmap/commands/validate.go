package commands

import (
	"errors"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/designmap/pkg/scene"
)

// ErrInvalidExport is returned when an export fails validation.
var ErrInvalidExport = errors.New("export is invalid")

// NewValidateCommand creates the validate command.
func NewValidateCommand() *cobra.Command {
	var noColor bool

	cmd := &cobra.Command{
		Use:   "validate <export.json|->",
		Short: "Validate an export against the export schema",
		Long: `Check an export against the JSON schema and the decoder's structural
rules. Every schema violation is listed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readExport(cmd, args[0])
			if err != nil {
				return err
			}

			return validateExport(data, args[0], cmd.OutOrStdout(), noColor)
		},
	}

	cmd.Flags().BoolVar(&noColor, "no-color", false, "disable colored output")

	return cmd
}

func validateExport(data []byte, name string, writer io.Writer, noColor bool) error {
	pass := color.New(color.FgGreen, color.Bold)
	fail := color.New(color.FgRed, color.Bold)
	field := color.New(color.FgYellow)

	if noColor {
		pass.DisableColor()
		fail.DisableColor()
		field.DisableColor()
	}

	violations, err := scene.ValidateSchema(data)
	if err != nil {
		fmt.Fprintf(writer, "%s %s: %v\n", fail.Sprint("FAIL"), name, err)

		return fmt.Errorf("%w: %w", ErrInvalidExport, err)
	}

	_, decodeErr := scene.DecodeBytes(data)

	if len(violations) == 0 && decodeErr == nil {
		fmt.Fprintf(writer, "%s %s\n", pass.Sprint("PASS"), name)

		return nil
	}

	fmt.Fprintf(writer, "%s %s\n", fail.Sprint("FAIL"), name)

	for _, violation := range violations {
		fmt.Fprintf(writer, "  %s: %s\n", field.Sprint(violation.Field), violation.Description)
	}

	if decodeErr != nil {
		fmt.Fprintf(writer, "  %s\n", decodeErr)
	}

	return fmt.Errorf("%w: %d schema violations", ErrInvalidExport, len(violations))
}
