package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/Sumatoshi-tech/designmap/pkg/extract"
	"github.com/Sumatoshi-tech/designmap/pkg/pipeline"
)

// Sheet names of the XLSX workbook.
const (
	SheetUnits       = "Units"
	SheetTransitions = "Transitions"
	defaultSheet     = "Sheet1"
)

var (
	unitColumns = []any{
		"Unit", "Name", "Type", "Confidence", "Ambiguous", "Text", "Variant", "Size", "State",
		"Icons", "Cached", "Status", "Attempts", "Duration (ms)", "Skipped", "Error",
	}
	transitionColumns = []any{"Unit", "From", "To", "At", "Note"}
)

// XLSX writes the batch as a workbook with one row per unit and one row per
// state transition.
func XLSX(writer io.Writer, batch *pipeline.Batch) error {
	book := excelize.NewFile()
	defer book.Close()

	err := book.SetSheetName(defaultSheet, SheetUnits)
	if err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	_, err = book.NewSheet(SheetTransitions)
	if err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}

	err = writeRows(book, SheetUnits, unitColumns, unitRows(batch))
	if err != nil {
		return err
	}

	err = writeRows(book, SheetTransitions, transitionColumns, transitionRows(batch))
	if err != nil {
		return err
	}

	err = book.Write(writer)
	if err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}

	return nil
}

func writeRows(book *excelize.File, sheet string, header []any, rows [][]any) error {
	all := append([][]any{header}, rows...)

	for idx, row := range all {
		cell, err := excelize.CoordinatesToCellName(1, idx+1)
		if err != nil {
			return fmt.Errorf("cell name: %w", err)
		}

		err = book.SetSheetRow(sheet, cell, &row)
		if err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, idx+1, err)
		}
	}

	return nil
}

func unitRows(batch *pipeline.Batch) [][]any {
	rows := make([][]any, 0, len(batch.Order))

	for _, unit := range batch.Ordered() {
		row := []any{unit.ID, unit.Name}

		if unit.Record != nil {
			record := unit.Record
			props := record.Properties

			icons := make([]string, 0, len(props.Icons))
			for _, icon := range props.Icons {
				icons = append(icons, iconLabel(icon))
			}

			row = append(row,
				string(record.Classification.Type), record.Classification.Confidence, record.Classification.Ambiguous,
				props.TextValue(), props.Variant.Value, props.Size.Value, props.State.Value,
				strings.Join(icons, ", "), record.Cached,
			)
		} else {
			row = append(row, "", "", "", "", "", "", "", "", "")
		}

		row = append(row,
			string(unit.State), unit.Attempts, unit.Duration().Milliseconds(),
			strings.Join(unit.Skipped, ", "), unit.Error,
		)

		rows = append(rows, row)
	}

	return rows
}

func transitionRows(batch *pipeline.Batch) [][]any {
	var rows [][]any

	for _, unit := range batch.Ordered() {
		for _, step := range unit.History {
			rows = append(rows, []any{unit.ID, string(step.From), string(step.To), step.At.UTC(), step.Note})
		}
	}

	return rows
}

func iconLabel(icon extract.Icon) string {
	if name := icon.Identifier(); name != "" {
		return name
	}

	return "(" + string(icon.Status) + ")"
}
