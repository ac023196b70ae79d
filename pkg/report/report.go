// Package report renders a finished pipeline batch as a terminal table, as
// JSON, or as an XLSX workbook.
package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/Sumatoshi-tech/designmap/pkg/pipeline"
)

// Output formats.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatXLSX = "xlsx"
)

// ErrUnknownFormat is returned for an unsupported output format.
var ErrUnknownFormat = errors.New("unknown report format")

// Formats lists the supported output formats.
func Formats() []string {
	return []string{FormatText, FormatJSON, FormatXLSX}
}

const (
	percent         = 100
	durationPrecise = time.Millisecond
	maxErrorWidth   = 60
	noValue         = "-"
)

// Options tunes text rendering.
type Options struct {
	NoColor bool
	Verbose bool
}

// Write renders batch to w in format.
func Write(writer io.Writer, batch *pipeline.Batch, format string, opts Options) error {
	switch format {
	case FormatText, "":
		_, err := io.WriteString(writer, Text(batch, opts))

		return err
	case FormatJSON:
		return JSON(writer, batch)
	case FormatXLSX:
		return XLSX(writer, batch)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// JSON writes the batch as indented JSON.
func JSON(writer io.Writer, batch *pipeline.Batch) error {
	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")

	err := encoder.Encode(batch)
	if err != nil {
		return fmt.Errorf("encode batch: %w", err)
	}

	return nil
}

// Text renders the batch as a summary line and one table row per unit.
func Text(batch *pipeline.Batch, opts Options) string {
	palette := newPalette(opts.NoColor)

	tbl := table.NewWriter()
	tbl.SetStyle(table.StyleLight)
	tbl.Style().Options.DrawBorder = false
	tbl.Style().Options.SeparateColumns = false

	header := table.Row{"Unit", "Name", "Type", "Conf", "Text", "Variant", "Size", "State", "Status", "Attempts", "Took"}
	if opts.Verbose {
		header = append(header, "Error")
	}

	tbl.AppendHeader(header)

	for _, unit := range batch.Ordered() {
		tbl.AppendRow(unitRow(unit, palette, opts.Verbose))
	}

	tbl.AppendFooter(table.Row{fmt.Sprintf("Total: %s units", humanize.Comma(int64(len(batch.Order))))})

	var out strings.Builder

	out.WriteString(summaryLine(batch, palette))
	out.WriteString("\n\n")
	out.WriteString(tbl.Render())
	out.WriteString("\n")

	if batch.Err != nil {
		out.WriteString(palette.failed.Sprintf("\nbatch halted: %v\n", batch.Err))
	}

	return out.String()
}

func unitRow(unit *pipeline.Unit, palette palette, verbose bool) table.Row {
	componentType, confidence, text, variant, size, componentState := noValue, noValue, noValue, noValue, noValue, noValue

	if unit.Record != nil {
		classification := unit.Record.Classification
		props := unit.Record.Properties

		componentType = string(classification.Type)
		if unit.Record.Cached {
			componentType += " (cached)"
		}

		confidence = humanize.FtoaWithDigits(classification.Confidence, 2)
		text = orDash(props.TextValue())
		variant = orDash(props.Variant.Value)
		size = orDash(props.Size.Value)
		componentState = orDash(props.State.Value)
	}

	row := table.Row{
		unit.ID, unit.Name, componentType, confidence, text, variant, size, componentState,
		palette.state(unit.State), unit.Attempts, unit.Duration().Round(durationPrecise),
	}

	if verbose {
		row = append(row, truncate(unit.Error, maxErrorWidth))
	}

	return row
}

func summaryLine(batch *pipeline.Batch, palette palette) string {
	parts := []string{fmt.Sprintf("Run %s: %s units in %s",
		batch.RunID, humanize.Comma(int64(len(batch.Order))), batch.Duration().Round(durationPrecise))}

	if batch.Root != nil {
		parts = append(parts, "root "+string(batch.Root.Classification.Type))
	}

	for _, state := range pipeline.States() {
		count := batch.Counts[state]
		if count == 0 {
			continue
		}

		parts = append(parts, palette.state(state)+" "+humanize.Comma(int64(count)))
	}

	if cached := cachedCount(batch); cached > 0 && len(batch.Order) > 0 {
		rate := float64(cached) / float64(len(batch.Order)) * percent
		parts = append(parts, "cached "+humanize.FtoaWithDigits(rate, 1)+"%")
	}

	return strings.Join(parts, " | ")
}

func cachedCount(batch *pipeline.Batch) int {
	count := 0

	for _, unit := range batch.Ordered() {
		if unit.Record != nil && unit.Record.Cached {
			count++
		}
	}

	return count
}

type palette struct {
	done     *color.Color
	failed   *color.Color
	canceled *color.Color
	other    *color.Color
}

func newPalette(noColor bool) palette {
	colors := palette{
		done:     color.New(color.FgGreen),
		failed:   color.New(color.FgRed),
		canceled: color.New(color.FgYellow),
		other:    color.New(color.FgCyan),
	}

	if noColor {
		for _, c := range []*color.Color{colors.done, colors.failed, colors.canceled, colors.other} {
			c.DisableColor()
		}
	}

	return colors
}

func (colors palette) state(state pipeline.State) string {
	switch state {
	case pipeline.StateDone:
		return colors.done.Sprint(state)
	case pipeline.StateFailed:
		return colors.failed.Sprint(state)
	case pipeline.StateCanceled:
		return colors.canceled.Sprint(state)
	default:
		return colors.other.Sprint(state)
	}
}

func orDash(value string) string {
	if value == "" {
		return noValue
	}

	return value
}

func truncate(value string, width int) string {
	runes := []rune(value)
	if len(runes) <= width {
		return value
	}

	return string(runes[:width-1]) + "…"
}
