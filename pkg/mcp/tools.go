package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Sumatoshi-tech/designmap/pkg/observability"
	"github.com/Sumatoshi-tech/designmap/pkg/pipeline"
	"github.com/Sumatoshi-tech/designmap/pkg/scene"
)

// Tool name constants.
const (
	ToolNameClassify = "designmap_classify"
	ToolNameValidate = "designmap_validate"
	ToolNameRun      = "designmap_run"
)

// Input size limits.
const (
	// MaxExportInputBytes is the maximum allowed size for an inline export (8 MB).
	MaxExportInputBytes = 8 << 20
)

// Sentinel errors for tool input validation.
var (
	// ErrEmptyExport indicates the export parameter is empty.
	ErrEmptyExport = errors.New("export parameter is required and must not be empty")
	// ErrExportTooLarge indicates the export input exceeds the size limit.
	ErrExportTooLarge = errors.New("export input exceeds maximum size")
)

// Input types (auto-generate JSON schemas via struct tags).

// ClassifyInput is the input schema for the designmap_classify tool.
type ClassifyInput struct {
	Export string `json:"export"           jsonschema:"design export JSON document"`
	Nested bool   `json:"nested,omitempty" jsonschema:"also classify instances nested inside other instances"`
}

// ValidateInput is the input schema for the designmap_validate tool.
type ValidateInput struct {
	Export string `json:"export" jsonschema:"design export JSON document"`
}

// RunInput is the input schema for the designmap_run tool.
type RunInput struct {
	Export string `json:"export" jsonschema:"design export JSON document"`
}

// Output type (used as structured output for generic AddTool).

// ToolOutput is a generic wrapper for tool results.
type ToolOutput struct {
	Data any `json:"data"`
}

// ValidateResult is the designmap_validate payload.
type ValidateResult struct {
	Valid      bool                    `json:"valid"`
	Violations []scene.SchemaViolation `json:"violations,omitempty"`
}

// RunUnit summarizes one unit of a designmap_run batch.
type RunUnit struct {
	ID       string         `json:"id"`
	State    pipeline.State `json:"state"`
	Type     string         `json:"type,omitempty"`
	Code     string         `json:"code,omitempty"`
	Attempts int            `json:"attempts"`
	Error    string         `json:"error,omitempty"`
}

// RunResult is the designmap_run payload.
type RunResult struct {
	RunID    string                 `json:"runId"`
	RootType string                 `json:"rootType,omitempty"`
	Counts   map[pipeline.State]int `json:"counts"`
	Units    []RunUnit              `json:"units"`
	Error    string                 `json:"error,omitempty"`
}

func (s *Server) handleClassify(
	ctx context.Context, _ *mcpsdk.CallToolRequest, input ClassifyInput,
) (*mcpsdk.CallToolResult, ToolOutput, error) {
	doc, err := decodeExportInput(input.Export)
	if err != nil {
		return errorResult(err)
	}

	records, err := s.engine.AnalyzeDocument(ctx, doc, input.Nested)
	if err != nil {
		return errorResult(fmt.Errorf("classify: %w", err))
	}

	observability.CountRecords(ctx, records)

	return jsonResult(records)
}

func handleValidate(
	_ context.Context, _ *mcpsdk.CallToolRequest, input ValidateInput,
) (*mcpsdk.CallToolResult, ToolOutput, error) {
	err := validateExportInput(input.Export)
	if err != nil {
		return errorResult(err)
	}

	violations, err := scene.ValidateSchema([]byte(input.Export))
	if err != nil {
		return errorResult(fmt.Errorf("validate: %w", err))
	}

	return jsonResult(ValidateResult{Valid: len(violations) == 0, Violations: violations})
}

func (s *Server) handleRun(
	ctx context.Context, _ *mcpsdk.CallToolRequest, input RunInput,
) (*mcpsdk.CallToolResult, ToolOutput, error) {
	doc, err := decodeExportInput(input.Export)
	if err != nil {
		return errorResult(err)
	}

	batch, err := s.runner.Run(ctx, doc)
	if batch == nil {
		return errorResult(fmt.Errorf("run: %w", err))
	}

	observability.CountBatch(ctx, batch)

	return jsonResult(summarizeBatch(batch))
}

func summarizeBatch(batch *pipeline.Batch) RunResult {
	result := RunResult{
		RunID:  batch.RunID,
		Counts: batch.Counts,
		Units:  make([]RunUnit, 0, len(batch.Order)),
		Error:  batch.Error,
	}

	if batch.Root != nil {
		result.RootType = string(batch.Root.Classification.Type)
	}

	for _, unit := range batch.Ordered() {
		summary := RunUnit{
			ID:       unit.ID,
			State:    unit.State,
			Attempts: unit.Attempts,
			Error:    unit.Error,
		}

		if unit.Record != nil {
			summary.Type = string(unit.Record.Classification.Type)
		}

		if unit.Generation != nil {
			summary.Code = unit.Generation.Code
		}

		result.Units = append(result.Units, summary)
	}

	return result
}

// Result helpers.

// errorResult builds a CallToolResult with isError set.
func errorResult(err error) (*mcpsdk.CallToolResult, ToolOutput, error) {
	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{
			&mcpsdk.TextContent{Text: err.Error()},
		},
		IsError: true,
	}, ToolOutput{}, nil
}

// jsonResult builds a CallToolResult with JSON-encoded content.
func jsonResult(value any) (*mcpsdk.CallToolResult, ToolOutput, error) {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return errorResult(fmt.Errorf("encode result: %w", err))
	}

	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{
			&mcpsdk.TextContent{Text: string(data)},
		},
	}, ToolOutput{Data: value}, nil
}

// validateExportInput checks common export input constraints.
func validateExportInput(export string) error {
	if export == "" {
		return ErrEmptyExport
	}

	if len(export) > MaxExportInputBytes {
		return fmt.Errorf("%w: %d bytes (max %d)", ErrExportTooLarge, len(export), MaxExportInputBytes)
	}

	return nil
}

func decodeExportInput(export string) (*scene.Document, error) {
	err := validateExportInput(export)
	if err != nil {
		return nil, err
	}

	doc, err := scene.DecodeBytes([]byte(export))
	if err != nil {
		return nil, fmt.Errorf("decode export: %w", err)
	}

	return doc, nil
}
