package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"datakit/internal/handler"
	"datakit/internal/tabular"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerFileTools() {
	s.mcp.AddTool(mcp.NewTool("load_json_file",
		mcp.WithDescription("Load a JSON file and return its contents. Returns an empty object if the file is missing or malformed."),
		mcp.WithString("path", mcp.Description("Path to the JSON file"), mcp.Required()),
	), s.handleLoadJSONFile)

	s.mcp.AddTool(mcp.NewTool("save_json_file",
		mcp.WithDescription("🛑 DESTRUCTIVE: Write a JSON value to a file, overwriting any existing content."),
		mcp.WithString("path", mcp.Description("Path to write"), mcp.Required()),
		mcp.WithString("dataJSON", mcp.Description("Value to write, as a JSON string"), mcp.Required()),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{DestructiveHint: boolPtr(true)}),
	), s.handleSaveJSONFile)

	s.mcp.AddTool(mcp.NewTool("load_csv_file",
		mcp.WithDescription("Load a CSV file and return its rows. All values are returned as strings. Returns no rows if the file is missing or malformed."),
		mcp.WithString("path", mcp.Description("Path to the CSV file"), mcp.Required()),
	), s.handleLoadCSVFile)

	s.mcp.AddTool(mcp.NewTool("save_csv_file",
		mcp.WithDescription("🛑 DESTRUCTIVE: Write rows to a CSV file, overwriting any existing content."),
		mcp.WithString("path", mcp.Description("Path to write"), mcp.Required()),
		mcp.WithString("rowsJSON", mcp.Description("JSON array of row objects [{column: value, ...}, ...]"), mcp.Required()),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{DestructiveHint: boolPtr(true)}),
	), s.handleSaveCSVFile)
}

func (s *Server) handleLoadJSONFile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path := req.GetString("path", "")
	if path == "" {
		return nil, fmt.Errorf("path is required")
	}

	reporter := &handler.MockReporter{}
	data := handler.New(reporter).LoadJSON(path)

	return jsonResult(map[string]any{
		"data": data,
		"log":  strings.Join(reporter.Lines, "\n"),
	})
}

func (s *Server) handleSaveJSONFile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path := req.GetString("path", "")
	dataStr := req.GetString("dataJSON", "")
	if path == "" || dataStr == "" {
		return nil, fmt.Errorf("path and dataJSON are required")
	}

	var v any
	if err := json.Unmarshal([]byte(dataStr), &v); err != nil {
		return nil, fmt.Errorf("parse dataJSON: %w", err)
	}

	reporter := &handler.MockReporter{}
	handler.New(reporter).SaveJSON(path, v)

	return textResult(strings.Join(reporter.Lines, "\n")), nil
}

func (s *Server) handleLoadCSVFile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path := req.GetString("path", "")
	if path == "" {
		return nil, fmt.Errorf("path is required")
	}

	reporter := &handler.MockReporter{}
	rs := handler.New(reporter).LoadCSV(path)

	rows := make([]map[string]any, 0, rs.Len())
	for _, rec := range rs.Records {
		rows = append(rows, rec.Data)
	}
	columns := []string{}
	if rs.Schema != nil {
		columns = rs.Schema.FieldNames()
	}
	return jsonResult(map[string]any{
		"columns": columns,
		"rows":    rows,
		"log":     strings.Join(reporter.Lines, "\n"),
	})
}

func (s *Server) handleSaveCSVFile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path := req.GetString("path", "")
	rowsStr := req.GetString("rowsJSON", "")
	if path == "" || rowsStr == "" {
		return nil, fmt.Errorf("path and rowsJSON are required")
	}

	var rows []map[string]any
	if err := json.Unmarshal([]byte(rowsStr), &rows); err != nil {
		return nil, fmt.Errorf("parse rowsJSON: %w", err)
	}

	rs := recordSetFromRows(rows)
	reporter := &handler.MockReporter{}
	handler.New(reporter).SaveCSV(path, rs)

	return textResult(strings.Join(reporter.Lines, "\n")), nil
}

// recordSetFromRows builds a RecordSet with columns sorted by name so
// the CSV output is deterministic regardless of JSON key order.
func recordSetFromRows(rows []map[string]any) *tabular.RecordSet {
	records := make([]tabular.Record, 0, len(rows))
	seen := make(map[string]bool)
	var columns []string
	for _, row := range rows {
		for k := range row {
			if !seen[k] {
				seen[k] = true
				columns = append(columns, k)
			}
		}
		records = append(records, tabular.Record{Data: row})
	}
	sort.Strings(columns)
	return &tabular.RecordSet{Schema: tabular.TextSchema(columns), Records: records}
}
