package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"datakit/internal/domain"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerDatasetTools() {
	s.mcp.AddTool(mcp.NewTool("list_datasets",
		mcp.WithDescription("List locally stored datasets with their column definitions"),
	), s.handleListDatasets)

	s.mcp.AddTool(mcp.NewTool("list_dataset_rows",
		mcp.WithDescription("List all rows of a dataset. Rows are keyed by column name."),
		mcp.WithString("datasetId", mcp.Description("Dataset ID (or use datasetName)")),
		mcp.WithString("datasetName", mcp.Description("Dataset name, resolved when datasetId is not given")),
	), s.handleListDatasetRows)

	s.mcp.AddTool(mcp.NewTool("delete_dataset",
		mcp.WithDescription("🛑 DESTRUCTIVE: Delete a dataset and all its rows."),
		mcp.WithString("datasetId", mcp.Description("Dataset ID"), mcp.Required()),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{DestructiveHint: boolPtr(true)}),
	), s.handleDeleteDataset)
}

func (s *Server) handleListDatasets(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	datasets, err := s.datasets.ListDatasets()
	if err != nil {
		return nil, fmt.Errorf("list datasets: %w", err)
	}
	return jsonResult(datasets)
}

func (s *Server) handleListDatasetRows(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	datasetID := req.GetString("datasetId", "")
	datasetName := req.GetString("datasetName", "")
	if datasetID == "" && datasetName == "" {
		return nil, fmt.Errorf("datasetId or datasetName is required")
	}

	dataset, err := s.resolveDataset(datasetID, datasetName)
	if err != nil {
		return nil, err
	}

	rows, err := s.datasets.ListRows(dataset.ID)
	if err != nil {
		return nil, fmt.Errorf("list rows: %w", err)
	}

	// Translate column-ID keyed storage back to column names.
	idToName := make(map[string]string, len(dataset.Columns))
	for _, c := range dataset.Columns {
		idToName[c.ID] = c.Name
	}

	out := make([]map[string]any, 0, len(rows))
	for _, r := range rows {
		var data map[string]any
		if err := json.Unmarshal([]byte(r.DataJSON), &data); err != nil {
			continue
		}
		named := make(map[string]any, len(data))
		for colID, v := range data {
			name := idToName[colID]
			if name == "" {
				name = colID
			}
			named[name] = v
		}
		out = append(out, named)
	}
	return jsonResult(map[string]any{
		"dataset": dataset.Name,
		"rows":    out,
	})
}

func (s *Server) resolveDataset(id, name string) (*domain.Dataset, error) {
	if id != "" {
		return s.datasets.GetDataset(id)
	}
	return s.datasets.GetDatasetByName(name)
}

func (s *Server) handleDeleteDataset(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	datasetID := req.GetString("datasetId", "")
	if datasetID == "" {
		return nil, fmt.Errorf("datasetId is required")
	}

	if err := s.datasets.DeleteDataset(datasetID); err != nil {
		return nil, fmt.Errorf("delete dataset: %w", err)
	}
	return textResult(fmt.Sprintf("Dataset %s deleted", datasetID)), nil
}
