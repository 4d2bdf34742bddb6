package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"datakit/internal/service"
	"datakit/internal/tabular"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerSyncTools() {
	s.mcp.AddTool(mcp.NewTool("create_sync_job",
		mcp.WithDescription("Create a sync job (source → transforms → sink). Supports data transforms (filter, rename, select, map, sort, limit, type casting, deduplication) applied in sequence between source and sink."),
		mcp.WithString("name", mcp.Description("Job name"), mcp.Required()),
		mcp.WithString("sourceType", mcp.Description("Source type (use list_sources to see available types)"), mcp.Required()),
		mcp.WithString("sourceConfigJSON", mcp.Description("Source configuration as JSON"), mcp.Required()),
		mcp.WithString("sinkType", mcp.Description("Sink type (use list_sinks to see available types)"), mcp.Required()),
		mcp.WithString("sinkConfigJSON", mcp.Description("Sink configuration as JSON"), mcp.Required()),
		mcp.WithString("syncMode", mcp.Description("Sync mode: replace (default) or append")),
		mcp.WithString("transformsJSON", mcp.Description(`Optional JSON array of transforms to apply between source and sink. Each transform has {type, config}. Available types:
- filter: {field, op (eq|neq|gt|lt|contains), value} — drop rows not matching condition
- rename: {mapping: {oldName: newName}} — rename columns
- select: {fields: ["col1","col2"]} — keep only specified columns
- map: {field, op (upper|lower|trim|reverse|increment), delta} — rewrite a field in place
- sort: {field, direction (asc|desc)} — sort rows
- limit: {count} — cap number of rows
- type_cast: {field, castType (number|string|bool)} — convert types
- compute: {columns: [{name, expression}]} — add fields from {field} templates
Example: [{"type":"filter","config":{"field":"age","op":"gt","value":18}},{"type":"map","config":{"field":"name","op":"upper"}}]`)),
		mcp.WithString("dedupeKey", mcp.Description("Column name for deduplication (optional)")),
		mcp.WithString("triggerType", mcp.Description("Trigger type: manual (default), schedule, or file_watch")),
		mcp.WithString("triggerConfig", mcp.Description("Cron expression (schedule) or file path (file_watch)")),
	), s.handleCreateSyncJob)

	s.mcp.AddTool(mcp.NewTool("list_sync_jobs",
		mcp.WithDescription("List all sync jobs with their last run status"),
	), s.handleListSyncJobs)

	s.mcp.AddTool(mcp.NewTool("run_sync_job",
		mcp.WithDescription("🛑 DESTRUCTIVE: Execute a sync job. In replace mode this overwrites the sink's existing data."),
		mcp.WithString("jobId", mcp.Description("Sync job ID"), mcp.Required()),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{DestructiveHint: boolPtr(true)}),
	), s.handleRunSyncJob)

	s.mcp.AddTool(mcp.NewTool("delete_sync_job",
		mcp.WithDescription("🛑 DESTRUCTIVE: Delete a sync job and its run history."),
		mcp.WithString("jobId", mcp.Description("Sync job ID"), mcp.Required()),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{DestructiveHint: boolPtr(true)}),
	), s.handleDeleteSyncJob)

	s.mcp.AddTool(mcp.NewTool("list_sources",
		mcp.WithDescription("List available source types with their configuration schemas"),
	), s.handleListSources)

	s.mcp.AddTool(mcp.NewTool("list_sinks",
		mcp.WithDescription("List available sink types with their configuration schemas"),
	), s.handleListSinks)

	s.mcp.AddTool(mcp.NewTool("preview_source",
		mcp.WithDescription("Preview data from a source without persisting anything"),
		mcp.WithString("sourceType", mcp.Description("Source type"), mcp.Required()),
		mcp.WithString("sourceConfigJSON", mcp.Description("Source configuration as JSON"), mcp.Required()),
	), s.handlePreviewSource)

	s.mcp.AddTool(mcp.NewTool("discover_schema",
		mcp.WithDescription("Discover the column schema of a source without reading its data"),
		mcp.WithString("sourceType", mcp.Description("Source type"), mcp.Required()),
		mcp.WithString("sourceConfigJSON", mcp.Description("Source configuration as JSON"), mcp.Required()),
	), s.handleDiscoverSchema)

	s.mcp.AddTool(mcp.NewTool("list_run_logs",
		mcp.WithDescription("List recent run logs for a sync job"),
		mcp.WithString("jobId", mcp.Description("Sync job ID"), mcp.Required()),
	), s.handleListRunLogs)
}

func (s *Server) handleCreateSyncJob(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	name, _ := args["name"].(string)
	sourceType, _ := args["sourceType"].(string)
	sourceConfigStr, _ := args["sourceConfigJSON"].(string)
	sinkType, _ := args["sinkType"].(string)
	sinkConfigStr, _ := args["sinkConfigJSON"].(string)
	syncMode, _ := args["syncMode"].(string)
	dedupeKey, _ := args["dedupeKey"].(string)
	triggerType, _ := args["triggerType"].(string)
	triggerConfig, _ := args["triggerConfig"].(string)

	// transformsJSON may come as a string or as a raw JSON array
	var transformsStr string
	switch v := args["transformsJSON"].(type) {
	case string:
		transformsStr = v
	default:
		if v != nil {
			b, _ := json.Marshal(v)
			transformsStr = string(b)
		}
	}

	var sourceConfig map[string]any
	if err := json.Unmarshal([]byte(sourceConfigStr), &sourceConfig); err != nil {
		return nil, fmt.Errorf("parse sourceConfig: %w", err)
	}
	var sinkConfig map[string]any
	if err := json.Unmarshal([]byte(sinkConfigStr), &sinkConfig); err != nil {
		return nil, fmt.Errorf("parse sinkConfig: %w", err)
	}

	var transforms []tabular.TransformConfig
	if transformsStr != "" {
		if err := json.Unmarshal([]byte(transformsStr), &transforms); err != nil {
			return nil, fmt.Errorf("parse transforms: %w", err)
		}
	}

	input := service.CreateSyncJobInput{
		Name:          name,
		SourceType:    sourceType,
		SourceConfig:  sourceConfig,
		Transforms:    transforms,
		SinkType:      sinkType,
		SinkConfig:    sinkConfig,
		SyncMode:      syncMode,
		DedupeKey:     dedupeKey,
		TriggerType:   triggerType,
		TriggerConfig: triggerConfig,
		Enabled:       true,
	}
	job, err := s.sync.CreateJob(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("create sync job: %w", err)
	}
	return jsonResult(job)
}

func (s *Server) handleListSyncJobs(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	jobs, err := s.sync.ListJobs()
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return jsonResult(jobs)
}

func (s *Server) handleRunSyncJob(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	jobID := req.GetString("jobId", "")
	if jobID == "" {
		return nil, fmt.Errorf("jobId is required")
	}

	result, err := s.sync.RunJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("run sync job: %w", err)
	}
	return jsonResult(result)
}

func (s *Server) handleDeleteSyncJob(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	jobID := req.GetString("jobId", "")
	if jobID == "" {
		return nil, fmt.Errorf("jobId is required")
	}

	if err := s.sync.DeleteJob(ctx, jobID); err != nil {
		return nil, fmt.Errorf("delete sync job: %w", err)
	}
	return textResult(fmt.Sprintf("Job %s deleted", jobID)), nil
}

func (s *Server) handleListSources(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.sync.ListSources())
}

func (s *Server) handleListSinks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.sync.ListSinks())
}

func (s *Server) handlePreviewSource(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sourceType := req.GetString("sourceType", "")
	sourceConfigStr := req.GetString("sourceConfigJSON", "")
	if sourceType == "" || sourceConfigStr == "" {
		return nil, fmt.Errorf("sourceType and sourceConfigJSON are required")
	}

	preview, err := s.sync.PreviewSource(ctx, sourceType, sourceConfigStr)
	if err != nil {
		return nil, fmt.Errorf("preview source: %w", err)
	}
	return jsonResult(preview)
}

func (s *Server) handleDiscoverSchema(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sourceType := req.GetString("sourceType", "")
	sourceConfigStr := req.GetString("sourceConfigJSON", "")
	if sourceType == "" || sourceConfigStr == "" {
		return nil, fmt.Errorf("sourceType and sourceConfigJSON are required")
	}

	schema, err := s.sync.DiscoverSchema(ctx, sourceType, sourceConfigStr)
	if err != nil {
		return nil, fmt.Errorf("discover schema: %w", err)
	}
	return jsonResult(schema)
}

func (s *Server) handleListRunLogs(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	jobID := req.GetString("jobId", "")
	if jobID == "" {
		return nil, fmt.Errorf("jobId is required")
	}

	logs, err := s.sync.ListRunLogs(jobID)
	if err != nil {
		return nil, fmt.Errorf("list run logs: %w", err)
	}
	return jsonResult(logs)
}
