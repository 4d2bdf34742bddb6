package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"datakit/internal/handler"
	"datakit/internal/helper"
	mcpserver "datakit/internal/mcp"
	"datakit/internal/service"
	"datakit/internal/storage"
	"datakit/internal/tabular"

	_ "datakit/internal/pipeline/sinks"
	_ "datakit/internal/pipeline/sources"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "mcp":
		serveMCP()
	case "run":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "usage: datakit run <job-id>")
			os.Exit(2)
		}
		runJob(os.Args[2])
	case "demo":
		demo()
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `datakit — load, transform, and sync tabular data

Usage:
  datakit mcp           Serve the MCP toolbox on stdin/stdout
  datakit run <job-id>  Execute a stored sync job once
  datakit demo          Run the built-in JSON/CSV walkthrough`)
}

// dataDir resolves the storage directory, overridable via DATAKIT_DATA_DIR.
func dataDir() string {
	homeDir, _ := os.UserHomeDir()
	return helper.GetEnvOrDefault("DATAKIT_DATA_DIR",
		filepath.Join(homeDir, ".local", "share", "datakit"))
}

// logEmitter is a log-backed EventEmitter used in CLI mode (no frontend).
type logEmitter struct{}

func (logEmitter) Emit(_ context.Context, event string, data any) {
	log.Printf("event %s: %v", event, data)
}

// openServices opens storage and wires the sync service on top of it.
func openServices(emitter service.EventEmitter) (*storage.DB, *service.SyncService, *storage.DatasetStore, error) {
	db, err := storage.New(filepath.Join(dataDir(), "datakit.db"))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open database: %w", err)
	}
	datasets := storage.NewDatasetStore(db)
	jobs := storage.NewJobStore(db)
	return db, service.NewSyncService(jobs, datasets, emitter), datasets, nil
}

// serveMCP runs the app as a standalone MCP server on stdin/stdout.
func serveMCP() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	db, syncSvc, datasets, err := openServices(logEmitter{})
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()
	defer syncSvc.Stop()

	// Activate schedule / file_watch triggers while the server runs.
	syncSvc.RestartWatchers(ctx)

	mcpSrv := mcpserver.New(mcpserver.Deps{
		Sync:     syncSvc,
		Datasets: datasets,
	})

	log.Println("[MCP] Starting standalone stdio server...")
	if err := mcpSrv.ServeStdio(); err != nil {
		log.Fatalf("MCP server error: %v", err)
	}

	syncSvc.WaitRunning(ctx)
}

// runJob executes a single stored sync job and prints the result.
func runJob(id string) {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	db, syncSvc, _, err := openServices(logEmitter{})
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()
	defer syncSvc.Stop()

	result, err := syncSvc.RunJob(ctx, id)
	if err != nil {
		log.Fatalf("Job failed: %v", err)
	}
	fmt.Printf("Job %s finished: %s (%d read, %d written, %s)\n",
		result.JobID, result.Status, result.RowsRead, result.RowsWritten, result.Duration)
}

// demo exercises the file handler end to end with sample data.
func demo() {
	h := handler.New(nil)

	dir, err := os.MkdirTemp("", "datakit-demo-")
	if err != nil {
		log.Fatalf("create demo dir: %v", err)
	}
	fmt.Printf("Writing demo files to %s\n", dir)

	// JSON round trip
	sample := map[string]any{"name": "John Doe", "age": 30, "city": "New York"}
	h.SaveJSON(filepath.Join(dir, "data.json"), sample)
	loaded := h.LoadJSON(filepath.Join(dir, "data.json"))
	fmt.Printf("Loaded JSON data: %v\n", loaded)

	// CSV round trip
	csvData := &tabular.RecordSet{
		Schema: tabular.TextSchema([]string{"name", "age", "city"}),
		Records: []tabular.Record{
			{Data: map[string]any{"name": "Alice", "age": "25", "city": "New York"}},
			{Data: map[string]any{"name": "Bob", "age": "30", "city": "San Francisco"}},
			{Data: map[string]any{"name": "Charlie", "age": "35", "city": "Chicago"}},
		},
	}
	h.SaveCSV(filepath.Join(dir, "data.csv"), csvData)
	loadedCSV := h.LoadCSV(filepath.Join(dir, "data.csv"))

	transformed, err := h.TransformData(loadedCSV, tabular.FieldMap{
		"name": tabular.Uppercase,
		"age":  tabular.Increment(1),
		"city": tabular.Reverse,
	})
	if err != nil {
		log.Fatalf("Transform failed: %v", err)
	}

	h.SaveCSV(filepath.Join(dir, "transformed.csv"), transformed)
	for _, rec := range transformed.Records {
		fmt.Printf("%v\n", rec.Data)
	}
}
