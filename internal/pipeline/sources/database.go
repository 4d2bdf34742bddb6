package sources

import (
	"context"
	"fmt"

	"datakit/internal/dbclient"
	"datakit/internal/domain"
	"datakit/internal/pipeline"
	"datakit/internal/tabular"
)

// ── Database Source ────────────────────────────────────────
// Runs a query against an external database and streams the result rows
// as records, paging through the connector cursor.

const dbFetchSize = 500

type databaseSource struct{}

func init() { pipeline.RegisterSource(&databaseSource{}) }

func (s *databaseSource) Spec() pipeline.SourceSpec {
	return pipeline.SourceSpec{
		Type:  "database",
		Label: "Database Query",
		ConfigFields: []pipeline.ConfigField{
			{Key: "driver", Label: "Driver", Type: "select", Required: true, Options: []string{"mysql", "postgres", "sqlite", "mongodb"}},
			{Key: "host", Label: "Host", Type: "string", Required: true, Help: "Hostname, connection URI, or file path (sqlite)"},
			{Key: "port", Label: "Port", Type: "string", Required: false},
			{Key: "database", Label: "Database", Type: "string", Required: false},
			{Key: "username", Label: "Username", Type: "string", Required: false},
			{Key: "password", Label: "Password", Type: "password", Required: false},
			{Key: "sslMode", Label: "SSL Mode", Type: "select", Required: false, Options: []string{"disable", "require"}, Default: "disable"},
			{Key: "query", Label: "Query", Type: "textarea", Required: true, Help: "SQL query, or a JSON query envelope for MongoDB"},
		},
	}
}

// connectionFromConfig builds a DatabaseConnection from source config.
func connectionFromConfig(cfg pipeline.SourceConfig) (*domain.DatabaseConnection, string, error) {
	query := cfg.String("query")
	if query == "" {
		return nil, "", fmt.Errorf("query is required")
	}
	driver := cfg.String("driver")
	if driver == "" {
		return nil, "", fmt.Errorf("driver is required")
	}

	port := 0
	switch p := cfg["port"].(type) {
	case float64:
		port = int(p)
	case string:
		fmt.Sscanf(p, "%d", &port)
	}

	return &domain.DatabaseConnection{
		Driver:   domain.DatabaseDriver(driver),
		Host:     cfg.String("host"),
		Port:     port,
		Database: cfg.String("database"),
		Username: cfg.String("username"),
		Password: cfg.String("password"),
		SSLMode:  cfg.String("sslMode"),
	}, query, nil
}

func (s *databaseSource) Discover(ctx context.Context, cfg pipeline.SourceConfig) (*tabular.Schema, error) {
	conn, query, err := connectionFromConfig(cfg)
	if err != nil {
		return nil, err
	}

	connector, err := dbclient.NewConnector(conn)
	if err != nil {
		return nil, err
	}
	defer connector.Close()

	// Sample a single row to learn the column set.
	page, err := connector.Execute(ctx, query, 1)
	if err != nil {
		return nil, err
	}
	return tabular.TextSchema(page.Columns), nil
}

func (s *databaseSource) Read(ctx context.Context, cfg pipeline.SourceConfig) (<-chan tabular.Record, <-chan error) {
	out := make(chan tabular.Record, 100)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		conn, query, err := connectionFromConfig(cfg)
		if err != nil {
			errCh <- err
			return
		}

		connector, err := dbclient.NewConnector(conn)
		if err != nil {
			errCh <- err
			return
		}
		defer connector.Close()

		page, err := connector.Execute(ctx, query, dbFetchSize)
		if err != nil {
			errCh <- fmt.Errorf("execute: %w", err)
			return
		}

		if !emitPage(ctx, out, page) {
			return
		}

		for page.HasMore {
			page, err = connector.FetchMore(ctx, dbFetchSize)
			if err != nil {
				errCh <- fmt.Errorf("fetch more: %w", err)
				return
			}
			if !emitPage(ctx, out, page) {
				return
			}
		}
	}()

	return out, errCh
}

func emitPage(ctx context.Context, out chan<- tabular.Record, page *dbclient.QueryPage) bool {
	for _, row := range page.Rows {
		data := make(map[string]any, len(page.Columns))
		for i, col := range page.Columns {
			if i < len(row) {
				data[col] = row[i]
			}
		}
		select {
		case out <- tabular.Record{Data: data}:
		case <-ctx.Done():
			return false
		}
	}
	return true
}
